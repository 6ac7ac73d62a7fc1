package lighting

import (
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-fx/internal/config"
	"github.com/Faultbox/midgard-fx/internal/engine/gpu"
	"github.com/Faultbox/midgard-fx/internal/engine/shadow"
	"github.com/Faultbox/midgard-fx/internal/engine/worker"
	"github.com/Faultbox/midgard-fx/internal/engine/world"
	"github.com/Faultbox/midgard-fx/internal/logger"
)

// Manager registers point lights and drives their cubemap shadows.
// The registry lock is never held while taking the world lock.
type Manager struct {
	env      shadow.Env
	ownsPool bool

	mu      sync.Mutex
	lights  []*PointLight
	shadows map[*PointLight]*shadow.PointLightShadow

	log *zap.Logger
}

// NewManager creates a light registry. When env.Pool is nil the manager
// creates a pool sized by the shadow config and closes it on Close.
func NewManager(env shadow.Env) *Manager {
	m := &Manager{
		env:     env,
		shadows: make(map[*PointLight]*shadow.PointLightShadow),
		log:     logger.Named(logger.Lighting),
	}
	if m.env.Pool == nil {
		m.env.Pool = worker.New(env.Config.Workers())
		m.ownsPool = true
	}
	env.World.OnVobRemoved(m.OnVobRemovedFromWorld)
	return m
}

// Register adds a light and creates its shadow state. It returns nil
// without error when point light shadows are off.
//
// The shadow is created without holding the registry lock: dynamic lights
// take the world lock while initializing, and the render thread asks the
// registry for shadows while it holds the world lock.
func (m *Manager) Register(light *PointLight) (*shadow.PointLightShadow, error) {
	m.mu.Lock()
	if _, ok := m.shadows[light]; ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("light %q already registered", light.Name())
	}
	m.lights = append(m.lights, light)
	m.shadows[light] = nil
	off := m.env.Config.PointLightPolicy == config.ShadowsOff
	m.mu.Unlock()

	if off {
		return nil, nil
	}

	s, err := shadow.New(light, light.Dynamic(), m.env)
	if err != nil {
		return nil, fmt.Errorf("creating shadow for light %q: %w", light.Name(), err)
	}

	m.mu.Lock()
	_, ok := m.shadows[light]
	if ok {
		m.shadows[light] = s
	}
	m.mu.Unlock()

	if !ok {
		// Unregistered or closed while the shadow was being created
		return nil, multierr.Append(
			fmt.Errorf("light %q removed during registration", light.Name()),
			s.Close(),
		)
	}

	m.log.Debug("light registered",
		zap.String("light", light.Name()),
		zap.Bool("dynamic", light.Dynamic()),
		zap.Float32("range", light.Range()),
	)
	return s, nil
}

// Unregister removes a light, waiting for its shadow initialization to
// finish before releasing it.
func (m *Manager) Unregister(light *PointLight) error {
	m.mu.Lock()
	s, ok := m.shadows[light]
	delete(m.shadows, light)
	for i, l := range m.lights {
		if l == light {
			m.lights = append(m.lights[:i], m.lights[i+1:]...)
			break
		}
	}
	m.mu.Unlock()

	if !ok || s == nil {
		return nil
	}
	return s.Close()
}

// Lights returns the registered lights in registration order.
func (m *Manager) Lights() []*PointLight {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*PointLight(nil), m.lights...)
}

// Shadow returns the shadow state of a light, or nil.
func (m *Manager) Shadow(light *PointLight) *shadow.PointLightShadow {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shadows[light]
}

func (m *Manager) shadowList() []*shadow.PointLightShadow {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*shadow.PointLightShadow, 0, len(m.lights))
	for _, l := range m.lights {
		if s := m.shadows[l]; s != nil {
			out = append(out, s)
		}
	}
	return out
}

// RenderShadows updates every light's cubemap that needs it. A failing
// light is logged and skipped; the errors are returned together.
func (m *Manager) RenderShadows(force bool) error {
	var errs error
	for _, s := range m.shadowList() {
		if err := s.RenderCubemap(force); err != nil {
			m.log.Warn("shadow render failed", zap.Error(err))
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// BindShadowMaps binds each ready light's cubemap in turn and calls draw,
// for a lighting pass that shades one light at a time.
func (m *Manager) BindShadowMaps(ctx gpu.Context, draw func(light *PointLight)) {
	m.mu.Lock()
	lights := append([]*PointLight(nil), m.lights...)
	m.mu.Unlock()

	for _, l := range lights {
		ctx.BindShaderResource(gpu.StagePixel, shadow.ShadowMapSlot, nil)
		if s := m.Shadow(l); s != nil {
			s.BindShadowMap(ctx)
		}
		draw(l)
	}
	ctx.BindShaderResource(gpu.StagePixel, shadow.ShadowMapSlot, nil)
}

// OnVobRemovedFromWorld forwards a vob removal to every shadow state.
func (m *Manager) OnVobRemovedFromWorld(v *world.Vob) {
	for _, s := range m.shadowList() {
		s.OnVobRemovedFromWorld(v)
	}
}

// Close releases every shadow state and the worker pool.
func (m *Manager) Close() error {
	m.mu.Lock()
	shadows := make([]*shadow.PointLightShadow, 0, len(m.shadows))
	for _, l := range m.lights {
		if s := m.shadows[l]; s != nil {
			shadows = append(shadows, s)
		}
	}
	m.lights = nil
	m.shadows = make(map[*PointLight]*shadow.PointLightShadow)
	m.mu.Unlock()

	var err error
	for _, s := range shadows {
		err = multierr.Append(err, s.Close())
	}
	if m.ownsPool {
		m.env.Pool.Close()
	}
	return err
}
