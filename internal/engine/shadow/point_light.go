package shadow

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-fx/internal/config"
	"github.com/Faultbox/midgard-fx/internal/engine/gpu"
	"github.com/Faultbox/midgard-fx/internal/engine/worker"
	"github.com/Faultbox/midgard-fx/internal/engine/world"
	"github.com/Faultbox/midgard-fx/internal/logger"
	"github.com/Faultbox/midgard-fx/pkg/math"
)

// MatrixSlot is the geometry shader constant buffer slot of the face
// matrices.
const MatrixSlot = 2

// ShadowMapSlot is the pixel shader slot the cubemap is bound to for
// lighting.
const ShadowMapSlot = 3

// ErrNotReady is returned by operations that need the light's GPU resources
// before they exist.
var ErrNotReady = errors.New("shadow resources not initialized")

// State is the lifecycle of a shadow state.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateFailed
	StateClosed
)

var stateNames = [...]string{"uninitialized", "initializing", "ready", "failed", "closed"}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Env is what a shadow state needs from the renderer.
type Env struct {
	Device  gpu.ShadowDevice
	Context gpu.Context
	Scene   Scene
	World   *world.Sections
	Pool    *worker.Pool
	Config  *config.ShadowConfig
}

// PointLightShadow owns the depth cubemap of one point light and decides
// when it must be re-rendered.
type PointLightShadow struct {
	light    Light
	dynamic  bool
	env      Env
	strategy faceStrategy
	log      *zap.Logger

	state atomic.Int32
	task  *worker.Task

	// Guarded by the world resource lock
	cubemap           gpu.DepthCubemap
	matrices          *gpu.ConstantBuffer
	worldCache        map[world.TileKey]*world.MeshInfo
	worldCacheInvalid bool
	vobCache          VobList
	skinnedCache      VobList

	// Render thread only
	drawnOnce bool
	lastPos   math.Vec3
	lastColor [3]float32
}

// New creates the shadow state of a light. Dynamic lights get their
// resources immediately; static lights are initialized on the worker pool
// and cannot render until that finishes.
func New(light Light, dynamic bool, env Env) (*PointLightShadow, error) {
	s := &PointLightShadow{
		light:   light,
		dynamic: dynamic,
		env:     env,
		lastPos: light.Position(),
		log:     logger.Named(logger.Shadow),
	}

	if env.Device.Capabilities().GeometryShaderCubemap && !env.Config.ForcePerFace {
		s.strategy = geometryShaderStrategy{}
	} else {
		s.strategy = perFaceStrategy{}
	}

	s.state.Store(int32(StateInitializing))
	if dynamic {
		if err := s.initResources(); err != nil {
			return nil, err
		}
		return s, nil
	}

	s.task = env.Pool.Submit("point light shadow init", func() error {
		if err := s.initResources(); err != nil {
			s.log.Warn("point light shadow init failed", zap.Error(err))
			return err
		}
		return nil
	})
	return s, nil
}

// initResources creates the cubemap and matrix buffer and, for static
// lights, collects the world geometry around the light.
func (s *PointLightShadow) initResources() error {
	w := s.env.World
	w.Enter()
	defer w.Leave()

	cubemap, err := s.env.Device.CreateDepthCubemap(s.env.Config.CubemapSize)
	if err != nil {
		s.state.Store(int32(StateFailed))
		return fmt.Errorf("creating depth cubemap: %w", err)
	}
	matrices, err := gpu.NewConstantBuffer(s.env.Device, binary.Size(cubeConstants{}))
	if err != nil {
		s.state.Store(int32(StateFailed))
		return multierr.Append(err, cubemap.Release())
	}
	s.cubemap = cubemap
	s.matrices = matrices

	if !s.dynamic {
		s.worldCache = w.CollectInRange(s.light.Position(), s.light.Range())
		s.worldCacheInvalid = false
	} else {
		s.worldCacheInvalid = true
	}

	s.state.Store(int32(StateReady))
	s.log.Debug("point light shadow ready",
		zap.Bool("dynamic", s.dynamic),
		zap.Int("world_tiles", len(s.worldCache)),
		zap.String("strategy", s.strategy.name()),
	)
	return nil
}

// State returns the current lifecycle state.
func (s *PointLightShadow) State() State {
	return State(s.state.Load())
}

// Ready reports whether the light can render.
func (s *PointLightShadow) Ready() bool {
	return s.State() == StateReady
}

// Wait blocks until initialization has finished and returns its error.
func (s *PointLightShadow) Wait() error {
	if s.task == nil {
		return nil
	}
	return s.task.Wait()
}

// Dynamic reports whether the light was created as dynamic.
func (s *PointLightShadow) Dynamic() bool {
	return s.dynamic
}

// DrawnOnce reports whether the cubemap has been rendered.
func (s *PointLightShadow) DrawnOnce() bool {
	return s.drawnOnce
}

// NeedsUpdate reports whether the light moved since its last render or was
// never rendered.
func (s *PointLightShadow) NeedsUpdate() bool {
	return s.light.Position() != s.lastPos || !s.drawnOnce
}

// WantsUpdate reports whether a re-render would be nice but is not
// required: the light changed color and the policy refreshes on color.
func (s *PointLightShadow) WantsUpdate() bool {
	return s.env.Config.PointLightPolicy >= config.ShadowsDynamic && s.light.Color() != s.lastColor
}

// RenderCubemap re-renders the depth cubemap if the light moved, was never
// drawn, changed color under the dynamic policy, or force is set.
func (s *PointLightShadow) RenderCubemap(force bool) error {
	if !s.Ready() {
		return nil
	}
	if !s.NeedsUpdate() && !s.WantsUpdate() && !force {
		return nil
	}

	w := s.env.World
	w.Enter()
	defer w.Leave()

	pos := s.light.Position()
	color := s.light.Color()
	if pos != s.lastPos {
		// Moved: cached geometry no longer matches the light's range
		s.vobCache = s.vobCache[:0]
		s.skinnedCache = s.skinnedCache[:0]
		s.worldCacheInvalid = true
	}

	m := ComputeCubeMatrices(pos, s.light.Range())

	ctx := s.env.Context
	s.matrices.Update(ctx, m.constants())
	s.matrices.Bind(ctx, gpu.StageGeometry, MatrixSlot)

	prevDepth := ctx.LinearDepth()
	prevClip := ctx.DepthClipEnabled()
	ctx.SetLinearDepth(gpu.LinearDepth{Enabled: true, Near: m.Near, Far: m.Far})
	ctx.SetDepthClipEnabled(true)
	defer func() {
		ctx.SetDepthClipEnabled(prevClip)
		ctx.SetLinearDepth(prevDepth)
	}()

	if err := s.strategy.render(s, pos, m); err != nil {
		return fmt.Errorf("rendering shadow cube (%s): %w", s.strategy.name(), err)
	}

	s.lastColor = color
	s.lastPos = pos
	s.drawnOnce = true
	return nil
}

// RenderCubemapFace renders one face with the scene camera replaced by the
// given view and projection. The previous camera is restored afterwards.
// Geometry caches are not used.
func (s *PointLightShadow) RenderCubemapFace(view, proj math.Mat4, face int) error {
	if !s.Ready() {
		return ErrNotReady
	}

	w := s.env.World
	w.Enter()
	defer w.Leave()

	return s.renderFace(view, proj, face)
}

// renderFace needs the world resource lock held.
func (s *PointLightShadow) renderFace(view, proj math.Mat4, face int) error {
	if face < 0 || face >= FaceCount {
		return fmt.Errorf("cubemap face %d out of range", face)
	}

	pos := s.light.Position()
	scene := s.env.Scene

	prev := scene.CameraReplacement()
	scene.SetCameraReplacement(&CameraReplacement{
		Position:   pos,
		View:       view,
		Projection: proj,
	})
	defer scene.SetCameraReplacement(prev)

	return scene.RenderShadowCube(CubeRequest{
		Position:       pos,
		Radius:         RenderRadius(s.light.Range()),
		Target:         s.cubemap,
		Face:           face,
		Depth:          s.cubemap.Face(face),
		Indoor:         s.light.Indoor(),
		ExcludeSkinned: !s.drawnOnce,
	})
}

// OnVobRemovedFromWorld drops both vob caches if either holds v.
func (s *PointLightShadow) OnVobRemovedFromWorld(v *world.Vob) {
	w := s.env.World
	w.Enter()
	defer w.Leave()

	if s.vobCache.Contains(v) || s.skinnedCache.Contains(v) {
		s.vobCache = s.vobCache[:0]
		s.skinnedCache = s.skinnedCache[:0]
	}
}

// BindShadowMap binds the cubemap for the lighting pass. It does nothing
// until the light is ready.
func (s *PointLightShadow) BindShadowMap(ctx gpu.Context) {
	if !s.Ready() {
		return
	}
	ctx.BindShaderResource(gpu.StagePixel, ShadowMapSlot, s.cubemap)
}

// Close waits for a pending initialization, then releases the GPU
// resources and drops the caches.
func (s *PointLightShadow) Close() error {
	if s.task != nil {
		// The init error was already logged
		_ = s.task.Wait()
	}

	w := s.env.World
	w.Enter()
	defer w.Leave()

	var err error
	if s.cubemap != nil {
		err = multierr.Append(err, s.cubemap.Release())
		s.cubemap = nil
	}
	if s.matrices != nil {
		err = multierr.Append(err, s.matrices.Release())
		s.matrices = nil
	}
	s.worldCache = nil
	s.vobCache = nil
	s.skinnedCache = nil
	s.state.Store(int32(StateClosed))
	return err
}

// faceStrategy renders all six faces of a cube.
type faceStrategy interface {
	name() string
	render(s *PointLightShadow, pos math.Vec3, m CubeMatrices) error
}

// geometryShaderStrategy draws every face in one pass, the geometry shader
// routing primitives to layers with the uploaded face matrices.
type geometryShaderStrategy struct{}

func (geometryShaderStrategy) name() string { return "geometry_shader" }

func (geometryShaderStrategy) render(s *PointLightShadow, pos math.Vec3, _ CubeMatrices) error {
	var wc map[world.TileKey]*world.MeshInfo
	if !s.worldCacheInvalid {
		wc = s.worldCache
	}
	return s.env.Scene.RenderShadowCube(CubeRequest{
		Position:       pos,
		Radius:         RenderRadius(s.light.Range()),
		Target:         s.cubemap,
		Face:           AllFaces,
		Depth:          s.cubemap.Layered(),
		Indoor:         s.light.Indoor(),
		ExcludeSkinned: !s.drawnOnce,
		VobCache:       &s.vobCache,
		SkinnedCache:   &s.skinnedCache,
		WorldCache:     wc,
	})
}

// perFaceStrategy draws the faces one by one for devices without layered
// rendering from a geometry shader.
type perFaceStrategy struct{}

func (perFaceStrategy) name() string { return "per_face" }

func (perFaceStrategy) render(s *PointLightShadow, _ math.Vec3, m CubeMatrices) error {
	for i := 0; i < FaceCount; i++ {
		if err := s.renderFace(m.View[i], m.Projection, i); err != nil {
			return fmt.Errorf("face %d: %w", i, err)
		}
	}
	return nil
}
