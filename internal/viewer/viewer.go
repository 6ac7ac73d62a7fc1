// Package viewer runs the interactive demo: a procedural scene lit by
// shadowed point lights and drawn through the HDR post effect chain.
package viewer

import (
	"fmt"
	gomath "math"
	"time"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/veandco/go-sdl2/sdl"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-fx/internal/config"
	"github.com/Faultbox/midgard-fx/internal/engine/camera"
	"github.com/Faultbox/midgard-fx/internal/engine/debug"
	"github.com/Faultbox/midgard-fx/internal/engine/gpu"
	"github.com/Faultbox/midgard-fx/internal/engine/gpu/glgpu"
	"github.com/Faultbox/midgard-fx/internal/engine/input"
	"github.com/Faultbox/midgard-fx/internal/engine/lighting"
	"github.com/Faultbox/midgard-fx/internal/engine/postfx"
	"github.com/Faultbox/midgard-fx/internal/engine/scene"
	"github.com/Faultbox/midgard-fx/internal/engine/shadow"
	"github.com/Faultbox/midgard-fx/internal/engine/window"
	"github.com/Faultbox/midgard-fx/internal/engine/worker"
	"github.com/Faultbox/midgard-fx/internal/engine/world"
	"github.com/Faultbox/midgard-fx/internal/logger"
	"github.com/Faultbox/midgard-fx/pkg/math"
)

const title = "midgard-fx"

// Viewer is the main viewer instance.
type Viewer struct {
	cfg     *config.Config
	running bool

	window  *window.Window
	input   *input.Input
	dev     *glgpu.Device
	ctx     *glgpu.Context
	shaders *glgpu.ShaderSet

	layout  scene.Layout
	world   *world.Sections
	walkers []*world.Vob
	pool    *worker.Pool
	scene   *scene.Renderer
	lights  *lighting.Manager
	orbiter *lighting.PointLight
	camera  *camera.Orbit

	post *postfx.Renderer
	hdr  *postfx.HDREffect // nil when HDR is disabled

	screenshots    *debug.ScreenshotCapture
	wantScreenshot bool

	width   int
	height  int
	elapsed float32
	log     *zap.Logger
}

// New creates the window and every renderer subsystem.
func New(cfg *config.Config) (_ *Viewer, err error) {
	v := &Viewer{
		cfg:         cfg,
		layout:      scene.DefaultLayout(),
		input:       input.New(),
		screenshots: debug.NewScreenshotCapture(cfg.Debug.ScreenshotDir, "midgard-fx"),
		log:         logger.Named(logger.Viewer),
	}
	defer func() {
		if err != nil {
			v.Close()
		}
	}()

	if v.window, err = window.New(title, cfg.Graphics); err != nil {
		return nil, fmt.Errorf("failed to create window: %w", err)
	}
	if err = gl.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize OpenGL: %w", err)
	}
	v.width, v.height = v.window.DrawableSize()

	v.dev = glgpu.NewDevice()
	if v.ctx, err = glgpu.NewContext(v.dev, v.width, v.height); err != nil {
		return nil, fmt.Errorf("failed to create context: %w", err)
	}
	if v.shaders, err = glgpu.LoadShaders(v.dev); err != nil {
		return nil, fmt.Errorf("failed to load shaders: %w", err)
	}

	v.world = world.NewSections(v.layout.SectionSize)
	v.walkers = scene.Populate(v.world, v.layout)
	v.pool = worker.New(cfg.Shadows.Workers())

	if v.scene, err = scene.NewRenderer(v.ctx, v.world, v.width, v.height); err != nil {
		return nil, fmt.Errorf("failed to create scene renderer: %w", err)
	}
	v.scene.SetLogger(v.log.Named("scene"))
	v.scene.SetShowBounds(cfg.Debug.ShowBounds)

	v.lights = lighting.NewManager(shadow.Env{
		Device:  v.dev,
		Context: v.ctx,
		Scene:   v.scene,
		World:   v.world,
		Pool:    v.pool,
		Config:  &cfg.Shadows,
	})
	for _, l := range demoLights(v.layout) {
		if _, err := v.lights.Register(l); err != nil {
			// The light still shades the scene, only without a shadow
			v.log.Warn("light has no shadow", zap.String("light", l.Name()), zap.Error(err))
		}
		if l.Dynamic() {
			v.orbiter = l
		}
	}

	if v.post, err = postfx.NewRenderer(v.dev, v.ctx, v.shaders, v.width, v.height); err != nil {
		return nil, fmt.Errorf("failed to create post effects: %w", err)
	}
	if cfg.HDR.Enabled {
		if v.hdr, err = postfx.NewHDREffect(v.post, v.scene); err != nil {
			return nil, fmt.Errorf("failed to create hdr effect: %w", err)
		}
		v.post.AddEffect(v.hdr)
	}

	v.camera = camera.NewOrbit()
	v.camera.Frame(v.layout.Extent())

	v.log.Info("viewer initialized",
		zap.Int("width", v.width),
		zap.Int("height", v.height),
		zap.Bool("hdr", cfg.HDR.Enabled),
		zap.Stringer("shadow_policy", cfg.Shadows.PointLightPolicy),
		zap.Int("lights", len(v.lights.Lights())),
	)
	return v, nil
}

// demoLights returns the lights of the demo scene: one static light per
// section corner and one dynamic light orbiting the center.
func demoLights(l scene.Layout) []*lighting.PointLight {
	half := l.SectionSize * float32(l.Tiles) / 2
	inset := l.SectionSize / 2
	colors := [][3]float32{
		{1, 0.6, 0.3},
		{0.4, 0.6, 1},
		{0.5, 1, 0.5},
		{1, 0.4, 0.8},
	}
	corners := []math.Vec3{
		{X: -half + inset, Z: -half + inset},
		{X: half - inset, Z: -half + inset},
		{X: -half + inset, Z: half - inset},
		{X: half - inset, Z: half - inset},
	}

	lights := make([]*lighting.PointLight, 0, len(corners)+1)
	for i, p := range corners {
		p.Y = l.PillarTall * 0.75
		lights = append(lights, lighting.NewPointLight(
			fmt.Sprintf("static-%d", i), p, colors[i], l.SectionSize*1.2, false))
	}
	lights = append(lights, lighting.NewPointLight(
		"orbiter", orbitPosition(l, 0), orbitColor(0), l.SectionSize, true))
	return lights
}

// orbitPosition is where the dynamic light is at time t (seconds).
func orbitPosition(l scene.Layout, t float32) math.Vec3 {
	radius := l.SectionSize * 0.8
	a := float64(t * 0.5)
	return math.Vec3{
		X: radius * float32(gomath.Cos(a)),
		Y: l.PillarTall * 0.5,
		Z: radius * float32(gomath.Sin(a)),
	}
}

// orbitColor cycles the dynamic light through warm and cool tones.
func orbitColor(t float32) [3]float32 {
	s := 0.5 + 0.5*float32(gomath.Sin(float64(t*0.7)))
	return [3]float32{1, 0.5 + 0.5*s, 1 - 0.6*s}
}

// Run starts the main loop.
func (v *Viewer) Run() error {
	v.running = true

	lastTime := time.Now()
	frameCount := 0
	fpsTimer := time.Now()

	v.log.Info("starting main loop")

	for v.running {
		now := time.Now()
		dt := now.Sub(lastTime).Seconds()
		lastTime = now

		if v.input.Update() {
			v.running = false
			break
		}
		if err := v.handleEvents(); err != nil {
			return err
		}

		v.update(float32(dt))

		if err := v.render(float32(dt)); err != nil {
			return fmt.Errorf("render error: %w", err)
		}

		v.window.SwapBuffers()

		frameCount++
		if time.Since(fpsTimer) >= time.Second {
			v.window.SetStatus(fmt.Sprintf("%d fps", frameCount))
			v.log.Debug("fps",
				zap.Int("count", frameCount),
				zap.Float64("dt_ms", dt*1000),
				zap.Int("gpu_resources", v.dev.Live()),
			)
			frameCount = 0
			fpsTimer = time.Now()
		}
	}
	return nil
}

func (v *Viewer) handleEvents() error {
	for _, e := range v.input.Events() {
		switch e.Type {
		case input.EventWindowResize:
			if err := v.resize(); err != nil {
				return fmt.Errorf("resize error: %w", err)
			}
		case input.EventKeyDown:
			switch e.Key {
			case sdl.SCANCODE_ESCAPE:
				v.running = false
			case sdl.SCANCODE_B:
				v.scene.SetShowBounds(!v.scene.ShowBounds())
			case sdl.SCANCODE_F12:
				v.wantScreenshot = true
			}
		case input.EventMouseMove:
			if v.input.IsButtonHeld(sdl.BUTTON_LEFT) {
				v.camera.Drag(float32(e.DeltaX), float32(e.DeltaY))
			}
		case input.EventMouseWheel:
			v.camera.Zoom(float32(e.DeltaY))
		}
	}
	return nil
}

// resize follows the drawable size, which differs from the event size on
// high DPI displays.
func (v *Viewer) resize() error {
	w, h := v.window.DrawableSize()
	if w <= 0 || h <= 0 || (w == v.width && h == v.height) {
		return nil
	}
	v.width, v.height = w, h
	v.ctx.ResizeBackBuffer(w, h)

	err := v.scene.Resize(w, h)
	err = multierr.Append(err, v.post.OnResize(w, h))
	v.log.Info("resized", zap.Int("width", w), zap.Int("height", h))
	return err
}

func (v *Viewer) update(dt float32) {
	v.elapsed += dt

	var forward, right float32
	if v.input.IsKeyHeld(sdl.SCANCODE_W) {
		forward++
	}
	if v.input.IsKeyHeld(sdl.SCANCODE_S) {
		forward--
	}
	if v.input.IsKeyHeld(sdl.SCANCODE_D) {
		right++
	}
	if v.input.IsKeyHeld(sdl.SCANCODE_A) {
		right--
	}
	if forward != 0 || right != 0 {
		v.camera.Pan(forward*dt*100, right*dt*100)
	}

	for i, w := range v.walkers {
		v.world.MoveVob(w, scene.WalkerPosition(v.layout, i, v.elapsed))
	}
	if v.orbiter != nil {
		v.orbiter.SetPosition(orbitPosition(v.layout, v.elapsed))
		v.orbiter.SetColor(orbitColor(v.elapsed))
	}
}

func (v *Viewer) render(dt float32) error {
	// Failures are logged per light; a stale cubemap still draws
	_ = v.lights.RenderShadows(false)

	hdr := v.cfg.HDR
	v.scene.SetHDRSettings(postfx.Settings{
		LumWhite:       hdr.LumWhite,
		MiddleGray:     hdr.MiddleGray,
		BloomThreshold: hdr.BloomThreshold,
		BloomStrength:  hdr.BloomStrength,
		DeltaTime:      dt,
	})
	v.scene.RenderFrame(v.camera, v.lights)

	back := v.ctx.BackBuffer()
	v.ctx.SetRenderTargets(back, nil)
	v.ctx.SetViewport(gpu.Viewport{Width: v.width, Height: v.height})

	var err error
	if v.hdr != nil {
		err = v.post.Render(back)
	} else {
		v.post.CopyTextureToRTV(v.scene.HDRBackBuffer(), back, v.width, v.height, nil)
	}
	if v.wantScreenshot {
		v.wantScreenshot = false
		v.screenshot()
	}

	v.ctx.Collect()
	return err
}

func (v *Viewer) screenshot() {
	pixels, w, h := v.ctx.ReadBackBuffer()
	name, err := v.screenshots.CaptureFromPixels(pixels, w, h)
	if err != nil {
		v.log.Warn("screenshot failed", zap.Error(err))
		return
	}
	v.log.Info("screenshot saved", zap.String("file", name))
}

// Close tears down every subsystem in reverse creation order.
func (v *Viewer) Close() {
	v.log.Info("closing viewer")

	var err error
	if v.post != nil {
		err = multierr.Append(err, v.post.Close())
	}
	if v.lights != nil {
		err = multierr.Append(err, v.lights.Close())
	}
	if v.pool != nil {
		v.pool.Close()
	}
	if v.scene != nil {
		err = multierr.Append(err, v.scene.Close())
	}
	if v.shaders != nil {
		err = multierr.Append(err, v.shaders.Close())
	}
	if v.ctx != nil {
		v.ctx.Collect()
		v.ctx.Close()
	}
	if err != nil {
		v.log.Warn("errors during shutdown", zap.Error(err))
	}
	if v.window != nil {
		v.window.Close()
	}
}
