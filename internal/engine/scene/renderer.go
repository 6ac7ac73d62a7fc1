// Package scene draws the procedural world: the lit HDR frame that feeds
// the post effects, and the shadow casters for point light cubemaps.
package scene

import (
	"errors"
	"fmt"
	"slices"

	"github.com/go-gl/gl/v4.1-core/gl"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-fx/internal/engine/camera"
	"github.com/Faultbox/midgard-fx/internal/engine/gpu"
	"github.com/Faultbox/midgard-fx/internal/engine/gpu/glgpu"
	"github.com/Faultbox/midgard-fx/internal/engine/lighting"
	"github.com/Faultbox/midgard-fx/internal/engine/postfx"
	"github.com/Faultbox/midgard-fx/internal/engine/scene/shaders"
	"github.com/Faultbox/midgard-fx/internal/engine/shadow"
	"github.com/Faultbox/midgard-fx/internal/engine/world"
	"github.com/Faultbox/midgard-fx/pkg/math"
)

var (
	errNoDepth       = errors.New("shadow cube request without a depth view")
	errNoReplacement = errors.New("per-face shadow render without a camera replacement")
)

// Surface colors
var (
	floorAlbedo  = [3]float32{0.55, 0.55, 0.5}
	crateAlbedo  = [3]float32{0.6, 0.4, 0.2}
	walkerAlbedo = [3]float32{0.3, 0.45, 0.8}
)

// Lighting holds the frame's global light.
type Lighting struct {
	Ambient  [3]float32
	SunDir   math.Vec3 // towards the sun
	SunColor [3]float32
}

// DefaultLighting returns a dim evening sun.
func DefaultLighting() Lighting {
	return Lighting{
		Ambient:  [3]float32{0.05, 0.05, 0.07},
		SunDir:   lighting.SunDirection(45, 25),
		SunColor: [3]float32{0.4, 0.35, 0.3},
	}
}

type mainProgram struct {
	id uint32

	viewProj, model, mode, albedo    int32
	ambient, sunDir, sunColor        int32
	pointCount, pointPos, pointColor int32
	pointRange, pointIntensity       int32
	lightPos, lightColor, lightRange int32
	lightIntensity, shadowFar        int32
}

type shadowProgram struct {
	id uint32

	model, viewProj, lightPos int32
}

// Renderer draws the world on the render thread.
type Renderer struct {
	dev   *glgpu.Device
	ctx   *glgpu.Context
	world *world.Sections

	main     mainProgram
	cube     shadowProgram
	face     shadowProgram
	tiles    map[world.TileKey]*mesh
	box      *mesh
	pointBuf *lighting.PointLightBuffer
	lines    lineBatch

	width, height int
	hdr           gpu.RenderTarget
	depth         *glgpu.DepthBuffer

	replacement  *shadow.CameraReplacement
	settings     postfx.Settings
	lighting     Lighting
	drawDistance float32
	showBounds   bool

	log *zap.Logger
}

// NewRenderer compiles the scene programs and creates the HDR target.
func NewRenderer(ctx *glgpu.Context, w *world.Sections, width, height int) (*Renderer, error) {
	r := &Renderer{
		dev:          ctx.Device(),
		ctx:          ctx,
		world:        w,
		tiles:        make(map[world.TileKey]*mesh),
		pointBuf:     lighting.NewPointLightBuffer(),
		lighting:     DefaultLighting(),
		drawDistance: 1000,
		log:          zap.NewNop(),
	}

	if err := r.createPrograms(); err != nil {
		r.Close()
		return nil, err
	}
	r.box = newMesh(unitBox())

	if err := r.Resize(width, height); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

// SetLogger sets the renderer's logger.
func (r *Renderer) SetLogger(log *zap.Logger) {
	r.log = log
}

func (r *Renderer) createPrograms() error {
	id, err := glgpu.CompileProgram(glgpu.ProgramSource{
		Vertex:   shaders.SceneVertexShader,
		Fragment: shaders.SceneFragmentShader,
	})
	if err != nil {
		return fmt.Errorf("scene shader: %w", err)
	}
	u := func(name string) int32 { return glgpu.Uniform(id, name) }
	r.main = mainProgram{
		id:             id,
		viewProj:       u("uViewProj"),
		model:          u("uModel"),
		mode:           u("uMode"),
		albedo:         u("uAlbedo"),
		ambient:        u("uAmbient"),
		sunDir:         u("uSunDir"),
		sunColor:       u("uSunColor"),
		pointCount:     u("uPointCount"),
		pointPos:       u("uPointPositions"),
		pointColor:     u("uPointColors"),
		pointRange:     u("uPointRanges"),
		pointIntensity: u("uPointIntensities"),
		lightPos:       u("uLightPos"),
		lightColor:     u("uLightColor"),
		lightRange:     u("uLightRange"),
		lightIntensity: u("uLightIntensity"),
		shadowFar:      u("uShadowFar"),
	}

	if r.cube, err = compileShadowProgram(glgpu.ProgramSource{
		Vertex:   shaders.ShadowCubeVertexShader,
		Geometry: shaders.ShadowCubeGeometryShader,
		Fragment: shaders.ShadowFragmentShader,
	}); err != nil {
		return fmt.Errorf("shadow cube shader: %w", err)
	}
	if r.face, err = compileShadowProgram(glgpu.ProgramSource{
		Vertex:   shaders.ShadowFaceVertexShader,
		Fragment: shaders.ShadowFragmentShader,
	}); err != nil {
		return fmt.Errorf("shadow face shader: %w", err)
	}

	if id, err = glgpu.CompileProgram(glgpu.ProgramSource{
		Vertex:   shaders.DebugVertexShader,
		Fragment: shaders.DebugFragmentShader,
	}); err != nil {
		return fmt.Errorf("debug shader: %w", err)
	}
	r.lines.init(id, glgpu.Uniform(id, "uViewProj"), glgpu.Uniform(id, "uColor"))
	return nil
}

func compileShadowProgram(src glgpu.ProgramSource) (shadowProgram, error) {
	id, err := glgpu.CompileProgram(src)
	if err != nil {
		return shadowProgram{}, err
	}
	return shadowProgram{
		id:       id,
		model:    glgpu.Uniform(id, "uModel"),
		viewProj: glgpu.Uniform(id, "uViewProj"),
		lightPos: glgpu.Uniform(id, "uLightPos"),
	}, nil
}

// Resize recreates the HDR target and depth buffer.
func (r *Renderer) Resize(width, height int) error {
	if err := r.releaseTargets(); err != nil {
		r.log.Warn("releasing scene targets", zap.Error(err))
	}

	hdr, err := r.dev.CreateRenderTarget(gpu.TextureDesc{
		Width:  width,
		Height: height,
		Format: gpu.FormatRGBA16Float,
		Usage:  gpu.UsageRenderTarget | gpu.UsageShaderResource,
	})
	if err != nil {
		return fmt.Errorf("creating HDR target: %w", err)
	}
	depth, err := r.dev.CreateDepthBuffer(width, height)
	if err != nil {
		_ = hdr.Release()
		return fmt.Errorf("creating scene depth: %w", err)
	}

	r.hdr, r.depth = hdr, depth
	r.width, r.height = width, height
	return nil
}

func (r *Renderer) releaseTargets() error {
	var errs error
	if r.hdr != nil {
		errs = multierr.Append(errs, r.hdr.Release())
		r.hdr = nil
	}
	if r.depth != nil {
		errs = multierr.Append(errs, r.depth.Release())
		r.depth = nil
	}
	return errs
}

// SetLighting replaces the global light.
func (r *Renderer) SetLighting(l Lighting) {
	r.lighting = l
}

// SetShowBounds toggles the wireframe overlay of vob bounds and lights.
func (r *Renderer) SetShowBounds(show bool) {
	r.showBounds = show
}

// ShowBounds reports whether the bounds overlay is on.
func (r *Renderer) ShowBounds() bool { return r.showBounds }

// SetHDRSettings sets what HDRSettings reports for the frame.
func (r *Renderer) SetHDRSettings(s postfx.Settings) {
	r.settings = s
}

// HDRBackBuffer implements postfx.FrameSource.
func (r *Renderer) HDRBackBuffer() gpu.RenderTarget { return r.hdr }

// HDRSettings implements postfx.FrameSource.
func (r *Renderer) HDRSettings() postfx.Settings { return r.settings }

// CameraReplacement implements shadow.Scene.
func (r *Renderer) CameraReplacement() *shadow.CameraReplacement { return r.replacement }

// SetCameraReplacement implements shadow.Scene.
func (r *Renderer) SetCameraReplacement(cr *shadow.CameraReplacement) { r.replacement = cr }

// RenderShadowCube implements shadow.Scene. The caller holds the world lock.
func (r *Renderer) RenderShadowCube(req shadow.CubeRequest) error {
	if req.Depth == nil || req.Target == nil {
		return errNoDepth
	}

	prog := r.cube
	var viewProj math.Mat4
	if req.Face != shadow.AllFaces {
		if r.replacement == nil {
			return errNoReplacement
		}
		prog = r.face
		viewProj = r.replacement.Projection.Mul(r.replacement.View)
	}

	ctx := r.ctx
	prevRT, prevDS := ctx.RenderTargets()
	prevVP := ctx.Viewport()
	defer func() {
		ctx.SetRenderTargets(prevRT, prevDS)
		ctx.SetViewport(prevVP)
	}()

	size, _ := req.Target.Size()
	ctx.SetRenderTargets(nil, req.Depth)
	ctx.SetViewport(gpu.Viewport{Width: size, Height: size})
	ctx.ClearDepthStencil(req.Depth, 1)

	gl.Enable(gl.DEPTH_TEST)
	gl.DepthFunc(gl.LESS)
	gl.DepthMask(true)
	// Front-face culling reduces shadow acne
	gl.Enable(gl.CULL_FACE)
	gl.CullFace(gl.FRONT)
	defer gl.CullFace(gl.BACK)

	gl.UseProgram(prog.id)
	gl.Uniform3f(prog.lightPos, req.Position.X, req.Position.Y, req.Position.Z)
	if req.Face != shadow.AllFaces {
		gl.UniformMatrix4fv(prog.viewProj, 1, false, viewProj.Ptr())
	}

	tiles := req.WorldCache
	if tiles == nil {
		tiles = r.world.CollectInRange(req.Position, req.Radius)
	}
	identity := math.Identity()
	gl.UniformMatrix4fv(prog.model, 1, false, identity.Ptr())
	for _, info := range tiles {
		r.tileMesh(info).draw()
	}

	for _, v := range collectCasters(r.world, req) {
		model := boxModel(v.Bounds)
		gl.UniformMatrix4fv(prog.model, 1, false, model.Ptr())
		r.box.draw()
	}

	gl.BindVertexArray(0)
	return nil
}

// collectCasters returns the vobs to draw for req, filling its empty
// caches from the world. Skinned vobs are neither drawn nor cached when
// excluded. The caller holds the world lock.
func collectCasters(w *world.Sections, req shadow.CubeRequest) []*world.Vob {
	needStatic := req.VobCache == nil || len(*req.VobCache) == 0
	needSkinned := !req.ExcludeSkinned && (req.SkinnedCache == nil || len(*req.SkinnedCache) == 0)

	var static, skinned []*world.Vob
	if needStatic || needSkinned {
		static, skinned = w.VobsInRange(req.Position, req.Radius)
	}

	if req.VobCache != nil {
		if len(*req.VobCache) == 0 {
			*req.VobCache = append((*req.VobCache)[:0], static...)
		}
		static = *req.VobCache
	}

	switch {
	case req.ExcludeSkinned:
		skinned = nil
	case req.SkinnedCache != nil:
		if len(*req.SkinnedCache) == 0 {
			*req.SkinnedCache = append((*req.SkinnedCache)[:0], skinned...)
		}
		skinned = *req.SkinnedCache
	}

	return slices.Concat(static, skinned)
}

func (r *Renderer) tileMesh(info *world.MeshInfo) *mesh {
	m, ok := r.tiles[info.Key]
	if !ok {
		m = newMesh(info.Vertices, info.Indices)
		r.tiles[info.Key] = m
	}
	return m
}

// RenderFrame draws the world into the HDR target: one base pass with
// ambient, sun and every point light without a ready shadow, then one
// additive pass per shadowed light.
func (r *Renderer) RenderFrame(cam *camera.Orbit, lights *lighting.Manager) {
	ctx := r.ctx
	ctx.SetRenderTargets(r.hdr, r.depth)
	ctx.SetViewport(gpu.Viewport{Width: r.width, Height: r.height})
	ctx.ClearRenderTarget(r.hdr, [4]float32{0.02, 0.02, 0.03, 1})
	ctx.ClearDepthStencil(r.depth, 1)

	gl.Enable(gl.DEPTH_TEST)
	gl.DepthFunc(gl.LEQUAL)
	gl.DepthMask(true)
	gl.Enable(gl.CULL_FACE)
	gl.CullFace(gl.BACK)

	aspect := float32(r.width) / float32(r.height)
	viewProj := cam.ViewProjection(aspect)

	p := r.main
	gl.UseProgram(p.id)
	gl.UniformMatrix4fv(p.viewProj, 1, false, viewProj.Ptr())

	r.pointBuf.Clear()
	for _, l := range lights.Lights() {
		if s := lights.Shadow(l); s == nil || !s.Ready() {
			r.pointBuf.AddLight(l)
		}
	}

	lt := r.lighting
	gl.Uniform1i(p.mode, 0)
	gl.Uniform3f(p.ambient, lt.Ambient[0], lt.Ambient[1], lt.Ambient[2])
	gl.Uniform3f(p.sunDir, lt.SunDir.X, lt.SunDir.Y, lt.SunDir.Z)
	gl.Uniform3f(p.sunColor, lt.SunColor[0], lt.SunColor[1], lt.SunColor[2])
	gl.Uniform1i(p.pointCount, int32(r.pointBuf.Count))
	gl.Uniform3fv(p.pointPos, lighting.MaxPointLights, &r.pointBuf.GetPositions()[0])
	gl.Uniform3fv(p.pointColor, lighting.MaxPointLights, &r.pointBuf.GetColors()[0])
	gl.Uniform1fv(p.pointRange, lighting.MaxPointLights, &r.pointBuf.GetRanges()[0])
	gl.Uniform1fv(p.pointIntensity, lighting.MaxPointLights, &r.pointBuf.GetIntensities()[0])

	r.world.Enter()
	defer r.world.Leave()

	center := cam.Target
	tiles := r.world.CollectInRange(center, r.drawDistance)
	static, skinned := r.world.VobsInRange(center, r.drawDistance)

	drawAll := func() {
		identity := math.Identity()
		gl.UniformMatrix4fv(p.model, 1, false, identity.Ptr())
		gl.Uniform3f(p.albedo, floorAlbedo[0], floorAlbedo[1], floorAlbedo[2])
		for _, info := range tiles {
			r.tileMesh(info).draw()
		}
		r.drawVobs(static, crateAlbedo)
		r.drawVobs(skinned, walkerAlbedo)
	}
	drawAll()

	// Shadowed lights add on top of the base pass
	ctx.SetBlendEnabled(true)
	gl.DepthMask(false)
	gl.Uniform1i(p.mode, 1)
	lights.BindShadowMaps(ctx, func(l *lighting.PointLight) {
		s := lights.Shadow(l)
		if s == nil || !s.Ready() {
			return
		}
		pos, color := l.Position(), l.Color()
		gl.Uniform3f(p.lightPos, pos.X, pos.Y, pos.Z)
		gl.Uniform3f(p.lightColor, color[0], color[1], color[2])
		gl.Uniform1f(p.lightRange, l.Range())
		gl.Uniform1f(p.lightIntensity, l.Intensity())
		gl.Uniform1f(p.shadowFar, shadow.ComputeCubeMatrices(pos, l.Range()).Far)
		drawAll()
	})
	gl.DepthMask(true)
	ctx.SetBlendEnabled(false)

	if r.showBounds {
		r.lines.drawBounds(viewProj, static, skinned, lights.Lights())
	}
	gl.BindVertexArray(0)
}

func (r *Renderer) drawVobs(vobs []*world.Vob, albedo [3]float32) {
	gl.Uniform3f(r.main.albedo, albedo[0], albedo[1], albedo[2])
	for _, v := range vobs {
		model := boxModel(v.Bounds)
		gl.UniformMatrix4fv(r.main.model, 1, false, model.Ptr())
		r.box.draw()
	}
}

// Close deletes GL objects and releases the HDR target.
func (r *Renderer) Close() error {
	for key, m := range r.tiles {
		m.destroy()
		delete(r.tiles, key)
	}
	if r.box != nil {
		r.box.destroy()
		r.box = nil
	}
	r.lines.destroy()
	for _, id := range []*uint32{&r.main.id, &r.cube.id, &r.face.id} {
		if *id != 0 {
			gl.DeleteProgram(*id)
			*id = 0
		}
	}
	return r.releaseTargets()
}
