// Package postfx provides full-screen post effects on the HDR backbuffer:
// luminance adaptation, bloom and the HDR tonemap composite.
package postfx

import (
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-fx/internal/engine/gpu"
	"github.com/Faultbox/midgard-fx/internal/logger"
)

// Shader names looked up in the ShaderSet.
const (
	ShaderVSPFX        = "VS_PFX"
	ShaderPSSimple     = "PS_PFX_Simple"
	ShaderPSTonemap    = "PS_PFX_Tonemap"
	ShaderPSGaussBlur  = "PS_PFX_GaussBlur"
	ShaderPSLumConvert = "PS_PFX_LumConvert"
	ShaderPSLumAdapt   = "PS_PFX_LumAdapt"
	ShaderPSHDR        = "PS_PFX_HDR"
)

// Settings are the per-frame HDR values read from the renderer configuration.
type Settings struct {
	LumWhite       float32
	MiddleGray     float32
	BloomThreshold float32
	BloomStrength  float32
	DeltaTime      float32 // seconds since the previous frame
}

// FrameSource supplies the HDR scene and the current settings.
type FrameSource interface {
	HDRBackBuffer() gpu.RenderTarget
	HDRSettings() Settings
}

// Effect is one stage of the post effect chain.
type Effect interface {
	Name() string
	// Render draws the effect. fx is a full resolution scratch buffer the
	// effect may use; the result goes to the currently bound render target.
	Render(fx gpu.RenderTarget) error
	Close() error
}

// Renderer owns the shared temp buffers and the full-screen copy used by
// every effect.
type Renderer struct {
	dev     gpu.Device
	ctx     gpu.Context
	shaders gpu.ShaderSet

	vsPFX    gpu.Shader
	psSimple gpu.Shader

	width  int
	height int

	temp      gpu.RenderTarget // full resolution
	tempDS4_1 gpu.RenderTarget // quarter resolution
	tempDS4_2 gpu.RenderTarget // quarter resolution

	effects []Effect
	log     *zap.Logger
}

// NewRenderer creates the temp buffers for a width x height backbuffer.
func NewRenderer(dev gpu.Device, ctx gpu.Context, shaders gpu.ShaderSet, width, height int) (*Renderer, error) {
	r := &Renderer{
		dev:     dev,
		ctx:     ctx,
		shaders: shaders,
		log:     logger.Named(logger.PostFX),
	}

	var err error
	if r.vsPFX, err = shaders.VertexShader(ShaderVSPFX); err != nil {
		return nil, err
	}
	if r.psSimple, err = shaders.PixelShader(ShaderPSSimple); err != nil {
		return nil, err
	}

	if err := r.OnResize(width, height); err != nil {
		return nil, err
	}
	return r, nil
}

// Device returns the device the renderer creates resources on.
func (r *Renderer) Device() gpu.Device { return r.dev }

// Context returns the render thread context.
func (r *Renderer) Context() gpu.Context { return r.ctx }

// Shaders returns the shader set.
func (r *Renderer) Shaders() gpu.ShaderSet { return r.shaders }

// Resolution returns the backbuffer size.
func (r *Renderer) Resolution() (width, height int) { return r.width, r.height }

// Temp returns the full resolution temp buffer.
func (r *Renderer) Temp() gpu.RenderTarget { return r.temp }

// TempDS4_1 returns the first quarter resolution temp buffer.
func (r *Renderer) TempDS4_1() gpu.RenderTarget { return r.tempDS4_1 }

// TempDS4_2 returns the second quarter resolution temp buffer.
func (r *Renderer) TempDS4_2() gpu.RenderTarget { return r.tempDS4_2 }

// OnResize recreates the temp buffers for a new backbuffer size.
func (r *Renderer) OnResize(width, height int) error {
	if width < 1 || height < 1 {
		return fmt.Errorf("invalid backbuffer size %dx%d", width, height)
	}

	if err := r.releaseTemps(); err != nil {
		r.log.Warn("releasing temp buffers", zap.Error(err))
	}

	qw, qh := max(width/4, 1), max(height/4, 1)

	var err error
	if r.temp, err = r.createTarget(width, height); err != nil {
		return fmt.Errorf("creating temp buffer: %w", err)
	}
	if r.tempDS4_1, err = r.createTarget(qw, qh); err != nil {
		return fmt.Errorf("creating quarter temp buffer 1: %w", err)
	}
	if r.tempDS4_2, err = r.createTarget(qw, qh); err != nil {
		return fmt.Errorf("creating quarter temp buffer 2: %w", err)
	}

	r.width, r.height = width, height
	r.log.Debug("temp buffers created",
		zap.Int("width", width),
		zap.Int("height", height),
	)
	return nil
}

func (r *Renderer) createTarget(width, height int) (gpu.RenderTarget, error) {
	return r.dev.CreateRenderTarget(gpu.TextureDesc{
		Width:  width,
		Height: height,
		Format: gpu.FormatRGBA16Float,
		Usage:  gpu.UsageShaderResource | gpu.UsageRenderTarget,
	})
}

// CopyTextureToRTV draws src into dst with a full-screen triangle. src is
// bound at pixel slot 0 (nil leaves the slot alone, for shaders that read
// other slots). width and height set the viewport; zero means dst's size.
// customPS replaces the plain copy shader; the caller applies it and uploads
// its constants beforehand.
func (r *Renderer) CopyTextureToRTV(src gpu.ShaderResource, dst gpu.RenderTarget, width, height int, customPS gpu.Shader) {
	ctx := r.ctx

	if width == 0 || height == 0 {
		width, height = dst.Size()
	}

	r.vsPFX.Apply(ctx)
	if customPS == nil {
		r.psSimple.Apply(ctx)
	}

	if src != nil {
		ctx.BindShaderResource(gpu.StagePixel, 0, src)
	}

	prevVP := ctx.Viewport()
	ctx.SetRenderTargets(dst, nil)
	ctx.SetViewport(gpu.Viewport{Width: width, Height: height})

	ctx.DrawFullscreen()

	ctx.SetViewport(prevVP)
	if src != nil {
		ctx.BindShaderResource(gpu.StagePixel, 0, nil)
	}
}

// AddEffect appends an effect to the chain.
func (r *Renderer) AddEffect(e Effect) {
	r.effects = append(r.effects, e)
}

// Render runs the effect chain into target.
func (r *Renderer) Render(target gpu.RenderTarget) error {
	r.ctx.SetRenderTargets(target, nil)
	for _, e := range r.effects {
		if err := e.Render(r.temp); err != nil {
			return fmt.Errorf("effect %s: %w", e.Name(), err)
		}
	}
	return nil
}

// Close closes every effect and releases the temp buffers.
func (r *Renderer) Close() error {
	var err error
	for _, e := range r.effects {
		err = multierr.Append(err, e.Close())
	}
	r.effects = nil
	return multierr.Append(err, r.releaseTemps())
}

func (r *Renderer) releaseTemps() error {
	var err error
	for _, t := range []*gpu.RenderTarget{&r.temp, &r.tempDS4_1, &r.tempDS4_2} {
		if *t != nil {
			err = multierr.Append(err, (*t).Release())
			*t = nil
		}
	}
	return err
}

// constantBuffer returns the first constant buffer of a shader.
func constantBuffer(s gpu.Shader) (*gpu.ConstantBuffer, error) {
	cbs := s.ConstantBuffers()
	if len(cbs) == 0 || cbs[0] == nil {
		return nil, fmt.Errorf("shader %s has no constant buffer", s.Name())
	}
	return cbs[0], nil
}
