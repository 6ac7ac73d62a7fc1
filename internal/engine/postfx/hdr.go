package postfx

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-fx/internal/engine/gpu"
)

var errNoTarget = errors.New("no render target bound")

// HDREffect tonemaps the HDR backbuffer with an auto-exposure luminance and
// adds bloom.
type HDREffect struct {
	r   *Renderer
	src FrameSource

	lum   *LuminanceEngine
	bloom *BloomProcessor

	composite   gpu.Shader
	compositeCB *gpu.ConstantBuffer

	log *zap.Logger
}

// NewHDREffect creates the luminance buffers and looks up the shaders. Any
// failure is returned; the effect cannot run without its buffers.
func NewHDREffect(r *Renderer, src FrameSource) (*HDREffect, error) {
	h := &HDREffect{r: r, src: src, log: r.log.Named("hdr")}

	var err error
	if h.composite, err = r.shaders.PixelShader(ShaderPSHDR); err != nil {
		return nil, err
	}
	if h.compositeCB, err = constantBuffer(h.composite); err != nil {
		return nil, err
	}
	if h.bloom, err = NewBloomProcessor(r, src); err != nil {
		return nil, fmt.Errorf("creating bloom: %w", err)
	}
	if h.lum, err = NewLuminanceEngine(r, src); err != nil {
		return nil, fmt.Errorf("creating luminance buffers: %w", err)
	}

	h.log.Info("hdr effect created",
		zap.Int("lum_size", LumBufferSize),
		zap.Int("lum_mips", gpu.FullMipChain(LumBufferSize)),
	)
	return h, nil
}

// Name implements Effect.
func (h *HDREffect) Name() string { return "hdr" }

// Luminance returns the luminance engine.
func (h *HDREffect) Luminance() *LuminanceEngine { return h.lum }

// Render composites the tonemapped scene and bloom into the bound render
// target. Blend state and render targets are restored on return. A frame
// without luminance is skipped and leaves the target untouched.
func (h *HDREffect) Render(gpu.RenderTarget) error {
	ctx := h.r.ctx

	prevBlend := ctx.BlendEnabled()
	ctx.SetBlendEnabled(false)
	defer ctx.SetBlendEnabled(prevBlend)

	oldRT, oldDS := ctx.RenderTargets()
	if oldRT == nil {
		return errNoTarget
	}
	defer ctx.SetRenderTargets(oldRT, oldDS)

	lum := h.lum.Compute()
	if lum == nil {
		h.log.Debug("no luminance this frame, skipping composite")
		return nil
	}

	bloom := h.bloom.Compute(lum)

	width, height := h.r.Resolution()
	temp := h.r.temp
	h.r.CopyTextureToRTV(h.src.HDRBackBuffer(), temp, width, height, nil)

	ctx.BindShaderResource(gpu.StagePixel, 0, temp)
	ctx.BindShaderResource(gpu.StagePixel, 1, lum)
	ctx.BindShaderResource(gpu.StagePixel, 2, bloom)

	settings := h.src.HDRSettings()
	h.composite.Apply(ctx)
	h.compositeCB.Update(ctx, hdrConstants{
		LumWhite:      settings.LumWhite,
		MiddleGray:    settings.MiddleGray,
		Threshold:     settings.BloomThreshold,
		BloomStrength: settings.BloomStrength,
	})
	h.compositeCB.Bind(ctx, gpu.StagePixel, 0)

	h.r.CopyTextureToRTV(temp, oldRT, width, height, h.composite)

	ctx.BindShaderResource(gpu.StagePixel, 1, nil)
	ctx.BindShaderResource(gpu.StagePixel, 2, nil)
	return nil
}

// Close releases the luminance buffers.
func (h *HDREffect) Close() error {
	return h.lum.Close()
}
