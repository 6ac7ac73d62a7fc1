package postfx

import (
	"github.com/Faultbox/midgard-fx/internal/engine/gpu"
)

// hdrConstants is shared by the tonemap and composite shaders.
type hdrConstants struct {
	LumWhite      float32
	MiddleGray    float32
	Threshold     float32
	BloomStrength float32
}

// blurConstants is laid out for std140: the vec2 comes first.
type blurConstants struct {
	PixelSize [2]float32
	BlurSize  float32
	Threshold float32
}

// BloomProcessor extracts the bright parts of the scene at quarter
// resolution and blurs them. The result ends up in the renderer's
// TempDS4_1 buffer.
type BloomProcessor struct {
	r   *Renderer
	src FrameSource

	tonemap   gpu.Shader
	tonemapCB *gpu.ConstantBuffer
	blur      gpu.Shader
	blurCB    *gpu.ConstantBuffer
}

// NewBloomProcessor looks up the bloom shaders.
func NewBloomProcessor(r *Renderer, src FrameSource) (*BloomProcessor, error) {
	b := &BloomProcessor{r: r, src: src}

	var err error
	if b.tonemap, err = r.shaders.PixelShader(ShaderPSTonemap); err != nil {
		return nil, err
	}
	if b.tonemapCB, err = constantBuffer(b.tonemap); err != nil {
		return nil, err
	}
	if b.blur, err = r.shaders.PixelShader(ShaderPSGaussBlur); err != nil {
		return nil, err
	}
	if b.blurCB, err = constantBuffer(b.blur); err != nil {
		return nil, err
	}
	return b, nil
}

// Compute runs the tonemap threshold pass and a separable gaussian blur.
// lum is the adapted luminance from the LuminanceEngine.
func (b *BloomProcessor) Compute(lum gpu.RenderTarget) gpu.RenderTarget {
	ctx := b.r.ctx
	settings := b.src.HDRSettings()
	a, c := b.r.tempDS4_1, b.r.tempDS4_2
	qw, qh := a.Size()

	// Tonemap and threshold into A
	b.tonemap.Apply(ctx)
	b.tonemapCB.Update(ctx, hdrConstants{
		LumWhite:      settings.LumWhite,
		MiddleGray:    settings.MiddleGray,
		Threshold:     settings.BloomThreshold,
		BloomStrength: settings.BloomStrength,
	})
	b.tonemapCB.Bind(ctx, gpu.StagePixel, 0)
	ctx.BindShaderResource(gpu.StagePixel, 1, lum)
	b.r.CopyTextureToRTV(b.src.HDRBackBuffer(), a, qw, qh, b.tonemap)

	// Horizontal blur A -> B
	b.blur.Apply(ctx)
	b.blurCB.Update(ctx, blurConstants{
		BlurSize:  1,
		PixelSize: [2]float32{1 / float32(qw), 0},
		Threshold: settings.BloomThreshold,
	})
	b.blurCB.Bind(ctx, gpu.StagePixel, 0)
	b.r.CopyTextureToRTV(a, c, qw, qh, b.blur)

	// Vertical blur B -> A
	b.blurCB.Update(ctx, blurConstants{
		BlurSize:  1,
		PixelSize: [2]float32{0, 1 / float32(qh)},
		Threshold: 0,
	})
	b.blurCB.Bind(ctx, gpu.StagePixel, 0)
	b.r.CopyTextureToRTV(c, a, qw, qh, b.blur)

	return a
}
