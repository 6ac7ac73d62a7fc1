package postfx

import (
	"fmt"

	"go.uber.org/multierr"

	"github.com/Faultbox/midgard-fx/internal/engine/gpu"
)

// LumBufferSize is the edge length of the square luminance buffers.
const LumBufferSize = 512

// rotation maps the active index to buffer indices for
// (output, previous, scratch). The output of step k is the previous of k+1.
var rotation = [3][3]int{
	{0, 1, 2},
	{2, 0, 1},
	{1, 2, 0},
}

type adaptConstants struct {
	DeltaTime float32
	_         [3]float32
}

// LuminanceEngine keeps a time-smoothed scene luminance in three rotating
// mip-mapped buffers.
type LuminanceEngine struct {
	r   *Renderer
	src FrameSource

	buffers [3]gpu.RenderTarget
	active  int

	convert gpu.Shader
	adapt   gpu.Shader
	adaptCB *gpu.ConstantBuffer
}

// NewLuminanceEngine creates and clears the three luminance buffers.
func NewLuminanceEngine(r *Renderer, src FrameSource) (*LuminanceEngine, error) {
	l := &LuminanceEngine{r: r, src: src}

	var err error
	if l.convert, err = r.shaders.PixelShader(ShaderPSLumConvert); err != nil {
		return nil, err
	}
	if l.adapt, err = r.shaders.PixelShader(ShaderPSLumAdapt); err != nil {
		return nil, err
	}
	if l.adaptCB, err = constantBuffer(l.adapt); err != nil {
		return nil, err
	}

	desc := gpu.TextureDesc{
		Width:     LumBufferSize,
		Height:    LumBufferSize,
		Format:    gpu.FormatR16Float,
		MipLevels: gpu.FullMipChain(LumBufferSize),
		Usage:     gpu.UsageShaderResource | gpu.UsageRenderTarget,
	}
	for i := range l.buffers {
		if l.buffers[i], err = r.dev.CreateRenderTarget(desc); err != nil {
			l.Close()
			return nil, fmt.Errorf("creating luminance buffer %d: %w", i+1, err)
		}
		r.ctx.ClearRenderTarget(l.buffers[i], [4]float32{})
	}

	return l, nil
}

// Buffers returns the three luminance buffers in creation order.
func (l *LuminanceEngine) Buffers() [3]gpu.RenderTarget {
	return l.buffers
}

// Active returns the current rotation index.
func (l *LuminanceEngine) Active() int {
	return l.active
}

// Compute converts the HDR scene to luminance, blends it with the previous
// frame's adapted value and returns the buffer holding the result. It
// returns nil, without advancing the rotation, when the rotation index is
// out of range.
func (l *LuminanceEngine) Compute() gpu.RenderTarget {
	if l.active < 0 || l.active >= len(rotation) {
		return nil
	}
	roles := rotation[l.active]
	output, previous, scratch := l.buffers[roles[0]], l.buffers[roles[1]], l.buffers[roles[2]]

	ctx := l.r.ctx

	// Scene luminance into scratch, averaged down the mip chain
	l.convert.Apply(ctx)
	l.r.CopyTextureToRTV(l.src.HDRBackBuffer(), scratch, LumBufferSize, LumBufferSize, l.convert)
	ctx.GenerateMips(scratch)

	// Adapt previous toward current
	l.adapt.Apply(ctx)
	l.adaptCB.Update(ctx, adaptConstants{DeltaTime: l.src.HDRSettings().DeltaTime})
	l.adaptCB.Bind(ctx, gpu.StagePixel, 0)

	ctx.BindShaderResource(gpu.StagePixel, 1, previous)
	ctx.BindShaderResource(gpu.StagePixel, 2, scratch)
	l.r.CopyTextureToRTV(nil, output, LumBufferSize, LumBufferSize, l.adapt)
	ctx.BindShaderResource(gpu.StagePixel, 1, nil)
	ctx.BindShaderResource(gpu.StagePixel, 2, nil)

	ctx.GenerateMips(output)

	l.active = (l.active + 1) % len(rotation)
	return output
}

// Close releases the luminance buffers.
func (l *LuminanceEngine) Close() error {
	var err error
	for i, b := range l.buffers {
		if b != nil {
			err = multierr.Append(err, b.Release())
			l.buffers[i] = nil
		}
	}
	return err
}
