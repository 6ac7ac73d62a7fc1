package postfx

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/midgard-fx/internal/engine/gpu"
	"github.com/Faultbox/midgard-fx/internal/engine/gpu/gputest"
)

const (
	testWidth  = 1280
	testHeight = 720
)

type fakeFrame struct {
	hdr      gpu.RenderTarget
	settings Settings
}

func (f *fakeFrame) HDRBackBuffer() gpu.RenderTarget { return f.hdr }
func (f *fakeFrame) HDRSettings() Settings { return f.settings }

type rig struct {
	dev     *gputest.Device
	ctx     *gputest.Context
	shaders *gputest.Shaders
	r       *Renderer
	frame   *fakeFrame
	target  gpu.RenderTarget
	depth   gpu.DepthStencil
}

func newRig(t *testing.T) *rig {
	t.Helper()

	dev := gputest.NewDevice()
	shaders := gputest.NewShaders(dev,
		[]string{ShaderVSPFX},
		[]string{ShaderPSSimple, ShaderPSTonemap, ShaderPSGaussBlur, ShaderPSLumConvert, ShaderPSLumAdapt, ShaderPSHDR},
	)

	hdr, err := dev.CreateRenderTarget(gpu.TextureDesc{Width: testWidth, Height: testHeight, Format: gpu.FormatRGBA16Float})
	require.NoError(t, err)
	target, err := dev.CreateRenderTarget(gpu.TextureDesc{Width: testWidth, Height: testHeight, Format: gpu.FormatRGBA8})
	require.NoError(t, err)
	depth := &gputest.DepthView{ID: 1000, Face: -1}

	ctx := gputest.NewContext(target, depth)
	r, err := NewRenderer(dev, ctx, shaders, testWidth, testHeight)
	require.NoError(t, err)

	return &rig{
		dev:     dev,
		ctx:     ctx,
		shaders: shaders,
		r:       r,
		frame: &fakeFrame{hdr: hdr, settings: Settings{
			LumWhite:       11.2,
			MiddleGray:     0.18,
			BloomThreshold: 0.9,
			BloomStrength:  1,
			DeltaTime:      1.0 / 60,
		}},
		target: target,
		depth:  depth,
	}
}

func drawsWith(ctx *gputest.Context, ps string) []gputest.Command {
	var out []gputest.Command
	for _, d := range ctx.Filter(gputest.OpDraw) {
		if d.PixelShader == ps {
			out = append(out, d)
		}
	}
	return out
}

func floatAt(data []byte, i int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
}

func TestRotationTableIsPermutation(t *testing.T) {
	for k, roles := range rotation {
		seen := map[int]bool{}
		for _, b := range roles {
			seen[b] = true
		}
		assert.Len(t, seen, 3, "roles at k=%d must use all three buffers", k)

		// Output at k is previous at k+1
		next := rotation[(k+1)%3]
		assert.Equal(t, roles[0], next[1], "output at k=%d must be previous at k+1", k)
	}
}

func TestLuminanceBuffers(t *testing.T) {
	rg := newRig(t)
	rg.ctx.Reset()

	lum, err := NewLuminanceEngine(rg.r, rg.frame)
	require.NoError(t, err)

	for _, b := range lum.Buffers() {
		desc := b.Desc()
		assert.Equal(t, LumBufferSize, desc.Width)
		assert.Equal(t, LumBufferSize, desc.Height)
		assert.Equal(t, gpu.FormatR16Float, desc.Format)
		assert.Equal(t, 10, desc.MipLevels)
	}
	assert.Len(t, rg.ctx.Filter(gputest.OpClear), 3, "all buffers cleared at construction")
	assert.Zero(t, lum.Active())
}

func TestLuminanceRotation(t *testing.T) {
	rg := newRig(t)
	lum, err := NewLuminanceEngine(rg.r, rg.frame)
	require.NoError(t, err)
	bufs := lum.Buffers()

	// B1, B3, B2, then back to B1
	want := []gpu.RenderTarget{bufs[0], bufs[2], bufs[1], bufs[0], bufs[2]}

	var prevOut gpu.RenderTarget
	for i, w := range want {
		rg.ctx.Reset()
		out := lum.Compute()
		require.NotNil(t, out, "call %d", i)
		assert.Same(t, w.(*gputest.Texture), out.(*gputest.Texture), "output of call %d", i)
		assert.Equal(t, (i+1)%3, lum.Active())

		adapt := drawsWith(rg.ctx, ShaderPSLumAdapt)
		require.Len(t, adapt, 1)
		assert.Equal(t, out, adapt[0].Target)
		if prevOut != nil {
			assert.Equal(t, prevOut, adapt[0].Inputs[1], "previous output feeds slot 1 on call %d", i)
		}
		assert.NotEqual(t, out, adapt[0].Inputs[2], "scratch differs from output")

		convert := drawsWith(rg.ctx, ShaderPSLumConvert)
		require.Len(t, convert, 1)
		assert.Equal(t, rg.frame.hdr, convert[0].Inputs[0])
		assert.Equal(t, adapt[0].Inputs[2], convert[0].Target)
		assert.Equal(t, LumBufferSize, convert[0].Viewport.Width)

		assert.Len(t, rg.ctx.Filter(gputest.OpGenerateMips), 2)
		assert.Nil(t, rg.ctx.BoundShaderResource(gpu.StagePixel, 1))
		assert.Nil(t, rg.ctx.BoundShaderResource(gpu.StagePixel, 2))

		prevOut = out
	}
}

func TestLuminanceAdaptConstants(t *testing.T) {
	rg := newRig(t)
	lum, err := NewLuminanceEngine(rg.r, rg.frame)
	require.NoError(t, err)

	rg.frame.settings.DeltaTime = 0.25
	require.NotNil(t, lum.Compute())

	writes := rg.ctx.Writes(lum.adaptCB.Buffer())
	require.Len(t, writes, 1)
	assert.Equal(t, float32(0.25), floatAt(writes[0], 0))
	assert.Equal(t, lum.adaptCB.Buffer(), rg.ctx.BoundConstantBuffer(gpu.StagePixel, 0))
}

func TestLuminanceOutOfRangeIndex(t *testing.T) {
	rg := newRig(t)
	lum, err := NewLuminanceEngine(rg.r, rg.frame)
	require.NoError(t, err)

	lum.active = 3
	rg.ctx.Reset()

	assert.Nil(t, lum.Compute())
	assert.Equal(t, 3, lum.Active(), "rotation must not advance")
	assert.Empty(t, rg.ctx.Commands)
}

func TestBloomPasses(t *testing.T) {
	rg := newRig(t)
	bloom, err := NewBloomProcessor(rg.r, rg.frame)
	require.NoError(t, err)
	lum, err := NewLuminanceEngine(rg.r, rg.frame)
	require.NoError(t, err)

	l := lum.Compute()
	rg.ctx.Reset()

	out := bloom.Compute(l)
	a, b := rg.r.TempDS4_1(), rg.r.TempDS4_2()
	assert.Equal(t, a, out)

	draws := rg.ctx.Filter(gputest.OpDraw)
	require.Len(t, draws, 3)

	// Tonemap: scene -> A with luminance at slot 1
	assert.Equal(t, ShaderPSTonemap, draws[0].PixelShader)
	assert.Equal(t, rg.frame.hdr, draws[0].Inputs[0])
	assert.Equal(t, l, draws[0].Inputs[1])
	assert.Equal(t, a, draws[0].Target)
	assert.Equal(t, gpu.Viewport{Width: testWidth / 4, Height: testHeight / 4}, draws[0].Viewport)

	// Blur H: A -> B, blur V: B -> A
	assert.Equal(t, ShaderPSGaussBlur, draws[1].PixelShader)
	assert.Equal(t, a, draws[1].Inputs[0])
	assert.Equal(t, b, draws[1].Target)
	assert.Equal(t, ShaderPSGaussBlur, draws[2].PixelShader)
	assert.Equal(t, b, draws[2].Inputs[0])
	assert.Equal(t, a, draws[2].Target)

	for _, d := range draws {
		assert.Equal(t, ShaderVSPFX, d.VertexPS)
	}

	tonemap := rg.ctx.Writes(bloom.tonemapCB.Buffer())
	require.Len(t, tonemap, 1)
	assert.Equal(t, float32(11.2), floatAt(tonemap[0], 0))
	assert.Equal(t, float32(0.18), floatAt(tonemap[0], 1))
	assert.Equal(t, float32(0.9), floatAt(tonemap[0], 2))

	// blurConstants: PixelSize.x, PixelSize.y, BlurSize, Threshold
	blur := rg.ctx.Writes(bloom.blurCB.Buffer())
	require.Len(t, blur, 2)
	assert.Equal(t, float32(1)/float32(testWidth/4), floatAt(blur[0], 0))
	assert.Zero(t, floatAt(blur[0], 1))
	assert.Equal(t, float32(1), floatAt(blur[0], 2))
	assert.Equal(t, float32(0.9), floatAt(blur[0], 3))

	assert.Zero(t, floatAt(blur[1], 0))
	assert.Equal(t, float32(1)/float32(testHeight/4), floatAt(blur[1], 1))
	assert.Equal(t, float32(1), floatAt(blur[1], 2))
	assert.Zero(t, floatAt(blur[1], 3))
}

func TestHDRRender(t *testing.T) {
	rg := newRig(t)
	h, err := NewHDREffect(rg.r, rg.frame)
	require.NoError(t, err)

	rg.ctx.SetBlendEnabled(true)
	rg.ctx.Reset()

	require.NoError(t, h.Render(rg.r.Temp()))

	draws := rg.ctx.Filter(gputest.OpDraw)
	require.NotEmpty(t, draws)
	for _, d := range draws {
		assert.False(t, d.Blend, "blending must be off for %s", d.PixelShader)
	}

	final := draws[len(draws)-1]
	assert.Equal(t, ShaderPSHDR, final.PixelShader)
	assert.Equal(t, rg.target, final.Target)
	assert.Equal(t, rg.r.Temp(), final.Inputs[0])
	assert.Equal(t, rg.r.TempDS4_1(), final.Inputs[2])
	assert.NotNil(t, final.Inputs[1])
	assert.Equal(t, gpu.Viewport{Width: testWidth, Height: testHeight}, final.Viewport)

	composite := rg.ctx.Writes(h.compositeCB.Buffer())
	require.Len(t, composite, 1)
	assert.Equal(t, float32(1), floatAt(composite[0], 3), "bloom strength")

	// State restored
	assert.True(t, rg.ctx.BlendEnabled())
	rt, ds := rg.ctx.RenderTargets()
	assert.Equal(t, rg.target, rt)
	assert.Equal(t, rg.depth, ds)
	for slot := 0; slot < 3; slot++ {
		assert.Nil(t, rg.ctx.BoundShaderResource(gpu.StagePixel, slot), "slot %d", slot)
	}
}

func TestHDRRenderSkipsWithoutLuminance(t *testing.T) {
	rg := newRig(t)
	h, err := NewHDREffect(rg.r, rg.frame)
	require.NoError(t, err)

	h.Luminance().active = 7
	rg.ctx.Reset()

	require.NoError(t, h.Render(rg.r.Temp()))

	assert.Empty(t, rg.ctx.Filter(gputest.OpDraw), "nothing drawn")
	rt, ds := rg.ctx.RenderTargets()
	assert.Equal(t, rg.target, rt)
	assert.Equal(t, rg.depth, ds)
}

func TestHDRRenderWithoutTarget(t *testing.T) {
	rg := newRig(t)
	h, err := NewHDREffect(rg.r, rg.frame)
	require.NoError(t, err)

	rg.ctx.SetRenderTargets(nil, nil)
	assert.Error(t, h.Render(rg.r.Temp()))
	assert.Zero(t, h.Luminance().Active())
}

func TestNewHDREffectCreationFailure(t *testing.T) {
	rg := newRig(t)
	rg.dev.FailRenderTargetAfter = len(rg.dev.RenderTargets) + 1

	_, err := NewHDREffect(rg.r, rg.frame)
	require.Error(t, err)
	assert.ErrorIs(t, err, gputest.ErrInjected)

	created := rg.dev.RenderTargets[len(rg.dev.RenderTargets)-1]
	assert.True(t, created.Released, "partially created buffers are released")
}

func TestNewRendererMissingShader(t *testing.T) {
	dev := gputest.NewDevice()
	shaders := gputest.NewShaders(dev, []string{ShaderVSPFX}, nil)

	_, err := NewRenderer(dev, gputest.NewContext(nil, nil), shaders, testWidth, testHeight)
	assert.ErrorIs(t, err, gpu.ErrShaderNotFound)
}

func TestRendererResize(t *testing.T) {
	rg := newRig(t)
	oldTemp := rg.r.Temp().(*gputest.Texture)

	require.NoError(t, rg.r.OnResize(800, 600))
	assert.True(t, oldTemp.Released)

	w, h := rg.r.Temp().Size()
	assert.Equal(t, 800, w)
	assert.Equal(t, 600, h)
	w, h = rg.r.TempDS4_2().Size()
	assert.Equal(t, 200, w)
	assert.Equal(t, 150, h)

	assert.Error(t, rg.r.OnResize(0, 600))
}

func TestCopyTextureToRTV(t *testing.T) {
	rg := newRig(t)
	rg.ctx.SetViewport(gpu.Viewport{Width: 17, Height: 9})
	rg.ctx.Reset()

	rg.r.CopyTextureToRTV(rg.frame.hdr, rg.r.TempDS4_1(), 0, 0, nil)

	draws := rg.ctx.Filter(gputest.OpDraw)
	require.Len(t, draws, 1)
	assert.Equal(t, ShaderPSSimple, draws[0].PixelShader)
	assert.Equal(t, ShaderVSPFX, draws[0].VertexPS)
	assert.Equal(t, gpu.Viewport{Width: testWidth / 4, Height: testHeight / 4}, draws[0].Viewport)
	assert.Equal(t, rg.frame.hdr, draws[0].Inputs[0])

	assert.Equal(t, gpu.Viewport{Width: 17, Height: 9}, rg.ctx.Viewport())
	assert.Nil(t, rg.ctx.BoundShaderResource(gpu.StagePixel, 0))
}

type stubEffect struct {
	name   string
	order  *[]string
	err    error
	closed bool
}

func (s *stubEffect) Name() string { return s.name }
func (s *stubEffect) Render(gpu.RenderTarget) error {
	*s.order = append(*s.order, s.name)
	return s.err
}
func (s *stubEffect) Close() error { s.closed = true; return nil }

func TestRendererEffectChain(t *testing.T) {
	rg := newRig(t)

	var order []string
	first := &stubEffect{name: "first", order: &order}
	second := &stubEffect{name: "second", order: &order, err: gputest.ErrInjected}
	third := &stubEffect{name: "third", order: &order}
	rg.r.AddEffect(first)
	rg.r.AddEffect(second)
	rg.r.AddEffect(third)

	err := rg.r.Render(rg.target)
	assert.ErrorIs(t, err, gputest.ErrInjected)
	assert.Contains(t, err.Error(), "second")
	assert.Equal(t, []string{"first", "second"}, order)

	temp := rg.r.Temp().(*gputest.Texture)
	require.NoError(t, rg.r.Close())
	assert.True(t, first.closed && second.closed && third.closed)
	assert.True(t, temp.Released)
}
