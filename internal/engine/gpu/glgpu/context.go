package glgpu

import (
	"encoding/binary"
	"fmt"
	gomath "math"

	"github.com/go-gl/gl/v4.1-core/gl"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-fx/internal/engine/gpu"
	"github.com/Faultbox/midgard-fx/internal/engine/gpu/threadid"
	"github.com/Faultbox/midgard-fx/internal/logger"
)

// SlotsPerStage is the number of constant buffer and texture slots each
// stage gets. Stage s slot i maps to GL binding point s*SlotsPerStage+i,
// for uniform blocks and texture units alike.
const SlotsPerStage = 6

// LinearDepthBinding is the uniform block binding of the LinearDepth block.
const LinearDepthBinding = SlotsPerStage * 5

// BindingPoint returns the GL binding point of a stage slot.
func BindingPoint(stage gpu.Stage, slot int) uint32 {
	return uint32(int(stage)*SlotsPerStage + slot)
}

func validSlot(stage gpu.Stage, slot int) bool {
	return stage >= gpu.StageVertex && stage <= gpu.StagePixel && slot >= 0 && slot < SlotsPerStage
}

// Context issues GL commands. Every method must be called on the thread
// that created it.
type Context struct {
	dev   *Device
	owner int64

	fbo      uint32
	vao      uint32
	depthUBO uint32
	back     *BackBuffer

	rt        gpu.RenderTarget
	ds        gpu.DepthStencil
	viewport  gpu.Viewport
	blend     bool
	depthClip bool
	linear    gpu.LinearDepth

	log *zap.Logger
}

// NewContext creates the context for the current GL context. The caller's
// goroutine must be locked to its OS thread.
func NewContext(dev *Device, width, height int) (*Context, error) {
	c := &Context{
		dev:       dev,
		owner:     threadid.Current(),
		back:      &BackBuffer{width: width, height: height},
		depthClip: true,
		log:       logger.Named(logger.GLGPU),
	}

	gl.GenFramebuffers(1, &c.fbo)
	gl.GenVertexArrays(1, &c.vao)

	gl.GenBuffers(1, &c.depthUBO)
	gl.BindBuffer(gl.UNIFORM_BUFFER, c.depthUBO)
	gl.BufferData(gl.UNIFORM_BUFFER, 16, nil, gl.DYNAMIC_DRAW)
	gl.BindBuffer(gl.UNIFORM_BUFFER, 0)
	gl.BindBufferBase(gl.UNIFORM_BUFFER, LinearDepthBinding, c.depthUBO)

	if c.fbo == 0 || c.vao == 0 || c.depthUBO == 0 {
		c.Close()
		return nil, fmt.Errorf("creating context objects: GL error 0x%x", gl.GetError())
	}

	// Additive blending for light accumulation
	gl.BlendFunc(gl.ONE, gl.ONE)
	gl.Disable(gl.BLEND)
	gl.Disable(gl.DEPTH_CLAMP)
	c.uploadLinearDepth()

	c.rt = c.back
	c.SetViewport(gpu.Viewport{Width: width, Height: height})
	return c, nil
}

// BackBuffer returns the window's default framebuffer as a render target.
func (c *Context) BackBuffer() *BackBuffer { return c.back }

// ResizeBackBuffer records a new window size.
func (c *Context) ResizeBackBuffer(width, height int) {
	c.back.resize(width, height)
}

// ReadBackBuffer reads the window framebuffer as bottom-up RGBA rows.
func (c *Context) ReadBackBuffer() ([]byte, int, int) {
	w, h := c.back.Size()
	pixels := make([]byte, w*h*4)
	if len(pixels) == 0 {
		return pixels, w, h
	}
	gl.BindFramebuffer(gl.READ_FRAMEBUFFER, 0)
	gl.PixelStorei(gl.PACK_ALIGNMENT, 1)
	gl.ReadPixels(0, 0, int32(w), int32(h), gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(pixels))
	return pixels, w, h
}

// Device returns the device the context was created with.
func (c *Context) Device() *Device { return c.dev }

// OwnerThread implements gpu.Context.
func (c *Context) OwnerThread() int64 { return c.owner }

// Collect deletes GL objects released since the last call.
func (c *Context) Collect() {
	for _, fn := range c.dev.takeGarbage() {
		fn()
	}
}

// Close deletes the context's own objects and any pending garbage.
func (c *Context) Close() {
	c.Collect()
	if c.fbo != 0 {
		gl.DeleteFramebuffers(1, &c.fbo)
		c.fbo = 0
	}
	if c.vao != 0 {
		gl.DeleteVertexArrays(1, &c.vao)
		c.vao = 0
	}
	if c.depthUBO != 0 {
		gl.DeleteBuffers(1, &c.depthUBO)
		c.depthUBO = 0
	}
}

// Map implements gpu.Context.
func (c *Context) Map(buf gpu.Buffer) ([]byte, error) {
	b, ok := buf.(*Buffer)
	if !ok {
		return nil, fmt.Errorf("foreign buffer %T", buf)
	}
	if b.mapped {
		return nil, fmt.Errorf("buffer already mapped")
	}
	if b.glName() == 0 {
		return nil, ErrReleased
	}
	b.mapped = true
	clear(b.data[:cap(b.data)])
	return b.data, nil
}

// Unmap implements gpu.Context.
func (c *Context) Unmap(buf gpu.Buffer) {
	b, ok := buf.(*Buffer)
	if !ok || !b.mapped {
		return
	}
	b.mapped = false
	b.upload()
}

// BindConstantBuffer implements gpu.Context.
func (c *Context) BindConstantBuffer(stage gpu.Stage, slot int, buf gpu.Buffer) {
	if !validSlot(stage, slot) {
		c.log.Warn("constant buffer slot out of range", zap.Stringer("stage", stage), zap.Int("slot", slot))
		return
	}
	var ubo uint32
	if b, ok := buf.(*Buffer); ok {
		ubo = b.glName()
	}
	gl.BindBufferBase(gl.UNIFORM_BUFFER, BindingPoint(stage, slot), ubo)
}

// BindShaderResource implements gpu.Context.
func (c *Context) BindShaderResource(stage gpu.Stage, slot int, res gpu.ShaderResource) {
	if !validSlot(stage, slot) {
		c.log.Warn("texture slot out of range", zap.Stringer("stage", stage), zap.Int("slot", slot))
		return
	}
	gl.ActiveTexture(gl.TEXTURE0 + BindingPoint(stage, slot))

	switch r := res.(type) {
	case nil:
		gl.BindTexture(gl.TEXTURE_2D, 0)
		gl.BindTexture(gl.TEXTURE_CUBE_MAP, 0)
	case *Texture:
		gl.BindTexture(gl.TEXTURE_2D, r.glName())
	case *DepthBuffer:
		gl.BindTexture(gl.TEXTURE_2D, r.glName())
	case *Cubemap:
		gl.BindTexture(gl.TEXTURE_CUBE_MAP, r.glName())
	default:
		c.log.Warn("resource cannot be sampled", zap.String("type", fmt.Sprintf("%T", res)))
	}
	gl.ActiveTexture(gl.TEXTURE0)
}

// GenerateMips implements gpu.Context.
func (c *Context) GenerateMips(rt gpu.RenderTarget) {
	t, ok := rt.(*Texture)
	if !ok || t.desc.MipLevels <= 1 {
		return
	}
	gl.BindTexture(gl.TEXTURE_2D, t.glName())
	gl.GenerateMipmap(gl.TEXTURE_2D)
	gl.BindTexture(gl.TEXTURE_2D, 0)
}

// RenderTargets implements gpu.Context.
func (c *Context) RenderTargets() (gpu.RenderTarget, gpu.DepthStencil) {
	return c.rt, c.ds
}

// SetRenderTargets implements gpu.Context. The back buffer always renders
// with the window's own depth buffer.
func (c *Context) SetRenderTargets(rt gpu.RenderTarget, ds gpu.DepthStencil) {
	c.rt, c.ds = rt, ds

	if _, ok := rt.(*BackBuffer); ok || (rt == nil && ds == nil) {
		gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
		return
	}

	gl.BindFramebuffer(gl.FRAMEBUFFER, c.fbo)
	if t, ok := rt.(*Texture); ok {
		gl.FramebufferTexture2D(gl.FRAMEBUFFER, gl.COLOR_ATTACHMENT0, gl.TEXTURE_2D, t.glName(), 0)
		gl.DrawBuffer(gl.COLOR_ATTACHMENT0)
	} else {
		gl.FramebufferTexture2D(gl.FRAMEBUFFER, gl.COLOR_ATTACHMENT0, gl.TEXTURE_2D, 0, 0)
		gl.DrawBuffer(gl.NONE)
	}
	gl.ReadBuffer(gl.NONE)

	switch d := ds.(type) {
	case *depthView:
		tex := d.cube.glName()
		if d.face == layeredFace {
			gl.FramebufferTexture(gl.FRAMEBUFFER, gl.DEPTH_ATTACHMENT, tex, 0)
		} else {
			gl.FramebufferTexture2D(gl.FRAMEBUFFER, gl.DEPTH_ATTACHMENT,
				gl.TEXTURE_CUBE_MAP_POSITIVE_X+uint32(d.face), tex, 0)
		}
	case *DepthBuffer:
		gl.FramebufferTexture2D(gl.FRAMEBUFFER, gl.DEPTH_ATTACHMENT, gl.TEXTURE_2D, d.glName(), 0)
	default:
		gl.FramebufferTexture2D(gl.FRAMEBUFFER, gl.DEPTH_ATTACHMENT, gl.TEXTURE_2D, 0, 0)
	}

	if status := gl.CheckFramebufferStatus(gl.FRAMEBUFFER); status != gl.FRAMEBUFFER_COMPLETE {
		c.log.Warn("framebuffer incomplete", zap.Uint32("status", status))
	}
}

// Viewport implements gpu.Context.
func (c *Context) Viewport() gpu.Viewport { return c.viewport }

// SetViewport implements gpu.Context.
func (c *Context) SetViewport(vp gpu.Viewport) {
	c.viewport = vp
	gl.Viewport(int32(vp.X), int32(vp.Y), int32(vp.Width), int32(vp.Height))
}

// ClearRenderTarget implements gpu.Context.
func (c *Context) ClearRenderTarget(rt gpu.RenderTarget, rgba [4]float32) {
	prevRT, prevDS := c.RenderTargets()
	c.SetRenderTargets(rt, nil)
	gl.ClearColor(rgba[0], rgba[1], rgba[2], rgba[3])
	gl.Clear(gl.COLOR_BUFFER_BIT)
	c.SetRenderTargets(prevRT, prevDS)
}

// ClearDepthStencil implements gpu.Context.
func (c *Context) ClearDepthStencil(ds gpu.DepthStencil, depth float32) {
	prevRT, prevDS := c.RenderTargets()
	c.SetRenderTargets(nil, ds)
	gl.DepthMask(true)
	gl.ClearDepth(float64(depth))
	gl.Clear(gl.DEPTH_BUFFER_BIT)
	c.SetRenderTargets(prevRT, prevDS)
}

// BlendEnabled implements gpu.Context.
func (c *Context) BlendEnabled() bool { return c.blend }

// SetBlendEnabled implements gpu.Context.
func (c *Context) SetBlendEnabled(enabled bool) {
	c.blend = enabled
	if enabled {
		gl.Enable(gl.BLEND)
	} else {
		gl.Disable(gl.BLEND)
	}
}

// DepthClipEnabled implements gpu.Context.
func (c *Context) DepthClipEnabled() bool { return c.depthClip }

// SetDepthClipEnabled implements gpu.Context. Disabling clipping clamps
// depth instead.
func (c *Context) SetDepthClipEnabled(enabled bool) {
	c.depthClip = enabled
	if enabled {
		gl.Disable(gl.DEPTH_CLAMP)
	} else {
		gl.Enable(gl.DEPTH_CLAMP)
	}
}

// LinearDepth implements gpu.Context.
func (c *Context) LinearDepth() gpu.LinearDepth { return c.linear }

// SetLinearDepth implements gpu.Context. Shaders read the setting from the
// LinearDepth uniform block.
func (c *Context) SetLinearDepth(ld gpu.LinearDepth) {
	c.linear = ld
	c.uploadLinearDepth()
}

func (c *Context) uploadLinearDepth() {
	data := encodeLinearDepth(c.linear)
	gl.BindBuffer(gl.UNIFORM_BUFFER, c.depthUBO)
	gl.BufferSubData(gl.UNIFORM_BUFFER, 0, len(data), gl.Ptr(&data[0]))
	gl.BindBuffer(gl.UNIFORM_BUFFER, 0)
}

// encodeLinearDepth packs the setting as a std140 vec4: enabled, near, far.
func encodeLinearDepth(ld gpu.LinearDepth) [16]byte {
	var enabled float32
	if ld.Enabled {
		enabled = 1
	}
	var out [16]byte
	binary.LittleEndian.PutUint32(out[0:], gomath.Float32bits(enabled))
	binary.LittleEndian.PutUint32(out[4:], gomath.Float32bits(ld.Near))
	binary.LittleEndian.PutUint32(out[8:], gomath.Float32bits(ld.Far))
	return out
}

// DrawFullscreen implements gpu.Context.
func (c *Context) DrawFullscreen() {
	depthTest := gl.IsEnabled(gl.DEPTH_TEST)
	if depthTest {
		gl.Disable(gl.DEPTH_TEST)
	}
	gl.BindVertexArray(c.vao)
	gl.DrawArrays(gl.TRIANGLES, 0, 3)
	gl.BindVertexArray(0)
	if depthTest {
		gl.Enable(gl.DEPTH_TEST)
	}
}
