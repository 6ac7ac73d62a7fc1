package glgpu

import (
	"sync"

	"github.com/go-gl/gl/v4.1-core/gl"

	"github.com/Faultbox/midgard-fx/internal/engine/gpu"
)

// layeredFace marks the depth view that covers all six cubemap faces.
const layeredFace = -1

type texelFormat struct {
	internal int32
	format   uint32
	xtype    uint32
}

var textureFormats = map[gpu.Format]texelFormat{
	gpu.FormatR16Float:    {gl.R16F, gl.RED, gl.HALF_FLOAT},
	gpu.FormatRGBA16Float: {gl.RGBA16F, gl.RGBA, gl.HALF_FLOAT},
	gpu.FormatRGBA8:       {gl.RGBA8, gl.RGBA, gl.UNSIGNED_BYTE},
	gpu.FormatD16:         {gl.DEPTH_COMPONENT16, gl.DEPTH_COMPONENT, gl.FLOAT},
}

// glObject is a lazily created GL name shared by every resource type.
type glObject struct {
	mu       sync.Mutex
	name     uint32
	released bool
}

// get returns the GL name, creating it with create on first use. It returns
// 0 once the resource is released.
func (o *glObject) get(create func() uint32) uint32 {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.released {
		return 0
	}
	if o.name == 0 {
		o.name = create()
	}
	return o.name
}

// release marks the object released and hands its GL name to destroy on
// the render thread.
func (o *glObject) release(dev *Device, destroy func(name uint32)) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.released {
		return nil
	}
	o.released = true
	if o.name == 0 {
		dev.forget()
		return nil
	}
	name := o.name
	o.name = 0
	dev.discard(func() { destroy(name) })
	return nil
}

func deleteTexture(name uint32) {
	gl.DeleteTextures(1, &name)
}

// Texture is a 2D color render target.
type Texture struct {
	dev  *Device
	desc gpu.TextureDesc
	obj  glObject
}

// Desc implements gpu.RenderTarget.
func (t *Texture) Desc() gpu.TextureDesc { return t.desc }

// Size implements gpu.ShaderResource.
func (t *Texture) Size() (width, height int) { return t.desc.Width, t.desc.Height }

// Release implements gpu.Resource.
func (t *Texture) Release() error {
	return t.obj.release(t.dev, deleteTexture)
}

// glName returns the texture name, realizing it on first use.
func (t *Texture) glName() uint32 {
	return t.obj.get(t.realize)
}

func (t *Texture) realize() uint32 {
	f := textureFormats[t.desc.Format]
	levels := max(t.desc.MipLevels, 1)

	var tex uint32
	gl.GenTextures(1, &tex)
	gl.BindTexture(gl.TEXTURE_2D, tex)

	w, h := t.desc.Width, t.desc.Height
	for level := 0; level < levels; level++ {
		gl.TexImage2D(gl.TEXTURE_2D, int32(level), f.internal, int32(w), int32(h), 0, f.format, f.xtype, nil)
		w = max(w/2, 1)
		h = max(h/2, 1)
	}
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAX_LEVEL, int32(levels-1))
	if levels > 1 {
		gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.LINEAR_MIPMAP_LINEAR)
	} else {
		gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.LINEAR)
	}
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
	gl.BindTexture(gl.TEXTURE_2D, 0)
	return tex
}

// DepthBuffer is a 2D depth target.
type DepthBuffer struct {
	dev           *Device
	width, height int
	obj           glObject
}

// Size returns the buffer dimensions.
func (b *DepthBuffer) Size() (width, height int) { return b.width, b.height }

// Release implements gpu.Resource.
func (b *DepthBuffer) Release() error {
	return b.obj.release(b.dev, deleteTexture)
}

func (b *DepthBuffer) glName() uint32 {
	return b.obj.get(func() uint32 {
		var tex uint32
		gl.GenTextures(1, &tex)
		gl.BindTexture(gl.TEXTURE_2D, tex)
		gl.TexImage2D(gl.TEXTURE_2D, 0, gl.DEPTH_COMPONENT24, int32(b.width), int32(b.height), 0,
			gl.DEPTH_COMPONENT, gl.FLOAT, nil)
		gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.NEAREST)
		gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.NEAREST)
		gl.BindTexture(gl.TEXTURE_2D, 0)
		return tex
	})
}

// Cubemap is a six-face depth texture sampled with a shadow comparison.
type Cubemap struct {
	dev     *Device
	size    int
	obj     glObject
	layered *depthView
	faces   [6]*depthView
}

// Size implements gpu.ShaderResource.
func (c *Cubemap) Size() (width, height int) { return c.size, c.size }

// Layered implements gpu.DepthCubemap.
func (c *Cubemap) Layered() gpu.DepthStencil { return c.layered }

// Face implements gpu.DepthCubemap.
func (c *Cubemap) Face(i int) gpu.DepthStencil {
	if i < 0 || i >= len(c.faces) {
		return nil
	}
	return c.faces[i]
}

// Release implements gpu.Resource.
func (c *Cubemap) Release() error {
	return c.obj.release(c.dev, deleteTexture)
}

func (c *Cubemap) glName() uint32 {
	return c.obj.get(c.realize)
}

func (c *Cubemap) realize() uint32 {
	var tex uint32
	gl.GenTextures(1, &tex)
	gl.BindTexture(gl.TEXTURE_CUBE_MAP, tex)

	for face := uint32(0); face < 6; face++ {
		gl.TexImage2D(gl.TEXTURE_CUBE_MAP_POSITIVE_X+face, 0, gl.DEPTH_COMPONENT16,
			int32(c.size), int32(c.size), 0, gl.DEPTH_COMPONENT, gl.FLOAT, nil)
	}

	gl.TexParameteri(gl.TEXTURE_CUBE_MAP, gl.TEXTURE_MIN_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_CUBE_MAP, gl.TEXTURE_MAG_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_CUBE_MAP, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_CUBE_MAP, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_CUBE_MAP, gl.TEXTURE_WRAP_R, gl.CLAMP_TO_EDGE)

	// Comparison sampling for samplerCubeShadow
	gl.TexParameteri(gl.TEXTURE_CUBE_MAP, gl.TEXTURE_COMPARE_MODE, gl.COMPARE_REF_TO_TEXTURE)
	gl.TexParameteri(gl.TEXTURE_CUBE_MAP, gl.TEXTURE_COMPARE_FUNC, gl.LEQUAL)

	gl.BindTexture(gl.TEXTURE_CUBE_MAP, 0)
	return tex
}

// depthView is one face, or all faces, of a Cubemap as a depth target.
// Views are owned by their cubemap.
type depthView struct {
	cube *Cubemap
	face int
}

// Release implements gpu.Resource. Releasing a view is a no-op.
func (v *depthView) Release() error { return nil }

// BackBuffer is the window's default framebuffer. It can be rendered to
// but not sampled.
type BackBuffer struct {
	mu            sync.Mutex
	width, height int
}

// Desc implements gpu.RenderTarget.
func (b *BackBuffer) Desc() gpu.TextureDesc {
	w, h := b.Size()
	return gpu.TextureDesc{Width: w, Height: h, Format: gpu.FormatRGBA8, Usage: gpu.UsageRenderTarget}
}

// Size implements gpu.ShaderResource.
func (b *BackBuffer) Size() (width, height int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.width, b.height
}

// Release implements gpu.Resource. The window owns the back buffer.
func (b *BackBuffer) Release() error { return nil }

func (b *BackBuffer) resize(width, height int) {
	b.mu.Lock()
	b.width, b.height = width, height
	b.mu.Unlock()
}
