// Package gpu defines the graphics device boundary used by the post effects
// and the point light shadow renderer.
//
// Resource creation goes through a Device and may happen on any goroutine.
// Every command (binding, drawing, mapping) goes through a Context and must
// be issued from the render thread.
package gpu

import "errors"

// ErrShaderNotFound is returned by ShaderSet lookups for unknown names.
var ErrShaderNotFound = errors.New("shader not found")

// Stage is a programmable pipeline stage.
type Stage int

const (
	StageVertex Stage = iota
	StageHull
	StageDomain
	StageGeometry
	StagePixel
)

var stageNames = [...]string{"vertex", "hull", "domain", "geometry", "pixel"}

func (s Stage) String() string {
	if s >= 0 && int(s) < len(stageNames) {
		return stageNames[s]
	}
	return "unknown"
}

// Format is a texel format.
type Format int

const (
	FormatUnknown Format = iota
	FormatR16Float
	FormatRGBA16Float
	FormatRGBA8
	FormatD16
)

// Usage says how a texture may be bound.
type Usage uint8

const (
	UsageShaderResource Usage = 1 << iota
	UsageRenderTarget
	UsageDepthStencil
)

// TextureDesc describes a 2D texture.
type TextureDesc struct {
	Width     int
	Height    int
	Format    Format
	MipLevels int // 0 or 1 = no mip chain
	Usage     Usage
}

// Viewport is a pixel rectangle.
type Viewport struct {
	X, Y          int
	Width, Height int
}

// LinearDepth configures depth output as linear view-space distance between
// Near and Far instead of projective depth.
type LinearDepth struct {
	Enabled bool
	Near    float32
	Far     float32
}

// Capabilities reports optional device features.
type Capabilities struct {
	// GeometryShaderCubemap means all six cubemap faces can be rendered in
	// one pass by fanning primitives out in a geometry shader.
	GeometryShaderCubemap bool
	MaxTextureSize        int
}

// Resource is a GPU object that must be released.
type Resource interface {
	Release() error
}

// ShaderResource can be bound as a shader input.
type ShaderResource interface {
	Resource
	Size() (width, height int)
}

// RenderTarget is a color texture that can be rendered to and sampled.
type RenderTarget interface {
	ShaderResource
	Desc() TextureDesc
}

// DepthStencil is a depth view that can be bound as the depth target.
type DepthStencil interface {
	Resource
}

// DepthCubemap is a six-face depth texture.
type DepthCubemap interface {
	ShaderResource
	// Layered returns a view over all six faces, for geometry shader fan-out.
	Layered() DepthStencil
	// Face returns the view of one face, 0..5 in +X,-X,+Y,-Y,+Z,-Z order.
	Face(i int) DepthStencil
}

// Buffer is a raw GPU buffer.
type Buffer interface {
	Resource
	Len() int
}

// Device creates resources. Implementations must allow calls from worker
// goroutines.
type Device interface {
	CreateRenderTarget(desc TextureDesc) (RenderTarget, error)
	CreateConstantBuffer(size int) (Buffer, error)
	Capabilities() Capabilities
}

// ShadowDevice extends Device with what cubemap shadows need.
type ShadowDevice interface {
	Device
	CreateDepthCubemap(size int) (DepthCubemap, error)
}

// Context issues commands on the render thread.
type Context interface {
	// Map returns writable memory for buf. The previous contents are
	// discarded. Every successful Map must be followed by Unmap.
	Map(buf Buffer) ([]byte, error)
	Unmap(buf Buffer)

	BindConstantBuffer(stage Stage, slot int, buf Buffer)
	// BindShaderResource binds res at slot; nil unbinds.
	BindShaderResource(stage Stage, slot int, res ShaderResource)
	GenerateMips(rt RenderTarget)

	RenderTargets() (RenderTarget, DepthStencil)
	SetRenderTargets(rt RenderTarget, ds DepthStencil)
	Viewport() Viewport
	SetViewport(vp Viewport)
	ClearRenderTarget(rt RenderTarget, rgba [4]float32)
	ClearDepthStencil(ds DepthStencil, depth float32)

	BlendEnabled() bool
	SetBlendEnabled(enabled bool)
	DepthClipEnabled() bool
	SetDepthClipEnabled(enabled bool)
	LinearDepth() LinearDepth
	SetLinearDepth(ld LinearDepth)

	// DrawFullscreen draws one full-screen triangle with the applied shaders.
	DrawFullscreen()

	// OwnerThread is the OS thread id commands must come from, 0 if unknown.
	OwnerThread() int64
}

// Shader is an applyable shader stage looked up by name.
type Shader interface {
	Name() string
	Apply(ctx Context)
	// ConstantBuffers lists the shader's constant buffers in slot order.
	ConstantBuffers() []*ConstantBuffer
}

// ShaderSet looks shaders up by name.
type ShaderSet interface {
	VertexShader(name string) (Shader, error)
	PixelShader(name string) (Shader, error)
}

// FullMipChain returns the mip level count of a complete chain for a square
// texture of the given size, e.g. 10 for 512.
func FullMipChain(size int) int {
	levels := 1
	for size > 1 {
		size >>= 1
		levels++
	}
	return levels
}
