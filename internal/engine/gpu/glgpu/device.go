// Package glgpu implements the gpu device boundary on OpenGL 4.1 core.
//
// Resources may be created and released from any goroutine. Their GL
// objects are created lazily the first time the render thread uses them,
// and objects released off the render thread are deleted at the next
// Context.Collect.
package glgpu

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-gl/gl/v4.1-core/gl"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-fx/internal/engine/gpu"
	"github.com/Faultbox/midgard-fx/internal/logger"
)

// ErrReleased is returned when a released resource is used.
var ErrReleased = errors.New("glgpu: resource released")

// Device creates GL-backed resources.
type Device struct {
	caps gpu.Capabilities

	mu      sync.Mutex
	garbage []func()
	live    int

	log *zap.Logger
}

var (
	_ gpu.ShadowDevice = (*Device)(nil)
	_ gpu.Context      = (*Context)(nil)
	_ gpu.ShaderSet    = (*ShaderSet)(nil)
	_ gpu.RenderTarget = (*Texture)(nil)
	_ gpu.RenderTarget = (*BackBuffer)(nil)
	_ gpu.DepthCubemap = (*Cubemap)(nil)
	_ gpu.DepthStencil = (*DepthBuffer)(nil)
	_ gpu.Buffer       = (*Buffer)(nil)
)

// NewDevice queries the current GL context for limits. It must run on the
// render thread after gl.Init.
func NewDevice() *Device {
	var maxTex int32
	gl.GetIntegerv(gl.MAX_TEXTURE_SIZE, &maxTex)

	d := newDevice(gpu.Capabilities{
		// Core 4.1 always has geometry shaders and layered attachments.
		GeometryShaderCubemap: true,
		MaxTextureSize:        int(maxTex),
	})
	d.log.Info("GL device ready",
		zap.String("version", gl.GoStr(gl.GetString(gl.VERSION))),
		zap.String("renderer", gl.GoStr(gl.GetString(gl.RENDERER))),
		zap.Int("max_texture_size", int(maxTex)),
	)
	return d
}

func newDevice(caps gpu.Capabilities) *Device {
	return &Device{
		caps: caps,
		log:  logger.Named(logger.GLGPU),
	}
}

// Capabilities implements gpu.Device.
func (d *Device) Capabilities() gpu.Capabilities {
	return d.caps
}

// CreateRenderTarget implements gpu.Device.
func (d *Device) CreateRenderTarget(desc gpu.TextureDesc) (gpu.RenderTarget, error) {
	if err := d.checkSize(desc.Width, desc.Height); err != nil {
		return nil, err
	}
	if _, ok := textureFormats[desc.Format]; !ok || desc.Format == gpu.FormatD16 {
		return nil, fmt.Errorf("unsupported render target format %d", desc.Format)
	}
	if desc.Usage&gpu.UsageRenderTarget == 0 {
		return nil, fmt.Errorf("render target needs render target usage")
	}
	if desc.MipLevels > gpu.FullMipChain(max(desc.Width, desc.Height)) {
		return nil, fmt.Errorf("%d mip levels exceed the chain of a %dx%d texture",
			desc.MipLevels, desc.Width, desc.Height)
	}
	d.track(1)
	return &Texture{dev: d, desc: desc}, nil
}

// CreateDepthBuffer creates a 2D depth target for scene rendering.
func (d *Device) CreateDepthBuffer(width, height int) (*DepthBuffer, error) {
	if err := d.checkSize(width, height); err != nil {
		return nil, err
	}
	d.track(1)
	return &DepthBuffer{dev: d, width: width, height: height}, nil
}

// CreateDepthCubemap implements gpu.ShadowDevice.
func (d *Device) CreateDepthCubemap(size int) (gpu.DepthCubemap, error) {
	if err := d.checkSize(size, size); err != nil {
		return nil, err
	}
	d.track(1)
	c := &Cubemap{dev: d, size: size}
	c.layered = &depthView{cube: c, face: layeredFace}
	for i := range c.faces {
		c.faces[i] = &depthView{cube: c, face: i}
	}
	return c, nil
}

// CreateConstantBuffer implements gpu.Device.
func (d *Device) CreateConstantBuffer(size int) (gpu.Buffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid buffer size %d", size)
	}
	d.track(1)
	// std140 blocks are sized in 16 byte rows.
	return &Buffer{dev: d, data: make([]byte, size, (size+15)&^15)}, nil
}

// Live returns the number of created resources not yet released.
func (d *Device) Live() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.live
}

func (d *Device) checkSize(width, height int) error {
	if width < 1 || height < 1 {
		return fmt.Errorf("invalid texture size %dx%d", width, height)
	}
	if limit := d.caps.MaxTextureSize; limit > 0 && (width > limit || height > limit) {
		return fmt.Errorf("texture size %dx%d exceeds device limit %d", width, height, limit)
	}
	return nil
}

func (d *Device) track(delta int) {
	d.mu.Lock()
	d.live += delta
	d.mu.Unlock()
}

// discard queues GL deletion for the render thread.
func (d *Device) discard(fn func()) {
	d.mu.Lock()
	d.garbage = append(d.garbage, fn)
	d.live--
	d.mu.Unlock()
}

// forget accounts for a release that owns no GL objects.
func (d *Device) forget() {
	d.track(-1)
}

func (d *Device) takeGarbage() []func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	g := d.garbage
	d.garbage = nil
	return g
}
