// Package gputest provides an in-memory gpu device that records every
// context command, for tests that run without a graphics driver.
package gputest

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Faultbox/midgard-fx/internal/engine/gpu"
)

// ErrInjected is returned by operations configured to fail.
var ErrInjected = errors.New("gputest: injected failure")

// Op names a recorded command.
type Op string

const (
	OpMap          Op = "map"
	OpUnmap        Op = "unmap"
	OpBindCB       Op = "bind_cb"
	OpBindSRV      Op = "bind_srv"
	OpGenerateMips Op = "generate_mips"
	OpSetTargets   Op = "set_targets"
	OpClear        Op = "clear"
	OpClearDepth   Op = "clear_depth"
	OpDraw         Op = "draw"
	OpApplyShader  Op = "apply_shader"
)

// Command is one recorded context call.
type Command struct {
	Op       Op
	Stage    gpu.Stage
	Slot     int
	Resource any
	Data     []byte // buffer contents at unmap

	// Draw state
	Target      gpu.RenderTarget
	VertexPS    string
	PixelShader string
	Inputs      map[int]gpu.ShaderResource // pixel stage bindings at draw time
	Blend       bool
	Viewport    gpu.Viewport
}

// Texture is a fake render target.
type Texture struct {
	ID       int
	desc     gpu.TextureDesc
	Released bool
}

func (t *Texture) Release() error { t.Released = true; return nil }
func (t *Texture) Size() (int, int) { return t.desc.Width, t.desc.Height }
func (t *Texture) Desc() gpu.TextureDesc { return t.desc }
func (t *Texture) String() string { return fmt.Sprintf("texture#%d", t.ID) }

// DepthView is a fake depth view.
type DepthView struct {
	ID   int
	Face int // -1 for layered or standalone views
}

func (d *DepthView) Release() error { return nil }

// Cubemap is a fake depth cubemap.
type Cubemap struct {
	ID       int
	Edge     int
	Released bool
	layered  *DepthView
	faces    [6]*DepthView
}

func (c *Cubemap) Release() error { c.Released = true; return nil }
func (c *Cubemap) Size() (int, int) { return c.Edge, c.Edge }
func (c *Cubemap) Layered() gpu.DepthStencil { return c.layered }
func (c *Cubemap) Face(i int) gpu.DepthStencil {
	return c.faces[i]
}

// Buffer is a fake GPU buffer that keeps its bytes.
type Buffer struct {
	ID       int
	Data     []byte
	Released bool
}

func (b *Buffer) Release() error { b.Released = true; return nil }
func (b *Buffer) Len() int { return len(b.Data) }

// Device records created resources. It is safe for concurrent use.
type Device struct {
	mu sync.Mutex

	Caps gpu.Capabilities

	// FailRenderTargets makes every CreateRenderTarget call fail.
	FailRenderTargets bool
	// FailRenderTargetAfter fails creation once that many targets exist (0 = never).
	FailRenderTargetAfter int
	// FailCubemaps makes every CreateDepthCubemap call fail.
	FailCubemaps bool

	nextID        int
	RenderTargets []*Texture
	Cubemaps      []*Cubemap
	Buffers       []*Buffer
}

// NewDevice returns a device that supports geometry shader cubemaps.
func NewDevice() *Device {
	return &Device{Caps: gpu.Capabilities{GeometryShaderCubemap: true, MaxTextureSize: 16384}}
}

func (d *Device) id() int {
	d.nextID++
	return d.nextID
}

// CreateRenderTarget implements gpu.Device.
func (d *Device) CreateRenderTarget(desc gpu.TextureDesc) (gpu.RenderTarget, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.FailRenderTargets {
		return nil, ErrInjected
	}
	if d.FailRenderTargetAfter > 0 && len(d.RenderTargets) >= d.FailRenderTargetAfter {
		return nil, ErrInjected
	}
	t := &Texture{ID: d.id(), desc: desc}
	d.RenderTargets = append(d.RenderTargets, t)
	return t, nil
}

// CreateConstantBuffer implements gpu.Device.
func (d *Device) CreateConstantBuffer(size int) (gpu.Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	b := &Buffer{ID: d.id(), Data: make([]byte, size)}
	d.Buffers = append(d.Buffers, b)
	return b, nil
}

// CreateDepthCubemap implements gpu.ShadowDevice.
func (d *Device) CreateDepthCubemap(size int) (gpu.DepthCubemap, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.FailCubemaps {
		return nil, ErrInjected
	}
	c := &Cubemap{ID: d.id(), Edge: size, layered: &DepthView{ID: d.id(), Face: -1}}
	for i := range c.faces {
		c.faces[i] = &DepthView{ID: d.id(), Face: i}
	}
	d.Cubemaps = append(d.Cubemaps, c)
	return c, nil
}

// Capabilities implements gpu.Device.
func (d *Device) Capabilities() gpu.Capabilities {
	return d.Caps
}

// CubemapCount returns the number of created cubemaps.
func (d *Device) CubemapCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.Cubemaps)
}

type stageSlot struct {
	stage gpu.Stage
	slot  int
}

// Context records commands and tracks binding state.
type Context struct {
	Commands []Command

	// MapErr, when set, is returned by every Map call.
	MapErr error

	// Owner is returned by OwnerThread.
	Owner int64

	rt          gpu.RenderTarget
	ds          gpu.DepthStencil
	vp          gpu.Viewport
	blend       bool
	depthClip   bool
	linearDepth gpu.LinearDepth
	srvs        map[stageSlot]gpu.ShaderResource
	cbs         map[stageSlot]gpu.Buffer
	vertex      string
	pixel       string
}

// NewContext returns a context with the given render target and depth view
// bound, as if a frame were in progress.
func NewContext(rt gpu.RenderTarget, ds gpu.DepthStencil) *Context {
	c := &Context{
		rt:   rt,
		ds:   ds,
		srvs: make(map[stageSlot]gpu.ShaderResource),
		cbs:  make(map[stageSlot]gpu.Buffer),
	}
	if rt != nil {
		w, h := rt.Size()
		c.vp = gpu.Viewport{Width: w, Height: h}
	}
	return c
}

func (c *Context) record(cmd Command) {
	c.Commands = append(c.Commands, cmd)
}

// Map implements gpu.Context.
func (c *Context) Map(buf gpu.Buffer) ([]byte, error) {
	if c.MapErr != nil {
		return nil, c.MapErr
	}
	b := buf.(*Buffer)
	c.record(Command{Op: OpMap, Resource: b})
	clear(b.Data)
	return b.Data, nil
}

// Unmap implements gpu.Context.
func (c *Context) Unmap(buf gpu.Buffer) {
	b := buf.(*Buffer)
	c.record(Command{Op: OpUnmap, Resource: b, Data: append([]byte(nil), b.Data...)})
}

// Writes returns the contents written to buf, one entry per unmap.
func (c *Context) Writes(buf gpu.Buffer) [][]byte {
	var out [][]byte
	for _, cmd := range c.Commands {
		if cmd.Op == OpUnmap && cmd.Resource == buf {
			out = append(out, cmd.Data)
		}
	}
	return out
}

// BindConstantBuffer implements gpu.Context.
func (c *Context) BindConstantBuffer(stage gpu.Stage, slot int, buf gpu.Buffer) {
	c.cbs[stageSlot{stage, slot}] = buf
	c.record(Command{Op: OpBindCB, Stage: stage, Slot: slot, Resource: buf})
}

// BindShaderResource implements gpu.Context.
func (c *Context) BindShaderResource(stage gpu.Stage, slot int, res gpu.ShaderResource) {
	if res == nil {
		delete(c.srvs, stageSlot{stage, slot})
	} else {
		c.srvs[stageSlot{stage, slot}] = res
	}
	c.record(Command{Op: OpBindSRV, Stage: stage, Slot: slot, Resource: res})
}

// GenerateMips implements gpu.Context.
func (c *Context) GenerateMips(rt gpu.RenderTarget) {
	c.record(Command{Op: OpGenerateMips, Resource: rt})
}

// RenderTargets implements gpu.Context.
func (c *Context) RenderTargets() (gpu.RenderTarget, gpu.DepthStencil) {
	return c.rt, c.ds
}

// SetRenderTargets implements gpu.Context.
func (c *Context) SetRenderTargets(rt gpu.RenderTarget, ds gpu.DepthStencil) {
	c.rt, c.ds = rt, ds
	c.record(Command{Op: OpSetTargets, Target: rt, Resource: ds})
}

// Viewport implements gpu.Context.
func (c *Context) Viewport() gpu.Viewport { return c.vp }

// SetViewport implements gpu.Context.
func (c *Context) SetViewport(vp gpu.Viewport) { c.vp = vp }

// ClearRenderTarget implements gpu.Context.
func (c *Context) ClearRenderTarget(rt gpu.RenderTarget, _ [4]float32) {
	c.record(Command{Op: OpClear, Target: rt})
}

// ClearDepthStencil implements gpu.Context.
func (c *Context) ClearDepthStencil(ds gpu.DepthStencil, _ float32) {
	c.record(Command{Op: OpClearDepth, Resource: ds})
}

// BlendEnabled implements gpu.Context.
func (c *Context) BlendEnabled() bool { return c.blend }

// SetBlendEnabled implements gpu.Context.
func (c *Context) SetBlendEnabled(enabled bool) { c.blend = enabled }

// DepthClipEnabled implements gpu.Context.
func (c *Context) DepthClipEnabled() bool { return c.depthClip }

// SetDepthClipEnabled implements gpu.Context.
func (c *Context) SetDepthClipEnabled(enabled bool) { c.depthClip = enabled }

// LinearDepth implements gpu.Context.
func (c *Context) LinearDepth() gpu.LinearDepth { return c.linearDepth }

// SetLinearDepth implements gpu.Context.
func (c *Context) SetLinearDepth(ld gpu.LinearDepth) { c.linearDepth = ld }

// DrawFullscreen implements gpu.Context.
func (c *Context) DrawFullscreen() {
	inputs := make(map[int]gpu.ShaderResource)
	for k, v := range c.srvs {
		if k.stage == gpu.StagePixel {
			inputs[k.slot] = v
		}
	}
	c.record(Command{
		Op:          OpDraw,
		Target:      c.rt,
		VertexPS:    c.vertex,
		PixelShader: c.pixel,
		Inputs:      inputs,
		Blend:       c.blend,
		Viewport:    c.vp,
	})
}

// OwnerThread implements gpu.Context.
func (c *Context) OwnerThread() int64 { return c.Owner }

// BoundShaderResource returns what is bound at stage/slot.
func (c *Context) BoundShaderResource(stage gpu.Stage, slot int) gpu.ShaderResource {
	return c.srvs[stageSlot{stage, slot}]
}

// BoundConstantBuffer returns what is bound at stage/slot.
func (c *Context) BoundConstantBuffer(stage gpu.Stage, slot int) gpu.Buffer {
	return c.cbs[stageSlot{stage, slot}]
}

// Filter returns the recorded commands with the given op.
func (c *Context) Filter(op Op) []Command {
	var out []Command
	for _, cmd := range c.Commands {
		if cmd.Op == op {
			out = append(out, cmd)
		}
	}
	return out
}

// Reset forgets recorded commands but keeps binding state.
func (c *Context) Reset() {
	c.Commands = nil
}

// Shader is a fake shader whose Apply is recorded by a *Context.
type Shader struct {
	name   string
	vertex bool
	cbs    []*gpu.ConstantBuffer
}

// Name implements gpu.Shader.
func (s *Shader) Name() string { return s.name }

// Apply implements gpu.Shader.
func (s *Shader) Apply(ctx gpu.Context) {
	c, ok := ctx.(*Context)
	if !ok {
		return
	}
	if s.vertex {
		c.vertex = s.name
	} else {
		c.pixel = s.name
	}
	c.record(Command{Op: OpApplyShader, Resource: s.name})
}

// ConstantBuffers implements gpu.Shader.
func (s *Shader) ConstantBuffers() []*gpu.ConstantBuffer { return s.cbs }

// Shaders is a fake gpu.ShaderSet. Every known shader owns one 256-byte
// constant buffer.
type Shaders struct {
	shaders map[string]*Shader
}

// NewShaders registers the given vertex and pixel shader names.
func NewShaders(dev gpu.Device, vertex, pixel []string) *Shaders {
	s := &Shaders{shaders: make(map[string]*Shader)}
	add := func(name string, isVertex bool) {
		buf, err := dev.CreateConstantBuffer(256)
		if err != nil {
			panic(err)
		}
		s.shaders[name] = &Shader{name: name, vertex: isVertex, cbs: []*gpu.ConstantBuffer{gpu.WrapConstantBuffer(buf)}}
	}
	for _, n := range vertex {
		add(n, true)
	}
	for _, n := range pixel {
		add(n, false)
	}
	return s
}

// VertexShader implements gpu.ShaderSet.
func (s *Shaders) VertexShader(name string) (gpu.Shader, error) {
	sh, ok := s.shaders[name]
	if !ok || !sh.vertex {
		return nil, fmt.Errorf("%w: %s", gpu.ErrShaderNotFound, name)
	}
	return sh, nil
}

// PixelShader implements gpu.ShaderSet.
func (s *Shaders) PixelShader(name string) (gpu.Shader, error) {
	sh, ok := s.shaders[name]
	if !ok || sh.vertex {
		return nil, fmt.Errorf("%w: %s", gpu.ErrShaderNotFound, name)
	}
	return sh, nil
}

// Get returns the named fake shader, or nil.
func (s *Shaders) Get(name string) *Shader {
	return s.shaders[name]
}
