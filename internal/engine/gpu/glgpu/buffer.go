package glgpu

import (
	"github.com/go-gl/gl/v4.1-core/gl"
)

// Buffer is a uniform buffer with a CPU copy that is uploaded on Unmap.
type Buffer struct {
	dev    *Device
	data   []byte
	obj    glObject
	mapped bool
}

// Len implements gpu.Buffer.
func (b *Buffer) Len() int { return len(b.data) }

// Release implements gpu.Resource.
func (b *Buffer) Release() error {
	return b.obj.release(b.dev, func(name uint32) {
		gl.DeleteBuffers(1, &name)
	})
}

func (b *Buffer) glName() uint32 {
	return b.obj.get(func() uint32 {
		var ubo uint32
		gl.GenBuffers(1, &ubo)
		gl.BindBuffer(gl.UNIFORM_BUFFER, ubo)
		gl.BufferData(gl.UNIFORM_BUFFER, cap(b.data), nil, gl.DYNAMIC_DRAW)
		gl.BindBuffer(gl.UNIFORM_BUFFER, 0)
		return ubo
	})
}

// upload copies the CPU contents to the GL buffer.
func (b *Buffer) upload() {
	ubo := b.glName()
	if ubo == 0 {
		return
	}
	all := b.data[:cap(b.data)]
	gl.BindBuffer(gl.UNIFORM_BUFFER, ubo)
	gl.BufferSubData(gl.UNIFORM_BUFFER, 0, len(all), gl.Ptr(all))
	gl.BindBuffer(gl.UNIFORM_BUFFER, 0)
}
