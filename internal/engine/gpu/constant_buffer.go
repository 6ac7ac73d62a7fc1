package gpu

import (
	"encoding/binary"
	"fmt"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-fx/internal/engine/gpu/threadid"
	"github.com/Faultbox/midgard-fx/internal/logger"
)

// ConstantBuffer is a fixed-size GPU block written from the CPU and bound to
// shader stages. It is dirty between a successful update and the next bind.
type ConstantBuffer struct {
	buf   Buffer
	dirty bool
}

// NewConstantBuffer creates a zeroed constant buffer of size bytes.
func NewConstantBuffer(dev Device, size int) (*ConstantBuffer, error) {
	buf, err := dev.CreateConstantBuffer(size)
	if err != nil {
		return nil, fmt.Errorf("creating constant buffer (%d bytes): %w", size, err)
	}
	return &ConstantBuffer{buf: buf}, nil
}

// WrapConstantBuffer adopts an existing buffer.
func WrapConstantBuffer(buf Buffer) *ConstantBuffer {
	return &ConstantBuffer{buf: buf}
}

// Update encodes value (a fixed-size struct of float32/int32 fields and
// arrays) little-endian into the buffer. If the buffer cannot be mapped or
// the value does not fit, the update is skipped, the previous GPU contents
// stay in place and Update returns false.
func (cb *ConstantBuffer) Update(ctx Context, value any) bool {
	checkOwnerThread(ctx)

	size := binary.Size(value)
	if size < 0 || size > cb.buf.Len() {
		logger.Named(logger.GPU).Warn("constant buffer update does not fit",
			zap.Int("value_size", size),
			zap.Int("buffer_size", cb.buf.Len()),
		)
		return false
	}

	mem, err := ctx.Map(cb.buf)
	if err != nil {
		logger.Named(logger.GPU).Debug("constant buffer map failed, keeping previous contents", zap.Error(err))
		return false
	}
	defer ctx.Unmap(cb.buf)

	if _, err := binary.Encode(mem, binary.LittleEndian, value); err != nil {
		logger.Named(logger.GPU).Warn("constant buffer encode failed", zap.Error(err))
		return false
	}

	cb.dirty = true
	return true
}

// UpdateBytes copies raw bytes into the start of the buffer.
func (cb *ConstantBuffer) UpdateBytes(ctx Context, data []byte) bool {
	checkOwnerThread(ctx)

	if len(data) > cb.buf.Len() {
		return false
	}
	mem, err := ctx.Map(cb.buf)
	if err != nil {
		logger.Named(logger.GPU).Debug("constant buffer map failed, keeping previous contents", zap.Error(err))
		return false
	}
	copy(mem, data)
	ctx.Unmap(cb.buf)

	cb.dirty = true
	return true
}

// Bind binds the buffer to stage at slot and clears the dirty flag.
func (cb *ConstantBuffer) Bind(ctx Context, stage Stage, slot int) {
	ctx.BindConstantBuffer(stage, slot, cb.buf)
	cb.dirty = false
}

// Dirty reports whether the buffer was updated since it was last bound.
func (cb *ConstantBuffer) Dirty() bool {
	return cb.dirty
}

// Size returns the buffer size in bytes.
func (cb *ConstantBuffer) Size() int {
	return cb.buf.Len()
}

// Buffer returns the underlying GPU buffer.
func (cb *ConstantBuffer) Buffer() Buffer {
	return cb.buf
}

// Release frees the GPU buffer.
func (cb *ConstantBuffer) Release() error {
	return cb.buf.Release()
}

// checkOwnerThread warns when a buffer is written from a thread that does not
// own the context. The write still goes through.
func checkOwnerThread(ctx Context) {
	if !ownerThreadChecks {
		return
	}
	owner := ctx.OwnerThread()
	if owner == 0 {
		return
	}
	if current := threadid.Current(); current != 0 && current != owner {
		logger.Named(logger.GPU).Warn("constant buffer updated from a worker thread",
			zap.Int64("thread", current),
			zap.Int64("render_thread", owner),
		)
	}
}
