package gpu_test

import (
	"encoding/binary"
	"math"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Faultbox/midgard-fx/internal/engine/gpu"
	"github.com/Faultbox/midgard-fx/internal/engine/gpu/gputest"
	"github.com/Faultbox/midgard-fx/internal/engine/gpu/threadid"
	"github.com/Faultbox/midgard-fx/internal/logger"
)

type settingsBlock struct {
	LumWhite   float32
	MiddleGray float32
	Threshold  float32
	Strength   float32
}

func observeLogs(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	t.Cleanup(logger.Swap(zap.New(core)))
	return logs
}

func TestConstantBufferUpdateAndBind(t *testing.T) {
	dev := gputest.NewDevice()
	ctx := gputest.NewContext(nil, nil)

	cb, err := gpu.NewConstantBuffer(dev, 16)
	require.NoError(t, err)
	assert.False(t, cb.Dirty(), "new buffer starts clean")

	ok := cb.Update(ctx, settingsBlock{LumWhite: 11.2, MiddleGray: 0.18, Threshold: 0.9, Strength: 1})
	require.True(t, ok)
	assert.True(t, cb.Dirty(), "update marks the buffer dirty")

	data := cb.Buffer().(*gputest.Buffer).Data
	assert.Equal(t, float32(0.18), math.Float32frombits(binary.LittleEndian.Uint32(data[4:8])))

	cb.Bind(ctx, gpu.StagePixel, 0)
	assert.False(t, cb.Dirty(), "bind clears the dirty flag")
	assert.Equal(t, cb.Buffer(), ctx.BoundConstantBuffer(gpu.StagePixel, 0))
}

func TestConstantBufferMapFailureKeepsContents(t *testing.T) {
	dev := gputest.NewDevice()
	ctx := gputest.NewContext(nil, nil)

	cb, err := gpu.NewConstantBuffer(dev, 16)
	require.NoError(t, err)
	require.True(t, cb.Update(ctx, settingsBlock{LumWhite: 1}))
	cb.Bind(ctx, gpu.StagePixel, 0)

	ctx.MapErr = gputest.ErrInjected
	assert.False(t, cb.Update(ctx, settingsBlock{LumWhite: 2}))
	assert.False(t, cb.Dirty(), "failed update must not mark the buffer dirty")

	data := cb.Buffer().(*gputest.Buffer).Data
	assert.Equal(t, float32(1), math.Float32frombits(binary.LittleEndian.Uint32(data[0:4])), "previous contents stay in place")
}

func TestConstantBufferRejectsOversizedValue(t *testing.T) {
	dev := gputest.NewDevice()
	ctx := gputest.NewContext(nil, nil)

	cb, err := gpu.NewConstantBuffer(dev, 8)
	require.NoError(t, err)

	assert.False(t, cb.Update(ctx, settingsBlock{}))
	assert.Empty(t, ctx.Filter(gputest.OpMap), "oversized value must not map the buffer")
}

func TestConstantBufferUpdateBytes(t *testing.T) {
	dev := gputest.NewDevice()
	ctx := gputest.NewContext(nil, nil)

	cb, err := gpu.NewConstantBuffer(dev, 4)
	require.NoError(t, err)

	assert.True(t, cb.UpdateBytes(ctx, []byte{1, 2, 3, 4}))
	assert.False(t, cb.UpdateBytes(ctx, []byte{1, 2, 3, 4, 5}))
	assert.Equal(t, []byte{1, 2, 3, 4}, cb.Buffer().(*gputest.Buffer).Data)
}

func TestConstantBufferWarnsOnForeignThread(t *testing.T) {
	if threadid.Current() == 0 {
		t.Skip("thread ids unavailable on this platform")
	}
	logs := observeLogs(t)

	dev := gputest.NewDevice()
	ctx := gputest.NewContext(nil, nil)
	cb, err := gpu.NewConstantBuffer(dev, 16)
	require.NoError(t, err)

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	// Owned by this thread: no warning
	ctx.Owner = threadid.Current()
	require.True(t, cb.Update(ctx, settingsBlock{}))
	assert.Zero(t, logs.FilterMessage("constant buffer updated from a worker thread").Len())

	// Owned by another thread: warning, but the write still happens
	ctx.Owner = threadid.Current() + 1
	require.True(t, cb.Update(ctx, settingsBlock{LumWhite: 3}))
	assert.Equal(t, 1, logs.FilterMessage("constant buffer updated from a worker thread").Len())
	assert.True(t, cb.Dirty())
}

func TestFullMipChain(t *testing.T) {
	tests := []struct {
		size int
		want int
	}{
		{1, 1},
		{2, 2},
		{512, 10},
		{1024, 11},
	}
	for _, tt := range tests {
		if got := gpu.FullMipChain(tt.size); got != tt.want {
			t.Errorf("FullMipChain(%d) = %d, want %d", tt.size, got, tt.want)
		}
	}
}
