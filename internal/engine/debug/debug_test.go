package debug

import (
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/midgard-fx/internal/engine/world"
	"github.com/Faultbox/midgard-fx/pkg/math"
)

func TestAppendWireframe(t *testing.T) {
	b := world.AABB{Min: [3]float32{0, 0, 0}, Max: [3]float32{2, 4, 6}}
	v := AppendWireframe(nil, b, 1)
	require.Len(t, v, WireframeVertexCount*3)

	for i := 0; i < len(v); i += 3 {
		assert.Contains(t, []float32{-1, 3}, v[i], "x")
		assert.Contains(t, []float32{-1, 5}, v[i+1], "y")
		assert.Contains(t, []float32{-1, 7}, v[i+2], "z")
	}

	// Each edge changes exactly one axis
	for i := 0; i < len(v); i += 6 {
		changed := 0
		for a := 0; a < 3; a++ {
			if v[i+a] != v[i+3+a] {
				changed++
			}
		}
		assert.Equal(t, 1, changed, "edge %d", i/6)
	}
}

func TestAppendMarkerAppends(t *testing.T) {
	v := AppendMarker(make([]float32, 3), math.Vec3{X: 10})
	require.Len(t, v, 3+WireframeVertexCount*3)
	assert.Equal(t, float32(10-MarkerSize), v[3])
}

func TestFlipRows(t *testing.T) {
	// Two rows, bottom row red, top row green
	pixels := []byte{
		255, 0, 0, 255,
		0, 255, 0, 255,
	}
	img := FlipRows(pixels, 1, 2)
	r, g, _, _ := img.At(0, 0).RGBA()
	assert.Zero(t, r)
	assert.NotZero(t, g, "first image row is the last GL row")
}

func TestCaptureFromPixels(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "shots")
	sc := NewScreenshotCapture(dir, "frame")
	sc.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

	_, err := sc.CaptureFromPixels(make([]byte, 7), 2, 2)
	assert.Error(t, err)

	name, err := sc.CaptureFromPixels(make([]byte, 2*2*4), 2, 2)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "frame_2024-05-01_12-00-00.000.png"), name)

	f, err := os.Open(name)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 2, img.Bounds().Dx())
}
