package scene

import (
	"unsafe"

	"github.com/go-gl/gl/v4.1-core/gl"

	"github.com/Faultbox/midgard-fx/internal/engine/debug"
	"github.com/Faultbox/midgard-fx/internal/engine/lighting"
	"github.com/Faultbox/midgard-fx/internal/engine/world"
	"github.com/Faultbox/midgard-fx/pkg/math"
)

var (
	staticBoundsColor  = [3]float32{0.2, 1.5, 0.2}
	skinnedBoundsColor = [3]float32{1.5, 1.5, 0.2}
)

// lineBatch is a streamed vertex buffer for the bounds overlay.
type lineBatch struct {
	program  uint32
	viewProj int32
	color    int32

	vao, vbo uint32
	capacity int // floats
	scratch  []float32
}

func (b *lineBatch) init(program uint32, viewProj, color int32) {
	b.program, b.viewProj, b.color = program, viewProj, color
	gl.GenVertexArrays(1, &b.vao)
	gl.GenBuffers(1, &b.vbo)
	gl.BindVertexArray(b.vao)
	gl.BindBuffer(gl.ARRAY_BUFFER, b.vbo)
	gl.VertexAttribPointerWithOffset(0, 3, gl.FLOAT, false, 3*4, 0)
	gl.EnableVertexAttribArray(0)
	gl.BindVertexArray(0)
}

// draw uploads vertices and draws them as lines.
func (b *lineBatch) draw(vertices []float32, color [3]float32) {
	if len(vertices) == 0 {
		return
	}
	gl.BindVertexArray(b.vao)
	gl.BindBuffer(gl.ARRAY_BUFFER, b.vbo)
	if len(vertices) > b.capacity {
		b.capacity = len(vertices)
		gl.BufferData(gl.ARRAY_BUFFER, b.capacity*4, nil, gl.STREAM_DRAW)
	}
	gl.BufferSubData(gl.ARRAY_BUFFER, 0, len(vertices)*4, unsafe.Pointer(&vertices[0]))
	gl.Uniform3f(b.color, color[0], color[1], color[2])
	gl.DrawArrays(gl.LINES, 0, int32(len(vertices)/3))
}

// drawBounds outlines vobs and marks every light in its own color.
func (b *lineBatch) drawBounds(viewProj math.Mat4, static, skinned []*world.Vob, lights []*lighting.PointLight) {
	gl.UseProgram(b.program)
	gl.UniformMatrix4fv(b.viewProj, 1, false, viewProj.Ptr())

	b.scratch = boundsLines(b.scratch[:0], static)
	b.draw(b.scratch, staticBoundsColor)
	b.scratch = boundsLines(b.scratch[:0], skinned)
	b.draw(b.scratch, skinnedBoundsColor)

	for _, l := range lights {
		b.scratch = debug.AppendMarker(b.scratch[:0], l.Position())
		b.draw(b.scratch, l.Color())
	}
	gl.BindVertexArray(0)
}

func boundsLines(dst []float32, vobs []*world.Vob) []float32 {
	for _, v := range vobs {
		dst = debug.AppendWireframe(dst, v.Bounds, 0.1)
	}
	return dst
}

func (b *lineBatch) destroy() {
	if b.vbo != 0 {
		gl.DeleteBuffers(1, &b.vbo)
		b.vbo = 0
	}
	if b.vao != 0 {
		gl.DeleteVertexArrays(1, &b.vao)
		b.vao = 0
	}
	if b.program != 0 {
		gl.DeleteProgram(b.program)
		b.program = 0
	}
}
