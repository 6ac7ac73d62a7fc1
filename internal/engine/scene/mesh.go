package scene

import (
	"unsafe"

	"github.com/go-gl/gl/v4.1-core/gl"

	"github.com/Faultbox/midgard-fx/pkg/math"
)

// vertexFloats is position xyz plus normal xyz.
const vertexFloats = 6

// mesh is uploaded, flat shaded geometry.
type mesh struct {
	vao   uint32
	vbo   uint32
	count int32
}

// flatten expands indexed triangles into interleaved position/normal
// vertices with one face normal per triangle.
func flatten(vertices []float32, indices []uint32) []float32 {
	out := make([]float32, 0, len(indices)*vertexFloats)
	at := func(i uint32) math.Vec3 {
		return math.Vec3{X: vertices[i*3], Y: vertices[i*3+1], Z: vertices[i*3+2]}
	}
	for t := 0; t+2 < len(indices); t += 3 {
		a, b, c := at(indices[t]), at(indices[t+1]), at(indices[t+2])
		n := b.Sub(a).Cross(c.Sub(a)).Normalize()
		for _, p := range []math.Vec3{a, b, c} {
			out = append(out, p.X, p.Y, p.Z, n.X, n.Y, n.Z)
		}
	}
	return out
}

func newMesh(vertices []float32, indices []uint32) *mesh {
	data := flatten(vertices, indices)
	m := &mesh{count: int32(len(data) / vertexFloats)}
	if m.count == 0 {
		return m
	}

	gl.GenVertexArrays(1, &m.vao)
	gl.BindVertexArray(m.vao)

	gl.GenBuffers(1, &m.vbo)
	gl.BindBuffer(gl.ARRAY_BUFFER, m.vbo)
	gl.BufferData(gl.ARRAY_BUFFER, len(data)*4, unsafe.Pointer(&data[0]), gl.STATIC_DRAW)

	stride := int32(vertexFloats * 4)
	// Position (location 0)
	gl.VertexAttribPointerWithOffset(0, 3, gl.FLOAT, false, stride, 0)
	gl.EnableVertexAttribArray(0)
	// Normal (location 1)
	gl.VertexAttribPointerWithOffset(1, 3, gl.FLOAT, false, stride, 3*4)
	gl.EnableVertexAttribArray(1)

	gl.BindVertexArray(0)
	return m
}

func (m *mesh) draw() {
	if m.count == 0 {
		return
	}
	gl.BindVertexArray(m.vao)
	gl.DrawArrays(gl.TRIANGLES, 0, m.count)
}

func (m *mesh) destroy() {
	if m.vbo != 0 {
		gl.DeleteBuffers(1, &m.vbo)
		m.vbo = 0
	}
	if m.vao != 0 {
		gl.DeleteVertexArrays(1, &m.vao)
		m.vao = 0
	}
}
