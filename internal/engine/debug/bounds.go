// Package debug provides debug visualization utilities.
package debug

import (
	"github.com/Faultbox/midgard-fx/internal/engine/world"
	"github.com/Faultbox/midgard-fx/pkg/math"
)

// WireframeVertexCount is the number of vertices for a box wireframe (12 edges x 2).
const WireframeVertexCount = 24

// MarkerSize is the half extent of the box drawn at a light position.
const MarkerSize = 1.5

// AppendWireframe appends line vertices for the edges of b, grown by
// padding on all sides. Format is [x, y, z] per vertex.
func AppendWireframe(dst []float32, b world.AABB, padding float32) []float32 {
	minX, minY, minZ := b.Min[0]-padding, b.Min[1]-padding, b.Min[2]-padding
	maxX, maxY, maxZ := b.Max[0]+padding, b.Max[1]+padding, b.Max[2]+padding

	return append(dst,
		// Bottom face
		minX, minY, minZ, maxX, minY, minZ,
		maxX, minY, minZ, maxX, minY, maxZ,
		maxX, minY, maxZ, minX, minY, maxZ,
		minX, minY, maxZ, minX, minY, minZ,
		// Top face
		minX, maxY, minZ, maxX, maxY, minZ,
		maxX, maxY, minZ, maxX, maxY, maxZ,
		maxX, maxY, maxZ, minX, maxY, maxZ,
		minX, maxY, maxZ, minX, maxY, minZ,
		// Vertical edges
		minX, minY, minZ, minX, maxY, minZ,
		maxX, minY, minZ, maxX, maxY, minZ,
		maxX, minY, maxZ, maxX, maxY, maxZ,
		minX, minY, maxZ, minX, maxY, maxZ,
	)
}

// AppendMarker appends a small wireframe box centered on p.
func AppendMarker(dst []float32, p math.Vec3) []float32 {
	return AppendWireframe(dst, world.BoxAround(p, MarkerSize), 0)
}
