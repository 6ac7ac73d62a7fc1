package world

import (
	gomath "math"

	"github.com/Faultbox/midgard-fx/pkg/math"
)

// AABB represents an axis-aligned bounding box.
type AABB struct {
	Min [3]float32
	Max [3]float32
}

// Center returns the center point of the AABB.
func (b AABB) Center() math.Vec3 {
	return math.Vec3{
		X: (b.Min[0] + b.Max[0]) / 2,
		Y: (b.Min[1] + b.Max[1]) / 2,
		Z: (b.Min[2] + b.Max[2]) / 2,
	}
}

// Radius returns the distance from center to corner (half-diagonal).
func (b AABB) Radius() float32 {
	dx := (b.Max[0] - b.Min[0]) / 2
	dy := (b.Max[1] - b.Min[1]) / 2
	dz := (b.Max[2] - b.Min[2]) / 2
	return float32(gomath.Sqrt(float64(dx*dx + dy*dy + dz*dz)))
}

// IntersectsSphere reports whether the box touches a sphere.
func (b AABB) IntersectsSphere(center math.Vec3, radius float32) bool {
	c := [3]float32{center.X, center.Y, center.Z}
	var d2 float32
	for i := 0; i < 3; i++ {
		switch {
		case c[i] < b.Min[i]:
			d := b.Min[i] - c[i]
			d2 += d * d
		case c[i] > b.Max[i]:
			d := c[i] - b.Max[i]
			d2 += d * d
		}
	}
	return d2 <= radius*radius
}

// Extend grows the box to include p.
func (b AABB) Extend(p math.Vec3) AABB {
	pt := [3]float32{p.X, p.Y, p.Z}
	for i := 0; i < 3; i++ {
		b.Min[i] = min(b.Min[i], pt[i])
		b.Max[i] = max(b.Max[i], pt[i])
	}
	return b
}

// BoxAround returns a cube of half-size h around p.
func BoxAround(p math.Vec3, h float32) AABB {
	return AABB{
		Min: [3]float32{p.X - h, p.Y - h, p.Z - h},
		Max: [3]float32{p.X + h, p.Y + h, p.Z + h},
	}
}
