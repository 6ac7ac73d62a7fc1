package shadow

import (
	gomath "math"

	"github.com/Faultbox/midgard-fx/pkg/math"
)

const (
	// NearPlane is the fixed near plane of every cubemap face.
	NearPlane = 15
	// farFactor times the light range gives the far plane.
	farFactor = 2
	// radiusFactor times the light range gives the render radius, so
	// geometry just outside the range still casts into the faces.
	radiusFactor = 1.1
)

// FaceCount is the number of cubemap faces.
const FaceCount = 6

// Face directions and up vectors in +X,-X,+Y,-Y,+Z,-Z order. The vertical
// faces use Z as up, the others -Y, matching the cubemap face layout.
var (
	faceDirs = [FaceCount]math.Vec3{
		math.AxisPosX, math.AxisNegX,
		math.AxisPosY, math.AxisNegY,
		math.AxisPosZ, math.AxisNegZ,
	}
	faceUps = [FaceCount]math.Vec3{
		math.AxisNegY, math.AxisNegY,
		math.AxisPosZ, math.AxisNegZ,
		math.AxisNegY, math.AxisNegY,
	}
)

// FaceDirection returns the look direction of face i.
func FaceDirection(i int) math.Vec3 {
	return faceDirs[i]
}

// CubeMatrices are the view and projection matrices of one cubemap render.
type CubeMatrices struct {
	View       [FaceCount]math.Mat4
	Projection math.Mat4
	Near       float32
	Far        float32
}

// ComputeCubeMatrices builds the six face views around pos and the shared
// 90 degree projection reaching twice the light range.
func ComputeCubeMatrices(pos math.Vec3, lightRange float32) CubeMatrices {
	m := CubeMatrices{
		Near: NearPlane,
		Far:  lightRange * farFactor,
	}
	for i := range m.View {
		m.View[i] = math.LookAt(pos, pos.Add(faceDirs[i]), faceUps[i])
	}
	m.Projection = math.Perspective(gomath.Pi/2, 1, m.Near, m.Far)
	return m
}

// RenderRadius returns the radius of geometry drawn into a light's cubemap.
func RenderRadius(lightRange float32) float32 {
	return lightRange * radiusFactor
}

// ViewProj returns projection * view for face i.
func (m CubeMatrices) ViewProj(i int) math.Mat4 {
	return m.Projection.Mul(m.View[i])
}

// cubeConstants is the geometry shader block. Matrices are stored
// transposed for a row_major block.
type cubeConstants struct {
	View     [FaceCount]math.Mat4
	ViewProj [FaceCount]math.Mat4
}

func (m CubeMatrices) constants() cubeConstants {
	var c cubeConstants
	for i := range m.View {
		c.View[i] = m.View[i].Transpose()
		c.ViewProj[i] = m.ViewProj(i).Transpose()
	}
	return c
}
