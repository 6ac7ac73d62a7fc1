package math

import "github.com/go-gl/mathgl/mgl32"

// Mat4 is a column-major 4x4 matrix, the layout glUniformMatrix4fv and
// std140 blocks expect without transposing. Arithmetic is delegated to
// mgl32.
type Mat4 mgl32.Mat4

// Vec4 is a homogeneous vector.
type Vec4 = mgl32.Vec4

func (v Vec3) mgl() mgl32.Vec3 { return mgl32.Vec3{v.X, v.Y, v.Z} }

func fromMGL(v mgl32.Vec3) Vec3 { return Vec3{v[0], v[1], v[2]} }

// Identity returns an identity matrix.
func Identity() Mat4 {
	return Mat4(mgl32.Ident4())
}

// Perspective returns a right-handed projection mapping near and far to
// NDC depth -1 and 1. fovY is in radians.
func Perspective(fovY, aspect, near, far float32) Mat4 {
	return Mat4(mgl32.Perspective(fovY, aspect, near, far))
}

// LookAt returns a view matrix looking from eye towards center.
func LookAt(eye, center, up Vec3) Mat4 {
	return Mat4(mgl32.LookAtV(eye.mgl(), center.mgl(), up.mgl()))
}

// Translate returns a translation by t.
func Translate(t Vec3) Mat4 {
	return Mat4(mgl32.Translate3D(t.X, t.Y, t.Z))
}

// Scale returns a per-axis scale by s.
func Scale(s Vec3) Mat4 {
	return Mat4(mgl32.Scale3D(s.X, s.Y, s.Z))
}

// Mul returns m * other, so other is applied first.
func (m Mat4) Mul(other Mat4) Mat4 {
	return Mat4(mgl32.Mat4(m).Mul4(mgl32.Mat4(other)))
}

// Transpose returns the transposed matrix, used for shaders that declare
// row_major blocks.
func (m Mat4) Transpose() Mat4 {
	return Mat4(mgl32.Mat4(m).Transpose())
}

// MulVec4 returns m * v.
func (m Mat4) MulVec4(v Vec4) Vec4 {
	return mgl32.Mat4(m).Mul4x1(v)
}

// TransformPoint transforms p with w=1 and divides by the resulting w.
func (m Mat4) TransformPoint(p [3]float32) [3]float32 {
	r := m.MulVec4(Vec4{p[0], p[1], p[2], 1})
	if r[3] != 0 && r[3] != 1 {
		return [3]float32{r[0] / r[3], r[1] / r[3], r[2] / r[3]}
	}
	return [3]float32{r[0], r[1], r[2]}
}

// TransformVec3 is TransformPoint for a Vec3.
func (m Mat4) TransformVec3(v Vec3) Vec3 {
	p := m.TransformPoint([3]float32{v.X, v.Y, v.Z})
	return fromMGL(mgl32.Vec3(p))
}

// Ptr returns the first element for GL uniform uploads.
func (m *Mat4) Ptr() *float32 {
	return &m[0]
}
