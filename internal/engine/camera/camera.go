// Package camera provides the viewer's orbit camera.
package camera

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/midgard-fx/internal/engine/world"
	"github.com/Faultbox/midgard-fx/pkg/math"
)

// Lens is a perspective projection.
type Lens struct {
	FovY float32 // radians
	Near float32
	Far  float32
}

// Orbit circles Target at Distance. Pitch is the elevation above the
// ground plane and Yaw the turn around +Y, both in radians.
type Orbit struct {
	Target   math.Vec3
	Distance float32
	Pitch    float32
	Yaw      float32
	Lens     Lens

	MinDistance float32
	MaxDistance float32
	MinPitch    float32
	MaxPitch    float32

	DragRate float32 // radians per pixel
	ZoomRate float32 // fraction of Distance per wheel step
	PanRate  float32 // fraction of Distance per unit of input
}

// NewOrbit returns a camera sized for a few world sections. Far covers
// the scene draw distance from the widest zoom.
func NewOrbit() *Orbit {
	return &Orbit{
		Distance:    200,
		Pitch:       0.5,
		Lens:        Lens{FovY: mgl32.DegToRad(45), Near: 1, Far: 5000},
		MinDistance: 20,
		MaxDistance: 2000,
		MinPitch:    0.1,
		MaxPitch:    1.5,
		DragRate:    0.005,
		ZoomRate:    0.1,
		PanRate:     0.01,
	}
}

// basis is the yaw rotation; its -Z column is the ground-plane forward.
func (o *Orbit) basis() mgl32.Mat3 {
	return mgl32.Rotate3DY(o.Yaw)
}

// Eye returns the camera position in world space.
func (o *Orbit) Eye() math.Vec3 {
	off := o.basis().Mul3(mgl32.Rotate3DX(-o.Pitch)).Mul3x1(mgl32.Vec3{0, 0, o.Distance})
	return o.Target.Add(math.Vec3{X: off[0], Y: off[1], Z: off[2]})
}

// View returns the world to view transform.
func (o *Orbit) View() math.Mat4 {
	return math.LookAt(o.Eye(), o.Target, math.AxisPosY)
}

// Projection returns the lens projection for a viewport aspect. A
// non-positive aspect, as seen from a minimized window, is treated as 1.
func (o *Orbit) Projection(aspect float32) math.Mat4 {
	if aspect <= 0 {
		aspect = 1
	}
	return math.Perspective(o.Lens.FovY, aspect, o.Lens.Near, o.Lens.Far)
}

// ViewProjection returns Projection * View.
func (o *Orbit) ViewProjection(aspect float32) math.Mat4 {
	return o.Projection(aspect).Mul(o.View())
}

// Drag turns the camera by a mouse delta in pixels.
func (o *Orbit) Drag(dx, dy float32) {
	o.Yaw -= dx * o.DragRate
	o.Pitch = mgl32.Clamp(o.Pitch+dy*o.DragRate, o.MinPitch, o.MaxPitch)
}

// Zoom moves towards the target by wheel steps, proportionally to the
// current distance.
func (o *Orbit) Zoom(steps float32) {
	o.Distance = mgl32.Clamp(o.Distance*(1-steps*o.ZoomRate), o.MinDistance, o.MaxDistance)
}

// Pan slides the target on the ground plane relative to the view
// direction. Speed grows with distance.
func (o *Orbit) Pan(forward, right float32) {
	b := o.basis()
	dir := b.Mul3x1(mgl32.Vec3{0, 0, -1}).Mul(forward).Add(b.Mul3x1(mgl32.Vec3{1, 0, 0}).Mul(right))
	dir = dir.Mul(o.Distance * o.PanRate)
	o.Target = o.Target.Add(math.Vec3{X: dir[0], Z: dir[2]})
}

// Frame centers on b and backs off far enough to see its footprint,
// looking down at about 35 degrees.
func (o *Orbit) Frame(b world.AABB) {
	o.Target = b.Center()
	size := max(b.Max[0]-b.Min[0], b.Max[2]-b.Min[2])
	o.Distance = mgl32.Clamp(size*0.8, o.MinDistance, o.MaxDistance)
	o.Pitch = 0.6
	o.Yaw = 0
}
