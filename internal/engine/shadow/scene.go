// Package shadow renders omnidirectional depth cubemaps for point lights and
// keeps the per-light geometry caches that make re-rendering cheap.
package shadow

import (
	"slices"

	"github.com/Faultbox/midgard-fx/internal/engine/gpu"
	"github.com/Faultbox/midgard-fx/internal/engine/world"
	"github.com/Faultbox/midgard-fx/pkg/math"
)

// AllFaces as CubeRequest.Face renders every face in one pass.
const AllFaces = -1

// Light is what a shadow state reads from its point light. Implementations
// must be safe to call from worker goroutines.
type Light interface {
	Position() math.Vec3
	Color() [3]float32
	Range() float32
	Indoor() bool
}

// VobList is a cached list of vobs in a light's range.
type VobList []*world.Vob

// Contains reports whether v is in the list.
func (l VobList) Contains(v *world.Vob) bool {
	return slices.Contains(l, v)
}

// CubeRequest describes one shadow cube render.
type CubeRequest struct {
	Position math.Vec3
	Radius   float32
	Target   gpu.DepthCubemap
	Face     int              // AllFaces or 0..5
	Depth    gpu.DepthStencil // view to render into
	Indoor   bool

	// ExcludeSkinned leaves animated meshes out of the render.
	ExcludeSkinned bool

	// Vob caches are filled by the scene when empty and reused when not.
	// Nil means the scene must not cache.
	VobCache     *VobList
	SkinnedCache *VobList

	// WorldCache is the light's static geometry. Nil means the scene
	// collects the sections in range itself.
	WorldCache map[world.TileKey]*world.MeshInfo
}

// CameraReplacement overrides the scene camera for a per-face render.
type CameraReplacement struct {
	Position   math.Vec3
	View       math.Mat4
	Projection math.Mat4
}

// Scene draws shadow casters. It is called on the render thread with the
// world resource lock held.
type Scene interface {
	RenderShadowCube(req CubeRequest) error
	CameraReplacement() *CameraReplacement
	SetCameraReplacement(cr *CameraReplacement)
}
