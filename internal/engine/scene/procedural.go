package scene

import (
	"fmt"
	gomath "math"

	"github.com/Faultbox/midgard-fx/internal/engine/world"
	"github.com/Faultbox/midgard-fx/pkg/math"
)

// Layout describes the generated demo world: a square grid of floor
// sections with pillars, crates on the floor and walking characters.
type Layout struct {
	Tiles       int     // sections per side
	Pillars     int     // pillars per section side
	PillarSize  float32 // half-width of a pillar
	PillarTall  float32
	CrateSize   float32 // half-size of a crate
	CratesPer   int     // crates per section
	Walkers     int     // skinned vobs
	WalkerSize  float32 // half-size of a walker
	SectionSize float32
}

// DefaultLayout returns a 4x4 section world.
func DefaultLayout() Layout {
	return Layout{
		Tiles:       4,
		Pillars:     2,
		PillarSize:  4,
		PillarTall:  40,
		CrateSize:   3,
		CratesPer:   2,
		Walkers:     4,
		WalkerSize:  2.5,
		SectionSize: world.DefaultSectionSize,
	}
}

// Extent returns the bounds of the generated world.
func (l Layout) Extent() world.AABB {
	half := float32(l.Tiles) * l.SectionSize / 2
	return world.AABB{
		Min: [3]float32{-half, 0, -half},
		Max: [3]float32{half, l.PillarTall, half},
	}
}

// Populate fills w with the layout's sections and vobs and returns the
// walkers so the caller can animate them.
func Populate(w *world.Sections, l Layout) []*world.Vob {
	size := w.SectionSize()
	first := -int32(l.Tiles / 2)

	for x := first; x < first+int32(l.Tiles); x++ {
		for z := first; z < first+int32(l.Tiles); z++ {
			key := world.TileKey{X: x, Z: z}
			w.AddSection(sectionMesh(key, size, l))

			origin := math.Vec3{X: float32(x) * size, Z: float32(z) * size}
			for i := 0; i < l.CratesPer; i++ {
				// Crates sit on the section's center line, between the pillars
				t := float32(i+1) / float32(l.CratesPer+1)
				p := origin.Add(math.Vec3{X: size / 2, Y: l.CrateSize, Z: t * size})
				w.AddVob(&world.Vob{
					Name:     fmt.Sprintf("crate_%d_%d_%d", x, z, i),
					Position: p,
					Bounds:   world.BoxAround(p, l.CrateSize),
				})
			}
		}
	}

	walkers := make([]*world.Vob, 0, l.Walkers)
	for i := 0; i < l.Walkers; i++ {
		p := WalkerPosition(l, i, 0)
		walkers = append(walkers, w.AddVob(&world.Vob{
			Name:     fmt.Sprintf("walker_%d", i),
			Position: p,
			Bounds:   world.BoxAround(p, l.WalkerSize),
			Skinned:  true,
		}))
	}
	return walkers
}

// WalkerPosition returns where walker i is at time t (seconds). Walkers
// circle the world center on rings of growing radius.
func WalkerPosition(l Layout, i int, t float32) math.Vec3 {
	radius := l.SectionSize * (0.5 + 0.4*float32(i))
	angle := t*0.3 + float32(i)*1.7
	return math.Vec3{
		X: radius * cos32(angle),
		Y: l.WalkerSize,
		Z: radius * sin32(angle),
	}
}

// sectionMesh builds a floor quad with a grid of pillars.
func sectionMesh(key world.TileKey, size float32, l Layout) *world.MeshInfo {
	x0 := float32(key.X) * size
	z0 := float32(key.Z) * size

	m := &world.MeshInfo{Key: key}
	m.Vertices = append(m.Vertices,
		x0, 0, z0,
		x0, 0, z0+size,
		x0+size, 0, z0+size,
		x0+size, 0, z0,
	)
	m.Indices = append(m.Indices, 0, 1, 2, 0, 2, 3)

	step := size / float32(l.Pillars+1)
	for i := 1; i <= l.Pillars; i++ {
		for j := 1; j <= l.Pillars; j++ {
			cx := x0 + float32(i)*step
			cz := z0 + float32(j)*step
			b := world.AABB{
				Min: [3]float32{cx - l.PillarSize, 0, cz - l.PillarSize},
				Max: [3]float32{cx + l.PillarSize, l.PillarTall, cz + l.PillarSize},
			}
			m.Vertices, m.Indices = appendBox(m.Vertices, m.Indices, b)
		}
	}

	m.Triangles = len(m.Indices) / 3
	m.Bounds = world.AABB{
		Min: [3]float32{x0, 0, z0},
		Max: [3]float32{x0 + size, l.PillarTall, z0 + size},
	}
	return m
}

// boxFaces lists the corner index of each box face, counter-clockwise
// seen from outside. Corner bits: 1 = max x, 2 = max y, 4 = max z.
var boxFaces = [6][4]uint32{
	{1, 3, 7, 5}, // +X
	{0, 4, 6, 2}, // -X
	{2, 6, 7, 3}, // +Y
	{0, 1, 5, 4}, // -Y
	{4, 5, 7, 6}, // +Z
	{0, 2, 3, 1}, // -Z
}

// appendBox adds the 12 triangles of b.
func appendBox(vertices []float32, indices []uint32, b world.AABB) ([]float32, []uint32) {
	base := uint32(len(vertices) / 3)
	for corner := 0; corner < 8; corner++ {
		x, y, z := b.Min[0], b.Min[1], b.Min[2]
		if corner&1 != 0 {
			x = b.Max[0]
		}
		if corner&2 != 0 {
			y = b.Max[1]
		}
		if corner&4 != 0 {
			z = b.Max[2]
		}
		vertices = append(vertices, x, y, z)
	}
	for _, f := range boxFaces {
		indices = append(indices,
			base+f[0], base+f[1], base+f[2],
			base+f[0], base+f[2], base+f[3],
		)
	}
	return vertices, indices
}

// unitBox is a box from -0.5 to 0.5, scaled per vob by boxModel.
func unitBox() ([]float32, []uint32) {
	return appendBox(nil, nil, world.AABB{
		Min: [3]float32{-0.5, -0.5, -0.5},
		Max: [3]float32{0.5, 0.5, 0.5},
	})
}

// boxModel maps the unit box onto b.
func boxModel(b world.AABB) math.Mat4 {
	size := math.Vec3{X: b.Max[0] - b.Min[0], Y: b.Max[1] - b.Min[1], Z: b.Max[2] - b.Min[2]}
	return math.Translate(b.Center()).Mul(math.Scale(size))
}

func cos32(a float32) float32 { return float32(gomath.Cos(float64(a))) }

func sin32(a float32) float32 { return float32(gomath.Sin(float64(a))) }
