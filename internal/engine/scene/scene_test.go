package scene

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/midgard-fx/internal/engine/shadow"
	"github.com/Faultbox/midgard-fx/internal/engine/world"
	"github.com/Faultbox/midgard-fx/pkg/math"
)

func TestPopulate(t *testing.T) {
	l := DefaultLayout()
	w := world.NewSections(l.SectionSize)
	walkers := Populate(w, l)

	sections, vobs := w.Len()
	assert.Equal(t, l.Tiles*l.Tiles, sections)
	assert.Equal(t, l.Tiles*l.Tiles*l.CratesPer+l.Walkers, vobs)

	require.Len(t, walkers, l.Walkers)
	ext := l.Extent()
	for _, v := range walkers {
		assert.True(t, v.Skinned)
		assert.NotZero(t, v.ID)
		assert.True(t, ext.IntersectsSphere(v.Position, 0), "%s outside the world", v.Name)
	}
}

func TestSectionMeshGeometry(t *testing.T) {
	l := DefaultLayout()
	m := sectionMesh(world.TileKey{X: 1, Z: -1}, 100, l)

	// Floor quad plus 12 triangles per pillar
	assert.Equal(t, 2+12*l.Pillars*l.Pillars, m.Triangles)
	assert.Equal(t, [3]float32{100, 0, -100}, m.Bounds.Min)
	assert.Equal(t, [3]float32{200, l.PillarTall, 0}, m.Bounds.Max)

	for i := 0; i < len(m.Vertices); i += 3 {
		p := math.Vec3{X: m.Vertices[i], Y: m.Vertices[i+1], Z: m.Vertices[i+2]}
		assert.True(t, m.Bounds.IntersectsSphere(p, 0), "vertex %v outside section bounds", p)
	}
}

func TestFlattenNormalsPointOutward(t *testing.T) {
	verts, idx := unitBox()
	data := flatten(verts, idx)
	require.Len(t, data, 36*vertexFloats)

	for i := 0; i < len(data); i += vertexFloats {
		p := math.Vec3{X: data[i], Y: data[i+1], Z: data[i+2]}
		n := math.Vec3{X: data[i+3], Y: data[i+4], Z: data[i+5]}
		assert.InDelta(t, 1, n.Length(), 1e-5)
		assert.Greater(t, p.Dot(n), float32(0), "normal %v at %v points inward", n, p)
	}
}

func TestFlattenFloorFacesUp(t *testing.T) {
	m := sectionMesh(world.TileKey{}, 100, Layout{Pillars: 0, PillarTall: 10})
	data := flatten(m.Vertices, m.Indices)
	require.Len(t, data, 6*vertexFloats)
	for i := 0; i < len(data); i += vertexFloats {
		assert.Equal(t, float32(1), data[i+4], "floor normal y")
	}
}

func TestBoxModelMapsUnitBox(t *testing.T) {
	b := world.AABB{Min: [3]float32{2, 0, -4}, Max: [3]float32{6, 10, 0}}
	m := boxModel(b)

	assert.Equal(t, [3]float32{2, 0, -4}, m.TransformPoint([3]float32{-0.5, -0.5, -0.5}))
	assert.Equal(t, [3]float32{6, 10, 0}, m.TransformPoint([3]float32{0.5, 0.5, 0.5}))
}

func TestWalkerPositionMoves(t *testing.T) {
	l := DefaultLayout()
	a := WalkerPosition(l, 0, 0)
	b := WalkerPosition(l, 0, 1)
	assert.NotEqual(t, a, b)
	assert.InDelta(t, a.Length()-a.Y, b.Length()-b.Y, 0.5, "walkers stay on their ring")
}

// casterWorld has one crate and one walker near the origin.
func casterWorld(t *testing.T) (*world.Sections, *world.Vob, *world.Vob) {
	t.Helper()
	w := world.NewSections(100)
	crate := w.AddVob(&world.Vob{Name: "crate", Position: math.Vec3{X: 10}, Bounds: world.BoxAround(math.Vec3{X: 10}, 2)})
	npc := w.AddVob(&world.Vob{Name: "npc", Position: math.Vec3{Z: 10}, Bounds: world.BoxAround(math.Vec3{Z: 10}, 2), Skinned: true})
	return w, crate, npc
}

func TestCollectCastersFillsAndReusesCaches(t *testing.T) {
	w, crate, npc := casterWorld(t)
	var vobs, skinned shadow.VobList
	req := shadow.CubeRequest{Radius: 55, VobCache: &vobs, SkinnedCache: &skinned}

	w.Enter()
	got := collectCasters(w, req)
	w.Leave()
	assert.ElementsMatch(t, []*world.Vob{crate, npc}, got)
	assert.Equal(t, shadow.VobList{crate}, vobs)
	assert.Equal(t, shadow.VobList{npc}, skinned)

	// Filled caches win over the world
	w.MoveVob(crate, math.Vec3{X: 500})
	w.Enter()
	got = collectCasters(w, req)
	w.Leave()
	assert.ElementsMatch(t, []*world.Vob{crate, npc}, got)
}

func TestCollectCastersExcludeSkinned(t *testing.T) {
	w, crate, _ := casterWorld(t)
	var vobs, skinned shadow.VobList
	req := shadow.CubeRequest{Radius: 55, VobCache: &vobs, SkinnedCache: &skinned, ExcludeSkinned: true}

	w.Enter()
	got := collectCasters(w, req)
	w.Leave()
	assert.Equal(t, []*world.Vob{crate}, got)
	assert.Empty(t, skinned, "excluded skinned vobs are not cached")
}

func TestCollectCastersWithoutCaches(t *testing.T) {
	w, crate, npc := casterWorld(t)
	req := shadow.CubeRequest{Radius: 55}

	w.Enter()
	got := collectCasters(w, req)
	w.Leave()
	assert.ElementsMatch(t, []*world.Vob{crate, npc}, got)

	w.MoveVob(npc, math.Vec3{Z: 500})
	w.Enter()
	got = collectCasters(w, req)
	w.Leave()
	assert.Equal(t, []*world.Vob{crate}, got, "uncached renders always query the world")
}

func TestBoundsLines(t *testing.T) {
	_, crate, npc := casterWorld(t)
	lines := boundsLines(nil, []*world.Vob{crate, npc})
	assert.Len(t, lines, 2*24*3)
	assert.Equal(t, crate.Bounds.Min[0]-0.1, lines[0])
}
