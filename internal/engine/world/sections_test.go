package world

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/midgard-fx/pkg/math"
)

func section(x, z int32, size float32) *MeshInfo {
	return &MeshInfo{
		Key: TileKey{X: x, Z: z},
		Bounds: AABB{
			Min: [3]float32{float32(x) * size, 0, float32(z) * size},
			Max: [3]float32{float32(x+1) * size, 10, float32(z+1) * size},
		},
		Indices: []uint32{0, 1, 2, 2, 1, 3},
	}
}

func TestAABBIntersectsSphere(t *testing.T) {
	box := AABB{Min: [3]float32{0, 0, 0}, Max: [3]float32{10, 10, 10}}

	tests := []struct {
		name   string
		center math.Vec3
		radius float32
		want   bool
	}{
		{"inside", math.Vec3{X: 5, Y: 5, Z: 5}, 1, true},
		{"touching face", math.Vec3{X: 15, Y: 5, Z: 5}, 5, true},
		{"outside face", math.Vec3{X: 15.5, Y: 5, Z: 5}, 5, false},
		{"near corner", math.Vec3{X: 13, Y: 14, Z: 5}, 5, true},
		{"past corner", math.Vec3{X: 14, Y: 14, Z: 14}, 5, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, box.IntersectsSphere(tt.center, tt.radius))
		})
	}
}

func TestAABBCenterRadius(t *testing.T) {
	box := BoxAround(math.Vec3{X: 1, Y: 2, Z: 3}, 2)
	assert.Equal(t, math.Vec3{X: 1, Y: 2, Z: 3}, box.Center())
	assert.InDelta(t, 3.4641, box.Radius(), 1e-3)

	grown := box.Extend(math.Vec3{X: 10, Y: 0, Z: 0})
	assert.Equal(t, float32(10), grown.Max[0])
	assert.Equal(t, float32(0), grown.Min[1])
}

func TestKeyFor(t *testing.T) {
	s := NewSections(100)
	assert.Equal(t, TileKey{X: 0, Z: 0}, s.KeyFor(math.Vec3{X: 50, Z: 99}))
	assert.Equal(t, TileKey{X: -1, Z: 2}, s.KeyFor(math.Vec3{X: -0.5, Z: 250}))
	assert.Equal(t, float32(DefaultSectionSize), NewSections(0).SectionSize())
}

func TestCollectInRange(t *testing.T) {
	s := NewSections(100)
	for x := int32(-2); x <= 2; x++ {
		for z := int32(-2); z <= 2; z++ {
			s.AddSection(section(x, z, 100))
		}
	}

	s.Enter()
	got := s.CollectInRange(math.Vec3{X: 50, Y: 5, Z: 50}, 60)
	s.Leave()

	// The sphere reaches into the 8 neighbours' edges but not their far corners
	assert.Len(t, got, 5)
	for _, k := range []TileKey{{0, 0}, {-1, 0}, {1, 0}, {0, -1}, {0, 1}} {
		assert.Contains(t, got, k)
	}
	assert.Equal(t, 2, got[TileKey{0, 0}].Triangles)
}

func TestVobsInRange(t *testing.T) {
	s := NewSections(100)
	near := s.AddVob(&Vob{Name: "chest", Bounds: BoxAround(math.Vec3{X: 10}, 1)})
	npc := s.AddVob(&Vob{Name: "npc", Skinned: true, Bounds: BoxAround(math.Vec3{Z: 10}, 1)})
	s.AddVob(&Vob{Name: "far", Bounds: BoxAround(math.Vec3{X: 500}, 1)})

	assert.NotEqual(t, near.ID, npc.ID)

	s.Enter()
	static, skinned := s.VobsInRange(math.Vec3{}, 20)
	s.Leave()

	assert.Equal(t, []*Vob{near}, static)
	assert.Equal(t, []*Vob{npc}, skinned)
}

func TestMoveVob(t *testing.T) {
	s := NewSections(100)
	v := s.AddVob(&Vob{Bounds: BoxAround(math.Vec3{}, 1)})

	s.MoveVob(v, math.Vec3{X: 5})
	assert.Equal(t, math.Vec3{X: 5}, v.Position)
	assert.Equal(t, float32(4), v.Bounds.Min[0])
	assert.Equal(t, float32(6), v.Bounds.Max[0])
}

func TestRemoveVobNotifies(t *testing.T) {
	s := NewSections(100)
	v := s.AddVob(&Vob{Name: "torch"})

	var removed []*Vob
	s.OnVobRemoved(func(r *Vob) {
		// Listeners run unlocked and may take the lock themselves
		s.Enter()
		removed = append(removed, r)
		s.Leave()
	})

	require.True(t, s.RemoveVob(v))
	assert.False(t, s.RemoveVob(v), "second removal is a no-op")
	assert.Equal(t, []*Vob{v}, removed)

	_, vobs := s.Len()
	assert.Zero(t, vobs)
}

func TestSectionsConcurrentAccess(t *testing.T) {
	s := NewSections(100)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.AddSection(section(int32(i), 0, 100))
			v := s.AddVob(&Vob{Bounds: BoxAround(math.Vec3{X: float32(i) * 100}, 1)})
			s.Enter()
			s.CollectInRange(math.Vec3{}, 1000)
			s.Leave()
			s.RemoveVob(v)
		}(i)
	}
	wg.Wait()

	sections, vobs := s.Len()
	assert.Equal(t, 8, sections)
	assert.Zero(t, vobs)
}
