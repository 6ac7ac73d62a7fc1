// Package world holds the loaded world geometry as a grid of square
// sections plus the movable objects (vobs) placed in it.
//
// Sections is also the process-wide resource lock: code that reads section
// or vob data concurrently with the loader, or that mutates geometry
// caches derived from it, must hold Enter/Leave.
package world

import (
	gomath "math"
	"sync"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-fx/internal/logger"
	"github.com/Faultbox/midgard-fx/pkg/math"
)

// DefaultSectionSize is the edge length of one world section.
const DefaultSectionSize = 100

// TileKey addresses a section in the grid.
type TileKey struct {
	X, Z int32
}

// MeshInfo is the static geometry of one section.
type MeshInfo struct {
	Key       TileKey
	Bounds    AABB
	Vertices  []float32 // xyz triples
	Indices   []uint32
	Triangles int
}

// Vob is a placed object. Skinned vobs are animated characters.
type Vob struct {
	ID       uint64
	Name     string
	Position math.Vec3
	Bounds   AABB
	Skinned  bool
}

// RemoveListener is told about every vob taken out of the world. It runs
// without the resource lock held.
type RemoveListener func(v *Vob)

// Sections is the loaded world.
type Sections struct {
	mu sync.Mutex

	size      float32
	tiles     map[TileKey]*MeshInfo
	vobs      map[uint64]*Vob
	nextID    uint64
	listeners []RemoveListener

	log *zap.Logger
}

// NewSections creates an empty world with sections of the given size.
func NewSections(sectionSize float32) *Sections {
	if sectionSize <= 0 {
		sectionSize = DefaultSectionSize
	}
	return &Sections{
		size:  sectionSize,
		tiles: make(map[TileKey]*MeshInfo),
		vobs:  make(map[uint64]*Vob),
		log:   logger.Named(logger.World),
	}
}

// Enter acquires the resource lock.
func (s *Sections) Enter() { s.mu.Lock() }

// Leave releases the resource lock.
func (s *Sections) Leave() { s.mu.Unlock() }

// SectionSize returns the edge length of a section.
func (s *Sections) SectionSize() float32 { return s.size }

// KeyFor returns the key of the section containing p.
func (s *Sections) KeyFor(p math.Vec3) TileKey {
	return TileKey{
		X: int32(gomath.Floor(float64(p.X / s.size))),
		Z: int32(gomath.Floor(float64(p.Z / s.size))),
	}
}

// AddSection stores or replaces the geometry of a section.
func (s *Sections) AddSection(mesh *MeshInfo) {
	s.Enter()
	defer s.Leave()

	if mesh.Triangles == 0 {
		mesh.Triangles = len(mesh.Indices) / 3
	}
	s.tiles[mesh.Key] = mesh
	s.log.Debug("section added",
		zap.Int32("x", mesh.Key.X),
		zap.Int32("z", mesh.Key.Z),
		zap.Int("triangles", mesh.Triangles),
	)
}

// AddVob places a vob and assigns its ID.
func (s *Sections) AddVob(v *Vob) *Vob {
	s.Enter()
	defer s.Leave()

	s.nextID++
	v.ID = s.nextID
	s.vobs[v.ID] = v
	return v
}

// MoveVob updates a vob's position and bounds.
func (s *Sections) MoveVob(v *Vob, p math.Vec3) {
	s.Enter()
	defer s.Leave()

	delta := p.Sub(v.Position)
	v.Position = p
	for i, d := range [3]float32{delta.X, delta.Y, delta.Z} {
		v.Bounds.Min[i] += d
		v.Bounds.Max[i] += d
	}
}

// RemoveVob takes a vob out of the world and notifies listeners. It
// reports whether the vob was present.
func (s *Sections) RemoveVob(v *Vob) bool {
	s.Enter()
	_, ok := s.vobs[v.ID]
	delete(s.vobs, v.ID)
	listeners := append([]RemoveListener(nil), s.listeners...)
	s.Leave()

	if !ok {
		return false
	}
	for _, l := range listeners {
		l(v)
	}
	return true
}

// OnVobRemoved registers a removal listener.
func (s *Sections) OnVobRemoved(l RemoveListener) {
	s.Enter()
	defer s.Leave()
	s.listeners = append(s.listeners, l)
}

// CollectInRange returns the sections whose bounds touch the sphere. The
// caller must hold the resource lock.
func (s *Sections) CollectInRange(center math.Vec3, radius float32) map[TileKey]*MeshInfo {
	out := make(map[TileKey]*MeshInfo)
	for key, mesh := range s.tiles {
		if mesh.Bounds.IntersectsSphere(center, radius) {
			out[key] = mesh
		}
	}
	return out
}

// VobsInRange returns the vobs whose bounds touch the sphere, split into
// static and skinned. The caller must hold the resource lock.
func (s *Sections) VobsInRange(center math.Vec3, radius float32) (static, skinned []*Vob) {
	for _, v := range s.vobs {
		if !v.Bounds.IntersectsSphere(center, radius) {
			continue
		}
		if v.Skinned {
			skinned = append(skinned, v)
		} else {
			static = append(static, v)
		}
	}
	return static, skinned
}

// Len returns the number of sections and vobs.
func (s *Sections) Len() (sections, vobs int) {
	s.Enter()
	defer s.Leave()
	return len(s.tiles), len(s.vobs)
}
