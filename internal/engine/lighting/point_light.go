// Package lighting provides point lights, their GPU upload buffer and the
// registry that owns their cubemap shadows.
package lighting

import (
	"sync"

	"github.com/Faultbox/midgard-fx/pkg/math"
)

// MaxPointLights is the maximum number of point lights supported in shaders.
const MaxPointLights = 32

// DefaultRange is used for lights created without a positive range.
const DefaultRange = 100

// PointLight is a light source placed in the world. It is safe for
// concurrent use: the host moves lights while shadow workers read them.
type PointLight struct {
	mu sync.RWMutex

	name      string
	position  math.Vec3
	color     [3]float32 // RGB, 0-1
	rng       float32
	intensity float32
	dynamic   bool
	indoor    bool
}

// NewPointLight creates a light. Dynamic lights are expected to move or be
// created at runtime; static lights come with the level.
func NewPointLight(name string, position math.Vec3, color [3]float32, rng float32, dynamic bool) *PointLight {
	// Ensure range is positive
	if rng <= 0 {
		rng = DefaultRange
	}
	return &PointLight{
		name:      name,
		position:  position,
		color:     clampColor(color),
		rng:       rng,
		intensity: 1.0,
		dynamic:   dynamic,
	}
}

// clampColor limits each channel to 0-1.
func clampColor(c [3]float32) [3]float32 {
	for i := 0; i < 3; i++ {
		if c[i] > 1.0 {
			c[i] = 1.0
		}
		if c[i] < 0.0 {
			c[i] = 0.0
		}
	}
	return c
}

// Name returns the light's name.
func (l *PointLight) Name() string { return l.name }

// Dynamic reports whether the light was created as dynamic.
func (l *PointLight) Dynamic() bool { return l.dynamic }

// Position returns the world position.
func (l *PointLight) Position() math.Vec3 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.position
}

// SetPosition moves the light.
func (l *PointLight) SetPosition(p math.Vec3) {
	l.mu.Lock()
	l.position = p
	l.mu.Unlock()
}

// Color returns the RGB color.
func (l *PointLight) Color() [3]float32 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.color
}

// SetColor changes the color, clamped to 0-1.
func (l *PointLight) SetColor(c [3]float32) {
	l.mu.Lock()
	l.color = clampColor(c)
	l.mu.Unlock()
}

// Range returns the light radius.
func (l *PointLight) Range() float32 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.rng
}

// Intensity returns the light intensity multiplier.
func (l *PointLight) Intensity() float32 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.intensity
}

// SetIntensity changes the intensity multiplier.
func (l *PointLight) SetIntensity(i float32) {
	l.mu.Lock()
	l.intensity = i
	l.mu.Unlock()
}

// Indoor reports whether the light is inside a building.
func (l *PointLight) Indoor() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.indoor
}

// SetIndoor marks the light as inside or outside.
func (l *PointLight) SetIndoor(indoor bool) {
	l.mu.Lock()
	l.indoor = indoor
	l.mu.Unlock()
}

// PointLightData is one light as uploaded to the GPU.
type PointLightData struct {
	Position  [3]float32 // World position
	Color     [3]float32 // RGB color (0-1 range)
	Range     float32    // Light radius/falloff distance
	Intensity float32    // Light intensity multiplier
}

// PointLightBuffer holds lights for GPU upload.
type PointLightBuffer struct {
	Lights []PointLightData
	Count  int
}

// NewPointLightBuffer creates an empty point light buffer.
func NewPointLightBuffer() *PointLightBuffer {
	return &PointLightBuffer{
		Lights: make([]PointLightData, 0, MaxPointLights),
	}
}

// Clear removes all lights from the buffer.
func (b *PointLightBuffer) Clear() {
	b.Lights = b.Lights[:0]
	b.Count = 0
}

// AddLight snapshots a light into the buffer.
// Returns false if buffer is full.
func (b *PointLightBuffer) AddLight(l *PointLight) bool {
	if b.Count >= MaxPointLights {
		return false
	}
	p := l.Position()
	b.Lights = append(b.Lights, PointLightData{
		Position:  [3]float32{p.X, p.Y, p.Z},
		Color:     l.Color(),
		Range:     l.Range(),
		Intensity: l.Intensity(),
	})
	b.Count++
	return true
}

// SetLights replaces all lights in the buffer.
// Truncates to MaxPointLights if necessary.
func (b *PointLightBuffer) SetLights(lights []*PointLight) {
	b.Clear()
	for _, l := range lights {
		if !b.AddLight(l) {
			break
		}
	}
}

// GetPositions returns positions as a flat float32 slice for GPU upload.
// Format: [x0, y0, z0, x1, y1, z1, ...]
func (b *PointLightBuffer) GetPositions() []float32 {
	result := make([]float32, MaxPointLights*3)
	for i, light := range b.Lights {
		result[i*3+0] = light.Position[0]
		result[i*3+1] = light.Position[1]
		result[i*3+2] = light.Position[2]
	}
	return result
}

// GetColors returns colors as a flat float32 slice for GPU upload.
// Format: [r0, g0, b0, r1, g1, b1, ...]
func (b *PointLightBuffer) GetColors() []float32 {
	result := make([]float32, MaxPointLights*3)
	for i, light := range b.Lights {
		result[i*3+0] = light.Color[0]
		result[i*3+1] = light.Color[1]
		result[i*3+2] = light.Color[2]
	}
	return result
}

// GetRanges returns ranges as a flat float32 slice for GPU upload.
func (b *PointLightBuffer) GetRanges() []float32 {
	result := make([]float32, MaxPointLights)
	for i, light := range b.Lights {
		result[i] = light.Range
	}
	return result
}

// GetIntensities returns intensities as a flat float32 slice for GPU upload.
func (b *PointLightBuffer) GetIntensities() []float32 {
	result := make([]float32, MaxPointLights)
	for i, light := range b.Lights {
		result[i] = light.Intensity
	}
	return result
}
