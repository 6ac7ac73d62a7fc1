// Package config handles renderer configuration loading and management.
package config

import (
	"fmt"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config holds all renderer settings.
type Config struct {
	Graphics GraphicsConfig `yaml:"graphics"`
	HDR      HDRConfig      `yaml:"hdr"`
	Shadows  ShadowConfig   `yaml:"shadows"`
	Debug    DebugConfig    `yaml:"debug"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// GraphicsConfig holds display settings.
type GraphicsConfig struct {
	Width      int  `yaml:"width"`
	Height     int  `yaml:"height"`
	Fullscreen bool `yaml:"fullscreen"`
	VSync      bool `yaml:"vsync"`
}

// HDRConfig holds tonemapping and bloom settings.
type HDRConfig struct {
	Enabled        bool    `yaml:"enabled"`
	LumWhite       float32 `yaml:"lum_white"`
	MiddleGray     float32 `yaml:"middle_gray"`
	BloomThreshold float32 `yaml:"bloom_threshold"`
	BloomStrength  float32 `yaml:"bloom_strength"`
}

// ShadowConfig holds point light shadow settings.
type ShadowConfig struct {
	PointLightPolicy ShadowPolicy `yaml:"point_light_policy"`
	CubemapSize      int          `yaml:"cubemap_size"`
	InitWorkers      int          `yaml:"init_workers"` // 0 = one per CPU

	// ForcePerFace renders cubemaps one face at a time even when the
	// device can fan out all six faces in a geometry shader.
	ForcePerFace bool `yaml:"force_per_face"`
}

// DebugConfig holds viewer debugging aids.
type DebugConfig struct {
	ShowBounds    bool   `yaml:"show_bounds"`    // wireframe vob bounds and light positions
	ScreenshotDir string `yaml:"screenshot_dir"` // F12 writes PNGs here
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// ShadowPolicy controls which point lights get cubemap shadows and how
// eagerly they are refreshed. Values are ordered.
type ShadowPolicy int

const (
	// ShadowsOff disables point light shadows.
	ShadowsOff ShadowPolicy = iota
	// ShadowsStatic re-renders a cubemap only when its light moves.
	ShadowsStatic
	// ShadowsDynamic also re-renders when a light changes color.
	ShadowsDynamic
)

var policyNames = map[ShadowPolicy]string{
	ShadowsOff:     "off",
	ShadowsStatic:  "static",
	ShadowsDynamic: "dynamic",
}

// String returns the YAML name of the policy.
func (p ShadowPolicy) String() string {
	if name, ok := policyNames[p]; ok {
		return name
	}
	return fmt.Sprintf("ShadowPolicy(%d)", int(p))
}

// ParseShadowPolicy converts a name to a ShadowPolicy.
func ParseShadowPolicy(name string) (ShadowPolicy, error) {
	for p, n := range policyNames {
		if n == name {
			return p, nil
		}
	}
	return ShadowsOff, fmt.Errorf("unknown shadow policy %q", name)
}

// MarshalYAML implements yaml.Marshaler.
func (p ShadowPolicy) MarshalYAML() (interface{}, error) {
	return p.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (p *ShadowPolicy) UnmarshalYAML(value *yaml.Node) error {
	var name string
	if err := value.Decode(&name); err != nil {
		return err
	}
	parsed, err := ParseShadowPolicy(name)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Workers returns the effective size of the shadow init worker pool.
func (s ShadowConfig) Workers() int {
	if s.InitWorkers > 0 {
		return s.InitWorkers
	}
	return runtime.NumCPU()
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Graphics: GraphicsConfig{
			Width:      1280,
			Height:     720,
			Fullscreen: false,
			VSync:      true,
		},
		HDR: HDRConfig{
			Enabled:        true,
			LumWhite:       11.2,
			MiddleGray:     0.18,
			BloomThreshold: 0.9,
			BloomStrength:  1.0,
		},
		Shadows: ShadowConfig{
			PointLightPolicy: ShadowsDynamic,
			CubemapSize:      512,
			InitWorkers:      0,
		},
		Debug: DebugConfig{
			ScreenshotDir: "screenshots",
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}
