package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	// Test graphics defaults
	if cfg.Graphics.Width != 1280 {
		t.Errorf("expected width 1280, got %d", cfg.Graphics.Width)
	}
	if cfg.Graphics.Height != 720 {
		t.Errorf("expected height 720, got %d", cfg.Graphics.Height)
	}
	if cfg.Graphics.Fullscreen {
		t.Error("expected fullscreen to be false by default")
	}

	// Test HDR defaults
	if !cfg.HDR.Enabled {
		t.Error("expected hdr to be enabled by default")
	}
	if cfg.HDR.MiddleGray != 0.18 {
		t.Errorf("expected middle gray 0.18, got %f", cfg.HDR.MiddleGray)
	}

	// Test shadow defaults
	if cfg.Shadows.PointLightPolicy != ShadowsDynamic {
		t.Errorf("expected policy dynamic, got %s", cfg.Shadows.PointLightPolicy)
	}
	if cfg.Shadows.CubemapSize != 512 {
		t.Errorf("expected cubemap size 512, got %d", cfg.Shadows.CubemapSize)
	}
	if cfg.Shadows.Workers() < 1 {
		t.Errorf("expected at least one init worker, got %d", cfg.Shadows.Workers())
	}

	if cfg.Debug.ShowBounds {
		t.Error("expected bounds overlay to be off by default")
	}
	if cfg.Debug.ScreenshotDir != "screenshots" {
		t.Errorf("expected screenshot dir 'screenshots', got %s", cfg.Debug.ScreenshotDir)
	}

	// Test logging defaults
	if cfg.Logging.Level != "info" {
		t.Errorf("expected log level 'info', got %s", cfg.Logging.Level)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
graphics:
  width: 1920
  height: 1080
  fullscreen: true
  vsync: false

hdr:
  enabled: false
  lum_white: 4.5
  middle_gray: 0.25
  bloom_threshold: 1.5
  bloom_strength: 0.5

shadows:
  point_light_policy: static
  cubemap_size: 1024
  init_workers: 3
  force_per_face: true

logging:
  level: "debug"
  log_file: "fx.log"
`

	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg := Default()
	if err := loadFromFile(cfg, configPath); err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Graphics.Width != 1920 {
		t.Errorf("expected width 1920, got %d", cfg.Graphics.Width)
	}
	if !cfg.Graphics.Fullscreen {
		t.Error("expected fullscreen to be true")
	}
	if cfg.HDR.Enabled {
		t.Error("expected hdr to be disabled")
	}
	if cfg.HDR.LumWhite != 4.5 {
		t.Errorf("expected lum white 4.5, got %f", cfg.HDR.LumWhite)
	}
	if cfg.HDR.BloomStrength != 0.5 {
		t.Errorf("expected bloom strength 0.5, got %f", cfg.HDR.BloomStrength)
	}
	if cfg.Shadows.PointLightPolicy != ShadowsStatic {
		t.Errorf("expected policy static, got %s", cfg.Shadows.PointLightPolicy)
	}
	if cfg.Shadows.CubemapSize != 1024 {
		t.Errorf("expected cubemap size 1024, got %d", cfg.Shadows.CubemapSize)
	}
	if cfg.Shadows.Workers() != 3 {
		t.Errorf("expected 3 workers, got %d", cfg.Shadows.Workers())
	}
	if !cfg.Shadows.ForcePerFace {
		t.Error("expected force_per_face to be true")
	}
	if cfg.Logging.LogFile != "fx.log" {
		t.Errorf("expected log file 'fx.log', got %s", cfg.Logging.LogFile)
	}
}

func TestLoadFromFileInvalid(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	invalidYAML := `
graphics:
  width: not a number
  invalid syntax here
`

	if err := os.WriteFile(configPath, []byte(invalidYAML), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg := Default()
	if err := loadFromFile(cfg, configPath); err == nil {
		t.Error("expected error loading invalid YAML, got nil")
	}
}

func TestLoadFromFileUnknownPolicy(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "policy.yaml")

	if err := os.WriteFile(configPath, []byte("shadows:\n  point_light_policy: sometimes\n"), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg := Default()
	if err := loadFromFile(cfg, configPath); err == nil {
		t.Error("expected error for unknown shadow policy, got nil")
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	cfg := Default()
	if err := loadFromFile(cfg, "/nonexistent/path/config.yaml"); err == nil {
		t.Error("expected error loading missing file, got nil")
	}
}

func TestShadowPolicyOrdering(t *testing.T) {
	if !(ShadowsOff < ShadowsStatic && ShadowsStatic < ShadowsDynamic) {
		t.Error("shadow policies must be ordered off < static < dynamic")
	}

	for _, p := range []ShadowPolicy{ShadowsOff, ShadowsStatic, ShadowsDynamic} {
		parsed, err := ParseShadowPolicy(p.String())
		if err != nil {
			t.Fatalf("ParseShadowPolicy(%q): %v", p.String(), err)
		}
		if parsed != p {
			t.Errorf("ParseShadowPolicy(%q) = %v, want %v", p.String(), parsed, p)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"tiny resolution", func(c *Config) { c.Graphics.Width = 1 }},
		{"non power of two cubemap", func(c *Config) { c.Shadows.CubemapSize = 300 }},
		{"zero cubemap", func(c *Config) { c.Shadows.CubemapSize = 0 }},
		{"zero lum white", func(c *Config) { c.HDR.LumWhite = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestSaveToRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := Default()
	cfg.Shadows.PointLightPolicy = ShadowsOff
	cfg.HDR.BloomThreshold = 2
	if err := cfg.SaveTo(path); err != nil {
		t.Fatalf("SaveTo: %v", err)
	}

	loaded := Default()
	if err := loadFromFile(loaded, path); err != nil {
		t.Fatalf("loading saved config: %v", err)
	}
	if loaded.Shadows.PointLightPolicy != ShadowsOff {
		t.Errorf("expected saved policy off, got %s", loaded.Shadows.PointLightPolicy)
	}
	if loaded.HDR.BloomThreshold != 2 {
		t.Errorf("expected saved bloom threshold 2, got %f", loaded.HDR.BloomThreshold)
	}
}

func TestConfigDir(t *testing.T) {
	dir := ConfigDir()

	if dir == "" {
		t.Error("ConfigDir returned empty string")
	}
	if !filepath.IsAbs(dir) {
		t.Errorf("ConfigDir should return absolute path, got %s", dir)
	}
}

func TestFindConfigFile(t *testing.T) {
	origDir, _ := os.Getwd()
	defer os.Chdir(origDir)

	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, "xdg"))
	os.Chdir(tmpDir)

	// No config file exists - should return empty
	if path := findConfigFile(); path != "" {
		t.Errorf("expected empty path when no config exists, got %s", path)
	}

	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("graphics:\n  width: 800\n"), 0644); err != nil {
		t.Fatalf("failed to create test config: %v", err)
	}

	if path := findConfigFile(); path == "" {
		t.Error("expected to find config.yaml in current directory")
	}
}

func TestApplyFlags(t *testing.T) {
	tests := []struct {
		name     string
		setup    func()
		verify   func(*testing.T, *Config)
		teardown func()
	}{
		{
			name:  "debug flag",
			setup: func() { *flagDebug = true },
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Logging.Level != "debug" {
					t.Errorf("expected log level 'debug', got %s", cfg.Logging.Level)
				}
			},
			teardown: func() { *flagDebug = false },
		},
		{
			name:  "fullscreen flag",
			setup: func() { *flagFullscreen = true },
			verify: func(t *testing.T, cfg *Config) {
				if !cfg.Graphics.Fullscreen {
					t.Error("expected fullscreen to be true with fullscreen flag")
				}
			},
			teardown: func() { *flagFullscreen = false },
		},
		{
			name:  "no-hdr flag",
			setup: func() { *flagNoHDR = true },
			verify: func(t *testing.T, cfg *Config) {
				if cfg.HDR.Enabled {
					t.Error("expected hdr disabled with no-hdr flag")
				}
			},
			teardown: func() { *flagNoHDR = false },
		},
		{
			name:  "shadows flag",
			setup: func() { *flagShadows = "static" },
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Shadows.PointLightPolicy != ShadowsStatic {
					t.Errorf("expected policy static, got %s", cfg.Shadows.PointLightPolicy)
				}
			},
			teardown: func() { *flagShadows = "" },
		},
		{
			name: "width and height flags",
			setup: func() {
				*flagWidth = 2560
				*flagHeight = 1440
			},
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Graphics.Width != 2560 || cfg.Graphics.Height != 1440 {
					t.Errorf("expected 2560x1440, got %dx%d", cfg.Graphics.Width, cfg.Graphics.Height)
				}
			},
			teardown: func() {
				*flagWidth = 0
				*flagHeight = 0
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setup()
			defer tt.teardown()

			cfg := Default()
			if err := applyFlags(cfg); err != nil {
				t.Fatalf("applyFlags: %v", err)
			}
			tt.verify(t, cfg)
		})
	}
}

func TestApplyFlagsBadPolicy(t *testing.T) {
	*flagShadows = "always"
	defer func() { *flagShadows = "" }()

	if err := applyFlags(Default()); err == nil {
		t.Error("expected error for unknown shadows flag, got nil")
	}
}

func TestLoadPriority(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
graphics:
  width: 1600
  height: 900
`

	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	*flagConfig = configPath
	*flagWidth = 1920
	defer func() {
		*flagConfig = ""
		*flagWidth = 0
	}()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	// Width should be from flag (1920), not file (1600)
	if cfg.Graphics.Width != 1920 {
		t.Errorf("expected width 1920 from flag, got %d", cfg.Graphics.Width)
	}

	// Height should be from file (900) since no flag override
	if cfg.Graphics.Height != 900 {
		t.Errorf("expected height 900 from file, got %d", cfg.Graphics.Height)
	}
}
