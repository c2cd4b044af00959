package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/pelletier/go-toml/v2"
)

// Config is the whole application configuration, decoded from TOML.
type Config struct {
	Window WindowConfig `toml:"window"`
	Camera CameraConfig `toml:"camera"`
	Shadow ShadowConfig `toml:"shadow"`
	Render RenderConfig `toml:"render"`
	Log    LogConfig    `toml:"log"`
}

type WindowConfig struct {
	Title  string `toml:"title"`
	Width  int    `toml:"width"`
	Height int    `toml:"height"`
}

// CameraConfig is the initial orbit and the control speeds.
type CameraConfig struct {
	Distance    float32 `toml:"distance"`
	Pitch       float32 `toml:"pitch"` // degrees
	Yaw         float32 `toml:"yaw"`   // degrees
	RotateSpeed float32 `toml:"rotate_speed"`
	ZoomSpeed   float32 `toml:"zoom_speed"`
}

// ShadowConfig controls the shadow-map target and the composite pass.
type ShadowConfig struct {
	Size     int      `toml:"size"`  // edge length of the depth target in pixels
	Depth    int      `toml:"depth"` // 8 or 16
	Darkness float32  `toml:"darkness"`
	Filter   string   `toml:"filter"` // "linear" or "nearest"
	Passes   []string `toml:"passes"` // ordered, non-empty subset of PassNames
}

type RenderConfig struct {
	FPSLimit int  `toml:"fps_limit"` // 0 disables the limiter
	VSync    bool `toml:"vsync"`
	HUD      bool `toml:"hud"`
	// SlowFrameMS logs the pass timings of frames slower than this.
	SlowFrameMS float64 `toml:"slow_frame_ms"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

// PassNames are the valid entries of ShadowConfig.Passes.
var PassNames = []string{"shadowmap", "lighting", "composite"}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Window: WindowConfig{Title: "shadowstage", Width: 1000, Height: 600},
		Camera: CameraConfig{Distance: 30, Pitch: 20, Yaw: 0, RotateSpeed: 90, ZoomSpeed: 20},
		Shadow: ShadowConfig{
			Size:     512,
			Depth:    16,
			Darkness: 0.5,
			Filter:   "linear",
			Passes:   slices.Clone(PassNames),
		},
		Render: RenderConfig{FPSLimit: 60, VSync: true, HUD: true, SlowFrameMS: 50},
		Log:    LogConfig{Level: "info"},
	}
}

// Load reads the TOML file at path over the defaults. A missing file yields
// the defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	cfg, err := Decode(bytes.NewReader(data))
	if err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Decode reads TOML from r over the defaults, rejecting unknown keys, and
// clamps the result.
func Decode(r io.Reader) (Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	cfg.Shadow.Passes = nil
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return Config{}, fmt.Errorf("line %d column %d: %w", row, col, err)
		}
		return Config{}, err
	}

	// An explicit empty list is rejected by Validate, an absent one selects
	// every pass.
	var explicit struct {
		Shadow struct {
			Passes *[]string `toml:"passes"`
		} `toml:"shadow"`
	}
	if err := toml.Unmarshal(data, &explicit); err != nil {
		return Config{}, err
	}
	switch {
	case explicit.Shadow.Passes == nil:
		cfg.Shadow.Passes = slices.Clone(PassNames)
	case cfg.Shadow.Passes == nil:
		cfg.Shadow.Passes = []string{}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	cfg.Clamp()
	return cfg, nil
}

// Validate checks the enumerated values.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Shadow.Filter) {
	case "linear", "nearest":
	default:
		return fmt.Errorf("shadow.filter %q: want linear or nearest", c.Shadow.Filter)
	}
	if c.Shadow.Depth != 8 && c.Shadow.Depth != 16 {
		return fmt.Errorf("shadow.depth %d: want 8 or 16", c.Shadow.Depth)
	}
	if len(c.Shadow.Passes) == 0 {
		return errors.New("shadow.passes: at least one pass is required")
	}
	for _, p := range c.Shadow.Passes {
		if !slices.Contains(PassNames, p) {
			return fmt.Errorf("shadow.passes: unknown pass %q", p)
		}
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// Clamp brings numeric values into their supported ranges.
func (c *Config) Clamp() {
	c.Window.Width = clamp(c.Window.Width, 160, 8192)
	c.Window.Height = clamp(c.Window.Height, 120, 8192)
	c.Camera.Distance = clamp(c.Camera.Distance, 1, 90)
	c.Camera.Pitch = clamp(c.Camera.Pitch, -89, 89)
	c.Camera.RotateSpeed = clamp(c.Camera.RotateSpeed, 1, 720)
	c.Camera.ZoomSpeed = clamp(c.Camera.ZoomSpeed, 1, 200)
	c.Shadow.Size = clamp(c.Shadow.Size, 64, 4096)
	c.Shadow.Darkness = clamp(c.Shadow.Darkness, 0.05, 1)
	c.Shadow.Filter = strings.ToLower(c.Shadow.Filter)
	c.Render.FPSLimit = clamp(c.Render.FPSLimit, 0, 1000)
	c.Render.SlowFrameMS = max(c.Render.SlowFrameMS, 0)
}

// SlogLevel parses the configured log level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return lvl, nil
}

func clamp[T int | float32 | float64](v, lo, hi T) T {
	return min(max(v, lo), hi)
}

// Settings holds the active configuration
type Settings struct {
	mu       sync.RWMutex
	cfg      Config
	fpsLimit int
}

var globalSettings = &Settings{
	cfg:      Default(),
	fpsLimit: Default().Render.FPSLimit,
}

// Get returns a copy of the active configuration
func Get() Config {
	globalSettings.mu.RLock()
	defer globalSettings.mu.RUnlock()
	cfg := globalSettings.cfg
	cfg.Shadow.Passes = slices.Clone(cfg.Shadow.Passes)
	return cfg
}

// Set replaces the active configuration
func Set(cfg Config) {
	cfg.Clamp()
	cfg.Shadow.Passes = slices.Clone(cfg.Shadow.Passes)
	globalSettings.mu.Lock()
	defer globalSettings.mu.Unlock()
	globalSettings.cfg = cfg
	globalSettings.fpsLimit = cfg.Render.FPSLimit
}

// GetFPSLimit returns the frame rate cap, 0 when uncapped
func GetFPSLimit() int {
	globalSettings.mu.RLock()
	defer globalSettings.mu.RUnlock()
	return globalSettings.fpsLimit
}

// SetFPSLimit sets the frame rate cap
func SetFPSLimit(fps int) {
	globalSettings.mu.Lock()
	defer globalSettings.mu.Unlock()

	// Clamp to reasonable values
	fps = clamp(fps, 0, 1000)

	globalSettings.fpsLimit = fps
	globalSettings.cfg.Render.FPSLimit = fps
}
