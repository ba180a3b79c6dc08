// Package config loads the renderer's TOML configuration.
package config

import (
	"bytes"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"
)

type Config struct {
	Window   Window   `toml:"window"`
	Renderer Renderer `toml:"renderer"`
	Assets   Assets   `toml:"assets"`
	Logging  Logging  `toml:"logging"`
}

type Window struct {
	Title     string `toml:"title"`
	Width     int    `toml:"width"`
	Height    int    `toml:"height"`
	Resizable bool   `toml:"resizable"`
}

type Renderer struct {
	FramesInFlight int        `toml:"frames_in_flight"`
	MaxObjects     int        `toml:"max_objects"`
	MaxSamples     int        `toml:"max_samples"`
	Validation     bool       `toml:"validation"`
	PresentMode    string     `toml:"present_mode"`
	ClearColor     [4]float32 `toml:"clear_color"`
}

type Assets struct {
	ShaderDir       string  `toml:"shader_dir"`
	TextureDir      string  `toml:"texture_dir"`
	FallbackTexture string  `toml:"fallback_texture"`
	WatchShaders    bool    `toml:"watch_shaders"`
	Models          []Model `toml:"models"`
}

// Model places one imported model file in the scene.
type Model struct {
	Path          string     `toml:"path"`
	Position      [3]float32 `toml:"position"`
	RotationDeg   [3]float32 `toml:"rotation_deg"`
	Scale         float32    `toml:"scale"`
	SpinDegPerSec float32    `toml:"spin_deg_per_sec"`
}

type Logging struct {
	Level        string `toml:"level"`
	ReportCaller bool   `toml:"report_caller"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Window: Window{
			Title:  "Deferred Renderer",
			Width:  1280,
			Height: 720,
		},
		Renderer: Renderer{
			FramesInFlight: 2,
			MaxObjects:     1024,
			MaxSamples:     8,
			PresentMode:    "mailbox",
			ClearColor:     [4]float32{0, 0, 0, 1},
		},
		Assets: Assets{
			ShaderDir:       "shaders",
			TextureDir:      "textures",
			FallbackTexture: "plain.png",
		},
		Logging: Logging{
			Level: "info",
		},
	}
}

// Load reads path on top of Default. A missing file yields the defaults;
// unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, cfg.Validate()
	} else if err != nil {
		return cfg, errors.Wrapf(err, "read config %s", path)
	}

	cfg, err = Parse(data)
	if err != nil {
		return cfg, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

// Parse decodes TOML bytes on top of Default and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()

	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return cfg, errors.Newf("unknown keys:\n%s", strict.String())
		}
		return cfg, errors.Wrap(err, "decode toml")
	}

	for i := range cfg.Assets.Models {
		if cfg.Assets.Models[i].Scale == 0 {
			cfg.Assets.Models[i].Scale = 1
		}
	}

	return cfg, cfg.Validate()
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.Window.Width <= 0 || c.Window.Height <= 0 {
		return errors.Newf("window size %dx%d must be positive", c.Window.Width, c.Window.Height)
	}
	if c.Renderer.FramesInFlight < 1 || c.Renderer.FramesInFlight > 4 {
		return errors.Newf("renderer.frames_in_flight %d out of range 1..4", c.Renderer.FramesInFlight)
	}
	if c.Renderer.MaxObjects < 1 {
		return errors.Newf("renderer.max_objects %d must be at least 1", c.Renderer.MaxObjects)
	}
	switch c.Renderer.MaxSamples {
	case 2, 4, 8, 16, 32, 64:
	default:
		return errors.Newf("renderer.max_samples %d must be a power of two between 2 and 64", c.Renderer.MaxSamples)
	}
	switch c.Renderer.PresentMode {
	case "mailbox", "fifo":
	default:
		return errors.Newf("renderer.present_mode %q must be mailbox or fifo", c.Renderer.PresentMode)
	}
	for i, m := range c.Assets.Models {
		if m.Path == "" {
			return errors.Newf("assets.models[%d] has no path", i)
		}
	}
	return nil
}
