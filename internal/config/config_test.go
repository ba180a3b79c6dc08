package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
[renderer]
frames_in_flight = 3
max_samples = 4
present_mode = "fifo"

[assets]
shader_dir = "build/shaders"

[[assets.models]]
path = "models/room.obj"
position = [0, 0, -2]
spin_deg_per_sec = 45
`))
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Renderer.FramesInFlight)
	assert.Equal(t, 4, cfg.Renderer.MaxSamples)
	assert.Equal(t, "fifo", cfg.Renderer.PresentMode)
	assert.Equal(t, 1024, cfg.Renderer.MaxObjects)
	assert.Equal(t, "build/shaders", cfg.Assets.ShaderDir)
	require.Len(t, cfg.Assets.Models, 1)
	assert.Equal(t, float32(1), cfg.Assets.Models[0].Scale)
	assert.Equal(t, [3]float32{0, 0, -2}, cfg.Assets.Models[0].Position)
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("[renderer]\nframes = 2\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown keys")
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"zero frames":     func(c *Config) { c.Renderer.FramesInFlight = 0 },
		"too many frames": func(c *Config) { c.Renderer.FramesInFlight = 5 },
		"odd samples":     func(c *Config) { c.Renderer.MaxSamples = 3 },
		"single sample":   func(c *Config) { c.Renderer.MaxSamples = 1 },
		"no objects":      func(c *Config) { c.Renderer.MaxObjects = 0 },
		"present mode":    func(c *Config) { c.Renderer.PresentMode = "immediate" },
		"window":          func(c *Config) { c.Window.Width = 0 },
		"model path":      func(c *Config) { c.Assets.Models = []Model{{}} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "renderer.toml")
	require.NoError(t, os.WriteFile(path, []byte("[logging]\nlevel = \"debug\"\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
}
