package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "none.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cg2.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
clear_color = [0.0, 0.0, 0.0, 1.0]
fence_timeout_ms = 500
validation = true

[window]
width = 640
height = 480

[heaps]
srv = 16
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 640, cfg.Window.Width)
	assert.Equal(t, "CG2", cfg.Window.Title)
	assert.Equal(t, 16, cfg.Heaps.SRV)
	assert.Equal(t, 2, cfg.Heaps.RTV)
	assert.True(t, cfg.Validation)

	o := cfg.Options()
	assert.Equal(t, 640, o.Width)
	assert.Equal(t, 480, o.Height)
	assert.Equal(t, 16, o.SRVCapacity)
	assert.Equal(t, 500*time.Millisecond, o.FenceTimeout)
	assert.Equal(t, [4]float32{0, 0, 0, 1}, o.ClearColor)
}

func TestLoadRejects(t *testing.T) {
	dir := t.TempDir()
	for name, body := range map[string]string{
		"unknown.toml":  "colour = 1\n",
		"size.toml":     "[window]\nwidth = 0\n",
		"reserved.toml": "[heaps]\nsrv = 1\nreserved = 1\n",
		"syntax.toml":   "[window\n",
	} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
		_, err := Load(path)
		assert.Error(t, err, name)
	}
}

func TestDefaultValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
	assert.Equal(t, filepath.Join("assets/resources", "plane.obj"), Default().Asset("plane.obj"))
}
