// Package config loads the program settings from a TOML file.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"

	"github.com/cg2go/renderer/render"
)

type Window struct {
	Title  string `toml:"title"`
	Width  int    `toml:"width"`
	Height int    `toml:"height"`
}

type Heaps struct {
	RTV int `toml:"rtv"`
	DSV int `toml:"dsv"`
	SRV int `toml:"srv"`
	// Reserved shader-visible slots ahead of the texture cache.
	Reserved int `toml:"reserved"`
}

type Assets struct {
	Dir           string `toml:"dir"`
	ShaderDir     string `toml:"shader_dir"`
	Model         string `toml:"model"`
	SpriteTexture string `toml:"sprite_texture"`
	SphereTexture string `toml:"sphere_texture"`
}

type Config struct {
	Window Window `toml:"window"`
	Heaps  Heaps  `toml:"heaps"`
	Assets Assets `toml:"assets"`

	ClearColor [4]float32 `toml:"clear_color"`
	// FenceTimeoutMS bounds the per-frame fence wait. 0 waits forever.
	FenceTimeoutMS int    `toml:"fence_timeout_ms"`
	Validation     bool   `toml:"validation"`
	Subdivision    int    `toml:"subdivision"`
	DXC            string `toml:"dxc"`
}

func Default() Config {
	return Config{
		Window: Window{Title: "CG2", Width: 1280, Height: 720},
		Heaps:  Heaps{RTV: 2, DSV: 1, SRV: 128, Reserved: 1},
		Assets: Assets{
			Dir:           "assets/resources",
			ShaderDir:     "assets/shaders",
			Model:         "plane.obj",
			SpriteTexture: "uvChecker.png",
			SphereTexture: "monsterBall.png",
		},
		ClearColor:  [4]float32{0.1, 0.25, 0.5, 1.0},
		Subdivision: 16,
		DXC:         "dxc",
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	} else if err != nil {
		return cfg, errors.Wrapf(err, "open config %s", path)
	}
	defer f.Close()

	dec := toml.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch {
	case c.Window.Width <= 0 || c.Window.Height <= 0:
		return errors.Newf("invalid window size %dx%d", c.Window.Width, c.Window.Height)
	case c.Heaps.RTV < 2:
		return errors.Newf("rtv heap needs a slot per back buffer, got %d", c.Heaps.RTV)
	case c.Heaps.DSV < 1:
		return errors.Newf("dsv heap needs at least 1 slot, got %d", c.Heaps.DSV)
	case c.Heaps.Reserved < 0 || c.Heaps.Reserved >= c.Heaps.SRV:
		return errors.Newf("%d reserved slots do not fit a srv heap of %d", c.Heaps.Reserved, c.Heaps.SRV)
	case c.FenceTimeoutMS < 0:
		return errors.Newf("negative fence timeout %d", c.FenceTimeoutMS)
	}
	return nil
}

// Options converts the config into renderer options. Shaders and the
// decoder are left for the caller.
func (c Config) Options() render.Options {
	o := render.DefaultOptions()
	o.Width = c.Window.Width
	o.Height = c.Window.Height
	o.RTVCapacity = c.Heaps.RTV
	o.DSVCapacity = c.Heaps.DSV
	o.SRVCapacity = c.Heaps.SRV
	o.ReservedSRV = c.Heaps.Reserved
	o.ClearColor = c.ClearColor
	o.FenceTimeout = time.Duration(c.FenceTimeoutMS) * time.Millisecond
	return o
}

// Asset joins name with the asset directory.
func (c Config) Asset(name string) string {
	return filepath.Join(c.Assets.Dir, name)
}

// Shader joins name with the shader directory.
func (c Config) Shader(name string) string {
	return filepath.Join(c.Assets.ShaderDir, name)
}
