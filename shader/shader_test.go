package shader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArgs(t *testing.T) {
	c := &Compiler{Path: "dxc", SPIRV: true}
	args := c.Args("shaders/Object3d.VS.hlsl", ProfileVertex, "out.spv")

	assert.Equal(t, "shaders/Object3d.VS.hlsl", args[0])
	assert.Subset(t, args, []string{"-E", "main", "-T", "vs_6_0", "-I", "shaders", "-Fo", "out.spv", "-Zpr", "-spirv"})
	assert.NotContains(t, args, "-Od")

	c.Debug = true
	c.IncludeDir = "include"
	args = c.Args("a.hlsl", ProfilePixel, "o")
	assert.Contains(t, args, "-Od")
	assert.Contains(t, args, "include")
}

func TestCompileMissingSource(t *testing.T) {
	c := &Compiler{Path: "dxc"}
	_, err := c.Compile(filepath.Join(t.TempDir(), "missing.hlsl"), ProfileVertex)
	assert.Error(t, err)
}

func TestCompileMissingCompiler(t *testing.T) {
	src := filepath.Join(t.TempDir(), "a.hlsl")
	require.NoError(t, os.WriteFile(src, []byte("float4 main() : SV_POSITION { return 0; }"), 0o644))

	c := &Compiler{Path: filepath.Join(t.TempDir(), "no-such-dxc")}
	_, err := c.Compile(src, ProfileVertex)
	assert.Error(t, err)
}
