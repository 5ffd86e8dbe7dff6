// Package shader compiles HLSL with the DirectX shader compiler, dxc.
package shader

import (
	"bytes"
	"log"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/cockroachdb/errors"
)

const (
	// EntryPoint is the entry function of every shader.
	EntryPoint = "main"

	ProfileVertex = "vs_6_0"
	ProfilePixel  = "ps_6_0"
)

// Compiler runs dxc on shader files.
type Compiler struct {
	// Path is the dxc executable.
	Path string
	// IncludeDir resolves #include directives. Defaults to the directory
	// of the compiled file.
	IncludeDir string
	// SPIRV emits SPIR-V instead of DXIL.
	SPIRV bool
	// Debug embeds debug information and disables optimization.
	Debug bool
}

// Args returns the dxc command line that compiles file to out.
func (c *Compiler) Args(file, profile, out string) []string {
	include := c.IncludeDir
	if include == "" {
		include = filepath.Dir(file)
	}
	args := []string{
		file,
		"-E", EntryPoint,
		"-T", profile,
		"-I", include,
		// matrices are laid out row by row
		"-Zpr",
		"-Fo", out,
	}
	if c.Debug {
		args = append(args, "-Zi", "-Qembed_debug", "-Od")
	}
	if c.SPIRV {
		args = append(args, "-spirv", "-fspv-target-env=vulkan1.0")
	}
	return args
}

// Compile compiles file for profile and returns the shader bytecode.
// Compiler diagnostics are logged and turned into an error.
func (c *Compiler) Compile(file, profile string) ([]byte, error) {
	log.Printf("Begin CompileShader, path:%s, profile:%s", file, profile)

	if _, err := os.Stat(file); err != nil {
		return nil, errors.Wrapf(err, "shader source %s", file)
	}

	out, err := os.CreateTemp("", "shader-*.bin")
	if err != nil {
		return nil, errors.Wrap(err, "create shader output")
	}
	outPath := out.Name()
	out.Close()
	defer os.Remove(outPath)

	var stderr bytes.Buffer
	cmd := exec.Command(c.Path, c.Args(file, profile, outPath)...)
	cmd.Stdout = &stderr
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			log.Print(stderr.String())
		}
		return nil, errors.Wrapf(err, "compile %s (%s): %s", file, profile, bytes.TrimSpace(stderr.Bytes()))
	}
	if stderr.Len() > 0 {
		log.Print(stderr.String())
	}

	code, err := os.ReadFile(outPath)
	if err != nil {
		return nil, errors.Wrapf(err, "read compiled %s", file)
	}
	if len(code) == 0 {
		return nil, errors.Newf("compile %s (%s): empty output", file, profile)
	}
	log.Printf("Compile Succeeded, path:%s, profile:%s", file, profile)
	return code, nil
}

// CompilePair compiles the vertex and pixel shaders of one pipeline.
func (c *Compiler) CompilePair(vsFile, psFile string) (vs, ps []byte, err error) {
	vs, err = c.Compile(vsFile, ProfileVertex)
	if err != nil {
		return nil, nil, err
	}
	ps, err = c.Compile(psFile, ProfilePixel)
	if err != nil {
		return nil, nil, err
	}
	return vs, ps, nil
}
