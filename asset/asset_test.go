package asset

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cg2go/renderer/gpu"
)

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 0xff, G: uint8(x), B: uint8(y), A: 0xff})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func TestDecodeMipChain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checker.png")
	writePNG(t, path, 16, 4)

	img, err := NewImageDecoder().Decode(path)
	require.NoError(t, err)
	assert.Equal(t, 16, img.Width)
	assert.Equal(t, 4, img.Height)
	assert.Equal(t, 5, img.MipLevels)
	assert.Equal(t, 1, img.ArraySize)
	assert.Equal(t, gpu.FormatR8G8B8A8UnormSRGB, img.Format)
	require.Len(t, img.Subresources, 5)

	sizes := [][2]int{{16, 4}, {8, 2}, {4, 1}, {2, 1}, {1, 1}}
	for i, s := range sizes {
		assert.Equal(t, s[0]*4, img.RowBytes(i))
		assert.Len(t, img.Subresources[i], s[0]*s[1]*4, "mip %d", i)
	}
	assert.Equal(t, []byte{0xff, 3, 2, 0xff}, img.Subresources[0][(2*16+3)*4:(2*16+4)*4])
}

func TestDecodeMissing(t *testing.T) {
	_, err := NewImageDecoder().Decode(filepath.Join(t.TempDir(), "missing.png"))
	assert.Error(t, err)
}

func TestMipLevels(t *testing.T) {
	assert.Equal(t, 1, MipLevels(1, 1))
	assert.Equal(t, 9, MipLevels(256, 256))
	assert.Equal(t, 11, MipLevels(1280, 720))
}

func TestSolid(t *testing.T) {
	img := Solid(2, 2, color.RGBA{R: 1, G: 2, B: 3, A: 4})
	assert.Equal(t, 1, img.MipLevels)
	assert.Equal(t, []byte{1, 2, 3, 4, 1, 2, 3, 4, 1, 2, 3, 4, 1, 2, 3, 4}, img.Subresources[0])
}

const quadObj = `mtllib quad.mtl
o Quad
v -1 -1 0
v 1 -1 0
v 1 1 0
v -1 1 0
vt 0 0
vt 1 0
vt 1 1
vt 0 1
vn 0 0 1
usemtl Checker
f 1/1/1 2/2/1 3/3/1 4/4/1
`

const quadMtl = `newmtl Checker
Kd 1 1 1
map_Kd checker.png
`

func TestLoadObj(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "quad.obj"), []byte(quadObj), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "quad.mtl"), []byte(quadMtl), 0o644))

	model, err := LoadObj(dir, "quad.obj")
	require.NoError(t, err)
	require.Len(t, model.Vertices, 6)
	assert.Equal(t, filepath.Join(dir, "checker.png"), model.TexturePath)

	// First triangle of the fan is 1,2,3, emitted as 3,2,1 with x mirrored.
	assert.Equal(t, mgl32.Vec4{-1, 1, 0, 1}, model.Vertices[0].Position)
	assert.Equal(t, mgl32.Vec4{-1, -1, 0, 1}, model.Vertices[1].Position)
	assert.Equal(t, mgl32.Vec4{1, -1, 0, 1}, model.Vertices[2].Position)

	assert.Equal(t, mgl32.Vec2{1, 0}, model.Vertices[0].TexCoord)
	assert.Equal(t, mgl32.Vec2{0, 1}, model.Vertices[2].TexCoord)
	assert.Equal(t, mgl32.Vec3{0, 0, 1}, model.Vertices[0].Normal)
}

func TestLoadObjMissing(t *testing.T) {
	_, err := LoadObj(t.TempDir(), "none.obj")
	assert.Error(t, err)
}

func TestMtllib(t *testing.T) {
	assert.Equal(t, "quad.mtl", mtllib([]byte(quadObj)))
	assert.Equal(t, "", mtllib([]byte("o Empty\nmtllibx foo\n")))
}
