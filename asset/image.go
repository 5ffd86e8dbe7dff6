// Package asset loads the files the renderer draws: images with their mip
// chains, and Wavefront OBJ models with their MTL materials.
package asset

import (
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/anthonynsimon/bild/transform"
	"github.com/cockroachdb/errors"
	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"github.com/cg2go/renderer/gpu"
)

// Metadata describes the shape of a decoded image.
type Metadata struct {
	Width     int
	Height    int
	MipLevels int
	ArraySize int
	Format    gpu.Format
	Cube      bool
}

// Image is a decoded image with its subresources in slice-major, mip-minor
// order. Rows are tightly packed.
type Image struct {
	Metadata
	Subresources [][]byte
}

// RowBytes is the packed row size of subresource i.
func (img *Image) RowBytes(i int) int {
	mip := i % img.MipLevels
	return max(img.Width>>mip, 1) * img.Format.Size()
}

// ImageDecoder decodes image files into RGBA8 sRGB data with a full mip
// chain.
type ImageDecoder struct {
	// Mips disables mip generation when false.
	Mips bool
}

func NewImageDecoder() *ImageDecoder {
	return &ImageDecoder{Mips: true}
}

func (d *ImageDecoder) Decode(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open image %s", path)
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "decode image %s", path)
	}
	return d.FromImage(src), nil
}

// FromImage builds the mip chain of an already decoded image.
func (d *ImageDecoder) FromImage(src image.Image) *Image {
	base := toRGBA(src)
	w, h := base.Bounds().Dx(), base.Bounds().Dy()

	levels := 1
	if d.Mips {
		levels = MipLevels(w, h)
	}
	img := &Image{
		Metadata: Metadata{
			Width:     w,
			Height:    h,
			MipLevels: levels,
			ArraySize: 1,
			Format:    gpu.FormatR8G8B8A8UnormSRGB,
		},
	}

	level := base
	img.Subresources = append(img.Subresources, packed(level))
	for mip := 1; mip < levels; mip++ {
		level = transform.Resize(level, max(w>>mip, 1), max(h>>mip, 1), transform.Linear)
		img.Subresources = append(img.Subresources, packed(level))
	}
	return img
}

// MipLevels is the length of a full mip chain down to 1x1.
func MipLevels(w, h int) int {
	n := 1
	for w > 1 || h > 1 {
		w, h = max(w/2, 1), max(h/2, 1)
		n++
	}
	return n
}

func toRGBA(src image.Image) *image.RGBA {
	if rgba, ok := src.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) {
		return rgba
	}
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst
}

func packed(img *image.RGBA) []byte {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	row := w * 4
	if img.Stride == row {
		return append([]byte(nil), img.Pix[:row*h]...)
	}
	out := make([]byte, row*h)
	for y := 0; y < h; y++ {
		copy(out[y*row:(y+1)*row], img.Pix[y*img.Stride:y*img.Stride+row])
	}
	return out
}

// Solid returns a w x h single-color image without mips.
func Solid(w, h int, c color.RGBA) *Image {
	rgba := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(rgba, rgba.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
	return (&ImageDecoder{}).FromImage(rgba)
}
