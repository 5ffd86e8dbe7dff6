package render

import (
	"github.com/cockroachdb/errors"

	"github.com/cg2go/renderer/asset"
	"github.com/cg2go/renderer/gpu"
)

// Decoder turns an image file into pixel data with a mip chain.
type Decoder interface {
	Decode(path string) (*asset.Image, error)
}

// TextureHandle indexes the texture cache. Handles stay valid until the
// cache is released.
type TextureHandle int

type TextureEntry struct {
	Name    string
	Texture *Texture
	Slot    int
	CPU     gpu.CPUHandle
	GPU     gpu.GPUHandle
}

// TextureCache loads each texture file once and keeps it, with its
// shader-resource view, for the life of the renderer. View slots come from
// the shader visible heap's allocator.
type TextureCache struct {
	alloc   *Allocator
	heap    *DescriptorHeap
	decoder Decoder

	entries []TextureEntry
	uploads []*Buffer
}

func NewTextureCache(alloc *Allocator, heap *DescriptorHeap, decoder Decoder) *TextureCache {
	return &TextureCache{
		alloc:   alloc,
		heap:    heap,
		decoder: decoder,
	}
}

// Load returns the handle of the texture at path, decoding and uploading
// it on first use. The upload is recorded into cl and only happens once cl
// is executed; the staging buffers stay pending until ReleaseUploads.
func (c *TextureCache) Load(cl gpu.CommandList, path string) (TextureHandle, error) {
	for i, e := range c.entries {
		if e.Name == path {
			return TextureHandle(i), nil
		}
	}

	if c.heap.Available() == 0 {
		return 0, errors.Wrapf(ErrCacheFull, "load %s", path)
	}

	img, err := c.decoder.Decode(path)
	if err != nil {
		return 0, errors.Wrapf(err, "load texture %s", path)
	}
	tex, err := c.alloc.CreateColorTexture(img.Metadata)
	if err != nil {
		return 0, err
	}
	slot, err := c.heap.Allocate()
	if err != nil {
		tex.Release()
		return 0, errors.Mark(errors.Wrapf(err, "load %s", path), ErrCacheFull)
	}
	if err := c.upload(cl, tex, img); err != nil {
		tex.Release()
		return 0, err
	}

	cpu, gpuHandle := c.heap.HandleAt(slot)
	c.alloc.dev.CreateShaderResourceView(tex.Resource(), gpu.SRVDesc{
		Format:    img.Format,
		MipLevels: img.MipLevels,
		ArraySize: max(img.ArraySize, 1),
		Cube:      img.Cube,
	}, cpu)

	c.entries = append(c.entries, TextureEntry{
		Name:    path,
		Texture: tex,
		Slot:    slot,
		CPU:     cpu,
		GPU:     gpuHandle,
	})
	return TextureHandle(len(c.entries) - 1), nil
}

// upload stages every subresource of img in one intermediate buffer and
// records the copies plus the transition to generic read.
func (c *TextureCache) upload(cl gpu.CommandList, tex *Texture, img *asset.Image) error {
	fps, total := gpu.CopyableFootprints(tex.Desc())
	if len(img.Subresources) != len(fps) {
		return errors.Newf("image has %d subresources, texture expects %d", len(img.Subresources), len(fps))
	}

	staging, err := c.alloc.CreateBuffer(total)
	if err != nil {
		return errors.Wrap(err, "create intermediate buffer")
	}
	mem := staging.Bytes()
	for i, fp := range fps {
		src := img.Subresources[i]
		row := img.RowBytes(i)
		if len(src) < row*int(fp.Height) {
			staging.Release()
			return errors.Newf("subresource %d has %d bytes, need %d", i, len(src), row*int(fp.Height))
		}
		for y := 0; y < int(fp.Height); y++ {
			dst := fp.Offset + uint64(y)*uint64(fp.RowPitch)
			copy(mem[dst:dst+uint64(row)], src[y*row:(y+1)*row])
		}
		cl.CopyTextureRegion(tex.Resource(), i, staging.Resource(), fp)
	}
	cl.Barrier(gpu.Transition(tex.Resource(), gpu.StateCopyDest, gpu.StateGenericRead))

	c.uploads = append(c.uploads, staging)
	return nil
}

func (c *TextureCache) Len() int { return len(c.entries) }

func (c *TextureCache) Entry(h TextureHandle) (TextureEntry, bool) {
	if int(h) < 0 || int(h) >= len(c.entries) {
		return TextureEntry{}, false
	}
	return c.entries[h], true
}

// GPUHandle is the descriptor table base for the texture.
func (c *TextureCache) GPUHandle(h TextureHandle) gpu.GPUHandle {
	return c.entries[h].GPU
}

// PendingUploads is the number of staging buffers not yet released.
func (c *TextureCache) PendingUploads() int { return len(c.uploads) }

// ReleaseUploads frees the staging buffers. Only call it once the command
// lists that copy from them have completed on the GPU.
func (c *TextureCache) ReleaseUploads() {
	for _, b := range c.uploads {
		b.Release()
	}
	c.uploads = nil
}

func (c *TextureCache) Release() {
	c.ReleaseUploads()
	for i := len(c.entries) - 1; i >= 0; i-- {
		c.entries[i].Texture.Release()
	}
	c.entries = nil
}
