package render

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cg2go/renderer/gpu"
	"github.com/cg2go/renderer/gpu/gputest"
)

func TestLoadTextureTwice(t *testing.T) {
	r, dev, dec := newTestRenderer(t, gputest.Options{}, func(o *Options) {
		o.RTVCapacity = 2
		o.SRVCapacity = 128
	})

	first, err := r.LoadTexture("resources/uvChecker.png")
	require.NoError(t, err)
	second, err := r.LoadTexture("resources/uvChecker.png")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, dec.calls["resources/uvChecker.png"])
	assert.Equal(t, 1, r.Textures().Len())

	e, ok := r.Textures().Entry(second)
	require.True(t, ok)
	assert.Equal(t, 1, e.Slot)
	cpu, gh := r.SRVHeap().HandleAt(1)
	assert.Equal(t, cpu, e.CPU)
	assert.Equal(t, gh, r.Textures().GPUHandle(second))

	v, ok := dev.View(e.CPU)
	require.True(t, ok)
	assert.Equal(t, gpu.HeapKindCBVSRV, v.Kind)
	assert.Equal(t, e.Texture.Resource(), gpu.Resource(v.Resource))
	assert.Equal(t, 4, v.SRV.MipLevels)
}

func TestLoadTextureSlots(t *testing.T) {
	r, _, dec := newTestRenderer(t, gputest.Options{}, nil)

	paths := []string{"a.png", "b.png", "c.png"}
	for i, p := range paths {
		h, err := r.LoadTexture(p)
		require.NoError(t, err)
		assert.Equal(t, TextureHandle(i), h)
		e, _ := r.Textures().Entry(h)
		assert.Equal(t, r.opts.ReservedSRV+i, e.Slot)
	}
	h, err := r.LoadTexture("b.png")
	require.NoError(t, err)
	assert.Equal(t, TextureHandle(1), h)
	assert.Len(t, dec.calls, 3)
}

func TestTextureUpload(t *testing.T) {
	r, dev, dec := newTestRenderer(t, gputest.Options{}, nil)

	h, err := r.LoadTexture("gradient.png")
	require.NoError(t, err)
	assert.Equal(t, 1, r.Textures().PendingUploads())

	before := dev.Live()
	require.NoError(t, r.Flush())
	assert.Empty(t, dev.Errors())
	assert.Zero(t, r.Textures().PendingUploads())
	assert.Equal(t, before-1, dev.Live())

	e, _ := r.Textures().Entry(h)
	res := e.Texture.Resource().(*gputest.Resource)
	assert.Equal(t, gpu.StateGenericRead, res.State())

	img, err := dec.Decode("gradient.png")
	require.NoError(t, err)
	data := res.Bytes()
	fps, _ := gpu.CopyableFootprints(res.Desc())
	require.Len(t, fps, len(img.Subresources))
	for i, fp := range fps {
		row := img.RowBytes(i)
		for y := 0; y < int(fp.Height); y++ {
			off := int(fp.Offset) + y*int(fp.RowPitch)
			assert.Equal(t, img.Subresources[i][y*row:(y+1)*row], data[off:off+row], "subresource %d row %d", i, y)
		}
	}
}

func TestTextureCacheFull(t *testing.T) {
	r, _, _ := newTestRenderer(t, gputest.Options{}, func(o *Options) {
		o.SRVCapacity = 3
	})

	_, err := r.LoadTexture("a.png")
	require.NoError(t, err)
	_, err = r.LoadTexture("b.png")
	require.NoError(t, err)
	_, err = r.LoadTexture("c.png")
	assert.ErrorIs(t, err, ErrCacheFull)

	_, err = r.LoadTexture("a.png")
	assert.NoError(t, err)
}

func TestUploadsOutliveSubmission(t *testing.T) {
	r, dev, _ := newTestRenderer(t, gputest.Options{Latency: 20 * time.Millisecond}, nil)

	_, err := r.LoadTexture("slow.png")
	require.NoError(t, err)

	cmd := r.Commands()
	require.NoError(t, cmd.Close())
	require.NoError(t, cmd.Submit(nil))
	_, err = cmd.Signal()
	require.NoError(t, err)
	assert.Equal(t, 1, r.Textures().PendingUploads())

	require.NoError(t, cmd.Wait())
	assert.Zero(t, r.Textures().PendingUploads())
	require.NoError(t, cmd.Reset())
	assert.Empty(t, dev.Errors())
}

func TestTextureSlotsShareHeapAllocator(t *testing.T) {
	r, _, _ := newTestRenderer(t, gputest.Options{}, nil)

	own, err := r.SRVHeap().Allocate()
	require.NoError(t, err)

	h, err := r.LoadTexture("a.png")
	require.NoError(t, err)
	e, _ := r.Textures().Entry(h)
	assert.NotEqual(t, own, e.Slot)

	next, err := r.SRVHeap().Allocate()
	require.NoError(t, err)
	assert.NotEqual(t, e.Slot, next)
	assert.NotEqual(t, own, next)
}
