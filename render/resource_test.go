package render

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cg2go/renderer/asset"
	"github.com/cg2go/renderer/gpu"
	"github.com/cg2go/renderer/gpu/gputest"
)

func TestCreateBuffer(t *testing.T) {
	dev := gputest.NewDevice(gpu.FeatureLevel12_0, gputest.Options{})
	a := NewAllocator(dev)

	for _, n := range []uint64{1, 3, 16, 255, 256, 4096, 65537} {
		b, err := a.CreateBuffer(n)
		require.NoError(t, err)
		require.Len(t, b.Bytes(), int(n))
		assert.Equal(t, n, b.Size())
		assert.Equal(t, n, b.Resource().Desc().Width)
		assert.Equal(t, gpu.HeapUpload, b.Resource().Heap())
		assert.Equal(t, gpu.StateGenericRead, b.Resource().(*gputest.Resource).State())

		addr := unsafe.Pointer(&b.Bytes()[0])
		for i := range b.Bytes() {
			b.Bytes()[i] = byte(i)
		}
		assert.Equal(t, addr, unsafe.Pointer(&b.Bytes()[0]))
		b.Release()
	}
	assert.Zero(t, dev.Live())

	_, err := a.CreateBuffer(0)
	assert.Error(t, err)
}

func TestCreateBufferOutOfMemory(t *testing.T) {
	dev := gputest.NewDevice(gpu.FeatureLevel12_0, gputest.Options{MaxResources: 1})
	a := NewAllocator(dev)

	_, err := a.CreateBuffer(16)
	require.NoError(t, err)
	_, err = a.CreateBuffer(16)
	assert.ErrorIs(t, err, gputest.ErrOutOfMemory)
}

func TestMapped(t *testing.T) {
	type constants struct {
		Color [4]float32
		Flag  int32
	}
	dev := gputest.NewDevice(gpu.FeatureLevel12_0, gputest.Options{})
	a := NewAllocator(dev)

	b, err := CreateTypedBuffer[constants](a, 1)
	require.NoError(t, err)
	c := Mapped[constants](b)
	c.Color = [4]float32{1, 0, 0, 1}
	c.Flag = 7
	assert.Equal(t, c, Mapped[constants](b))
	assert.Equal(t, byte(7), b.Bytes()[16])

	small, err := a.CreateBuffer(4)
	require.NoError(t, err)
	assert.Panics(t, func() { Mapped[constants](small) })

	idx, err := CreateTypedBuffer[uint32](a, 6)
	require.NoError(t, err)
	s := MappedSlice[uint32](idx, 6)
	copy(s, []uint32{0, 1, 2, 1, 3, 2})
	assert.Equal(t, byte(3), idx.Bytes()[16])
	assert.Panics(t, func() { MappedSlice[uint32](idx, 7) })
}

func TestCreateDepthStencilTexture(t *testing.T) {
	dev := gputest.NewDevice(gpu.FeatureLevel12_0, gputest.Options{})
	tex, err := NewAllocator(dev).CreateDepthStencilTexture(1280, 720)
	require.NoError(t, err)

	res := tex.Resource().(*gputest.Resource)
	assert.Equal(t, gpu.HeapDefault, res.Heap())
	assert.Equal(t, gpu.StateDepthWrite, res.State())
	assert.Equal(t, uint64(1280), res.Desc().Width)
	assert.Equal(t, uint32(720), res.Desc().Height)
	require.NotNil(t, res.ClearValue())
	assert.Equal(t, float32(1.0), res.ClearValue().Depth)
	assert.Equal(t, DepthFormat, res.ClearValue().Format)
}

func TestCreateColorTexture(t *testing.T) {
	dev := gputest.NewDevice(gpu.FeatureLevel12_0, gputest.Options{})
	tex, err := NewAllocator(dev).CreateColorTexture(asset.Metadata{
		Width: 64, Height: 32, MipLevels: 7, ArraySize: 1,
		Format: gpu.FormatR8G8B8A8UnormSRGB,
	})
	require.NoError(t, err)

	res := tex.Resource().(*gputest.Resource)
	assert.Equal(t, gpu.StateCopyDest, res.State())
	assert.Equal(t, 7, res.Desc().Subresources())
	assert.Zero(t, res.GPUAddress())
}
