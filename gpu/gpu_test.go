package gpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyableFootprints(t *testing.T) {
	desc := ResourceDesc{
		Dimension:        DimensionTexture2D,
		Width:            100,
		Height:           10,
		DepthOrArraySize: 1,
		MipLevels:        3,
		Format:           FormatR8G8B8A8UnormSRGB,
	}
	fps, total := CopyableFootprints(desc)
	require.Len(t, fps, 3)

	assert.Equal(t, Footprint{Offset: 0, Format: desc.Format, Width: 100, Height: 10, RowPitch: 512}, fps[0])
	// 9 padded rows + one tight row, then aligned to 512.
	assert.Equal(t, uint64(5120), fps[1].Offset)
	assert.Equal(t, uint32(50), fps[1].Width)
	assert.Equal(t, uint32(5), fps[1].Height)
	assert.Equal(t, uint32(256), fps[1].RowPitch)
	assert.Equal(t, uint32(25), fps[2].Width)
	assert.Equal(t, uint32(2), fps[2].Height)

	last := fps[2]
	assert.Equal(t, last.Offset+uint64(last.RowPitch)+uint64(last.Width*4), total)
	for _, fp := range fps {
		assert.Zero(t, fp.Offset%TextureDataPlacementAlignment)
		assert.Zero(t, fp.RowPitch%TextureDataPitchAlignment)
	}
}

func TestCopyableFootprintsArray(t *testing.T) {
	desc := ResourceDesc{
		Dimension:        DimensionTexture2D,
		Width:            4,
		Height:           4,
		DepthOrArraySize: 6,
		MipLevels:        1,
		Format:           FormatR8G8B8A8Unorm,
	}
	fps, _ := CopyableFootprints(desc)
	assert.Len(t, fps, 6)
	assert.Equal(t, 6, desc.Subresources())
}

func TestCopyableFootprintsEmpty(t *testing.T) {
	for _, desc := range []ResourceDesc{
		{Dimension: DimensionTexture2D, Width: 16, Height: 0, DepthOrArraySize: 1, MipLevels: 2, Format: FormatR8G8B8A8Unorm},
		{Dimension: DimensionTexture2D, Width: 0, Height: 16, DepthOrArraySize: 1, MipLevels: 1, Format: FormatR8G8B8A8Unorm},
	} {
		fps, total := CopyableFootprints(desc)
		assert.Empty(t, fps)
		assert.Zero(t, total)
	}
}

func TestInputStride(t *testing.T) {
	stride, offsets := InputStride([]InputElement{
		{Semantic: "POSITION", Format: FormatR32G32B32A32Float, Offset: AppendAligned},
		{Semantic: "TEXCOORD", Format: FormatR32G32Float, Offset: AppendAligned},
		{Semantic: "NORMAL", Format: FormatR32G32B32Float, Offset: AppendAligned},
	})
	assert.Equal(t, uint32(36), stride)
	assert.Equal(t, []uint32{0, 16, 24}, offsets)
}

func TestHandleOffset(t *testing.T) {
	h := CPUHandle{Ptr: 0x1000}
	assert.Equal(t, uintptr(0x1000+3*32), h.Offset(3, 32).Ptr)
	g := GPUHandle{Ptr: 0x2000}
	assert.Equal(t, uint64(0x2000), g.Offset(0, 32).Ptr)
}
