package gpu

const (
	// TextureDataPitchAlignment is the row pitch alignment of texture data
	// staged in a buffer.
	TextureDataPitchAlignment = 256
	// TextureDataPlacementAlignment is the offset alignment of every
	// subresource staged in a buffer.
	TextureDataPlacementAlignment = 512
)

// Footprint is the layout of one subresource inside an upload buffer.
type Footprint struct {
	Offset   uint64
	Format   Format
	Width    uint32
	Height   uint32
	RowPitch uint32
}

// CopyableFootprints lays out every subresource of a texture in a single
// staging buffer, mip-major within each array slice, and returns the total
// byte size the buffer must have. An empty texture has no footprints.
func CopyableFootprints(desc ResourceDesc) ([]Footprint, uint64) {
	if desc.Dimension == DimensionBuffer {
		return []Footprint{{Width: uint32(desc.Width), Height: 1, RowPitch: uint32(desc.Width)}}, desc.Width
	}

	if desc.Width == 0 || desc.Height == 0 {
		return nil, 0
	}

	bpp := uint32(desc.Format.Size())
	fps := make([]Footprint, 0, desc.Subresources())
	var total uint64
	for slice := 0; slice < int(desc.DepthOrArraySize); slice++ {
		w, h := uint32(desc.Width), desc.Height
		for mip := 0; mip < int(desc.MipLevels); mip++ {
			total = alignUp(total, TextureDataPlacementAlignment)
			pitch := uint32(alignUp(uint64(w*bpp), TextureDataPitchAlignment))
			fps = append(fps, Footprint{
				Offset:   total,
				Format:   desc.Format,
				Width:    w,
				Height:   h,
				RowPitch: pitch,
			})
			total += uint64(pitch) * uint64(h-1)
			total += uint64(w * bpp)
			w, h = max(w/2, 1), max(h/2, 1)
		}
	}
	return fps, total
}

func alignUp(v, a uint64) uint64 {
	return (v + a - 1) &^ (a - 1)
}
