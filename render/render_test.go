package render

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cg2go/renderer/asset"
	"github.com/cg2go/renderer/gpu"
	"github.com/cg2go/renderer/gpu/gputest"
)

// countingDecoder hands out an 8x8 gradient and counts decodes per path.
type countingDecoder struct {
	calls map[string]int
}

func (d *countingDecoder) Decode(path string) (*asset.Image, error) {
	if d.calls == nil {
		d.calls = make(map[string]int)
	}
	d.calls[path]++
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x * 32), G: uint8(y * 32), B: 0x80, A: 0xff})
		}
	}
	return asset.NewImageDecoder().FromImage(img), nil
}

func newTestRenderer(t *testing.T, opts gputest.Options, edit func(*Options)) (*Renderer, *gputest.Device, *countingDecoder) {
	t.Helper()
	adapter := gputest.NewAdapter("Fake GPU")
	adapter.Options = opts
	dec := &countingDecoder{}

	o := DefaultOptions()
	o.VS = []byte{0x01}
	o.PS = []byte{0x02}
	o.Decoder = dec
	if edit != nil {
		edit(&o)
	}

	r, err := New(gputest.NewFactory(adapter), o)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r, adapter.Device, dec
}

// quad records an indexed quad using vb, ib and the constant buffers.
func quad(t *testing.T, r *Renderer, cl gpu.CommandList, vb, ib, cb *Buffer) {
	t.Helper()
	layout := r.Pipeline().Layout
	cl.SetVertexBuffers(0, gpu.VertexBufferView{
		Location: vb.GPUAddress(),
		Size:     uint32(vb.Size()),
		Stride:   layout.VertexStride(),
	})
	cl.SetIndexBuffer(&gpu.IndexBufferView{
		Location: ib.GPUAddress(),
		Size:     uint32(ib.Size()),
		Format:   gpu.FormatR32Uint,
	})
	layout.BindCBV(cl, BindMaterial, cb)
	layout.BindCBV(cl, BindTransform, cb)
	layout.BindCBV(cl, BindLight, cb)
	layout.BindCBV(cl, BindVisibility, cb)
	cl.DrawIndexed(6, 1, 0, 0, 0)
}
