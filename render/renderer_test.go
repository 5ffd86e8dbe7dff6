package render

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cg2go/renderer/gpu"
	"github.com/cg2go/renderer/gpu/gputest"
)

func quadBuffers(t *testing.T, r *Renderer) (vb, ib, cb *Buffer) {
	t.Helper()
	a := r.Allocator()
	vb, err := a.CreateBuffer(uint64(r.Pipeline().Layout.VertexStride()) * 4)
	require.NoError(t, err)
	ib, err = CreateTypedBuffer[uint32](a, 6)
	require.NoError(t, err)
	copy(MappedSlice[uint32](ib, 6), []uint32{0, 1, 2, 1, 3, 2})
	cb, err = a.CreateBuffer(256)
	require.NoError(t, err)
	return vb, ib, cb
}

func TestSingleDrawFrame(t *testing.T) {
	r, dev, _ := newTestRenderer(t, gputest.Options{}, nil)
	vb, ib, cb := quadBuffers(t, r)

	cl, err := r.BeginFrame()
	require.NoError(t, err)
	quad(t, r, cl, vb, ib, cb)
	require.NoError(t, r.EndFrame())

	assert.Equal(t, uint64(1), r.Commands().Signaled())
	assert.Equal(t, uint64(1), r.Commands().Completed())
	assert.Empty(t, dev.Errors())

	draws := dev.Draws()
	require.Len(t, draws, 1)
	assert.Equal(t, 6, draws[0].IndexCount)
	assert.Equal(t, uint64(1), r.Stats().Frames)
}

func TestBackBufferAlternates(t *testing.T) {
	r, dev, _ := newTestRenderer(t, gputest.Options{}, nil)
	vb, ib, cb := quadBuffers(t, r)

	const frames = 6
	for i := 0; i < frames; i++ {
		cl, err := r.BeginFrame()
		require.NoError(t, err)
		assert.Equal(t, i%2, r.BackBuffer())
		quad(t, r, cl, vb, ib, cb)
		require.NoError(t, r.EndFrame())
	}
	assert.Empty(t, dev.Errors())
	assert.Equal(t, []int{0, 1, 0, 1, 0, 1}, dev.Presents())

	draws := dev.Draws()
	require.Len(t, draws, frames)
	for i, d := range draws {
		assert.Equal(t, i, d.Frame)
		assert.Equal(t, r.RenderTargetView(i%2), d.RTV)
		require.NotNil(t, d.RenderTarget)
		assert.Equal(t, i%2, d.RenderTarget.BackBuffer())
	}
}

func TestConstantWritesVisibleNextFrame(t *testing.T) {
	r, dev, _ := newTestRenderer(t, gputest.Options{Latency: 5 * time.Millisecond}, nil)
	vb, ib, cb := quadBuffers(t, r)
	param := r.Pipeline().Layout.Param(BindMaterial)

	const frames = 8
	for i := 0; i < frames; i++ {
		binary.LittleEndian.PutUint32(cb.Bytes(), uint32(i+100))
		cl, err := r.BeginFrame()
		require.NoError(t, err)
		quad(t, r, cl, vb, ib, cb)
		require.NoError(t, r.EndFrame())
		// Once EndFrame returns the GPU is done; scribbling now must not
		// leak into the frame that was just drawn.
		binary.LittleEndian.PutUint32(cb.Bytes(), 0xdeadbeef)
	}

	draws := dev.Draws()
	require.Len(t, draws, frames)
	for i, d := range draws {
		assert.Equal(t, uint32(i+100), binary.LittleEndian.Uint32(d.Constants[param]), "frame %d", i)
	}
}

func TestDepthStencilView(t *testing.T) {
	r, dev, _ := newTestRenderer(t, gputest.Options{}, nil)

	res := r.DepthTexture().Resource().(*gputest.Resource)
	assert.Equal(t, uint64(1280), res.Desc().Width)
	assert.Equal(t, uint32(720), res.Desc().Height)
	require.NotNil(t, res.ClearValue())
	assert.Equal(t, float32(1.0), res.ClearValue().Depth)

	v, ok := dev.View(r.DepthStencilView())
	require.True(t, ok)
	assert.Equal(t, gpu.HeapKindDSV, v.Kind)
	assert.Equal(t, res.Desc().Format, v.Format)
	assert.Equal(t, res.ClearValue().Format, v.Format)
	assert.Same(t, res, v.Resource)
}

func TestRenderTargetViews(t *testing.T) {
	r, dev, _ := newTestRenderer(t, gputest.Options{}, nil)

	for i := 0; i < 2; i++ {
		v, ok := dev.View(r.RenderTargetView(i))
		require.True(t, ok)
		assert.Equal(t, RenderTargetFormat, v.Format)
		assert.Equal(t, i, v.Resource.BackBuffer())
	}
	assert.Empty(t, dev.Errors())
}

func TestFrameMisuse(t *testing.T) {
	r, _, _ := newTestRenderer(t, gputest.Options{}, nil)

	assert.ErrorIs(t, r.EndFrame(), ErrBadState)
	_, err := r.BeginFrame()
	require.NoError(t, err)
	_, err = r.BeginFrame()
	assert.ErrorIs(t, err, ErrBadState)
	assert.ErrorIs(t, r.Flush(), ErrBadState)
	require.NoError(t, r.EndFrame())
}

func TestNewRendererReleasesOnError(t *testing.T) {
	adapter := gputest.NewAdapter("Fake GPU")
	o := DefaultOptions()
	o.Decoder = &countingDecoder{}
	// No shaders: pipeline creation fails after everything else exists.
	_, err := New(gputest.NewFactory(adapter), o)
	require.Error(t, err)
	assert.Zero(t, adapter.Device.Live())
}

func TestCloseReleasesEverything(t *testing.T) {
	adapter := gputest.NewAdapter("Fake GPU")
	o := DefaultOptions()
	o.VS, o.PS = []byte{1}, []byte{2}
	o.Decoder = &countingDecoder{}
	r, err := New(gputest.NewFactory(adapter), o)
	require.NoError(t, err)

	_, err = r.LoadTexture("a.png")
	require.NoError(t, err)
	require.NoError(t, r.Flush())
	require.NoError(t, r.Close())
	assert.Zero(t, adapter.Device.Live())
}

func TestCloseTwice(t *testing.T) {
	r, dev, _ := newTestRenderer(t, gputest.Options{}, nil)

	require.NoError(t, r.Close())
	assert.NotPanics(t, func() { assert.NoError(t, r.Close()) })
	assert.Zero(t, dev.Live())

	_, err := r.BeginFrame()
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, r.Flush(), ErrClosed)
	_, err = r.LoadTexture("a.png")
	assert.ErrorIs(t, err, ErrClosed)
}
