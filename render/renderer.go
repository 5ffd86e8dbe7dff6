package render

import (
	"log"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/loov/hrtime"

	"github.com/cg2go/renderer/gpu"
)

const (
	// BackBufferFormat is the storage format of the swap chain buffers.
	BackBufferFormat = gpu.FormatR8G8B8A8Unorm
	// RenderTargetFormat is the view format the frame is rendered through.
	RenderTargetFormat = gpu.FormatR8G8B8A8UnormSRGB
)

type Options struct {
	Width  int
	Height int
	// BackBuffers is the swap chain length.
	BackBuffers int

	RTVCapacity int
	DSVCapacity int
	SRVCapacity int
	// ReservedSRV is the number of shader-visible slots kept free ahead of
	// the texture cache.
	ReservedSRV int

	ClearColor   [4]float32
	FenceTimeout time.Duration

	Layout  *PipelineLayout
	VS, PS  []byte
	Decoder Decoder
}

func DefaultOptions() Options {
	return Options{
		Width:       1280,
		Height:      720,
		BackBuffers: 2,
		RTVCapacity: 2,
		DSVCapacity: 1,
		SRVCapacity: 128,
		ReservedSRV: 1,
		ClearColor:  [4]float32{0.1, 0.25, 0.5, 1.0},
		Layout:      &ObjectLayout,
	}
}

// FrameStats is the CPU-side frame timing.
type FrameStats struct {
	Frames uint64
	// Last is the time from BeginFrame to the end of the fence wait.
	Last  time.Duration
	Total time.Duration
}

// FPS is the average frame rate since the first frame.
func (s FrameStats) FPS() float64 {
	if s.Total <= 0 {
		return 0
	}
	return float64(s.Frames) / s.Total.Seconds()
}

// Renderer wires the device objects for one window: a queue, a swap chain
// with its render target views, a depth buffer, the shader-visible heap
// behind the texture cache, the fixed pipeline and the command context.
type Renderer struct {
	opts Options

	adapter  gpu.Adapter
	device   gpu.Device
	queue    gpu.CommandQueue
	swap     gpu.SwapChain
	buffers  []gpu.Resource
	rtvSlots []int

	rtvHeap *DescriptorHeap
	dsvHeap *DescriptorHeap
	srvHeap *DescriptorHeap
	dsvSlot int

	alloc    *Allocator
	depth    *Texture
	textures *TextureCache
	pipeline *Pipeline
	cmd      *CommandContext

	releasers []func()
	closed    bool

	inFrame     bool
	backBuffer  int
	frameStart  time.Duration
	uploadsHook bool
	stats       FrameStats
}

// New selects an adapter from factory and builds the renderer. On error
// everything created so far is released.
func New(factory gpu.Factory, opts Options) (*Renderer, error) {
	r := &Renderer{opts: opts}
	if err := r.init(factory); err != nil {
		r.release()
		return nil, err
	}
	return r, nil
}

func (r *Renderer) onRelease(fn func()) {
	r.releasers = append(r.releasers, fn)
}

func (r *Renderer) init(factory gpu.Factory) error {
	var err error
	r.adapter, r.device, err = SelectAdapter(factory)
	if err != nil {
		return err
	}
	r.onRelease(r.adapter.Release)
	r.onRelease(r.device.Release)

	r.queue, err = r.device.NewCommandQueue()
	if err != nil {
		return errors.Wrap(err, "create command queue")
	}
	r.onRelease(r.queue.Release)

	r.cmd, err = NewCommandContext(r.device, r.queue, r.opts.FenceTimeout)
	if err != nil {
		return err
	}
	r.onRelease(r.cmd.Release)

	r.swap, err = r.device.NewSwapChain(r.queue, gpu.SwapChainDesc{
		Width:       r.opts.Width,
		Height:      r.opts.Height,
		Format:      BackBufferFormat,
		BufferCount: r.opts.BackBuffers,
	})
	if err != nil {
		return errors.Wrap(err, "create swap chain")
	}
	r.onRelease(r.swap.Release)

	if err := r.createHeaps(); err != nil {
		return err
	}
	if err := r.createRenderTargets(); err != nil {
		return err
	}

	r.alloc = NewAllocator(r.device)
	r.depth, err = r.alloc.CreateDepthStencilTexture(r.opts.Width, r.opts.Height)
	if err != nil {
		return err
	}
	r.onRelease(r.depth.Release)
	r.dsvSlot, err = r.dsvHeap.Allocate()
	if err != nil {
		return err
	}
	dsv, _ := r.dsvHeap.HandleAt(r.dsvSlot)
	r.device.CreateDepthStencilView(r.depth.Resource(), DepthFormat, dsv)

	r.textures = NewTextureCache(r.alloc, r.srvHeap, r.opts.Decoder)
	r.onRelease(r.textures.Release)

	r.pipeline, err = NewPipeline(r.device, r.opts.Layout, r.opts.VS, r.opts.PS, RenderTargetFormat, DepthFormat)
	if err != nil {
		return err
	}
	r.onRelease(r.pipeline.Release)
	return nil
}

func (r *Renderer) createHeaps() error {
	var err error
	r.rtvHeap, err = NewDescriptorHeap(r.device, gpu.HeapKindRTV, r.opts.RTVCapacity, false)
	if err != nil {
		return err
	}
	r.onRelease(r.rtvHeap.Release)

	r.dsvHeap, err = NewDescriptorHeap(r.device, gpu.HeapKindDSV, r.opts.DSVCapacity, false)
	if err != nil {
		return err
	}
	r.onRelease(r.dsvHeap.Release)

	r.srvHeap, err = NewDescriptorHeap(r.device, gpu.HeapKindCBVSRV, r.opts.SRVCapacity, true)
	if err != nil {
		return err
	}
	r.onRelease(r.srvHeap.Release)
	return r.srvHeap.Reserve(r.opts.ReservedSRV)
}

func (r *Renderer) createRenderTargets() error {
	for i := 0; i < r.swap.BufferCount(); i++ {
		buf, err := r.swap.Buffer(i)
		if err != nil {
			return errors.Wrapf(err, "get back buffer %d", i)
		}
		slot, err := r.rtvHeap.Allocate()
		if err != nil {
			return err
		}
		h, _ := r.rtvHeap.HandleAt(slot)
		r.device.CreateRenderTargetView(buf, RenderTargetFormat, h)
		r.buffers = append(r.buffers, buf)
		r.rtvSlots = append(r.rtvSlots, slot)
	}
	return nil
}

func (r *Renderer) Device() gpu.Device         { return r.device }
func (r *Renderer) Allocator() *Allocator      { return r.alloc }
func (r *Renderer) Textures() *TextureCache    { return r.textures }
func (r *Renderer) Pipeline() *Pipeline        { return r.pipeline }
func (r *Renderer) Commands() *CommandContext  { return r.cmd }
func (r *Renderer) DepthTexture() *Texture     { return r.depth }
func (r *Renderer) SRVHeap() *DescriptorHeap   { return r.srvHeap }
func (r *Renderer) Stats() FrameStats          { return r.stats }
func (r *Renderer) SetClearColor(c [4]float32) { r.opts.ClearColor = c }
func (r *Renderer) Size() (width, height int)  { return r.opts.Width, r.opts.Height }
func (r *Renderer) BackBuffer() int            { return r.backBuffer }
func (r *Renderer) RenderTargetView(i int) gpu.CPUHandle {
	h, _ := r.rtvHeap.HandleAt(r.rtvSlots[i])
	return h
}

// DepthStencilView is the view the depth texture was created with.
func (r *Renderer) DepthStencilView() gpu.CPUHandle {
	h, _ := r.dsvHeap.HandleAt(r.dsvSlot)
	return h
}

// LoadTexture loads path through the texture cache, recording any upload
// into the current command list. The staging memory is released once the
// list has been retired.
func (r *Renderer) LoadTexture(path string) (TextureHandle, error) {
	if r.closed {
		return 0, ErrClosed
	}
	cl, err := r.cmd.List()
	if err != nil {
		return 0, err
	}
	pending := r.textures.PendingUploads()
	h, err := r.textures.Load(cl, path)
	if err != nil {
		return 0, err
	}
	if r.textures.PendingUploads() > pending && !r.uploadsHook {
		r.uploadsHook = true
		r.cmd.OnRetire(func() {
			r.textures.ReleaseUploads()
			r.uploadsHook = false
		})
	}
	return h, nil
}

// Flush submits and waits for everything recorded outside a frame, such as
// texture uploads.
func (r *Renderer) Flush() error {
	if r.closed {
		return ErrClosed
	}
	if r.inFrame {
		return errors.Wrap(ErrBadState, "flush inside a frame")
	}
	return r.cmd.Flush()
}

// BeginFrame starts recording a frame into the current back buffer and
// returns the command list for the draws. The pipeline and the shader
// visible heap are already bound.
func (r *Renderer) BeginFrame() (gpu.CommandList, error) {
	if r.closed {
		return nil, ErrClosed
	}
	if r.inFrame {
		return nil, errors.Wrap(ErrBadState, "frame already begun")
	}
	cl, err := r.cmd.List()
	if err != nil {
		return nil, err
	}
	r.frameStart = hrtime.Now()
	r.inFrame = true
	r.backBuffer = r.swap.CurrentBackBufferIndex()

	back := r.buffers[r.backBuffer]
	cl.Barrier(gpu.Transition(back, gpu.StatePresent, gpu.StateRenderTarget))

	rtv := r.RenderTargetView(r.backBuffer)
	dsv := r.DepthStencilView()
	cl.SetRenderTargets([]gpu.CPUHandle{rtv}, &dsv)
	cl.ClearRenderTarget(rtv, r.opts.ClearColor)
	cl.ClearDepthStencil(dsv, 1.0, 0)

	cl.SetViewports(gpu.Viewport{
		Width:    float32(r.opts.Width),
		Height:   float32(r.opts.Height),
		MaxDepth: 1,
	})
	cl.SetScissors(gpu.Rect{Right: int32(r.opts.Width), Bottom: int32(r.opts.Height)})

	r.pipeline.Bind(cl)
	cl.SetDescriptorHeaps(r.srvHeap.Heap())
	return cl, nil
}

// EndFrame transitions the back buffer for presentation, submits the
// frame, presents it and blocks until the GPU has retired it.
func (r *Renderer) EndFrame() error {
	if !r.inFrame {
		return errors.Wrap(ErrBadState, "no frame begun")
	}
	r.inFrame = false

	cl, err := r.cmd.List()
	if err != nil {
		return err
	}
	cl.Barrier(gpu.Transition(r.buffers[r.backBuffer], gpu.StateRenderTarget, gpu.StatePresent))

	err = r.cmd.Finish(func() error {
		return r.swap.Present(1)
	})
	if err != nil {
		return err
	}

	r.stats.Frames++
	r.stats.Last = hrtime.Since(r.frameStart)
	r.stats.Total += r.stats.Last
	return nil
}

// Close waits for the GPU to go idle and releases everything in reverse
// creation order. Closing twice is a no-op.
func (r *Renderer) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	var err error
	if r.cmd != nil {
		if err = r.cmd.WaitIdle(); err != nil {
			log.Printf("wait for idle: %v", err)
		}
	}
	r.release()
	return err
}

func (r *Renderer) release() {
	for i := len(r.releasers) - 1; i >= 0; i-- {
		r.releasers[i]()
	}
	r.releasers = nil
}
