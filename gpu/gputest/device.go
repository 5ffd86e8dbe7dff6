package gputest

import (
	"math"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/cg2go/renderer/gpu"
)

const (
	heapShift    = 24
	gpuHeapShift = 40
	addrShift    = 32
)

var increments = map[gpu.HeapKind]uint32{
	gpu.HeapKindCBVSRV: 32,
	gpu.HeapKindRTV:    32,
	gpu.HeapKindDSV:    8,
}

// Calls counts device activity.
type Calls struct {
	Resources    int
	Lists        int
	Executes     int
	Signals      int
	Presents     int
	AllocResets  int
	ListResets   int
	ListsClosed  int
	ViewsCreated int
}

// View is a descriptor written into a heap slot.
type View struct {
	Kind     gpu.HeapKind
	Resource *Resource
	Format   gpu.Format
	SRV      gpu.SRVDesc
}

// DrawRecord is what the simulated GPU saw when it executed a draw.
type DrawRecord struct {
	// Frame is the number of presents the GPU timeline had executed
	// before the draw.
	Frame         int
	RTV           gpu.CPUHandle
	RenderTarget  *Resource
	VertexCount   int
	IndexCount    int
	InstanceCount int
	// Constants holds a copy of each bound constant buffer, from the
	// bound address to the end of the buffer, keyed by root parameter.
	Constants map[int][]byte
	Tables    map[int]gpu.GPUHandle
}

type Device struct {
	opts  Options
	level gpu.FeatureLevel

	mu        sync.Mutex
	nextID    uint64
	resources map[uint64]*Resource
	heaps     map[uint64]*DescriptorHeap
	views     map[uintptr]View
	fences    []*Fence
	draws     []DrawRecord
	presents  []int
	errs      []error
	calls     Calls
	removed   bool
}

// NewDevice returns a device without going through an adapter.
func NewDevice(level gpu.FeatureLevel, opts Options) *Device {
	return &Device{
		opts:      opts,
		level:     level,
		resources: make(map[uint64]*Resource),
		heaps:     make(map[uint64]*DescriptorHeap),
		views:     make(map[uintptr]View),
	}
}

func (d *Device) FeatureLevel() gpu.FeatureLevel { return d.level }

// Calls returns a snapshot of the call counters.
func (d *Device) Calls() Calls {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// Draws returns every draw executed so far.
func (d *Device) Draws() []DrawRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]DrawRecord(nil), d.draws...)
}

// Presents returns the back buffer index of every executed present.
func (d *Device) Presents() []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]int(nil), d.presents...)
}

// Errors returns the validation failures observed by the simulated GPU.
func (d *Device) Errors() []error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]error(nil), d.errs...)
}

// View returns the descriptor written at h.
func (d *Device) View(h gpu.CPUHandle) (View, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.views[h.Ptr]
	return v, ok
}

// Live returns the number of resources not yet released.
func (d *Device) Live() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.resources)
}

// Remove simulates a device-removed event. Every fence jumps to
// math.MaxUint64 and later submissions fail.
func (d *Device) Remove() {
	d.mu.Lock()
	d.removed = true
	fences := append([]*Fence(nil), d.fences...)
	d.mu.Unlock()
	for _, f := range fences {
		f.set(math.MaxUint64)
	}
}

func (d *Device) fail(err error) {
	d.mu.Lock()
	d.errs = append(d.errs, err)
	d.mu.Unlock()
}

func (d *Device) id() uint64 {
	d.nextID++
	return d.nextID
}

func (d *Device) NewCommandQueue() (gpu.CommandQueue, error) {
	return newQueue(d), nil
}

func (d *Device) NewCommandAllocator() (gpu.CommandAllocator, error) {
	return &CommandAllocator{dev: d}, nil
}

func (d *Device) NewCommandList(alloc gpu.CommandAllocator, ps gpu.PipelineState) (gpu.CommandList, error) {
	a, ok := alloc.(*CommandAllocator)
	if !ok || a == nil {
		return nil, errors.New("gputest: foreign command allocator")
	}
	d.mu.Lock()
	d.calls.Lists++
	d.mu.Unlock()
	l := &CommandList{dev: d, alloc: a}
	if ps != nil {
		l.SetPipelineState(ps)
	}
	return l, nil
}

func (d *Device) NewFence(initial uint64) (gpu.Fence, error) {
	f := &Fence{value: initial, history: []uint64{initial}}
	d.mu.Lock()
	d.fences = append(d.fences, f)
	d.mu.Unlock()
	return f, nil
}

func (d *Device) NewSwapChain(queue gpu.CommandQueue, desc gpu.SwapChainDesc) (gpu.SwapChain, error) {
	q, ok := queue.(*CommandQueue)
	if !ok || q == nil {
		return nil, errors.New("gputest: foreign command queue")
	}
	if desc.BufferCount < 2 {
		return nil, errors.Newf("gputest: swap chain needs at least 2 buffers, got %d", desc.BufferCount)
	}
	sc := &SwapChain{dev: d, queue: q}
	for i := 0; i < desc.BufferCount; i++ {
		r, err := d.NewCommittedResource(gpu.HeapDefault, gpu.ResourceDesc{
			Dimension:        gpu.DimensionTexture2D,
			Width:            uint64(desc.Width),
			Height:           uint32(desc.Height),
			DepthOrArraySize: 1,
			MipLevels:        1,
			Format:           desc.Format,
			Flags:            gpu.FlagAllowRenderTarget,
		}, gpu.StatePresent, nil)
		if err != nil {
			return nil, err
		}
		res := r.(*Resource)
		res.backBuffer = i
		sc.buffers = append(sc.buffers, res)
	}
	return sc, nil
}

func (d *Device) NewDescriptorHeap(kind gpu.HeapKind, capacity int, shaderVisible bool) (gpu.DescriptorHeap, error) {
	if capacity <= 0 {
		return nil, errors.Newf("gputest: invalid descriptor heap capacity %d", capacity)
	}
	if shaderVisible && kind != gpu.HeapKindCBVSRV {
		return nil, errors.Newf("gputest: %s heaps cannot be shader visible", kind)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	h := &DescriptorHeap{
		dev:      d,
		id:       d.id(),
		kind:     kind,
		capacity: capacity,
		visible:  shaderVisible,
	}
	d.heaps[h.id] = h
	return h, nil
}

func (d *Device) DescriptorIncrement(kind gpu.HeapKind) uint32 {
	return increments[kind]
}

func (d *Device) NewCommittedResource(heap gpu.HeapType, desc gpu.ResourceDesc, state gpu.ResourceState, clear *gpu.ClearValue) (gpu.Resource, error) {
	if desc.Dimension == gpu.DimensionBuffer && desc.Width == 0 {
		return nil, errors.New("gputest: zero-sized buffer")
	}
	if desc.Dimension == gpu.DimensionTexture2D && (desc.Width == 0 || desc.Height == 0 || desc.MipLevels == 0) {
		return nil, errors.Newf("gputest: invalid texture desc %+v", desc)
	}
	if heap == gpu.HeapUpload && desc.Dimension != gpu.DimensionBuffer {
		return nil, errors.New("gputest: textures cannot live in the upload heap")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.removed {
		return nil, gpu.ErrDeviceRemoved
	}
	if d.opts.MaxResources > 0 && d.calls.Resources >= d.opts.MaxResources {
		return nil, ErrOutOfMemory
	}
	d.calls.Resources++

	_, size := gpu.CopyableFootprints(desc)
	r := &Resource{
		dev:        d,
		id:         d.id(),
		desc:       desc,
		heap:       heap,
		state:      state,
		data:       make([]byte, size),
		backBuffer: -1,
	}
	if clear != nil {
		cv := *clear
		r.clear = &cv
	}
	d.resources[r.id] = r
	return r, nil
}

func (d *Device) NewRootSignature(desc gpu.RootSignatureDesc) (gpu.RootSignature, error) {
	for i, p := range desc.Params {
		if p.Kind == gpu.RootTable && p.NumDescriptors <= 0 {
			return nil, errors.Newf("gputest: root parameter %d has an empty table", i)
		}
	}
	return &RootSignature{desc: desc}, nil
}

func (d *Device) NewPipelineState(desc gpu.PipelineDesc) (gpu.PipelineState, error) {
	if desc.RootSignature == nil {
		return nil, errors.New("gputest: pipeline without root signature")
	}
	if len(desc.VS) == 0 || len(desc.PS) == 0 {
		return nil, errors.New("gputest: pipeline without shaders")
	}
	return &PipelineState{desc: desc}, nil
}

func (d *Device) CreateRenderTargetView(r gpu.Resource, format gpu.Format, dst gpu.CPUHandle) {
	res := r.(*Resource)
	if !compatible(res.desc.Format, format) {
		d.fail(errors.Newf("gputest: RTV format %s incompatible with resource format %s", format, res.desc.Format))
	}
	d.writeView(gpu.HeapKindRTV, dst, View{Kind: gpu.HeapKindRTV, Resource: res, Format: format})
}

func (d *Device) CreateDepthStencilView(r gpu.Resource, format gpu.Format, dst gpu.CPUHandle) {
	res := r.(*Resource)
	if res.desc.Format != format || !format.IsDepth() {
		d.fail(errors.Newf("gputest: DSV format %s does not match resource format %s", format, res.desc.Format))
	}
	d.writeView(gpu.HeapKindDSV, dst, View{Kind: gpu.HeapKindDSV, Resource: res, Format: format})
}

func (d *Device) CreateShaderResourceView(r gpu.Resource, desc gpu.SRVDesc, dst gpu.CPUHandle) {
	res := r.(*Resource)
	if !compatible(res.desc.Format, desc.Format) {
		d.fail(errors.Newf("gputest: SRV format %s incompatible with resource format %s", desc.Format, res.desc.Format))
	}
	d.writeView(gpu.HeapKindCBVSRV, dst, View{Kind: gpu.HeapKindCBVSRV, Resource: res, Format: desc.Format, SRV: desc})
}

func (d *Device) writeView(kind gpu.HeapKind, dst gpu.CPUHandle, v View) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls.ViewsCreated++
	h, idx, ok := d.heapAt(dst)
	switch {
	case !ok:
		d.errs = append(d.errs, errors.Newf("gputest: handle %#x is not inside any heap", dst.Ptr))
		return
	case h.kind != kind:
		d.errs = append(d.errs, errors.Newf("gputest: %s view written into %s heap", kind, h.kind))
		return
	case idx >= h.capacity:
		d.errs = append(d.errs, errors.Newf("gputest: descriptor index %d out of %s heap capacity %d", idx, h.kind, h.capacity))
		return
	}
	d.views[dst.Ptr] = v
}

// heapAt resolves a CPU handle. Callers hold d.mu.
func (d *Device) heapAt(h gpu.CPUHandle) (*DescriptorHeap, int, bool) {
	heap, ok := d.heaps[uint64(h.Ptr>>heapShift)]
	if !ok {
		return nil, 0, false
	}
	off := h.Ptr - heap.CPUStart().Ptr
	stride := uintptr(increments[heap.kind])
	if off%stride != 0 {
		return nil, 0, false
	}
	return heap, int(off / stride), true
}

// resolve maps a GPU address to its buffer and offset. Callers hold d.mu.
func (d *Device) resolve(addr gpu.GPUAddress) (*Resource, uint64, bool) {
	r, ok := d.resources[uint64(addr)>>addrShift]
	if !ok {
		return nil, 0, false
	}
	off := uint64(addr) & (1<<addrShift - 1)
	if off >= uint64(len(r.data)) {
		return nil, 0, false
	}
	return r, off, true
}

func (d *Device) Release() {}

func compatible(a, b gpu.Format) bool {
	if a == b {
		return true
	}
	srgb := func(f gpu.Format) bool {
		return f == gpu.FormatR8G8B8A8Unorm || f == gpu.FormatR8G8B8A8UnormSRGB
	}
	return srgb(a) && srgb(b)
}

type DescriptorHeap struct {
	dev      *Device
	id       uint64
	kind     gpu.HeapKind
	capacity int
	visible  bool
}

func (h *DescriptorHeap) Kind() gpu.HeapKind { return h.kind }
func (h *DescriptorHeap) Capacity() int      { return h.capacity }
func (h *DescriptorHeap) ShaderVisible() bool {
	return h.visible
}

func (h *DescriptorHeap) CPUStart() gpu.CPUHandle {
	return gpu.CPUHandle{Ptr: uintptr(h.id) << heapShift}
}

func (h *DescriptorHeap) GPUStart() gpu.GPUHandle {
	if !h.visible {
		return gpu.GPUHandle{}
	}
	return gpu.GPUHandle{Ptr: h.id << gpuHeapShift}
}

func (h *DescriptorHeap) Release() {
	h.dev.mu.Lock()
	delete(h.dev.heaps, h.id)
	h.dev.mu.Unlock()
}

type RootSignature struct {
	desc gpu.RootSignatureDesc
}

func (r *RootSignature) Desc() gpu.RootSignatureDesc { return r.desc }
func (r *RootSignature) Release()                    {}

type PipelineState struct {
	desc gpu.PipelineDesc
}

func (p *PipelineState) Desc() gpu.PipelineDesc { return p.desc }
func (p *PipelineState) Release()               {}
