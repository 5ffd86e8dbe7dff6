package vk

import (
	"log"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/core1_0"

	"github.com/cg2go/renderer/gpu"
)

type Device struct {
	adapter *Adapter
	level   gpu.FeatureLevel
	device  core1_0.Device
	queue   core1_0.Queue

	depthFormat core1_0.Format
	// surfaceFormat replaces RGBA8 render target formats once a swap
	// chain exists, so that pipelines match the back buffers.
	surfaceFormat core1_0.Format

	waiters sync.WaitGroup

	mu           sync.Mutex
	removed      bool
	fences       map[*Fence]struct{}
	nextID       uint32
	heaps        map[uint32]*DescriptorHeap
	buffers      map[uint32]*Resource
	renderPasses map[passKey]core1_0.RenderPass
	framebuffers map[framebufferKey]core1_0.Framebuffer
}

var _ gpu.Device = (*Device)(nil)

func newDevice(a *Adapter, level gpu.FeatureLevel, device core1_0.Device) (*Device, error) {
	d := &Device{
		adapter:      a,
		level:        level,
		device:       device,
		queue:        device.GetQueue(a.family, 0),
		fences:       map[*Fence]struct{}{},
		heaps:        map[uint32]*DescriptorHeap{},
		buffers:      map[uint32]*Resource{},
		renderPasses: map[passKey]core1_0.RenderPass{},
		framebuffers: map[framebufferKey]core1_0.Framebuffer{},
	}

	var err error
	d.depthFormat, err = d.findSupportedFormat([]core1_0.Format{core1_0.FormatD24UnsignedNormalizedS8UnsignedInt, core1_0.FormatD32SignedFloatS8UnsignedInt, core1_0.FormatD32SignedFloat},
		core1_0.ImageTilingOptimal,
		core1_0.FormatFeatureDepthStencilAttachment)
	if err != nil {
		device.Destroy(nil)
		return nil, err
	}
	return d, nil
}

func (d *Device) FeatureLevel() gpu.FeatureLevel { return d.level }

func (d *Device) findSupportedFormat(formats []core1_0.Format, tiling core1_0.ImageTiling, features core1_0.FormatFeatureFlags) (core1_0.Format, error) {
	for _, format := range formats {
		props := d.adapter.physicalDevice.FormatProperties(format)

		if tiling == core1_0.ImageTilingLinear && (props.LinearTilingFeatures&features) == features {
			return format, nil
		} else if tiling == core1_0.ImageTilingOptimal && (props.OptimalTilingFeatures&features) == features {
			return format, nil
		}
	}

	return 0, errors.Newf("failed to find supported format for tiling %s, featureset %s", tiling, features)
}

func (d *Device) findMemoryType(typeFilter uint32, properties core1_0.MemoryPropertyFlags) (int, error) {
	memProperties := d.adapter.physicalDevice.MemoryProperties()
	for i, memoryType := range memProperties.MemoryTypes {
		typeBit := uint32(1 << i)

		if (typeFilter&typeBit) != 0 && (memoryType.PropertyFlags&properties) == properties {
			return i, nil
		}
	}

	return 0, errors.Newf("failed to find any suitable memory type!")
}

// format maps a gpu format to the Vulkan format actually used for it on
// this device.
func (d *Device) format(f gpu.Format) (core1_0.Format, error) {
	switch f {
	case gpu.FormatD24UnormS8Uint, gpu.FormatD32Float:
		return d.depthFormat, nil
	case gpu.FormatR8G8B8A8Unorm, gpu.FormatR8G8B8A8UnormSRGB:
		d.mu.Lock()
		surface := d.surfaceFormat
		d.mu.Unlock()
		if surface != 0 {
			return surface, nil
		}
	}
	return colorFormat(f)
}

func (d *Device) check() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.removed {
		return gpu.ErrDeviceRemoved
	}
	return nil
}

// remove marks the device lost and releases every fence waiter.
func (d *Device) remove(cause error) {
	d.mu.Lock()
	if d.removed {
		d.mu.Unlock()
		return
	}
	d.removed = true
	fences := make([]*Fence, 0, len(d.fences))
	for f := range d.fences {
		fences = append(fences, f)
	}
	d.mu.Unlock()

	log.Printf("Device removed: %v", cause)
	for _, f := range fences {
		f.complete(^uint64(0))
	}
}

func (d *Device) Removed() bool {
	return d.check() != nil
}

func (d *Device) NewCommandQueue() (gpu.CommandQueue, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	semaphore, _, err := d.device.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
	if err != nil {
		return nil, errors.Wrap(err, "create render semaphore")
	}
	return &Queue{dev: d, queue: d.queue, renderDone: semaphore}, nil
}

func (d *Device) NewCommandAllocator() (gpu.CommandAllocator, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	pool, _, err := d.device.CreateCommandPool(nil, core1_0.CommandPoolCreateInfo{
		Flags:            core1_0.CommandPoolCreateResetBuffer,
		QueueFamilyIndex: d.adapter.family,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create command pool")
	}
	return &CommandAllocator{dev: d, pool: pool}, nil
}

func (d *Device) NewCommandList(alloc gpu.CommandAllocator, ps gpu.PipelineState) (gpu.CommandList, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	cl := &CommandList{dev: d, closed: true}
	if err := cl.Reset(alloc, ps); err != nil {
		return nil, err
	}
	return cl, nil
}

func (d *Device) NewFence(initial uint64) (gpu.Fence, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	f := &Fence{dev: d, completed: initial}
	d.mu.Lock()
	d.fences[f] = struct{}{}
	d.mu.Unlock()
	return f, nil
}

func (d *Device) NewSwapChain(queue gpu.CommandQueue, desc gpu.SwapChainDesc) (gpu.SwapChain, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	q, ok := queue.(*Queue)
	if !ok {
		return nil, errors.AssertionFailedf("vk: foreign command queue %T", queue)
	}
	return newSwapChain(d, q, desc)
}

func (d *Device) DescriptorIncrement(gpu.HeapKind) uint32 { return descriptorStride }

func (d *Device) NewDescriptorHeap(kind gpu.HeapKind, capacity int, shaderVisible bool) (gpu.DescriptorHeap, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	if capacity <= 0 {
		return nil, errors.Newf("vk: descriptor heap capacity %d", capacity)
	}
	if shaderVisible && kind != gpu.HeapKindCBVSRV {
		return nil, errors.Newf("vk: %s heaps cannot be shader visible", kind)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	h := &DescriptorHeap{
		dev:     d,
		id:      d.nextID,
		kind:    kind,
		visible: shaderVisible,
		slots:   make([]descriptor, capacity),
	}
	d.heaps[h.id] = h
	return h, nil
}

// lookupDescriptor resolves a heap handle to its heap and slot index.
func (d *Device) lookupDescriptor(ptr uint64) (*DescriptorHeap, int, error) {
	d.mu.Lock()
	h := d.heaps[uint32(ptr>>heapShift)]
	d.mu.Unlock()
	if h == nil {
		return nil, 0, errors.Newf("vk: handle %#x does not belong to a live heap", ptr)
	}
	off := ptr & (1<<heapShift - 1)
	i := int(off / descriptorStride)
	if off%descriptorStride != 0 || i >= len(h.slots) {
		return nil, 0, errors.Newf("vk: handle %#x is outside its %s heap", ptr, h.kind)
	}
	return h, i, nil
}

// lookupBuffer resolves a GPU address to its buffer and byte offset.
func (d *Device) lookupBuffer(addr gpu.GPUAddress) (*Resource, int, error) {
	d.mu.Lock()
	r := d.buffers[uint32(uint64(addr)>>addressShift)]
	d.mu.Unlock()
	if r == nil {
		return nil, 0, errors.Newf("vk: address %#x does not belong to a live buffer", uint64(addr))
	}
	off := uint64(addr) - uint64(r.addr)
	if off >= r.desc.Width {
		return nil, 0, errors.Newf("vk: address %#x is past the end of its buffer", uint64(addr))
	}
	return r, int(off), nil
}

func (d *Device) createView(kind string, r gpu.Resource, dst gpu.CPUHandle, info func(*Resource) (core1_0.ImageViewCreateInfo, error)) {
	h, i, err := d.lookupDescriptor(uint64(dst.Ptr))
	if err != nil {
		log.Printf("Create %s view: %+v", kind, err)
		return
	}
	res, ok := r.(*Resource)
	if !ok || res.image == nil {
		log.Printf("Create %s view: resource is not a texture", kind)
		return
	}
	ci, err := info(res)
	if err != nil {
		log.Printf("Create %s view: %+v", kind, err)
		return
	}
	ci.Image = res.image
	view, _, err := d.device.CreateImageView(nil, ci)
	if err != nil {
		log.Printf("Create %s view: %+v", kind, err)
		return
	}
	h.set(i, descriptor{view: view, res: res})
}

func (d *Device) CreateRenderTargetView(r gpu.Resource, format gpu.Format, dst gpu.CPUHandle) {
	d.createView("render target", r, dst, func(res *Resource) (core1_0.ImageViewCreateInfo, error) {
		f := res.format
		if !res.swap {
			var err error
			if f, err = d.format(format); err != nil {
				return core1_0.ImageViewCreateInfo{}, err
			}
		}
		return core1_0.ImageViewCreateInfo{
			ViewType:         core1_0.ImageViewType2D,
			Format:           f,
			SubresourceRange: subresourceRange(res, 0),
		}, nil
	})
}

func (d *Device) CreateDepthStencilView(r gpu.Resource, format gpu.Format, dst gpu.CPUHandle) {
	d.createView("depth stencil", r, dst, func(res *Resource) (core1_0.ImageViewCreateInfo, error) {
		if !format.IsDepth() {
			return core1_0.ImageViewCreateInfo{}, errors.Newf("vk: %s is not a depth format", format)
		}
		rng := subresourceRange(res, 0)
		rng.AspectMask = core1_0.ImageAspectDepth
		return core1_0.ImageViewCreateInfo{
			ViewType:         core1_0.ImageViewType2D,
			Format:           res.format,
			SubresourceRange: rng,
		}, nil
	})
}

func (d *Device) CreateShaderResourceView(r gpu.Resource, desc gpu.SRVDesc, dst gpu.CPUHandle) {
	d.createView("shader resource", r, dst, func(res *Resource) (core1_0.ImageViewCreateInfo, error) {
		f, err := d.format(desc.Format)
		if err != nil {
			return core1_0.ImageViewCreateInfo{}, err
		}
		viewType := core1_0.ImageViewType2D
		if desc.Cube {
			viewType = core1_0.ImageViewTypeCube
		}
		rng := subresourceRange(res, gpu.AllSubresources)
		rng.LevelCount = max(desc.MipLevels, 1)
		rng.LayerCount = max(desc.ArraySize, 1)
		return core1_0.ImageViewCreateInfo{
			ViewType:         viewType,
			Format:           f,
			SubresourceRange: rng,
		}, nil
	})
}

// dropView destroys a view and every framebuffer built on it.
func (d *Device) dropView(view core1_0.ImageView) {
	d.mu.Lock()
	for key, fb := range d.framebuffers {
		if key.color == view || key.depth == view {
			fb.Destroy(nil)
			delete(d.framebuffers, key)
		}
	}
	d.mu.Unlock()
	view.Destroy(nil)
}

func (d *Device) Release() {
	_, err := d.device.WaitIdle()
	if err != nil {
		log.Printf("Wait for device idle: %+v", err)
	}
	d.waiters.Wait()

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, fb := range d.framebuffers {
		fb.Destroy(nil)
	}
	for _, rp := range d.renderPasses {
		rp.Destroy(nil)
	}
	d.framebuffers = map[framebufferKey]core1_0.Framebuffer{}
	d.renderPasses = map[passKey]core1_0.RenderPass{}

	if d.device != nil {
		d.device.Destroy(nil)
		d.device = nil
	}
}
