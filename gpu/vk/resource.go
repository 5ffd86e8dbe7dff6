package vk

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/core1_0"

	"github.com/cg2go/renderer/gpu"
)

// Resource is either a buffer or an image with its backing memory.
type Resource struct {
	dev  *Device
	desc gpu.ResourceDesc
	heap gpu.HeapType

	buffer core1_0.Buffer
	image  core1_0.Image
	memory core1_0.DeviceMemory
	format core1_0.Format
	addr   gpu.GPUAddress
	id     uint32
	mapped []byte

	// swap images are owned by the swap chain.
	swap bool
	// initialized is false until the first recorded layout transition
	// moves the image out of VK_IMAGE_LAYOUT_UNDEFINED.
	initialized bool
}

var _ gpu.Resource = (*Resource)(nil)

func (r *Resource) Desc() gpu.ResourceDesc     { return r.desc }
func (r *Resource) Heap() gpu.HeapType         { return r.heap }
func (r *Resource) GPUAddress() gpu.GPUAddress { return r.addr }

func (d *Device) NewCommittedResource(heap gpu.HeapType, desc gpu.ResourceDesc, state gpu.ResourceState, clear *gpu.ClearValue) (gpu.Resource, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	if desc.Dimension == gpu.DimensionBuffer {
		return d.createBuffer(heap, desc)
	}
	if heap != gpu.HeapDefault {
		return nil, errors.Newf("vk: textures must live in the default heap")
	}
	return d.createImage(desc)
}

func (d *Device) createBuffer(heap gpu.HeapType, desc gpu.ResourceDesc) (*Resource, error) {
	if desc.Width == 0 {
		return nil, errors.Newf("vk: zero sized buffer")
	}
	if desc.Width >= 1<<addressShift {
		return nil, errors.Newf("vk: buffer of %d bytes exceeds the address window", desc.Width)
	}

	usage := core1_0.BufferUsageVertexBuffer | core1_0.BufferUsageIndexBuffer | core1_0.BufferUsageUniformBuffer
	properties := core1_0.MemoryPropertyDeviceLocal
	if heap == gpu.HeapUpload {
		usage |= core1_0.BufferUsageTransferSrc
		properties = core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent
	} else {
		usage |= core1_0.BufferUsageTransferDst
	}

	buffer, _, err := d.device.CreateBuffer(nil, core1_0.BufferCreateInfo{
		Size:        int(desc.Width),
		Usage:       usage,
		SharingMode: core1_0.SharingModeExclusive,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create buffer")
	}

	memRequirements := buffer.MemoryRequirements()
	memoryTypeIndex, err := d.findMemoryType(memRequirements.MemoryTypeBits, properties)
	if err != nil {
		buffer.Destroy(nil)
		return nil, err
	}

	memory, _, err := d.device.AllocateMemory(nil, core1_0.MemoryAllocateInfo{
		AllocationSize:  memRequirements.Size,
		MemoryTypeIndex: memoryTypeIndex,
	})
	if err != nil {
		buffer.Destroy(nil)
		return nil, errors.Wrap(err, "allocate buffer memory")
	}

	if _, err = buffer.BindBufferMemory(memory, 0); err != nil {
		buffer.Destroy(nil)
		memory.Free(nil)
		return nil, errors.Wrap(err, "bind buffer memory")
	}

	r := &Resource{dev: d, desc: desc, heap: heap, buffer: buffer, memory: memory}
	d.mu.Lock()
	d.nextID++
	r.id = d.nextID
	r.addr = gpu.GPUAddress(uint64(r.id) << addressShift)
	d.buffers[r.id] = r
	d.mu.Unlock()
	return r, nil
}

func (d *Device) createImage(desc gpu.ResourceDesc) (*Resource, error) {
	format, err := d.format(desc.Format)
	if err != nil {
		return nil, err
	}

	var usage core1_0.ImageUsageFlags
	switch {
	case desc.Flags&gpu.FlagAllowDepthStencil != 0:
		usage = core1_0.ImageUsageDepthStencilAttachment
	case desc.Flags&gpu.FlagAllowRenderTarget != 0:
		usage = core1_0.ImageUsageColorAttachment | core1_0.ImageUsageSampled
	default:
		usage = core1_0.ImageUsageTransferDst | core1_0.ImageUsageSampled
	}

	image, _, err := d.device.CreateImage(nil, core1_0.ImageCreateOptions{
		ImageType: core1_0.ImageType2D,
		Extent: core1_0.Extent3D{
			Width:  int(desc.Width),
			Height: int(desc.Height),
			Depth:  1,
		},
		MipLevels:     int(max(desc.MipLevels, 1)),
		ArrayLayers:   int(max(desc.DepthOrArraySize, 1)),
		Format:        format,
		Tiling:        core1_0.ImageTilingOptimal,
		InitialLayout: core1_0.ImageLayoutUndefined,
		Usage:         usage,
		SharingMode:   core1_0.SharingModeExclusive,
		Samples:       core1_0.Samples1,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create image")
	}

	memReqs := image.MemoryRequirements()
	memoryIndex, err := d.findMemoryType(memReqs.MemoryTypeBits, core1_0.MemoryPropertyDeviceLocal)
	if err != nil {
		image.Destroy(nil)
		return nil, err
	}

	imageMemory, _, err := d.device.AllocateMemory(nil, core1_0.MemoryAllocateInfo{
		AllocationSize:  memReqs.Size,
		MemoryTypeIndex: memoryIndex,
	})
	if err != nil {
		image.Destroy(nil)
		return nil, errors.Wrap(err, "allocate image memory")
	}

	if _, err = image.BindImageMemory(imageMemory, 0); err != nil {
		image.Destroy(nil)
		imageMemory.Free(nil)
		return nil, errors.Wrap(err, "bind image memory")
	}

	desc.MipLevels = max(desc.MipLevels, 1)
	desc.DepthOrArraySize = max(desc.DepthOrArraySize, 1)
	return &Resource{dev: d, desc: desc, heap: gpu.HeapDefault, image: image, memory: imageMemory, format: format}, nil
}

// Map keeps upload memory persistently mapped until Unmap.
func (r *Resource) Map() ([]byte, error) {
	if r.heap != gpu.HeapUpload {
		return nil, errors.Newf("vk: only upload heap resources can be mapped")
	}
	if r.mapped != nil {
		return r.mapped, nil
	}
	memoryPtr, _, err := r.memory.Map(0, int(r.desc.Width), 0)
	if err != nil {
		return nil, errors.Wrap(err, "map memory")
	}
	r.mapped = unsafe.Slice((*byte)(memoryPtr), int(r.desc.Width))
	return r.mapped, nil
}

func (r *Resource) Unmap() {
	if r.mapped == nil {
		return
	}
	r.memory.Unmap()
	r.mapped = nil
}

func (r *Resource) Release() {
	if r.swap {
		return
	}
	r.Unmap()
	if r.buffer != nil {
		r.dev.mu.Lock()
		delete(r.dev.buffers, r.id)
		r.dev.mu.Unlock()
		r.buffer.Destroy(nil)
		r.buffer = nil
	}
	if r.image != nil {
		r.image.Destroy(nil)
		r.image = nil
	}
	if r.memory != nil {
		r.memory.Free(nil)
		r.memory = nil
	}
}
