package vk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/common"
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/extensions/khr_surface"
	"github.com/vkngwrapper/extensions/khr_swapchain"

	"github.com/cg2go/renderer/gpu"
)

// hostDevice is a device with only its host side bookkeeping, enough for
// handle and address resolution.
func hostDevice() *Device {
	return &Device{
		heaps:   map[uint32]*DescriptorHeap{},
		buffers: map[uint32]*Resource{},
	}
}

func TestLookupDescriptor(t *testing.T) {
	d := hostDevice()
	h := &DescriptorHeap{dev: d, id: 3, kind: gpu.HeapKindSRV, visible: true, slots: make([]descriptor, 4)}
	d.heaps[h.id] = h

	heap, i, err := d.lookupDescriptor(uint64(h.CPUStart().Ptr) + 2*descriptorStride)
	require.NoError(t, err)
	assert.Same(t, h, heap)
	assert.Equal(t, 2, i)

	heap, i, err = d.lookupDescriptor(h.GPUStart().Ptr)
	require.NoError(t, err)
	assert.Same(t, h, heap)
	assert.Equal(t, 0, i)

	_, _, err = d.lookupDescriptor(uint64(h.CPUStart().Ptr) + 4*descriptorStride)
	assert.Error(t, err, "past the last slot")
	_, _, err = d.lookupDescriptor(uint64(h.CPUStart().Ptr) + 1)
	assert.Error(t, err, "not on a slot boundary")
	_, _, err = d.lookupDescriptor(uint64(7) << heapShift)
	assert.Error(t, err, "unknown heap")
}

func TestShaderInvisibleHeapHasNoGPUStart(t *testing.T) {
	h := &DescriptorHeap{id: 1, kind: gpu.HeapKindRTV, slots: make([]descriptor, 2)}
	assert.Zero(t, h.GPUStart().Ptr)
	assert.NotZero(t, h.CPUStart().Ptr)
}

func TestLookupBuffer(t *testing.T) {
	d := hostDevice()
	r := &Resource{dev: d, id: 5, addr: gpu.GPUAddress(uint64(5) << addressShift), desc: gpu.ResourceDesc{
		Dimension: gpu.DimensionBuffer,
		Width:     256,
	}}
	d.buffers[r.id] = r

	buf, off, err := d.lookupBuffer(r.GPUAddress() + 64)
	require.NoError(t, err)
	assert.Same(t, r, buf)
	assert.Equal(t, 64, off)

	_, _, err = d.lookupBuffer(r.GPUAddress() + 256)
	assert.Error(t, err)
	_, _, err = d.lookupBuffer(gpu.GPUAddress(uint64(6) << addressShift))
	assert.Error(t, err)
}

func TestLayoutOf(t *testing.T) {
	color := &Resource{desc: gpu.ResourceDesc{Format: gpu.FormatR8G8B8A8UnormSRGB, MipLevels: 1, DepthOrArraySize: 1}}
	depth := &Resource{desc: gpu.ResourceDesc{Format: gpu.FormatD24UnormS8Uint, MipLevels: 1, DepthOrArraySize: 1}}
	back := &Resource{desc: color.desc, swap: true}

	assert.Equal(t, core1_0.ImageLayoutColorAttachmentOptimal, layoutOf(color, gpu.StateRenderTarget))
	assert.Equal(t, core1_0.ImageLayoutTransferDstOptimal, layoutOf(color, gpu.StateCopyDest))
	assert.Equal(t, core1_0.ImageLayoutShaderReadOnlyOptimal, layoutOf(color, gpu.StateGenericRead))
	assert.Equal(t, core1_0.ImageLayoutDepthStencilAttachmentOptimal, layoutOf(depth, gpu.StateDepthWrite))
	assert.Equal(t, core1_0.ImageLayoutDepthStencilReadOnlyOptimal, layoutOf(depth, gpu.StateGenericRead))
	assert.Equal(t, khr_swapchain.ImageLayoutPresentSrc, layoutOf(back, gpu.StatePresent))
	assert.Equal(t, core1_0.ImageLayoutGeneral, layoutOf(color, gpu.StatePresent))
}

func TestSubresourceRange(t *testing.T) {
	r := &Resource{desc: gpu.ResourceDesc{Format: gpu.FormatR8G8B8A8Unorm, MipLevels: 4, DepthOrArraySize: 2}}

	all := subresourceRange(r, gpu.AllSubresources)
	assert.Equal(t, core1_0.ImageAspectColor, all.AspectMask)
	assert.Equal(t, 4, all.LevelCount)
	assert.Equal(t, 2, all.LayerCount)

	one := subresourceRange(r, 6)
	assert.Equal(t, 2, one.BaseMipLevel)
	assert.Equal(t, 1, one.BaseArrayLayer)
	assert.Equal(t, 1, one.LevelCount)
	assert.Equal(t, 1, one.LayerCount)
}

func TestAspectOf(t *testing.T) {
	depth := &Resource{desc: gpu.ResourceDesc{Format: gpu.FormatD24UnormS8Uint}, format: core1_0.FormatD24UnsignedNormalizedS8UnsignedInt}
	assert.Equal(t, core1_0.ImageAspectDepth|core1_0.ImageAspectStencil, aspectOf(depth))

	depth.format = core1_0.FormatD32SignedFloat
	assert.Equal(t, core1_0.ImageAspectDepth, aspectOf(depth))
}

func TestColorFormat(t *testing.T) {
	f, err := colorFormat(gpu.FormatR32G32B32A32Float)
	require.NoError(t, err)
	assert.Equal(t, core1_0.FormatR32G32B32A32SignedFloat, f)

	_, err = colorFormat(gpu.FormatUnknown)
	assert.Error(t, err)
}

func TestAPIVersion(t *testing.T) {
	assert.Equal(t, common.Vulkan1_2, apiVersion(gpu.FeatureLevel12_2))
	assert.Equal(t, common.Vulkan1_1, apiVersion(gpu.FeatureLevel12_1))
	assert.Equal(t, common.Vulkan1_0, apiVersion(gpu.FeatureLevel12_0))
}

func TestBytesToBytecode(t *testing.T) {
	code := bytesToBytecode([]byte{0x03, 0x02, 0x23, 0x07, 0x01, 0x00, 0x00, 0x00})
	assert.Equal(t, []uint32{0x07230203, 1}, code)
}

func TestChooseSwapExtent(t *testing.T) {
	fixed := &khr_surface.Capabilities{CurrentExtent: core1_0.Extent2D{Width: 800, Height: 600}}
	assert.Equal(t, core1_0.Extent2D{Width: 800, Height: 600}, chooseSwapExtent(fixed, 1280, 720))

	free := &khr_surface.Capabilities{
		CurrentExtent:  core1_0.Extent2D{Width: -1, Height: -1},
		MinImageExtent: core1_0.Extent2D{Width: 1, Height: 1},
		MaxImageExtent: core1_0.Extent2D{Width: 1024, Height: 1024},
	}
	assert.Equal(t, core1_0.Extent2D{Width: 1024, Height: 720}, chooseSwapExtent(free, 1280, 720))
}

func TestChooseSwapSurfaceFormat(t *testing.T) {
	srgb := khr_surface.Format{Format: core1_0.FormatB8G8R8A8SRGB, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear}
	other := khr_surface.Format{Format: core1_0.FormatR8G8B8A8UnsignedNormalized, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear}

	assert.Equal(t, srgb, chooseSwapSurfaceFormat([]khr_surface.Format{other, srgb}))
	assert.Equal(t, other, chooseSwapSurfaceFormat([]khr_surface.Format{other}))
}

func TestEnablePortability(t *testing.T) {
	var options core1_0.InstanceCreateInfo
	enablePortability(&options, map[string]*core1_0.ExtensionProperties{})
	assert.Empty(t, options.EnabledExtensionNames)
	assert.Zero(t, options.Flags)

	enablePortability(&options, map[string]*core1_0.ExtensionProperties{
		"VK_KHR_portability_enumeration": {ExtensionName: "VK_KHR_portability_enumeration"},
	})
	assert.Equal(t, []string{"VK_KHR_portability_enumeration"}, options.EnabledExtensionNames)
	assert.Equal(t, core1_0.InstanceCreateFlags(1), options.Flags)
}

func TestCheckSetLimit(t *testing.T) {
	limits := &core1_0.PhysicalDeviceLimits{MaxBoundDescriptorSets: 4}
	assert.NoError(t, checkSetLimit(4, limits))
	assert.Error(t, checkSetLimit(5, limits))

	limits.MaxBoundDescriptorSets = 32
	assert.NoError(t, checkSetLimit(5, limits))
}
