// Package vk implements the gpu device model on Vulkan through vkngwrapper.
//
// Descriptor heaps, buffer GPU addresses and the fence counter have no
// direct Vulkan equivalent and are emulated on the host: heap handles and
// buffer addresses carry an object id in their upper bits, descriptor sets
// are built lazily from the bound root parameters, and a fence value is
// reached once the VkFence submitted behind it signals.
package vk

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/extensions/khr_swapchain"

	"github.com/cg2go/renderer/gpu"
)

const (
	// descriptorStride is the emulated size of one descriptor.
	descriptorStride = 32
	heapShift        = 24
	addressShift     = 32
)

func colorFormat(f gpu.Format) (core1_0.Format, error) {
	switch f {
	case gpu.FormatR8G8B8A8Unorm:
		return core1_0.FormatR8G8B8A8UnsignedNormalized, nil
	case gpu.FormatR8G8B8A8UnormSRGB:
		return core1_0.FormatR8G8B8A8SRGB, nil
	case gpu.FormatR32G32B32A32Float:
		return core1_0.FormatR32G32B32A32SignedFloat, nil
	case gpu.FormatR32G32B32Float:
		return core1_0.FormatR32G32B32SignedFloat, nil
	case gpu.FormatR32G32Float:
		return core1_0.FormatR32G32SignedFloat, nil
	case gpu.FormatR32Uint:
		return core1_0.FormatR32UnsignedInt, nil
	case gpu.FormatR16Uint:
		return core1_0.FormatR16UnsignedInt, nil
	}
	return 0, errors.Newf("vk: unsupported format %s", f)
}

func indexType(f gpu.Format) core1_0.IndexType {
	if f == gpu.FormatR16Uint {
		return core1_0.IndexTypeUInt16
	}
	return core1_0.IndexTypeUInt32
}

func hasStencilComponent(format core1_0.Format) bool {
	return format == core1_0.FormatD32SignedFloatS8UnsignedInt || format == core1_0.FormatD24UnsignedNormalizedS8UnsignedInt
}

func aspectOf(r *Resource) core1_0.ImageAspectFlags {
	if !r.desc.Format.IsDepth() {
		return core1_0.ImageAspectColor
	}
	if hasStencilComponent(r.format) {
		return core1_0.ImageAspectDepth | core1_0.ImageAspectStencil
	}
	return core1_0.ImageAspectDepth
}

// layoutOf is the image layout backing a resource state.
func layoutOf(r *Resource, state gpu.ResourceState) core1_0.ImageLayout {
	switch state {
	case gpu.StateRenderTarget:
		return core1_0.ImageLayoutColorAttachmentOptimal
	case gpu.StateDepthWrite:
		return core1_0.ImageLayoutDepthStencilAttachmentOptimal
	case gpu.StateCopyDest:
		return core1_0.ImageLayoutTransferDstOptimal
	case gpu.StateGenericRead, gpu.StatePixelShaderResource:
		if r.desc.Format.IsDepth() {
			return core1_0.ImageLayoutDepthStencilReadOnlyOptimal
		}
		return core1_0.ImageLayoutShaderReadOnlyOptimal
	}
	if r.swap {
		return khr_swapchain.ImageLayoutPresentSrc
	}
	return core1_0.ImageLayoutGeneral
}

func subresourceRange(r *Resource, sub int) core1_0.ImageSubresourceRange {
	rng := core1_0.ImageSubresourceRange{
		AspectMask:     aspectOf(r),
		BaseMipLevel:   0,
		LevelCount:     int(r.desc.MipLevels),
		BaseArrayLayer: 0,
		LayerCount:     int(r.desc.DepthOrArraySize),
	}
	if sub != gpu.AllSubresources {
		mips := int(r.desc.MipLevels)
		rng.BaseMipLevel, rng.LevelCount = sub%mips, 1
		rng.BaseArrayLayer, rng.LayerCount = sub/mips, 1
	}
	return rng
}

func stageFlags(v gpu.ShaderVisibility) core1_0.ShaderStageFlags {
	switch v {
	case gpu.VisibilityVertex:
		return core1_0.StageVertex
	case gpu.VisibilityPixel:
		return core1_0.StageFragment
	}
	return core1_0.StageVertex | core1_0.StageFragment
}

func compareOp(f gpu.CompareFunc) core1_0.CompareOp {
	switch f {
	case gpu.CompareLessEqual:
		return core1_0.CompareOpLessOrEqual
	case gpu.CompareAlways:
		return core1_0.CompareOpAlways
	}
	return core1_0.CompareOpLess
}

func cullMode(c gpu.CullMode) core1_0.CullModeFlags {
	switch c {
	case gpu.CullBack:
		return core1_0.CullModeBack
	case gpu.CullFront:
		return core1_0.CullModeFront
	}
	return core1_0.CullModeFlags(0)
}

func bytesToBytecode(b []byte) []uint32 {
	byteCode := make([]uint32, len(b)/4)
	for i := 0; i < len(byteCode); i++ {
		byteIndex := i * 4
		byteCode[i] = 0
		byteCode[i] |= uint32(b[byteIndex])
		byteCode[i] |= uint32(b[byteIndex+1]) << 8
		byteCode[i] |= uint32(b[byteIndex+2]) << 16
		byteCode[i] |= uint32(b[byteIndex+3]) << 24
	}

	return byteCode
}
