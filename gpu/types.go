package gpu

import "fmt"

type FeatureLevel int

const (
	FeatureLevel12_0 FeatureLevel = iota
	FeatureLevel12_1
	FeatureLevel12_2
)

func (l FeatureLevel) String() string {
	switch l {
	case FeatureLevel12_0:
		return "12.0"
	case FeatureLevel12_1:
		return "12.1"
	case FeatureLevel12_2:
		return "12.2"
	}
	return fmt.Sprintf("FeatureLevel(%d)", int(l))
}

type AdapterDesc struct {
	Description string
	Software    bool
}

// HeapType selects where a committed resource lives.
type HeapType int

const (
	// HeapDefault is GPU-local memory the CPU cannot map.
	HeapDefault HeapType = iota
	// HeapUpload is CPU-writable memory the GPU reads across the bus.
	HeapUpload
)

type ResourceState int

const (
	StateCommon ResourceState = iota
	StateRenderTarget
	StateDepthWrite
	StateCopyDest
	StateGenericRead
	StatePixelShaderResource

	// StatePresent is the state a back buffer must be in to be presented.
	StatePresent = StateCommon
)

func (s ResourceState) String() string {
	switch s {
	case StateCommon:
		return "common"
	case StateRenderTarget:
		return "render-target"
	case StateDepthWrite:
		return "depth-write"
	case StateCopyDest:
		return "copy-dest"
	case StateGenericRead:
		return "generic-read"
	case StatePixelShaderResource:
		return "pixel-shader-resource"
	}
	return fmt.Sprintf("ResourceState(%d)", int(s))
}

type Format int

const (
	FormatUnknown Format = iota
	FormatR8G8B8A8Unorm
	FormatR8G8B8A8UnormSRGB
	FormatD24UnormS8Uint
	FormatD32Float
	FormatR32G32B32A32Float
	FormatR32G32B32Float
	FormatR32G32Float
	FormatR32Uint
	FormatR16Uint
)

// Size returns the size in bytes of one element (texel, vertex attribute
// or index) of the format.
func (f Format) Size() int {
	switch f {
	case FormatR8G8B8A8Unorm, FormatR8G8B8A8UnormSRGB, FormatD24UnormS8Uint, FormatD32Float, FormatR32Uint:
		return 4
	case FormatR32G32B32A32Float:
		return 16
	case FormatR32G32B32Float:
		return 12
	case FormatR32G32Float:
		return 8
	case FormatR16Uint:
		return 2
	}
	return 0
}

func (f Format) IsDepth() bool {
	return f == FormatD24UnormS8Uint || f == FormatD32Float
}

func (f Format) String() string {
	switch f {
	case FormatUnknown:
		return "unknown"
	case FormatR8G8B8A8Unorm:
		return "R8G8B8A8_UNORM"
	case FormatR8G8B8A8UnormSRGB:
		return "R8G8B8A8_UNORM_SRGB"
	case FormatD24UnormS8Uint:
		return "D24_UNORM_S8_UINT"
	case FormatD32Float:
		return "D32_FLOAT"
	case FormatR32G32B32A32Float:
		return "R32G32B32A32_FLOAT"
	case FormatR32G32B32Float:
		return "R32G32B32_FLOAT"
	case FormatR32G32Float:
		return "R32G32_FLOAT"
	case FormatR32Uint:
		return "R32_UINT"
	case FormatR16Uint:
		return "R16_UINT"
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

type Dimension int

const (
	DimensionBuffer Dimension = iota
	DimensionTexture2D
)

type ResourceFlags int

const (
	FlagNone              ResourceFlags = 0
	FlagAllowRenderTarget ResourceFlags = 1 << iota
	FlagAllowDepthStencil
)

type ResourceDesc struct {
	Dimension        Dimension
	Width            uint64
	Height           uint32
	DepthOrArraySize uint16
	MipLevels        uint16
	Format           Format
	Flags            ResourceFlags
}

// BufferDesc describes a linear buffer of size bytes.
func BufferDesc(size uint64) ResourceDesc {
	return ResourceDesc{
		Dimension:        DimensionBuffer,
		Width:            size,
		Height:           1,
		DepthOrArraySize: 1,
		MipLevels:        1,
	}
}

// Subresources is the number of mip levels times array slices.
func (d ResourceDesc) Subresources() int {
	if d.Dimension == DimensionBuffer {
		return 1
	}
	return int(d.MipLevels) * int(d.DepthOrArraySize)
}

type ClearValue struct {
	Format  Format
	Color   [4]float32
	Depth   float32
	Stencil uint8
}

type GPUAddress uint64

// CPUHandle addresses a descriptor from the CPU side.
type CPUHandle struct {
	Ptr uintptr
}

// Offset returns the handle n descriptors past h.
func (h CPUHandle) Offset(n int, stride uint32) CPUHandle {
	return CPUHandle{Ptr: h.Ptr + uintptr(stride)*uintptr(n)}
}

// GPUHandle addresses a descriptor of a shader-visible heap from shaders.
type GPUHandle struct {
	Ptr uint64
}

func (h GPUHandle) Offset(n int, stride uint32) GPUHandle {
	return GPUHandle{Ptr: h.Ptr + uint64(stride)*uint64(n)}
}

type HeapKind int

const (
	HeapKindCBVSRV HeapKind = iota
	HeapKindRTV
	HeapKindDSV
)

func (k HeapKind) String() string {
	switch k {
	case HeapKindCBVSRV:
		return "cbv-srv"
	case HeapKindRTV:
		return "rtv"
	case HeapKindDSV:
		return "dsv"
	}
	return fmt.Sprintf("HeapKind(%d)", int(k))
}

type SRVDesc struct {
	Format    Format
	MipLevels int
	ArraySize int
	Cube      bool
}

// AllSubresources makes a barrier apply to every subresource.
const AllSubresources = -1

type Barrier struct {
	Resource    Resource
	Subresource int
	Before      ResourceState
	After       ResourceState
}

// Transition returns a whole-resource state transition barrier.
func Transition(r Resource, before, after ResourceState) Barrier {
	return Barrier{Resource: r, Subresource: AllSubresources, Before: before, After: after}
}

type Viewport struct {
	X, Y          float32
	Width, Height float32
	MinDepth      float32
	MaxDepth      float32
}

type Rect struct {
	Left, Top, Right, Bottom int32
}

type Topology int

const (
	TopologyTriangleList Topology = iota
)

type VertexBufferView struct {
	Location GPUAddress
	Size     uint32
	Stride   uint32
}

type IndexBufferView struct {
	Location GPUAddress
	Size     uint32
	Format   Format
}

type SwapChainDesc struct {
	Width       int
	Height      int
	Format      Format
	BufferCount int
}
