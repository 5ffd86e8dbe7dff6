// Package gpu defines the device model the renderer is written against.
// It follows the explicit-API shape: one device, a command queue consuming
// closed command lists, command allocators owning recorded memory, a fence
// counter bridging the CPU and GPU timelines, and fixed-capacity descriptor
// heaps addressed by base handle plus index times stride.
//
// Backends live in subpackages: vk drives Vulkan through vkngwrapper, and
// gputest is an in-memory implementation used by tests.
package gpu

import "github.com/cockroachdb/errors"

// ErrDeviceRemoved is returned once the device is lost. Every later call
// against the same device fails with it.
var ErrDeviceRemoved = errors.New("gpu: device removed")

// ErrUnsupportedFeatureLevel is returned by Adapter.CreateDevice when the
// adapter cannot provide the requested feature level.
var ErrUnsupportedFeatureLevel = errors.New("gpu: unsupported feature level")

// Factory enumerates the adapters present in the system.
type Factory interface {
	// Adapters returns the adapters ordered from highest to lowest
	// performance preference.
	Adapters() ([]Adapter, error)
	Release()
}

// Adapter is a physical or virtual GPU.
type Adapter interface {
	Desc() AdapterDesc
	// CreateDevice creates the logical device at exactly the given
	// feature level, or fails with ErrUnsupportedFeatureLevel.
	CreateDevice(level FeatureLevel) (Device, error)
	Release()
}

// Device is the logical GPU context. Every other object is a child of it
// and must be released before it.
type Device interface {
	FeatureLevel() FeatureLevel

	NewCommandQueue() (CommandQueue, error)
	NewCommandAllocator() (CommandAllocator, error)
	// NewCommandList creates a command list in the recording state.
	NewCommandList(alloc CommandAllocator, ps PipelineState) (CommandList, error)
	NewFence(initial uint64) (Fence, error)
	NewSwapChain(queue CommandQueue, desc SwapChainDesc) (SwapChain, error)

	NewDescriptorHeap(kind HeapKind, capacity int, shaderVisible bool) (DescriptorHeap, error)
	// DescriptorIncrement is the byte stride between two descriptors of
	// the given kind. It is constant for the lifetime of the device.
	DescriptorIncrement(kind HeapKind) uint32

	NewCommittedResource(heap HeapType, desc ResourceDesc, state ResourceState, clear *ClearValue) (Resource, error)
	NewRootSignature(desc RootSignatureDesc) (RootSignature, error)
	NewPipelineState(desc PipelineDesc) (PipelineState, error)

	CreateRenderTargetView(r Resource, format Format, dst CPUHandle)
	CreateDepthStencilView(r Resource, format Format, dst CPUHandle)
	CreateShaderResourceView(r Resource, desc SRVDesc, dst CPUHandle)

	Release()
}

// Resource is a buffer or texture allocation.
type Resource interface {
	Desc() ResourceDesc
	Heap() HeapType
	// GPUAddress is the virtual address of a buffer. Textures return 0.
	GPUAddress() GPUAddress
	// Map returns the CPU view of an upload-heap resource. Repeated calls
	// return the same memory until Unmap.
	Map() ([]byte, error)
	Unmap()
	Release()
}

// DescriptorHeap is a fixed-capacity array of descriptors.
type DescriptorHeap interface {
	Kind() HeapKind
	Capacity() int
	ShaderVisible() bool
	CPUStart() CPUHandle
	// GPUStart is the zero handle unless the heap is shader visible.
	GPUStart() GPUHandle
	Release()
}

// CommandAllocator owns the memory backing recorded commands.
// Reset must not be called while the GPU may still execute a command
// list recorded from it.
type CommandAllocator interface {
	Reset() error
	Release()
}

// CommandList records GPU commands. Recording errors are deferred and
// reported by Close.
type CommandList interface {
	// Reset discards the recorded commands and starts recording again
	// against alloc. The list must be closed.
	Reset(alloc CommandAllocator, ps PipelineState) error
	// Close seals the list. Only closed lists can be executed.
	Close() error

	Barrier(b ...Barrier)
	SetRenderTargets(rtv []CPUHandle, dsv *CPUHandle)
	ClearRenderTarget(rtv CPUHandle, color [4]float32)
	ClearDepthStencil(dsv CPUHandle, depth float32, stencil uint8)
	SetViewports(vp ...Viewport)
	SetScissors(r ...Rect)
	SetRootSignature(rs RootSignature)
	SetPipelineState(ps PipelineState)
	SetDescriptorHeaps(h ...DescriptorHeap)
	SetPrimitiveTopology(t Topology)
	SetVertexBuffers(start int, views ...VertexBufferView)
	SetIndexBuffer(view *IndexBufferView)
	SetRootConstantBufferView(param int, addr GPUAddress)
	SetRootDescriptorTable(param int, base GPUHandle)
	Draw(vertexCount, instanceCount, startVertex, startInstance int)
	DrawIndexed(indexCount, instanceCount, startIndex, baseVertex, startInstance int)
	CopyTextureRegion(dst Resource, subresource int, src Resource, fp Footprint)

	Release()
}

// CommandQueue executes closed command lists in submission order.
type CommandQueue interface {
	Execute(lists ...CommandList) error
	// Signal enqueues a fence update that takes effect once every command
	// submitted before it has completed.
	Signal(f Fence, value uint64) error
	Release()
}

// Fence is a 64-bit counter written by the GPU timeline.
type Fence interface {
	// Completed returns the last value the GPU reached. A removed device
	// reports math.MaxUint64.
	Completed() uint64
	// Notify returns a channel that is closed once Completed reaches
	// value.
	Notify(value uint64) <-chan struct{}
	Release()
}

// SwapChain is a ring of presentable back buffers.
type SwapChain interface {
	BufferCount() int
	CurrentBackBufferIndex() int
	Buffer(i int) (Resource, error)
	Present(syncInterval int) error
	Release()
}

// RootSignature is the binding layout of a pipeline.
type RootSignature interface {
	Desc() RootSignatureDesc
	Release()
}

// PipelineState is a compiled graphics pipeline.
type PipelineState interface {
	Release()
}
