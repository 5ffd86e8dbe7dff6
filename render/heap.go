package render

import (
	"github.com/cockroachdb/errors"

	"github.com/cg2go/renderer/gpu"
)

// DescriptorHeap wraps a fixed-capacity device heap with the descriptor
// stride of its kind, queried once at creation.
type DescriptorHeap struct {
	heap   gpu.DescriptorHeap
	stride uint32
	next   int
}

func NewDescriptorHeap(dev gpu.Device, kind gpu.HeapKind, capacity int, shaderVisible bool) (*DescriptorHeap, error) {
	heap, err := dev.NewDescriptorHeap(kind, capacity, shaderVisible)
	if err != nil {
		return nil, errors.Wrapf(err, "create %s descriptor heap", kind)
	}
	return &DescriptorHeap{
		heap:   heap,
		stride: dev.DescriptorIncrement(kind),
	}, nil
}

func (h *DescriptorHeap) Heap() gpu.DescriptorHeap { return h.heap }
func (h *DescriptorHeap) Kind() gpu.HeapKind       { return h.heap.Kind() }
func (h *DescriptorHeap) Capacity() int            { return h.heap.Capacity() }
func (h *DescriptorHeap) Stride() uint32           { return h.stride }

// HandleAt returns the CPU and GPU handles of descriptor i. The GPU handle
// is zero for heaps that are not shader visible. An index outside the heap
// would alias another heap's descriptors, so it panics.
func (h *DescriptorHeap) HandleAt(i int) (gpu.CPUHandle, gpu.GPUHandle) {
	if i < 0 || i >= h.heap.Capacity() {
		panic(errors.AssertionFailedf("descriptor index %d out of %s heap capacity %d", i, h.heap.Kind(), h.heap.Capacity()))
	}
	cpu := h.heap.CPUStart().Offset(i, h.stride)
	if !h.heap.ShaderVisible() {
		return cpu, gpu.GPUHandle{}
	}
	return cpu, h.heap.GPUStart().Offset(i, h.stride)
}

// Allocate hands out the next unused index.
func (h *DescriptorHeap) Allocate() (int, error) {
	if h.next >= h.heap.Capacity() {
		return 0, errors.Wrapf(ErrHeapFull, "%s heap of %d", h.heap.Kind(), h.heap.Capacity())
	}
	i := h.next
	h.next++
	return i, nil
}

// Available is the number of indices Allocate can still hand out.
func (h *DescriptorHeap) Available() int {
	return h.heap.Capacity() - h.next
}

// Reserve marks the first n indices as used.
func (h *DescriptorHeap) Reserve(n int) error {
	if n > h.heap.Capacity() {
		return errors.Wrapf(ErrHeapFull, "reserve %d of %d", n, h.heap.Capacity())
	}
	if n > h.next {
		h.next = n
	}
	return nil
}

func (h *DescriptorHeap) Release() {
	h.heap.Release()
}
