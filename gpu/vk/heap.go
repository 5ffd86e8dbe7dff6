package vk

import (
	"sync"

	"github.com/vkngwrapper/core/core1_0"

	"github.com/cg2go/renderer/gpu"
)

type descriptor struct {
	view core1_0.ImageView
	res  *Resource
}

// DescriptorHeap stores image views by slot. Handles encode the heap id
// above heapShift and the slot times descriptorStride below it.
type DescriptorHeap struct {
	dev     *Device
	id      uint32
	kind    gpu.HeapKind
	visible bool

	mu    sync.Mutex
	slots []descriptor
	// gen changes whenever a slot is rewritten so cached descriptor
	// sets built from older views are not reused.
	gen uint64
}

var _ gpu.DescriptorHeap = (*DescriptorHeap)(nil)

func (h *DescriptorHeap) Kind() gpu.HeapKind  { return h.kind }
func (h *DescriptorHeap) Capacity() int       { return len(h.slots) }
func (h *DescriptorHeap) ShaderVisible() bool { return h.visible }

func (h *DescriptorHeap) CPUStart() gpu.CPUHandle {
	return gpu.CPUHandle{Ptr: uintptr(h.id) << heapShift}
}

func (h *DescriptorHeap) GPUStart() gpu.GPUHandle {
	if !h.visible {
		return gpu.GPUHandle{}
	}
	return gpu.GPUHandle{Ptr: uint64(h.id) << heapShift}
}

func (h *DescriptorHeap) set(i int, d descriptor) {
	h.mu.Lock()
	old := h.slots[i]
	h.slots[i] = d
	h.gen++
	h.mu.Unlock()
	if old.view != nil {
		h.dev.dropView(old.view)
	}
}

func (h *DescriptorHeap) get(i int) (descriptor, uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.slots[i], h.gen
}

func (h *DescriptorHeap) Release() {
	h.dev.mu.Lock()
	delete(h.dev.heaps, h.id)
	h.dev.mu.Unlock()

	h.mu.Lock()
	slots := h.slots
	h.slots = nil
	h.mu.Unlock()
	for _, s := range slots {
		if s.view != nil {
			h.dev.dropView(s.view)
		}
	}
}
