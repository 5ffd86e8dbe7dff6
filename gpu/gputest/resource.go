package gputest

import (
	"math"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/cg2go/renderer/gpu"
)

type Resource struct {
	dev   *Device
	id    uint64
	desc  gpu.ResourceDesc
	heap  gpu.HeapType
	clear *gpu.ClearValue

	// data is the backing memory. Its address never changes, which is
	// what makes persistent mapping valid.
	data []byte

	// state and mapped are guarded by dev.mu.
	state      gpu.ResourceState
	mapped     int
	backBuffer int
}

func (r *Resource) Desc() gpu.ResourceDesc { return r.desc }
func (r *Resource) Heap() gpu.HeapType     { return r.heap }

func (r *Resource) GPUAddress() gpu.GPUAddress {
	if r.desc.Dimension != gpu.DimensionBuffer {
		return 0
	}
	return gpu.GPUAddress(r.id << addrShift)
}

func (r *Resource) Map() ([]byte, error) {
	if r.heap != gpu.HeapUpload {
		return nil, errors.New("gputest: only upload heap resources can be mapped")
	}
	r.dev.mu.Lock()
	r.mapped++
	r.dev.mu.Unlock()
	return r.data, nil
}

func (r *Resource) Unmap() {
	r.dev.mu.Lock()
	if r.mapped > 0 {
		r.mapped--
	}
	r.dev.mu.Unlock()
}

func (r *Resource) Release() {
	r.dev.mu.Lock()
	delete(r.dev.resources, r.id)
	r.dev.mu.Unlock()
}

// State is the state the resource reached on the GPU timeline.
func (r *Resource) State() gpu.ResourceState {
	r.dev.mu.Lock()
	defer r.dev.mu.Unlock()
	return r.state
}

// ClearValue is the optimized clear value given at creation.
func (r *Resource) ClearValue() *gpu.ClearValue { return r.clear }

// Mapped reports the number of outstanding Map calls.
func (r *Resource) Mapped() int {
	r.dev.mu.Lock()
	defer r.dev.mu.Unlock()
	return r.mapped
}

// BackBuffer is the swap chain index of the resource, or -1.
func (r *Resource) BackBuffer() int { return r.backBuffer }

// Bytes returns a copy of the resource memory.
func (r *Resource) Bytes() []byte {
	r.dev.mu.Lock()
	defer r.dev.mu.Unlock()
	return append([]byte(nil), r.data...)
}

type Fence struct {
	mu      sync.Mutex
	value   uint64
	history []uint64
	waiters []waiter
}

type waiter struct {
	value uint64
	ch    chan struct{}
}

func (f *Fence) Completed() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value
}

func (f *Fence) Notify(value uint64) <-chan struct{} {
	ch := make(chan struct{})
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.value >= value {
		close(ch)
		return ch
	}
	f.waiters = append(f.waiters, waiter{value: value, ch: ch})
	return ch
}

// History returns every value the fence took, starting with the initial
// one.
func (f *Fence) History() []uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint64(nil), f.history...)
}

func (f *Fence) set(v uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.value == math.MaxUint64 {
		return
	}
	f.value = v
	f.history = append(f.history, v)
	keep := f.waiters[:0]
	for _, w := range f.waiters {
		if v >= w.value {
			close(w.ch)
			continue
		}
		keep = append(keep, w)
	}
	f.waiters = keep
}

func (f *Fence) Release() {}

type CommandAllocator struct {
	dev  *Device
	busy int // guarded by dev.mu
}

func (a *CommandAllocator) Reset() error {
	a.dev.mu.Lock()
	defer a.dev.mu.Unlock()
	if a.busy > 0 {
		return errors.Newf("gputest: allocator reset while %d command lists are executing", a.busy)
	}
	a.dev.calls.AllocResets++
	return nil
}

func (a *CommandAllocator) Release() {}

type SwapChain struct {
	dev     *Device
	queue   *CommandQueue
	buffers []*Resource
	current int
}

func (s *SwapChain) BufferCount() int            { return len(s.buffers) }
func (s *SwapChain) CurrentBackBufferIndex() int { return s.current }

func (s *SwapChain) Buffer(i int) (gpu.Resource, error) {
	if i < 0 || i >= len(s.buffers) {
		return nil, errors.Newf("gputest: back buffer %d out of range", i)
	}
	return s.buffers[i], nil
}

// Present queues the current back buffer for display and advances the
// back buffer index.
func (s *SwapChain) Present(syncInterval int) error {
	idx := s.current
	buf := s.buffers[idx]
	err := s.queue.push(func() {
		d := s.dev
		d.mu.Lock()
		defer d.mu.Unlock()
		if buf.state != gpu.StatePresent {
			d.errs = append(d.errs, errors.Newf("gputest: presenting back buffer %d in state %s", idx, buf.state))
		}
		d.presents = append(d.presents, idx)
	})
	if err != nil {
		return err
	}
	s.dev.mu.Lock()
	s.dev.calls.Presents++
	s.dev.mu.Unlock()
	s.current = (s.current + 1) % len(s.buffers)
	return nil
}

func (s *SwapChain) Release() {
	for _, b := range s.buffers {
		b.Release()
	}
}
