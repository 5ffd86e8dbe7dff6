package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cg2go/renderer/gpu"
	"github.com/cg2go/renderer/gpu/gputest"
)

func TestHandleAt(t *testing.T) {
	dev := gputest.NewDevice(gpu.FeatureLevel12_0, gputest.Options{})
	h, err := NewDescriptorHeap(dev, gpu.HeapKindCBVSRV, 128, true)
	require.NoError(t, err)
	stride := dev.DescriptorIncrement(gpu.HeapKindCBVSRV)
	assert.Equal(t, stride, h.Stride())

	seen := make(map[uintptr]int)
	base := h.Heap().CPUStart().Ptr
	gpuBase := h.Heap().GPUStart().Ptr
	for i := 0; i < h.Capacity(); i++ {
		cpu, gh := h.HandleAt(i)
		assert.Equal(t, base+uintptr(stride)*uintptr(i), cpu.Ptr)
		assert.Equal(t, gpuBase+uint64(stride)*uint64(i), gh.Ptr)
		prev, dup := seen[cpu.Ptr]
		assert.False(t, dup, "index %d aliases %d", i, prev)
		seen[cpu.Ptr] = i
	}
}

func TestHandleAtCPUOnly(t *testing.T) {
	dev := gputest.NewDevice(gpu.FeatureLevel12_0, gputest.Options{})
	h, err := NewDescriptorHeap(dev, gpu.HeapKindRTV, 2, false)
	require.NoError(t, err)

	_, gh := h.HandleAt(1)
	assert.Zero(t, gh.Ptr)
	assert.Panics(t, func() { h.HandleAt(2) })
	assert.Panics(t, func() { h.HandleAt(-1) })
}

func TestAllocate(t *testing.T) {
	dev := gputest.NewDevice(gpu.FeatureLevel12_0, gputest.Options{})
	h, err := NewDescriptorHeap(dev, gpu.HeapKindCBVSRV, 3, true)
	require.NoError(t, err)
	require.NoError(t, h.Reserve(1))

	i, err := h.Allocate()
	require.NoError(t, err)
	assert.Equal(t, 1, i)
	i, err = h.Allocate()
	require.NoError(t, err)
	assert.Equal(t, 2, i)

	_, err = h.Allocate()
	assert.ErrorIs(t, err, ErrHeapFull)
	assert.ErrorIs(t, h.Reserve(4), ErrHeapFull)
}
