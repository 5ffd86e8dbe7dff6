package vk

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/common"
	"github.com/vkngwrapper/core/core1_0"

	"github.com/cg2go/renderer/gpu"
)

type Queue struct {
	dev   *Device
	queue core1_0.Queue

	// renderDone is signaled by submissions that end with a back buffer
	// in the present state, and waited on by the next present.
	renderDone  core1_0.Semaphore
	presentWait bool
}

var _ gpu.CommandQueue = (*Queue)(nil)

func (q *Queue) Execute(lists ...gpu.CommandList) error {
	if err := q.dev.check(); err != nil {
		return err
	}

	var buffers []core1_0.CommandBuffer
	presents := false
	for _, l := range lists {
		cl, ok := l.(*CommandList)
		if !ok {
			return errors.AssertionFailedf("vk: foreign command list %T", l)
		}
		if !cl.closed {
			return errors.New("vk: execute of a command list that is still recording")
		}
		buffers = append(buffers, cl.buffer)
		presents = presents || cl.presents
	}

	info := core1_0.SubmitInfo{CommandBuffers: buffers}
	if presents && !q.presentWait {
		info.SignalSemaphores = []core1_0.Semaphore{q.renderDone}
		q.presentWait = true
	}
	res, err := q.queue.Submit(nil, []core1_0.SubmitInfo{info})
	if res == core1_0.VKErrorDeviceLost {
		q.dev.remove(err)
		return gpu.ErrDeviceRemoved
	}
	return errors.Wrap(err, "submit")
}

// Signal submits a VkFence behind the queued work and advances f to value
// once it signals.
func (q *Queue) Signal(f gpu.Fence, value uint64) error {
	if err := q.dev.check(); err != nil {
		return err
	}
	fence, ok := f.(*Fence)
	if !ok {
		return errors.AssertionFailedf("vk: foreign fence %T", f)
	}

	vkFence, _, err := q.dev.device.CreateFence(nil, core1_0.FenceCreateInfo{})
	if err != nil {
		return errors.Wrap(err, "create fence")
	}
	res, err := q.queue.Submit(vkFence, nil)
	if err != nil {
		vkFence.Destroy(nil)
		if res == core1_0.VKErrorDeviceLost {
			q.dev.remove(err)
			return gpu.ErrDeviceRemoved
		}
		return errors.Wrap(err, "submit fence")
	}

	q.dev.waiters.Add(1)
	go func() {
		defer q.dev.waiters.Done()
		defer vkFence.Destroy(nil)
		res, err := vkFence.Wait(common.NoTimeout)
		if err != nil || res == core1_0.VKErrorDeviceLost {
			q.dev.remove(errors.Wrapf(err, "wait for fence value %d", value))
			return
		}
		fence.complete(value)
	}()
	return nil
}

func (q *Queue) Release() {
	if _, err := q.queue.WaitIdle(); err != nil {
		q.dev.remove(err)
	}
	if q.renderDone != nil {
		q.renderDone.Destroy(nil)
		q.renderDone = nil
	}
}

// Fence is a host-side counter advanced from VkFence completions.
type Fence struct {
	dev *Device

	mu        sync.Mutex
	completed uint64
	waiters   []fenceWaiter
}

type fenceWaiter struct {
	value uint64
	ch    chan struct{}
}

var _ gpu.Fence = (*Fence)(nil)

func (f *Fence) Completed() uint64 {
	if f.dev.Removed() {
		return ^uint64(0)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completed
}

func (f *Fence) Notify(value uint64) <-chan struct{} {
	ch := make(chan struct{})
	if f.Completed() >= value {
		close(ch)
		return ch
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.completed >= value {
		close(ch)
		return ch
	}
	f.waiters = append(f.waiters, fenceWaiter{value: value, ch: ch})
	return ch
}

// complete raises the counter to value. The queue finishes work in order,
// so a late notification for an older value never lowers it.
func (f *Fence) complete(value uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if value > f.completed {
		f.completed = value
	}
	kept := f.waiters[:0]
	for _, w := range f.waiters {
		if w.value <= f.completed {
			close(w.ch)
		} else {
			kept = append(kept, w)
		}
	}
	f.waiters = kept
}

func (f *Fence) Release() {
	f.dev.mu.Lock()
	delete(f.dev.fences, f)
	f.dev.mu.Unlock()
}
