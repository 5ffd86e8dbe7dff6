package gputest

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/cg2go/renderer/gpu"
)

// CommandQueue feeds a single goroutine that stands in for the GPU.
type CommandQueue struct {
	dev  *Device
	ops  chan func()
	done chan struct{}
	once sync.Once

	// timeline state, only touched by the run goroutine
	st replayState
}

func newQueue(d *Device) *CommandQueue {
	q := &CommandQueue{
		dev:  d,
		ops:  make(chan func(), 64),
		done: make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *CommandQueue) run() {
	defer close(q.done)
	for op := range q.ops {
		op()
	}
}

func (q *CommandQueue) push(op func()) error {
	q.dev.mu.Lock()
	removed := q.dev.removed
	q.dev.mu.Unlock()
	if removed {
		return gpu.ErrDeviceRemoved
	}
	q.ops <- op
	return nil
}

func (q *CommandQueue) Execute(lists ...gpu.CommandList) error {
	batch := make([]*CommandList, 0, len(lists))
	for _, l := range lists {
		cl, ok := l.(*CommandList)
		if !ok || cl == nil {
			return errors.New("gputest: foreign command list")
		}
		if !cl.closed {
			return errors.New("gputest: executing a command list that is still recording")
		}
		batch = append(batch, cl)
	}

	for _, cl := range batch {
		cmds := append([]command(nil), cl.cmds...)
		alloc := cl.alloc
		q.dev.mu.Lock()
		alloc.busy++
		q.dev.calls.Executes++
		q.dev.mu.Unlock()

		err := q.push(func() {
			if q.dev.opts.Latency > 0 {
				time.Sleep(q.dev.opts.Latency)
			}
			q.st.replay(q.dev, cmds)
			q.dev.mu.Lock()
			alloc.busy--
			q.dev.mu.Unlock()
		})
		if err != nil {
			q.dev.mu.Lock()
			alloc.busy--
			q.dev.mu.Unlock()
			return err
		}
	}
	return nil
}

func (q *CommandQueue) Signal(f gpu.Fence, value uint64) error {
	fence, ok := f.(*Fence)
	if !ok || fence == nil {
		return errors.New("gputest: foreign fence")
	}
	q.dev.mu.Lock()
	q.dev.calls.Signals++
	q.dev.mu.Unlock()
	return q.push(func() { fence.set(value) })
}

// Release drains the queue and stops the GPU goroutine.
func (q *CommandQueue) Release() {
	q.once.Do(func() {
		close(q.ops)
		<-q.done
	})
}
