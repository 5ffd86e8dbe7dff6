package render

import (
	"math"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/cg2go/renderer/gpu"
)

// FrameState is the position of the command context in the frame cycle.
type FrameState int

const (
	StateRecording FrameState = iota
	StateSubmitted
	StateWaiting
	StateRetired
)

func (s FrameState) String() string {
	switch s {
	case StateRecording:
		return "recording"
	case StateSubmitted:
		return "submitted"
	case StateWaiting:
		return "waiting"
	case StateRetired:
		return "retired"
	}
	return "unknown"
}

// CommandContext owns the queue's single allocator, command list and fence,
// and steps them through Recording, Submitted, Waiting and Retired. The CPU
// never records while a frame is on the GPU.
type CommandContext struct {
	queue gpu.CommandQueue
	alloc gpu.CommandAllocator
	list  gpu.CommandList
	fence gpu.Fence

	// timeout bounds Wait. Zero waits forever.
	timeout time.Duration

	state    FrameState
	closed   bool
	signaled uint64
	retire   []func()
}

// NewCommandContext creates the allocator, the command list (recording)
// and the fence (at zero) used on queue.
func NewCommandContext(dev gpu.Device, queue gpu.CommandQueue, timeout time.Duration) (*CommandContext, error) {
	alloc, err := dev.NewCommandAllocator()
	if err != nil {
		return nil, errors.Wrap(err, "create command allocator")
	}
	list, err := dev.NewCommandList(alloc, nil)
	if err != nil {
		alloc.Release()
		return nil, errors.Wrap(err, "create command list")
	}
	fence, err := dev.NewFence(0)
	if err != nil {
		list.Release()
		alloc.Release()
		return nil, errors.Wrap(err, "create fence")
	}
	return &CommandContext{
		queue:   queue,
		alloc:   alloc,
		list:    list,
		fence:   fence,
		timeout: timeout,
	}, nil
}

func (c *CommandContext) State() FrameState { return c.state }

// List returns the command list while it accepts commands.
func (c *CommandContext) List() (gpu.CommandList, error) {
	if c.state != StateRecording {
		return nil, errors.Wrapf(ErrBadState, "record while %s", c.state)
	}
	if c.closed {
		return nil, ErrListClosed
	}
	return c.list, nil
}

// Close seals the command list.
func (c *CommandContext) Close() error {
	if c.state != StateRecording {
		return errors.Wrapf(ErrBadState, "close while %s", c.state)
	}
	if c.closed {
		return ErrListClosed
	}
	if err := c.list.Close(); err != nil {
		return errors.Wrap(err, "close command list")
	}
	c.closed = true
	return nil
}

// Submit executes the closed list on the queue, then calls present, if
// given, so the present is ordered after the list.
func (c *CommandContext) Submit(present func() error) error {
	if c.state != StateRecording {
		return errors.Wrapf(ErrBadState, "submit while %s", c.state)
	}
	if !c.closed {
		return ErrListOpen
	}
	if err := c.queue.Execute(c.list); err != nil {
		return errors.Wrap(err, "execute command list")
	}
	c.state = StateSubmitted
	if present != nil {
		if err := present(); err != nil {
			return errors.Wrap(err, "present")
		}
	}
	return nil
}

// Signal enqueues the next fence value behind the submitted work and
// returns it.
func (c *CommandContext) Signal() (uint64, error) {
	if c.state != StateSubmitted {
		return 0, errors.Wrapf(ErrBadState, "signal while %s", c.state)
	}
	if err := c.signal(); err != nil {
		return 0, err
	}
	c.state = StateWaiting
	return c.signaled, nil
}

func (c *CommandContext) signal() error {
	next := c.signaled + 1
	if err := c.queue.Signal(c.fence, next); err != nil {
		return errors.Wrapf(err, "signal fence to %d", next)
	}
	c.signaled = next
	return nil
}

// Wait blocks until the GPU completes the signaled value, then runs the
// callbacks registered with OnRetire.
func (c *CommandContext) Wait() error {
	if c.state != StateWaiting {
		return errors.Wrapf(ErrBadState, "wait while %s", c.state)
	}
	if err := c.await(c.signaled); err != nil {
		return err
	}
	c.state = StateRetired

	retire := c.retire
	c.retire = nil
	for _, fn := range retire {
		fn()
	}
	return nil
}

func (c *CommandContext) await(value uint64) error {
	if c.fence.Completed() < value {
		done := c.fence.Notify(value)
		if c.timeout > 0 {
			timer := time.NewTimer(c.timeout)
			defer timer.Stop()
			select {
			case <-done:
			case <-timer.C:
				return errors.Wrapf(ErrFenceTimeout, "fence value %d after %s, completed %d", value, c.timeout, c.fence.Completed())
			}
		} else {
			<-done
		}
	}
	if c.fence.Completed() == math.MaxUint64 {
		return gpu.ErrDeviceRemoved
	}
	return nil
}

// Reset reclaims the allocator and reopens the list for recording.
func (c *CommandContext) Reset() error {
	if c.state != StateRetired {
		return errors.Wrapf(ErrBadState, "reset while %s", c.state)
	}
	if err := c.alloc.Reset(); err != nil {
		return errors.Wrap(err, "reset command allocator")
	}
	if err := c.list.Reset(c.alloc, nil); err != nil {
		return errors.Wrap(err, "reset command list")
	}
	c.closed = false
	c.state = StateRecording
	return nil
}

// Finish runs a recorded frame through the whole cycle: close, submit,
// present, signal, wait and reset.
func (c *CommandContext) Finish(present func() error) error {
	if err := c.Close(); err != nil {
		return err
	}
	if err := c.Submit(present); err != nil {
		return err
	}
	if _, err := c.Signal(); err != nil {
		return err
	}
	if err := c.Wait(); err != nil {
		return err
	}
	return c.Reset()
}

// Flush submits what has been recorded without presenting and waits for
// it. Used for the texture uploads recorded before the first frame.
func (c *CommandContext) Flush() error {
	return c.Finish(nil)
}

// OnRetire registers fn to run after the next Wait resolves.
func (c *CommandContext) OnRetire(fn func()) {
	c.retire = append(c.retire, fn)
}

// Signaled is the last value enqueued on the fence.
func (c *CommandContext) Signaled() uint64 { return c.signaled }

// Completed is the last value the GPU reached.
func (c *CommandContext) Completed() uint64 { return c.fence.Completed() }

// WaitIdle waits for everything submitted so far, whatever the frame
// state.
func (c *CommandContext) WaitIdle() error {
	if err := c.signal(); err != nil {
		return err
	}
	return c.await(c.signaled)
}

func (c *CommandContext) Release() {
	c.fence.Release()
	c.list.Release()
	c.alloc.Release()
}
