package gputest

import (
	"github.com/cockroachdb/errors"

	"github.com/cg2go/renderer/gpu"
)

type opcode int

const (
	opBarrier opcode = iota
	opSetRenderTargets
	opClearRenderTarget
	opClearDepthStencil
	opSetViewports
	opSetScissors
	opSetRootSignature
	opSetPipelineState
	opSetDescriptorHeaps
	opSetTopology
	opSetVertexBuffers
	opSetIndexBuffer
	opSetRootCBV
	opSetRootTable
	opDraw
	opDrawIndexed
	opCopyTextureRegion
)

type command struct {
	op       opcode
	barriers []gpu.Barrier
	rtv      []gpu.CPUHandle
	dsv      *gpu.CPUHandle
	handle   gpu.CPUHandle
	color    [4]float32
	depth    float32
	param    int
	addr     gpu.GPUAddress
	table    gpu.GPUHandle
	counts   [5]int
	vbs      []gpu.VertexBufferView
	ib       *gpu.IndexBufferView
	rs       gpu.RootSignature
	ps       gpu.PipelineState
	dst, src *Resource
	sub      int
	fp       gpu.Footprint
}

type CommandList struct {
	dev    *Device
	alloc  *CommandAllocator
	cmds   []command
	closed bool
	err    error
}

// Commands returns the number of recorded commands.
func (l *CommandList) Commands() int { return len(l.cmds) }

// Closed reports whether the list is sealed.
func (l *CommandList) Closed() bool { return l.closed }

func (l *CommandList) record(c command) {
	if l.closed {
		if l.err == nil {
			l.err = errors.AssertionFailedf("gputest: command recorded into a closed list")
		}
		return
	}
	l.cmds = append(l.cmds, c)
}

func (l *CommandList) Reset(alloc gpu.CommandAllocator, ps gpu.PipelineState) error {
	a, ok := alloc.(*CommandAllocator)
	if !ok || a == nil {
		return errors.New("gputest: foreign command allocator")
	}
	if !l.closed {
		return errors.New("gputest: reset of a command list that is still recording")
	}
	l.alloc = a
	l.cmds = l.cmds[:0:0]
	l.closed = false
	l.err = nil
	l.dev.mu.Lock()
	l.dev.calls.ListResets++
	l.dev.mu.Unlock()
	if ps != nil {
		l.SetPipelineState(ps)
	}
	return nil
}

func (l *CommandList) Close() error {
	if l.closed {
		return errors.New("gputest: command list already closed")
	}
	if l.err != nil {
		return l.err
	}
	l.closed = true
	l.dev.mu.Lock()
	l.dev.calls.ListsClosed++
	l.dev.mu.Unlock()
	return nil
}

func (l *CommandList) Barrier(b ...gpu.Barrier) {
	l.record(command{op: opBarrier, barriers: append([]gpu.Barrier(nil), b...)})
}

func (l *CommandList) SetRenderTargets(rtv []gpu.CPUHandle, dsv *gpu.CPUHandle) {
	c := command{op: opSetRenderTargets, rtv: append([]gpu.CPUHandle(nil), rtv...)}
	if dsv != nil {
		h := *dsv
		c.dsv = &h
	}
	l.record(c)
}

func (l *CommandList) ClearRenderTarget(rtv gpu.CPUHandle, color [4]float32) {
	l.record(command{op: opClearRenderTarget, handle: rtv, color: color})
}

func (l *CommandList) ClearDepthStencil(dsv gpu.CPUHandle, depth float32, stencil uint8) {
	l.record(command{op: opClearDepthStencil, handle: dsv, depth: depth})
}

func (l *CommandList) SetViewports(vp ...gpu.Viewport) {
	l.record(command{op: opSetViewports, counts: [5]int{len(vp)}})
}

func (l *CommandList) SetScissors(r ...gpu.Rect) {
	l.record(command{op: opSetScissors, counts: [5]int{len(r)}})
}

func (l *CommandList) SetRootSignature(rs gpu.RootSignature) {
	l.record(command{op: opSetRootSignature, rs: rs})
}

func (l *CommandList) SetPipelineState(ps gpu.PipelineState) {
	l.record(command{op: opSetPipelineState, ps: ps})
}

func (l *CommandList) SetDescriptorHeaps(h ...gpu.DescriptorHeap) {
	l.record(command{op: opSetDescriptorHeaps, counts: [5]int{len(h)}})
}

func (l *CommandList) SetPrimitiveTopology(t gpu.Topology) {
	l.record(command{op: opSetTopology})
}

func (l *CommandList) SetVertexBuffers(start int, views ...gpu.VertexBufferView) {
	l.record(command{op: opSetVertexBuffers, param: start, vbs: append([]gpu.VertexBufferView(nil), views...)})
}

func (l *CommandList) SetIndexBuffer(view *gpu.IndexBufferView) {
	c := command{op: opSetIndexBuffer}
	if view != nil {
		v := *view
		c.ib = &v
	}
	l.record(c)
}

func (l *CommandList) SetRootConstantBufferView(param int, addr gpu.GPUAddress) {
	l.record(command{op: opSetRootCBV, param: param, addr: addr})
}

func (l *CommandList) SetRootDescriptorTable(param int, base gpu.GPUHandle) {
	l.record(command{op: opSetRootTable, param: param, table: base})
}

func (l *CommandList) Draw(vertexCount, instanceCount, startVertex, startInstance int) {
	l.record(command{op: opDraw, counts: [5]int{vertexCount, instanceCount, startVertex, startInstance}})
}

func (l *CommandList) DrawIndexed(indexCount, instanceCount, startIndex, baseVertex, startInstance int) {
	l.record(command{op: opDrawIndexed, counts: [5]int{indexCount, instanceCount, startIndex, baseVertex, startInstance}})
}

func (l *CommandList) CopyTextureRegion(dst gpu.Resource, subresource int, src gpu.Resource, fp gpu.Footprint) {
	l.record(command{op: opCopyTextureRegion, dst: dst.(*Resource), src: src.(*Resource), sub: subresource, fp: fp})
}

func (l *CommandList) Release() {}

// replayState is the binding state of the simulated GPU. It persists only
// within one command list, as on real hardware.
type replayState struct {
	rtv    []gpu.CPUHandle
	dsv    *gpu.CPUHandle
	rs     gpu.RootSignature
	ps     gpu.PipelineState
	cbv    map[int]gpu.GPUAddress
	tables map[int]gpu.GPUHandle
	ib     *gpu.IndexBufferView
	vbs    int
}

func (st *replayState) replay(d *Device, cmds []command) {
	*st = replayState{cbv: make(map[int]gpu.GPUAddress), tables: make(map[int]gpu.GPUHandle)}

	d.mu.Lock()
	defer d.mu.Unlock()
	fail := func(err error) { d.errs = append(d.errs, err) }

	for _, c := range cmds {
		switch c.op {
		case opBarrier:
			for _, b := range c.barriers {
				r := b.Resource.(*Resource)
				if r.state != b.Before {
					fail(errors.Newf("gputest: barrier on resource %d expects %s but it is %s", r.id, b.Before, r.state))
				}
				r.state = b.After
			}
		case opSetRenderTargets:
			st.rtv, st.dsv = c.rtv, c.dsv
		case opClearRenderTarget:
			v, ok := d.views[c.handle.Ptr]
			if !ok || v.Kind != gpu.HeapKindRTV {
				fail(errors.Newf("gputest: clear of unknown render target view %#x", c.handle.Ptr))
				continue
			}
			if v.Resource.state != gpu.StateRenderTarget {
				fail(errors.Newf("gputest: clearing render target in state %s", v.Resource.state))
			}
		case opClearDepthStencil:
			v, ok := d.views[c.handle.Ptr]
			if !ok || v.Kind != gpu.HeapKindDSV {
				fail(errors.Newf("gputest: clear of unknown depth stencil view %#x", c.handle.Ptr))
				continue
			}
			if v.Resource.state != gpu.StateDepthWrite {
				fail(errors.Newf("gputest: clearing depth buffer in state %s", v.Resource.state))
			}
		case opSetRootSignature:
			st.rs = c.rs
		case opSetPipelineState:
			st.ps = c.ps
		case opSetVertexBuffers:
			st.vbs = len(c.vbs)
			for _, vb := range c.vbs {
				if _, _, ok := d.resolve(vb.Location); !ok {
					fail(errors.Newf("gputest: vertex buffer at unknown address %#x", vb.Location))
				}
			}
		case opSetIndexBuffer:
			st.ib = c.ib
		case opSetRootCBV:
			st.cbv[c.param] = c.addr
		case opSetRootTable:
			st.tables[c.param] = c.table
		case opDraw, opDrawIndexed:
			st.draw(d, c, fail)
		case opCopyTextureRegion:
			copyRegion(c, fail)
		}
	}
}

func (st *replayState) draw(d *Device, c command, fail func(error)) {
	if st.rs == nil || st.ps == nil {
		fail(errors.New("gputest: draw without root signature or pipeline state"))
		return
	}
	if st.vbs == 0 {
		fail(errors.New("gputest: draw without vertex buffers"))
	}
	rec := DrawRecord{
		Frame:         len(d.presents),
		InstanceCount: c.counts[1],
		Constants:     make(map[int][]byte, len(st.cbv)),
		Tables:        make(map[int]gpu.GPUHandle, len(st.tables)),
	}
	if c.op == opDraw {
		rec.VertexCount = c.counts[0]
	} else {
		if st.ib == nil {
			fail(errors.New("gputest: indexed draw without index buffer"))
		}
		rec.IndexCount = c.counts[0]
	}
	if len(st.rtv) > 0 {
		rec.RTV = st.rtv[0]
		if v, ok := d.views[st.rtv[0].Ptr]; ok {
			rec.RenderTarget = v.Resource
			if v.Resource.state != gpu.StateRenderTarget {
				fail(errors.Newf("gputest: drawing into render target in state %s", v.Resource.state))
			}
		}
	}
	for p, addr := range st.cbv {
		r, off, ok := d.resolve(addr)
		if !ok {
			fail(errors.Newf("gputest: root parameter %d bound to unknown address %#x", p, addr))
			continue
		}
		rec.Constants[p] = append([]byte(nil), r.data[off:]...)
	}
	for p, h := range st.tables {
		rec.Tables[p] = h
	}
	d.draws = append(d.draws, rec)
}

func copyRegion(c command, fail func(error)) {
	if c.dst.state != gpu.StateCopyDest {
		fail(errors.Newf("gputest: copy into texture in state %s", c.dst.state))
	}
	fps, _ := gpu.CopyableFootprints(c.dst.desc)
	if c.sub < 0 || c.sub >= len(fps) {
		fail(errors.Newf("gputest: copy into subresource %d of %d", c.sub, len(fps)))
		return
	}
	dfp := fps[c.sub]
	if dfp.Width != c.fp.Width || dfp.Height != c.fp.Height || dfp.RowPitch != c.fp.RowPitch {
		fail(errors.Newf("gputest: footprint %+v does not match subresource %d layout %+v", c.fp, c.sub, dfp))
		return
	}
	n := uint64(c.fp.RowPitch)*uint64(c.fp.Height-1) + uint64(c.fp.Width)*uint64(c.fp.Format.Size())
	if c.fp.Offset+n > uint64(len(c.src.data)) {
		fail(errors.New("gputest: copy source out of range"))
		return
	}
	copy(c.dst.data[dfp.Offset:dfp.Offset+n], c.src.data[c.fp.Offset:c.fp.Offset+n])
}
