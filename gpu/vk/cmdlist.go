package vk

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/core1_0"

	"github.com/cg2go/renderer/gpu"
)

// CommandAllocator is a command pool.
type CommandAllocator struct {
	dev  *Device
	pool core1_0.CommandPool
}

var _ gpu.CommandAllocator = (*CommandAllocator)(nil)

func (a *CommandAllocator) Reset() error {
	if err := a.dev.check(); err != nil {
		return err
	}
	_, err := a.pool.Reset(0)
	return errors.Wrap(err, "reset command pool")
}

func (a *CommandAllocator) Release() {
	if a.pool != nil {
		a.pool.Destroy(nil)
		a.pool = nil
	}
}

// CommandList is a primary command buffer. Render passes are opened
// lazily by the first draw after the targets change and closed before any
// barrier or copy. Pending clears become the load operations of the next
// pass.
type CommandList struct {
	dev    *Device
	alloc  *CommandAllocator
	buffer core1_0.CommandBuffer
	closed bool
	err    error

	rs        *RootSignature
	ps        *PipelineState
	sets      []core1_0.DescriptorSet
	setsBound bool

	rtv        *descriptor
	dsv        *descriptor
	clearColor map[core1_0.ImageView][4]float32
	clearDepth map[core1_0.ImageView]gpu.ClearValue
	inPass     bool

	// presents is set once a back buffer is moved to the present state.
	presents bool
}

var _ gpu.CommandList = (*CommandList)(nil)

func (cl *CommandList) fail(err error) {
	if cl.err == nil && err != nil {
		cl.err = err
	}
}

func (cl *CommandList) recording() bool {
	if cl.closed {
		cl.fail(errors.AssertionFailedf("vk: record into a closed command list"))
		return false
	}
	return cl.err == nil
}

func (cl *CommandList) Reset(alloc gpu.CommandAllocator, ps gpu.PipelineState) error {
	if err := cl.dev.check(); err != nil {
		return err
	}
	if !cl.closed {
		return errors.New("vk: reset of a command list that is still recording")
	}
	a, ok := alloc.(*CommandAllocator)
	if !ok {
		return errors.AssertionFailedf("vk: foreign command allocator %T", alloc)
	}

	if cl.alloc != a {
		if cl.buffer != nil {
			cl.dev.device.FreeCommandBuffers([]core1_0.CommandBuffer{cl.buffer})
		}
		buffers, _, err := cl.dev.device.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
			CommandPool:        a.pool,
			Level:              core1_0.CommandBufferLevelPrimary,
			CommandBufferCount: 1,
		})
		if err != nil {
			return errors.Wrap(err, "allocate command buffer")
		}
		cl.buffer = buffers[0]
		cl.alloc = a
	}

	if _, err := cl.buffer.Begin(core1_0.CommandBufferBeginInfo{
		Flags: core1_0.CommandBufferUsageOneTimeSubmit,
	}); err != nil {
		return errors.Wrap(err, "begin command buffer")
	}

	cl.closed = false
	cl.err = nil
	cl.rs, cl.ps, cl.sets, cl.setsBound = nil, nil, nil, false
	cl.rtv, cl.dsv, cl.inPass, cl.presents = nil, nil, false, false
	cl.clearColor = map[core1_0.ImageView][4]float32{}
	cl.clearDepth = map[core1_0.ImageView]gpu.ClearValue{}
	if ps != nil {
		cl.SetPipelineState(ps)
	}
	return nil
}

func (cl *CommandList) Close() error {
	if cl.closed {
		return errors.New("vk: close of a closed command list")
	}
	if cl.err == nil {
		cl.flushClears()
		cl.endPass()
	}
	cl.closed = true
	if cl.err != nil {
		return cl.err
	}
	_, err := cl.buffer.End()
	return errors.Wrap(err, "end command buffer")
}

// transition records a layout change for one image.
func (cl *CommandList) transition(r *Resource, sub int, oldLayout, newLayout core1_0.ImageLayout) {
	if !r.initialized {
		oldLayout = core1_0.ImageLayoutUndefined
		r.initialized = true
	}
	err := cl.buffer.CmdPipelineBarrier(core1_0.PipelineStageAllCommands, core1_0.PipelineStageAllCommands, 0, nil, nil, []core1_0.ImageMemoryBarrier{
		{
			OldLayout:           oldLayout,
			NewLayout:           newLayout,
			SrcQueueFamilyIndex: -1,
			DstQueueFamilyIndex: -1,
			Image:               r.image,
			SubresourceRange:    subresourceRange(r, sub),
			SrcAccessMask:       core1_0.AccessMemoryRead | core1_0.AccessMemoryWrite,
			DstAccessMask:       core1_0.AccessMemoryRead | core1_0.AccessMemoryWrite,
		},
	})
	cl.fail(errors.Wrap(err, "pipeline barrier"))
}

// prepare moves a never used image into layout.
func (cl *CommandList) prepare(r *Resource, layout core1_0.ImageLayout) {
	if !r.initialized {
		cl.transition(r, gpu.AllSubresources, core1_0.ImageLayoutUndefined, layout)
	}
}

func (cl *CommandList) Barrier(barriers ...gpu.Barrier) {
	if !cl.recording() {
		return
	}
	cl.flushClears()
	cl.endPass()
	for _, b := range barriers {
		r, ok := b.Resource.(*Resource)
		if !ok {
			cl.fail(errors.AssertionFailedf("vk: foreign resource %T", b.Resource))
			return
		}
		if r.image == nil {
			// upload buffers are host coherent and never change state.
			continue
		}
		oldLayout := layoutOf(r, b.Before)
		if r.swap && b.Before == gpu.StatePresent {
			// the previous contents of a back buffer are never read.
			oldLayout = core1_0.ImageLayoutUndefined
		}
		cl.transition(r, b.Subresource, oldLayout, layoutOf(r, b.After))
		if r.swap && b.After == gpu.StatePresent {
			cl.presents = true
		}
	}
}

func (cl *CommandList) resolve(h gpu.CPUHandle, kind gpu.HeapKind) *descriptor {
	heap, i, err := cl.dev.lookupDescriptor(uint64(h.Ptr))
	if err != nil {
		cl.fail(err)
		return nil
	}
	if heap.kind != kind {
		cl.fail(errors.Newf("vk: %s handle used as %s", heap.kind, kind))
		return nil
	}
	d, _ := heap.get(i)
	if d.view == nil {
		cl.fail(errors.Newf("vk: empty %s descriptor %d", kind, i))
		return nil
	}
	return &d
}

func (cl *CommandList) SetRenderTargets(rtv []gpu.CPUHandle, dsv *gpu.CPUHandle) {
	if !cl.recording() {
		return
	}
	if len(rtv) != 1 {
		cl.fail(errors.Newf("vk: %d render targets, want 1", len(rtv)))
		return
	}
	cl.flushClears()
	cl.endPass()
	cl.rtv = cl.resolve(rtv[0], gpu.HeapKindRTV)
	cl.dsv = nil
	if dsv != nil {
		cl.dsv = cl.resolve(*dsv, gpu.HeapKindDSV)
	}
}

func (cl *CommandList) ClearRenderTarget(rtv gpu.CPUHandle, color [4]float32) {
	if !cl.recording() {
		return
	}
	d := cl.resolve(rtv, gpu.HeapKindRTV)
	if d == nil {
		return
	}
	cl.endPass()
	cl.clearColor[d.view] = color
}

func (cl *CommandList) ClearDepthStencil(dsv gpu.CPUHandle, depth float32, stencil uint8) {
	if !cl.recording() {
		return
	}
	d := cl.resolve(dsv, gpu.HeapKindDSV)
	if d == nil {
		return
	}
	cl.endPass()
	cl.clearDepth[d.view] = gpu.ClearValue{Depth: depth, Stencil: stencil}
}

// flushClears runs an empty pass when clears are pending.
func (cl *CommandList) flushClears() {
	if len(cl.clearColor) == 0 && len(cl.clearDepth) == 0 {
		return
	}
	cl.beginPass()
	if len(cl.clearColor) != 0 || len(cl.clearDepth) != 0 {
		cl.fail(errors.Newf("vk: clear of a target that is not bound"))
	}
}

func (cl *CommandList) beginPass() {
	if cl.inPass || cl.err != nil {
		return
	}
	if cl.rtv == nil {
		cl.fail(errors.Newf("vk: draw without a render target"))
		return
	}

	key := passKey{color: cl.rtv.res.format}
	fbKey := framebufferKey{
		color:  cl.rtv.view,
		width:  int(cl.rtv.res.desc.Width),
		height: int(cl.rtv.res.desc.Height),
	}
	color, clearColor := cl.clearColor[cl.rtv.view]
	key.clearColor = clearColor
	delete(cl.clearColor, cl.rtv.view)
	cl.prepare(cl.rtv.res, core1_0.ImageLayoutColorAttachmentOptimal)

	clears := []core1_0.ClearValue{core1_0.ClearValueFloat(color)}
	if cl.dsv != nil {
		key.depth = cl.dsv.res.format
		fbKey.depth = cl.dsv.view
		depth, clearDepth := cl.clearDepth[cl.dsv.view]
		key.clearDepth = clearDepth
		delete(cl.clearDepth, cl.dsv.view)
		cl.prepare(cl.dsv.res, core1_0.ImageLayoutDepthStencilAttachmentOptimal)
		clears = append(clears, core1_0.ClearValueDepthStencil{Depth: depth.Depth, Stencil: uint32(depth.Stencil)})
	}

	rp, err := cl.dev.renderPass(key)
	if err != nil {
		cl.fail(err)
		return
	}
	fb, err := cl.dev.framebuffer(rp, fbKey)
	if err != nil {
		cl.fail(err)
		return
	}

	err = cl.buffer.CmdBeginRenderPass(core1_0.SubpassContentsInline,
		core1_0.RenderPassBeginInfo{
			RenderPass:  rp,
			Framebuffer: fb,
			RenderArea: core1_0.Rect2D{
				Offset: core1_0.Offset2D{X: 0, Y: 0},
				Extent: core1_0.Extent2D{Width: fbKey.width, Height: fbKey.height},
			},
			ClearValues: clears,
		})
	if err != nil {
		cl.fail(errors.Wrap(err, "begin render pass"))
		return
	}
	cl.inPass = true
}

func (cl *CommandList) endPass() {
	if !cl.inPass {
		return
	}
	cl.buffer.CmdEndRenderPass()
	cl.inPass = false
}

func (cl *CommandList) SetViewports(vp ...gpu.Viewport) {
	if !cl.recording() {
		return
	}
	viewports := make([]core1_0.Viewport, len(vp))
	for i, v := range vp {
		viewports[i] = core1_0.Viewport{
			X:        v.X,
			Y:        v.Y,
			Width:    v.Width,
			Height:   v.Height,
			MinDepth: v.MinDepth,
			MaxDepth: v.MaxDepth,
		}
	}
	cl.buffer.CmdSetViewport(viewports)
}

func (cl *CommandList) SetScissors(rects ...gpu.Rect) {
	if !cl.recording() {
		return
	}
	scissors := make([]core1_0.Rect2D, len(rects))
	for i, r := range rects {
		scissors[i] = core1_0.Rect2D{
			Offset: core1_0.Offset2D{X: int(r.Left), Y: int(r.Top)},
			Extent: core1_0.Extent2D{Width: int(r.Right - r.Left), Height: int(r.Bottom - r.Top)},
		}
	}
	cl.buffer.CmdSetScissor(scissors)
}

func (cl *CommandList) SetRootSignature(rs gpu.RootSignature) {
	if !cl.recording() {
		return
	}
	sig, ok := rs.(*RootSignature)
	if !ok {
		cl.fail(errors.AssertionFailedf("vk: foreign root signature %T", rs))
		return
	}
	cl.rs = sig
	cl.sets = make([]core1_0.DescriptorSet, len(sig.desc.Params))
	cl.setsBound = false
}

func (cl *CommandList) SetPipelineState(ps gpu.PipelineState) {
	if !cl.recording() {
		return
	}
	p, ok := ps.(*PipelineState)
	if !ok {
		cl.fail(errors.AssertionFailedf("vk: foreign pipeline state %T", ps))
		return
	}
	cl.ps = p
	cl.buffer.CmdBindPipeline(core1_0.PipelineBindPointGraphics, p.pipeline)
}

// SetDescriptorHeaps only checks the heaps; tables carry their heap in
// the handle.
func (cl *CommandList) SetDescriptorHeaps(heaps ...gpu.DescriptorHeap) {
	if !cl.recording() {
		return
	}
	for _, h := range heaps {
		if !h.ShaderVisible() {
			cl.fail(errors.Newf("vk: %s heap is not shader visible", h.Kind()))
		}
	}
}

func (cl *CommandList) SetPrimitiveTopology(t gpu.Topology) {
	if !cl.recording() {
		return
	}
	if t != gpu.TopologyTriangleList {
		cl.fail(errors.Newf("vk: unsupported topology %d", t))
	}
}

func (cl *CommandList) SetVertexBuffers(start int, views ...gpu.VertexBufferView) {
	if !cl.recording() {
		return
	}
	if start != 0 || len(views) != 1 {
		cl.fail(errors.Newf("vk: vertex buffers %d..%d, want slot 0 only", start, start+len(views)))
		return
	}
	buf, off, err := cl.dev.lookupBuffer(views[0].Location)
	if err != nil {
		cl.fail(err)
		return
	}
	cl.buffer.CmdBindVertexBuffers([]core1_0.Buffer{buf.buffer}, []int{off})
}

func (cl *CommandList) SetIndexBuffer(view *gpu.IndexBufferView) {
	if !cl.recording() || view == nil {
		return
	}
	buf, off, err := cl.dev.lookupBuffer(view.Location)
	if err != nil {
		cl.fail(err)
		return
	}
	cl.buffer.CmdBindIndexBuffer(buf.buffer, off, indexType(view.Format))
}

func (cl *CommandList) param(param int, kind gpu.RootParamKind) bool {
	if cl.rs == nil {
		cl.fail(errors.Newf("vk: root parameter %d set before the root signature", param))
		return false
	}
	if param < 0 || param >= len(cl.rs.desc.Params) || cl.rs.desc.Params[param].Kind != kind {
		cl.fail(errors.Newf("vk: root parameter %d does not exist or has another kind", param))
		return false
	}
	return true
}

func (cl *CommandList) SetRootConstantBufferView(param int, addr gpu.GPUAddress) {
	if !cl.recording() || !cl.param(param, gpu.RootCBV) {
		return
	}
	buf, off, err := cl.dev.lookupBuffer(addr)
	if err != nil {
		cl.fail(err)
		return
	}
	set, err := cl.rs.constantSet(param, buf, off)
	if err != nil {
		cl.fail(err)
		return
	}
	cl.sets[param] = set
	cl.setsBound = false
}

func (cl *CommandList) SetRootDescriptorTable(param int, base gpu.GPUHandle) {
	if !cl.recording() || !cl.param(param, gpu.RootTable) {
		return
	}
	heap, slot, err := cl.dev.lookupDescriptor(base.Ptr)
	if err != nil {
		cl.fail(err)
		return
	}
	if !heap.visible {
		cl.fail(errors.Newf("vk: table in a heap that is not shader visible"))
		return
	}
	set, err := cl.rs.tableSet(param, heap, slot)
	if err != nil {
		cl.fail(err)
		return
	}
	cl.sets[param] = set
	cl.setsBound = false
}

// prepareDraw opens the pass and binds the descriptor sets. Every set is
// rebound from 0 since the bind call takes no first set index.
func (cl *CommandList) prepareDraw() bool {
	if cl.rs == nil || cl.ps == nil {
		cl.fail(errors.Newf("vk: draw without a root signature and pipeline"))
		return false
	}
	cl.beginPass()
	if cl.err != nil {
		return false
	}
	if !cl.setsBound {
		for i, s := range cl.sets {
			if s == nil {
				cl.fail(errors.Newf("vk: draw with root parameter %d unbound", i))
				return false
			}
		}
		cl.buffer.CmdBindDescriptorSets(core1_0.PipelineBindPointGraphics, cl.rs.layout, cl.sets, nil)
		cl.setsBound = true
	}
	return true
}

func (cl *CommandList) Draw(vertexCount, instanceCount, startVertex, startInstance int) {
	if !cl.recording() || !cl.prepareDraw() {
		return
	}
	cl.buffer.CmdDraw(vertexCount, instanceCount, uint32(startVertex), uint32(startInstance))
}

func (cl *CommandList) DrawIndexed(indexCount, instanceCount, startIndex, baseVertex, startInstance int) {
	if !cl.recording() || !cl.prepareDraw() {
		return
	}
	cl.buffer.CmdDrawIndexed(indexCount, instanceCount, uint32(startIndex), baseVertex, uint32(startInstance))
}

func (cl *CommandList) CopyTextureRegion(dst gpu.Resource, subresource int, src gpu.Resource, fp gpu.Footprint) {
	if !cl.recording() {
		return
	}
	d, ok1 := dst.(*Resource)
	s, ok2 := src.(*Resource)
	if !ok1 || !ok2 || d.image == nil || s.buffer == nil {
		cl.fail(errors.Newf("vk: copy needs a buffer source and a texture destination"))
		return
	}
	cl.flushClears()
	cl.endPass()
	cl.prepare(d, core1_0.ImageLayoutTransferDstOptimal)

	mips := int(d.desc.MipLevels)
	err := cl.buffer.CmdCopyBufferToImage(s.buffer, d.image, core1_0.ImageLayoutTransferDstOptimal, []core1_0.BufferImageCopy{
		{
			BufferOffset:      int(fp.Offset),
			BufferRowLength:   int(fp.RowPitch) / fp.Format.Size(),
			BufferImageHeight: 0,

			ImageSubresource: core1_0.ImageSubresourceLayers{
				AspectMask:     core1_0.ImageAspectColor,
				MipLevel:       subresource % mips,
				BaseArrayLayer: subresource / mips,
				LayerCount:     1,
			},
			ImageOffset: core1_0.Offset3D{X: 0, Y: 0, Z: 0},
			ImageExtent: core1_0.Extent3D{Width: int(fp.Width), Height: int(fp.Height), Depth: 1},
		},
	})
	cl.fail(errors.Wrap(err, "copy buffer to image"))
}

func (cl *CommandList) Release() {
	if cl.buffer != nil {
		cl.dev.device.FreeCommandBuffers([]core1_0.CommandBuffer{cl.buffer})
		cl.buffer = nil
	}
}
