package vk

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/core1_0"

	"github.com/cg2go/renderer/gpu"
)

const (
	maxDescriptorSets = 4096
	maxTableSize      = 8
)

// RootSignature maps every root parameter to its own descriptor set with a
// single binding 0. Sets are allocated on first use and cached for the
// lifetime of the signature.
type RootSignature struct {
	dev        *Device
	desc       gpu.RootSignatureDesc
	setLayouts []core1_0.DescriptorSetLayout
	layout     core1_0.PipelineLayout
	samplers   []core1_0.Sampler
	pool       core1_0.DescriptorPool

	mu   sync.Mutex
	sets map[setKey]core1_0.DescriptorSet
}

type setKey struct {
	param  int
	buffer core1_0.Buffer
	offset int
	heap   uint32
	slot   int
	gen    uint64
}

var _ gpu.RootSignature = (*RootSignature)(nil)

func (d *Device) NewRootSignature(desc gpu.RootSignatureDesc) (gpu.RootSignature, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	if err := checkSetLimit(len(desc.Params), d.adapter.properties.Limits); err != nil {
		return nil, err
	}
	rs := &RootSignature{dev: d, desc: desc, sets: map[setKey]core1_0.DescriptorSet{}}
	if err := rs.create(); err != nil {
		rs.Release()
		return nil, err
	}
	return rs, nil
}

// checkSetLimit rejects layouts needing more descriptor sets than the
// device can bind at once. Each root parameter is its own set.
func checkSetLimit(params int, limits *core1_0.PhysicalDeviceLimits) error {
	if params > limits.MaxBoundDescriptorSets {
		return errors.Newf("vk: %d root parameters exceed the device limit of %d bound descriptor sets",
			params, limits.MaxBoundDescriptorSets)
	}
	return nil
}

func (rs *RootSignature) create() error {
	for _, s := range rs.desc.Samplers {
		filter, mipmap := core1_0.FilterLinear, core1_0.SamplerMipmapModeLinear
		if s.Filter == gpu.FilterPoint {
			filter, mipmap = core1_0.FilterNearest, core1_0.SamplerMipmapModeNearest
		}
		address := core1_0.SamplerAddressModeRepeat
		if s.Address == gpu.AddressClamp {
			address = core1_0.SamplerAddressModeClampToEdge
		}
		sampler, _, err := rs.dev.device.CreateSampler(nil, core1_0.SamplerCreateInfo{
			MagFilter:    filter,
			MinFilter:    filter,
			AddressModeU: address,
			AddressModeV: address,
			AddressModeW: address,

			BorderColor: core1_0.BorderColorIntOpaqueBlack,

			MipmapMode: mipmap,
			MaxLod:     s.MaxLOD,
		})
		if err != nil {
			return errors.Wrap(err, "create sampler")
		}
		rs.samplers = append(rs.samplers, sampler)
	}

	var uniforms, images int
	for i, p := range rs.desc.Params {
		binding := core1_0.DescriptorSetLayoutBinding{
			Binding:         0,
			DescriptorType:  core1_0.DescriptorTypeUniformBuffer,
			DescriptorCount: 1,

			StageFlags: stageFlags(p.Visibility),
		}
		if p.Kind == gpu.RootTable {
			if p.NumDescriptors < 1 || p.NumDescriptors > maxTableSize {
				return errors.Newf("vk: root parameter %d has %d descriptors", i, p.NumDescriptors)
			}
			if len(rs.samplers) == 0 {
				return errors.Newf("vk: root parameter %d is a texture table without a static sampler", i)
			}
			binding.DescriptorType = core1_0.DescriptorTypeCombinedImageSampler
			binding.DescriptorCount = p.NumDescriptors
			images += p.NumDescriptors
		} else {
			uniforms++
		}

		setLayout, _, err := rs.dev.device.CreateDescriptorSetLayout(nil, core1_0.DescriptorSetLayoutCreateInfo{
			Bindings: []core1_0.DescriptorSetLayoutBinding{binding},
		})
		if err != nil {
			return errors.Wrapf(err, "create descriptor set layout %d", i)
		}
		rs.setLayouts = append(rs.setLayouts, setLayout)
	}

	var err error
	rs.layout, _, err = rs.dev.device.CreatePipelineLayout(nil, core1_0.PipelineLayoutCreateInfo{
		SetLayouts: rs.setLayouts,
	})
	if err != nil {
		return errors.Wrap(err, "create pipeline layout")
	}

	var sizes []core1_0.DescriptorPoolSize
	if uniforms > 0 {
		sizes = append(sizes, core1_0.DescriptorPoolSize{
			Type:            core1_0.DescriptorTypeUniformBuffer,
			DescriptorCount: maxDescriptorSets,
		})
	}
	if images > 0 {
		sizes = append(sizes, core1_0.DescriptorPoolSize{
			Type:            core1_0.DescriptorTypeCombinedImageSampler,
			DescriptorCount: maxDescriptorSets * maxTableSize,
		})
	}
	if len(sizes) == 0 {
		return nil
	}
	rs.pool, _, err = rs.dev.device.CreateDescriptorPool(nil, core1_0.DescriptorPoolCreateInfo{
		MaxSets:   maxDescriptorSets,
		PoolSizes: sizes,
	})
	return errors.Wrap(err, "create descriptor pool")
}

func (rs *RootSignature) Desc() gpu.RootSignatureDesc { return rs.desc }

// sampler returns the static sampler bound to register, or the first one.
func (rs *RootSignature) sampler(register int) core1_0.Sampler {
	for i, s := range rs.desc.Samplers {
		if s.Register == register {
			return rs.samplers[i]
		}
	}
	return rs.samplers[0]
}

func (rs *RootSignature) allocate(key setKey, write core1_0.WriteDescriptorSet) (core1_0.DescriptorSet, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if set, ok := rs.sets[key]; ok {
		return set, nil
	}

	sets, _, err := rs.dev.device.AllocateDescriptorSets(core1_0.DescriptorSetAllocateInfo{
		DescriptorPool: rs.pool,
		SetLayouts:     []core1_0.DescriptorSetLayout{rs.setLayouts[key.param]},
	})
	if err != nil {
		return nil, errors.Wrapf(err, "allocate descriptor set for root parameter %d", key.param)
	}
	write.DstSet = sets[0]
	write.DstBinding = 0
	write.DstArrayElement = 0
	if err := rs.dev.device.UpdateDescriptorSets([]core1_0.WriteDescriptorSet{write}, nil); err != nil {
		return nil, errors.Wrap(err, "update descriptor set")
	}
	rs.sets[key] = sets[0]
	return sets[0], nil
}

// constantSet returns the set binding buf at offset as a uniform buffer.
func (rs *RootSignature) constantSet(param int, buf *Resource, offset int) (core1_0.DescriptorSet, error) {
	return rs.allocate(setKey{param: param, buffer: buf.buffer, offset: offset}, core1_0.WriteDescriptorSet{
		DescriptorType: core1_0.DescriptorTypeUniformBuffer,
		BufferInfo: []core1_0.DescriptorBufferInfo{
			{
				Buffer: buf.buffer,
				Offset: offset,
				Range:  int(buf.desc.Width) - offset,
			},
		},
	})
}

// tableSet returns the set sampling the heap slots starting at slot.
func (rs *RootSignature) tableSet(param int, heap *DescriptorHeap, slot int) (core1_0.DescriptorSet, error) {
	p := rs.desc.Params[param]
	if slot+p.NumDescriptors > heap.Capacity() {
		return nil, errors.Newf("vk: table of %d at slot %d overruns its heap", p.NumDescriptors, slot)
	}

	var gen uint64
	infos := make([]core1_0.DescriptorImageInfo, p.NumDescriptors)
	for i := range infos {
		var d descriptor
		d, gen = heap.get(slot + i)
		if d.view == nil {
			return nil, errors.Newf("vk: root parameter %d reads empty descriptor %d", param, slot+i)
		}
		infos[i] = core1_0.DescriptorImageInfo{
			ImageView:   d.view,
			Sampler:     rs.sampler(p.Register),
			ImageLayout: core1_0.ImageLayoutShaderReadOnlyOptimal,
		}
	}
	return rs.allocate(setKey{param: param, heap: heap.id, slot: slot, gen: gen}, core1_0.WriteDescriptorSet{
		DescriptorType: core1_0.DescriptorTypeCombinedImageSampler,
		ImageInfo:      infos,
	})
}

func (rs *RootSignature) Release() {
	if rs.pool != nil {
		rs.pool.Destroy(nil)
		rs.pool = nil
	}
	if rs.layout != nil {
		rs.layout.Destroy(nil)
		rs.layout = nil
	}
	for _, l := range rs.setLayouts {
		l.Destroy(nil)
	}
	rs.setLayouts = nil
	for _, s := range rs.samplers {
		s.Destroy(nil)
	}
	rs.samplers = nil
}

// PipelineState is a graphics pipeline built against a render pass with
// the same attachment formats as the targets it will draw to.
type PipelineState struct {
	dev      *Device
	rs       *RootSignature
	pipeline core1_0.Pipeline
	topology gpu.Topology
	stride   uint32
}

var _ gpu.PipelineState = (*PipelineState)(nil)

func (d *Device) NewPipelineState(desc gpu.PipelineDesc) (gpu.PipelineState, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	rs, ok := desc.RootSignature.(*RootSignature)
	if !ok {
		return nil, errors.AssertionFailedf("vk: foreign root signature %T", desc.RootSignature)
	}
	if len(desc.RTVFormats) != 1 {
		return nil, errors.Newf("vk: %d render targets, want 1", len(desc.RTVFormats))
	}

	vertShader, _, err := d.device.CreateShaderModule(nil, core1_0.ShaderModuleCreateInfo{
		Code: bytesToBytecode(desc.VS),
	})
	if err != nil {
		return nil, errors.Wrap(err, "create vertex shader")
	}
	defer vertShader.Destroy(nil)

	fragShader, _, err := d.device.CreateShaderModule(nil, core1_0.ShaderModuleCreateInfo{
		Code: bytesToBytecode(desc.PS),
	})
	if err != nil {
		return nil, errors.Wrap(err, "create pixel shader")
	}
	defer fragShader.Destroy(nil)

	stride, offsets := gpu.InputStride(desc.InputLayout)
	var attributes []core1_0.VertexInputAttributeDescription
	for i, e := range desc.InputLayout {
		format, err := colorFormat(e.Format)
		if err != nil {
			return nil, err
		}
		attributes = append(attributes, core1_0.VertexInputAttributeDescription{
			Binding:  0,
			Location: i,
			Format:   format,
			Offset:   int(offsets[i]),
		})
	}

	key := passKey{}
	if key.color, err = d.format(desc.RTVFormats[0]); err != nil {
		return nil, err
	}
	if desc.DSVFormat != gpu.FormatUnknown {
		if key.depth, err = d.format(desc.DSVFormat); err != nil {
			return nil, err
		}
	}
	renderPass, err := d.renderPass(key)
	if err != nil {
		return nil, err
	}

	polygonMode := core1_0.PolygonModeFill
	if desc.Fill == gpu.FillWireframe {
		polygonMode = core1_0.PolygonModeLine
	}

	pipelines, _, err := d.device.CreateGraphicsPipelines(nil, nil, []core1_0.GraphicsPipelineCreateInfo{
		{
			Stages: []core1_0.PipelineShaderStageCreateInfo{
				{
					Stage:  core1_0.StageVertex,
					Module: vertShader,
					Name:   "main",
				},
				{
					Stage:  core1_0.StageFragment,
					Module: fragShader,
					Name:   "main",
				},
			},
			VertexInputState: &core1_0.PipelineVertexInputStateCreateInfo{
				VertexBindingDescriptions: []core1_0.VertexInputBindingDescription{
					{
						Binding:   0,
						Stride:    int(stride),
						InputRate: core1_0.RateVertex,
					},
				},
				VertexAttributeDescriptions: attributes,
			},
			InputAssemblyState: &core1_0.PipelineInputAssemblyStateCreateInfo{
				Topology:               core1_0.PrimitiveTopologyTriangleList,
				PrimitiveRestartEnable: false,
			},
			// Viewport and scissor are dynamic and set by the command list.
			ViewportState: &core1_0.PipelineViewportStateCreateInfo{
				Viewports: []core1_0.Viewport{{Width: 1, Height: 1, MaxDepth: 1}},
				Scissors:  []core1_0.Rect2D{{Extent: core1_0.Extent2D{Width: 1, Height: 1}}},
			},
			RasterizationState: &core1_0.PipelineRasterizationStateCreateInfo{
				DepthClampEnable:        false,
				RasterizerDiscardEnable: false,

				PolygonMode: polygonMode,
				CullMode:    cullMode(desc.Cull),
				FrontFace:   core1_0.FrontFaceCounterClockwise,

				DepthBiasEnable: false,

				LineWidth: 1.0,
			},
			MultisampleState: &core1_0.PipelineMultisampleStateCreateInfo{
				SampleShadingEnable:  false,
				RasterizationSamples: core1_0.Samples1,
				MinSampleShading:     1.0,
			},
			DepthStencilState: &core1_0.PipelineDepthStencilStateCreateInfo{
				DepthTestEnable:  desc.DepthEnable,
				DepthWriteEnable: desc.DepthWrite,
				DepthCompareOp:   compareOp(desc.DepthFunc),
			},
			ColorBlendState: &core1_0.PipelineColorBlendStateCreateInfo{
				LogicOpEnabled: false,
				LogicOp:        core1_0.LogicOpCopy,

				BlendConstants: [4]float32{0, 0, 0, 0},
				Attachments: []core1_0.PipelineColorBlendAttachmentState{
					{
						BlendEnabled:   false,
						ColorWriteMask: core1_0.ColorComponentRed | core1_0.ColorComponentGreen | core1_0.ColorComponentBlue | core1_0.ColorComponentAlpha,
					},
				},
			},
			DynamicState: &core1_0.PipelineDynamicStateCreateInfo{
				DynamicStates: []core1_0.DynamicState{core1_0.DynamicStateViewport, core1_0.DynamicStateScissor},
			},
			Layout:            rs.layout,
			RenderPass:        renderPass,
			Subpass:           0,
			BasePipelineIndex: -1,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "create graphics pipeline")
	}
	return &PipelineState{dev: d, rs: rs, pipeline: pipelines[0], topology: desc.Topology, stride: stride}, nil
}

func (p *PipelineState) Release() {
	if p.pipeline != nil {
		p.pipeline.Destroy(nil)
		p.pipeline = nil
	}
}

// passKey identifies a render pass. Passes differing only in load
// operations are compatible, so pipelines are built against the
// load-load variant and drawn inside any of them.
type passKey struct {
	color, depth           core1_0.Format
	clearColor, clearDepth bool
}

type framebufferKey struct {
	color, depth  core1_0.ImageView
	width, height int
}

func (d *Device) renderPass(key passKey) (core1_0.RenderPass, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if rp, ok := d.renderPasses[key]; ok {
		return rp, nil
	}

	loadOp := func(clear bool) core1_0.AttachmentLoadOp {
		if clear {
			return core1_0.AttachmentLoadOpClear
		}
		return core1_0.AttachmentLoadOpLoad
	}

	attachments := []core1_0.AttachmentDescription{
		{
			Format:         key.color,
			Samples:        core1_0.Samples1,
			LoadOp:         loadOp(key.clearColor),
			StoreOp:        core1_0.AttachmentStoreOpStore,
			StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
			StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
			InitialLayout:  core1_0.ImageLayoutColorAttachmentOptimal,
			FinalLayout:    core1_0.ImageLayoutColorAttachmentOptimal,
		},
	}
	subpass := core1_0.SubpassDescription{
		PipelineBindPoint: core1_0.PipelineBindPointGraphics,
		ColorAttachments: []core1_0.AttachmentReference{
			{
				Attachment: 0,
				Layout:     core1_0.ImageLayoutColorAttachmentOptimal,
			},
		},
	}
	if key.depth != 0 {
		attachments = append(attachments, core1_0.AttachmentDescription{
			Format:         key.depth,
			Samples:        core1_0.Samples1,
			LoadOp:         loadOp(key.clearDepth),
			StoreOp:        core1_0.AttachmentStoreOpStore,
			StencilLoadOp:  loadOp(key.clearDepth),
			StencilStoreOp: core1_0.AttachmentStoreOpStore,
			InitialLayout:  core1_0.ImageLayoutDepthStencilAttachmentOptimal,
			FinalLayout:    core1_0.ImageLayoutDepthStencilAttachmentOptimal,
		})
		subpass.DepthStencilAttachment = &core1_0.AttachmentReference{
			Attachment: 1,
			Layout:     core1_0.ImageLayoutDepthStencilAttachmentOptimal,
		}
	}

	rp, _, err := d.device.CreateRenderPass(nil, core1_0.RenderPassCreateInfo{
		Attachments: attachments,
		Subpasses:   []core1_0.SubpassDescription{subpass},
		SubpassDependencies: []core1_0.SubpassDependency{
			{
				SrcSubpass: core1_0.SubpassExternal,
				DstSubpass: 0,

				SrcStageMask:  core1_0.PipelineStageColorAttachmentOutput | core1_0.PipelineStageEarlyFragmentTests,
				SrcAccessMask: 0,

				DstStageMask:  core1_0.PipelineStageColorAttachmentOutput | core1_0.PipelineStageEarlyFragmentTests,
				DstAccessMask: core1_0.AccessColorAttachmentWrite | core1_0.AccessDepthStencilAttachmentWrite,
			},
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "create render pass")
	}
	d.renderPasses[key] = rp
	return rp, nil
}

func (d *Device) framebuffer(rp core1_0.RenderPass, key framebufferKey) (core1_0.Framebuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if fb, ok := d.framebuffers[key]; ok {
		return fb, nil
	}

	attachments := []core1_0.ImageView{key.color}
	if key.depth != nil {
		attachments = append(attachments, key.depth)
	}
	fb, _, err := d.device.CreateFramebuffer(nil, core1_0.FramebufferCreateInfo{
		RenderPass:  rp,
		Layers:      1,
		Attachments: attachments,
		Width:       key.width,
		Height:      key.height,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create framebuffer")
	}
	d.framebuffers[key] = fb
	return fb, nil
}
