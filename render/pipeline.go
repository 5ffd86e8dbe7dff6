package render

import (
	"fmt"

	"github.com/cockroachdb/errors"

	"github.com/cg2go/renderer/gpu"
)

// BindPoint names a root parameter of the fixed pipeline.
type BindPoint int

const (
	BindMaterial BindPoint = iota
	BindTransform
	BindTexture
	BindLight
	BindVisibility
)

func (b BindPoint) String() string {
	switch b {
	case BindMaterial:
		return "material"
	case BindTransform:
		return "transform"
	case BindTexture:
		return "texture"
	case BindLight:
		return "light"
	case BindVisibility:
		return "visibility"
	}
	return fmt.Sprintf("BindPoint(%d)", int(b))
}

type Binding struct {
	Point BindPoint
	gpu.RootParam
}

// PipelineLayout declares every binding, sampler and vertex attribute of
// a pipeline. Draw code binds through it by name instead of by root
// parameter index.
type PipelineLayout struct {
	Bindings    []Binding
	Samplers    []gpu.StaticSampler
	InputLayout []gpu.InputElement
	Cull        gpu.CullMode
	DepthFunc   gpu.CompareFunc
}

// ObjectLayout is the layout of the Object3d shaders.
var ObjectLayout = PipelineLayout{
	Bindings: []Binding{
		{BindMaterial, gpu.RootParam{Kind: gpu.RootCBV, Visibility: gpu.VisibilityPixel, Register: 0}},
		{BindTransform, gpu.RootParam{Kind: gpu.RootCBV, Visibility: gpu.VisibilityVertex, Register: 0}},
		{BindTexture, gpu.RootParam{Kind: gpu.RootTable, Visibility: gpu.VisibilityPixel, Register: 0, NumDescriptors: 1}},
		{BindLight, gpu.RootParam{Kind: gpu.RootCBV, Visibility: gpu.VisibilityPixel, Register: 1}},
		{BindVisibility, gpu.RootParam{Kind: gpu.RootCBV, Visibility: gpu.VisibilityPixel, Register: 2}},
	},
	Samplers: []gpu.StaticSampler{
		{Filter: gpu.FilterLinear, Address: gpu.AddressWrap, Register: 0, Visibility: gpu.VisibilityPixel, MaxLOD: 1000},
	},
	InputLayout: []gpu.InputElement{
		{Semantic: "POSITION", Format: gpu.FormatR32G32B32A32Float, Offset: gpu.AppendAligned},
		{Semantic: "TEXCOORD", Format: gpu.FormatR32G32Float, Offset: gpu.AppendAligned},
		{Semantic: "NORMAL", Format: gpu.FormatR32G32B32Float, Offset: gpu.AppendAligned},
	},
	Cull:      gpu.CullBack,
	DepthFunc: gpu.CompareLessEqual,
}

// Param returns the root parameter index of p.
func (l *PipelineLayout) Param(p BindPoint) int {
	for i, b := range l.Bindings {
		if b.Point == p {
			return i
		}
	}
	panic(errors.AssertionFailedf("bind point %s is not part of the layout", p))
}

func (l *PipelineLayout) RootSignatureDesc() gpu.RootSignatureDesc {
	desc := gpu.RootSignatureDesc{
		Samplers:         append([]gpu.StaticSampler(nil), l.Samplers...),
		AllowInputLayout: len(l.InputLayout) > 0,
	}
	for _, b := range l.Bindings {
		desc.Params = append(desc.Params, b.RootParam)
	}
	return desc
}

// VertexStride is the byte size of one vertex of the input layout.
func (l *PipelineLayout) VertexStride() uint32 {
	stride, _ := gpu.InputStride(l.InputLayout)
	return stride
}

func (l *PipelineLayout) PipelineDesc(rs gpu.RootSignature, vs, ps []byte, rtv, dsv gpu.Format) gpu.PipelineDesc {
	return gpu.PipelineDesc{
		RootSignature: rs,
		InputLayout:   l.InputLayout,
		VS:            vs,
		PS:            ps,
		Cull:          l.Cull,
		Fill:          gpu.FillSolid,
		DepthEnable:   true,
		DepthWrite:    true,
		DepthFunc:     l.DepthFunc,
		RTVFormats:    []gpu.Format{rtv},
		DSVFormat:     dsv,
		Topology:      gpu.TopologyTriangleList,
	}
}

// BindCBV binds buf to the constant buffer at p.
func (l *PipelineLayout) BindCBV(cl gpu.CommandList, p BindPoint, buf *Buffer) {
	cl.SetRootConstantBufferView(l.Param(p), buf.GPUAddress())
}

// BindTable binds the descriptor table starting at base to p.
func (l *PipelineLayout) BindTable(cl gpu.CommandList, p BindPoint, base gpu.GPUHandle) {
	cl.SetRootDescriptorTable(l.Param(p), base)
}

// Pipeline is a layout together with its root signature and compiled
// pipeline state.
type Pipeline struct {
	Layout        *PipelineLayout
	RootSignature gpu.RootSignature
	State         gpu.PipelineState
}

func NewPipeline(dev gpu.Device, layout *PipelineLayout, vs, ps []byte, rtv, dsv gpu.Format) (*Pipeline, error) {
	rs, err := dev.NewRootSignature(layout.RootSignatureDesc())
	if err != nil {
		return nil, errors.Wrap(err, "create root signature")
	}
	state, err := dev.NewPipelineState(layout.PipelineDesc(rs, vs, ps, rtv, dsv))
	if err != nil {
		rs.Release()
		return nil, errors.Wrap(err, "create pipeline state")
	}
	return &Pipeline{Layout: layout, RootSignature: rs, State: state}, nil
}

// Bind sets the root signature, pipeline state and topology on cl.
func (p *Pipeline) Bind(cl gpu.CommandList) {
	cl.SetRootSignature(p.RootSignature)
	cl.SetPipelineState(p.State)
	cl.SetPrimitiveTopology(gpu.TopologyTriangleList)
}

func (p *Pipeline) Release() {
	p.State.Release()
	p.RootSignature.Release()
}
