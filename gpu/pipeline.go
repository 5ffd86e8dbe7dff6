package gpu

type RootParamKind int

const (
	// RootCBV binds a constant buffer by GPU address.
	RootCBV RootParamKind = iota
	// RootTable binds a range of shader-resource descriptors.
	RootTable
)

type ShaderVisibility int

const (
	VisibilityAll ShaderVisibility = iota
	VisibilityVertex
	VisibilityPixel
)

type RootParam struct {
	Kind       RootParamKind
	Visibility ShaderVisibility
	Register   int
	// NumDescriptors is the table range length. Ignored for RootCBV.
	NumDescriptors int
}

type Filter int

const (
	FilterLinear Filter = iota
	FilterPoint
)

type AddressMode int

const (
	AddressWrap AddressMode = iota
	AddressClamp
)

type StaticSampler struct {
	Filter     Filter
	Address    AddressMode
	Register   int
	Visibility ShaderVisibility
	MaxLOD     float32
}

type RootSignatureDesc struct {
	Params           []RootParam
	Samplers         []StaticSampler
	AllowInputLayout bool
}

// AppendAligned places an input element right after the previous one.
const AppendAligned = ^uint32(0)

type InputElement struct {
	Semantic string
	Index    int
	Format   Format
	Offset   uint32
}

type CullMode int

const (
	CullBack CullMode = iota
	CullNone
	CullFront
)

type FillMode int

const (
	FillSolid FillMode = iota
	FillWireframe
)

type CompareFunc int

const (
	CompareLess CompareFunc = iota
	CompareLessEqual
	CompareAlways
)

type PipelineDesc struct {
	RootSignature RootSignature
	InputLayout   []InputElement
	VS            []byte
	PS            []byte
	Cull          CullMode
	Fill          FillMode
	DepthEnable   bool
	DepthWrite    bool
	DepthFunc     CompareFunc
	RTVFormats    []Format
	DSVFormat     Format
	Topology      Topology
}

// InputStride resolves AppendAligned offsets and returns the per-vertex
// stride together with the absolute offset of every element.
func InputStride(layout []InputElement) (stride uint32, offsets []uint32) {
	offsets = make([]uint32, len(layout))
	var next uint32
	for i, e := range layout {
		off := e.Offset
		if off == AppendAligned {
			off = next
		}
		offsets[i] = off
		next = off + uint32(e.Format.Size())
		if next > stride {
			stride = next
		}
	}
	return stride, offsets
}
