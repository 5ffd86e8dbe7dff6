package scene

import (
	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/cg2go/renderer/gpu"
	"github.com/cg2go/renderer/render"
)

// Object owns one vertex buffer, an optional index buffer and its
// material, transform and visibility constant buffers, all persistently
// mapped. The mapped material and visibility are the source of truth and
// may be edited in place between frames.
type Object struct {
	Name      string
	Transform Transform
	UV        Transform
	Texture   render.TextureHandle
	// Screen objects are drawn with the orthographic projection and no
	// view matrix.
	Screen bool

	vertices    *render.Buffer
	vertexCount int
	indices     *render.Buffer
	indexCount  int

	material   *render.Buffer
	transform  *render.Buffer
	visibility *render.Buffer
}

// NewObject uploads vertices and indices into mapped buffers. indices may
// be nil for a non-indexed draw.
func NewObject(a *render.Allocator, name string, vertices []VertexData, indices []uint32) (*Object, error) {
	if len(vertices) == 0 {
		return nil, errors.Newf("object %s has no vertices", name)
	}
	o := &Object{
		Name:        name,
		Transform:   Identity(),
		UV:          Identity(),
		vertexCount: len(vertices),
		indexCount:  len(indices),
	}
	if err := o.create(a, vertices, indices); err != nil {
		o.Release()
		return nil, err
	}

	*o.Material() = Material{
		Color:          mgl32.Vec4{1, 1, 1, 1},
		EnableLighting: 1,
		UVTransform:    mgl32.Ident4(),
	}
	o.Visibility().Visible = 1
	*render.Mapped[TransformationMatrix](o.transform) = TransformationMatrix{
		WVP:   mgl32.Ident4(),
		World: mgl32.Ident4(),
	}
	return o, nil
}

func (o *Object) create(a *render.Allocator, vertices []VertexData, indices []uint32) error {
	var err error
	o.vertices, err = render.CreateTypedBuffer[VertexData](a, len(vertices))
	if err != nil {
		return errors.Wrapf(err, "%s vertex buffer", o.Name)
	}
	copy(render.MappedSlice[VertexData](o.vertices, len(vertices)), vertices)

	if len(indices) > 0 {
		o.indices, err = render.CreateTypedBuffer[uint32](a, len(indices))
		if err != nil {
			return errors.Wrapf(err, "%s index buffer", o.Name)
		}
		copy(render.MappedSlice[uint32](o.indices, len(indices)), indices)
	}

	if o.material, err = render.CreateTypedBuffer[Material](a, 1); err != nil {
		return errors.Wrapf(err, "%s material buffer", o.Name)
	}
	if o.transform, err = render.CreateTypedBuffer[TransformationMatrix](a, 1); err != nil {
		return errors.Wrapf(err, "%s transform buffer", o.Name)
	}
	if o.visibility, err = render.CreateTypedBuffer[Visibility](a, 1); err != nil {
		return errors.Wrapf(err, "%s visibility buffer", o.Name)
	}
	return nil
}

// Material is the mapped material constant buffer.
func (o *Object) Material() *Material {
	return render.Mapped[Material](o.material)
}

// Visibility is the mapped visibility flag.
func (o *Object) Visibility() *Visibility {
	return render.Mapped[Visibility](o.visibility)
}

// TransformationMatrix is the mapped transform constant buffer.
func (o *Object) TransformationMatrix() *TransformationMatrix {
	return render.Mapped[TransformationMatrix](o.transform)
}

func (o *Object) Visible() bool { return o.Visibility().Visible != 0 }

func (o *Object) SetVisible(v bool) {
	o.Visibility().Visible = 0
	if v {
		o.Visibility().Visible = 1
	}
}

func (o *Object) VertexCount() int { return o.vertexCount }
func (o *Object) IndexCount() int  { return o.indexCount }

// Update rewrites the transform and the material UV transform. Nothing is
// skipped when unchanged.
func (o *Object) Update(viewProjection mgl32.Mat4) {
	world := o.Transform.Matrix()
	*o.TransformationMatrix() = TransformationMatrix{
		WVP:   viewProjection.Mul4(world),
		World: world,
	}
	o.Material().UVTransform = o.UV.Matrix()
}

// Record binds the object's buffers and records its draw. light is bound
// to the light slot as is.
func (o *Object) Record(cl gpu.CommandList, p *render.Pipeline, textures *render.TextureCache, light *render.Buffer) {
	l := p.Layout
	cl.SetVertexBuffers(0, gpu.VertexBufferView{
		Location: o.vertices.GPUAddress(),
		Size:     uint32(o.vertices.Size()),
		Stride:   l.VertexStride(),
	})
	l.BindCBV(cl, render.BindMaterial, o.material)
	l.BindCBV(cl, render.BindTransform, o.transform)
	l.BindTable(cl, render.BindTexture, textures.GPUHandle(o.Texture))
	l.BindCBV(cl, render.BindLight, light)
	l.BindCBV(cl, render.BindVisibility, o.visibility)

	if o.indices != nil {
		cl.SetIndexBuffer(&gpu.IndexBufferView{
			Location: o.indices.GPUAddress(),
			Size:     uint32(o.indices.Size()),
			Format:   gpu.FormatR32Uint,
		})
		cl.DrawIndexed(o.indexCount, 1, 0, 0, 0)
		return
	}
	cl.Draw(o.vertexCount, 1, 0, 0)
}

func (o *Object) Release() {
	for _, b := range []*render.Buffer{o.visibility, o.transform, o.material, o.indices, o.vertices} {
		if b != nil {
			b.Release()
		}
	}
}
