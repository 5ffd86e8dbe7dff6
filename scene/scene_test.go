package scene

import (
	"encoding/binary"
	"image/color"
	"math"
	"testing"
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cg2go/renderer/asset"
	"github.com/cg2go/renderer/gpu"
	"github.com/cg2go/renderer/gpu/gputest"
	"github.com/cg2go/renderer/render"
)

func TestLayoutSizes(t *testing.T) {
	assert.Equal(t, uintptr(36), unsafe.Sizeof(VertexData{}))
	assert.Equal(t, uint32(36), render.ObjectLayout.VertexStride())
	assert.Equal(t, uintptr(96), unsafe.Sizeof(Material{}))
	assert.Equal(t, uintptr(16), unsafe.Offsetof(Material{}.EnableLighting))
	assert.Equal(t, uintptr(32), unsafe.Offsetof(Material{}.UVTransform))
	assert.Equal(t, uintptr(128), unsafe.Sizeof(TransformationMatrix{}))
	assert.Equal(t, uintptr(32), unsafe.Sizeof(DirectionalLight{}))
	assert.Equal(t, uintptr(16), unsafe.Sizeof(Visibility{}))
}

// area is the signed area of a clip-space triangle after the perspective
// divide, with y pointing up on screen. Positive means counter-clockwise
// as seen by the viewer.
func area(m mgl32.Mat4, a, b, c mgl32.Vec4) float32 {
	p := func(v mgl32.Vec4) mgl32.Vec2 {
		clip := m.Mul4x1(v)
		return mgl32.Vec2{clip.X() / clip.W(), -clip.Y() / clip.W()}
	}
	pa, pb, pc := p(a), p(b), p(c)
	ab, ac := pb.Sub(pa), pc.Sub(pa)
	return ab.X()*ac.Y() - ab.Y()*ac.X()
}

func TestSpriteGeometry(t *testing.T) {
	vertices, indices := SpriteGeometry(640, 360)
	require.Len(t, vertices, 4)
	require.Len(t, indices, 6)

	proj := Ortho(0, 0, 1280, 720, 0, 100)
	for i := 0; i < 6; i += 3 {
		a := area(proj, vertices[indices[i]].Position, vertices[indices[i+1]].Position, vertices[indices[i+2]].Position)
		assert.Greater(t, a, float32(0), "triangle %d", i/3)
	}

	topLeft := proj.Mul4x1(vertices[1].Position)
	assert.InDelta(t, -1, topLeft.X(), 1e-6)
	assert.InDelta(t, -1, topLeft.Y(), 1e-6)
	assert.InDelta(t, 0, topLeft.Z(), 1e-6)
	bottomRight := proj.Mul4x1(mgl32.Vec4{1280, 720, 0, 1})
	assert.InDelta(t, 1, bottomRight.X(), 1e-6)
	assert.InDelta(t, 1, bottomRight.Y(), 1e-6)
}

func TestSphereGeometry(t *testing.T) {
	vertices, indices := SphereGeometry(16)
	assert.Len(t, vertices, 17*17)
	assert.Len(t, indices, 16*16*6)

	for i := 0; i < len(indices); i += 3 {
		a := vertices[indices[i]].Position.Vec3()
		b := vertices[indices[i+1]].Position.Vec3()
		c := vertices[indices[i+2]].Position.Vec3()
		n := b.Sub(a).Cross(c.Sub(a))
		if n.Len() < 1e-6 {
			continue // collapsed at a pole
		}
		center := a.Add(b).Add(c).Mul(1.0 / 3)
		assert.Greater(t, n.Dot(center), float32(0), "triangle %d faces inward", i/3)
	}
	for _, v := range vertices {
		assert.InDelta(t, 1, v.Normal.Len(), 1e-5)
	}
}

func TestPerspectiveDepthRange(t *testing.T) {
	p := Perspective(0.45, 16.0/9, 0.1, 100)
	near := p.Mul4x1(mgl32.Vec4{0, 0, -0.1, 1})
	far := p.Mul4x1(mgl32.Vec4{0, 0, -100, 1})
	assert.InDelta(t, 0, near.Z()/near.W(), 1e-5)
	assert.InDelta(t, 1, far.Z()/far.W(), 1e-5)

	up := p.Mul4x1(mgl32.Vec4{0, 1, -5, 1})
	assert.Less(t, up.Y(), float32(0))
}

func TestTransformMatrix(t *testing.T) {
	tr := Transform{
		Scale:     mgl32.Vec3{2, 2, 2},
		Rotate:    mgl32.Vec3{0, 0, math.Pi / 2},
		Translate: mgl32.Vec3{1, 0, 0},
	}
	p := tr.Matrix().Mul4x1(mgl32.Vec4{1, 0, 0, 1})
	assert.InDelta(t, 1, p.X(), 1e-5)
	assert.InDelta(t, 2, p.Y(), 1e-5)
	assert.True(t, Identity().Matrix().ApproxEqual(mgl32.Ident4()))
}

func TestLightNormalize(t *testing.T) {
	dev := gputest.NewDevice(gpu.FeatureLevel12_0, gputest.Options{})
	l, err := NewLight(render.NewAllocator(dev))
	require.NoError(t, err)
	defer l.Release()

	l.Data().Direction = mgl32.Vec3{3, 0, 4}
	l.Normalize()
	assert.InDelta(t, 0.6, l.Data().Direction.X(), 1e-6)
	l.Data().Direction = mgl32.Vec3{}
	l.Normalize()
	assert.Equal(t, mgl32.Vec3{0, -1, 0}, l.Data().Direction)
}

type solidDecoder struct{}

func (solidDecoder) Decode(string) (*asset.Image, error) {
	return asset.Solid(4, 4, color.RGBA{R: 255, G: 255, B: 255, A: 255}), nil
}

func TestSceneFrame(t *testing.T) {
	adapter := gputest.NewAdapter("Fake GPU")
	opts := render.DefaultOptions()
	opts.VS, opts.PS = []byte{1}, []byte{2}
	opts.Decoder = solidDecoder{}
	r, err := render.New(gputest.NewFactory(adapter), opts)
	require.NoError(t, err)
	defer r.Close()
	dev := adapter.Device

	tex, err := r.LoadTexture("white.png")
	require.NoError(t, err)
	require.NoError(t, r.Flush())

	light, err := NewLight(r.Allocator())
	require.NoError(t, err)
	s := New(light, 1280, 720)
	defer s.Release()

	sprite, err := NewSprite(r.Allocator(), 640, 360)
	require.NoError(t, err)
	sprite.Texture = tex
	sphere, err := NewSphere(r.Allocator(), 16)
	require.NoError(t, err)
	sphere.Texture = tex
	model, err := NewModel(r.Allocator(), "Triangle", &asset.Model{Vertices: []VertexData{
		{Position: mgl32.Vec4{0, 1, 0, 1}},
		{Position: mgl32.Vec4{-1, 0, 0, 1}},
		{Position: mgl32.Vec4{1, 0, 0, 1}},
	}})
	require.NoError(t, err)
	model.Texture = tex
	s.Add(sprite)
	s.Add(sphere)
	s.Add(model)

	for frame := 0; frame < 2; frame++ {
		sphere.Transform.Rotate[1] = float32(frame)
		sphere.SetVisible(frame == 0)
		s.Update()

		cl, err := r.BeginFrame()
		require.NoError(t, err)
		s.Record(cl, r.Pipeline(), r.Textures())
		require.NoError(t, r.EndFrame())
	}
	require.Empty(t, dev.Errors())

	draws := dev.Draws()
	require.Len(t, draws, 6)
	// 3D objects first, the sprite last.
	assert.Equal(t, 16*16*6, draws[0].IndexCount)
	assert.Equal(t, 3, draws[1].VertexCount)
	assert.Equal(t, 6, draws[2].IndexCount)

	layout := r.Pipeline().Layout
	vis := layout.Param(render.BindVisibility)
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(draws[0].Constants[vis]))
	assert.Equal(t, uint32(0), binary.LittleEndian.Uint32(draws[3].Constants[vis]))

	tr := layout.Param(render.BindTransform)
	assert.NotEqual(t, draws[0].Constants[tr][:64], draws[3].Constants[tr][:64])
	e, _ := r.Textures().Entry(tex)
	assert.Equal(t, e.GPU, draws[0].Tables[layout.Param(render.BindTexture)])
}
