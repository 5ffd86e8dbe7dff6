package scene

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/cg2go/renderer/asset"
	"github.com/cg2go/renderer/render"
)

// SpriteGeometry is a width x height quad in screen space with its top-left
// corner at the origin, as 4 vertices and 6 indices.
func SpriteGeometry(width, height float32) ([]VertexData, []uint32) {
	n := mgl32.Vec3{0, 0, -1}
	vertices := []VertexData{
		{Position: mgl32.Vec4{0, height, 0, 1}, TexCoord: mgl32.Vec2{0, 1}, Normal: n},
		{Position: mgl32.Vec4{0, 0, 0, 1}, TexCoord: mgl32.Vec2{0, 0}, Normal: n},
		{Position: mgl32.Vec4{width, height, 0, 1}, TexCoord: mgl32.Vec2{1, 1}, Normal: n},
		{Position: mgl32.Vec4{width, 0, 0, 1}, TexCoord: mgl32.Vec2{1, 0}, Normal: n},
	}
	indices := []uint32{0, 2, 1, 1, 2, 3}
	return vertices, indices
}

// NewSprite creates a screen-space quad object. Lighting starts disabled.
func NewSprite(a *render.Allocator, width, height float32) (*Object, error) {
	vertices, indices := SpriteGeometry(width, height)
	o, err := NewObject(a, "Sprite", vertices, indices)
	if err != nil {
		return nil, err
	}
	o.Screen = true
	o.Material().EnableLighting = 0
	return o, nil
}

// SphereGeometry is a unit UV sphere with subdivision slices around and
// subdivision stacks from pole to pole. Triangles wind counter-clockwise
// seen from outside.
func SphereGeometry(subdivision int) ([]VertexData, []uint32) {
	subdivision = max(subdivision, 3)
	lonEvery := 2 * math.Pi / float64(subdivision)
	latEvery := math.Pi / float64(subdivision)

	vertices := make([]VertexData, 0, (subdivision+1)*(subdivision+1))
	for latIndex := 0; latIndex <= subdivision; latIndex++ {
		lat := -math.Pi/2 + latEvery*float64(latIndex)
		for lonIndex := 0; lonIndex <= subdivision; lonIndex++ {
			lon := lonEvery * float64(lonIndex)
			p := mgl32.Vec3{
				float32(math.Cos(lat) * math.Cos(lon)),
				float32(math.Sin(lat)),
				float32(math.Cos(lat) * math.Sin(lon)),
			}
			vertices = append(vertices, VertexData{
				Position: p.Vec4(1),
				TexCoord: mgl32.Vec2{
					float32(lonIndex) / float32(subdivision),
					1 - float32(latIndex)/float32(subdivision),
				},
				Normal: p,
			})
		}
	}

	row := subdivision + 1
	indices := make([]uint32, 0, subdivision*subdivision*6)
	for latIndex := 0; latIndex < subdivision; latIndex++ {
		for lonIndex := 0; lonIndex < subdivision; lonIndex++ {
			a := uint32(latIndex*row + lonIndex)
			b := a + uint32(row)
			c := a + 1
			d := b + 1
			indices = append(indices, a, b, c, c, b, d)
		}
	}
	return vertices, indices
}

func NewSphere(a *render.Allocator, subdivision int) (*Object, error) {
	vertices, indices := SphereGeometry(subdivision)
	return NewObject(a, "Sphere", vertices, indices)
}

// NewModel creates a non-indexed object from a loaded model.
func NewModel(a *render.Allocator, name string, model *asset.Model) (*Object, error) {
	return NewObject(a, name, model.Vertices, nil)
}
