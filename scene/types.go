// Package scene holds the objects drawn every frame and the constant
// buffer layouts the object shaders read.
package scene

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/cg2go/renderer/asset"
)

type VertexData = asset.Vertex

// Material matches the Material constant buffer. EnableLighting is padded
// so UVTransform starts on a 16-byte register.
type Material struct {
	Color          mgl32.Vec4
	EnableLighting int32
	_              [3]int32
	UVTransform    mgl32.Mat4
}

type TransformationMatrix struct {
	WVP   mgl32.Mat4
	World mgl32.Mat4
}

type DirectionalLight struct {
	Color     mgl32.Vec4
	Direction mgl32.Vec3
	Intensity float32
}

// Visibility is a boolean flag padded to one register.
type Visibility struct {
	Visible int32
	_       [3]int32
}
