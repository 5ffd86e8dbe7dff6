package scene

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Transform is a scale, then rotation (x, then y, then z, radians), then
// translation.
type Transform struct {
	Scale     mgl32.Vec3
	Rotate    mgl32.Vec3
	Translate mgl32.Vec3
}

// Identity is the transform that changes nothing.
func Identity() Transform {
	return Transform{Scale: mgl32.Vec3{1, 1, 1}}
}

func (t Transform) Matrix() mgl32.Mat4 {
	rot := mgl32.HomogRotate3DZ(t.Rotate.Z()).
		Mul4(mgl32.HomogRotate3DY(t.Rotate.Y())).
		Mul4(mgl32.HomogRotate3DX(t.Rotate.X()))
	return mgl32.Translate3D(t.Translate.X(), t.Translate.Y(), t.Translate.Z()).
		Mul4(rot).
		Mul4(mgl32.Scale3D(t.Scale.X(), t.Scale.Y(), t.Scale.Z()))
}

// Perspective is a right-handed projection onto Vulkan clip space: y points
// down and depth runs from 0 at near to 1 at far.
func Perspective(fovy, aspect, near, far float32) mgl32.Mat4 {
	fmn, f := far-near, float32(1./math.Tan(float64(fovy)/2.0))
	return mgl32.Mat4{f / aspect, 0, 0, 0, 0, -f, 0, 0, 0, 0, -far / fmn, -1, 0, 0, -(far * near) / fmn, 0}
}

// Ortho maps the box [left,right] x [top,bottom] x [near,far] onto clip
// space, with top at the top of the screen.
func Ortho(left, top, right, bottom, near, far float32) mgl32.Mat4 {
	return mgl32.Mat4{
		2 / (right - left), 0, 0, 0,
		0, 2 / (bottom - top), 0, 0,
		0, 0, 1 / (far - near), 0,
		-(right + left) / (right - left), -(bottom + top) / (bottom - top), -near / (far - near), 1,
	}
}
