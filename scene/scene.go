package scene

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/cg2go/renderer/gpu"
	"github.com/cg2go/renderer/render"
)

// Light is the mapped directional light shared by every object.
type Light struct {
	buf *render.Buffer
}

func NewLight(a *render.Allocator) (*Light, error) {
	buf, err := render.CreateTypedBuffer[DirectionalLight](a, 1)
	if err != nil {
		return nil, err
	}
	l := &Light{buf: buf}
	*l.Data() = DirectionalLight{
		Color:     mgl32.Vec4{1, 1, 1, 1},
		Direction: mgl32.Vec3{0, -1, 0},
		Intensity: 1,
	}
	return l, nil
}

func (l *Light) Data() *DirectionalLight { return render.Mapped[DirectionalLight](l.buf) }
func (l *Light) Buffer() *render.Buffer   { return l.buf }

// Normalize keeps the direction a unit vector. A zero direction points
// straight down.
func (l *Light) Normalize() {
	d := l.Data()
	if d.Direction.Len() == 0 {
		d.Direction = mgl32.Vec3{0, -1, 0}
		return
	}
	d.Direction = d.Direction.Normalize()
}

func (l *Light) Release() { l.buf.Release() }

// Scene is the fixed set of objects drawn each frame with one camera and
// one light.
type Scene struct {
	Camera  Transform
	FovY    float32
	Near    float32
	Far     float32
	Width   float32
	Height  float32
	Light   *Light
	Objects []*Object
}

func New(light *Light, width, height int) *Scene {
	camera := Identity()
	camera.Translate = mgl32.Vec3{0, 0, 10}
	return &Scene{
		Camera: camera,
		FovY:   0.45,
		Near:   0.1,
		Far:    100,
		Width:  float32(width),
		Height: float32(height),
		Light:  light,
	}
}

func (s *Scene) Add(o *Object) {
	s.Objects = append(s.Objects, o)
}

// ViewProjection is the camera view followed by the perspective
// projection.
func (s *Scene) ViewProjection() mgl32.Mat4 {
	view := s.Camera.Matrix().Inv()
	return Perspective(s.FovY, s.Width/s.Height, s.Near, s.Far).Mul4(view)
}

// ScreenProjection maps pixel coordinates onto the screen.
func (s *Scene) ScreenProjection() mgl32.Mat4 {
	return Ortho(0, 0, s.Width, s.Height, 0, 100)
}

// Update rewrites every object's constants and the light.
func (s *Scene) Update() {
	vp := s.ViewProjection()
	screen := s.ScreenProjection()
	for _, o := range s.Objects {
		if o.Screen {
			o.Update(screen)
			continue
		}
		o.Update(vp)
	}
	s.Light.Normalize()
}

// Record draws every object, 3D objects first and screen objects on top.
func (s *Scene) Record(cl gpu.CommandList, p *render.Pipeline, textures *render.TextureCache) {
	for _, screen := range []bool{false, true} {
		for _, o := range s.Objects {
			if o.Screen == screen {
				o.Record(cl, p, textures, s.Light.Buffer())
			}
		}
	}
}

// Release frees the objects in reverse order, then the light.
func (s *Scene) Release() {
	for i := len(s.Objects) - 1; i >= 0; i-- {
		s.Objects[i].Release()
	}
	s.Objects = nil
	s.Light.Release()
}
