package main

import (
	"log"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/cg2go/renderer/scene"
)

type action int

const (
	actionNone action = iota
	actionNextObject
	actionRotateLeft
	actionRotateRight
	actionRotateUp
	actionRotateDown
	actionMoveLeft
	actionMoveRight
	actionMoveUp
	actionMoveDown
	actionMoveNear
	actionMoveFar
	actionToggleVisible
	actionToggleLighting
	actionLightLeft
	actionLightRight
	actionLightDimmer
	actionLightBrighter
	actionTogglePause
)

const (
	rotateStep    = 0.05
	moveStep      = 0.1
	intensityStep = 0.1
)

// tweaker edits the mapped constants of the scene in place. It stands in
// for a debug UI: one object is selected at a time.
type tweaker struct {
	scene    *scene.Scene
	selected int
	paused   bool
}

func newTweaker(s *scene.Scene) *tweaker {
	return &tweaker{scene: s}
}

func (t *tweaker) object() *scene.Object {
	if len(t.scene.Objects) == 0 {
		return nil
	}
	return t.scene.Objects[t.selected]
}

// apply runs one action and reports whether anything changed.
func (t *tweaker) apply(a action) bool {
	switch a {
	case actionNone:
		return false
	case actionTogglePause:
		t.paused = !t.paused
		return true
	case actionLightLeft, actionLightRight:
		angle := float32(rotateStep)
		if a == actionLightRight {
			angle = -angle
		}
		light := t.scene.Light.Data()
		light.Direction = mgl32.Rotate3DY(angle).Mul3x1(light.Direction)
		return true
	case actionLightDimmer:
		light := t.scene.Light.Data()
		light.Intensity = max(light.Intensity-intensityStep, 0)
		return true
	case actionLightBrighter:
		t.scene.Light.Data().Intensity += intensityStep
		return true
	}

	o := t.object()
	if o == nil {
		return false
	}
	switch a {
	case actionNextObject:
		t.selected = (t.selected + 1) % len(t.scene.Objects)
		log.Printf("Selected: %s", t.object().Name)
	case actionRotateLeft:
		o.Transform.Rotate[1] -= rotateStep
	case actionRotateRight:
		o.Transform.Rotate[1] += rotateStep
	case actionRotateUp:
		o.Transform.Rotate[0] -= rotateStep
	case actionRotateDown:
		o.Transform.Rotate[0] += rotateStep
	case actionMoveLeft:
		o.Transform.Translate[0] -= t.step(o)
	case actionMoveRight:
		o.Transform.Translate[0] += t.step(o)
	case actionMoveUp:
		// screen space grows downwards
		if o.Screen {
			o.Transform.Translate[1] -= t.step(o)
		} else {
			o.Transform.Translate[1] += t.step(o)
		}
	case actionMoveDown:
		if o.Screen {
			o.Transform.Translate[1] += t.step(o)
		} else {
			o.Transform.Translate[1] -= t.step(o)
		}
	case actionMoveNear:
		o.Transform.Translate[2] += moveStep
	case actionMoveFar:
		o.Transform.Translate[2] -= moveStep
	case actionToggleVisible:
		o.SetVisible(!o.Visible())
	case actionToggleLighting:
		m := o.Material()
		m.EnableLighting = 1 - m.EnableLighting
	default:
		return false
	}
	return true
}

// step is the move distance: pixels for screen objects, world units
// otherwise.
func (t *tweaker) step(o *scene.Object) float32 {
	if o.Screen {
		return 10
	}
	return moveStep
}
