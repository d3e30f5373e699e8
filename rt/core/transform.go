package core

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Transform places a renderable model in the live scene.
type Transform struct {
	Position mgl32.Vec3
	Rotation mgl32.Quat
	Scale    mgl32.Vec3
}

func NewTransform() Transform {
	return Transform{
		Position: mgl32.Vec3{0, 0, 0},
		Rotation: mgl32.QuatIdent(),
		Scale:    mgl32.Vec3{1, 1, 1},
	}
}

func (t Transform) ObjectToWorld() mgl32.Mat4 {
	// M = T * R * S
	translate := mgl32.Translate3D(t.Position.X(), t.Position.Y(), t.Position.Z())
	rotate := t.Rotation.Mat4()
	scale := mgl32.Scale3D(t.Scale.X(), t.Scale.Y(), t.Scale.Z())

	return translate.Mul4(rotate).Mul4(scale)
}

// ScaledExtent returns a local box size scaled into world units.
func (t Transform) ScaledExtent(extent mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{
		extent.X() * t.Scale.X(),
		extent.Y() * t.Scale.Y(),
		extent.Z() * t.Scale.Z(),
	}
}

// ApproximateRadius is the largest scaled box dimension. It stands in for a
// bounding sphere when measuring distance to a camera.
func (t Transform) ApproximateRadius(extent mgl32.Vec3) float32 {
	s := t.ScaledExtent(extent)
	r := abs32(s.X())
	if v := abs32(s.Y()); v > r {
		r = v
	}
	if v := abs32(s.Z()); v > r {
		r = v
	}
	return r
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
