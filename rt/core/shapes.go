package core

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Shape is a geometric primitive of a simulation compartment. The set of
// implementations is closed: Sphere, Box, Cylinder and Unsupported.
type Shape interface {
	Kind() string
	BoundingBox() BoundingBox
	isShape()
}

type Sphere struct {
	Center mgl64.Vec3
	Radius float64
}

func (Sphere) Kind() string { return "sphere" }
func (Sphere) isShape()     {}

func (s Sphere) BoundingBox() BoundingBox {
	r := mgl64.Vec3{s.Radius, s.Radius, s.Radius}
	return BoundingBox{Min: s.Center.Sub(r), Max: s.Center.Add(r)}
}

// Box is an oriented box. Rotation holds Euler angles in radians (XYZ order).
type Box struct {
	Center     mgl64.Vec3
	Dimensions mgl64.Vec3
	Rotation   mgl64.Vec3
}

func (Box) Kind() string { return "box" }
func (Box) isShape()     {}

func (b Box) Orientation() mgl64.Quat {
	return mgl64.AnglesToQuat(b.Rotation.X(), b.Rotation.Y(), b.Rotation.Z(), mgl64.XYZ)
}

func (b Box) BoundingBox() BoundingBox {
	h := b.Dimensions.Mul(0.5)
	q := b.Orientation()

	inf := math.Inf(1)
	wMin := mgl64.Vec3{inf, inf, inf}
	wMax := mgl64.Vec3{-inf, -inf, -inf}
	for i := 0; i < 8; i++ {
		c := mgl64.Vec3{h.X(), h.Y(), h.Z()}
		if i&1 != 0 {
			c[0] = -c[0]
		}
		if i&2 != 0 {
			c[1] = -c[1]
		}
		if i&4 != 0 {
			c[2] = -c[2]
		}
		wc := q.Rotate(c).Add(b.Center)
		for a := 0; a < 3; a++ {
			wMin[a] = math.Min(wMin[a], wc[a])
			wMax[a] = math.Max(wMax[a], wc[a])
		}
	}
	return BoundingBox{Min: wMin, Max: wMax}
}

// Cylinder is a capped cone frustum between two end points, the usual
// shape of a neurite segment.
type Cylinder struct {
	End1    mgl64.Vec3
	Radius1 float64
	End2    mgl64.Vec3
	Radius2 float64
}

func (Cylinder) Kind() string { return "cylinder" }
func (Cylinder) isShape()     {}

func (c Cylinder) Length() float64 {
	return c.End2.Sub(c.End1).Len()
}

// RadiusAt interpolates the radius at t in [0,1] along the axis.
func (c Cylinder) RadiusAt(t float64) float64 {
	return c.Radius1 + (c.Radius2-c.Radius1)*t
}

// PointAt returns the axis point at t in [0,1].
func (c Cylinder) PointAt(t float64) mgl64.Vec3 {
	return c.End1.Add(c.End2.Sub(c.End1).Mul(t))
}

func (c Cylinder) BoundingBox() BoundingBox {
	r := math.Max(c.Radius1, c.Radius2)
	rv := mgl64.Vec3{r, r, r}
	b := NewBoundingBox(c.End1, c.End2)
	return BoundingBox{Min: b.Min.Sub(rv), Max: b.Max.Add(rv)}
}

// Unsupported stands in for a shape kind the rasterizer does not know.
// It covers no volume.
type Unsupported struct {
	Name string
}

func (u Unsupported) Kind() string           { return u.Name }
func (Unsupported) isShape()                 {}
func (Unsupported) BoundingBox() BoundingBox { return BoundingBox{} }
