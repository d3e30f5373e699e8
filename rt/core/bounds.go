package core

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// BoundingBox is a world-space axis-aligned box in micrometers.
type BoundingBox struct {
	Min mgl64.Vec3
	Max mgl64.Vec3
}

func NewBoundingBox(a, b mgl64.Vec3) BoundingBox {
	return BoundingBox{
		Min: mgl64.Vec3{math.Min(a.X(), b.X()), math.Min(a.Y(), b.Y()), math.Min(a.Z(), b.Z())},
		Max: mgl64.Vec3{math.Max(a.X(), b.X()), math.Max(a.Y(), b.Y()), math.Max(a.Z(), b.Z())},
	}
}

// Size returns the absolute edge lengths on each axis.
func (b BoundingBox) Size() mgl64.Vec3 {
	return mgl64.Vec3{
		math.Abs(b.Max.X() - b.Min.X()),
		math.Abs(b.Max.Y() - b.Min.Y()),
		math.Abs(b.Max.Z() - b.Min.Z()),
	}
}

func (b BoundingBox) Center() mgl64.Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

func (b BoundingBox) Empty() bool {
	return b.Max.X() <= b.Min.X() || b.Max.Y() <= b.Min.Y() || b.Max.Z() <= b.Min.Z()
}

// Intersects reports whether the two boxes overlap. Touching faces count.
func (b BoundingBox) Intersects(o BoundingBox) bool {
	return b.Min.X() <= o.Max.X() && b.Max.X() >= o.Min.X() &&
		b.Min.Y() <= o.Max.Y() && b.Max.Y() >= o.Min.Y() &&
		b.Min.Z() <= o.Max.Z() && b.Max.Z() >= o.Min.Z()
}

func (b BoundingBox) Contains(p mgl64.Vec3) bool {
	return p.X() >= b.Min.X() && p.X() <= b.Max.X() &&
		p.Y() >= b.Min.Y() && p.Y() <= b.Max.Y() &&
		p.Z() >= b.Min.Z() && p.Z() <= b.Max.Z()
}

func (b BoundingBox) Union(o BoundingBox) BoundingBox {
	return BoundingBox{
		Min: mgl64.Vec3{math.Min(b.Min.X(), o.Min.X()), math.Min(b.Min.Y(), o.Min.Y()), math.Min(b.Min.Z(), o.Min.Z())},
		Max: mgl64.Vec3{math.Max(b.Max.X(), o.Max.X()), math.Max(b.Max.Y(), o.Max.Y()), math.Max(b.Max.Z(), o.Max.Z())},
	}
}

// ScanRegion is the volume a microscope is asked to image.
type ScanRegion struct {
	Box BoundingBox
	// SampleRotation is the rotation of the sample, in degrees per axis.
	SampleRotation mgl64.Vec3
}

// SubRegion is one memory-bounded piece of a larger ScanRegion.
type SubRegion struct {
	Region ScanRegion
	Base   ScanRegion

	// Grid index of this piece inside the base region.
	Index [3]int

	// Offsets of the first image of this piece, counted in images from the
	// base region origin, used to name tiles consistently across pieces.
	XImageOffset int
	YImageOffset int

	MaxImagesX int
	MaxImagesY int

	// LayerOffset is the number of slices that precede this piece on Z.
	LayerOffset int
}
