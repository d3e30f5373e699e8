package volume

import (
	"testing"

	"github.com/braingenix/brainstream/rt/core"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
)

func countFilled(a *VoxelArray) int {
	n := 0
	x, y, z := a.Size()
	for k := 0; k < z; k++ {
		for j := 0; j < y; j++ {
			for i := 0; i < x; i++ {
				if a.GetVoxel(i, j, k).State.Filled() {
					n++
				}
			}
		}
	}
	return n
}

func sameContents(t *testing.T, a, b *VoxelArray) {
	t.Helper()
	x, y, z := a.Size()
	for k := 0; k < z; k++ {
		for j := 0; j < y; j++ {
			for i := 0; i < x; i++ {
				if a.GetVoxel(i, j, k) != b.GetVoxel(i, j, k) {
					t.Fatalf("voxel (%d,%d,%d) differs: %+v vs %+v", i, j, k, a.GetVoxel(i, j, k), b.GetVoxel(i, j, k))
				}
			}
		}
	}
}

func TestFillSphere(t *testing.T) {
	a := NewVoxelArray(box(20, 20, 20), 1, 2)
	s := core.Sphere{Center: mgl64.Vec3{10, 10, 10}, Radius: 5}
	n := FillSphere(a, s, Whole, 42, nil)

	assert.Equal(t, n, countFilled(a))
	// Roughly 4/3 pi r^3.
	assert.InDelta(t, 523, n, 40)

	center := a.GetVoxel(10, 10, 10)
	assert.Equal(t, Interior, center.State)
	assert.Equal(t, uint64(42), center.ParentID)
	assert.Equal(t, uint8(4), center.DistanceToEdge)
	assert.Equal(t, Empty, a.GetVoxel(0, 0, 0).State)
}

func TestFillSpherePartsMatchWhole(t *testing.T) {
	s := core.Sphere{Center: mgl64.Vec3{8.3, 7.9, 8.1}, Radius: 6}

	whole := NewVoxelArray(box(16, 16, 16), 1, 2)
	FillSphere(whole, s, Whole, 1, nil)

	parts := NewVoxelArray(box(16, 16, 16), 1, 2)
	total := 0
	for i := 0; i < 4; i++ {
		total += FillSphere(parts, s, Part{Index: i, Total: 4}, 1, nil)
	}
	assert.Equal(t, countFilled(whole), total, "slabs must not overlap")
	sameContents(t, whole, parts)
}

func TestFillSphereClippedToArray(t *testing.T) {
	a := NewVoxelArray(box(10, 10, 10), 1, 1)
	// Half the sphere lies outside the array.
	n := FillSphere(a, core.Sphere{Center: mgl64.Vec3{0, 5, 5}, Radius: 3}, Whole, 1, nil)
	assert.Greater(t, n, 0)
	assert.Equal(t, n, countFilled(a))
	assert.Zero(t, FillSphere(a, core.Sphere{Center: mgl64.Vec3{50, 5, 5}, Radius: 3}, Whole, 1, nil))
	assert.Zero(t, FillSphere(a, core.Sphere{Center: mgl64.Vec3{5, 5, 5}, Radius: 0}, Whole, 1, nil))
}

func TestFillCylinder(t *testing.T) {
	a := NewVoxelArray(box(30, 10, 10), 1, 2)
	c := core.Cylinder{
		End1: mgl64.Vec3{2, 5, 5}, Radius1: 2,
		End2: mgl64.Vec3{28, 5, 5}, Radius2: 2,
	}
	n := FillCylinder(a, c, Whole, 7, nil)
	assert.Greater(t, n, 0)

	assert.Equal(t, Interior, a.GetVoxel(15, 5, 5).State)
	assert.Equal(t, Empty, a.GetVoxel(15, 8, 5).State)
	assert.Equal(t, Empty, a.GetVoxel(0, 5, 5).State, "caps are flat")

	parts := NewVoxelArray(box(30, 10, 10), 1, 2)
	total := 0
	for i := 0; i < 3; i++ {
		total += FillCylinder(parts, c, Part{Index: i, Total: 3}, 7, nil)
	}
	assert.Equal(t, n, total)
	sameContents(t, a, parts)
}

func TestFillBoxRotated(t *testing.T) {
	a := NewVoxelArray(box(20, 20, 20), 1, 2)
	b := core.Box{
		Center:     mgl64.Vec3{10, 10, 10},
		Dimensions: mgl64.Vec3{12, 2, 2},
		Rotation:   mgl64.Vec3{0, 0, mgl64.DegToRad(90)},
	}
	n := FillBox(a, b, Whole, 3, nil)
	assert.InDelta(t, 12*2*2, n, 12)

	// After a quarter turn about Z the long side runs along Y.
	assert.Equal(t, Interior, a.GetVoxel(9, 14, 9).State)
	assert.Equal(t, Empty, a.GetVoxel(14, 9, 9).State)

	assert.Zero(t, FillBox(a, core.Box{Center: mgl64.Vec3{5, 5, 5}}, Whole, 3, nil))
}

func TestFillWithIntensity(t *testing.T) {
	a := NewVoxelArray(box(10, 10, 10), 1, 1)
	bright := IntensityState(1)
	FillSphere(a, core.Sphere{Center: mgl64.Vec3{5, 5, 5}, Radius: 2}, Whole, 1, func(mgl64.Vec3) VoxelState {
		return bright
	})
	assert.Equal(t, bright, a.GetVoxel(5, 5, 5).State)
	assert.InDelta(t, 1.0, a.GetVoxel(5, 5, 5).State.Brightness(), 1e-9)
}
