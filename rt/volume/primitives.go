package volume

import (
	"math"

	"github.com/braingenix/brainstream/rt/core"
	"github.com/go-gl/mathgl/mgl64"
)

// Part selects slab Index of Total equal slabs of a shape. Large shapes are
// filled as several parts so no single fill is pathologically long.
type Part struct {
	Index int
	Total int
}

// Whole is the part covering an entire shape.
var Whole = Part{Index: 0, Total: 1}

func (p Part) normalized() Part {
	if p.Total < 1 {
		p.Total = 1
	}
	if p.Index < 0 {
		p.Index = 0
	}
	if p.Index >= p.Total {
		p.Index = p.Total - 1
	}
	return p
}

// span returns the [lo,hi) sub-interval of [min,max) owned by the part.
func (p Part) span(lo, hi float64) (float64, float64) {
	p = p.normalized()
	w := (hi - lo) / float64(p.Total)
	return lo + float64(p.Index)*w, lo + float64(p.Index+1)*w
}

func (p Part) last() bool {
	p = p.normalized()
	return p.Index == p.Total-1
}

// IntensityFunc picks the state written for a filled voxel at p. A nil
// IntensityFunc writes Interior.
type IntensityFunc func(p mgl64.Vec3) VoxelState

func stateAt(f IntensityFunc, p mgl64.Vec3) VoxelState {
	if f == nil {
		return Interior
	}
	return f(p)
}

// inSlab tests v against [lo,hi), closing the interval for the last part.
func inSlab(v, lo, hi float64, last bool) bool {
	if v < lo {
		return false
	}
	if last {
		return v <= hi
	}
	return v < hi
}

// FillSphere composites the part of sphere s that falls inside the array and
// returns the number of voxels written.
func FillSphere(a *VoxelArray, s core.Sphere, part Part, parent uint64, intensity IntensityFunc) int {
	if s.Radius <= 0 {
		return 0
	}
	bounds := s.BoundingBox()
	slabLo, slabHi := part.span(bounds.Min.X(), bounds.Max.X())
	bounds.Min[0], bounds.Max[0] = slabLo, slabHi
	lo, hi, ok := a.IndexRange(bounds)
	if !ok {
		return 0
	}

	last := part.last()
	r2 := s.Radius * s.Radius
	written := 0
	for z := lo[2]; z < hi[2]; z++ {
		for y := lo[1]; y < hi[1]; y++ {
			for x := lo[0]; x < hi[0]; x++ {
				p := a.IndexToWorld(x, y, z)
				if !inSlab(p.X(), slabLo, slabHi, last) {
					continue
				}
				d2 := p.Sub(s.Center).LenSqr()
				if d2 > r2 {
					continue
				}
				dist := s.Radius - math.Sqrt(d2)
				if a.CompositeVoxel(x, y, z, stateAt(intensity, p), dist, parent) {
					written++
				}
			}
		}
	}
	return written
}

// FillBox composites the part of an oriented box inside the array. Points
// are tested in the box frame, so rotation costs one quaternion per voxel.
func FillBox(a *VoxelArray, b core.Box, part Part, parent uint64, intensity IntensityFunc) int {
	h := b.Dimensions.Mul(0.5)
	if h.X() <= 0 || h.Y() <= 0 || h.Z() <= 0 {
		return 0
	}
	inv := b.Orientation().Conjugate()

	bounds := b.BoundingBox()
	slabLo, slabHi := part.span(bounds.Min.X(), bounds.Max.X())
	bounds.Min[0], bounds.Max[0] = slabLo, slabHi
	lo, hi, ok := a.IndexRange(bounds)
	if !ok {
		return 0
	}

	last := part.last()
	written := 0
	for z := lo[2]; z < hi[2]; z++ {
		for y := lo[1]; y < hi[1]; y++ {
			for x := lo[0]; x < hi[0]; x++ {
				p := a.IndexToWorld(x, y, z)
				if !inSlab(p.X(), slabLo, slabHi, last) {
					continue
				}
				local := inv.Rotate(p.Sub(b.Center))
				dist := math.Inf(1)
				inside := true
				for i := 0; i < 3; i++ {
					d := h[i] - math.Abs(local[i])
					if d < 0 {
						inside = false
						break
					}
					dist = math.Min(dist, d)
				}
				if !inside {
					continue
				}
				if a.CompositeVoxel(x, y, z, stateAt(intensity, p), dist, parent) {
					written++
				}
			}
		}
	}
	return written
}

// FillCylinder composites one axial segment of a cone frustum. The part
// splits the axis into Total segments; the caps are flat.
func FillCylinder(a *VoxelArray, c core.Cylinder, part Part, parent uint64, intensity IntensityFunc) int {
	length := c.Length()
	if length <= 0 || (c.Radius1 <= 0 && c.Radius2 <= 0) {
		return 0
	}
	dir := c.End2.Sub(c.End1).Mul(1 / length)
	t0, t1 := part.span(0, 1)
	last := part.last()

	segment := core.Cylinder{
		End1:    c.PointAt(t0),
		Radius1: c.RadiusAt(t0),
		End2:    c.PointAt(t1),
		Radius2: c.RadiusAt(t1),
	}
	lo, hi, ok := a.IndexRange(segment.BoundingBox())
	if !ok {
		return 0
	}

	written := 0
	for z := lo[2]; z < hi[2]; z++ {
		for y := lo[1]; y < hi[1]; y++ {
			for x := lo[0]; x < hi[0]; x++ {
				p := a.IndexToWorld(x, y, z)
				v := p.Sub(c.End1)
				along := v.Dot(dir)
				t := along / length
				if !inSlab(t, t0, t1, last) {
					continue
				}
				radial := v.Sub(dir.Mul(along)).Len()
				r := c.RadiusAt(t)
				if radial > r {
					continue
				}
				if a.CompositeVoxel(x, y, z, stateAt(intensity, p), r-radial, parent) {
					written++
				}
			}
		}
	}
	return written
}
