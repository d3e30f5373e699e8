package volume

import (
	"fmt"
	"math"
	"runtime"
	"sync"

	"github.com/braingenix/brainstream/rt/core"
	"github.com/go-gl/mathgl/mgl64"
)

// VoxelArray is a dense grid of voxel records covering a world-space box.
//
// The backing buffer has a fixed capacity; SetSize may shrink or regrow the
// logical extents within it so one allocation serves many subregions.
type VoxelArray struct {
	data  []VoxelRecord
	locks *shardLocks

	sizeX, sizeY, sizeZ int
	box                 core.BoundingBox
	voxelSize           float64

	clearWorkers int
}

// extentEpsilon absorbs float error so 0.3/0.1 counts three voxels.
const extentEpsilon = 1e-9

// Extents returns the voxel counts of box at voxelSize, truncating partial
// voxels.
func Extents(box core.BoundingBox, voxelSize float64) (int, int, int) {
	if voxelSize <= 0 {
		return 0, 0, 0
	}
	s := box.Size()
	n := func(v float64) int { return int(math.Floor(v/voxelSize + extentEpsilon)) }
	return n(s.X()), n(s.Y()), n(s.Z())
}

// NewVoxelArray allocates an array for box and clears it with clearWorkers
// goroutines (GOMAXPROCS when <= 0).
func NewVoxelArray(box core.BoundingBox, voxelSize float64, clearWorkers int) *VoxelArray {
	if clearWorkers <= 0 {
		clearWorkers = runtime.GOMAXPROCS(0)
	}
	x, y, z := Extents(box, voxelSize)
	a := &VoxelArray{
		data:         make([]VoxelRecord, x*y*z),
		locks:        &shardLocks{},
		sizeX:        x,
		sizeY:        y,
		sizeZ:        z,
		box:          box,
		voxelSize:    voxelSize,
		clearWorkers: clearWorkers,
	}
	a.Clear()
	return a
}

func NewVoxelArrayFromRegion(region core.ScanRegion, voxelSize float64, clearWorkers int) *VoxelArray {
	return NewVoxelArray(region.Box, voxelSize, clearWorkers)
}

func (a *VoxelArray) Size() (int, int, int) {
	return a.sizeX, a.sizeY, a.sizeZ
}

// Len is the logical number of voxels.
func (a *VoxelArray) Len() int {
	return a.sizeX * a.sizeY * a.sizeZ
}

// Capacity is the number of records the buffer can hold.
func (a *VoxelArray) Capacity() int {
	return len(a.data)
}

func (a *VoxelArray) BoundingBox() core.BoundingBox {
	return a.box
}

func (a *VoxelArray) VoxelSize() float64 {
	return a.voxelSize
}

// SizeBytes is the memory held by the backing buffer.
func (a *VoxelArray) SizeBytes() uint64 {
	return uint64(len(a.data)) * RecordSize
}

// Clear resets every logical voxel to Empty. The range is split into equal
// contiguous slices, one per worker; the last slice takes the remainder.
func (a *VoxelArray) Clear() {
	n := a.Len()
	workers := a.clearWorkers
	if workers > n {
		workers = n
	}
	if workers <= 1 {
		clear(a.data[:n])
		return
	}

	chunk := n / workers
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		start := w * chunk
		end := start + chunk
		if w == workers-1 {
			end = n
		}
		go func(start, end int) {
			defer wg.Done()
			clear(a.data[start:end])
		}(start, end)
	}
	wg.Wait()
}

// SetSize re-targets the array at a new box without reallocating. It fails
// when the box needs more voxels than the buffer holds; the caller must then
// build a new array.
func (a *VoxelArray) SetSize(box core.BoundingBox) bool {
	x, y, z := Extents(box, a.voxelSize)
	if x*y*z > len(a.data) {
		return false
	}
	a.sizeX, a.sizeY, a.sizeZ = x, y, z
	a.box = box
	return true
}

func (a *VoxelArray) SetRegion(region core.ScanRegion) bool {
	return a.SetSize(region.Box)
}

// Release drops the backing buffer, leaving a zero-sized array.
func (a *VoxelArray) Release() {
	a.data = nil
	a.sizeX, a.sizeY, a.sizeZ = 0, 0, 0
	a.box = core.BoundingBox{Min: a.box.Min, Max: a.box.Min}
}

func (a *VoxelArray) inBounds(x, y, z int) bool {
	return x >= 0 && y >= 0 && z >= 0 && x < a.sizeX && y < a.sizeY && z < a.sizeZ
}

func (a *VoxelArray) flatIndex(x, y, z int) int {
	return x + a.sizeX*(y+a.sizeY*z)
}

// GetVoxel returns the record at (x,y,z), or an OutOfBounds record when the
// coordinates are outside the logical extents.
func (a *VoxelArray) GetVoxel(x, y, z int) VoxelRecord {
	if !a.inBounds(x, y, z) {
		return outOfBounds
	}
	return a.data[a.flatIndex(x, y, z)]
}

// SetVoxel stores v at (x,y,z). Writing outside the logical extents is a
// caller bug and panics.
func (a *VoxelArray) SetVoxel(x, y, z int, v VoxelRecord) {
	if !a.inBounds(x, y, z) {
		panic(fmt.Sprintf("voxel (%d,%d,%d) outside array of size (%d,%d,%d)", x, y, z, a.sizeX, a.sizeY, a.sizeZ))
	}
	a.data[a.flatIndex(x, y, z)] = v
}

// WorldToIndex converts a world position to voxel indices. The result may be
// outside the array.
func (a *VoxelArray) WorldToIndex(p mgl64.Vec3) (int, int, int) {
	rel := p.Sub(a.box.Min)
	return int(math.Floor(rel.X() / a.voxelSize)),
		int(math.Floor(rel.Y() / a.voxelSize)),
		int(math.Floor(rel.Z() / a.voxelSize))
}

// IndexToWorld returns the world position of the center of voxel (x,y,z).
func (a *VoxelArray) IndexToWorld(x, y, z int) mgl64.Vec3 {
	return mgl64.Vec3{
		a.box.Min.X() + (float64(x)+0.5)*a.voxelSize,
		a.box.Min.Y() + (float64(y)+0.5)*a.voxelSize,
		a.box.Min.Z() + (float64(z)+0.5)*a.voxelSize,
	}
}

// DistanceToVoxels converts a world distance to whole voxels, saturating at 255.
func (a *VoxelArray) DistanceToVoxels(distance float64) uint8 {
	if distance <= 0 || a.voxelSize <= 0 {
		return 0
	}
	v := math.Round(distance / a.voxelSize)
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// CompositeVoxel merges a shape write into (x,y,z). The stored distance only
// grows, and state and parent are replaced only by a higher ranked state, so
// overlapping writes converge to the same record in any order. Writes
// outside the array are dropped and reported as false.
func (a *VoxelArray) CompositeVoxel(x, y, z int, state VoxelState, distance float64, parent uint64) bool {
	if !a.inBounds(x, y, z) {
		return false
	}
	d := a.DistanceToVoxels(distance)
	idx := a.flatIndex(x, y, z)

	a.locks.lock(idx)
	rec := &a.data[idx]
	if d > rec.DistanceToEdge {
		rec.DistanceToEdge = d
	}
	if state.Rank() > rec.State.Rank() {
		rec.State = state
		rec.ParentID = parent
	}
	a.locks.unlock(idx)
	return true
}

// CompositeAtPosition is CompositeVoxel addressed by world position.
func (a *VoxelArray) CompositeAtPosition(p mgl64.Vec3, state VoxelState, distance float64, parent uint64) bool {
	x, y, z := a.WorldToIndex(p)
	return a.CompositeVoxel(x, y, z, state, distance, parent)
}

// IndexRange clips a world box to voxel index ranges [min,max) of the array.
// ok is false when the box misses the array.
func (a *VoxelArray) IndexRange(box core.BoundingBox) (lo, hi [3]int, ok bool) {
	size := [3]int{a.sizeX, a.sizeY, a.sizeZ}
	for i := 0; i < 3; i++ {
		l := int(math.Floor((box.Min[i] - a.box.Min[i]) / a.voxelSize))
		h := int(math.Ceil((box.Max[i]-a.box.Min[i])/a.voxelSize)) + 1
		lo[i] = max(l, 0)
		hi[i] = min(h, size[i])
		if lo[i] >= hi[i] {
			return lo, hi, false
		}
	}
	return lo, hi, true
}
