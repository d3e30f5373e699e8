package volume

import "unsafe"

// VoxelState tags what a voxel contains. Compositing replaces a state only
// with a higher Rank.
type VoxelState uint8

const (
	Empty VoxelState = iota
	Interior
	Border
	Black
	White
	// OutOfBounds is returned by reads outside the array and never stored.
	OutOfBounds
)

// States from IntensityMin to IntensityMax carry a brightness directly.
const (
	IntensityMin VoxelState = 10
	IntensityMax VoxelState = 255
)

func (s VoxelState) IsIntensity() bool {
	return s >= IntensityMin
}

// Rank orders states by how filled they are: Empty, Interior, Border, the
// intensity states by value, then the hard colors Black and White.
func (s VoxelState) Rank() int {
	switch {
	case s.IsIntensity():
		return int(s)
	case s == Black:
		return int(IntensityMax) + 1
	case s == White:
		return int(IntensityMax) + 2
	default:
		return int(s)
	}
}

// Filled reports whether the voxel belongs to some shape.
func (s VoxelState) Filled() bool {
	return s != Empty && s != OutOfBounds
}

// IntensityState maps v in [0,1] onto the intensity range.
func IntensityState(v float64) VoxelState {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	span := float64(IntensityMax - IntensityMin)
	return IntensityMin + VoxelState(v*span+0.5)
}

// Brightness returns the [0,1] brightness carried by an intensity state.
func (s VoxelState) Brightness() float64 {
	if !s.IsIntensity() {
		return 0
	}
	return float64(s-IntensityMin) / float64(IntensityMax-IntensityMin)
}

type VoxelRecord struct {
	State VoxelState
	// DistanceToEdge is the distance to the nearest shape surface in voxels,
	// saturating at 255.
	DistanceToEdge uint8
	ParentID       uint64
}

// RecordSize is the in-memory size of one VoxelRecord.
const RecordSize = uint64(unsafe.Sizeof(VoxelRecord{}))

var outOfBounds = VoxelRecord{State: OutOfBounds}
