package generator

import (
	"math"

	"github.com/braingenix/brainstream/rt/core"
	"github.com/braingenix/brainstream/rt/volume"
)

// DefaultSubdivisionThreshold is the estimated voxel count above which a
// shape is split into several tasks.
const DefaultSubdivisionThreshold = 75000

// EstimateVoxelVolume approximates how many voxels a shape covers.
func EstimateVoxelVolume(shape core.Shape, voxelSize float64) uint64 {
	if voxelSize <= 0 {
		return 0
	}
	var worldVolume float64
	switch s := shape.(type) {
	case core.Sphere:
		worldVolume = 4.0 / 3.0 * math.Pi * s.Radius * s.Radius * s.Radius
	case core.Box:
		worldVolume = s.Dimensions.X() * s.Dimensions.Y() * s.Dimensions.Z()
	case core.Cylinder:
		// Frustum volume.
		r1, r2 := s.Radius1, s.Radius2
		worldVolume = math.Pi * s.Length() * (r1*r1 + r1*r2 + r2*r2) / 3
	default:
		return 0
	}
	if worldVolume <= 0 {
		return 0
	}
	return uint64(math.Round(worldVolume / (voxelSize * voxelSize * voxelSize)))
}

// ComponentCount is ceil(volume/threshold) for shapes above the threshold
// and 1 otherwise.
func ComponentCount(volume, threshold uint64) int {
	if threshold == 0 || volume <= threshold {
		return 1
	}
	return int((volume + threshold - 1) / threshold)
}

// Subdivide turns one shape into generation tasks of bounded size. Spheres
// and boxes become N slab parts. Cylinders become N axial segments, each
// followed by a sphere capping the segment end so joints stay round.
func Subdivide(array *volume.VoxelArray, shape core.Shape, parent uint64, threshold uint64, noise *NoiseParams) []Task {
	n := ComponentCount(EstimateVoxelVolume(shape, array.VoxelSize()), threshold)

	switch s := shape.(type) {
	case core.Sphere, core.Box:
		tasks := make([]Task, 0, n)
		for i := 0; i < n; i++ {
			tasks = append(tasks, Task{Array: array, Shape: s, Part: volume.Part{Index: i, Total: n}, ParentID: parent, Noise: noise})
		}
		return tasks
	case core.Cylinder:
		tasks := make([]Task, 0, 2*n)
		for i := 0; i < n; i++ {
			tasks = append(tasks, Task{Array: array, Shape: s, Part: volume.Part{Index: i, Total: n}, ParentID: parent, Noise: noise})

			t := float64(i+1) / float64(n)
			endCap := core.Sphere{Center: s.PointAt(t), Radius: s.RadiusAt(t)}
			tasks = append(tasks, Task{Array: array, Shape: endCap, Part: volume.Whole, ParentID: parent, Noise: noise})
		}
		return tasks
	default:
		// Passed through so the worker reports it.
		return []Task{{Array: array, Shape: shape, Part: volume.Whole, ParentID: parent, Noise: noise}}
	}
}
