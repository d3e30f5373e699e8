package generator

import (
	"github.com/aquilax/go-perlin"
	"github.com/braingenix/brainstream/rt/core"
	"github.com/braingenix/brainstream/rt/volume"
	"github.com/go-gl/mathgl/mgl64"
)

// Task rasterizes one shape, or one part of it, into an array.
type Task struct {
	Array    *volume.VoxelArray
	Shape    core.Shape
	Part     volume.Part
	ParentID uint64
	// Noise, when set, writes Perlin-perturbed intensity states instead of
	// plain Interior voxels.
	Noise *NoiseParams
}

type NoiseParams struct {
	Seed int64
	// Frequency is noise cycles per micrometer.
	Frequency float64
	// Base and Amplitude map noise in [-1,1] to Base+Amplitude*n.
	Base      float64
	Amplitude float64
	Octaves   int32
}

// DefaultNoise is a mid-grey texture with gentle variation.
func DefaultNoise(seed int64) *NoiseParams {
	return &NoiseParams{Seed: seed, Frequency: 0.5, Base: 0.6, Amplitude: 0.3, Octaves: 3}
}

// IntensityFunc builds the per-voxel state function for n.
func (n *NoiseParams) IntensityFunc() volume.IntensityFunc {
	if n == nil {
		return nil
	}
	octaves := n.Octaves
	if octaves <= 0 {
		octaves = 3
	}
	p := perlin.NewPerlin(2, 2, octaves, n.Seed)
	freq, base, amp := n.Frequency, n.Base, n.Amplitude
	return func(pos mgl64.Vec3) volume.VoxelState {
		v := p.Noise3D(pos.X()*freq, pos.Y()*freq, pos.Z()*freq)
		return volume.IntensityState(base + amp*v)
	}
}
