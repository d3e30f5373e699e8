package imaging

import (
	"image"
	"math"

	"github.com/aquilax/go-perlin"
	"github.com/braingenix/brainstream/rt/volume"
)

// Window is a rectangle of voxel columns, in array indices.
type Window struct {
	X, Y          int
	Width, Height int
}

// SliceRenderer turns one slab of an array into a staging image with one
// pixel per voxel.
type SliceRenderer interface {
	RenderSlice(a *volume.VoxelArray, w Window, z int) *image.Gray
}

// EMRenderer draws an electron-microscopy style slice of a single Z layer.
// Empty, Interior, Border, Black and White voxels take fixed shades.
// Intensity voxels are textured with Perlin noise around their stored
// brightness and darkened towards the membrane near shape edges.
type EMRenderer struct {
	Seed int64
	// Background is the grey level of empty space.
	Background uint8
	// Membrane is the grey level of Border voxels.
	Membrane uint8
	// Interior is the grey level of Interior voxels.
	Interior uint8
	// EdgeFalloff is the distance in voxels over which intensity voxels
	// brighten from the membrane level.
	EdgeFalloff float64
	// TextureFrequency is noise cycles per micrometer.
	TextureFrequency float64
	// TextureAmplitude scales the noise added to the stored brightness.
	TextureAmplitude float64
}

func DefaultEMRenderer(seed int64) *EMRenderer {
	return &EMRenderer{
		Seed:             seed,
		Background:       70,
		Membrane:         25,
		Interior:         150,
		EdgeFalloff:      3,
		TextureFrequency: 0.8,
		TextureAmplitude: 0.2,
	}
}

func (r *EMRenderer) RenderSlice(a *volume.VoxelArray, w Window, z int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w.Width, w.Height))
	noise := perlin.NewPerlin(2, 2, 3, r.Seed)

	for j := 0; j < w.Height; j++ {
		row := j * img.Stride
		for i := 0; i < w.Width; i++ {
			x, y := w.X+i, w.Y+j
			rec := a.GetVoxel(x, y, z)
			img.Pix[row+i] = r.shade(a, rec, noise, x, y, z)
		}
	}
	return img
}

func (r *EMRenderer) shade(a *volume.VoxelArray, rec volume.VoxelRecord, noise *perlin.Perlin, x, y, z int) uint8 {
	switch {
	case rec.State == volume.Empty || rec.State == volume.OutOfBounds:
		return r.Background
	case rec.State == volume.Border:
		return r.Membrane
	case rec.State == volume.Black:
		return 0
	case rec.State == volume.White:
		return 255
	case rec.State == volume.Interior:
		return r.Interior
	case !rec.State.IsIntensity():
		return r.Background
	}

	p := a.IndexToWorld(x, y, z)
	f := r.TextureFrequency
	brightness := rec.State.Brightness() + r.TextureAmplitude*noise.Noise3D(p.X()*f, p.Y()*f, p.Z()*f)

	// Darken towards the membrane close to the surface.
	if r.EdgeFalloff > 0 {
		t := math.Min(1, float64(rec.DistanceToEdge)/r.EdgeFalloff)
		m := float64(r.Membrane) / 255
		brightness = m + (brightness-m)*t
	}
	return toGray(brightness)
}

// ConcentrationSource supplies calcium concentration per compartment over
// time, normalized to [0,1].
type ConcentrationSource interface {
	Concentration(parentID uint64, timestep int) float64
}

// ConcentrationSeries is a ConcentrationSource backed by per-compartment
// time series. Steps past the end repeat the last sample.
type ConcentrationSeries map[uint64][]float64

func (s ConcentrationSeries) Concentration(parentID uint64, timestep int) float64 {
	series := s[parentID]
	if len(series) == 0 {
		return 0
	}
	if timestep < 0 {
		timestep = 0
	}
	if timestep >= len(series) {
		timestep = len(series) - 1
	}
	return series[timestep]
}

// CalciumRenderer sums fluorescence from Layers voxels at and below the
// slice, attenuating each deeper layer linearly.
type CalciumRenderer struct {
	Layers   int
	Timestep int
	Source   ConcentrationSource
	Gain     float64
}

func (r *CalciumRenderer) RenderSlice(a *volume.VoxelArray, w Window, z int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w.Width, w.Height))
	layers := max(r.Layers, 1)
	gain := r.Gain
	if gain == 0 {
		gain = 1
	}

	for j := 0; j < w.Height; j++ {
		row := j * img.Stride
		for i := 0; i < w.Width; i++ {
			sum := 0.0
			for d := 0; d < layers; d++ {
				rec := a.GetVoxel(w.X+i, w.Y+j, z+d)
				if !rec.State.Filled() {
					continue
				}
				c := 1.0
				if r.Source != nil {
					c = r.Source.Concentration(rec.ParentID, r.Timestep)
				}
				sum += c * (1 - float64(d)/float64(layers))
			}
			img.Pix[row+i] = toGray(sum * gain)
		}
	}
	return img
}

func toGray(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(math.Round(v * 255))
}
