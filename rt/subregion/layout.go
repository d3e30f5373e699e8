package subregion

import (
	"errors"
	"fmt"
	"math"

	"github.com/braingenix/brainstream/rt/core"
	"github.com/braingenix/brainstream/rt/volume"
	"github.com/go-gl/mathgl/mgl64"
)

var (
	ErrImageTooLarge = errors.New("subregion: image does not fit in a memory-bounded subregion")
	ErrInvalidParams = errors.New("subregion: invalid microscope parameters")
)

const tileEpsilon = 1e-9

// MicroscopeParams describe how images are captured from the volume.
type MicroscopeParams struct {
	// VoxelResolution is the voxel edge length in micrometers.
	VoxelResolution float64
	ImageWidth      int
	ImageHeight     int
	PixelsPerVoxel  float64
	// OverlapPercent is the overlap between neighbouring images.
	OverlapPercent float64
	// SliceThickness is the Z distance between captured slices, in
	// micrometers.
	SliceThickness float64
}

func (p MicroscopeParams) validate() error {
	switch {
	case p.VoxelResolution <= 0:
		return fmt.Errorf("%w: voxel resolution %v", ErrInvalidParams, p.VoxelResolution)
	case p.ImageWidth <= 0 || p.ImageHeight <= 0:
		return fmt.Errorf("%w: image size %dx%d", ErrInvalidParams, p.ImageWidth, p.ImageHeight)
	case p.PixelsPerVoxel <= 0:
		return fmt.Errorf("%w: pixels per voxel %v", ErrInvalidParams, p.PixelsPerVoxel)
	case p.OverlapPercent < 0 || p.OverlapPercent >= 100:
		return fmt.Errorf("%w: overlap %v%%", ErrInvalidParams, p.OverlapPercent)
	}
	return nil
}

// Layout is the derived geometry of a render: how images step across the
// region and how many fit in one subregion.
type Layout struct {
	VoxelSize float64
	MaxEdge   int

	// Voxels covered by one image on each axis.
	ImageVoxelsX, ImageVoxelsY int
	ImageWorldX, ImageWorldY   float64
	ImageStepX, ImageStepY     float64

	ImagesPerSubRegionX, ImagesPerSubRegionY int

	// SubRegionStep is a whole number of image steps so image tiles line
	// up across subregion boundaries. SubRegionOverlap is the extra width
	// the last image of a subregion reaches past the step.
	SubRegionStepX, SubRegionStepY       float64
	SubRegionOverlapX, SubRegionOverlapY float64

	SliceStride        int
	SlicesPerSubRegion int
	SubRegionStepZ     float64
}

// MaxArrayEdge is the largest cubic array edge, in voxels, that fits in
// scalingPercent of totalMemory, capped at ceiling.
func MaxArrayEdge(totalMemory uint64, scalingPercent float64, ceiling int) int {
	usable := float64(totalMemory) * scalingPercent / 100
	edge := int(math.Cbrt(usable / float64(volume.RecordSize)))
	if ceiling > 0 {
		edge = min(edge, ceiling)
	}
	return edge
}

// ComputeLayout derives image and subregion steps for an array edge of
// maxEdge voxels.
func ComputeLayout(p MicroscopeParams, maxEdge int) (Layout, error) {
	if err := p.validate(); err != nil {
		return Layout{}, err
	}
	res := p.VoxelResolution
	l := Layout{
		VoxelSize:    res,
		MaxEdge:      maxEdge,
		ImageVoxelsX: max(1, int(math.Round(float64(p.ImageWidth)/p.PixelsPerVoxel))),
		ImageVoxelsY: max(1, int(math.Round(float64(p.ImageHeight)/p.PixelsPerVoxel))),
	}
	keep := 1 - p.OverlapPercent/100
	l.ImageWorldX = float64(l.ImageVoxelsX) * res
	l.ImageWorldY = float64(l.ImageVoxelsY) * res
	l.ImageStepX = l.ImageWorldX * keep
	l.ImageStepY = l.ImageWorldY * keep

	subWorld := float64(maxEdge) * res
	l.ImagesPerSubRegionX = imagesThatFit(subWorld, l.ImageWorldX, l.ImageStepX)
	l.ImagesPerSubRegionY = imagesThatFit(subWorld, l.ImageWorldY, l.ImageStepY)
	if l.ImagesPerSubRegionX == 0 || l.ImagesPerSubRegionY == 0 {
		return l, fmt.Errorf("%w: %dx%d voxel image, %d voxel array edge",
			ErrImageTooLarge, l.ImageVoxelsX, l.ImageVoxelsY, maxEdge)
	}

	l.SubRegionStepX = float64(l.ImagesPerSubRegionX) * l.ImageStepX
	l.SubRegionStepY = float64(l.ImagesPerSubRegionY) * l.ImageStepY
	l.SubRegionOverlapX = l.ImageWorldX - l.ImageStepX
	l.SubRegionOverlapY = l.ImageWorldY - l.ImageStepY

	l.SliceStride = max(1, int(math.Round(p.SliceThickness/res)))
	l.SlicesPerSubRegion = maxEdge / l.SliceStride
	if l.SlicesPerSubRegion == 0 {
		return l, fmt.Errorf("%w: slice stride %d exceeds array edge %d", ErrImageTooLarge, l.SliceStride, maxEdge)
	}
	l.SubRegionStepZ = float64(l.SlicesPerSubRegion*l.SliceStride) * res
	return l, nil
}

func imagesThatFit(span, image, step float64) int {
	if span+tileEpsilon < image {
		return 0
	}
	return int(math.Floor((span-image)/step+tileEpsilon)) + 1
}

// Span is a [Start,End) interval on one axis.
type Span struct {
	Start, End float64
}

// TileAxis covers [lo,hi) with tiles starting every step and size long.
// The last tile ends exactly at hi.
func TileAxis(lo, hi, step, size float64) []Span {
	if hi <= lo || step <= 0 {
		return nil
	}
	n := int(math.Ceil((hi-lo)/step - tileEpsilon))
	spans := make([]Span, n)
	for i := range spans {
		start := lo + float64(i)*step
		spans[i] = Span{Start: start, End: math.Min(start+size, hi)}
	}
	return spans
}

// imagesIn is the number of images of the layout that start inside a tile
// of the given width.
func (l Layout) imagesIn(width, image, step float64, limit int) int {
	return min(limit, max(1, imagesThatFit(width, image, step)))
}

// Plan splits region into subregions ordered X, then Y, then Z.
func Plan(region core.ScanRegion, l Layout) []core.SubRegion {
	b := region.Box
	xs := TileAxis(b.Min.X(), b.Max.X(), l.SubRegionStepX, l.SubRegionStepX+l.SubRegionOverlapX)
	ys := TileAxis(b.Min.Y(), b.Max.Y(), l.SubRegionStepY, l.SubRegionStepY+l.SubRegionOverlapY)
	zs := TileAxis(b.Min.Z(), b.Max.Z(), l.SubRegionStepZ, l.SubRegionStepZ)

	subs := make([]core.SubRegion, 0, len(xs)*len(ys)*len(zs))
	for ix, x := range xs {
		for iy, y := range ys {
			for iz, z := range zs {
				subs = append(subs, core.SubRegion{
					Region: core.ScanRegion{
						Box: core.BoundingBox{
							Min: mgl64.Vec3{x.Start, y.Start, z.Start},
							Max: mgl64.Vec3{x.End, y.End, z.End},
						},
						SampleRotation: region.SampleRotation,
					},
					Base:         region,
					Index:        [3]int{ix, iy, iz},
					XImageOffset: ix * l.ImagesPerSubRegionX,
					YImageOffset: iy * l.ImagesPerSubRegionY,
					MaxImagesX:   l.imagesIn(x.End-x.Start, l.ImageWorldX, l.ImageStepX, l.ImagesPerSubRegionX),
					MaxImagesY:   l.imagesIn(y.End-y.Start, l.ImageWorldY, l.ImageStepY, l.ImagesPerSubRegionY),
					LayerOffset:  iz * l.SlicesPerSubRegion,
				})
			}
		}
	}
	return subs
}

// SliceCount is the number of slices taken from a subregion.
func (l Layout) SliceCount(sub core.SubRegion) int {
	_, _, z := volume.Extents(sub.Region.Box, l.VoxelSize)
	return (z + l.SliceStride - 1) / l.SliceStride
}

// Window returns the voxel window of image (kx,ky) inside a subregion
// array.
func (l Layout) Window(kx, ky int) (x, y, w, h int) {
	x = int(math.Round(float64(kx) * l.ImageStepX / l.VoxelSize))
	y = int(math.Round(float64(ky) * l.ImageStepY / l.VoxelSize))
	return x, y, l.ImageVoxelsX, l.ImageVoxelsY
}

// ImageFilename names a tile by its global position, so identical requests
// produce identical names.
func ImageFilename(m Modality, timestep, slice, x, y int) string {
	if m == Calcium {
		return fmt.Sprintf("T%04d_Slice%05d_X%04d_Y%04d.png", timestep, slice, x, y)
	}
	return fmt.Sprintf("Slice%05d_X%04d_Y%04d.png", slice, x, y)
}
