package subregion

import (
	"testing"

	"github.com/braingenix/brainstream/rt/core"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaxArrayEdge(t *testing.T) {
	// 16 byte records, 50% of 2^31 bytes: cbrt(2^26) = 406.
	assert.Equal(t, 406, MaxArrayEdge(1<<31, 50, 0))
	assert.Equal(t, 128, MaxArrayEdge(1<<31, 50, 128))
	assert.Equal(t, 0, MaxArrayEdge(0, 50, 128))
}

func TestSubRegionTilingAlignment(t *testing.T) {
	p := MicroscopeParams{
		VoxelResolution: 1,
		ImageWidth:      100,
		ImageHeight:     100,
		PixelsPerVoxel:  1,
		SliceThickness:  1,
	}
	l, err := ComputeLayout(p, 300)
	require.NoError(t, err)
	assert.Equal(t, 100.0, l.ImageStepX)
	assert.Equal(t, 3, l.ImagesPerSubRegionX)
	assert.Equal(t, 300.0, l.SubRegionStepX)

	spans := TileAxis(0, 1000, l.SubRegionStepX, l.SubRegionStepX+l.SubRegionOverlapX)
	require.Len(t, spans, 4)
	assert.Equal(t, 900.0, spans[3].Start)
	assert.Equal(t, 1000.0, spans[3].End)
}

func TestComputeLayoutWithOverlap(t *testing.T) {
	p := MicroscopeParams{
		VoxelResolution: 0.5,
		ImageWidth:      40,
		ImageHeight:     20,
		PixelsPerVoxel:  2,
		OverlapPercent:  10,
		SliceThickness:  2,
	}
	l, err := ComputeLayout(p, 100)
	require.NoError(t, err)

	assert.Equal(t, 20, l.ImageVoxelsX)
	assert.Equal(t, 10, l.ImageVoxelsY)
	assert.InDelta(t, 9.0, l.ImageStepX, 1e-9)
	// (50 - 10) / 9 + 1
	assert.Equal(t, 5, l.ImagesPerSubRegionX)
	assert.InDelta(t, 45.0, l.SubRegionStepX, 1e-9)
	assert.InDelta(t, 1.0, l.SubRegionOverlapX, 1e-9)
	assert.Equal(t, 4, l.SliceStride)
	assert.Equal(t, 25, l.SlicesPerSubRegion)
	assert.InDelta(t, 50.0, l.SubRegionStepZ, 1e-9)
}

func TestComputeLayoutErrors(t *testing.T) {
	p := MicroscopeParams{VoxelResolution: 1, ImageWidth: 512, ImageHeight: 512, PixelsPerVoxel: 1}
	_, err := ComputeLayout(p, 256)
	assert.ErrorIs(t, err, ErrImageTooLarge)

	p.VoxelResolution = 0
	_, err = ComputeLayout(p, 1024)
	assert.ErrorIs(t, err, ErrInvalidParams)

	p = MicroscopeParams{VoxelResolution: 1, ImageWidth: 8, ImageHeight: 8, PixelsPerVoxel: 1, SliceThickness: 64}
	_, err = ComputeLayout(p, 32)
	assert.ErrorIs(t, err, ErrImageTooLarge)
}

func TestPlan(t *testing.T) {
	p := MicroscopeParams{VoxelResolution: 1, ImageWidth: 10, ImageHeight: 10, PixelsPerVoxel: 1, SliceThickness: 2}
	l, err := ComputeLayout(p, 20)
	require.NoError(t, err)

	region := core.ScanRegion{
		Box:            core.BoundingBox{Max: mgl64.Vec3{30, 30, 44}},
		SampleRotation: mgl64.Vec3{0, 0, 90},
	}
	subs := Plan(region, l)
	// 2 x 2 x 3
	require.Len(t, subs, 12)

	first, last := subs[0], subs[len(subs)-1]
	assert.Equal(t, [3]int{0, 0, 0}, first.Index)
	assert.Equal(t, 2, first.MaxImagesX)
	assert.Equal(t, [3]int{1, 1, 2}, last.Index)
	assert.Equal(t, 1, last.MaxImagesX)
	assert.Equal(t, 2, last.XImageOffset)
	assert.Equal(t, 20, last.LayerOffset)
	assert.Equal(t, mgl64.Vec3{30, 30, 44}, last.Region.Box.Max)
	assert.Equal(t, region, last.Base)
	assert.Equal(t, region.SampleRotation, last.Region.SampleRotation)
	assert.Equal(t, 2, l.SliceCount(last))
	assert.Equal(t, 10, l.SliceCount(first))

	// Z subregions continue the slice numbering without gaps.
	assert.Equal(t, 10, subs[1].LayerOffset)
}

func TestImageFilename(t *testing.T) {
	assert.Equal(t, "Slice00003_X0001_Y0002.png", ImageFilename(EM, 5, 3, 1, 2))
	assert.Equal(t, "T0005_Slice00003_X0001_Y0002.png", ImageFilename(Calcium, 5, 3, 1, 2))
}
