package neuroglancer

import (
	"encoding/binary"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/braingenix/brainstream/rt/core"
	"github.com/braingenix/brainstream/rt/index"
	"github.com/braingenix/brainstream/rt/volume"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTile(t *testing.T, dir string, x, y int, value uint8) index.ImageRecord {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 4, 4))
	for i := range img.Pix {
		img.Pix[i] = value
	}
	path := filepath.Join(dir, ChunkName(x, x, y, y, 0, 0)+".png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return index.ImageRecord{Path: path, TileX: x, TileY: y}
}

func TestNewDatasetLayout(t *testing.T) {
	base := t.TempDir()
	d, err := NewDataset(base, nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "NeuroglancerDatasets", d.ID), d.Root)
	assert.DirExists(t, d.DataPath())
	assert.DirExists(t, d.SegmentationPath())

	other, err := NewDataset(base, nil)
	require.NoError(t, err)
	assert.NotEqual(t, d.ID, other.ID)
}

func TestWriteImageStack(t *testing.T) {
	tiles := t.TempDir()
	recs := []index.ImageRecord{
		writeTile(t, tiles, 0, 0, 10),
		writeTile(t, tiles, 1, 0, 20),
		writeTile(t, tiles, 0, 1, 30),
		writeTile(t, tiles, 1, 1, 40),
	}
	d, err := NewDataset(t.TempDir(), nil)
	require.NoError(t, err)
	require.NoError(t, d.WriteImageStack(recs, StackGeometry{StepX: 4, StepY: 4, Resolution: [3]float64{8, 8, 40}}))

	info, err := ReadInfo(d.DataPath())
	require.NoError(t, err)
	assert.Equal(t, "neuroglancer_multiscale_volume", info.Type)
	assert.Equal(t, "uint8", info.DataType)
	assert.Equal(t, "image", info.VolumeType)
	assert.Equal(t, 1, info.NumChannels)
	require.Len(t, info.Scales, DefaultLevels)
	assert.Equal(t, [3]int{8, 8, 1}, info.Scales[0].Size)
	assert.Equal(t, [3]int{4, 4, 1}, info.Scales[1].Size)
	assert.Equal(t, [3]float64{16, 16, 40}, info.Scales[1].Resolution)
	assert.Equal(t, "raw", info.Scales[0].Encoding)

	raw, err := ReadChunk(filepath.Join(d.DataPath(), "0", ChunkName(0, 8, 0, 8, 0, 1)))
	require.NoError(t, err)
	require.Len(t, raw, 64)
	assert.Equal(t, uint8(10), raw[0])
	assert.Equal(t, uint8(20), raw[5])
	assert.Equal(t, uint8(40), raw[5*8+5])

	raw, err = ReadChunk(filepath.Join(d.DataPath(), "2", ChunkName(0, 2, 0, 2, 0, 1)))
	require.NoError(t, err)
	assert.Len(t, raw, 4)
}

func TestWriteSegmentationSlab(t *testing.T) {
	a := volume.NewVoxelArray(core.BoundingBox{Max: mgl64.Vec3{4, 4, 4}}, 1, 1)
	a.SetVoxel(1, 2, 0, volume.VoxelRecord{State: volume.Interior, ParentID: 77})
	a.SetVoxel(3, 3, 2, volume.VoxelRecord{State: volume.Border, ParentID: 99})
	a.SetVoxel(0, 0, 1, volume.VoxelRecord{State: volume.Interior, ParentID: 5})

	d, err := NewDataset(t.TempDir(), nil)
	require.NoError(t, err)
	g := SegmentationGeometry{Size: [3]int{4, 4, 2}, Resolution: [3]float64{1000, 1000, 2000}, ChunkX: 4, ChunkY: 4}
	require.NoError(t, d.WriteSegmentationInfo(g))
	require.NoError(t, d.WriteSegmentationSlab(a, 0, 0, 0, 2, g))

	info, err := ReadInfo(d.SegmentationPath())
	require.NoError(t, err)
	assert.Equal(t, "segmentation", info.VolumeType)
	assert.Equal(t, "uint64", info.DataType)

	dir := filepath.Join(d.SegmentationPath(), "0")
	raw, err := ReadChunk(filepath.Join(dir, ChunkName(0, 4, 0, 4, 0, 1)))
	require.NoError(t, err)
	require.Len(t, raw, 8*16)
	assert.Equal(t, uint64(77), binary.LittleEndian.Uint64(raw[8*(2*4+1):]))
	assert.Zero(t, binary.LittleEndian.Uint64(raw[0:]))

	raw, err = ReadChunk(filepath.Join(dir, ChunkName(0, 4, 0, 4, 1, 2)))
	require.NoError(t, err)
	assert.Equal(t, uint64(99), binary.LittleEndian.Uint64(raw[8*(3*4+3):]))
}
