package neuroglancer

import (
	"encoding/binary"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/braingenix/brainstream/rt/core"
	"github.com/braingenix/brainstream/rt/index"
	"github.com/braingenix/brainstream/rt/volume"
	"github.com/google/uuid"
	"golang.org/x/image/draw"
)

const (
	DatasetsDir     = "NeuroglancerDatasets"
	DataDir         = "Data"
	SegmentationDir = "Segmentation"

	DefaultChunkSize = 64
	DefaultLevels    = 3
)

// Dataset is one converted render under <base>/NeuroglancerDatasets/<id>.
type Dataset struct {
	ID     string
	Root   string
	logger core.Logger
}

// NewDataset creates the directory tree of a fresh dataset.
func NewDataset(base string, logger core.Logger) (*Dataset, error) {
	id := uuid.NewString()
	d := &Dataset{
		ID:     id,
		Root:   filepath.Join(base, DatasetsDir, id),
		logger: core.OrNop(logger),
	}
	for _, dir := range []string{d.DataPath(), d.SegmentationPath()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create dataset %s: %w", id, err)
		}
	}
	return d, nil
}

func (d *Dataset) DataPath() string         { return filepath.Join(d.Root, DataDir) }
func (d *Dataset) SegmentationPath() string { return filepath.Join(d.Root, SegmentationDir) }

// StackGeometry places image tiles in the stitched volume.
type StackGeometry struct {
	// StepX and StepY are the pixel distances between neighbouring tile
	// origins.
	StepX, StepY int
	// Resolution is nanometers per pixel on X and Y and per slice on Z.
	Resolution [3]float64
	ChunkSize  int
	// Levels is the number of scales, each half the previous on X and Y.
	Levels int
}

func (g StackGeometry) withDefaults() StackGeometry {
	if g.ChunkSize <= 0 {
		g.ChunkSize = DefaultChunkSize
	}
	if g.Levels <= 0 {
		g.Levels = DefaultLevels
	}
	return g
}

// WriteImageStack stitches the tiles of recs slice by slice and writes the
// image volume with its downsampled scales. recs must hold one timestep.
func (d *Dataset) WriteImageStack(recs []index.ImageRecord, g StackGeometry) error {
	if len(recs) == 0 {
		return fmt.Errorf("no images to convert")
	}
	g = g.withDefaults()

	tileW, tileH, err := tileSize(recs[0].Path)
	if err != nil {
		return err
	}
	bySlice := map[int][]index.ImageRecord{}
	maxX, maxY, maxSlice := 0, 0, 0
	for _, r := range recs {
		bySlice[r.Slice] = append(bySlice[r.Slice], r)
		maxX, maxY, maxSlice = max(maxX, r.TileX), max(maxY, r.TileY), max(maxSlice, r.Slice)
	}
	width := maxX*g.StepX + tileW
	height := maxY*g.StepY + tileH
	depth := maxSlice + 1

	info := newInfo("uint8", "image")
	sizes := make([][2]int, g.Levels)
	for s := 0; s < g.Levels; s++ {
		f := 1 << s
		sizes[s] = [2]int{max(1, (width+f-1)/f), max(1, (height+f-1)/f)}
		info.Scales = append(info.Scales, Scale{
			Key:        strconv.Itoa(s),
			Size:       [3]int{sizes[s][0], sizes[s][1], depth},
			Resolution: [3]float64{g.Resolution[0] * float64(f), g.Resolution[1] * float64(f), g.Resolution[2]},
			ChunkSizes: [][3]int{{g.ChunkSize, g.ChunkSize, 1}},
			Encoding:   "raw",
		})
	}
	if err := writeInfo(d.DataPath(), info); err != nil {
		return err
	}

	for z := 0; z < depth; z++ {
		canvas := image.NewGray(image.Rect(0, 0, width, height))
		tiles := bySlice[z]
		slices.SortFunc(tiles, func(a, b index.ImageRecord) int {
			if a.TileY != b.TileY {
				return a.TileY - b.TileY
			}
			return a.TileX - b.TileX
		})
		for _, r := range tiles {
			if err := d.pasteTile(canvas, r, g); err != nil {
				d.logger.Warnf("skipping tile %s: %v", r.Path, err)
			}
		}
		for s := 0; s < g.Levels; s++ {
			level := canvas
			if s > 0 {
				level = image.NewGray(image.Rect(0, 0, sizes[s][0], sizes[s][1]))
				draw.ApproxBiLinear.Scale(level, level.Bounds(), canvas, canvas.Bounds(), draw.Src, nil)
			}
			if err := writeGrayChunks(filepath.Join(d.DataPath(), strconv.Itoa(s)), level, z, g.ChunkSize); err != nil {
				return err
			}
		}
	}
	return nil
}

func tileSize(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("tile %s: %w", path, err)
	}
	return cfg.Width, cfg.Height, nil
}

func (d *Dataset) pasteTile(canvas *image.Gray, r index.ImageRecord, g StackGeometry) error {
	f, err := os.Open(r.Path)
	if err != nil {
		return err
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		return err
	}
	at := image.Pt(r.TileX*g.StepX, r.TileY*g.StepY)
	dst := img.Bounds().Sub(img.Bounds().Min).Add(at)
	draw.Draw(canvas, dst, img, img.Bounds().Min, draw.Src)
	return nil
}

func writeGrayChunks(dir string, img *image.Gray, z, chunk int) error {
	b := img.Bounds()
	for y0 := 0; y0 < b.Dy(); y0 += chunk {
		y1 := min(y0+chunk, b.Dy())
		for x0 := 0; x0 < b.Dx(); x0 += chunk {
			x1 := min(x0+chunk, b.Dx())
			raw := make([]byte, 0, (x1-x0)*(y1-y0))
			for y := y0; y < y1; y++ {
				off := y*img.Stride + x0
				raw = append(raw, img.Pix[off:off+x1-x0]...)
			}
			if err := writeChunk(dir, ChunkName(x0, x1, y0, y1, z, z+1), raw); err != nil {
				return err
			}
		}
	}
	return nil
}

// SegmentationGeometry describes the segmentation volume of a render.
type SegmentationGeometry struct {
	// Size in voxels on X and Y and in slices on Z.
	Size [3]int
	// Resolution in nanometers.
	Resolution [3]float64
	// ChunkX and ChunkY match the subregion step so every subregion owns
	// whole chunks.
	ChunkX, ChunkY int
}

func (d *Dataset) WriteSegmentationInfo(g SegmentationGeometry) error {
	info := newInfo("uint64", "segmentation")
	info.Scales = []Scale{{
		Key:        "0",
		Size:       g.Size,
		Resolution: g.Resolution,
		ChunkSizes: [][3]int{{g.ChunkX, g.ChunkY, 1}},
		Encoding:   "raw",
	}}
	return writeInfo(d.SegmentationPath(), info)
}

// WriteSegmentationSlab writes the parent IDs of every stride-th layer of a
// subregion array. originX and originY are the voxel position of the array
// in the volume and must be chunk aligned.
func (d *Dataset) WriteSegmentationSlab(a *volume.VoxelArray, originX, originY, layerOffset, stride int, g SegmentationGeometry) error {
	if g.ChunkX <= 0 || g.ChunkY <= 0 {
		return fmt.Errorf("segmentation chunk size %dx%d", g.ChunkX, g.ChunkY)
	}
	stride = max(1, stride)
	sx, sy, sz := a.Size()
	// Only the part up to the next subregion belongs to this one.
	w := min(sx, g.ChunkX, g.Size[0]-originX)
	h := min(sy, g.ChunkY, g.Size[1]-originY)
	if w <= 0 || h <= 0 {
		return nil
	}

	dir := filepath.Join(d.SegmentationPath(), "0")
	for zi, layer := 0, layerOffset; zi < sz; zi, layer = zi+stride, layer+1 {
		if layer >= g.Size[2] {
			break
		}
		raw := make([]byte, 8*w*h)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				v := a.GetVoxel(x, y, zi)
				var id uint64
				if v.State.Filled() {
					id = v.ParentID
				}
				binary.LittleEndian.PutUint64(raw[8*(y*w+x):], id)
			}
		}
		name := ChunkName(originX, originX+w, originY, originY+h, layer, layer+1)
		if err := writeChunk(dir, name, raw); err != nil {
			return err
		}
	}
	return nil
}
