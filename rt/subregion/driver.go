package subregion

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/braingenix/brainstream/rt/bvh"
	"github.com/braingenix/brainstream/rt/core"
	"github.com/braingenix/brainstream/rt/generator"
	"github.com/braingenix/brainstream/rt/imaging"
	"github.com/braingenix/brainstream/rt/index"
	"github.com/braingenix/brainstream/rt/pool"
	"github.com/braingenix/brainstream/rt/profiler"
	"github.com/braingenix/brainstream/rt/resource"
	"github.com/braingenix/brainstream/rt/volume"
	"golang.org/x/time/rate"
)

// Compartment is one simulated shape with the ID written into the voxels it
// fills.
type Compartment struct {
	ID    uint64
	Shape core.Shape
}

// Request is one render of a scan region.
type Request struct {
	RegionID     int
	Region       core.ScanRegion
	Params       MicroscopeParams
	Modality     Modality
	Compartments []Compartment
	OutputDir    string

	Post  imaging.PostProcess
	Seed  int64
	Noise *generator.NoiseParams

	// Calcium only.
	Source    imaging.ConcentrationSource
	Timesteps int
	Layers    int

	// OnFilled, when set, sees each subregion array after rasterization
	// and before slicing.
	OnFilled func(sub core.SubRegion, a *volume.VoxelArray, l Layout) error
}

type Config struct {
	// MemoryScalingPercent of system RAM bounds a single voxel array.
	MemoryScalingPercent float64
	// MaxEdgeCeiling caps the voxel array edge regardless of memory.
	MaxEdgeCeiling          int
	ReservationLimitPercent float64
	PollInterval            time.Duration
	SubdivisionThreshold    uint64
	ClearWorkers            int
}

func DefaultConfig() Config {
	return Config{
		MemoryScalingPercent:    50,
		MaxEdgeCeiling:          1024,
		ReservationLimitPercent: resource.DefaultReservationLimitPercent,
		PollInterval:            500 * time.Millisecond,
		SubdivisionThreshold:    generator.DefaultSubdivisionThreshold,
	}
}

// Driver renders scan regions one subregion at a time. A driver runs one
// render at a time and keeps its voxel array between subregions.
type Driver struct {
	cfg          Config
	gen          *generator.ArrayGeneratorPool
	img          *imaging.ImageProcessorPool
	reservations *resource.Reservations
	probe        resource.SystemMemoryProbe
	index        index.Store
	logger       core.Logger
	profiler     *profiler.Profiler

	array    *volume.VoxelArray
	inflight []*pool.Handle
	releases sync.WaitGroup
	progress progress
	status   rate.Sometimes
}

func NewDriver(cfg Config, gen *generator.ArrayGeneratorPool, img *imaging.ImageProcessorPool,
	reservations *resource.Reservations, probe resource.SystemMemoryProbe, idx index.Store, logger core.Logger) *Driver {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.SubdivisionThreshold == 0 {
		cfg.SubdivisionThreshold = generator.DefaultSubdivisionThreshold
	}
	return &Driver{
		cfg:          cfg,
		gen:          gen,
		img:          img,
		reservations: reservations,
		probe:        probe,
		index:        idx,
		logger:       core.OrNop(logger),
		profiler:     profiler.New(),
		status:       rate.Sometimes{First: 1, Interval: 5 * time.Second},
	}
}

func (d *Driver) Progress() Progress { return d.progress.snapshot() }

func (d *Driver) Profiler() *profiler.Profiler { return d.profiler }

// Render runs the whole pipeline for req. It returns ErrImageTooLarge or
// ErrInvalidParams before any work when the request cannot be laid out.
func (d *Driver) Render(ctx context.Context, req Request) error {
	maxEdge := MaxArrayEdge(d.probe.TotalMemory(), d.cfg.MemoryScalingPercent, d.cfg.MaxEdgeCeiling)
	layout, err := ComputeLayout(req.Params, maxEdge)
	if err != nil {
		d.logger.Errorf("render of region %d aborted: %v", req.RegionID, err)
		return err
	}

	subs := Plan(req.Region, layout)
	timesteps := 1
	if req.Modality == Calcium {
		timesteps = max(1, req.Timesteps)
	}
	slices, images := 0, 0
	for _, s := range subs {
		n := layout.SliceCount(s)
		slices += n
		images += n * s.MaxImagesX * s.MaxImagesY * timesteps
	}
	d.progress.reset(len(subs), slices, images)
	d.profiler.Reset()
	d.logger.Infof("rendering region %d: %d subregions, %d slices, %d images", req.RegionID, len(subs), slices, images)

	boxes := make([]core.BoundingBox, len(req.Compartments))
	for i, c := range req.Compartments {
		if c.Shape != nil {
			boxes[i] = c.Shape.BoundingBox()
		}
	}
	tree := bvh.Build(boxes)
	defer d.releaseArray()

	for i, sub := range subs {
		if err := d.renderSubRegion(ctx, req, layout, tree, sub, timesteps); err != nil {
			return fmt.Errorf("subregion %d of %d: %w", i+1, len(subs), err)
		}
		d.progress.currentRegion.Add(1)
	}
	d.logger.Infof("region %d done\n%s", req.RegionID, d.profiler.StatsString())
	return nil
}

func (d *Driver) renderSubRegion(ctx context.Context, req Request, l Layout, tree *bvh.Tree, sub core.SubRegion, timesteps int) error {
	x, y, z := volume.Extents(sub.Region.Box, l.VoxelSize)
	need := uint64(x*y*z) * volume.RecordSize
	if err := d.reservations.WaitAndReserve(ctx, need, d.probe.TotalMemory(), d.cfg.ReservationLimitPercent, d.cfg.PollInterval, d.logger); err != nil {
		return err
	}
	defer d.reservations.Release(need)

	end := d.profiler.Scope("allocate")
	a := d.prepareArray(sub, l.VoxelSize)
	end()

	end = d.profiler.Scope("rasterize")
	var handles []*pool.Handle
	for _, idx := range tree.Query(sub.Region.Box) {
		c := req.Compartments[idx]
		for _, t := range generator.Subdivide(a, c.Shape, c.ID, d.cfg.SubdivisionThreshold, req.Noise) {
			handles = append(handles, d.gen.QueueWorkOperation(t))
		}
	}
	d.profiler.AddCount("generation tasks", int64(len(handles)))
	d.inflight = handles
	err := d.wait(ctx, "rasterizing", handles)
	end()
	if err != nil {
		return err
	}

	if req.OnFilled != nil {
		if err := req.OnFilled(sub, a, l); err != nil {
			d.logger.Errorf("subregion %v export: %v", sub.Index, err)
		}
	}

	end = d.profiler.Scope("imaging")
	handles = nil
	slices := 0
	_, _, sizeZ := a.Size()
	for zi, slice := 0, sub.LayerOffset; zi < sizeZ; zi, slice = zi+l.SliceStride, slice+1 {
		for ts := 0; ts < timesteps; ts++ {
			for ky := 0; ky < sub.MaxImagesY; ky++ {
				for kx := 0; kx < sub.MaxImagesX; kx++ {
					handles = append(handles, d.img.QueueEncodeOperation(d.imageTask(req, l, sub, a, zi, slice, ts, kx, ky)))
				}
			}
		}
		slices++
	}
	d.profiler.AddCount("image tasks", int64(len(handles)))
	d.inflight = handles
	err = d.wait(ctx, "imaging", handles)
	end()
	if err != nil {
		return err
	}
	d.progress.currentSlice.Add(int64(slices))
	return nil
}

func (d *Driver) imageTask(req Request, l Layout, sub core.SubRegion, a *volume.VoxelArray, z, slice, ts, kx, ky int) imaging.Task {
	gx, gy := sub.XImageOffset+kx, sub.YImageOffset+ky
	wx, wy, ww, wh := l.Window(kx, ky)
	seed := imageSeed(req.Seed, slice, gx, gy, ts)

	var r imaging.SliceRenderer
	if req.Modality == Calcium {
		r = &imaging.CalciumRenderer{Layers: req.Layers, Timestep: ts, Source: req.Source}
	} else {
		r = imaging.DefaultEMRenderer(seed)
	}

	rec := index.ImageRecord{RegionID: req.RegionID, Channel: req.Modality.String(), Slice: slice, TileX: gx, TileY: gy, Timestep: ts}
	return imaging.Task{
		Array:        a,
		Window:       imaging.Window{X: wx, Y: wy, Width: ww, Height: wh},
		Z:            z,
		OutputDir:    filepath.Join(req.OutputDir, fmt.Sprintf("Region%d", req.RegionID), req.Modality.String()),
		Filename:     ImageFilename(req.Modality, ts, slice, gx, gy),
		OutputWidth:  req.Params.ImageWidth,
		OutputHeight: req.Params.ImageHeight,
		Renderer:     r,
		Post:         req.Post,
		Seed:         seed,
		OnWritten: func(path string) {
			d.progress.currentImage.Add(1)
			if d.index == nil {
				return
			}
			rec.Path = path
			if err := d.index.Add(rec); err != nil {
				d.logger.Warnf("%v", err)
			}
		},
	}
}

func imageSeed(base int64, slice, x, y, ts int) int64 {
	h := uint64(base)
	for _, v := range []int{slice, x, y, ts} {
		h ^= uint64(v) + 0x9e3779b97f4a7c15 + (h << 6) + (h >> 2)
	}
	return int64(h)
}

// prepareArray reuses the driver's array when the subregion fits in its
// capacity and allocates a new one otherwise.
func (d *Driver) prepareArray(sub core.SubRegion, voxelSize float64) *volume.VoxelArray {
	if d.array != nil && d.array.VoxelSize() == voxelSize && d.array.SetRegion(sub.Region) {
		d.array.Clear()
		return d.array
	}
	d.array = volume.NewVoxelArrayFromRegion(sub.Region, voxelSize, d.cfg.ClearWorkers)
	return d.array
}

// releaseArray drops the driver's array at the end of a render. Tasks still
// queued after a cancelled wait keep writing to it, so the release is
// deferred until they finish.
func (d *Driver) releaseArray() {
	a, pending := d.array, d.inflight
	d.array, d.inflight = nil, nil
	if a == nil {
		return
	}
	if pool.AllDone(pending) {
		a.Release()
		return
	}
	d.releases.Add(1)
	go func() {
		defer d.releases.Done()
		for _, h := range pending {
			<-h.Done()
		}
		a.Release()
	}()
}

// wait polls until every handle is done, logging queue depth. A cancelled
// ctx ends the wait even when the handles are already done.
func (d *Driver) wait(ctx context.Context, stage string, handles []*pool.Handle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()
	for !pool.AllDone(handles) {
		d.status.Do(func() {
			d.logger.Infof("%s: %d generation and %d image tasks queued", stage, d.gen.QueueSize(), d.img.QueueSize())
		})
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}
