package brainstream

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/braingenix/brainstream/rt/core"
	"github.com/braingenix/brainstream/rt/generator"
	"github.com/braingenix/brainstream/rt/imaging"
	"github.com/braingenix/brainstream/rt/index"
	"github.com/braingenix/brainstream/rt/neuroglancer"
	"github.com/braingenix/brainstream/rt/resource"
	"github.com/braingenix/brainstream/rt/subregion"
	"github.com/braingenix/brainstream/rt/volume"
	"github.com/go-gl/mathgl/mgl64"
)

var (
	ErrRejected      = errors.New("brainstream: operation rejected in the current render state")
	ErrUnknownRegion = errors.New("brainstream: unknown scan region")
	ErrNoMicroscope  = errors.New("brainstream: microscope is not set up")
	ErrBadHandle     = errors.New("brainstream: image handle is outside the output directory")
	ErrClosed        = errors.New("brainstream: simulation is closed")
)

// RenderState is the progress of one modality. Transitions only move
// forward, except that a finished or failed render accepts a new request.
type RenderState int32

const (
	NotInitialized RenderState = iota
	InitBegin
	RenderRequested
	RenderInProgress
	RenderDone
	RenderFailed
)

func (s RenderState) String() string {
	switch s {
	case NotInitialized:
		return "NotInitialized"
	case InitBegin:
		return "InitBegin"
	case RenderRequested:
		return "RenderRequested"
	case RenderInProgress:
		return "RenderInProgress"
	case RenderDone:
		return "RenderDone"
	case RenderFailed:
		return "RenderFailed"
	default:
		return fmt.Sprintf("RenderState(%d)", int32(s))
	}
}

// RenderStatus is what GetRenderStatus reports for a modality.
type RenderStatus struct {
	State RenderState
	subregion.Progress
	// Err is set once a render ends in RenderFailed.
	Err error
}

type modalityState struct {
	state    RenderState
	params   *subregion.MicroscopeParams
	driver   *subregion.Driver
	regionID int
	done     chan struct{}
	err      error
}

type segmentationExport struct {
	dataset *neuroglancer.Dataset
	once    sync.Once
	geom    neuroglancer.SegmentationGeometry
	err     error
}

// Simulation owns the offline imaging pipeline: the shared worker pools,
// the scene compartments, the scan regions and one render state machine
// per modality.
type Simulation struct {
	cfg          Config
	logger       Logger
	probe        resource.SystemMemoryProbe
	gen          *generator.ArrayGeneratorPool
	img          *imaging.ImageProcessorPool
	reservations *resource.Reservations
	index        index.Store
	outputDir    string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu           sync.Mutex
	closed       bool
	modalities   [2]*modalityState
	regions      []core.ScanRegion
	compartments []subregion.Compartment
	nextParentID uint64
	source       imaging.ConcentrationSource
	timesteps    int
	layers       int
	datasets     map[int]*neuroglancer.Dataset
}

// NewSimulation starts the worker pools and opens the image index. A nil
// probe reads the host; a nil logger discards output.
func NewSimulation(cfg Config, probe resource.SystemMemoryProbe, logger Logger) (*Simulation, error) {
	logger = core.OrNop(logger)
	if probe == nil {
		probe = resource.NewHostProbe(nil)
	}
	out, err := filepath.Abs(cfg.Output.Dir)
	if err != nil {
		return nil, fmt.Errorf("output dir %q: %w", cfg.Output.Dir, err)
	}

	var idx index.Store = index.NewMemoryStore()
	if cfg.Output.IndexDB != "" {
		db, err := index.OpenSQLite(cfg.Output.IndexDB)
		if err != nil {
			return nil, err
		}
		idx = db
	}

	s := &Simulation{
		cfg:          cfg,
		logger:       logger,
		probe:        probe,
		gen:          generator.NewArrayGeneratorPool(workers(cfg.Pools.GeneratorWorkers), logger),
		img:          imaging.NewImageProcessorPool(workers(cfg.Pools.ImageWorkers), logger),
		reservations: resource.NewReservations(),
		index:        idx,
		outputDir:    out,
		datasets:     make(map[int]*neuroglancer.Dataset),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	for i := range s.modalities {
		s.modalities[i] = &modalityState{
			driver: subregion.NewDriver(cfg.DriverConfig(), s.gen, s.img, s.reservations, probe, idx, logger),
		}
	}
	return s, nil
}

func (s *Simulation) modality(m subregion.Modality) (*modalityState, error) {
	if int(m) < 0 || int(m) >= len(s.modalities) {
		return nil, fmt.Errorf("%w: modality %v", ErrRejected, m)
	}
	if s.closed {
		return nil, ErrClosed
	}
	return s.modalities[m], nil
}

// Initialize moves m out of NotInitialized. It is rejected in any other
// state.
func (s *Simulation) Initialize(m subregion.Modality) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.modality(m)
	if err != nil {
		return err
	}
	if st.state != NotInitialized {
		s.logger.Warnf("%s initialize rejected in state %s", m, st.state)
		return fmt.Errorf("%w: initialize in %s", ErrRejected, st.state)
	}
	st.state = InitBegin
	return nil
}

func (s *Simulation) SetupMicroscope(m subregion.Modality, params subregion.MicroscopeParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.modality(m)
	if err != nil {
		return err
	}
	switch st.state {
	case NotInitialized, RenderRequested, RenderInProgress:
		return fmt.Errorf("%w: setup microscope in %s", ErrRejected, st.state)
	}
	st.params = &params
	return nil
}

// DefineScanRegion records a region and returns its ID. rotation is the
// sample rotation in degrees per axis.
func (s *Simulation) DefineScanRegion(box core.BoundingBox, rotation mgl64.Vec3) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.regions = append(s.regions, core.ScanRegion{Box: box, SampleRotation: rotation})
	return len(s.regions) - 1
}

// AddCompartment adds a shape to the scene and returns the parent ID its
// voxels carry. IDs start at 1; 0 marks empty space in exports.
func (s *Simulation) AddCompartment(shape core.Shape) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextParentID++
	s.compartments = append(s.compartments, subregion.Compartment{ID: s.nextParentID, Shape: shape})
	return s.nextParentID
}

// SetConcentrationSource configures calcium renders.
func (s *Simulation) SetConcentrationSource(src imaging.ConcentrationSource, timesteps, layers int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.source = src
	s.timesteps = timesteps
	s.layers = layers
}

// QueueRenderOperation starts rendering regionID on its own goroutine. It
// is rejected while a render of the same modality is requested or running.
func (s *Simulation) QueueRenderOperation(m subregion.Modality, regionID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.modality(m)
	if err != nil {
		return err
	}
	switch st.state {
	case InitBegin, RenderDone, RenderFailed:
	default:
		s.logger.Warnf("%s render of region %d rejected in state %s", m, regionID, st.state)
		return fmt.Errorf("%w: render in %s", ErrRejected, st.state)
	}
	if st.params == nil {
		return ErrNoMicroscope
	}
	if regionID < 0 || regionID >= len(s.regions) {
		return fmt.Errorf("%w: %d", ErrUnknownRegion, regionID)
	}

	req := subregion.Request{
		RegionID:     regionID,
		Region:       s.regions[regionID],
		Params:       *st.params,
		Modality:     m,
		Compartments: append([]subregion.Compartment(nil), s.compartments...),
		OutputDir:    s.outputDir,
		Post:         s.cfg.PostProcessing(),
		Seed:         s.cfg.Output.Seed,
		Noise:        s.cfg.noise(),
		Source:       s.source,
		Timesteps:    s.timesteps,
		Layers:       s.layers,
	}
	if m == subregion.EM && s.cfg.Output.ExportSegmentation {
		export, err := s.segmentationFor(regionID)
		if err != nil {
			return err
		}
		req.OnFilled = export.write
	}

	st.state = RenderRequested
	st.regionID = regionID
	st.err = nil
	st.done = make(chan struct{})
	s.wg.Add(1)
	go s.render(st, req, st.done)
	return nil
}

func (s *Simulation) render(st *modalityState, req subregion.Request, done chan struct{}) {
	defer s.wg.Done()
	defer close(done)

	s.mu.Lock()
	st.state = RenderInProgress
	s.mu.Unlock()

	err := st.driver.Render(s.ctx, req)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		core.LogSeverity(s.logger, 8, "%s render of region %d failed: %v", req.Modality, req.RegionID, err)
		st.state = RenderFailed
		st.err = err
		return
	}
	st.state = RenderDone
}

func (s *Simulation) GetRenderStatus(m subregion.Modality) RenderStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if int(m) < 0 || int(m) >= len(s.modalities) {
		return RenderStatus{}
	}
	st := s.modalities[m]
	return RenderStatus{State: st.state, Progress: st.driver.Progress(), Err: st.err}
}

// Wait blocks until the current render of m ends and returns its error.
func (s *Simulation) Wait(ctx context.Context, m subregion.Modality) error {
	s.mu.Lock()
	st, err := s.modality(m)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	done := st.done
	s.mu.Unlock()
	if done == nil {
		return nil
	}

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return st.err
}

// GetImageStack lists the images written for regionID, as handles for
// GetImage.
func (s *Simulation) GetImageStack(regionID int) ([]string, error) {
	recs, err := s.index.Stack(regionID)
	if err != nil {
		return nil, err
	}
	return index.Paths(recs), nil
}

// GetImage returns the base64 encoded bytes of the image at handle.
func (s *Simulation) GetImage(handle string) (string, error) {
	p, err := s.resolve(handle)
	if err != nil {
		return "", err
	}
	raw, err := os.ReadFile(p)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func (s *Simulation) resolve(handle string) (string, error) {
	p := handle
	if !filepath.IsAbs(p) {
		p = filepath.Join(s.outputDir, p)
	}
	p = filepath.Clean(p)
	rel, err := filepath.Rel(s.outputDir, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrBadHandle, handle)
	}
	return p, nil
}

// ConvertToNeuroglancer writes the first timestep of a finished render of
// regionID as a neuroglancer precomputed image volume and returns the
// dataset ID. Segmentation exported during the render shares the dataset.
func (s *Simulation) ConvertToNeuroglancer(m subregion.Modality, regionID int) (string, error) {
	s.mu.Lock()
	st, err := s.modality(m)
	if err != nil {
		s.mu.Unlock()
		return "", err
	}
	if st.state != RenderDone || st.regionID != regionID {
		s.mu.Unlock()
		return "", fmt.Errorf("%w: region %d has no finished %s render", ErrRejected, regionID, m)
	}
	params := *st.params
	ds, err := s.datasetFor(regionID)
	s.mu.Unlock()
	if err != nil {
		return "", err
	}

	recs, err := s.index.Stack(regionID)
	if err != nil {
		return "", err
	}
	var stack []index.ImageRecord
	for _, r := range recs {
		if r.Channel == m.String() && r.Timestep == 0 {
			stack = append(stack, r)
		}
	}
	if len(stack) == 0 {
		return "", fmt.Errorf("%w: region %d has no %s images", ErrUnknownRegion, regionID, m)
	}

	l, err := subregion.ComputeLayout(params, 1<<30)
	if err != nil {
		return "", err
	}
	nm := params.VoxelResolution * 1000
	g := neuroglancer.StackGeometry{
		StepX:      int(math.Round(l.ImageStepX / l.VoxelSize * params.PixelsPerVoxel)),
		StepY:      int(math.Round(l.ImageStepY / l.VoxelSize * params.PixelsPerVoxel)),
		Resolution: [3]float64{nm / params.PixelsPerVoxel, nm / params.PixelsPerVoxel, nm * float64(l.SliceStride)},
	}
	if err := ds.WriteImageStack(stack, g); err != nil {
		return "", fmt.Errorf("convert region %d: %w", regionID, err)
	}
	s.logger.Infof("region %d converted to neuroglancer dataset %s", regionID, ds.ID)
	return ds.ID, nil
}

// datasetFor must be called with s.mu held.
func (s *Simulation) datasetFor(regionID int) (*neuroglancer.Dataset, error) {
	if ds, ok := s.datasets[regionID]; ok {
		return ds, nil
	}
	ds, err := neuroglancer.NewDataset(s.outputDir, s.logger)
	if err != nil {
		return nil, err
	}
	s.datasets[regionID] = ds
	return ds, nil
}

// segmentationFor must be called with s.mu held.
func (s *Simulation) segmentationFor(regionID int) (*segmentationExport, error) {
	ds, err := s.datasetFor(regionID)
	if err != nil {
		return nil, err
	}
	return &segmentationExport{dataset: ds}, nil
}

// write runs on the driver goroutine once per filled subregion.
func (e *segmentationExport) write(sub core.SubRegion, a *volume.VoxelArray, l subregion.Layout) error {
	e.once.Do(func() {
		x, y, z := volume.Extents(sub.Base.Box, l.VoxelSize)
		nm := l.VoxelSize * 1000
		e.geom = neuroglancer.SegmentationGeometry{
			Size:       [3]int{x, y, (z + l.SliceStride - 1) / l.SliceStride},
			Resolution: [3]float64{nm, nm, nm * float64(l.SliceStride)},
			ChunkX:     max(1, int(math.Round(l.SubRegionStepX/l.VoxelSize))),
			ChunkY:     max(1, int(math.Round(l.SubRegionStepY/l.VoxelSize))),
		}
		e.err = e.dataset.WriteSegmentationInfo(e.geom)
	})
	if e.err != nil {
		return e.err
	}
	off := sub.Region.Box.Min.Sub(sub.Base.Box.Min)
	ox := int(math.Round(off.X() / l.VoxelSize))
	oy := int(math.Round(off.Y() / l.VoxelSize))
	return e.dataset.WriteSegmentationSlab(a, ox, oy, sub.LayerOffset, l.SliceStride, e.geom)
}

// Close cancels running renders, waits for them and stops the pools.
func (s *Simulation) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	s.gen.Stop()
	s.img.Stop()
	return s.index.Close()
}
