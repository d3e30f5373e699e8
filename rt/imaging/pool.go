package imaging

import (
	"errors"
	"image"
	"math/rand"
	"sync/atomic"

	"github.com/braingenix/brainstream/rt/core"
	"github.com/braingenix/brainstream/rt/pool"
	"github.com/braingenix/brainstream/rt/volume"
)

var ErrNoRenderer = errors.New("imaging: task has no renderer")

// Task renders one tile of one slice and writes it as a PNG.
type Task struct {
	Array  *volume.VoxelArray
	Window Window
	Z      int

	OutputDir string
	Filename  string
	// OutputWidth and OutputHeight are the final pixel size. Zero keeps
	// one pixel per voxel.
	OutputWidth, OutputHeight int

	Renderer SliceRenderer
	Post     PostProcess
	Seed     int64

	// OnWritten, when set, is called with the written path.
	OnWritten func(path string)
}

// Render produces the final image of t without writing it.
func Render(t Task) (*image.Gray, error) {
	if t.Renderer == nil {
		return nil, ErrNoRenderer
	}
	staging := t.Renderer.RenderSlice(t.Array, t.Window, t.Z)
	resized := Resize(staging, t.OutputWidth, t.OutputHeight)
	return t.Post.Apply(resized, rand.New(rand.NewSource(t.Seed))), nil
}

// ImageProcessorPool renders and encodes image tasks on a fixed set of
// workers.
type ImageProcessorPool struct {
	pool   *pool.Pool
	logger core.Logger

	written atomic.Int64
	failed  atomic.Int64
}

func NewImageProcessorPool(workers int, logger core.Logger) *ImageProcessorPool {
	logger = core.OrNop(logger)
	return &ImageProcessorPool{
		pool:   pool.New("ImageProcessorPool", workers, logger),
		logger: logger,
	}
}

func (p *ImageProcessorPool) QueueEncodeOperation(t Task) *pool.Handle {
	return p.pool.Enqueue(func() { p.process(t) })
}

func (p *ImageProcessorPool) QueueSize() int { return p.pool.QueueSize() }
func (p *ImageProcessorPool) Idle() bool     { return p.pool.Idle() }
func (p *ImageProcessorPool) Stop()          { p.pool.Stop() }

func (p *ImageProcessorPool) Written() int64 { return p.written.Load() }
func (p *ImageProcessorPool) Failed() int64  { return p.failed.Load() }

func (p *ImageProcessorPool) process(t Task) {
	img, err := Render(t)
	if err != nil {
		p.logger.Errorf("image %s: %v", t.Filename, err)
		p.failed.Add(1)
		return
	}
	path, err := WritePNG(t.OutputDir, t.Filename, img, p.logger)
	if err != nil {
		p.logger.Errorf("image %s: %v", t.Filename, err)
		p.failed.Add(1)
		return
	}
	p.written.Add(1)
	if t.OnWritten != nil {
		t.OnWritten(path)
	}
}
