package generator

import (
	"sync/atomic"

	"github.com/braingenix/brainstream/rt/core"
	"github.com/braingenix/brainstream/rt/pool"
	"github.com/braingenix/brainstream/rt/volume"
)

// ArrayGeneratorPool rasterizes shapes into voxel arrays on a fixed set of
// workers. It fills whatever part a task names; splitting large shapes is
// up to the submitter (see Subdivide).
type ArrayGeneratorPool struct {
	pool   *pool.Pool
	logger core.Logger

	voxels  atomic.Int64
	skipped atomic.Int64
}

func NewArrayGeneratorPool(workers int, logger core.Logger) *ArrayGeneratorPool {
	logger = core.OrNop(logger)
	return &ArrayGeneratorPool{
		pool:   pool.New("ArrayGeneratorPool", workers, logger),
		logger: logger,
	}
}

// QueueWorkOperation enqueues t. Poll or wait on the handle for completion.
func (g *ArrayGeneratorPool) QueueWorkOperation(t Task) *pool.Handle {
	return g.pool.Enqueue(func() {
		g.voxels.Add(int64(g.generate(t)))
	})
}

func (g *ArrayGeneratorPool) QueueSize() int { return g.pool.QueueSize() }
func (g *ArrayGeneratorPool) Idle() bool     { return g.pool.Idle() }
func (g *ArrayGeneratorPool) Stop()          { g.pool.Stop() }

// VoxelsWritten is the running total of voxels composited by all tasks.
func (g *ArrayGeneratorPool) VoxelsWritten() int64 { return g.voxels.Load() }

// Skipped counts tasks whose shape was malformed or unsupported.
func (g *ArrayGeneratorPool) Skipped() int64 { return g.skipped.Load() }

func (g *ArrayGeneratorPool) generate(t Task) int {
	if t.Array == nil {
		g.logger.Errorf("generation task for parent %d has no array", t.ParentID)
		g.skipped.Add(1)
		return 0
	}
	n, ok := Generate(t)
	if !ok {
		g.logger.Errorf("skipping %s shape of parent %d", kindOf(t.Shape), t.ParentID)
		g.skipped.Add(1)
	}
	return n
}

// Generate runs t on the calling goroutine. ok is false for shapes that
// cannot be rasterized: unsupported kinds and degenerate geometry.
func Generate(t Task) (int, bool) {
	intensity := t.Noise.IntensityFunc()
	switch s := t.Shape.(type) {
	case core.Sphere:
		if s.Radius <= 0 {
			return 0, false
		}
		return volume.FillSphere(t.Array, s, t.Part, t.ParentID, intensity), true
	case core.Box:
		if s.Dimensions.X() <= 0 || s.Dimensions.Y() <= 0 || s.Dimensions.Z() <= 0 {
			return 0, false
		}
		return volume.FillBox(t.Array, s, t.Part, t.ParentID, intensity), true
	case core.Cylinder:
		if s.Length() <= 0 || (s.Radius1 <= 0 && s.Radius2 <= 0) {
			return 0, false
		}
		return volume.FillCylinder(t.Array, s, t.Part, t.ParentID, intensity), true
	default:
		return 0, false
	}
}

func kindOf(s core.Shape) string {
	if s == nil {
		return "empty"
	}
	return s.Kind()
}
