package streaming

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/braingenix/brainstream/rt/assets"
	"github.com/braingenix/brainstream/rt/core"
	"github.com/braingenix/brainstream/rt/resource"
)

// AsyncUploader moves resident levels toward the manager's targets on its
// own goroutine, one level per tier per tick. Level blobs are read through
// the asset store; handing them to a GPU backend is left to OnLoaded.
type AsyncUploader struct {
	store    assets.Store
	logger   core.Logger
	interval time.Duration

	panicking atomic.Bool

	mu     sync.Mutex
	models []*RenderableModel

	// OnLoaded, when set, receives the blobs of a level that became
	// resident.
	OnLoaded func(m *RenderableModel, kind resource.Kind, level int, blobs [][]byte)

	loaded  atomic.Int64
	evicted atomic.Int64
}

func NewAsyncUploader(store assets.Store, interval time.Duration, logger core.Logger) *AsyncUploader {
	if interval <= 0 {
		interval = 16 * time.Millisecond
	}
	return &AsyncUploader{
		store:    store,
		logger:   core.OrNop(logger),
		interval: interval,
	}
}

func (u *AsyncUploader) SetModels(models []*RenderableModel) {
	u.mu.Lock()
	u.models = models
	u.mu.Unlock()
}

func (u *AsyncUploader) SetPanic(enabled bool) {
	if u.panicking.Swap(enabled) != enabled && enabled {
		u.logger.Warnf("texture uploader entering panic mode")
	}
}

func (u *AsyncUploader) InPanic() bool { return u.panicking.Load() }

// Loaded and Evicted count level transitions since creation.
func (u *AsyncUploader) Loaded() int64  { return u.loaded.Load() }
func (u *AsyncUploader) Evicted() int64 { return u.evicted.Load() }

// Run ticks until ctx is done.
func (u *AsyncUploader) Run(ctx context.Context) {
	ticker := time.NewTicker(u.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			u.Tick()
		}
	}
}

// Tick performs one round of uploads and evictions.
func (u *AsyncUploader) Tick() {
	u.mu.Lock()
	models := u.models
	u.mu.Unlock()

	if u.panicking.Load() {
		for _, m := range models {
			u.dropAll(m)
		}
		return
	}

	for _, m := range models {
		// RAM first so VRAM can follow in the same tick.
		u.step(m, resource.RAM)
		u.step(m, resource.VRAM)
	}
}

// dropAll releases everything above the lowest level.
func (u *AsyncUploader) dropAll(m *RenderableModel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.tiers {
		t := &m.tiers[k]
		if t.Current > 0 {
			t.Current = 0
			u.evicted.Add(1)
		}
		t.Target = min(t.Target, 0)
		t.State = stateFor(t.Current, t.Target)
	}
}

func (u *AsyncUploader) step(m *RenderableModel, kind resource.Kind) {
	m.mu.Lock()
	t := m.tiers[kind]
	if t.Current > t.Target {
		m.tiers[kind].Current = t.Target
		m.tiers[kind].State = Idle
		m.mu.Unlock()
		u.evicted.Add(1)
		return
	}
	next := t.Current + 1
	if t.Current >= t.Target || (kind == resource.VRAM && next > m.tiers[resource.RAM].Current) {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	blobs, err := u.readLevel(m, next)
	if err != nil {
		u.logger.Errorf("loading level %d of %s: %v", next, m.Name, err)
		return
	}

	m.mu.Lock()
	// The target may have dropped while reading.
	if m.tiers[kind].Target < next {
		m.mu.Unlock()
		return
	}
	m.tiers[kind].Current = next
	m.tiers[kind].State = stateFor(next, m.tiers[kind].Target)
	m.mu.Unlock()
	u.loaded.Add(1)

	if u.OnLoaded != nil {
		u.OnLoaded(m, kind, next, blobs)
	}
}

func (u *AsyncUploader) readLevel(m *RenderableModel, level int) ([][]byte, error) {
	blobs := make([][]byte, 0, len(m.Textures))
	for _, tex := range m.Textures {
		if level >= len(tex.Levels) {
			continue
		}
		id := tex.Levels[level].ID
		if id == "" || u.store == nil {
			blobs = append(blobs, nil)
			continue
		}
		b, err := u.store.ReadAsset(id)
		if err != nil {
			return nil, err
		}
		blobs = append(blobs, b)
	}
	return blobs, nil
}
