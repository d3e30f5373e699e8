package streaming

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/braingenix/brainstream/rt/core"
	"github.com/braingenix/brainstream/rt/resource"
	"github.com/chewxy/math32"
	"golang.org/x/time/rate"
)

const TotalUpdatesPerFrame = 10

// TextureUploader performs the loads and evictions the manager requests.
type TextureUploader interface {
	// SetPanic switches emergency eviction on or off.
	SetPanic(enabled bool)
}

type Config struct {
	TotalUpdatesPerFrame int

	// Quadratic selects the quadratic distance rolloff.
	Quadratic bool
	// Cutoff distances at which a tier drops to level 0.
	RAMCutoffDistance  float32
	VRAMCutoffDistance float32
	// Quadratic rolloff: distance^DistanceExponent +
	// distance*LinearCoefficient + ConstantCoefficient.
	DistanceExponent    float32
	LinearCoefficient   float32
	ConstantCoefficient float32

	// Global clamps; zero disables each bound.
	GlobalMinLOD int
	GlobalMaxLOD int
	// MaxTextureResolution caps level width in pixels; zero disables it.
	MaxTextureResolution int

	RAMWarningBytes  uint64
	VRAMWarningBytes uint64
	RAMCriticalBytes uint64
}

func DefaultConfig() Config {
	return Config{
		TotalUpdatesPerFrame: TotalUpdatesPerFrame,
		RAMCutoffDistance:    500,
		VRAMCutoffDistance:   250,
		DistanceExponent:     2,
	}
}

// PassStats summarizes one call to UpdateStreamingDecisions.
type PassStats struct {
	Quotas    []int
	Increases int
	Decreases int
}

// Manager decides every frame which texture level each model should hold in
// RAM and VRAM. It only writes targets; an uploader moves the resident
// levels.
type Manager struct {
	cfg      Config
	monitor  *resource.Monitor
	probe    resource.SystemMemoryProbe
	uploader TextureUploader
	logger   core.Logger

	mu     sync.Mutex
	models []*RenderableModel

	warnRAM  rate.Sometimes
	warnVRAM rate.Sometimes
}

func NewManager(cfg Config, monitor *resource.Monitor, probe resource.SystemMemoryProbe, uploader TextureUploader, logger core.Logger) *Manager {
	if cfg.TotalUpdatesPerFrame <= 0 {
		cfg.TotalUpdatesPerFrame = TotalUpdatesPerFrame
	}
	m := &Manager{
		cfg:      cfg,
		monitor:  monitor,
		probe:    probe,
		uploader: uploader,
		logger:   core.OrNop(logger),
		warnRAM:  rate.Sometimes{First: 1, Interval: 5 * time.Second},
		warnVRAM: rate.Sometimes{First: 1, Interval: 5 * time.Second},
	}
	monitor.SetSource(m.committedBytes)
	return m
}

func (m *Manager) Config() Config { return m.cfg }

// UpdateStreamingDecisions re-evaluates every model against every camera.
// Cameras are processed in order, each with its own quota.
func (m *Manager) UpdateStreamingDecisions(models []*RenderableModel, cameras []*Camera) PassStats {
	m.mu.Lock()
	m.models = models
	m.mu.Unlock()

	stats := PassStats{Quotas: ComputeQuotas(cameras, m.cfg.TotalUpdatesPerFrame)}

	for ci, cam := range cameras {
		order := sortByDistance(models, cam)
		var used [2]int
		for _, e := range order {
			inc, dec := m.decide(e.model, e.distance, stats.Quotas[ci], &used)
			stats.Increases += inc
			stats.Decreases += dec
		}
	}

	m.monitor.UpdateTotals()
	m.CheckHardwareLimitations(models)
	return stats
}

type ranked struct {
	model    *RenderableModel
	distance float32
}

func sortByDistance(models []*RenderableModel, cam *Camera) []ranked {
	order := make([]ranked, len(models))
	for i, mdl := range models {
		order[i] = ranked{model: mdl, distance: cam.DistanceTo(mdl)}
	}
	sort.SliceStable(order, func(i, j int) bool {
		return order[i].distance < order[j].distance
	})
	return order
}

// ComputeQuotas splits total updates between cameras by streaming priority.
// The priority sum is floored at 1.
func ComputeQuotas(cameras []*Camera, total int) []int {
	var sum float32
	for _, c := range cameras {
		sum += c.StreamingPriority
	}
	sum = math32.Max(1, sum)

	quotas := make([]int, len(cameras))
	for i, c := range cameras {
		quotas[i] = roundLevel(c.StreamingPriority / sum * float32(total))
	}
	return quotas
}

// ComputeLevel applies the distance rolloff for a model with maxLevel as its
// best level. The result is unclamped and may be negative.
func ComputeLevel(cfg Config, kind resource.Kind, distance float32, maxLevel int) int {
	if maxLevel <= 0 {
		return 0
	}
	cutoff := cfg.RAMCutoffDistance
	if kind == resource.VRAM {
		cutoff = cfg.VRAMCutoffDistance
	}
	if cutoff <= 0 {
		return maxLevel
	}

	step := cutoff / float32(maxLevel)
	x := distance
	if cfg.Quadratic {
		x = math32.Pow(distance, cfg.DistanceExponent) + distance*cfg.LinearCoefficient + cfg.ConstantCoefficient
	}
	return maxLevel - roundLevel(x/step)
}

func roundLevel(v float32) int {
	return int(math.RoundToEven(float64(v)))
}

// targetLevel computes the clamped level of one tier.
func (m *Manager) targetLevel(mdl *RenderableModel, kind resource.Kind, distance float32) int {
	maxLevel := mdl.MaxLevel()
	level := ComputeLevel(m.cfg, kind, distance, maxLevel)

	level = max(level, mdl.MinLOD)
	level = min(level, mdl.MaxLOD)
	if m.cfg.GlobalMinLOD != 0 {
		level = max(level, m.cfg.GlobalMinLOD)
	}
	if m.cfg.GlobalMaxLOD != 0 {
		level = min(level, m.cfg.GlobalMaxLOD)
	}
	level = min(max(level, 0), maxLevel)

	if limit := m.cfg.MaxTextureResolution; limit > 0 {
		for level > 0 && mdl.LevelWidth(level) > limit {
			level--
		}
	}
	return level
}

func (m *Manager) decide(mdl *RenderableModel, distance float32, quota int, used *[2]int) (inc, dec int) {
	if mdl.NumLevels() == 0 {
		return 0, 0
	}
	ram := m.targetLevel(mdl, resource.RAM, distance)
	vram := m.targetLevel(mdl, resource.VRAM, distance)

	mdl.mu.Lock()
	defer mdl.mu.Unlock()
	count := func(r int) {
		switch r {
		case 1:
			inc++
		case -1:
			dec++
		}
	}
	count(m.applyTier(mdl, resource.RAM, ram, quota, &used[resource.RAM]))
	// VRAM can never hold more than the RAM target accepted above.
	vram = min(vram, mdl.tiers[resource.RAM].Target)
	count(m.applyTier(mdl, resource.VRAM, vram, quota, &used[resource.VRAM]))
	return inc, dec
}

// applyTier moves one tier's target toward level. The model lock is held.
// It returns 1 for an accepted increase and -1 for an eviction.
func (m *Manager) applyTier(mdl *RenderableModel, kind resource.Kind, level, quota int, used *int) int {
	t := &mdl.tiers[kind]
	switch {
	case t.Current > level:
		// Evictions are never gated.
		m.monitor.Free(kind, mdl.LevelBytes(t.Current))
		t.Target = level
		t.State = Unloading
		return -1
	case level > t.Target && level > t.Current:
		if *used >= quota {
			return 0
		}
		size := mdl.LevelBytes(level)
		if !m.monitor.FitsInBudget(kind, size) {
			return 0
		}
		m.monitor.Allocate(kind, size)
		t.Target = level
		t.State = LoadingNext
		*used++
		return 1
	case level != t.Target:
		// A pending load that is no longer wanted, or a partial unload.
		t.Target = level
		t.State = stateFor(t.Current, t.Target)
	}
	return 0
}

// CheckHardwareLimitations clamps targets when free host or GPU memory runs
// low and toggles panic eviction on critically low RAM.
func (m *Manager) CheckHardwareLimitations(models []*RenderableModel) {
	if m.probe == nil {
		return
	}

	free := m.probe.FreeMemory()
	if w := m.cfg.RAMWarningBytes; w > 0 && free < w {
		m.warnRAM.Do(func() {
			m.logger.Warnf("free RAM %d below warning threshold %d, reducing texture levels", free, w)
		})
		for _, mdl := range models {
			if limit, ok := allowedLevel(free, w, mdl.NumLevels()); ok {
				mdl.clampTargets(limit, resource.RAM, resource.VRAM)
			}
		}
	}

	budget, usage := m.probe.VRAM()
	var freeVRAM uint64
	if budget > usage {
		freeVRAM = budget - usage
	}
	if w := m.cfg.VRAMWarningBytes; w > 0 && freeVRAM < w {
		m.warnVRAM.Do(func() {
			m.logger.Warnf("free VRAM %d below warning threshold %d, reducing texture levels", freeVRAM, w)
		})
		for _, mdl := range models {
			if limit, ok := allowedLevel(freeVRAM, w, mdl.NumLevels()); ok {
				mdl.clampTargets(limit, resource.VRAM)
			}
		}
	}

	critical := m.cfg.RAMCriticalBytes > 0 && free < m.cfg.RAMCriticalBytes
	if critical {
		m.logger.Errorf("free RAM %d below critical threshold %d, evicting textures", free, m.cfg.RAMCriticalBytes)
	}
	if m.uploader != nil {
		m.uploader.SetPanic(critical)
	}
}

// allowedLevel is free/(warning/levels) in integer arithmetic.
func allowedLevel(free, warning uint64, levels int) (int, bool) {
	if levels <= 0 {
		return 0, false
	}
	per := warning / uint64(levels)
	if per == 0 {
		per = 1
	}
	return int(min(free/per, uint64(levels))), true
}

func (m *RenderableModel) clampTargets(limit int, kinds ...resource.Kind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range kinds {
		t := &m.tiers[k]
		if t.Target > limit {
			t.Target = limit
			t.State = stateFor(t.Current, t.Target)
		}
	}
}

// committedBytes feeds the resource monitor with what the models of the
// last pass hold or have been granted.
func (m *Manager) committedBytes(kind resource.Kind) uint64 {
	m.mu.Lock()
	models := m.models
	m.mu.Unlock()

	var total uint64
	for _, mdl := range models {
		total += mdl.LevelBytes(mdl.committed(kind))
	}
	return total
}
