package streaming

import (
	"testing"

	"github.com/braingenix/brainstream/rt/assets"
	"github.com/braingenix/brainstream/rt/core"
	"github.com/braingenix/brainstream/rt/resource"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testModel builds a model with one texture of n levels; level i is 2^i
// pixels wide and costs 100*(i+1) bytes.
func testModel(name string, n int, pos mgl32.Vec3) *RenderableModel {
	levels := make([]assets.TextureLevel, n)
	for i := range levels {
		levels[i] = assets.TextureLevel{Width: 1 << i, Height: 1 << i, Bytes: uint64(100 * (i + 1))}
	}
	tr := core.NewTransform()
	tr.Position = pos
	return NewRenderableModel(name, tr, mgl32.Vec3{1, 1, 1}, []Texture{{Name: "albedo", Levels: levels}})
}

type panicRecorder struct {
	calls []bool
}

func (p *panicRecorder) SetPanic(enabled bool) { p.calls = append(p.calls, enabled) }

func newTestManager(cfg Config, probe *resource.StaticProbe, up TextureUploader) (*Manager, *resource.Monitor) {
	mon := resource.NewMonitor(1<<30, 1<<30)
	return NewManager(cfg, mon, probe, up, nil), mon
}

func TestEmptySceneQuotas(t *testing.T) {
	a := NewCamera("a", mgl32.Vec3{})
	b := NewCamera("b", mgl32.Vec3{})
	a.StreamingPriority, b.StreamingPriority = 1, 3

	m, mon := newTestManager(DefaultConfig(), &resource.StaticProbe{Free: 1 << 40}, nil)
	stats := m.UpdateStreamingDecisions(nil, []*Camera{a, b})

	assert.Equal(t, []int{2, 8}, stats.Quotas)
	assert.Zero(t, stats.Increases)
	assert.Zero(t, mon.Usage(resource.RAM))
}

func TestComputeQuotasFloorsWeightSum(t *testing.T) {
	c := NewCamera("c", mgl32.Vec3{})
	c.StreamingPriority = 0.5
	// 0.5/max(1,0.5)*10
	assert.Equal(t, []int{5}, ComputeQuotas([]*Camera{c}, 10))
	assert.Empty(t, ComputeQuotas(nil, 10))
}

func TestComputeLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RAMCutoffDistance = 400

	tests := []struct {
		name     string
		quad     bool
		distance float32
		want     int
	}{
		{"at camera", false, 0, 4},
		{"one step out", false, 100, 3},
		{"at cutoff", false, 400, 0},
		{"past cutoff", false, 800, -4},
		{"quadratic near", true, 10, 3},
		{"quadratic far", true, 20, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := cfg
			c.Quadratic = tt.quad
			assert.Equal(t, tt.want, ComputeLevel(c, resource.RAM, tt.distance, 4))
		})
	}
}

func TestLODClampsAndVRAMCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RAMCutoffDistance = 800
	cfg.VRAMCutoffDistance = 100

	near := testModel("near", 8, mgl32.Vec3{0, 0, 0})
	far := testModel("far", 8, mgl32.Vec3{5000, 0, 0})
	mid := testModel("mid", 8, mgl32.Vec3{300, 0, 0})
	for _, mdl := range []*RenderableModel{near, far, mid} {
		mdl.MinLOD, mdl.MaxLOD = 2, 5
	}

	m, _ := newTestManager(cfg, &resource.StaticProbe{Free: 1 << 40}, nil)
	m.UpdateStreamingDecisions([]*RenderableModel{near, far, mid}, []*Camera{NewCamera("main", mgl32.Vec3{})})

	assert.Equal(t, 5, near.Tier(resource.RAM).Target)
	assert.Equal(t, 2, far.Tier(resource.RAM).Target)
	for _, mdl := range []*RenderableModel{near, far, mid} {
		ram, vram := mdl.Tier(resource.RAM), mdl.Tier(resource.VRAM)
		assert.GreaterOrEqual(t, ram.Target, 2, mdl.Name)
		assert.LessOrEqual(t, ram.Target, 5, mdl.Name)
		assert.LessOrEqual(t, vram.Target, ram.Target, mdl.Name)
		assert.Equal(t, LoadingNext, ram.State, mdl.Name)
	}
}

func TestGlobalClampsWhenConfigured(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GlobalMaxLOD = 3
	near := testModel("near", 8, mgl32.Vec3{})

	m, _ := newTestManager(cfg, &resource.StaticProbe{Free: 1 << 40}, nil)
	m.UpdateStreamingDecisions([]*RenderableModel{near}, []*Camera{NewCamera("main", mgl32.Vec3{})})
	assert.Equal(t, 3, near.Tier(resource.RAM).Target)
}

func TestMaxTextureResolutionWalksDown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxTextureResolution = 16
	near := testModel("near", 8, mgl32.Vec3{})

	m, _ := newTestManager(cfg, &resource.StaticProbe{Free: 1 << 40}, nil)
	m.UpdateStreamingDecisions([]*RenderableModel{near}, []*Camera{NewCamera("main", mgl32.Vec3{})})
	// Level 4 is 16 pixels wide.
	assert.Equal(t, 4, near.Tier(resource.RAM).Target)
}

func TestIncreasesRespectQuotaAndBudget(t *testing.T) {
	models := make([]*RenderableModel, 5)
	for i := range models {
		models[i] = testModel("m", 3, mgl32.Vec3{float32(i), 0, 0})
	}
	cfg := DefaultConfig()
	cfg.TotalUpdatesPerFrame = 3

	m, _ := newTestManager(cfg, &resource.StaticProbe{Free: 1 << 40}, nil)
	stats := m.UpdateStreamingDecisions(models, []*Camera{NewCamera("main", mgl32.Vec3{})})
	// Three RAM and three VRAM increases, nearest models first.
	assert.Equal(t, 6, stats.Increases)
	assert.NotEqual(t, NoLevel, models[0].Tier(resource.RAM).Target)
	assert.Equal(t, NoLevel, models[4].Tier(resource.RAM).Target)

	// A budget that fits nothing blocks every increase.
	tight := testModel("tight", 3, mgl32.Vec3{})
	mon := resource.NewMonitor(10, 10)
	m2 := NewManager(DefaultConfig(), mon, nil, nil, nil)
	stats = m2.UpdateStreamingDecisions([]*RenderableModel{tight}, []*Camera{NewCamera("main", mgl32.Vec3{})})
	assert.Zero(t, stats.Increases)
	assert.Equal(t, NoLevel, tight.Tier(resource.RAM).Target)
}

func TestVRAMFollowsAcceptedRAMTarget(t *testing.T) {
	mdl := testModel("m", 5, mgl32.Vec3{})
	// RAM cannot fit level 4, VRAM could.
	mon := resource.NewMonitor(50, 1<<30)
	m := NewManager(DefaultConfig(), mon, nil, nil, nil)

	stats := m.UpdateStreamingDecisions([]*RenderableModel{mdl}, []*Camera{NewCamera("main", mgl32.Vec3{})})

	ram, vram := mdl.Tier(resource.RAM), mdl.Tier(resource.VRAM)
	assert.Zero(t, stats.Increases)
	assert.Equal(t, NoLevel, ram.Target)
	assert.Equal(t, NoLevel, vram.Target)
	assert.LessOrEqual(t, vram.Target, ram.Target)
	assert.Zero(t, mon.Usage(resource.VRAM))
}

func TestDecreaseIsUnconditional(t *testing.T) {
	mdl := testModel("m", 5, mgl32.Vec3{})
	mdl.SetTarget(resource.RAM, 4)
	mdl.SetResident(resource.RAM, 4)

	mon := resource.NewMonitor(0, 0)
	cfg := DefaultConfig()
	cfg.TotalUpdatesPerFrame = 1
	m := NewManager(cfg, mon, nil, nil, nil)

	// Zero budget and a zero quota camera still evict.
	cam := NewCamera("far", mgl32.Vec3{10000, 0, 0})
	cam.StreamingPriority = 0
	stats := m.UpdateStreamingDecisions([]*RenderableModel{mdl}, []*Camera{cam})

	ram := mdl.Tier(resource.RAM)
	assert.Equal(t, 1, stats.Decreases)
	assert.Equal(t, 0, ram.Target)
	assert.Equal(t, Unloading, ram.State)
}

func TestRAMPressureDowngrade(t *testing.T) {
	const warning = 1000
	mdl := testModel("m", 5, mgl32.Vec3{})
	require.Equal(t, 4, mdl.MaxLevel())

	probe := &resource.StaticProbe{Free: 1 << 40}
	cfg := DefaultConfig()
	cfg.RAMWarningBytes = warning
	m, _ := newTestManager(cfg, probe, nil)
	cams := []*Camera{NewCamera("main", mgl32.Vec3{})}

	m.UpdateStreamingDecisions([]*RenderableModel{mdl}, cams)
	require.Equal(t, 4, mdl.Tier(resource.RAM).Target)
	require.Equal(t, 4, mdl.Tier(resource.VRAM).Target)

	probe.Free = warning / 2
	m.CheckHardwareLimitations([]*RenderableModel{mdl})
	assert.Equal(t, 2, mdl.Tier(resource.RAM).Target)
	assert.Equal(t, 2, mdl.Tier(resource.VRAM).Target)
}

func TestVRAMPressureOnlyClampsVRAM(t *testing.T) {
	mdl := testModel("m", 5, mgl32.Vec3{})
	mdl.SetTarget(resource.RAM, 4)
	mdl.SetTarget(resource.VRAM, 4)

	probe := &resource.StaticProbe{Free: 1 << 40, VRAMBudget: 1000, VRAMUsage: 800}
	cfg := DefaultConfig()
	cfg.VRAMWarningBytes = 1000
	m, _ := newTestManager(cfg, probe, nil)

	m.CheckHardwareLimitations([]*RenderableModel{mdl})
	// 200 / (1000/5)
	assert.Equal(t, 1, mdl.Tier(resource.VRAM).Target)
	assert.Equal(t, 4, mdl.Tier(resource.RAM).Target)
}

func TestCriticalRAMSignalsPanic(t *testing.T) {
	probe := &resource.StaticProbe{Free: 10}
	rec := &panicRecorder{}
	cfg := DefaultConfig()
	cfg.RAMCriticalBytes = 100
	m, _ := newTestManager(cfg, probe, rec)

	m.CheckHardwareLimitations(nil)
	probe.Free = 1000
	m.CheckHardwareLimitations(nil)
	assert.Equal(t, []bool{true, false}, rec.calls)
}

func TestUpdateTotalsTracksCommittedLevels(t *testing.T) {
	mdl := testModel("m", 3, mgl32.Vec3{})
	m, mon := newTestManager(DefaultConfig(), &resource.StaticProbe{Free: 1 << 40}, nil)
	m.UpdateStreamingDecisions([]*RenderableModel{mdl}, []*Camera{NewCamera("main", mgl32.Vec3{})})

	assert.Equal(t, mdl.LevelBytes(2), mon.Usage(resource.RAM))
	assert.Equal(t, uint64(300), mon.Usage(resource.RAM))
}
