package streaming

import (
	"sync"

	"github.com/braingenix/brainstream/rt/assets"
	"github.com/braingenix/brainstream/rt/core"
	"github.com/braingenix/brainstream/rt/resource"
	"github.com/go-gl/mathgl/mgl32"
)

// LoadState is what the uploader is doing for one memory tier of a model.
type LoadState int32

const (
	Idle LoadState = iota
	LoadingNext
	Unloading
)

func (s LoadState) String() string {
	switch s {
	case Idle:
		return "idle"
	case LoadingNext:
		return "loading-next"
	case Unloading:
		return "unloading"
	default:
		return "unknown"
	}
}

// NoLevel marks a tier with nothing resident or requested.
const NoLevel = -1

// Texture is one texture of a model with its mip levels, lowest resolution
// first.
type Texture struct {
	Name   string
	Levels []assets.TextureLevel
}

// Tier tracks one memory tier. Current is written by the uploader, Target
// by the decision pass.
type Tier struct {
	Current int
	Target  int
	State   LoadState
}

// RenderableModel is a streamed asset instance in the live scene.
type RenderableModel struct {
	mu sync.Mutex

	Name      string
	Transform core.Transform
	// Extent is the local bounding box size.
	Extent   mgl32.Vec3
	Textures []Texture

	// MinLOD and MaxLOD are the user clamps.
	MinLOD, MaxLOD int

	tiers [2]Tier
}

func NewRenderableModel(name string, transform core.Transform, extent mgl32.Vec3, textures []Texture) *RenderableModel {
	m := &RenderableModel{
		Name:      name,
		Transform: transform,
		Extent:    extent,
		Textures:  textures,
	}
	m.MaxLOD = m.MaxLevel()
	m.tiers[resource.RAM] = Tier{Current: NoLevel, Target: NoLevel}
	m.tiers[resource.VRAM] = Tier{Current: NoLevel, Target: NoLevel}
	return m
}

// NumLevels is the number of levels every texture of the model has.
func (m *RenderableModel) NumLevels() int {
	if len(m.Textures) == 0 {
		return 0
	}
	n := len(m.Textures[0].Levels)
	for _, t := range m.Textures[1:] {
		n = min(n, len(t.Levels))
	}
	return n
}

func (m *RenderableModel) MaxLevel() int {
	return m.NumLevels() - 1
}

// LevelBytes is the memory cost of holding every texture at level.
func (m *RenderableModel) LevelBytes(level int) uint64 {
	if level < 0 {
		return 0
	}
	var total uint64
	for _, t := range m.Textures {
		if level < len(t.Levels) {
			total += t.Levels[level].Bytes
		}
	}
	return total
}

// LevelWidth is the widest texture at level, in pixels.
func (m *RenderableModel) LevelWidth(level int) int {
	w := 0
	for _, t := range m.Textures {
		if level >= 0 && level < len(t.Levels) {
			w = max(w, t.Levels[level].Width)
		}
	}
	return w
}

func (m *RenderableModel) Tier(kind resource.Kind) Tier {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tiers[kind]
}

// SetTarget overrides the requested level of a tier.
func (m *RenderableModel) SetTarget(kind resource.Kind, level int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &m.tiers[kind]
	t.Target = level
	t.State = stateFor(t.Current, t.Target)
}

// SetResident records the level actually held in a tier.
func (m *RenderableModel) SetResident(kind resource.Kind, level int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &m.tiers[kind]
	t.Current = level
	t.State = stateFor(t.Current, t.Target)
}

// committed is the level whose memory the tier holds or has been granted.
func (m *RenderableModel) committed(kind resource.Kind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.tiers[kind]
	return max(t.Current, t.Target)
}

func stateFor(current, target int) LoadState {
	switch {
	case current < target:
		return LoadingNext
	case current > target:
		return Unloading
	default:
		return Idle
	}
}
