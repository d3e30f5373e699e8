package resource

import "sync"

// Kind selects one of the two independent memory budgets.
type Kind int

const (
	RAM Kind = iota
	VRAM
	numKinds
)

func (k Kind) String() string {
	switch k {
	case RAM:
		return "RAM"
	case VRAM:
		return "VRAM"
	default:
		return "unknown"
	}
}

// UsageSource reports the bytes actually resident for a kind. The monitor
// resynchronizes its running totals from it in UpdateTotals.
type UsageSource func(kind Kind) uint64

// Monitor is the single source of truth for "does this many bytes fit".
//
// Accounting is soft: Allocate never checks the budget, so a caller that
// skips FitsInBudget simply drives usage above the budget.
type Monitor struct {
	mu     sync.Mutex
	budget [numKinds]uint64
	usage  [numKinds]uint64
	source UsageSource
}

func NewMonitor(ramBudget, vramBudget uint64) *Monitor {
	m := &Monitor{}
	m.budget[RAM] = ramBudget
	m.budget[VRAM] = vramBudget
	return m
}

func (m *Monitor) SetSource(src UsageSource) {
	m.mu.Lock()
	m.source = src
	m.mu.Unlock()
}

func (m *Monitor) SetBudget(kind Kind, bytes uint64) {
	m.mu.Lock()
	m.budget[kind] = bytes
	m.mu.Unlock()
}

func (m *Monitor) Budget(kind Kind) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.budget[kind]
}

func (m *Monitor) Usage(kind Kind) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.usage[kind]
}

// FitsInBudget reports whether usage+size stays within the budget.
func (m *Monitor) FitsInBudget(kind Kind, size uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.usage[kind]+size <= m.budget[kind]
}

func (m *Monitor) Allocate(kind Kind, size uint64) {
	m.mu.Lock()
	m.usage[kind] += size
	m.mu.Unlock()
}

// Free releases size bytes. Usage saturates at zero.
func (m *Monitor) Free(kind Kind, size uint64) {
	m.mu.Lock()
	if size > m.usage[kind] {
		m.usage[kind] = 0
	} else {
		m.usage[kind] -= size
	}
	m.mu.Unlock()
}

// UpdateTotals replaces the running totals with what the source reports.
// Without a source the running totals are kept.
func (m *Monitor) UpdateTotals() {
	m.mu.Lock()
	src := m.source
	m.mu.Unlock()
	if src == nil {
		return
	}
	ram, vram := src(RAM), src(VRAM)

	m.mu.Lock()
	m.usage[RAM] = ram
	m.usage[VRAM] = vram
	m.mu.Unlock()
}
