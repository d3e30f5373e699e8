package profiler

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"
)

// Profiler accumulates named stage timings and counters for a render. It is
// safe for concurrent use.
type Profiler struct {
	mu         sync.Mutex
	scopes     map[string]time.Duration
	last       map[string]time.Duration
	startTimes map[string]time.Time
	counts     map[string]int64
	order      []string
}

func New() *Profiler {
	return &Profiler{
		scopes:     make(map[string]time.Duration),
		last:       make(map[string]time.Duration),
		startTimes: make(map[string]time.Time),
		counts:     make(map[string]int64),
	}
}

func (p *Profiler) BeginScope(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.startTimes[name] = time.Now()
	// Keep first-seen order for display.
	if !slices.Contains(p.order, name) {
		p.order = append(p.order, name)
	}
}

func (p *Profiler) EndScope(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if start, ok := p.startTimes[name]; ok {
		d := time.Since(start)
		p.last[name] = d
		p.scopes[name] += d
		delete(p.startTimes, name)
	}
}

// Scope begins name and returns the function that ends it.
func (p *Profiler) Scope(name string) func() {
	p.BeginScope(name)
	return func() { p.EndScope(name) }
}

func (p *Profiler) SetCount(name string, count int64) {
	p.mu.Lock()
	p.counts[name] = count
	p.mu.Unlock()
}

func (p *Profiler) AddCount(name string, delta int64) {
	p.mu.Lock()
	p.counts[name] += delta
	p.mu.Unlock()
}

// Total returns the accumulated time spent in name.
func (p *Profiler) Total(name string) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scopes[name]
}

// Last returns the duration of the most recent completed run of name.
func (p *Profiler) Last(name string) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last[name]
}

func (p *Profiler) Count(name string) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counts[name]
}

// Reset zeroes timings and counters but keeps the display order.
func (p *Profiler) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for k := range p.scopes {
		p.scopes[k] = 0
		p.last[k] = 0
	}
	clear(p.counts)
}

func (p *Profiler) StatsString() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	var sb strings.Builder
	sb.WriteString("Timings:\n")
	for _, name := range p.order {
		ms := float64(p.scopes[name].Microseconds()) / 1000.0
		sb.WriteString(fmt.Sprintf("  %-18s: %.2f ms\n", name, ms))
	}

	sb.WriteString("\nStats:\n")
	keys := make([]string, 0, len(p.counts))
	for k := range p.counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sb.WriteString(fmt.Sprintf("  %-18s: %d\n", k, p.counts[k]))
	}
	return sb.String()
}
