// Package pool runs units of work on a fixed set of worker goroutines.
//
// Submitters keep a Handle for every queued task and either poll it with
// IsDone or block on Wait. Queue depth is readable at any time for progress
// reporting.
package pool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/braingenix/brainstream/rt/core"
)

// Handle tracks one queued task. It is shared by the submitter and the
// worker that runs the task, and completes exactly once.
type Handle struct {
	done atomic.Bool
	ch   chan struct{}
	once sync.Once
}

func newHandle() *Handle {
	return &Handle{ch: make(chan struct{})}
}

// IsDone reports completion without blocking.
func (h *Handle) IsDone() bool {
	return h.done.Load()
}

// Done returns a channel closed when the task completes.
func (h *Handle) Done() <-chan struct{} {
	return h.ch
}

// Wait blocks until the task completes or ctx ends.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handle) finish() {
	h.once.Do(func() {
		h.done.Store(true)
		close(h.ch)
	})
}

// AllDone reports whether every handle has completed.
func AllDone(handles []*Handle) bool {
	for _, h := range handles {
		if !h.IsDone() {
			return false
		}
	}
	return true
}

type job struct {
	run    func()
	handle *Handle
}

// Pool is a fixed-size set of workers pulling from a FIFO queue.
type Pool struct {
	name   string
	logger core.Logger

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []job
	closed bool

	queued atomic.Int64
	active atomic.Int64

	wg sync.WaitGroup
}

// New starts workers goroutines. name prefixes log lines.
func New(name string, workers int, logger core.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	p := &Pool{
		name:   name,
		logger: core.OrNop(logger),
	}
	p.cond = sync.NewCond(&p.mu)

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker(i)
	}
	p.logger.Debugf("%s: started %d workers", name, workers)
	return p
}

// Enqueue appends fn to the queue and returns its handle. Enqueueing on a
// stopped pool is a caller bug and panics.
func (p *Pool) Enqueue(fn func()) *Handle {
	h := newHandle()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		panic(fmt.Sprintf("%s: enqueue on stopped pool", p.name))
	}
	p.queue = append(p.queue, job{run: fn, handle: h})
	p.queued.Add(1)
	p.mu.Unlock()

	p.cond.Signal()
	return h
}

// QueueSize is the number of tasks not yet picked up by a worker.
func (p *Pool) QueueSize() int {
	return int(p.queued.Load())
}

// Active is the number of tasks currently running.
func (p *Pool) Active() int {
	return int(p.active.Load())
}

// Idle reports whether nothing is queued or running.
func (p *Pool) Idle() bool {
	return p.QueueSize() == 0 && p.Active() == 0
}

// Stop wakes and joins every worker. Running tasks finish; tasks still in
// the queue are abandoned and their handles never complete.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	abandoned := len(p.queue)
	p.queue = nil
	p.queued.Store(0)
	p.mu.Unlock()

	p.cond.Broadcast()
	p.wg.Wait()
	if abandoned > 0 {
		p.logger.Warnf("%s: stopped with %d queued tasks", p.name, abandoned)
	}
}

func (p *Pool) next() (job, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.queue) == 0 && !p.closed {
		p.cond.Wait()
	}
	if p.closed {
		return job{}, false
	}
	j := p.queue[0]
	p.queue[0] = job{}
	p.queue = p.queue[1:]
	p.queued.Add(-1)
	p.active.Add(1)
	return j, true
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for {
		j, ok := p.next()
		if !ok {
			return
		}
		p.run(id, j)
	}
}

func (p *Pool) run(id int, j job) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Errorf("%s: worker %d task panicked: %v", p.name, id, r)
		}
		p.active.Add(-1)
		j.handle.finish()
	}()
	j.run()
}
