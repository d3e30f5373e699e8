package resource

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/braingenix/brainstream/rt/core"
	"golang.org/x/time/rate"
)

// DefaultReservationLimitPercent is the share of system RAM concurrent
// renders may reserve before new work waits.
const DefaultReservationLimitPercent = 90

// Reservations is the process-wide memory accounting shared by all
// concurrently running renders.
type Reservations struct {
	reserved atomic.Uint64
}

func NewReservations() *Reservations {
	return &Reservations{}
}

func (r *Reservations) Reserved() uint64 {
	return r.reserved.Load()
}

func (r *Reservations) Reserve(n uint64) {
	r.reserved.Add(n)
}

// Release returns n bytes. Releasing more than is reserved clamps to zero.
func (r *Reservations) Release(n uint64) {
	for {
		cur := r.reserved.Load()
		next := uint64(0)
		if n < cur {
			next = cur - n
		}
		if r.reserved.CompareAndSwap(cur, next) {
			return
		}
	}
}

// TryReserve reserves n bytes only if the reserved total stays within limit.
func (r *Reservations) TryReserve(n, limit uint64) bool {
	for {
		cur := r.reserved.Load()
		if cur+n > limit && cur != 0 {
			return false
		}
		if r.reserved.CompareAndSwap(cur, cur+n) {
			return true
		}
	}
}

// WaitAndReserve blocks, polling every poll, until n bytes fit within
// limitPercent of total, then reserves them. A lone request larger than the
// limit is admitted once nothing else holds a reservation.
func (r *Reservations) WaitAndReserve(ctx context.Context, n, total uint64, limitPercent float64, poll time.Duration, logger core.Logger) error {
	logger = core.OrNop(logger)
	if limitPercent <= 0 {
		limitPercent = DefaultReservationLimitPercent
	}
	if poll <= 0 {
		poll = time.Second
	}
	limit := uint64(float64(total) * limitPercent / 100)

	status := rate.Sometimes{First: 1, Interval: 10 * time.Second}
	for !r.TryReserve(n, limit) {
		status.Do(func() {
			logger.Infof("waiting for RAM: need %d bytes, %d of %d reserved", n, r.Reserved(), limit)
		})
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(poll):
		}
	}
	return nil
}
