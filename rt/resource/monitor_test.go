package resource

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitorFitsInBudget(t *testing.T) {
	m := NewMonitor(100, 50)

	assert.True(t, m.FitsInBudget(RAM, 100))
	assert.False(t, m.FitsInBudget(RAM, 101))
	assert.True(t, m.FitsInBudget(VRAM, 50))

	m.Allocate(RAM, 60)
	assert.True(t, m.FitsInBudget(RAM, 40))
	assert.False(t, m.FitsInBudget(RAM, 41))
	assert.Equal(t, uint64(60), m.Usage(RAM))
	assert.Equal(t, uint64(0), m.Usage(VRAM), "budgets are independent")
}

func TestMonitorSoftAccounting(t *testing.T) {
	m := NewMonitor(10, 10)
	m.Allocate(RAM, 25)
	assert.Equal(t, uint64(25), m.Usage(RAM))
	assert.False(t, m.FitsInBudget(RAM, 0))
}

func TestMonitorUsageNeverNegative(t *testing.T) {
	m := NewMonitor(100, 100)
	ops := []struct {
		alloc bool
		size  uint64
	}{
		{true, 10}, {false, 4}, {false, 50}, {true, 3}, {false, 3}, {false, 1},
	}
	for _, op := range ops {
		if op.alloc {
			m.Allocate(RAM, op.size)
		} else {
			m.Free(RAM, op.size)
		}
		usage := m.Usage(RAM)
		assert.LessOrEqual(t, usage, uint64(13))
		assert.Equal(t, usage+5 <= 100, m.FitsInBudget(RAM, 5))
	}
	assert.Equal(t, uint64(0), m.Usage(RAM))
}

func TestMonitorUpdateTotals(t *testing.T) {
	m := NewMonitor(100, 100)
	m.Allocate(RAM, 70)
	m.UpdateTotals()
	assert.Equal(t, uint64(70), m.Usage(RAM), "no source keeps running totals")

	m.SetSource(func(kind Kind) uint64 {
		if kind == RAM {
			return 12
		}
		return 34
	})
	m.UpdateTotals()
	assert.Equal(t, uint64(12), m.Usage(RAM))
	assert.Equal(t, uint64(34), m.Usage(VRAM))
}

func TestReservationsRelease(t *testing.T) {
	r := NewReservations()
	r.Reserve(10)
	r.Release(4)
	assert.Equal(t, uint64(6), r.Reserved())
	r.Release(100)
	assert.Equal(t, uint64(0), r.Reserved())
}

func TestWaitAndReserveBlocksUntilReleased(t *testing.T) {
	r := NewReservations()
	r.Reserve(80)

	done := make(chan error, 1)
	go func() {
		done <- r.WaitAndReserve(context.Background(), 50, 100, 90, 5*time.Millisecond, nil)
	}()

	select {
	case <-done:
		t.Fatal("reservation should wait while 80+50 exceeds 90% of 100")
	case <-time.After(30 * time.Millisecond):
	}

	r.Release(80)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("reservation did not proceed after release")
	}
	assert.Equal(t, uint64(50), r.Reserved())
}

func TestWaitAndReserveCancelled(t *testing.T) {
	r := NewReservations()
	r.Reserve(95)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := r.WaitAndReserve(ctx, 10, 100, 90, time.Millisecond, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, uint64(95), r.Reserved())
}

func TestStaticProbe(t *testing.T) {
	p := &StaticProbe{Total: 8, Free: 4, VRAMBudget: 2, VRAMUsage: 1}
	var probe SystemMemoryProbe = p
	b, u := probe.VRAM()
	assert.Equal(t, uint64(8), probe.TotalMemory())
	assert.Equal(t, uint64(4), probe.FreeMemory())
	assert.Equal(t, uint64(2), b)
	assert.Equal(t, uint64(1), u)
}
