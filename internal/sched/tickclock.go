// internal/sched/tickclock.go

package sched

import (
	"sync"
	"sync/atomic"
	"time"
)

// TickClock counts scheduler ticks atomically and supplies wall time.
// Frames and Seconds predicates read it; only the scheduler advances the count.
type TickClock struct {
	count atomic.Int64
	now   func() time.Time
}

// NewTickClock creates a clock reading wall time from now.
// A nil now falls back to time.Now.
func NewTickClock(now func() time.Time) *TickClock {
	if now == nil {
		now = time.Now
	}
	return &TickClock{now: now}
}

// Count returns the current tick count atomically.
func (c *TickClock) Count() int64 {
	return c.count.Load()
}

// Now returns the clock's current wall time.
func (c *TickClock) Now() time.Time {
	return c.now()
}

// Since returns the wall time elapsed since t.
func (c *TickClock) Since(t time.Time) time.Duration {
	return c.now().Sub(t)
}

func (c *TickClock) advance() int64 {
	return c.count.Add(1)
}

// ManualClock is a wall-time source that only moves when told to.
// It is used to simulate task cost and tick spacing deterministically.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock returns a clock frozen at start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// Now returns the simulated time.
func (m *ManualClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the simulated time forward by d.
func (m *ManualClock) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}
