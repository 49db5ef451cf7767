package engine

import (
	"sync/atomic"
	"time"

	"github.com/roach88/asof/internal/ir"
)

// Clock stamps version boundaries.
//
// Implementations must be safe for concurrent use. Readings should be
// non-decreasing; the engine rejects a reading that does not advance past
// an entity's open version with CLOCK_REGRESSION instead of writing a
// zero-length interval.
type Clock interface {
	Now() ir.Timestamp
}

// LogicalClock is a counter: every Now returns the previous reading plus one.
//
// Used for deterministic histories (tests, scenarios, the logical clock
// config option). Safe for concurrent use.
type LogicalClock struct {
	seq atomic.Int64
}

// NewLogicalClock creates a clock whose first reading is 1.
func NewLogicalClock() *LogicalClock {
	return &LogicalClock{}
}

// NewLogicalClockAt creates a clock whose first reading is start+1.
// Used to resume after the latest timestamp already in the ledger.
func NewLogicalClockAt(start ir.Timestamp) *LogicalClock {
	c := &LogicalClock{}
	c.seq.Store(int64(start))
	return c
}

// Now advances the clock and returns the new reading.
func (c *LogicalClock) Now() ir.Timestamp {
	return ir.Timestamp(c.seq.Add(1))
}

// Current returns the last reading without advancing.
func (c *LogicalClock) Current() ir.Timestamp {
	return ir.Timestamp(c.seq.Load())
}

// WallClock reads Unix microseconds from the system clock.
//
// Readings are forced strictly increasing across calls, so two mutations
// inside the same microsecond, or a backwards step of the system clock,
// still produce ordered timestamps.
type WallClock struct {
	last atomic.Int64
	now  func() time.Time
}

// NewWallClock creates a clock over time.Now.
func NewWallClock() *WallClock {
	return &WallClock{now: time.Now}
}

// Now returns max(system time, previous reading + 1) in Unix microseconds.
func (c *WallClock) Now() ir.Timestamp {
	for {
		prev := c.last.Load()
		next := c.now().UnixMicro()
		if next <= prev {
			next = prev + 1
		}
		if c.last.CompareAndSwap(prev, next) {
			return ir.Timestamp(next)
		}
	}
}
