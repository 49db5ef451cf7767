package testutil

import (
	"sync"

	"github.com/roach88/asof/internal/ir"
)

// DeterministicClock is a settable logical clock for tests.
//
// Without intervention it counts 1, 2, 3... Set pins the next reading to
// an exact value, including one that goes backwards, so tests can provoke
// clock regression on purpose.
//
// Implements engine.Clock. Thread-safety: all methods are safe for
// concurrent use via internal mutex.
type DeterministicClock struct {
	mu     sync.Mutex
	last   ir.Timestamp
	pinned *ir.Timestamp
}

// NewDeterministicClock creates a clock whose first reading is 1.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{}
}

// Now returns the pinned value if Set was called since the last reading,
// otherwise the previous reading plus one.
func (c *DeterministicClock) Now() ir.Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pinned != nil {
		c.last = *c.pinned
		c.pinned = nil
		return c.last
	}
	c.last++
	return c.last
}

// Set pins the next reading to ts. Later readings continue from ts.
func (c *DeterministicClock) Set(ts ir.Timestamp) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pinned = &ts
}

// Advance skips d ticks: the next unpinned reading is Current()+d+1.
func (c *DeterministicClock) Advance(d ir.Timestamp) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last += d
}

// Current returns the last reading without advancing.
func (c *DeterministicClock) Current() ir.Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// Reset returns the clock to its initial state.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = 0
	c.pinned = nil
}
