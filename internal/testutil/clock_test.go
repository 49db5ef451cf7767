package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/asof/internal/ir"
)

func TestDeterministicClock_Counts(t *testing.T) {
	clock := NewDeterministicClock()
	assert.Equal(t, ir.Timestamp(0), clock.Current())
	assert.Equal(t, ir.Timestamp(1), clock.Now())
	assert.Equal(t, ir.Timestamp(2), clock.Now())
	assert.Equal(t, ir.Timestamp(2), clock.Current())
}

func TestDeterministicClock_SetPinsNextReading(t *testing.T) {
	clock := NewDeterministicClock()
	clock.Set(10)
	assert.Equal(t, ir.Timestamp(10), clock.Now())
	assert.Equal(t, ir.Timestamp(11), clock.Now(), "continues from pinned value")

	clock.Set(3)
	assert.Equal(t, ir.Timestamp(3), clock.Now(), "regression is allowed")
}

func TestDeterministicClock_AdvanceAndReset(t *testing.T) {
	clock := NewDeterministicClock()
	clock.Now()
	clock.Advance(5)
	assert.Equal(t, ir.Timestamp(7), clock.Now())

	clock.Set(100)
	clock.Reset()
	assert.Equal(t, ir.Timestamp(1), clock.Now(), "reset drops the pin")
}

func TestDeterministicClock_ThreadSafe(t *testing.T) {
	clock := NewDeterministicClock()
	const goroutines = 50
	const calls = 100

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[ir.Timestamp]bool)
	)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < calls; j++ {
				ts := clock.Now()
				mu.Lock()
				seen[ts] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, goroutines*calls, "every reading unique")
	assert.Equal(t, ir.Timestamp(goroutines*calls), clock.Current())
}
