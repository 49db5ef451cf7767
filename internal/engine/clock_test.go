package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/asof/internal/ir"
)

func TestLogicalClock(t *testing.T) {
	c := NewLogicalClock()
	assert.Equal(t, ir.Timestamp(0), c.Current())
	assert.Equal(t, ir.Timestamp(1), c.Now())
	assert.Equal(t, ir.Timestamp(2), c.Now())
	assert.Equal(t, ir.Timestamp(2), c.Current())

	c = NewLogicalClockAt(100)
	assert.Equal(t, ir.Timestamp(101), c.Now(), "resumes after start")
}

func TestLogicalClock_ThreadSafe(t *testing.T) {
	c := NewLogicalClock()
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
				ts := c.Now()
				mu.Lock()
				seen[ts] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, goroutines*calls)
}

func TestWallClock_StrictlyIncreasing(t *testing.T) {
	frozen := time.UnixMicro(1_000_000)
	c := &WallClock{now: func() time.Time { return frozen }}

	assert.Equal(t, ir.Timestamp(1_000_000), c.Now())
	assert.Equal(t, ir.Timestamp(1_000_001), c.Now(), "same microsecond")

	frozen = time.UnixMicro(500)
	assert.Equal(t, ir.Timestamp(1_000_002), c.Now(), "system clock stepped back")

	frozen = time.UnixMicro(2_000_000)
	assert.Equal(t, ir.Timestamp(2_000_000), c.Now())
}

func TestWallClock_RealTime(t *testing.T) {
	c := NewWallClock()
	before := time.Now().UnixMicro()
	ts := c.Now()
	assert.GreaterOrEqual(t, int64(ts), before)
	assert.Greater(t, c.Now(), ts)
}

func TestIDGenerators(t *testing.T) {
	gen := NewFixedGenerator("arthur", "delorean")
	assert.Equal(t, "arthur", gen.Generate())
	assert.Equal(t, "delorean", gen.Generate())
	assert.Equal(t, "id-3", gen.Generate())

	a := UUIDv7Generator{}.Generate()
	b := UUIDv7Generator{}.Generate()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}
