package testutil

import (
	"fmt"
	"sync"
)

// SequentialIDGenerator returns prefix-1, prefix-2, ...
//
// The same scenario with a fresh generator produces byte-identical
// histories, which golden snapshots rely on.
//
// Implements engine.IDGenerator. Thread-safety: safe for concurrent use.
type SequentialIDGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialIDGenerator creates a generator. An empty prefix defaults
// to "id".
func NewSequentialIDGenerator(prefix string) *SequentialIDGenerator {
	if prefix == "" {
		prefix = "id"
	}
	return &SequentialIDGenerator{prefix: prefix}
}

// Generate returns the next ID.
func (g *SequentialIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
