package engine

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// IDGenerator mints entity IDs for Create.
// Implemented by UUIDv7Generator (production) and FixedGenerator (tests).
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 entity IDs.
//
// UUIDv7 embeds a timestamp in the most significant bits, so entities list
// in creation order under the ledger's byte-ordered keys.
//
// Thread-safety: stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
//
// Panics if UUID generation fails (should never happen in practice).
func (g UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined IDs, then falls back to a counter.
//
// This enables deterministic histories and golden comparisons.
// Thread-safety: safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu     sync.Mutex
	ids    []string
	idx    int
	prefix string
}

// NewFixedGenerator creates a generator that returns ids in order.
//
// Example:
//
//	gen := NewFixedGenerator("arthur", "delorean")
//	gen.Generate() // "arthur"
//	gen.Generate() // "delorean"
//	gen.Generate() // "id-3"
func NewFixedGenerator(ids ...string) *FixedGenerator {
	return &FixedGenerator{ids: ids, prefix: "id-"}
}

// Generate returns the next predetermined ID, or prefix+N once the list is
// exhausted, where N is the 1-based call count.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.idx++
	if g.idx <= len(g.ids) {
		return g.ids[g.idx-1]
	}
	return fmt.Sprintf("%s%d", g.prefix, g.idx)
}
