package engine

import (
	"sync"

	"github.com/roach88/asof/internal/ir"
)

type lockKey struct {
	t  ir.EntityType
	id ir.EntityID
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// lockTable hands out one mutex per entity. Entries are reference counted
// and dropped when the last holder or waiter releases, so the table only
// holds entities with in-flight mutations.
type lockTable struct {
	mu      sync.Mutex
	entries map[lockKey]*lockEntry
}

func newLockTable() *lockTable {
	return &lockTable{entries: make(map[lockKey]*lockEntry)}
}

// lock blocks until the caller holds the entity's mutex and returns the
// matching unlock function.
func (lt *lockTable) lock(t ir.EntityType, id ir.EntityID) func() {
	k := lockKey{t: t, id: id}

	lt.mu.Lock()
	e, ok := lt.entries[k]
	if !ok {
		e = &lockEntry{}
		lt.entries[k] = e
	}
	e.refs++
	lt.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()

		lt.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(lt.entries, k)
		}
		lt.mu.Unlock()
	}
}

// size returns the number of entities with in-flight mutations.
func (lt *lockTable) size() int {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	return len(lt.entries)
}
