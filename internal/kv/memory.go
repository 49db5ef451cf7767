package kv

import (
	"bytes"
	"context"
	"maps"
	"slices"
	"sync"
)

// Memory is an in-process Substrate backed by a sorted slice.
//
// Committed state is immutable: Commit builds a new state from the latest
// one and swaps it in under the write lock. Begin pins the state current at
// that moment, so every read in a transaction sees the same snapshot and a
// transaction never observes a later commit.
//
// Thread-safety: safe for concurrent use.
type Memory struct {
	mu     sync.RWMutex
	state  *memState
	closed bool
}

// memState is one committed version of the keyspace. Never mutated once
// published.
type memState struct {
	keys   [][]byte // sorted ascending
	values map[string][]byte
}

var _ Substrate = (*Memory)(nil)

// NewMemory creates an empty in-memory substrate.
func NewMemory() *Memory {
	return &Memory{state: &memState{values: make(map[string][]byte)}}
}

// Begin opens a transaction over the current committed snapshot.
func (m *Memory) Begin(ctx context.Context, writable bool) (Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	tx := &memTx{m: m, snap: m.state, writable: writable}
	if writable {
		tx.writes = make(map[string]*[]byte)
	}
	return tx, nil
}

// Close marks the substrate closed. Data is discarded.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Len returns the number of committed keys.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.state.keys)
}

func (s *memState) get(key []byte) ([]byte, bool) {
	v, ok := s.values[string(key)]
	if !ok {
		return nil, false
	}
	return bytes.Clone(v), true
}

func (s *memState) scan(start, end []byte) []Pair {
	i, _ := slices.BinarySearchFunc(s.keys, start, bytes.Compare)
	var out []Pair
	for ; i < len(s.keys); i++ {
		k := s.keys[i]
		if end != nil && bytes.Compare(k, end) >= 0 {
			break
		}
		out = append(out, Pair{Key: bytes.Clone(k), Value: bytes.Clone(s.values[string(k)])})
	}
	return out
}

// apply publishes a new state with the write set installed on top of the
// latest committed one. A nil value pointer deletes the key.
func (m *Memory) apply(writes map[string]*[]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	next := &memState{
		keys:   slices.Clone(m.state.keys),
		values: maps.Clone(m.state.values),
	}
	for k, v := range writes {
		key := []byte(k)
		i, found := slices.BinarySearchFunc(next.keys, key, bytes.Compare)
		if v == nil {
			if found {
				next.keys = slices.Delete(next.keys, i, i+1)
				delete(next.values, k)
			}
			continue
		}
		if !found {
			next.keys = slices.Insert(next.keys, i, key)
		}
		next.values[k] = bytes.Clone(*v)
	}
	m.state = next
	return nil
}

type memTx struct {
	m        *Memory
	snap     *memState
	writable bool
	done     bool
	writes   map[string]*[]byte // nil entry = delete
}

func (tx *memTx) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	if tx.done {
		return nil, false, ErrTxDone
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if w, ok := tx.writes[string(key)]; ok {
		if w == nil {
			return nil, false, nil
		}
		return bytes.Clone(*w), true, nil
	}
	v, ok := tx.snap.get(key)
	return v, ok, nil
}

func (tx *memTx) Put(ctx context.Context, key, value []byte) error {
	if err := tx.checkWrite(ctx); err != nil {
		return err
	}
	v := bytes.Clone(value)
	tx.writes[string(key)] = &v
	return nil
}

func (tx *memTx) Delete(ctx context.Context, key []byte) error {
	if err := tx.checkWrite(ctx); err != nil {
		return err
	}
	tx.writes[string(key)] = nil
	return nil
}

func (tx *memTx) Scan(ctx context.Context, start, end []byte) ([]Pair, error) {
	if tx.done {
		return nil, ErrTxDone
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	committed := tx.snap.scan(start, end)
	if len(tx.writes) == 0 {
		return committed, nil
	}

	// Overlay this transaction's own writes on the committed range.
	merged := make(map[string][]byte, len(committed))
	for _, p := range committed {
		merged[string(p.Key)] = p.Value
	}
	for k, w := range tx.writes {
		kb := []byte(k)
		if bytes.Compare(kb, start) < 0 || (end != nil && bytes.Compare(kb, end) >= 0) {
			continue
		}
		if w == nil {
			delete(merged, k)
			continue
		}
		merged[k] = bytes.Clone(*w)
	}

	out := make([]Pair, 0, len(merged))
	for k, v := range merged {
		out = append(out, Pair{Key: []byte(k), Value: v})
	}
	slices.SortFunc(out, func(a, b Pair) int { return bytes.Compare(a.Key, b.Key) })
	return out, nil
}

func (tx *memTx) Commit() error {
	if tx.done {
		return ErrTxDone
	}
	tx.done = true
	if !tx.writable || len(tx.writes) == 0 {
		return nil
	}
	return tx.m.apply(tx.writes)
}

func (tx *memTx) Rollback() error {
	tx.done = true
	tx.writes = nil
	return nil
}

func (tx *memTx) checkWrite(ctx context.Context) error {
	if tx.done {
		return ErrTxDone
	}
	if !tx.writable {
		return ErrReadOnly
	}
	return ctx.Err()
}
