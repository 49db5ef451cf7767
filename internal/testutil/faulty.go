package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/roach88/asof/internal/kv"
)

// ErrInjected is the failure returned by FaultySubstrate.
var ErrInjected = errors.New("injected storage failure")

// FaultySubstrate wraps a kv.Substrate and fails chosen operations, for
// testing that mutations roll back cleanly on storage errors.
type FaultySubstrate struct {
	kv.Substrate

	mu          sync.Mutex
	failPutAt   int // fail the Nth Put across all transactions (1-based); 0 = never
	puts        int
	failCommits bool
	failBegin   bool
}

// NewFaultySubstrate wraps inner. It injects nothing until configured.
func NewFaultySubstrate(inner kv.Substrate) *FaultySubstrate {
	return &FaultySubstrate{Substrate: inner}
}

// FailPutAfter makes the (n+1)th Put from now fail. n=0 fails the next Put.
func (f *FaultySubstrate) FailPutAfter(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts = 0
	f.failPutAt = n + 1
}

// FailCommits makes every Commit fail (the inner transaction is rolled back).
func (f *FaultySubstrate) FailCommits(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failCommits = fail
}

// FailBegin makes every Begin fail.
func (f *FaultySubstrate) FailBegin(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failBegin = fail
}

// Heal clears every injected failure.
func (f *FaultySubstrate) Heal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failPutAt, f.puts = 0, 0
	f.failCommits, f.failBegin = false, false
}

// Begin implements kv.Substrate.
func (f *FaultySubstrate) Begin(ctx context.Context, writable bool) (kv.Tx, error) {
	f.mu.Lock()
	fail := f.failBegin
	f.mu.Unlock()
	if fail {
		return nil, ErrInjected
	}
	tx, err := f.Substrate.Begin(ctx, writable)
	if err != nil {
		return nil, err
	}
	return &faultyTx{Tx: tx, f: f}, nil
}

type faultyTx struct {
	kv.Tx
	f *FaultySubstrate
}

func (t *faultyTx) Put(ctx context.Context, key, value []byte) error {
	t.f.mu.Lock()
	t.f.puts++
	fail := t.f.failPutAt > 0 && t.f.puts == t.f.failPutAt
	t.f.mu.Unlock()
	if fail {
		return ErrInjected
	}
	return t.Tx.Put(ctx, key, value)
}

func (t *faultyTx) Commit() error {
	t.f.mu.Lock()
	fail := t.f.failCommits
	t.f.mu.Unlock()
	if fail {
		t.Tx.Rollback()
		return ErrInjected
	}
	return t.Tx.Commit()
}
