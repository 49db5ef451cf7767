// Package kv defines the abstract durable substrate beneath the versioning
// core: ordered byte keys, transactions, point reads and writes, and range
// scans. internal/store provides the SQLite implementation; Memory is the
// in-process implementation used by tests and the scenario harness.
//
// # Transaction semantics
//
//   - Begin(ctx, false) opens a read-only transaction; writes fail with ErrReadOnly.
//   - Every read in a transaction observes one consistent snapshot of
//     committed state; commits made after the snapshot stay invisible.
//   - A write transaction sees its own uncommitted writes (Get and Scan).
//   - Commit applies every buffered write atomically; readers observe either
//     none or all of them.
//   - Rollback after Commit is a no-op, so `defer tx.Rollback()` is always safe.
package kv

import (
	"bytes"
	"context"
	"errors"
)

var (
	// ErrTxDone is returned by any operation on a committed or rolled back transaction.
	ErrTxDone = errors.New("kv: transaction already finished")

	// ErrReadOnly is returned by Put/Delete on a read-only transaction.
	ErrReadOnly = errors.New("kv: transaction is read-only")

	// ErrClosed is returned by Begin after the substrate is closed.
	ErrClosed = errors.New("kv: substrate closed")
)

// Pair is a key/value returned by Scan.
type Pair struct {
	Key   []byte
	Value []byte
}

// Substrate is a durable ordered key-value store.
type Substrate interface {
	// Begin opens a transaction. writable=false opens a read-only
	// transaction. Reads in either kind observe a single snapshot.
	Begin(ctx context.Context, writable bool) (Tx, error)

	// Close releases resources. Subsequent Begin calls fail with ErrClosed.
	Close() error
}

// Tx is a unit of work against a Substrate.
type Tx interface {
	// Get reads a key. found is false if the key does not exist.
	Get(ctx context.Context, key []byte) (value []byte, found bool, err error)

	// Put writes a key.
	Put(ctx context.Context, key, value []byte) error

	// Delete removes a key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key []byte) error

	// Scan returns all pairs with start <= key < end in ascending key order.
	// A nil end scans to the end of the keyspace.
	Scan(ctx context.Context, start, end []byte) ([]Pair, error)

	// Commit applies the transaction.
	Commit() error

	// Rollback discards the transaction. No-op once finished.
	Rollback() error
}

// PrefixEnd returns the smallest key greater than every key with the given
// prefix, for use as Scan's end bound. Returns nil when no such key exists.
func PrefixEnd(prefix []byte) []byte {
	end := bytes.Clone(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

// ScanPrefix scans every key beginning with prefix.
func ScanPrefix(ctx context.Context, tx Tx, prefix []byte) ([]Pair, error) {
	return tx.Scan(ctx, prefix, PrefixEnd(prefix))
}
