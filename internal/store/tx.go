package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/asof/internal/kv"
)

// sqlTx adapts *sql.Tx to kv.Tx.
type sqlTx struct {
	tx       *sql.Tx
	writable bool
	done     bool
}

// Get reads a single key.
func (t *sqlTx) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	if t.done {
		return nil, false, kv.ErrTxDone
	}
	var value []byte
	err := t.tx.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get: %w", err)
	}
	return value, true, nil
}

// Put upserts a key.
func (t *sqlTx) Put(ctx context.Context, key, value []byte) error {
	if err := t.checkWrite(); err != nil {
		return err
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("put: %w", err)
	}
	return nil
}

// Delete removes a key. Missing keys are not an error.
func (t *sqlTx) Delete(ctx context.Context, key []byte) error {
	if err := t.checkWrite(); err != nil {
		return err
	}
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	return nil
}

// Scan returns start <= key < end in ascending key order.
func (t *sqlTx) Scan(ctx context.Context, start, end []byte) ([]kv.Pair, error) {
	if t.done {
		return nil, kv.ErrTxDone
	}

	var (
		rows *sql.Rows
		err  error
	)
	if end == nil {
		rows, err = t.tx.QueryContext(ctx, `
			SELECT key, value FROM kv
			WHERE key >= ?
			ORDER BY key ASC
		`, start)
	} else {
		rows, err = t.tx.QueryContext(ctx, `
			SELECT key, value FROM kv
			WHERE key >= ? AND key < ?
			ORDER BY key ASC
		`, start, end)
	}
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	defer rows.Close()

	pairs := []kv.Pair{}
	for rows.Next() {
		var p kv.Pair
		if err := rows.Scan(&p.Key, &p.Value); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		pairs = append(pairs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return pairs, nil
}

// Commit commits the underlying transaction.
func (t *sqlTx) Commit() error {
	if t.done {
		return kv.ErrTxDone
	}
	t.done = true
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Rollback aborts the transaction. No-op once finished.
func (t *sqlTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

func (t *sqlTx) checkWrite() error {
	if t.done {
		return kv.ErrTxDone
	}
	if !t.writable {
		return kv.ErrReadOnly
	}
	return nil
}
