package engine

import (
	"bytes"
	"context"

	"github.com/roach88/asof/internal/ir"
	"github.com/roach88/asof/internal/kv"
	"github.com/roach88/asof/internal/ledger"
)

// Rebuild regenerates the current rows of type t from the ledger's open
// versions, discarding whatever the table held. Returns the number of live
// rows written.
//
// The table is a cache over the ledger; Rebuild is how it is recovered.
// All mutations wait while it runs.
func (e *Engine) Rebuild(ctx context.Context, t ir.EntityType) (int, error) {
	if err := ir.ValidateKeyPart("entity type", string(t)); err != nil {
		return 0, err
	}

	e.rebuild.Lock()
	defer e.rebuild.Unlock()

	tx, err := e.db.Begin(ctx, true)
	if err != nil {
		return 0, ir.NewStorageError("rebuild: begin", err)
	}
	defer tx.Rollback()

	stale, err := kv.ScanPrefix(ctx, tx, ledger.CurrentPrefix(t))
	if err != nil {
		return 0, ir.NewStorageError("rebuild: scan rows", err)
	}
	for _, p := range stale {
		if err := tx.Delete(ctx, p.Key); err != nil {
			return 0, ir.NewStorageError("rebuild: delete row", err)
		}
	}

	open, err := ledger.OpenVersions(ctx, tx, t)
	if err != nil {
		return 0, err
	}
	for _, v := range open {
		if err := putRow(ctx, tx, rowOf(v)); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, ir.NewStorageError("rebuild: commit", err)
	}
	e.logger.Info("table rebuilt",
		"entity_type", t,
		"dropped", len(stale),
		"rows", len(open),
	)
	return len(open), nil
}

// Purge erases the whole history of type t, current rows included.
// Returns the number of entities removed. All mutations wait while it runs.
func (e *Engine) Purge(ctx context.Context, t ir.EntityType) (int, error) {
	if err := ir.ValidateKeyPart("entity type", string(t)); err != nil {
		return 0, err
	}

	e.rebuild.Lock()
	defer e.rebuild.Unlock()

	tx, err := e.db.Begin(ctx, true)
	if err != nil {
		return 0, ir.NewStorageError("purge: begin", err)
	}
	defer tx.Rollback()

	n, err := ledger.Purge(ctx, tx, t)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, ir.NewStorageError("purge: commit", err)
	}
	e.logger.Info("history purged", "entity_type", t, "entities", n)
	return n, nil
}

// Verify checks every entity of type t: the ledger invariants (see
// ledger.Verify) and agreement between the current table and the open
// versions. An empty result means type t is consistent.
func (e *Engine) Verify(ctx context.Context, t ir.EntityType) ([]ledger.Violation, error) {
	if err := ir.ValidateKeyPart("entity type", string(t)); err != nil {
		return nil, err
	}
	violations := make([]ledger.Violation, 0)
	err := e.view(ctx, func(tx kv.Tx) error {
		ids, err := ledger.Entities(ctx, tx, t)
		if err != nil {
			return err
		}
		known := make(map[ir.EntityID]bool, len(ids))
		for _, id := range ids {
			known[id] = true
			found, err := ledger.Verify(ctx, tx, t, id)
			if err != nil {
				return err
			}
			violations = append(violations, found...)

			vs, err := e.verifyRow(ctx, tx, t, id)
			if err != nil {
				return err
			}
			violations = append(violations, vs...)
		}

		prefix := ledger.CurrentPrefix(t)
		rows, err := kv.ScanPrefix(ctx, tx, prefix)
		if err != nil {
			return ir.NewStorageError("verify: scan rows", err)
		}
		for _, p := range rows {
			id := ir.EntityID(bytes.TrimPrefix(p.Key, prefix))
			if !known[id] {
				violations = append(violations, ledger.Violation{
					EntityType: t,
					EntityID:   id,
					Message:    "current row has no history",
				})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.logger.Debug("verify", "entity_type", t, "violations", len(violations))
	return violations, nil
}

// verifyRow checks that the entity's current row mirrors its open version.
func (e *Engine) verifyRow(ctx context.Context, tx kv.Tx, t ir.EntityType, id ir.EntityID) ([]ledger.Violation, error) {
	open, live, err := ledger.Open(ctx, tx, t, id)
	if err != nil {
		return nil, err
	}
	row, err := getRow(ctx, tx, t, id)
	hasRow := err == nil
	if err != nil && !ir.IsNotFound(err) {
		return nil, err
	}

	violation := func(msg string) []ledger.Violation {
		return []ledger.Violation{{EntityType: t, EntityID: id, VersionID: open.ID, Message: msg}}
	}
	switch {
	case live && !hasRow:
		return violation("live entity missing from current table"), nil
	case !live && hasRow:
		return violation("deleted entity still in current table"), nil
	case live && (row.VersionFrom != open.ValidFrom || !ir.Equal(row.Attributes, open.Attributes)):
		return violation("current row does not match open version"), nil
	}
	return nil, nil
}

// LatestTimestamp returns the greatest boundary recorded in the ledger, or
// 0 when it is empty. A logical clock resumed with NewLogicalClockAt from
// this value never regresses against stored history.
func (e *Engine) LatestTimestamp(ctx context.Context) (ir.Timestamp, error) {
	var latest ir.Timestamp
	err := e.view(ctx, func(tx kv.Tx) error {
		ts, _, err := ledger.Latest(ctx, tx)
		latest = ts
		return err
	})
	return latest, err
}
