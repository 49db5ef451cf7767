package engine

import (
	"context"
	"fmt"

	"github.com/roach88/asof/internal/ir"
	"github.com/roach88/asof/internal/kv"
	"github.com/roach88/asof/internal/ledger"
)

// mutation performs the ledger and table writes of one operation inside tx,
// stamped at now.
type mutation func(ctx context.Context, tx kv.Tx, now ir.Timestamp) (ir.VersionRecord, error)

// mutate runs fn as one atomic unit under the entity's lock.
//
// The clock is read after the lock is acquired, so stamps for one entity
// follow lock order. Any error rolls the transaction back, leaving the
// substrate exactly as it was before the call.
func (e *Engine) mutate(ctx context.Context, op string, t ir.EntityType, id ir.EntityID, fn mutation) (ir.VersionRecord, error) {
	if err := ir.ValidateKeyPart("entity type", string(t)); err != nil {
		return ir.VersionRecord{}, err
	}
	if err := ir.ValidateKeyPart("entity id", string(id)); err != nil {
		return ir.VersionRecord{}, err
	}

	e.rebuild.RLock()
	defer e.rebuild.RUnlock()

	unlock := e.locks.lock(t, id)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return ir.VersionRecord{}, fmt.Errorf("%s: %w", op, err)
	}

	tx, err := e.db.Begin(ctx, true)
	if err != nil {
		return ir.VersionRecord{}, ir.NewStorageError(op+": begin", err)
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if err := tx.Rollback(); err != nil {
			e.logger.Error("rollback failed",
				"op", op,
				"entity_type", t,
				"entity_id", id,
				"error", err,
			)
		}
	}()

	now := e.clock.Now()
	rec, err := fn(ctx, tx, now)
	if err != nil {
		e.logger.Debug("mutation rejected",
			"op", op,
			"entity_type", t,
			"entity_id", id,
			"ts", int64(now),
			"error", err,
		)
		return ir.VersionRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		return ir.VersionRecord{}, ir.NewStorageError(op+": commit", err)
	}
	committed = true

	e.logger.Info("mutation committed",
		"op", op,
		"entity_type", t,
		"entity_id", id,
		"ts", int64(now),
		"version", rec.ID,
	)
	return rec, nil
}

// Create inserts a new entity with a generated ID and returns its first
// version. The new ID is rec.EntityID.
func (e *Engine) Create(ctx context.Context, t ir.EntityType, attrs ir.Object) (ir.VersionRecord, error) {
	return e.CreateWithID(ctx, t, ir.EntityID(e.ids.Generate()), attrs)
}

// CreateWithID inserts a new entity under a caller-chosen ID.
//
// Returns CONFLICT if the ID already has history: a live entity must be
// updated, a deleted one restored.
func (e *Engine) CreateWithID(ctx context.Context, t ir.EntityType, id ir.EntityID, attrs ir.Object) (ir.VersionRecord, error) {
	if err := e.checkAttributes(t, attrs); err != nil {
		return ir.VersionRecord{}, err
	}
	return e.mutate(ctx, "create", t, id, func(ctx context.Context, tx kv.Tx, now ir.Timestamp) (ir.VersionRecord, error) {
		_, deleted, err := ledger.LastClosed(ctx, tx, t, id)
		if err != nil {
			return ir.VersionRecord{}, err
		}
		if deleted {
			if _, open, err := ledger.Open(ctx, tx, t, id); err != nil {
				return ir.VersionRecord{}, err
			} else if !open {
				return ir.VersionRecord{}, ir.NewConflictError(t, id, "entity was deleted; restore it instead")
			}
		}

		rec, err := ledger.Append(ctx, tx, t, id, attrs, now)
		if err != nil {
			return ir.VersionRecord{}, err
		}
		if err := putRow(ctx, tx, rowOf(rec)); err != nil {
			return ir.VersionRecord{}, err
		}
		return rec, nil
	})
}

// Update closes the entity's open version at now and opens a new one with
// attrs. Returns the new version.
//
// Returns NOT_FOUND if the entity is not live and CLOCK_REGRESSION if now
// does not advance past the open version's valid_from.
func (e *Engine) Update(ctx context.Context, t ir.EntityType, id ir.EntityID, attrs ir.Object) (ir.VersionRecord, error) {
	if err := e.checkAttributes(t, attrs); err != nil {
		return ir.VersionRecord{}, err
	}
	return e.mutate(ctx, "update", t, id, func(ctx context.Context, tx kv.Tx, now ir.Timestamp) (ir.VersionRecord, error) {
		open, ok, err := ledger.Open(ctx, tx, t, id)
		if err != nil {
			return ir.VersionRecord{}, err
		}
		if !ok {
			return ir.VersionRecord{}, ir.NewNotFoundError(t, id, "entity is not live")
		}
		if now <= open.ValidFrom {
			return ir.VersionRecord{}, ir.NewClockRegressionError(t, id, now, open.ValidFrom)
		}

		if _, err := ledger.CloseOpen(ctx, tx, t, id, now); err != nil {
			return ir.VersionRecord{}, err
		}
		rec, err := ledger.Append(ctx, tx, t, id, attrs, now)
		if err != nil {
			return ir.VersionRecord{}, err
		}
		if err := putRow(ctx, tx, rowOf(rec)); err != nil {
			return ir.VersionRecord{}, err
		}
		return rec, nil
	})
}

// Delete closes the entity's open version at now and removes its current
// row. No new version is opened. Returns the closed version.
func (e *Engine) Delete(ctx context.Context, t ir.EntityType, id ir.EntityID) (ir.VersionRecord, error) {
	return e.mutate(ctx, "delete", t, id, func(ctx context.Context, tx kv.Tx, now ir.Timestamp) (ir.VersionRecord, error) {
		closed, err := ledger.CloseOpen(ctx, tx, t, id, now)
		if err != nil {
			return ir.VersionRecord{}, err
		}
		if err := tx.Delete(ctx, ledger.CurrentKey(t, id)); err != nil {
			return ir.VersionRecord{}, ir.NewStorageError("delete current row", err)
		}
		return closed, nil
	})
}

// Restore brings a deleted entity back under its original ID using the
// attributes of its last closed version, following the engine's
// RestorePolicy. Returns the now-open version.
//
// Returns CONFLICT if the entity is live and NOT_FOUND if it never existed.
// Under RestoreNewInterval, CLOCK_REGRESSION if now precedes the delete.
func (e *Engine) Restore(ctx context.Context, t ir.EntityType, id ir.EntityID) (ir.VersionRecord, error) {
	return e.mutate(ctx, "restore", t, id, func(ctx context.Context, tx kv.Tx, now ir.Timestamp) (ir.VersionRecord, error) {
		var (
			rec ir.VersionRecord
			err error
		)
		switch e.restore {
		case RestoreReopen:
			rec, err = ledger.Reopen(ctx, tx, t, id)
		default:
			rec, err = e.restoreNewInterval(ctx, tx, t, id, now)
		}
		if err != nil {
			return ir.VersionRecord{}, err
		}
		if err := putRow(ctx, tx, rowOf(rec)); err != nil {
			return ir.VersionRecord{}, err
		}
		return rec, nil
	})
}

func (e *Engine) restoreNewInterval(ctx context.Context, tx kv.Tx, t ir.EntityType, id ir.EntityID, now ir.Timestamp) (ir.VersionRecord, error) {
	if _, open, err := ledger.Open(ctx, tx, t, id); err != nil {
		return ir.VersionRecord{}, err
	} else if open {
		return ir.VersionRecord{}, ir.NewConflictError(t, id, "entity is live")
	}
	last, ok, err := ledger.LastClosed(ctx, tx, t, id)
	if err != nil {
		return ir.VersionRecord{}, err
	}
	if !ok {
		return ir.VersionRecord{}, ir.NewNotFoundError(t, id, "no deleted entity to restore")
	}
	// Touching the deleted interval is allowed; overlapping it is not.
	if now < last.ValidTo {
		return ir.VersionRecord{}, ir.NewClockRegressionError(t, id, now, last.ValidTo)
	}
	if err := e.checkAttributes(t, last.Attributes); err != nil {
		return ir.VersionRecord{}, err
	}
	return ledger.Append(ctx, tx, t, id, last.Attributes, now)
}
