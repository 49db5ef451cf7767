package engine

import (
	"context"
	"fmt"

	"github.com/roach88/asof/internal/ir"
	"github.com/roach88/asof/internal/kv"
	"github.com/roach88/asof/internal/ledger"
	"github.com/roach88/asof/internal/queryir"
)

// Get returns the entity's current row. NOT_FOUND if it is not live.
func (e *Engine) Get(ctx context.Context, t ir.EntityType, id ir.EntityID) (ir.Row, error) {
	var row ir.Row
	err := e.view(ctx, func(tx kv.Tx) error {
		var err error
		row, err = getRow(ctx, tx, t, id)
		return err
	})
	return row, err
}

func getRow(ctx context.Context, tx kv.Tx, t ir.EntityType, id ir.EntityID) (ir.Row, error) {
	if err := ir.ValidateKeyPart("entity type", string(t)); err != nil {
		return ir.Row{}, err
	}
	if err := ir.ValidateKeyPart("entity id", string(id)); err != nil {
		return ir.Row{}, err
	}
	raw, ok, err := tx.Get(ctx, ledger.CurrentKey(t, id))
	if err != nil {
		return ir.Row{}, ir.NewStorageError("get: read row", err)
	}
	if !ok {
		return ir.Row{}, ir.NewNotFoundError(t, id, "entity is not live")
	}
	row, err := decodeRow(raw)
	if err != nil {
		return ir.Row{}, ir.NewStorageError("get", err)
	}
	return row, nil
}

// List returns the current rows of every live entity of type t, ordered
// by entity ID.
func (e *Engine) List(ctx context.Context, t ir.EntityType) ([]ir.Row, error) {
	return e.Find(ctx, t, nil)
}

// Find returns the current rows of type t whose attributes satisfy pred,
// ordered by entity ID. A nil pred matches every live entity.
func (e *Engine) Find(ctx context.Context, t ir.EntityType, pred queryir.Predicate) ([]ir.Row, error) {
	if err := e.validateSelect(t, pred); err != nil {
		return nil, err
	}
	rows := make([]ir.Row, 0)
	err := e.view(ctx, func(tx kv.Tx) error {
		pairs, err := kv.ScanPrefix(ctx, tx, ledger.CurrentPrefix(t))
		if err != nil {
			return ir.NewStorageError("find: scan", err)
		}
		for _, p := range pairs {
			row, err := decodeRow(p.Value)
			if err != nil {
				return ir.NewStorageError("find", err)
			}
			if queryir.Evaluate(pred, row.Attributes) {
				rows = append(rows, row)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.logger.Debug("find", "entity_type", t, "rows", len(rows))
	return rows, nil
}

// AsOf returns the version of the entity valid at ts
// (valid_from <= ts < valid_to).
//
// NOT_FOUND if the entity never existed, ts precedes its creation, or ts
// falls after a delete and before any restore.
func (e *Engine) AsOf(ctx context.Context, t ir.EntityType, id ir.EntityID, ts ir.Timestamp) (ir.VersionRecord, error) {
	var rec ir.VersionRecord
	err := e.view(ctx, func(tx kv.Tx) error {
		var err error
		rec, err = asOf(ctx, tx, t, id, ts)
		return err
	})
	return rec, err
}

func asOf(ctx context.Context, tx kv.Tx, t ir.EntityType, id ir.EntityID, ts ir.Timestamp) (ir.VersionRecord, error) {
	history, err := entityHistory(ctx, tx, t, id)
	if err != nil {
		return ir.VersionRecord{}, err
	}
	for _, v := range history {
		if v.Interval().Contains(ts) {
			return v, nil
		}
	}
	if ts < history[0].ValidFrom {
		return ir.VersionRecord{}, ir.NewNotFoundError(t, id, fmt.Sprintf("entity did not exist yet at %s", ts))
	}
	return ir.VersionRecord{}, ir.NewNotFoundError(t, id, fmt.Sprintf("entity was not live at %s", ts))
}

// Between returns every version of the entity whose interval intersects
// [from, to), ascending by valid_from. An empty range returns no versions;
// from > to is INVALID. NOT_FOUND if the entity never existed.
func (e *Engine) Between(ctx context.Context, t ir.EntityType, id ir.EntityID, from, to ir.Timestamp) ([]ir.VersionRecord, error) {
	if from > to {
		return nil, ir.NewInvalidError(fmt.Sprintf("between: from %s is after to %s", from, to))
	}
	var out []ir.VersionRecord
	err := e.view(ctx, func(tx kv.Tx) error {
		history, err := entityHistory(ctx, tx, t, id)
		if err != nil {
			return err
		}
		out = overlapping(history, from, to)
		return nil
	})
	return out, err
}

// All returns the entity's full history ascending by valid_from, closed
// versions and the open one if present. NOT_FOUND if it never existed.
func (e *Engine) All(ctx context.Context, t ir.EntityType, id ir.EntityID) ([]ir.VersionRecord, error) {
	var out []ir.VersionRecord
	err := e.view(ctx, func(tx kv.Tx) error {
		var err error
		out, err = entityHistory(ctx, tx, t, id)
		return err
	})
	return out, err
}

// AsOfWhere returns, for each entity of q.From, the version valid at ts,
// kept only if that version's attributes satisfy q.Filter. Ordered by
// entity ID. Entities not live at ts are skipped, not reported.
func (e *Engine) AsOfWhere(ctx context.Context, q queryir.Select, ts ir.Timestamp) ([]ir.VersionRecord, error) {
	return e.scanWhere(ctx, q, func(v ir.VersionRecord) bool {
		return v.Interval().Contains(ts)
	})
}

// BetweenWhere returns every version of q.From intersecting [from, to)
// whose attributes satisfy q.Filter, ordered by entity ID then valid_from.
func (e *Engine) BetweenWhere(ctx context.Context, q queryir.Select, from, to ir.Timestamp) ([]ir.VersionRecord, error) {
	if from > to {
		return nil, ir.NewInvalidError(fmt.Sprintf("between: from %s is after to %s", from, to))
	}
	return e.scanWhere(ctx, q, func(v ir.VersionRecord) bool {
		return v.Interval().Overlaps(from, to)
	})
}

// AllWhere returns every version of q.From whose attributes satisfy
// q.Filter, ordered by entity ID then valid_from.
func (e *Engine) AllWhere(ctx context.Context, q queryir.Select) ([]ir.VersionRecord, error) {
	return e.scanWhere(ctx, q, func(ir.VersionRecord) bool { return true })
}

func (e *Engine) scanWhere(ctx context.Context, q queryir.Select, keep func(ir.VersionRecord) bool) ([]ir.VersionRecord, error) {
	if err := e.validateSelect(q.From, q.Filter); err != nil {
		return nil, err
	}
	out := make([]ir.VersionRecord, 0)
	err := e.view(ctx, func(tx kv.Tx) error {
		all, err := ledger.TypeHistory(ctx, tx, q.From)
		if err != nil {
			return err
		}
		for _, v := range all {
			if keep(v) && queryir.Evaluate(q.Filter, v.Attributes) {
				out = append(out, v)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.logger.Debug("temporal scan", "entity_type", q.From, "versions", len(out))
	return out, nil
}

func (e *Engine) validateSelect(t ir.EntityType, pred queryir.Predicate) error {
	var schema *ir.EntitySchema
	if s, ok := e.schemas[t]; ok {
		schema = &s
	}
	return queryir.Validate(queryir.Select{From: t, Filter: pred}, schema)
}

// entityHistory is ledger.History with NOT_FOUND for an unknown entity.
func entityHistory(ctx context.Context, tx kv.Tx, t ir.EntityType, id ir.EntityID) ([]ir.VersionRecord, error) {
	history, err := ledger.History(ctx, tx, t, id)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, ir.NewNotFoundError(t, id, "no such entity")
	}
	return history, nil
}

func overlapping(history []ir.VersionRecord, from, to ir.Timestamp) []ir.VersionRecord {
	out := make([]ir.VersionRecord, 0)
	for _, v := range history {
		if v.Interval().Overlaps(from, to) {
			out = append(out, v)
		}
	}
	return out
}
