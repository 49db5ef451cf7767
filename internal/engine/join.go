package engine

import (
	"context"
	"fmt"

	"github.com/roach88/asof/internal/ir"
	"github.com/roach88/asof/internal/kv"
)

// Joined is a version with its references resolved as of one timestamp.
type Joined struct {
	Record ir.VersionRecord            `json:"record"`
	At     ir.Timestamp                `json:"at"`
	Refs   map[string]ir.VersionRecord `json:"refs"` // reference field -> referenced version
}

// JoinedRow is a current row with its references resolved against the
// current entity table.
type JoinedRow struct {
	Row  ir.Row            `json:"row"`
	Refs map[string]ir.Row `json:"refs"`
}

// Resolve performs a temporal join: every reference field declared in the
// schema of rec's type is resolved to the referenced entity's version valid
// at at. All lookups share one read transaction, so the result is a single
// consistent snapshot.
//
// INVALID if rec's type has no schema or a reference field does not hold a
// string; NOT_FOUND if a referenced entity was not live at at.
func (e *Engine) Resolve(ctx context.Context, rec ir.VersionRecord, at ir.Timestamp) (Joined, error) {
	var out Joined
	err := e.view(ctx, func(tx kv.Tx) error {
		var err error
		out, err = e.resolve(ctx, tx, rec, at)
		return err
	})
	return out, err
}

// AsOfJoin is AsOf followed by Resolve at the same timestamp, in one read
// transaction.
func (e *Engine) AsOfJoin(ctx context.Context, t ir.EntityType, id ir.EntityID, at ir.Timestamp) (Joined, error) {
	var out Joined
	err := e.view(ctx, func(tx kv.Tx) error {
		rec, err := asOf(ctx, tx, t, id, at)
		if err != nil {
			return err
		}
		out, err = e.resolve(ctx, tx, rec, at)
		return err
	})
	return out, err
}

func (e *Engine) resolve(ctx context.Context, tx kv.Tx, rec ir.VersionRecord, at ir.Timestamp) (Joined, error) {
	refs, err := e.refTargets(rec.EntityType, rec.Attributes)
	if err != nil {
		return Joined{}, err
	}
	out := Joined{Record: rec, At: at, Refs: make(map[string]ir.VersionRecord, len(refs))}
	for _, r := range refs {
		v, err := asOf(ctx, tx, r.t, r.id, at)
		if err != nil {
			return Joined{}, fmt.Errorf("resolve %s.%s: %w", rec.EntityType, r.field, err)
		}
		out.Refs[r.field] = v
	}
	return out, nil
}

// ResolveCurrent resolves row's references against the current entity
// table. NOT_FOUND if a referenced entity is not live.
func (e *Engine) ResolveCurrent(ctx context.Context, row ir.Row) (JoinedRow, error) {
	refs, err := e.refTargets(row.EntityType, row.Attributes)
	if err != nil {
		return JoinedRow{}, err
	}
	out := JoinedRow{Row: row, Refs: make(map[string]ir.Row, len(refs))}
	err = e.view(ctx, func(tx kv.Tx) error {
		for _, r := range refs {
			ref, err := getRow(ctx, tx, r.t, r.id)
			if err != nil {
				return fmt.Errorf("resolve %s.%s: %w", row.EntityType, r.field, err)
			}
			out.Refs[r.field] = ref
		}
		return nil
	})
	if err != nil {
		return JoinedRow{}, err
	}
	return out, nil
}

type refTarget struct {
	field string
	t     ir.EntityType
	id    ir.EntityID
}

// refTargets lists the references held in attrs, in field name order.
func (e *Engine) refTargets(t ir.EntityType, attrs ir.Object) ([]refTarget, error) {
	schema, ok := e.schemas[t]
	if !ok {
		return nil, ir.NewInvalidError(fmt.Sprintf("no schema registered for %s; cannot resolve references", t))
	}
	out := make([]refTarget, 0, len(schema.Refs))
	for _, field := range schema.RefFields() {
		id, ok := attrs[field].(ir.String)
		if !ok {
			return nil, ir.NewInvalidError(fmt.Sprintf("%s.%s: reference must be a string ID", t, field))
		}
		out = append(out, refTarget{field: field, t: ir.EntityType(schema.Refs[field]), id: ir.EntityID(id)})
	}
	return out, nil
}
