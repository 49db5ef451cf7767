package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/roach88/asof/internal/ir"
	"github.com/roach88/asof/internal/kv"
)

// EncodeRecord returns the canonical JSON stored under a version key.
func EncodeRecord(v ir.VersionRecord) ([]byte, error) {
	attrs := v.Attributes
	if attrs == nil {
		attrs = ir.Object{}
	}
	return ir.MarshalCanonical(ir.Object{
		"id":          ir.String(v.ID),
		"entity_type": ir.String(v.EntityType),
		"entity_id":   ir.String(v.EntityID),
		"attributes":  attrs,
		"valid_from":  ir.Int(v.ValidFrom),
		"valid_to":    ir.Int(v.ValidTo),
	})
}

// DecodeRecord parses a stored version record.
func DecodeRecord(data []byte) (ir.VersionRecord, error) {
	var v ir.VersionRecord
	if err := json.Unmarshal(data, &v); err != nil {
		return ir.VersionRecord{}, fmt.Errorf("decode version: %w", err)
	}
	if v.Attributes == nil {
		v.Attributes = ir.Object{}
	}
	return v, nil
}

func validateEntity(t ir.EntityType, id ir.EntityID) error {
	if err := ir.ValidateKeyPart("entity type", string(t)); err != nil {
		return err
	}
	return ir.ValidateKeyPart("entity id", string(id))
}

// Append writes a new open version {valid_from, +inf}.
//
// Returns CONFLICT if the entity already has an open version, or if a
// version starting at validFrom already exists.
func Append(ctx context.Context, tx kv.Tx, t ir.EntityType, id ir.EntityID, attrs ir.Object, validFrom ir.Timestamp) (ir.VersionRecord, error) {
	if err := validateEntity(t, id); err != nil {
		return ir.VersionRecord{}, err
	}
	if validFrom == ir.Forever {
		return ir.VersionRecord{}, ir.NewInvalidError("valid_from must be finite")
	}

	_, open, err := tx.Get(ctx, openKey(t, id))
	if err != nil {
		return ir.VersionRecord{}, ir.NewStorageError("append: read open index", err)
	}
	if open {
		return ir.VersionRecord{}, ir.NewConflictError(t, id, "entity already has an open version")
	}

	vk := versionKey(t, id, validFrom)
	_, exists, err := tx.Get(ctx, vk)
	if err != nil {
		return ir.VersionRecord{}, ir.NewStorageError("append: read version", err)
	}
	if exists {
		return ir.VersionRecord{}, ir.NewConflictError(t, id, fmt.Sprintf("a version starting at %s already exists", validFrom))
	}

	if attrs == nil {
		attrs = ir.Object{}
	}
	vid, err := ir.VersionID(t, id, attrs, validFrom)
	if err != nil {
		return ir.VersionRecord{}, ir.NewInvalidError(err.Error())
	}
	rec := ir.VersionRecord{
		ID:         vid,
		EntityType: t,
		EntityID:   id,
		Attributes: attrs.Clone(),
		ValidFrom:  validFrom,
		ValidTo:    ir.Forever,
	}
	if err := putRecord(ctx, tx, rec); err != nil {
		return ir.VersionRecord{}, err
	}
	if err := tx.Put(ctx, openKey(t, id), EncodeTimestamp(validFrom)); err != nil {
		return ir.VersionRecord{}, ir.NewStorageError("append: write open index", err)
	}
	return rec, nil
}

// CloseOpen sets valid_to on the entity's open version and removes it from
// the open index. Returns the closed record.
//
// Returns NOT_FOUND if there is no open version and CLOCK_REGRESSION if
// validTo would not leave a positive-length interval.
func CloseOpen(ctx context.Context, tx kv.Tx, t ir.EntityType, id ir.EntityID, validTo ir.Timestamp) (ir.VersionRecord, error) {
	rec, ok, err := Open(ctx, tx, t, id)
	if err != nil {
		return ir.VersionRecord{}, err
	}
	if !ok {
		return ir.VersionRecord{}, ir.NewNotFoundError(t, id, "no open version")
	}
	if validTo <= rec.ValidFrom {
		return ir.VersionRecord{}, ir.NewClockRegressionError(t, id, validTo, rec.ValidFrom)
	}
	if validTo == ir.Forever {
		return ir.VersionRecord{}, ir.NewInvalidError("valid_to must be finite when closing a version")
	}

	rec.ValidTo = validTo
	if err := putRecord(ctx, tx, rec); err != nil {
		return ir.VersionRecord{}, err
	}
	if err := tx.Delete(ctx, openKey(t, id)); err != nil {
		return ir.VersionRecord{}, ir.NewStorageError("close: delete open index", err)
	}
	return rec, nil
}

// Open returns the entity's open version, if any.
func Open(ctx context.Context, tx kv.Tx, t ir.EntityType, id ir.EntityID) (ir.VersionRecord, bool, error) {
	if err := validateEntity(t, id); err != nil {
		return ir.VersionRecord{}, false, err
	}
	raw, ok, err := tx.Get(ctx, openKey(t, id))
	if err != nil {
		return ir.VersionRecord{}, false, ir.NewStorageError("open: read index", err)
	}
	if !ok {
		return ir.VersionRecord{}, false, nil
	}
	from, err := DecodeTimestamp(raw)
	if err != nil {
		return ir.VersionRecord{}, false, ir.NewStorageError("open: decode index", err)
	}
	rec, ok, err := getRecord(ctx, tx, t, id, from)
	if err != nil {
		return ir.VersionRecord{}, false, err
	}
	if !ok {
		return ir.VersionRecord{}, false, ir.NewStorageError("open", fmt.Errorf("open index points at missing version %s/%s@%s", t, id, from))
	}
	return rec, true, nil
}

// History returns every version of the entity in ascending valid_from order.
// An unknown entity yields an empty slice.
func History(ctx context.Context, tx kv.Tx, t ir.EntityType, id ir.EntityID) ([]ir.VersionRecord, error) {
	if err := validateEntity(t, id); err != nil {
		return nil, err
	}
	pairs, err := kv.ScanPrefix(ctx, tx, entityVersionPrefix(t, id))
	if err != nil {
		return nil, ir.NewStorageError("history: scan", err)
	}
	return decodePairs(pairs)
}

// TypeHistory returns every version of every entity of type t, ordered by
// entity ID then valid_from.
func TypeHistory(ctx context.Context, tx kv.Tx, t ir.EntityType) ([]ir.VersionRecord, error) {
	if err := ir.ValidateKeyPart("entity type", string(t)); err != nil {
		return nil, err
	}
	pairs, err := kv.ScanPrefix(ctx, tx, typeVersionPrefix(t))
	if err != nil {
		return nil, ir.NewStorageError("type history: scan", err)
	}
	return decodePairs(pairs)
}

// LastClosed returns the closed version with the greatest finite valid_to.
func LastClosed(ctx context.Context, tx kv.Tx, t ir.EntityType, id ir.EntityID) (ir.VersionRecord, bool, error) {
	history, err := History(ctx, tx, t, id)
	if err != nil {
		return ir.VersionRecord{}, false, err
	}
	var last ir.VersionRecord
	found := false
	for _, v := range history {
		if v.IsOpen() {
			continue
		}
		if !found || v.ValidTo > last.ValidTo {
			last, found = v, true
		}
	}
	return last, found, nil
}

// Reopen turns the last closed version back into the open version,
// erasing the gap left by a delete.
//
// Returns CONFLICT if the entity already has an open version and
// NOT_FOUND if it has no closed version.
func Reopen(ctx context.Context, tx kv.Tx, t ir.EntityType, id ir.EntityID) (ir.VersionRecord, error) {
	if _, open, err := Open(ctx, tx, t, id); err != nil {
		return ir.VersionRecord{}, err
	} else if open {
		return ir.VersionRecord{}, ir.NewConflictError(t, id, "entity already has an open version")
	}
	rec, ok, err := LastClosed(ctx, tx, t, id)
	if err != nil {
		return ir.VersionRecord{}, err
	}
	if !ok {
		return ir.VersionRecord{}, ir.NewNotFoundError(t, id, "no closed version to reopen")
	}

	rec.ValidTo = ir.Forever
	if err := putRecord(ctx, tx, rec); err != nil {
		return ir.VersionRecord{}, err
	}
	if err := tx.Put(ctx, openKey(t, id), EncodeTimestamp(rec.ValidFrom)); err != nil {
		return ir.VersionRecord{}, ir.NewStorageError("reopen: write open index", err)
	}
	return rec, nil
}

// Entities lists the IDs of every entity of type t that has at least one
// version, in key order.
func Entities(ctx context.Context, tx kv.Tx, t ir.EntityType) ([]ir.EntityID, error) {
	if err := ir.ValidateKeyPart("entity type", string(t)); err != nil {
		return nil, err
	}
	prefix := typeVersionPrefix(t)
	pairs, err := kv.ScanPrefix(ctx, tx, prefix)
	if err != nil {
		return nil, ir.NewStorageError("entities: scan", err)
	}

	ids := make([]ir.EntityID, 0)
	for _, p := range pairs {
		id, _, err := splitVersionKey(prefix, p.Key)
		if err != nil {
			return nil, ir.NewStorageError("entities", err)
		}
		if len(ids) == 0 || ids[len(ids)-1] != id {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Purge removes every version, open index entry and current row of type
// t. It returns the number of entities whose history was removed.
func Purge(ctx context.Context, tx kv.Tx, t ir.EntityType) (int, error) {
	ids, err := Entities(ctx, tx, t)
	if err != nil {
		return 0, err
	}
	for _, prefix := range [][]byte{typeVersionPrefix(t), typeOpenPrefix(t), CurrentPrefix(t)} {
		pairs, err := kv.ScanPrefix(ctx, tx, prefix)
		if err != nil {
			return 0, ir.NewStorageError("purge: scan", err)
		}
		for _, p := range pairs {
			if err := tx.Delete(ctx, p.Key); err != nil {
				return 0, ir.NewStorageError("purge: delete", err)
			}
		}
	}
	return len(ids), nil
}

// OpenVersions returns the open version of every live entity of type t,
// in entity ID order.
func OpenVersions(ctx context.Context, tx kv.Tx, t ir.EntityType) ([]ir.VersionRecord, error) {
	if err := ir.ValidateKeyPart("entity type", string(t)); err != nil {
		return nil, err
	}
	prefix := typeOpenPrefix(t)
	pairs, err := kv.ScanPrefix(ctx, tx, prefix)
	if err != nil {
		return nil, ir.NewStorageError("open versions: scan", err)
	}

	out := make([]ir.VersionRecord, 0, len(pairs))
	for _, p := range pairs {
		id := ir.EntityID(p.Key[len(prefix):])
		from, err := DecodeTimestamp(p.Value)
		if err != nil {
			return nil, ir.NewStorageError("open versions", err)
		}
		rec, ok, err := getRecord(ctx, tx, t, id, from)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ir.NewStorageError("open versions", fmt.Errorf("open index points at missing version %s/%s@%s", t, id, from))
		}
		out = append(out, rec)
	}
	return out, nil
}

func putRecord(ctx context.Context, tx kv.Tx, rec ir.VersionRecord) error {
	data, err := EncodeRecord(rec)
	if err != nil {
		return ir.NewInvalidError(err.Error())
	}
	if err := tx.Put(ctx, versionKey(rec.EntityType, rec.EntityID, rec.ValidFrom), data); err != nil {
		return ir.NewStorageError("write version", err)
	}
	return nil
}

func getRecord(ctx context.Context, tx kv.Tx, t ir.EntityType, id ir.EntityID, from ir.Timestamp) (ir.VersionRecord, bool, error) {
	raw, ok, err := tx.Get(ctx, versionKey(t, id, from))
	if err != nil {
		return ir.VersionRecord{}, false, ir.NewStorageError("read version", err)
	}
	if !ok {
		return ir.VersionRecord{}, false, nil
	}
	rec, err := DecodeRecord(raw)
	if err != nil {
		return ir.VersionRecord{}, false, ir.NewStorageError("read version", err)
	}
	return rec, true, nil
}

func decodePairs(pairs []kv.Pair) ([]ir.VersionRecord, error) {
	out := make([]ir.VersionRecord, 0, len(pairs))
	for _, p := range pairs {
		rec, err := DecodeRecord(p.Value)
		if err != nil {
			return nil, ir.NewStorageError("decode history", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Latest returns the greatest finite boundary recorded in the ledger across
// all entity types, and false if the ledger is empty.
func Latest(ctx context.Context, tx kv.Tx) (ir.Timestamp, bool, error) {
	pairs, err := kv.ScanPrefix(ctx, tx, []byte{prefixVersion, sep})
	if err != nil {
		return 0, false, ir.NewStorageError("latest: scan", err)
	}
	recs, err := decodePairs(pairs)
	if err != nil {
		return 0, false, err
	}
	var latest ir.Timestamp
	for i, v := range recs {
		if i == 0 || v.ValidFrom > latest {
			latest = v.ValidFrom
		}
		if !v.IsOpen() && v.ValidTo > latest {
			latest = v.ValidTo
		}
	}
	return latest, len(recs) > 0, nil
}
