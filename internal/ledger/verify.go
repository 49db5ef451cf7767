package ledger

import (
	"bytes"
	"context"
	"fmt"

	"github.com/roach88/asof/internal/ir"
	"github.com/roach88/asof/internal/kv"
)

// Violation describes one broken ledger invariant.
type Violation struct {
	EntityType ir.EntityType `json:"entity_type"`
	EntityID   ir.EntityID   `json:"entity_id"`
	VersionID  string        `json:"version_id,omitempty"`
	Message    string        `json:"message"`
}

func (v Violation) String() string {
	if v.VersionID != "" {
		return fmt.Sprintf("%s/%s version %s: %s", v.EntityType, v.EntityID, v.VersionID, v.Message)
	}
	return fmt.Sprintf("%s/%s: %s", v.EntityType, v.EntityID, v.Message)
}

// Verify checks one entity's history against the ledger invariants:
//
//   - every interval has positive length (valid_from < valid_to)
//   - intervals are ordered by valid_from and never overlap
//   - at most one version is open, and it is the latest
//   - the open index agrees with the open version
//   - stored IDs match their content hash and key
//   - a gap between intervals is followed by the attributes that preceded it
//
// Only delete followed by restore leaves a gap, and restore reinstates the
// last closed version's attributes. A gap that changes attributes is
// therefore a lost interval, not a deletion.
// An empty result means the history is consistent.
func Verify(ctx context.Context, tx kv.Tx, t ir.EntityType, id ir.EntityID) ([]Violation, error) {
	if err := validateEntity(t, id); err != nil {
		return nil, err
	}
	prefix := entityVersionPrefix(t, id)
	pairs, err := kv.ScanPrefix(ctx, tx, prefix)
	if err != nil {
		return nil, ir.NewStorageError("verify: scan", err)
	}

	violations := make([]Violation, 0)
	report := func(vid, format string, args ...any) {
		violations = append(violations, Violation{
			EntityType: t,
			EntityID:   id,
			VersionID:  vid,
			Message:    fmt.Sprintf(format, args...),
		})
	}

	var (
		prev    *ir.VersionRecord
		openRec *ir.VersionRecord
	)
	for i, p := range pairs {
		rec, err := DecodeRecord(p.Value)
		if err != nil {
			report("", "undecodable version at key %x: %v", p.Key, err)
			continue
		}
		if !bytes.Equal(p.Key, versionKey(t, id, rec.ValidFrom)) || rec.EntityType != t || rec.EntityID != id {
			report(rec.ID, "record does not match its key")
		}
		if want, err := ir.VersionID(rec.EntityType, rec.EntityID, rec.Attributes, rec.ValidFrom); err != nil || want != rec.ID {
			report(rec.ID, "content hash mismatch")
		}
		if rec.ValidFrom >= rec.ValidTo {
			report(rec.ID, "empty or negative interval [%s, %s)", rec.ValidFrom, rec.ValidTo)
		}
		if prev != nil && prev.ValidTo > rec.ValidFrom {
			report(rec.ID, "overlaps previous version ending at %s", prev.ValidTo)
		}
		if prev != nil && prev.ValidTo < rec.ValidFrom && !ir.Equal(prev.Attributes, rec.Attributes) {
			report(rec.ID, "gap [%s, %s) not closed by a restore of the previous attributes", prev.ValidTo, rec.ValidFrom)
		}
		if rec.IsOpen() {
			if openRec != nil {
				report(rec.ID, "second open version (first starts at %s)", openRec.ValidFrom)
			}
			if i != len(pairs)-1 {
				report(rec.ID, "open version is not the latest")
			}
			r := rec
			openRec = &r
		}
		r := rec
		prev = &r
	}

	raw, indexed, err := tx.Get(ctx, openKey(t, id))
	if err != nil {
		return nil, ir.NewStorageError("verify: read open index", err)
	}
	switch {
	case indexed && openRec == nil:
		report("", "open index present but no open version")
	case !indexed && openRec != nil:
		report(openRec.ID, "open version missing from open index")
	case indexed:
		from, err := DecodeTimestamp(raw)
		if err != nil || from != openRec.ValidFrom {
			report(openRec.ID, "open index does not point at the open version")
		}
	}
	return violations, nil
}
