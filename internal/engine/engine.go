package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/roach88/asof/internal/ir"
	"github.com/roach88/asof/internal/kv"
	"github.com/roach88/asof/internal/ledger"
)

// RestorePolicy selects how Restore brings a deleted entity back.
type RestorePolicy string

const (
	// RestoreNewInterval appends a new open version stamped with the clock,
	// leaving a gap in the history for the deleted period.
	RestoreNewInterval RestorePolicy = "new_interval"

	// RestoreReopen undoes the delete: the last closed version becomes
	// open again and the gap disappears.
	RestoreReopen RestorePolicy = "reopen"
)

// ParseRestorePolicy validates a policy name from configuration.
func ParseRestorePolicy(s string) (RestorePolicy, error) {
	switch p := RestorePolicy(s); p {
	case RestoreNewInterval, RestoreReopen:
		return p, nil
	case "":
		return RestoreNewInterval, nil
	default:
		return "", ir.NewInvalidError(fmt.Sprintf("unknown restore policy %q (want %s or %s)", s, RestoreNewInterval, RestoreReopen))
	}
}

// Engine is the temporal versioning core: the entity table, the mutation
// coordinator and the temporal query engine over one kv.Substrate.
//
// Thread-safety model:
//   - Mutations on the same entity are serialized by a per-entity lock
//     held across clock stamp, ledger writes and commit.
//   - Mutations on different entities only contend inside the substrate.
//   - Queries take no engine locks; each runs in one read transaction.
//   - Rebuild excludes all mutations while it rewrites the table.
type Engine struct {
	db      kv.Substrate
	clock   Clock
	ids     IDGenerator
	schemas map[ir.EntityType]ir.EntitySchema
	restore RestorePolicy
	logger  *slog.Logger

	locks *lockTable

	// Mutations hold the read side; Rebuild holds the write side.
	rebuild sync.RWMutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the timestamp source. Default: NewWallClock().
func WithClock(c Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithIDGenerator sets the entity ID source for Create.
// Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithSchemas registers entity schemas. Attributes of a registered type are
// checked on every write, and its reference fields drive Resolve.
func WithSchemas(schemas ...ir.EntitySchema) Option {
	return func(e *Engine) {
		for _, s := range schemas {
			e.schemas[s.Name] = s
		}
	}
}

// WithRestorePolicy selects Restore semantics. Default: RestoreNewInterval.
func WithRestorePolicy(p RestorePolicy) Option {
	return func(e *Engine) {
		e.restore = p
	}
}

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// New creates an Engine over db.
func New(db kv.Substrate, opts ...Option) *Engine {
	e := &Engine{
		db:      db,
		clock:   NewWallClock(),
		ids:     UUIDv7Generator{},
		schemas: make(map[ir.EntityType]ir.EntitySchema),
		restore: RestoreNewInterval,
		logger:  slog.Default(),
		locks:   newLockTable(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Schema returns the registered schema for t.
func (e *Engine) Schema(t ir.EntityType) (ir.EntitySchema, bool) {
	s, ok := e.schemas[t]
	return s, ok
}

// Schemas returns every registered schema ordered by name.
func (e *Engine) Schemas() []ir.EntitySchema {
	out := make([]ir.EntitySchema, 0, len(e.schemas))
	for _, s := range e.schemas {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// RestorePolicy returns the configured restore policy.
func (e *Engine) RestorePolicy() RestorePolicy {
	return e.restore
}

// checkAttributes validates attrs against the type's schema, if any.
func (e *Engine) checkAttributes(t ir.EntityType, attrs ir.Object) error {
	s, ok := e.schemas[t]
	if !ok {
		return nil
	}
	return s.Check(attrs)
}

// encodeRow returns the canonical JSON stored under a current-row key.
func encodeRow(r ir.Row) ([]byte, error) {
	attrs := r.Attributes
	if attrs == nil {
		attrs = ir.Object{}
	}
	return ir.MarshalCanonical(ir.Object{
		"entity_type":  ir.String(r.EntityType),
		"entity_id":    ir.String(r.EntityID),
		"attributes":   attrs,
		"version_from": ir.Int(r.VersionFrom),
	})
}

func decodeRow(data []byte) (ir.Row, error) {
	var r ir.Row
	if err := json.Unmarshal(data, &r); err != nil {
		return ir.Row{}, fmt.Errorf("decode row: %w", err)
	}
	if r.Attributes == nil {
		r.Attributes = ir.Object{}
	}
	return r, nil
}

// rowOf is the current row projected from an open version.
func rowOf(v ir.VersionRecord) ir.Row {
	return ir.Row{
		EntityType:  v.EntityType,
		EntityID:    v.EntityID,
		Attributes:  v.Attributes,
		VersionFrom: v.ValidFrom,
	}
}

func putRow(ctx context.Context, tx kv.Tx, r ir.Row) error {
	data, err := encodeRow(r)
	if err != nil {
		return ir.NewInvalidError(err.Error())
	}
	if err := tx.Put(ctx, ledger.CurrentKey(r.EntityType, r.EntityID), data); err != nil {
		return ir.NewStorageError("write current row", err)
	}
	return nil
}

// view runs fn in a read-only transaction.
func (e *Engine) view(ctx context.Context, fn func(tx kv.Tx) error) error {
	tx, err := e.db.Begin(ctx, false)
	if err != nil {
		return ir.NewStorageError("begin read", err)
	}
	defer tx.Rollback()
	return fn(tx)
}
