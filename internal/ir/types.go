package ir

import (
	"fmt"
	"math"
	"strings"
)

// Timestamp marks a version boundary. Wall clocks produce Unix
// microseconds; logical clocks produce a counter. Only ordering matters.
type Timestamp int64

// Forever is the +infinity sentinel used as ValidTo of the open version.
const Forever Timestamp = math.MaxInt64

// String renders Forever as "∞" and everything else as a decimal.
func (t Timestamp) String() string {
	if t == Forever {
		return "∞"
	}
	return fmt.Sprintf("%d", int64(t))
}

// EntityType names a kind of versioned entity ("Product", "Order").
type EntityType string

// EntityID is the opaque identifier of an entity. Immutable for the
// entity's lifetime, including across delete and restore.
type EntityID string

// ValidateKeyPart rejects type names and IDs that cannot be stored.
// Empty values and embedded NUL bytes are invalid: NUL separates key parts.
func ValidateKeyPart(kind, s string) error {
	if s == "" {
		return NewInvalidError(fmt.Sprintf("%s must not be empty", kind))
	}
	if strings.ContainsRune(s, 0) {
		return NewInvalidError(fmt.Sprintf("%s must not contain NUL bytes", kind))
	}
	return nil
}

// Interval is the half-open validity interval [From, To).
type Interval struct {
	From Timestamp `json:"valid_from"`
	To   Timestamp `json:"valid_to"`
}

// Contains reports whether t lies in [From, To).
func (iv Interval) Contains(t Timestamp) bool {
	return iv.From <= t && t < iv.To
}

// Overlaps reports whether the interval intersects [from, to).
// An empty query range (from >= to) overlaps nothing.
func (iv Interval) Overlaps(from, to Timestamp) bool {
	if from >= to {
		return false
	}
	return iv.From < to && from < iv.To
}

// VersionRecord is an immutable snapshot of an entity's attributes over
// its validity interval. Only ValidTo changes, once, when the version closes.
type VersionRecord struct {
	ID         string     `json:"id"` // Content-addressed, see VersionID
	EntityType EntityType `json:"entity_type"`
	EntityID   EntityID   `json:"entity_id"`
	Attributes Object     `json:"attributes"`
	ValidFrom  Timestamp  `json:"valid_from"`
	ValidTo    Timestamp  `json:"valid_to"` // Forever while open
}

// IsOpen reports whether this is the entity's currently valid version.
func (v VersionRecord) IsOpen() bool {
	return v.ValidTo == Forever
}

// Interval returns the record's validity interval.
func (v VersionRecord) Interval() Interval {
	return Interval{From: v.ValidFrom, To: v.ValidTo}
}

// Row is the current-state view of a live entity.
type Row struct {
	EntityType  EntityType `json:"entity_type"`
	EntityID    EntityID   `json:"entity_id"`
	Attributes  Object     `json:"attributes"`
	VersionFrom Timestamp  `json:"version_from"` // ValidFrom of the open version
}

// EntitySchema describes the attributes of an entity type.
type EntitySchema struct {
	Name    EntityType        `json:"name"`
	Purpose string            `json:"purpose,omitempty"`
	Fields  map[string]string `json:"fields"`         // field name -> type name
	Refs    map[string]string `json:"refs,omitempty"` // field name -> referenced entity type
}

// Field type names used in EntitySchema.Fields.
const (
	TypeString = "string"
	TypeInt    = "int"
	TypeBool   = "bool"
	TypeArray  = "array"
	TypeObject = "object"
)

// ValidFieldTypes lists allowed EntitySchema field types.
var ValidFieldTypes = map[string]bool{
	TypeString: true,
	TypeInt:    true,
	TypeBool:   true,
	TypeArray:  true,
	TypeObject: true,
}
