package ledger

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/roach88/asof/internal/ir"
)

const (
	prefixVersion = 'v'
	prefixOpen    = 'o'
	prefixCurrent = 'c'

	sep = 0x00
)

// EncodeTimestamp returns the order-preserving 8-byte form of ts.
func EncodeTimestamp(ts ir.Timestamp) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(ts)^(1<<63))
	return b
}

// DecodeTimestamp reverses EncodeTimestamp.
func DecodeTimestamp(b []byte) (ir.Timestamp, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("decode timestamp: want 8 bytes, got %d", len(b))
	}
	return ir.Timestamp(binary.BigEndian.Uint64(b) ^ (1 << 63)), nil
}

func key(prefix byte, parts ...string) []byte {
	var buf bytes.Buffer
	buf.WriteByte(prefix)
	for _, p := range parts {
		buf.WriteByte(sep)
		buf.WriteString(p)
	}
	return buf.Bytes()
}

// entityVersionPrefix covers every version of one entity. The trailing
// separator keeps "a" from matching "ab".
func entityVersionPrefix(t ir.EntityType, id ir.EntityID) []byte {
	return append(key(prefixVersion, string(t), string(id)), sep)
}

func typeVersionPrefix(t ir.EntityType) []byte {
	return append(key(prefixVersion, string(t)), sep)
}

func versionKey(t ir.EntityType, id ir.EntityID, ts ir.Timestamp) []byte {
	return append(entityVersionPrefix(t, id), EncodeTimestamp(ts)...)
}

func openKey(t ir.EntityType, id ir.EntityID) []byte {
	return key(prefixOpen, string(t), string(id))
}

func typeOpenPrefix(t ir.EntityType) []byte {
	return append(key(prefixOpen, string(t)), sep)
}

// CurrentKey is the key of an entity's current row.
func CurrentKey(t ir.EntityType, id ir.EntityID) []byte {
	return key(prefixCurrent, string(t), string(id))
}

// CurrentPrefix covers the current rows of one entity type.
func CurrentPrefix(t ir.EntityType) []byte {
	return append(key(prefixCurrent, string(t)), sep)
}

// splitVersionKey extracts the entity ID and timestamp from a version key
// known to start with typeVersionPrefix(t).
func splitVersionKey(prefix, k []byte) (ir.EntityID, ir.Timestamp, error) {
	rest := k[len(prefix):]
	if len(rest) < 9 || rest[len(rest)-9] != sep {
		return "", 0, fmt.Errorf("malformed version key %q", k)
	}
	ts, err := DecodeTimestamp(rest[len(rest)-8:])
	if err != nil {
		return "", 0, err
	}
	return ir.EntityID(rest[:len(rest)-9]), ts, nil
}
