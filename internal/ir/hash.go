package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// The version suffix allows a future algorithm change.
const (
	DomainVersion = "asof/version/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The NUL separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// VersionID computes the content-addressed ID of a version record.
// ValidTo is excluded: closing a version must not change its identity.
func VersionID(entityType EntityType, id EntityID, attrs Object, validFrom Timestamp) (string, error) {
	if attrs == nil {
		attrs = Object{}
	}
	obj := Object{
		"entity_type": String(entityType),
		"entity_id":   String(id),
		"attributes":  attrs,
		"valid_from":  Int(validFrom),
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("VersionID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainVersion, canonical), nil
}

// MustVersionID is like VersionID but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustVersionID(entityType EntityType, id EntityID, attrs Object, validFrom Timestamp) string {
	vid, err := VersionID(entityType, id, attrs, validFrom)
	if err != nil {
		panic(err)
	}
	return vid
}
