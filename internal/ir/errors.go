package ir

import (
	"errors"
	"fmt"
)

// TemporalError is the single error type surfaced by the versioning core.
//
// Every failure carries a Code so callers can branch with errors.Is against
// the sentinels below, or errors.As to read the structured fields.
type TemporalError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// EntityType and EntityID identify the affected entity, when known.
	EntityType EntityType
	EntityID   EntityID

	// Err is the underlying cause (driver error for STORAGE).
	Err error
}

// ErrorCode categorizes temporal errors.
type ErrorCode string

const (
	// CodeNotFound: entity absent, or timestamp outside its lifetime.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeConflict: an open version exists where none was expected.
	CodeConflict ErrorCode = "CONFLICT"

	// CodeClockRegression: timestamp not after the open version's start.
	CodeClockRegression ErrorCode = "CLOCK_REGRESSION"

	// CodeStorage: underlying substrate failure. Never retried by the core.
	CodeStorage ErrorCode = "STORAGE"

	// CodeInvalid: malformed input (schema violation, bad identifier).
	CodeInvalid ErrorCode = "INVALID"
)

// Sentinels for errors.Is. They match any TemporalError with the same code.
var (
	ErrNotFound        = &TemporalError{Code: CodeNotFound}
	ErrConflict        = &TemporalError{Code: CodeConflict}
	ErrClockRegression = &TemporalError{Code: CodeClockRegression}
	ErrStorage         = &TemporalError{Code: CodeStorage}
	ErrInvalid         = &TemporalError{Code: CodeInvalid}
)

// Error implements the error interface.
func (e *TemporalError) Error() string {
	msg := string(e.Code)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.EntityID != "" {
		msg += fmt.Sprintf(" (entity=%s/%s)", e.EntityType, e.EntityID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *TemporalError) Unwrap() error {
	return e.Err
}

// Is matches on Code so wrapped errors compare equal to the sentinels.
func (e *TemporalError) Is(target error) bool {
	var te *TemporalError
	if !errors.As(target, &te) {
		return false
	}
	return te.Code == e.Code
}

// CodeOf returns the code of the first TemporalError in err's chain,
// or "" if there is none.
func CodeOf(err error) ErrorCode {
	var te *TemporalError
	if errors.As(err, &te) {
		return te.Code
	}
	return ""
}

// IsNotFound reports whether err is a NOT_FOUND error.
func IsNotFound(err error) bool { return CodeOf(err) == CodeNotFound }

// IsConflict reports whether err is a CONFLICT error.
func IsConflict(err error) bool { return CodeOf(err) == CodeConflict }

// IsClockRegression reports whether err is a CLOCK_REGRESSION error.
func IsClockRegression(err error) bool { return CodeOf(err) == CodeClockRegression }

// IsStorage reports whether err is a STORAGE error.
func IsStorage(err error) bool { return CodeOf(err) == CodeStorage }

// NewNotFoundError creates a NOT_FOUND error for an entity.
func NewNotFoundError(entityType EntityType, id EntityID, message string) *TemporalError {
	return &TemporalError{Code: CodeNotFound, Message: message, EntityType: entityType, EntityID: id}
}

// NewConflictError creates a CONFLICT error for an entity.
func NewConflictError(entityType EntityType, id EntityID, message string) *TemporalError {
	return &TemporalError{Code: CodeConflict, Message: message, EntityType: entityType, EntityID: id}
}

// NewClockRegressionError reports a timestamp that does not advance past prev.
func NewClockRegressionError(entityType EntityType, id EntityID, now, prev Timestamp) *TemporalError {
	return &TemporalError{
		Code:       CodeClockRegression,
		Message:    fmt.Sprintf("timestamp %s does not advance past %s", now, prev),
		EntityType: entityType,
		EntityID:   id,
	}
}

// NewStorageError wraps a substrate failure. A nil err returns nil.
func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsStorage(err) {
		return err
	}
	return &TemporalError{Code: CodeStorage, Message: op, Err: err}
}

// NewInvalidError creates an INVALID error.
func NewInvalidError(message string) *TemporalError {
	return &TemporalError{Code: CodeInvalid, Message: message}
}
