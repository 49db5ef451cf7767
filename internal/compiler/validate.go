package compiler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/asof/internal/ir"
)

// Validation error codes (E100-E199)
const (
	ErrEntityPurposeEmpty = "E101" // purpose is required
	ErrEntityNoFields     = "E102" // at least one field required
	ErrInvalidEntityName  = "E103" // empty name or NUL byte
	ErrInvalidFieldType   = "E104" // invalid type string
	ErrDuplicateName      = "E105" // duplicate entity name
	ErrFloatTypeForbidden = "E106" // float types not allowed

	ErrRefFieldUndeclared = "E110" // reference names a field not in fields
	ErrRefFieldNotString  = "E111" // reference field must hold a string ID
	ErrRefTargetUnknown   = "E112" // reference target is not a known entity
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a set of compiled schemas, including cross-entity rules
// (duplicate names, reference targets). Returns all errors found, ordered
// by entity then field; it does not fail fast.
func Validate(schemas []ir.EntitySchema) []ValidationError {
	var errs []ValidationError

	known := make(map[ir.EntityType]bool, len(schemas))
	for i, s := range schemas {
		if known[s.Name] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("entity[%d]", i),
				Message: fmt.Sprintf("duplicate entity name: %q", s.Name),
				Code:    ErrDuplicateName,
			})
		}
		known[s.Name] = true
	}

	for _, s := range schemas {
		errs = append(errs, validateEntity(s, known)...)
	}
	return errs
}

func validateEntity(s ir.EntitySchema, known map[ir.EntityType]bool) []ValidationError {
	var errs []ValidationError
	path := "entity." + string(s.Name)

	// E103: names become storage keys
	if err := ir.ValidateKeyPart("entity name", string(s.Name)); err != nil {
		errs = append(errs, ValidationError{
			Field:   path,
			Message: "entity name must be non-empty and contain no NUL bytes",
			Code:    ErrInvalidEntityName,
		})
	}

	// E101: purpose is required
	if strings.TrimSpace(s.Purpose) == "" {
		errs = append(errs, ValidationError{
			Field:   path + ".purpose",
			Message: "purpose is required and must be non-empty",
			Code:    ErrEntityPurposeEmpty,
		})
	}

	// E102: at least one field
	if len(s.Fields) == 0 {
		errs = append(errs, ValidationError{
			Field:   path + ".fields",
			Message: "at least one field is required",
			Code:    ErrEntityNoFields,
		})
	}

	for _, name := range sortedKeys(s.Fields) {
		errs = append(errs, validateFieldType(s.Fields[name], path+".fields."+name, name)...)
	}

	for _, name := range sortedKeys(s.Refs) {
		fieldPath := path + ".refs." + name
		typ, declared := s.Fields[name]
		switch {
		case !declared:
			errs = append(errs, ValidationError{
				Field:   fieldPath,
				Message: fmt.Sprintf("reference field %q is not declared in fields", name),
				Code:    ErrRefFieldUndeclared,
			})
		case typ != ir.TypeString:
			errs = append(errs, ValidationError{
				Field:   fieldPath,
				Message: fmt.Sprintf("reference field %q must be string, is %s", name, typ),
				Code:    ErrRefFieldNotString,
			})
		}
		if target := ir.EntityType(s.Refs[name]); !known[target] {
			errs = append(errs, ValidationError{
				Field:   fieldPath,
				Message: fmt.Sprintf("reference target %q is not a defined entity", target),
				Code:    ErrRefTargetUnknown,
			})
		}
	}

	return errs
}

// validateFieldType validates a type string, returning errors for invalid types and floats.
func validateFieldType(fieldType, fieldPath, fieldName string) []ValidationError {
	// E106: float forbidden
	if isFloatType(fieldType) {
		return []ValidationError{{
			Field:   fieldPath,
			Message: fmt.Sprintf("float type forbidden for field %q, use int instead", fieldName),
			Code:    ErrFloatTypeForbidden,
		}}
	}

	// E104: check for valid type
	if !ir.ValidFieldTypes[fieldType] {
		return []ValidationError{{
			Field:   fieldPath,
			Message: fmt.Sprintf("invalid type %q for field %q", fieldType, fieldName),
			Code:    ErrInvalidFieldType,
		}}
	}
	return nil
}

// isFloatType checks if a type string represents a float type.
func isFloatType(t string) bool {
	floatTypes := map[string]bool{
		"float":   true,
		"float32": true,
		"float64": true,
		"number":  true,
		"double":  true,
	}
	return floatTypes[t]
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
