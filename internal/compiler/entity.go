package compiler

import (
	"fmt"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/asof/internal/ir"
)

// CompileEntity parses a CUE value into an EntitySchema.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the entity struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`entity: Order: { ... }`)
//	schema, err := CompileEntity(v.LookupPath(cue.ParsePath("entity.Order")))
func CompileEntity(v cue.Value) (*ir.EntitySchema, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	schema := &ir.EntitySchema{
		Fields: make(map[string]string),
	}

	// Entity name from struct label (the path selector)
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		schema.Name = ir.EntityType(labels[len(labels)-1].String())
	}

	purposeVal := v.LookupPath(cue.ParsePath("purpose"))
	if !purposeVal.Exists() {
		return nil, &CompileError{
			Field:   "purpose",
			Message: "purpose is required",
			Pos:     v.Pos(),
		}
	}
	purpose, err := purposeVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	schema.Purpose = purpose

	fieldsVal := v.LookupPath(cue.ParsePath("fields"))
	if !fieldsVal.Exists() {
		return nil, &CompileError{
			Field:   "fields",
			Message: "fields are required",
			Pos:     v.Pos(),
		}
	}
	iter, err := fieldsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		typ, err := extractTypeName(iter.Value())
		if err != nil {
			return nil, err
		}
		schema.Fields[iter.Label()] = typ
	}

	refsVal := v.LookupPath(cue.ParsePath("refs"))
	if refsVal.Exists() {
		schema.Refs = make(map[string]string)
		iter, err := refsVal.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			target, err := iter.Value().String()
			if err != nil {
				return nil, &CompileError{
					Field:   "refs." + iter.Label(),
					Message: "reference target must be an entity type name",
					Pos:     iter.Value().Pos(),
				}
			}
			schema.Refs[iter.Label()] = target
		}
	}

	return schema, nil
}

// CompileEntities compiles every entity under the top-level "entity" field
// of v, ordered by name. A value without entities yields an empty slice.
func CompileEntities(v cue.Value) ([]ir.EntitySchema, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	schemas := make([]ir.EntitySchema, 0)

	entitiesVal := v.LookupPath(cue.ParsePath("entity"))
	if !entitiesVal.Exists() {
		return schemas, nil
	}
	iter, err := entitiesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		schema, err := CompileEntity(iter.Value())
		if err != nil {
			return nil, fmt.Errorf("entity.%s: %w", iter.Label(), err)
		}
		schemas = append(schemas, *schema)
	}

	sort.Slice(schemas, func(i, j int) bool { return schemas[i].Name < schemas[j].Name })
	return schemas, nil
}

// CompileString compiles CUE source text into entity schemas.
// filename is used only for error positions.
func CompileString(src, filename string) ([]ir.EntitySchema, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return CompileEntities(v)
}

// extractTypeName converts a CUE type to a schema field type name.
// Floats are forbidden: attribute values carry no floats.
func extractTypeName(v cue.Value) (string, error) {
	switch v.IncompleteKind() {
	case cue.StringKind:
		return ir.TypeString, nil
	case cue.IntKind:
		return ir.TypeInt, nil
	case cue.BoolKind:
		return ir.TypeBool, nil
	case cue.ListKind:
		return ir.TypeArray, nil
	case cue.StructKind:
		return ir.TypeObject, nil
	case cue.FloatKind, cue.NumberKind:
		return "", &CompileError{
			Field:   "type",
			Message: "float types are forbidden - use int (e.g. minor currency units) instead",
			Pos:     v.Pos(),
		}
	default:
		return "", &CompileError{
			Field:   "type",
			Message: fmt.Sprintf("unsupported type kind: %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
