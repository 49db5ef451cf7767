package ir

import (
	"fmt"
	"sort"
	"strings"
)

// TypeOf returns the schema field type name of a value, or "null".
func TypeOf(v Value) string {
	switch v.(type) {
	case String:
		return TypeString
	case Int:
		return TypeInt
	case Bool:
		return TypeBool
	case Array:
		return TypeArray
	case Object:
		return TypeObject
	default:
		return "null"
	}
}

// Check validates attributes against the schema. Every declared field is
// required, undeclared fields are rejected, and reference fields must hold
// a non-empty string ID. Returns an INVALID error listing every problem.
func (s EntitySchema) Check(attrs Object) error {
	var problems []string
	for _, name := range sortedFieldNames(s.Fields) {
		v, ok := attrs[name]
		if !ok {
			problems = append(problems, fmt.Sprintf("missing field %q", name))
			continue
		}
		if got, want := TypeOf(v), s.Fields[name]; got != want {
			problems = append(problems, fmt.Sprintf("field %q: want %s, got %s", name, want, got))
		}
	}
	for _, name := range attrs.SortedKeys() {
		if _, ok := s.Fields[name]; !ok {
			problems = append(problems, fmt.Sprintf("unknown field %q", name))
		}
	}
	for _, name := range sortedFieldNames(s.Refs) {
		if v, ok := attrs[name].(String); ok && v == "" {
			problems = append(problems, fmt.Sprintf("reference %q is empty", name))
		}
	}
	if len(problems) == 0 {
		return nil
	}
	return NewInvalidError(fmt.Sprintf("%s: %s", s.Name, strings.Join(problems, "; ")))
}

// RefFields returns the schema's reference field names in sorted order.
func (s EntitySchema) RefFields() []string {
	return sortedFieldNames(s.Refs)
}

func sortedFieldNames(m map[string]string) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
