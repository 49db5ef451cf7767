package harness

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/roach88/asof/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Entity   string // Alias of the entity under test
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s %s\n", e.Type, e.Entity)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	return buf.String()
}

// evaluateAssertions runs every assertion and returns the failure messages.
func (h *Harness) evaluateAssertions(ctx context.Context, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := h.evaluateAssertion(ctx, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func (h *Harness) evaluateAssertion(ctx context.Context, a Assertion) error {
	ref, ok := h.entities[a.Entity]
	if !ok {
		return &AssertionError{
			Type:     a.Type,
			Entity:   a.Entity,
			Expected: "entity created by a step",
			Actual:   "never created",
		}
	}

	switch a.Type {
	case AssertCurrent:
		return assertCurrent(ctx, h, ref, a)
	case AssertAbsent:
		return assertAbsent(ctx, h, ref, a)
	case AssertAsOf:
		return assertAsOf(ctx, h, ref, a)
	case AssertBetween:
		recs, err := h.engine.Between(ctx, ref.Type, ref.ID, ir.Timestamp(*a.From), ir.Timestamp(*a.To))
		return assertStarts(a, recs, err)
	case AssertHistory:
		recs, err := h.engine.All(ctx, ref.Type, ref.ID)
		return assertStarts(a, recs, err)
	case AssertJoin:
		return assertJoin(ctx, h, ref, a)
	default:
		return fmt.Errorf("unknown assertion type: %s", a.Type)
	}
}

func assertCurrent(ctx context.Context, h *Harness, ref entityRef, a Assertion) error {
	row, err := h.engine.Get(ctx, ref.Type, ref.ID)
	if err != nil {
		return &AssertionError{
			Type:     a.Type,
			Entity:   a.Entity,
			Expected: fmt.Sprintf("live entity with %v", a.Expect),
			Actual:   err.Error(),
		}
	}
	if msg := matchAttrs(row.Attributes, a.Expect); msg != "" {
		return &AssertionError{
			Type:     a.Type,
			Entity:   a.Entity,
			Expected: fmt.Sprintf("%v", a.Expect),
			Actual:   msg,
		}
	}
	return nil
}

func assertAbsent(ctx context.Context, h *Harness, ref entityRef, a Assertion) error {
	row, err := h.engine.Get(ctx, ref.Type, ref.ID)
	if ir.IsNotFound(err) {
		return nil
	}
	actual := fmt.Sprintf("live since %s", row.VersionFrom)
	if err != nil {
		actual = err.Error()
	}
	return &AssertionError{
		Type:     a.Type,
		Entity:   a.Entity,
		Expected: "entity not live",
		Actual:   actual,
	}
}

func assertAsOf(ctx context.Context, h *Harness, ref entityRef, a Assertion) error {
	at := ir.Timestamp(*a.At)
	rec, err := h.engine.AsOf(ctx, ref.Type, ref.ID, at)
	if failure := checkError(a, err); failure != nil || a.ExpectError != "" {
		return failure
	}
	if msg := matchAttrs(rec.Attributes, a.Expect); msg != "" {
		return &AssertionError{
			Type:     a.Type,
			Entity:   a.Entity,
			Expected: fmt.Sprintf("%v at %s", a.Expect, at),
			Actual:   msg,
		}
	}
	return nil
}

// assertStarts compares the valid_from sequence of recs with a.Starts.
// An omitted starts list expects no versions.
func assertStarts(a Assertion, recs []ir.VersionRecord, err error) error {
	if failure := checkError(a, err); failure != nil || a.ExpectError != "" {
		return failure
	}
	starts := make([]int64, len(recs))
	for i, rec := range recs {
		starts[i] = int64(rec.ValidFrom)
	}
	if !slices.Equal(starts, a.Starts) {
		return &AssertionError{
			Type:     a.Type,
			Entity:   a.Entity,
			Expected: fmt.Sprintf("versions starting at %v", a.Starts),
			Actual:   fmt.Sprintf("versions starting at %v", starts),
		}
	}
	return nil
}

func assertJoin(ctx context.Context, h *Harness, ref entityRef, a Assertion) error {
	at := ir.Timestamp(*a.At)
	joined, err := h.engine.AsOfJoin(ctx, ref.Type, ref.ID, at)
	if failure := checkError(a, err); failure != nil || a.ExpectError != "" {
		return failure
	}

	// Sorted so the first reported mismatch is stable.
	fields := make([]string, 0, len(a.Refs))
	for field := range a.Refs {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	for _, field := range fields {
		target, ok := joined.Refs[field]
		if !ok {
			return &AssertionError{
				Type:     a.Type,
				Entity:   a.Entity,
				Expected: fmt.Sprintf("reference %s resolved at %s", field, at),
				Actual:   "no such reference",
			}
		}
		if msg := matchAttrs(target.Attributes, a.Refs[field]); msg != "" {
			return &AssertionError{
				Type:     a.Type,
				Entity:   a.Entity,
				Expected: fmt.Sprintf("%s = %v at %s", field, a.Refs[field], at),
				Actual:   msg,
			}
		}
	}
	return nil
}

// checkError compares a query error with a.ExpectError.
// Returns nil when they agree.
func checkError(a Assertion, err error) error {
	code := string(ir.CodeOf(err))
	switch {
	case a.ExpectError == "" && err == nil:
		return nil
	case a.ExpectError == "":
		return &AssertionError{Type: a.Type, Entity: a.Entity, Expected: "no error", Actual: err.Error()}
	case err == nil:
		return &AssertionError{Type: a.Type, Entity: a.Entity, Expected: a.ExpectError, Actual: "no error"}
	case code != a.ExpectError:
		return &AssertionError{Type: a.Type, Entity: a.Entity, Expected: a.ExpectError, Actual: err.Error()}
	}
	return nil
}

// matchAttrs checks expected fields against actual attributes using subset
// semantics. Returns a description of the first mismatch, or "".
func matchAttrs(actual ir.Object, expected map[string]interface{}) string {
	keys := make([]string, 0, len(expected))
	for k := range expected {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		want, err := ir.FromAny(expected[k])
		if err != nil {
			return fmt.Sprintf("field %s: bad expected value: %v", k, err)
		}
		got, ok := actual[k]
		if !ok {
			return fmt.Sprintf("field %s missing", k)
		}
		if !ir.Equal(got, want) {
			return fmt.Sprintf("field %s = %v", k, ir.ToAny(got))
		}
	}
	return ""
}
