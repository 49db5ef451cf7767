package queryir

import (
	"fmt"
	"strings"

	"github.com/roach88/asof/internal/ir"
)

// Validate checks a query for structural errors and, when schema is
// non-nil, that every filtered field exists with a matching type.
//
// Returns an INVALID ir.TemporalError listing every problem found.
// Validate is a pure function with no side effects.
func Validate(q Query, schema *ir.EntitySchema) error {
	v := &validator{schema: schema}
	v.validateQuery(q)
	if len(v.problems) == 0 {
		return nil
	}
	return ir.NewInvalidError("query: " + strings.Join(v.problems, "; "))
}

// ValidatePredicate is Validate for a bare predicate.
func ValidatePredicate(p Predicate, schema *ir.EntitySchema) error {
	v := &validator{schema: schema}
	v.validatePredicate(p)
	if len(v.problems) == 0 {
		return nil
	}
	return ir.NewInvalidError("predicate: " + strings.Join(v.problems, "; "))
}

// validator accumulates problems during traversal.
type validator struct {
	schema   *ir.EntitySchema
	problems []string
}

func (v *validator) addProblem(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) validateQuery(q Query) {
	switch query := q.(type) {
	case Select:
		v.validateSelect(query)
	case *Select:
		if query == nil {
			v.addProblem("nil query")
			return
		}
		v.validateSelect(*query)
	case nil:
		v.addProblem("nil query")
	default:
		v.addProblem("unknown query type %T", q)
	}
}

func (v *validator) validateSelect(sel Select) {
	if sel.From == "" {
		v.addProblem("missing entity type")
	}
	if v.schema != nil && sel.From != v.schema.Name {
		v.addProblem("query on %q checked against schema %q", sel.From, v.schema.Name)
	}
	if sel.Filter != nil {
		v.validatePredicate(sel.Filter)
	}
}

func (v *validator) validatePredicate(p Predicate) {
	switch pred := p.(type) {
	case nil:
		// No filter.
	case Equals:
		v.validateEquals(pred)
	case *Equals:
		v.validateEquals(*pred)
	case And:
		v.validateAnd(pred)
	case *And:
		v.validateAnd(*pred)
	default:
		v.addProblem("unknown predicate type %T", p)
	}
}

func (v *validator) validateEquals(eq Equals) {
	if eq.Field == "" {
		v.addProblem("empty field name")
		return
	}
	switch eq.Value.(type) {
	case nil:
		v.addProblem("field %q compared to nothing", eq.Field)
		return
	case ir.Null:
		v.addProblem("field %q compared to null", eq.Field)
		return
	}
	if v.schema == nil {
		return
	}
	typ, ok := v.schema.Fields[eq.Field]
	if !ok {
		v.addProblem("%s has no field %q", v.schema.Name, eq.Field)
		return
	}
	if got := ir.TypeOf(eq.Value); got != typ {
		v.addProblem("field %q is %s, compared to %s", eq.Field, typ, got)
	}
}

func (v *validator) validateAnd(and And) {
	for _, sub := range and.Predicates {
		if sub == nil {
			v.addProblem("nil predicate inside and")
			continue
		}
		v.validatePredicate(sub)
	}
}
