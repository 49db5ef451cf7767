package queryir

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/asof/internal/ir"
)

// Evaluate reports whether attrs satisfy p. A nil predicate matches
// everything.
func Evaluate(p Predicate, attrs ir.Object) bool {
	switch pred := p.(type) {
	case nil:
		return true
	case Equals:
		return evalEquals(pred, attrs)
	case *Equals:
		return pred == nil || evalEquals(*pred, attrs)
	case And:
		return evalAnd(pred, attrs)
	case *And:
		return pred == nil || evalAnd(*pred, attrs)
	default:
		return false
	}
}

func evalEquals(eq Equals, attrs ir.Object) bool {
	got, ok := attrs[eq.Field]
	if !ok {
		return false
	}
	if _, isNull := got.(ir.Null); isNull {
		return false
	}
	return ir.Equal(got, eq.Value)
}

func evalAnd(and And, attrs ir.Object) bool {
	for _, sub := range and.Predicates {
		if !Evaluate(sub, attrs) {
			return false
		}
	}
	return true
}

// ParseFilter builds a predicate from "field=value" terms, as typed on a
// command line. Values parse as int, then bool, then fall back to string;
// wrap a value in double quotes to force a string ("name=\"42\"").
// No terms yields a nil predicate.
func ParseFilter(terms []string) (Predicate, error) {
	if len(terms) == 0 {
		return nil, nil
	}
	pairs := make([]ir.Pair, 0, len(terms))
	for _, term := range terms {
		field, raw, ok := strings.Cut(term, "=")
		field = strings.TrimSpace(field)
		if !ok || field == "" {
			return nil, ir.NewInvalidError(fmt.Sprintf("filter term %q: want field=value", term))
		}
		pairs = append(pairs, ir.O(field, parseLiteral(raw)))
	}
	return Where(pairs...), nil
}

func parseLiteral(raw string) ir.Value {
	if len(raw) >= 2 && raw[0] == '"' && raw[len(raw)-1] == '"' {
		if s, err := strconv.Unquote(raw); err == nil {
			return ir.String(s)
		}
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return ir.Int(n)
	}
	if b, err := strconv.ParseBool(raw); err == nil && (raw == "true" || raw == "false") {
		return ir.Bool(b)
	}
	return ir.String(raw)
}
