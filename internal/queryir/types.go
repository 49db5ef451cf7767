package queryir

import "github.com/roach88/asof/internal/ir"

// Query is a selection over one entity type.
//
// Sealed interface: only types in this package implement it.
type Query interface {
	queryNode()
}

// Predicate filters versions by their attributes.
//
// Sealed interface: only types in this package implement it.
type Predicate interface {
	predicateNode()
}

// Select picks the entities of type From whose attributes satisfy Filter.
// A nil Filter selects every entity of the type.
//
// Example:
//
//	Select{
//	  From: "Product",
//	  Filter: And{Predicates: []Predicate{
//	    Equals{Field: "name", Value: ir.String("DeLorean")},
//	    Equals{Field: "price", Value: ir.Int(75000)},
//	  }},
//	}
type Select struct {
	From   ir.EntityType
	Filter Predicate
}

func (Select) queryNode() {}

// Equals holds when the attribute Field equals Value.
// An absent attribute never matches.
type Equals struct {
	Field string
	Value ir.Value
}

func (Equals) predicateNode() {}

// And holds when every sub-predicate holds. Empty And is always true.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Where is shorthand for an And of Equals over the given pairs.
//
//	Where(ir.O("name", ir.String("DeLorean")))
func Where(pairs ...ir.Pair) Predicate {
	preds := make([]Predicate, 0, len(pairs))
	for _, p := range pairs {
		preds = append(preds, Equals{Field: p.Key, Value: p.Value})
	}
	if len(preds) == 1 {
		return preds[0]
	}
	return And{Predicates: preds}
}
