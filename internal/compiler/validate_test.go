package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/asof/internal/ir"
)

func codes(errs []ValidationError) []string {
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		out = append(out, e.Code)
	}
	return out
}

func TestValidate_Valid(t *testing.T) {
	schemas := []ir.EntitySchema{
		{Name: "Customer", Purpose: "buys", Fields: map[string]string{"name": "string"}},
		{
			Name:    "Order",
			Purpose: "an order",
			Fields:  map[string]string{"customer_id": "string"},
			Refs:    map[string]string{"customer_id": "Customer"},
		},
	}
	assert.Empty(t, Validate(schemas))
}

func TestValidate_EntityRules(t *testing.T) {
	errs := Validate([]ir.EntitySchema{
		{Name: "", Purpose: " ", Fields: nil},
	})
	assert.ElementsMatch(t, []string{ErrInvalidEntityName, ErrEntityPurposeEmpty, ErrEntityNoFields}, codes(errs))
}

func TestValidate_FieldTypes(t *testing.T) {
	errs := Validate([]ir.EntitySchema{
		{Name: "Product", Purpose: "p", Fields: map[string]string{"price": "float64", "sku": "uuid"}},
	})
	require.Len(t, errs, 2)
	assert.Equal(t, ErrFloatTypeForbidden, errs[0].Code, "price sorts first")
	assert.Equal(t, "entity.Product.fields.price", errs[0].Field)
	assert.Equal(t, ErrInvalidFieldType, errs[1].Code)
}

func TestValidate_References(t *testing.T) {
	errs := Validate([]ir.EntitySchema{
		{
			Name:    "Order",
			Purpose: "o",
			Fields:  map[string]string{"qty": "int", "customer_id": "string"},
			Refs: map[string]string{
				"customer_id": "Customer", // unknown target
				"product_id":  "Order",    // undeclared field
				"qty":         "Order",    // not a string
			},
		},
	})
	assert.Equal(t, []string{ErrRefTargetUnknown, ErrRefFieldUndeclared, ErrRefFieldNotString}, codes(errs))
}

func TestValidate_DuplicateNames(t *testing.T) {
	s := ir.EntitySchema{Name: "Customer", Purpose: "c", Fields: map[string]string{"name": "string"}}
	errs := Validate([]ir.EntitySchema{s, s})
	require.Len(t, errs, 1)
	assert.Equal(t, ErrDuplicateName, errs[0].Code)
	assert.Contains(t, errs[0].Error(), "[E105]")
}
