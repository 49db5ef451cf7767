package compiler

import (
	"errors"
	"os"
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/asof/internal/engine"
	"github.com/roach88/asof/internal/ir"
)

func TestCompileEntityBasic(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`
		entity: Order: {
			purpose: "A customer's order"
			fields: {
				order_date: int
				customer_id: string
				tags: [...string]
				meta: {...}
				paid: bool
			}
			refs: customer_id: "Customer"
		}
	`)
	require.NoError(t, v.Err())

	schema, err := CompileEntity(v.LookupPath(cue.ParsePath("entity.Order")))
	require.NoError(t, err)

	assert.Equal(t, ir.EntityType("Order"), schema.Name)
	assert.Equal(t, "A customer's order", schema.Purpose)
	assert.Equal(t, map[string]string{
		"order_date":  "int",
		"customer_id": "string",
		"tags":        "array",
		"meta":        "object",
		"paid":        "bool",
	}, schema.Fields)
	assert.Equal(t, map[string]string{"customer_id": "Customer"}, schema.Refs)
}

func TestCompileEntityMissingPurpose(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`entity: Bad: fields: name: string`)
	require.NoError(t, v.Err())

	_, err := CompileEntity(v.LookupPath(cue.ParsePath("entity.Bad")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "purpose")
	assert.Contains(t, err.Error(), "required")
}

func TestCompileEntityMissingFields(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`entity: Empty: purpose: "nothing"`)
	require.NoError(t, v.Err())

	_, err := CompileEntity(v.LookupPath(cue.ParsePath("entity.Empty")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fields are required")
}

func TestCompileEntityRejectsFloat(t *testing.T) {
	_, err := CompileString(`
entity: Product: {
	purpose: "for sale"
	fields: price: float
}
`, "product.cue")
	require.Error(t, err)

	var ce *CompileError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "type", ce.Field)
	assert.Contains(t, ce.Message, "float types are forbidden")
}

func TestCompileEntityRejectsNonStringRefTarget(t *testing.T) {
	_, err := CompileString(`
entity: Order: {
	purpose: "x"
	fields: customer_id: string
	refs: customer_id: 42
}
`, "order.cue")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refs.customer_id")
}

func TestCompileStringSyntaxError(t *testing.T) {
	_, err := CompileString("entity: {", "broken.cue")
	require.Error(t, err)

	var ce *CompileError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "cue", ce.Field)
	assert.True(t, ce.Pos.IsValid())
}

func TestCompileStringNoEntities(t *testing.T) {
	schemas, err := CompileString(`other: 1`, "x.cue")
	require.NoError(t, err)
	assert.NotNil(t, schemas)
	assert.Empty(t, schemas)
}

func TestCompileDemoSchemas(t *testing.T) {
	src, err := os.ReadFile("../../schemas/demo.cue")
	require.NoError(t, err)

	schemas, err := CompileString(string(src), "demo.cue")
	require.NoError(t, err)

	names := make([]ir.EntityType, 0, len(schemas))
	for _, s := range schemas {
		names = append(names, s.Name)
	}
	assert.Equal(t, []ir.EntityType{"Customer", "Order", "Product"}, names, "sorted by name")
	assert.ElementsMatch(t, engine.DemoSchemas(), schemas, "CUE and built-in demo schemas agree")
	assert.Empty(t, Validate(schemas))
}
