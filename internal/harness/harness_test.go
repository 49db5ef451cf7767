package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/asof/internal/ir"
)

func ts(v int64) *int64 { return &v }

func customerScenario(steps ...Step) *Scenario {
	base := []Step{
		{Op: OpCreate, Type: "Customer", As: "arthur", At: ts(10), Attrs: map[string]interface{}{"name": "Arthur"}},
	}
	return &Scenario{
		Name:        "customer",
		Description: "customer lifecycle",
		Steps:       append(base, steps...),
		Assertions:  []Assertion{{Type: AssertHistory, Entity: "arthur", Starts: []int64{10}}},
	}
}

func TestRun_MinimalScenario(t *testing.T) {
	result, err := Run(customerScenario())
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Empty(t, result.Errors)

	require.Len(t, result.Trace, 1)
	assert.Equal(t, TraceEvent{Op: OpCreate, Entity: "arthur", At: 10}, result.Trace[0])

	require.Len(t, result.Histories, 1)
	h := result.Histories[0]
	assert.Equal(t, "arthur", h.Alias)
	assert.Equal(t, ir.EntityType("Customer"), h.Type)
	assert.Equal(t, ir.EntityID("id-1"), h.ID)
	require.Len(t, h.Versions, 1)
	assert.True(t, h.Versions[0].IsOpen())
}

func TestRun_UnpinnedStepsTick(t *testing.T) {
	s := customerScenario(
		Step{Op: OpUpdate, Entity: "arthur", Attrs: map[string]interface{}{"name": "Arthur Dent"}},
		Step{Op: OpDelete, Entity: "arthur"},
	)
	s.Assertions = []Assertion{{Type: AssertHistory, Entity: "arthur", Starts: []int64{10, 11}}}

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	require.Len(t, result.Trace, 3)
	assert.Equal(t, ir.Timestamp(11), result.Trace[1].At)
	assert.Equal(t, ir.Timestamp(12), result.Trace[2].At, "delete reports valid_to of the closed version")
}

func TestRun_ExpectedErrorPasses(t *testing.T) {
	s := customerScenario(
		Step{Op: OpUpdate, Entity: "arthur", At: ts(10), Attrs: map[string]interface{}{"name": "Too Soon"}, ExpectError: "CLOCK_REGRESSION"},
	)

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	require.Len(t, result.Trace, 2)
	assert.Equal(t, "CLOCK_REGRESSION", result.Trace[1].Error)
	assert.Zero(t, result.Trace[1].At)
}

func TestRun_UnexpectedErrorFails(t *testing.T) {
	s := customerScenario(
		Step{Op: OpRestore, Entity: "arthur"},
	)

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "unexpected error")
	assert.Contains(t, result.Errors[0], "CONFLICT")
}

func TestRun_MissingExpectedErrorFails(t *testing.T) {
	s := customerScenario(
		Step{Op: OpDelete, Entity: "arthur", ExpectError: "NOT_FOUND"},
	)

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "expected NOT_FOUND, succeeded")
}

func TestRun_WrongErrorCodeFails(t *testing.T) {
	s := customerScenario(
		Step{Op: OpUpdate, Entity: "arthur", At: ts(5), Attrs: map[string]interface{}{"name": "x"}, ExpectError: "CONFLICT"},
	)

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "expected CONFLICT, got")
}

func TestRun_SchemaViolationIsInvalid(t *testing.T) {
	s := customerScenario(
		Step{Op: OpUpdate, Entity: "arthur", Attrs: map[string]interface{}{"nickname": "Art"}, ExpectError: "INVALID"},
	)

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_RefsResolveAliases(t *testing.T) {
	s := customerScenario(
		Step{Op: OpCreate, Type: "Product", As: "car", At: ts(11), Attrs: map[string]interface{}{"name": "DeLorean", "price": 1000000}},
		Step{
			Op: OpCreate, Type: "Order", As: "order", At: ts(12),
			Attrs: map[string]interface{}{"order_date": 12},
			Refs:  map[string]string{"customer_id": "arthur", "product_id": "car"},
		},
	)
	s.Assertions = []Assertion{{
		Type:   AssertJoin,
		Entity: "order",
		At:     ts(12),
		Refs: map[string]map[string]interface{}{
			"customer_id": {"name": "Arthur"},
			"product_id":  {"price": 1000000},
		},
	}}

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	require.Len(t, result.Histories, 3)
	order := result.Histories[2]
	assert.Equal(t, ir.String("id-1"), order.Versions[0].Attributes["customer_id"])
	assert.Equal(t, ir.String("id-2"), order.Versions[0].Attributes["product_id"])
}

func TestRun_Deterministic(t *testing.T) {
	s := customerScenario(
		Step{Op: OpUpdate, Entity: "arthur", Attrs: map[string]interface{}{"name": "Arthur Dent"}},
	)
	s.Assertions = []Assertion{{Type: AssertCurrent, Entity: "arthur", Expect: map[string]interface{}{"name": "Arthur Dent"}}}

	first, err := Run(s)
	require.NoError(t, err)
	second, err := Run(s)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestRun_FreshSubstratePerRun(t *testing.T) {
	s := customerScenario()

	first, err := Run(s)
	require.NoError(t, err)
	second, err := Run(s)
	require.NoError(t, err)

	// A shared substrate would fail the second create's history check.
	assert.True(t, first.Pass)
	assert.True(t, second.Pass)
	assert.Equal(t, ir.EntityID("id-1"), second.Histories[0].ID)
}

func TestRun_RestorePolicyReopen(t *testing.T) {
	s := customerScenario(
		Step{Op: OpDelete, Entity: "arthur", At: ts(20)},
		Step{Op: OpRestore, Entity: "arthur", At: ts(30)},
	)
	s.RestorePolicy = "reopen"
	s.Assertions = []Assertion{
		{Type: AssertHistory, Entity: "arthur", Starts: []int64{10}},
		{Type: AssertAsOf, Entity: "arthur", At: ts(25), Expect: map[string]interface{}{"name": "Arthur"}},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_FloatsForbidden(t *testing.T) {
	s := customerScenario(
		Step{Op: OpUpdate, Entity: "arthur", Attrs: map[string]interface{}{"name": 1.5}},
	)

	_, err := Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "floats are not allowed")
}

func TestRun_NullsForbidden(t *testing.T) {
	s := customerScenario(
		Step{Op: OpUpdate, Entity: "arthur", Attrs: map[string]interface{}{"name": nil}},
	)

	_, err := Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "null")
}

func TestRun_CustomSchemas(t *testing.T) {
	dir := t.TempDir()
	src := `package schemas

entity: Ship: {
	purpose: "A vessel."
	fields: {
		name: string
		crew: int
	}
}
`
	path := filepath.Join(dir, "ship.cue")
	require.NoError(t, os.WriteFile(path, []byte(src), 0644))

	s := &Scenario{
		Name:        "ship",
		Description: "custom schema",
		Schemas:     []string{path},
		Steps: []Step{
			{Op: OpCreate, Type: "Ship", As: "heart", Attrs: map[string]interface{}{"name": "Heart of Gold", "crew": 4}},
			{Op: OpCreate, Type: "Ship", As: "ghost", Attrs: map[string]interface{}{"name": "Ghost"}, ExpectError: "INVALID"},
		},
		Assertions: []Assertion{{Type: AssertCurrent, Entity: "heart", Expect: map[string]interface{}{"crew": 4}}},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_BadSchemaFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.cue")
	require.NoError(t, os.WriteFile(path, []byte("entity: Ship: {"), 0644))

	s := customerScenario()
	s.Schemas = []string{path}

	_, err := Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to compile")
}

func TestResult_AddError(t *testing.T) {
	r := NewResult()
	assert.True(t, r.Pass)

	r.AddError("boom")
	assert.False(t, r.Pass)
	assert.Equal(t, []string{"boom"}, r.Errors)
}

func TestResult_AddTrace(t *testing.T) {
	r := NewResult()
	r.AddTrace(OpCreate, "a", 3, "")
	r.AddTrace(OpUpdate, "a", 0, ir.CodeNotFound)

	require.Len(t, r.Trace, 2)
	assert.Equal(t, TraceEvent{Op: OpCreate, Entity: "a", At: 3}, r.Trace[0])
	assert.Equal(t, TraceEvent{Op: OpUpdate, Entity: "a", Error: "NOT_FOUND"}, r.Trace[1])
}
