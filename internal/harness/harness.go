package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/roach88/asof/internal/compiler"
	"github.com/roach88/asof/internal/engine"
	"github.com/roach88/asof/internal/ir"
	"github.com/roach88/asof/internal/kv"
	"github.com/roach88/asof/internal/testutil"
)

// Harness is the test execution engine.
// It runs scenarios against a real engine with a deterministic clock and
// sequential IDs, so every run of a scenario produces identical history.
type Harness struct {
	engine   *engine.Engine
	clock    *testutil.DeterministicClock
	logger   *slog.Logger
	entities map[string]entityRef
	order    []string // aliases in creation order
}

type entityRef struct {
	Type ir.EntityType
	ID   ir.EntityID
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs against a fresh in-memory substrate for isolation.
//
// Execution flow:
// 1. Compile the scenario's schemas (or take the demo schemas)
// 2. Execute steps, checking each against its expect_error
// 3. Evaluate assertions
// 4. Capture the history of every created entity
//
// A step or assertion that misbehaves is recorded in Result.Errors. Run
// itself fails only when the scenario cannot be executed at all, such as
// unparseable schemas or attributes.
func Run(scenario *Scenario) (*Result, error) {
	schemas, err := loadSchemas(scenario.Schemas)
	if err != nil {
		return nil, err
	}
	policy, err := engine.ParseRestorePolicy(scenario.RestorePolicy)
	if err != nil {
		return nil, err
	}

	clock := testutil.NewDeterministicClock()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests

	h := &Harness{
		engine: engine.New(kv.NewMemory(),
			engine.WithClock(clock),
			engine.WithIDGenerator(testutil.NewSequentialIDGenerator("id")),
			engine.WithSchemas(schemas...),
			engine.WithRestorePolicy(policy),
			engine.WithLogger(logger),
		),
		clock:    clock,
		logger:   logger,
		entities: make(map[string]entityRef),
	}

	ctx := context.Background()
	result := NewResult()

	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("failed to execute step %d: %w", i, err)
		}
	}

	for _, errMsg := range h.evaluateAssertions(ctx, scenario.Assertions) {
		result.AddError(errMsg)
	}

	if err := h.captureHistories(ctx, result); err != nil {
		return nil, fmt.Errorf("failed to capture histories: %w", err)
	}

	return result, nil
}

// loadSchemas compiles and validates the CUE files at paths.
func loadSchemas(paths []string) ([]ir.EntitySchema, error) {
	if len(paths) == 0 {
		return engine.DemoSchemas(), nil
	}

	var schemas []ir.EntitySchema
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read schema file: %w", err)
		}
		compiled, err := compiler.CompileString(string(data), path)
		if err != nil {
			return nil, fmt.Errorf("failed to compile %s: %w", path, err)
		}
		schemas = append(schemas, compiled...)
	}

	if errs := compiler.Validate(schemas); len(errs) > 0 {
		return nil, fmt.Errorf("invalid schemas: %w", errs[0])
	}
	return schemas, nil
}

// executeStep runs one mutation and compares its outcome with the step's
// expect_error clause.
func (h *Harness) executeStep(ctx context.Context, i int, step Step, result *Result) error {
	attrs, err := h.stepAttributes(step)
	if err != nil {
		return err
	}

	if step.At != nil {
		h.clock.Set(ir.Timestamp(*step.At))
	}

	var (
		rec    ir.VersionRecord
		opErr  error
		target = h.entities[step.Entity]
	)
	switch step.Op {
	case OpCreate:
		t := ir.EntityType(step.Type)
		if step.ID != "" {
			rec, opErr = h.engine.CreateWithID(ctx, t, ir.EntityID(step.ID), attrs)
		} else {
			rec, opErr = h.engine.Create(ctx, t, attrs)
		}
		if opErr == nil || step.ID != "" {
			id := ir.EntityID(step.ID)
			if opErr == nil {
				id = rec.EntityID
			}
			h.bind(step.As, entityRef{Type: t, ID: id})
		}
	case OpUpdate:
		rec, opErr = h.engine.Update(ctx, target.Type, target.ID, attrs)
	case OpDelete:
		rec, opErr = h.engine.Delete(ctx, target.Type, target.ID)
	case OpRestore:
		rec, opErr = h.engine.Restore(ctx, target.Type, target.ID)
	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}

	name := step.Entity
	if step.Op == OpCreate {
		name = h.aliasOf(step, rec)
	}

	code := ir.CodeOf(opErr)
	if opErr != nil && (code == "" || code == ir.CodeStorage) {
		return opErr
	}

	at := rec.ValidFrom
	if step.Op == OpDelete {
		at = rec.ValidTo
	}
	if opErr != nil {
		at = 0
	}
	result.AddTrace(step.Op, name, at, code)

	switch {
	case step.ExpectError == "" && opErr != nil:
		result.AddError(fmt.Sprintf("steps[%d] %s %s: unexpected error: %v", i, step.Op, name, opErr))
	case step.ExpectError != "" && opErr == nil:
		result.AddError(fmt.Sprintf("steps[%d] %s %s: expected %s, succeeded", i, step.Op, name, step.ExpectError))
	case step.ExpectError != "" && string(code) != step.ExpectError:
		result.AddError(fmt.Sprintf("steps[%d] %s %s: expected %s, got %v", i, step.Op, name, step.ExpectError, opErr))
	}

	h.logger.Info("step completed",
		"step", i,
		"op", step.Op,
		"entity", name,
		"at", int64(at),
		"error", string(code),
	)
	return nil
}

// stepAttributes converts YAML attributes to an ir.Object and merges in
// reference aliases.
func (h *Harness) stepAttributes(step Step) (ir.Object, error) {
	attrs, err := convertAttrsToIRObject(step.Attrs)
	if err != nil {
		return nil, err
	}
	for field, alias := range step.Refs {
		ref, ok := h.entities[alias]
		if !ok {
			return nil, fmt.Errorf("refs.%s: entity %q was never created", field, alias)
		}
		attrs[field] = ir.String(ref.ID)
	}
	return attrs, nil
}

func (h *Harness) aliasOf(step Step, rec ir.VersionRecord) string {
	switch {
	case step.As != "":
		return step.As
	case step.ID != "":
		return step.ID
	default:
		return string(rec.EntityID)
	}
}

func (h *Harness) bind(alias string, ref entityRef) {
	if alias == "" {
		alias = string(ref.ID)
	}
	if _, ok := h.entities[alias]; !ok {
		h.order = append(h.order, alias)
	}
	h.entities[alias] = ref
}

// captureHistories records the full history of every bound entity.
// Entities whose create failed have no history and are skipped.
func (h *Harness) captureHistories(ctx context.Context, result *Result) error {
	for _, alias := range h.order {
		ref := h.entities[alias]
		versions, err := h.engine.All(ctx, ref.Type, ref.ID)
		if ir.IsNotFound(err) {
			continue
		}
		if err != nil {
			return err
		}
		result.Histories = append(result.Histories, EntityHistory{
			Alias:    alias,
			Type:     ref.Type,
			ID:       ref.ID,
			Versions: versions,
		})
	}
	return nil
}

// convertAttrsToIRObject converts YAML-parsed attributes to ir.Object.
// Nulls and non-integral numbers are rejected.
func convertAttrsToIRObject(attrs map[string]interface{}) (ir.Object, error) {
	result := make(ir.Object, len(attrs))
	for key, val := range attrs {
		irVal, err := ir.FromAny(val)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		result[key] = irVal
	}
	return result, nil
}
