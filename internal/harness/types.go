package harness

import (
	"github.com/roach88/asof/internal/ir"
)

// TraceEvent records the outcome of one step.
type TraceEvent struct {
	Op     string       `json:"op"`
	Entity string       `json:"entity"` // alias, or the generated ID if unaliased
	At     ir.Timestamp `json:"at"`     // valid_from of the new version; valid_to for delete
	Error  string       `json:"error,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every step behaved as expected and every assertion held.
	Pass bool `json:"pass"`

	// Trace contains one event per step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Histories holds the final history of every entity the scenario
	// created, in creation order.
	Histories []EntityHistory `json:"histories"`
}

// EntityHistory is the full version history of one scenario entity.
type EntityHistory struct {
	Alias    string             `json:"alias"`
	Type     ir.EntityType      `json:"entity_type"`
	ID       ir.EntityID        `json:"entity_id"`
	Versions []ir.VersionRecord `json:"versions"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:      true,
		Trace:     []TraceEvent{},
		Errors:    []string{},
		Histories: []EntityHistory{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a step outcome.
func (r *Result) AddTrace(op, entity string, at ir.Timestamp, code ir.ErrorCode) {
	r.Trace = append(r.Trace, TraceEvent{
		Op:     op,
		Entity: entity,
		At:     at,
		Error:  string(code),
	})
}
