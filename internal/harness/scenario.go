package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/asof/internal/engine"
)

// Scenario defines a temporal test scenario.
// A scenario drives the engine through a sequence of mutations at pinned
// timestamps and then asserts on current state and on history.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Schemas lists CUE files declaring the entity types.
	// Relative paths resolve against the scenario file's directory.
	// If empty, the demo schemas (Customer, Product, Order) are used.
	Schemas []string `yaml:"schemas,omitempty"`

	// RestorePolicy selects how restore treats the deletion gap:
	// "new_interval" (default) or "reopen".
	RestorePolicy string `yaml:"restore_policy,omitempty"`

	// Steps are the mutations, executed in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the resulting state and history.
	// Supported types: current, absent, as_of, between, history, join
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one mutation.
type Step struct {
	// Op is one of create, update, delete, restore.
	Op string `yaml:"op"`

	// Type is the entity type (create only).
	Type string `yaml:"type,omitempty"`

	// As binds an alias to the created entity (create only).
	// Later steps and assertions refer to the entity by this alias.
	As string `yaml:"as,omitempty"`

	// ID pins the entity ID on create. Without it the ID is generated.
	ID string `yaml:"id,omitempty"`

	// Entity is the alias of the target entity (update, delete, restore).
	Entity string `yaml:"entity,omitempty"`

	// At pins the clock reading for this step. Without it the clock ticks
	// by one from the previous reading.
	At *int64 `yaml:"at,omitempty"`

	// Attrs are the new attributes (create, update).
	Attrs map[string]interface{} `yaml:"attrs,omitempty"`

	// Refs maps reference fields to entity aliases. Each resolves to the
	// aliased entity's ID and is merged into Attrs.
	Refs map[string]string `yaml:"refs,omitempty"`

	// ExpectError is the error code the step must fail with
	// (NOT_FOUND, CONFLICT, CLOCK_REGRESSION, INVALID).
	// If empty the step must succeed.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Assertion validates state or history after all steps ran.
type Assertion struct {
	// Type specifies the assertion type:
	// - "current": the entity is live and its row matches Expect
	// - "absent": the entity is not live
	// - "as_of": the version valid at At matches Expect
	// - "between": versions overlapping [From, To) have the listed Starts
	// - "history": the full history has the listed Starts
	// - "join": references of the version at At resolve to Refs
	Type string `yaml:"type"`

	// Entity is the alias of the entity under test.
	Entity string `yaml:"entity"`

	// At is the query timestamp (as_of, join).
	At *int64 `yaml:"at,omitempty"`

	// From and To bound the half-open range (between).
	From *int64 `yaml:"from,omitempty"`
	To   *int64 `yaml:"to,omitempty"`

	// Expect contains expected attribute values (current, as_of).
	// Subset match - only specified fields are validated.
	Expect map[string]interface{} `yaml:"expect,omitempty"`

	// Starts lists the expected valid_from of each version, in order
	// (between, history).
	Starts []int64 `yaml:"starts,omitempty"`

	// Refs maps reference fields to expected attributes of the resolved
	// version (join). Subset match per field.
	Refs map[string]map[string]interface{} `yaml:"refs,omitempty"`

	// ExpectError is the error code the query must fail with
	// (as_of, between, history, join).
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Step operations.
const (
	OpCreate  = "create"
	OpUpdate  = "update"
	OpDelete  = "delete"
	OpRestore = "restore"
)

// Assertion type constants.
const (
	AssertCurrent = "current"
	AssertAbsent  = "absent"
	AssertAsOf    = "as_of"
	AssertBetween = "between"
	AssertHistory = "history"
	AssertJoin    = "join"
)

// LoadScenario reads and parses a scenario YAML file.
// Schema paths resolve against the scenario file's directory.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving schema paths relative to the provided base path.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict decoding catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	for i, schemaPath := range scenario.Schemas {
		if !filepath.IsAbs(schemaPath) && basePath != "" {
			scenario.Schemas[i] = filepath.Join(basePath, schemaPath)
		}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	if _, err := engine.ParseRestorePolicy(s.RestorePolicy); err != nil {
		return fmt.Errorf("restore_policy: %w", err)
	}

	for _, schemaPath := range s.Schemas {
		if _, err := os.Stat(schemaPath); os.IsNotExist(err) {
			return fmt.Errorf("schema file not found: %s", schemaPath)
		}
	}

	// Aliases must be bound by a create before use.
	bound := make(map[string]bool)
	for i, step := range s.Steps {
		if err := validateStep(i, &step, bound); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion, bound); err != nil {
			return err
		}
	}

	return nil
}

func validateStep(index int, st *Step, bound map[string]bool) error {
	for field, alias := range st.Refs {
		if !bound[alias] {
			return fmt.Errorf("steps[%d].refs.%s: unknown entity %q", index, field, alias)
		}
	}

	switch st.Op {
	case OpCreate:
		if st.Type == "" {
			return fmt.Errorf("steps[%d]: type is required for create", index)
		}
		if st.Entity != "" {
			return fmt.Errorf("steps[%d]: create binds an alias with as, not entity", index)
		}
		alias := st.As
		if alias == "" {
			alias = st.ID
		}
		if alias != "" {
			bound[alias] = true
		}
	case OpUpdate, OpDelete, OpRestore:
		if st.Entity == "" {
			return fmt.Errorf("steps[%d]: entity is required for %s", index, st.Op)
		}
		if !bound[st.Entity] {
			return fmt.Errorf("steps[%d]: unknown entity %q", index, st.Entity)
		}
		if st.Op != OpUpdate && (st.Attrs != nil || st.Refs != nil) {
			return fmt.Errorf("steps[%d]: %s takes no attributes", index, st.Op)
		}
	case "":
		return fmt.Errorf("steps[%d]: op is required", index)
	default:
		return fmt.Errorf("steps[%d]: unknown op %q", index, st.Op)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, bound map[string]bool) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if a.Entity == "" {
		return fmt.Errorf("assertions[%d]: entity is required", index)
	}
	if !bound[a.Entity] {
		return fmt.Errorf("assertions[%d]: unknown entity %q", index, a.Entity)
	}

	switch a.Type {
	case AssertCurrent:
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for current", index)
		}
	case AssertAbsent:
	case AssertAsOf:
		if a.At == nil {
			return fmt.Errorf("assertions[%d]: at is required for as_of", index)
		}
		if len(a.Expect) == 0 && a.ExpectError == "" {
			return fmt.Errorf("assertions[%d]: expect or expect_error is required for as_of", index)
		}
	case AssertBetween:
		if a.From == nil || a.To == nil {
			return fmt.Errorf("assertions[%d]: from and to are required for between", index)
		}
	case AssertHistory:
	case AssertJoin:
		if a.At == nil {
			return fmt.Errorf("assertions[%d]: at is required for join", index)
		}
		if len(a.Refs) == 0 && a.ExpectError == "" {
			return fmt.Errorf("assertions[%d]: refs or expect_error is required for join", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
