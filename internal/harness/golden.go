package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/asof/internal/ir"
)

// Snapshot renders a scenario result as canonical JSON for golden
// comparison: the step trace and the final history of every entity.
//
// Version IDs are omitted; the ir tests pin them.
func Snapshot(scenarioName string, result *Result) ([]byte, error) {
	trace := make([]any, len(result.Trace))
	for i, event := range result.Trace {
		m := map[string]any{
			"op":     event.Op,
			"entity": event.Entity,
		}
		if event.Error != "" {
			m["error"] = event.Error
		} else {
			m["at"] = int64(event.At)
		}
		trace[i] = m
	}

	histories := make([]any, len(result.Histories))
	for i, h := range result.Histories {
		versions := make([]any, len(h.Versions))
		for j, v := range h.Versions {
			versions[j] = map[string]any{
				"attributes": v.Attributes,
				"valid_from": int64(v.ValidFrom),
				"valid_to":   int64(v.ValidTo),
			}
		}
		histories[i] = map[string]any{
			"alias":       h.Alias,
			"entity_type": string(h.Type),
			"entity_id":   string(h.ID),
			"versions":    versions,
		}
	}

	return ir.MarshalCanonical(map[string]any{
		"scenario_name": scenarioName,
		"trace":         trace,
		"histories":     histories,
	})
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an already computed result against a golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot, err := Snapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, snapshot)
	return nil
}
