package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var scenariosDir = filepath.Join("..", "..", "testdata", "scenarios")

const passingScenario = `name: arthur_renamed
description: Arthur changes his name.
steps:
  - op: create
    type: Customer
    as: arthur
    at: 10
    attrs: { name: Arthur }
  - op: update
    entity: arthur
    at: 20
    attrs: { name: Arthur Dent }
assertions:
  - type: history
    entity: arthur
    starts: [10, 20]
`

const failingScenario = `name: wrong_history
description: Asserts a history that did not happen.
steps:
  - op: create
    type: Customer
    as: arthur
    at: 10
    attrs: { name: Arthur }
assertions:
  - type: history
    entity: arthur
    starts: [10, 20]
`

func writeScenario(t *testing.T, dir, name, src string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(src), 0644))
	return path
}

func TestTestCommandMissingArgs(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewTestCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTestCommandNonExistentScenarios(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewTestCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"/nonexistent/scenarios"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios path not found")
}

func TestTestCommandEmptyScenariosDir(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewTestCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{t.TempDir()})

	err := cmd.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "No scenarios found")
}

func TestTestCommandEmptyScenariosDirJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "json"}
	cmd := NewTestCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{t.TempDir()})

	err := cmd.Execute()
	require.NoError(t, err)

	var response CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &response))
	assert.Equal(t, "ok", response.Status)
}

func TestTestCommandRunsRepoScenarios(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewTestCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{scenariosDir})

	err := cmd.Execute()
	require.NoError(t, err, buf.String())

	output := buf.String()
	assert.Contains(t, output, "✓ delorean")
	assert.Contains(t, output, "✓ arthur_restore")
	assert.Contains(t, output, "✓ arthur_reopen")
	assert.Contains(t, output, "Test Summary: 3 passed, 0 failed, 3 total")
}

func TestTestCommandFilter(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "json"}
	cmd := NewTestCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{scenariosDir, "--filter", "arthur_*"})

	require.NoError(t, cmd.Execute())

	var result TestResult
	resp := decode(t, buf.String(), &result)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 2, result.Passed)
}

func TestTestCommandFailingScenario(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "wrong.yaml", failingScenario)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewTestCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{dir})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	output := buf.String()
	assert.Contains(t, output, "✗ wrong_history")
	assert.Contains(t, output, "Expected: versions starting at [10 20]")
	assert.Contains(t, output, "Actual: versions starting at [10]")
	assert.Contains(t, output, "Test Summary: 0 passed, 1 failed, 1 total")
}

func TestTestCommandLoadError(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "broken.yaml", "name: broken\nstepz: []\n")

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "json"}
	cmd := NewTestCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{dir})

	err := cmd.Execute()
	require.Error(t, err)

	var result TestResult
	resp := decode(t, buf.String(), &result)
	assert.Equal(t, "error", resp.Status)
	require.Len(t, result.Scenarios, 1)
	assert.Equal(t, "broken.yaml", result.Scenarios[0].Name)
	assert.Contains(t, result.Scenarios[0].Errors[0], "failed to load scenario")
}

func TestTestCommandGoldenLifecycle(t *testing.T) {
	dir := t.TempDir()
	scenarioFile := writeScenario(t, dir, "refit.yaml", passingScenario)
	rootOpts := &RootOptions{Format: "text", Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	run := func(args ...string) (string, error) {
		buf := &bytes.Buffer{}
		cmd := NewTestCommand(rootOpts)
		cmd.SetOut(buf)
		cmd.SetArgs(args)
		err := cmd.Execute()
		return buf.String(), err
	}

	out, err := run(dir, "--update")
	require.NoError(t, err, out)
	golden, err := os.ReadFile(goldenFilePath(scenarioFile))
	require.NoError(t, err)
	assert.Contains(t, string(golden), `"scenario_name":"arthur_renamed"`)

	out, err = run(dir)
	require.NoError(t, err, out)

	require.NoError(t, os.WriteFile(goldenFilePath(scenarioFile), []byte("{}"), 0644))
	out, err = run(dir)
	require.Error(t, err)
	assert.Contains(t, out, "does not match golden file")
}

func TestFindScenarioFiles(t *testing.T) {
	tmpDir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "test1.yaml"), []byte(""), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "test2.yml"), []byte(""), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "ignore.txt"), []byte(""), 0644))

	files, err := findScenarioFiles(tmpDir, "")
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestFindScenarioFilesWithFilter(t *testing.T) {
	tmpDir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "arthur-create.yaml"), []byte(""), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "arthur-restore.yaml"), []byte(""), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "delorean.yaml"), []byte(""), 0644))

	files, err := findScenarioFiles(tmpDir, "arthur-*")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(tmpDir, "arthur-create.yaml"),
		filepath.Join(tmpDir, "arthur-restore.yaml"),
	}, files)

	_, err = findScenarioFiles(tmpDir, "[")
	assert.Error(t, err)
}

func TestFindScenarioFilesSingleFile(t *testing.T) {
	path := filepath.Join(scenariosDir, "delorean.yaml")

	files, err := findScenarioFiles(path, "")
	require.NoError(t, err)
	assert.Equal(t, []string{path}, files)
}

func TestGoldenFilePath(t *testing.T) {
	testCases := []struct {
		input    string
		expected string
	}{
		{"/path/to/scenario.yaml", "/path/to/golden/scenario.golden"},
		{"/path/to/scenario.yml", "/path/to/golden/scenario.golden"},
		{"scenarios/test.yaml", "scenarios/golden/test.golden"},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expected, goldenFilePath(tc.input))
	}
}
