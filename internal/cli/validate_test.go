package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeSchema writes a CUE file into dir.
func writeSchema(t *testing.T, dir, name, src string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(src), 0644))
}

const shipSchema = `
package test

entity: Ship: {
	purpose: "A vessel with a crew."
	fields: {
		name: string
		crew: int
	}
}
`

func TestValidateValidSchemas(t *testing.T) {
	schemasDir := filepath.Join("..", "..", "schemas")

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{schemasDir})

	err := cmd.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "✓ All schemas valid (3 entity type(s))")
}

func TestValidateValidSchemasJSON(t *testing.T) {
	schemasDir := filepath.Join("..", "..", "schemas")

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "json"}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{schemasDir})

	err := cmd.Execute()
	require.NoError(t, err)

	var result ValidationResult
	resp := decode(t, buf.String(), &result)
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, result.Valid)
	assert.Equal(t, 3, result.Entities)
}

func TestValidateNonExistentDirectory(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"/nonexistent/directory/path"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeNotFound)
	assert.Contains(t, buf.String(), "not found")
}

func TestValidateEmptyDirectory(t *testing.T) {
	tmpDir := t.TempDir()

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{tmpDir})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrCodeNoFiles)
	assert.Contains(t, buf.String(), "no CUE files found")
}

func TestValidateSingleValidEntity(t *testing.T) {
	tmpDir := t.TempDir()
	writeSchema(t, tmpDir, "ship.cue", shipSchema)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{tmpDir})

	err := cmd.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "✓ All schemas valid (1 entity type(s))")
}

func TestValidateMissingPurpose(t *testing.T) {
	tmpDir := t.TempDir()
	writeSchema(t, tmpDir, "bad.cue", `
package test

entity: Bad: {
	fields: { name: string }
}
`)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{tmpDir})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "validation failed")
	assert.Contains(t, buf.String(), "Validation failed")
	assert.Contains(t, buf.String(), ErrCodeEntityPurpose)
	assert.Contains(t, buf.String(), "purpose")
}

func TestValidateMissingPurposeJSON(t *testing.T) {
	tmpDir := t.TempDir()
	writeSchema(t, tmpDir, "bad.cue", `
package test

entity: Bad: {
	fields: { name: string }
}
`)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "json"}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{tmpDir})

	err := cmd.Execute()
	require.Error(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeEntityPurpose, resp.Error.Code)
}

func TestValidateVerboseOutput(t *testing.T) {
	tmpDir := t.TempDir()
	writeSchema(t, tmpDir, "ship.cue", shipSchema)

	stdoutBuf := &bytes.Buffer{}
	stderrBuf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text", Verbose: true}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(stdoutBuf)
	cmd.SetErr(stderrBuf) // Verbose output goes to stderr
	cmd.SetArgs([]string{tmpDir})

	err := cmd.Execute()
	require.NoError(t, err)
	assert.Contains(t, stderrBuf.String(), "Validated 1 entity type(s)")
	assert.NotContains(t, stdoutBuf.String(), "Validated 1")
}

func TestValidateMultipleErrors(t *testing.T) {
	tmpDir := t.TempDir()
	writeSchema(t, tmpDir, "bad1.cue", `
package test

entity: Bad1: {
	fields: { name: string }
}
`)
	writeSchema(t, tmpDir, "bad2.cue", `
package test

entity: Bad2: {
	purpose: "Points at nothing."
	fields: { owner_id: string }
	refs: { owner_id: "Ghost" }
}
`)

	errs, count, err := ValidateSchemasDir(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "Bad2 compiles, Bad1 does not")

	codes := make([]string, len(errs))
	for i, e := range errs {
		codes[i] = e.Code
	}
	assert.Contains(t, codes, ErrCodeEntityPurpose)
	assert.Contains(t, codes, ErrCodeInvalidRef)
}

func TestValidateFloatRejection(t *testing.T) {
	tmpDir := t.TempDir()
	writeSchema(t, tmpDir, "float.cue", `
package test

entity: Bad: {
	purpose: "Has float"
	fields: { price: float }
}
`)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{tmpDir})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, buf.String(), "float")
	assert.Contains(t, buf.String(), "forbidden")
}

func TestValidateSchemasDirNonExistent(t *testing.T) {
	_, _, err := ValidateSchemasDir("/nonexistent/directory")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestMapFieldToErrorCode(t *testing.T) {
	tests := []struct {
		field    string
		expected string
	}{
		{"purpose", "E101"},
		{"fields", "E102"},
		{"type", "E104"},
		{"refs.customer_id", "E112"},
		{"cue", "E001"},
		{"unknown", "E001"},
	}

	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			assert.Equal(t, tt.expected, MapFieldToErrorCode(tt.field))
		})
	}
}
