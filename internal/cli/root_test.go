package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/asof/internal/config"
	"github.com/roach88/asof/internal/store"
)

// testOptions returns options for a fresh pure-Go SQLite database with a
// logical clock, so timestamps are 1, 2, 3, ...
func testOptions(t *testing.T, format string) *RootOptions {
	t.Helper()
	cfg := config.Defaults()
	cfg.Database = filepath.Join(t.TempDir(), "asof.db")
	cfg.Driver = store.DriverPureGo
	cfg.Clock = config.ClockLogical
	return &RootOptions{
		Format: format,
		Config: cfg,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// execute runs the command built by newCmd and returns its stdout.
func execute(opts *RootOptions, newCmd func(*RootOptions) *cobra.Command, args ...string) (string, error) {
	buf := &bytes.Buffer{}
	cmd := newCmd(opts)
	cmd.SetOut(buf)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// decode parses a JSON CLIResponse, decoding Data into data.
func decode(t *testing.T, out string, data any) CLIResponse {
	t.Helper()
	var raw struct {
		CLIResponse
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &raw), out)
	if data != nil && len(raw.Data) > 0 {
		require.NoError(t, json.Unmarshal(raw.Data, data))
	}
	return raw.CLIResponse
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "asof", cmd.Use)
	assert.Contains(t, cmd.Long, "history")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{
		"seed", "get", "find", "put", "delete", "restore",
		"history", "asof", "join", "rebuild", "verify",
		"compile", "validate", "test",
	}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	// Config-backed flags default to empty so viper defaults, env and
	// config file are not shadowed.
	for _, name := range []string{"db", "driver", "clock", "restore-policy", "schemas", "config"} {
		flag := cmd.PersistentFlags().Lookup(name)
		require.NotNil(t, flag, name)
		assert.Equal(t, "", flag.DefValue, name)
	}
}

func TestCompileCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	compileCmd, _, err := cmd.Find([]string{"compile"})
	require.NoError(t, err)

	outputFlag := compileCmd.Flags().Lookup("output")
	require.NotNil(t, outputFlag)
	assert.Equal(t, "o", outputFlag.Shorthand)
}

func TestPutCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	putCmd, _, err := cmd.Find([]string{"put"})
	require.NoError(t, err)

	attrsFlag := putCmd.Flags().Lookup("attrs")
	require.NotNil(t, attrsFlag)
	assert.Equal(t, "{}", attrsFlag.DefValue)
}

func TestHistoryCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	historyCmd, _, err := cmd.Find([]string{"history"})
	require.NoError(t, err)

	for _, name := range []string{"where", "from", "to"} {
		assert.NotNil(t, historyCmd.Flags().Lookup(name), name)
	}
}

func TestTestCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	testCmd, _, err := cmd.Find([]string{"test"})
	require.NoError(t, err)

	updateFlag := testCmd.Flags().Lookup("update")
	require.NotNil(t, updateFlag)
	assert.Equal(t, "false", updateFlag.DefValue)

	filterFlag := testCmd.Flags().Lookup("filter")
	require.NotNil(t, filterFlag)
}

func TestFormatValidation(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))

	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("TEXT"))
}

func TestFormatValidationIntegration(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"--format", "invalid", "compile", "."})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestRootCommand_InvalidConfigIsCommandError(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"--driver", "postgres", "get", "Customer"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "unknown driver")
}

func TestRootCommand_FlagsReachSession(t *testing.T) {
	db := filepath.Join(t.TempDir(), "flags.db")
	run := func(args ...string) string {
		buf := &bytes.Buffer{}
		cmd := NewRootCommand()
		cmd.SetOut(buf)
		cmd.SetErr(io.Discard)
		cmd.SetArgs(append([]string{"--db", db, "--driver", "sqlite", "--clock", "logical", "--format", "json"}, args...))
		require.NoError(t, cmd.Execute(), buf.String())
		return buf.String()
	}

	run("put", "Customer", "arthur", "--attrs", `{"name": "Arthur"}`)

	var rows []map[string]any
	resp := decode(t, run("get", "Customer", "arthur"), &rows)
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, rows, 1)
	assert.Equal(t, "arthur", rows[0]["entity_id"])
	assert.EqualValues(t, 1, rows[0]["version_from"])
}
