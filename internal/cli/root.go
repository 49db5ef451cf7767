package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/roach88/asof/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigFile string

	// Config is resolved from flags, ASOF_* env and asof.yaml before any
	// subcommand runs.
	Config config.Config

	// Logger receives engine logs. Nil means slog.Default().
	Logger *slog.Logger

	viper *viper.Viper
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the asof CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{viper: config.NewViper()}

	cmd := &cobra.Command{
		Use:   "asof",
		Short: "asof - temporal versioning for entities",
		Long: `asof keeps the full history of every entity: each update closes the
current version and opens a new one, so any past state can be queried.`,
		SilenceErrors: true, // main reports the error and exit code
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			cfg, err := config.Load(opts.viper, opts.ConfigFile)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load config", err)
			}
			opts.Config = cfg
			opts.Logger = newLogger(cmd.ErrOrStderr(), cfg, opts.Verbose)
			return nil
		},
	}

	// Global flags
	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	flags.StringVar(&opts.ConfigFile, "config", "", "config file (default: asof.yaml in . or ./config)")
	flags.String("db", "", "path to SQLite database (default asof.db)")
	flags.String("driver", "", "storage driver: sqlite3, sqlite or memory (default sqlite3)")
	flags.String("clock", "", "clock: wall or logical (default wall)")
	flags.String("restore-policy", "", "restore policy: new_interval or reopen (default new_interval)")
	flags.String("schemas", "", "directory of CUE entity schemas (default: demo schemas)")

	for key, flag := range map[string]string{
		config.KeyDatabase:      "db",
		config.KeyDriver:        "driver",
		config.KeyClock:         "clock",
		config.KeyRestorePolicy: "restore-policy",
		config.KeySchemas:       "schemas",
	} {
		_ = opts.viper.BindPFlag(key, flags.Lookup(flag))
	}

	// Add subcommands
	cmd.AddCommand(NewSeedCommand(opts))
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewFindCommand(opts))
	cmd.AddCommand(NewPutCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewRestoreCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewAsOfCommand(opts))
	cmd.AddCommand(NewJoinCommand(opts))
	cmd.AddCommand(NewRebuildCommand(opts))
	cmd.AddCommand(NewVerifyCommand(opts))
	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// newLogger writes text logs to w at the configured level, or Debug when
// verbose.
func newLogger(w io.Writer, cfg config.Config, verbose bool) *slog.Logger {
	level, err := cfg.Level()
	if err != nil {
		level = slog.LevelInfo
	}
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func (o *RootOptions) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// formatter builds the output formatter for cmd.
// Verbose logs go to stderr to avoid corrupting JSON.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}
