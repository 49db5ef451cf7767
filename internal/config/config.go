// Package config loads asof settings from flags, ASOF_* environment
// variables and an optional asof.yaml file, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	"github.com/roach88/asof/internal/engine"
	"github.com/roach88/asof/internal/store"
)

// EnvPrefix prefixes every environment override (ASOF_DATABASE, ...).
const EnvPrefix = "ASOF"

// Keys understood by the loader.
const (
	KeyDatabase      = "database"
	KeyDriver        = "driver"
	KeyClock         = "clock"
	KeyRestorePolicy = "restore_policy"
	KeySchemas       = "schemas"
	KeyLogLevel      = "log_level"
)

// DriverMemory selects the in-memory substrate. Nothing is persisted.
const DriverMemory = "memory"

// Clock kinds.
const (
	ClockWall    = "wall"
	ClockLogical = "logical"
)

// DefaultConfigPaths are searched for asof.yaml when no file is given.
var DefaultConfigPaths = []string{".", "./config"}

// Config is the resolved configuration.
type Config struct {
	// Database is the SQLite file path. Ignored for the memory driver.
	Database string `mapstructure:"database"`

	// Driver is sqlite3 (cgo), sqlite (pure Go) or memory.
	Driver string `mapstructure:"driver"`

	// Clock is wall (Unix microseconds) or logical (a counter resumed
	// from the latest stored timestamp).
	Clock string `mapstructure:"clock"`

	// RestorePolicy is new_interval or reopen.
	RestorePolicy string `mapstructure:"restore_policy"`

	// Schemas is a directory of CUE entity schemas. Empty means the demo
	// schemas.
	Schemas string `mapstructure:"schemas"`

	// LogLevel is debug, info, warn or error.
	LogLevel string `mapstructure:"log_level"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		Database:      "asof.db",
		Driver:        store.DriverCGO,
		Clock:         ClockWall,
		RestorePolicy: string(engine.RestoreNewInterval),
		LogLevel:      "info",
	}
}

// NewViper returns a viper instance with defaults registered and
// ASOF_* environment overrides enabled. Callers bind flags onto it before
// calling Load.
func NewViper() *viper.Viper {
	v := viper.New()
	d := Defaults()
	v.SetDefault(KeyDatabase, d.Database)
	v.SetDefault(KeyDriver, d.Driver)
	v.SetDefault(KeyClock, d.Clock)
	v.SetDefault(KeyRestorePolicy, d.RestorePolicy)
	v.SetDefault(KeySchemas, d.Schemas)
	v.SetDefault(KeyLogLevel, d.LogLevel)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file into v and returns the validated result.
//
// If configFile is empty, asof.yaml is looked up in DefaultConfigPaths and
// may be absent. An explicitly named file must exist.
func Load(v *viper.Viper, configFile string) (Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("asof")
		v.SetConfigType("yaml")
		for _, p := range DefaultConfigPaths {
			v.AddConfigPath(p)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every enumerated setting.
func (c Config) Validate() error {
	var problems []string

	switch c.Driver {
	case store.DriverCGO, store.DriverPureGo:
		if c.Database == "" {
			problems = append(problems, "database is required for driver "+c.Driver)
		}
	case DriverMemory:
	default:
		problems = append(problems, fmt.Sprintf("unknown driver %q (want sqlite3, sqlite or memory)", c.Driver))
	}

	switch c.Clock {
	case ClockWall, ClockLogical:
	default:
		problems = append(problems, fmt.Sprintf("unknown clock %q (want wall or logical)", c.Clock))
	}

	if _, err := engine.ParseRestorePolicy(c.RestorePolicy); err != nil {
		problems = append(problems, fmt.Sprintf("unknown restore_policy %q (want new_interval or reopen)", c.RestorePolicy))
	}

	if _, err := c.Level(); err != nil {
		problems = append(problems, fmt.Sprintf("unknown log_level %q", c.LogLevel))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, err
	}
	return level, nil
}

// Restore returns the parsed restore policy. Call after Validate.
func (c Config) Restore() engine.RestorePolicy {
	p, _ := engine.ParseRestorePolicy(c.RestorePolicy)
	return p
}

// Persistent reports whether the configured substrate survives the process.
func (c Config) Persistent() bool {
	return c.Driver != DriverMemory
}
