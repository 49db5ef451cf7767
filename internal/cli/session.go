package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/roach88/asof/internal/config"
	"github.com/roach88/asof/internal/engine"
	"github.com/roach88/asof/internal/ir"
	"github.com/roach88/asof/internal/kv"
	"github.com/roach88/asof/internal/store"
)

// session is an engine over the configured substrate.
type session struct {
	engine *engine.Engine
	db     kv.Substrate
}

func (s *session) Close() error {
	return s.db.Close()
}

// openSession opens the substrate, loads schemas and builds the engine
// described by opts.Config. Failures are command errors (exit 2).
func openSession(ctx context.Context, opts *RootOptions) (*session, error) {
	cfg := opts.Config
	logger := opts.logger()

	schemas := engine.DemoSchemas()
	if cfg.Schemas != "" {
		res, errs := LoadSchemas(cfg.Schemas, LoadModeFailFast)
		if len(errs) > 0 {
			return nil, WrapExitError(ExitCommandError, "failed to load schemas", errs[0])
		}
		schemas = res.Schemas
	}

	var db kv.Substrate
	switch cfg.Driver {
	case config.DriverMemory:
		db = kv.NewMemory()
	default:
		s, err := store.Open(cfg.Database, store.WithDriver(cfg.Driver))
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to open database", err)
		}
		db = s
	}

	var clock engine.Clock
	switch cfg.Clock {
	case config.ClockLogical:
		// Resume after the newest stored boundary so history stays ordered.
		latest, err := engine.New(db, engine.WithLogger(logger)).LatestTimestamp(ctx)
		if err != nil {
			_ = db.Close()
			return nil, WrapExitError(ExitCommandError, "failed to read latest timestamp", err)
		}
		clock = engine.NewLogicalClockAt(latest)
	default:
		clock = engine.NewWallClock()
	}

	logger.Debug("session opened",
		"driver", cfg.Driver,
		"database", cfg.Database,
		"clock", cfg.Clock,
		"restore_policy", cfg.RestorePolicy,
		"schemas", len(schemas),
	)

	return &session{
		engine: engine.New(db,
			engine.WithClock(clock),
			engine.WithIDGenerator(engine.UUIDv7Generator{}),
			engine.WithSchemas(schemas...),
			engine.WithRestorePolicy(cfg.Restore()),
			engine.WithLogger(logger),
		),
		db: db,
	}, nil
}

// withSession runs fn against an open session and closes it afterwards.
// A session that fails to open is reported through f.
func withSession(ctx context.Context, opts *RootOptions, f *OutputFormatter, fn func(s *session) error) (err error) {
	s, err := openSession(ctx, opts)
	if err != nil {
		_ = f.Error(ErrCodeGeneric, err.Error(), nil)
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = WrapExitError(ExitCommandError, "failed to close database", cerr)
		}
	}()
	return fn(s)
}

// parseTimestamp accepts an integer timestamp or an RFC 3339 time, which
// is converted to Unix microseconds like the wall clock.
func parseTimestamp(s string) (ir.Timestamp, error) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ir.Timestamp(n), nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ir.Timestamp(t.UnixMicro()), nil
	}
	return 0, fmt.Errorf("invalid timestamp %q: want an integer or RFC 3339 time", s)
}

// badInput reports a malformed argument as a command error.
func badInput(f *OutputFormatter, err error) error {
	_ = f.Error(ErrCodeBadInput, err.Error(), nil)
	return WrapExitError(ExitCommandError, "invalid input", err)
}
