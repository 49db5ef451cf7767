package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roach88/asof/internal/engine"
	"github.com/roach88/asof/internal/ir"
	"github.com/roach88/asof/internal/queryir"
)

// QueryOptions holds flags shared by the history queries.
type QueryOptions struct {
	*RootOptions
	Where []string
	From  string
	To    string
	At    string
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <type> [id]",
		Short: "Show current entities",
		Long: `Show the current row of an entity, or of every live entity of the
type when no id is given. Deleted entities are not shown.`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			ctx := cmd.Context()
			t := ir.EntityType(args[0])
			return withSession(ctx, rootOpts, f, func(s *session) error {
				if len(args) == 2 {
					row, err := s.engine.Get(ctx, t, ir.EntityID(args[1]))
					if err != nil {
						return f.EngineError("get", err)
					}
					return reportRows(f, []ir.Row{row})
				}
				rows, err := s.engine.List(ctx, t)
				if err != nil {
					return f.EngineError("list", err)
				}
				return reportRows(f, rows)
			})
		},
	}

	return cmd
}

// NewFindCommand creates the find command.
func NewFindCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "find <type> <field=value>...",
		Short: "Find current entities by attribute",
		Long: `Show the live entities of a type whose current attributes equal every
given field=value. Values parse as int, then bool, then string; quote a
value to force a string (name='"42"').`,
		Example:       `  asof find Product name=DeLorean`,
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			ctx := cmd.Context()
			pred, err := queryir.ParseFilter(args[1:])
			if err != nil {
				return badInput(f, err)
			}
			return withSession(ctx, rootOpts, f, func(s *session) error {
				rows, err := s.engine.Find(ctx, ir.EntityType(args[0]), pred)
				if err != nil {
					return f.EngineError("find", err)
				}
				return reportRows(f, rows)
			})
		},
	}

	return cmd
}

// NewAsOfCommand creates the asof command.
func NewAsOfCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "asof <type> <timestamp> [id]",
		Short: "Show entities as they were at a timestamp",
		Long: `Show the version valid at a timestamp: of one entity when an id is
given, otherwise of every entity of the type matching --where.

Timestamps are integers (Unix microseconds for the wall clock) or RFC 3339
times.`,
		Example: `  asof asof Product 2024-06-01T00:00:00Z --where name=DeLorean
  asof asof Customer 1718000000000000 0190c1f4-...`,
		Args:          cobra.RangeArgs(2, 3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsOf(cmd, opts, args)
		},
	}

	cmd.Flags().StringArrayVar(&opts.Where, "where", nil, "field=value filter (repeatable)")

	return cmd
}

func runAsOf(cmd *cobra.Command, opts *QueryOptions, args []string) error {
	f := opts.formatter(cmd)
	ctx := cmd.Context()
	t := ir.EntityType(args[0])

	at, err := parseTimestamp(args[1])
	if err != nil {
		return badInput(f, err)
	}
	pred, err := queryir.ParseFilter(opts.Where)
	if err != nil {
		return badInput(f, err)
	}
	if len(args) == 3 && pred != nil {
		return badInput(f, fmt.Errorf("--where cannot be combined with an id"))
	}

	return withSession(ctx, opts.RootOptions, f, func(s *session) error {
		if len(args) == 3 {
			rec, err := s.engine.AsOf(ctx, t, ir.EntityID(args[2]), at)
			if err != nil {
				return f.EngineError("asof", err)
			}
			return reportVersions(f, []ir.VersionRecord{rec})
		}
		recs, err := s.engine.AsOfWhere(ctx, queryir.Select{From: t, Filter: pred}, at)
		if err != nil {
			return f.EngineError("asof", err)
		}
		return reportVersions(f, recs)
	})
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history <type> [id]",
		Short: "Show version history",
		Long: `Show every version of an entity, ordered by valid_from, or of every
entity of the type matching --where when no id is given.

With --from and --to only versions overlapping [from, to) are shown. Either
bound may be omitted.`,
		Example: `  asof history Product 0190c1f4-...
  asof history Product --where name=DeLorean --from 2024-01-01T00:00:00Z`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, opts, args)
		},
	}

	cmd.Flags().StringArrayVar(&opts.Where, "where", nil, "field=value filter (repeatable)")
	cmd.Flags().StringVar(&opts.From, "from", "", "range start, inclusive")
	cmd.Flags().StringVar(&opts.To, "to", "", "range end, exclusive")

	return cmd
}

func runHistory(cmd *cobra.Command, opts *QueryOptions, args []string) error {
	f := opts.formatter(cmd)
	ctx := cmd.Context()
	t := ir.EntityType(args[0])

	pred, err := queryir.ParseFilter(opts.Where)
	if err != nil {
		return badInput(f, err)
	}
	if len(args) == 2 && pred != nil {
		return badInput(f, fmt.Errorf("--where cannot be combined with an id"))
	}
	from, to, ranged, err := parseRange(opts.From, opts.To)
	if err != nil {
		return badInput(f, err)
	}

	return withSession(ctx, opts.RootOptions, f, func(s *session) error {
		var (
			recs []ir.VersionRecord
			err  error
		)
		sel := queryir.Select{From: t, Filter: pred}
		switch {
		case len(args) == 2 && ranged:
			recs, err = s.engine.Between(ctx, t, ir.EntityID(args[1]), from, to)
		case len(args) == 2:
			recs, err = s.engine.All(ctx, t, ir.EntityID(args[1]))
		case ranged:
			recs, err = s.engine.BetweenWhere(ctx, sel, from, to)
		default:
			recs, err = s.engine.AllWhere(ctx, sel)
		}
		if err != nil {
			return f.EngineError("history", err)
		}
		return reportVersions(f, recs)
	})
}

// parseRange parses optional --from/--to bounds. An omitted bound is
// open: 0 for from, Forever for to.
func parseRange(fromArg, toArg string) (from, to ir.Timestamp, ranged bool, err error) {
	from, to = 0, ir.Forever
	if fromArg != "" {
		if from, err = parseTimestamp(fromArg); err != nil {
			return 0, 0, false, err
		}
		ranged = true
	}
	if toArg != "" {
		if to, err = parseTimestamp(toArg); err != nil {
			return 0, 0, false, err
		}
		ranged = true
	}
	return from, to, ranged, nil
}

// NewJoinCommand creates the join command.
func NewJoinCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "join <type> <id>",
		Short: "Resolve an entity's references",
		Long: `Show an entity together with the entities its reference fields point
to. With --at, the entity and every reference are taken as of that
timestamp; otherwise the current rows are used.`,
		Example:       `  asof join Order 0190c1f4-... --at 2024-06-01T00:00:00Z`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJoin(cmd, opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.At, "at", "", "resolve as of this timestamp")

	return cmd
}

func runJoin(cmd *cobra.Command, opts *QueryOptions, args []string) error {
	f := opts.formatter(cmd)
	ctx := cmd.Context()
	t, id := ir.EntityType(args[0]), ir.EntityID(args[1])

	var at ir.Timestamp
	if opts.At != "" {
		var err error
		if at, err = parseTimestamp(opts.At); err != nil {
			return badInput(f, err)
		}
	}

	return withSession(ctx, opts.RootOptions, f, func(s *session) error {
		if opts.At != "" {
			joined, err := s.engine.AsOfJoin(ctx, t, id, at)
			if err != nil {
				return f.EngineError("join", err)
			}
			return reportJoined(f, joined)
		}
		row, err := s.engine.Get(ctx, t, id)
		if err != nil {
			return f.EngineError("join", err)
		}
		joined, err := s.engine.ResolveCurrent(ctx, row)
		if err != nil {
			return f.EngineError("join", err)
		}
		return reportJoinedRow(f, joined)
	})
}

func reportRows(f *OutputFormatter, rows []ir.Row) error {
	if f.Format == "json" {
		return f.Success(rows)
	}
	return printRows(f.Writer, rows)
}

func reportVersions(f *OutputFormatter, recs []ir.VersionRecord) error {
	if f.Format == "json" {
		return f.Success(recs)
	}
	return printVersions(f.Writer, recs)
}

func reportJoined(f *OutputFormatter, j engine.Joined) error {
	if f.Format == "json" {
		return f.Success(j)
	}
	if err := printVersions(f.Writer, []ir.VersionRecord{j.Record}); err != nil {
		return err
	}
	for _, field := range sortedFields(j.Refs) {
		ref := j.Refs[field]
		fmt.Fprintf(f.Writer, "  %s -> %s %s %s\n", field, ref.EntityType, ref.EntityID, attrString(ref.Attributes))
	}
	return nil
}

func reportJoinedRow(f *OutputFormatter, j engine.JoinedRow) error {
	if f.Format == "json" {
		return f.Success(j)
	}
	if err := printRows(f.Writer, []ir.Row{j.Row}); err != nil {
		return err
	}
	for _, field := range sortedFields(j.Refs) {
		ref := j.Refs[field]
		fmt.Fprintf(f.Writer, "  %s -> %s %s %s\n", field, ref.EntityType, ref.EntityID, attrString(ref.Attributes))
	}
	return nil
}

func sortedFields[V any](m map[string]V) []string {
	fields := make([]string, 0, len(m))
	for k := range m {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return fields
}
