package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/asof/internal/ir"
)

// MutateOptions holds flags for the put command.
type MutateOptions struct {
	*RootOptions
	Attrs string
}

// NewPutCommand creates the put command.
func NewPutCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MutateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "put <type> [id]",
		Short: "Create or update an entity",
		Long: `Write new attributes for an entity.

Without an id a new entity is created with a generated ID. With an id, a
live entity is updated (closing its current version) and an unknown id is
created. A deleted entity must be restored first.`,
		Example: `  asof put Customer --attrs '{"name": "Arthur"}'
  asof put Product 0190c1f4-... --attrs '{"name": "DeLorean", "price": 2500000}'`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPut(cmd, opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.Attrs, "attrs", "{}", "attributes as a JSON object")

	return cmd
}

func runPut(cmd *cobra.Command, opts *MutateOptions, args []string) error {
	f := opts.formatter(cmd)
	ctx := cmd.Context()
	t := ir.EntityType(args[0])

	attrs, err := ir.ParseObject([]byte(opts.Attrs))
	if err != nil {
		return badInput(f, err)
	}

	return withSession(ctx, opts.RootOptions, f, func(s *session) error {
		var (
			op  string
			rec ir.VersionRecord
		)
		switch {
		case len(args) == 1:
			op = "created"
			rec, err = s.engine.Create(ctx, t, attrs)
		default:
			id := ir.EntityID(args[1])
			_, err = s.engine.Get(ctx, t, id)
			switch {
			case err == nil:
				op = "updated"
				rec, err = s.engine.Update(ctx, t, id, attrs)
			case ir.IsNotFound(err):
				op = "created"
				rec, err = s.engine.CreateWithID(ctx, t, id, attrs)
			}
		}
		if err != nil {
			return f.EngineError("put", err)
		}
		return reportVersion(f, op, rec)
	})
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <type> <id>",
		Short: "Soft-delete an entity",
		Long: `Close the entity's current version. History is kept; the entity
can be brought back with restore.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			ctx := cmd.Context()
			return withSession(ctx, rootOpts, f, func(s *session) error {
				rec, err := s.engine.Delete(ctx, ir.EntityType(args[0]), ir.EntityID(args[1]))
				if err != nil {
					return f.EngineError("delete", err)
				}
				return reportVersion(f, "deleted", rec)
			})
		},
	}

	return cmd
}

// NewRestoreCommand creates the restore command.
func NewRestoreCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore <type> <id>",
		Short: "Bring a deleted entity back",
		Long: `Make a deleted entity live again with the attributes of its last
version. With restore_policy new_interval a new version starts now and the
deletion gap stays in history; with reopen the last version is extended
as if the delete never happened.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			ctx := cmd.Context()
			return withSession(ctx, rootOpts, f, func(s *session) error {
				rec, err := s.engine.Restore(ctx, ir.EntityType(args[0]), ir.EntityID(args[1]))
				if err != nil {
					return f.EngineError("restore", err)
				}
				return reportVersion(f, "restored", rec)
			})
		},
	}

	return cmd
}

func reportVersion(f *OutputFormatter, op string, rec ir.VersionRecord) error {
	if f.Format == "json" {
		return f.Success(rec)
	}
	return printVersion(f.Writer, op, rec)
}
