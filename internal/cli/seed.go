package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/asof/internal/engine"
	"github.com/roach88/asof/internal/ir"
	"github.com/roach88/asof/internal/queryir"
)

// SeedReport is the seed command's output: what was written and the
// answers to the demo questions.
type SeedReport struct {
	engine.SeedResult

	// CurrentPrice is the DeLorean's price now.
	CurrentPrice int64 `json:"current_price"`

	// PriceWindow holds the DeLorean versions intersecting
	// [Timestamps[1], Timestamps[3]).
	PriceWindow []ir.VersionRecord `json:"price_window"`

	// Order is Arthur's order as of the moment it was placed, with its
	// customer and product resolved at that moment.
	Order engine.Joined `json:"order"`
}

// SeedOptions holds flags for the seed command.
type SeedOptions struct {
	*RootOptions
	Reset bool
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SeedOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Write the demo history and query it",
		Long: `Write the demo history (Arthur, three products, an order for the
DeLorean and four DeLorean price changes) and answer three questions:

  - what does the DeLorean cost now?
  - which prices did it have between its first change and the order?
  - what did Arthur pay, as of the moment he ordered?

Seeding refuses (CONFLICT) when the database already holds demo entities.
--reset erases the Customer, Product and Order history first.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Reset, "reset", false, "erase existing demo history before seeding")

	return cmd
}

func runSeed(cmd *cobra.Command, opts *SeedOptions) error {
	f := opts.formatter(cmd)
	ctx := cmd.Context()

	return withSession(ctx, opts.RootOptions, f, func(s *session) error {
		if opts.Reset {
			for _, t := range []ir.EntityType{engine.TypeCustomer, engine.TypeProduct, engine.TypeOrder} {
				n, err := s.engine.Purge(ctx, t)
				if err != nil {
					return f.EngineError("seed reset", err)
				}
				f.VerboseLog("Purged %d %s entities", n, t)
			}
		}

		seeded, err := s.engine.Seed(ctx)
		if err != nil {
			return f.EngineError("seed", err)
		}
		f.VerboseLog("Seeded %d steps", len(seeded.Timestamps))

		report, err := querySeed(cmd, s.engine, seeded)
		if err != nil {
			return f.EngineError("seed query", err)
		}

		if f.Format == "json" {
			return f.Success(report)
		}
		return printSeedReport(f, report)
	})
}

func querySeed(cmd *cobra.Command, e *engine.Engine, seeded engine.SeedResult) (SeedReport, error) {
	ctx := cmd.Context()
	report := SeedReport{SeedResult: seeded}
	delorean := queryir.Where(ir.O("name", ir.String("DeLorean")))

	rows, err := e.Find(ctx, engine.TypeProduct, delorean)
	if err != nil {
		return report, err
	}
	if len(rows) != 1 {
		return report, fmt.Errorf("expected one DeLorean, found %d", len(rows))
	}
	report.CurrentPrice = priceOf(rows[0].Attributes)

	ts := seeded.Timestamps
	report.PriceWindow, err = e.BetweenWhere(ctx,
		queryir.Select{From: engine.TypeProduct, Filter: delorean}, ts[1], ts[3])
	if err != nil {
		return report, err
	}

	at := ts[3]
	customers, err := e.AsOfWhere(ctx, queryir.Select{
		From:   engine.TypeCustomer,
		Filter: queryir.Where(ir.O("name", ir.String("Arthur"))),
	}, at)
	if err != nil {
		return report, err
	}
	if len(customers) != 1 {
		return report, fmt.Errorf("expected one Arthur at %s, found %d", at, len(customers))
	}
	orders, err := e.AsOfWhere(ctx, queryir.Select{
		From:   engine.TypeOrder,
		Filter: queryir.Where(ir.O("customer_id", ir.String(customers[0].EntityID))),
	}, at)
	if err != nil {
		return report, err
	}
	if len(orders) != 1 {
		return report, fmt.Errorf("expected one order at %s, found %d", at, len(orders))
	}
	report.Order, err = e.Resolve(ctx, orders[0], at)
	return report, err
}

func printSeedReport(f *OutputFormatter, r SeedReport) error {
	w := f.Writer
	fmt.Fprintf(w, "Seeded customer %s, order %s\n", r.Customer, r.Order.Record.EntityID)
	fmt.Fprintf(w, "The DeLorean currently costs $%d\n", r.CurrentPrice)
	fmt.Fprintf(w, "DeLorean prices in [%s, %s):\n", r.Timestamps[1], r.Timestamps[3])
	for _, v := range r.PriceWindow {
		fmt.Fprintf(w, "  $%d from %s to %s\n", priceOf(v.Attributes), v.ValidFrom, v.ValidTo)
	}

	customer := r.Order.Refs["customer_id"]
	product := r.Order.Refs["product_id"]
	_, err := fmt.Fprintf(w, "%s ordered a %s for $%d on %s\n",
		ir.ToAny(customer.Attributes["name"]),
		ir.ToAny(product.Attributes["name"]),
		priceOf(product.Attributes),
		ir.ToAny(r.Order.Record.Attributes["order_date"]),
	)
	return err
}

func priceOf(attrs ir.Object) int64 {
	if p, ok := attrs["price"].(ir.Int); ok {
		return int64(p)
	}
	return 0
}
