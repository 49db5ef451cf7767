package engine

import (
	"context"
	"fmt"

	"github.com/roach88/asof/internal/ir"
	"github.com/roach88/asof/internal/kv"
	"github.com/roach88/asof/internal/ledger"
)

// Entity types of the demo history.
const (
	TypeCustomer ir.EntityType = "Customer"
	TypeProduct  ir.EntityType = "Product"
	TypeOrder    ir.EntityType = "Order"
)

// SeedResult identifies what Seed wrote.
type SeedResult struct {
	// Timestamps holds one reading per step, taken from the step's last
	// committed mutation:
	//   [0] customer and products created
	//   [1] DeLorean -> 2,000,000
	//   [2] DeLorean -> 2,500,000
	//   [3] order placed (order_date = Timestamps[2])
	//   [4] DeLorean -> 75,000
	//   [5] DeLorean -> 150,000
	Timestamps []ir.Timestamp `json:"timestamps"`

	Customer ir.EntityID            `json:"customer"`
	Products map[string]ir.EntityID `json:"products"` // name -> ID
	Order    ir.EntityID            `json:"order"`
}

// Seed writes the demo history: one customer, three products, an order
// for the DeLorean, and four price changes around it.
//
// CONFLICT, with nothing written, if any demo type already has history;
// Purge the demo types first to seed again.
func (e *Engine) Seed(ctx context.Context) (SeedResult, error) {
	if err := e.checkUnseeded(ctx); err != nil {
		return SeedResult{}, err
	}

	res := SeedResult{Products: make(map[string]ir.EntityID)}
	step := func(ts ir.Timestamp) {
		res.Timestamps = append(res.Timestamps, ts)
	}

	customer, err := e.Create(ctx, TypeCustomer, ir.Obj(ir.O("name", ir.String("Arthur"))))
	if err != nil {
		return SeedResult{}, fmt.Errorf("seed customer: %w", err)
	}
	res.Customer = customer.EntityID

	var last ir.VersionRecord
	for _, p := range []struct {
		name  string
		price int64
	}{
		{"DeLorean", 1_000_000},
		{"Flux Capacitor", 666},
		{"Hoverboard", 59_000},
	} {
		last, err = e.Create(ctx, TypeProduct, productAttrs(p.name, p.price))
		if err != nil {
			return SeedResult{}, fmt.Errorf("seed product %s: %w", p.name, err)
		}
		res.Products[p.name] = last.EntityID
	}
	step(last.ValidFrom)

	delorean := res.Products["DeLorean"]
	reprice := func(price int64) error {
		rec, err := e.Update(ctx, TypeProduct, delorean, productAttrs("DeLorean", price))
		if err != nil {
			return fmt.Errorf("seed reprice %d: %w", price, err)
		}
		step(rec.ValidFrom)
		return nil
	}

	for _, price := range []int64{2_000_000, 2_500_000} {
		if err := reprice(price); err != nil {
			return SeedResult{}, err
		}
	}

	order, err := e.Create(ctx, TypeOrder, ir.Obj(
		ir.O("order_date", ir.Int(res.Timestamps[len(res.Timestamps)-1])),
		ir.O("customer_id", ir.String(res.Customer)),
		ir.O("product_id", ir.String(delorean)),
	))
	if err != nil {
		return SeedResult{}, fmt.Errorf("seed order: %w", err)
	}
	res.Order = order.EntityID
	step(order.ValidFrom)

	for _, price := range []int64{75_000, 150_000} {
		if err := reprice(price); err != nil {
			return SeedResult{}, err
		}
	}
	return res, nil
}

func (e *Engine) checkUnseeded(ctx context.Context) error {
	return e.view(ctx, func(tx kv.Tx) error {
		for _, t := range []ir.EntityType{TypeCustomer, TypeProduct, TypeOrder} {
			ids, err := ledger.Entities(ctx, tx, t)
			if err != nil {
				return err
			}
			if len(ids) > 0 {
				return &ir.TemporalError{
					Code:       ir.CodeConflict,
					Message:    fmt.Sprintf("seed: %d %s entities already recorded", len(ids), t),
					EntityType: t,
				}
			}
		}
		return nil
	})
}

func productAttrs(name string, price int64) ir.Object {
	return ir.Obj(ir.O("name", ir.String(name)), ir.O("price", ir.Int(price)))
}

// DemoSchemas returns the schemas of the demo entity types.
func DemoSchemas() []ir.EntitySchema {
	return []ir.EntitySchema{
		{
			Name:    TypeCustomer,
			Purpose: "A person who places orders.",
			Fields:  map[string]string{"name": ir.TypeString},
		},
		{
			Name:    TypeProduct,
			Purpose: "Something for sale, with a price in whole dollars.",
			Fields:  map[string]string{"name": ir.TypeString, "price": ir.TypeInt},
		},
		{
			Name:    TypeOrder,
			Purpose: "A customer's order for one product.",
			Fields: map[string]string{
				"order_date":  ir.TypeInt,
				"customer_id": ir.TypeString,
				"product_id":  ir.TypeString,
			},
			Refs: map[string]string{
				"customer_id": string(TypeCustomer),
				"product_id":  string(TypeProduct),
			},
		},
	}
}
