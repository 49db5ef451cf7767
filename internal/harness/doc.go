// Package harness runs temporal scenarios against the versioning engine.
//
// A scenario pins the clock, applies a sequence of mutations and then
// asserts on current state and on history. Every scenario runs against a
// fresh in-memory substrate with a deterministic clock and sequential IDs,
// so its trace and final histories are reproducible and can be compared
// against golden files.
//
// # Scenario Format
//
//	name: delorean
//	description: "Price history of one product"
//	restore_policy: new_interval   # or reopen
//	schemas:                       # optional; demo schemas when empty
//	  - schemas/demo.cue
//	steps:
//	  - op: create
//	    type: Customer
//	    as: arthur
//	    at: 5
//	    attrs: { name: Arthur }
//	  - op: create
//	    type: Product
//	    as: delorean
//	    at: 10
//	    attrs: { name: DeLorean, price: 1000000 }
//	  - op: update
//	    entity: delorean
//	    at: 20
//	    attrs: { name: DeLorean, price: 2000000 }
//	  - op: create
//	    type: Order
//	    as: order
//	    attrs: { order_date: 20 }
//	    refs: { customer_id: arthur, product_id: delorean }
//	  - op: update
//	    entity: delorean
//	    at: 15
//	    expect_error: CLOCK_REGRESSION
//	assertions:
//	  - type: as_of
//	    entity: delorean
//	    at: 15
//	    expect: { price: 1000000 }
//	  - type: history
//	    entity: delorean
//	    starts: [10, 20]
//
// # Assertion Types
//
//   - current: the entity is live and its row matches expect (subset)
//   - absent: the entity is not live
//   - as_of: the version valid at at matches expect, or fails with expect_error
//   - between: versions overlapping [from, to) start at starts
//   - history: the full history starts at starts
//   - join: references of the version at at resolve to refs (subset per field)
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/delorean.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
