// Package harness runs YAML scenarios against litequery.
//
// A scenario names model files, optional setup queries, a list of steps
// and final assertions. Each step is a stage-three query in its loose map
// form (the same shape `litequery exec` reads), optionally narrowed by a
// text where expression, with an expectation on its outcome:
//
//	name: unique_violation
//	description: second insert of an email fails with NOT_UNIQUE
//	models: [../models.yaml]
//	steps:
//	  - query: {method: create, using: user, newRecord: {name: a, email: x@y}}
//	  - query: {method: create, using: user, newRecord: {name: b, email: x@y}}
//	    expect: {error: NOT_UNIQUE, columns: [email]}
//	assertions:
//	  - {type: row_count, model: user, count: 1}
//
// # Execution
//
// Every scenario runs in a fresh in-memory SQLite database. All models are
// defined first, then setup and steps execute in order on one leased
// connection. Setup queries must succeed; step outcomes are checked against
// their expect clause and mismatches are collected, not fatal.
//
// # Determinism
//
// Lease and transaction IDs come from a testutil.SequentialGenerator and
// statement sequence numbers from the store's logical clock, which starts
// at zero per scenario. The same scenario therefore produces a
// byte-identical statement trace on every run, which RunWithGolden compares
// against testdata/golden/<name>.golden.
//
// # Assertions
//
//   - row_count: number of records of a model, optionally filtered by where
//   - final_state: the first matching record (by primary key) contains expect
//   - statement_count: total statements executed by the scenario
//   - statement_contains: some executed statement contains sql
//
// Logs are discarded.
package harness
