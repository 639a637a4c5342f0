// Package store owns the SQLite database handle and the connection and
// transaction discipline every operation runs under.
//
// # Single writer
//
// The pool is capped at one connection. Store.Lease hands it out as a Conn;
// other callers block until it is released. Statements on a Conn execute in
// issuance order and are recorded, with a logical clock seq, in the lease's
// statement log.
//
// # Transactions
//
// Each Conn carries one Tx handle:
//
//	Idle --Begin--> Active --Commit|Rollback--> Idle
//
// There is no nesting. Conn.InTx joins an Active transaction instead of
// starting a second one.
//
// # Errors
//
// Every driver failure leaves this package normalized through dberr.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout: Wait for locks (default 5 seconds)
//   - foreign_keys=ON: Enforce referential integrity
package store
