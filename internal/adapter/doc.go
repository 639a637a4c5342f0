// Package adapter is the operation surface of litequery: create,
// createEach, find, update, destroy, count, sum, avg, join, define, drop
// and setSequence over a borrowed connection.
//
// Each operation resolves its model in the registry (a miss is a
// ConsistencyViolation), converts input values to their native form,
// compiles statements with querysql, executes them and converts rows back
// to logical records. Operations that issue more than one statement run
// inside Conn.InTx, so a failure part way leaves no partial writes.
//
// Every returned error is a *dberr.Error. Use dberr.IsNotUnique to tell a
// uniqueness violation apart from other failures.
package adapter
