package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/litequery/internal/dberr"
	"github.com/roach88/litequery/internal/querysql"
	"github.com/roach88/litequery/internal/record"
)

// Conn is a leased connection handle.
//
// While its transaction is Active, every statement routes through the
// transaction. A Conn is not safe for concurrent use: one logical caller
// owns it until Release.
//
// Errors returned by Conn are always normalized (*dberr.Error).
type Conn struct {
	store    *Store
	native   *sql.Conn
	id       string
	tx       *Tx
	log      []LoggedStatement
	released bool
}

// LoggedStatement is one executed statement.
type LoggedStatement struct {
	Seq      int64
	SQL      string
	Bindings []any
	TxID     string
}

// Result reports the effect of an Exec.
type Result struct {
	RowsAffected int64
	LastInsertID int64
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// ID returns the lease ID.
func (c *Conn) ID() string {
	return c.id
}

// Tx returns the connection's transaction handle.
func (c *Conn) Tx() *Tx {
	return c.tx
}

// Statements returns a copy of the statements executed on this lease, in
// issuance order. Empty unless the store was opened WithStatementLog.
func (c *Conn) Statements() []LoggedStatement {
	out := make([]LoggedStatement, len(c.log))
	copy(out, c.log)
	return out
}

// Exec executes a statement that returns no rows.
func (c *Conn) Exec(ctx context.Context, stmt querysql.Statement) (Result, error) {
	target, err := c.target(stmt)
	if err != nil {
		return Result{}, err
	}
	res, err := target.ExecContext(ctx, stmt.SQL, stmt.Bindings...)
	if err != nil {
		return Result{}, dberr.Normalize(err)
	}

	var out Result
	if out.RowsAffected, err = res.RowsAffected(); err != nil {
		return Result{}, dberr.Normalize(err)
	}
	if out.LastInsertID, err = res.LastInsertId(); err != nil {
		return Result{}, dberr.Normalize(err)
	}
	return out, nil
}

// Query executes a statement and returns its rows keyed by column name.
// Returns an empty slice (not nil) when no rows match.
func (c *Conn) Query(ctx context.Context, stmt querysql.Statement) ([]record.Record, error) {
	target, err := c.target(stmt)
	if err != nil {
		return nil, err
	}
	rows, err := target.QueryContext(ctx, stmt.SQL, stmt.Bindings...)
	if err != nil {
		return nil, dberr.Normalize(err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, dberr.Normalize(err)
	}

	out := []record.Record{}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, dberr.Normalize(fmt.Errorf("scan row: %w", err))
		}
		rec := make(record.Record, len(cols))
		for i, col := range cols {
			rec[col] = values[i]
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, dberr.Normalize(err)
	}
	return out, nil
}

// QueryValue executes a statement and returns the first column of its first
// row. No rows fails with NotFound.
func (c *Conn) QueryValue(ctx context.Context, stmt querysql.Statement) (any, error) {
	target, err := c.target(stmt)
	if err != nil {
		return nil, err
	}
	rows, err := target.QueryContext(ctx, stmt.SQL, stmt.Bindings...)
	if err != nil {
		return nil, dberr.Normalize(err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, dberr.Normalize(err)
		}
		return nil, dberr.Normalize(sql.ErrNoRows)
	}
	var v any
	if err := rows.Scan(&v); err != nil {
		return nil, dberr.Normalize(err)
	}
	return v, nil
}

// InTx runs fn inside a transaction: begun before fn, committed when fn
// succeeds, rolled back when it fails. When the transaction is already
// Active, fn runs inside it and the caller keeps control of commit and
// rollback.
func (c *Conn) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if c.tx.State() == TxActive {
		return fn(ctx)
	}
	if err := c.tx.Begin(ctx); err != nil {
		return err
	}
	defer func() {
		if c.tx.State() != TxActive {
			return
		}
		if rbErr := c.tx.Rollback(); rbErr != nil {
			c.store.logger.Warn("rollback failed", "lease", c.id, "error", rbErr)
		}
	}()

	if err := fn(ctx); err != nil {
		return err
	}
	return c.tx.Commit()
}

// Release rolls back any Active transaction and returns the connection.
// Release is idempotent.
func (c *Conn) Release() error {
	if c.released {
		return nil
	}
	if c.tx.State() == TxActive {
		if err := c.tx.Rollback(); err != nil {
			c.store.logger.Warn("rollback on release failed", "lease", c.id, "error", err)
		}
	}
	c.released = true
	c.store.logger.Debug("connection released", "lease", c.id)
	if err := c.native.Close(); err != nil {
		return dberr.Normalize(err)
	}
	return nil
}

// target stamps stmt, records it when the statement log is on, and returns where it must run.
func (c *Conn) target(stmt querysql.Statement) (execer, error) {
	if c.released {
		return nil, dberr.Consistency(dberr.CodeConnReleased, "connection %s was released", c.id)
	}

	entry := LoggedStatement{
		Seq:      c.store.clock.Next(),
		SQL:      stmt.SQL,
		Bindings: stmt.Bindings,
		TxID:     c.tx.ID(),
	}
	if c.store.logStmts {
		c.log = append(c.log, entry)
	}
	c.store.logger.Debug("statement",
		"lease", c.id,
		"tx", entry.TxID,
		"seq", entry.Seq,
		"sql", entry.SQL,
		"bindings", entry.Bindings,
	)

	if c.tx.State() == TxActive {
		return c.tx.native, nil
	}
	return c.native, nil
}
