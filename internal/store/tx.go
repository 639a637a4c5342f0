package store

import (
	"context"
	"database/sql"

	"github.com/roach88/litequery/internal/dberr"
)

// TxState is the state of a transaction handle.
type TxState int

const (
	TxIdle TxState = iota
	TxActive
)

func (s TxState) String() string {
	if s == TxActive {
		return "active"
	}
	return "idle"
}

// Tx is the transaction handle of a Conn.
//
//	Idle --Begin--> Active --Commit|Rollback--> Idle
//
// Begin while Active fails with E_ALREADY_ACTIVE; SQLite has no nested
// transactions. Commit or Rollback while Idle fails with
// E_NO_ACTIVE_TRANSACTION. Both are ConsistencyViolation errors.
type Tx struct {
	conn   *Conn
	state  TxState
	native *sql.Tx
	id     string
}

// State returns the current state.
func (t *Tx) State() TxState {
	return t.state
}

// ID returns the ID of the Active transaction, or "" when Idle.
func (t *Tx) ID() string {
	return t.id
}

// Begin starts a transaction.
func (t *Tx) Begin(ctx context.Context) error {
	if t.state == TxActive {
		return dberr.Consistency(dberr.CodeAlreadyActive,
			"transaction %s already active on connection %s", t.id, t.conn.id)
	}
	if t.conn.released {
		return dberr.Consistency(dberr.CodeConnReleased, "connection %s was released", t.conn.id)
	}
	native, err := t.conn.native.BeginTx(ctx, nil)
	if err != nil {
		return dberr.Normalize(err)
	}
	t.native = native
	t.state = TxActive
	t.id = t.conn.store.ids.Generate()
	t.conn.store.logger.Debug("transaction begun", "lease", t.conn.id, "tx", t.id)
	return nil
}

// Commit commits the Active transaction. The handle returns to Idle even
// when the commit fails.
func (t *Tx) Commit() error {
	if t.state != TxActive {
		return dberr.Consistency(dberr.CodeNoActiveTransaction,
			"commit with no active transaction on connection %s", t.conn.id)
	}
	err := t.native.Commit()
	t.conn.store.logger.Debug("transaction committed", "lease", t.conn.id, "tx", t.id, "ok", err == nil)
	t.reset()
	if err != nil {
		return dberr.Normalize(err)
	}
	return nil
}

// Rollback aborts the Active transaction.
func (t *Tx) Rollback() error {
	if t.state != TxActive {
		return dberr.Consistency(dberr.CodeNoActiveTransaction,
			"rollback with no active transaction on connection %s", t.conn.id)
	}
	err := t.native.Rollback()
	t.conn.store.logger.Debug("transaction rolled back", "lease", t.conn.id, "tx", t.id)
	t.reset()
	if err != nil {
		return dberr.Normalize(err)
	}
	return nil
}

func (t *Tx) reset() {
	t.native = nil
	t.state = TxIdle
	t.id = ""
}
