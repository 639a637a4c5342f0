package adapter

import (
	"context"

	"github.com/roach88/litequery/internal/dberr"
	"github.com/roach88/litequery/internal/model"
	"github.com/roach88/litequery/internal/querysql"
	"github.com/roach88/litequery/internal/record"
)

// Define creates table from specs unless it already exists.
func (a *Adapter) Define(ctx context.Context, conn Conn, table string, specs []model.ColumnSpec) error {
	if table == "" || len(specs) == 0 {
		return dberr.Malformed(dberr.CodeMalformedQuery, "define %q needs a table name and columns", table)
	}
	_, err := conn.Exec(ctx, querysql.CreateTable(table, specs))
	return err
}

// DefineModel creates the table of a registered model.
func (a *Adapter) DefineModel(ctx context.Context, conn Conn, identity string) error {
	m, err := a.model(identity)
	if err != nil {
		return err
	}
	return a.Define(ctx, conn, m.TableName, m.ColumnSpecs())
}

// Drop drops table. Dropping a missing table succeeds.
func (a *Adapter) Drop(ctx context.Context, conn Conn, table string) error {
	_, err := conn.Exec(ctx, querysql.DropTable(table))
	return err
}

// SetSequence resets the auto-increment counter of table so the next
// assigned key is value+1. A table without a sequence, or a database that
// has never used AUTOINCREMENT, is a no-op.
func (a *Adapter) SetSequence(ctx context.Context, conn Conn, table string, value int64) error {
	n, err := conn.QueryValue(ctx, querysql.SequenceTableExists())
	if err != nil {
		return err
	}
	if !record.Truthy(n) {
		a.logger.Debug("no sequence table", "table", table)
		return nil
	}
	res, err := conn.Exec(ctx, querysql.SetSequence(table, value))
	if err != nil {
		return err
	}
	if res.RowsAffected == 0 {
		a.logger.Debug("no sequence to set", "table", table)
	}
	return nil
}
