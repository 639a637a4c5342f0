package adapter

import (
	"context"

	"github.com/roach88/litequery/internal/dberr"
	"github.com/roach88/litequery/internal/querysql"
	"github.com/roach88/litequery/internal/record"
	"github.com/roach88/litequery/internal/stage3"
)

// Find returns the records matching q.Criteria. Without a sort the order is
// whatever SQLite produces.
func (a *Adapter) Find(ctx context.Context, conn Conn, q stage3.Find) ([]record.Record, error) {
	m, err := a.model(q.Using)
	if err != nil {
		return nil, err
	}
	stmt, err := querysql.Compile(q.Criteria, m, querysql.OptionsFor(m))
	if err != nil {
		return nil, err
	}
	rows, err := conn.Query(ctx, stmt)
	if err != nil {
		return nil, err
	}
	a.toLogical(rows, m)
	return rows, nil
}

// Join returns the records matching q.Criteria with every declared
// association populated.
func (a *Adapter) Join(ctx context.Context, conn Conn, q stage3.Join) ([]record.Record, error) {
	return a.resolver.Resolve(ctx, conn, q)
}

// Count returns the number of records matching q.Criteria.
func (a *Adapter) Count(ctx context.Context, conn Conn, q stage3.Count) (int64, error) {
	m, err := a.model(q.Using)
	if err != nil {
		return 0, err
	}
	stmt, err := querysql.Count(m, q.Criteria, querysql.OptionsFor(m))
	if err != nil {
		return 0, err
	}
	v, err := conn.QueryValue(ctx, stmt)
	if err != nil {
		return 0, err
	}
	n, ok := record.Int64(v)
	if !ok {
		return 0, dberr.New(dberr.KindUnknown, "count of %q returned %T", m.Identity, v)
	}
	return n, nil
}

// Sum totals q.NumericAttrName over the records matching q.Criteria. An
// empty set sums to 0.
func (a *Adapter) Sum(ctx context.Context, conn Conn, q stage3.Sum) (float64, error) {
	m, err := a.model(q.Using)
	if err != nil {
		return 0, err
	}
	stmt, err := querysql.Sum(m, q.NumericAttrName, q.Criteria, querysql.OptionsFor(m))
	if err != nil {
		return 0, err
	}
	return a.scalar(ctx, conn, stmt)
}

// Avg averages q.NumericAttrName over the records matching q.Criteria. An
// empty set averages to 0.
func (a *Adapter) Avg(ctx context.Context, conn Conn, q stage3.Avg) (float64, error) {
	m, err := a.model(q.Using)
	if err != nil {
		return 0, err
	}
	stmt, err := querysql.Avg(m, q.NumericAttrName, q.Criteria, querysql.OptionsFor(m))
	if err != nil {
		return 0, err
	}
	return a.scalar(ctx, conn, stmt)
}

func (a *Adapter) scalar(ctx context.Context, conn Conn, stmt querysql.Statement) (float64, error) {
	v, err := conn.QueryValue(ctx, stmt)
	if err != nil {
		return 0, err
	}
	switch n := record.Number(v).(type) {
	case int64:
		return float64(n), nil
	case float64:
		return n, nil
	case nil:
		return 0, nil
	}
	return 0, dberr.New(dberr.KindUnknown, "aggregate returned %T", v)
}
