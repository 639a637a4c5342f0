package adapter

import (
	"context"

	"github.com/roach88/litequery/internal/dberr"
	"github.com/roach88/litequery/internal/model"
	"github.com/roach88/litequery/internal/querysql"
	"github.com/roach88/litequery/internal/record"
	"github.com/roach88/litequery/internal/stage3"
)

// Create inserts q.NewRecord. With q.Meta.Fetch the inserted record is read
// back inside the same transaction and returned; otherwise the result is
// nil.
func (a *Adapter) Create(ctx context.Context, conn Conn, q stage3.Create) (record.Record, error) {
	m, err := a.model(q.Using)
	if err != nil {
		return nil, err
	}
	values, err := a.native(q.NewRecord, m)
	if err != nil {
		return nil, err
	}
	stmt, err := querysql.Insert(m, []map[string]any{values})
	if err != nil {
		return nil, err
	}

	if !q.Meta.Fetch {
		_, err := conn.Exec(ctx, stmt)
		return nil, err
	}

	var created record.Record
	err = conn.InTx(ctx, func(ctx context.Context) error {
		res, err := conn.Exec(ctx, stmt)
		if err != nil {
			return err
		}
		key, ok := values[m.PrimaryKeyColumn()]
		if !ok {
			key = res.LastInsertID
		}
		rows, err := a.selectByKeys(ctx, conn, m, []any{key})
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return dberr.New(dberr.KindNotFound, "created %q record %v not found", m.Identity, key)
		}
		created = rows[0]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// CreateEach inserts q.NewRecords as multi-row INSERTs, chunked under the
// bound-variable limit, inside one transaction.
//
// With q.Meta.Fetch the inserted records are returned in input order:
//   - no record sets its primary key: each batch is read back as the
//     contiguous key range ending at the batch's last insert ID. This is
//     correct only because the batch runs inside a transaction on the
//     single writer connection; a writer in another process could
//     interleave rows otherwise.
//   - every record sets its primary key: read back by key.
//   - mixed: inserted row by row so each assigned key is known.
func (a *Adapter) CreateEach(ctx context.Context, conn Conn, q stage3.CreateEach) ([]record.Record, error) {
	m, err := a.model(q.Using)
	if err != nil {
		return nil, err
	}
	if len(q.NewRecords) == 0 {
		if q.Meta.Fetch {
			return []record.Record{}, nil
		}
		return nil, nil
	}

	pkCol := m.PrimaryKeyColumn()
	rows := make([]map[string]any, len(q.NewRecords))
	explicit := 0
	for i, rec := range q.NewRecords {
		values, err := a.native(rec, m)
		if err != nil {
			return nil, err
		}
		if _, ok := values[pkCol]; ok {
			explicit++
		}
		rows[i] = values
	}

	var created []record.Record
	err = conn.InTx(ctx, func(ctx context.Context) error {
		var err error
		switch {
		case explicit > 0 && explicit < len(rows):
			created, err = a.insertRowByRow(ctx, conn, m, rows, q.Meta.Fetch)
			return err
		case explicit == len(rows):
			if err := a.insertBatches(ctx, conn, m, rows, nil); err != nil {
				return err
			}
			if !q.Meta.Fetch {
				return nil
			}
			keys := make([]any, len(rows))
			for i, row := range rows {
				keys[i] = row[pkCol]
			}
			created, err = a.fetchInOrder(ctx, conn, m, keys)
			return err
		case !q.Meta.Fetch:
			return a.insertBatches(ctx, conn, m, rows, nil)
		}

		created = []record.Record{}
		return a.insertBatches(ctx, conn, m, rows, func(n int, lastID int64) error {
			stmt, err := querysql.SelectKeyRange(m, lastID-int64(n)+1, lastID)
			if err != nil {
				return err
			}
			batch, err := conn.Query(ctx, stmt)
			if err != nil {
				return err
			}
			a.toLogical(batch, m)
			created = append(created, batch...)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if !q.Meta.Fetch {
		return nil, nil
	}
	return created, nil
}

// insertBatches executes the chunked INSERTs for rows, calling after (when
// set) with each batch's row count and last insert ID.
func (a *Adapter) insertBatches(ctx context.Context, conn Conn, m *model.Model, rows []map[string]any, after func(n int, lastID int64) error) error {
	stmts, err := querysql.InsertBatches(m, rows)
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		res, err := conn.Exec(ctx, stmt)
		if err != nil {
			return err
		}
		if after != nil {
			if err := after(int(res.RowsAffected), res.LastInsertID); err != nil {
				return err
			}
		}
	}
	return nil
}

func (a *Adapter) insertRowByRow(ctx context.Context, conn Conn, m *model.Model, rows []map[string]any, fetch bool) ([]record.Record, error) {
	pkCol := m.PrimaryKeyColumn()
	keys := make([]any, 0, len(rows))
	for _, row := range rows {
		stmt, err := querysql.Insert(m, []map[string]any{row})
		if err != nil {
			return nil, err
		}
		res, err := conn.Exec(ctx, stmt)
		if err != nil {
			return nil, err
		}
		key, ok := row[pkCol]
		if !ok {
			key = res.LastInsertID
		}
		keys = append(keys, key)
	}
	if !fetch {
		return nil, nil
	}
	return a.fetchInOrder(ctx, conn, m, keys)
}

// fetchInOrder reads the records for keys and returns them in key-list
// order.
func (a *Adapter) fetchInOrder(ctx context.Context, conn Conn, m *model.Model, keys []any) ([]record.Record, error) {
	rows, err := a.selectByKeys(ctx, conn, m, keys)
	if err != nil {
		return nil, err
	}
	byKey := make(map[any]record.Record, len(rows))
	for _, row := range rows {
		byKey[record.Key(row[m.PrimaryKey])] = row
	}
	out := make([]record.Record, 0, len(keys))
	for _, k := range keys {
		if row, ok := byKey[record.Key(k)]; ok {
			out = append(out, row)
		}
	}
	return out, nil
}

// Update sets q.ValuesToSet on every record matching q.Criteria.Where.
//
// Without fetch and without a primary key change this is a single UPDATE.
// Otherwise, inside a transaction, the matching keys are selected first;
// setting the primary key on two or more matches fails with
// ConsistencyViolation (E_PK_COLLISION) before anything is written. With
// fetch the updated records are read back by their (new) keys.
func (a *Adapter) Update(ctx context.Context, conn Conn, q stage3.Update) ([]record.Record, error) {
	m, err := a.model(q.Using)
	if err != nil {
		return nil, err
	}
	values, err := a.native(q.ValuesToSet, m)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, dberr.Malformed(dberr.CodeMalformedQuery, "update of %q sets no values", m.Identity)
	}
	opts := querysql.OptionsFor(m)
	newKey, setsPK := values[m.PrimaryKeyColumn()]

	if !q.Meta.Fetch && !setsPK {
		stmt, err := querysql.Update(m, values, q.Criteria.Where, opts)
		if err != nil {
			return nil, err
		}
		_, err = conn.Exec(ctx, stmt)
		return nil, err
	}

	var updated []record.Record
	err = conn.InTx(ctx, func(ctx context.Context) error {
		keys, err := a.matchingKeys(ctx, conn, m, q.Criteria.Where)
		if err != nil {
			return err
		}
		if setsPK && len(keys) > 1 {
			return dberr.Consistency(dberr.CodePKCollision,
				"update would set primary key %q of %d %q records to %v", m.PrimaryKey, len(keys), m.Identity, newKey)
		}
		for _, chunk := range chunks(keys) {
			stmt, err := querysql.Update(m, values, querysql.KeysPredicate(m, chunk), opts)
			if err != nil {
				return err
			}
			if _, err := conn.Exec(ctx, stmt); err != nil {
				return err
			}
		}
		if !q.Meta.Fetch {
			return nil
		}
		if setsPK && len(keys) == 1 {
			keys = []any{newKey}
		}
		updated, err = a.fetchInOrder(ctx, conn, m, keys)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !q.Meta.Fetch {
		return nil, nil
	}
	return updated, nil
}

// Destroy deletes every record matching q.Criteria.Where. With fetch the
// records are read first and returned once deleted.
func (a *Adapter) Destroy(ctx context.Context, conn Conn, q stage3.Destroy) ([]record.Record, error) {
	m, err := a.model(q.Using)
	if err != nil {
		return nil, err
	}
	opts := querysql.OptionsFor(m)

	if !q.Meta.Fetch {
		stmt, err := querysql.Delete(m, q.Criteria.Where, opts)
		if err != nil {
			return nil, err
		}
		_, err = conn.Exec(ctx, stmt)
		return nil, err
	}

	destroyed := []record.Record{}
	err = conn.InTx(ctx, func(ctx context.Context) error {
		stmt, err := querysql.Select(m, stage3.Criteria{
			Where: q.Criteria.Where,
			Sort:  []stage3.SortClause{{Attr: m.PrimaryKey, Direction: stage3.Asc}},
		}, opts)
		if err != nil {
			return err
		}
		rows, err := conn.Query(ctx, stmt)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}

		pkCol := m.PrimaryKeyColumn()
		keys := make([]any, len(rows))
		for i, row := range rows {
			keys[i] = row[pkCol]
		}
		for _, chunk := range chunks(keys) {
			del, err := querysql.Delete(m, querysql.KeysPredicate(m, chunk), opts)
			if err != nil {
				return err
			}
			if _, err := conn.Exec(ctx, del); err != nil {
				return err
			}
		}
		a.toLogical(rows, m)
		destroyed = rows
		return nil
	})
	if err != nil {
		return nil, err
	}
	return destroyed, nil
}

// matchingKeys selects the primary keys of every record matching where.
func (a *Adapter) matchingKeys(ctx context.Context, conn Conn, m *model.Model, where stage3.Predicate) ([]any, error) {
	stmt, err := querysql.SelectKeys(m, stage3.Criteria{
		Where: where,
		Sort:  []stage3.SortClause{{Attr: m.PrimaryKey, Direction: stage3.Asc}},
	}, querysql.OptionsFor(m))
	if err != nil {
		return nil, err
	}
	rows, err := conn.Query(ctx, stmt)
	if err != nil {
		return nil, err
	}
	pkCol := m.PrimaryKeyColumn()
	keys := make([]any, len(rows))
	for i, row := range rows {
		keys[i] = row[pkCol]
	}
	return keys, nil
}
