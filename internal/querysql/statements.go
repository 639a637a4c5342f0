package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/litequery/internal/dberr"
	"github.com/roach88/litequery/internal/model"
	"github.com/roach88/litequery/internal/stage3"
)

// MaxVariables is the bound-variable budget per statement. It matches the
// lowest SQLITE_MAX_VARIABLE_NUMBER any supported SQLite build ships with.
const MaxVariables = 999

// Insert builds a single INSERT for rows keyed by column name.
//
// The column list is the union of columns present across rows, in model
// order; a row missing a column inserts NULL for it. A single row with no
// columns inserts DEFAULT VALUES.
func Insert(m *model.Model, rows []map[string]any) (Statement, error) {
	cols, err := insertColumns(m, rows)
	if err != nil {
		return Statement{}, err
	}
	return insertWith(m, cols, rows)
}

// InsertBatches splits rows into INSERT statements that each stay within
// MaxVariables bindings. All statements share the union column list.
func InsertBatches(m *model.Model, rows []map[string]any) ([]Statement, error) {
	cols, err := insertColumns(m, rows)
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 && len(rows) > 1 {
		return nil, dberr.Malformed(dberr.CodeMalformedQuery,
			"batch insert into %q has no columns", m.TableName)
	}

	size := len(rows)
	if len(cols) > 0 {
		size = max(1, MaxVariables/len(cols))
	}

	var stmts []Statement
	for start := 0; start < len(rows); start += size {
		end := min(start+size, len(rows))
		stmt, err := insertWith(m, cols, rows[start:end])
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
	}
	return stmts, nil
}

func insertColumns(m *model.Model, rows []map[string]any) ([]string, error) {
	present := make(map[string]bool)
	for _, row := range rows {
		for col := range row {
			if _, ok := m.AttributeByColumn(col); !ok {
				return nil, dberr.Consistency(dberr.CodeUnknownAttribute,
					"unknown column %q on %q", col, m.Identity)
			}
			present[col] = true
		}
	}
	var cols []string
	for _, col := range m.Columns() {
		if present[col] {
			cols = append(cols, col)
		}
	}
	return cols, nil
}

func insertWith(m *model.Model, cols []string, rows []map[string]any) (Statement, error) {
	if len(rows) == 0 {
		return Statement{}, dberr.Malformed(dberr.CodeMalformedQuery, "insert into %q has no rows", m.TableName)
	}
	table := Quote(m.TableName)
	if len(cols) == 0 {
		if len(rows) > 1 {
			return Statement{}, dberr.Malformed(dberr.CodeMalformedQuery,
				"batch insert into %q has no columns", m.TableName)
		}
		return Statement{SQL: fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", table)}, nil
	}

	quoted := make([]string, len(cols))
	for i, col := range cols {
		quoted[i] = Quote(col)
	}

	bindings := make([]any, 0, len(rows)*len(cols))
	tuples := make([]string, 0, len(rows))
	for _, row := range rows {
		slots := make([]string, len(cols))
		for i, col := range cols {
			v, ok := row[col]
			if !ok {
				slots[i] = "NULL"
				continue
			}
			slots[i] = "?"
			bindings = append(bindings, BindValue(v))
		}
		tuples = append(tuples, "("+strings.Join(slots, ", ")+")")
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", table, strings.Join(quoted, ", "), strings.Join(tuples, ", "))
	return Statement{SQL: sql, Bindings: bindings}, nil
}

// Update builds an UPDATE setting column-keyed values on rows matching where.
// SET entries follow model order.
func Update(m *model.Model, values map[string]any, where stage3.Predicate, opts Options) (Statement, error) {
	if len(values) == 0 {
		return Statement{}, dberr.Malformed(dberr.CodeMalformedQuery, "update of %q sets no values", m.TableName)
	}
	for col := range values {
		if _, ok := m.AttributeByColumn(col); !ok {
			return Statement{}, dberr.Consistency(dberr.CodeUnknownAttribute,
				"unknown column %q on %q", col, m.Identity)
		}
	}

	var sets []string
	var bindings []any
	for _, col := range m.Columns() {
		v, ok := values[col]
		if !ok {
			continue
		}
		sets = append(sets, Quote(col)+" = ?")
		bindings = append(bindings, BindValue(v))
	}

	comp := &Compiler{Model: m, Options: opts}
	cond, params, err := comp.Where(where)
	if err != nil {
		return Statement{}, err
	}

	sql := fmt.Sprintf("UPDATE %s SET %s", Quote(m.TableName), strings.Join(sets, ", "))
	if cond != "" {
		sql += " WHERE " + cond
		bindings = append(bindings, params...)
	}
	return Statement{SQL: sql, Bindings: bindings}, nil
}

// Delete builds a DELETE for rows matching where.
func Delete(m *model.Model, where stage3.Predicate, opts Options) (Statement, error) {
	comp := &Compiler{Model: m, Options: opts}
	cond, params, err := comp.Where(where)
	if err != nil {
		return Statement{}, err
	}
	sql := "DELETE FROM " + Quote(m.TableName)
	if cond != "" {
		sql += " WHERE " + cond
	}
	return Statement{SQL: sql, Bindings: params}, nil
}

// Count builds a COUNT(*) over rows matching criteria.
func Count(m *model.Model, c stage3.Criteria, opts Options) (Statement, error) {
	return aggregate(m, c, opts, "COUNT(*)", "1")
}

// Sum builds a SUM over attr for rows matching criteria. An empty set sums
// to 0.
func Sum(m *model.Model, attr string, c stage3.Criteria, opts Options) (Statement, error) {
	a, ok := m.Attribute(attr)
	if !ok {
		return Statement{}, dberr.Consistency(dberr.CodeUnknownAttribute, "unknown attribute %q on %q", attr, m.Identity)
	}
	col := Quote(a.ColumnName)
	return aggregate(m, c, opts, "COALESCE(SUM("+col+"), 0)", col)
}

// Avg builds an AVG over attr for rows matching criteria. An empty set
// averages to 0.
func Avg(m *model.Model, attr string, c stage3.Criteria, opts Options) (Statement, error) {
	a, ok := m.Attribute(attr)
	if !ok {
		return Statement{}, dberr.Consistency(dberr.CodeUnknownAttribute, "unknown attribute %q on %q", attr, m.Identity)
	}
	col := Quote(a.ColumnName)
	return aggregate(m, c, opts, "COALESCE(AVG("+col+"), 0)", col)
}

// aggregate applies expr over matching rows. With limit or skip the rows are
// first narrowed in a subselect projecting inner, since LIMIT applies to the
// aggregate's single output row otherwise.
func aggregate(m *model.Model, c stage3.Criteria, opts Options, expr, inner string) (Statement, error) {
	comp := &Compiler{Model: m, Options: opts}
	table := Quote(m.TableName)

	if c.Limit == nil && c.Skip == 0 {
		cond, params, err := comp.Where(c.Where)
		if err != nil {
			return Statement{}, err
		}
		sql := fmt.Sprintf("SELECT %s FROM %s", expr, table)
		if cond != "" {
			sql += " WHERE " + cond
		}
		return Statement{SQL: sql, Bindings: params}, nil
	}

	tail, params, err := comp.Clauses(c)
	if err != nil {
		return Statement{}, err
	}
	sql := fmt.Sprintf("SELECT %s FROM (SELECT %s FROM %s%s)", expr, inner, table, tail)
	return Statement{SQL: sql, Bindings: params}, nil
}

// KeysPredicate matches rows whose primary key is one of keys.
func KeysPredicate(m *model.Model, keys []any) stage3.Predicate {
	return stage3.Compare{Column: m.PrimaryKey, Op: stage3.OpIn, Value: keys}
}

// SelectByKeys selects full rows by primary key, ordered by key.
func SelectByKeys(m *model.Model, keys []any) (Statement, error) {
	return Select(m, stage3.Criteria{
		Where: KeysPredicate(m, keys),
		Sort:  []stage3.SortClause{{Attr: m.PrimaryKey, Direction: stage3.Asc}},
	}, OptionsFor(m))
}

// SelectKeys selects only the primary keys of rows matching criteria.
func SelectKeys(m *model.Model, c stage3.Criteria, opts Options) (Statement, error) {
	c.Select = []string{m.PrimaryKey}
	return Select(m, c, opts)
}

// SelectKeyRange selects full rows whose integer primary key lies in
// [first, last], ordered by key.
func SelectKeyRange(m *model.Model, first, last int64) (Statement, error) {
	return Select(m, stage3.Criteria{
		Where: stage3.And{Predicates: []stage3.Predicate{
			stage3.Compare{Column: m.PrimaryKey, Op: stage3.OpGte, Value: first},
			stage3.Compare{Column: m.PrimaryKey, Op: stage3.OpLte, Value: last},
		}},
		Sort: []stage3.SortClause{{Attr: m.PrimaryKey, Direction: stage3.Asc}},
	}, OptionsFor(m))
}
