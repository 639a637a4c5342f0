package join

import (
	"context"
	"log/slog"

	"github.com/roach88/litequery/internal/model"
	"github.com/roach88/litequery/internal/querysql"
	"github.com/roach88/litequery/internal/record"
	"github.com/roach88/litequery/internal/stage3"
)

// keyChunk bounds the keys bound into one IN statement, leaving the rest of
// the variable budget to the association's own criteria.
const keyChunk = querysql.MaxVariables / 2

// Querier executes a statement and returns its rows. *store.Conn
// implements it.
type Querier interface {
	Query(ctx context.Context, stmt querysql.Statement) ([]record.Record, error)
}

// Resolver runs join queries.
type Resolver struct {
	registry  *model.Registry
	marshaler *record.Marshaler
	logger    *slog.Logger
}

// NewResolver creates a Resolver. A nil marshaler or logger uses the
// defaults.
func NewResolver(reg *model.Registry, marshaler *record.Marshaler, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	if marshaler == nil {
		marshaler = record.NewMarshaler(logger)
	}
	return &Resolver{registry: reg, marshaler: marshaler, logger: logger}
}

// Resolve executes q and returns the parent records with every association
// attached under its alias: a record or nil for ToOne, a possibly empty list
// for ToMany.
//
// When the parent statement matches nothing, no child statement runs.
// Children attach by key value, so gaps left by filtered child rows are
// harmless.
func (r *Resolver) Resolve(ctx context.Context, conn Querier, q stage3.Join) ([]record.Record, error) {
	plan, err := NewPlan(q, r.registry)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("join planned",
		"model", plan.Model.Identity,
		"inline", len(plan.Inline),
		"children", len(plan.Children),
	)

	rows, err := conn.Query(ctx, plan.Parent)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return rows, nil
	}

	for _, row := range rows {
		r.marshaler.ToLogical(row, plan.Model)
	}

	// Parent keys are read before anything is attached: an alias may
	// replace the foreign key attribute it was resolved through.
	keys := make([][]any, len(plan.Children))
	for i, cp := range plan.Children {
		keys[i] = rowKeys(rows, cp.parentKey.Name)
	}

	for _, in := range plan.Inline {
		for _, row := range rows {
			r.attachInline(row, in)
		}
	}

	for i, cp := range plan.Children {
		groups, err := r.fetchChildren(ctx, conn, cp, distinct(keys[i]))
		if err != nil {
			return nil, err
		}
		for j, row := range rows {
			attach(row, cp.Association, groups[keys[i][j]])
		}
	}
	return rows, nil
}

// attachInline moves the alias__column values of an inline association
// into a nested record. A missing related row attaches nil.
func (r *Resolver) attachInline(row record.Record, in InlineJoin) {
	child := make(record.Record, len(in.Model.Columns()))
	for _, col := range in.Model.Columns() {
		key := in.Prefix() + col
		child[col] = row[key]
		delete(row, key)
	}
	if child[in.Model.PrimaryKeyColumn()] == nil {
		row[in.Association.Alias] = nil
		return
	}
	r.marshaler.ToLogical(child, in.Model)
	row[in.Association.Alias] = child
}

// fetchChildren runs the child statements of cp and groups the related
// records by parent key.
func (r *Resolver) fetchChildren(ctx context.Context, conn Querier, cp ChildPlan, parentKeys []any) (map[any][]record.Record, error) {
	groups := make(map[any][]record.Record, len(parentKeys))
	if len(parentKeys) == 0 {
		return groups, nil
	}
	if cp.Through != nil {
		return r.fetchThrough(ctx, conn, cp, parentKeys)
	}

	if cp.PerParent {
		for _, key := range parentKeys {
			children, err := r.query(ctx, conn, cp, cp.Criteria, stage3.Eq(cp.childKey.Name, key))
			if err != nil {
				return nil, err
			}
			groups[key] = children
		}
		return groups, nil
	}

	crit := cp.Criteria
	crit.Limit, crit.Skip = nil, 0
	for _, chunk := range chunks(parentKeys) {
		children, err := r.query(ctx, conn, cp, crit, inKeys(cp.childKey.Name, chunk))
		if err != nil {
			return nil, err
		}
		for _, child := range children {
			key := record.Key(child[cp.childKey.Name])
			groups[key] = append(groups[key], child)
		}
	}
	return groups, nil
}

// fetchThrough resolves a many-to-many association: junction rows first,
// then the related records they point at.
func (r *Resolver) fetchThrough(ctx context.Context, conn Querier, cp ChildPlan, parentKeys []any) (map[any][]record.Record, error) {
	links := make(map[any][]any, len(parentKeys))
	var childKeys []any
	for _, chunk := range chunks(parentKeys) {
		stmt, err := querysql.Select(cp.Through, stage3.Criteria{
			Where: inKeys(cp.throughParent.Name, chunk),
			Sort:  []stage3.SortClause{{Attr: cp.Through.PrimaryKey, Direction: stage3.Asc}},
		}, querysql.OptionsFor(cp.Through))
		if err != nil {
			return nil, err
		}
		junction, err := conn.Query(ctx, stmt)
		if err != nil {
			return nil, err
		}
		for _, row := range junction {
			r.marshaler.ToLogical(row, cp.Through)
			pk := record.Key(row[cp.throughParent.Name])
			ck := record.Key(row[cp.throughChild.Name])
			if ck == nil {
				continue
			}
			links[pk] = append(links[pk], ck)
			childKeys = append(childKeys, ck)
		}
	}

	groups := make(map[any][]record.Record, len(parentKeys))
	if len(childKeys) == 0 {
		return groups, nil
	}

	if cp.PerParent {
		for _, key := range parentKeys {
			linked := distinct(links[key])
			if len(linked) == 0 {
				continue
			}
			children, err := r.query(ctx, conn, cp, cp.Criteria, inKeys(cp.childKey.Name, linked))
			if err != nil {
				return nil, err
			}
			groups[key] = children
		}
		return groups, nil
	}

	crit := cp.Criteria
	crit.Limit, crit.Skip = nil, 0
	var children []record.Record
	for _, chunk := range chunks(distinct(childKeys)) {
		rows, err := r.query(ctx, conn, cp, crit, inKeys(cp.childKey.Name, chunk))
		if err != nil {
			return nil, err
		}
		children = append(children, rows...)
	}

	for _, key := range parentKeys {
		linked := make(map[any]bool, len(links[key]))
		for _, ck := range links[key] {
			linked[ck] = true
		}
		for _, child := range children {
			if linked[record.Key(child[cp.childKey.Name])] {
				groups[key] = append(groups[key], child)
			}
		}
	}
	return groups, nil
}

// query runs one child statement: crit narrowed by match.
func (r *Resolver) query(ctx context.Context, conn Querier, cp ChildPlan, crit stage3.Criteria, match stage3.Predicate) ([]record.Record, error) {
	crit.Where = and(crit.Where, match)
	stmt, err := querysql.Select(cp.Model, crit, querysql.OptionsFor(cp.Model))
	if err != nil {
		return nil, err
	}
	rows, err := conn.Query(ctx, stmt)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		r.marshaler.ToLogical(row, cp.Model)
	}
	return rows, nil
}

func attach(row record.Record, assoc stage3.Association, children []record.Record) {
	if assoc.Cardinality == stage3.ToOne {
		if len(children) == 0 {
			row[assoc.Alias] = nil
			return
		}
		row[assoc.Alias] = children[0]
		return
	}
	if children == nil {
		children = []record.Record{}
	}
	row[assoc.Alias] = children
}

// rowKeys returns the normalized value of attr for every row, in row order.
func rowKeys(rows []record.Record, attr string) []any {
	keys := make([]any, len(rows))
	for i, row := range rows {
		keys[i] = record.Key(row[attr])
	}
	return keys
}

// distinct drops nil and repeated keys, keeping first-seen order.
func distinct(keys []any) []any {
	seen := make(map[any]bool, len(keys))
	out := make([]any, 0, len(keys))
	for _, k := range keys {
		if k == nil || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}

func chunks(keys []any) [][]any {
	var out [][]any
	for start := 0; start < len(keys); start += keyChunk {
		out = append(out, keys[start:min(start+keyChunk, len(keys))])
	}
	return out
}

func inKeys(attr string, keys []any) stage3.Predicate {
	return stage3.Compare{Column: attr, Op: stage3.OpIn, Value: keys}
}

func and(where, match stage3.Predicate) stage3.Predicate {
	if where == nil {
		return match
	}
	return stage3.And{Predicates: []stage3.Predicate{where, match}}
}
