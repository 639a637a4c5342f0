package join

import (
	"fmt"
	"strings"

	"github.com/roach88/litequery/internal/dberr"
	"github.com/roach88/litequery/internal/model"
	"github.com/roach88/litequery/internal/querysql"
	"github.com/roach88/litequery/internal/stage3"
)

// Plan is the statement layout of a join query.
type Plan struct {
	Model *model.Model

	// Parent selects the primary records, with every inline association
	// folded in through a LEFT JOIN.
	Parent querysql.Statement

	Inline   []InlineJoin
	Children []ChildPlan
}

// InlineJoin is a to-one association resolved inside the parent statement.
// Its columns come back as alias__column.
type InlineJoin struct {
	Association stage3.Association
	Model       *model.Model

	parentKey *model.Attribute
	childKey  *model.Attribute
}

// ChildPlan is an association resolved by separate child statements, built
// once the parent keys are known.
type ChildPlan struct {
	Association stage3.Association
	Model       *model.Model
	Through     *model.Model

	// Criteria is the association's own criteria with the key column added
	// to any projection.
	Criteria stage3.Criteria

	// PerParent runs one child statement per parent key, because the
	// association paginates per parent and a single IN statement cannot
	// express "top N per group".
	PerParent bool

	parentKey     *model.Attribute
	childKey      *model.Attribute
	throughParent *model.Attribute
	throughChild  *model.Attribute
}

// Prefix is the column alias prefix of an inline association.
func (in InlineJoin) Prefix() string {
	return in.Association.Alias + "__"
}

// NewPlan partitions the associations of q and compiles the parent
// statement.
//
// To-one associations without criteria whose child key is unique are joined
// inline. Everything else (to-many, junction and filtered associations)
// becomes a child statement.
func NewPlan(q stage3.Join, reg *model.Registry) (*Plan, error) {
	m, ok := reg.ByIdentity(q.Using)
	if !ok {
		return nil, dberr.Consistency(dberr.CodeUnknownModel, "unknown model %q", q.Using)
	}
	if q.Criteria.Limit == nil {
		return nil, dberr.Consistency(dberr.CodeMissingLimit, "join on %q has no limit", m.Identity)
	}

	p := &Plan{Model: m}
	crit := q.Criteria
	for _, assoc := range q.Associations {
		if assoc.Alias == m.TableName {
			return nil, dberr.Malformed(dberr.CodeMalformedQuery,
				"association alias %q shadows table %q", assoc.Alias, m.TableName)
		}
		child, ok := reg.ByIdentity(assoc.Model)
		if !ok {
			return nil, dberr.Consistency(dberr.CodeUnknownModel,
				"association %q: unknown model %q", assoc.Alias, assoc.Model)
		}
		parentKey, err := keyAttribute(m, assoc.ParentKey, assoc.Alias)
		if err != nil {
			return nil, err
		}
		childKey, err := keyAttribute(child, assoc.ChildKey, assoc.Alias)
		if err != nil {
			return nil, err
		}
		crit.Select = withAttribute(crit.Select, parentKey.Name)

		if assoc.Cardinality == stage3.ToOne && assoc.Through == nil && assoc.Criteria == nil &&
			(childKey.Name == child.PrimaryKey || childKey.Unique) {
			p.Inline = append(p.Inline, InlineJoin{
				Association: assoc,
				Model:       child,
				parentKey:   parentKey,
				childKey:    childKey,
			})
			continue
		}

		cp := ChildPlan{
			Association: assoc,
			Model:       child,
			PerParent:   assoc.Paginated(),
			parentKey:   parentKey,
			childKey:    childKey,
		}
		if assoc.Criteria != nil {
			cp.Criteria = *assoc.Criteria
		}
		cp.Criteria.Select = withAttribute(cp.Criteria.Select, childKey.Name)

		if assoc.Through != nil {
			through, ok := reg.ByIdentity(assoc.Through.Model)
			if !ok {
				return nil, dberr.Consistency(dberr.CodeUnknownModel,
					"association %q: unknown junction model %q", assoc.Alias, assoc.Through.Model)
			}
			if cp.throughParent, err = keyAttribute(through, assoc.Through.ParentKey, assoc.Alias); err != nil {
				return nil, err
			}
			if cp.throughChild, err = keyAttribute(through, assoc.Through.ChildKey, assoc.Alias); err != nil {
				return nil, err
			}
			cp.Through = through
		}
		p.Children = append(p.Children, cp)
	}

	stmt, err := parentStatement(m, crit, p.Inline)
	if err != nil {
		return nil, err
	}
	p.Parent = stmt
	return p, nil
}

// parentStatement compiles the primary SELECT. Parent columns are qualified
// with the table name so inline joins cannot make them ambiguous.
func parentStatement(m *model.Model, crit stage3.Criteria, inline []InlineJoin) (querysql.Statement, error) {
	opts := querysql.OptionsFor(m)
	comp := &querysql.Compiler{Model: m, Options: opts, Qualifier: m.TableName}
	if _, err := comp.Projection(crit.Select); err != nil {
		return querysql.Statement{}, err
	}

	table := querysql.Quote(m.TableName)
	var cols []string
	for _, col := range selectedColumns(m, crit.Select) {
		cols = append(cols, fmt.Sprintf("%s.%s AS %s", table, querysql.Quote(col), querysql.Quote(col)))
	}

	var from strings.Builder
	from.WriteString(table)
	for _, in := range inline {
		alias := querysql.Quote(in.Association.Alias)
		for _, col := range in.Model.Columns() {
			cols = append(cols, fmt.Sprintf("%s.%s AS %s", alias, querysql.Quote(col), querysql.Quote(in.Prefix()+col)))
		}
		fmt.Fprintf(&from, " LEFT JOIN %s AS %s ON %s.%s = %s.%s",
			querysql.Quote(in.Model.TableName), alias,
			table, querysql.Quote(in.parentKey.ColumnName),
			alias, querysql.Quote(in.childKey.ColumnName))
	}

	tail, bindings, err := comp.Clauses(crit)
	if err != nil {
		return querysql.Statement{}, err
	}
	sql := fmt.Sprintf("SELECT %s FROM %s%s", strings.Join(cols, ", "), from.String(), tail)
	return querysql.Statement{SQL: sql, Bindings: bindings}, nil
}

// selectedColumns mirrors Compiler.Projection with unquoted column names.
func selectedColumns(m *model.Model, attrs []string) []string {
	wanted := map[string]bool{m.PrimaryKey: true}
	for _, a := range attrs {
		wanted[a] = true
	}
	var cols []string
	for _, attr := range m.Attributes() {
		if len(attrs) > 0 && !wanted[attr.Name] {
			continue
		}
		cols = append(cols, attr.ColumnName)
	}
	return cols
}

// keyAttribute resolves an association key, defaulting to the primary key.
func keyAttribute(m *model.Model, name, alias string) (*model.Attribute, error) {
	if name == "" {
		return m.PrimaryKeyAttribute(), nil
	}
	attr, ok := m.Attribute(name)
	if !ok {
		return nil, dberr.Consistency(dberr.CodeUnknownAttribute,
			"association %q: unknown key attribute %q on %q", alias, name, m.Identity)
	}
	return attr, nil
}

// withAttribute adds name to a non-empty projection. An empty projection
// already selects everything.
func withAttribute(sel []string, name string) []string {
	if len(sel) == 0 {
		return sel
	}
	for _, s := range sel {
		if s == name {
			return sel
		}
	}
	out := make([]string, len(sel), len(sel)+1)
	copy(out, sel)
	return append(out, name)
}
