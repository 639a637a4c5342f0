// Package querysql compiles stage-three criteria and operations to
// parameterized SQLite statements.
package querysql

import (
	"fmt"
	"strings"
	"time"

	"github.com/roach88/litequery/internal/canonjson"
	"github.com/roach88/litequery/internal/dberr"
	"github.com/roach88/litequery/internal/model"
	"github.com/roach88/litequery/internal/stage3"
)

// TimeFormat is the ISO-8601 layout time values are bound and stored with.
const TimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Statement is a compiled SQL statement and its positional bindings.
//
// CRITICAL: len(Bindings) always equals the number of ? placeholders in SQL,
// in emission order.
type Statement struct {
	SQL      string
	Bindings []any
}

// Options are the model's query options relevant to compilation.
type Options struct {
	// CaseInsensitive lowers pattern operators to LIKE instead of GLOB.
	CaseInsensitive bool
}

// OptionsFor projects a model's query options.
func OptionsFor(m *model.Model) Options {
	return Options{CaseInsensitive: m.CaseInsensitive}
}

// Compiler lowers criteria against one model to SQL fragments.
//
// CRITICAL: values are never interpolated; only identifiers resolved through
// the model (or table-qualified references) reach the SQL text, always quoted.
type Compiler struct {
	Model   *model.Model
	Options Options

	// Qualifier prefixes bare column references as "qualifier"."column".
	// Empty leaves them unqualified.
	Qualifier string
}

// NewCompiler creates a Compiler for m using the model's own options.
func NewCompiler(m *model.Model) *Compiler {
	return &Compiler{Model: m, Options: OptionsFor(m)}
}

// Compile lowers find criteria to a SELECT statement.
//
// A missing limit is a caller contract breach and fails with
// ConsistencyViolation (E_MISSING_LIMIT).
func Compile(c stage3.Criteria, m *model.Model, opts Options) (Statement, error) {
	if c.Limit == nil {
		return Statement{}, dberr.Consistency(dberr.CodeMissingLimit, "find on %q has no limit", m.Identity)
	}
	return Select(m, c, opts)
}

// Select lowers criteria to a SELECT statement. Limit is optional.
func Select(m *model.Model, c stage3.Criteria, opts Options) (Statement, error) {
	comp := &Compiler{Model: m, Options: opts}

	cols, err := comp.Projection(c.Select)
	if err != nil {
		return Statement{}, err
	}
	tail, bindings, err := comp.Clauses(c)
	if err != nil {
		return Statement{}, err
	}
	sql := fmt.Sprintf("SELECT %s FROM %s%s", strings.Join(cols, ", "), Quote(m.TableName), tail)
	return Statement{SQL: sql, Bindings: bindings}, nil
}

// Clauses compiles the WHERE, ORDER BY and LIMIT/OFFSET tail of a statement,
// including the leading space when non-empty.
func (c *Compiler) Clauses(crit stage3.Criteria) (string, []any, error) {
	var b strings.Builder
	var bindings []any

	where, params, err := c.Where(crit.Where)
	if err != nil {
		return "", nil, err
	}
	if where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(where)
		bindings = append(bindings, params...)
	}

	order, err := c.OrderBy(crit.Sort)
	if err != nil {
		return "", nil, err
	}
	if order != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(order)
	}

	page, params := Page(crit.Limit, crit.Skip)
	b.WriteString(page)
	bindings = append(bindings, params...)

	return b.String(), bindings, nil
}

// Projection returns the quoted column list for the selected attributes, in
// model order. Empty selects every column; the primary key is always
// included.
func (c *Compiler) Projection(attrs []string) ([]string, error) {
	wanted := make(map[string]bool, len(attrs)+1)
	for _, name := range attrs {
		if _, ok := c.Model.Attribute(name); !ok {
			return nil, dberr.Consistency(dberr.CodeUnknownAttribute,
				"unknown attribute %q on %q", name, c.Model.Identity)
		}
		wanted[name] = true
	}
	wanted[c.Model.PrimaryKey] = true

	var cols []string
	for _, attr := range c.Model.Attributes() {
		if len(attrs) > 0 && !wanted[attr.Name] {
			continue
		}
		cols = append(cols, c.column(attr.ColumnName))
	}
	return cols, nil
}

// Where compiles a predicate tree. A nil predicate compiles to "".
func (c *Compiler) Where(p stage3.Predicate) (string, []any, error) {
	if p == nil {
		return "", nil, nil
	}
	params := []any{}
	sql, err := c.predicate(p, &params)
	if err != nil {
		return "", nil, err
	}
	return sql, params, nil
}

func (c *Compiler) predicate(p stage3.Predicate, params *[]any) (string, error) {
	switch node := p.(type) {
	case stage3.And:
		return c.group(node.Predicates, " AND ", "1 = 1", params)
	case *stage3.And:
		return c.group(node.Predicates, " AND ", "1 = 1", params)
	case stage3.Or:
		return c.group(node.Predicates, " OR ", "0 = 1", params)
	case *stage3.Or:
		return c.group(node.Predicates, " OR ", "0 = 1", params)
	case stage3.Compare:
		return c.compare(node, params)
	case *stage3.Compare:
		return c.compare(*node, params)
	default:
		return "", dberr.Consistency(dberr.CodeUnknownOperator, "unsupported predicate type %T", p)
	}
}

// group joins compiled children with sep, parenthesized. An empty group
// compiles to the given constant clause.
func (c *Compiler) group(children []stage3.Predicate, sep, empty string, params *[]any) (string, error) {
	if len(children) == 0 {
		return empty, nil
	}
	parts := make([]string, 0, len(children))
	for _, child := range children {
		sql, err := c.predicate(child, params)
		if err != nil {
			return "", err
		}
		parts = append(parts, sql)
	}
	return "(" + strings.Join(parts, sep) + ")", nil
}

func (c *Compiler) compare(cmp stage3.Compare, params *[]any) (string, error) {
	col, err := c.Ref(cmp.Column)
	if err != nil {
		return "", err
	}

	switch cmp.Op {
	case stage3.OpEq, stage3.OpNe:
		if cmp.Value == nil {
			if cmp.Op == stage3.OpEq {
				return col + " IS NULL", nil
			}
			return col + " IS NOT NULL", nil
		}
		*params = append(*params, BindValue(cmp.Value))
		return fmt.Sprintf("%s %s ?", col, cmp.Op), nil

	case stage3.OpLt, stage3.OpLte, stage3.OpGt, stage3.OpGte:
		*params = append(*params, BindValue(cmp.Value))
		return fmt.Sprintf("%s %s ?", col, cmp.Op), nil

	case stage3.OpIn, stage3.OpNin:
		list, ok := stage3.AsList(cmp.Value)
		if !ok {
			return "", dberr.Malformed(dberr.CodeMalformedQuery,
				"%s on %q needs a list, got %T", cmp.Op, cmp.Column, cmp.Value)
		}
		if len(list) == 0 {
			if cmp.Op == stage3.OpIn {
				return "0 = 1", nil
			}
			return "1 = 1", nil
		}
		keyword := "IN"
		if cmp.Op == stage3.OpNin {
			keyword = "NOT IN"
		}
		for _, v := range list {
			*params = append(*params, BindValue(v))
		}
		return fmt.Sprintf("%s %s (%s)", col, keyword, Placeholders(len(list))), nil

	case stage3.OpLike, stage3.OpContains, stage3.OpStartsWith, stage3.OpEndsWith:
		s, ok := cmp.Value.(string)
		if !ok {
			return "", dberr.Malformed(dberr.CodeMalformedQuery,
				"%s on %q needs a string, got %T", cmp.Op, cmp.Column, cmp.Value)
		}
		pattern := likePattern(cmp.Op, s)
		if c.Options.CaseInsensitive {
			*params = append(*params, pattern)
			return col + ` LIKE ? ESCAPE '\'`, nil
		}
		*params = append(*params, likeToGlob(pattern))
		return col + " GLOB ?", nil
	}

	return "", dberr.Consistency(dberr.CodeUnknownOperator,
		"unknown operator %q on %q", cmp.Op, cmp.Column)
}

// OrderBy compiles sort clauses in list order. Empty sort compiles to "".
func (c *Compiler) OrderBy(sort []stage3.SortClause) (string, error) {
	parts := make([]string, 0, len(sort))
	for _, s := range sort {
		col, err := c.Ref(s.Attr)
		if err != nil {
			return "", err
		}
		dir := stage3.Asc
		if s.Direction == stage3.Desc {
			dir = stage3.Desc
		}
		parts = append(parts, fmt.Sprintf("%s %s", col, dir))
	}
	return strings.Join(parts, ", "), nil
}

// Page compiles limit and skip to a bound LIMIT/OFFSET clause with its
// leading space. SQLite requires LIMIT before OFFSET, so a skip without a
// limit uses LIMIT -1.
func Page(limit *int64, skip int64) (string, []any) {
	switch {
	case limit != nil && skip > 0:
		return " LIMIT ? OFFSET ?", []any{*limit, skip}
	case limit != nil:
		return " LIMIT ?", []any{*limit}
	case skip > 0:
		return " LIMIT -1 OFFSET ?", []any{skip}
	}
	return "", nil
}

// Ref resolves a column reference.
//
// A table-qualified reference ("table.column") is preserved verbatim with
// each part quoted. A bare reference resolves as an attribute name, then as
// a column name; anything else fails with ConsistencyViolation.
func (c *Compiler) Ref(ref string) (string, error) {
	if table, column, ok := strings.Cut(ref, "."); ok {
		return Quote(table) + "." + Quote(column), nil
	}
	if attr, ok := c.Model.Attribute(ref); ok {
		return c.column(attr.ColumnName), nil
	}
	if attr, ok := c.Model.AttributeByColumn(ref); ok {
		return c.column(attr.ColumnName), nil
	}
	return "", dberr.Consistency(dberr.CodeUnknownAttribute,
		"unknown attribute %q on %q", ref, c.Model.Identity)
}

func (c *Compiler) column(name string) string {
	if c.Qualifier == "" {
		return Quote(name)
	}
	return Quote(c.Qualifier) + "." + Quote(name)
}

// Quote quotes an SQL identifier.
func Quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Placeholders returns n comma-separated ? placeholders.
func Placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// BindValue converts a logical operand to the value bound for it: times as
// ISO-8601 text, booleans as 1/0, maps and lists as canonical JSON text.
func BindValue(v any) any {
	switch val := v.(type) {
	case time.Time:
		return val.UTC().Format(TimeFormat)
	case *time.Time:
		if val == nil {
			return nil
		}
		return val.UTC().Format(TimeFormat)
	case bool:
		if val {
			return int64(1)
		}
		return int64(0)
	case map[string]any:
		if s, err := canonjson.MarshalString(val); err == nil {
			return s
		}
	case []any:
		if s, err := canonjson.MarshalString(val); err == nil {
			return s
		}
	}
	return v
}

// likePattern builds the LIKE pattern for a pattern operator. The operand of
// contains/startsWith/endsWith is matched literally; like uses the caller's
// pattern as-is.
func likePattern(op stage3.Op, s string) string {
	switch op {
	case stage3.OpContains:
		return "%" + escapeLike(s) + "%"
	case stage3.OpStartsWith:
		return escapeLike(s) + "%"
	case stage3.OpEndsWith:
		return "%" + escapeLike(s)
	}
	return s
}

// escapeLike escapes LIKE wildcards with the \ escape character.
func escapeLike(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '\\', '%', '_':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// likeToGlob rewrites a LIKE pattern (with \ escapes) as an equivalent GLOB
// pattern: % becomes *, _ becomes ?, and GLOB metacharacters are matched
// literally through single-character classes.
func likeToGlob(pattern string) string {
	var b strings.Builder
	escaped := false
	for _, r := range pattern {
		if escaped {
			writeGlobLiteral(&b, r)
			escaped = false
			continue
		}
		switch r {
		case '\\':
			escaped = true
		case '%':
			b.WriteByte('*')
		case '_':
			b.WriteByte('?')
		default:
			writeGlobLiteral(&b, r)
		}
	}
	if escaped {
		writeGlobLiteral(&b, '\\')
	}
	return b.String()
}

func writeGlobLiteral(b *strings.Builder, r rune) {
	switch r {
	case '*', '?', '[':
		b.WriteByte('[')
		b.WriteRune(r)
		b.WriteByte(']')
	default:
		b.WriteRune(r)
	}
}
