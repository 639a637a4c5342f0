package stage3

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/litequery/internal/dberr"
)

// DecodeYAML parses a stage-three query document.
//
// Document shape:
//
//	method: find
//	using: user
//	criteria:
//	  where: {and: [{age: {">=": 21}}, {name: {startsWith: A}}]}
//	  select: [id, name]
//	  sort: [{name: ASC}]
//	  limit: 10
//	  skip: 0
//	newRecord: {...}       # create
//	newRecords: [{...}]    # createEach
//	valuesToSet: {...}     # update
//	numericAttrName: age   # sum, avg
//	associations: [...]    # join
//	meta: {fetch: true}
func DecodeYAML(data []byte) (Query, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, dberr.Malformed(dberr.CodeMalformedQuery, "parse query: %v", err)
	}
	return Decode(raw)
}

// Decode builds a Query from a loosely typed map (as produced by a YAML or
// JSON decoder) and checks it with Validate.
func Decode(raw map[string]any) (Query, error) {
	if raw == nil {
		return nil, malformed("query is empty")
	}
	method, _ := raw["method"].(string)
	using, _ := raw["using"].(string)

	criteria, err := DecodeCriteria(raw["criteria"])
	if err != nil {
		return nil, err
	}
	meta, err := decodeMeta(raw["meta"])
	if err != nil {
		return nil, err
	}

	var q Query
	switch Method(method) {
	case MethodCreate:
		rec, err := decodeRecord(raw["newRecord"], "newRecord")
		if err != nil {
			return nil, err
		}
		q = Create{Using: using, NewRecord: rec, Meta: meta}
	case MethodCreateEach:
		list, ok := AsList(raw["newRecords"])
		if !ok {
			return nil, malformed("newRecords must be a list")
		}
		recs := make([]map[string]any, 0, len(list))
		for i, item := range list {
			rec, err := decodeRecord(item, fmt.Sprintf("newRecords[%d]", i))
			if err != nil {
				return nil, err
			}
			recs = append(recs, rec)
		}
		q = CreateEach{Using: using, NewRecords: recs, Meta: meta}
	case MethodFind:
		q = Find{Using: using, Criteria: criteria}
	case MethodUpdate:
		values, err := decodeRecord(raw["valuesToSet"], "valuesToSet")
		if err != nil {
			return nil, err
		}
		q = Update{Using: using, Criteria: criteria, ValuesToSet: values, Meta: meta}
	case MethodDestroy:
		q = Destroy{Using: using, Criteria: criteria, Meta: meta}
	case MethodCount:
		q = Count{Using: using, Criteria: criteria}
	case MethodSum:
		attr, _ := raw["numericAttrName"].(string)
		q = Sum{Using: using, Criteria: criteria, NumericAttrName: attr}
	case MethodAvg:
		attr, _ := raw["numericAttrName"].(string)
		q = Avg{Using: using, Criteria: criteria, NumericAttrName: attr}
	case MethodJoin:
		assocs, err := decodeAssociations(raw["associations"])
		if err != nil {
			return nil, err
		}
		q = Join{Using: using, Criteria: criteria, Associations: assocs}
	default:
		return nil, malformed("unknown method %q", method)
	}

	if err := Validate(q); err != nil {
		return nil, err
	}
	return q, nil
}

// DecodeCriteria builds Criteria from a loose map. Nil yields zero Criteria.
func DecodeCriteria(raw any) (Criteria, error) {
	var c Criteria
	if raw == nil {
		return c, nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return c, malformed("criteria must be a map, got %T", raw)
	}

	where, err := DecodePredicate(m["where"])
	if err != nil {
		return c, err
	}
	c.Where = where

	if sel, ok := m["select"]; ok && sel != nil {
		list, ok := AsList(sel)
		if !ok {
			return c, malformed("select must be a list")
		}
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return c, malformed("select entries must be strings, got %T", item)
			}
			c.Select = append(c.Select, s)
		}
	}

	if s, ok := m["sort"]; ok && s != nil {
		c.Sort, err = decodeSort(s)
		if err != nil {
			return c, err
		}
	}

	if l, ok := m["limit"]; ok && l != nil {
		n, ok := toInt64(l)
		if !ok {
			return c, malformed("limit must be an integer, got %v", l)
		}
		c.Limit = &n
	}
	if s, ok := m["skip"]; ok && s != nil {
		n, ok := toInt64(s)
		if !ok {
			return c, malformed("skip must be an integer, got %v", s)
		}
		c.Skip = n
	}
	return c, nil
}

// DecodePredicate builds a predicate tree from its loose form.
//
//	{and: [node...]}             -> And
//	{or: [node...]}              -> Or
//	{column: value}              -> Compare{column, =, value}
//	{column: {op: operand, ...}} -> Compare per operator, combined with And
//
// A map with several columns is a conjunction, in column-name order.
// Operator keys that are not known operators fail with E_UNKNOWN_OPERATOR.
func DecodePredicate(raw any) (Predicate, error) {
	if raw == nil {
		return nil, nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, malformed("predicate must be a map, got %T", raw)
	}

	if len(m) == 1 {
		for key, val := range m {
			switch key {
			case "and":
				children, err := decodeChildren(val, key)
				if err != nil {
					return nil, err
				}
				return And{Predicates: children}, nil
			case "or":
				children, err := decodeChildren(val, key)
				if err != nil {
					return nil, err
				}
				return Or{Predicates: children}, nil
			}
		}
	}

	columns := make([]string, 0, len(m))
	for col := range m {
		if col == "and" || col == "or" {
			return nil, malformed("%q must be the only key of its predicate", col)
		}
		columns = append(columns, col)
	}
	sort.Strings(columns)

	var leaves []Predicate
	for _, col := range columns {
		compares, err := decodeLeaf(col, m[col])
		if err != nil {
			return nil, err
		}
		leaves = append(leaves, compares...)
	}
	if len(leaves) == 1 {
		return leaves[0], nil
	}
	return And{Predicates: leaves}, nil
}

func decodeChildren(raw any, key string) ([]Predicate, error) {
	list, ok := AsList(raw)
	if !ok {
		return nil, malformed("%s must be a list", key)
	}
	children := make([]Predicate, 0, len(list))
	for _, item := range list {
		child, err := DecodePredicate(item)
		if err != nil {
			return nil, err
		}
		if child != nil {
			children = append(children, child)
		}
	}
	return children, nil
}

func decodeLeaf(column string, raw any) ([]Predicate, error) {
	mods, ok := raw.(map[string]any)
	if !ok || len(mods) == 0 {
		return []Predicate{Eq(column, raw)}, nil
	}

	names := make([]string, 0, len(mods))
	for name := range mods {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Predicate, 0, len(names))
	for _, name := range names {
		op, ok := ParseOp(name)
		if !ok {
			return nil, dberr.Consistency(dberr.CodeUnknownOperator,
				"unknown operator %q on %q", name, column)
		}
		out = append(out, Compare{Column: column, Op: op, Value: mods[name]})
	}
	return out, nil
}

func decodeSort(raw any) ([]SortClause, error) {
	list, ok := AsList(raw)
	if !ok {
		list = []any{raw}
	}
	var out []SortClause
	for _, item := range list {
		switch v := item.(type) {
		case string:
			fields := strings.Fields(v)
			if len(fields) == 0 || len(fields) > 2 {
				return nil, malformed("invalid sort clause %q", v)
			}
			dir := Asc
			if len(fields) == 2 {
				d, ok := parseDirection(fields[1])
				if !ok {
					return nil, malformed("invalid sort direction %q", fields[1])
				}
				dir = d
			}
			out = append(out, SortClause{Attr: fields[0], Direction: dir})
		case map[string]any:
			// Map keys carry no order, so each object names one attribute.
			if len(v) != 1 {
				return nil, malformed("sort object must name exactly one attribute, got %d", len(v))
			}
			for attr, dir := range v {
				s, _ := dir.(string)
				d, ok := parseDirection(s)
				if !ok {
					return nil, malformed("invalid sort direction %v for %q", dir, attr)
				}
				out = append(out, SortClause{Attr: attr, Direction: d})
			}
		default:
			return nil, malformed("invalid sort clause %v", item)
		}
	}
	return out, nil
}

func parseDirection(s string) (Direction, bool) {
	switch strings.ToUpper(s) {
	case "ASC":
		return Asc, true
	case "DESC":
		return Desc, true
	}
	return "", false
}

func decodeMeta(raw any) (Meta, error) {
	if raw == nil {
		return Meta{}, nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return Meta{}, malformed("meta must be a map")
	}
	fetch, _ := m["fetch"].(bool)
	return Meta{Fetch: fetch}, nil
}

func decodeRecord(raw any, field string) (map[string]any, error) {
	if raw == nil {
		return nil, malformed("%s is required", field)
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, malformed("%s must be a map, got %T", field, raw)
	}
	return m, nil
}

func decodeAssociations(raw any) ([]Association, error) {
	if raw == nil {
		return nil, nil
	}
	list, ok := AsList(raw)
	if !ok {
		return nil, malformed("associations must be a list")
	}
	out := make([]Association, 0, len(list))
	for i, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, malformed("associations[%d] must be a map", i)
		}
		a := Association{
			Alias:       str(m["alias"]),
			Model:       str(m["model"]),
			Cardinality: Cardinality(str(m["cardinality"])),
			ParentKey:   str(m["parentKey"]),
			ChildKey:    str(m["childKey"]),
		}
		if t, ok := m["through"].(map[string]any); ok {
			a.Through = &Through{
				Model:     str(t["model"]),
				ParentKey: str(t["parentKey"]),
				ChildKey:  str(t["childKey"]),
			}
		}
		if c, ok := m["criteria"]; ok && c != nil {
			crit, err := DecodeCriteria(c)
			if err != nil {
				return nil, fmt.Errorf("associations[%d]: %w", i, err)
			}
			a.Criteria = &crit
		}
		out = append(out, a)
	}
	return out, nil
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

// AsList reports whether v is a list operand and returns its elements as
// []any. Byte slices are scalars.
func AsList(v any) ([]any, bool) {
	if list, ok := v.([]any); ok {
		return list, true
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil, false
	}
	if rv.Type().Elem().Kind() == reflect.Uint8 {
		// []byte is a scalar, not a list.
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		if uint64(n) > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case float64:
		// float64(math.MaxInt64) rounds up to 2^63, itself out of range.
		if n != math.Trunc(n) || math.Abs(n) >= math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	}
	return 0, false
}

func malformed(format string, args ...any) error {
	return dberr.Malformed(dberr.CodeMalformedQuery, format, args...)
}
