// Package wherelang parses the text form of where predicates used on the
// command line and in scenario files:
//
//	age >= 21 and (name startsWith "A" or email = null)
//	id in [1, 2, 3]
//
// Comparisons take an attribute (optionally table-qualified), an operator
// and a literal. Literals are double-quoted strings, numbers, true, false,
// null, and bracketed lists. "and" binds tighter than "or".
package wherelang

import (
	"errors"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"

	"github.com/roach88/litequery/internal/dberr"
	"github.com/roach88/litequery/internal/stage3"
)

// Parse converts expr into a predicate tree. Blank input yields a nil
// predicate, which matches every record.
//
// Syntax errors and ill-formed comparisons (a pattern operator without a
// string, in without a list) are Malformed errors carrying the position.
func Parse(expr string) (stage3.Predicate, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, nil
	}
	ast, err := parser.ParseString("where", expr)
	if err != nil {
		var perr participle.Error
		if errors.As(err, &perr) {
			pos := perr.Position()
			return nil, dberr.Malformed(dberr.CodeMalformedQuery,
				"where %d:%d: %s", pos.Line, pos.Column, perr.Message())
		}
		return nil, dberr.Malformed(dberr.CodeMalformedQuery, "where: %v", err)
	}
	pred, err := ast.predicate()
	if err != nil {
		return nil, err
	}
	if err := stage3.ValidatePredicate(pred); err != nil {
		return nil, err
	}
	return pred, nil
}

// MustParse is Parse for literals in tests and static setup; it panics on
// error.
func MustParse(expr string) stage3.Predicate {
	p, err := Parse(expr)
	if err != nil {
		panic(err)
	}
	return p
}

func (e *orExpr) predicate() (stage3.Predicate, error) {
	preds := make([]stage3.Predicate, 0, len(e.And))
	for _, a := range e.And {
		p, err := a.predicate()
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	if len(preds) == 1 {
		return preds[0], nil
	}
	return stage3.Or{Predicates: preds}, nil
}

func (e *andExpr) predicate() (stage3.Predicate, error) {
	preds := make([]stage3.Predicate, 0, len(e.Terms))
	for _, t := range e.Terms {
		var (
			p   stage3.Predicate
			err error
		)
		if t.Group != nil {
			p, err = t.Group.predicate()
		} else {
			p, err = t.Comparison.predicate()
		}
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	if len(preds) == 1 {
		return preds[0], nil
	}
	return stage3.And{Predicates: preds}, nil
}

func (c *comparison) predicate() (stage3.Predicate, error) {
	op, ok := stage3.ParseOp(c.Op)
	if !ok {
		return nil, dberr.Consistency(dberr.CodeUnknownOperator, "where %d:%d: unknown operator %q", c.Pos.Line, c.Pos.Column, c.Op)
	}
	v, err := c.Value.literal()
	if err != nil {
		return nil, dberr.Malformed(dberr.CodeMalformedQuery, "where %d:%d: %s: %v", c.Pos.Line, c.Pos.Column, c.Column, err)
	}
	return stage3.Compare{Column: c.Column, Op: op, Value: v}, nil
}

// literal converts a parsed value. Integers become int64 so they compare
// equal to stored integer keys; anything with a fraction or exponent is a
// float64.
func (v *value) literal() (any, error) {
	switch {
	case v.Null:
		return nil, nil
	case v.True:
		return true, nil
	case v.False:
		return false, nil
	case v.String != nil:
		return *v.String, nil
	case v.Number != nil:
		if n, err := strconv.ParseInt(*v.Number, 10, 64); err == nil {
			return n, nil
		}
		return strconv.ParseFloat(*v.Number, 64)
	case v.List != nil:
		items := make([]any, 0, len(v.List.Items))
		for _, item := range v.List.Items {
			lit, err := item.literal()
			if err != nil {
				return nil, err
			}
			items = append(items, lit)
		}
		return items, nil
	}
	return nil, errors.New("empty value")
}
