package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/litequery/internal/adapter"
	"github.com/roach88/litequery/internal/canonjson"
	"github.com/roach88/litequery/internal/record"
	"github.com/roach88/litequery/internal/stage3"
	"github.com/roach88/litequery/internal/wherelang"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Message  string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s (expected %s, got %s)", e.Type, e.Message, e.Expected, e.Actual)
	}
	return fmt.Sprintf("%s: expected %s, got %s", e.Type, e.Expected, e.Actual)
}

// AssertionContext provides database access for state assertions.
type AssertionContext struct {
	Ctx     context.Context
	Conn    adapter.Conn
	Adapter *adapter.Adapter
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
//
// Statements issued by state assertions are not added to the trace.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertRowCount:
			err = assertRowCount(actx, a)
		case AssertFinalState:
			err = assertFinalState(actx, a)
		case AssertStatementCount:
			err = assertStatementCount(result.Trace, a)
		case AssertStatementContains:
			err = assertStatementContains(result.Trace, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func assertRowCount(actx *AssertionContext, a Assertion) error {
	where, err := wherelang.Parse(a.Where)
	if err != nil {
		return err
	}
	n, err := actx.Adapter.Count(actx.Ctx, actx.Conn, stage3.Count{
		Using:    a.Model,
		Criteria: stage3.Criteria{Where: where},
	})
	if err != nil {
		return err
	}
	if n != int64(*a.Count) {
		return &AssertionError{
			Type:     AssertRowCount,
			Expected: fmt.Sprintf("%d %s records", *a.Count, a.Model),
			Actual:   fmt.Sprintf("%d", n),
			Message:  whereMessage(a.Where),
		}
	}
	return nil
}

// assertFinalState checks the first record matching Where, in primary key
// order, against Expect.
func assertFinalState(actx *AssertionContext, a Assertion) error {
	where, err := wherelang.Parse(a.Where)
	if err != nil {
		return err
	}
	m, ok := actx.Adapter.Registry().ByIdentity(a.Model)
	if !ok {
		return fmt.Errorf("unknown model %q", a.Model)
	}
	rows, err := actx.Adapter.Find(actx.Ctx, actx.Conn, stage3.Find{
		Using: a.Model,
		Criteria: stage3.Criteria{
			Where: where,
			Sort:  []stage3.SortClause{{Attr: m.PrimaryKey, Direction: stage3.Asc}},
			Limit: stage3.Int64(1),
		},
	})
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: render(a.Expect),
			Actual:   "no matching record",
			Message:  whereMessage(a.Where),
		}
	}
	if !matchValue(a.Expect, rows[0]) {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: render(a.Expect),
			Actual:   render(rows[0]),
			Message:  whereMessage(a.Where),
		}
	}
	return nil
}

func assertStatementCount(trace []TraceEvent, a Assertion) error {
	if len(trace) != *a.Count {
		return &AssertionError{
			Type:     AssertStatementCount,
			Expected: fmt.Sprintf("%d statements", *a.Count),
			Actual:   fmt.Sprintf("%d", len(trace)),
		}
	}
	return nil
}

func assertStatementContains(trace []TraceEvent, a Assertion) error {
	for _, ev := range trace {
		if strings.Contains(ev.SQL, a.SQL) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertStatementContains,
		Expected: fmt.Sprintf("a statement containing %q", a.SQL),
		Actual:   "not found in trace",
	}
}

func whereMessage(where string) string {
	if where == "" {
		return ""
	}
	return "where " + where
}

// matchRecords matches expected against actual. Ordered compares
// position by position; otherwise each expected record claims the first
// unclaimed actual record it matches.
func matchRecords(expected []map[string]any, actual []record.Record, ordered bool) string {
	if ordered {
		if len(expected) != len(actual) {
			return fmt.Sprintf("expected %d records in order, got %d", len(expected), len(actual))
		}
		for i := range expected {
			if !matchValue(expected[i], actual[i]) {
				return fmt.Sprintf("record %d: %s does not match %s", i, render(actual[i]), render(expected[i]))
			}
		}
		return ""
	}

	claimed := make([]bool, len(actual))
	for i, exp := range expected {
		found := false
		for j, act := range actual {
			if !claimed[j] && matchValue(exp, act) {
				claimed[j] = true
				found = true
				break
			}
		}
		if !found {
			return fmt.Sprintf("expected record %d %s not found in %s", i, render(exp), render(actual))
		}
	}
	return ""
}

// matchValue reports whether actual matches expected. Maps match as
// subsets, lists element by element, scalars by canonical JSON text so
// that 3, int64(3) and 3.0 are equal.
func matchValue(expected, actual any) bool {
	switch exp := expected.(type) {
	case map[string]any:
		act, ok := asMap(actual)
		if !ok {
			return false
		}
		for k, v := range exp {
			got, present := act[k]
			if !present && v != nil {
				return false
			}
			if !matchValue(v, got) {
				return false
			}
		}
		return true
	case []any:
		act, ok := asList(actual)
		if !ok || len(act) != len(exp) {
			return false
		}
		for i := range exp {
			if !matchValue(exp[i], act[i]) {
				return false
			}
		}
		return true
	}
	if expected == nil || actual == nil {
		return expected == nil && actual == nil
	}
	return render(scalar(expected)) == render(scalar(actual))
}

// scalar folds the numeric types together. Strings are left alone so "007"
// does not equal 7.
func scalar(v any) any {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	}
	return record.Number(v)
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case record.Record:
		return m, true
	case map[string]any:
		return m, true
	}
	return nil, false
}

func asList(v any) ([]any, bool) {
	if recs, ok := v.([]record.Record); ok {
		out := make([]any, len(recs))
		for i, r := range recs {
			out[i] = r
		}
		return out, true
	}
	return stage3.AsList(v)
}

// render formats v as canonical JSON for messages and comparison.
func render(v any) string {
	s, err := canonjson.MarshalString(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return s
}
