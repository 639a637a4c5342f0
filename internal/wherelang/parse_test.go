package wherelang

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/litequery/internal/dberr"
	"github.com/roach88/litequery/internal/stage3"
)

func TestParse_Comparisons(t *testing.T) {
	tests := []struct {
		name string
		expr string
		want stage3.Predicate
	}{
		{"integer", `age >= 21`, stage3.Compare{Column: "age", Op: stage3.OpGte, Value: int64(21)}},
		{"float", `score < 9.5`, stage3.Compare{Column: "score", Op: stage3.OpLt, Value: 9.5}},
		{"negative", `balance > -3`, stage3.Compare{Column: "balance", Op: stage3.OpGt, Value: int64(-3)}},
		{"string", `name = "Ann \"A\""`, stage3.Compare{Column: "name", Op: stage3.OpEq, Value: `Ann "A"`}},
		{"null", `email = null`, stage3.Compare{Column: "email", Op: stage3.OpEq, Value: nil}},
		{"quoted null is a string", `email = "null"`, stage3.Compare{Column: "email", Op: stage3.OpEq, Value: "null"}},
		{"bool", `active != false`, stage3.Compare{Column: "active", Op: stage3.OpNe, Value: false}},
		{"ne alias", `active ne true`, stage3.Compare{Column: "active", Op: stage3.OpNe, Value: true}},
		{"pattern", `name startsWith "A"`, stage3.Compare{Column: "name", Op: stage3.OpStartsWith, Value: "A"}},
		{"qualified", `pet.name contains "x"`, stage3.Compare{Column: "pet.name", Op: stage3.OpContains, Value: "x"}},
		{"in", `id in [1, 2, "3"]`, stage3.Compare{Column: "id", Op: stage3.OpIn, Value: []any{int64(1), int64(2), "3"}}},
		{"empty nin", `id nin []`, stage3.Compare{Column: "id", Op: stage3.OpNin, Value: []any{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse_Precedence(t *testing.T) {
	got, err := Parse(`a = 1 or b = 2 and c = 3`)
	require.NoError(t, err)

	want := stage3.Or{Predicates: []stage3.Predicate{
		stage3.Compare{Column: "a", Op: stage3.OpEq, Value: int64(1)},
		stage3.And{Predicates: []stage3.Predicate{
			stage3.Compare{Column: "b", Op: stage3.OpEq, Value: int64(2)},
			stage3.Compare{Column: "c", Op: stage3.OpEq, Value: int64(3)},
		}},
	}}
	assert.Equal(t, want, got)
}

func TestParse_Grouping(t *testing.T) {
	got, err := Parse(`(a = 1 or b = 2) and c = 3`)
	require.NoError(t, err)

	want := stage3.And{Predicates: []stage3.Predicate{
		stage3.Or{Predicates: []stage3.Predicate{
			stage3.Compare{Column: "a", Op: stage3.OpEq, Value: int64(1)},
			stage3.Compare{Column: "b", Op: stage3.OpEq, Value: int64(2)},
		}},
		stage3.Compare{Column: "c", Op: stage3.OpEq, Value: int64(3)},
	}}
	assert.Equal(t, want, got)
}

func TestParse_Blank(t *testing.T) {
	got, err := Parse("   ")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		expr string
	}{
		{"missing value", `age >=`},
		{"missing operator", `age 21`},
		{"unclosed group", `(age = 1`},
		{"trailing and", `age = 1 and`},
		{"pattern needs string", `name like 3`},
		{"in needs list", `id in 3`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.expr)
			require.Error(t, err)
			assert.Equal(t, dberr.KindMalformed, dberr.KindOf(err))
		})
	}
}

func TestMustParse_Panics(t *testing.T) {
	assert.Panics(t, func() { MustParse(`age >`) })
	assert.NotPanics(t, func() { MustParse(`age > 1`) })
}
