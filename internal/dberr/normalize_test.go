package dberr

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_Nil(t *testing.T) {
	assert.Nil(t, Normalize(nil))
	assert.NoError(t, Wrap(nil))
}

func TestNormalize_CodeMapping(t *testing.T) {
	tests := []struct {
		name string
		err  sqlite3.Error
		want Kind
	}{
		{"unique", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique}, KindNotUnique},
		{"primary key", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintPrimaryKey}, KindNotUnique},
		{"not null", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintNotNull}, KindViolation},
		{"busy", sqlite3.Error{Code: sqlite3.ErrBusy}, KindBusy},
		{"locked", sqlite3.Error{Code: sqlite3.ErrLocked}, KindBusy},
		{"readonly", sqlite3.Error{Code: sqlite3.ErrReadonly}, KindReadOnly},
		{"full", sqlite3.Error{Code: sqlite3.ErrFull}, KindFull},
		{"corrupt", sqlite3.Error{Code: sqlite3.ErrCorrupt}, KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(fmt.Errorf("exec: %w", tt.err))
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Kind)
			assert.NotNil(t, got.Cause())
		})
	}
}

func TestNormalize_UnparseableUniqueStillNotUnique(t *testing.T) {
	got := Normalize(sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique})
	assert.Equal(t, KindNotUnique, got.Kind)
	assert.NotNil(t, got.Columns)
	assert.Empty(t, got.Columns)
}

func TestNormalize_NoRowsIsNotFound(t *testing.T) {
	got := Normalize(fmt.Errorf("lookup: %w", sql.ErrNoRows))
	assert.Equal(t, KindNotFound, got.Kind)
}

func TestNormalize_PlainErrorIsUnknown(t *testing.T) {
	got := Normalize(errors.New("disk on fire"))
	assert.Equal(t, KindUnknown, got.Kind)
	assert.Equal(t, "disk on fire", got.Message)
}

func TestNormalize_AlreadyTaggedIsConsistencyViolation(t *testing.T) {
	first := New(KindBusy, "database is locked")
	got := Normalize(fmt.Errorf("retry: %w", first))

	assert.Equal(t, KindConsistencyViolation, got.Kind)
	assert.Equal(t, CodeDoubleNormalization, got.Code)
}

func TestWrap_PassesTaggedErrorsThrough(t *testing.T) {
	first := New(KindBusy, "database is locked")
	got := Wrap(fmt.Errorf("ctx: %w", first))
	assert.Same(t, first, got)

	assert.Equal(t, KindUnknown, KindOf(Wrap(errors.New("x"))))
}

func TestNormalize_DoesNotExposeNativeError(t *testing.T) {
	got := Normalize(sqlite3.Error{Code: sqlite3.ErrBusy})

	var native sqlite3.Error
	assert.False(t, errors.As(error(got), &native))
}

func TestUniqueColumns(t *testing.T) {
	tests := []struct {
		msg  string
		want []string
	}{
		{"UNIQUE constraint failed: users.email", []string{"email"}},
		{"UNIQUE constraint failed: users.email, users.name", []string{"email", "name"}},
		{"PRIMARY KEY constraint failed: users.id", []string{"id"}},
		{"UNIQUE constraint failed: index 'idx_x'", []string{"index 'idx_x'"}},
		{"constraint failed", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.Equal(t, tt.want, uniqueColumns(tt.msg))
		})
	}
}

func TestNormalize_RealUniqueViolation(t *testing.T) {
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE users (id INTEGER PRIMARY KEY, email TEXT UNIQUE)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO users (email) VALUES ('a@example.com')`)
	require.NoError(t, err)

	_, err = db.Exec(`INSERT INTO users (email) VALUES ('a@example.com')`)
	require.Error(t, err)

	got := Normalize(err)
	assert.Equal(t, KindNotUnique, got.Kind)
	assert.Equal(t, []string{"email"}, got.Columns)
	assert.True(t, IsNotUnique(got))
	assert.Equal(t, []string{"email"}, ColumnsOf(got))
}

func TestError_Message(t *testing.T) {
	e := &Error{Kind: KindNotUnique, Message: "dup", Columns: []string{"email"}}
	assert.Equal(t, "NOT_UNIQUE: dup [columns: email]", e.Error())

	e = Consistency(CodeAlreadyActive, "tx %s active", "abc")
	assert.Equal(t, "CONSISTENCY_VIOLATION (E_ALREADY_ACTIVE): tx abc active", e.Error())
	assert.Equal(t, CodeAlreadyActive, CodeOf(e))
	assert.True(t, IsConsistencyViolation(e))
}
