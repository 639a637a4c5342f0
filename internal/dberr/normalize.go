package dberr

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/mattn/go-sqlite3"
)

// uniquePrefixes are the message prefixes SQLite uses for uniqueness
// failures, e.g. "UNIQUE constraint failed: users.email, users.name".
var uniquePrefixes = []string{
	"UNIQUE constraint failed: ",
	"PRIMARY KEY constraint failed: ",
}

// Normalize converts a failure from the database layer into an *Error.
//
// Mapping:
//   - ErrConstraintUnique, ErrConstraintPrimaryKey -> KindNotUnique
//   - other ErrConstraint                          -> KindViolation
//   - ErrBusy, ErrLocked                           -> KindBusy
//   - ErrReadonly                                  -> KindReadOnly
//   - ErrFull                                      -> KindFull
//   - sql.ErrNoRows                                -> KindNotFound
//   - anything else                                -> KindUnknown
//
// An error that already carries a Kind indicates a double-normalization bug
// and is reported as KindConsistencyViolation, distinct from database errors.
// Normalize(nil) returns nil.
func Normalize(err error) *Error {
	if err == nil {
		return nil
	}

	var tagged *Error
	if errors.As(err, &tagged) {
		return &Error{
			Kind:    KindConsistencyViolation,
			Code:    CodeDoubleNormalization,
			Message: "error was already normalized: " + tagged.Error(),
			cause:   err,
		}
	}

	if errors.Is(err, sql.ErrNoRows) {
		return &Error{Kind: KindNotFound, Message: "no rows", cause: err}
	}

	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return &Error{Kind: KindUnknown, Message: err.Error(), cause: err}
	}

	msg := sqliteErr.Error()
	switch sqliteErr.ExtendedCode {
	case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
		return &Error{Kind: KindNotUnique, Message: msg, Columns: uniqueColumns(msg), cause: err}
	}

	switch sqliteErr.Code {
	case sqlite3.ErrConstraint:
		return &Error{Kind: KindViolation, Message: msg, cause: err}
	case sqlite3.ErrBusy, sqlite3.ErrLocked:
		return &Error{Kind: KindBusy, Message: msg, cause: err}
	case sqlite3.ErrReadonly:
		return &Error{Kind: KindReadOnly, Message: msg, cause: err}
	case sqlite3.ErrFull:
		return &Error{Kind: KindFull, Message: msg, cause: err}
	}
	return &Error{Kind: KindUnknown, Message: msg, cause: err}
}

// Wrap is Normalize for call sites that return error: it passes *Error
// values through untouched and normalizes everything else. Use it at
// boundaries where an error may or may not have been normalized already.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged
	}
	return Normalize(err)
}

// uniqueColumns extracts column names from a uniqueness failure message.
// Table qualifiers are stripped. Returns an empty, non-nil slice when the
// message does not follow the driver's format.
func uniqueColumns(msg string) []string {
	cols := []string{}
	var rest string
	for _, prefix := range uniquePrefixes {
		if i := strings.Index(msg, prefix); i >= 0 {
			rest = msg[i+len(prefix):]
			break
		}
	}
	if rest == "" {
		return cols
	}
	for _, part := range strings.Split(rest, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if dot := strings.LastIndex(part, "."); dot >= 0 {
			part = part[dot+1:]
		}
		cols = append(cols, part)
	}
	return cols
}
