// Package dberr defines the stable error taxonomy returned by every
// operation and the normalizer that maps SQLite driver failures onto it.
//
// Native driver errors never reach callers: they are routed through
// Normalize, which returns an *Error carrying a Kind plus structured detail.
// The native error is retained for diagnostics (Cause) but is deliberately
// not reachable through errors.As or errors.Unwrap.
package dberr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind categorizes a normalized error.
type Kind string

const (
	// KindNotUnique indicates a write violated a declared-unique column.
	KindNotUnique Kind = "NOT_UNIQUE"

	// KindViolation indicates any other constraint violation.
	KindViolation Kind = "VIOLATION"

	// KindBusy indicates lock contention or a busy timeout.
	KindBusy Kind = "BUSY"

	// KindReadOnly indicates the database is read-only.
	KindReadOnly Kind = "READ_ONLY"

	// KindFull indicates storage is exhausted.
	KindFull Kind = "FULL"

	// KindNotFound indicates the target of an operation does not exist.
	KindNotFound Kind = "NOT_FOUND"

	// KindConsistencyViolation indicates a broken internal invariant: the
	// caller or the registry is out of sync. Never retried.
	KindConsistencyViolation Kind = "CONSISTENCY_VIOLATION"

	// KindMalformed indicates a statement could not be built from the input.
	KindMalformed Kind = "MALFORMED"

	// KindUnknown is any native failure without a mapping.
	KindUnknown Kind = "UNKNOWN"
)

// Codes carried by specific errors.
const (
	CodeInvalidPK           = "E_INVALID_PK"
	CodeUnknownOperator     = "E_UNKNOWN_OPERATOR"
	CodeUnknownModel        = "E_UNKNOWN_MODEL"
	CodeMissingLimit        = "E_MISSING_LIMIT"
	CodeAlreadyActive       = "E_ALREADY_ACTIVE"
	CodeNoActiveTransaction = "E_NO_ACTIVE_TRANSACTION"
	CodeDoubleNormalization = "E_DOUBLE_NORMALIZATION"
	CodePKCollision         = "E_PK_COLLISION"
	CodeMalformedQuery      = "E_MALFORMED_QUERY"
	CodeUnknownAttribute    = "E_UNKNOWN_ATTRIBUTE"
	CodeConnReleased        = "E_CONN_RELEASED"
)

// Error is a normalized error.
type Error struct {
	// Kind is the taxonomy category.
	Kind Kind

	// Code optionally narrows the kind (e.g. E_INVALID_PK).
	Code string

	// Message is a human-readable description.
	Message string

	// Columns lists the violated columns for KindNotUnique. It may be empty
	// when the driver message could not be parsed.
	Columns []string

	cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Code != "" {
		b.WriteString(" (")
		b.WriteString(e.Code)
		b.WriteString(")")
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if len(e.Columns) > 0 {
		fmt.Fprintf(&b, " [columns: %s]", strings.Join(e.Columns, ", "))
	}
	return b.String()
}

// Cause returns the native error this was normalized from, if any.
func (e *Error) Cause() error {
	return e.cause
}

// New creates an Error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Consistency creates a KindConsistencyViolation error with a code.
func Consistency(code, format string, args ...any) *Error {
	return &Error{Kind: KindConsistencyViolation, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Malformed creates a KindMalformed error with a code.
func Malformed(code, format string, args ...any) *Error {
	return &Error{Kind: KindMalformed, Code: code, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the Kind of err, or "" when err is not (or does not wrap)
// an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsNotUnique reports whether err is a uniqueness violation.
func IsNotUnique(err error) bool {
	return Is(err, KindNotUnique)
}

// IsConsistencyViolation reports whether err indicates a broken invariant.
func IsConsistencyViolation(err error) bool {
	return Is(err, KindConsistencyViolation)
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool {
	return Is(err, KindNotFound)
}

// CodeOf returns the Code of err, or "".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// ColumnsOf returns the violated columns of a NotUnique error.
func ColumnsOf(err error) []string {
	var e *Error
	if errors.As(err, &e) {
		return e.Columns
	}
	return nil
}
