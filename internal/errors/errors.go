// Package errors provides error handling for stampview.
//
// This package re-exports github.com/cockroachdb/errors, providing stack
// traces, wrapping, hints and marks, and adds the error taxonomy shared by
// the version model, the transaction registry and the calculators:
//
//   - validation errors (reserved nid, missing required field) fail fast
//   - integrity errors (duplicate relationship semantics, missing pattern
//     definition) signal corrupt data and are never repaired
//   - registry errors (resolved or unknown transaction)
//
// Absence of a visible version is not an error; calculators model it as a
// value.
package errors

import (
	"fmt"

	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
	Mark         = crdb.Mark
)

// User-facing messages and details
var (
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf
)

// Error inspection
var (
	Is            = crdb.Is
	IsAny         = crdb.IsAny
	As            = crdb.As
	Unwrap        = crdb.Unwrap
	UnwrapAll     = crdb.UnwrapAll
	GetAllHints   = crdb.GetAllHints
	GetAllDetails = crdb.GetAllDetails
)

// Assertions
var (
	AssertionFailedf = crdb.AssertionFailedf
)

// Sentinel errors. Wrap them with Wrap or Mark to add context while keeping
// errors.Is working.
var (
	// ErrValidation marks a fail-fast validation error: a programming error,
	// never retried.
	ErrValidation = New("validation failed")

	// ErrInvalidNid indicates a reserved nid (0, MaxInt32, MinInt32) was used
	// as an entity reference.
	ErrInvalidNid = New("invalid nid")

	// ErrIntegrity marks a data integrity failure.
	ErrIntegrity = New("data integrity violation")

	// ErrNotFound indicates a requested entity or stamp does not exist.
	ErrNotFound = New("not found")

	// ErrTransactionResolved indicates an operation on a committed or
	// canceled transaction.
	ErrTransactionResolved = New("transaction already resolved")

	// ErrTransactionNotFound indicates no active transaction has the
	// requested id.
	ErrTransactionNotFound = New("transaction not found")
)

// IntegrityCode categorizes integrity errors.
type IntegrityCode string

const (
	// CodeMultipleSemantics indicates more than one visible relationship
	// semantic for a (concept, pattern) pair.
	CodeMultipleSemantics IntegrityCode = "MULTIPLE_SEMANTICS"

	// CodeMissingPattern indicates a configured pattern has no visible
	// definition version.
	CodeMissingPattern IntegrityCode = "MISSING_PATTERN"

	// CodeCycle indicates a navigation cycle found by an explicit probe.
	CodeCycle IntegrityCode = "CYCLE"
)

// IntegrityError is a data integrity failure with the identifiers involved.
type IntegrityError struct {
	Code       IntegrityCode
	Nid        int32
	PatternNid int32
	Message    string
}

// Error implements the error interface.
func (e *IntegrityError) Error() string {
	if e.PatternNid != 0 {
		return fmt.Sprintf("%s: %s (nid=%d, pattern=%d)", e.Code, e.Message, e.Nid, e.PatternNid)
	}
	return fmt.Sprintf("%s: %s (nid=%d)", e.Code, e.Message, e.Nid)
}

// Is reports integrity errors as ErrIntegrity.
func (e *IntegrityError) Is(target error) bool {
	return target == ErrIntegrity
}

// NewIntegrityError creates an IntegrityError carrying a stack trace.
func NewIntegrityError(code IntegrityCode, nid, patternNid int32, format string, args ...any) error {
	return WithStack(&IntegrityError{
		Code:       code,
		Nid:        nid,
		PatternNid: patternNid,
		Message:    fmt.Sprintf(format, args...),
	})
}

// Validationf creates a validation error with a formatted message.
func Validationf(format string, args ...any) error {
	return Mark(Newf(format, args...), ErrValidation)
}

// IsValidation returns true if err is or wraps a validation error.
func IsValidation(err error) bool {
	return err != nil && (Is(err, ErrValidation) || Is(err, ErrInvalidNid))
}

// IsIntegrity returns true if err is or wraps an integrity error.
func IsIntegrity(err error) bool {
	if err == nil {
		return false
	}
	var ie *IntegrityError
	return As(err, &ie) || Is(err, ErrIntegrity)
}

// IntegrityCodeOf returns the integrity code of err, or "" if err is not an
// IntegrityError.
func IntegrityCodeOf(err error) IntegrityCode {
	var ie *IntegrityError
	if As(err, &ie) {
		return ie.Code
	}
	return ""
}
