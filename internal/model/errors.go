package model

import (
	"errors"
	"fmt"
)

// Teardown defects reported by Session.Close.
var (
	// ErrIdentifierLeak means identifiers were still live after every
	// entity of the session was removed.
	ErrIdentifierLeak = errors.New("identifier leak")

	// ErrSavepointLeak means savepoints survived session teardown.
	ErrSavepointLeak = errors.New("savepoint leak")
)

// ErrorCode categorizes structural errors.
type ErrorCode string

const (
	// ErrCodeUniqueness indicates a name collision within a scope.
	ErrCodeUniqueness ErrorCode = "UNIQUENESS_VIOLATION"

	// ErrCodeNonEmptyContainer indicates deletion of a library that still
	// owns classes, or of a class that is the base of another class.
	ErrCodeNonEmptyContainer ErrorCode = "NON_EMPTY_CONTAINER"

	// ErrCodeCyclicInheritance indicates a base-class assignment that
	// would make a class derive from itself.
	ErrCodeCyclicInheritance ErrorCode = "CYCLIC_INHERITANCE"

	// ErrCodeKindMismatch indicates entities of different hierarchy kinds.
	ErrCodeKindMismatch ErrorCode = "KIND_MISMATCH"

	// ErrCodeForeignDocument indicates entities owned by different
	// documents (or sessions) where the same owner is required.
	ErrCodeForeignDocument ErrorCode = "FOREIGN_DOCUMENT"

	// ErrCodeCrossDocumentReference indicates a move that would leave a
	// base-class reference spanning two documents.
	ErrCodeCrossDocumentReference ErrorCode = "CROSS_DOCUMENT_REFERENCE"

	// ErrCodeInvalidName indicates an empty name or one containing the
	// path separator.
	ErrCodeInvalidName ErrorCode = "INVALID_NAME"

	// ErrCodeDeletedEntity indicates an operation on a removed entity or
	// a closed session.
	ErrCodeDeletedEntity ErrorCode = "DELETED_ENTITY"

	// ErrCodeValidatorAlreadySet indicates a second validator installed
	// without unsetting the first.
	ErrCodeValidatorAlreadySet ErrorCode = "VALIDATOR_ALREADY_SET"

	// ErrCodeRollbackInProgress indicates a change requested by a listener
	// while a rollback replays compensating events.
	ErrCodeRollbackInProgress ErrorCode = "ROLLBACK_IN_PROGRESS"
)

// Error is a structural error raised by the kernel itself.
//
// Structural errors are recoverable: state is unchanged and the caller may
// retry with different input.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Op names the operation, e.g. "class.set_base".
	Op string

	// Subject is the label of the entity the operation targeted.
	Subject string

	// Message is a human-readable description.
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Op != "" && e.Subject != "" {
		return fmt.Sprintf("%s: %s (op=%s, subject=%s)", e.Code, e.Message, e.Op, e.Subject)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s (op=%s)", e.Code, e.Message, e.Op)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newError(code ErrorCode, op, subject, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Op:      op,
		Subject: subject,
		Message: fmt.Sprintf(format, args...),
	}
}

// CodeOf returns the code of the first *Error in err's chain.
// Uses errors.As, so codes wrapped inside a validation.RejectedError are found.
func CodeOf(err error) (ErrorCode, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return "", false
}

// HasCode reports whether err carries an *Error with the given code.
func HasCode(err error, code ErrorCode) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}

// IsUniquenessViolation returns true for name collisions.
func IsUniquenessViolation(err error) bool {
	return HasCode(err, ErrCodeUniqueness)
}

// IsNonEmptyContainer returns true when a delete was refused because the
// target still owns or is referenced by other entities.
func IsNonEmptyContainer(err error) bool {
	return HasCode(err, ErrCodeNonEmptyContainer)
}

// IsCyclicInheritance returns true for refused base-class cycles.
func IsCyclicInheritance(err error) bool {
	return HasCode(err, ErrCodeCyclicInheritance)
}

// IsValidatorAlreadySet returns true when SetValidator found a validator
// already installed.
func IsValidatorAlreadySet(err error) bool {
	return HasCode(err, ErrCodeValidatorAlreadySet)
}

// IsRollbackInProgress returns true for changes refused during a rollback.
func IsRollbackInProgress(err error) bool {
	return HasCode(err, ErrCodeRollbackInProgress)
}

// IsDeletedEntity returns true for operations on removed entities.
func IsDeletedEntity(err error) bool {
	return HasCode(err, ErrCodeDeletedEntity)
}
