package lens

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes engine errors.
type ErrorCode string

const (
	// ErrCodeNotFound indicates an unknown profile, workspace, preset or
	// changelog entry. Returned, never retried.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeInvalidArgument indicates a bad apply target, malformed state
	// value or disallowed (operation, target) pairing. Rejected immediately,
	// never partially processed.
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"

	// ErrCodeConflict indicates a version or hash race. Expected under
	// concurrency; retried internally, not surfaced to callers.
	ErrCodeConflict ErrorCode = "CONFLICT"

	// ErrCodeStaleReference indicates an override pointing at a node id no
	// longer in the universe. Logged and skipped during resolution.
	ErrCodeStaleReference ErrorCode = "STALE_REFERENCE"

	// ErrCodeUndoPrecondition indicates an undo attempt on an entry without
	// before state or not in applied status.
	ErrCodeUndoPrecondition ErrorCode = "UNDO_PRECONDITION"
)

// Error is the typed domain error for the engine.
// Includes structured fields for diagnostics.
type Error struct {
	Code    ErrorCode
	Message string

	// Kind names the entity involved (profile, workspace, preset, entry).
	Kind string

	// ID identifies the entity, when known.
	ID string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Kind != "" && e.ID != "" {
		return fmt.Sprintf("%s: %s (%s=%s)", e.Code, e.Message, e.Kind, e.ID)
	}
	if e.Kind != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewNotFound creates a NOT_FOUND error for the given entity.
func NewNotFound(kind, id string) *Error {
	return &Error{Code: ErrCodeNotFound, Message: "unknown " + kind, Kind: kind, ID: id}
}

// NewInvalidArgument creates an INVALID_ARGUMENT error.
func NewInvalidArgument(message string) *Error {
	return &Error{Code: ErrCodeInvalidArgument, Message: message}
}

// NewConflict creates a CONFLICT error for a lost optimistic-concurrency race.
func NewConflict(message string) *Error {
	return &Error{Code: ErrCodeConflict, Message: message}
}

// NewUndoPrecondition creates an UNDO_PRECONDITION error for a changelog entry.
func NewUndoPrecondition(message string, entryID int64) *Error {
	return &Error{Code: ErrCodeUndoPrecondition, Message: message, Kind: "entry", ID: fmt.Sprintf("%d", entryID)}
}

// codeOf extracts the ErrorCode from a wrapped error chain, or "".
func codeOf(err error) ErrorCode {
	var le *Error
	if errors.As(err, &le) {
		return le.Code
	}
	return ""
}

// IsNotFound reports whether err is a NOT_FOUND domain error.
func IsNotFound(err error) bool { return codeOf(err) == ErrCodeNotFound }

// IsInvalidArgument reports whether err is an INVALID_ARGUMENT domain error.
func IsInvalidArgument(err error) bool { return codeOf(err) == ErrCodeInvalidArgument }

// IsConflict reports whether err is a CONFLICT domain error.
func IsConflict(err error) bool { return codeOf(err) == ErrCodeConflict }

// IsUndoPrecondition reports whether err is an UNDO_PRECONDITION domain error.
func IsUndoPrecondition(err error) bool { return codeOf(err) == ErrCodeUndoPrecondition }
