package patternstore

import (
	"errors"
	"fmt"
)

// Sentinel errors for common store error conditions.
// These errors can be used with errors.Is() for error checking.
var (
	// ErrInvalidManifest indicates a manifest failed validation. The store
	// rejects it before any mutation.
	ErrInvalidManifest = errors.New("patternstore: invalid manifest")

	// ErrPatternNotFound indicates the requested pattern has no indexed
	// cells. Expected and common; callers may retry after storing.
	ErrPatternNotFound = errors.New("patternstore: pattern not found")

	// ErrIndexCorruption indicates the association index pointed at a cell
	// that no longer holds the pattern. This is an internal invariant
	// violation: it is surfaced rather than silently recovered, logged as a
	// defect, and the dangling entry is dropped.
	ErrIndexCorruption = errors.New("patternstore: index corruption")

	// ErrMaintenanceInProgress is returned to a second concurrent Optimize
	// caller instead of blocking. The caller may retry later.
	ErrMaintenanceInProgress = errors.New("patternstore: maintenance already in progress")

	// ErrCapacityExceeded indicates no tier could accept the projection
	// without violating its capacity budget.
	ErrCapacityExceeded = errors.New("patternstore: tier capacity exceeded")

	// ErrStoreClosed is returned by every operation after Close.
	ErrStoreClosed = errors.New("patternstore: store is closed")
)

// Error kinds categorize errors by their type.
const (
	// KindValidation represents errors related to input validation.
	KindValidation = "validation"

	// KindNotFound represents query misses.
	KindNotFound = "not_found"

	// KindCorruption represents internal consistency violations.
	KindCorruption = "corruption"

	// KindBusy represents operations rejected because of an exclusive
	// activity already in progress.
	KindBusy = "busy"

	// KindCapacity represents capacity budget violations.
	KindCapacity = "capacity"

	// KindConfiguration represents errors related to configuration.
	KindConfiguration = "configuration"

	// KindInternal represents internal store errors.
	KindInternal = "internal"
)

// StoreError is a structured error type that wraps underlying errors with
// additional context about the operation that failed and the category of
// error.
//
// StoreError implements the error interface and supports error unwrapping,
// making it compatible with errors.Is() and errors.As().
type StoreError struct {
	// Op is the operation that failed (e.g. "Store.Retrieve").
	Op string

	// Kind categorizes the error (e.g. KindNotFound, KindValidation).
	Kind string

	// Err is the underlying error that caused this error.
	Err error

	// Context provides additional detail about the error (optional):
	// pattern keys, cell ids, tier labels.
	Context map[string]any
}

// Error implements the error interface, returning a formatted message that
// includes the operation, kind and underlying error.
func (e *StoreError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("patternstore: %s: %s", e.Op, e.Kind)
	}
	if len(e.Context) > 0 {
		return fmt.Sprintf("patternstore: %s (%s): %v [context: %+v]", e.Op, e.Kind, e.Err, e.Context)
	}
	return fmt.Sprintf("patternstore: %s (%s): %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying error, allowing errors.Is() and errors.As()
// to work correctly with wrapped errors.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is implements error matching for StoreError, allowing comparison based on
// the underlying error or on another StoreError's Op and Kind.
func (e *StoreError) Is(target error) bool {
	if target == nil {
		return false
	}
	if t, ok := target.(*StoreError); ok {
		if t.Kind != "" && e.Kind == t.Kind {
			return t.Op == "" || e.Op == t.Op
		}
		return false
	}
	return errors.Is(e.Err, target)
}

// newError constructs a StoreError for the given operation.
func newError(op, kind string, err error) *StoreError {
	return &StoreError{Op: op, Kind: kind, Err: err}
}

// withContext attaches a context key/value pair to the error.
func (e *StoreError) withContext(key string, value any) *StoreError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// IsKind reports whether err is a StoreError of the given kind.
func IsKind(err error, kind string) bool {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Kind == kind
	}
	return false
}
