/*
errors.go - Error types for the reconciliation engine

ERROR CATEGORIES:
  1. Fatal input errors - the run cannot produce a trustworthy result
  2. Store errors - persisted runs that cannot be found or saved

Per-row data problems are never errors. They are skipped and counted in
Diagnostics.

SEE ALSO:
  - diagnostics.go: where row-level problems go instead
  - api/handlers.go: maps these to HTTP status codes
*/
package lifecycle

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrEmptyInput is returned when neither collection was supplied.
	ErrEmptyInput = errors.New("no input collections supplied")

	// ErrNoRecords is returned when a run produced nothing to reconcile.
	// Consumers must treat it as a hard failure.
	ErrNoRecords = errors.New("run produced no reconciled records")

	// ErrRunNotFound is returned when a stored run does not exist.
	ErrRunNotFound = errors.New("run not found")

	// ErrUnknownDimension is returned for an unsupported rollup dimension.
	ErrUnknownDimension = errors.New("unknown rollup dimension")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// RunNotFoundError names the missing run.
type RunNotFoundError struct {
	RunID string
}

func (e *RunNotFoundError) Error() string {
	return fmt.Sprintf("run not found: %s", e.RunID)
}

func (e *RunNotFoundError) Unwrap() error {
	return ErrRunNotFound
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrEmptyInput) ||
		errors.Is(err, ErrUnknownDimension)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRunNotFound)
}
