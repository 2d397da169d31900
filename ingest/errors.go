package ingest

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS
// =============================================================================

var (
	// ErrMissingColumn is fatal: the file is not the feed it claims to be.
	ErrMissingColumn = errors.New("required column missing")

	// ErrUnsupportedFormat is returned for file types with no reader.
	ErrUnsupportedFormat = errors.New("unsupported source format")

	// ErrEmptySource is returned for a file without a header row.
	ErrEmptySource = errors.New("source has no header row")

	// ErrInvalidValue marks a cell that could not be typed.
	ErrInvalidValue = errors.New("invalid value")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// MissingColumnError names the column and the source.
type MissingColumnError struct {
	Source string
	Column string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("%s: required column %q missing", e.Source, e.Column)
}

func (e *MissingColumnError) Unwrap() error {
	return ErrMissingColumn
}

// RowError describes one row that was skipped during typing. Row is the
// 1-based line in the source, header included.
type RowError struct {
	Source string
	Row    int
	Column string
	Value  string
	Err    error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("%s row %d: column %q value %q: %v", e.Source, e.Row, e.Column, e.Value, e.Err)
}

func (e *RowError) Unwrap() error {
	return ErrInvalidValue
}

// IsFatal reports whether a load error must fail the whole run.
func IsFatal(err error) bool {
	return err != nil && !errors.Is(err, ErrInvalidValue)
}
