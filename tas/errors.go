package tas

import (
	"errors"
	"fmt"
)

// ErrMalformed is wrapped by every parse failure in this package.
var ErrMalformed = errors.New("malformed account identifier")

// ParseError carries the rejected input.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed account identifier %q: %s", e.Input, e.Reason)
}

func (e *ParseError) Unwrap() error {
	return ErrMalformed
}
