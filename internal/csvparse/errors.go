package csvparse

import "errors"

// ErrParseCancelled is returned when a session is cancelled before it
// completes. It is user initiated and not a failure.
var ErrParseCancelled = errors.New("parse cancelled")

var (
	ErrInputTooLarge       = errors.New("input exceeds maximum size")
	ErrUnsupportedEncoding = errors.New("unsupported encoding")
)

// ParseError reports a parse that failed for a reason other than
// cancellation. No partial rows accompany it.
type ParseError struct {
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return "parse failed: " + e.Message + ": " + e.Err.Error()
	}
	return "parse failed: " + e.Message
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
