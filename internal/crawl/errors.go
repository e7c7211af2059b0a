package crawl

import (
	"errors"
	"fmt"
)

// ErrInvalidInput rejects a job at creation time; the job never starts.
var ErrInvalidInput = errors.New("invalid input")

// ErrNotFound reports a lookup for a job that does not exist.
var ErrNotFound = errors.New("not found")

// InvalidInputf wraps ErrInvalidInput with detail.
func InvalidInputf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// PageError marks a per-page failure. It is absorbed by the pipeline: the
// page is logged and skipped and the job proceeds.
type PageError struct {
	URL   string
	Stage string
	Err   error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("%s failed for %s: %v", e.Stage, e.URL, e.Err)
}

func (e *PageError) Unwrap() error { return e.Err }

// FatalError terminates the whole job with the carried reason.
type FatalError struct {
	Reason FailReason
	Err    error
}

func (e *FatalError) Error() string {
	if e.Err == nil {
		return string(e.Reason)
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// Fatal wraps err as a job-terminating error.
func Fatal(reason FailReason, err error) error {
	return &FatalError{Reason: reason, Err: err}
}

// AsFatal extracts a FatalError if err carries one.
func AsFatal(err error) (*FatalError, bool) {
	var fe *FatalError
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}
