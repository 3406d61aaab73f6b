package retry

import (
	"errors"
	"fmt"
)

var (
	// ErrMaxAttempts is returned when the attempts ran out without an error to report.
	ErrMaxAttempts = errors.New("max retry attempts reached")
	// ErrInvalidConfig is returned, before any attempt, for unusable policies.
	ErrInvalidConfig = errors.New("invalid retry config")
)

// Error is the final failure of a retried operation. It unwraps to the error
// returned by the last attempt.
type Error struct {
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("retry failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string {
	return e.err.Error()
}

func (e *permanentError) Unwrap() error {
	return e.err
}

// Permanent marks err as not worth retrying. Do stops at the first permanent
// error and returns it wrapped in *Error.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var perm *permanentError
	return errors.As(err, &perm)
}
