package feed

import (
	"fmt"
	"time"
)

// StatusError is returned when a feed responds with a non-2xx status.
type StatusError struct {
	URL        string
	StatusCode int
	StatusText string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.StatusText)
}

// Transient reports whether the status is worth retrying.
func (e *StatusError) Transient() bool {
	return e.StatusCode == 408 || e.StatusCode == 425 || e.StatusCode == 429 || e.StatusCode >= 500
}

// TimeoutError is returned when a feed does not answer within the fetch timeout.
type TimeoutError struct {
	URL   string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("RSS feed timeout after %dms: %s", e.After.Milliseconds(), e.URL)
}

func (e *TimeoutError) Timeout() bool {
	return true
}
