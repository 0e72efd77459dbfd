package client

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a server-side resource does not exist.
var ErrNotFound = errors.New("resource not found")

// NetworkError wraps a failed transport operation (non-2xx status or a
// connection failure).
type NetworkError struct {
	URL        string
	StatusCode int // zero when the request never reached the server
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("network error: %v returned status %v", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("network error: %v: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// APILimitError signals a server-side rate limit (HTTP 429). The caller is
// expected to back off and retry.
type APILimitError struct {
	URL string
}

func (e *APILimitError) Error() string {
	return fmt.Sprintf("api rate limit reached on %v", e.URL)
}

// TimeoutError is returned when polling exceeds its deadline. State carries
// the last observed state so the caller can resume.
type TimeoutError struct {
	Operation string
	State     string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%v timed out (last state %v)", e.Operation, e.State)
}
