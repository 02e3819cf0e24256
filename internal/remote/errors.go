package remote

import (
	"errors"
	"fmt"
)

// ErrNoBaseURL is returned by New when Config.BaseURL is empty.
var ErrNoBaseURL = errors.New("remote base url must not be empty")

// Function invocation failures the caller may want to surface specially.
var (
	ErrRateLimited    = errors.New("rate limit exceeded, please try again later")
	ErrQuotaExhausted = errors.New("usage quota exhausted")
)

// StatusError is returned when the REST API answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("remote returned status %d: %s", e.StatusCode, e.Message)
}

// FunctionError is returned when a hosted function fails with a message.
type FunctionError struct {
	Function   string
	StatusCode int
	Message    string
}

func (e *FunctionError) Error() string {
	return fmt.Sprintf("function %s failed (status %d): %s", e.Function, e.StatusCode, e.Message)
}
