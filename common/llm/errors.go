package llm

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrTimeout = errors.New("llm timeout")
	ErrParse   = errors.New("llm output contains no json")
)

// TimeoutError is returned when the backend did not answer within the call budget.
// It is never retried by the client.
type TimeoutError struct {
	Model string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: no response within %s", e.Model, e.After)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// APIError is any other backend failure. Retryable marks rate-limit and
// overload responses.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
	Retryable  bool
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s api error (status %d): %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s api error: %s", e.Provider, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// ParseError is returned by CompleteJSON when the output holds no recoverable JSON.
type ParseError struct {
	Model         string
	ContentLength int
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: no json in %d chars of output", e.Model, e.ContentLength)
}

func (e *ParseError) Is(target error) bool {
	return target == ErrParse
}

func newAPIError(provider string, status int, msg string, err error) *APIError {
	return &APIError{
		Provider:   provider,
		StatusCode: status,
		Message:    msg,
		Retryable:  status == 429 || status == 529 || isRateLimitMessage(msg),
		Err:        err,
	}
}

func isRateLimitMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "rate") || strings.Contains(lower, "overload")
}
