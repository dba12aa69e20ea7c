package transcribe

import (
	"errors"
	"fmt"
)

var (
	// ErrSubmitFailed is returned when every submission attempt failed.
	ErrSubmitFailed = errors.New("transcription task submission failed")
	// ErrTimeout is returned when the task did not finish within the max wait.
	ErrTimeout = errors.New("transcription timed out")
	// ErrPollErrorsExhausted is returned after too many consecutive query errors.
	ErrPollErrorsExhausted = errors.New("transcription status query failed repeatedly")
)

// StatusError is a terminal, non-success status reported by the service.
type StatusError struct {
	Step    string
	Code    string
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: service status %s: %s", e.Step, e.Code, e.Message)
}

// APIError is an unexpected HTTP response from the service.
type APIError struct {
	Step       string
	StatusCode int
	Response   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: API error (status %d): %s", e.Step, e.StatusCode, e.Response)
}

// ParseError wraps an undecodable service payload.
type ParseError struct {
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse error: %s: %v", e.Message, e.Err)
	}
	return "parse error: " + e.Message
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// IsFailure reports whether err is a classified transcription failure, as
// opposed to an unexpected error.
func IsFailure(err error) bool {
	var statusErr *StatusError
	return errors.Is(err, ErrSubmitFailed) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrPollErrorsExhausted) ||
		errors.As(err, &statusErr)
}
