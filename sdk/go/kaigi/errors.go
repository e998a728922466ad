package kaigi

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes returned by the Kaigi API.
const (
	CodeInvalidInput      = "INVALID_INPUT"
	CodeNotFound          = "NOT_FOUND"
	CodeConflict          = "CONFLICT"
	CodeUnsupportedAction = "UNSUPPORTED_ACTION"
	CodeRateLimited       = "RATE_LIMITED"
	CodeInternalError     = "INTERNAL_ERROR"
)

// Error is an API error response from the Kaigi server.
type Error struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("kaigi: %s (%s, status %d)", e.Message, e.Code, e.StatusCode)
	}
	return fmt.Sprintf("kaigi: %s (status %d)", e.Message, e.StatusCode)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// IsConflict reports whether err is a 409 from the API, e.g. confirming
// an event that is not awaiting confirmation.
func IsConflict(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict
}

// IsInvalidInput reports whether err is a 400 validation failure.
func IsInvalidInput(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusBadRequest
}

// IsUnsupportedAction reports whether err is a 422, returned when a
// confirmed event's (agent, action) pair has no executor.
func IsUnsupportedAction(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnprocessableEntity
}

// IsRateLimited reports whether err is a 429 from the API.
func IsRateLimited(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests
}
