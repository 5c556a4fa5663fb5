// Package apperrors defines typed application errors and their HTTP status mapping.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an application error
type Kind string

const (
	KindValidation  Kind = "validation_error"
	KindNotFound    Kind = "not_found"
	KindRateLimit   Kind = "rate_limit_exceeded"
	KindDataFetch   Kind = "data_fetch_error"
	KindDatabase    Kind = "database_error"
	KindStrategy    Kind = "strategy_error"
	KindUnavailable Kind = "service_unavailable"
	KindInternal    Kind = "internal_error"
)

// Error is an application error carrying a kind, a client-safe message and optional details
type Error struct {
	Kind    Kind
	Message string
	Details map[string]interface{}
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithDetail returns the error with an extra detail field set
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Validation creates a 400 error
func Validation(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFound creates a 404 error
func NotFound(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// RateLimit creates a 429 error
func RateLimit(message string) *Error {
	return &Error{Kind: KindRateLimit, Message: message}
}

// DataFetch creates a 503 error for upstream market data failures
func DataFetch(err error, format string, args ...interface{}) *Error {
	return &Error{Kind: KindDataFetch, Message: fmt.Sprintf(format, args...), Err: err}
}

// Database creates a 500 error for storage failures
func Database(err error, format string, args ...interface{}) *Error {
	return &Error{Kind: KindDatabase, Message: fmt.Sprintf(format, args...), Err: err}
}

// Strategy creates a 500 error for failures inside signal generation or simulation
func Strategy(err error, format string, args ...interface{}) *Error {
	return &Error{Kind: KindStrategy, Message: fmt.Sprintf(format, args...), Err: err}
}

// Unavailable creates a 503 error
func Unavailable(format string, args ...interface{}) *Error {
	return &Error{Kind: KindUnavailable, Message: fmt.Sprintf(format, args...)}
}

// Status returns the HTTP status code for a kind
func (k Kind) Status() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindDataFetch, KindUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// As extracts an *Error from err. Untyped errors become internal errors.
func As(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return &Error{Kind: KindInternal, Message: "an unexpected error occurred", Err: err}
}

// Status maps any error to an HTTP status code
func Status(err error) int {
	return As(err).Kind.Status()
}

// IsKind reports whether err is an application error of the given kind
func IsKind(err error, kind Kind) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Kind == kind
}

// Body renders the JSON error body for a response
func Body(err error) map[string]interface{} {
	appErr := As(err)
	body := map[string]interface{}{
		"error":   string(appErr.Kind),
		"message": appErr.Message,
	}
	if len(appErr.Details) > 0 {
		body["details"] = appErr.Details
	}
	return body
}
