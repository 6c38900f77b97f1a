package skill

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Code is a contract error code. It serialises as the decimal HTTP status string.
type Code string

const (
	CodeBadRequest    Code = "400"
	CodeNotFound      Code = "404"
	CodeConflict      Code = "409"
	CodeUnprocessable Code = "422"
	CodeRateLimited   Code = "429"
	CodeUnavailable   Code = "503"
)

// Status returns the HTTP status for the code.
func (c Code) Status() int {
	switch c {
	case CodeBadRequest:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeUnprocessable:
		return http.StatusUnprocessableEntity
	case CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusServiceUnavailable
	}
}

// Error is the error record every skill returns: {"code": "...", "message": "..."}.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v", e.Code, e.Message, e.Err)
	}
	return string(e.Code) + " " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func newError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// BadRequest reports malformed or missing input.
func BadRequest(format string, args ...any) *Error { return newError(CodeBadRequest, format, args...) }

// NotFound reports a referenced entity that does not exist for the caller.
func NotFound(format string, args ...any) *Error { return newError(CodeNotFound, format, args...) }

// Conflict reports a request that clashes with existing state.
func Conflict(format string, args ...any) *Error { return newError(CodeConflict, format, args...) }

// Unprocessable reports well-formed input that violates a business rule.
func Unprocessable(format string, args ...any) *Error {
	return newError(CodeUnprocessable, format, args...)
}

// RateLimited reports that the caller exceeded its quota.
func RateLimited(format string, args ...any) *Error { return newError(CodeRateLimited, format, args...) }

// Unavailable reports an infrastructure failure the caller should retry with backoff.
func Unavailable(cause error, format string, args ...any) *Error {
	e := newError(CodeUnavailable, format, args...)
	e.Err = cause
	return e
}

// AsError extracts a skill error from err's chain.
func AsError(err error) (*Error, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// Normalize guarantees that a skill answers only with codes its contract declares.
// Undeclared codes and plain errors become 503.
func Normalize(c Contract, err error) *Error {
	if err == nil {
		return nil
	}
	if se, ok := AsError(err); ok && c.Declares(se.Code) {
		return se
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Unavailable(err, "%s timed out; retry with backoff", c.Name)
	}
	return Unavailable(err, "%s unavailable; retry with backoff", c.Name)
}
