// Package apperr defines the error taxonomy shared by all domain services and
// the mapping from service errors to HTTP responses. Handlers never build
// status codes by hand; they call ToHTTP on whatever the service returned.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Code classifies an error for transport mapping.
type Code string

const (
	CodeUnauthorized Code = "unauthorized"
	CodeForbidden    Code = "forbidden"
	CodeNotFound     Code = "not_found"
	CodeInvalid      Code = "invalid_input"
	CodeConflict     Code = "conflict"
	CodeDependency   Code = "dependency_failure"
)

// Error is a classified application error. Msg is safe to return to callers;
// the wrapped cause is for server-side logs only.
type Error struct {
	Code Code
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func Unauthorized(msg string) *Error { return &Error{Code: CodeUnauthorized, Msg: msg} }
func Forbidden(msg string) *Error    { return &Error{Code: CodeForbidden, Msg: msg} }
func NotFound(what string) *Error    { return &Error{Code: CodeNotFound, Msg: what + " not found"} }
func Conflict(msg string) *Error     { return &Error{Code: CodeConflict, Msg: msg} }

func Invalid(format string, args ...interface{}) *Error {
	return &Error{Code: CodeInvalid, Msg: fmt.Sprintf(format, args...)}
}

// Dependency wraps a collaborator failure (store, storage, email). The cause
// is kept for logging; the caller-facing message stays generic.
func Dependency(op string, err error) *Error {
	return &Error{Code: CodeDependency, Msg: "internal error", Err: fmt.Errorf("%s: %w", op, err)}
}

// IsCode reports whether err is an *Error with the given code.
func IsCode(err error, code Code) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Code == code
}

// ToHTTP converts a service error into an echo HTTPError. Unknown errors are
// treated as dependency failures: a generic 500 with the detail kept
// server-side.
func ToHTTP(err error) *echo.HTTPError {
	var ae *Error
	if !errors.As(err, &ae) {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error").SetInternal(err)
	}
	status := http.StatusInternalServerError
	switch ae.Code {
	case CodeUnauthorized:
		status = http.StatusUnauthorized
	case CodeForbidden:
		status = http.StatusForbidden
	case CodeNotFound:
		status = http.StatusNotFound
	case CodeInvalid:
		status = http.StatusBadRequest
	case CodeConflict:
		status = http.StatusConflict
	}
	he := echo.NewHTTPError(status, ae.Msg)
	if ae.Err != nil {
		he.SetInternal(ae.Err)
	}
	return he
}
