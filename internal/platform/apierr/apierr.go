package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Stable error codes surfaced to API clients.
const (
	CodeValidation     = "VALIDATION"
	CodeNotFound       = "NOT_FOUND"
	CodeUpstream       = "UPSTREAM"
	CodePartialFailure = "PARTIAL_FAILURE"
	CodeStateConflict  = "STATE_CONFLICT"
)

type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

func Validation(msg string) *Error {
	return New(http.StatusBadRequest, CodeValidation, errors.New(msg))
}

func NotFound(what string) *Error {
	return New(http.StatusNotFound, CodeNotFound, fmt.Errorf("%s not found", what))
}

func Upstream(err error) *Error {
	return New(http.StatusBadGateway, CodeUpstream, err)
}

func StateConflict(msg string) *Error {
	return New(http.StatusConflict, CodeStateConflict, errors.New(msg))
}

// As unwraps err into *Error when possible.
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}
