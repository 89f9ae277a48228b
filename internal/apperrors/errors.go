package apperrors

import (
	"errors"
	"net/http"
	"strings"
)

type Code string

const (
	CodePermissionDenied    Code = "PermissionDenied"
	CodeTransientPosition   Code = "TransientPosition"
	CodeSubscriptionDropped Code = "SubscriptionDropped"
	CodeWriteConflict       Code = "WriteConflict"
	CodeNotFound            Code = "NotFound"
	CodeBadInput            Code = "BadInput"
	CodeServiceFailure      Code = "ServiceFailure"
)

// Err is the engine-wide error type carrying a classification code so callers
// can decide between retry, resync and surfacing without string matching.
type Err struct {
	Code  Code
	msg   string
	cause error
}

func (e *Err) Error() string {
	return e.msg
}

func (e *Err) Unwrap() error {
	return e.cause
}

// Trace returns the message chain down to the root cause.
func (e *Err) Trace() string {
	b := &strings.Builder{}
	b.WriteString(e.msg)
	err := errors.Unwrap(e)
	for err != nil {
		b.WriteString("\nCaused by: ")
		b.WriteString(err.Error())
		err = errors.Unwrap(err)
	}
	return b.String()
}

func (e *Err) WithCause(c error) *Err {
	e.cause = c
	return e
}

// StatusCode maps the error code to an HTTP status for the handler layer.
func (e *Err) StatusCode() int {
	switch e.Code {
	case CodePermissionDenied:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeBadInput:
		return http.StatusBadRequest
	case CodeWriteConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func NewPermissionDenied(m string) *Err {
	return &Err{Code: CodePermissionDenied, msg: m}
}

func NewTransientPosition(m string) *Err {
	return &Err{Code: CodeTransientPosition, msg: m}
}

func NewSubscriptionDropped(m string) *Err {
	return &Err{Code: CodeSubscriptionDropped, msg: m}
}

func NewWriteConflict(m string) *Err {
	return &Err{Code: CodeWriteConflict, msg: m}
}

func NewNotFound(m string) *Err {
	return &Err{Code: CodeNotFound, msg: m}
}

func NewBadInput(m string) *Err {
	return &Err{Code: CodeBadInput, msg: m}
}

func NewServiceFailure(m string) *Err {
	return &Err{Code: CodeServiceFailure, msg: m}
}

// IsCode reports whether err or any error in its chain carries the code.
func IsCode(err error, code Code) bool {
	var e *Err
	for errors.As(err, &e) {
		if e.Code == code {
			return true
		}
		err = e.Unwrap()
		if err == nil {
			return false
		}
	}
	return false
}
