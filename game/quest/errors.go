package quest

import (
	"errors"
	"fmt"
)

// Code classifies a quest error.
type Code string

const (
	CodeValidation         Code = "validation"
	CodeStateConflict      Code = "state_conflict"
	CodeNotFound           Code = "not_found"
	CodePreconditionFailed Code = "precondition_failed"
)

// Sentinels for errors.Is. Any *Error with the same Code matches.
var (
	ErrValidation         = &Error{Code: CodeValidation}
	ErrStateConflict      = &Error{Code: CodeStateConflict}
	ErrNotFound           = &Error{Code: CodeNotFound}
	ErrPreconditionFailed = &Error{Code: CodePreconditionFailed}
)

// Error is a classified quest domain error.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return "quest: " + string(e.Code)
	}
	return "quest: " + e.Message
}

// Is matches sentinels by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func newError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func validationf(format string, args ...any) error {
	return newError(CodeValidation, format, args...)
}

func conflictf(format string, args ...any) error {
	return newError(CodeStateConflict, format, args...)
}

func notFoundf(format string, args ...any) error {
	return newError(CodeNotFound, format, args...)
}

func preconditionf(format string, args ...any) error {
	return newError(CodePreconditionFailed, format, args...)
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var qe *Error
	if errors.As(err, &qe) {
		return qe.Code
	}
	return ""
}
