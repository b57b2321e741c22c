package errors

import (
	stderrors "errors"
	"fmt"
)

// Code classifies a casewatch error.
type Code string

const (
	CodeInvalidFormat   Code = "INVALID_FORMAT"
	CodeNotFound        Code = "NOT_FOUND"
	CodeMissingArgument Code = "MISSING_ARGUMENT"
	CodeInternal        Code = "INTERNAL"
)

// Error is a structured error with a code and a message. For every code
// except CodeInternal the message is safe to show to the command invoker;
// internal errors are logged in full and surfaced only as a generic line.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewInvalidFormat reports input that could not be parsed as a case number.
func NewInvalidFormat(raw string) *Error {
	return &Error{
		Code:    CodeInvalidFormat,
		Message: fmt.Sprintf("'%s' is not a valid case number.", raw),
	}
}

// NewNotFound reports a case or user that does not exist.
func NewNotFound(msg string) *Error {
	return &Error{
		Code:    CodeNotFound,
		Message: msg,
	}
}

// NewMissingArgument reports a command invoked without a required argument.
func NewMissingArgument(msg string) *Error {
	return &Error{
		Code:    CodeMissingArgument,
		Message: msg,
	}
}

// NewInternal wraps an unexpected error. Its message must never be shown
// to the invoker verbatim.
func NewInternal(err error) *Error {
	return &Error{
		Code:    CodeInternal,
		Message: "internal error",
		Err:     err,
	}
}

// Is checks whether err is a casewatch error with the given code.
func Is(err error, code Code) bool {
	var cwErr *Error
	if stderrors.As(err, &cwErr) {
		return cwErr.Code == code
	}
	return false
}

// IsUserFacing reports whether err carries a message safe to surface to the
// command invoker.
func IsUserFacing(err error) bool {
	var cwErr *Error
	if stderrors.As(err, &cwErr) {
		return cwErr.Code != CodeInternal
	}
	return false
}

// UserMessage returns the message to show the command invoker: the error's
// own message for user-facing codes, a generic line for everything else.
func UserMessage(err error) string {
	var cwErr *Error
	if stderrors.As(err, &cwErr) && cwErr.Code != CodeInternal {
		return cwErr.Message
	}
	return "Internal error."
}
