package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType classifies failures by the stage of a parse run that produced them
type ErrorType string

const (
	ErrorTypeStartupConfig ErrorType = "startup_config"
	ErrorTypeSessionInit   ErrorType = "session_init"
	ErrorTypeAuth          ErrorType = "auth"
	ErrorTypeNavigation    ErrorType = "navigation"
	ErrorTypeExtraction    ErrorType = "extraction"
	ErrorTypeSubmission    ErrorType = "submission"
	ErrorTypeDiagnostics   ErrorType = "diagnostics"
	ErrorTypeUnknown       ErrorType = "unknown"
)

// Error carries the failure type, the operation that failed and, for
// backend calls, the HTTP status code.
type Error struct {
	Type    ErrorType
	Op      string
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = msg + ": " + e.Err.Error()
		}
	}
	if e.Code != 0 {
		return fmt.Sprintf("%s error in %s (code %d): %s", e.Type, e.Op, e.Code, msg)
	}
	return fmt.Sprintf("%s error in %s: %s", e.Type, e.Op, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds an *Error without an underlying cause
func New(t ErrorType, op, message string) *Error {
	return &Error{Type: t, Op: op, Message: message}
}

// Wrap builds an *Error around err. A nil err yields nil.
func Wrap(t ErrorType, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Type: t, Op: op, Err: err}
}

// TypeOf returns the ErrorType of the first *Error in err's chain
func TypeOf(err error) ErrorType {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeUnknown
}

// Is reports whether err's chain contains an *Error of type t
func Is(err error, t ErrorType) bool {
	return err != nil && TypeOf(err) == t
}

// IsFatal reports whether an error of this type aborts the whole run rather
// than a single account or post.
func IsFatal(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeStartupConfig, ErrorTypeSessionInit, ErrorTypeAuth:
		return true
	default:
		return false
	}
}

// ExitCode maps a top-level error to the process exit status
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	return 1
}
