package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// Code categorizes an application error.
type Code string

const (
	// CodeValidation indicates missing or invalid input. Not retryable.
	CodeValidation Code = "VALIDATION"

	// CodeNotFound indicates the record does not exist or the caller may not
	// see it. Access denied by an ownership check uses this code too.
	CodeNotFound Code = "NOT_FOUND"

	// CodePrecondition indicates the record is in the wrong state for the
	// requested transition.
	CodePrecondition Code = "PRECONDITION"

	// CodeTransient indicates a store or provider failure. Every core
	// operation is idempotent or resumable, so retrying is safe.
	CodeTransient Code = "TRANSIENT"
)

// Error is the typed error returned by every core operation.
type Error struct {
	// Code identifies the error category.
	Code Code

	// Message is a human-readable description, safe to show to a caller.
	Message string

	// Reasons lists every violated rule when validation collects more than one.
	Reasons []string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if len(e.Reasons) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(e.Reasons, "; "))
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Validation builds a VALIDATION error.
func Validation(message string, reasons ...string) *Error {
	return &Error{Code: CodeValidation, Message: message, Reasons: reasons}
}

// NotFound builds a NOT_FOUND error for a record kind and id.
func NotFound(kind, id string) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf("%s %s not found", kind, id)}
}

// Denied builds a NOT_FOUND error for a failed ownership or token check.
// The message does not reveal whether the record exists.
func Denied(message string) *Error {
	return &Error{Code: CodeNotFound, Message: message}
}

// Precondition builds a PRECONDITION error naming the violated rule.
func Precondition(message string) *Error {
	return &Error{Code: CodePrecondition, Message: message}
}

// Transient wraps an infrastructure failure.
func Transient(message string, err error) *Error {
	return &Error{Code: CodeTransient, Message: message, Err: err}
}

// CodeOf returns the code of the first *Error in err's chain, or
// CodeTransient for any other non-nil error.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeTransient
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool {
	return hasCode(err, CodeValidation)
}

// IsNotFound reports whether err is a not-found or access-denied error.
func IsNotFound(err error) bool {
	return hasCode(err, CodeNotFound)
}

// IsPrecondition reports whether err is a wrong-state error.
func IsPrecondition(err error) bool {
	return hasCode(err, CodePrecondition)
}

// IsTransient reports whether err is an infrastructure failure.
// Errors that are not *Error count as transient.
func IsTransient(err error) bool {
	return err != nil && CodeOf(err) == CodeTransient
}

func hasCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
