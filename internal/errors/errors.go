package errors

import (
	"errors"
	"fmt"
)

// AppError is the error type surfaced by shiplift components. It carries
// a classification code plus enough context (resource, operation) to
// diagnose a failure without re-running it.
type AppError struct {
	Code      Code
	Message   string
	Resource  string // resource address or environment key, when known
	Operation string // operation attempted, e.g. "apply", "lock"
	Wrapped   error
}

func (e *AppError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Resource != "" {
		msg += fmt.Sprintf(" (resource: %s)", e.Resource)
	}
	if e.Wrapped != nil {
		msg += fmt.Sprintf(": %v", e.Wrapped)
	}
	return msg
}

func (e *AppError) Unwrap() error {
	return e.Wrapped
}

// New creates an AppError with the given code and message.
func New(code Code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Newf creates an AppError with a formatted message.
func Newf(code Code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap annotates err with a code and message. Returns nil for nil err.
// An err that is already an AppError keeps its original code.
func Wrap(err error, code Code, message string) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return &AppError{
			Code:      appErr.Code,
			Message:   message,
			Resource:  appErr.Resource,
			Operation: appErr.Operation,
			Wrapped:   err,
		}
	}
	return &AppError{Code: code, Message: message, Wrapped: err}
}

// Wrapf annotates err with a code and a formatted message.
func Wrapf(err error, code Code, format string, args ...any) *AppError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// WithResource attaches the resource address the failure relates to.
func (e *AppError) WithResource(addr string) *AppError {
	e.Resource = addr
	return e
}

// WithOperation attaches the operation that was being attempted.
func (e *AppError) WithOperation(op string) *AppError {
	e.Operation = op
	return e
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// CodeOf returns the code carried by err, or CodeUnknown.
func CodeOf(err error) Code {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

// Is, As and Join are re-exported so callers need a single errors import.
func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target any) bool { return errors.As(err, target) }

func Join(errs ...error) error { return errors.Join(errs...) }
