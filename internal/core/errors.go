package core

import (
	"errors"
	"fmt"
)

// Code classifies a failure at the process boundary.
type Code string

const (
	CodeSessionError      Code = "SESSION_ERROR"
	CodeSessionExpired    Code = "SESSION_EXPIRED"
	CodeAPIError          Code = "API_ERROR"
	CodeDependencyMissing Code = "DEPENDENCY_MISSING"
	CodeCategoryNotFound  Code = "CATEGORY_NOT_FOUND"
	CodeInvalidArgs       Code = "INVALID_ARGS"
)

// Error is a classified failure. Available is only populated for
// CodeCategoryNotFound.
type Error struct {
	Code      Code
	Message   string
	Available []string
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds a classified error. msg may be empty, in which case the
// wrapped error's text is used.
func NewError(code Code, msg string, err error) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

// Errorf builds a classified error with a formatted message.
func Errorf(code Code, format string, args ...any) *Error {
	err := fmt.Errorf(format, args...)
	return &Error{Code: code, Message: err.Error(), Err: errors.Unwrap(err)}
}

// CodeOf returns the classification of err. Unclassified errors are
// reported as API_ERROR so that raw failures never cross the boundary
// without a code.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	switch {
	case errors.Is(err, ErrInvalidMonth),
		errors.Is(err, ErrInvalidThreshold),
		errors.Is(err, ErrInvalidLimit),
		errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrEmptyCategory):
		return CodeInvalidArgs
	}
	return CodeAPIError
}

// IsCode reports whether err is classified as code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}
