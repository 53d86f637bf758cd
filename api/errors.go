// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error types and error handling utilities for hioload-dsp.

package api

import (
	"errors"
	"fmt"
)

// ErrorCode represents specific error conditions in the library.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	ErrCodeInvalidArgument
	ErrCodeConfiguration
	ErrCodeReadOverrun
	ErrCodeWriteOverrun
	ErrCodeUnsupported
	ErrCodeNotFound
	ErrCodeDevice
	ErrCodeInternal
)

func (c ErrorCode) String() string {
	switch c {
	case ErrCodeOK:
		return "ok"
	case ErrCodeInvalidArgument:
		return "invalid argument"
	case ErrCodeConfiguration:
		return "configuration"
	case ErrCodeReadOverrun:
		return "read overrun"
	case ErrCodeWriteOverrun:
		return "write overrun"
	case ErrCodeUnsupported:
		return "unsupported"
	case ErrCodeNotFound:
		return "not found"
	case ErrCodeDevice:
		return "device"
	default:
		return "internal"
	}
}

// Sentinel errors for errors.Is checks. A *Error matches the sentinel
// carrying the same code.
var (
	ErrInvalidArgument = NewError(ErrCodeInvalidArgument, "invalid argument")
	ErrConfiguration   = NewError(ErrCodeConfiguration, "configuration error")
	ErrReadOverrun     = NewError(ErrCodeReadOverrun, "read was too slow and unread samples were overwritten")
	ErrWriteOverrun    = NewError(ErrCodeWriteOverrun, "write was too slow and old samples were regenerated")
	ErrUnsupported     = NewError(ErrCodeUnsupported, "operation not supported")
	ErrNotFound        = NewError(ErrCodeNotFound, "resource not found")
	ErrDevice          = NewError(ErrCodeDevice, "device error")
)

// Error represents a structured error with code and context.
type Error struct {
	Code    ErrorCode
	Message string
	Context map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if len(e.Context) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (context: %+v)", e.Message, e.Context)
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// NewError creates a new structured error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: make(map[string]any),
	}
}

// Errorf creates a structured error with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return NewError(code, fmt.Sprintf(format, args...))
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// CodeOf extracts the code of the first *Error in err's chain.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ErrCodeOK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}
