// Package errors defines structured error types for the database layer.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode defines specific error types.
//
// An ErrorCode is itself an error so it can be used as the target of
// errors.Is against any *Error carrying that code.
type ErrorCode string

const (
	// ErrNotFound is returned when a named resource is not known
	ErrNotFound ErrorCode = "NOT_FOUND"
	// ErrDecode is returned when a database file or record cannot be parsed
	ErrDecode ErrorCode = "DECODE_ERROR"
	// ErrEncode is returned when a record cannot be serialized
	ErrEncode ErrorCode = "ENCODE_ERROR"
	// ErrIO is returned when a file operation fails
	ErrIO ErrorCode = "IO_ERROR"
	// ErrIndexOutOfRange is returned when an index is outside [0, size)
	ErrIndexOutOfRange ErrorCode = "INDEX_OUT_OF_RANGE"
	// ErrUnavailable is returned when the database is not open
	ErrUnavailable ErrorCode = "UNAVAILABLE"
	// ErrInvalidName is returned when a database name cannot be used as a file name
	ErrInvalidName ErrorCode = "INVALID_NAME"
	// ErrInvalidConfig is returned when configuration values are rejected
	ErrInvalidConfig ErrorCode = "INVALID_CONFIG"
)

// Error implements the error interface.
func (c ErrorCode) Error() string {
	return string(c)
}

// Error is a concrete error type with a code and optional details.
type Error struct {
	code       ErrorCode
	message    string
	details    map[string]any
	wrappedErr error
}

// New creates a new Error with the given code and message.
func New(code ErrorCode, message string) *Error {
	return &Error{
		code:    code,
		message: message,
	}
}

// Newf creates a new Error with a formatted message.
func Newf(code ErrorCode, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// WithDetail adds a single detail to the error.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.details == nil {
		e.details = make(map[string]any)
	}
	e.details[key] = value
	return e
}

// Wrap wraps an underlying error.
func (e *Error) Wrap(err error) *Error {
	e.wrappedErr = err
	return e
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.wrappedErr != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrappedErr)
	}
	return e.message
}

// Code returns the error code.
func (e *Error) Code() ErrorCode {
	return e.code
}

// Details returns additional error details.
func (e *Error) Details() map[string]any {
	return e.details
}

// Unwrap returns the wrapped error if any.
func (e *Error) Unwrap() error {
	return e.wrappedErr
}

// Is reports whether target is the ErrorCode of e.
func (e *Error) Is(target error) bool {
	c, ok := target.(ErrorCode)
	return ok && c == e.code
}

// Predefined error constructors for common cases

// NotFound creates a NOT_FOUND error.
func NotFound(resource string) *Error {
	return Newf(ErrNotFound, "%s not found", resource)
}

// IndexOutOfRange creates an INDEX_OUT_OF_RANGE error.
func IndexOutOfRange(index, size int) *Error {
	return Newf(ErrIndexOutOfRange, "index %d out of range [0, %d)", index, size).
		WithDetail("index", index).
		WithDetail("size", size)
}

// Unavailable creates an UNAVAILABLE error.
func Unavailable(name string) *Error {
	if name == "" {
		return New(ErrUnavailable, "database is not available")
	}
	return Newf(ErrUnavailable, "database %q is not available", name)
}

// IO creates an IO_ERROR wrapping err.
func IO(message string, err error) *Error {
	return New(ErrIO, message).Wrap(err)
}

// Decode creates a DECODE_ERROR wrapping err.
func Decode(message string, err error) *Error {
	return New(ErrDecode, message).Wrap(err)
}

// Encode creates an ENCODE_ERROR wrapping err.
func Encode(message string, err error) *Error {
	return New(ErrEncode, message).Wrap(err)
}

// CodeOf returns the code of the first *Error in err's chain, or "" if none.
func CodeOf(err error) ErrorCode {
	var e *Error
	if stderrors.As(err, &e) {
		return e.code
	}
	return ""
}
