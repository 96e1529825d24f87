package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected indicates that there is no live NATS connection
	ErrNotConnected = errors.New("not connected to NATS")

	// ErrInvalidSubject indicates that the sink subject is empty or malformed
	ErrInvalidSubject = errors.New("invalid subject")

	// ErrPublishFailed indicates that a record could not be published
	ErrPublishFailed = errors.New("publish failed")

	// ErrUploadFailed indicates that a record batch could not be uploaded
	ErrUploadFailed = errors.New("upload failed")

	// ErrInvalidConfig indicates that a configuration value is out of range
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrNilCallable indicates that a runner was given no pull function or sink
	ErrNilCallable = errors.New("nil callable")

	// ErrUnsupportedShape indicates that an operator produced a value the
	// host cannot submit as a tuple
	ErrUnsupportedShape = errors.New("unsupported result shape")

	// ErrTimeout indicates that an operation timed out
	ErrTimeout = errors.New("operation timed out")

	// ErrClosed indicates use of a runner or sink after Close
	ErrClosed = errors.New("already closed")
)

// Error codes carried by *Error
const (
	CodeOperator = "OPERATOR_ERROR"
	CodeSource   = "SOURCE_ERROR"
	CodeSink     = "SINK_ERROR"
	CodeConfig   = "CONFIG_ERROR"
)

// Error represents a structured runtime error
type Error struct {
	// Code is a machine-readable error code
	Code string

	// Message is a human-readable error message
	Message string

	// Err is the underlying error, if any
	Err error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new runtime error
func NewError(code, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsTimeout checks if an error is a timeout error
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsNotConnected checks if an error is a not connected error
func IsNotConnected(err error) bool {
	return errors.Is(err, ErrNotConnected)
}

// IsInvalidConfig checks if an error is a configuration error
func IsInvalidConfig(err error) bool {
	return errors.Is(err, ErrInvalidConfig)
}

// IsUnsupportedShape checks if an error reports an unsubmittable result
func IsUnsupportedShape(err error) bool {
	return errors.Is(err, ErrUnsupportedShape)
}
