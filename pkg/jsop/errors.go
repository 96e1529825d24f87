package jsop

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dop251/goja"

	sdkerrors "github.com/wehubfusion/Daedalus/pkg/errors"
)

// ErrorType categorizes JavaScript failures
type ErrorType string

const (
	ErrorTypeSyntax   ErrorType = "syntax_error"
	ErrorTypeRuntime  ErrorType = "runtime_error"
	ErrorTypeTimeout  ErrorType = "timeout_error"
	ErrorTypeSecurity ErrorType = "security_error"
	ErrorTypeShape    ErrorType = "shape_error"
	ErrorTypeInternal ErrorType = "internal_error"
)

// JSError is a structured JavaScript failure
type JSError struct {
	Type       ErrorType    `json:"type"`
	Message    string       `json:"message"`
	StackTrace []StackFrame `json:"stack_trace,omitempty"`
	Line       int          `json:"line,omitempty"`
	Column     int          `json:"column,omitempty"`
}

// StackFrame is one frame of a JavaScript stack trace
type StackFrame struct {
	FunctionName string `json:"function_name,omitempty"`
	FileName     string `json:"file_name,omitempty"`
	Line         int    `json:"line"`
	Column       int    `json:"column"`
}

// maxPrintedFrames limits the frames included in Error()
const maxPrintedFrames = 10

// Error implements the error interface
func (e *JSError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Type, e.Message)

	if e.Line > 0 {
		fmt.Fprintf(&b, " at line %d", e.Line)
		if e.Column > 0 {
			fmt.Fprintf(&b, ", column %d", e.Column)
		}
	}

	for i, frame := range e.StackTrace {
		if i == 0 {
			b.WriteString("\nStack trace:")
		}
		if i >= maxPrintedFrames {
			fmt.Fprintf(&b, "\n  ... %d more frames", len(e.StackTrace)-i)
			break
		}
		name := frame.FunctionName
		if name == "" {
			name = "<anonymous>"
		}
		if frame.FileName != "" {
			fmt.Fprintf(&b, "\n  at %s (%s:%d:%d)", name, frame.FileName, frame.Line, frame.Column)
		} else {
			fmt.Fprintf(&b, "\n  at %s (line %d:%d)", name, frame.Line, frame.Column)
		}
	}
	return b.String()
}

// Unwrap maps timeouts onto the shared timeout sentinel
func (e *JSError) Unwrap() error {
	if e.Type == ErrorTypeTimeout {
		return sdkerrors.ErrTimeout
	}
	return nil
}

// IsJSError reports whether err carries a *JSError and returns it
func IsJSError(err error) (*JSError, bool) {
	var jsErr *JSError
	if errors.As(err, &jsErr) {
		return jsErr, true
	}
	return nil, false
}

// parseException converts a thrown JavaScript value into a JSError
func parseException(vm *goja.Runtime, exc *goja.Exception) *JSError {
	if exc == nil {
		return newInternalError("unknown error")
	}

	jsErr := &JSError{
		Type:    ErrorTypeRuntime,
		Message: exc.Error(),
	}

	if obj, ok := exc.Value().(*goja.Object); ok && vm != nil {
		if stack := obj.Get("stack"); stack != nil && !goja.IsUndefined(stack) {
			jsErr.StackTrace = parseStackTrace(stack.String())
		}
		if len(jsErr.StackTrace) > 0 {
			jsErr.Line = jsErr.StackTrace[0].Line
			jsErr.Column = jsErr.StackTrace[0].Column
		}
	}

	msg := strings.ToLower(jsErr.Message)
	switch {
	case strings.Contains(msg, "syntaxerror"):
		jsErr.Type = ErrorTypeSyntax
	case strings.Contains(msg, "not allowed"), strings.Contains(msg, "forbidden"):
		jsErr.Type = ErrorTypeSecurity
	}
	return jsErr
}

// parseStackTrace parses a textual stack trace into frames
func parseStackTrace(stack string) []StackFrame {
	var frames []StackFrame
	for _, line := range strings.Split(stack, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || !strings.HasPrefix(line, "at ") {
			continue
		}
		frames = append(frames, parseStackFrame(strings.TrimPrefix(line, "at ")))
	}
	return frames
}

// parseStackFrame handles "name (file:line:col)" and "file:line:col"
func parseStackFrame(line string) StackFrame {
	var frame StackFrame
	location := line
	if open := strings.Index(line, " ("); open != -1 {
		frame.FunctionName = strings.TrimSpace(line[:open])
		location = strings.TrimSuffix(line[open+2:], ")")
	}

	parts := strings.Split(location, ":")
	if len(parts) >= 3 {
		frame.FileName = strings.Join(parts[:len(parts)-2], ":")
		frame.Line, _ = strconv.Atoi(parts[len(parts)-2])
		col := parts[len(parts)-1]
		if i := strings.IndexByte(col, '('); i != -1 {
			col = col[:i]
		}
		frame.Column, _ = strconv.Atoi(col)
	}
	return frame
}

// convertError turns any error from a goja call into a JSError
func convertError(vm *goja.Runtime, err error, timedOut bool, timeout time.Duration) *JSError {
	if err == nil {
		return nil
	}
	var interrupted *goja.InterruptedError
	if timedOut || errors.As(err, &interrupted) {
		return newTimeoutError(timeout)
	}
	var exc *goja.Exception
	if errors.As(err, &exc) {
		return parseException(vm, exc)
	}
	var syntax *goja.CompilerSyntaxError
	if errors.As(err, &syntax) {
		return &JSError{Type: ErrorTypeSyntax, Message: syntax.Error()}
	}
	var jsErr *JSError
	if errors.As(err, &jsErr) {
		return jsErr
	}
	return newInternalError(err.Error())
}

func newTimeoutError(timeout time.Duration) *JSError {
	return &JSError{
		Type:    ErrorTypeTimeout,
		Message: fmt.Sprintf("execution timeout after %s", timeout),
	}
}

func newSecurityError(message string) *JSError {
	return &JSError{Type: ErrorTypeSecurity, Message: message}
}

func newShapeError(format string, args ...any) *JSError {
	return &JSError{Type: ErrorTypeShape, Message: fmt.Sprintf(format, args...)}
}

func newInternalError(message string) *JSError {
	return &JSError{Type: ErrorTypeInternal, Message: message}
}
