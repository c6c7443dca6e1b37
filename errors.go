package relaymq

import (
	"errors"
	"fmt"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
)

// Error codes returned by relaymq components. These are stable strings
// suitable for wire transport inside a ResponseEnvelope.
const (
	CodeConnectionError  = "CONNECTION_ERROR"
	CodeChannelError     = "CHANNEL_ERROR"
	CodePoolDraining     = "POOL_DRAINING"
	CodeAcquireTimeout   = "ACQUIRE_TIMEOUT"
	CodeTimeoutError     = "TIMEOUT_ERROR"
	CodeValidationError  = "VALIDATION_ERROR"
	CodePublishError     = "PUBLISH_ERROR"
	CodeExchangeError    = "EXCHANGE_ERROR"
	CodeDecodeError      = "DECODE_ERROR"
	CodeHandlerError     = "HANDLER_ERROR"
	CodeHandlerNotFound  = "HANDLER_NOT_FOUND"
	CodeClientClosing    = "CLIENT_CLOSING"
	CodeCancelled        = "CANCELLED"
	CodeConfigurationErr = "CONFIGURATION_ERROR"
)

// Error is the typed error value used throughout relaymq. It carries a
// stable code (suitable for a ResponseEnvelope.error.code), a human
// readable message, and optional structured details.
type Error struct {
	ts      int64
	Code    string
	Message string
	Details interface{}
	Stack   string
	prev    error
	mu      sync.Mutex
}

// NewError returns a new Error value with the given code and message.
func NewError(code, message string) *Error {
	return &Error{
		ts:      time.Now().UnixMilli(),
		Code:    code,
		Message: message,
	}
}

// WrapError annotates an existing error with a code, preserving it as
// the cause for Unwrap/Is comparisons. The cause is run through
// github.com/pkg/errors.WithStack (unless it already carries a stack) so
// Stack reflects the call site where the underlying failure surfaced,
// matching how the teacher's connection/session plumbing wraps broker
// errors.
func WrapError(code string, cause error) *Error {
	if cause == nil {
		return nil
	}
	traced := cause
	if stackTracer(cause) == nil {
		traced = pkgerrors.WithStack(cause)
	}
	return &Error{
		ts:      time.Now().UnixMilli(),
		Code:    code,
		Message: cause.Error(),
		Stack:   fmt.Sprintf("%+v", traced),
		prev:    cause,
	}
}

func stackTracer(err error) pkgerrors.StackTrace {
	type tracer interface{ StackTrace() pkgerrors.StackTrace }
	var t tracer
	if errors.As(err, &t) {
		return t.StackTrace()
	}
	return nil
}

// WithDetails attaches a structured payload to the error and returns it,
// allowing fluent construction at the call site.
func (e *Error) WithDetails(details interface{}) *Error {
	e.mu.Lock()
	e.Details = details
	e.mu.Unlock()
	return e
}

// Error implements the standard error interface.
func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped cause, if any, to errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.prev
}

// Stamp returns the UNIX millisecond timestamp the error was created at.
func (e *Error) Stamp() int64 {
	return e.ts
}

// CodeOf returns the stable code carried by err, defaulting to
// HANDLER_ERROR for plain errors with no attached code — matching the
// spec's "default" classification for handler failures that did not
// self-report a name.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	var re *Error
	if errors.As(err, &re) {
		return re.Code
	}
	return CodeHandlerError
}

// DetailsOf returns the structured details attached to err, if any.
func DetailsOf(err error) interface{} {
	var re *Error
	if errors.As(err, &re) {
		return re.Details
	}
	return nil
}
