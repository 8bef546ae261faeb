package errors

import (
	"context"
	stderrors "errors"
	"fmt"
)

// AppError is the unified error type.
type AppError struct {
	// Code is a machine-readable error code.
	Code ErrorCode `json:"code"`
	// Message is a human-readable error message.
	Message string `json:"message"`
	// Retryable indicates if the operation can be retried.
	Retryable bool `json:"retryable"`
	// Details contains additional context for the error.
	Details map[string]any `json:"details,omitempty"`
	// Cause is the underlying error that caused this error.
	Cause error `json:"-"`
}

// Error returns the string representation of the error.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *AppError) Unwrap() error { return e.Cause }

// WithCause sets the underlying cause of the error and returns the receiver.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetail sets a single detail key-value pair and returns the receiver.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError with automatic retryable detection.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Retryable: IsRetryableCode(code),
	}
}

// --- Constructors ---

// InvalidArgument creates an error for a bad argument value.
func InvalidArgument(arg, reason string) *AppError {
	return New(ErrCodeInvalidArgument, fmt.Sprintf("invalid %s: %s", arg, reason)).
		WithDetail("argument", arg)
}

// NotSupported creates an error for an operation the target cannot perform.
func NotSupported(operation string) *AppError {
	return New(ErrCodeNotSupported, fmt.Sprintf("%s is not supported", operation)).
		WithDetail("operation", operation)
}

// Cancelled creates an error for cooperative cancellation. A nil cause
// defaults to context.Canceled so errors.Is(err, context.Canceled) holds.
func Cancelled(cause error) *AppError {
	if cause == nil {
		cause = context.Canceled
	}
	return New(ErrCodeCancelled, "operation cancelled").WithCause(cause)
}

// Disposed creates an error for use of a closed resource.
func Disposed(resource string) *AppError {
	return New(ErrCodeDisposed, fmt.Sprintf("%s is disposed", resource)).
		WithDetail("resource", resource)
}

// StageFailure creates an error for a failed transform stage.
func StageFailure(stage string, cause error) *AppError {
	return New(ErrCodeStageFailure, fmt.Sprintf("stage %s failed", stage)).
		WithDetail("stage", stage).
		WithCause(cause)
}

// SinkFailure creates an error for a failed broadcast sink.
func SinkFailure(sink string, cause error) *AppError {
	return New(ErrCodeSinkFailure, "broadcast write failed").
		WithDetail("sink", sink).
		WithCause(cause)
}

// Internal creates an error for an unexpected failure.
func Internal(cause error) *AppError {
	return New(ErrCodeInternal, "unexpected failure").WithCause(cause)
}

// --- Inspection ---

// AsAppError returns the first AppError in err's chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// CodeOf returns the code of the first AppError in err's chain, or "".
func CodeOf(err error) ErrorCode {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ""
}

// IsCode reports whether any AppError in err's chain has the given code.
func IsCode(err error, code ErrorCode) bool {
	for err != nil {
		var appErr *AppError
		if !stderrors.As(err, &appErr) {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Cause
	}
	return false
}

// IsCancelled reports whether err represents cooperative cancellation,
// either a Cancelled AppError or a bare context error.
func IsCancelled(err error) bool {
	if err == nil {
		return false
	}
	return IsCode(err, ErrCodeCancelled) ||
		stderrors.Is(err, context.Canceled) ||
		stderrors.Is(err, context.DeadlineExceeded)
}

// FromContext converts a context error into a Cancelled error.
// It returns nil when err is nil.
func FromContext(err error) error {
	if err == nil {
		return nil
	}
	return Cancelled(err)
}

// Is and As re-export the standard library helpers so callers need a single import.
var (
	Is = stderrors.Is
	As = stderrors.As
)
