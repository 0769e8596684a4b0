package errors

import (
	"context"
	"errors"
	"fmt"
)

// Wrap wraps an error with additional context while preserving the error chain.
// If err is nil, Wrap returns nil.
// If err is already a BusError, it wraps it with the new message.
// Otherwise, it creates a new Internal error wrapping the original.
func Wrap(err error, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}

	// If it's already a bus Error, preserve its properties
	var busErr *Error
	if errors.As(err, &busErr) {
		wrapped := &Error{
			code:      busErr.code,
			category:  busErr.category,
			message:   message,
			cause:     err,
			metadata:  busErr.Metadata(),
			retryable: busErr.retryable,
			agentID:   busErr.agentID,
			messageID: busErr.messageID,
		}
		for _, opt := range opts {
			opt(wrapped)
		}
		return wrapped
	}

	// Check for context errors
	if errors.Is(err, context.DeadlineExceeded) {
		return New(ErrCodeDispatchTimeout, message, append(opts, WithCause(err))...)
	}
	if errors.Is(err, context.Canceled) {
		return New(ErrCodeCanceled, message, append(opts, WithCause(err))...)
	}

	// Default to internal error for unknown errors
	return New(ErrCodeInternal, message, append(opts, WithCause(err))...)
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, format string, args ...interface{}) *Error {
	return Wrap(err, fmt.Sprintf(format, args...))
}

// WrapWithCode wraps an error with a specific error code.
func WrapWithCode(err error, code ErrorCode, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}
	opts = append(opts, WithCause(err))
	return New(code, message, opts...)
}

// CodeOf extracts the error code from an error.
// Returns ErrCodeInternal for non-bus errors and "" for nil.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var busErr *Error
	if errors.As(err, &busErr) {
		return busErr.Code()
	}
	return ErrCodeInternal
}

// IsCode reports whether err carries the given error code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// IsRetryable reports whether err may succeed on retry.
// Non-bus errors are not retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var busErr *Error
	if errors.As(err, &busErr) {
		return busErr.Retryable()
	}
	return false
}
