// Package errors defines the coded error taxonomy used by the behavior engine.
// Callers classify failures with Code or the Is* helpers instead of matching strings.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// Error codes.
const (
	CodeUnknown          = "UNKNOWN"
	CodeTransient        = "TRANSIENT"
	CodeThrottled        = "THROTTLED"
	CodeContentRejected  = "CONTENT_REJECTED"
	CodeConfig           = "CONFIG"
	CodeDatabase         = "DATABASE"
	CodeValidation       = "VALIDATION"
	CodePermanentFailure = "PERMANENT"
)

// ApplicationError is the interface that all our custom errors implement.
type ApplicationError interface {
	error
	Code() string
	Unwrap() error
}

// Error is the single concrete error type. RetryAfter is only meaningful for CodeThrottled.
type Error struct {
	code       string
	message    string
	err        error
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.message, e.err)
	}

	return e.message
}

func (e *Error) Code() string {
	return e.code
}

func (e *Error) Unwrap() error {
	return e.err
}

// Code returns the code of the first ApplicationError in err's chain,
// or CodeUnknown if it doesn't carry one.
func Code(err error) string {
	var appErr ApplicationError
	if errors.As(err, &appErr) {
		return appErr.Code()
	}

	return CodeUnknown
}

func newError(code, message string, cause error) error {
	return &Error{code: code, message: message, err: cause}
}

func NewTransientError(message string, cause error) error {
	return newError(CodeTransient, message, cause)
}

// NewThrottledError records the server supplied wait before the next attempt.
func NewThrottledError(message string, retryAfter time.Duration, cause error) error {
	return &Error{code: CodeThrottled, message: message, err: cause, RetryAfter: retryAfter}
}

func NewContentRejectedError(message string, cause error) error {
	return newError(CodeContentRejected, message, cause)
}

func NewConfigError(message string, cause error) error {
	return newError(CodeConfig, message, cause)
}

func NewDatabaseError(message string, cause error) error {
	return newError(CodeDatabase, message, cause)
}

func NewValidationError(message string, cause error) error {
	return newError(CodeValidation, message, cause)
}

func NewPermanentError(message string, cause error) error {
	return newError(CodePermanentFailure, message, cause)
}

// IsRetryable reports whether err is worth another attempt.
func IsRetryable(err error) bool {
	switch Code(err) {
	case CodeTransient, CodeThrottled:
		return true
	default:
		return false
	}
}

// IsContentRejected reports whether err means the tick should end without output.
func IsContentRejected(err error) bool {
	return Code(err) == CodeContentRejected
}

// RetryAfter extracts the server supplied wait from a throttled error.
func RetryAfter(err error) (time.Duration, bool) {
	var e *Error
	if errors.As(err, &e) && e.code == CodeThrottled {
		return e.RetryAfter, true
	}
	return 0, false
}
