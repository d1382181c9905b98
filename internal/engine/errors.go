package engine

import (
	"errors"
	"fmt"
)

// RuntimeError represents an error detected while running task bodies.
//
// Runtime errors include:
//   - Busy: the instance already has a running invocation
//   - Unknown body: the instance's function has no task body
//   - Application failure: the task body returned an error
//   - Stale invocation: a result was reported for an invocation that is
//     no longer current
//
// RuntimeError includes structured fields for diagnostics and recovery.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Instance is the full name of the affected instance.
	Instance string

	// InvocationID identifies the invocation, when there is one.
	InvocationID string

	// Err is the underlying cause.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeBusy indicates the instance is already running.
	ErrCodeBusy RuntimeErrorCode = "BUSY"

	// ErrCodeUnknownInstance indicates the instance does not exist.
	ErrCodeUnknownInstance RuntimeErrorCode = "UNKNOWN_INSTANCE"

	// ErrCodeUnknownBody indicates the function has no registered body.
	ErrCodeUnknownBody RuntimeErrorCode = "UNKNOWN_BODY"

	// ErrCodeApplicationFailed indicates the task body failed. The
	// invocation's buffered mutations were discarded.
	ErrCodeApplicationFailed RuntimeErrorCode = "APPLICATION_FAILED"

	// ErrCodeRejected indicates the invocation's batch failed validation
	// or could not be committed.
	ErrCodeRejected RuntimeErrorCode = "REJECTED"

	// ErrCodeNotRunning indicates a result was reported for an instance
	// with no running invocation.
	ErrCodeNotRunning RuntimeErrorCode = "NOT_RUNNING"

	// ErrCodeStaleInvocation indicates a result was reported for an
	// invocation that was abandoned or superseded.
	ErrCodeStaleInvocation RuntimeErrorCode = "STALE_INVOCATION"

	// ErrCodeAlreadyDefined indicates the top-level network was already
	// defined or restored.
	ErrCodeAlreadyDefined RuntimeErrorCode = "ALREADY_DEFINED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Instance != "" {
		msg += fmt.Sprintf(" (instance=%s)", e.Instance)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RuntimeError) Unwrap() error { return e.Err }

// IsApplicationError returns true if the error is a task body failure.
// Uses errors.As to handle wrapped errors.
func IsApplicationError(err error) bool {
	return hasCode(err, ErrCodeApplicationFailed)
}

// IsBusy returns true if the instance was already running.
func IsBusy(err error) bool {
	return hasCode(err, ErrCodeBusy)
}

// IsRejected returns true if an invocation's batch was rejected.
func IsRejected(err error) bool {
	return hasCode(err, ErrCodeRejected)
}

func hasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

func newBusyError(instance string) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeBusy,
		Message:  "instance already has a running invocation",
		Instance: instance,
	}
}

func newApplicationError(inv *Invocation, err error) *RuntimeError {
	return &RuntimeError{
		Code:         ErrCodeApplicationFailed,
		Message:      "task body failed",
		Instance:     inv.instance,
		InvocationID: inv.id,
		Err:          err,
	}
}

func newRejectedError(inv *Invocation, err error) *RuntimeError {
	return &RuntimeError{
		Code:         ErrCodeRejected,
		Message:      "invocation batch rejected",
		Instance:     inv.instance,
		InvocationID: inv.id,
		Err:          err,
	}
}
