package graph

import (
	"errors"
	"fmt"
)

// StructureErrorCode categorizes graph structure errors.
type StructureErrorCode string

const (
	// ErrCodeDuplicateName indicates an instance name already in use.
	ErrCodeDuplicateName StructureErrorCode = "DUPLICATE_NAME"

	// ErrCodeUnknownInstance indicates an endpoint naming no instance.
	ErrCodeUnknownInstance StructureErrorCode = "UNKNOWN_INSTANCE"

	// ErrCodeUnknownFunction indicates an instance bound to an undeclared function.
	ErrCodeUnknownFunction StructureErrorCode = "UNKNOWN_FUNCTION"

	// ErrCodeUnknownAddress indicates an endpoint path outside its port schema.
	ErrCodeUnknownAddress StructureErrorCode = "UNKNOWN_ADDRESS"

	// ErrCodeCycleDetected indicates a connection that would make the
	// instance dependency graph cyclic.
	ErrCodeCycleDetected StructureErrorCode = "CYCLE_DETECTED"

	// ErrCodeDuplicateDestination indicates a destination that is already
	// fed by another connection.
	ErrCodeDuplicateDestination StructureErrorCode = "DUPLICATE_DESTINATION"

	// ErrCodeInvalidName indicates a malformed instance name.
	ErrCodeInvalidName StructureErrorCode = "INVALID_NAME"

	// ErrCodeInvalidEndpoint indicates a malformed endpoint or a direction
	// that cannot be used on that side of a connection.
	ErrCodeInvalidEndpoint StructureErrorCode = "INVALID_ENDPOINT"
)

// StructureError is returned when a graph mutation would break the
// network's structure. The mutation is rejected and the graph is left
// unchanged.
type StructureError struct {
	Code     StructureErrorCode
	Instance string
	Message  string
	Err      error
}

func (e *StructureError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Instance != "" {
		msg += fmt.Sprintf(" (instance=%s)", e.Instance)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StructureError) Unwrap() error { return e.Err }

func structErr(code StructureErrorCode, instance, format string, args ...any) *StructureError {
	return &StructureError{Code: code, Instance: instance, Message: fmt.Sprintf(format, args...)}
}

// IsStructureError reports whether err wraps a *StructureError.
func IsStructureError(err error) bool {
	var se *StructureError
	return errors.As(err, &se)
}

// HasCode reports whether err wraps a *StructureError with the given code.
func HasCode(err error, code StructureErrorCode) bool {
	var se *StructureError
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// IsCycleError reports whether err is a rejected cyclic connection.
func IsCycleError(err error) bool {
	return HasCode(err, ErrCodeCycleDetected)
}
