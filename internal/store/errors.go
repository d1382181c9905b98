package store

import (
	"errors"
	"fmt"
)

// PersistenceError reports a failed read or write of the checkpoint.
// Instance is set when the failure concerns one instance's rows.
type PersistenceError struct {
	Op       string
	Instance string
	Err      error
}

func (e *PersistenceError) Error() string {
	if e.Instance != "" {
		return fmt.Sprintf("store %s [%s]: %v", e.Op, e.Instance, e.Err)
	}
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsPersistenceError returns true if err is a PersistenceError.
func IsPersistenceError(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
