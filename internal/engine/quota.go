package engine

import (
	"errors"
	"fmt"
	"sync"
)

// QuotaEnforcer counts the invocations of each instance during one driver
// run and enforces a per-instance limit.
//
// A self-expanding instance that keeps finding its inputs updated (for
// example a refinement loop that never reaches its precision) would
// otherwise be re-run forever. The limit turns that into a reported error
// for the instance while the rest of the network keeps running.
type QuotaEnforcer struct {
	mu      sync.Mutex
	max     int
	current map[string]int
}

// NewQuotaEnforcer creates a quota enforcer. max <= 0 disables the limit.
func NewQuotaEnforcer(max int) *QuotaEnforcer {
	return &QuotaEnforcer{max: max, current: make(map[string]int)}
}

// Check increments the instance's counter and validates it against the
// limit. Returns StepsExceededError once the limit is passed.
func (q *QuotaEnforcer) Check(instance string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.current[instance]++
	if q.max > 0 && q.current[instance] > q.max {
		return &StepsExceededError{
			Instance: instance,
			Steps:    q.current[instance],
			Limit:    q.max,
		}
	}
	return nil
}

// Current returns the number of checks made for an instance.
func (q *QuotaEnforcer) Current(instance string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.current[instance]
}

// MaxSteps returns the limit.
func (q *QuotaEnforcer) MaxSteps() int {
	return q.max
}

// StepsExceededError is returned when an instance exceeds its invocation
// quota within one driver run.
type StepsExceededError struct {
	Instance string
	Steps    int
	Limit    int
}

// Error implements the error interface.
func (e *StepsExceededError) Error() string {
	return fmt.Sprintf("instance %s exceeded max invocations: %d > %d limit",
		e.Instance, e.Steps, e.Limit)
}

// IsStepsExceededError returns true if the error is a StepsExceededError.
// Uses errors.As to handle wrapped errors.
func IsStepsExceededError(err error) bool {
	var se *StepsExceededError
	return errors.As(err, &se)
}
