package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/cpcflow/internal/engine"
	"github.com/roach88/cpcflow/internal/graph"
	"github.com/roach88/cpcflow/internal/value"
	"github.com/roach88/cpcflow/internal/vtype"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Dirty    []string // dirty instances, for context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	if len(e.Dirty) > 0 {
		fmt.Fprintf(&buf, "  Dirty: %s\n", strings.Join(e.Dirty, ", "))
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion against the engine's final
// state and returns one message per failure.
func EvaluateAssertions(e *engine.Engine, result *Result, assertions []Assertion) []string {
	var failures []string
	for i, a := range assertions {
		if err := evaluate(e, result, a); err != nil {
			failures = append(failures, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return failures
}

func evaluate(e *engine.Engine, result *Result, a Assertion) error {
	fail := func(expected, actual string) error {
		return &AssertionError{Type: a.Type, Expected: expected, Actual: actual, Dirty: e.ListDirtyInstances()}
	}

	switch a.Type {
	case AssertOutput, AssertUnset:
		v, err := lookup(e, a.Endpoint)
		if err != nil {
			return fail(a.Endpoint+" is addressable", err.Error())
		}
		if a.Type == AssertUnset {
			if v != nil {
				return fail(a.Endpoint+" unset", render(v))
			}
			return nil
		}
		if v == nil {
			return fail(fmt.Sprintf("%s = %s", a.Endpoint, a.Equals), "no value")
		}
		if got := render(v); got != a.Equals {
			return fail(fmt.Sprintf("%s = %s", a.Endpoint, a.Equals), got)
		}

	case AssertDirtyCount:
		if n := len(e.ListDirtyInstances()); n != a.Count {
			return fail(fmt.Sprintf("%d dirty instances", a.Count), fmt.Sprintf("%d", n))
		}

	case AssertInstanceCount:
		if n := len(e.Network().Instances()); n != a.Count {
			return fail(fmt.Sprintf("%d instances", a.Count), fmt.Sprintf("%d", n))
		}

	case AssertChildren:
		if n := len(e.Network().Children(a.Instance)); n != a.Count {
			return fail(fmt.Sprintf("%d children of %s", a.Count, a.Instance), fmt.Sprintf("%d", n))
		}

	case AssertFailed:
		if e.LastError(a.Instance) == nil {
			return fail(a.Instance+" failed", "no failure recorded")
		}

	case AssertInvocations:
		if result.Invocations != a.Count {
			return fail(fmt.Sprintf("%d invocations", a.Count), fmt.Sprintf("%d", result.Invocations))
		}

	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}

// lookup returns the value at an endpoint, nil when nothing is stored
// there.
func lookup(e *engine.Engine, endpoint string) (*value.Value, error) {
	ep, err := graph.ParseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	inst, ok := e.Network().Instance(ep.Instance)
	if !ok {
		return nil, fmt.Errorf("instance %s does not exist", ep.Instance)
	}
	v, err := value.Get(inst.Ports[ep.Dir], ep.Path)
	if vtype.HasCode(err, vtype.ErrCodeNoSuchPath) {
		return nil, nil
	}
	return v, err
}
