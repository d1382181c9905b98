package harness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/roach88/cpcflow/internal/builtin"
	"github.com/roach88/cpcflow/internal/compiler"
	"github.com/roach88/cpcflow/internal/engine"
	"github.com/roach88/cpcflow/internal/network"
	"github.com/roach88/cpcflow/internal/store"
	"github.com/roach88/cpcflow/internal/testutil"
	"github.com/roach88/cpcflow/internal/vtype"
)

// SetupFunc declares additional types and functions with their bodies.
type SetupFunc func(r *vtype.Registry, lib *engine.Library) error

// Harness runs scenarios.
type Harness struct {
	setups []SetupFunc
}

// Option configures a Harness.
type Option func(*Harness)

// WithFunctions adds task bodies the scenario's network can use. fn runs
// on every fresh registry, after the builtins and before the schema.
func WithFunctions(fn SetupFunc) Option {
	return func(h *Harness) { h.setups = append(h.setups, fn) }
}

// New creates a harness.
func New(opts ...Option) *Harness {
	h := &Harness{}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run executes a scenario with a default harness.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	return New(opts...).Run(ctx, scenario)
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh checkpoint database in a temporary
// directory. Execution flow:
//  1. Build the registry and library: builtins, setup functions, schema
//  2. Load and validate the network definition
//  3. Define the network and run the driver until idle
//  4. If interrupted, reopen the checkpoint in a fresh engine and finish
//  5. Evaluate assertions and take the final snapshot
//
// An error is returned when the scenario cannot be executed at all; failed
// assertions are reported in the result.
func (h *Harness) Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "cpcflow-scenario-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario directory: %w", err)
	}
	defer os.RemoveAll(dir)
	dbPath := filepath.Join(dir, "checkpoint.db")

	def, err := network.LoadFile(scenario.Network)
	if err != nil {
		return nil, err
	}

	e, st, err := h.open(ctx, scenario, dbPath, 0)
	if err != nil {
		return nil, err
	}
	if errs := def.Validate(e.Library()); len(errs) > 0 {
		st.Close()
		return nil, fmt.Errorf("invalid network: %w", errs[0])
	}
	if err := e.Define(ctx, def.Define(e.Library())); err != nil {
		st.Close()
		return nil, err
	}

	result := NewResult()
	opts := engine.DriverOptions{Workers: 1, MaxRounds: scenario.MaxRounds}

	if scenario.InterruptAfterRounds > 0 {
		first := opts
		first.MaxRounds = scenario.InterruptAfterRounds
		stats, runErr := e.RunUntilIdle(ctx, first)
		if stats != nil {
			result.Rounds += stats.Rounds
			result.Invocations += stats.Invocations
		}
		if runErr != nil && ctx.Err() != nil {
			st.Close()
			return nil, runErr
		}
		if err := st.Close(); err != nil {
			return nil, err
		}

		e, st, err = h.open(ctx, scenario, dbPath, 1)
		if err != nil {
			return nil, fmt.Errorf("resume: %w", err)
		}
		result.Resumed = true
	}
	defer st.Close()

	stats, err := e.RunUntilIdle(ctx, opts)
	if stats != nil {
		result.Rounds += stats.Rounds
		result.Invocations += stats.Invocations
	}
	if err != nil {
		return nil, err
	}

	for _, msg := range EvaluateAssertions(e, result, scenario.Assertions) {
		result.AddError(msg)
	}
	result.Snapshot = takeSnapshot(scenario.Name, e)
	return result, nil
}

// open builds a fresh registry and library and opens the checkpoint,
// resuming whatever it holds. Each generation draws invocation ids from
// its own sequence.
func (h *Harness) open(ctx context.Context, scenario *Scenario, dbPath string, generation int) (*engine.Engine, *store.Store, error) {
	r := vtype.NewRegistry()
	lib := engine.NewLibrary()
	if err := builtin.Register(r, lib); err != nil {
		return nil, nil, err
	}
	for _, setup := range h.setups {
		if err := setup(r, lib); err != nil {
			return nil, nil, err
		}
	}
	if scenario.Schema != "" {
		schema, err := compiler.LoadDir(r, scenario.Schema)
		if err != nil {
			return nil, nil, err
		}
		if err := schema.AddTo(lib); err != nil {
			return nil, nil, err
		}
	}

	st, err := store.Open(dbPath)
	if err != nil {
		return nil, nil, err
	}
	e, err := engine.Open(ctx, r, lib, st, engine.WithIDGenerator(testutil.NewSequentialIDGenerator(fmt.Sprintf("%s-g%d", scenario.Name, generation))))
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	return e, st, nil
}
