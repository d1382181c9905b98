package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

const (
	// DefaultWorkers is the default number of concurrent task bodies.
	DefaultWorkers = 4

	// DefaultMaxRounds bounds the number of scheduling rounds of one run.
	DefaultMaxRounds = 1000

	// DefaultMaxInvocations bounds how often one instance runs within one
	// driver run.
	DefaultMaxInvocations = 1000
)

// DriverOptions configures RunUntilIdle. Zero values select the defaults.
type DriverOptions struct {
	Workers        int
	MaxRounds      int
	MaxInvocations int
}

// RunStats summarizes a driver run.
type RunStats struct {
	Rounds      int
	Invocations int
	Failed      map[string]error // instance -> error of its failed invocation
}

// RunUntilIdle runs dirty instances locally until none is left. Each round
// takes the current dirty set and runs it on a bounded worker pool;
// instances running concurrently mutate disjoint parts of the graph and
// their commits serialize on the network's writer lock.
//
// An instance whose invocation fails is not retried within the same run;
// it stays dirty and its error is reported in RunStats.Failed. The run
// returns an error only when ctx is done or the network does not settle
// within MaxRounds.
func (e *Engine) RunUntilIdle(ctx context.Context, opts DriverOptions) (*RunStats, error) {
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	maxRounds := opts.MaxRounds
	if maxRounds <= 0 {
		maxRounds = DefaultMaxRounds
	}
	maxInvocations := opts.MaxInvocations
	if maxInvocations <= 0 {
		maxInvocations = DefaultMaxInvocations
	}

	quota := NewQuotaEnforcer(maxInvocations)
	stats := &RunStats{Failed: make(map[string]error)}
	var mu sync.Mutex

	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		var pending []string
		for _, name := range e.ListDirtyInstances() {
			if _, failed := stats.Failed[name]; failed || e.IsRunning(name) {
				continue
			}
			pending = append(pending, name)
		}
		if len(pending) == 0 {
			slog.Info("network idle", "rounds", stats.Rounds, "invocations", stats.Invocations, "failed", len(stats.Failed))
			return stats, nil
		}
		if stats.Rounds >= maxRounds {
			return stats, fmt.Errorf("network did not settle after %d rounds (%d instances still dirty)", maxRounds, len(pending))
		}
		stats.Rounds++
		slog.Debug("driver round", "round", stats.Rounds, "dirty", len(pending))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(workers)
		for _, name := range pending {
			name := name // per-iteration copy; go.mod targets go 1.21 loop semantics
			g.Go(func() error {
				if err := quota.Check(name); err != nil {
					mu.Lock()
					stats.Failed[name] = err
					mu.Unlock()
					slog.Error("max invocations exceeded", "instance", name, "limit", maxInvocations)
					return nil
				}

				err := e.Invoke(gctx, name)
				if IsBusy(err) {
					return nil
				}
				if err != nil && gctx.Err() != nil {
					return gctx.Err()
				}

				mu.Lock()
				defer mu.Unlock()
				stats.Invocations++
				if err != nil {
					stats.Failed[name] = err
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return stats, err
		}
	}
}
