package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/cpcflow/internal/engine"
	"github.com/roach88/cpcflow/internal/harness"
	"github.com/roach88/cpcflow/internal/network"
	"github.com/roach88/cpcflow/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database       string
	SchemaDir      string
	Workers        int
	MaxRounds      int
	MaxInvocations int

	// Functions adds task bodies beyond the builtins (for embedding and
	// testing).
	Functions []harness.SetupFunc

	// IDGenerator overrides the invocation id generator (for testing).
	// If nil, the engine's UUIDv7 generator is used.
	IDGenerator engine.IDGenerator
}

// RunResult summarizes one run.
type RunResult struct {
	Resumed     bool              `json:"resumed"`
	Interrupted bool              `json:"interrupted,omitempty"`
	Rounds      int               `json:"rounds"`
	Invocations int               `json:"invocations"`
	Seq         int64             `json:"seq"`
	Failed      map[string]string `json:"failed,omitempty"`
	Dirty       []string          `json:"dirty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run [network-file]",
		Short: "Run a network until it is idle",
		Long: `Run a network until no instance is dirty.

When the checkpoint database is empty the network file defines the
top-level instances and connections. When it already holds a network the
run resumes from the checkpoint and the network file is ignored.

Instances whose task fails stay dirty and are reported; a later run
retries them.

Examples:
  cpcflow run --db ./run.db ./network.yaml
  cpcflow run --db ./run.db --schema ./schema --workers 8 ./network.hcl
  cpcflow run --db ./run.db --schema ./schema     # resume`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var networkFile string
			if len(args) == 1 {
				networkFile = args[0]
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return runNetwork(ctx, opts, networkFile, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite checkpoint database (required)")
	cmd.Flags().StringVar(&opts.SchemaDir, "schema", "", "CUE schema package directory")
	cmd.Flags().IntVar(&opts.Workers, "workers", engine.DefaultWorkers, "maximum concurrent invocations")
	cmd.Flags().IntVar(&opts.MaxRounds, "max-rounds", engine.DefaultMaxRounds, "maximum driver rounds")
	cmd.Flags().IntVar(&opts.MaxInvocations, "max-invocations", engine.DefaultMaxInvocations, "maximum invocations per instance")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runNetwork(parent context.Context, opts *RunOptions, networkFile string, w io.Writer) error {
	formatter := newFormatter(opts.RootOptions, w)

	wf, err := LoadWorkflow(opts.SchemaDir, opts.Functions...)
	if err != nil {
		return failLoad(formatter, err)
	}

	slog.Info("opening checkpoint", "path", opts.Database)
	st, err := store.Open(opts.Database)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStoreFailed, err.Error(), nil)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing checkpoint", "error", closeErr)
		}
	}()

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, stopping after in-flight invocations", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	var engineOpts []engine.Option
	if opts.IDGenerator != nil {
		engineOpts = append(engineOpts, engine.WithIDGenerator(opts.IDGenerator))
	}
	e, err := engine.Open(ctx, wf.Registry, wf.Library, st, engineOpts...)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStoreFailed, err.Error(), nil)
	}

	result := RunResult{Resumed: e.Defined()}
	if result.Resumed {
		slog.Info("resuming from checkpoint", "seq", e.Seq(), "dirty", len(e.ListDirtyInstances()))
		if networkFile != "" {
			slog.Info("checkpoint holds a network, ignoring network file", "file", networkFile)
		}
	} else {
		if networkFile == "" {
			return formatter.Fail(ExitCommandError, ErrCodeGeneric, "checkpoint is empty: a network file is required", nil)
		}
		if err := defineNetwork(ctx, e, networkFile); err != nil {
			var le *LoadError
			if errors.As(err, &le) {
				return formatter.Fail(ExitFailure, le.Code, le.Message, nil)
			}
			return formatter.Fail(ExitFailure, ErrCodeInvalidNetwork, err.Error(), nil)
		}
	}

	stats, runErr := e.RunUntilIdle(ctx, engine.DriverOptions{
		Workers:        opts.Workers,
		MaxRounds:      opts.MaxRounds,
		MaxInvocations: opts.MaxInvocations,
	})
	if stats != nil {
		result.Rounds = stats.Rounds
		result.Invocations = stats.Invocations
		if len(stats.Failed) > 0 {
			result.Failed = make(map[string]string, len(stats.Failed))
			for name, err := range stats.Failed {
				result.Failed[name] = err.Error()
			}
		}
	}
	result.Seq = e.Seq()
	result.Dirty = e.ListDirtyInstances()
	if result.Dirty == nil {
		result.Dirty = []string{}
	}

	if runErr != nil && ctx.Err() != nil && parent.Err() == nil {
		// Interrupted by a signal; the checkpoint is consistent.
		result.Interrupted = true
		runErr = nil
	}
	if runErr != nil {
		return formatter.Fail(ExitFailure, ErrCodeRunFailed, runErr.Error(), result)
	}
	if err := outputRunResult(formatter, result); err != nil {
		return err
	}
	if len(result.Failed) > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d instance(s) failed", len(result.Failed)))
	}
	return nil
}

// defineNetwork loads, validates and defines the network file.
func defineNetwork(ctx context.Context, e *engine.Engine, path string) error {
	def, err := network.LoadFile(path)
	if err != nil {
		return &LoadError{Code: ErrCodeLoadFailed, Message: err.Error()}
	}
	if errs := def.Validate(e.Library()); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, err := range errs {
			msgs[i] = err.Error()
		}
		return &LoadError{Code: ErrCodeInvalidNetwork, Message: strings.Join(msgs, "; ")}
	}
	if err := e.Define(ctx, def.Define(e.Library())); err != nil {
		return err
	}
	slog.Info("network defined", "file", path, "instances", len(def.Instances), "connections", len(def.Connections))
	return nil
}

func outputRunResult(formatter *OutputFormatter, result RunResult) error {
	if formatter.JSON() {
		return formatter.Success(result, "")
	}

	w := formatter.Writer
	if result.Resumed {
		fmt.Fprintln(w, "Resumed from checkpoint")
	}
	if result.Interrupted {
		fmt.Fprintf(w, "Interrupted after %d rounds, %d invocations (seq %d); run again to resume\n",
			result.Rounds, result.Invocations, result.Seq)
	} else {
		fmt.Fprintf(w, "Network idle after %d rounds, %d invocations (seq %d)\n",
			result.Rounds, result.Invocations, result.Seq)
	}
	if len(result.Failed) > 0 {
		names := make([]string, 0, len(result.Failed))
		for name := range result.Failed {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Fprintln(w, "Failed:")
		for _, name := range names {
			fmt.Fprintf(w, "  %s: %s\n", name, result.Failed[name])
		}
	}
	if len(result.Dirty) > 0 {
		fmt.Fprintf(w, "Dirty: %s\n", strings.Join(result.Dirty, ", "))
	}
	return nil
}
