package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/cpcflow/internal/engine"
	"github.com/roach88/cpcflow/internal/harness"
	"github.com/roach88/cpcflow/internal/store"
)

// DirtyOptions holds flags for the dirty command.
type DirtyOptions struct {
	*RootOptions
	Database  string
	SchemaDir string

	// Functions adds declarations beyond the builtins (for embedding and
	// testing).
	Functions []harness.SetupFunc
}

// DirtyInstance is one instance that still has to run.
type DirtyInstance struct {
	Name     string `json:"name"`
	Function string `json:"function"`
	Parent   string `json:"parent,omitempty"`
	Ran      bool   `json:"ran"`
}

// DirtyResult lists the dirty instances of a checkpoint.
type DirtyResult struct {
	Seq        int64           `json:"seq"`
	Checkpoint store.Stats     `json:"checkpoint"`
	Total      int             `json:"total"`
	Instances  []DirtyInstance `json:"instances"`
}

// NewDirtyCommand creates the dirty command.
func NewDirtyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DirtyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "dirty",
		Short: "List the instances of a checkpoint that still have to run",
		Long: `Open a checkpoint without running it and list its dirty instances in
creation order. The schema must declare every function the checkpoint
uses.

Example:
  cpcflow dirty --db ./run.db --schema ./schema`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return runDirty(ctx, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite checkpoint database (required)")
	cmd.Flags().StringVar(&opts.SchemaDir, "schema", "", "CUE schema package directory")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runDirty(ctx context.Context, opts *DirtyOptions, w io.Writer) error {
	formatter := newFormatter(opts.RootOptions, w)

	// Opening creates the file; a typo in --db should not.
	if _, err := os.Stat(opts.Database); os.IsNotExist(err) {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("database not found: %s", opts.Database), nil)
	}

	wf, err := LoadWorkflow(opts.SchemaDir, opts.Functions...)
	if err != nil {
		return failLoad(formatter, err)
	}
	st, err := store.Open(opts.Database)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStoreFailed, err.Error(), nil)
	}
	defer st.Close()

	e, err := engine.Open(ctx, wf.Registry, wf.Library, st)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStoreFailed, err.Error(), nil)
	}

	stats, err := st.Stats(ctx)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStoreFailed, err.Error(), nil)
	}

	result := DirtyResult{Seq: e.Seq(), Checkpoint: stats, Instances: []DirtyInstance{}}
	for _, name := range e.ListDirtyInstances() {
		inst, ok := e.Network().Instance(name)
		if !ok {
			continue
		}
		result.Instances = append(result.Instances, DirtyInstance{
			Name:     inst.Name,
			Function: inst.Function.ID,
			Parent:   inst.Parent,
			Ran:      inst.Ran,
		})
	}
	result.Total = len(result.Instances)

	if formatter.JSON() {
		return formatter.Success(result, "")
	}
	if result.Total == 0 {
		fmt.Fprintf(w, "No dirty instances (seq %d, %d commits)\n", result.Seq, stats.Commits)
		return nil
	}
	fmt.Fprintf(w, "%d dirty instance(s) of %d (seq %d, %d commits)\n", result.Total, stats.Instances, result.Seq, stats.Commits)
	for _, inst := range result.Instances {
		state := "never ran"
		if inst.Ran {
			state = "inputs changed"
		}
		fmt.Fprintf(w, "  %s (%s): %s\n", inst.Name, inst.Function, state)
	}
	return nil
}
