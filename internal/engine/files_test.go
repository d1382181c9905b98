package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cpcflow/internal/graph"
	"github.com/roach88/cpcflow/internal/value"
	"github.com/roach88/cpcflow/internal/vtype"
)

// trajectoryLibrary declares "traj", which writes a new owned file on each
// run and publishes it on out.f. The first run also keeps it in record
// "keep"; a run with in.drop set deletes the record.
func trajectoryLibrary(t *testing.T, dir string) (*vtype.Registry, *Library) {
	t.Helper()
	r := vtype.NewRegistry()
	lib := NewLibrary()
	runs := 0
	body := func(_ context.Context, in Inputs, out Outputs) error {
		runs++
		path := filepath.Join(dir, fmt.Sprintf("run%d", runs))
		if err := os.WriteFile(path, []byte("frames"), 0o644); err != nil {
			return err
		}
		f, err := value.File(in.Registry().File(), path, true)
		if err != nil {
			return err
		}
		if runs == 1 {
			in.Persistence().Set("keep", f)
		}
		if d := in.GetInput("drop"); d != nil {
			if b, _ := d.AsBool(); b {
				in.Persistence().Set("keep", nil)
			}
		}
		return out.SetOut("f", f)
	}
	require.NoError(t, lib.Add(&graph.Function{
		ID:      "traj",
		Inputs:  listType(t, r, "traj.in", vtype.ListMember{Name: "drop", Type: r.Bool(), Optional: true}),
		Outputs: listType(t, r, "traj.out", vtype.ListMember{Name: "f", Type: r.File()}),
	}, body))
	return r, lib
}

func TestOwnedFile_KeptAliveByRecord(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	st := openStore(t)
	r, lib := trajectoryLibrary(t, dir)
	e := New(r, lib, st)
	require.NoError(t, e.Define(ctx, func(tx *graph.Tx) error {
		_, err := tx.AddInstance("trj", "traj")
		return err
	}))

	run1 := filepath.Join(dir, "run1")
	require.NoError(t, e.Invoke(ctx, "trj"))
	assert.Equal(t, 2, e.Network().Files().Refs(run1), "port and record")

	require.NoError(t, e.Invoke(ctx, "trj"))
	assert.FileExists(t, run1, "record still names the superseded output")
	assert.Equal(t, 1, e.Network().Files().Refs(run1))
	kept := e.Record("trj", "keep")
	require.NotNil(t, kept)
	path, _ := kept.AsString()
	assert.Equal(t, run1, path)

	// A resumed engine counts the record as a holder too.
	r2, lib2 := trajectoryLibrary(t, t.TempDir())
	resumed, err := Open(ctx, r2, lib2, st)
	require.NoError(t, err)
	assert.Equal(t, 1, resumed.Network().Files().Refs(run1))
	assert.Equal(t, 1, resumed.Network().Files().Refs(filepath.Join(dir, "run2")))
}

func TestOwnedFile_RemovedWhenRecordDeleted(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	r, lib := trajectoryLibrary(t, dir)
	e := New(r, lib, openStore(t))
	require.NoError(t, e.Define(ctx, func(tx *graph.Tx) error {
		_, err := tx.AddInstance("trj", "traj")
		return err
	}))
	require.NoError(t, e.Invoke(ctx, "trj"))

	tx := e.Network().Begin("")
	require.NoError(t, tx.AddConnection("", "trj:in.drop", value.Bool(r, true)))
	require.NoError(t, e.commit(ctx, "set-drop", tx, nil))
	require.NoError(t, e.Invoke(ctx, "trj"))

	assert.Nil(t, e.Record("trj", "keep"))
	assert.NoFileExists(t, filepath.Join(dir, "run1"))
	assert.FileExists(t, filepath.Join(dir, "run2"))
}

func TestOwnedFile_LiteralConnectionHoldsFile(t *testing.T) {
	ctx := context.Background()
	r := vtype.NewRegistry()
	lib := NewLibrary()
	require.NoError(t, lib.Add(&graph.Function{
		ID:     "sink",
		Inputs: listType(t, r, "sink.in", vtype.ListMember{Name: "f", Type: r.File()}),
	}, func(context.Context, Inputs, Outputs) error { return nil }))

	path := filepath.Join(t.TempDir(), "topol.top")
	require.NoError(t, os.WriteFile(path, []byte("atoms"), 0o644))
	f, err := value.File(r.File(), path, true)
	require.NoError(t, err)

	e := New(r, lib, openStore(t))
	require.NoError(t, e.Define(ctx, func(tx *graph.Tx) error {
		if _, err := tx.AddInstance("s", "sink"); err != nil {
			return err
		}
		return tx.AddConnection("", "s:in.f", f)
	}))
	assert.Equal(t, 2, e.Network().Files().Refs(path), "literal and input port")
}
