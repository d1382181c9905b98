package engine_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cpcflow/internal/engine"
	"github.com/roach88/cpcflow/internal/graph"
	"github.com/roach88/cpcflow/internal/itempath"
	"github.com/roach88/cpcflow/internal/store"
	"github.com/roach88/cpcflow/internal/testutil"
	"github.com/roach88/cpcflow/internal/value"
	"github.com/roach88/cpcflow/internal/vtype"
)

func openFE(t *testing.T, path, prefix string) (*engine.Engine, *store.Store) {
	t.Helper()
	reg, lib, err := testutil.FEWorkflow()
	require.NoError(t, err)
	st, err := store.Open(path)
	require.NoError(t, err)
	e, err := engine.Open(context.Background(), reg, lib, st,
		engine.WithIDGenerator(testutil.NewSequentialIDGenerator(prefix)))
	require.NoError(t, err)
	return e, st
}

func deltaF(t *testing.T, e *engine.Engine) (float64, float64) {
	t.Helper()
	inst, ok := e.Network().Instance("fe")
	require.True(t, ok)
	get := func(path string) float64 {
		v, err := value.Get(inst.Ports[graph.DirOut], itempath.MustParse(path))
		require.NoError(t, err)
		f, ok := v.AsFloat()
		require.True(t, ok)
		return f
	}
	return get("delta_f.value"), get("delta_f.error")
}

// =============================================================================
// Self-expanding growth
// =============================================================================

func TestRunUntilIdle_FEGrowth(t *testing.T) {
	ctx := context.Background()
	e, st := openFE(t, filepath.Join(t.TempDir(), "fe.db"), "run")
	defer st.Close()

	require.NoError(t, e.Define(ctx, testutil.DefineFE(e.Registry(), testutil.FEPrecision)))

	stats, err := e.RunUntilIdle(ctx, engine.DriverOptions{Workers: 2})
	require.NoError(t, err)
	assert.Empty(t, stats.Failed)
	assert.Equal(t, 9, stats.Rounds)
	assert.Equal(t, 2*testutil.FEFinalRuns, stats.Invocations)

	children := e.Network().Children("fe")
	assert.Len(t, children, testutil.FEFinalRuns)
	assert.Equal(t, "fe/iter_0", children[0])

	mean, stderr := deltaF(t, e)
	assert.InDelta(t, 12.5, mean, 1e-9)
	assert.InDelta(t, 0.25, stderr, 1e-9)

	nruns, _ := e.Record("fe", "nruns").AsInt()
	assert.Equal(t, int64(testutil.FEFinalRuns), nruns)
	assert.Empty(t, e.ListDirtyInstances())
}

func TestResume_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "fe.db")

	first, st := openFE(t, path, "s1")
	require.NoError(t, first.Define(ctx, testutil.DefineFE(first.Registry(), testutil.FEPrecision)))
	stats1, err := first.RunUntilIdle(ctx, engine.DriverOptions{MaxRounds: 4})
	require.Error(t, err, "four rounds cannot settle the network")
	assert.Equal(t, 5, stats1.Invocations)

	dirtyBefore := first.ListDirtyInstances()
	before := first.Network().Instances()
	seqBefore := first.Seq()
	require.NotEmpty(t, dirtyBefore)
	require.NoError(t, st.Close())

	second, st2 := openFE(t, path, "s2")
	defer st2.Close()

	assert.Equal(t, dirtyBefore, second.ListDirtyInstances())
	assert.Equal(t, seqBefore, second.Seq())
	assert.True(t, second.Defined())

	after := second.Network().Instances()
	require.Len(t, after, len(before))
	for i, inst := range before {
		got := after[i]
		assert.Equal(t, inst.Name, got.Name)
		assert.Equal(t, inst.Seq, got.Seq)
		assert.Equal(t, inst.Ran, got.Ran)
		assert.Equal(t, len(inst.Observed), len(got.Observed))
		for k, v := range inst.Observed {
			assert.Equal(t, v, got.Observed[k], "%s observed %s", inst.Name, k)
		}
		for _, d := range graph.Directions {
			assert.True(t, value.Equal(inst.Ports[d], got.Ports[d]), "%s:%s", inst.Name, d)
			assert.Equal(t, inst.Ports[d].Version(), got.Ports[d].Version(), "%s:%s version", inst.Name, d)
		}
	}

	stats2, err := second.RunUntilIdle(ctx, engine.DriverOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2*testutil.FEFinalRuns-stats1.Invocations, stats2.Invocations)
	assert.Len(t, second.Network().Children("fe"), testutil.FEFinalRuns)

	mean, _ := deltaF(t, second)
	assert.InDelta(t, 12.5, mean, 1e-9)

	err = second.Define(ctx, testutil.DefineFE(second.Registry(), 1))
	assert.Error(t, err, "a resumed network is already defined")
}

func TestResume_SurfacesCorruptCheckpoint(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "fe.db")

	first, st := openFE(t, path, "s1")
	require.NoError(t, first.Define(ctx, testutil.DefineFE(first.Registry(), testutil.FEPrecision)))
	require.NoError(t, st.Close())

	// A type the new registry does not know stands in for a damaged row.
	st, err := store.Open(path)
	require.NoError(t, err)
	_, err = st.Commit(ctx, store.Batch{
		InvocationID: "corrupt",
		Seq:          99,
		Records:      []store.Record{{Instance: "fe", Key: "x", Value: []byte(`{"t":"no_such_type","n":0,"v":1}`)}},
	})
	require.NoError(t, err)
	require.NoError(t, st.Close())

	reg, lib, err := testutil.FEWorkflow()
	require.NoError(t, err)
	st, err = store.Open(path)
	require.NoError(t, err)
	defer st.Close()

	_, err = engine.Open(ctx, reg, lib, st)
	require.Error(t, err)
	assert.True(t, store.IsPersistenceError(err))
}

// =============================================================================
// Driver behaviour
// =============================================================================

func fanoutLibrary(t *testing.T, calls *atomic.Int32, failing string) (*vtype.Registry, *engine.Library) {
	t.Helper()
	r := vtype.NewRegistry()
	lib := engine.NewLibrary()
	require.NoError(t, lib.Add(&graph.Function{ID: "leaf"}, func(_ context.Context, in engine.Inputs, _ engine.Outputs) error {
		calls.Add(1)
		if in.Instance() == failing {
			return errors.New("leaf failed")
		}
		return nil
	}))
	return r, lib
}

func TestRunUntilIdle_FailedInstancesNotRetried(t *testing.T) {
	ctx := context.Background()
	var calls atomic.Int32
	r, lib := fanoutLibrary(t, &calls, "leaf_3")
	e := engine.New(r, lib, nil)
	require.NoError(t, e.Define(ctx, func(tx *graph.Tx) error {
		for i := 0; i < 8; i++ {
			if _, err := tx.AddInstance(fmt.Sprintf("leaf_%d", i), "leaf"); err != nil {
				return err
			}
		}
		return nil
	}))

	stats, err := e.RunUntilIdle(ctx, engine.DriverOptions{Workers: 3})
	require.NoError(t, err)
	assert.Equal(t, int32(8), calls.Load())
	assert.Equal(t, 8, stats.Invocations)
	assert.Equal(t, 1, stats.Rounds)
	require.Contains(t, stats.Failed, "leaf_3")
	assert.True(t, engine.IsApplicationError(stats.Failed["leaf_3"]))
	assert.Equal(t, []string{"leaf_3"}, e.ListDirtyInstances())
}

func TestRunUntilIdle_MaxInvocations(t *testing.T) {
	ctx := context.Background()
	reg, lib, err := testutil.FEWorkflow()
	require.NoError(t, err)
	e := engine.New(reg, lib, nil)
	require.NoError(t, e.Define(ctx, testutil.DefineFE(reg, testutil.FEPrecision)))

	stats, err := e.RunUntilIdle(ctx, engine.DriverOptions{MaxInvocations: 2})
	require.NoError(t, err)
	require.Contains(t, stats.Failed, "fe")
	assert.True(t, engine.IsStepsExceededError(stats.Failed["fe"]))
	assert.True(t, e.IsDirty("fe"))
}

func TestRunUntilIdle_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reg, lib, err := testutil.FEWorkflow()
	require.NoError(t, err)
	e := engine.New(reg, lib, nil)
	require.NoError(t, e.Define(context.Background(), testutil.DefineFE(reg, testutil.FEPrecision)))

	_, err = e.RunUntilIdle(ctx, engine.DriverOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}
