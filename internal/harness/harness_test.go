package harness

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cpcflow/internal/testutil"
)

func loadTestScenario(t *testing.T, name string) *Scenario {
	t.Helper()
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
	require.NoError(t, err)
	return s
}

func TestRun_Powers(t *testing.T) {
	scenario := loadTestScenario(t, "powers")

	// Regenerate with: go test ./internal/harness -run TestRun_Powers -update
	result, err := RunWithGolden(t, scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.False(t, result.Resumed)
	// One worker runs the dirty instances in creation order, and each sees
	// its upstream results already committed.
	assert.Equal(t, 1, result.Rounds)
	assert.Equal(t, 4, result.Invocations)
}

func TestRun_FEResume(t *testing.T) {
	scenario := loadTestScenario(t, "fe_resume")

	result, err := Run(context.Background(), scenario, WithFunctions(testutil.RegisterFE))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.True(t, result.Resumed)
	assert.Equal(t, 9, result.Rounds)

	require.Len(t, result.Snapshot.Instances, 6)
	fe := result.Snapshot.Instances[0]
	assert.Equal(t, "fe", fe.Name)
	assert.Contains(t, fe.Out["delta_f"], "12.5")
	for _, child := range result.Snapshot.Instances[1:] {
		assert.Equal(t, "fe", child.Parent)
		assert.Equal(t, "fe_iter", child.Function)
		assert.False(t, child.Dirty)
	}
}

func TestRun_FEUnknownWithoutSetup(t *testing.T) {
	scenario := loadTestScenario(t, "fe_resume")

	_, err := Run(context.Background(), scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid network")
}

func TestRun_ExternalFunction(t *testing.T) {
	scenario := loadTestScenario(t, "external")

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	require.Len(t, result.Snapshot.Instances, 2)
	ext := result.Snapshot.Instances[0]
	assert.Equal(t, "ext", ext.Name)
	assert.True(t, ext.Dirty)
	assert.True(t, ext.Failed)
	assert.Nil(t, ext.Out)
}

func TestRun_FailedAssertions(t *testing.T) {
	scenario := loadTestScenario(t, "powers")
	scenario.Assertions = []Assertion{
		{Type: AssertOutput, Endpoint: "two:out.c", Equals: "1000"},
		{Type: AssertUnset, Endpoint: "root:out.c"},
		{Type: AssertChildren, Instance: "two", Count: 1},
		{Type: AssertFailed, Instance: "sq"},
		{Type: AssertOutput, Endpoint: "nobody:out.c", Equals: "1"},
		{Type: AssertDirtyCount, Count: 0},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 5)
	assert.Contains(t, result.Errors[0], "Actual: 1024")
	assert.Contains(t, result.Errors[1], "root:out.c unset")
	assert.Contains(t, result.Errors[2], "1 children of two")
	assert.Contains(t, result.Errors[3], "no failure recorded")
	assert.Contains(t, result.Errors[4], "instance nobody does not exist")
}

func TestRun_Deterministic(t *testing.T) {
	scenario := loadTestScenario(t, "powers")

	first, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	second, err := Run(context.Background(), scenario)
	require.NoError(t, err)

	a, err := MarshalSnapshot(first.Snapshot)
	require.NoError(t, err)
	b, err := MarshalSnapshot(second.Snapshot)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestRun_CycleRejected(t *testing.T) {
	dir := t.TempDir()
	net := filepath.Join(dir, "loop.yaml")
	require.NoError(t, os.WriteFile(net, []byte(`
instances:
  - name: a
    function: math::sqrt
  - name: b
    function: math::sqrt
connections:
  - from: a:out.c
    to: b:in.a
  - from: b:out.c
    to: a:in.a
`), 0644))

	scenario := &Scenario{
		Name:       "loop",
		Network:    net,
		Assertions: []Assertion{{Type: AssertDirtyCount}},
	}
	_, err := Run(context.Background(), scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dependency cycle")
}

func TestResult_AddError(t *testing.T) {
	r := NewResult()
	assert.True(t, r.Pass)
	assert.Empty(t, r.Errors)

	r.AddError("boom")
	assert.False(t, r.Pass)
	assert.Equal(t, []string{"boom"}, r.Errors)
}
