package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirty_MissingDatabase(t *testing.T) {
	out, err := execute(t, NewDirtyCommand(&RootOptions{Format: "text"}), "--db", filepath.Join(t.TempDir(), "none.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "database not found")
}

func TestDirty_ListsFailedInstance(t *testing.T) {
	db := filepath.Join(t.TempDir(), "run.db")
	ctx := context.Background()

	opts := runOpts("text", db)
	opts.SchemaDir = "testdata/external"
	require.Error(t, runNetwork(ctx, opts, "testdata/networks/external.hcl", &bytes.Buffer{}))

	buf := &bytes.Buffer{}
	dirty := &DirtyOptions{RootOptions: &RootOptions{Format: "text"}, Database: db, SchemaDir: "testdata/external"}
	require.NoError(t, runDirty(ctx, dirty, buf))
	assert.Contains(t, buf.String(), "1 dirty instance(s)")
	assert.Contains(t, buf.String(), "ext (external): never ran")
}

func TestDirty_CleanCheckpoint(t *testing.T) {
	db := filepath.Join(t.TempDir(), "run.db")
	ctx := context.Background()
	require.NoError(t, runNetwork(ctx, runOpts("text", db), "testdata/networks/powers.yaml", &bytes.Buffer{}))

	buf := &bytes.Buffer{}
	dirty := &DirtyOptions{RootOptions: &RootOptions{Format: "text"}, Database: db}
	require.NoError(t, runDirty(ctx, dirty, buf))
	assert.Contains(t, buf.String(), "No dirty instances")
}
