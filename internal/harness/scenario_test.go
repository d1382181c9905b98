package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestNetwork writes a one-instance network next to the scenario.
func createTestNetwork(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "net.yaml")
	content := `
instances:
  - name: p
    function: math::pi
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func writeScenario(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadScenario_ValidFile(t *testing.T) {
	dir := t.TempDir()
	createTestNetwork(t, dir)
	path := writeScenario(t, dir, `
name: test_scenario
description: "Test scenario for validation"
network: net.yaml
max_rounds: 7
assertions:
  - type: output
    endpoint: p:out.c
    equals: "3.141592653589793"
  - type: dirty_count
    count: 0
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "test_scenario", scenario.Name)
	assert.Equal(t, "Test scenario for validation", scenario.Description)
	assert.Equal(t, filepath.Join(dir, "net.yaml"), scenario.Network)
	assert.Equal(t, 7, scenario.MaxRounds)
	assert.Empty(t, scenario.Schema)
	require.Len(t, scenario.Assertions, 2)
	assert.Equal(t, AssertOutput, scenario.Assertions[0].Type)
	assert.Equal(t, "p:out.c", scenario.Assertions[0].Endpoint)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("/nonexistent/scenario.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_UnknownField(t *testing.T) {
	dir := t.TempDir()
	createTestNetwork(t, dir)
	path := writeScenario(t, dir, `
name: typo
network: net.yaml
assertion:
  - type: dirty_count
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name: "missing name",
			content: `
network: net.yaml
assertions: [{type: dirty_count}]
`,
			want: "name is required",
		},
		{
			name: "missing network",
			content: `
name: x
assertions: [{type: dirty_count}]
`,
			want: "network is required",
		},
		{
			name: "network not found",
			content: `
name: x
network: nope.yaml
assertions: [{type: dirty_count}]
`,
			want: "network file not found",
		},
		{
			name: "schema not found",
			content: `
name: x
network: net.yaml
schema: nope
assertions: [{type: dirty_count}]
`,
			want: "schema directory not found",
		},
		{
			name: "no assertions",
			content: `
name: x
network: net.yaml
`,
			want: "assertions list is required",
		},
		{
			name: "negative interrupt",
			content: `
name: x
network: net.yaml
interrupt_after_rounds: -1
assertions: [{type: dirty_count}]
`,
			want: "interrupt_after_rounds must not be negative",
		},
		{
			name: "output without endpoint",
			content: `
name: x
network: net.yaml
assertions: [{type: output, equals: "1"}]
`,
			want: "output requires endpoint",
		},
		{
			name: "children without instance",
			content: `
name: x
network: net.yaml
assertions: [{type: children, count: 1}]
`,
			want: "children requires instance",
		},
		{
			name: "unknown type",
			content: `
name: x
network: net.yaml
assertions: [{type: trace_contains}]
`,
			want: `unknown type "trace_contains"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			createTestNetwork(t, dir)
			_, err := LoadScenario(writeScenario(t, dir, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid scenario")
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenario_Testdata(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			_, err := LoadScenario(path)
			assert.NoError(t, err)
		})
	}
}
