package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_ValidNetwork(t *testing.T) {
	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "text"}), "testdata/networks/powers.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Valid")
}

func TestValidate_SchemaAndNetworkJSON(t *testing.T) {
	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "json"}),
		"--schema", "testdata/external", "testdata/networks/external.hcl")
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
}

func TestValidate_NetworkErrors(t *testing.T) {
	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "json"}), "testdata/networks/loop.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
		Error  *CLIError        `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Valid)

	require.Len(t, resp.Data.Errors, 2)
	assert.Equal(t, ErrCodeInvalidNetwork, resp.Data.Errors[0].Code)
	assert.Contains(t, resp.Data.Errors[0].Message, `instance "nobody" is not declared`)
	assert.Equal(t, ErrCodeCycle, resp.Data.Errors[1].Code)
	assert.Equal(t, "dependency cycle: a -> b -> a", resp.Data.Errors[1].Message)

	require.Len(t, resp.Data.Cycles, 1)
	assert.Equal(t, []string{"a", "b", "a"}, resp.Data.Cycles[0].Path)
}

func TestValidate_UnknownFunctionWithoutSchema(t *testing.T) {
	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "text"}), "testdata/networks/external.hcl")
	require.Error(t, err)
	assert.Contains(t, out, "✗ Validation failed")
	assert.Contains(t, out, `unknown function "external"`)
}

func TestValidate_SchemaCollectsAll(t *testing.T) {
	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "json"}), "--schema", "testdata/badschema")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Data ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))

	var codes []string
	for _, issue := range resp.Data.Errors {
		assert.Equal(t, "schema", issue.Source)
		assert.Positive(t, issue.Line)
		codes = append(codes, issue.Code)
	}
	assert.Equal(t, []string{"E120", "E125", "E124"}, codes)
}

func TestValidate_UnresolvedType(t *testing.T) {
	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "text"}), "--schema", "testdata/unresolved")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, ErrCodeInvalidSchema)
	assert.Contains(t, out, `unknown type "no_such_type"`)
}

func TestValidate_CommandErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		code string
	}{
		{"nothing to validate", nil, ErrCodeGeneric},
		{"missing schema dir", []string{"--schema", "/nonexistent/schema"}, ErrCodeNotFound},
		{"schema dir without cue files", []string{"--schema", "testdata/networks"}, ErrCodeNoFiles},
		{"missing network file", []string{"/nonexistent/network.yaml"}, ErrCodeLoadFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, NewValidateCommand(&RootOptions{Format: "text"}), tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, out, "Error ["+tt.code+"]")
		})
	}
}
