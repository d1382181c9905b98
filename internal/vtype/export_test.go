package vtype

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exportFixture registers a small free-energy schema covering inheritance,
// inline schemas, descriptions, file metadata and implicit types.
func exportFixture(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()

	base := mustRegister(t, r, "fe_base", r.List(), Schema{Members: []ListMember{
		{Name: "x", Type: r.Int()},
	}})
	mustRegister(t, r, "fe_derived", base, Schema{Members: []ListMember{
		{Name: "y", Type: r.StringType(), Optional: true},
	}})

	samples, err := r.NewArray(r.Float())
	require.NoError(t, err)
	result := mustRegister(t, r, "fe_result", r.List(), Schema{
		Description: "A free energy estimate",
		Members: []ListMember{
			{Name: "value", Type: r.Float(), Description: "Free energy difference in kJ/mol"},
			{Name: "error", Type: r.Float(), Optional: true, Description: "Standard error of value"},
			{Name: "samples", Type: samples},
			{Name: "label", Type: r.StringType(), Const: true},
		},
	})
	mustRegister(t, r, "fe_results", r.Array(), Schema{Elem: result})
	mustRegister(t, r, "tags", r.Dict(), Schema{Elem: r.StringType()})
	traj := mustRegister(t, r, "trajectory", r.File(), Schema{
		Description: "Compressed MD trajectory",
		Extension:   ".xtc",
		MimeType:    "application/x-xtc",
	})
	mustRegister(t, r, "md_run", r.List(), Schema{Members: []ListMember{
		{Name: "traj", Type: traj, Description: "Frames written by the run"},
		{Name: "steps", Type: r.Int()},
	}})
	mustRegister(t, r, "scratch", r.List(), Schema{Implicit: true})

	return r
}

func TestExportJSON_Golden(t *testing.T) {
	r := exportFixture(t)

	data, err := r.ExportJSON()
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "schema_export", data)
}

func TestExport_SkipsBuiltinAndImplicit(t *testing.T) {
	r := exportFixture(t)

	names := []string{}
	for _, doc := range r.Export().Types {
		names = append(names, doc.Name)
	}
	assert.Equal(t, []string{"fe_base", "fe_derived", "fe_result", "fe_results", "tags", "trajectory", "md_run"}, names)

	empty := NewRegistry().Export()
	assert.NotNil(t, empty.Types)
	assert.Empty(t, empty.Types)
}

func TestFileMetadata(t *testing.T) {
	r := exportFixture(t)
	traj, ok := r.Lookup("trajectory")
	require.True(t, ok)
	assert.Equal(t, "xtc", traj.Extension())
	assert.Equal(t, "application/x-xtc", traj.MimeType())
	assert.Equal(t, "Compressed MD trajectory", traj.Description())

	// Derived file types inherit the metadata.
	sub := mustRegister(t, r, "water_traj", traj, Schema{})
	assert.Equal(t, "xtc", sub.Extension())
	assert.Equal(t, "application/x-xtc", sub.MimeType())
	assert.Empty(t, sub.Description())

	_, err := r.Register("bad_ext", r.Int(), Schema{Extension: "dat"})
	assert.True(t, HasCode(err, ErrCodeInvalidSchema))
}

func TestContainsKind(t *testing.T) {
	r := exportFixture(t)
	lookup := func(name string) *Type {
		tp, ok := r.Lookup(name)
		require.True(t, ok, name)
		return tp
	}
	runs, err := r.NewArray(lookup("md_run"))
	require.NoError(t, err)
	byName, err := r.NewDict(runs)
	require.NoError(t, err)

	tests := []struct {
		typ  *Type
		want bool
	}{
		{lookup("trajectory"), true},
		{lookup("md_run"), true},
		{runs, true},
		{byName, true},
		{lookup("fe_result"), false},
		{lookup("fe_results"), false},
		{r.File(), true},
		{r.Int(), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ContainsKind(tt.typ, KindFile), tt.typ.DisplayName())
	}
	assert.True(t, ContainsKind(lookup("fe_result"), KindFloat))
	assert.False(t, ContainsKind(nil, KindFile))
}

func TestFromDoc_KeepsMemberDescriptions(t *testing.T) {
	r := exportFixture(t)
	inline, err := r.NewList(ListMember{Name: "x", Type: r.Int(), Description: "offset"})
	require.NoError(t, err)

	raw, err := RefOf(inline)
	require.NoError(t, err)
	back, err := r.ResolveRef(raw)
	require.NoError(t, err)
	m, err := ResolveMember(back, "x")
	require.NoError(t, err)
	assert.Equal(t, "offset", m.Description)
}

func TestRefOf_RoundTrip(t *testing.T) {
	r := exportFixture(t)
	result, ok := r.Lookup("fe_result")
	require.True(t, ok)

	raw, err := RefOf(result)
	require.NoError(t, err)
	assert.JSONEq(t, `"fe_result"`, string(raw))

	back, err := r.ResolveRef(raw)
	require.NoError(t, err)
	assert.Same(t, result, back)

	row, err := r.NewArray(result)
	require.NoError(t, err)
	raw, err = RefOf(row)
	require.NoError(t, err)

	rebuilt, err := r.ResolveRef(raw)
	require.NoError(t, err)
	assert.True(t, rebuilt.IsAnonymous())
	assert.Equal(t, KindArray, rebuilt.Kind())
	assert.Same(t, result, rebuilt.Elem())
	assert.True(t, rebuilt.IsSubtype(row))
	assert.True(t, row.IsSubtype(rebuilt))
}

func TestResolveRef_Errors(t *testing.T) {
	r := NewRegistry()

	_, err := r.ResolveRef(json.RawMessage(`"nope"`))
	assert.True(t, HasCode(err, ErrCodeUnknownType))

	_, err = r.ResolveRef(json.RawMessage(`42`))
	assert.True(t, HasCode(err, ErrCodeUnknownType))

	_, err = r.FromDoc(TypeDoc{Base: "int"})
	assert.True(t, HasCode(err, ErrCodeInvalidSchema))
}
