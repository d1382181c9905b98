package vtype

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cpcflow/internal/itempath"
)

// =============================================================================
// Fixtures
// =============================================================================

func mustRegister(t *testing.T, r *Registry, name string, parent *Type, schema Schema) *Type {
	t.Helper()
	tp, err := r.Register(name, parent, schema)
	require.NoError(t, err)
	return tp
}

// =============================================================================
// Registration
// =============================================================================

func TestNewRegistry_Builtins(t *testing.T) {
	r := NewRegistry()

	for _, name := range []string{"value", "null", "bool", "int", "float", "string", "file", "list", "array", "dict"} {
		tp, ok := r.Lookup(name)
		require.True(t, ok, "builtin %s missing", name)
		assert.True(t, tp.IsBuiltin())
	}
	assert.Nil(t, r.Root().Parent())
	assert.Equal(t, KindArray, r.Array().Kind())
	assert.Equal(t, r.Root(), r.Array().Elem())
}

func TestRegister_InheritsKind(t *testing.T) {
	r := NewRegistry()
	energy := mustRegister(t, r, "energy", r.Float(), Schema{})

	assert.Equal(t, KindFloat, energy.Kind())
	assert.False(t, energy.IsBuiltin())
	assert.Equal(t, r.Float(), energy.BaseType())
}

func TestRegister_DuplicateType(t *testing.T) {
	r := NewRegistry()
	mustRegister(t, r, "energy", r.Float(), Schema{})

	_, err := r.Register("energy", r.Float(), Schema{})
	require.Error(t, err)
	assert.True(t, HasCode(err, ErrCodeDuplicateType))

	_, err = r.Register("int", r.Root(), Schema{})
	assert.True(t, HasCode(err, ErrCodeDuplicateType))
}

func TestRegister_UnknownParent(t *testing.T) {
	r := NewRegistry()
	other := NewRegistry()

	_, err := r.Register("orphan", nil, Schema{})
	assert.True(t, HasCode(err, ErrCodeUnknownParent))

	_, err = r.Register("foreign", other.Int(), Schema{})
	assert.True(t, HasCode(err, ErrCodeUnknownParent))
}

func TestRegister_InvalidSchema(t *testing.T) {
	r := NewRegistry()

	_, err := r.Register("bad", r.Int(), Schema{Members: []ListMember{{Name: "x", Type: r.Int()}}})
	assert.True(t, HasCode(err, ErrCodeInvalidSchema))

	_, err = r.Register("bad2", r.List(), Schema{Elem: r.Int()})
	assert.True(t, HasCode(err, ErrCodeInvalidSchema))

	_, err = r.Register("bad3", r.List(), Schema{Members: []ListMember{
		{Name: "x", Type: r.Int()},
		{Name: "x", Type: r.Float()},
	}})
	assert.True(t, HasCode(err, ErrCodeInvalidSchema))
}

func TestRegister_InvalidOverride(t *testing.T) {
	r := NewRegistry()
	energy := mustRegister(t, r, "energy", r.Float(), Schema{})
	base := mustRegister(t, r, "base", r.List(), Schema{Members: []ListMember{{Name: "e", Type: r.Float()}}})

	// Covariant re-declaration is allowed.
	narrowed := mustRegister(t, r, "narrowed", base, Schema{Members: []ListMember{{Name: "e", Type: energy}}})
	m, err := ResolveMember(narrowed, "e")
	require.NoError(t, err)
	assert.Equal(t, energy, m.Type)

	// The parent is untouched by the override.
	m, err = ResolveMember(base, "e")
	require.NoError(t, err)
	assert.Equal(t, r.Float(), m.Type)

	// Re-typing to a non-subtype is rejected.
	_, err = r.Register("broken", base, Schema{Members: []ListMember{{Name: "e", Type: r.StringType()}}})
	assert.True(t, HasCode(err, ErrCodeInvalidOverride))

	floats := mustRegister(t, r, "floats", r.Array(), Schema{Elem: r.Float()})
	_, err = r.Register("ints", floats, Schema{Elem: r.Int()})
	assert.True(t, HasCode(err, ErrCodeInvalidOverride))
}

// =============================================================================
// Subtype relation
// =============================================================================

func TestIsSubtype_ReflexiveAndTransitive(t *testing.T) {
	r := NewRegistry()
	energy := mustRegister(t, r, "energy", r.Float(), Schema{})
	freeEnergy := mustRegister(t, r, "free_energy", energy, Schema{})
	base := mustRegister(t, r, "base", r.List(), Schema{})
	mustRegister(t, r, "derived", base, Schema{})

	all := r.Types()
	for _, a := range all {
		assert.True(t, IsSubtype(a, a), "%s must be a subtype of itself", a.Name())
		assert.True(t, IsSubtype(a, r.Root()), "%s must be a subtype of value", a.Name())
	}

	for _, t1 := range all {
		for _, t2 := range all {
			for _, t3 := range all {
				if IsSubtype(t1, t2) && IsSubtype(t2, t3) {
					assert.True(t, IsSubtype(t1, t3), "transitivity %s <: %s <: %s", t1.Name(), t2.Name(), t3.Name())
				}
			}
		}
	}

	assert.True(t, freeEnergy.IsSubtype(r.Float()))
	assert.False(t, r.Float().IsSubtype(energy))
	assert.False(t, r.Int().IsSubtype(r.Float()))
	assert.False(t, IsSubtype(nil, r.Root()))
}

func TestIsSubtype_IntToFloatOnlyWhenRegistered(t *testing.T) {
	r := NewRegistry()
	assert.False(t, r.Int().IsSubtype(r.Float()))

	count := mustRegister(t, r, "count", r.Float(), Schema{})
	assert.True(t, count.IsSubtype(r.Float()))
}

func TestIsSubtype_AnonymousContainers(t *testing.T) {
	r := NewRegistry()
	energy := mustRegister(t, r, "energy", r.Float(), Schema{})
	energies := mustRegister(t, r, "energies", r.Array(), Schema{Elem: energy})

	floats, err := r.NewArray(r.Float())
	require.NoError(t, err)
	strs, err := r.NewArray(r.StringType())
	require.NoError(t, err)

	assert.True(t, energies.IsSubtype(floats))
	assert.False(t, energies.IsSubtype(strs))
	assert.True(t, floats.IsSubtype(r.Array()))

	point := mustRegister(t, r, "point", r.List(), Schema{Members: []ListMember{
		{Name: "x", Type: r.Float()},
		{Name: "y", Type: r.Float()},
		{Name: "label", Type: r.StringType()},
	}})
	xy, err := r.NewList(ListMember{Name: "x", Type: r.Float()}, ListMember{Name: "y", Type: r.Float()})
	require.NoError(t, err)
	xz, err := r.NewList(ListMember{Name: "x", Type: r.Float()}, ListMember{Name: "z", Type: r.Float()})
	require.NoError(t, err)

	assert.True(t, point.IsSubtype(xy))
	assert.False(t, point.IsSubtype(xz))
}

// =============================================================================
// Member resolution
// =============================================================================

func TestResolveMember_Inheritance(t *testing.T) {
	r := NewRegistry()
	base := mustRegister(t, r, "Base", r.List(), Schema{Members: []ListMember{{Name: "x", Type: r.Int()}}})
	derived := mustRegister(t, r, "Derived", base, Schema{Members: []ListMember{{Name: "y", Type: r.StringType()}}})

	x, err := ResolveMember(derived, "x")
	require.NoError(t, err)
	assert.Equal(t, r.Int(), x.Type)

	y, err := ResolveMember(derived, "y")
	require.NoError(t, err)
	assert.Equal(t, r.StringType(), y.Type)

	_, err = ResolveMember(base, "y")
	assert.True(t, HasCode(err, ErrCodeNoSuchMember))

	_, err = ResolveMember(r.Int(), "x")
	assert.True(t, HasCode(err, ErrCodeNoSuchMember))

	names := []string{}
	for _, m := range Members(derived) {
		names = append(names, m.Name)
	}
	assert.Equal(t, []string{"x", "y"}, names)
	assert.Len(t, derived.OwnMembers(), 1)
}

func TestMembers_OverrideKeepsPosition(t *testing.T) {
	r := NewRegistry()
	energy := mustRegister(t, r, "energy", r.Float(), Schema{})
	base := mustRegister(t, r, "base", r.List(), Schema{Members: []ListMember{
		{Name: "a", Type: r.Float()},
		{Name: "b", Type: r.Int()},
	}})
	derived := mustRegister(t, r, "derived", base, Schema{Members: []ListMember{
		{Name: "c", Type: r.Int()},
		{Name: "a", Type: energy, Optional: true},
	}})

	members := Members(derived)
	require.Len(t, members, 3)
	assert.Equal(t, "a", members[0].Name)
	assert.Equal(t, energy, members[0].Type)
	assert.True(t, members[0].Optional)
	assert.Equal(t, "b", members[1].Name)
	assert.Equal(t, "c", members[2].Name)
}

// =============================================================================
// Literals
// =============================================================================

func TestParseLiteral(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		tp   *Type
		in   string
		want any
	}{
		{r.Bool(), "true", true},
		{r.Bool(), "TRUE", true},
		{r.Bool(), "1", true},
		{r.Bool(), "False", false},
		{r.Bool(), "0", false},
		{r.Int(), "42", int64(42)},
		{r.Int(), "-7", int64(-7)},
		{r.Float(), "2.5", 2.5},
		{r.Float(), "1e3", 1000.0},
		{r.StringType(), "vdwq", "vdwq"},
		{r.File(), "/tmp/conf.gro", "/tmp/conf.gro"},
		{r.Null(), "null", nil},
	}
	for _, tt := range tests {
		t.Run(tt.tp.Name()+"/"+tt.in, func(t *testing.T) {
			got, err := ParseLiteral(tt.tp, tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseLiteral_Errors(t *testing.T) {
	r := NewRegistry()

	for _, tc := range []struct {
		tp *Type
		in string
	}{
		{r.Bool(), "yes"},
		{r.Int(), "4.5"},
		{r.Float(), "abc"},
		{r.List(), "x"},
		{r.Array(), "[]"},
		{r.Root(), "1"},
	} {
		_, err := ParseLiteral(tc.tp, tc.in)
		assert.True(t, HasCode(err, ErrCodeLiteralParse), "%s %q", tc.tp.Name(), tc.in)
	}
}

func TestFormatLiteral_Inverse(t *testing.T) {
	r := NewRegistry()
	for _, tc := range []struct {
		tp *Type
		in string
	}{
		{r.Bool(), "true"},
		{r.Int(), "-12"},
		{r.Float(), "0.25"},
		{r.StringType(), "none"},
	} {
		v, err := ParseLiteral(tc.tp, tc.in)
		require.NoError(t, err)
		s, err := FormatLiteral(tc.tp, v)
		require.NoError(t, err)
		assert.Equal(t, tc.in, s)
	}
}

// =============================================================================
// Path typing
// =============================================================================

func TestTypeAt(t *testing.T) {
	r := NewRegistry()
	result := mustRegister(t, r, "fe_result", r.List(), Schema{Members: []ListMember{
		{Name: "value", Type: r.Float()},
		{Name: "error", Type: r.Float()},
	}})
	row, err := r.NewArray(result)
	require.NoError(t, err)
	table, err := r.NewArray(row)
	require.NoError(t, err)
	in := mustRegister(t, r, "fe_inputs", r.List(), Schema{Members: []ListMember{
		{Name: "dG_array", Type: table},
		{Name: "tags", Type: mustRegister(t, r, "tags", r.Dict(), Schema{Elem: r.StringType()})},
	}})

	got, err := TypeAt(in, itempath.MustParse("dG_array[2][0].value"))
	require.NoError(t, err)
	assert.Equal(t, r.Float(), got)

	got, err = TypeAt(in, itempath.MustParse("dG_array[+]"))
	require.NoError(t, err)
	assert.Equal(t, row, got)

	got, err = TypeAt(in, itempath.MustParse("tags.mdp"))
	require.NoError(t, err)
	assert.Equal(t, r.StringType(), got)

	got, err = TypeAt(in, nil)
	require.NoError(t, err)
	assert.Equal(t, in, got)

	_, err = TypeAt(in, itempath.MustParse("dG_array[0].value"))
	assert.True(t, HasCode(err, ErrCodeIndexMismatch))

	_, err = TypeAt(in, itempath.MustParse("missing"))
	require.True(t, HasCode(err, ErrCodeNoSuchMember))
	assert.Contains(t, err.Error(), "path=missing")
}
