package itempath

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Steps(t *testing.T) {
	tests := []struct {
		in   string
		want Path
	}{
		{"a", Of(Field("a"))},
		{"a.b", Of(Field("a"), Field("b"))},
		{"dG_array[3][0].value", Of(Field("dG_array"), Index(3), Index(0), Field("value"))},
		{"endpoint_array[+]", Of(Field("endpoint_array"), AppendStep())},
		{"[0].x", Of(Index(0), Field("x"))},
		{"[10]", Of(Index(10))},
		{"grompp.mdp", Of(Field("grompp"), Field("mdp"))},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse_RoundTrip(t *testing.T) {
	valid := []string{
		"a",
		"a.b.c",
		"a[0]",
		"a[12][3]",
		"a[1].b[2].c",
		"a[+]",
		"a.b[+]",
		"[0]",
		"[4].name",
		"dG_array[3][0].value",
		"settings_array[0].name",
		"with-dash.under_score",
	}

	for _, s := range valid {
		t.Run(s, func(t *testing.T) {
			p, err := Parse(s)
			require.NoError(t, err)
			assert.Equal(t, s, Format(p), "format(parse(s)) must equal s")
		})
	}
}

func TestParseSuffix_RoundTrip(t *testing.T) {
	valid := []string{"", ".a", ".a.b", "[0]", "[3].x", ".a[1][+]"}

	for _, s := range valid {
		t.Run(s, func(t *testing.T) {
			p, err := ParseSuffix(s)
			require.NoError(t, err)
			assert.Equal(t, s, p.Suffix())
		})
	}
}

func TestParse_SyntaxErrors(t *testing.T) {
	invalid := map[string]string{
		"":          "empty path",
		"a[":        "unclosed square bracket",
		"a[1":       "unclosed square bracket",
		"a[x]":      "not an integer",
		"a[]":       "empty brackets",
		"a[01]":     "not an integer",
		"a[-1]":     "not an integer",
		"a[ 1]":     "not an integer",
		"a.":        "empty field name",
		".a":        "empty field name",
		"a..b":      "empty field name",
		"a]":        "unexpected ']'",
		"a[1]b":     "unexpected",
		"a[+].b":    "last step",
		"a[+][0]":   "last step",
		"a[1][[2]]": "not an integer",
	}

	for in, reason := range invalid {
		t.Run(in, func(t *testing.T) {
			_, err := Parse(in)
			require.Error(t, err)

			var se *SyntaxError
			require.True(t, errors.As(err, &se), "expected *SyntaxError, got %T", err)
			assert.Contains(t, se.Error(), reason)
		})
	}
}

func TestParseSuffix_RequiresLeadingSeparator(t *testing.T) {
	_, err := ParseSuffix("a.b")
	require.Error(t, err)
}

func TestPath_Helpers(t *testing.T) {
	p := MustParse("a[1].b")

	assert.False(t, p.HasAppend())
	assert.True(t, p.Append(AppendStep()).HasAppend())
	assert.True(t, p.HasPrefix(MustParse("a[1]")))
	assert.False(t, p.HasPrefix(MustParse("a[2]")))
	assert.True(t, p.Equal(MustParse("a[1].b")))

	first, rest, ok := p.Head()
	require.True(t, ok)
	assert.Equal(t, Field("a"), first)
	assert.Equal(t, "[1].b", rest.String())

	// Append never aliases the receiver.
	q := p.Append(Field("c"))
	assert.Equal(t, "a[1].b", p.String())
	assert.Equal(t, "a[1].b.c", q.String())

	var empty Path
	assert.True(t, empty.IsEmpty())
	_, _, ok = empty.Head()
	assert.False(t, ok)
}
