package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/cpcflow/internal/value"
	"github.com/roach88/cpcflow/internal/vtype"
)

func TestPersistence_BufferedOverCommitted(t *testing.T) {
	r := vtype.NewRegistry()
	p := newPersistence(map[string]*value.Value{
		"nruns": value.Int(r, 2),
		"init":  value.Bool(r, true),
	})

	n, _ := p.Get("nruns").AsInt()
	assert.Equal(t, int64(2), n)
	assert.Nil(t, p.Get("missing"))

	p.Set("nruns", value.Int(r, 3))
	p.Set("init", nil)
	p.Set("handled", value.Int(r, 1))

	n, _ = p.Get("nruns").AsInt()
	assert.Equal(t, int64(3), n)
	assert.Nil(t, p.Get("init"), "deleted keys read as absent")
	assert.Equal(t, []string{"handled", "nruns"}, p.Keys())

	changes := p.changes()
	assert.Len(t, changes, 3)
	assert.Contains(t, changes, "init")
	assert.Nil(t, changes["init"])
}

func TestPersistence_NilCommitted(t *testing.T) {
	p := newPersistence(nil)
	assert.Nil(t, p.Get("x"))
	assert.Empty(t, p.Keys())
}
