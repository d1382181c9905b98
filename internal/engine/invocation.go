package engine

import (
	"fmt"

	"github.com/roach88/cpcflow/internal/graph"
	"github.com/roach88/cpcflow/internal/itempath"
	"github.com/roach88/cpcflow/internal/value"
	"github.com/roach88/cpcflow/internal/vtype"
)

// Inputs is the read side of the task body interface. It shows the
// instance's ports as they were when the invocation started.
type Inputs interface {
	Instance() string
	InvocationID() string
	Registry() *vtype.Registry

	// GetInput returns the named input member, nil when it has no value.
	GetInput(name string) *value.Value
	// GetSubInput returns the value at an address path inside the in
	// port, nil when it has no value.
	GetSubInput(path string) (*value.Value, error)
	// GetSubnetInput returns the value at an address path inside the
	// sub_in port, nil when it has no value.
	GetSubnetInput(path string) (*value.Value, error)

	// IsUpdated reports whether an input member changed since the
	// instance last ran successfully.
	IsUpdated(name string) bool
	IsSubnetUpdated(name string) bool

	Persistence() *Persistence
}

// Outputs is the write side of the task body interface. Every call is
// validated immediately and buffered; the buffer becomes visible only when
// the body returns nil.
type Outputs interface {
	SetOut(name string, v *value.Value) error
	// SetSubOut stores v at an address path inside the out port.
	SetSubOut(path string, v *value.Value) error
	// SetSubnetOut stores v at an address path inside the sub_out port.
	SetSubnetOut(path string, v *value.Value) error

	// AddInstance declares a child instance and returns its full name.
	AddInstance(name, functionID string) (string, error)
	// AddConnection wires src to dst, both in the "instance:dir.path"
	// form with "self" naming the running instance. An empty src
	// connects the literal instead.
	AddConnection(src, dst string, literal *value.Value) error

	Persistence() *Persistence
}

// Invocation is one run of one instance. It implements both Inputs and
// Outputs.
type Invocation struct {
	id       string
	instance string
	reg      *vtype.Registry
	snap     *graph.Instance
	observed graph.Versions
	tx       *graph.Tx
	pers     *Persistence

	reporting bool // guarded by Engine.mu
}

var (
	_ Inputs  = (*Invocation)(nil)
	_ Outputs = (*Invocation)(nil)
)

// ID returns the invocation id.
func (inv *Invocation) ID() string { return inv.id }

// Instance returns the full name of the running instance.
func (inv *Invocation) Instance() string { return inv.instance }

// InvocationID returns the invocation id.
func (inv *Invocation) InvocationID() string { return inv.id }

// Registry returns the workflow's type registry.
func (inv *Invocation) Registry() *vtype.Registry { return inv.reg }

// Snapshot returns the instance state the invocation started from.
func (inv *Invocation) Snapshot() *graph.Instance { return inv.snap }

// Persistence returns the instance's persistence scope.
func (inv *Invocation) Persistence() *Persistence { return inv.pers }

func (inv *Invocation) GetInput(name string) *value.Value {
	v, err := value.Get(inv.snap.Ports[graph.DirIn], itempath.Of(itempath.Field(name)))
	if err != nil {
		return nil
	}
	return v
}

func (inv *Invocation) GetSubInput(path string) (*value.Value, error) {
	return inv.read(graph.DirIn, path)
}

func (inv *Invocation) GetSubnetInput(path string) (*value.Value, error) {
	return inv.read(graph.DirSubIn, path)
}

func (inv *Invocation) read(d graph.Direction, path string) (*value.Value, error) {
	p, err := itempath.Parse(path)
	if err != nil {
		return nil, err
	}
	v, err := value.Get(inv.snap.Ports[d], p)
	if vtype.HasCode(err, vtype.ErrCodeNoSuchPath) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s%s: %w", d, p.Suffix(), err)
	}
	return v, nil
}

func (inv *Invocation) IsUpdated(name string) bool {
	return graph.IsUpdatedSince(inv.snap, inv.snap.Observed, graph.DirIn, name)
}

func (inv *Invocation) IsSubnetUpdated(name string) bool {
	return graph.IsUpdatedSince(inv.snap, inv.snap.Observed, graph.DirSubIn, name)
}

func (inv *Invocation) SetOut(name string, v *value.Value) error {
	return inv.tx.SetOut(itempath.Of(itempath.Field(name)), v)
}

func (inv *Invocation) SetSubOut(path string, v *value.Value) error {
	p, err := itempath.Parse(path)
	if err != nil {
		return err
	}
	return inv.tx.SetOut(p, v)
}

func (inv *Invocation) SetSubnetOut(path string, v *value.Value) error {
	p, err := itempath.Parse(path)
	if err != nil {
		return err
	}
	return inv.tx.SetSubnetOut(p, v)
}

func (inv *Invocation) AddInstance(name, functionID string) (string, error) {
	return inv.tx.AddInstance(name, functionID)
}

func (inv *Invocation) AddConnection(src, dst string, literal *value.Value) error {
	return inv.tx.AddConnection(src, dst, literal)
}
