package graph

import (
	"fmt"

	"github.com/roach88/cpcflow/internal/vtype"
)

// Direction names one of an instance's four ports.
type Direction int

const (
	DirIn Direction = iota
	DirOut
	DirSubIn
	DirSubOut
)

// Directions lists all ports in storage order.
var Directions = []Direction{DirIn, DirOut, DirSubIn, DirSubOut}

var dirNames = map[Direction]string{
	DirIn:     "in",
	DirOut:    "out",
	DirSubIn:  "sub_in",
	DirSubOut: "sub_out",
}

func (d Direction) String() string {
	if s, ok := dirNames[d]; ok {
		return s
	}
	return fmt.Sprintf("Direction(%d)", int(d))
}

// ParseDirection parses a port name. ext_in and ext_out are accepted as
// aliases of in and out.
func ParseDirection(s string) (Direction, bool) {
	switch s {
	case "in", "ext_in":
		return DirIn, true
	case "out", "ext_out":
		return DirOut, true
	case "sub_in":
		return DirSubIn, true
	case "sub_out":
		return DirSubOut, true
	}
	return 0, false
}

// Function declares the port schemas of a task body. Each port type is a
// list type; a nil port has no members.
type Function struct {
	ID            string
	Inputs        *vtype.Type
	Outputs       *vtype.Type
	SubnetInputs  *vtype.Type
	SubnetOutputs *vtype.Type
}

// Port returns the declared type of one port.
func (f *Function) Port(d Direction) *vtype.Type {
	switch d {
	case DirIn:
		return f.Inputs
	case DirOut:
		return f.Outputs
	case DirSubIn:
		return f.SubnetInputs
	case DirSubOut:
		return f.SubnetOutputs
	}
	return nil
}

// Validate checks that every declared port is a list type.
func (f *Function) Validate() error {
	if f.ID == "" {
		return &vtype.TypeError{Code: vtype.ErrCodeInvalidSchema, Message: "function id is required"}
	}
	for _, d := range Directions {
		t := f.Port(d)
		if t != nil && t.Kind() != vtype.KindList {
			return vtype.Errorf(vtype.ErrCodeInvalidSchema, t, "port %s of function %s must be a list type", d, f.ID)
		}
	}
	return nil
}

// FunctionSet maps function ids to declarations.
type FunctionSet map[string]*Function
