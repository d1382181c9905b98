// Package network loads network definition files: the top-level instances
// of a workflow and the connections between them, written in YAML or HCL.
package network

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/cpcflow/internal/engine"
	"github.com/roach88/cpcflow/internal/graph"
	"github.com/roach88/cpcflow/internal/value"
	"github.com/roach88/cpcflow/internal/vtype"
)

// Definition is a parsed network definition.
type Definition struct {
	Instances   []InstanceDef
	Connections []ConnectionDef
}

// InstanceDef declares one top-level instance.
type InstanceDef struct {
	Name     string
	Function string
	Where    string // source location for messages
}

// ConnectionDef declares a connection. Exactly one of Src and Value is set;
// Value holds a literal in the syntax of the destination's type.
type ConnectionDef struct {
	Src   string
	Dst   string
	Value *string
	Where string
}

// DefinitionError reports a problem with one declaration.
type DefinitionError struct {
	Where   string
	Message string
	Err     error
}

func (e *DefinitionError) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Where == "" {
		return msg
	}
	return e.Where + ": " + msg
}

func (e *DefinitionError) Unwrap() error { return e.Err }

// LoadFile parses a definition file, choosing the format by extension:
// .yaml and .yml for YAML, .hcl for HCL.
func LoadFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read network file: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(data)
	case ".hcl":
		return ParseHCL(filepath.Base(path), data)
	}
	return nil, fmt.Errorf("network file %s: unknown format, expected .yaml, .yml or .hcl", path)
}

func (d *Definition) instance(name string) (InstanceDef, bool) {
	for _, inst := range d.Instances {
		if inst.Name == name {
			return inst, true
		}
	}
	return InstanceDef{}, false
}

// Literal parses the literal of c against the declared type of its
// destination.
func (d *Definition) Literal(lib *engine.Library, c ConnectionDef) (*value.Value, error) {
	if c.Value == nil {
		return nil, &DefinitionError{Where: c.Where, Message: "connection has no literal"}
	}
	dst, err := graph.ParseEndpoint(c.Dst)
	if err != nil {
		return nil, &DefinitionError{Where: c.Where, Message: "invalid destination", Err: err}
	}
	inst, ok := d.instance(dst.Instance)
	if !ok {
		return nil, &DefinitionError{Where: c.Where, Message: fmt.Sprintf("instance %q is not declared", dst.Instance)}
	}
	f, ok := lib.Function(inst.Function)
	if !ok {
		return nil, &DefinitionError{Where: inst.Where, Message: fmt.Sprintf("unknown function %q", inst.Function)}
	}
	port := f.Port(dst.Dir)
	if port == nil {
		return nil, &DefinitionError{Where: c.Where, Message: fmt.Sprintf("function %s has no %s port", f.ID, dst.Dir)}
	}
	t, err := vtype.TypeAt(port, dst.Path)
	if err != nil {
		return nil, &DefinitionError{Where: c.Where, Message: "invalid destination", Err: err}
	}
	v, err := value.FromLiteral(t, *c.Value)
	if err != nil {
		return nil, &DefinitionError{Where: c.Where, Message: fmt.Sprintf("literal for %s", c.Dst), Err: err}
	}
	return v, nil
}

// Define returns the top-level definition batch for engine.Define. The
// graph validates the whole batch; nothing is created when any
// declaration fails.
func (d *Definition) Define(lib *engine.Library) func(tx *graph.Tx) error {
	return func(tx *graph.Tx) error {
		for _, inst := range d.Instances {
			if _, err := tx.AddInstance(inst.Name, inst.Function); err != nil {
				return &DefinitionError{Where: inst.Where, Message: "instance " + inst.Name, Err: err}
			}
		}
		for _, c := range d.Connections {
			var lit *value.Value
			if c.Value != nil {
				v, err := d.Literal(lib, c)
				if err != nil {
					return err
				}
				lit = v
			}
			if err := tx.AddConnection(c.Src, c.Dst, lit); err != nil {
				return &DefinitionError{Where: c.Where, Message: "connection to " + c.Dst, Err: err}
			}
		}
		return nil
	}
}

// Validate checks the definition against lib without building a graph.
// It returns all problems found (does not fail-fast), cycles included.
func (d *Definition) Validate(lib *engine.Library) []error {
	var errs []error
	add := func(where, format string, args ...any) {
		errs = append(errs, &DefinitionError{Where: where, Message: fmt.Sprintf(format, args...)})
	}

	seen := make(map[string]bool)
	for _, inst := range d.Instances {
		switch {
		case inst.Name == "":
			add(inst.Where, "instance name is required")
		case seen[inst.Name]:
			add(inst.Where, "instance %q declared twice", inst.Name)
		}
		seen[inst.Name] = true
		if _, ok := lib.Function(inst.Function); !ok {
			add(inst.Where, "unknown function %q", inst.Function)
		}
	}

	checkEndpoint := func(c ConnectionDef, s string) bool {
		ep, err := graph.ParseEndpoint(s)
		if err != nil {
			errs = append(errs, &DefinitionError{Where: c.Where, Message: "invalid endpoint", Err: err})
			return false
		}
		if !seen[ep.Instance] {
			add(c.Where, "instance %q is not declared", ep.Instance)
			return false
		}
		return true
	}
	for _, c := range d.Connections {
		if (c.Src == "") == (c.Value == nil) {
			add(c.Where, "connection to %s needs exactly one of a source and a value", c.Dst)
			continue
		}
		if !checkEndpoint(c, c.Dst) {
			continue
		}
		if c.Src != "" {
			checkEndpoint(c, c.Src)
			continue
		}
		if _, err := d.Literal(lib, c); err != nil {
			errs = append(errs, err)
		}
	}

	for _, cyc := range Cycles(d) {
		add("", "%s", cyc.Message)
	}
	return errs
}
