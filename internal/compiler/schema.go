// Package compiler turns CUE schema files into registered types and
// function declarations.
//
// A schema file has two optional sections:
//
//	types: {
//		fe_result: {
//			parent: "list" // default
//			description: "A free energy estimate"
//			members: {
//				value: "float"
//				error: {type: "float", optional: true, description: "Standard error"}
//			}
//		}
//		samples: {parent: "array", elem: "float"}
//		trajectory: {parent: "file", extension: "xtc", mime_type: "application/x-xtc"}
//	}
//	functions: {
//		fe: {
//			in: {precision: {type: "float", optional: true}}
//			out: {delta_f: "fe_result"}
//			sub_in: {dG: {array: "float"}}
//		}
//	}
//
// A type expression is a type name, or an inline anonymous type written as
// {array: <expr>}, {dict: <expr>} or {members: {...}}. A member is a type
// expression, or {type: <expr>, optional: bool, const: bool, description:
// string}. Named types may be declared in any order.
package compiler

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/cpcflow/internal/engine"
	"github.com/roach88/cpcflow/internal/graph"
	"github.com/roach88/cpcflow/internal/vtype"
)

// Schema is the result of compiling one schema file or package.
type Schema struct {
	Types     []*vtype.Type // named types, in registration order
	Functions []*graph.Function
}

// AddTo declares the compiled functions in lib, without bodies.
func (s *Schema) AddTo(lib *engine.Library) error {
	for _, f := range s.Functions {
		if err := lib.Add(f, nil); err != nil {
			return err
		}
	}
	return nil
}

type compiler struct {
	r        *vtype.Registry
	decls    map[string]cue.Value
	order    []string
	visiting map[string]bool
	out      *Schema
}

// Compile validates v and registers its types and function port types in
// r. Compilation stops at the first error; Validate reports all structural
// problems at once.
func Compile(r *vtype.Registry, v cue.Value) (*Schema, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if errs := Validate(v); len(errs) > 0 {
		first := errs[0]
		return nil, &CompileError{Field: first.Field, Message: first.Message, Err: first}
	}

	c := &compiler{
		r:        r,
		decls:    make(map[string]cue.Value),
		visiting: make(map[string]bool),
		out:      &Schema{},
	}

	types := v.LookupPath(cue.ParsePath("types"))
	if types.Exists() {
		iter, err := types.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			name := iter.Selector().Unquoted()
			c.decls[name] = iter.Value()
			c.order = append(c.order, name)
		}
	}
	for _, name := range c.order {
		if _, err := c.named(name, c.decls[name]); err != nil {
			return nil, err
		}
	}

	funcs := v.LookupPath(cue.ParsePath("functions"))
	if funcs.Exists() {
		iter, err := funcs.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			f, err := c.function(iter.Selector().Unquoted(), iter.Value())
			if err != nil {
				return nil, err
			}
			c.out.Functions = append(c.out.Functions, f)
		}
	}
	return c.out, nil
}

// CompileSource compiles a schema from CUE source text.
func CompileSource(r *vtype.Registry, filename string, src []byte) (*Schema, error) {
	ctx := cuecontext.New()
	return Compile(r, ctx.CompileBytes(src, cue.Filename(filename)))
}

// LoadDir compiles the CUE package in dir.
func LoadDir(r *vtype.Registry, dir string) (*Schema, error) {
	v, err := BuildDir(dir)
	if err != nil {
		return nil, err
	}
	return Compile(r, v)
}

// BuildDir loads and builds the CUE package in dir without compiling it.
func BuildDir(dir string) (cue.Value, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return cue.Value{}, fmt.Errorf("schema directory: %w", err)
	}
	if !info.IsDir() {
		return cue.Value{}, fmt.Errorf("schema directory: not a directory: %s", dir)
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return cue.Value{}, fmt.Errorf("no CUE instances loaded from %s", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return cue.Value{}, formatCUEError(inst.Err)
	}
	v := ctx.BuildInstance(inst)
	if err := v.Err(); err != nil {
		return cue.Value{}, formatCUEError(err)
	}
	return v, nil
}

// named resolves a type name, compiling its declaration first when the
// file declares it and it is not registered yet.
func (c *compiler) named(name string, at cue.Value) (*vtype.Type, error) {
	decl, declared := c.decls[name]
	if !declared {
		if t, ok := c.r.Lookup(name); ok {
			return t, nil
		}
		return nil, &CompileError{Field: "type", Message: fmt.Sprintf("unknown type %q", name), Pos: at.Pos()}
	}
	if t, ok := c.r.Lookup(name); ok && c.registered(t) {
		return t, nil
	}
	if c.visiting[name] {
		return nil, &CompileError{Field: "types." + name, Message: "type refers to itself", Pos: decl.Pos()}
	}
	c.visiting[name] = true
	defer delete(c.visiting, name)

	parentName := "list"
	if p := decl.LookupPath(cue.ParsePath("parent")); p.Exists() {
		s, err := p.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		parentName = s
	}
	parent, err := c.named(parentName, decl)
	if err != nil {
		return nil, err
	}

	var schema vtype.Schema
	if schema.Description, err = optionalString(decl, "description"); err != nil {
		return nil, err
	}
	if schema.Extension, err = optionalString(decl, "extension"); err != nil {
		return nil, err
	}
	if schema.MimeType, err = optionalString(decl, "mime_type"); err != nil {
		return nil, err
	}
	if m := decl.LookupPath(cue.ParsePath("members")); m.Exists() {
		schema.Members, err = c.members("types."+name, m)
		if err != nil {
			return nil, err
		}
	}
	if e := decl.LookupPath(cue.ParsePath("elem")); e.Exists() {
		schema.Elem, err = c.typeExpr("types."+name+".elem", e)
		if err != nil {
			return nil, err
		}
	}

	t, err := c.r.Register(name, parent, schema)
	if err != nil {
		return nil, &CompileError{Field: "types." + name, Message: err.Error(), Pos: decl.Pos(), Err: err}
	}
	c.out.Types = append(c.out.Types, t)
	return t, nil
}

func (c *compiler) registered(t *vtype.Type) bool {
	for _, done := range c.out.Types {
		if done == t {
			return true
		}
	}
	return false
}

// typeExpr compiles a type name or an inline anonymous type.
func (c *compiler) typeExpr(field string, v cue.Value) (*vtype.Type, error) {
	if v.IncompleteKind() == cue.StringKind {
		name, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return c.named(name, v)
	}

	var (
		t   *vtype.Type
		err error
	)
	switch {
	case v.LookupPath(cue.ParsePath("array")).Exists():
		var elem *vtype.Type
		if elem, err = c.typeExpr(field+".array", v.LookupPath(cue.ParsePath("array"))); err != nil {
			return nil, err
		}
		t, err = c.r.NewArray(elem)
	case v.LookupPath(cue.ParsePath("dict")).Exists():
		var elem *vtype.Type
		if elem, err = c.typeExpr(field+".dict", v.LookupPath(cue.ParsePath("dict"))); err != nil {
			return nil, err
		}
		t, err = c.r.NewDict(elem)
	case v.LookupPath(cue.ParsePath("members")).Exists():
		var members []vtype.ListMember
		if members, err = c.members(field, v.LookupPath(cue.ParsePath("members"))); err != nil {
			return nil, err
		}
		t, err = c.r.NewList(members...)
	default:
		return nil, &CompileError{Field: field, Message: "expected a type name, array, dict or members", Pos: v.Pos()}
	}
	if err != nil {
		return nil, &CompileError{Field: field, Message: err.Error(), Pos: v.Pos(), Err: err}
	}
	return t, nil
}

// members compiles a struct of member declarations, keeping their order.
func (c *compiler) members(field string, v cue.Value) ([]vtype.ListMember, error) {
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []vtype.ListMember
	for iter.Next() {
		name := iter.Selector().Unquoted()
		mv := iter.Value()
		m := vtype.ListMember{Name: name}

		typ := mv
		if tv := mv.LookupPath(cue.ParsePath("type")); mv.IncompleteKind() == cue.StructKind && tv.Exists() {
			typ = tv
			if m.Optional, err = optionalBool(mv, "optional"); err != nil {
				return nil, err
			}
			if m.Const, err = optionalBool(mv, "const"); err != nil {
				return nil, err
			}
			if m.Description, err = optionalString(mv, "description"); err != nil {
				return nil, err
			}
		}
		if m.Type, err = c.typeExpr(field+"."+name, typ); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func optionalString(v cue.Value, key string) (string, error) {
	s := v.LookupPath(cue.ParsePath(key))
	if !s.Exists() {
		return "", nil
	}
	got, err := s.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return got, nil
}

func optionalBool(v cue.Value, key string) (bool, error) {
	b := v.LookupPath(cue.ParsePath(key))
	if !b.Exists() {
		return false, nil
	}
	got, err := b.Bool()
	if err != nil {
		return false, formatCUEError(err)
	}
	return got, nil
}

// function compiles one function declaration. Each port becomes an
// implicit list type named "<id>.<port>".
func (c *compiler) function(id string, v cue.Value) (*graph.Function, error) {
	f := &graph.Function{ID: id}
	for _, d := range graph.Directions {
		pv := v.LookupPath(cue.ParsePath(d.String()))
		if !pv.Exists() {
			continue
		}
		field := "functions." + id + "." + d.String()
		members, err := c.members(field, pv)
		if err != nil {
			return nil, err
		}
		t, err := c.r.Register(id+"."+d.String(), c.r.List(), vtype.Schema{Members: members, Implicit: true})
		if err != nil {
			return nil, &CompileError{Field: field, Message: err.Error(), Pos: pv.Pos(), Err: err}
		}
		switch d {
		case graph.DirIn:
			f.Inputs = t
		case graph.DirOut:
			f.Outputs = t
		case graph.DirSubIn:
			f.SubnetInputs = t
		case graph.DirSubOut:
			f.SubnetOutputs = t
		}
	}
	if err := f.Validate(); err != nil {
		return nil, &CompileError{Field: "functions." + id, Message: err.Error(), Pos: v.Pos(), Err: err}
	}
	return f, nil
}
