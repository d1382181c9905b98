package compiler

import (
	"fmt"
	"regexp"

	"cuelang.org/go/cue"

	"github.com/roach88/cpcflow/internal/graph"
)

// Validation error codes (E120-E139)
const (
	ErrUnknownSection     = "E120" // top-level field other than types/functions
	ErrInvalidTypeDecl    = "E121" // type declaration is not a struct or has unknown fields
	ErrInvalidMemberName  = "E122" // member name is not addressable by a path
	ErrInvalidMemberSpec  = "E123" // member is neither a type expression nor a member struct
	ErrInvalidFunctionDef = "E124" // function declares an unknown port
	ErrInvalidName        = "E125" // type or function name
	ErrNotConcrete        = "E126" // a field that must be a concrete string or bool
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

var (
	memberNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	declNameRe   = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(::[A-Za-z_][A-Za-z0-9_]*)*$`)
)

type validator struct {
	errs []ValidationError
}

func (vd *validator) add(v cue.Value, field, code, format string, args ...any) {
	vd.errs = append(vd.errs, ValidationError{
		Field:   field,
		Message: fmt.Sprintf(format, args...),
		Code:    code,
		Line:    v.Pos().Line(),
	})
}

// Validate checks the structure of a schema value. It returns all errors
// found (does not fail-fast). Type references are resolved by Compile.
func Validate(v cue.Value) []ValidationError {
	vd := &validator{}

	iter, err := v.Fields()
	if err != nil {
		vd.add(v, "schema", ErrUnknownSection, "schema must be a struct: %v", err)
		return vd.errs
	}
	for iter.Next() {
		label := iter.Selector().Unquoted()
		switch label {
		case "types":
			vd.eachDecl(iter.Value(), "types", vd.typeDecl)
		case "functions":
			vd.eachDecl(iter.Value(), "functions", vd.functionDecl)
		default:
			vd.add(iter.Value(), label, ErrUnknownSection, "unknown section %q, expected types or functions", label)
		}
	}
	return vd.errs
}

func (vd *validator) eachDecl(v cue.Value, section string, fn func(field string, v cue.Value)) {
	iter, err := v.Fields()
	if err != nil {
		vd.add(v, section, ErrInvalidTypeDecl, "%s must be a struct", section)
		return
	}
	for iter.Next() {
		name := iter.Selector().Unquoted()
		field := section + "." + name
		if !declNameRe.MatchString(name) {
			vd.add(iter.Value(), field, ErrInvalidName, "invalid name %q", name)
		}
		fn(field, iter.Value())
	}
}

func (vd *validator) typeDecl(field string, v cue.Value) {
	iter, err := v.Fields()
	if err != nil {
		vd.add(v, field, ErrInvalidTypeDecl, "type declaration must be a struct")
		return
	}
	for iter.Next() {
		key := iter.Selector().Unquoted()
		switch key {
		case "parent", "description", "extension", "mime_type":
			vd.concreteString(field+"."+key, iter.Value())
		case "members":
			vd.members(field+".members", iter.Value())
		case "elem":
			vd.typeExpr(field+".elem", iter.Value())
		default:
			vd.add(iter.Value(), field+"."+key, ErrInvalidTypeDecl, "unknown field %q, expected parent, members, elem, description, extension or mime_type", key)
		}
	}
}

func (vd *validator) functionDecl(field string, v cue.Value) {
	iter, err := v.Fields()
	if err != nil {
		vd.add(v, field, ErrInvalidFunctionDef, "function declaration must be a struct")
		return
	}
	for iter.Next() {
		key := iter.Selector().Unquoted()
		if d, ok := graph.ParseDirection(key); !ok || d.String() != key {
			vd.add(iter.Value(), field+"."+key, ErrInvalidFunctionDef, "unknown port %q, expected in, out, sub_in or sub_out", key)
			continue
		}
		vd.members(field+"."+key, iter.Value())
	}
}

func (vd *validator) members(field string, v cue.Value) {
	iter, err := v.Fields()
	if err != nil {
		vd.add(v, field, ErrInvalidMemberSpec, "members must be a struct")
		return
	}
	for iter.Next() {
		name := iter.Selector().Unquoted()
		mv := iter.Value()
		mfield := field + "." + name
		if !memberNameRe.MatchString(name) {
			vd.add(mv, mfield, ErrInvalidMemberName, "member name %q is not a valid identifier", name)
		}
		if mv.IncompleteKind() == cue.StructKind && mv.LookupPath(cue.ParsePath("type")).Exists() {
			vd.memberStruct(mfield, mv)
			continue
		}
		vd.typeExpr(mfield, mv)
	}
}

func (vd *validator) memberStruct(field string, v cue.Value) {
	iter, _ := v.Fields()
	for iter.Next() {
		key := iter.Selector().Unquoted()
		switch key {
		case "type":
			vd.typeExpr(field+".type", iter.Value())
		case "optional", "const":
			if _, err := iter.Value().Bool(); err != nil {
				vd.add(iter.Value(), field+"."+key, ErrNotConcrete, "%s must be a concrete bool", key)
			}
		case "description":
			vd.concreteString(field+".description", iter.Value())
		default:
			vd.add(iter.Value(), field+"."+key, ErrInvalidMemberSpec, "unknown field %q, expected type, optional, const or description", key)
		}
	}
}

func (vd *validator) typeExpr(field string, v cue.Value) {
	switch v.IncompleteKind() {
	case cue.StringKind:
		vd.concreteString(field, v)
		return
	case cue.StructKind:
	default:
		vd.add(v, field, ErrInvalidMemberSpec, "expected a type name or an inline type")
		return
	}

	iter, _ := v.Fields()
	n := 0
	for iter.Next() {
		n++
		key := iter.Selector().Unquoted()
		switch key {
		case "array", "dict":
			vd.typeExpr(field+"."+key, iter.Value())
		case "members":
			vd.members(field+".members", iter.Value())
		default:
			vd.add(iter.Value(), field+"."+key, ErrInvalidMemberSpec, "unknown field %q, expected array, dict or members", key)
		}
	}
	if n != 1 {
		vd.add(v, field, ErrInvalidMemberSpec, "inline type must have exactly one of array, dict or members")
	}
}

func (vd *validator) concreteString(field string, v cue.Value) {
	if _, err := v.String(); err != nil {
		vd.add(v, field, ErrNotConcrete, "must be a concrete string")
	}
}
