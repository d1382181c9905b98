package value

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/roach88/cpcflow/internal/vtype"
)

// Value is an immutable typed payload with a version marker.
type Value struct {
	typ     *vtype.Type
	version int64
	payload any
	owned   bool
	abs     string // absolute path of an owned file
}

// Type returns the value's type.
func (v *Value) Type() *vtype.Type { return v.typ }

// Kind returns the representation tag of the value's type.
func (v *Value) Kind() vtype.Kind { return v.typ.Kind() }

// Version returns the value's version within its lineage. Freshly
// constructed values are at version 0.
func (v *Value) Version() int64 {
	if v == nil {
		return 0
	}
	return v.version
}

// IsUpdated reports whether v is newer than the version since.
func IsUpdated(v *Value, since int64) bool {
	return v.Version() > since
}

// withVersion returns a shallow copy of v at the given version.
func (v *Value) withVersion(n int64) *Value {
	c := *v
	c.version = n
	return &c
}

// =============================================================================
// Scalar constructors for built-in types
// =============================================================================

// Null returns the null value of the registry's built-in null type.
func Null(r *vtype.Registry) *Value { return &Value{typ: r.Null()} }

// Bool returns a value of the built-in bool type.
func Bool(r *vtype.Registry, b bool) *Value { return &Value{typ: r.Bool(), payload: b} }

// Int returns a value of the built-in int type.
func Int(r *vtype.Registry, n int64) *Value { return &Value{typ: r.Int(), payload: n} }

// Float returns a value of the built-in float type.
func Float(r *vtype.Registry, f float64) *Value { return &Value{typ: r.Float(), payload: f} }

// String returns a value of the built-in string type.
func String(r *vtype.Registry, s string) *Value { return &Value{typ: r.StringType(), payload: s} }

// =============================================================================
// Validating constructors
// =============================================================================

// New creates a scalar value of type t. The payload must be the Go
// representation of t's kind: nil, bool, int64 (or int), float64 or string.
// Compound kinds use Record, Array and Dict; file kinds use File.
func New(t *vtype.Type, payload any) (*Value, error) {
	if t == nil {
		return nil, &vtype.TypeError{Code: vtype.ErrCodeSchemaViolation, Message: "value has no type"}
	}
	switch t.Kind() {
	case vtype.KindNull:
		if payload == nil {
			return &Value{typ: t}, nil
		}
	case vtype.KindBool:
		if b, ok := payload.(bool); ok {
			return &Value{typ: t, payload: b}, nil
		}
	case vtype.KindInt:
		switch n := payload.(type) {
		case int64:
			return &Value{typ: t, payload: n}, nil
		case int:
			return &Value{typ: t, payload: int64(n)}, nil
		}
	case vtype.KindFloat:
		if f, ok := payload.(float64); ok {
			return &Value{typ: t, payload: f}, nil
		}
	case vtype.KindString:
		if s, ok := payload.(string); ok {
			return &Value{typ: t, payload: s}, nil
		}
	case vtype.KindFile:
		if s, ok := payload.(string); ok {
			return File(t, s, false)
		}
	default:
		return nil, vtype.Errorf(vtype.ErrCodeSchemaViolation, t, "%s values are built with Record, Array or Dict", t.Kind())
	}
	return nil, vtype.Errorf(vtype.ErrCodeSchemaViolation, t, "payload %T does not fit a %s value", payload, t.Kind())
}

// FromLiteral parses a literal string into a scalar value of type t.
func FromLiteral(t *vtype.Type, s string) (*Value, error) {
	payload, err := vtype.ParseLiteral(t, s)
	if err != nil {
		return nil, err
	}
	return New(t, payload)
}

// File creates a file value referring to path. An owned file is removed
// from disk once the last holder of a value referring to it releases it
// (see FileTable).
func File(t *vtype.Type, path string, owned bool) (*Value, error) {
	if t == nil || t.Kind() != vtype.KindFile {
		return nil, vtype.Errorf(vtype.ErrCodeSchemaViolation, t, "file value requires a file type")
	}
	if path == "" {
		return nil, vtype.Errorf(vtype.ErrCodeSchemaViolation, t, "file value requires a path")
	}
	v := &Value{typ: t, payload: path}
	if owned {
		v.owned = true
		v.abs = absPath(path)
	}
	return v, nil
}

// Record creates a list-kind value. Every key must name a member declared
// on t (or inherited), and every member value must conform to the member
// type. Optional and required members alike may be absent; records are
// filled in incrementally by their producers.
func Record(t *vtype.Type, members map[string]*Value) (*Value, error) {
	if t == nil || t.Kind() != vtype.KindList {
		return nil, vtype.Errorf(vtype.ErrCodeSchemaViolation, t, "record value requires a list type")
	}
	m := make(map[string]*Value, len(members))
	for name, sub := range members {
		if sub == nil {
			continue
		}
		decl, err := vtype.ResolveMember(t, name)
		if err != nil {
			return nil, err
		}
		if !sub.typ.IsSubtype(decl.Type) {
			return nil, &vtype.TypeError{
				Code:    vtype.ErrCodeSchemaViolation,
				Type:    t.DisplayName(),
				Member:  name,
				Message: fmt.Sprintf("member %s is %s, want %s", name, sub.typ.DisplayName(), decl.Type.DisplayName()),
			}
		}
		m[name] = sub
	}
	return &Value{typ: t, payload: m}, nil
}

// Array creates an array-kind value. Nil elements are holes.
func Array(t *vtype.Type, elems []*Value) (*Value, error) {
	if t == nil || t.Kind() != vtype.KindArray {
		return nil, vtype.Errorf(vtype.ErrCodeSchemaViolation, t, "array value requires an array type")
	}
	out := make([]*Value, len(elems))
	for i, e := range elems {
		if e == nil {
			continue
		}
		if !e.typ.IsSubtype(t.Elem()) {
			return nil, vtype.Errorf(vtype.ErrCodeSchemaViolation, t, "element %d is %s, want %s", i, e.typ.DisplayName(), t.Elem().DisplayName())
		}
		out[i] = e
	}
	return &Value{typ: t, payload: out}, nil
}

// Dict creates a dict-kind value.
func Dict(t *vtype.Type, elems map[string]*Value) (*Value, error) {
	if t == nil || t.Kind() != vtype.KindDict {
		return nil, vtype.Errorf(vtype.ErrCodeSchemaViolation, t, "dict value requires a dict type")
	}
	m := make(map[string]*Value, len(elems))
	for k, e := range elems {
		if e == nil {
			continue
		}
		if !e.typ.IsSubtype(t.Elem()) {
			return nil, vtype.Errorf(vtype.ErrCodeSchemaViolation, t, "element %q is %s, want %s", k, e.typ.DisplayName(), t.Elem().DisplayName())
		}
		m[k] = e
	}
	return &Value{typ: t, payload: m}, nil
}

// Empty returns an empty container of type t: a record without members, an
// array without elements, or a dict without keys. Scalar types have no
// empty form.
func Empty(t *vtype.Type) (*Value, error) {
	switch t.Kind() {
	case vtype.KindList:
		return &Value{typ: t, payload: map[string]*Value{}}, nil
	case vtype.KindArray:
		return &Value{typ: t, payload: []*Value{}}, nil
	case vtype.KindDict:
		return &Value{typ: t, payload: map[string]*Value{}}, nil
	}
	return nil, vtype.Errorf(vtype.ErrCodeSchemaViolation, t, "%s values have no empty form", t.Kind())
}

// =============================================================================
// Accessors
// =============================================================================

// AsBool returns the payload of a bool-kind value.
func (v *Value) AsBool() (bool, bool) {
	b, ok := v.payload.(bool)
	return b, ok
}

// AsInt returns the payload of an int-kind value.
func (v *Value) AsInt() (int64, bool) {
	n, ok := v.payload.(int64)
	return n, ok
}

// AsFloat returns the payload of a float-kind value. Int-kind values are
// not widened.
func (v *Value) AsFloat() (float64, bool) {
	f, ok := v.payload.(float64)
	return f, ok
}

// AsString returns the payload of a string-kind or file-kind value.
func (v *Value) AsString() (string, bool) {
	s, ok := v.payload.(string)
	return s, ok
}

// IsNull reports whether v is a null-kind value.
func (v *Value) IsNull() bool { return v.typ.Kind() == vtype.KindNull }

// IsOwnedFile reports whether v is a file value whose backing file is
// removed when the value is no longer held.
func (v *Value) IsOwnedFile() bool { return v.owned }

// Len returns the number of elements of an array (holes included), the
// number of keys of a dict or the number of set members of a record.
func (v *Value) Len() int {
	switch p := v.payload.(type) {
	case []*Value:
		return len(p)
	case map[string]*Value:
		return len(p)
	}
	return 0
}

// Member returns a record member or dict element by name.
func (v *Value) Member(name string) (*Value, bool) {
	m, ok := v.payload.(map[string]*Value)
	if !ok {
		return nil, false
	}
	sub, ok := m[name]
	return sub, ok
}

// Elem returns an array element; holes report false.
func (v *Value) Elem(i int) (*Value, bool) {
	arr, ok := v.payload.([]*Value)
	if !ok || i < 0 || i >= len(arr) || arr[i] == nil {
		return nil, false
	}
	return arr[i], true
}

// Keys returns the set member names of a record or the keys of a dict in
// sorted order.
func (v *Value) Keys() []string {
	m, ok := v.payload.(map[string]*Value)
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Literal renders a scalar value in its literal form.
func (v *Value) Literal() (string, error) {
	return vtype.FormatLiteral(v.typ, v.payload)
}

// String renders the value for logs and messages.
func (v *Value) String() string {
	if v == nil {
		return "<nil>"
	}
	if v.typ.Kind().HasSimpleLiteral() {
		if s, err := v.Literal(); err == nil {
			if v.typ.Kind() == vtype.KindString || v.typ.Kind() == vtype.KindFile {
				s = strconv.Quote(s)
			}
			return fmt.Sprintf("%s(%s)@%d", v.typ.DisplayName(), s, v.version)
		}
	}
	return fmt.Sprintf("%s[%d]@%d", v.typ.DisplayName(), v.Len(), v.version)
}
