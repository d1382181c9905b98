package vtype

import (
	"fmt"
	"strings"
	"sync"
)

// Registry holds the types of one workflow. It is safe for concurrent use;
// lookups take a read lock, registration a write lock.
type Registry struct {
	mu    sync.RWMutex
	types map[string]*Type
	order []*Type

	root, null, boolT, intT, floatT, stringT, fileT *Type
	list, array, dict                                *Type
}

// NewRegistry creates a registry seeded with the built-in types.
func NewRegistry() *Registry {
	r := &Registry{types: make(map[string]*Type)}

	r.root = r.seed("value", nil, KindValue)
	r.null = r.seed("null", r.root, KindNull)
	r.boolT = r.seed("bool", r.root, KindBool)
	r.intT = r.seed("int", r.root, KindInt)
	r.floatT = r.seed("float", r.root, KindFloat)
	r.stringT = r.seed("string", r.root, KindString)
	r.fileT = r.seed("file", r.root, KindFile)
	r.list = r.seed("list", r.root, KindList)
	r.array = r.seed("array", r.root, KindArray)
	r.array.elem = r.root
	r.dict = r.seed("dict", r.root, KindDict)
	r.dict.elem = r.root

	return r
}

func (r *Registry) seed(name string, parent *Type, kind Kind) *Type {
	t := &Type{
		name:     name,
		parent:   parent,
		kind:     kind,
		builtin:  true,
		registry: r,
	}
	r.types[name] = t
	r.order = append(r.order, t)
	return t
}

// Built-in accessors.
func (r *Registry) Root() *Type { return r.root }
func (r *Registry) Null() *Type { return r.null }
func (r *Registry) Bool() *Type { return r.boolT }
func (r *Registry) Int() *Type { return r.intT }
func (r *Registry) Float() *Type { return r.floatT }
func (r *Registry) StringType() *Type { return r.stringT }
func (r *Registry) File() *Type { return r.fileT }
func (r *Registry) List() *Type { return r.list }
func (r *Registry) Array() *Type { return r.array }
func (r *Registry) Dict() *Type { return r.dict }

// Lookup returns a registered type by name.
func (r *Registry) Lookup(name string) (*Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[name]
	return t, ok
}

// MustLookup is Lookup that fails with an UnknownType error.
func (r *Registry) MustLookup(name string) (*Type, error) {
	if t, ok := r.Lookup(name); ok {
		return t, nil
	}
	return nil, &TypeError{Code: ErrCodeUnknownType, Type: name, Message: "type is not registered"}
}

// Types returns all named types in registration order, built-ins first.
func (r *Registry) Types() []*Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Type, len(r.order))
	copy(out, r.order)
	return out
}

// Register defines a new named type deriving from parent. The kind is
// inherited from the parent; the schema is validated against that kind.
func (r *Registry) Register(name string, parent *Type, schema Schema) (*Type, error) {
	if name == "" {
		return nil, &TypeError{Code: ErrCodeInvalidSchema, Message: "type name is required"}
	}
	if parent == nil || parent.registry != r {
		return nil, &TypeError{Code: ErrCodeUnknownParent, Type: name, Message: "parent type is not registered in this registry"}
	}

	t, err := r.derive(name, parent, schema)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.types[name]; exists {
		return nil, &TypeError{Code: ErrCodeDuplicateType, Type: name, Message: "type already registered"}
	}
	r.types[name] = t
	r.order = append(r.order, t)
	return t, nil
}

// NewList creates an anonymous list type for inline member schemas.
func (r *Registry) NewList(members ...ListMember) (*Type, error) {
	return r.derive("", r.list, Schema{Members: members})
}

// NewArray creates an anonymous array type with the given element type.
func (r *Registry) NewArray(elem *Type) (*Type, error) {
	return r.derive("", r.array, Schema{Elem: elem})
}

// NewDict creates an anonymous dict type with the given element type.
func (r *Registry) NewDict(elem *Type) (*Type, error) {
	return r.derive("", r.dict, Schema{Elem: elem})
}

// derive builds (but does not register) a child of parent.
func (r *Registry) derive(name string, parent *Type, schema Schema) (*Type, error) {
	t := &Type{
		name:     name,
		parent:   parent,
		kind:     parent.kind,
		implicit: schema.Implicit,
		registry: r,
		elem:     parent.elem,
		desc:     schema.Description,
	}
	display := name
	if display == "" {
		display = "<" + parent.kind.String() + ">"
	}

	if len(schema.Members) > 0 && t.kind != KindList {
		return nil, &TypeError{Code: ErrCodeInvalidSchema, Type: display, Message: fmt.Sprintf("members declared on a %s type", t.kind)}
	}
	if schema.Elem != nil && t.kind != KindArray && t.kind != KindDict {
		return nil, &TypeError{Code: ErrCodeInvalidSchema, Type: display, Message: fmt.Sprintf("element type declared on a %s type", t.kind)}
	}

	if (schema.Extension != "" || schema.MimeType != "") && t.kind != KindFile {
		return nil, &TypeError{Code: ErrCodeInvalidSchema, Type: display, Message: fmt.Sprintf("file metadata declared on a %s type", t.kind)}
	}
	t.ext = strings.TrimPrefix(schema.Extension, ".")
	t.mime = schema.MimeType

	if schema.Elem != nil {
		if schema.Elem.registry != r {
			return nil, &TypeError{Code: ErrCodeUnknownType, Type: display, Message: "element type is not registered in this registry"}
		}
		if !IsSubtype(schema.Elem, parent.elem) {
			return nil, &TypeError{
				Code:    ErrCodeInvalidOverride,
				Type:    display,
				Message: fmt.Sprintf("element type %s is not a subtype of inherited %s", schema.Elem.DisplayName(), parent.elem.DisplayName()),
			}
		}
		t.elem = schema.Elem
	}

	if t.kind == KindList {
		t.memberIdx = make(map[string]int, len(schema.Members))
		for _, m := range schema.Members {
			if err := r.checkMember(t, parent, display, m); err != nil {
				return nil, err
			}
			t.memberIdx[m.Name] = len(t.members)
			t.members = append(t.members, m)
		}
	}
	return t, nil
}

func (r *Registry) checkMember(t, parent *Type, display string, m ListMember) error {
	if m.Name == "" {
		return &TypeError{Code: ErrCodeInvalidSchema, Type: display, Message: "member name is required"}
	}
	if m.Type == nil || m.Type.registry != r {
		return &TypeError{Code: ErrCodeUnknownType, Type: display, Member: m.Name, Message: "member type is not registered in this registry"}
	}
	if _, dup := t.memberIdx[m.Name]; dup {
		return &TypeError{Code: ErrCodeInvalidSchema, Type: display, Member: m.Name, Message: "duplicate member " + m.Name}
	}
	if parent.kind != KindList {
		return nil
	}
	inherited, err := ResolveMember(parent, m.Name)
	if err != nil {
		return nil
	}
	if !IsSubtype(m.Type, inherited.Type) {
		return &TypeError{
			Code:    ErrCodeInvalidOverride,
			Type:    display,
			Member:  m.Name,
			Message: fmt.Sprintf("member %s re-declared as %s, not a subtype of %s", m.Name, m.Type.DisplayName(), inherited.Type.DisplayName()),
		}
	}
	return nil
}
