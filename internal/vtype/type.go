package vtype

// Kind is the representation tag shared by a type and all its descendants.
type Kind int

const (
	KindValue Kind = iota // the abstract root
	KindNull
	KindBool
	KindInt
	KindFloat
	KindString
	KindFile
	KindList
	KindArray
	KindDict
)

var kindNames = map[Kind]string{
	KindValue:  "value",
	KindNull:   "null",
	KindBool:   "bool",
	KindInt:    "int",
	KindFloat:  "float",
	KindString: "string",
	KindFile:   "file",
	KindList:   "list",
	KindArray:  "array",
	KindDict:   "dict",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// IsCompound reports whether values of this kind contain sub-values.
func (k Kind) IsCompound() bool {
	return k == KindList || k == KindArray || k == KindDict
}

// HasSimpleLiteral reports whether values of this kind convert from a
// single literal string.
func (k Kind) HasSimpleLiteral() bool {
	switch k {
	case KindNull, KindBool, KindInt, KindFloat, KindString, KindFile:
		return true
	default:
		return false
	}
}

// ListMember describes one named member of a list type.
type ListMember struct {
	Name        string
	Type        *Type
	Optional    bool
	Const       bool
	Description string
}

// Schema is the member schema supplied when registering a type.
// Members applies to list kinds, Elem to array and dict kinds, Extension
// and MimeType to file kinds.
type Schema struct {
	Members     []ListMember
	Elem        *Type
	Implicit    bool
	Description string
	Extension   string // without the leading dot
	MimeType    string
}

// Type is a node in the inheritance tree. Types are immutable once
// registered and safe to share between goroutines.
type Type struct {
	name     string
	parent   *Type
	kind     Kind
	builtin  bool
	implicit bool
	registry *Registry

	// list kinds: own members in declaration order
	members   []ListMember
	memberIdx map[string]int

	// array and dict kinds
	elem *Type

	desc string

	// file kinds
	ext, mime string
}

// Name returns the type name; anonymous types return "".
func (t *Type) Name() string { return t.name }

// Parent returns the parent type; nil only for the root.
func (t *Type) Parent() *Type { return t.parent }

// Kind returns the representation tag.
func (t *Type) Kind() Kind { return t.kind }

// IsBuiltin reports whether the type is one of the seeded built-ins.
func (t *Type) IsBuiltin() bool { return t.builtin }

// IsImplicit reports whether the type is omitted from schema exports.
func (t *Type) IsImplicit() bool { return t.implicit }

// IsAnonymous reports whether the type is an inline schema without a name.
func (t *Type) IsAnonymous() bool { return t.name == "" }

// IsCompound reports whether values of this type contain sub-values.
func (t *Type) IsCompound() bool { return t.kind.IsCompound() }

// Elem returns the element type of an array or dict type, nil otherwise.
func (t *Type) Elem() *Type { return t.elem }

// Registry returns the registry that owns the type.
func (t *Type) Registry() *Registry { return t.registry }

// Description returns the type's own description, "" if none.
func (t *Type) Description() string { return t.desc }

// Extension returns the file name extension of a file type, inherited
// from the nearest ancestor that declares one.
func (t *Type) Extension() string {
	for cur := t; cur != nil; cur = cur.parent {
		if cur.ext != "" {
			return cur.ext
		}
	}
	return ""
}

// MimeType returns the MIME type of a file type, inherited like Extension.
func (t *Type) MimeType() string {
	for cur := t; cur != nil; cur = cur.parent {
		if cur.mime != "" {
			return cur.mime
		}
	}
	return ""
}

// OwnMembers returns the members declared directly on this list type.
func (t *Type) OwnMembers() []ListMember {
	out := make([]ListMember, len(t.members))
	copy(out, t.members)
	return out
}

// DisplayName is the name used in messages: the type name, or the kind
// name in angle brackets for anonymous types.
func (t *Type) DisplayName() string {
	if t == nil {
		return ""
	}
	if t.name != "" {
		return t.name
	}
	switch t.kind {
	case KindArray, KindDict:
		return "<" + t.kind.String() + " of " + t.elem.DisplayName() + ">"
	default:
		return "<" + t.kind.String() + ">"
	}
}

// BaseType returns the nearest built-in ancestor (or t itself).
func (t *Type) BaseType() *Type {
	cur := t
	for cur != nil && !cur.builtin {
		cur = cur.parent
	}
	return cur
}

// IsSubtype reports whether t is ancestor or inherits from it.
func (t *Type) IsSubtype(ancestor *Type) bool {
	return IsSubtype(t, ancestor)
}

// IsSubtype reports whether t is a subtype of ancestor. The relation is
// reflexive and follows the parent chain. An anonymous container type
// additionally accepts any same-kind type whose members conform to it.
func IsSubtype(t, ancestor *Type) bool {
	if t == nil || ancestor == nil {
		return false
	}
	for cur := t; cur != nil; cur = cur.parent {
		if cur == ancestor {
			return true
		}
	}
	if !ancestor.IsAnonymous() || t.kind != ancestor.kind {
		return false
	}
	switch ancestor.kind {
	case KindArray, KindDict:
		return IsSubtype(t.elem, ancestor.elem)
	case KindList:
		for _, want := range Members(ancestor) {
			have, err := ResolveMember(t, want.Name)
			if err != nil {
				if want.Optional {
					continue
				}
				return false
			}
			if !IsSubtype(have.Type, want.Type) {
				return false
			}
		}
		return true
	}
	return false
}

// ContainsKind reports whether values of t can hold a value of kind k:
// t itself has kind k, or one of its members or its element type does.
// ContainsKind(t, KindFile) tells whether a type can carry files.
func ContainsKind(t *Type, k Kind) bool {
	if t == nil {
		return false
	}
	if t.kind == k {
		return true
	}
	switch t.kind {
	case KindList:
		for _, m := range Members(t) {
			if ContainsKind(m.Type, k) {
				return true
			}
		}
	case KindArray, KindDict:
		return ContainsKind(t.elem, k)
	}
	return false
}

// ResolveMember finds a member of a list type, searching its own members
// first and then each list-kind ancestor.
func ResolveMember(t *Type, name string) (ListMember, error) {
	if t == nil || t.kind != KindList {
		return ListMember{}, &TypeError{
			Code:    ErrCodeNoSuchMember,
			Type:    t.DisplayName(),
			Member:  name,
			Message: "type has no members",
		}
	}
	for cur := t; cur != nil && cur.kind == KindList; cur = cur.parent {
		if i, ok := cur.memberIdx[name]; ok {
			return cur.members[i], nil
		}
	}
	return ListMember{}, &TypeError{
		Code:    ErrCodeNoSuchMember,
		Type:    t.DisplayName(),
		Member:  name,
		Message: "no member " + name,
	}
}

// Members returns the full member set of a list type: inherited members
// first, re-declared members in their inherited position.
func Members(t *Type) []ListMember {
	if t == nil || t.kind != KindList {
		return nil
	}
	var out []ListMember
	if t.parent != nil && t.parent.kind == KindList {
		out = Members(t.parent)
	}
	for _, m := range t.members {
		replaced := false
		for i := range out {
			if out[i].Name == m.Name {
				out[i] = m
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, m)
		}
	}
	return out
}

// HasMembers reports whether a list type declares or inherits members.
func HasMembers(t *Type) bool {
	return len(Members(t)) > 0
}
