package vtype

import (
	"encoding/json"
	"fmt"
)

// Document is the structured export of a registry's user-defined types.
type Document struct {
	Types []TypeDoc `json:"types"`
}

// TypeDoc describes one type. Name is empty for inline anonymous schemas.
type TypeDoc struct {
	Name        string     `json:"name,omitempty"`
	Base        string     `json:"base"`
	Kind        string     `json:"kind"`
	Description string     `json:"description,omitempty"`
	Extension   string     `json:"extension,omitempty"`
	MimeType    string     `json:"mime_type,omitempty"`
	Fields      []FieldDoc `json:"fields,omitempty"`
	Member      *FieldDoc  `json:"member,omitempty"`
}

// FieldDoc describes a list member, or the element of an array or dict
// (Name empty). Schema is set when the member type is an anonymous
// compound type.
type FieldDoc struct {
	Name        string   `json:"name,omitempty"`
	Type        string   `json:"type"`
	Optional    bool     `json:"optional,omitempty"`
	Const       bool     `json:"const,omitempty"`
	Description string   `json:"description,omitempty"`
	Schema      *TypeDoc `json:"schema,omitempty"`
}

// Export lists every non-builtin, non-implicit type in registration order.
// Field declaration order is preserved.
func (r *Registry) Export() Document {
	doc := Document{Types: []TypeDoc{}}
	for _, t := range r.Types() {
		if t.builtin || t.implicit {
			continue
		}
		doc.Types = append(doc.Types, Describe(t))
	}
	return doc
}

// ExportJSON renders Export as indented JSON with a trailing newline.
func (r *Registry) ExportJSON() ([]byte, error) {
	data, err := json.MarshalIndent(r.Export(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("export schema: %w", err)
	}
	return append(data, '\n'), nil
}

// Describe returns the document form of a single type.
func Describe(t *Type) TypeDoc {
	doc := TypeDoc{
		Name:        t.name,
		Kind:        t.kind.String(),
		Description: t.desc,
		Extension:   t.ext,
		MimeType:    t.mime,
	}
	if t.parent != nil {
		doc.Base = t.parent.name
	}
	switch t.kind {
	case KindList:
		for _, m := range t.members {
			f := describeField(m.Type)
			f.Name = m.Name
			f.Optional = m.Optional
			f.Const = m.Const
			f.Description = m.Description
			doc.Fields = append(doc.Fields, f)
		}
	case KindArray, KindDict:
		if t.elem != nil && (t.parent == nil || t.elem != t.parent.elem) {
			f := describeField(t.elem)
			doc.Member = &f
		}
	}
	return doc
}

func describeField(t *Type) FieldDoc {
	if t.IsAnonymous() {
		inline := Describe(t)
		return FieldDoc{Type: inline.Base, Schema: &inline}
	}
	return FieldDoc{Type: t.name}
}

// RefOf returns the JSON form of a reference to t: the type name for named
// types, the inline document for anonymous ones.
func RefOf(t *Type) (json.RawMessage, error) {
	if t.IsAnonymous() {
		return json.Marshal(Describe(t))
	}
	return json.Marshal(t.name)
}

// ResolveRef resolves a reference produced by RefOf, rebuilding inline
// anonymous types against this registry.
func (r *Registry) ResolveRef(raw json.RawMessage) (*Type, error) {
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		return r.MustLookup(name)
	}
	var doc TypeDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, &TypeError{Code: ErrCodeUnknownType, Message: fmt.Sprintf("malformed type reference: %v", err)}
	}
	return r.FromDoc(doc)
}

// FromDoc builds an anonymous type from an inline document.
func (r *Registry) FromDoc(doc TypeDoc) (*Type, error) {
	switch doc.Base {
	case "list":
		members := make([]ListMember, 0, len(doc.Fields))
		for _, f := range doc.Fields {
			mt, err := r.fieldType(f)
			if err != nil {
				return nil, err
			}
			members = append(members, ListMember{Name: f.Name, Type: mt, Optional: f.Optional, Const: f.Const, Description: f.Description})
		}
		return r.NewList(members...)
	case "array", "dict":
		elem := r.root
		if doc.Member != nil {
			var err error
			if elem, err = r.fieldType(*doc.Member); err != nil {
				return nil, err
			}
		}
		if doc.Base == "array" {
			return r.NewArray(elem)
		}
		return r.NewDict(elem)
	}
	return nil, &TypeError{Code: ErrCodeInvalidSchema, Type: doc.Base, Message: "inline schemas must derive from list, array or dict"}
}

func (r *Registry) fieldType(f FieldDoc) (*Type, error) {
	if f.Schema != nil {
		return r.FromDoc(*f.Schema)
	}
	return r.MustLookup(f.Type)
}
