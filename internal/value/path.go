package value

import (
	"fmt"
	"strconv"

	"github.com/roach88/cpcflow/internal/itempath"
	"github.com/roach88/cpcflow/internal/vtype"
)

// Get returns the sub-value reachable at path inside root. A missing
// member, key or element fails with NoSuchPath; a field step on a non-record
// non-dict value, or an index step on a non-array non-dict value, fails
// with IndexMismatch. Append steps never address an existing value.
func Get(root *Value, path itempath.Path) (*Value, error) {
	cur := root
	for i, step := range path {
		if cur == nil {
			return nil, noSuchPath(path[:i+1])
		}
		next, err := child(cur, step)
		if err != nil {
			if te, ok := err.(*vtype.TypeError); ok && te.Path == "" {
				te.Path = path[:i+1].String()
			}
			return nil, err
		}
		if next == nil {
			return nil, noSuchPath(path[:i+1])
		}
		cur = next
	}
	if cur == nil {
		return nil, noSuchPath(path)
	}
	return cur, nil
}

func noSuchPath(p itempath.Path) *vtype.TypeError {
	return &vtype.TypeError{Code: vtype.ErrCodeNoSuchPath, Path: p.String(), Message: "no value at address"}
}

// child returns the direct sub-value selected by step, nil when absent.
func child(v *Value, step itempath.Step) (*Value, error) {
	switch step.Kind {
	case itempath.StepField:
		m, ok := v.payload.(map[string]*Value)
		if !ok {
			return nil, vtype.Errorf(vtype.ErrCodeIndexMismatch, v.typ, "field %s on a %s value", step.Name, v.typ.Kind())
		}
		return m[step.Name], nil
	case itempath.StepIndex:
		switch p := v.payload.(type) {
		case []*Value:
			if step.Index >= len(p) {
				return nil, nil
			}
			return p[step.Index], nil
		case map[string]*Value:
			if v.typ.Kind() == vtype.KindDict {
				return p[strconv.Itoa(step.Index)], nil
			}
		}
		return nil, vtype.Errorf(vtype.ErrCodeIndexMismatch, v.typ, "index on a %s value", v.typ.Kind())
	case itempath.StepAppend:
		return nil, nil
	}
	return nil, fmt.Errorf("unknown step kind %s", step.Kind)
}

// MaxArrayGap bounds how far past the end of an array an index step may
// write. The elements skipped over are left as holes.
const MaxArrayGap = 1024

// Set returns a new root with v stored at path. rootType is the declared
// type of the root slot; the type of v must be a subtype of the type the
// schema declares at path, else SchemaViolation.
//
// Only the nodes on the path from the root to the target are copied, each
// with its version incremented; all other subtrees are shared with root.
// Missing intermediate containers are created empty from the schema, arrays
// grow with holes (at most MaxArrayGap past the end, else NoSuchPath) and
// an append step adds an element. When v is
// content-equal to the value already stored at path, root itself is
// returned.
func Set(root *Value, rootType *vtype.Type, path itempath.Path, v *Value) (*Value, error) {
	if v == nil {
		return nil, &vtype.TypeError{Code: vtype.ErrCodeSchemaViolation, Path: path.String(), Message: "cannot store a nil value"}
	}
	declared, err := vtype.TypeAt(rootType, path)
	if err != nil {
		return nil, err
	}
	if !v.typ.IsSubtype(declared) {
		return nil, &vtype.TypeError{
			Code:    vtype.ErrCodeSchemaViolation,
			Type:    v.typ.DisplayName(),
			Path:    path.String(),
			Message: fmt.Sprintf("value of type %s does not fit declared %s", v.typ.DisplayName(), declared.DisplayName()),
		}
	}
	out, _, err := setAt(root, rootType, path, v)
	if err != nil {
		if te, ok := err.(*vtype.TypeError); ok && te.Path == "" {
			te.Path = path.String()
		}
		return nil, err
	}
	return out, nil
}

// setAt stores v under node. It reports whether anything changed.
func setAt(node *Value, nodeType *vtype.Type, path itempath.Path, v *Value) (*Value, bool, error) {
	if len(path) == 0 {
		if node != nil && Equal(node, v) {
			return node, false, nil
		}
		return v.withVersion(node.Version() + 1), true, nil
	}

	if node == nil {
		empty, err := Empty(nodeType)
		if err != nil {
			return nil, false, err
		}
		node = empty
	}
	step := path[0]
	// Member types follow the stored node, which may be a subtype of the
	// declared one.
	childType, err := vtype.TypeAt(node.typ, path[:1])
	if err != nil {
		return nil, false, err
	}

	switch p := node.payload.(type) {
	case map[string]*Value:
		key := step.Name
		switch {
		case step.Kind == itempath.StepIndex && node.typ.Kind() == vtype.KindDict:
			key = strconv.Itoa(step.Index)
		case step.Kind != itempath.StepField:
			return nil, false, vtype.Errorf(vtype.ErrCodeIndexMismatch, node.typ, "%s step on a %s value", step.Kind, node.typ.Kind())
		}
		sub, changed, err := setAt(p[key], childType, path[1:], v)
		if err != nil || !changed {
			return node, changed, err
		}
		m := make(map[string]*Value, len(p)+1)
		for k, e := range p {
			m[k] = e
		}
		m[key] = sub
		return &Value{typ: node.typ, version: node.version + 1, payload: m}, true, nil

	case []*Value:
		idx := len(p)
		switch step.Kind {
		case itempath.StepIndex:
			idx = step.Index
		case itempath.StepAppend:
		default:
			return nil, false, vtype.Errorf(vtype.ErrCodeIndexMismatch, node.typ, "field %s on an array value", step.Name)
		}
		if idx < 0 || idx-len(p) > MaxArrayGap {
			return nil, false, &vtype.TypeError{
				Code:    vtype.ErrCodeNoSuchPath,
				Message: fmt.Sprintf("index %d is more than %d past the end of a %d element array", idx, MaxArrayGap, len(p)),
			}
		}
		var existing *Value
		if idx < len(p) {
			existing = p[idx]
		}
		sub, changed, err := setAt(existing, childType, path[1:], v)
		if err != nil || !changed {
			return node, changed, err
		}
		n := len(p)
		if idx >= n {
			n = idx + 1
		}
		arr := make([]*Value, n)
		copy(arr, p)
		arr[idx] = sub
		return &Value{typ: node.typ, version: node.version + 1, payload: arr}, true, nil
	}
	return nil, false, vtype.Errorf(vtype.ErrCodeIndexMismatch, node.typ, "%s step on a %s value", step.Kind, node.typ.Kind())
}
