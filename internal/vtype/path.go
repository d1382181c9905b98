package vtype

import (
	"github.com/roach88/cpcflow/internal/itempath"
)

// TypeAt resolves the declared type reachable at path inside a value of
// type t. Field steps select list members (or dict elements), index and
// append steps select array elements; index steps also select dict
// elements.
func TypeAt(t *Type, path itempath.Path) (*Type, error) {
	cur := t
	for i, step := range path {
		next, err := stepType(cur, step)
		if err != nil {
			if te, ok := err.(*TypeError); ok {
				te.Path = path[:i+1].String()
			}
			return nil, err
		}
		cur = next
	}
	return cur, nil
}

func stepType(t *Type, step itempath.Step) (*Type, error) {
	switch step.Kind {
	case itempath.StepField:
		switch t.kind {
		case KindList:
			m, err := ResolveMember(t, step.Name)
			if err != nil {
				return nil, err
			}
			return m.Type, nil
		case KindDict:
			return t.elem, nil
		}
		return nil, Errorf(ErrCodeIndexMismatch, t, "field %s applied to a %s type", step.Name, t.kind)
	case itempath.StepIndex:
		if t.kind == KindArray || t.kind == KindDict {
			return t.elem, nil
		}
		return nil, Errorf(ErrCodeIndexMismatch, t, "index applied to a %s type", t.kind)
	case itempath.StepAppend:
		if t.kind == KindArray {
			return t.elem, nil
		}
		return nil, Errorf(ErrCodeIndexMismatch, t, "append applied to a %s type", t.kind)
	}
	return nil, Errorf(ErrCodeIndexMismatch, t, "unknown step kind %s", step.Kind)
}
