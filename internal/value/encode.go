package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/roach88/cpcflow/internal/vtype"
)

// wireValue is the persisted form of a value:
//
//	{"t": <type name or inline schema>, "n": <version>, "v": <payload>}
//
// Record and dict payloads are objects of nested wire values, array
// payloads are lists of nested wire values with null marking a hole. Owned
// files carry "o": true.
type wireValue struct {
	T json.RawMessage `json:"t"`
	N int64           `json:"n"`
	V json.RawMessage `json:"v"`
	O bool            `json:"o,omitempty"`
}

var jsonNull = json.RawMessage("null")

// Marshal encodes v in the shared value encoding.
func Marshal(v *Value) ([]byte, error) {
	if v == nil {
		return nil, fmt.Errorf("marshal value: nil value")
	}
	ref, err := vtype.RefOf(v.typ)
	if err != nil {
		return nil, fmt.Errorf("marshal value: type ref: %w", err)
	}
	payload, err := marshalPayload(v)
	if err != nil {
		return nil, fmt.Errorf("marshal value: %w", err)
	}
	return json.Marshal(wireValue{T: ref, N: v.version, V: payload, O: v.owned})
}

func marshalPayload(v *Value) (json.RawMessage, error) {
	switch p := v.payload.(type) {
	case nil:
		return jsonNull, nil
	case float64:
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return nil, fmt.Errorf("float %v cannot be encoded", p)
		}
		return json.RawMessage(strconv.FormatFloat(p, 'g', -1, 64)), nil
	case bool, int64, string:
		return json.Marshal(p)
	case []*Value:
		elems := make([]json.RawMessage, len(p))
		for i, e := range p {
			if e == nil {
				elems[i] = jsonNull
				continue
			}
			data, err := Marshal(e)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			elems[i] = data
		}
		return json.Marshal(elems)
	case map[string]*Value:
		obj := make(map[string]json.RawMessage, len(p))
		for k, e := range p {
			data, err := Marshal(e)
			if err != nil {
				return nil, fmt.Errorf("%q: %w", k, err)
			}
			obj[k] = data
		}
		return json.Marshal(obj)
	}
	return nil, fmt.Errorf("unsupported payload %T", v.payload)
}

// Unmarshal decodes a value produced by Marshal, resolving type references
// against r. The decoded value is validated like a freshly constructed one.
func Unmarshal(r *vtype.Registry, data []byte) (*Value, error) {
	var w wireValue
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("unmarshal value: %w", err)
	}
	if len(w.T) == 0 {
		return nil, fmt.Errorf("unmarshal value: missing type")
	}
	t, err := r.ResolveRef(w.T)
	if err != nil {
		return nil, fmt.Errorf("unmarshal value: %w", err)
	}
	v, err := decodePayload(r, t, w)
	if err != nil {
		return nil, fmt.Errorf("unmarshal %s value: %w", t.DisplayName(), err)
	}
	v.version = w.N
	return v, nil
}

func decodePayload(r *vtype.Registry, t *vtype.Type, w wireValue) (*Value, error) {
	switch t.Kind() {
	case vtype.KindNull:
		return New(t, nil)
	case vtype.KindBool:
		var b bool
		if err := json.Unmarshal(w.V, &b); err != nil {
			return nil, err
		}
		return New(t, b)
	case vtype.KindInt, vtype.KindFloat:
		var n json.Number
		if err := json.Unmarshal(w.V, &n); err != nil {
			return nil, err
		}
		if t.Kind() == vtype.KindInt {
			i, err := n.Int64()
			if err != nil {
				return nil, err
			}
			return New(t, i)
		}
		f, err := n.Float64()
		if err != nil {
			return nil, err
		}
		return New(t, f)
	case vtype.KindString, vtype.KindFile:
		var s string
		if err := json.Unmarshal(w.V, &s); err != nil {
			return nil, err
		}
		if t.Kind() == vtype.KindFile {
			return File(t, s, w.O)
		}
		return New(t, s)
	case vtype.KindList, vtype.KindDict:
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(w.V, &raw); err != nil {
			return nil, err
		}
		m := make(map[string]*Value, len(raw))
		for k, data := range raw {
			sub, err := Unmarshal(r, data)
			if err != nil {
				return nil, fmt.Errorf("%q: %w", k, err)
			}
			m[k] = sub
		}
		if t.Kind() == vtype.KindList {
			return Record(t, m)
		}
		return Dict(t, m)
	case vtype.KindArray:
		var raw []json.RawMessage
		if err := json.Unmarshal(w.V, &raw); err != nil {
			return nil, err
		}
		elems := make([]*Value, len(raw))
		for i, data := range raw {
			if bytes.Equal(bytes.TrimSpace(data), jsonNull) {
				continue
			}
			sub, err := Unmarshal(r, data)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			elems[i] = sub
		}
		return Array(t, elems)
	}
	return nil, vtype.Errorf(vtype.ErrCodeSchemaViolation, t, "%s values cannot be decoded", t.Kind())
}
