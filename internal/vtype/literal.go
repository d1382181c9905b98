package vtype

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseLiteral converts a literal string into the Go representation used
// for values of type t: nil, bool, int64, float64 or string. Compound
// types have no literal form.
func ParseLiteral(t *Type, s string) (any, error) {
	if t == nil {
		return nil, &TypeError{Code: ErrCodeLiteralParse, Message: "no type given for literal"}
	}
	switch t.kind {
	case KindNull:
		if s == "" || strings.EqualFold(s, "null") {
			return nil, nil
		}
		return nil, Errorf(ErrCodeLiteralParse, t, "%q is not null", s)
	case KindBool:
		switch {
		case strings.EqualFold(s, "true") || s == "1":
			return true, nil
		case strings.EqualFold(s, "false") || s == "0":
			return false, nil
		}
		return nil, Errorf(ErrCodeLiteralParse, t, "%s is neither true nor false", s)
	case KindInt:
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return nil, Errorf(ErrCodeLiteralParse, t, "%s is not an integer", s)
		}
		return n, nil
	case KindFloat:
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil, Errorf(ErrCodeLiteralParse, t, "%s is not a float number", s)
		}
		return f, nil
	case KindString, KindFile:
		return s, nil
	default:
		return nil, Errorf(ErrCodeLiteralParse, t, "%s values have no literal form", t.kind)
	}
}

// FormatLiteral is the inverse of ParseLiteral.
func FormatLiteral(t *Type, v any) (string, error) {
	if t == nil {
		return "", &TypeError{Code: ErrCodeLiteralParse, Message: "no type given for literal"}
	}
	switch t.kind {
	case KindNull:
		return "null", nil
	case KindBool:
		if b, ok := v.(bool); ok {
			return strconv.FormatBool(b), nil
		}
	case KindInt:
		if n, ok := v.(int64); ok {
			return strconv.FormatInt(n, 10), nil
		}
	case KindFloat:
		if f, ok := v.(float64); ok {
			return strconv.FormatFloat(f, 'g', -1, 64), nil
		}
	case KindString, KindFile:
		if s, ok := v.(string); ok {
			return s, nil
		}
	default:
		return "", Errorf(ErrCodeLiteralParse, t, "%s values have no literal form", t.kind)
	}
	return "", Errorf(ErrCodeLiteralParse, t, "unexpected representation %s", fmt.Sprintf("%T", v))
}
