package value

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"
)

// DomainValue prefixes value content hashes.
const DomainValue = "cpcflow/value/v1"

// Equal reports whether a and b have the same type name and the same
// content. Versions are ignored. Values that cannot be rendered canonically
// (NaN floats) are only equal to themselves.
func Equal(a, b *Value) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	ca, errA := Canonical(a)
	cb, errB := Canonical(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(ca, cb)
}

// Hash returns the hex SHA-256 of the canonical form of v, domain
// separated by DomainValue.
func Hash(v *Value) (string, error) {
	data, err := Canonical(v)
	if err != nil {
		return "", fmt.Errorf("hash value: %w", err)
	}
	h := sha256.New()
	h.Write([]byte(DomainValue))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Canonical renders v as canonical JSON: {"t":type,"v":payload} with
// object keys in UTF-16 code unit order, strings NFC-normalized and no
// HTML escaping. Holes in arrays render as null.
func Canonical(v *Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v *Value) error {
	if v == nil {
		buf.WriteString("null")
		return nil
	}
	buf.WriteString(`{"t":`)
	writeCanonicalString(buf, v.typ.DisplayName())
	buf.WriteString(`,"v":`)
	if err := writePayload(buf, v); err != nil {
		return err
	}
	buf.WriteByte('}')
	return nil
}

func writePayload(buf *bytes.Buffer, v *Value) error {
	switch p := v.payload.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		buf.WriteString(strconv.FormatBool(p))
	case int64:
		buf.WriteString(strconv.FormatInt(p, 10))
	case float64:
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return fmt.Errorf("float %v has no canonical form", p)
		}
		buf.WriteString(strconv.FormatFloat(p, 'g', -1, 64))
	case string:
		writeCanonicalString(buf, p)
	case []*Value:
		buf.WriteByte('[')
		for i, e := range p {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, e); err != nil {
				return fmt.Errorf("[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	case map[string]*Value:
		keys := make([]string, 0, len(p))
		for k := range p {
			keys = append(keys, k)
		}
		slices.SortFunc(keys, compareUTF16)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeCanonicalString(buf, k)
			buf.WriteByte(':')
			if err := writeCanonical(buf, p[k]); err != nil {
				return fmt.Errorf("%q: %w", k, err)
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("unsupported payload %T", p)
	}
	return nil
}

// writeCanonicalString writes s NFC-normalized, escaping only what JSON
// requires.
func writeCanonicalString(buf *bytes.Buffer, s string) {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	// Encoding a string never fails.
	_ = enc.Encode(norm.NFC.String(s))
	buf.Write(bytes.TrimSuffix(tmp.Bytes(), []byte{'\n'}))
}

// compareUTF16 orders keys by UTF-16 code units.
func compareUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	for i := 0; i < len(a16) && i < len(b16); i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	return len(a16) - len(b16)
}
