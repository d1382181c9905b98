package itempath

import (
	"fmt"
	"strconv"
)

// Separator separates dotted field steps.
const Separator = '.'

// SyntaxError reports a malformed path string.
type SyntaxError struct {
	Input  string
	Offset int
	Reason string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("couldn't parse %q at offset %d: %s", e.Input, e.Offset, e.Reason)
}

// Parse parses a path in the default start-dotted form, where the first
// token is a field name unless the string starts with a bracket.
func Parse(s string) (Path, error) {
	if s == "" {
		return nil, &SyntaxError{Input: s, Reason: "empty path"}
	}
	return parse(s, true)
}

// ParseSuffix parses a path that begins with an explicit separator, such
// as ".a[1]" or "[0].b". The empty string is the empty path.
func ParseSuffix(s string) (Path, error) {
	return parse(s, false)
}

// MustParse is Parse for package-level constants and tests.
func MustParse(s string) Path {
	p, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return p
}

type parseState int

const (
	stateDotted parseState = iota // reading a field name
	stateBracket                  // inside [...]
	stateBetween                  // after ']' expecting '.', '[' or end
)

func parse(s string, startDotted bool) (Path, error) {
	var out Path
	state := stateBetween
	if startDotted && s[0] != '[' {
		state = stateDotted
	}

	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch state {
		case stateDotted:
			switch c {
			case Separator, '[':
				if i == start {
					return nil, &SyntaxError{Input: s, Offset: i, Reason: "empty field name"}
				}
				out = append(out, Field(s[start:i]))
				start = i + 1
				if c == '[' {
					state = stateBracket
				}
			case ']':
				return nil, &SyntaxError{Input: s, Offset: i, Reason: "unexpected ']'"}
			}
		case stateBracket:
			if c != ']' {
				continue
			}
			step, err := parseBracket(s, start, i)
			if err != nil {
				return nil, err
			}
			out = append(out, step)
			state = stateBetween
		case stateBetween:
			switch c {
			case Separator:
				state = stateDotted
			case '[':
				state = stateBracket
			default:
				return nil, &SyntaxError{Input: s, Offset: i, Reason: fmt.Sprintf("unexpected %q", c)}
			}
			start = i + 1
		}
	}

	switch state {
	case stateDotted:
		if start == len(s) {
			return nil, &SyntaxError{Input: s, Offset: len(s), Reason: "empty field name"}
		}
		out = append(out, Field(s[start:]))
	case stateBracket:
		return nil, &SyntaxError{Input: s, Offset: len(s), Reason: "unclosed square bracket"}
	}

	for i, step := range out {
		if step.Kind == StepAppend && i != len(out)-1 {
			return nil, &SyntaxError{Input: s, Reason: "'+' is only allowed as the last step"}
		}
	}
	return out, nil
}

// parseBracket parses s[start:end], the content between '[' and ']'.
func parseBracket(s string, start, end int) (Step, error) {
	content := s[start:end]
	if content == "" {
		return Step{}, &SyntaxError{Input: s, Offset: start, Reason: "empty brackets"}
	}
	if content == "+" {
		return AppendStep(), nil
	}
	if !isCanonicalIndex(content) {
		return Step{}, &SyntaxError{Input: s, Offset: start, Reason: fmt.Sprintf("bracket content %q is not an integer or '+'", content)}
	}
	n, err := strconv.Atoi(content)
	if err != nil {
		return Step{}, &SyntaxError{Input: s, Offset: start, Reason: fmt.Sprintf("index %q out of range", content)}
	}
	return Index(n), nil
}

// isCanonicalIndex accepts "0" and decimals without leading zeros.
func isCanonicalIndex(s string) bool {
	if s == "0" {
		return true
	}
	if s[0] < '1' || s[0] > '9' {
		return false
	}
	for i := 1; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
