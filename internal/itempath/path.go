package itempath

import (
	"strconv"
	"strings"
)

// StepKind identifies what a path step selects.
type StepKind int

const (
	// StepField selects a named member of a record (or a key of a dict).
	StepField StepKind = iota
	// StepIndex selects an element by position.
	StepIndex
	// StepAppend selects the position one past the end of an array.
	StepAppend
)

func (k StepKind) String() string {
	switch k {
	case StepField:
		return "field"
	case StepIndex:
		return "index"
	case StepAppend:
		return "append"
	default:
		return "unknown"
	}
}

// Step is one traversal step of a Path.
type Step struct {
	Kind  StepKind
	Name  string // set for StepField
	Index int    // set for StepIndex
}

// Field returns a field step.
func Field(name string) Step {
	return Step{Kind: StepField, Name: name}
}

// Index returns an index step.
func Index(i int) Step {
	return Step{Kind: StepIndex, Index: i}
}

// AppendStep returns the `[+]` step.
func AppendStep() Step {
	return Step{Kind: StepAppend}
}

// String renders the step as it appears after a preceding step.
func (s Step) String() string {
	switch s.Kind {
	case StepIndex:
		return "[" + strconv.Itoa(s.Index) + "]"
	case StepAppend:
		return "[+]"
	default:
		return "." + s.Name
	}
}

// Path is an ordered sequence of steps. The zero value is the empty path,
// which addresses the root value itself.
type Path []Step

// Of builds a path from steps.
func Of(steps ...Step) Path {
	return Path(steps)
}

// String formats the path in the default start-dotted form. A leading
// field is written without its separator.
func (p Path) String() string {
	var b strings.Builder
	for i, s := range p {
		if i == 0 && s.Kind == StepField {
			b.WriteString(s.Name)
			continue
		}
		b.WriteString(s.String())
	}
	return b.String()
}

// Suffix formats the path with an explicit leading separator, the inverse
// of ParseSuffix.
func (p Path) Suffix() string {
	var b strings.Builder
	for _, s := range p {
		b.WriteString(s.String())
	}
	return b.String()
}

// Format is the inverse of Parse.
func Format(p Path) string {
	return p.String()
}

// IsEmpty reports whether the path addresses the root.
func (p Path) IsEmpty() bool {
	return len(p) == 0
}

// HasAppend reports whether the path ends in `[+]`. Only write paths may.
func (p Path) HasAppend() bool {
	return len(p) > 0 && p[len(p)-1].Kind == StepAppend
}

// Head returns the first step and the remaining path. ok is false for the
// empty path.
func (p Path) Head() (first Step, rest Path, ok bool) {
	if len(p) == 0 {
		return Step{}, nil, false
	}
	return p[0], p[1:], true
}

// Append returns a new path with the given steps added. The receiver is
// never modified.
func (p Path) Append(steps ...Step) Path {
	out := make(Path, 0, len(p)+len(steps))
	out = append(out, p...)
	return append(out, steps...)
}

// Join returns p followed by q.
func (p Path) Join(q Path) Path {
	return p.Append(q...)
}

// HasPrefix reports whether q is a prefix of p.
func (p Path) HasPrefix(q Path) bool {
	if len(q) > len(p) {
		return false
	}
	for i := range q {
		if p[i] != q[i] {
			return false
		}
	}
	return true
}

// Equal reports whether two paths have identical steps.
func (p Path) Equal(q Path) bool {
	return len(p) == len(q) && p.HasPrefix(q)
}
