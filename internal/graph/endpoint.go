package graph

import (
	"strings"

	"github.com/roach88/cpcflow/internal/itempath"
)

// Self names the owner of a transaction in an endpoint.
const Self = "self"

// Endpoint addresses a sub-value of one port of one instance.
type Endpoint struct {
	Instance string
	Dir      Direction
	Path     itempath.Path
}

// ParseEndpoint parses "instance:dir.path". The path part is optional and
// uses the suffix form, so "a:out", "a:out.x[2]" and "a:in[0]" are all
// valid. Append steps are not allowed in endpoints.
func ParseEndpoint(s string) (Endpoint, error) {
	inst, rest, ok := strings.Cut(s, ":")
	if !ok || inst == "" {
		return Endpoint{}, structErr(ErrCodeInvalidEndpoint, "", "endpoint %q: expected instance:dir.path", s)
	}
	end := strings.IndexAny(rest, ".[")
	if end < 0 {
		end = len(rest)
	}
	dir, ok := ParseDirection(rest[:end])
	if !ok {
		return Endpoint{}, structErr(ErrCodeInvalidEndpoint, inst, "endpoint %q: unknown direction %q", s, rest[:end])
	}
	path, err := itempath.ParseSuffix(rest[end:])
	if err != nil {
		return Endpoint{}, &StructureError{Code: ErrCodeInvalidEndpoint, Instance: inst, Message: "endpoint " + s, Err: err}
	}
	if path.HasAppend() {
		return Endpoint{}, structErr(ErrCodeInvalidEndpoint, inst, "endpoint %q: append steps cannot be connected", s)
	}
	return Endpoint{Instance: inst, Dir: dir, Path: path}, nil
}

// String formats the endpoint; ParseEndpoint(e.String()) == e.
func (e Endpoint) String() string {
	return e.Instance + ":" + e.Dir.String() + e.Path.Suffix()
}

// key identifies a destination slot.
func (e Endpoint) key() string { return e.String() }
