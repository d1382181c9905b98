package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/roach88/cpcflow/internal/graph"
)

// Body is a task body. It reads its instance's inputs through in and
// declares outputs, sub-instances, connections and persistence records
// through out. Nothing it declares is visible until it returns nil; on
// error everything it declared is discarded.
type Body func(ctx context.Context, in Inputs, out Outputs) error

// Library binds function declarations to task bodies.
type Library struct {
	funcs  graph.FunctionSet
	bodies map[string]Body
}

// NewLibrary creates an empty library.
func NewLibrary() *Library {
	return &Library{
		funcs:  make(graph.FunctionSet),
		bodies: make(map[string]Body),
	}
}

// Add declares a function. body may be nil for functions that are only
// ever wired, never run.
func (l *Library) Add(f *graph.Function, body Body) error {
	if err := f.Validate(); err != nil {
		return err
	}
	if _, dup := l.funcs[f.ID]; dup {
		return fmt.Errorf("function %s declared twice", f.ID)
	}
	l.funcs[f.ID] = f
	if body != nil {
		l.bodies[f.ID] = body
	}
	return nil
}

// Bind attaches a body to an already declared function, replacing any
// previous one.
func (l *Library) Bind(id string, body Body) error {
	if _, ok := l.funcs[id]; !ok {
		return fmt.Errorf("function %s is not declared", id)
	}
	l.bodies[id] = body
	return nil
}

// Function returns a declaration.
func (l *Library) Function(id string) (*graph.Function, bool) {
	f, ok := l.funcs[id]
	return f, ok
}

// Functions returns all declarations.
func (l *Library) Functions() graph.FunctionSet { return l.funcs }

// IDs returns the declared function ids, sorted.
func (l *Library) IDs() []string {
	ids := make([]string, 0, len(l.funcs))
	for id := range l.funcs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Body returns the task body of a function.
func (l *Library) Body(id string) (Body, bool) {
	b, ok := l.bodies[id]
	return b, ok
}
