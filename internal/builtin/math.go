// Package builtin provides the function library every network can use
// without declaring it: the math:: functions.
package builtin

import (
	"context"
	"fmt"
	"math"

	"github.com/roach88/cpcflow/internal/engine"
	"github.com/roach88/cpcflow/internal/graph"
	"github.com/roach88/cpcflow/internal/value"
	"github.com/roach88/cpcflow/internal/vtype"
)

// Namespace prefixes the ids of all builtin functions.
const Namespace = "math::"

type mathFunc struct {
	name   string
	args   []string
	result string
	eval   func(args []float64) float64
}

// exp reports on "b", the other functions on "c".
var mathFuncs = []mathFunc{
	{name: "sqrt", args: []string{"a"}, result: "c", eval: func(x []float64) float64 { return math.Sqrt(x[0]) }},
	{name: "pow", args: []string{"a", "b"}, result: "c", eval: func(x []float64) float64 { return math.Pow(x[0], x[1]) }},
	{name: "exp", args: []string{"a"}, result: "b", eval: func(x []float64) float64 { return math.Exp(x[0]) }},
	{name: "sin", args: []string{"a"}, result: "c", eval: func(x []float64) float64 { return math.Sin(x[0]) }},
	{name: "cos", args: []string{"a"}, result: "c", eval: func(x []float64) float64 { return math.Cos(x[0]) }},
	{name: "pi", result: "c", eval: func([]float64) float64 { return math.Pi }},
}

// Register declares the math functions in r and adds them with their
// bodies to lib.
func Register(r *vtype.Registry, lib *engine.Library) error {
	for _, mf := range mathFuncs {
		id := Namespace + mf.name
		f := &graph.Function{ID: id}

		if len(mf.args) > 0 {
			members := make([]vtype.ListMember, 0, len(mf.args))
			for _, a := range mf.args {
				members = append(members, vtype.ListMember{Name: a, Type: r.Float()})
			}
			in, err := r.Register(id+".in", r.List(), vtype.Schema{Members: members, Implicit: true})
			if err != nil {
				return fmt.Errorf("register %s: %w", id, err)
			}
			f.Inputs = in
		}
		out, err := r.Register(id+".out", r.List(), vtype.Schema{
			Members:  []vtype.ListMember{{Name: mf.result, Type: r.Float()}},
			Implicit: true,
		})
		if err != nil {
			return fmt.Errorf("register %s: %w", id, err)
		}
		f.Outputs = out

		if err := lib.Add(f, mf.body()); err != nil {
			return err
		}
	}
	return nil
}

// body evaluates the function once every argument has a value. Until then
// it succeeds without output, so the instance runs again when the
// missing inputs arrive.
func (mf mathFunc) body() engine.Body {
	return func(_ context.Context, in engine.Inputs, out engine.Outputs) error {
		args := make([]float64, len(mf.args))
		for i, name := range mf.args {
			v := in.GetInput(name)
			if v == nil {
				return nil
			}
			f, ok := v.AsFloat()
			if !ok {
				return fmt.Errorf("%s%s: input %s is not a float", Namespace, mf.name, name)
			}
			args[i] = f
		}
		return out.SetOut(mf.result, value.Float(in.Registry(), mf.eval(args)))
	}
}
