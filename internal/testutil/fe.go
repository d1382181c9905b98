// Package testutil holds fixtures shared by tests of several packages.
package testutil

import (
	"context"
	"fmt"

	"github.com/roach88/cpcflow/internal/engine"
	"github.com/roach88/cpcflow/internal/graph"
	"github.com/roach88/cpcflow/internal/value"
	"github.com/roach88/cpcflow/internal/vtype"
)

// FE fixture constants.
const (
	FENSteps = 100

	// FEPrecision makes the growth loop settle after five iterations:
	// the estimate's error is 1/(n-1) for n samples.
	FEPrecision = 0.3
	FEFinalRuns = 5
)

// FESample is the deterministic free energy reported by iteration i.
func FESample(i int64) float64 { return 10 + float64(i) }

// FEEstimate averages the samples, ignoring the first (equilibration)
// one, and returns the mean and its error.
func FEEstimate(samples []float64) (mean, err float64) {
	n := len(samples) - 1
	if n < 1 {
		return 0, 0
	}
	for _, s := range samples[1:] {
		mean += s
	}
	return mean / float64(n), 1 / float64(n)
}

// FEWorkflow builds the registry and library of a self-expanding free
// energy workflow. The "fe" controller adds "iter_<i>" children until the
// error of its estimate drops below its precision input; each child
// reports one sample back into the controller's sub_in.dG array.
func FEWorkflow() (*vtype.Registry, *engine.Library, error) {
	r := vtype.NewRegistry()
	lib := engine.NewLibrary()
	if err := RegisterFE(r, lib); err != nil {
		return nil, nil, err
	}
	return r, lib, nil
}

// RegisterFE declares the fe and fe_iter functions and their types.
func RegisterFE(r *vtype.Registry, lib *engine.Library) error {
	list := func(name string, members ...vtype.ListMember) (*vtype.Type, error) {
		return r.Register(name, r.List(), vtype.Schema{Members: members, Implicit: true})
	}

	samples, err := r.NewArray(r.Float())
	if err != nil {
		return err
	}
	result, err := r.Register("fe_result", r.List(), vtype.Schema{Members: []vtype.ListMember{
		{Name: "value", Type: r.Float()},
		{Name: "error", Type: r.Float()},
	}})
	if err != nil {
		return err
	}

	feIn, err := list("fe.in", vtype.ListMember{Name: "precision", Type: r.Float(), Optional: true})
	if err != nil {
		return err
	}
	feOut, err := list("fe.out", vtype.ListMember{Name: "delta_f", Type: result})
	if err != nil {
		return err
	}
	feSubIn, err := list("fe.sub_in", vtype.ListMember{Name: "dG", Type: samples})
	if err != nil {
		return err
	}
	feSubOut, err := list("fe.sub_out", vtype.ListMember{Name: "nsteps", Type: r.Int()})
	if err != nil {
		return err
	}
	iterIn, err := list("fe_iter.in",
		vtype.ListMember{Name: "nsteps", Type: r.Int()},
		vtype.ListMember{Name: "index", Type: r.Int()},
	)
	if err != nil {
		return err
	}
	iterOut, err := list("fe_iter.out", vtype.ListMember{Name: "dG", Type: r.Float()})
	if err != nil {
		return err
	}

	err = lib.Add(&graph.Function{
		ID:            "fe",
		Inputs:        feIn,
		Outputs:       feOut,
		SubnetInputs:  feSubIn,
		SubnetOutputs: feSubOut,
	}, FEBody)
	if err != nil {
		return err
	}
	return lib.Add(&graph.Function{ID: "fe_iter", Inputs: iterIn, Outputs: iterOut}, FEIterBody)
}

// DefineFE returns a top-level definition with one "fe" instance whose
// precision is fed by a literal.
func DefineFE(r *vtype.Registry, precision float64) func(tx *graph.Tx) error {
	return func(tx *graph.Tx) error {
		if _, err := tx.AddInstance("fe", "fe"); err != nil {
			return err
		}
		return tx.AddConnection("", "fe:in.precision", value.Float(r, precision))
	}
}

func addIteration(r *vtype.Registry, out engine.Outputs, i int) error {
	name := fmt.Sprintf("iter_%d", i)
	if _, err := out.AddInstance(name, "fe_iter"); err != nil {
		return err
	}
	if err := out.AddConnection("self:sub_out.nsteps", name+":in.nsteps", nil); err != nil {
		return err
	}
	if err := out.AddConnection("", name+":in.index", value.Int(r, int64(i))); err != nil {
		return err
	}
	return out.AddConnection(name+":out.dG", fmt.Sprintf("self:sub_in.dG[%d]", i), nil)
}

func intRecord(p *engine.Persistence, key string) int {
	v := p.Get(key)
	if v == nil {
		return 0
	}
	n, _ := v.AsInt()
	return int(n)
}

// FEBody is the task body of the "fe" controller.
func FEBody(_ context.Context, in engine.Inputs, out engine.Outputs) error {
	r := in.Registry()
	pers := in.Persistence()

	nruns := intRecord(pers, "nruns")
	if nruns == 0 {
		if err := out.SetSubnetOut("nsteps", value.Int(r, FENSteps)); err != nil {
			return err
		}
		for i := 0; i < 2; i++ {
			if err := addIteration(r, out, i); err != nil {
				return err
			}
		}
		nruns = 2
	}

	dG, err := in.GetSubnetInput("dG")
	if err != nil {
		return err
	}
	var samples []float64
	for i := 0; dG != nil && i < dG.Len(); i++ {
		s, ok := dG.Elem(i)
		if !ok {
			break
		}
		f, _ := s.AsFloat()
		samples = append(samples, f)
	}

	handled := intRecord(pers, "handled")
	if len(samples) == nruns && len(samples) != handled {
		mean, stderr := FEEstimate(samples)
		precision := 1.0
		if p := in.GetInput("precision"); p != nil {
			precision, _ = p.AsFloat()
		}
		if stderr > precision {
			if err := addIteration(r, out, nruns); err != nil {
				return err
			}
			nruns++
		}
		if err := out.SetSubOut("delta_f.value", value.Float(r, mean)); err != nil {
			return err
		}
		if err := out.SetSubOut("delta_f.error", value.Float(r, stderr)); err != nil {
			return err
		}
		handled = len(samples)
	}

	pers.Set("nruns", value.Int(r, int64(nruns)))
	pers.Set("handled", value.Int(r, int64(handled)))
	return nil
}

// FEIterBody is the task body of one "fe_iter" child.
func FEIterBody(_ context.Context, in engine.Inputs, out engine.Outputs) error {
	idx := in.GetInput("index")
	if idx == nil {
		return fmt.Errorf("index input is not set")
	}
	i, _ := idx.AsInt()
	return out.SetOut("dG", value.Float(in.Registry(), FESample(i)))
}
