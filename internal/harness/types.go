package harness

import (
	"github.com/roach88/cpcflow/internal/engine"
	"github.com/roach88/cpcflow/internal/graph"
	"github.com/roach88/cpcflow/internal/value"
)

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success.
	Pass bool `json:"pass"`

	// Errors contains assertion failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Rounds and Invocations are summed over all driver runs.
	Rounds      int `json:"rounds"`
	Invocations int `json:"invocations"`

	// Resumed reports whether the run was interrupted and resumed.
	Resumed bool `json:"resumed"`

	// Snapshot is the final state of the network.
	Snapshot Snapshot `json:"snapshot"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{Pass: true, Errors: []string{}}
}

// AddError adds an assertion failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Snapshot is the deterministic rendering of a network used for golden
// comparison.
type Snapshot struct {
	Scenario  string             `json:"scenario"`
	Instances []InstanceSnapshot `json:"instances"`
}

// InstanceSnapshot renders one instance. Out maps each set output member
// to its rendering (see render).
type InstanceSnapshot struct {
	Name     string            `json:"name"`
	Function string            `json:"function"`
	Parent   string            `json:"parent,omitempty"`
	Dirty    bool              `json:"dirty"`
	Failed   bool              `json:"failed,omitempty"`
	Out      map[string]string `json:"out,omitempty"`
}

func takeSnapshot(name string, e *engine.Engine) Snapshot {
	snap := Snapshot{Scenario: name, Instances: []InstanceSnapshot{}}
	for _, inst := range e.Network().Instances() {
		is := InstanceSnapshot{
			Name:     inst.Name,
			Function: inst.Function.ID,
			Parent:   inst.Parent,
			Dirty:    e.IsDirty(inst.Name),
			Failed:   e.LastError(inst.Name) != nil,
		}
		if out := inst.Ports[graph.DirOut]; out != nil && out.Len() > 0 {
			is.Out = make(map[string]string, out.Len())
			for _, k := range out.Keys() {
				m, _ := out.Member(k)
				is.Out[k] = render(m)
			}
		}
		snap.Instances = append(snap.Instances, is)
	}
	return snap
}

// render formats scalars as literals and compound values as canonical
// JSON.
func render(v *value.Value) string {
	if v == nil {
		return "null"
	}
	if v.Kind().HasSimpleLiteral() {
		if s, err := v.Literal(); err == nil {
			return s
		}
	}
	data, err := value.Canonical(v)
	if err != nil {
		return v.String()
	}
	return string(data)
}
