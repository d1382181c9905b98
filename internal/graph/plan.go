package graph

import (
	"fmt"
	"sort"

	"github.com/roach88/cpcflow/internal/itempath"
	"github.com/roach88/cpcflow/internal/value"
	"github.com/roach88/cpcflow/internal/vtype"
)

// maxDeliveries bounds propagation within one batch. The dependency graph
// is acyclic, so a batch that reaches this bound is a bug.
const maxDeliveries = 1 << 20

// Plan is a validated batch with its resulting graph state computed but
// not yet visible. It holds the network's writer lock until Apply or
// Discard is called, exactly once.
type Plan struct {
	n       *Network
	owner   string
	touched []*Instance // new and changed instances, by creation order
	created map[string]bool
	conns   []*Connection
	done    bool
}

// Prepare validates the whole transaction against the current graph and
// computes its effect. On error, or a panic, the lock is released and
// nothing changed.
func (n *Network) Prepare(tx *Tx) (*Plan, error) {
	if tx.n != n {
		return nil, fmt.Errorf("prepare: transaction belongs to another network")
	}
	ops, err := tx.snapshotOps()
	if err != nil {
		return nil, err
	}

	n.mu.Lock()
	held := true
	defer func() {
		if held {
			n.mu.Unlock()
		}
	}()
	st := newStage(n, tx.owner)
	for _, o := range ops {
		if err := st.apply(o); err != nil {
			return nil, err
		}
	}
	plan, err := st.compute()
	if err != nil {
		return nil, err
	}
	// The plan owns the lock from here until Apply or Discard.
	held = false
	return plan, nil
}

// Owner returns the owner of the prepared transaction.
func (p *Plan) Owner() string { return p.owner }

// Instances returns the new state of every created or changed instance.
func (p *Plan) Instances() []*Instance { return p.touched }

// Connections returns the new connections and replaced literal
// connections.
func (p *Plan) Connections() []*Connection { return p.conns }

// IsCreated reports whether the batch creates the named instance.
func (p *Plan) IsCreated(name string) bool { return p.created[name] }

// IsEmpty reports whether applying the plan would change nothing.
func (p *Plan) IsEmpty() bool { return len(p.touched) == 0 && len(p.conns) == 0 }

// Apply makes the batch visible and releases the writer lock. Owned files
// only referenced by superseded port values are released.
func (p *Plan) Apply() {
	if p.done {
		return
	}
	p.done = true
	n := p.n
	defer n.mu.Unlock()

	// New holders are counted before superseded ones are dropped, so a file
	// moving between instances within one batch is never removed.
	var superseded []*value.Value
	for _, inst := range p.touched {
		old, exists := n.instances[inst.Name]
		for _, d := range Directions {
			if exists && old.Ports[d] == inst.Ports[d] {
				continue
			}
			n.files.Retain(inst.Ports[d])
			if exists {
				superseded = append(superseded, old.Ports[d])
			}
		}
		n.instances[inst.Name] = inst
		if !exists {
			n.order = append(n.order, inst.Name)
		}
		n.seq = max(n.seq, inst.Seq)
	}
	for _, c := range p.conns {
		n.addConnLocked(c)
		n.seq = max(n.seq, c.Seq)
	}
	for _, v := range superseded {
		n.files.Release(v)
	}
	n.logger.Debug("batch applied",
		"owner", p.owner,
		"instances", len(p.touched),
		"connections", len(p.conns),
	)
}

// Discard drops the batch and releases the writer lock.
func (p *Plan) Discard() {
	if p.done {
		return
	}
	p.done = true
	p.n.mu.Unlock()
}

// =============================================================================
// Propagation
// =============================================================================

// working holds copies of the instances a batch touches.
type working struct {
	st        *stage
	instances map[string]*Instance
	queue     []srcPort
	delivered int
}

func (w *working) get(name string) *Instance {
	if inst, ok := w.instances[name]; ok {
		return inst
	}
	var inst *Instance
	if staged, ok := w.st.instances[name]; ok {
		inst = staged.clone()
	} else {
		inst = w.st.n.instances[name].clone()
	}
	w.instances[name] = inst
	return inst
}

// store writes v at path inside a port and queues the port for propagation
// when its value changed.
func (w *working) store(name string, d Direction, path itempath.Path, v *value.Value) error {
	inst := w.get(name)
	old := inst.Ports[d]
	next, err := value.Set(old, inst.Function.Port(d), path, v)
	if err != nil {
		return err
	}
	if next != old {
		inst.Ports[d] = next
		w.queue = append(w.queue, srcPort{name, d})
	}
	return nil
}

// deliver pushes the value a connection currently carries to its
// destination. Sources without a value yet are skipped.
func (w *working) deliver(c *Connection) error {
	w.delivered++
	if w.delivered > maxDeliveries {
		return fmt.Errorf("propagation did not settle after %d deliveries", maxDeliveries)
	}
	v := c.Literal
	if v == nil {
		src := w.get(c.Src.Instance)
		got, err := value.Get(src.Ports[c.Src.Dir], c.Src.Path)
		if vtype.HasCode(err, vtype.ErrCodeNoSuchPath) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", c.Src, err)
		}
		v = got
	}
	if err := w.store(c.Dst.Instance, c.Dst.Dir, c.Dst.Path, v); err != nil {
		return fmt.Errorf("deliver %s: %w", c, err)
	}
	return nil
}

// compute applies port writes and new connections on copies of the
// affected instances and propagates every change downstream.
func (st *stage) compute() (*Plan, error) {
	w := &working{st: st, instances: make(map[string]*Instance)}
	for _, name := range st.order {
		w.get(name)
	}

	for _, o := range st.sets {
		if err := w.store(st.owner, o.dir, o.path, o.v); err != nil {
			return nil, err
		}
	}
	for _, c := range st.conns {
		if err := w.deliver(c); err != nil {
			return nil, err
		}
	}

	staged := make(map[srcPort][]*Connection)
	for _, c := range st.conns {
		if c.Src != nil {
			sp := srcPort{c.Src.Instance, c.Src.Dir}
			staged[sp] = append(staged[sp], c)
		}
	}
	for len(w.queue) > 0 {
		sp := w.queue[0]
		w.queue = w.queue[1:]
		for _, idx := range st.n.bySrc[sp] {
			if err := w.deliver(st.n.conns[idx]); err != nil {
				return nil, err
			}
		}
		for _, c := range staged[sp] {
			if err := w.deliver(c); err != nil {
				return nil, err
			}
		}
	}

	if st.clean != nil {
		owner := w.get(st.owner)
		owner.Ran = true
		owner.Observed = st.clean.observed.Clone()
	}

	plan := &Plan{
		n:       st.n,
		owner:   st.owner,
		created: make(map[string]bool, len(st.order)),
		conns:   st.conns,
	}
	for _, name := range st.order {
		plan.created[name] = true
	}
	for _, inst := range w.instances {
		if !plan.created[inst.Name] && !changed(st.n.instances[inst.Name], inst) {
			continue
		}
		plan.touched = append(plan.touched, inst)
	}
	sort.Slice(plan.touched, func(a, b int) bool { return plan.touched[a].Seq < plan.touched[b].Seq })
	return plan, nil
}

func changed(old, next *Instance) bool {
	if old.Ran != next.Ran || len(old.Observed) != len(next.Observed) {
		return true
	}
	for k, v := range next.Observed {
		if old.Observed[k] != v {
			return true
		}
	}
	return old.Ports != next.Ports
}
