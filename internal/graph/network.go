package graph

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/roach88/cpcflow/internal/value"
	"github.com/roach88/cpcflow/internal/vtype"
)

// Instance is an immutable snapshot of one node of the graph. Port values
// are immutable too, so snapshots can be handed to concurrent readers.
type Instance struct {
	Name     string // full name, "parent/local" for children
	Parent   string // full name of the creating instance, "" at top level
	Function *Function
	Seq      int64 // creation order

	Ports    [4]*value.Value // indexed by Direction
	Ran      bool
	Observed Versions
}

// Port returns the current value of one port, nil for a port without
// members.
func (i *Instance) Port(d Direction) *value.Value { return i.Ports[d] }

// Local returns the instance name within its parent's namespace.
func (i *Instance) Local() string {
	if idx := strings.LastIndexByte(i.Name, '/'); idx >= 0 {
		return i.Name[idx+1:]
	}
	return i.Name
}

func (i *Instance) clone() *Instance {
	c := *i
	if i.Observed != nil {
		c.Observed = i.Observed.Clone()
	}
	return &c
}

// Connection is a typed edge. Exactly one of Src and Literal is set.
type Connection struct {
	Owner   string // full name of the instance that declared it
	Src     *Endpoint
	Literal *value.Value
	Dst     Endpoint
	Seq     int64 // declaration order
}

// IsLiteral reports whether the connection injects a constant.
func (c *Connection) IsLiteral() bool { return c.Literal != nil }

func (c *Connection) String() string {
	if c.IsLiteral() {
		return fmt.Sprintf("%s -> %s", c.Literal, c.Dst)
	}
	return fmt.Sprintf("%s -> %s", *c.Src, c.Dst)
}

// addsEdge reports whether the connection makes Dst.Instance depend on
// Src.Instance. An out port feeding its own instance is a self loop.
func (c *Connection) addsEdge() bool {
	return c.Src != nil && c.Src.Dir == DirOut &&
		(c.Dst.Dir == DirIn || c.Dst.Dir == DirOut)
}

// Network is the live graph of one running workflow. Structural mutations
// are serialized by a writer lock; snapshots and dirtiness queries take the
// read lock.
type Network struct {
	mu        sync.RWMutex
	reg       *vtype.Registry
	funcs     FunctionSet
	instances map[string]*Instance
	order     []string
	conns     []*Connection
	byDst     map[string]int      // destination key -> index in conns
	bySrc     map[srcPort][]int   // source port -> indexes in conns
	edges     map[string][]string // dependency edges, src -> dsts
	seq       int64               // last instance or connection sequence
	files     *value.FileTable
	logger    *slog.Logger
}

type srcPort struct {
	instance string
	dir      Direction
}

// Option configures a Network.
type Option func(*Network)

// WithLogger sets the logger used for structural events.
func WithLogger(l *slog.Logger) Option {
	return func(n *Network) { n.logger = l }
}

// New creates an empty network over a registry and a set of functions.
func New(reg *vtype.Registry, funcs FunctionSet, opts ...Option) *Network {
	n := &Network{
		reg:       reg,
		funcs:     make(FunctionSet, len(funcs)),
		instances: make(map[string]*Instance),
		byDst:     make(map[string]int),
		bySrc:     make(map[srcPort][]int),
		edges:     make(map[string][]string),
		files:     value.NewFileTable(),
		logger:    slog.Default(),
	}
	for id, f := range funcs {
		n.funcs[id] = f
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Registry returns the network's type registry.
func (n *Network) Registry() *vtype.Registry { return n.reg }

// Files returns the table counting holders of the network's owned files.
// Port values and literal connections are tracked by the network itself;
// other holders, such as persistence records, retain through it too.
func (n *Network) Files() *value.FileTable { return n.files }

// Function returns a declared function.
func (n *Network) Function(id string) (*Function, bool) {
	f, ok := n.funcs[id]
	return f, ok
}

// Instance returns a snapshot of one instance.
func (n *Network) Instance(name string) (*Instance, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	inst, ok := n.instances[name]
	if !ok {
		return nil, false
	}
	return inst.clone(), true
}

// Instances returns snapshots of all instances in creation order.
func (n *Network) Instances() []*Instance {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]*Instance, 0, len(n.order))
	for _, name := range n.order {
		out = append(out, n.instances[name].clone())
	}
	return out
}

// Children returns the full names of the instances created by parent.
func (n *Network) Children(parent string) []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	var out []string
	for _, name := range n.order {
		if n.instances[name].Parent == parent {
			out = append(out, name)
		}
	}
	return out
}

// Connections returns all connections in declaration order.
func (n *Network) Connections() []*Connection {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]*Connection, len(n.conns))
	copy(out, n.conns)
	sort.Slice(out, func(a, b int) bool { return out[a].Seq < out[b].Seq })
	return out
}

// Seq returns the highest sequence number in use.
func (n *Network) Seq() int64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.seq
}

// Restore loads a previously persisted graph into an empty network.
// Instances must be given in creation order and connections in declaration
// order. Function ids are resolved against the network's functions, and
// the dependency edges are rebuilt and checked for cycles.
func (n *Network) Restore(instances []*Instance, conns []*Connection) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.instances) > 0 || len(n.conns) > 0 {
		return fmt.Errorf("restore: network is not empty")
	}

	for _, inst := range instances {
		if inst.Function == nil {
			return structErr(ErrCodeUnknownFunction, inst.Name, "restored instance has no function")
		}
		f, ok := n.funcs[inst.Function.ID]
		if !ok {
			return structErr(ErrCodeUnknownFunction, inst.Name, "function %s is not declared", inst.Function.ID)
		}
		if _, dup := n.instances[inst.Name]; dup {
			return structErr(ErrCodeDuplicateName, inst.Name, "instance restored twice")
		}
		c := inst.clone()
		c.Function = f
		for _, d := range Directions {
			if c.Ports[d] == nil && f.Port(d) != nil {
				empty, err := value.Empty(f.Port(d))
				if err != nil {
					return err
				}
				c.Ports[d] = empty
			}
			n.files.Retain(c.Ports[d])
		}
		n.instances[c.Name] = c
		n.order = append(n.order, c.Name)
		n.seq = max(n.seq, c.Seq)
	}

	for _, conn := range conns {
		if conn.Src != nil {
			if _, ok := n.instances[conn.Src.Instance]; !ok {
				return structErr(ErrCodeUnknownInstance, conn.Src.Instance, "restored connection %s", conn)
			}
		}
		if _, ok := n.instances[conn.Dst.Instance]; !ok {
			return structErr(ErrCodeUnknownInstance, conn.Dst.Instance, "restored connection %s", conn)
		}
		if conn.addsEdge() && reaches(n.edges, nil, conn.Dst.Instance, conn.Src.Instance) {
			return structErr(ErrCodeCycleDetected, conn.Dst.Instance, "restored connection %s closes a cycle", conn)
		}
		n.addConnLocked(conn)
		n.seq = max(n.seq, conn.Seq)
	}

	n.logger.Debug("network restored", "instances", len(n.instances), "connections", len(n.conns))
	return nil
}

// addConnLocked inserts or replaces the connection feeding conn.Dst.
func (n *Network) addConnLocked(conn *Connection) {
	key := conn.Dst.key()
	n.files.Retain(conn.Literal)
	if idx, ok := n.byDst[key]; ok {
		// Only literal connections are ever replaced; they add no edges
		// and are not indexed by source.
		n.files.Release(n.conns[idx].Literal)
		n.conns[idx] = conn
		return
	}
	idx := len(n.conns)
	n.conns = append(n.conns, conn)
	n.byDst[key] = idx
	if conn.Src != nil {
		sp := srcPort{conn.Src.Instance, conn.Src.Dir}
		n.bySrc[sp] = append(n.bySrc[sp], idx)
	}
	if conn.addsEdge() {
		n.edges[conn.Src.Instance] = append(n.edges[conn.Src.Instance], conn.Dst.Instance)
	}
}

// reaches reports whether to is reachable from from over base plus extra
// edges.
func reaches(base, extra map[string][]string, from, to string) bool {
	if from == to {
		return true
	}
	seen := map[string]bool{from: true}
	stack := []string{from}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, edges := range []map[string][]string{base, extra} {
			for _, next := range edges[cur] {
				if next == to {
					return true
				}
				if !seen[next] {
					seen[next] = true
					stack = append(stack, next)
				}
			}
		}
	}
	return false
}

// fullName resolves a local name in owner's namespace.
func fullName(owner, local string) string {
	if owner == "" {
		return local
	}
	return owner + "/" + local
}

// validLocalName rejects names that would clash with the endpoint and
// path grammars.
func validLocalName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("instance name is empty")
	case name == Self:
		return fmt.Errorf("%q is reserved", Self)
	case strings.ContainsAny(name, "/:.[] \t\n"):
		return fmt.Errorf("instance name %q contains a reserved character", name)
	}
	return nil
}
