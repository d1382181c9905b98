package graph

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/roach88/cpcflow/internal/itempath"
	"github.com/roach88/cpcflow/internal/value"
	"github.com/roach88/cpcflow/internal/vtype"
)

type opKind int

const (
	opAddInstance opKind = iota
	opAddConnection
	opSetPort
	opMarkClean
)

// op is one buffered mutation.
type op struct {
	kind opKind

	local, function string // opAddInstance

	src, dst string       // opAddConnection
	literal  *value.Value // opAddConnection, literal source

	dir  Direction     // opSetPort
	path itempath.Path // opSetPort
	v    *value.Value  // opSetPort

	observed Versions // opMarkClean
}

// Tx buffers the mutations of one invocation (or of the top-level network
// definition when the owner is ""). Every operation is validated as it is
// issued, against the committed graph plus the operations issued before
// it; the first failure is sticky and fails Prepare. A Tx is safe for
// concurrent use.
type Tx struct {
	n     *Network
	owner string

	mu  sync.Mutex
	ops []op
	st  *stage
	err error
}

// Begin starts a transaction owned by the named instance. The owner ""
// denotes the top-level network definition.
func (n *Network) Begin(owner string) *Tx {
	return &Tx{n: n, owner: owner, st: newStage(n, owner)}
}

// Owner returns the full name of the owning instance.
func (tx *Tx) Owner() string { return tx.owner }

// Err returns the first error recorded by the transaction.
func (tx *Tx) Err() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.err
}

// Len returns the number of buffered operations.
func (tx *Tx) Len() int {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return len(tx.ops)
}

func (tx *Tx) record(o op) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.err != nil {
		return tx.err
	}
	tx.n.mu.RLock()
	err := tx.st.apply(o)
	tx.n.mu.RUnlock()
	if err != nil {
		tx.err = err
		return err
	}
	tx.ops = append(tx.ops, o)
	return nil
}

// AddInstance declares a child instance of the owner bound to a function
// and returns its full name.
func (tx *Tx) AddInstance(local, functionID string) (string, error) {
	if err := tx.record(op{kind: opAddInstance, local: local, function: functionID}); err != nil {
		return "", err
	}
	return fullName(tx.owner, local), nil
}

// AddConnection declares a connection from src to dst. When src is "" the
// connection injects literal; connecting a literal to a destination that
// already carries a literal replaces it.
func (tx *Tx) AddConnection(src, dst string, literal *value.Value) error {
	return tx.record(op{kind: opAddConnection, src: src, dst: dst, literal: literal})
}

// SetOut stores v at path inside the owner's out port.
func (tx *Tx) SetOut(path itempath.Path, v *value.Value) error {
	return tx.record(op{kind: opSetPort, dir: DirOut, path: path, v: v})
}

// SetSubnetOut stores v at path inside the owner's sub_out port.
func (tx *Tx) SetSubnetOut(path itempath.Path, v *value.Value) error {
	return tx.record(op{kind: opSetPort, dir: DirSubOut, path: path, v: v})
}

// MarkClean records that the owner ran successfully having observed the
// given input versions. It takes effect with the rest of the batch.
func (tx *Tx) MarkClean(observed Versions) error {
	return tx.record(op{kind: opMarkClean, observed: observed.Clone()})
}

func (tx *Tx) snapshotOps() ([]op, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	out := make([]op, len(tx.ops))
	copy(out, tx.ops)
	return out, tx.err
}

// =============================================================================
// Staging
// =============================================================================

// stage is the overlay of a batch on top of the committed graph. Callers
// hold the network lock (read for eager checks, write in Prepare).
type stage struct {
	n     *Network
	owner string

	instances map[string]*Instance // staged new instances
	order     []string
	conns     []*Connection
	dsts      map[string]int // destination key -> index in conns
	edges     map[string][]string
	sets      []op
	drafts    map[Direction]*value.Value // owner ports after the staged sets
	clean     *op
	nextSeq   int64
}

func newStage(n *Network, owner string) *stage {
	return &stage{
		n:         n,
		owner:     owner,
		instances: make(map[string]*Instance),
		dsts:      make(map[string]int),
		edges:     make(map[string][]string),
		drafts:    make(map[Direction]*value.Value),
	}
}

func (st *stage) seq() int64 {
	st.nextSeq++
	return st.n.seq + st.nextSeq
}

func (st *stage) lookup(name string) (*Instance, bool) {
	if inst, ok := st.instances[name]; ok {
		return inst, true
	}
	inst, ok := st.n.instances[name]
	return inst, ok
}

func (st *stage) ownerInstance() (*Instance, error) {
	if st.owner == "" {
		return nil, structErr(ErrCodeInvalidEndpoint, "", "the top-level definition has no ports of its own")
	}
	inst, ok := st.lookup(st.owner)
	if !ok {
		return nil, structErr(ErrCodeUnknownInstance, st.owner, "transaction owner does not exist")
	}
	return inst, nil
}

func (st *stage) apply(o op) error {
	switch o.kind {
	case opAddInstance:
		return st.addInstance(o.local, o.function)
	case opAddConnection:
		return st.addConnection(o.src, o.dst, o.literal)
	case opSetPort:
		return st.setPort(o)
	case opMarkClean:
		if _, err := st.ownerInstance(); err != nil {
			return err
		}
		st.clean = &o
		return nil
	}
	return fmt.Errorf("unknown operation %d", o.kind)
}

func (st *stage) addInstance(local, functionID string) error {
	if st.owner != "" {
		if _, err := st.ownerInstance(); err != nil {
			return err
		}
	}
	if err := validLocalName(local); err != nil {
		return &StructureError{Code: ErrCodeInvalidName, Instance: local, Message: "cannot add instance", Err: err}
	}
	f, ok := st.n.funcs[functionID]
	if !ok {
		return structErr(ErrCodeUnknownFunction, local, "function %s is not declared", functionID)
	}
	name := fullName(st.owner, local)
	if _, exists := st.lookup(name); exists {
		return structErr(ErrCodeDuplicateName, name, "instance already exists")
	}

	inst := &Instance{Name: name, Parent: st.owner, Function: f, Seq: st.seq()}
	for _, d := range Directions {
		if t := f.Port(d); t != nil {
			empty, err := value.Empty(t)
			if err != nil {
				return err
			}
			inst.Ports[d] = empty
		}
	}
	st.instances[name] = inst
	st.order = append(st.order, name)
	return nil
}

// resolve parses an endpoint in the owner's namespace and checks that the
// direction may be used on the given side of a connection.
func (st *stage) resolve(s string, source bool) (Endpoint, *vtype.Type, error) {
	ep, err := ParseEndpoint(s)
	if err != nil {
		return Endpoint{}, nil, err
	}

	self := ep.Instance == Self
	switch {
	case self && st.owner == "":
		return Endpoint{}, nil, structErr(ErrCodeInvalidEndpoint, "", "endpoint %s: %q outside an instance", s, Self)
	case self:
		ep.Instance = st.owner
	case strings.Contains(ep.Instance, "/"):
		return Endpoint{}, nil, structErr(ErrCodeUnknownInstance, ep.Instance, "endpoint %s: only local names can be connected", s)
	default:
		ep.Instance = fullName(st.owner, ep.Instance)
	}

	var allowed []Direction
	switch {
	case source && self:
		allowed = []Direction{DirIn, DirSubOut}
	case source:
		allowed = []Direction{DirOut}
	case self:
		allowed = []Direction{DirSubIn, DirOut}
	default:
		allowed = []Direction{DirIn}
	}
	if !slices.Contains(allowed, ep.Dir) {
		side := "destination"
		if source {
			side = "source"
		}
		return Endpoint{}, nil, structErr(ErrCodeInvalidEndpoint, ep.Instance, "endpoint %s: %s cannot be a %s here", s, ep.Dir, side)
	}

	inst, found := st.lookup(ep.Instance)
	if !found {
		return Endpoint{}, nil, structErr(ErrCodeUnknownInstance, ep.Instance, "endpoint %s", s)
	}
	port := inst.Function.Port(ep.Dir)
	if port == nil {
		return Endpoint{}, nil, structErr(ErrCodeUnknownAddress, ep.Instance, "endpoint %s: function %s has no %s port", s, inst.Function.ID, ep.Dir)
	}
	t, err := vtype.TypeAt(port, ep.Path)
	if err != nil {
		return Endpoint{}, nil, &StructureError{Code: ErrCodeUnknownAddress, Instance: ep.Instance, Message: "endpoint " + s, Err: err}
	}
	return ep, t, nil
}

// existing returns the connection currently feeding a destination, staged
// ones first.
func (st *stage) existing(key string) (*Connection, int, bool) {
	if idx, ok := st.dsts[key]; ok {
		return st.conns[idx], idx, true
	}
	if idx, ok := st.n.byDst[key]; ok {
		return st.n.conns[idx], -1, true
	}
	return nil, -1, false
}

// overlapping finds a connection feeding an address that contains ep or
// lies inside it, on the same port. Each stored address has one source.
func (st *stage) overlapping(ep Endpoint) (*Connection, bool) {
	for _, conns := range [][]*Connection{st.conns, st.n.conns} {
		for _, c := range conns {
			if c.Dst.Instance != ep.Instance || c.Dst.Dir != ep.Dir {
				continue
			}
			if c.Dst.Path.HasPrefix(ep.Path) || ep.Path.HasPrefix(c.Dst.Path) {
				return c, true
			}
		}
	}
	return nil, false
}

func (st *stage) addConnection(src, dst string, literal *value.Value) error {
	switch {
	case src == "" && literal == nil:
		return structErr(ErrCodeInvalidEndpoint, "", "connection to %s has neither a source nor a literal", dst)
	case src != "" && literal != nil:
		return structErr(ErrCodeInvalidEndpoint, "", "connection to %s has both a source and a literal", dst)
	}

	dstEp, dstType, err := st.resolve(dst, false)
	if err != nil {
		return err
	}
	conn := &Connection{Owner: st.owner, Dst: dstEp, Literal: literal}
	prev, stagedIdx, taken := st.existing(dstEp.key())
	if !taken {
		if other, ok := st.overlapping(dstEp); ok {
			return structErr(ErrCodeDuplicateDestination, dstEp.Instance, "%s overlaps %s, already fed by %s", dstEp, other.Dst, other)
		}
	}

	if literal != nil {
		if !literal.Type().IsSubtype(dstType) {
			return &vtype.TypeError{
				Code:    vtype.ErrCodeTypeMismatch,
				Type:    literal.Type().DisplayName(),
				Path:    dstEp.String(),
				Message: fmt.Sprintf("literal of type %s cannot feed %s", literal.Type().DisplayName(), dstType.DisplayName()),
			}
		}
		if taken && !prev.IsLiteral() {
			return structErr(ErrCodeDuplicateDestination, dstEp.Instance, "%s is already fed by %s", dstEp, prev)
		}
		if taken {
			conn.Seq = prev.Seq
			if stagedIdx >= 0 {
				st.conns[stagedIdx] = conn
				return nil
			}
		} else {
			conn.Seq = st.seq()
		}
		st.dsts[dstEp.key()] = len(st.conns)
		st.conns = append(st.conns, conn)
		return nil
	}

	srcEp, srcType, err := st.resolve(src, true)
	if err != nil {
		return err
	}
	conn.Src = &srcEp
	if !srcType.IsSubtype(dstType) {
		return &vtype.TypeError{
			Code:    vtype.ErrCodeTypeMismatch,
			Type:    srcType.DisplayName(),
			Path:    dstEp.String(),
			Message: fmt.Sprintf("%s (%s) cannot feed %s (%s)", srcEp, srcType.DisplayName(), dstEp, dstType.DisplayName()),
		}
	}
	if taken {
		return structErr(ErrCodeDuplicateDestination, dstEp.Instance, "%s is already fed by %s", dstEp, prev)
	}
	if conn.addsEdge() {
		if reaches(st.n.edges, st.edges, dstEp.Instance, srcEp.Instance) {
			return structErr(ErrCodeCycleDetected, dstEp.Instance, "connecting %s to %s closes a dependency cycle", srcEp, dstEp)
		}
		st.edges[srcEp.Instance] = append(st.edges[srcEp.Instance], dstEp.Instance)
	}
	conn.Seq = st.seq()
	st.dsts[dstEp.key()] = len(st.conns)
	st.conns = append(st.conns, conn)
	return nil
}

func (st *stage) setPort(o op) error {
	inst, err := st.ownerInstance()
	if err != nil {
		return err
	}
	if o.v == nil {
		return &vtype.TypeError{Code: vtype.ErrCodeSchemaViolation, Path: o.path.String(), Message: "cannot store a nil value"}
	}
	port := inst.Function.Port(o.dir)
	if port == nil {
		return structErr(ErrCodeUnknownAddress, inst.Name, "function %s has no %s port", inst.Function.ID, o.dir)
	}
	declared, err := vtype.TypeAt(port, o.path)
	if err != nil {
		return err
	}
	if !o.v.Type().IsSubtype(declared) {
		return &vtype.TypeError{
			Code:    vtype.ErrCodeSchemaViolation,
			Type:    o.v.Type().DisplayName(),
			Path:    o.dir.String() + o.path.Suffix(),
			Message: fmt.Sprintf("value of type %s does not fit declared %s", o.v.Type().DisplayName(), declared.DisplayName()),
		}
	}
	// Dry run over the owner's port so a write that cannot be stored fails
	// when it is issued rather than at commit.
	cur, ok := st.drafts[o.dir]
	if !ok {
		cur = inst.Ports[o.dir]
	}
	next, err := value.Set(cur, port, o.path, o.v)
	if err != nil {
		return err
	}
	st.drafts[o.dir] = next
	st.sets = append(st.sets, o)
	return nil
}
