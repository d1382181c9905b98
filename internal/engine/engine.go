package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"sort"
	"sync"

	"github.com/roach88/cpcflow/internal/graph"
	"github.com/roach88/cpcflow/internal/store"
	"github.com/roach88/cpcflow/internal/value"
	"github.com/roach88/cpcflow/internal/vtype"
)

// Engine runs one workflow: it owns the live network, hands out
// invocations, and turns each successful invocation into one committed
// batch.
//
// Thread-safety model:
//   - Start, ReportResult, Abandon and Invoke: safe from any goroutine;
//     at most one invocation per instance runs at a time
//   - Structural mutation is serialized by the network's writer lock,
//     held from Prepare through store commit to Apply
//   - Dirtiness queries and snapshots take the read lock only
type Engine struct {
	reg   *vtype.Registry
	lib   *Library
	net   *graph.Network
	store *store.Store // nil keeps state in memory only
	clock *Clock
	ids   IDGenerator

	mu      sync.Mutex
	running map[string]*Invocation
	lastErr map[string]error
	records map[string]map[string]*value.Value
}

// Option allows configuration of engine parameters.
type Option func(*Engine)

// WithIDGenerator sets the invocation id generator.
//
// Default: UUIDv7Generator. Tests use NewFixedGenerator for stable ids.
func WithIDGenerator(g IDGenerator) Option {
	return func(e *Engine) {
		e.ids = g
	}
}

// New creates an engine over a registry, a function library and an
// optional store. Call Resume before use when the store may hold state.
func New(reg *vtype.Registry, lib *Library, st *store.Store, opts ...Option) *Engine {
	e := &Engine{
		reg:     reg,
		lib:     lib,
		net:     graph.New(reg, lib.Functions(), graph.WithLogger(slog.Default())),
		store:   st,
		clock:   NewClock(),
		ids:     UUIDv7Generator{},
		running: make(map[string]*Invocation),
		lastErr: make(map[string]error),
		records: make(map[string]map[string]*value.Value),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Open creates an engine and resumes it from the store.
func Open(ctx context.Context, reg *vtype.Registry, lib *Library, st *store.Store, opts ...Option) (*Engine, error) {
	e := New(reg, lib, st, opts...)
	if err := e.Resume(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

// Network returns the live network.
func (e *Engine) Network() *graph.Network { return e.net }

// Registry returns the workflow's type registry.
func (e *Engine) Registry() *vtype.Registry { return e.reg }

// Library returns the function library.
func (e *Engine) Library() *Library { return e.lib }

// Seq returns the last commit sequence.
func (e *Engine) Seq() int64 { return e.clock.Current() }

// Defined reports whether the network has any instance, either from
// Define or from Resume.
func (e *Engine) Defined() bool { return len(e.net.Instances()) > 0 }

// Define builds the top-level network. fn issues instances and
// connections on a transaction owned by no instance; the whole definition
// is committed as one batch or not at all.
func (e *Engine) Define(ctx context.Context, fn func(tx *graph.Tx) error) error {
	if e.Defined() {
		return &RuntimeError{Code: ErrCodeAlreadyDefined, Message: "network already has instances"}
	}
	tx := e.net.Begin("")
	if err := fn(tx); err != nil {
		return fmt.Errorf("define network: %w", err)
	}
	id := e.ids.Generate()
	if err := e.commit(ctx, id, tx, nil); err != nil {
		return fmt.Errorf("define network: %w", err)
	}
	slog.Info("network defined", "invocation_id", id, "instances", len(e.net.Instances()))
	return nil
}

// Start begins an invocation of the named instance and takes its
// execution lock. The invocation sees a snapshot of the instance's ports.
func (e *Engine) Start(name string) (*Invocation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, busy := e.running[name]; busy {
		return nil, newBusyError(name)
	}
	snap, ok := e.net.Instance(name)
	if !ok {
		return nil, &RuntimeError{Code: ErrCodeUnknownInstance, Message: "no such instance", Instance: name}
	}
	if _, ok := e.lib.Body(snap.Function.ID); !ok {
		err := &RuntimeError{
			Code:     ErrCodeUnknownBody,
			Message:  fmt.Sprintf("function %s has no task body", snap.Function.ID),
			Instance: name,
		}
		e.lastErr[name] = err
		return nil, err
	}

	inv := &Invocation{
		id:       e.ids.Generate(),
		instance: name,
		reg:      e.reg,
		snap:     snap,
		observed: graph.ObservedVersions(snap),
		tx:       e.net.Begin(name),
		pers:     newPersistence(maps.Clone(e.records[name])),
	}
	e.running[name] = inv

	slog.Debug("invocation started",
		"instance", name,
		"invocation_id", inv.id,
		"function", snap.Function.ID,
	)
	return inv, nil
}

// ReportResult finishes an invocation. When bodyErr is non-nil every
// buffered mutation is discarded, the failure is recorded against the
// instance and returned as an application error; the instance stays
// dirty. Otherwise the batch is validated, committed to the store and
// applied, in that order.
func (e *Engine) ReportResult(ctx context.Context, inv *Invocation, bodyErr error) error {
	if err := e.claim(inv); err != nil {
		return err
	}
	defer e.release(inv)

	if bodyErr != nil {
		rerr := newApplicationError(inv, bodyErr)
		e.fail(inv, rerr)
		return rerr
	}

	if err := inv.tx.MarkClean(inv.observed); err != nil {
		rerr := newRejectedError(inv, err)
		e.fail(inv, rerr)
		return rerr
	}
	if err := e.commit(ctx, inv.id, inv.tx, inv.pers.changes()); err != nil {
		rerr := newRejectedError(inv, err)
		e.fail(inv, rerr)
		return rerr
	}

	e.mu.Lock()
	delete(e.lastErr, inv.instance)
	e.mu.Unlock()

	slog.Info("invocation committed",
		"instance", inv.instance,
		"invocation_id", inv.id,
		"seq", e.clock.Current(),
	)
	return nil
}

// Abandon drops an invocation that will never report, releasing the
// instance's execution lock. Its buffered mutations never commit.
// Returns false if the invocation is not the instance's current one or
// its result is already being committed.
func (e *Engine) Abandon(inv *Invocation) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running[inv.instance] != inv || inv.reporting {
		return false
	}
	delete(e.running, inv.instance)
	slog.Warn("invocation abandoned", "instance", inv.instance, "invocation_id", inv.id)
	return true
}

// Invoke runs the instance's task body synchronously: Start, body,
// ReportResult. A panicking body counts as a failed one.
func (e *Engine) Invoke(ctx context.Context, name string) error {
	inv, err := e.Start(name)
	if err != nil {
		return err
	}
	body, _ := e.lib.Body(inv.snap.Function.ID)
	return e.ReportResult(ctx, inv, runBody(ctx, body, inv))
}

func runBody(ctx context.Context, body Body, inv *Invocation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task body panicked: %v", r)
		}
	}()
	return body(ctx, inv, inv)
}

// ListDirtyInstances returns the instances that must (re-)run, in
// creation order.
func (e *Engine) ListDirtyInstances() []string { return e.net.ListDirty() }

// IsDirty reports whether the instance must (re-)run.
func (e *Engine) IsDirty(name string) bool { return e.net.IsDirty(name) }

// LastError returns the error of the instance's most recent failed
// invocation, nil once it succeeds.
func (e *Engine) LastError(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr[name]
}

// IsRunning reports whether the instance has an invocation in flight.
func (e *Engine) IsRunning(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.running[name]
	return ok
}

// Record returns a committed persistence entry, nil if there is none.
func (e *Engine) Record(instance, key string) *value.Value {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.records[instance][key]
}

// claim marks an invocation as reporting. Only the current invocation of
// an instance may report, and only once.
func (e *Engine) claim(inv *Invocation) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	cur, ok := e.running[inv.instance]
	switch {
	case !ok:
		return &RuntimeError{Code: ErrCodeNotRunning, Message: "no running invocation", Instance: inv.instance, InvocationID: inv.id}
	case cur != inv || inv.reporting:
		return &RuntimeError{Code: ErrCodeStaleInvocation, Message: "invocation is not current", Instance: inv.instance, InvocationID: inv.id}
	}
	inv.reporting = true
	return nil
}

func (e *Engine) release(inv *Invocation) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running[inv.instance] == inv {
		delete(e.running, inv.instance)
	}
}

func (e *Engine) fail(inv *Invocation, err error) {
	e.mu.Lock()
	e.lastErr[inv.instance] = err
	e.mu.Unlock()
	slog.Warn("invocation failed",
		"instance", inv.instance,
		"invocation_id", inv.id,
		"error", err,
	)
}

// commit validates a transaction, writes the resulting batch to the store
// and makes it visible. The store write happens while the plan holds the
// network's writer lock, so a batch is visible only once it is durable.
func (e *Engine) commit(ctx context.Context, id string, tx *graph.Tx, records map[string]*value.Value) error {
	plan, err := e.net.Prepare(tx)
	if err != nil {
		return err
	}

	seq := e.clock.Next()
	batch, err := buildBatch(plan, id, seq, records)
	if err != nil {
		plan.Discard()
		return err
	}
	if e.store != nil {
		inserted, err := e.store.Commit(ctx, batch)
		if err != nil {
			plan.Discard()
			return err
		}
		if !inserted {
			plan.Discard()
			return fmt.Errorf("invocation %s was already committed", id)
		}
	}
	// Records hold their files like ports do. They are retained before the
	// plan can release a superseded port naming the same file.
	files := e.net.Files()
	for _, v := range records {
		files.Retain(v)
	}
	plan.Apply()

	if len(records) > 0 {
		var dropped []*value.Value
		e.mu.Lock()
		owned := maps.Clone(e.records[plan.Owner()])
		if owned == nil {
			owned = make(map[string]*value.Value)
		}
		for k, v := range records {
			if prev, ok := owned[k]; ok {
				dropped = append(dropped, prev)
			}
			if v == nil {
				delete(owned, k)
			} else {
				owned[k] = v
			}
		}
		e.records[plan.Owner()] = owned
		e.mu.Unlock()
		for _, v := range dropped {
			files.Release(v)
		}
	}
	return nil
}

// buildBatch converts a validated plan into store rows.
func buildBatch(plan *graph.Plan, id string, seq int64, records map[string]*value.Value) (store.Batch, error) {
	b := store.Batch{InvocationID: id, Instance: plan.Owner(), Seq: seq}

	for _, inst := range plan.Instances() {
		row := store.InstanceRow{
			Name:     inst.Name,
			Parent:   inst.Parent,
			Function: inst.Function.ID,
			Seq:      inst.Seq,
			Ran:      inst.Ran,
			Observed: inst.Observed,
		}
		for i, d := range graph.Directions {
			raw, err := marshalValue(inst.Ports[d])
			if err != nil {
				return b, fmt.Errorf("encode %s:%s: %w", inst.Name, d, err)
			}
			row.Ports[i] = raw
		}
		b.Instances = append(b.Instances, row)
	}

	for _, c := range plan.Connections() {
		row := store.ConnectionRow{Dst: c.Dst.String(), Seq: c.Seq, Owner: c.Owner}
		if c.Src != nil {
			row.Src = c.Src.String()
		} else {
			raw, err := marshalValue(c.Literal)
			if err != nil {
				return b, fmt.Errorf("encode literal for %s: %w", c.Dst, err)
			}
			row.Literal = raw
		}
		b.Connections = append(b.Connections, row)
	}

	keys := make([]string, 0, len(records))
	for k := range records {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		raw, err := marshalValue(records[k])
		if err != nil {
			return b, fmt.Errorf("encode record %s: %w", k, err)
		}
		b.Records = append(b.Records, store.Record{Instance: plan.Owner(), Key: k, Value: raw})
	}
	return b, nil
}

func marshalValue(v *value.Value) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	data, err := value.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}
