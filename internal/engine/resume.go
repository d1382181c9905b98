package engine

import (
	"context"
	"log/slog"

	"github.com/roach88/cpcflow/internal/graph"
	"github.com/roach88/cpcflow/internal/store"
	"github.com/roach88/cpcflow/internal/value"
)

// Resume restores the committed state from the store into an engine that
// has not defined or run anything yet.
//
// Resume is structural, not a replay: instances, connections, port values
// with their versions, observed versions and persistence records are
// loaded exactly as committed, and the commit clock continues after the
// last committed seq. The dirty set after Resume is therefore the dirty
// set before the process stopped; completed work is never re-run and no
// instance is re-created.
//
// A row that cannot be decoded fails Resume with a *store.PersistenceError
// rather than being dropped, so a damaged checkpoint is never mistaken for
// a fresh workflow.
func (e *Engine) Resume(ctx context.Context) error {
	if e.store == nil {
		return nil
	}
	if e.Defined() {
		return &RuntimeError{Code: ErrCodeAlreadyDefined, Message: "resume into a non-empty network"}
	}

	snap, err := e.store.Load(ctx)
	if err != nil {
		return err
	}

	instances := make([]*graph.Instance, 0, len(snap.Instances))
	for _, row := range snap.Instances {
		inst := &graph.Instance{
			Name:     row.Name,
			Parent:   row.Parent,
			Function: &graph.Function{ID: row.Function},
			Seq:      row.Seq,
			Ran:      row.Ran,
			Observed: graph.Versions(row.Observed),
		}
		for i, d := range graph.Directions {
			if row.Ports[i] == nil {
				continue
			}
			v, err := value.Unmarshal(e.reg, row.Ports[i])
			if err != nil {
				return &store.PersistenceError{Op: "decode port " + d.String(), Instance: row.Name, Err: err}
			}
			inst.Ports[d] = v
		}
		instances = append(instances, inst)
	}

	conns := make([]*graph.Connection, 0, len(snap.Connections))
	for _, row := range snap.Connections {
		dst, err := graph.ParseEndpoint(row.Dst)
		if err != nil {
			return &store.PersistenceError{Op: "decode connection", Instance: row.Owner, Err: err}
		}
		c := &graph.Connection{Owner: row.Owner, Dst: dst, Seq: row.Seq}
		if row.Src != "" {
			src, err := graph.ParseEndpoint(row.Src)
			if err != nil {
				return &store.PersistenceError{Op: "decode connection", Instance: row.Owner, Err: err}
			}
			c.Src = &src
		} else {
			lit, err := value.Unmarshal(e.reg, row.Literal)
			if err != nil {
				return &store.PersistenceError{Op: "decode literal", Instance: row.Owner, Err: err}
			}
			c.Literal = lit
		}
		conns = append(conns, c)
	}

	records := make(map[string]map[string]*value.Value)
	for _, rec := range snap.Records {
		v, err := value.Unmarshal(e.reg, rec.Value)
		if err != nil {
			return &store.PersistenceError{Op: "decode record " + rec.Key, Instance: rec.Instance, Err: err}
		}
		if records[rec.Instance] == nil {
			records[rec.Instance] = make(map[string]*value.Value)
		}
		records[rec.Instance][rec.Key] = v
	}

	if err := e.net.Restore(instances, conns); err != nil {
		return &store.PersistenceError{Op: "restore graph", Err: err}
	}

	for _, byKey := range records {
		for _, v := range byKey {
			e.net.Files().Retain(v)
		}
	}
	e.mu.Lock()
	e.records = records
	e.mu.Unlock()
	e.clock.Advance(snap.LastSeq)

	slog.Info("engine resumed",
		"instances", len(instances),
		"connections", len(conns),
		"commits", snap.Commits,
		"seq", snap.LastSeq,
		"dirty", len(e.net.ListDirty()),
	)
	return nil
}
