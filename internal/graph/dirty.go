package graph

import (
	"maps"

	"github.com/roach88/cpcflow/internal/itempath"
	"github.com/roach88/cpcflow/internal/value"
)

// Versions records the input versions an instance observed when it last
// ran: "in" and "sub_in" hold root versions, "in.<member>" and
// "sub_in.<member>" the versions of individual members.
type Versions map[string]int64

// Clone returns an independent copy.
func (v Versions) Clone() Versions {
	if v == nil {
		return nil
	}
	return maps.Clone(v)
}

func versionKey(d Direction, member string) string {
	if member == "" {
		return d.String()
	}
	return d.String() + "." + member
}

// ObservedVersions captures the input-side versions of an instance
// snapshot, to be recorded with MarkClean once its run succeeds.
func ObservedVersions(inst *Instance) Versions {
	v := make(Versions)
	for _, d := range []Direction{DirIn, DirSubIn} {
		root := inst.Ports[d]
		v[versionKey(d, "")] = root.Version()
		if root == nil {
			continue
		}
		for _, k := range root.Keys() {
			sub, _ := root.Member(k)
			v[versionKey(d, k)] = sub.Version()
		}
	}
	return v
}

// IsUpdatedSince reports whether a member of an input-side port (or the
// whole port when member is "") is newer than the observed versions.
// Members that were absent when observed count as version 0.
func IsUpdatedSince(inst *Instance, observed Versions, d Direction, member string) bool {
	root := inst.Ports[d]
	if member == "" {
		return value.IsUpdated(root, observed[versionKey(d, "")])
	}
	sub, err := value.Get(root, itempath.Of(itempath.Field(member)))
	if err != nil {
		return false
	}
	return value.IsUpdated(sub, observed[versionKey(d, member)])
}

// isDirty: never ran, or an input-side root moved past what was observed.
func isDirty(inst *Instance) bool {
	if !inst.Ran {
		return true
	}
	for _, d := range []Direction{DirIn, DirSubIn} {
		if value.IsUpdated(inst.Ports[d], inst.Observed[versionKey(d, "")]) {
			return true
		}
	}
	return false
}

// IsDirty reports whether the instance must (re-)run: it never ran, or
// one of its in and sub_in ports changed since its last successful run.
// Unknown instances are not dirty.
func (n *Network) IsDirty(name string) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	inst, ok := n.instances[name]
	return ok && isDirty(inst)
}

// ListDirty returns the dirty instances in creation order.
func (n *Network) ListDirty() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	var out []string
	for _, name := range n.order {
		if isDirty(n.instances[name]) {
			out = append(out, name)
		}
	}
	return out
}
