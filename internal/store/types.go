package store

import "encoding/json"

// Port column order. Matches the order of graph.Directions.
const (
	PortIn = iota
	PortOut
	PortSubIn
	PortSubOut
	numPorts
)

// InstanceRow is the persisted state of one instance. A nil port holds no
// value.
type InstanceRow struct {
	Name     string
	Parent   string
	Function string
	Seq      int64
	Ran      bool
	Observed map[string]int64
	Ports    [numPorts]json.RawMessage
}

// ConnectionRow is one persisted connection. Exactly one of Src and
// Literal is set.
type ConnectionRow struct {
	Dst     string
	Seq     int64
	Owner   string
	Src     string
	Literal json.RawMessage
}

// Record is one per-instance persistence entry. A nil Value in a Batch
// deletes the entry.
type Record struct {
	Instance string
	Key      string
	Value    json.RawMessage
}

// Batch is everything one successful invocation changes.
type Batch struct {
	InvocationID string
	Instance     string // the invoked instance, "" for the top-level definition
	Seq          int64  // commit sequence

	Instances   []InstanceRow
	Connections []ConnectionRow
	Records     []Record
}

// Snapshot is the whole committed state, as loaded on resume.
type Snapshot struct {
	Instances   []InstanceRow   // creation order
	Connections []ConnectionRow // declaration order
	Records     []Record        // by instance, then key
	LastSeq     int64           // highest commit sequence
	Commits     int
}
