// Package engine runs task bodies against the live network of one
// workflow.
//
// ARCHITECTURE:
//
// Invocation Lifecycle:
// 1. Start takes the instance's execution lock and snapshots its ports
// 2. The task body reads Inputs and issues Outputs; every write is
// validated immediately and buffered in a graph transaction
// 3. ReportResult with a nil error prepares the batch under the network's
// writer lock, commits it to the store, then applies it
// 4. ReportResult with an error discards the buffer; the instance stays
// dirty and the error is kept as its LastError
//
// A task body that never returns simply never commits; Abandon releases
// its execution lock.
//
// Commit Ordering:
// The store commit happens after validation and before the batch becomes
// visible. A crash at any point leaves the store holding only whole
// batches, and Resume rebuilds exactly the state that was visible.
//
// Concurrency:
// Bodies of different instances run in parallel. Validation and apply are
// serialized by the network's writer lock; dirtiness queries and
// snapshots use its read lock.
//
// CRITICAL PATTERNS:
//
// Logical Clock:
// Every commit is stamped with a monotonic seq from Clock.Next(), resumed
// from the store. Wall-clock time is never used for ordering.
package engine
