// Package store provides the SQLite-backed checkpoint of a workflow.
//
// The store keeps the committed state of the instance graph:
//   - Commits: one row per successful invocation, keyed by invocation id
//   - Instances: function, parent, ran flag, observed versions, port values
//   - Connections: one row per destination endpoint
//   - Records: per-instance persistence entries written by task bodies
//
// # Commit Discipline
//
// A Batch is written in a single SQL transaction. Replaying a batch whose
// invocation id was already committed is a no-op, so a crash between the
// commit and its acknowledgement never applies a result twice. After an
// unclean shutdown only fully committed batches are visible.
//
// Values are stored as opaque JSON produced by the value package; the
// store never interprets them. Rows that fail to decode are reported as a
// *PersistenceError and never skipped.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON
package store
