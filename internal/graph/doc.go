// Package graph implements the instance/connection graph of a running
// network and the propagation of values along its connections.
//
// A Network holds instances (named nodes bound to a Function) and typed
// connections between their ports. Every instance has four ports, each a
// list-typed value declared by its function:
//
//	in       inputs, written by connections from upstream instances
//	out      outputs, written by the instance's task body
//	sub_in   subnet inputs, written by the instance's own children
//	sub_out  subnet outputs, written by the task body for its children
//
// # Transactions
//
// The graph is only ever mutated through a Tx. A task-body invocation gets
// a Tx owned by its instance; the top-level network definition uses a Tx
// with an empty owner. Tx operations are validated eagerly and buffered.
// Prepare re-validates the whole batch under the network's writer lock and
// computes the resulting graph state, including value propagation; the
// returned Plan keeps the lock until Apply makes the batch visible or
// Discard drops it. A batch with one invalid operation is rejected as a
// whole.
//
// # Endpoints
//
// Connections name ports as "instance:dir.path". The instance is a local
// name in the owner's namespace or "self" for the owner itself; children of
// instance "fe" are stored under full names such as "fe/init_q". The
// direction aliases ext_in and ext_out stand for in and out.
//
// # Dependency edges
//
// A connection from an out port to an in or out port of another instance
// adds a dependency edge between the two instances; the edge set must stay
// acyclic. Connections through the owner's own in, sub_in and sub_out ports
// are its internal feedback channel and add no edge.
package graph
