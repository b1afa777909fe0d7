// Package state implements the workflow state manager.
//
// The manager owns the authoritative in-memory state of every in-flight
// workflow: per-task states, appended results, and a bounded ring of
// recovery snapshots. It performs no execution; it is pure bookkeeping
// plus event emission. All mutation goes through manager methods.
package state
