// Package orchestrator drives declarative task workflows to completion.
//
// Given a workflow config, the engine creates state in the state manager,
// resolves the dependency graph task by task, acquires one backend agent
// per required agent type, executes tasks with retry and finalizes the
// workflow status. Dependency-aware parallel dispatch is built into the
// engine itself; strictly ordered runs go through the sequential executor.
//
// The validator rejects malformed workflows before anything executes:
// duplicate IDs, dangling dependencies and dependency cycles.
package orchestrator
