package domain

import "errors"

var (
	// ErrWorkflowNotFound indicates an unknown workflow ID. Passing one is
	// a programmer error; the engine fails loudly rather than no-oping.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrTaskNotFound indicates an unknown task ID within a workflow.
	ErrTaskNotFound = errors.New("task not found")

	// ErrDuplicateTaskID indicates two tasks in one workflow share an ID.
	ErrDuplicateTaskID = errors.New("duplicate task id")

	// ErrUnknownDependency indicates a task references a dependency ID that
	// does not exist in the workflow.
	ErrUnknownDependency = errors.New("unknown dependency")

	// ErrDependencyCycle indicates the dependency relation is not acyclic.
	// Detected at workflow creation, before anything executes.
	ErrDependencyCycle = errors.New("dependency cycle")

	// ErrDeadlock indicates a run reached a point where no task is ready
	// and none is in progress, yet the workflow is not complete. With
	// creation-time cycle validation this means some remaining task has a
	// permanently failed or cancelled dependency.
	ErrDeadlock = errors.New("no runnable tasks remain")

	// ErrTerminalState indicates an update attempted to change a status
	// that is already terminal.
	ErrTerminalState = errors.New("status is terminal")

	// ErrNoSnapshot indicates a restore was requested before any snapshot
	// was taken.
	ErrNoSnapshot = errors.New("no snapshot available")
)
