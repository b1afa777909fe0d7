// Package domain defines the core types of the workflow engine.
//
// A workflow is a declarative DAG of tasks. Each task names the agent
// capability it needs, the tasks it depends on, and its retry/timeout
// budget. The engine tracks execution through WorkflowState and emits
// Events for every lifecycle transition.
package domain
