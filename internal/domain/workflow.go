package domain

import "time"

// DefaultRetryCount is the retry budget applied when a task does not set one.
const DefaultRetryCount = 3

// WorkflowConfig is the caller-supplied definition of a workflow. It is
// immutable for the duration of a run.
type WorkflowConfig struct {
	ID                string       `json:"id"`
	Name              string       `json:"name"`
	Tasks             []TaskConfig `json:"tasks"`
	ParallelExecution bool         `json:"parallel_execution"`
	FailFast          bool         `json:"fail_fast"`
	SwarmConfig       *SwarmConfig `json:"swarm_config,omitempty"`
}

// SwarmConfig is opaque backend topology setup, passed to the agent backend
// once before execution begins.
type SwarmConfig struct {
	Topology  string         `json:"topology,omitempty"`
	MaxAgents int            `json:"max_agents,omitempty"`
	Options   map[string]any `json:"options,omitempty"`
}

// TaskConfig describes a single unit of work inside a workflow.
type TaskConfig struct {
	ID           string   `json:"id"`
	Description  string   `json:"description"`
	AgentType    string   `json:"agent_type"`
	Dependencies []string `json:"dependencies,omitempty"`

	// RetryCount is the maximum number of retries after the first attempt.
	// A nil value means DefaultRetryCount; an explicit zero disables retries.
	RetryCount *int `json:"retry_count,omitempty"`

	// Timeout bounds a single execution attempt. Zero means the engine
	// default applies.
	Timeout time.Duration `json:"timeout,omitempty"`

	Input map[string]any `json:"input,omitempty"`
}

// RetryBudget returns the effective maximum number of retries for the task.
func (t TaskConfig) RetryBudget() int {
	if t.RetryCount == nil {
		return DefaultRetryCount
	}
	if *t.RetryCount < 0 {
		return 0
	}
	return *t.RetryCount
}

// TaskState is the mutable per-task execution record. It is owned
// exclusively by the state manager.
type TaskState struct {
	Status       TaskStatus `json:"status"`
	Dependencies []string   `json:"dependencies,omitempty"`

	// Dependents holds the inverse dependency edges, precomputed once at
	// workflow creation for O(1) downstream lookups.
	Dependents []string `json:"dependents,omitempty"`

	RetryCount int        `json:"retry_count"`
	StartTime  *time.Time `json:"start_time,omitempty"`
	EndTime    *time.Time `json:"end_time,omitempty"`
	AgentID    string     `json:"agent_id,omitempty"`
}

// Clone returns a deep copy of the task state.
func (s *TaskState) Clone() *TaskState {
	cp := *s
	cp.Dependencies = append([]string(nil), s.Dependencies...)
	cp.Dependents = append([]string(nil), s.Dependents...)
	if s.StartTime != nil {
		t := *s.StartTime
		cp.StartTime = &t
	}
	if s.EndTime != nil {
		t := *s.EndTime
		cp.EndTime = &t
	}
	return &cp
}

// TaskStateUpdate carries a partial update to a TaskState. Nil fields are
// left untouched by the merge.
type TaskStateUpdate struct {
	Status     *TaskStatus
	RetryCount *int
	StartTime  *time.Time
	EndTime    *time.Time
	AgentID    *string
}

// WorkflowState is the authoritative in-memory representation of one
// in-flight workflow.
type WorkflowState struct {
	WorkflowID string                `json:"workflow_id"`
	Status     TaskStatus            `json:"status"`
	TaskStates map[string]*TaskState `json:"task_states"`
	Results    []TaskResult          `json:"results"`
	Config     *WorkflowConfig       `json:"config"`
	Error      string                `json:"error,omitempty"`
	CreatedAt  time.Time             `json:"created_at"`
	UpdatedAt  time.Time             `json:"updated_at"`
}

// Clone returns a deep copy of the workflow state. Config is shared: it is
// immutable for the run by contract.
func (w *WorkflowState) Clone() *WorkflowState {
	cp := *w
	cp.TaskStates = make(map[string]*TaskState, len(w.TaskStates))
	for id, ts := range w.TaskStates {
		cp.TaskStates[id] = ts.Clone()
	}
	cp.Results = append([]TaskResult(nil), w.Results...)
	return &cp
}

// ExportedWorkflow is the transport-neutral serialized form of a workflow
// state plus its recovery snapshots. It round-trips losslessly through
// ExportState/ImportState.
type ExportedWorkflow struct {
	State      *WorkflowState   `json:"state"`
	Snapshots  []*WorkflowState `json:"snapshots,omitempty"`
	ExportedAt time.Time        `json:"exported_at"`
}

// WorkflowProgress summarizes task completion for one workflow. It is
// computed fresh on every call; task counts are small enough that
// correctness wins over caching.
type WorkflowProgress struct {
	Total      int     `json:"total"`
	Completed  int     `json:"completed"`
	Failed     int     `json:"failed"`
	InProgress int     `json:"in_progress"`
	Pending    int     `json:"pending"`
	Percentage float64 `json:"percentage"`
}
