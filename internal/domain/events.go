package domain

import "time"

// EventType identifies a lifecycle transition.
type EventType string

const (
	EventWorkflowStarted   EventType = "workflow.started"
	EventWorkflowCompleted EventType = "workflow.completed"
	EventWorkflowFailed    EventType = "workflow.failed"
	EventWorkflowCancelled EventType = "workflow.cancelled"
	EventWorkflowStatus    EventType = "workflow.status"
	EventWorkflowRecovery  EventType = "workflow.recovery"

	EventTaskStarted   EventType = "task.started"
	EventTaskCompleted EventType = "task.completed"
	EventTaskFailed    EventType = "task.failed"
	EventTaskRetry     EventType = "task.retry"
	EventTaskState     EventType = "task.state"
	EventTaskResult    EventType = "task.result"

	EventAgentSpawned EventType = "agent.spawned"

	EventSlotAssigned EventType = "slot.assigned"
	EventSlotReleased EventType = "slot.released"
)

// Event bus topics. Consumers subscribe per topic; the Type field carries
// the fine-grained transition.
const (
	TopicWorkflowEvents = "workflow.events"
	TopicTaskEvents     = "task.events"
	TopicExecutorEvents = "executor.events"
)

// Event is a read-only notification of a state transition. Observers never
// mutate engine state through events.
type Event struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	WorkflowID string         `json:"workflow_id,omitempty"`
	TaskID     string         `json:"task_id,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	Data       map[string]any `json:"data,omitempty"`
}
