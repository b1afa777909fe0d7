package ports

import "time"

// MetricsCollector receives engine measurements. The prometheus adapter is
// the production implementation; tests use the nop adapter.
type MetricsCollector interface {
	RecordWorkflowSubmitted(status string)
	RecordWorkflowCompleted(status string, duration time.Duration)
	RecordTaskExecuted(agentType, status string, duration time.Duration)
	RecordTaskRetry(agentType string)
	RecordAgentSpawned(agentType string)
	RecordSlotOccupancy(busy, idle int)
	SetActiveWorkflows(count int)
	SetQueueDepth(depth int)
}
