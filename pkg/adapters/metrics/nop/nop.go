// Package nop provides a metrics collector that discards everything.
// Tests and embedded callers use it to satisfy the engine's metrics
// dependency without a registry.
package nop

import "time"

// Collector implements ports.MetricsCollector with no-ops.
type Collector struct{}

// NewCollector creates a no-op metrics collector.
func NewCollector() *Collector {
	return &Collector{}
}

func (*Collector) RecordWorkflowSubmitted(status string)                         {}
func (*Collector) RecordWorkflowCompleted(status string, duration time.Duration) {}
func (*Collector) RecordTaskExecuted(agentType, status string, duration time.Duration) {
}
func (*Collector) RecordTaskRetry(agentType string)    {}
func (*Collector) RecordAgentSpawned(agentType string) {}
func (*Collector) RecordSlotOccupancy(busy, idle int)  {}
func (*Collector) SetActiveWorkflows(count int)        {}
func (*Collector) SetQueueDepth(depth int)             {}
