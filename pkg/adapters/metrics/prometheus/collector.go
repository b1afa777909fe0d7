// Package prometheus implements the metrics collector on the Prometheus
// client. Metrics register on the default registry and are served by the
// HTTP API's /metrics endpoint.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector implements ports.MetricsCollector using Prometheus.
type Collector struct {
	workflowsSubmitted *prometheus.CounterVec
	workflowsCompleted *prometheus.CounterVec
	workflowDuration   *prometheus.HistogramVec
	tasksExecuted      *prometheus.CounterVec
	taskDuration       *prometheus.HistogramVec
	taskRetries        *prometheus.CounterVec
	agentsSpawned      *prometheus.CounterVec
	slotsBusy          prometheus.Gauge
	slotsIdle          prometheus.Gauge
	activeWorkflows    prometheus.Gauge
	queueDepth         prometheus.Gauge
}

// NewCollector creates a Prometheus metrics collector.
func NewCollector() *Collector {
	return &Collector{
		workflowsSubmitted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orq_workflows_submitted_total",
				Help: "Total number of workflows submitted",
			},
			[]string{"status"},
		),
		workflowsCompleted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orq_workflows_completed_total",
				Help: "Total number of workflows that reached a terminal status",
			},
			[]string{"status"},
		),
		workflowDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "orq_workflow_duration_seconds",
				Help:    "Workflow execution duration in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"status"},
		),
		tasksExecuted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orq_tasks_executed_total",
				Help: "Total number of task executions by agent type and outcome",
			},
			[]string{"agent_type", "status"},
		),
		taskDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "orq_task_duration_seconds",
				Help:    "Task execution duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
			[]string{"agent_type"},
		),
		taskRetries: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orq_task_retries_total",
				Help: "Total number of task retry attempts",
			},
			[]string{"agent_type"},
		),
		agentsSpawned: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orq_agents_spawned_total",
				Help: "Total number of agents spawned",
			},
			[]string{"agent_type"},
		),
		slotsBusy: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "orq_executor_slots_busy",
				Help: "Number of busy executor slots",
			},
		),
		slotsIdle: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "orq_executor_slots_idle",
				Help: "Number of idle executor slots",
			},
		),
		activeWorkflows: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "orq_active_workflows",
				Help: "Number of workflows currently executing",
			},
		),
		queueDepth: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "orq_executor_queue_depth",
				Help: "Number of tasks waiting for an executor slot",
			},
		),
	}
}

// RecordWorkflowSubmitted counts a workflow submission by admission status.
func (c *Collector) RecordWorkflowSubmitted(status string) {
	c.workflowsSubmitted.WithLabelValues(status).Inc()
}

// RecordWorkflowCompleted counts a terminal workflow and observes its duration.
func (c *Collector) RecordWorkflowCompleted(status string, duration time.Duration) {
	c.workflowsCompleted.WithLabelValues(status).Inc()
	c.workflowDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordTaskExecuted counts a task execution and observes its duration.
func (c *Collector) RecordTaskExecuted(agentType, status string, duration time.Duration) {
	c.tasksExecuted.WithLabelValues(agentType, status).Inc()
	c.taskDuration.WithLabelValues(agentType).Observe(duration.Seconds())
}

// RecordTaskRetry counts one retry attempt.
func (c *Collector) RecordTaskRetry(agentType string) {
	c.taskRetries.WithLabelValues(agentType).Inc()
}

// RecordAgentSpawned counts one agent spawn.
func (c *Collector) RecordAgentSpawned(agentType string) {
	c.agentsSpawned.WithLabelValues(agentType).Inc()
}

// RecordSlotOccupancy sets the executor slot gauges.
func (c *Collector) RecordSlotOccupancy(busy, idle int) {
	c.slotsBusy.Set(float64(busy))
	c.slotsIdle.Set(float64(idle))
}

// SetActiveWorkflows sets the active workflow gauge.
func (c *Collector) SetActiveWorkflows(count int) {
	c.activeWorkflows.Set(float64(count))
}

// SetQueueDepth sets the executor queue depth gauge.
func (c *Collector) SetQueueDepth(depth int) {
	c.queueDepth.Set(float64(depth))
}
