package state

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/epenate/orq/internal/domain"
	"github.com/epenate/orq/internal/ports"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultSnapshotLimit bounds the per-workflow snapshot ring when no limit
// is configured.
const DefaultSnapshotLimit = 10

// Manager tracks the state of one or more in-flight workflows.
type Manager struct {
	bus           ports.EventBus
	logger        *zap.Logger
	snapshotLimit int

	mu        sync.RWMutex
	workflows map[string]*workflowEntry
}

// workflowEntry couples a workflow state with its recovery snapshots.
// Snapshots are most-recent-last; the oldest is evicted when the ring is
// full.
type workflowEntry struct {
	state     *domain.WorkflowState
	snapshots []*domain.WorkflowState
}

// NewManager creates a state manager. A snapshotLimit of zero or less
// selects DefaultSnapshotLimit.
func NewManager(bus ports.EventBus, logger *zap.Logger, snapshotLimit int) *Manager {
	if snapshotLimit <= 0 {
		snapshotLimit = DefaultSnapshotLimit
	}
	return &Manager{
		bus:           bus,
		logger:        logger,
		snapshotLimit: snapshotLimit,
		workflows:     make(map[string]*workflowEntry),
	}
}

// CreateWorkflowState builds the initial state for a workflow: one pending
// TaskState per task, with dependent edges precomputed by inverting every
// dependency edge. It fails on duplicate task IDs and on dependencies that
// reference tasks outside the workflow.
func (m *Manager) CreateWorkflowState(ctx context.Context, config *domain.WorkflowConfig) (*domain.WorkflowState, error) {
	if config == nil {
		return nil, fmt.Errorf("workflow config is nil")
	}
	if config.ID == "" {
		return nil, fmt.Errorf("workflow ID is required")
	}

	taskStates := make(map[string]*domain.TaskState, len(config.Tasks))
	for _, task := range config.Tasks {
		if _, exists := taskStates[task.ID]; exists {
			return nil, fmt.Errorf("%w: %s", domain.ErrDuplicateTaskID, task.ID)
		}
		taskStates[task.ID] = &domain.TaskState{
			Status:       domain.StatusPending,
			Dependencies: append([]string(nil), task.Dependencies...),
		}
	}

	// Invert dependency edges so downstream lookups are O(1).
	for _, task := range config.Tasks {
		for _, dep := range task.Dependencies {
			depState, ok := taskStates[dep]
			if !ok {
				return nil, fmt.Errorf("%w: task %s depends on %s", domain.ErrUnknownDependency, task.ID, dep)
			}
			depState.Dependents = append(depState.Dependents, task.ID)
		}
	}

	now := time.Now()
	state := &domain.WorkflowState{
		WorkflowID: config.ID,
		Status:     domain.StatusPending,
		TaskStates: taskStates,
		Results:    make([]domain.TaskResult, 0, len(config.Tasks)),
		Config:     config,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	m.mu.Lock()
	if _, exists := m.workflows[config.ID]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("workflow state already exists: %s", config.ID)
	}
	m.workflows[config.ID] = &workflowEntry{state: state}
	m.mu.Unlock()

	m.logger.Info("workflow state created",
		zap.String("workflow_id", config.ID),
		zap.Int("tasks", len(config.Tasks)))

	return state, nil
}

// UpdateTaskState merges a partial update into a task's state and emits a
// task.state event carrying the new state. Unknown workflow or task IDs are
// programmer errors and fail loudly. A terminal task status never changes.
func (m *Manager) UpdateTaskState(ctx context.Context, workflowID, taskID string, update domain.TaskStateUpdate) error {
	m.mu.Lock()
	entry, ok := m.workflows[workflowID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", domain.ErrWorkflowNotFound, workflowID)
	}
	ts, ok := entry.state.TaskStates[taskID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s in workflow %s", domain.ErrTaskNotFound, taskID, workflowID)
	}

	if update.Status != nil && *update.Status != ts.Status {
		if ts.Status.Terminal() {
			m.mu.Unlock()
			return fmt.Errorf("%w: task %s is %s, cannot become %s",
				domain.ErrTerminalState, taskID, ts.Status, *update.Status)
		}
		ts.Status = *update.Status
	}
	if update.RetryCount != nil {
		ts.RetryCount = *update.RetryCount
	}
	if update.StartTime != nil {
		ts.StartTime = update.StartTime
	}
	if update.EndTime != nil {
		ts.EndTime = update.EndTime
	}
	if update.AgentID != nil {
		ts.AgentID = *update.AgentID
	}
	entry.state.UpdatedAt = time.Now()
	snapshot := ts.Clone()
	m.mu.Unlock()

	m.publish(ctx, domain.TopicTaskEvents, domain.Event{
		ID:         uuid.New().String(),
		Type:       domain.EventTaskState,
		WorkflowID: workflowID,
		TaskID:     taskID,
		Timestamp:  time.Now(),
		Data: map[string]any{
			"status":      snapshot.Status,
			"retry_count": snapshot.RetryCount,
			"agent_id":    snapshot.AgentID,
		},
	})

	return nil
}

// AddTaskResult appends a result to the workflow's ordered result list and
// emits a task.result event.
func (m *Manager) AddTaskResult(ctx context.Context, workflowID string, result domain.TaskResult) error {
	m.mu.Lock()
	entry, ok := m.workflows[workflowID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", domain.ErrWorkflowNotFound, workflowID)
	}
	entry.state.Results = append(entry.state.Results, result)
	entry.state.UpdatedAt = time.Now()
	m.mu.Unlock()

	m.publish(ctx, domain.TopicTaskEvents, domain.Event{
		ID:         uuid.New().String(),
		Type:       domain.EventTaskResult,
		WorkflowID: workflowID,
		TaskID:     result.TaskID,
		Timestamp:  time.Now(),
		Data: map[string]any{
			"status":      result.Status,
			"duration":    result.Duration.String(),
			"retry_count": result.RetryCount,
			"error":       result.Error,
		},
	})

	return nil
}

// UpdateWorkflowStatus sets the workflow status and emits a workflow.status
// event. A terminal workflow status never changes.
func (m *Manager) UpdateWorkflowStatus(ctx context.Context, workflowID string, status domain.TaskStatus, errorMessage string) error {
	m.mu.Lock()
	entry, ok := m.workflows[workflowID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", domain.ErrWorkflowNotFound, workflowID)
	}
	if entry.state.Status.Terminal() && status != entry.state.Status {
		m.mu.Unlock()
		return fmt.Errorf("%w: workflow %s is %s, cannot become %s",
			domain.ErrTerminalState, workflowID, entry.state.Status, status)
	}
	entry.state.Status = status
	entry.state.Error = errorMessage
	entry.state.UpdatedAt = time.Now()
	m.mu.Unlock()

	m.publish(ctx, domain.TopicWorkflowEvents, domain.Event{
		ID:         uuid.New().String(),
		Type:       domain.EventWorkflowStatus,
		WorkflowID: workflowID,
		Timestamp:  time.Now(),
		Data: map[string]any{
			"status": status,
			"error":  errorMessage,
		},
	})

	return nil
}

// GetReadyTasks returns the IDs of every pending task whose dependencies
// have all completed. Order among ready tasks is the original declaration
// order; readiness is stable, not prioritized.
func (m *Manager) GetReadyTasks(workflowID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.workflows[workflowID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrWorkflowNotFound, workflowID)
	}

	ready := make([]string, 0)
	for _, task := range entry.state.Config.Tasks {
		ts := entry.state.TaskStates[task.ID]
		if ts.Status != domain.StatusPending {
			continue
		}
		depsCompleted := true
		for _, dep := range ts.Dependencies {
			if entry.state.TaskStates[dep].Status != domain.StatusCompleted {
				depsCompleted = false
				break
			}
		}
		if depsCompleted {
			ready = append(ready, task.ID)
		}
	}
	return ready, nil
}

// IsWorkflowComplete reports whether no task remains pending or in
// progress.
func (m *Manager) IsWorkflowComplete(workflowID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.workflows[workflowID]
	if !ok {
		return false, fmt.Errorf("%w: %s", domain.ErrWorkflowNotFound, workflowID)
	}
	for _, ts := range entry.state.TaskStates {
		if ts.Status == domain.StatusPending || ts.Status == domain.StatusInProgress {
			return false, nil
		}
	}
	return true, nil
}

// GetWorkflowProgress computes fresh completion counters for a workflow.
func (m *Manager) GetWorkflowProgress(workflowID string) (*domain.WorkflowProgress, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.workflows[workflowID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrWorkflowNotFound, workflowID)
	}

	p := &domain.WorkflowProgress{Total: len(entry.state.TaskStates)}
	for _, ts := range entry.state.TaskStates {
		switch ts.Status {
		case domain.StatusCompleted:
			p.Completed++
		case domain.StatusFailed:
			p.Failed++
		case domain.StatusInProgress:
			p.InProgress++
		case domain.StatusPending:
			p.Pending++
		}
	}
	if p.Total > 0 {
		p.Percentage = float64(p.Completed) / float64(p.Total) * 100
	}
	return p, nil
}

// GetWorkflowState returns a deep copy of the current workflow state.
func (m *Manager) GetWorkflowState(workflowID string) (*domain.WorkflowState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.workflows[workflowID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrWorkflowNotFound, workflowID)
	}
	return entry.state.Clone(), nil
}

// GetTaskState returns a copy of a single task's state.
func (m *Manager) GetTaskState(workflowID, taskID string) (*domain.TaskState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.workflows[workflowID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrWorkflowNotFound, workflowID)
	}
	ts, ok := entry.state.TaskStates[taskID]
	if !ok {
		return nil, fmt.Errorf("%w: %s in workflow %s", domain.ErrTaskNotFound, taskID, workflowID)
	}
	return ts.Clone(), nil
}

// ListWorkflows returns the IDs of every tracked workflow.
func (m *Manager) ListWorkflows() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.workflows))
	for id := range m.workflows {
		ids = append(ids, id)
	}
	return ids
}

// CreateSnapshot deep-copies the current state into the workflow's snapshot
// ring, evicting the oldest entry once the ring is full. Snapshots are a
// recovery mechanism, not a transaction log: events between the last
// snapshot and a crash are lost by design.
func (m *Manager) CreateSnapshot(workflowID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.workflows[workflowID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrWorkflowNotFound, workflowID)
	}
	entry.snapshots = append(entry.snapshots, entry.state.Clone())
	if len(entry.snapshots) > m.snapshotLimit {
		entry.snapshots = entry.snapshots[len(entry.snapshots)-m.snapshotLimit:]
	}

	m.logger.Debug("snapshot created",
		zap.String("workflow_id", workflowID),
		zap.Int("snapshots", len(entry.snapshots)))

	return nil
}

// RestoreFromSnapshot replaces the current state with a deep copy of the
// most recent snapshot.
func (m *Manager) RestoreFromSnapshot(workflowID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.workflows[workflowID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrWorkflowNotFound, workflowID)
	}
	if len(entry.snapshots) == 0 {
		return fmt.Errorf("%w: workflow %s", domain.ErrNoSnapshot, workflowID)
	}
	entry.state = entry.snapshots[len(entry.snapshots)-1].Clone()

	m.logger.Info("workflow state restored from snapshot",
		zap.String("workflow_id", workflowID))

	return nil
}

// ExportState serializes a workflow state and its snapshots to a
// transport-neutral form for external persistence.
func (m *Manager) ExportState(workflowID string) (*domain.ExportedWorkflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.workflows[workflowID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrWorkflowNotFound, workflowID)
	}
	export := &domain.ExportedWorkflow{
		State:      entry.state.Clone(),
		Snapshots:  make([]*domain.WorkflowState, 0, len(entry.snapshots)),
		ExportedAt: time.Now(),
	}
	for _, snap := range entry.snapshots {
		export.Snapshots = append(export.Snapshots, snap.Clone())
	}
	return export, nil
}

// ImportState installs a previously exported workflow, replacing any state
// tracked under the same ID.
func (m *Manager) ImportState(export *domain.ExportedWorkflow) error {
	if export == nil || export.State == nil {
		return fmt.Errorf("exported workflow is nil")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entry := &workflowEntry{state: export.State.Clone()}
	for _, snap := range export.Snapshots {
		entry.snapshots = append(entry.snapshots, snap.Clone())
	}
	m.workflows[export.State.WorkflowID] = entry

	m.logger.Info("workflow state imported",
		zap.String("workflow_id", export.State.WorkflowID),
		zap.String("status", string(export.State.Status)))

	return nil
}

// RemoveWorkflow drops a workflow and its snapshots from the manager.
func (m *Manager) RemoveWorkflow(workflowID string) {
	m.mu.Lock()
	delete(m.workflows, workflowID)
	m.mu.Unlock()
}

// MarshalExport is a convenience wrapper producing the JSON wire form of an
// export, used by state store adapters.
func MarshalExport(export *domain.ExportedWorkflow) ([]byte, error) {
	data, err := json.Marshal(export)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal export: %w", err)
	}
	return data, nil
}

// UnmarshalExport parses the JSON wire form of an export.
func UnmarshalExport(data []byte) (*domain.ExportedWorkflow, error) {
	var export domain.ExportedWorkflow
	if err := json.Unmarshal(data, &export); err != nil {
		return nil, fmt.Errorf("failed to unmarshal export: %w", err)
	}
	return &export, nil
}

func (m *Manager) publish(ctx context.Context, topic string, event domain.Event) {
	if m.bus == nil {
		return
	}
	if err := m.bus.Publish(ctx, topic, event); err != nil {
		m.logger.Error("failed to publish event",
			zap.String("event_type", string(event.Type)),
			zap.String("workflow_id", event.WorkflowID),
			zap.Error(err))
	}
}
