package state

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/epenate/orq/internal/domain"
	"go.uber.org/zap"
)

func newTestManager(limit int) *Manager {
	return NewManager(nil, zap.NewNop(), limit)
}

func diamondConfig(id string) *domain.WorkflowConfig {
	return &domain.WorkflowConfig{
		ID:   id,
		Name: "diamond",
		Tasks: []domain.TaskConfig{
			{ID: "a", AgentType: "worker"},
			{ID: "b", AgentType: "worker", Dependencies: []string{"a"}},
			{ID: "c", AgentType: "worker", Dependencies: []string{"a"}},
			{ID: "d", AgentType: "worker", Dependencies: []string{"b", "c"}},
		},
	}
}

func setTaskStatus(t *testing.T, m *Manager, workflowID, taskID string, status domain.TaskStatus) {
	t.Helper()
	if err := m.UpdateTaskState(context.Background(), workflowID, taskID, domain.TaskStateUpdate{Status: &status}); err != nil {
		t.Fatalf("UpdateTaskState(%s -> %s) failed: %v", taskID, status, err)
	}
}

func TestCreateWorkflowState(t *testing.T) {
	m := newTestManager(0)

	state, err := m.CreateWorkflowState(context.Background(), diamondConfig("wf-1"))
	if err != nil {
		t.Fatalf("CreateWorkflowState failed: %v", err)
	}

	if state.Status != domain.StatusPending {
		t.Errorf("expected pending workflow, got %s", state.Status)
	}
	if len(state.TaskStates) != 4 {
		t.Fatalf("expected 4 task states, got %d", len(state.TaskStates))
	}
	for id, ts := range state.TaskStates {
		if ts.Status != domain.StatusPending {
			t.Errorf("task %s: expected pending, got %s", id, ts.Status)
		}
	}

	// Dependent edges are the inverse of dependency edges.
	if got := state.TaskStates["a"].Dependents; !reflect.DeepEqual(got, []string{"b", "c"}) {
		t.Errorf("dependents of a = %v, want [b c]", got)
	}
	if got := state.TaskStates["b"].Dependents; !reflect.DeepEqual(got, []string{"d"}) {
		t.Errorf("dependents of b = %v, want [d]", got)
	}
}

func TestCreateWorkflowState_DuplicateTaskID(t *testing.T) {
	m := newTestManager(0)

	_, err := m.CreateWorkflowState(context.Background(), &domain.WorkflowConfig{
		ID: "wf-dup",
		Tasks: []domain.TaskConfig{
			{ID: "a", AgentType: "worker"},
			{ID: "a", AgentType: "worker"},
		},
	})
	if !errors.Is(err, domain.ErrDuplicateTaskID) {
		t.Fatalf("expected ErrDuplicateTaskID, got %v", err)
	}
}

func TestCreateWorkflowState_UnknownDependency(t *testing.T) {
	m := newTestManager(0)

	_, err := m.CreateWorkflowState(context.Background(), &domain.WorkflowConfig{
		ID: "wf-unknown",
		Tasks: []domain.TaskConfig{
			{ID: "a", AgentType: "worker", Dependencies: []string{"ghost"}},
		},
	})
	if !errors.Is(err, domain.ErrUnknownDependency) {
		t.Fatalf("expected ErrUnknownDependency, got %v", err)
	}
}

func TestUpdateTaskState_TerminalIsFinal(t *testing.T) {
	m := newTestManager(0)
	if _, err := m.CreateWorkflowState(context.Background(), diamondConfig("wf-term")); err != nil {
		t.Fatalf("CreateWorkflowState failed: %v", err)
	}

	setTaskStatus(t, m, "wf-term", "a", domain.StatusInProgress)
	setTaskStatus(t, m, "wf-term", "a", domain.StatusCompleted)

	inProgress := domain.StatusInProgress
	err := m.UpdateTaskState(context.Background(), "wf-term", "a", domain.TaskStateUpdate{Status: &inProgress})
	if !errors.Is(err, domain.ErrTerminalState) {
		t.Fatalf("expected ErrTerminalState, got %v", err)
	}

	ts, err := m.GetTaskState("wf-term", "a")
	if err != nil {
		t.Fatalf("GetTaskState failed: %v", err)
	}
	if ts.Status != domain.StatusCompleted {
		t.Errorf("terminal status changed to %s", ts.Status)
	}
}

func TestUpdateTaskState_PartialMerge(t *testing.T) {
	m := newTestManager(0)
	if _, err := m.CreateWorkflowState(context.Background(), diamondConfig("wf-merge")); err != nil {
		t.Fatalf("CreateWorkflowState failed: %v", err)
	}

	agentID := "agent-1"
	if err := m.UpdateTaskState(context.Background(), "wf-merge", "a", domain.TaskStateUpdate{AgentID: &agentID}); err != nil {
		t.Fatalf("UpdateTaskState failed: %v", err)
	}

	ts, err := m.GetTaskState("wf-merge", "a")
	if err != nil {
		t.Fatalf("GetTaskState failed: %v", err)
	}
	if ts.AgentID != "agent-1" {
		t.Errorf("agent ID = %q, want agent-1", ts.AgentID)
	}
	if ts.Status != domain.StatusPending {
		t.Errorf("status changed by partial update: %s", ts.Status)
	}
}

func TestGetReadyTasks_DeclarationOrder(t *testing.T) {
	m := newTestManager(0)
	if _, err := m.CreateWorkflowState(context.Background(), diamondConfig("wf-ready")); err != nil {
		t.Fatalf("CreateWorkflowState failed: %v", err)
	}

	ready, err := m.GetReadyTasks("wf-ready")
	if err != nil {
		t.Fatalf("GetReadyTasks failed: %v", err)
	}
	if !reflect.DeepEqual(ready, []string{"a"}) {
		t.Fatalf("initial ready = %v, want [a]", ready)
	}

	setTaskStatus(t, m, "wf-ready", "a", domain.StatusInProgress)
	setTaskStatus(t, m, "wf-ready", "a", domain.StatusCompleted)

	ready, err = m.GetReadyTasks("wf-ready")
	if err != nil {
		t.Fatalf("GetReadyTasks failed: %v", err)
	}
	if !reflect.DeepEqual(ready, []string{"b", "c"}) {
		t.Fatalf("ready after a = %v, want [b c]", ready)
	}

	setTaskStatus(t, m, "wf-ready", "b", domain.StatusCompleted)
	ready, _ = m.GetReadyTasks("wf-ready")
	if len(ready) != 1 || ready[0] != "c" {
		t.Fatalf("ready after b = %v, want [c]", ready)
	}
}

func TestGetReadyTasks_FailedDependencyBlocks(t *testing.T) {
	m := newTestManager(0)
	if _, err := m.CreateWorkflowState(context.Background(), diamondConfig("wf-block")); err != nil {
		t.Fatalf("CreateWorkflowState failed: %v", err)
	}

	setTaskStatus(t, m, "wf-block", "a", domain.StatusFailed)

	ready, err := m.GetReadyTasks("wf-block")
	if err != nil {
		t.Fatalf("GetReadyTasks failed: %v", err)
	}
	if len(ready) != 0 {
		t.Fatalf("ready with failed dependency = %v, want none", ready)
	}

	complete, err := m.IsWorkflowComplete("wf-block")
	if err != nil {
		t.Fatalf("IsWorkflowComplete failed: %v", err)
	}
	if complete {
		t.Error("workflow reported complete with pending tasks")
	}
}

func TestGetWorkflowProgress(t *testing.T) {
	m := newTestManager(0)
	if _, err := m.CreateWorkflowState(context.Background(), diamondConfig("wf-prog")); err != nil {
		t.Fatalf("CreateWorkflowState failed: %v", err)
	}

	setTaskStatus(t, m, "wf-prog", "a", domain.StatusCompleted)
	setTaskStatus(t, m, "wf-prog", "b", domain.StatusInProgress)
	setTaskStatus(t, m, "wf-prog", "c", domain.StatusFailed)

	p, err := m.GetWorkflowProgress("wf-prog")
	if err != nil {
		t.Fatalf("GetWorkflowProgress failed: %v", err)
	}
	want := domain.WorkflowProgress{
		Total: 4, Completed: 1, Failed: 1, InProgress: 1, Pending: 1, Percentage: 25,
	}
	if *p != want {
		t.Errorf("progress = %+v, want %+v", *p, want)
	}
}

func TestSnapshotRingEviction(t *testing.T) {
	m := newTestManager(3)
	if _, err := m.CreateWorkflowState(context.Background(), diamondConfig("wf-ring")); err != nil {
		t.Fatalf("CreateWorkflowState failed: %v", err)
	}

	// Five snapshots, each taken after advancing one task. Only the last
	// three survive.
	order := []string{"a", "b", "c", "d"}
	if err := m.CreateSnapshot("wf-ring"); err != nil {
		t.Fatalf("CreateSnapshot failed: %v", err)
	}
	for _, id := range order {
		setTaskStatus(t, m, "wf-ring", id, domain.StatusCompleted)
		if err := m.CreateSnapshot("wf-ring"); err != nil {
			t.Fatalf("CreateSnapshot failed: %v", err)
		}
	}

	export, err := m.ExportState("wf-ring")
	if err != nil {
		t.Fatalf("ExportState failed: %v", err)
	}
	if len(export.Snapshots) != 3 {
		t.Fatalf("snapshot ring holds %d, want 3", len(export.Snapshots))
	}

	// The oldest surviving snapshot has a and b completed.
	oldest := export.Snapshots[0]
	if oldest.TaskStates["b"].Status != domain.StatusCompleted {
		t.Errorf("oldest snapshot: b = %s, want completed", oldest.TaskStates["b"].Status)
	}
	if oldest.TaskStates["c"].Status != domain.StatusPending {
		t.Errorf("oldest snapshot: c = %s, want pending", oldest.TaskStates["c"].Status)
	}
}

func TestRestoreFromSnapshot(t *testing.T) {
	m := newTestManager(0)
	if _, err := m.CreateWorkflowState(context.Background(), diamondConfig("wf-restore")); err != nil {
		t.Fatalf("CreateWorkflowState failed: %v", err)
	}

	if err := m.RestoreFromSnapshot("wf-restore"); !errors.Is(err, domain.ErrNoSnapshot) {
		t.Fatalf("expected ErrNoSnapshot, got %v", err)
	}

	setTaskStatus(t, m, "wf-restore", "a", domain.StatusCompleted)
	if err := m.CreateSnapshot("wf-restore"); err != nil {
		t.Fatalf("CreateSnapshot failed: %v", err)
	}
	setTaskStatus(t, m, "wf-restore", "b", domain.StatusCompleted)

	if err := m.RestoreFromSnapshot("wf-restore"); err != nil {
		t.Fatalf("RestoreFromSnapshot failed: %v", err)
	}

	ts, err := m.GetTaskState("wf-restore", "b")
	if err != nil {
		t.Fatalf("GetTaskState failed: %v", err)
	}
	if ts.Status != domain.StatusPending {
		t.Errorf("after restore b = %s, want pending", ts.Status)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	m := newTestManager(0)
	if _, err := m.CreateWorkflowState(context.Background(), diamondConfig("wf-export")); err != nil {
		t.Fatalf("CreateWorkflowState failed: %v", err)
	}
	setTaskStatus(t, m, "wf-export", "a", domain.StatusCompleted)
	if err := m.AddTaskResult(context.Background(), "wf-export", domain.TaskResult{
		TaskID: "a",
		Status: domain.StatusCompleted,
		Output: "output-a",
	}); err != nil {
		t.Fatalf("AddTaskResult failed: %v", err)
	}
	if err := m.CreateSnapshot("wf-export"); err != nil {
		t.Fatalf("CreateSnapshot failed: %v", err)
	}

	export, err := m.ExportState("wf-export")
	if err != nil {
		t.Fatalf("ExportState failed: %v", err)
	}

	data, err := MarshalExport(export)
	if err != nil {
		t.Fatalf("MarshalExport failed: %v", err)
	}
	parsed, err := UnmarshalExport(data)
	if err != nil {
		t.Fatalf("UnmarshalExport failed: %v", err)
	}

	fresh := newTestManager(0)
	if err := fresh.ImportState(parsed); err != nil {
		t.Fatalf("ImportState failed: %v", err)
	}

	state, err := fresh.GetWorkflowState("wf-export")
	if err != nil {
		t.Fatalf("GetWorkflowState after import failed: %v", err)
	}
	if state.TaskStates["a"].Status != domain.StatusCompleted {
		t.Errorf("imported a = %s, want completed", state.TaskStates["a"].Status)
	}
	if len(state.Results) != 1 || state.Results[0].Output != "output-a" {
		t.Errorf("imported results = %+v", state.Results)
	}

	restored, err := fresh.ExportState("wf-export")
	if err != nil {
		t.Fatalf("ExportState after import failed: %v", err)
	}
	if len(restored.Snapshots) != 1 {
		t.Errorf("imported snapshots = %d, want 1", len(restored.Snapshots))
	}
}

func TestGetWorkflowStateIsACopy(t *testing.T) {
	m := newTestManager(0)
	if _, err := m.CreateWorkflowState(context.Background(), diamondConfig("wf-copy")); err != nil {
		t.Fatalf("CreateWorkflowState failed: %v", err)
	}

	state, err := m.GetWorkflowState("wf-copy")
	if err != nil {
		t.Fatalf("GetWorkflowState failed: %v", err)
	}
	state.TaskStates["a"].Status = domain.StatusFailed

	fresh, _ := m.GetWorkflowState("wf-copy")
	if fresh.TaskStates["a"].Status != domain.StatusPending {
		t.Error("mutating the returned state leaked into the manager")
	}
}

func TestUpdateWorkflowStatus_TerminalIsFinal(t *testing.T) {
	m := newTestManager(0)
	if _, err := m.CreateWorkflowState(context.Background(), diamondConfig("wf-wterm")); err != nil {
		t.Fatalf("CreateWorkflowState failed: %v", err)
	}

	if err := m.UpdateWorkflowStatus(context.Background(), "wf-wterm", domain.StatusCancelled, "cancelled"); err != nil {
		t.Fatalf("UpdateWorkflowStatus failed: %v", err)
	}
	err := m.UpdateWorkflowStatus(context.Background(), "wf-wterm", domain.StatusCompleted, "")
	if !errors.Is(err, domain.ErrTerminalState) {
		t.Fatalf("expected ErrTerminalState, got %v", err)
	}
}

func TestRemoveWorkflow(t *testing.T) {
	m := newTestManager(0)
	if _, err := m.CreateWorkflowState(context.Background(), diamondConfig("wf-rm")); err != nil {
		t.Fatalf("CreateWorkflowState failed: %v", err)
	}
	m.RemoveWorkflow("wf-rm")

	if _, err := m.GetWorkflowState("wf-rm"); !errors.Is(err, domain.ErrWorkflowNotFound) {
		t.Fatalf("expected ErrWorkflowNotFound, got %v", err)
	}
}

func TestTaskTimestamps(t *testing.T) {
	m := newTestManager(0)
	if _, err := m.CreateWorkflowState(context.Background(), diamondConfig("wf-time")); err != nil {
		t.Fatalf("CreateWorkflowState failed: %v", err)
	}

	start := time.Now()
	inProgress := domain.StatusInProgress
	if err := m.UpdateTaskState(context.Background(), "wf-time", "a", domain.TaskStateUpdate{
		Status:    &inProgress,
		StartTime: &start,
	}); err != nil {
		t.Fatalf("UpdateTaskState failed: %v", err)
	}

	ts, _ := m.GetTaskState("wf-time", "a")
	if ts.StartTime == nil || !ts.StartTime.Equal(start) {
		t.Errorf("start time not recorded: %v", ts.StartTime)
	}
	if ts.EndTime != nil {
		t.Errorf("end time set prematurely: %v", ts.EndTime)
	}
}
