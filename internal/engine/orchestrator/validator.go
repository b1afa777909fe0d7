package orchestrator

import (
	"container/heap"
	"fmt"

	"github.com/epenate/orq/internal/domain"
)

// Validator validates workflow structures before execution.
type Validator struct{}

// NewValidator creates a workflow validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks a workflow config for structural problems: missing
// fields, duplicate task IDs, dependencies on unknown tasks, and dependency
// cycles. A cycle is reported as ErrDependencyCycle, distinct from the
// runtime deadlock error, so callers can tell a bad definition from a run
// starved by failed dependencies.
func (v *Validator) Validate(config *domain.WorkflowConfig) error {
	if config == nil {
		return fmt.Errorf("workflow is nil")
	}
	if config.ID == "" {
		return fmt.Errorf("workflow ID is required")
	}
	if len(config.Tasks) == 0 {
		return fmt.Errorf("workflow must have at least one task")
	}

	indexByID := make(map[string]int, len(config.Tasks))
	for i, task := range config.Tasks {
		if err := v.validateTask(task); err != nil {
			return fmt.Errorf("invalid task %s: %w", task.ID, err)
		}
		if _, exists := indexByID[task.ID]; exists {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateTaskID, task.ID)
		}
		indexByID[task.ID] = i
	}

	for _, task := range config.Tasks {
		for _, dep := range task.Dependencies {
			if _, exists := indexByID[dep]; !exists {
				return fmt.Errorf("%w: task %s depends on %s", domain.ErrUnknownDependency, task.ID, dep)
			}
			if dep == task.ID {
				return fmt.Errorf("%w: task %s depends on itself", domain.ErrDependencyCycle, task.ID)
			}
		}
	}

	return v.validateAcyclic(config.Tasks, indexByID)
}

func (v *Validator) validateTask(task domain.TaskConfig) error {
	if task.ID == "" {
		return fmt.Errorf("task ID is required")
	}
	if task.AgentType == "" {
		return fmt.Errorf("agent type is required")
	}
	return nil
}

type indexHeap []int

func (h indexHeap) Len() int           { return len(h) }
func (h indexHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h indexHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *indexHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *indexHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// validateAcyclic proves the dependency relation has no cycles with Kahn's
// algorithm; when one exists the leftover tasks are named in the error.
func (v *Validator) validateAcyclic(tasks []domain.TaskConfig, indexByID map[string]int) error {
	indegree := make([]int, len(tasks))
	dependents := make([][]int, len(tasks))
	for i, task := range tasks {
		indegree[i] = len(task.Dependencies)
		for _, dep := range task.Dependencies {
			d := indexByID[dep]
			dependents[d] = append(dependents[d], i)
		}
	}

	ready := &indexHeap{}
	heap.Init(ready)
	for i := range tasks {
		if indegree[i] == 0 {
			heap.Push(ready, i)
		}
	}

	visited := 0
	for ready.Len() > 0 {
		i := heap.Pop(ready).(int)
		visited++
		for _, dep := range dependents[i] {
			indegree[dep]--
			if indegree[dep] == 0 {
				heap.Push(ready, dep)
			}
		}
	}

	if visited != len(tasks) {
		stuck := make([]string, 0)
		for i, task := range tasks {
			if indegree[i] > 0 {
				stuck = append(stuck, task.ID)
			}
		}
		return fmt.Errorf("%w: involving tasks %v", domain.ErrDependencyCycle, stuck)
	}
	return nil
}
