package sequential

import (
	"container/heap"
	"context"
	"fmt"

	"github.com/epenate/orq/internal/domain"
	"go.uber.org/zap"
)

// TaskFunc executes a single task and reports its outcome. A non-nil error
// means the task failed; the returned result, when non-nil, is recorded
// either way.
type TaskFunc func(ctx context.Context, task domain.TaskConfig) (*domain.TaskResult, error)

// ValidationResult reports every dependency violation found, not just the
// first.
type ValidationResult struct {
	Valid  bool
	Errors []string
}

// Executor runs tasks one at a time in topological order.
type Executor struct {
	logger *zap.Logger

	// StopOnFailure aborts the run on the first failed task. Tasks after
	// the failure are never attempted and get no result entry: absence,
	// not a cancelled marker, signals "not run".
	StopOnFailure bool
}

// NewExecutor creates a sequential executor.
func NewExecutor(logger *zap.Logger, stopOnFailure bool) *Executor {
	return &Executor{logger: logger, StopOnFailure: stopOnFailure}
}

// ValidateDependencies checks that every referenced dependency ID exists in
// the task list. All violations are collected.
func (e *Executor) ValidateDependencies(tasks []domain.TaskConfig) ValidationResult {
	known := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		known[t.ID] = true
	}

	result := ValidationResult{Valid: true}
	for _, t := range tasks {
		for _, dep := range t.Dependencies {
			if !known[dep] {
				result.Valid = false
				result.Errors = append(result.Errors,
					fmt.Sprintf("task %s depends on unknown task %s", t.ID, dep))
			}
		}
	}
	return result
}

// indexMinHeap orders pending declaration indices so the topological sort
// stays stable with respect to the input order.
type indexMinHeap []int

func (h indexMinHeap) Len() int           { return len(h) }
func (h indexMinHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h indexMinHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *indexMinHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *indexMinHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// SortByDependencies returns the tasks in topological order using Kahn's
// algorithm. Among tasks with no ordering constraint between them the
// original declaration order is preserved. A cycle yields ErrDependencyCycle.
func (e *Executor) SortByDependencies(tasks []domain.TaskConfig) ([]domain.TaskConfig, error) {
	if v := e.ValidateDependencies(tasks); !v.Valid {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnknownDependency, v.Errors)
	}

	indexByID := make(map[string]int, len(tasks))
	for i, t := range tasks {
		indexByID[t.ID] = i
	}

	indegree := make([]int, len(tasks))
	dependents := make([][]int, len(tasks))
	for i, t := range tasks {
		indegree[i] = len(t.Dependencies)
		for _, dep := range t.Dependencies {
			d := indexByID[dep]
			dependents[d] = append(dependents[d], i)
		}
	}

	ready := &indexMinHeap{}
	heap.Init(ready)
	for i := range tasks {
		if indegree[i] == 0 {
			heap.Push(ready, i)
		}
	}

	sorted := make([]domain.TaskConfig, 0, len(tasks))
	for ready.Len() > 0 {
		i := heap.Pop(ready).(int)
		sorted = append(sorted, tasks[i])
		for _, dep := range dependents[i] {
			indegree[dep]--
			if indegree[dep] == 0 {
				heap.Push(ready, dep)
			}
		}
	}

	if len(sorted) != len(tasks) {
		remaining := make([]string, 0)
		seen := make(map[string]bool, len(sorted))
		for _, t := range sorted {
			seen[t.ID] = true
		}
		for _, t := range tasks {
			if !seen[t.ID] {
				remaining = append(remaining, t.ID)
			}
		}
		return nil, fmt.Errorf("%w: involving tasks %v", domain.ErrDependencyCycle, remaining)
	}
	return sorted, nil
}

// ExecuteTasks runs each task to completion before starting the next. The
// input must already be in dependency order, normally produced by
// SortByDependencies. With StopOnFailure set, a failed task aborts the run
// and the partial result list is returned alongside the failure.
func (e *Executor) ExecuteTasks(ctx context.Context, tasks []domain.TaskConfig, fn TaskFunc) ([]domain.TaskResult, error) {
	results := make([]domain.TaskResult, 0, len(tasks))

	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			return results, fmt.Errorf("execution cancelled: %w", err)
		}

		e.logger.Debug("executing task",
			zap.String("task_id", task.ID),
			zap.String("agent_type", task.AgentType))

		result, err := fn(ctx, task)
		if result != nil {
			results = append(results, *result)
		}
		if err != nil {
			e.logger.Warn("task failed",
				zap.String("task_id", task.ID),
				zap.Error(err))
			if e.StopOnFailure {
				return results, fmt.Errorf("task %s failed, stopping: %w", task.ID, err)
			}
		}
	}
	return results, nil
}
