package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/epenate/orq/internal/domain"
	"github.com/epenate/orq/internal/engine/sequential"
	"github.com/epenate/orq/internal/engine/state"
	"github.com/epenate/orq/internal/ports"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Options tunes the engine. Zero values select the defaults below.
type Options struct {
	// MaxConcurrentTasks caps how many tasks of one workflow run at once
	// on the parallel path.
	MaxConcurrentTasks int

	// RetryDelay is the flat pause between retry attempts. Deliberately
	// not exponential: task retries are expected to be few and cheap.
	RetryDelay time.Duration

	// SnapshotInterval is the period of the recovery snapshot timer.
	SnapshotInterval time.Duration

	// DependencyPollInterval is how often the sequential path re-checks an
	// unsatisfied dependency.
	DependencyPollInterval time.Duration

	// DefaultTaskTimeout bounds a single execution attempt when the task
	// does not set its own timeout.
	DefaultTaskTimeout time.Duration

	// AutoRecovery emits a workflow.recovery signal after a workflow-fatal
	// error. The recovery strategy itself belongs to the caller; the
	// engine only signals intent.
	AutoRecovery bool
}

func (o *Options) applyDefaults() {
	if o.MaxConcurrentTasks <= 0 {
		o.MaxConcurrentTasks = 5
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 2 * time.Second
	}
	if o.SnapshotInterval <= 0 {
		o.SnapshotInterval = 30 * time.Second
	}
	if o.DependencyPollInterval <= 0 {
		o.DependencyPollInterval = time.Second
	}
	if o.DefaultTaskTimeout <= 0 {
		o.DefaultTaskTimeout = 5 * time.Minute
	}
}

// Engine is the top-level workflow orchestrator.
type Engine struct {
	state     *state.Manager
	backend   ports.AgentBackend
	bus       ports.EventBus
	metrics   ports.MetricsCollector
	validator *Validator
	logger    *zap.Logger
	opts      Options

	mu       sync.Mutex
	contexts map[string]*executionContext
}

// executionContext is the ephemeral per-run bookkeeping: the cached agent
// handles, the active task count and the cooperative cancellation flag. It
// never outlives its workflow.
type executionContext struct {
	workflowID string
	startTime  time.Time
	cancel     context.CancelFunc

	mu          sync.Mutex
	agents      map[string]ports.AgentHandle
	activeTasks int
	cancelled   bool
}

func (ec *executionContext) markCancelled() {
	ec.mu.Lock()
	ec.cancelled = true
	ec.mu.Unlock()
	ec.cancel()
}

func (ec *executionContext) isCancelled() bool {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return ec.cancelled
}

func (ec *executionContext) incActive() {
	ec.mu.Lock()
	ec.activeTasks++
	ec.mu.Unlock()
}

func (ec *executionContext) decActive() {
	ec.mu.Lock()
	ec.activeTasks--
	ec.mu.Unlock()
}

// ActiveTasks reports how many tasks the run currently has in flight.
func (ec *executionContext) active() int {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return ec.activeTasks
}

// NewEngine creates an orchestrator engine.
func NewEngine(
	stateMgr *state.Manager,
	backend ports.AgentBackend,
	bus ports.EventBus,
	metrics ports.MetricsCollector,
	logger *zap.Logger,
	opts Options,
) *Engine {
	opts.applyDefaults()
	return &Engine{
		state:     stateMgr,
		backend:   backend,
		bus:       bus,
		metrics:   metrics,
		validator: NewValidator(),
		logger:    logger,
		opts:      opts,
		contexts:  make(map[string]*executionContext),
	}
}

// State exposes the state manager for read-side consumers (API handlers).
func (e *Engine) State() *state.Manager {
	return e.state
}

// Validate checks a workflow without admitting it.
func (e *Engine) Validate(config *domain.WorkflowConfig) error {
	return e.validator.Validate(config)
}

// Execute drives a workflow to a terminal status and returns the ordered
// result list. Failures during the setup phase (validation, state
// creation, swarm init) are returned directly after state cleanup; once
// execution has started the caller always receives the results accumulated
// so far together with any propagated failure.
func (e *Engine) Execute(ctx context.Context, config *domain.WorkflowConfig) ([]domain.TaskResult, error) {
	if err := e.validator.Validate(config); err != nil {
		e.metrics.RecordWorkflowSubmitted("rejected")
		return nil, fmt.Errorf("workflow validation failed: %w", err)
	}

	if _, err := e.state.CreateWorkflowState(ctx, config); err != nil {
		e.metrics.RecordWorkflowSubmitted("rejected")
		return nil, fmt.Errorf("failed to create workflow state: %w", err)
	}

	// Topology setup happens once per run, never per task.
	if config.SwarmConfig != nil {
		if err := e.backend.InitSwarm(ctx, config.SwarmConfig); err != nil {
			e.state.RemoveWorkflow(config.ID)
			e.metrics.RecordWorkflowSubmitted("rejected")
			return nil, fmt.Errorf("swarm init failed: %w", err)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	ec := &executionContext{
		workflowID: config.ID,
		startTime:  time.Now(),
		cancel:     cancel,
		agents:     make(map[string]ports.AgentHandle),
	}

	e.mu.Lock()
	e.contexts[config.ID] = ec
	active := len(e.contexts)
	e.mu.Unlock()
	e.metrics.RecordWorkflowSubmitted("accepted")
	e.metrics.SetActiveWorkflows(active)

	defer func() {
		cancel()
		e.mu.Lock()
		delete(e.contexts, config.ID)
		remaining := len(e.contexts)
		e.mu.Unlock()
		e.metrics.SetActiveWorkflows(remaining)
	}()

	if err := e.state.UpdateWorkflowStatus(ctx, config.ID, domain.StatusInProgress, ""); err != nil {
		return nil, err
	}
	e.emitWorkflow(ctx, domain.EventWorkflowStarted, config.ID, map[string]any{
		"name":     config.Name,
		"tasks":    len(config.Tasks),
		"parallel": config.ParallelExecution,
	})
	e.logger.Info("workflow started",
		zap.String("workflow_id", config.ID),
		zap.String("name", config.Name),
		zap.Int("tasks", len(config.Tasks)),
		zap.Bool("parallel", config.ParallelExecution))

	// Periodic recovery snapshots for the duration of the run.
	stopSnapshots := make(chan struct{})
	go e.snapshotLoop(config.ID, stopSnapshots)
	defer close(stopSnapshots)

	var runErr error
	if config.ParallelExecution {
		runErr = e.runParallel(runCtx, config, ec)
	} else {
		runErr = e.runSequential(runCtx, config, ec)
	}

	return e.finalize(ctx, config, ec, runErr)
}

// finalize computes the terminal workflow status, emits the closing event
// and returns the accumulated results.
func (e *Engine) finalize(ctx context.Context, config *domain.WorkflowConfig, ec *executionContext, runErr error) ([]domain.TaskResult, error) {
	finalState, err := e.state.GetWorkflowState(config.ID)
	if err != nil {
		return nil, err
	}
	results := finalState.Results
	duration := time.Since(ec.startTime)

	// Cancellation already set the terminal status and emitted its event.
	if finalState.Status == domain.StatusCancelled {
		e.metrics.RecordWorkflowCompleted(string(domain.StatusCancelled), duration)
		return results, nil
	}

	if runErr != nil {
		if err := e.state.UpdateWorkflowStatus(ctx, config.ID, domain.StatusFailed, runErr.Error()); err != nil {
			e.logger.Error("failed to mark workflow failed",
				zap.String("workflow_id", config.ID), zap.Error(err))
		}
		e.emitWorkflow(ctx, domain.EventWorkflowFailed, config.ID, map[string]any{
			"error": runErr.Error(),
		})
		if e.opts.AutoRecovery {
			e.emitWorkflow(ctx, domain.EventWorkflowRecovery, config.ID, map[string]any{
				"reason": runErr.Error(),
			})
		}
		e.metrics.RecordWorkflowCompleted(string(domain.StatusFailed), duration)
		e.logger.Error("workflow failed",
			zap.String("workflow_id", config.ID),
			zap.Duration("duration", duration),
			zap.Error(runErr))
		if errors.Is(runErr, domain.ErrDeadlock) {
			// A starved run is a failed workflow, not a caller error: the
			// failed tasks already carry their own errors in the results.
			return results, nil
		}
		return results, runErr
	}

	success := len(results) == len(config.Tasks)
	for _, r := range results {
		if r.Status != domain.StatusCompleted {
			success = false
			break
		}
	}

	status := domain.StatusCompleted
	errorMessage := ""
	if !success {
		status = domain.StatusFailed
		errorMessage = "one or more tasks did not complete"
	}
	if err := e.state.UpdateWorkflowStatus(ctx, config.ID, status, errorMessage); err != nil {
		e.logger.Error("failed to set terminal workflow status",
			zap.String("workflow_id", config.ID), zap.Error(err))
	}
	e.emitWorkflow(ctx, domain.EventWorkflowCompleted, config.ID, map[string]any{
		"status":   status,
		"results":  len(results),
		"duration": duration.String(),
	})
	e.metrics.RecordWorkflowCompleted(string(status), duration)
	e.logger.Info("workflow finished",
		zap.String("workflow_id", config.ID),
		zap.String("status", string(status)),
		zap.Int("results", len(results)),
		zap.Duration("duration", duration))

	return results, nil
}

// runParallel is the dependency-aware parallel loop. It launches every
// ready task up to the concurrency cap without waiting on any of them
// individually, then blocks on the first completion before re-evaluating
// readiness. Throughput self-throttles to the cap while still reacting
// promptly to the earliest finish.
func (e *Engine) runParallel(ctx context.Context, config *domain.WorkflowConfig, ec *executionContext) error {
	tasksByID := make(map[string]domain.TaskConfig, len(config.Tasks))
	for _, t := range config.Tasks {
		tasksByID[t.ID] = t
	}

	completions := make(chan error, len(config.Tasks))
	inFlight := 0

	drain := func() {
		for inFlight > 0 {
			<-completions
			inFlight--
		}
	}

	for {
		if ec.isCancelled() {
			break
		}

		complete, err := e.state.IsWorkflowComplete(config.ID)
		if err != nil {
			drain()
			return err
		}
		if complete && inFlight == 0 {
			break
		}

		ready, err := e.state.GetReadyTasks(config.ID)
		if err != nil {
			drain()
			return err
		}

		// No task is ready and none is running: the run cannot make
		// progress. With cycles rejected at creation time this means some
		// remaining task has a permanently failed dependency.
		if len(ready) == 0 && inFlight == 0 {
			blocked := e.blockedTasks(config.ID)
			e.logger.Warn("workflow starved, no runnable tasks remain",
				zap.String("workflow_id", config.ID),
				zap.Strings("blocked", blocked))
			return fmt.Errorf("%w: tasks %v blocked by failed dependencies", domain.ErrDeadlock, blocked)
		}

		capacity := e.opts.MaxConcurrentTasks - inFlight
		if capacity > len(ready) {
			capacity = len(ready)
		}
		for i := 0; i < capacity; i++ {
			task := tasksByID[ready[i]]
			// Mark started synchronously so a task never appears ready
			// twice between launches.
			if err := e.markTaskStarted(ctx, config.ID, task.ID); err != nil {
				drain()
				return err
			}
			inFlight++
			go func(t domain.TaskConfig) {
				_, taskErr := e.executeTask(ctx, config, ec, t)
				completions <- taskErr
			}(task)
		}

		if inFlight > 0 {
			taskErr := <-completions
			inFlight--
			if taskErr != nil && config.FailFast {
				drain()
				return fmt.Errorf("task failed with fail-fast enabled: %w", taskErr)
			}
		}
	}

	drain()
	return nil
}

// blockedTasks lists the tasks a starved run left pending, for the
// deadlock error and log line.
func (e *Engine) blockedTasks(workflowID string) []string {
	wfState, err := e.state.GetWorkflowState(workflowID)
	if err != nil {
		return nil
	}
	blocked := make([]string, 0)
	for taskID, ts := range wfState.TaskStates {
		if ts.Status == domain.StatusPending {
			blocked = append(blocked, taskID)
		}
	}
	sort.Strings(blocked)
	return blocked
}

// runSequential orders the tasks topologically and executes them one at a
// time through the sequential executor. Each task additionally waits for
// its dependencies to complete, failing if one of them has failed.
func (e *Engine) runSequential(ctx context.Context, config *domain.WorkflowConfig, ec *executionContext) error {
	seq := sequential.NewExecutor(e.logger, config.FailFast)

	sorted, err := seq.SortByDependencies(config.Tasks)
	if err != nil {
		return err
	}

	_, err = seq.ExecuteTasks(ctx, sorted, func(ctx context.Context, task domain.TaskConfig) (*domain.TaskResult, error) {
		if ec.isCancelled() {
			return nil, fmt.Errorf("workflow %s cancelled", config.ID)
		}
		if err := e.waitForDependencies(ctx, config.ID, task); err != nil {
			return nil, err
		}
		if err := e.markTaskStarted(ctx, config.ID, task.ID); err != nil {
			return nil, err
		}
		return e.executeTask(ctx, config, ec, task)
	})
	if err != nil && !ec.isCancelled() {
		return err
	}
	return nil
}

// waitForDependencies polls until every dependency of the task completes.
// A failed or cancelled dependency aborts the wait immediately.
func (e *Engine) waitForDependencies(ctx context.Context, workflowID string, task domain.TaskConfig) error {
	for {
		satisfied := true
		for _, dep := range task.Dependencies {
			depState, err := e.state.GetTaskState(workflowID, dep)
			if err != nil {
				return err
			}
			switch depState.Status {
			case domain.StatusCompleted:
				// Satisfied.
			case domain.StatusFailed, domain.StatusCancelled:
				return fmt.Errorf("task %s dependency %s ended %s", task.ID, dep, depState.Status)
			default:
				satisfied = false
			}
		}
		if satisfied {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for dependencies of %s: %w", task.ID, ctx.Err())
		case <-time.After(e.opts.DependencyPollInterval):
		}
	}
}

// markTaskStarted transitions a task to in-progress and emits task.started.
func (e *Engine) markTaskStarted(ctx context.Context, workflowID, taskID string) error {
	now := time.Now()
	status := domain.StatusInProgress
	if err := e.state.UpdateTaskState(ctx, workflowID, taskID, domain.TaskStateUpdate{
		Status:    &status,
		StartTime: &now,
	}); err != nil {
		return err
	}
	e.emitTask(ctx, domain.EventTaskStarted, workflowID, taskID, nil)
	return nil
}

// executeTask runs one task end to end: agent resolution, retrying
// execution, state updates and result recording. The returned error is
// non-nil iff the task ultimately failed; the caller decides whether that
// unwinds the workflow (fail-fast) or not.
func (e *Engine) executeTask(ctx context.Context, config *domain.WorkflowConfig, ec *executionContext, task domain.TaskConfig) (*domain.TaskResult, error) {
	ec.incActive()
	defer ec.decActive()

	startTime := time.Now()

	agent, err := e.agentFor(ctx, ec, task)
	if err != nil {
		return e.recordTaskOutcome(ctx, config.ID, task, domain.TaskResult{
			TaskID:    task.ID,
			Status:    domain.StatusFailed,
			Error:     err.Error(),
			StartTime: startTime,
			EndTime:   time.Now(),
		}, err)
	}

	agentID := agent.ID
	if err := e.state.UpdateTaskState(ctx, config.ID, task.ID, domain.TaskStateUpdate{AgentID: &agentID}); err != nil {
		if errors.Is(err, domain.ErrTerminalState) {
			// Cancelled underneath us; nothing left to record.
			return nil, nil
		}
		return nil, err
	}

	output, attempts, execErr := e.executeWithRetry(ctx, config.ID, agent, task)

	endTime := time.Now()
	result := domain.TaskResult{
		TaskID:     task.ID,
		StartTime:  startTime,
		EndTime:    endTime,
		Duration:   endTime.Sub(startTime),
		AgentID:    agent.ID,
		RetryCount: attempts,
	}
	if execErr != nil {
		result.Status = domain.StatusFailed
		result.Error = execErr.Error()
	} else {
		result.Status = domain.StatusCompleted
		result.Output = output
	}

	return e.recordTaskOutcome(ctx, config.ID, task, result, execErr)
}

// recordTaskOutcome persists the terminal task state and result and emits
// the matching task event. When the task was cancelled mid-flight the
// outcome is absorbed silently: cancellation owns the terminal state.
func (e *Engine) recordTaskOutcome(ctx context.Context, workflowID string, task domain.TaskConfig, result domain.TaskResult, execErr error) (*domain.TaskResult, error) {
	status := result.Status
	retries := result.RetryCount
	if err := e.state.UpdateTaskState(ctx, workflowID, task.ID, domain.TaskStateUpdate{
		Status:     &status,
		RetryCount: &retries,
		EndTime:    &result.EndTime,
	}); err != nil {
		if errors.Is(err, domain.ErrTerminalState) {
			e.logger.Debug("task finished after cancellation, outcome dropped",
				zap.String("workflow_id", workflowID),
				zap.String("task_id", task.ID))
			return nil, nil
		}
		return nil, err
	}

	if err := e.state.AddTaskResult(ctx, workflowID, result); err != nil {
		return nil, err
	}
	e.metrics.RecordTaskExecuted(task.AgentType, string(status), result.Duration)

	if execErr != nil {
		e.emitTask(ctx, domain.EventTaskFailed, workflowID, task.ID, map[string]any{
			"error":       result.Error,
			"retry_count": result.RetryCount,
		})
		e.logger.Warn("task failed",
			zap.String("workflow_id", workflowID),
			zap.String("task_id", task.ID),
			zap.Int("retries", result.RetryCount),
			zap.Error(execErr))
		return &result, fmt.Errorf("task %s failed: %w", task.ID, execErr)
	}

	e.emitTask(ctx, domain.EventTaskCompleted, workflowID, task.ID, map[string]any{
		"duration":    result.Duration.String(),
		"retry_count": result.RetryCount,
	})
	e.logger.Info("task completed",
		zap.String("workflow_id", workflowID),
		zap.String("task_id", task.ID),
		zap.String("agent_id", result.AgentID),
		zap.Duration("duration", result.Duration))
	return &result, nil
}

// agentFor returns the cached agent for the task's type, spawning one on
// first use. One agent per distinct type per run; concurrent tasks of the
// same type share the handle, which the backend contract permits.
func (e *Engine) agentFor(ctx context.Context, ec *executionContext, task domain.TaskConfig) (ports.AgentHandle, error) {
	ec.mu.Lock()
	defer ec.mu.Unlock()

	if handle, ok := ec.agents[task.AgentType]; ok {
		return handle, nil
	}

	handle, err := e.backend.Spawn(ctx, ports.SpawnRequest{
		AgentType:      task.AgentType,
		MaxConcurrency: e.opts.MaxConcurrentTasks,
		Timeout:        e.opts.DefaultTaskTimeout,
	})
	if err != nil {
		return ports.AgentHandle{}, fmt.Errorf("failed to spawn %s agent: %w", task.AgentType, err)
	}
	ec.agents[task.AgentType] = handle

	e.emitTask(ctx, domain.EventAgentSpawned, ec.workflowID, task.ID, map[string]any{
		"agent_id":   handle.ID,
		"agent_type": task.AgentType,
	})
	e.metrics.RecordAgentSpawned(task.AgentType)
	e.logger.Info("agent spawned",
		zap.String("workflow_id", ec.workflowID),
		zap.String("agent_id", handle.ID),
		zap.String("agent_type", task.AgentType))

	return handle, nil
}

// executeWithRetry attempts the task up to its retry budget with a flat
// delay between attempts. It returns the output of the first successful
// attempt together with the number of retries consumed, or the last error
// once the budget is exhausted.
func (e *Engine) executeWithRetry(ctx context.Context, workflowID string, agent ports.AgentHandle, task domain.TaskConfig) (any, int, error) {
	budget := task.RetryBudget()

	var lastErr error
	for attempt := 0; attempt <= budget; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, attempt, fmt.Errorf("task %s aborted: %w", task.ID, err)
		}

		output, err := e.invokeAgent(ctx, agent, task)
		if err == nil {
			return output, attempt, nil
		}
		lastErr = err

		if attempt < budget {
			e.emitTask(ctx, domain.EventTaskRetry, workflowID, task.ID, map[string]any{
				"attempt": attempt + 1,
				"max":     budget,
				"error":   err.Error(),
			})
			e.metrics.RecordTaskRetry(task.AgentType)
			e.logger.Warn("task attempt failed, retrying",
				zap.String("workflow_id", workflowID),
				zap.String("task_id", task.ID),
				zap.Int("attempt", attempt+1),
				zap.Int("max", budget),
				zap.Error(err))

			select {
			case <-ctx.Done():
				return nil, attempt + 1, fmt.Errorf("task %s aborted during retry backoff: %w", task.ID, ctx.Err())
			case <-time.After(e.opts.RetryDelay):
			}
		}
	}
	return nil, budget, lastErr
}

// invokeAgent performs one execution attempt, racing the backend call
// against the task's timeout. The attempt context carries the deadline so
// a well-behaved backend can stop early; the timer guarantees the engine
// stops waiting either way.
func (e *Engine) invokeAgent(ctx context.Context, agent ports.AgentHandle, task domain.TaskConfig) (any, error) {
	timeout := task.Timeout
	if timeout <= 0 {
		timeout = e.opts.DefaultTaskTimeout
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type attempt struct {
		output any
		err    error
	}
	done := make(chan attempt, 1)
	go func() {
		output, err := e.backend.Execute(attemptCtx, agent, task)
		done <- attempt{output: output, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil, fmt.Errorf("task %s timed out after %s", task.ID, timeout)
	case a := <-done:
		return a.output, a.err
	}
}

// snapshotLoop takes a recovery snapshot at every interval until stopped.
func (e *Engine) snapshotLoop(workflowID string, stop <-chan struct{}) {
	ticker := time.NewTicker(e.opts.SnapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := e.state.CreateSnapshot(workflowID); err != nil {
				e.logger.Error("periodic snapshot failed",
					zap.String("workflow_id", workflowID),
					zap.Error(err))
			}
		}
	}
}

// CancelWorkflow transitions every pending or in-progress task to
// cancelled, sets the workflow terminal and drops the execution context.
// Cancellation is cooperative: a task already executing inside the backend
// is not preempted, its outcome is simply discarded.
func (e *Engine) CancelWorkflow(ctx context.Context, workflowID string) error {
	wfState, err := e.state.GetWorkflowState(workflowID)
	if err != nil {
		return err
	}
	if wfState.Status.Terminal() {
		return fmt.Errorf("workflow %s already in terminal state %s", workflowID, wfState.Status)
	}

	e.mu.Lock()
	ec := e.contexts[workflowID]
	delete(e.contexts, workflowID)
	e.mu.Unlock()
	if ec != nil {
		ec.markCancelled()
	}

	cancelled := domain.StatusCancelled
	for taskID, ts := range wfState.TaskStates {
		if ts.Status != domain.StatusPending && ts.Status != domain.StatusInProgress {
			continue
		}
		now := time.Now()
		if err := e.state.UpdateTaskState(ctx, workflowID, taskID, domain.TaskStateUpdate{
			Status:  &cancelled,
			EndTime: &now,
		}); err != nil && !errors.Is(err, domain.ErrTerminalState) {
			e.logger.Error("failed to cancel task",
				zap.String("workflow_id", workflowID),
				zap.String("task_id", taskID),
				zap.Error(err))
		}
	}

	if err := e.state.UpdateWorkflowStatus(ctx, workflowID, domain.StatusCancelled, "cancelled by caller"); err != nil {
		return err
	}
	e.emitWorkflow(ctx, domain.EventWorkflowCancelled, workflowID, nil)
	e.logger.Info("workflow cancelled", zap.String("workflow_id", workflowID))

	return nil
}

// Shutdown cancels every active run's context. In-flight backend calls are
// abandoned; state stays queryable until the process exits.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.logger.Info("shutting down orchestrator engine")

	e.mu.Lock()
	for _, ec := range e.contexts {
		ec.markCancelled()
	}
	e.mu.Unlock()

	e.logger.Info("orchestrator engine shut down complete")
	return nil
}

func (e *Engine) emitWorkflow(ctx context.Context, eventType domain.EventType, workflowID string, data map[string]any) {
	e.publish(ctx, domain.TopicWorkflowEvents, domain.Event{
		ID:         uuid.New().String(),
		Type:       eventType,
		WorkflowID: workflowID,
		Timestamp:  time.Now(),
		Data:       data,
	})
}

func (e *Engine) emitTask(ctx context.Context, eventType domain.EventType, workflowID, taskID string, data map[string]any) {
	e.publish(ctx, domain.TopicTaskEvents, domain.Event{
		ID:         uuid.New().String(),
		Type:       eventType,
		WorkflowID: workflowID,
		TaskID:     taskID,
		Timestamp:  time.Now(),
		Data:       data,
	})
}

func (e *Engine) publish(ctx context.Context, topic string, event domain.Event) {
	if e.bus == nil {
		return
	}
	if err := e.bus.Publish(ctx, topic, event); err != nil {
		e.logger.Error("failed to publish event",
			zap.String("event_type", string(event.Type)),
			zap.String("workflow_id", event.WorkflowID),
			zap.Error(err))
	}
}
