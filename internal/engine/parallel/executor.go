package parallel

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/epenate/orq/internal/domain"
	"github.com/epenate/orq/internal/ports"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LoadBalancing selects how an idle slot is chosen for the next task.
type LoadBalancing string

const (
	// RoundRobin takes the first idle slot in index order.
	RoundRobin LoadBalancing = "round_robin"
	// LeastLoaded takes the idle slot with the fewest completed tasks.
	LeastLoaded LoadBalancing = "least_loaded"
	// Random takes a uniformly random idle slot.
	Random LoadBalancing = "random"
)

// DefaultTimeout bounds a task attempt when neither the task nor the
// executor configures one.
const DefaultTimeout = 5 * time.Minute

// pollInterval is how long the control loop sleeps when every slot is
// busy. Tunable; each wait adds up to one interval of dispatch latency.
const pollInterval = 100 * time.Millisecond

// Config parameterizes an Executor.
type Config struct {
	// MaxConcurrency fixes the number of execution slots.
	MaxConcurrency int

	// Timeout is the default per-task deadline. A task's own Timeout, when
	// set, overrides it.
	Timeout time.Duration

	// RetryAttempts is accepted for configuration compatibility but not
	// consumed here: the executor records a failure once and moves on.
	// Retrying is the caller's responsibility.
	RetryAttempts int

	LoadBalancing LoadBalancing
}

// TaskFunc executes a single task and returns its output.
type TaskFunc func(ctx context.Context, task domain.TaskConfig) (any, error)

// slot is one fixed execution unit.
type slot struct {
	index          int
	busy           bool
	currentTask    string
	tasksCompleted int
}

// SlotStats is a point-in-time view of one slot.
type SlotStats struct {
	Index          int    `json:"index"`
	Busy           bool   `json:"busy"`
	CurrentTask    string `json:"current_task,omitempty"`
	TasksCompleted int    `json:"tasks_completed"`
}

// Statistics exposes slot occupancy and queue depth for capacity planning
// by the caller. The executor itself never reads it.
type Statistics struct {
	Slots      []SlotStats `json:"slots"`
	QueueDepth int         `json:"queue_depth"`
	BusySlots  int         `json:"busy_slots"`
	IdleSlots  int         `json:"idle_slots"`
	TotalDone  int         `json:"total_done"`
}

// Executor runs arbitrary task batches under a fixed concurrency cap.
type Executor struct {
	cfg     Config
	bus     ports.EventBus
	metrics ports.MetricsCollector
	logger  *zap.Logger

	mu    sync.Mutex
	slots []*slot
	queue []domain.TaskConfig
	rng   *rand.Rand
}

// NewExecutor creates an executor with MaxConcurrency fixed slots.
func NewExecutor(cfg Config, bus ports.EventBus, metrics ports.MetricsCollector, logger *zap.Logger) (*Executor, error) {
	if cfg.MaxConcurrency < 1 {
		return nil, fmt.Errorf("max concurrency must be at least 1")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.LoadBalancing == "" {
		cfg.LoadBalancing = RoundRobin
	}

	slots := make([]*slot, cfg.MaxConcurrency)
	for i := range slots {
		slots[i] = &slot{index: i}
	}

	return &Executor{
		cfg:     cfg,
		bus:     bus,
		metrics: metrics,
		logger:  logger,
		slots:   slots,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

type slotOutcome struct {
	slotIndex int
	result    domain.TaskResult
}

// ExecuteTasks pushes the batch onto the FIFO queue and drives it to
// completion. The control loop dispatches the head of the queue to an idle
// slot without blocking on the task itself; when no slot is idle it waits
// for a completion or one poll interval, whichever comes first. Results
// are returned in completion order.
func (e *Executor) ExecuteTasks(ctx context.Context, tasks []domain.TaskConfig, fn TaskFunc) ([]domain.TaskResult, error) {
	if fn == nil {
		return nil, fmt.Errorf("task function is nil")
	}

	e.mu.Lock()
	e.queue = append(e.queue, tasks...)
	e.mu.Unlock()

	outcomes := make(chan slotOutcome, len(tasks))
	results := make([]domain.TaskResult, 0, len(tasks))
	inFlight := 0

	for {
		// Dispatch while an idle slot and queued work both exist.
		for {
			e.mu.Lock()
			if len(e.queue) == 0 {
				e.mu.Unlock()
				break
			}
			s := e.pickIdleSlot()
			if s == nil {
				e.mu.Unlock()
				break
			}
			task := e.queue[0]
			e.queue = e.queue[1:]
			s.busy = true
			s.currentTask = task.ID
			depth := len(e.queue)
			e.mu.Unlock()

			inFlight++
			e.emit(ctx, domain.EventSlotAssigned, task.ID, map[string]any{"slot": s.index})
			if e.metrics != nil {
				e.metrics.SetQueueDepth(depth)
			}

			go e.executeInSlot(ctx, s.index, task, fn, outcomes)
		}

		e.mu.Lock()
		queued := len(e.queue)
		e.mu.Unlock()
		if queued == 0 && inFlight == 0 {
			break
		}

		select {
		case <-ctx.Done():
			// Let in-flight tasks drain so slots are released cleanly.
			for inFlight > 0 {
				out := <-outcomes
				e.releaseSlot(ctx, out)
				results = append(results, out.result)
				inFlight--
			}
			return results, fmt.Errorf("batch execution cancelled: %w", ctx.Err())
		case out := <-outcomes:
			e.releaseSlot(ctx, out)
			results = append(results, out.result)
			inFlight--
		case <-time.After(pollInterval):
			// All slots busy, nothing finished yet. Poll again.
		}
	}

	return results, nil
}

// executeInSlot races the task function against its timeout. A firing
// timeout stops the wait but does not tear down the underlying call beyond
// cancelling its context; the result records the failure either way.
func (e *Executor) executeInSlot(ctx context.Context, slotIndex int, task domain.TaskConfig, fn TaskFunc, outcomes chan<- slotOutcome) {
	timeout := e.cfg.Timeout
	if task.Timeout > 0 {
		timeout = task.Timeout
	}

	start := time.Now()
	result := domain.TaskResult{
		TaskID:    task.ID,
		StartTime: start,
	}

	attemptCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type attempt struct {
		output any
		err    error
	}
	done := make(chan attempt, 1)
	go func() {
		output, err := fn(attemptCtx, task)
		done <- attempt{output: output, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-timer.C:
		result.Status = domain.StatusFailed
		result.Error = fmt.Sprintf("task %s timed out after %s", task.ID, timeout)
	case a := <-done:
		if a.err != nil {
			result.Status = domain.StatusFailed
			result.Error = a.err.Error()
		} else {
			result.Status = domain.StatusCompleted
			result.Output = a.output
		}
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(start)

	outcomes <- slotOutcome{slotIndex: slotIndex, result: result}
}

// releaseSlot frees the slot, bumps its completion counter and emits the
// lifecycle events for the finished task.
func (e *Executor) releaseSlot(ctx context.Context, out slotOutcome) {
	e.mu.Lock()
	s := e.slots[out.slotIndex]
	s.busy = false
	s.currentTask = ""
	s.tasksCompleted++
	busy, idle := e.occupancyLocked()
	e.mu.Unlock()

	e.emit(ctx, domain.EventSlotReleased, out.result.TaskID, map[string]any{"slot": out.slotIndex})
	if out.result.Status == domain.StatusCompleted {
		e.emit(ctx, domain.EventTaskCompleted, out.result.TaskID, map[string]any{
			"duration": out.result.Duration.String(),
		})
	} else {
		e.emit(ctx, domain.EventTaskFailed, out.result.TaskID, map[string]any{
			"error": out.result.Error,
		})
		e.logger.Warn("task failed in slot",
			zap.String("task_id", out.result.TaskID),
			zap.Int("slot", out.slotIndex),
			zap.String("error", out.result.Error))
	}
	if e.metrics != nil {
		e.metrics.RecordSlotOccupancy(busy, idle)
	}
}

// pickIdleSlot selects an idle slot under the configured policy. Caller
// holds e.mu. Returns nil when every slot is busy.
func (e *Executor) pickIdleSlot() *slot {
	idle := make([]*slot, 0, len(e.slots))
	for _, s := range e.slots {
		if !s.busy {
			idle = append(idle, s)
		}
	}
	if len(idle) == 0 {
		return nil
	}

	switch e.cfg.LoadBalancing {
	case LeastLoaded:
		best := idle[0]
		for _, s := range idle[1:] {
			if s.tasksCompleted < best.tasksCompleted {
				best = s
			}
		}
		return best
	case Random:
		return idle[e.rng.Intn(len(idle))]
	default:
		return idle[0]
	}
}

// Statistics returns a point-in-time view of slots and queue depth.
func (e *Executor) Statistics() Statistics {
	e.mu.Lock()
	defer e.mu.Unlock()

	stats := Statistics{
		Slots:      make([]SlotStats, 0, len(e.slots)),
		QueueDepth: len(e.queue),
	}
	for _, s := range e.slots {
		stats.Slots = append(stats.Slots, SlotStats{
			Index:          s.index,
			Busy:           s.busy,
			CurrentTask:    s.currentTask,
			TasksCompleted: s.tasksCompleted,
		})
		if s.busy {
			stats.BusySlots++
		} else {
			stats.IdleSlots++
		}
		stats.TotalDone += s.tasksCompleted
	}
	return stats
}

func (e *Executor) occupancyLocked() (busy, idle int) {
	for _, s := range e.slots {
		if s.busy {
			busy++
		} else {
			idle++
		}
	}
	return busy, idle
}

func (e *Executor) emit(ctx context.Context, eventType domain.EventType, taskID string, data map[string]any) {
	if e.bus == nil {
		return
	}
	event := domain.Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		TaskID:    taskID,
		Timestamp: time.Now(),
		Data:      data,
	}
	if err := e.bus.Publish(ctx, domain.TopicExecutorEvents, event); err != nil {
		e.logger.Error("failed to publish executor event",
			zap.String("event_type", string(eventType)),
			zap.Error(err))
	}
}
