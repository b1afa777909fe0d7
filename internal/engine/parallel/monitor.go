package parallel

import (
	"sync"
	"time"

	"github.com/epenate/orq/internal/ports"
	"go.uber.org/zap"
)

// Monitor periodically samples executor statistics, logs them and feeds the
// metrics collector. It exists for operators; the executor itself never
// consults it.
type Monitor struct {
	executor *Executor
	metrics  ports.MetricsCollector
	interval time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

// NewMonitor creates a monitor for an executor.
func NewMonitor(executor *Executor, metrics ports.MetricsCollector, interval time.Duration, logger *zap.Logger) *Monitor {
	return &Monitor{
		executor: executor,
		metrics:  metrics,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start begins periodic sampling. Calling Start on a running monitor is a
// no-op.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.mu.Unlock()

	go m.run()
}

// Stop halts sampling.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.mu.Unlock()

	close(m.stopCh)
}

func (m *Monitor) run() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.sample()
		}
	}
}

func (m *Monitor) sample() {
	stats := m.executor.Statistics()

	m.logger.Info("executor occupancy",
		zap.Int("busy", stats.BusySlots),
		zap.Int("idle", stats.IdleSlots),
		zap.Int("queue_depth", stats.QueueDepth),
		zap.Int("total_done", stats.TotalDone))

	if m.metrics != nil {
		m.metrics.RecordSlotOccupancy(stats.BusySlots, stats.IdleSlots)
		m.metrics.SetQueueDepth(stats.QueueDepth)
	}

	if stats.IdleSlots == 0 && stats.BusySlots > 0 {
		m.logger.Warn("all slots busy, batch throughput is capped",
			zap.Int("slots", stats.BusySlots))
	}
}
