// Package local implements the agent backend as an in-process registry of
// handler functions, one per agent type. The engine's tests run on it, and
// embedders use it to execute workflows without any external service.
package local

import (
	"context"
	"fmt"
	"sync"

	"github.com/epenate/orq/internal/domain"
	"github.com/epenate/orq/internal/ports"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Handler executes one task. Handlers must be safe for concurrent calls.
type Handler func(ctx context.Context, task domain.TaskConfig) (any, error)

// Backend implements ports.AgentBackend over registered handlers.
type Backend struct {
	logger *zap.Logger

	mu       sync.RWMutex
	handlers map[string]Handler
	agents   map[string]ports.AgentHandle
	swarm    *domain.SwarmConfig
}

// NewBackend creates an empty local backend.
func NewBackend(logger *zap.Logger) *Backend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Backend{
		logger:   logger,
		handlers: make(map[string]Handler),
		agents:   make(map[string]ports.AgentHandle),
	}
}

// Register binds a handler to an agent type, replacing any previous one.
func (b *Backend) Register(agentType string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[agentType] = handler
}

// Spawn mints a handle for the agent type. Spawning fails if no handler is
// registered, surfacing configuration mistakes at the first task instead
// of mid-workflow.
func (b *Backend) Spawn(ctx context.Context, req ports.SpawnRequest) (ports.AgentHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.handlers[req.AgentType]; !ok {
		return ports.AgentHandle{}, fmt.Errorf("no handler registered for agent type %s", req.AgentType)
	}

	handle := ports.AgentHandle{
		ID:        uuid.New().String(),
		AgentType: req.AgentType,
	}
	b.agents[handle.ID] = handle
	return handle, nil
}

// Execute dispatches the task to the handler of the agent's type.
func (b *Backend) Execute(ctx context.Context, agent ports.AgentHandle, task domain.TaskConfig) (any, error) {
	b.mu.RLock()
	_, known := b.agents[agent.ID]
	handler := b.handlers[agent.AgentType]
	b.mu.RUnlock()

	if !known {
		return nil, fmt.Errorf("unknown agent: %s", agent.ID)
	}
	if handler == nil {
		return nil, fmt.Errorf("no handler registered for agent type %s", agent.AgentType)
	}
	return handler(ctx, task)
}

// InitSwarm records the swarm config for inspection.
func (b *Backend) InitSwarm(ctx context.Context, cfg *domain.SwarmConfig) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.swarm = cfg
	return nil
}

// Swarm returns the config recorded by InitSwarm, or nil.
func (b *Backend) Swarm() *domain.SwarmConfig {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.swarm
}

// Health reports whether the handle was spawned by this backend.
func (b *Backend) Health(ctx context.Context, agent ports.AgentHandle) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if _, ok := b.agents[agent.ID]; !ok {
		return fmt.Errorf("unknown agent: %s", agent.ID)
	}
	return nil
}
