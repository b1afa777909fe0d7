package ports

import (
	"context"
	"time"

	"github.com/epenate/orq/internal/domain"
)

// AgentHandle addresses one spawned backend agent.
type AgentHandle struct {
	ID        string `json:"id"`
	AgentType string `json:"agent_type"`
}

// SpawnRequest carries the hints the backend needs to bring up an agent.
type SpawnRequest struct {
	AgentType      string
	MaxConcurrency int
	Timeout        time.Duration
}

// AgentBackend is the remote execution service that performs task work.
//
// The engine spawns at most one agent per distinct agent type per workflow
// run and reuses the handle for every task of that type, including tasks
// dispatched concurrently. Implementations must therefore tolerate
// concurrent Execute calls on one handle.
type AgentBackend interface {
	// Spawn acquires an agent capable of the given type.
	Spawn(ctx context.Context, req SpawnRequest) (AgentHandle, error)

	// Execute performs one task on an agent and returns its output. It is
	// the only backend call subject to the engine's retry and timeout
	// logic.
	Execute(ctx context.Context, agent AgentHandle, task domain.TaskConfig) (any, error)

	// InitSwarm performs opaque topology setup, at most once per workflow
	// run, before any task executes.
	InitSwarm(ctx context.Context, cfg *domain.SwarmConfig) error

	// Health reports whether an agent is still able to take work.
	Health(ctx context.Context, agent AgentHandle) error
}
