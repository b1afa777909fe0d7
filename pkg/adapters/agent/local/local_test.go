package local

import (
	"context"
	"fmt"
	"testing"

	"github.com/epenate/orq/internal/domain"
	"github.com/epenate/orq/internal/ports"
)

func TestSpawnAndExecute(t *testing.T) {
	backend := NewBackend(nil)
	backend.Register("echo", func(ctx context.Context, task domain.TaskConfig) (any, error) {
		return "ran-" + task.ID, nil
	})

	agent, err := backend.Spawn(context.Background(), ports.SpawnRequest{AgentType: "echo"})
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}
	if agent.ID == "" || agent.AgentType != "echo" {
		t.Fatalf("handle = %+v", agent)
	}

	out, err := backend.Execute(context.Background(), agent, domain.TaskConfig{ID: "t1", AgentType: "echo"})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if out != "ran-t1" {
		t.Fatalf("output = %v", out)
	}
}

func TestSpawnUnregisteredType(t *testing.T) {
	backend := NewBackend(nil)
	if _, err := backend.Spawn(context.Background(), ports.SpawnRequest{AgentType: "ghost"}); err == nil {
		t.Fatal("expected spawn to fail for unregistered type")
	}
}

func TestExecuteUnknownAgent(t *testing.T) {
	backend := NewBackend(nil)
	backend.Register("echo", func(ctx context.Context, task domain.TaskConfig) (any, error) {
		return nil, nil
	})

	forged := ports.AgentHandle{ID: "not-spawned-here", AgentType: "echo"}
	if _, err := backend.Execute(context.Background(), forged, domain.TaskConfig{ID: "t1"}); err == nil {
		t.Fatal("expected error for handle not spawned by this backend")
	}
}

func TestExecutePropagatesHandlerError(t *testing.T) {
	backend := NewBackend(nil)
	wantErr := fmt.Errorf("handler exploded")
	backend.Register("bomb", func(ctx context.Context, task domain.TaskConfig) (any, error) {
		return nil, wantErr
	})

	agent, _ := backend.Spawn(context.Background(), ports.SpawnRequest{AgentType: "bomb"})
	if _, err := backend.Execute(context.Background(), agent, domain.TaskConfig{ID: "t1"}); err != wantErr {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
}

func TestRegisterReplacesHandler(t *testing.T) {
	backend := NewBackend(nil)
	backend.Register("echo", func(ctx context.Context, task domain.TaskConfig) (any, error) {
		return "old", nil
	})
	backend.Register("echo", func(ctx context.Context, task domain.TaskConfig) (any, error) {
		return "new", nil
	})

	agent, _ := backend.Spawn(context.Background(), ports.SpawnRequest{AgentType: "echo"})
	out, err := backend.Execute(context.Background(), agent, domain.TaskConfig{ID: "t1"})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if out != "new" {
		t.Fatalf("output = %v, want new", out)
	}
}

func TestInitSwarmRecorded(t *testing.T) {
	backend := NewBackend(nil)
	cfg := &domain.SwarmConfig{Topology: "mesh", MaxAgents: 4}
	if err := backend.InitSwarm(context.Background(), cfg); err != nil {
		t.Fatalf("InitSwarm failed: %v", err)
	}
	if got := backend.Swarm(); got != cfg {
		t.Fatalf("Swarm() = %+v", got)
	}
}

func TestHealth(t *testing.T) {
	backend := NewBackend(nil)
	backend.Register("echo", func(ctx context.Context, task domain.TaskConfig) (any, error) {
		return nil, nil
	})

	agent, _ := backend.Spawn(context.Background(), ports.SpawnRequest{AgentType: "echo"})
	if err := backend.Health(context.Background(), agent); err != nil {
		t.Errorf("Health on spawned agent failed: %v", err)
	}
	if err := backend.Health(context.Background(), ports.AgentHandle{ID: "ghost"}); err == nil {
		t.Error("expected Health to fail for unknown handle")
	}
}
