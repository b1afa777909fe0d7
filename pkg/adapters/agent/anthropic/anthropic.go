// Package anthropic executes workflow tasks as Claude messages. Each task
// becomes one messages call: the agent type shapes the system prompt, the
// task description and input form the user message.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/epenate/orq/internal/domain"
	"github.com/epenate/orq/internal/ports"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultModel     = "claude-sonnet-4-20250514"
	defaultMaxTokens = 4096
)

// Backend implements ports.AgentBackend on the Anthropic API.
type Backend struct {
	client anthropic.Client
	model  string
	logger *zap.Logger

	mu       sync.RWMutex
	agents   map[string]ports.AgentHandle
	topology string
}

// NewBackend creates an Anthropic agent backend.
func NewBackend(apiKey, model string, logger *zap.Logger) (*Backend, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}
	if model == "" {
		model = defaultModel
	}
	return &Backend{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
		logger: logger,
		agents: make(map[string]ports.AgentHandle),
	}, nil
}

// Spawn registers a logical agent. The Anthropic API is stateless, so a
// spawn only mints a handle; no remote resource is held.
func (b *Backend) Spawn(ctx context.Context, req ports.SpawnRequest) (ports.AgentHandle, error) {
	handle := ports.AgentHandle{
		ID:        uuid.New().String(),
		AgentType: req.AgentType,
	}

	b.mu.Lock()
	b.agents[handle.ID] = handle
	b.mu.Unlock()

	b.logger.Debug("anthropic agent registered",
		zap.String("agent_id", handle.ID),
		zap.String("agent_type", req.AgentType))

	return handle, nil
}

// Execute sends the task to the model and returns the text of the reply.
func (b *Backend) Execute(ctx context.Context, agent ports.AgentHandle, task domain.TaskConfig) (any, error) {
	b.mu.RLock()
	_, known := b.agents[agent.ID]
	topology := b.topology
	b.mu.RUnlock()
	if !known {
		return nil, fmt.Errorf("unknown agent: %s", agent.ID)
	}

	prompt, err := buildPrompt(task)
	if err != nil {
		return nil, err
	}

	message, err := b.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(b.model),
		MaxTokens: defaultMaxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt(agent.AgentType, topology)},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic call failed: %w", err)
	}

	var output strings.Builder
	for _, block := range message.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			output.WriteString(text.Text)
		}
	}

	b.logger.Debug("anthropic task executed",
		zap.String("task_id", task.ID),
		zap.String("agent_id", agent.ID),
		zap.Int64("input_tokens", message.Usage.InputTokens),
		zap.Int64("output_tokens", message.Usage.OutputTokens))

	return output.String(), nil
}

// InitSwarm records the topology; it flows into every system prompt so the
// model knows its coordination mode.
func (b *Backend) InitSwarm(ctx context.Context, cfg *domain.SwarmConfig) error {
	if cfg == nil {
		return nil
	}
	b.mu.Lock()
	b.topology = cfg.Topology
	b.mu.Unlock()

	b.logger.Info("swarm initialized",
		zap.String("topology", cfg.Topology),
		zap.Int("max_agents", cfg.MaxAgents))
	return nil
}

// Health reports whether the handle is known. The stateless API has no
// per-agent liveness beyond that.
func (b *Backend) Health(ctx context.Context, agent ports.AgentHandle) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if _, ok := b.agents[agent.ID]; !ok {
		return fmt.Errorf("unknown agent: %s", agent.ID)
	}
	return nil
}

func buildPrompt(task domain.TaskConfig) (string, error) {
	var sb strings.Builder
	sb.WriteString(task.Description)

	if task.Input != nil {
		data, err := json.MarshalIndent(task.Input, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to marshal task input: %w", err)
		}
		sb.WriteString("\n\nInput:\n")
		sb.Write(data)
	}
	return sb.String(), nil
}

func systemPrompt(agentType, topology string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are a %s agent executing one task of a workflow. ", agentType)
	sb.WriteString("Complete the task described by the user and reply with the result only.")
	if topology != "" {
		fmt.Fprintf(&sb, " You are part of a %s swarm of cooperating agents.", topology)
	}
	return sb.String()
}
