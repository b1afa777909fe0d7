package agent

import (
	"fmt"

	"github.com/epenate/orq/internal/ports"
	"github.com/epenate/orq/pkg/adapters/agent/anthropic"
	"github.com/epenate/orq/pkg/adapters/agent/local"
	"go.uber.org/zap"
)

// Config selects and configures an agent backend.
type Config struct {
	Backend string // "anthropic" or "local"
	APIKey  string
	Model   string
	Logger  *zap.Logger
}

// NewBackend creates an agent backend from configuration.
func NewBackend(cfg *Config) (ports.AgentBackend, error) {
	switch cfg.Backend {
	case "anthropic":
		return anthropic.NewBackend(cfg.APIKey, cfg.Model, cfg.Logger)
	case "local":
		return local.NewBackend(cfg.Logger), nil
	default:
		return nil, fmt.Errorf("unsupported agent backend: %s", cfg.Backend)
	}
}
