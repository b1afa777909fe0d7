package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all configuration for the orchestrator service.
type Config struct {
	// Server configuration
	HTTPPort int    `env:"ORQ_HTTP_PORT" envDefault:"8080"`
	GRPCPort int    `env:"ORQ_GRPC_PORT" envDefault:"9090"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Redis configuration
	Redis RedisConfig

	// Agent backend configuration
	Agent AgentConfig

	// Engine configuration
	Engine EngineConfig

	// Timeouts
	Timeouts TimeoutConfig
}

// RedisConfig holds Redis connection configuration. Redis backs the event
// bus and the state store; an empty address selects the in-memory
// adapters.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASS"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`

	// Connection pool settings
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	MaxRetries   int           `env:"REDIS_MAX_RETRIES" envDefault:"3"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`

	// State persistence
	StateTTL time.Duration `env:"REDIS_STATE_TTL" envDefault:"168h"`

	// Event bus consumer identity
	ConsumerGroup string `env:"REDIS_CONSUMER_GROUP" envDefault:"orq"`
	ConsumerName  string `env:"REDIS_CONSUMER_NAME" envDefault:"orq-1"`
}

// AgentConfig holds agent backend configuration.
type AgentConfig struct {
	Backend string `env:"AGENT_BACKEND" envDefault:"anthropic"`
	APIKey  string `env:"AGENT_API_KEY"`
	Model   string `env:"AGENT_MODEL" envDefault:"claude-sonnet-4-20250514"`
}

// EngineConfig holds workflow engine tuning.
type EngineConfig struct {
	MaxConcurrentTasks int           `env:"ENGINE_MAX_CONCURRENT_TASKS" envDefault:"5"`
	RetryDelay         time.Duration `env:"ENGINE_RETRY_DELAY" envDefault:"2s"`
	SnapshotInterval   time.Duration `env:"ENGINE_SNAPSHOT_INTERVAL" envDefault:"30s"`
	SnapshotLimit      int           `env:"ENGINE_SNAPSHOT_LIMIT" envDefault:"10"`
	AutoRecovery       bool          `env:"ENGINE_AUTO_RECOVERY" envDefault:"false"`

	// Batch endpoint slot executor
	BatchSlots   int           `env:"ENGINE_BATCH_SLOTS" envDefault:"5"`
	BatchTimeout time.Duration `env:"ENGINE_BATCH_TIMEOUT" envDefault:"300s"`
}

// TimeoutConfig holds various timeout configurations.
type TimeoutConfig struct {
	TaskExecutionTimeout time.Duration `env:"TIMEOUT_TASK_EXECUTION" envDefault:"300s"`
	ShutdownTimeout      time.Duration `env:"TIMEOUT_SHUTDOWN" envDefault:"30s"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.GRPCPort < 1 || c.GRPCPort > 65535 {
		return fmt.Errorf("invalid gRPC port: %d", c.GRPCPort)
	}

	switch c.Agent.Backend {
	case "anthropic":
		if c.Agent.APIKey == "" {
			return fmt.Errorf("agent API key is required for the anthropic backend")
		}
	case "local":
	default:
		return fmt.Errorf("unsupported agent backend: %s (must be 'anthropic' or 'local')", c.Agent.Backend)
	}

	if c.Engine.MaxConcurrentTasks < 1 {
		return fmt.Errorf("max concurrent tasks must be at least 1")
	}
	if c.Engine.BatchSlots < 1 {
		return fmt.Errorf("batch slots must be at least 1")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	return nil
}

// GetHTTPAddr returns the HTTP server address.
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// GetGRPCAddr returns the gRPC server address.
func (c *Config) GetGRPCAddr() string {
	return fmt.Sprintf(":%d", c.GRPCPort)
}
