package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/epenate/orq/internal/config"
	"github.com/epenate/orq/internal/engine/orchestrator"
	"github.com/epenate/orq/internal/engine/parallel"
	"github.com/epenate/orq/internal/engine/state"
	"github.com/epenate/orq/internal/ports"
	"github.com/epenate/orq/pkg/adapters/agent"
	eventsmemory "github.com/epenate/orq/pkg/adapters/events/memory"
	eventsredis "github.com/epenate/orq/pkg/adapters/events/redis"
	"github.com/epenate/orq/pkg/adapters/metrics/prometheus"
	storagememory "github.com/epenate/orq/pkg/adapters/storage/memory"
	storageredis "github.com/epenate/orq/pkg/adapters/storage/redis"
	"github.com/epenate/orq/pkg/api/grpc"
	"github.com/epenate/orq/pkg/api/http"
	"github.com/epenate/orq/pkg/api/websocket"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Version is set by build flags
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("starting orq",
		zap.String("version", Version),
		zap.String("build_time", BuildTime))

	// Redis is optional: without an address the service runs on the
	// in-memory adapters, losing durability but not functionality.
	var (
		eventBus    ports.EventBus
		stateStore  ports.StateStore
		redisClient *goredis.Client
	)
	if cfg.Redis.Addr != "" {
		redisClient = goredis.NewClient(&goredis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			MaxRetries:   cfg.Redis.MaxRetries,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})

		ctx := context.Background()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal("failed to connect to Redis", zap.Error(err))
		}
		logger.Info("connected to Redis", zap.String("addr", cfg.Redis.Addr))

		eventBus = eventsredis.NewStreamsBus(
			redisClient,
			cfg.Redis.ConsumerGroup,
			fmt.Sprintf("%s-%d", cfg.Redis.ConsumerName, os.Getpid()),
			logger,
		)
		stateStore = storageredis.NewStateStore(redisClient, cfg.Redis.StateTTL, logger)
	} else {
		logger.Warn("no Redis address configured, using in-memory adapters")
		eventBus = eventsmemory.NewBus()
		stateStore = storagememory.NewStateStore()
	}

	backend, err := agent.NewBackend(&agent.Config{
		Backend: cfg.Agent.Backend,
		APIKey:  cfg.Agent.APIKey,
		Model:   cfg.Agent.Model,
		Logger:  logger,
	})
	if err != nil {
		logger.Fatal("failed to create agent backend", zap.Error(err))
	}

	metricsCollector := prometheus.NewCollector()

	stateManager := state.NewManager(eventBus, logger, cfg.Engine.SnapshotLimit)

	engine := orchestrator.NewEngine(
		stateManager,
		backend,
		eventBus,
		metricsCollector,
		logger,
		orchestrator.Options{
			MaxConcurrentTasks: cfg.Engine.MaxConcurrentTasks,
			RetryDelay:         cfg.Engine.RetryDelay,
			SnapshotInterval:   cfg.Engine.SnapshotInterval,
			DefaultTaskTimeout: cfg.Timeouts.TaskExecutionTimeout,
			AutoRecovery:       cfg.Engine.AutoRecovery,
		},
	)

	// Slot executor backing the synchronous batch endpoint.
	batchExecutor, err := parallel.NewExecutor(parallel.Config{
		MaxConcurrency: cfg.Engine.BatchSlots,
		Timeout:        cfg.Engine.BatchTimeout,
	}, eventBus, metricsCollector, logger)
	if err != nil {
		logger.Fatal("failed to create batch executor", zap.Error(err))
	}

	slotMonitor := parallel.NewMonitor(batchExecutor, metricsCollector, 15*time.Second, logger)
	slotMonitor.Start()

	httpServer := http.NewServer(&http.Config{
		Port:    cfg.HTTPPort,
		Engine:  engine,
		Batches: batchExecutor,
		Backend: backend,
		Store:   stateStore,
		Logger:  logger,
	})

	wsHandler := websocket.NewHandler(eventBus, logger)
	httpServer.SetupWebSocket(wsHandler)

	grpcServer, err := grpc.NewServer(&grpc.Config{
		Port:   cfg.GRPCPort,
		Engine: engine,
		Logger: logger,
	})
	if err != nil {
		logger.Fatal("failed to create gRPC server", zap.Error(err))
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	go func() {
		if err := grpcServer.Start(); err != nil {
			logger.Fatal("gRPC server failed", zap.Error(err))
		}
	}()

	logger.Info("orq started",
		zap.Int("http_port", cfg.HTTPPort),
		zap.Int("grpc_port", cfg.GRPCPort),
		zap.String("agent_backend", cfg.Agent.Backend),
		zap.Int("max_concurrent_tasks", cfg.Engine.MaxConcurrentTasks))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	if err := grpcServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("gRPC server shutdown error", zap.Error(err))
	}

	slotMonitor.Stop()

	if err := engine.Shutdown(shutdownCtx); err != nil {
		logger.Error("engine shutdown error", zap.Error(err))
	}

	if err := eventBus.Close(); err != nil {
		logger.Error("event bus close error", zap.Error(err))
	}

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error("Redis close error", zap.Error(err))
		}
	}

	logger.Info("orq shut down complete")
}

// initLogger initializes the logger based on log level
func initLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(zapLevel)
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := config.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}

	return logger
}
