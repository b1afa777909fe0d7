package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/epenate/orq/internal/engine/orchestrator"
	"github.com/epenate/orq/internal/engine/parallel"
	"github.com/epenate/orq/internal/ports"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server represents the HTTP API server.
type Server struct {
	router  *gin.Engine
	server  *http.Server
	engine  *orchestrator.Engine
	batches *parallel.Executor
	backend ports.AgentBackend
	store   ports.StateStore
	logger  *zap.Logger
}

// Config holds HTTP server configuration.
type Config struct {
	Port    int
	Engine  *orchestrator.Engine
	Batches *parallel.Executor
	Backend ports.AgentBackend
	Store   ports.StateStore
	Logger  *zap.Logger
}

// NewServer creates a new HTTP server.
func NewServer(cfg *Config) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(cfg.Logger))
	router.Use(corsMiddleware())

	s := &Server{
		router:  router,
		engine:  cfg.Engine,
		batches: cfg.Batches,
		backend: cfg.Backend,
		store:   cfg.Store,
		logger:  cfg.Logger,
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}

	return s
}

// setupRoutes configures API routes.
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/workflows", s.handleSubmitWorkflow)
		v1.GET("/workflows", s.handleListWorkflows)
		v1.GET("/workflows/:id", s.handleGetWorkflow)
		v1.GET("/workflows/:id/progress", s.handleGetProgress)
		v1.GET("/workflows/:id/results", s.handleGetResults)
		v1.POST("/workflows/:id/cancel", s.handleCancelWorkflow)
		v1.POST("/workflows/:id/snapshots", s.handleCreateSnapshot)
		v1.POST("/workflows/:id/restore", s.handleRestoreSnapshot)
		v1.POST("/workflows/:id/export", s.handleExportWorkflow)
		v1.POST("/workflows/import", s.handleImportWorkflow)

		v1.POST("/batches", s.handleSubmitBatch)
		v1.GET("/batches/stats", s.handleBatchStats)
	}
}

// SetupWebSocket adds the per-workflow event stream endpoint.
func (s *Server) SetupWebSocket(handler interface {
	HandleWorkflowStream(*gin.Context)
}) {
	s.router.GET("/api/v1/workflows/:id/ws", handler.HandleWorkflowStream)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	s.logger.Info("HTTP server shut down complete")
	return nil
}

// requestLogger is a middleware for request logging.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}
