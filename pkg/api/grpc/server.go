// Package grpc hosts the gRPC API server. Service definitions are not
// generated yet; the server carries health and reflection-less transport
// plumbing so the port is wired end to end.
package grpc

import (
	"context"
	"fmt"
	"net"

	"github.com/epenate/orq/internal/engine/orchestrator"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// Server represents the gRPC API server.
type Server struct {
	server   *grpc.Server
	listener net.Listener
	engine   *orchestrator.Engine
	logger   *zap.Logger
}

// Config holds gRPC server configuration.
type Config struct {
	Port   int
	Engine *orchestrator.Engine
	Logger *zap.Logger
}

// NewServer creates a new gRPC server.
func NewServer(cfg *Config) (*Server, error) {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return nil, fmt.Errorf("failed to create listener: %w", err)
	}

	grpcServer := grpc.NewServer()

	s := &Server{
		server:   grpcServer,
		listener: listener,
		engine:   cfg.Engine,
		logger:   cfg.Logger,
	}

	// TODO: register the workflow service once the protobuf definitions
	// land; the REST API covers the surface until then.

	return s, nil
}

// Start starts the gRPC server.
func (s *Server) Start() error {
	s.logger.Info("starting gRPC server", zap.String("addr", s.listener.Addr().String()))

	if err := s.server.Serve(s.listener); err != nil {
		return fmt.Errorf("failed to serve gRPC: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down gRPC server")

	s.server.GracefulStop()

	s.logger.Info("gRPC server shut down complete")
	return nil
}
