package http

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/epenate/orq/internal/domain"
	"github.com/epenate/orq/internal/ports"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// WorkflowSubmitRequest represents a workflow submission request.
type WorkflowSubmitRequest struct {
	Workflow *domain.WorkflowConfig `json:"workflow" binding:"required"`
}

// WorkflowSubmitResponse represents a workflow submission response.
type WorkflowSubmitResponse struct {
	WorkflowID  string    `json:"workflow_id"`
	Status      string    `json:"status"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail represents error details.
type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"checks": gin.H{
			"engine": "ok",
		},
	})
}

// handleSubmitWorkflow validates and admits a workflow, then executes it
// asynchronously. The response carries the ID to poll.
func (s *Server) handleSubmitWorkflow(c *gin.Context) {
	var req WorkflowSubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.logger.Error("invalid workflow request", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: ErrorDetail{
				Code:    "INVALID_REQUEST",
				Message: err.Error(),
			},
		})
		return
	}

	workflow := req.Workflow
	if workflow.ID == "" {
		workflow.ID = uuid.New().String()
	}

	// Fail validation synchronously so the caller gets a 4xx instead of a
	// workflow that silently never existed.
	if err := s.engine.Validate(workflow); err != nil {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error: ErrorDetail{
				Code:    "VALIDATION_FAILED",
				Message: err.Error(),
			},
		})
		return
	}

	go func() {
		// Detached from the request context: the workflow outlives it.
		if _, err := s.engine.Execute(context.Background(), workflow); err != nil {
			s.logger.Error("workflow execution failed",
				zap.String("workflow_id", workflow.ID),
				zap.Error(err))
		}
	}()

	c.JSON(http.StatusAccepted, WorkflowSubmitResponse{
		WorkflowID:  workflow.ID,
		Status:      "submitted",
		SubmittedAt: time.Now().UTC(),
	})
}

// handleListWorkflows lists the IDs of every tracked workflow.
func (s *Server) handleListWorkflows(c *gin.Context) {
	ids := s.engine.State().ListWorkflows()
	c.JSON(http.StatusOK, gin.H{
		"workflows": ids,
		"total":     len(ids),
	})
}

// handleGetWorkflow returns the full workflow state.
func (s *Server) handleGetWorkflow(c *gin.Context) {
	state, err := s.engine.State().GetWorkflowState(c.Param("id"))
	if err != nil {
		s.notFound(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

// handleGetProgress returns the workflow's progress counters.
func (s *Server) handleGetProgress(c *gin.Context) {
	progress, err := s.engine.State().GetWorkflowProgress(c.Param("id"))
	if err != nil {
		s.notFound(c, err)
		return
	}
	c.JSON(http.StatusOK, progress)
}

// handleGetResults returns the accumulated task results once the workflow
// has reached a terminal status.
func (s *Server) handleGetResults(c *gin.Context) {
	state, err := s.engine.State().GetWorkflowState(c.Param("id"))
	if err != nil {
		s.notFound(c, err)
		return
	}

	if !state.Status.Terminal() {
		c.JSON(http.StatusConflict, ErrorResponse{
			Error: ErrorDetail{
				Code:    "NOT_COMPLETED",
				Message: "workflow execution not yet completed",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"workflow_id": state.WorkflowID,
		"status":      state.Status,
		"results":     state.Results,
		"error":       state.Error,
	})
}

// handleCancelWorkflow cancels a running workflow.
func (s *Server) handleCancelWorkflow(c *gin.Context) {
	workflowID := c.Param("id")

	if err := s.engine.CancelWorkflow(c.Request.Context(), workflowID); err != nil {
		status := http.StatusConflict
		if errors.Is(err, domain.ErrWorkflowNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, ErrorResponse{
			Error: ErrorDetail{
				Code:    "CANCELLATION_FAILED",
				Message: err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"workflow_id":  workflowID,
		"status":       domain.StatusCancelled,
		"cancelled_at": time.Now().UTC(),
	})
}

// handleCreateSnapshot takes an on-demand recovery snapshot.
func (s *Server) handleCreateSnapshot(c *gin.Context) {
	workflowID := c.Param("id")

	if err := s.engine.State().CreateSnapshot(workflowID); err != nil {
		s.notFound(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"workflow_id": workflowID,
		"created_at":  time.Now().UTC(),
	})
}

// handleRestoreSnapshot rolls the workflow back to its latest snapshot.
func (s *Server) handleRestoreSnapshot(c *gin.Context) {
	workflowID := c.Param("id")

	if err := s.engine.State().RestoreFromSnapshot(workflowID); err != nil {
		status := http.StatusConflict
		if errors.Is(err, domain.ErrWorkflowNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, ErrorResponse{
			Error: ErrorDetail{
				Code:    "RESTORE_FAILED",
				Message: err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"workflow_id": workflowID,
		"restored_at": time.Now().UTC(),
	})
}

// handleExportWorkflow exports the workflow's full state to the configured
// state store.
func (s *Server) handleExportWorkflow(c *gin.Context) {
	workflowID := c.Param("id")

	export, err := s.engine.State().ExportState(workflowID)
	if err != nil {
		s.notFound(c, err)
		return
	}

	if err := s.store.Save(c.Request.Context(), workflowID, export); err != nil {
		s.logger.Error("failed to persist workflow export",
			zap.String("workflow_id", workflowID),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: ErrorDetail{
				Code:    "EXPORT_FAILED",
				Message: err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"workflow_id": workflowID,
		"snapshots":   len(export.Snapshots),
		"exported_at": export.ExportedAt,
	})
}

// ImportRequest asks the engine to adopt a previously exported workflow.
type ImportRequest struct {
	WorkflowID string `json:"workflow_id" binding:"required"`
}

// handleImportWorkflow loads an export from the state store back into the
// engine.
func (s *Server) handleImportWorkflow(c *gin.Context) {
	var req ImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: ErrorDetail{
				Code:    "INVALID_REQUEST",
				Message: err.Error(),
			},
		})
		return
	}

	export, err := s.store.Load(c.Request.Context(), req.WorkflowID)
	if err != nil {
		s.notFound(c, err)
		return
	}

	if err := s.engine.State().ImportState(export); err != nil {
		c.JSON(http.StatusConflict, ErrorResponse{
			Error: ErrorDetail{
				Code:    "IMPORT_FAILED",
				Message: err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"workflow_id": req.WorkflowID,
		"imported_at": time.Now().UTC(),
	})
}

// BatchSubmitRequest carries dependency-free tasks executed synchronously
// through the slot executor.
type BatchSubmitRequest struct {
	Tasks []domain.TaskConfig `json:"tasks" binding:"required"`
}

// handleSubmitBatch executes independent tasks directly against the agent
// backend, bypassing workflow state. Dependencies are rejected: ordering
// belongs to workflows.
func (s *Server) handleSubmitBatch(c *gin.Context) {
	var req BatchSubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: ErrorDetail{
				Code:    "INVALID_REQUEST",
				Message: err.Error(),
			},
		})
		return
	}
	for _, task := range req.Tasks {
		if len(task.Dependencies) > 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error: ErrorDetail{
					Code:    "DEPENDENCIES_NOT_ALLOWED",
					Message: "batch tasks may not declare dependencies, submit a workflow instead",
				},
			})
			return
		}
	}

	results, err := s.batches.ExecuteTasks(c.Request.Context(), req.Tasks, s.batchTaskFunc())
	if err != nil {
		s.logger.Error("batch execution failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: ErrorDetail{
				Code:    "BATCH_FAILED",
				Message: err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"results": results,
		"total":   len(results),
	})
}

// batchTaskFunc builds a task function that spawns one agent per type for
// the lifetime of the batch.
func (s *Server) batchTaskFunc() func(ctx context.Context, task domain.TaskConfig) (any, error) {
	var mu sync.Mutex
	agents := make(map[string]ports.AgentHandle)

	return func(ctx context.Context, task domain.TaskConfig) (any, error) {
		mu.Lock()
		handle, ok := agents[task.AgentType]
		if !ok {
			var err error
			handle, err = s.backend.Spawn(ctx, ports.SpawnRequest{AgentType: task.AgentType})
			if err != nil {
				mu.Unlock()
				return nil, err
			}
			agents[task.AgentType] = handle
		}
		mu.Unlock()

		return s.backend.Execute(ctx, handle, task)
	}
}

// handleBatchStats exposes the slot executor's occupancy counters.
func (s *Server) handleBatchStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.batches.Statistics())
}

func (s *Server) notFound(c *gin.Context, err error) {
	c.JSON(http.StatusNotFound, ErrorResponse{
		Error: ErrorDetail{
			Code:    "NOT_FOUND",
			Message: err.Error(),
		},
	})
}
