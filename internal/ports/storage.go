package ports

import (
	"context"
	"time"

	"github.com/epenate/orq/internal/domain"
)

// StateStore persists exported workflow state outside the engine. The
// engine's authoritative state stays in memory; the store is an external
// persistence boundary fed by ExportState.
type StateStore interface {
	Save(ctx context.Context, workflowID string, export *domain.ExportedWorkflow) error
	Load(ctx context.Context, workflowID string) (*domain.ExportedWorkflow, error)
	Delete(ctx context.Context, workflowID string) error
	List(ctx context.Context) ([]string, error)
	SetTTL(ctx context.Context, workflowID string, ttl time.Duration) error
}
