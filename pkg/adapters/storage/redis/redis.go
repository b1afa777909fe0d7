// Package redis persists exported workflow state as JSON documents in
// Redis, one key per workflow, with an optional default TTL.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/epenate/orq/internal/domain"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "orq:state:"

// StateStore implements ports.StateStore on Redis.
type StateStore struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

// NewStateStore creates a Redis-backed state store. A zero ttl keeps
// entries until deleted.
func NewStateStore(client *redis.Client, ttl time.Duration, logger *zap.Logger) *StateStore {
	return &StateStore{
		client: client,
		logger: logger,
		ttl:    ttl,
	}
}

// Save writes the exported workflow under its ID, applying the default TTL.
func (s *StateStore) Save(ctx context.Context, workflowID string, export *domain.ExportedWorkflow) error {
	data, err := json.Marshal(export)
	if err != nil {
		return fmt.Errorf("failed to marshal exported workflow: %w", err)
	}

	if err := s.client.Set(ctx, keyPrefix+workflowID, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save workflow state: %w", err)
	}

	s.logger.Debug("workflow state saved",
		zap.String("workflow_id", workflowID),
		zap.Int("bytes", len(data)))

	return nil
}

// Load reads the exported workflow stored under the ID.
func (s *StateStore) Load(ctx context.Context, workflowID string) (*domain.ExportedWorkflow, error) {
	data, err := s.client.Get(ctx, keyPrefix+workflowID).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("%w: %s", domain.ErrWorkflowNotFound, workflowID)
		}
		return nil, fmt.Errorf("failed to load workflow state: %w", err)
	}

	var export domain.ExportedWorkflow
	if err := json.Unmarshal(data, &export); err != nil {
		return nil, fmt.Errorf("failed to unmarshal exported workflow: %w", err)
	}
	return &export, nil
}

// Delete removes the stored state for a workflow.
func (s *StateStore) Delete(ctx context.Context, workflowID string) error {
	if err := s.client.Del(ctx, keyPrefix+workflowID).Err(); err != nil {
		return fmt.Errorf("failed to delete workflow state: %w", err)
	}
	return nil
}

// List scans for every stored workflow ID.
func (s *StateStore) List(ctx context.Context) ([]string, error) {
	var cursor uint64
	var keys []string
	for {
		batch, next, err := s.client.Scan(ctx, cursor, keyPrefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow keys: %w", err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}

	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		ids = append(ids, strings.TrimPrefix(key, keyPrefix))
	}
	return ids, nil
}

// SetTTL overrides the expiry of a stored workflow.
func (s *StateStore) SetTTL(ctx context.Context, workflowID string, ttl time.Duration) error {
	if err := s.client.Expire(ctx, keyPrefix+workflowID, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set TTL: %w", err)
	}
	return nil
}
