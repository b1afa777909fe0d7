// Package memory implements the state store on a plain map. TTLs expire
// lazily at read time.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/epenate/orq/internal/domain"
)

type entry struct {
	export    *domain.ExportedWorkflow
	expiresAt time.Time // zero means no expiry
}

// StateStore is a map-backed ports.StateStore for tests and single-binary
// deployments.
type StateStore struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewStateStore creates an in-memory state store.
func NewStateStore() *StateStore {
	return &StateStore{
		entries: make(map[string]*entry),
	}
}

// Save stores the exported workflow under its ID without an expiry.
func (s *StateStore) Save(ctx context.Context, workflowID string, export *domain.ExportedWorkflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[workflowID] = &entry{export: export}
	return nil
}

// Load returns the stored export, honoring a lazily-evaluated expiry.
func (s *StateStore) Load(ctx context.Context, workflowID string) (*domain.ExportedWorkflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[workflowID]
	if !ok || s.expired(e) {
		delete(s.entries, workflowID)
		return nil, fmt.Errorf("%w: %s", domain.ErrWorkflowNotFound, workflowID)
	}
	return e.export, nil
}

// Delete removes the stored state for a workflow.
func (s *StateStore) Delete(ctx context.Context, workflowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, workflowID)
	return nil
}

// List returns the IDs of every non-expired stored workflow.
func (s *StateStore) List(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.entries))
	for id, e := range s.entries {
		if s.expired(e) {
			delete(s.entries, id)
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// SetTTL sets the expiry of a stored workflow relative to now.
func (s *StateStore) SetTTL(ctx context.Context, workflowID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[workflowID]
	if !ok || s.expired(e) {
		delete(s.entries, workflowID)
		return fmt.Errorf("%w: %s", domain.ErrWorkflowNotFound, workflowID)
	}
	e.expiresAt = time.Now().Add(ttl)
	return nil
}

func (s *StateStore) expired(e *entry) bool {
	return !e.expiresAt.IsZero() && time.Now().After(e.expiresAt)
}
