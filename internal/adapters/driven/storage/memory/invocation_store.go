package memory

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/sercha-connect/internal/core/domain"
	"github.com/custodia-labs/sercha-connect/internal/core/ports/driven"
)

// Ensure InvocationStore implements the interface.
var _ driven.ScheduledInvocationStore = (*InvocationStore)(nil)

// InvocationStore is an in-memory implementation of driven.ScheduledInvocationStore.
type InvocationStore struct {
	mu          sync.RWMutex
	invocations map[string]domain.ScheduledInvocation
}

// NewInvocationStore creates a new in-memory invocation store.
func NewInvocationStore() *InvocationStore {
	return &InvocationStore{
		invocations: make(map[string]domain.ScheduledInvocation),
	}
}

// Save stores or updates an invocation.
func (s *InvocationStore) Save(_ context.Context, inv *domain.ScheduledInvocation) error {
	if inv.ID == "" {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *inv
	stored.Args = maps.Clone(inv.Args)
	s.invocations[inv.ID] = stored
	return nil
}

// Get retrieves an invocation scoped to an organization.
func (s *InvocationStore) Get(_ context.Context, orgID, id string) (*domain.ScheduledInvocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv, ok := s.invocations[id]
	if !ok || inv.OrgID != orgID {
		return nil, domain.ErrNotFound
	}
	return &inv, nil
}

// List returns the organization's invocations, latest run time first.
func (s *InvocationStore) List(_ context.Context, orgID string) ([]domain.ScheduledInvocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]domain.ScheduledInvocation, 0)
	for _, inv := range s.invocations {
		if inv.OrgID == orgID {
			result = append(result, inv)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].RunAt.After(result[j].RunAt) })
	return result, nil
}

// Due returns pending invocations due at t, oldest first.
func (s *InvocationStore) Due(_ context.Context, t time.Time, limit int) ([]domain.ScheduledInvocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []domain.ScheduledInvocation
	for _, inv := range s.invocations {
		if inv.Status == domain.InvocationPending && !inv.RunAt.After(t) {
			result = append(result, inv)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].RunAt.Before(result[j].RunAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *InvocationStore) deleteForConnection(connectionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, inv := range s.invocations {
		if inv.ConnectionID == connectionID {
			delete(s.invocations, id)
		}
	}
}
