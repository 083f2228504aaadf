package memory

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/sercha-connect/internal/core/domain"
	"github.com/custodia-labs/sercha-connect/internal/core/ports/driven"
)

// Ensure ConnectionStore implements the interface.
var _ driven.ConnectionStore = (*ConnectionStore)(nil)

// ConnectionStore is an in-memory implementation of driven.ConnectionStore.
type ConnectionStore struct {
	mu          sync.RWMutex
	connections map[string]domain.Connection
	invocations *InvocationStore
	now         func() time.Time
}

// NewConnectionStore creates a new in-memory connection store. When
// invocations is non-nil, Delete also removes the connection's scheduled invocations.
func NewConnectionStore(invocations *InvocationStore) *ConnectionStore {
	return &ConnectionStore{
		connections: make(map[string]domain.Connection),
		invocations: invocations,
		now:         time.Now,
	}
}

// Get retrieves a non-deleted connection.
func (s *ConnectionStore) Get(_ context.Context, orgID, id string) (*domain.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conn, ok := s.connections[id]
	if !ok || conn.OrgID != orgID || conn.Status == domain.ConnectionDeleted {
		return nil, domain.ErrNotFound
	}
	return cloneConnection(conn), nil
}

// GetByInternalID retrieves a non-deleted connection by provider account id.
func (s *ConnectionStore) GetByInternalID(_ context.Context, orgID, provider, internalID string) (*domain.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conn, ok := s.find(orgID, provider, internalID)
	if !ok || conn.Status == domain.ConnectionDeleted {
		return nil, nil
	}
	return cloneConnection(conn), nil
}

// List returns the organization's non-deleted connections, oldest first.
func (s *ConnectionStore) List(_ context.Context, orgID string) ([]domain.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]domain.Connection, 0)
	for _, conn := range s.connections {
		if conn.OrgID == orgID && conn.Status != domain.ConnectionDeleted {
			result = append(result, *cloneConnection(conn))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

// Upsert creates or replaces the connection for (org, provider, internal id).
// A soft-deleted record is revived with its original id.
func (s *ConnectionStore) Upsert(_ context.Context, conn *domain.Connection) (*domain.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := *cloneConnection(*conn)
	now := s.now()
	if existing, ok := s.find(conn.OrgID, conn.Provider, conn.InternalID); ok {
		next.ID = existing.ID
		next.CreatedAt = existing.CreatedAt
	} else {
		if next.ID == "" {
			next.ID = uuid.New().String()
		}
		next.CreatedAt = now
	}
	if next.Status == "" || next.Status == domain.ConnectionDeleted {
		next.Status = domain.ConnectionActive
	}
	next.RefreshNeeded = false
	next.DeletedAt = time.Time{}
	next.UpdatedAt = now

	s.connections[next.ID] = next
	return cloneConnection(next), nil
}

// UpdateTokens persists refreshed tokens.
func (s *ConnectionStore) UpdateTokens(_ context.Context, orgID, id string, update domain.TokenUpdate) error {
	return s.mutate(orgID, id, func(c *domain.Connection) {
		c.AccessToken = update.AccessToken
		c.RefreshToken = update.RefreshToken
		c.TokenExpiresAt = update.ExpiresAt
		if update.Settings != nil {
			c.Settings = maps.Clone(update.Settings)
		}
		c.RefreshNeeded = false
	})
}

// Disable marks the connection disabled.
func (s *ConnectionStore) Disable(_ context.Context, orgID, id string, refreshNeeded bool) error {
	return s.mutate(orgID, id, func(c *domain.Connection) {
		c.Status = domain.ConnectionDisabled
		c.RefreshNeeded = refreshNeeded
	})
}

// Enable marks the connection active.
func (s *ConnectionStore) Enable(_ context.Context, orgID, id string) error {
	return s.mutate(orgID, id, func(c *domain.Connection) {
		c.Status = domain.ConnectionActive
	})
}

// SoftDelete marks the connection deleted.
func (s *ConnectionStore) SoftDelete(_ context.Context, orgID, id string) error {
	now := s.now()
	return s.mutate(orgID, id, func(c *domain.Connection) {
		c.Status = domain.ConnectionDeleted
		c.DeletedAt = now
	})
}

// Delete removes the connection, including soft-deleted ones.
func (s *ConnectionStore) Delete(_ context.Context, orgID, id string) error {
	s.mu.Lock()
	conn, ok := s.connections[id]
	if !ok || conn.OrgID != orgID {
		s.mu.Unlock()
		return domain.ErrNotFound
	}
	delete(s.connections, id)
	s.mu.Unlock()

	if s.invocations != nil {
		s.invocations.deleteForConnection(id)
	}
	return nil
}

// UpdateProfile changes the display name and picture.
func (s *ConnectionStore) UpdateProfile(_ context.Context, orgID, id, name, picture string) error {
	return s.mutate(orgID, id, func(c *domain.Connection) {
		c.Name = name
		c.Picture = picture
	})
}

// UpdateSettings replaces the settings blob.
func (s *ConnectionStore) UpdateSettings(_ context.Context, orgID, id string, settings map[string]any) error {
	return s.mutate(orgID, id, func(c *domain.Connection) {
		c.Settings = maps.Clone(settings)
	})
}

// CompleteSetup clears the in-between-steps flag.
func (s *ConnectionStore) CompleteSetup(_ context.Context, orgID, id string) error {
	return s.mutate(orgID, id, func(c *domain.Connection) {
		c.InBetweenSteps = false
	})
}

// SeenBefore reports whether any record exists for the account.
func (s *ConnectionStore) SeenBefore(_ context.Context, orgID, provider, internalID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.find(orgID, provider, internalID)
	return ok, nil
}

// ExpiringBefore lists active connections with a refresh token expiring before t.
func (s *ConnectionStore) ExpiringBefore(_ context.Context, t time.Time) ([]domain.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []domain.Connection
	for _, c := range s.connections {
		if c.Status != domain.ConnectionActive || c.RefreshNeeded || c.OneTimeToken ||
			c.RefreshToken == "" || c.TokenExpiresAt.IsZero() || !c.TokenExpiresAt.Before(t) {
			continue
		}
		result = append(result, *cloneConnection(c))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].TokenExpiresAt.Before(result[j].TokenExpiresAt) })
	return result, nil
}

// find must be called with the lock held.
func (s *ConnectionStore) find(orgID, provider, internalID string) (domain.Connection, bool) {
	for _, c := range s.connections {
		if c.OrgID == orgID && c.Provider == provider && c.InternalID == internalID {
			return c, true
		}
	}
	return domain.Connection{}, false
}

func (s *ConnectionStore) mutate(orgID, id string, fn func(*domain.Connection)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn, ok := s.connections[id]
	if !ok || conn.OrgID != orgID || conn.Status == domain.ConnectionDeleted {
		return domain.ErrNotFound
	}
	fn(&conn)
	conn.UpdatedAt = s.now()
	s.connections[id] = conn
	return nil
}

func cloneConnection(c domain.Connection) *domain.Connection {
	c.Settings = maps.Clone(c.Settings)
	return &c
}
