package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/sercha-connect/internal/core/domain"
	"github.com/custodia-labs/sercha-connect/internal/core/ports/driven"
)

// Ensure OAuthAppStore implements the interface.
var _ driven.OAuthAppStore = (*OAuthAppStore)(nil)

// OAuthAppStore is an in-memory implementation of driven.OAuthAppStore.
type OAuthAppStore struct {
	mu   sync.RWMutex
	apps map[string]domain.OAuthApplication
	now  func() time.Time
}

// NewOAuthAppStore creates a new in-memory application store.
func NewOAuthAppStore() *OAuthAppStore {
	return &OAuthAppStore{
		apps: make(map[string]domain.OAuthApplication),
		now:  time.Now,
	}
}

// Create inserts an application.
func (s *OAuthAppStore) Create(_ context.Context, app *domain.OAuthApplication) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.apps[app.ID]; exists || app.ID == "" {
		return domain.ErrInvalidInput
	}
	stored := *app
	if stored.Status == "" {
		stored.Status = domain.AppStatusActive
	}
	if stored.IsDefault {
		s.clearDefaults(stored.OrgID, stored.Provider)
	}
	s.apps[stored.ID] = stored
	return nil
}

// Get retrieves an active application.
func (s *OAuthAppStore) Get(_ context.Context, orgID, id string) (*domain.OAuthApplication, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	app, ok := s.active(orgID, id)
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &app, nil
}

// Default returns the flagged default, or nil.
func (s *OAuthAppStore) Default(_ context.Context, orgID, provider string) (*domain.OAuthApplication, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, app := range s.apps {
		if app.OrgID == orgID && app.Provider == provider && app.IsDefault && app.Active() {
			return &app, nil
		}
	}
	return nil, nil
}

// List returns active applications, oldest first.
func (s *OAuthAppStore) List(_ context.Context, orgID, provider string) ([]domain.OAuthApplication, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]domain.OAuthApplication, 0)
	for _, app := range s.apps {
		if app.OrgID != orgID || !app.Active() || (provider != "" && app.Provider != provider) {
			continue
		}
		result = append(result, app)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

// Update saves the mutable fields of an application.
func (s *OAuthAppStore) Update(_ context.Context, app *domain.OAuthApplication) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.active(app.OrgID, app.ID)
	if !ok {
		return domain.ErrNotFound
	}
	if app.IsDefault && !existing.IsDefault {
		s.clearDefaults(existing.OrgID, existing.Provider)
	}
	existing.Name = app.Name
	existing.ClientID = app.ClientID
	existing.SecretCiphertext = app.SecretCiphertext
	existing.ExtraCiphertext = app.ExtraCiphertext
	existing.IsDefault = app.IsDefault
	existing.UpdatedAt = s.now()
	s.apps[existing.ID] = existing
	return nil
}

// SetDefault flags the application as its provider's default.
func (s *OAuthAppStore) SetDefault(_ context.Context, orgID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.active(orgID, id)
	if !ok {
		return domain.ErrNotFound
	}
	s.clearDefaults(orgID, app.Provider)
	app.IsDefault = true
	app.UpdatedAt = s.now()
	s.apps[id] = app
	return nil
}

// SoftDelete marks the application deleted.
func (s *OAuthAppStore) SoftDelete(_ context.Context, orgID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.active(orgID, id)
	if !ok {
		return domain.ErrNotFound
	}
	now := s.now()
	app.Status = domain.AppStatusDeleted
	app.IsDefault = false
	app.DeletedAt = now
	app.UpdatedAt = now
	s.apps[id] = app
	return nil
}

func (s *OAuthAppStore) active(orgID, id string) (domain.OAuthApplication, bool) {
	app, ok := s.apps[id]
	if !ok || app.OrgID != orgID || !app.Active() {
		return domain.OAuthApplication{}, false
	}
	return app, true
}

func (s *OAuthAppStore) clearDefaults(orgID, provider string) {
	for id, app := range s.apps {
		if app.OrgID == orgID && app.Provider == provider && app.IsDefault {
			app.IsDefault = false
			s.apps[id] = app
		}
	}
}
