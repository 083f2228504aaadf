package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/sercha-connect/internal/core/domain"
)

// ConnectionStore persists connections.
type ConnectionStore interface {
	// Get retrieves a non-deleted connection by id.
	// Returns domain.ErrNotFound if it does not exist.
	Get(ctx context.Context, orgID, id string) (*domain.Connection, error)

	// GetByInternalID retrieves a non-deleted connection by its provider-side id.
	// Returns nil and no error if none exists.
	GetByInternalID(ctx context.Context, orgID, provider, internalID string) (*domain.Connection, error)

	// List returns all non-deleted connections of an organization.
	List(ctx context.Context, orgID string) ([]domain.Connection, error)

	// Upsert creates the connection, or updates the one with the same
	// (org, provider, internal id). The stored record is returned.
	Upsert(ctx context.Context, conn *domain.Connection) (*domain.Connection, error)

	// UpdateTokens persists refreshed tokens and clears RefreshNeeded.
	UpdateTokens(ctx context.Context, orgID, id string, update domain.TokenUpdate) error

	// Disable marks the connection disabled.
	Disable(ctx context.Context, orgID, id string, refreshNeeded bool) error

	// Enable marks the connection active.
	Enable(ctx context.Context, orgID, id string) error

	// SoftDelete marks the connection deleted. The record is kept.
	SoftDelete(ctx context.Context, orgID, id string) error

	// Delete physically removes the connection and its scheduled invocations.
	Delete(ctx context.Context, orgID, id string) error

	// UpdateProfile changes the stored display name and picture.
	UpdateProfile(ctx context.Context, orgID, id, name, picture string) error

	// UpdateSettings replaces the settings blob.
	UpdateSettings(ctx context.Context, orgID, id string, settings map[string]any) error

	// CompleteSetup clears the in-between-steps flag.
	CompleteSetup(ctx context.Context, orgID, id string) error

	// SeenBefore reports whether the organization ever had a connection
	// (in any status) for this provider-side account.
	SeenBefore(ctx context.Context, orgID, provider, internalID string) (bool, error)

	// ExpiringBefore lists active, refreshable connections whose token
	// expires before t, across all organizations.
	ExpiringBefore(ctx context.Context, t time.Time) ([]domain.Connection, error)
}
