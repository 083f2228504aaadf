package driven

import (
	"context"

	"github.com/custodia-labs/sercha-connect/internal/core/domain"
)

// OAuthAppStore persists organization OAuth applications.
// Secrets arrive already encrypted; the store never sees plaintext secrets.
type OAuthAppStore interface {
	// Create inserts an application. When app.IsDefault is set, every other
	// default for the same (org, provider) is cleared in the same transaction.
	Create(ctx context.Context, app *domain.OAuthApplication) error

	// Get retrieves an active application scoped to an organization.
	// Returns domain.ErrNotFound if missing or deleted.
	Get(ctx context.Context, orgID, id string) (*domain.OAuthApplication, error)

	// Default returns the organization's default application for a provider.
	// Returns nil and no error if none is flagged.
	Default(ctx context.Context, orgID, provider string) (*domain.OAuthApplication, error)

	// List returns active applications. An empty provider lists all providers.
	List(ctx context.Context, orgID, provider string) ([]domain.OAuthApplication, error)

	// Update saves name, client id, ciphertexts and the default flag.
	// Setting the default flag clears other defaults like Create.
	Update(ctx context.Context, app *domain.OAuthApplication) error

	// SetDefault flags an application as the default for its provider.
	SetDefault(ctx context.Context, orgID, id string) error

	// SoftDelete marks the application deleted and clears its default flag.
	SoftDelete(ctx context.Context, orgID, id string) error
}
