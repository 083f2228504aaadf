package driving

import (
	"context"

	"github.com/custodia-labs/sercha-connect/internal/core/domain"
)

// OAuthAppInput creates or updates an OAuth application.
type OAuthAppInput struct {
	Provider string
	Name     string
	// Fields maps credential field key to value. On update, omitted keys keep
	// their stored value.
	Fields map[string]string
	// IsDefault sets or clears the provider default. Nil leaves it unchanged
	// on update and means false on create.
	IsDefault *bool
}

// OAuthAppService manages organization OAuth applications.
// Views never include secrets.
type OAuthAppService interface {
	Create(ctx context.Context, orgID string, input OAuthAppInput) (*domain.OAuthAppView, error)
	Get(ctx context.Context, orgID, id string) (*domain.OAuthAppView, error)
	// List returns applications; an empty provider lists all.
	List(ctx context.Context, orgID, provider string) ([]domain.OAuthAppView, error)
	Update(ctx context.Context, orgID, id string, input OAuthAppInput) (*domain.OAuthAppView, error)
	SetDefault(ctx context.Context, orgID, id string) error
	// Delete soft-deletes the application.
	Delete(ctx context.Context, orgID, id string) error
}
