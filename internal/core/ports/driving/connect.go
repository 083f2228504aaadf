package driving

import (
	"context"

	"github.com/custodia-labs/sercha-connect/internal/core/domain"
)

// BeginAuthorizeInput is the authorize request of the connect flow.
type BeginAuthorizeInput struct {
	// RefreshID is the internal id of an existing connection to re-authenticate.
	RefreshID string
	// ExternalURL is the instance URL of self-hosted providers.
	ExternalURL string
	OAuthAppID  string
}

// CompleteAuthorizeInput is the callback payload of the connect flow.
type CompleteAuthorizeInput struct {
	Code       string
	State      string
	RefreshID  string
	OAuthAppID string
	// Timezone is the client's offset in minutes.
	Timezone int
}

// ConnectService runs the authorize/callback round trip that creates connections.
type ConnectService interface {
	// BeginAuthorize returns the URL the user must visit.
	BeginAuthorize(ctx context.Context, orgID, provider string, input BeginAuthorizeInput) (string, error)

	// CompleteAuthorize exchanges the callback payload and persists the connection.
	CompleteAuthorize(
		ctx context.Context,
		org domain.Organization,
		provider string,
		input CompleteAuthorizeInput,
	) (*domain.Connection, error)
}
