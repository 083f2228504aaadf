package driving

import (
	"context"

	"github.com/custodia-labs/sercha-connect/internal/core/domain"
)

// ResolveOptions narrows credential resolution.
type ResolveOptions struct {
	// OAuthAppID selects an explicit application instead of the org default.
	OAuthAppID string
	// InstanceURL is carried through for self-hosted providers.
	InstanceURL string
	// AllowEnvFallback permits reading the credential fields from the environment.
	AllowEnvFallback bool
}

// CredentialResolver computes the client credentials that apply to a call.
type CredentialResolver interface {
	// Resolve applies the precedence explicit application, organization
	// default, environment. Returns nil and no error for providers without
	// credential fields.
	Resolve(ctx context.Context, orgID, provider string, opts ResolveOptions) (*domain.ClientInformation, error)
}
