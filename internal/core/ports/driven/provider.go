package driven

import (
	"context"

	"github.com/custodia-labs/sercha-connect/internal/core/domain"
)

// MethodHandler executes one named provider method.
// Handlers return an error wrapping domain.ErrTokenExpired when the platform
// rejects the access token.
type MethodHandler func(ctx context.Context, call domain.Call) (any, error)

// Provider is the capability surface every platform integration implements.
// Instances are created per call and carry call-scoped client credentials.
type Provider interface {
	// Descriptor returns the static provider description.
	Descriptor() domain.ProviderDescriptor

	// GenerateAuthURL starts an authorization. ext is nil unless the
	// provider requires an external URL.
	GenerateAuthURL(ctx context.Context, ext *domain.ExternalInstance) (*domain.AuthURL, error)

	// Authenticate exchanges the callback payload for an AuthResult.
	// A refused authorization is reported as *domain.ScopesError.
	Authenticate(ctx context.Context, params domain.AuthParams, ext *domain.ExternalInstance) (*domain.AuthResult, error)

	// RefreshToken exchanges a refresh token for new tokens.
	// A nil result or an error means refresh is impossible.
	RefreshToken(ctx context.Context, refreshToken string) (*domain.AuthResult, error)

	// Methods returns the invocable methods keyed by name.
	Methods() map[string]MethodHandler
}

// Optional capabilities. Services type-assert a Provider against these
// and treat a failed assertion as "not supported".

// ExternalURLResolver resolves a user-supplied instance URL into the
// instance details needed for authorization (e.g. a dynamically registered client).
type ExternalURLResolver interface {
	ExternalURL(ctx context.Context, url string) (*domain.ExternalInstance, error)
}

// CustomFieldsProvider declares the fields a user must supply instead of an OAuth redirect.
type CustomFieldsProvider interface {
	CustomFields() []domain.CustomField
}

// NicknameChanger renames the account on the platform.
type NicknameChanger interface {
	ChangeNickname(ctx context.Context, call domain.Call, name string) (string, error)
}

// PictureChanger replaces the account picture on the platform.
type PictureChanger interface {
	ChangePicture(ctx context.Context, call domain.Call, pictureURL string) (string, error)
}

// Reconnector re-binds a fresh authorization to the originally connected account.
type Reconnector interface {
	Reconnect(ctx context.Context, accountID string, result *domain.AuthResult) (*domain.AuthResult, error)
}

// ProviderFactory creates a provider instance for a call.
// info is nil for providers without credential fields.
type ProviderFactory func(info *domain.ClientInformation) Provider

// ProviderRegistration is the static table entry of one provider.
type ProviderRegistration struct {
	Descriptor domain.ProviderDescriptor
	// Fields is the ordered credential field declaration.
	Fields []domain.CredentialField
	// Methods is the declarative method table.
	Methods []domain.MethodSpec
	New     ProviderFactory
}
