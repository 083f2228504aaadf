package linkedin

import (
	"context"

	"github.com/custodia-labs/sercha-connect/internal/core/domain"
	"github.com/custodia-labs/sercha-connect/internal/core/ports/driven"
)

var memberDescriptor = domain.ProviderDescriptor{
	ID:            ID,
	Name:          "LinkedIn",
	RefreshIsSlow: true,
	Scopes:        []string{"openid", "profile", "w_member_social"},
}

var memberMethods = []domain.MethodSpec{
	{
		Provider:    ID,
		Name:        "profile",
		Description: "Get the connected member's profile",
		InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
	},
	{
		Provider:    ID,
		Name:        "post",
		Description: "Publish a text post on the member's feed",
		InputSchema: postSchema,
	},
}

// Registration returns the registry entry of the member provider.
func Registration(cfg Config) driven.ProviderRegistration {
	return driven.ProviderRegistration{
		Descriptor: memberDescriptor,
		Fields:     fields,
		Methods:    memberMethods,
		New: func(info *domain.ClientInformation) driven.Provider {
			return NewMember(cfg, info)
		},
	}
}

// Member posts as the signed-in LinkedIn member.
type Member struct {
	base
}

var _ driven.Provider = (*Member)(nil)

// NewMember creates a member provider bound to the resolved client credentials.
func NewMember(cfg Config, info *domain.ClientInformation) *Member {
	return &Member{base: newBase(memberDescriptor, cfg, info)}
}

// Authenticate exchanges the code and loads the member profile.
func (m *Member) Authenticate(
	ctx context.Context,
	params domain.AuthParams,
	_ *domain.ExternalInstance,
) (*domain.AuthResult, error) {
	tok, err := m.exchange(ctx, params)
	if err != nil {
		return nil, err
	}

	info, err := m.userInfo(ctx, tok.AccessToken)
	if err != nil {
		return nil, err
	}

	result := m.result(tok)
	result.ID = info.Sub
	result.Name = info.Name
	result.Picture = info.Picture
	return result, nil
}

// Methods returns the invocable methods.
func (m *Member) Methods() map[string]driven.MethodHandler {
	return map[string]driven.MethodHandler{
		"profile": m.profile,
		"post":    m.post,
	}
}

func (m *Member) profile(ctx context.Context, call domain.Call) (any, error) {
	return m.userInfo(ctx, call.AccessToken)
}

func (m *Member) post(ctx context.Context, call domain.Call) (any, error) {
	return m.share(ctx, call.AccessToken, "urn:li:person:"+call.AccountID, call.StringArg("text"))
}
