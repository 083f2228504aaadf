// Package linkedin implements the LinkedIn member and LinkedIn page providers.
//
// Both share one LinkedIn app (the same credential fields) and the
// OpenID Connect sign-in. A member connection is the signed-in person; a page
// connection is an organization the person administers. LinkedIn needs some
// time before a refreshed token is accepted, so both declare slow refresh.
package linkedin

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/custodia-labs/sercha-connect/internal/connectors/httpx"
	"github.com/custodia-labs/sercha-connect/internal/connectors/oauthflow"
	"github.com/custodia-labs/sercha-connect/internal/core/domain"
)

// Provider identifiers.
const (
	ID     = "linkedin"
	PageID = "linkedin-page"
)

// Credential field keys, shared by both providers.
const (
	ClientIDKey     = "LINKEDIN_CLIENT_ID"
	ClientSecretKey = "LINKEDIN_CLIENT_SECRET"
)

const (
	defaultAuthURL  = "https://www.linkedin.com/oauth/v2/authorization"
	defaultTokenURL = "https://www.linkedin.com/oauth/v2/accessToken"
	defaultAPIBase  = "https://api.linkedin.com"

	// apiVersion is the LinkedIn-Version header of the versioned REST API.
	apiVersion = "202405"
)

var fields = []domain.CredentialField{
	{Key: ClientIDKey, Label: "Client ID", Kind: domain.FieldKindText, Required: true},
	{Key: ClientSecretKey, Label: "Client Secret", Kind: domain.FieldKindSecret, Required: true},
}

var postSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"text": map[string]any{"type": "string", "description": "Post commentary"},
	},
	"required": []string{"text"},
}

// Config holds deployment settings and endpoint overrides.
type Config struct {
	RedirectURL string
	HTTPClient  *http.Client

	AuthURL  string
	TokenURL string
	APIBase  string
}

// base holds what the member and page providers share.
type base struct {
	desc domain.ProviderDescriptor
	flow *oauthflow.Flow
	api  *httpx.Client
	now  func() time.Time
}

func newBase(desc domain.ProviderDescriptor, cfg Config, info *domain.ClientInformation) base {
	endpoint := oauth2.Endpoint{
		AuthURL:   firstNonEmpty(cfg.AuthURL, defaultAuthURL),
		TokenURL:  firstNonEmpty(cfg.TokenURL, defaultTokenURL),
		AuthStyle: oauth2.AuthStyleInParams,
	}

	api := httpx.New(desc.ID, firstNonEmpty(cfg.APIBase, defaultAPIBase), cfg.HTTPClient)
	api.Header = http.Header{
		"Linkedin-Version":          {apiVersion},
		"X-Restli-Protocol-Version": {"2.0.0"},
	}

	return base{
		desc: desc,
		flow: &oauthflow.Flow{
			Config: oauth2.Config{
				ClientID:     info.Value(ClientIDKey),
				ClientSecret: info.Value(ClientSecretKey),
				RedirectURL:  cfg.RedirectURL,
				Scopes:       desc.Scopes,
				Endpoint:     endpoint,
			},
			HTTPClient: cfg.HTTPClient,
		},
		api: api,
		now: time.Now,
	}
}

func (b *base) Descriptor() domain.ProviderDescriptor {
	return b.desc
}

func (b *base) GenerateAuthURL(_ context.Context, _ *domain.ExternalInstance) (*domain.AuthURL, error) {
	return b.flow.AuthURL()
}

func (b *base) RefreshToken(ctx context.Context, refreshToken string) (*domain.AuthResult, error) {
	tok, err := b.flow.Refresh(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	return b.result(tok), nil
}

// exchange trades the code and checks the granted scopes.
func (b *base) exchange(ctx context.Context, params domain.AuthParams) (*oauth2.Token, error) {
	tok, err := b.flow.Exchange(ctx, params.Code, params.CodeVerifier)
	if err != nil {
		return nil, err
	}
	if err := oauthflow.RequireScopes(tok, b.desc.Scopes); err != nil {
		return nil, err
	}
	return tok, nil
}

func (b *base) result(tok *oauth2.Token) *domain.AuthResult {
	return oauthflow.Result(tok, b.now())
}

// UserInfo is the OpenID Connect profile of the signed-in member.
type UserInfo struct {
	Sub        string `json:"sub"`
	Name       string `json:"name"`
	GivenName  string `json:"given_name,omitempty"`
	FamilyName string `json:"family_name,omitempty"`
	Picture    string `json:"picture,omitempty"`
	Email      string `json:"email,omitempty"`
}

func (b *base) userInfo(ctx context.Context, token string) (*UserInfo, error) {
	var info UserInfo
	if err := b.api.JSON(ctx, http.MethodGet, "/v2/userinfo", token, nil, &info); err != nil {
		return nil, fmt.Errorf("linkedin: userinfo: %w", err)
	}
	if info.Sub == "" {
		return nil, fmt.Errorf("linkedin: userinfo returned no subject")
	}
	return &info, nil
}

// PostResult is the result of the post methods.
type PostResult struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// share publishes text as author, a person or organization URN.
func (b *base) share(ctx context.Context, token, author, text string) (*PostResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: text is required", domain.ErrInvalidInput)
	}

	body := map[string]any{
		"author":     author,
		"commentary": text,
		"visibility": "PUBLIC",
		"distribution": map[string]any{
			"feedDistribution":               "MAIN_FEED",
			"targetEntities":                 []any{},
			"thirdPartyDistributionChannels": []any{},
		},
		"lifecycleState":            "PUBLISHED",
		"isReshareDisabledByAuthor": false,
	}

	header, err := b.api.JSONHeader(ctx, http.MethodPost, "/rest/posts", token, body, nil)
	if err != nil {
		return nil, fmt.Errorf("linkedin: create post: %w", err)
	}

	id := header.Get("X-Restli-Id")
	return &PostResult{
		ID:  id,
		URL: "https://www.linkedin.com/feed/update/" + url.PathEscape(id),
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
