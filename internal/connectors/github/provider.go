package github

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/oauth2"
	ghoauth "golang.org/x/oauth2/github"

	"github.com/custodia-labs/sercha-connect/internal/connectors/oauthflow"
	"github.com/custodia-labs/sercha-connect/internal/core/domain"
	"github.com/custodia-labs/sercha-connect/internal/core/ports/driven"
)

// ID is the provider identifier.
const ID = "github"

// Credential field keys.
const (
	ClientIDKey     = "GITHUB_CLIENT_ID"
	ClientSecretKey = "GITHUB_CLIENT_SECRET"
)

const defaultRepoLimit = 30

var descriptor = domain.ProviderDescriptor{
	ID:     ID,
	Name:   "GitHub",
	Scopes: []string{"repo", "read:user"},
}

var fields = []domain.CredentialField{
	{Key: ClientIDKey, Label: "Client ID", Kind: domain.FieldKindText, Required: true},
	{Key: ClientSecretKey, Label: "Client Secret", Kind: domain.FieldKindSecret, Required: true},
}

var methods = []domain.MethodSpec{
	{
		Provider:    ID,
		Name:        "repositories",
		Description: "List repositories the account can access, most recently updated first",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"limit": map[string]any{"type": "integer", "description": "Maximum repositories to return (default 30)"},
			},
		},
	},
	{
		Provider:    ID,
		Name:        "createIssue",
		Description: "Open an issue in a repository",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"owner": map[string]any{"type": "string"},
				"repo":  map[string]any{"type": "string"},
				"title": map[string]any{"type": "string"},
				"body":  map[string]any{"type": "string"},
			},
			"required": []string{"owner", "repo", "title"},
		},
	},
}

// Config holds deployment settings and endpoint overrides.
type Config struct {
	RedirectURL string
	HTTPClient  *http.Client

	// AuthURL, TokenURL and APIBase default to github.com.
	AuthURL  string
	TokenURL string
	APIBase  string

	// RateLimiter defaults to the process-wide limiter.
	RateLimiter *RateLimiter
}

// Registration returns the registry entry of the provider.
func Registration(cfg Config) driven.ProviderRegistration {
	return driven.ProviderRegistration{
		Descriptor: descriptor,
		Fields:     fields,
		Methods:    methods,
		New: func(info *domain.ClientInformation) driven.Provider {
			return New(cfg, info)
		},
	}
}

// Provider talks to GitHub on behalf of one call.
type Provider struct {
	cfg  Config
	flow *oauthflow.Flow
	now  func() time.Time
}

var _ driven.Provider = (*Provider)(nil)

// New creates a provider bound to the resolved client credentials.
func New(cfg Config, info *domain.ClientInformation) *Provider {
	endpoint := ghoauth.Endpoint
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}

	return &Provider{
		cfg: cfg,
		flow: &oauthflow.Flow{
			Config: oauth2.Config{
				ClientID:     info.Value(ClientIDKey),
				ClientSecret: info.Value(ClientSecretKey),
				RedirectURL:  cfg.RedirectURL,
				Scopes:       descriptor.Scopes,
				Endpoint:     endpoint,
			},
			PKCE:       true,
			HTTPClient: cfg.HTTPClient,
		},
		now: time.Now,
	}
}

// Descriptor returns the static provider description.
func (p *Provider) Descriptor() domain.ProviderDescriptor {
	return descriptor
}

// GenerateAuthURL builds the GitHub authorize URL.
func (p *Provider) GenerateAuthURL(_ context.Context, _ *domain.ExternalInstance) (*domain.AuthURL, error) {
	return p.flow.AuthURL()
}

// Authenticate exchanges the code and loads the authenticated user.
func (p *Provider) Authenticate(
	ctx context.Context,
	params domain.AuthParams,
	_ *domain.ExternalInstance,
) (*domain.AuthResult, error) {
	tok, err := p.flow.Exchange(ctx, params.Code, params.CodeVerifier)
	if err != nil {
		return nil, err
	}
	if err := oauthflow.RequireScopes(tok, descriptor.Scopes); err != nil {
		return nil, err
	}

	client, err := p.client(ctx, tok.AccessToken)
	if err != nil {
		return nil, err
	}
	user, err := client.AuthenticatedUser(ctx)
	if err != nil {
		return nil, err
	}

	result := oauthflow.Result(tok, p.now())
	result.ID = strconv.FormatInt(user.GetID(), 10)
	result.Username = user.GetLogin()
	result.Name = user.GetName()
	result.Picture = user.GetAvatarURL()
	return result, nil
}

// RefreshToken exchanges the refresh token of an expiring user token.
func (p *Provider) RefreshToken(ctx context.Context, refreshToken string) (*domain.AuthResult, error) {
	tok, err := p.flow.Refresh(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	return oauthflow.Result(tok, p.now()), nil
}

// Methods returns the invocable methods.
func (p *Provider) Methods() map[string]driven.MethodHandler {
	return map[string]driven.MethodHandler{
		"repositories": p.repositories,
		"createIssue":  p.createIssue,
	}
}

// Repository is the summary returned by the repositories method.
type Repository struct {
	Name        string `json:"name"`
	FullName    string `json:"full_name"`
	Private     bool   `json:"private"`
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
}

func (p *Provider) repositories(ctx context.Context, call domain.Call) (any, error) {
	client, err := p.client(ctx, call.AccessToken)
	if err != nil {
		return nil, err
	}

	limit := call.IntArg("limit", defaultRepoLimit)
	if limit <= 0 {
		limit = defaultRepoLimit
	}
	repos, err := client.ListRepos(ctx, limit)
	if err != nil {
		return nil, err
	}

	out := make([]Repository, 0, len(repos))
	for _, r := range repos {
		out = append(out, Repository{
			Name:        r.GetName(),
			FullName:    r.GetFullName(),
			Private:     r.GetPrivate(),
			URL:         r.GetHTMLURL(),
			Description: r.GetDescription(),
		})
	}
	return out, nil
}

// Issue is the result of the createIssue method.
type Issue struct {
	Number int    `json:"number"`
	URL    string `json:"url"`
}

func (p *Provider) createIssue(ctx context.Context, call domain.Call) (any, error) {
	owner, repo, title := call.StringArg("owner"), call.StringArg("repo"), call.StringArg("title")
	if owner == "" || repo == "" || title == "" {
		return nil, fmt.Errorf("%w: owner, repo and title are required", ErrMissingArgument)
	}

	client, err := p.client(ctx, call.AccessToken)
	if err != nil {
		return nil, err
	}
	issue, err := client.CreateIssue(ctx, owner, repo, title, call.StringArg("body"))
	if err != nil {
		return nil, err
	}
	return Issue{Number: issue.GetNumber(), URL: issue.GetHTMLURL()}, nil
}

func (p *Provider) client(ctx context.Context, token string) (*Client, error) {
	return NewClient(ctx, p.cfg.HTTPClient, p.cfg.APIBase, token, p.cfg.RateLimiter)
}
