package youtube

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"github.com/custodia-labs/sercha-connect/internal/connectors/httpx"
	"github.com/custodia-labs/sercha-connect/internal/connectors/oauthflow"
	"github.com/custodia-labs/sercha-connect/internal/core/domain"
	"github.com/custodia-labs/sercha-connect/internal/core/ports/driven"
)

// ID is the provider identifier.
const ID = "youtube"

// Credential field keys.
const (
	ClientIDKey     = "YOUTUBE_CLIENT_ID"
	ClientSecretKey = "YOUTUBE_CLIENT_SECRET"
)

const (
	defaultVideoLimit = 10
	maxVideoLimit     = 50
)

var descriptor = domain.ProviderDescriptor{
	ID:   ID,
	Name: "YouTube",
	Scopes: []string{
		"https://www.googleapis.com/auth/youtube.readonly",
		"https://www.googleapis.com/auth/userinfo.profile",
	},
}

var fields = []domain.CredentialField{
	{Key: ClientIDKey, Label: "Client ID", Kind: domain.FieldKindText, Required: true},
	{Key: ClientSecretKey, Label: "Client Secret", Kind: domain.FieldKindSecret, Required: true},
}

var methods = []domain.MethodSpec{
	{
		Provider:    ID,
		Name:        "channel",
		Description: "Get the connected channel with its statistics",
		InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
	},
	{
		Provider:    ID,
		Name:        "videos",
		Description: "List the most recent uploads of the connected channel",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"limit": map[string]any{"type": "integer", "description": "Maximum videos to return (default 10, max 50)"},
			},
		},
	},
}

// Config holds deployment settings and endpoint overrides.
type Config struct {
	RedirectURL string
	HTTPClient  *http.Client

	// AuthURL and TokenURL default to Google's OAuth endpoint.
	AuthURL  string
	TokenURL string
	// APIBase overrides the YouTube Data API endpoint.
	APIBase string
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

// Provider talks to YouTube on behalf of one call.
type Provider struct {
	cfg     Config
	flow    *oauthflow.Flow
	limiter *httpx.RateLimiter
	now     func() time.Time
}

var _ driven.Provider = (*Provider)(nil)

// New creates a provider bound to the resolved client credentials.
func New(cfg Config, info *domain.ClientInformation) *Provider {
	endpoint := google.Endpoint
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
			PKCE: true,
			AuthParams: map[string]string{
				"access_type":            "offline",
				"prompt":                 "consent",
				"include_granted_scopes": "true",
			},
			HTTPClient: cfg.HTTPClient,
		},
		limiter: httpx.Limiter(ID),
		now:     time.Now,
	}
}

// Descriptor returns the static provider description.
func (p *Provider) Descriptor() domain.ProviderDescriptor {
	return descriptor
}

// GenerateAuthURL builds the Google consent URL.
func (p *Provider) GenerateAuthURL(_ context.Context, _ *domain.ExternalInstance) (*domain.AuthURL, error) {
	return p.flow.AuthURL()
}

// Authenticate exchanges the code and loads the user's own channel.
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

	ch, err := p.myChannel(ctx, tok.AccessToken, "snippet")
	if err != nil {
		if errors.Is(err, ErrNoChannel) {
			return nil, &domain.ScopesError{Message: "the Google account has no YouTube channel"}
		}
		return nil, err
	}

	result := oauthflow.Result(tok, p.now())
	result.ID = ch.Id
	if ch.Snippet != nil {
		result.Name = ch.Snippet.Title
		result.Username = ch.Snippet.CustomUrl
		if th := ch.Snippet.Thumbnails; th != nil && th.Default != nil {
			result.Picture = th.Default.Url
		}
	}
	return result, nil
}

// RefreshToken exchanges the refresh token. Google keeps the refresh token
// stable, so the previous one is carried over.
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
		"channel": p.channel,
		"videos":  p.videos,
	}
}

// Channel is the result of the channel method.
type Channel struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	CustomURL   string `json:"custom_url,omitempty"`
	Subscribers uint64 `json:"subscribers"`
	Videos      uint64 `json:"videos"`
	Views       uint64 `json:"views"`
}

func (p *Provider) channel(ctx context.Context, call domain.Call) (any, error) {
	ch, err := p.myChannel(ctx, call.AccessToken, "snippet", "statistics")
	if err != nil {
		return nil, err
	}

	out := Channel{ID: ch.Id}
	if ch.Snippet != nil {
		out.Title = ch.Snippet.Title
		out.CustomURL = ch.Snippet.CustomUrl
	}
	if ch.Statistics != nil {
		out.Subscribers = ch.Statistics.SubscriberCount
		out.Videos = ch.Statistics.VideoCount
		out.Views = ch.Statistics.ViewCount
	}
	return out, nil
}

// Video is one entry of the videos method result.
type Video struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	PublishedAt string `json:"published_at"`
	URL         string `json:"url"`
}

func (p *Provider) videos(ctx context.Context, call domain.Call) (any, error) {
	limit := call.IntArg("limit", defaultVideoLimit)
	if limit <= 0 || limit > maxVideoLimit {
		limit = defaultVideoLimit
	}

	ch, err := p.myChannel(ctx, call.AccessToken, "contentDetails")
	if err != nil {
		return nil, err
	}
	if ch.ContentDetails == nil || ch.ContentDetails.RelatedPlaylists == nil ||
		ch.ContentDetails.RelatedPlaylists.Uploads == "" {
		return []Video{}, nil
	}

	svc, err := p.service(ctx, call.AccessToken)
	if err != nil {
		return nil, err
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	resp, err := svc.PlaylistItems.List([]string{"snippet", "contentDetails"}).
		PlaylistId(ch.ContentDetails.RelatedPlaylists.Uploads).
		MaxResults(int64(limit)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, wrapError(err, p.limiter, "list uploads")
	}

	out := make([]Video, 0, len(resp.Items))
	for _, item := range resp.Items {
		v := Video{}
		if item.ContentDetails != nil {
			v.ID = item.ContentDetails.VideoId
			v.PublishedAt = item.ContentDetails.VideoPublishedAt
		}
		if item.Snippet != nil {
			v.Title = item.Snippet.Title
		}
		if v.ID != "" {
			v.URL = "https://www.youtube.com/watch?v=" + v.ID
		}
		out = append(out, v)
	}
	return out, nil
}

func (p *Provider) myChannel(ctx context.Context, token string, parts ...string) (*yt.Channel, error) {
	svc, err := p.service(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	resp, err := svc.Channels.List(parts).Mine(true).Context(ctx).Do()
	if err != nil {
		return nil, wrapError(err, p.limiter, "list channels")
	}
	if len(resp.Items) == 0 {
		return nil, ErrNoChannel
	}
	return resp.Items[0], nil
}

func (p *Provider) service(ctx context.Context, token string) (*yt.Service, error) {
	opts := []option.ClientOption{option.WithHTTPClient(p.flow.Client(ctx, token))}
	if p.cfg.APIBase != "" {
		opts = append(opts, option.WithEndpoint(p.cfg.APIBase))
	}
	svc, err := yt.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("youtube: create service: %w", err)
	}
	return svc, nil
}
