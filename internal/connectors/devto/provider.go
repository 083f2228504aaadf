// Package devto implements the DEV Community (dev.to) provider.
//
// DEV has no OAuth flow. The user pastes a personal API key, which arrives
// as the base64 encoded JSON of the custom fields in place of an
// authorization code. The key never expires and is used as the access token.
package devto

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/custodia-labs/sercha-connect/internal/connectors/httpx"
	"github.com/custodia-labs/sercha-connect/internal/connectors/oauthflow"
	"github.com/custodia-labs/sercha-connect/internal/core/domain"
	"github.com/custodia-labs/sercha-connect/internal/core/ports/driven"
)

// ID is the provider identifier.
const ID = "devto"

// APIKeyField is the custom field holding the user's API key.
const APIKeyField = "apiKey"

const (
	defaultAPIBase = "https://dev.to"
	defaultLimit   = 10
	maxTags        = 4
)

var descriptor = domain.ProviderDescriptor{
	ID:                   ID,
	Name:                 "DEV Community",
	SupportsCustomFields: true,
	IsOneTimeToken:       true,
}

var customFields = []domain.CustomField{
	{Key: APIKeyField, Label: "API key", Kind: domain.FieldKindSecret, Validation: `^\S{8,}$`},
}

var methods = []domain.MethodSpec{
	{
		Provider:    ID,
		Name:        "articles",
		Description: "List the user's articles, published and drafts",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"limit": map[string]any{"type": "integer", "description": "Maximum articles to return (default 10)"},
			},
		},
	},
	{
		Provider:    ID,
		Name:        "post",
		Description: "Create an article",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"title":         map[string]any{"type": "string"},
				"body":          map[string]any{"type": "string", "description": "Markdown body"},
				"tags":          map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "maxItems": maxTags},
				"published":     map[string]any{"type": "boolean", "description": "Publish immediately instead of saving a draft"},
				"canonical_url": map[string]any{"type": "string"},
				"main_image":    map[string]any{"type": "string"},
			},
			"required": []string{"title", "body"},
		},
	},
}

// Config holds endpoint overrides.
type Config struct {
	HTTPClient *http.Client
	APIBase    string
}

// Registration returns the registry entry of the provider.
func Registration(cfg Config) driven.ProviderRegistration {
	return driven.ProviderRegistration{
		Descriptor: descriptor,
		Methods:    methods,
		New: func(_ *domain.ClientInformation) driven.Provider {
			return New(cfg)
		},
	}
}

// Provider talks to the DEV API.
type Provider struct {
	api *httpx.Client
}

var (
	_ driven.Provider             = (*Provider)(nil)
	_ driven.CustomFieldsProvider = (*Provider)(nil)
)

// New creates a provider.
func New(cfg Config) *Provider {
	base := cfg.APIBase
	if base == "" {
		base = defaultAPIBase
	}
	api := httpx.New(ID, base, cfg.HTTPClient)
	api.Auth = httpx.HeaderKey("api-key")
	return &Provider{api: api}
}

// Descriptor returns the static provider description.
func (p *Provider) Descriptor() domain.ProviderDescriptor {
	return descriptor
}

// CustomFields declares the API key input.
func (p *Provider) CustomFields() []domain.CustomField {
	return customFields
}

// GenerateAuthURL returns no URL, only a state to correlate the
// completion with.
func (p *Provider) GenerateAuthURL(_ context.Context, _ *domain.ExternalInstance) (*domain.AuthURL, error) {
	state, err := oauthflow.GenerateState()
	if err != nil {
		return nil, err
	}
	return &domain.AuthURL{State: state}, nil
}

// Authenticate decodes the custom fields and validates the key against
// the authenticated user endpoint.
func (p *Provider) Authenticate(
	ctx context.Context,
	params domain.AuthParams,
	_ *domain.ExternalInstance,
) (*domain.AuthResult, error) {
	key, err := decodeAPIKey(params.Code)
	if err != nil {
		return nil, err
	}

	var me struct {
		ID           int64  `json:"id"`
		Name         string `json:"name"`
		Username     string `json:"username"`
		ProfileImage string `json:"profile_image"`
	}
	if err := p.api.JSON(ctx, http.MethodGet, "/api/users/me", key, nil, &me); err != nil {
		if httpx.IsUnauthorized(err) || httpx.IsForbidden(err) {
			return nil, &domain.ScopesError{Message: "invalid API key"}
		}
		return nil, fmt.Errorf("devto: load user: %w", err)
	}

	return &domain.AuthResult{
		ID:          strconv.FormatInt(me.ID, 10),
		Name:        me.Name,
		Username:    me.Username,
		Picture:     me.ProfileImage,
		AccessToken: key,
	}, nil
}

// RefreshToken returns nil: API keys cannot be refreshed.
func (p *Provider) RefreshToken(_ context.Context, _ string) (*domain.AuthResult, error) {
	return nil, nil
}

// Methods returns the invocable methods.
func (p *Provider) Methods() map[string]driven.MethodHandler {
	return map[string]driven.MethodHandler{
		"articles": p.articles,
		"post":     p.post,
	}
}

// Article is an entry of the articles result and the result of post.
type Article struct {
	ID          int64    `json:"id"`
	Title       string   `json:"title"`
	URL         string   `json:"url"`
	Published   bool     `json:"published"`
	PublishedAt string   `json:"published_at,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

func (p *Provider) articles(ctx context.Context, call domain.Call) (any, error) {
	limit := call.IntArg("limit", defaultLimit)
	if limit <= 0 {
		limit = defaultLimit
	}

	var raw []struct {
		ID          int64    `json:"id"`
		Title       string   `json:"title"`
		URL         string   `json:"url"`
		Published   bool     `json:"published"`
		PublishedAt string   `json:"published_at"`
		TagList     []string `json:"tag_list"`
	}
	query := url.Values{"per_page": {strconv.Itoa(limit)}}
	if err := p.api.Get(ctx, "/api/articles/me/all", call.AccessToken, query, &raw); err != nil {
		return nil, fmt.Errorf("devto: list articles: %w", err)
	}

	out := make([]Article, 0, len(raw))
	for _, a := range raw {
		out = append(out, Article{
			ID:          a.ID,
			Title:       a.Title,
			URL:         a.URL,
			Published:   a.Published,
			PublishedAt: a.PublishedAt,
			Tags:        a.TagList,
		})
	}
	return out, nil
}

func (p *Provider) post(ctx context.Context, call domain.Call) (any, error) {
	title := strings.TrimSpace(call.StringArg("title"))
	body := call.StringArg("body")
	if title == "" || strings.TrimSpace(body) == "" {
		return nil, fmt.Errorf("%w: title and body are required", domain.ErrInvalidInput)
	}

	tags := stringList(call.Args["tags"])
	if len(tags) > maxTags {
		return nil, fmt.Errorf("%w: at most %d tags", domain.ErrInvalidInput, maxTags)
	}

	article := map[string]any{
		"title":         title,
		"body_markdown": body,
		"published":     call.Args["published"] == true,
		"tags":          tags,
	}
	if v := call.StringArg("canonical_url"); v != "" {
		article["canonical_url"] = v
	}
	if v := call.StringArg("main_image"); v != "" {
		article["main_image"] = v
	}

	var created struct {
		ID        int64    `json:"id"`
		Title     string   `json:"title"`
		URL       string   `json:"url"`
		Published bool     `json:"published"`
		Tags      []string `json:"tags"`
	}
	if err := p.api.JSON(ctx, http.MethodPost, "/api/articles", call.AccessToken, map[string]any{"article": article}, &created); err != nil {
		return nil, fmt.Errorf("devto: create article: %w", err)
	}
	return Article{
		ID:        created.ID,
		Title:     created.Title,
		URL:       created.URL,
		Published: created.Published,
		Tags:      created.Tags,
	}, nil
}

func decodeAPIKey(code string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(code)
	if err != nil {
		return "", fmt.Errorf("%w: custom fields must be base64 encoded", domain.ErrInvalidInput)
	}
	var fields map[string]string
	if err := json.Unmarshal(raw, &fields); err != nil {
		return "", fmt.Errorf("%w: custom fields must be a JSON object", domain.ErrInvalidInput)
	}
	key := strings.TrimSpace(fields[APIKeyField])
	if key == "" {
		return "", fmt.Errorf("%w: %s is required", domain.ErrInvalidInput, APIKeyField)
	}
	return key, nil
}

// stringList accepts a JSON array of strings or a comma separated string.
func stringList(v any) []string {
	var out []string
	switch t := v.(type) {
	case []string:
		out = t
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
	case string:
		out = strings.Split(t, ",")
	}

	tags := make([]string, 0, len(out))
	for _, s := range out {
		if s = strings.TrimSpace(s); s != "" {
			tags = append(tags, s)
		}
	}
	return tags
}
