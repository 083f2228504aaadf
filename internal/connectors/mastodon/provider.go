// Package mastodon implements the Mastodon provider for any instance.
//
// The user supplies the instance URL when connecting. The application is
// registered on that instance on the fly (POST /api/v1/apps), so the provider
// declares no credential fields; the registered client travels with the
// connect flow and is stored encrypted on the connection. Mastodon access
// tokens do not expire and cannot be refreshed.
package mastodon

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/custodia-labs/sercha-connect/internal/connectors/httpx"
	"github.com/custodia-labs/sercha-connect/internal/connectors/oauthflow"
	"github.com/custodia-labs/sercha-connect/internal/core/domain"
	"github.com/custodia-labs/sercha-connect/internal/core/ports/driven"
)

// ID is the provider identifier.
const ID = "mastodon"

const (
	clientName       = "Sercha Connect"
	defaultLimit     = 20
	maxAvatarBytes   = 2 << 20
	defaultVisiblity = "public"
)

var descriptor = domain.ProviderDescriptor{
	ID:                     ID,
	Name:                   "Mastodon",
	RequiresExternalURL:    true,
	IsOneTimeToken:         true,
	SupportsNicknameChange: true,
	SupportsPictureChange:  true,
	Scopes:                 []string{"read", "write"},
}

var methods = []domain.MethodSpec{
	{
		Provider:    ID,
		Name:        "post",
		Description: "Publish a status",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"text":       map[string]any{"type": "string", "description": "Status text"},
				"visibility": map[string]any{"type": "string", "enum": []string{"public", "unlisted", "private", "direct"}},
			},
			"required": []string{"text"},
		},
	},
	{
		Provider:    ID,
		Name:        "mentions",
		Description: "List recent mentions of the account",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"limit": map[string]any{"type": "integer", "description": "Maximum mentions to return (default 20)"},
			},
		},
	},
}

// Config holds deployment settings.
type Config struct {
	RedirectURL string
	HTTPClient  *http.Client
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

// Provider talks to a Mastodon instance on behalf of one call.
type Provider struct {
	cfg Config
	now func() time.Time
	// limiter is shared across instances of the provider.
	limiter *httpx.RateLimiter
}

var (
	_ driven.Provider            = (*Provider)(nil)
	_ driven.ExternalURLResolver = (*Provider)(nil)
	_ driven.NicknameChanger     = (*Provider)(nil)
	_ driven.PictureChanger      = (*Provider)(nil)
)

// New creates a provider.
func New(cfg Config) *Provider {
	return &Provider{cfg: cfg, now: time.Now, limiter: httpx.Limiter(ID)}
}

// Descriptor returns the static provider description.
func (p *Provider) Descriptor() domain.ProviderDescriptor {
	return descriptor
}

// ExternalURL registers the application on the instance.
func (p *Provider) ExternalURL(ctx context.Context, instanceURL string) (*domain.ExternalInstance, error) {
	base, err := normalize(instanceURL)
	if err != nil {
		return nil, err
	}

	var app struct {
		ClientID     string `json:"client_id"`
		ClientSecret string `json:"client_secret"`
	}
	form := url.Values{
		"client_name":   {clientName},
		"redirect_uris": {p.cfg.RedirectURL},
		"scopes":        {strings.Join(descriptor.Scopes, " ")},
	}
	if err := p.api(base).Form(ctx, http.MethodPost, "/api/v1/apps", "", form, &app); err != nil {
		return nil, fmt.Errorf("mastodon: register app: %w", err)
	}
	if app.ClientID == "" || app.ClientSecret == "" {
		return nil, fmt.Errorf("mastodon: instance returned no client credentials")
	}

	return &domain.ExternalInstance{
		URL:          base,
		ClientID:     app.ClientID,
		ClientSecret: app.ClientSecret,
	}, nil
}

// GenerateAuthURL builds the instance authorize URL.
func (p *Provider) GenerateAuthURL(_ context.Context, ext *domain.ExternalInstance) (*domain.AuthURL, error) {
	flow, err := p.flow(ext)
	if err != nil {
		return nil, err
	}
	return flow.AuthURL()
}

// Authenticate exchanges the code and loads the account.
func (p *Provider) Authenticate(
	ctx context.Context,
	params domain.AuthParams,
	ext *domain.ExternalInstance,
) (*domain.AuthResult, error) {
	flow, err := p.flow(ext)
	if err != nil {
		return nil, err
	}
	tok, err := flow.Exchange(ctx, params.Code, params.CodeVerifier)
	if err != nil {
		return nil, err
	}

	acct, err := p.verifyCredentials(ctx, ext, tok.AccessToken)
	if err != nil {
		return nil, err
	}

	host := hostOf(ext.URL)
	result := oauthflow.Result(tok, p.now())
	result.ID = acct.ID + "@" + host
	result.Name = acct.DisplayName
	result.Username = acct.Username + "@" + host
	result.Picture = acct.Avatar
	return result, nil
}

// RefreshToken returns nil: Mastodon tokens live until revoked.
func (p *Provider) RefreshToken(_ context.Context, _ string) (*domain.AuthResult, error) {
	return nil, nil
}

// Methods returns the invocable methods.
func (p *Provider) Methods() map[string]driven.MethodHandler {
	return map[string]driven.MethodHandler{
		"post":     p.post,
		"mentions": p.mentions,
	}
}

// Status is the result of the post method.
type Status struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

func (p *Provider) post(ctx context.Context, call domain.Call) (any, error) {
	base, err := instanceOf(call)
	if err != nil {
		return nil, err
	}
	text := call.StringArg("text")
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: text is required", domain.ErrInvalidInput)
	}
	visibility := call.StringArg("visibility")
	if visibility == "" {
		visibility = defaultVisiblity
	}

	var out Status
	body := map[string]any{"status": text, "visibility": visibility}
	if err := p.api(base).JSON(ctx, http.MethodPost, "/api/v1/statuses", call.AccessToken, body, &out); err != nil {
		return nil, fmt.Errorf("mastodon: post status: %w", err)
	}
	return out, nil
}

// Mention is one entry of the mentions method result.
type Mention struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	Content   string `json:"content"`
	StatusURL string `json:"status_url"`
	CreatedAt string `json:"created_at"`
}

func (p *Provider) mentions(ctx context.Context, call domain.Call) (any, error) {
	base, err := instanceOf(call)
	if err != nil {
		return nil, err
	}
	limit := call.IntArg("limit", defaultLimit)
	if limit <= 0 {
		limit = defaultLimit
	}

	var raw []struct {
		ID        string `json:"id"`
		CreatedAt string `json:"created_at"`
		Account   struct {
			Acct string `json:"acct"`
		} `json:"account"`
		Status *struct {
			Content string `json:"content"`
			URL     string `json:"url"`
		} `json:"status"`
	}
	query := url.Values{"types[]": {"mention"}, "limit": {fmt.Sprint(limit)}}
	if err := p.api(base).Get(ctx, "/api/v1/notifications", call.AccessToken, query, &raw); err != nil {
		return nil, fmt.Errorf("mastodon: notifications: %w", err)
	}

	out := make([]Mention, 0, len(raw))
	for _, n := range raw {
		m := Mention{ID: n.ID, From: n.Account.Acct, CreatedAt: n.CreatedAt}
		if n.Status != nil {
			m.Content = n.Status.Content
			m.StatusURL = n.Status.URL
		}
		out = append(out, m)
	}
	return out, nil
}

// ChangeNickname sets the account display name.
func (p *Provider) ChangeNickname(ctx context.Context, call domain.Call, name string) (string, error) {
	base, err := instanceOf(call)
	if err != nil {
		return "", err
	}

	var acct account
	form := url.Values{"display_name": {name}}
	if err := p.api(base).Form(ctx, http.MethodPatch, "/api/v1/accounts/update_credentials", call.AccessToken, form, &acct); err != nil {
		return "", fmt.Errorf("mastodon: update display name: %w", err)
	}
	return acct.DisplayName, nil
}

// ChangePicture downloads the picture and uploads it as the account avatar.
func (p *Provider) ChangePicture(ctx context.Context, call domain.Call, pictureURL string) (string, error) {
	base, err := instanceOf(call)
	if err != nil {
		return "", err
	}

	data, err := p.download(ctx, pictureURL)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	name := path.Base(pictureURL)
	if name == "" || name == "/" || name == "." {
		name = "avatar"
	}
	part, err := mw.CreateFormFile("avatar", name)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, base+"/api/v1/accounts/update_credentials", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var acct account
	if err := p.api(base).Do(req, call.AccessToken, &acct); err != nil {
		return "", fmt.Errorf("mastodon: update avatar: %w", err)
	}
	return acct.Avatar, nil
}

type account struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Avatar      string `json:"avatar"`
}

func (p *Provider) verifyCredentials(ctx context.Context, ext *domain.ExternalInstance, token string) (*account, error) {
	var acct account
	err := p.api(ext.URL).JSON(ctx, http.MethodGet, "/api/v1/accounts/verify_credentials", token, nil, &acct)
	if err != nil {
		return nil, fmt.Errorf("mastodon: verify credentials: %w", err)
	}
	if acct.ID == "" {
		return nil, fmt.Errorf("mastodon: verify credentials returned no account")
	}
	return &acct, nil
}

func (p *Provider) download(ctx context.Context, pictureURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pictureURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("%w: picture url", domain.ErrInvalidInput)
	}
	client := p.cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mastodon: download picture: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("mastodon: download picture: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAvatarBytes+1))
	if err != nil {
		return nil, fmt.Errorf("mastodon: download picture: %w", err)
	}
	if len(data) > maxAvatarBytes {
		return nil, fmt.Errorf("%w: picture larger than 2MB", domain.ErrInvalidInput)
	}
	return data, nil
}

func (p *Provider) flow(ext *domain.ExternalInstance) (*oauthflow.Flow, error) {
	if ext == nil || ext.URL == "" {
		return nil, domain.ErrExternalURLRequired
	}
	base := strings.TrimSuffix(ext.URL, "/")
	return &oauthflow.Flow{
		Config: oauth2.Config{
			ClientID:     ext.ClientID,
			ClientSecret: ext.ClientSecret,
			RedirectURL:  p.cfg.RedirectURL,
			Scopes:       descriptor.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   base + "/oauth/authorize",
				TokenURL:  base + "/oauth/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		HTTPClient: p.cfg.HTTPClient,
	}, nil
}

func (p *Provider) api(base string) *httpx.Client {
	c := httpx.New(ID, base, p.cfg.HTTPClient)
	c.Limiter = p.limiter
	return c
}

func instanceOf(call domain.Call) (string, error) {
	if call.Instance == nil || call.Instance.URL == "" {
		return "", domain.ErrExternalURLRequired
	}
	return strings.TrimSuffix(call.Instance.URL, "/"), nil
}

// normalize checks an instance URL and strips any path.
func normalize(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return "", fmt.Errorf("%w: instance url must be an absolute http(s) url", domain.ErrInvalidInput)
	}
	return u.Scheme + "://" + u.Host, nil
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return u.Host
}
