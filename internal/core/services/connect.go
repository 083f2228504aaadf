package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/custodia-labs/sercha-connect/internal/core/domain"
	"github.com/custodia-labs/sercha-connect/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-connect/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-connect/internal/logger"
)

// CorrelationTTL bounds the lifetime of every connect-flow correlation entry.
const CorrelationTTL = 300 * time.Second

// Correlation key prefixes, each followed by the state token.
const (
	keyLogin    = "login:"
	keyRefresh  = "refresh:"
	keyExternal = "external:"
	keyOAuthApp = "oauth-app:"
)

// customFieldsVerifier stands in for the code verifier of custom-field
// providers, which never go through an authorize redirect.
const customFieldsVerifier = "none"

// ConnectOptions configures the connect flow.
type ConnectOptions struct {
	// AllowedProviders limits which providers can be connected. Empty allows all.
	AllowedProviders []string
	// Metered enables the trial reconnect guard.
	Metered bool
}

// ConnectFlow correlates the authorize and callback halves of a connection
// attempt through the ephemeral store and persists the resulting connection.
type ConnectFlow struct {
	registry    *ProviderRegistry
	resolver    driving.CredentialResolver
	connections driven.ConnectionStore
	ephemeral   driven.EphemeralStore
	cipher      driven.Cipher
	opts        ConnectOptions
	now         func() time.Time
}

// Ensure ConnectFlow implements the interface.
var _ driving.ConnectService = (*ConnectFlow)(nil)

// NewConnectFlow creates a connect flow orchestrator.
func NewConnectFlow(
	registry *ProviderRegistry,
	resolver driving.CredentialResolver,
	connections driven.ConnectionStore,
	ephemeral driven.EphemeralStore,
	cipher driven.Cipher,
	opts ConnectOptions,
) *ConnectFlow {
	return &ConnectFlow{
		registry:    registry,
		resolver:    resolver,
		connections: connections,
		ephemeral:   ephemeral,
		cipher:      cipher,
		opts:        opts,
		now:         time.Now,
	}
}

// BeginAuthorize validates the request and returns the authorize URL.
// Failures after validation are reported as domain.ErrAuthorizeFailed.
func (f *ConnectFlow) BeginAuthorize(
	ctx context.Context,
	orgID, provider string,
	input driving.BeginAuthorizeInput,
) (string, error) {
	desc, err := f.allowedDescriptor(provider)
	if err != nil {
		return "", err
	}
	if desc.RequiresExternalURL && input.ExternalURL == "" {
		return "", domain.ErrExternalURLRequired
	}

	url, err := f.authorizeURL(ctx, orgID, desc, input)
	if err != nil {
		logger.Warn("authorize url generation failed", "org", orgID, "provider", provider, "error", err)
		return "", fmt.Errorf("%w: %w", domain.ErrAuthorizeFailed, err)
	}
	return url, nil
}

func (f *ConnectFlow) authorizeURL(
	ctx context.Context,
	orgID string,
	desc domain.ProviderDescriptor,
	input driving.BeginAuthorizeInput,
) (string, error) {
	var ext *domain.ExternalInstance
	if desc.RequiresExternalURL {
		var err error
		if ext, err = f.resolveExternal(ctx, desc.ID, input.ExternalURL); err != nil {
			return "", err
		}
	}

	appID := input.OAuthAppID
	if appID == "" && input.RefreshID != "" {
		existing, err := f.connections.GetByInternalID(ctx, orgID, desc.ID, input.RefreshID)
		if err != nil {
			return "", fmt.Errorf("loading connection to refresh: %w", err)
		}
		if existing != nil {
			appID = existing.OAuthAppID
		}
	}

	info, err := f.resolver.Resolve(ctx, orgID, desc.ID, driving.ResolveOptions{
		OAuthAppID:       appID,
		InstanceURL:      instanceURL(ext),
		AllowEnvFallback: true,
	})
	if err != nil {
		return "", err
	}

	p, err := f.registry.Instantiate(desc.ID, info)
	if err != nil {
		return "", err
	}
	auth, err := p.GenerateAuthURL(ctx, ext)
	if err != nil {
		return "", fmt.Errorf("generating authorize url: %w", err)
	}
	if auth == nil || auth.State == "" {
		return "", errors.New("provider returned no state")
	}

	if err := f.ephemeral.Set(ctx, keyLogin+auth.State, auth.CodeVerifier, CorrelationTTL); err != nil {
		return "", fmt.Errorf("storing code verifier: %w", err)
	}
	if input.RefreshID != "" {
		if err := f.ephemeral.Set(ctx, keyRefresh+auth.State, input.RefreshID, CorrelationTTL); err != nil {
			return "", fmt.Errorf("storing refresh target: %w", err)
		}
	}
	if ext != nil {
		raw, err := json.Marshal(ext)
		if err != nil {
			return "", fmt.Errorf("encoding external instance: %w", err)
		}
		if err := f.ephemeral.Set(ctx, keyExternal+auth.State, string(raw), CorrelationTTL); err != nil {
			return "", fmt.Errorf("storing external instance: %w", err)
		}
	}
	if info != nil && info.OAuthAppID != "" {
		if err := f.ephemeral.Set(ctx, keyOAuthApp+auth.State, info.OAuthAppID, CorrelationTTL); err != nil {
			return "", fmt.Errorf("storing oauth application: %w", err)
		}
	}

	logger.Debug("authorize url generated", "org", orgID, "provider", desc.ID, "refresh", input.RefreshID != "")
	return auth.URL, nil
}

func (f *ConnectFlow) resolveExternal(ctx context.Context, provider, url string) (*domain.ExternalInstance, error) {
	bare, err := f.registry.Instantiate(provider, nil)
	if err != nil {
		return nil, err
	}
	resolver, ok := bare.(driven.ExternalURLResolver)
	if !ok {
		return nil, fmt.Errorf("%w: external url", domain.ErrCapabilityUnsupported)
	}
	ext, err := resolver.ExternalURL(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("resolving external url: %w", err)
	}
	if ext == nil {
		ext = &domain.ExternalInstance{}
	}
	if ext.URL == "" {
		ext.URL = url
	}
	return ext, nil
}

// correlation holds the entries recovered for a state token.
type correlation struct {
	verifier   string
	hasLogin   bool
	refreshID  string
	external   string
	oauthAppID string
}

// takeCorrelation reads and deletes all four entries of a state, so none
// can be replayed even when the flow fails afterwards.
func (f *ConnectFlow) takeCorrelation(ctx context.Context, state string) (correlation, error) {
	var c correlation
	var errs []error
	take := func(prefix string) (string, bool) {
		v, ok, err := f.ephemeral.Take(ctx, prefix+state)
		if err != nil {
			errs = append(errs, err)
		}
		return v, ok
	}

	c.verifier, c.hasLogin = take(keyLogin)
	c.refreshID, _ = take(keyRefresh)
	c.external, _ = take(keyExternal)
	c.oauthAppID, _ = take(keyOAuthApp)

	if len(errs) > 0 {
		return c, fmt.Errorf("reading correlation state: %w", errors.Join(errs...))
	}
	return c, nil
}

// CompleteAuthorize exchanges the callback payload and upserts the connection.
// Nothing is written when any step fails.
func (f *ConnectFlow) CompleteAuthorize(
	ctx context.Context,
	org domain.Organization,
	provider string,
	input driving.CompleteAuthorizeInput,
) (*domain.Connection, error) {
	desc, err := f.allowedDescriptor(provider)
	if err != nil {
		return nil, err
	}

	var corr correlation
	if input.State != "" {
		if corr, err = f.takeCorrelation(ctx, input.State); err != nil {
			return nil, err
		}
	}

	verifier := corr.verifier
	if desc.SupportsCustomFields {
		verifier = customFieldsVerifier
	} else if !corr.hasLogin {
		return nil, domain.ErrInvalidState
	}

	refreshID := corr.refreshID
	if refreshID == "" {
		refreshID = input.RefreshID
	}

	var existing *domain.Connection
	if refreshID != "" {
		if existing, err = f.connections.GetByInternalID(ctx, org.ID, desc.ID, refreshID); err != nil {
			return nil, fmt.Errorf("loading connection to refresh: %w", err)
		}
	}

	var ext *domain.ExternalInstance
	if corr.external != "" {
		ext = &domain.ExternalInstance{}
		if err := json.Unmarshal([]byte(corr.external), ext); err != nil {
			return nil, fmt.Errorf("decoding external instance: %w", err)
		}
	}

	appID := firstNonEmpty(corr.oauthAppID, input.OAuthAppID)
	if appID == "" && existing != nil {
		appID = existing.OAuthAppID
	}

	info, err := f.resolver.Resolve(ctx, org.ID, desc.ID, driving.ResolveOptions{
		OAuthAppID:       appID,
		InstanceURL:      instanceURL(ext),
		AllowEnvFallback: true,
	})
	if err != nil {
		return nil, err
	}

	p, err := f.registry.Instantiate(desc.ID, info)
	if err != nil {
		return nil, err
	}

	result, err := p.Authenticate(ctx, domain.AuthParams{
		Code:            input.Code,
		CodeVerifier:    verifier,
		RefreshTargetID: refreshID,
	}, ext)
	if err != nil {
		if errors.Is(err, domain.ErrNotEnoughScopes) {
			return nil, err
		}
		return nil, fmt.Errorf("authenticating with %s: %w", desc.ID, err)
	}

	if refreshID != "" && result != nil {
		if rc, ok := p.(driven.Reconnector); ok {
			if result, err = rc.Reconnect(ctx, refreshID, result); err != nil {
				return nil, fmt.Errorf("reconnecting %s: %w", desc.ID, err)
			}
		}
	}

	if result == nil || result.ID == "" {
		return nil, &domain.ScopesError{Message: "Invalid API key"}
	}
	if refreshID != "" && result.ID != refreshID {
		return nil, domain.ErrAccountMismatch
	}

	if f.opts.Metered && org.Trialing {
		seen, err := f.connections.SeenBefore(ctx, org.ID, desc.ID, result.ID)
		if err != nil {
			return nil, fmt.Errorf("checking previous connections: %w", err)
		}
		if seen {
			return nil, domain.ErrPreviouslyConnected
		}
	}

	details, err := f.instanceDetails(desc, ext, input.Code)
	if err != nil {
		return nil, err
	}

	now := f.now()
	conn := &domain.Connection{
		OrgID:                 org.ID,
		Provider:              desc.ID,
		InternalID:            result.ID,
		Name:                  displayName(result),
		Picture:               result.Picture,
		Username:              result.Username,
		AccessToken:           result.AccessToken,
		RefreshToken:          result.RefreshToken,
		TokenExpiresAt:        result.ExpiresAt(now),
		OneTimeToken:          desc.IsOneTimeToken,
		InBetweenSteps:        desc.InBetweenSteps && refreshID == "",
		Status:                domain.ConnectionActive,
		CustomInstanceDetails: details,
		Settings:              result.Settings,
		Timezone:              input.Timezone,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if info != nil {
		conn.OAuthAppID = info.OAuthAppID
	}

	stored, err := f.connections.Upsert(ctx, conn)
	if err != nil {
		return nil, fmt.Errorf("saving connection: %w", err)
	}
	logger.Info("connection saved", "org", org.ID, "provider", desc.ID, "connection", stored.ID)
	return stored, nil
}

// allowedDescriptor returns the descriptor of a registered, allowed provider.
func (f *ConnectFlow) allowedDescriptor(provider string) (domain.ProviderDescriptor, error) {
	desc, err := f.registry.Describe(provider)
	if err != nil {
		return desc, err
	}
	if !f.registry.IsAllowed(provider, f.opts.AllowedProviders) {
		return desc, fmt.Errorf("%w: %s", domain.ErrProviderNotAllowed, provider)
	}
	return desc, nil
}

// instanceDetails encrypts the external instance, or for custom-field
// providers the decoded field payload.
func (f *ConnectFlow) instanceDetails(
	desc domain.ProviderDescriptor,
	ext *domain.ExternalInstance,
	code string,
) (string, error) {
	var plain string
	switch {
	case ext != nil:
		raw, err := json.Marshal(ext)
		if err != nil {
			return "", fmt.Errorf("encoding external instance: %w", err)
		}
		plain = string(raw)
	case desc.SupportsCustomFields:
		raw, err := base64.StdEncoding.DecodeString(code)
		if err != nil {
			return "", fmt.Errorf("%w: custom fields must be base64 encoded", domain.ErrInvalidInput)
		}
		plain = string(raw)
	default:
		return "", nil
	}

	enc, err := f.cipher.Encrypt(plain)
	if err != nil {
		return "", fmt.Errorf("encrypting instance details: %w", err)
	}
	return enc, nil
}

// displayName falls back to the username before its first dot, then to a
// truncated account id.
func displayName(r *domain.AuthResult) string {
	if name := strings.TrimSpace(r.Name); name != "" {
		return name
	}
	if r.Username != "" {
		before, _, _ := strings.Cut(r.Username, ".")
		if before = strings.TrimSpace(before); before != "" {
			return before
		}
	}
	id := r.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return "Channel_" + id
}

func instanceURL(ext *domain.ExternalInstance) string {
	if ext == nil {
		return ""
	}
	return ext.URL
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
