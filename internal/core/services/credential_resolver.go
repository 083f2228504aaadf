package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/custodia-labs/sercha-connect/internal/core/domain"
	"github.com/custodia-labs/sercha-connect/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-connect/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-connect/internal/logger"
)

// SystemOrgID owns the shared OAuth applications every organization falls back to.
const SystemOrgID = "system"

// LookupEnvFunc reads an environment variable.
type LookupEnvFunc func(key string) (string, bool)

// CredentialResolver computes the ClientInformation of a call.
// Decryption of application secrets happens only here.
type CredentialResolver struct {
	catalog   driving.CredentialCatalog
	apps      driven.OAuthAppStore
	cipher    driven.Cipher
	lookupEnv LookupEnvFunc
}

// Ensure CredentialResolver implements the interface.
var _ driving.CredentialResolver = (*CredentialResolver)(nil)

// NewCredentialResolver creates a resolver reading the process environment.
func NewCredentialResolver(
	catalog driving.CredentialCatalog,
	apps driven.OAuthAppStore,
	cipher driven.Cipher,
) *CredentialResolver {
	return &CredentialResolver{
		catalog:   catalog,
		apps:      apps,
		cipher:    cipher,
		lookupEnv: os.LookupEnv,
	}
}

// WithEnvLookup replaces the environment reader.
func (r *CredentialResolver) WithEnvLookup(fn LookupEnvFunc) *CredentialResolver {
	r.lookupEnv = fn
	return r
}

// Resolve applies the precedence explicit application, organization default,
// system default, environment.
func (r *CredentialResolver) Resolve(
	ctx context.Context,
	orgID, provider string,
	opts driving.ResolveOptions,
) (*domain.ClientInformation, error) {
	fields := r.catalog.FieldsFor(provider)
	if len(fields) == 0 {
		return nil, nil
	}

	app, err := r.findApp(ctx, orgID, provider, opts.OAuthAppID)
	if err != nil {
		return nil, err
	}
	if app != nil {
		logger.Debug("resolved oauth application", "org", orgID, "provider", provider, "app", app.ID)
		return r.fromApp(fields, app, opts.InstanceURL)
	}

	if !opts.AllowEnvFallback {
		return nil, fmt.Errorf("%w: no oauth application for %s", domain.ErrNoCredentialsConfigured, provider)
	}

	info := &domain.ClientInformation{
		Values:      make(map[string]string, len(fields)),
		InstanceURL: opts.InstanceURL,
	}
	for _, f := range fields {
		value, ok := r.lookupEnv(f.Key)
		if !ok || value == "" {
			if f.Required {
				return nil, fmt.Errorf("%w: environment variable %s is not set",
					domain.ErrNoCredentialsConfigured, f.Key)
			}
			continue
		}
		info.Values[f.Key] = value
	}
	logger.Debug("resolved environment credentials", "org", orgID, "provider", provider)
	return info, nil
}

// findApp returns the explicit application if it exists for this provider,
// otherwise the organization default, otherwise the system default.
func (r *CredentialResolver) findApp(
	ctx context.Context,
	orgID, provider, appID string,
) (*domain.OAuthApplication, error) {
	if appID != "" {
		app, err := r.apps.Get(ctx, orgID, appID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			logger.Warn("explicit oauth application not found", "org", orgID, "app", appID)
		case err != nil:
			return nil, fmt.Errorf("loading oauth application: %w", err)
		case app.Provider != provider:
			logger.Warn("oauth application belongs to another provider",
				"org", orgID, "app", appID, "provider", app.Provider)
		default:
			return app, nil
		}
		return nil, nil
	}

	app, err := r.apps.Default(ctx, orgID, provider)
	if err != nil {
		return nil, fmt.Errorf("loading default oauth application: %w", err)
	}
	if app != nil || orgID == SystemOrgID {
		return app, nil
	}

	app, err = r.apps.Default(ctx, SystemOrgID, provider)
	if err != nil {
		return nil, fmt.Errorf("loading system oauth application: %w", err)
	}
	return app, nil
}

// fromApp maps index 0 to the client id, index 1 to the decrypted secret
// and the remaining fields to decrypted extras by key.
func (r *CredentialResolver) fromApp(
	fields []domain.CredentialField,
	app *domain.OAuthApplication,
	instanceURL string,
) (*domain.ClientInformation, error) {
	info := &domain.ClientInformation{
		Values:      make(map[string]string, len(fields)),
		OAuthAppID:  app.ID,
		InstanceURL: instanceURL,
	}

	var extras map[string]string
	if app.ExtraCiphertext != "" {
		plain, err := r.cipher.Decrypt(app.ExtraCiphertext)
		if err != nil {
			return nil, fmt.Errorf("decrypting oauth application fields: %w", err)
		}
		if err := json.Unmarshal([]byte(plain), &extras); err != nil {
			return nil, fmt.Errorf("decoding oauth application fields: %w", err)
		}
	}

	for i, f := range fields {
		switch i {
		case domain.ClientIDFieldIndex:
			info.Values[f.Key] = app.ClientID
		case domain.ClientSecretFieldIndex:
			if app.SecretCiphertext == "" {
				continue
			}
			secret, err := r.cipher.Decrypt(app.SecretCiphertext)
			if err != nil {
				return nil, fmt.Errorf("decrypting oauth application secret: %w", err)
			}
			info.Values[f.Key] = secret
		default:
			if v, ok := extras[f.Key]; ok {
				info.Values[f.Key] = v
			}
		}
	}
	return info, nil
}
