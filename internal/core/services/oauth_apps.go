package services

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/sercha-connect/internal/core/domain"
	"github.com/custodia-labs/sercha-connect/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-connect/internal/core/ports/driving"
)

// Ensure OAuthAppService implements the interface.
var _ driving.OAuthAppService = (*OAuthAppService)(nil)

// OAuthAppService manages organization OAuth applications.
// The client id is stored in plaintext; the secret and extra fields are
// encrypted before they reach the store.
type OAuthAppService struct {
	store   driven.OAuthAppStore
	catalog *CredentialCatalog
	cipher  driven.Cipher
	now     func() time.Time
}

// NewOAuthAppService creates a new OAuth application service.
func NewOAuthAppService(store driven.OAuthAppStore, catalog *CredentialCatalog, cipher driven.Cipher) *OAuthAppService {
	return &OAuthAppService{
		store:   store,
		catalog: catalog,
		cipher:  cipher,
		now:     time.Now,
	}
}

// Create validates, encrypts and stores a new application.
func (s *OAuthAppService) Create(
	ctx context.Context,
	orgID string,
	input driving.OAuthAppInput,
) (*domain.OAuthAppView, error) {
	if orgID == "" || strings.TrimSpace(input.Name) == "" {
		return nil, fmt.Errorf("%w: organization and name are required", domain.ErrInvalidInput)
	}
	input.Fields = trimFields(input.Fields)
	if err := s.catalog.Validate(input.Provider, input.Fields); err != nil {
		return nil, err
	}

	fields := s.catalog.FieldsFor(input.Provider)
	now := s.now()
	app := &domain.OAuthApplication{
		ID:        uuid.New().String(),
		OrgID:     orgID,
		Provider:  input.Provider,
		Name:      strings.TrimSpace(input.Name),
		ClientID:  input.Fields[fields[domain.ClientIDFieldIndex].Key],
		IsDefault: input.IsDefault != nil && *input.IsDefault,
		Status:    domain.AppStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.applySecrets(app, fields, input.Fields, nil); err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, app); err != nil {
		return nil, fmt.Errorf("creating oauth application: %w", err)
	}
	return s.view(app)
}

// Get returns an application view.
func (s *OAuthAppService) Get(ctx context.Context, orgID, id string) (*domain.OAuthAppView, error) {
	app, err := s.store.Get(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	return s.view(app)
}

// List returns application views, optionally filtered by provider.
func (s *OAuthAppService) List(ctx context.Context, orgID, provider string) ([]domain.OAuthAppView, error) {
	apps, err := s.store.List(ctx, orgID, provider)
	if err != nil {
		return nil, err
	}
	views := make([]domain.OAuthAppView, 0, len(apps))
	for i := range apps {
		v, err := s.view(&apps[i])
		if err != nil {
			return nil, err
		}
		views = append(views, *v)
	}
	return views, nil
}

// Update changes name, fields and the default flag. Omitted fields keep
// their stored value.
func (s *OAuthAppService) Update(
	ctx context.Context,
	orgID, id string,
	input driving.OAuthAppInput,
) (*domain.OAuthAppView, error) {
	app, err := s.store.Get(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if input.Provider != "" && input.Provider != app.Provider {
		return nil, fmt.Errorf("%w: provider cannot be changed", domain.ErrInvalidInput)
	}

	input.Fields = trimFields(input.Fields)
	fields := s.catalog.FieldsFor(app.Provider)
	for key, value := range input.Fields {
		idx := slices.IndexFunc(fields, func(f domain.CredentialField) bool { return f.Key == key })
		if idx < 0 {
			return nil, fmt.Errorf("%w: unknown field %s for %s", domain.ErrInvalidInput, key, app.Provider)
		}
		if fields[idx].Required && strings.TrimSpace(value) == "" {
			return nil, fmt.Errorf("%w: %s cannot be empty", domain.ErrInvalidInput, key)
		}
	}

	if name := strings.TrimSpace(input.Name); name != "" {
		app.Name = name
	}
	if v, ok := input.Fields[fields[domain.ClientIDFieldIndex].Key]; ok {
		app.ClientID = v
	}

	existing, err := s.decryptExtras(app)
	if err != nil {
		return nil, err
	}
	if err := s.applySecrets(app, fields, input.Fields, existing); err != nil {
		return nil, err
	}

	if input.IsDefault != nil {
		app.IsDefault = *input.IsDefault
	}
	app.UpdatedAt = s.now()
	if err := s.store.Update(ctx, app); err != nil {
		return nil, fmt.Errorf("updating oauth application: %w", err)
	}
	return s.view(app)
}

// SetDefault flags the application as its provider's default.
func (s *OAuthAppService) SetDefault(ctx context.Context, orgID, id string) error {
	return s.store.SetDefault(ctx, orgID, id)
}

// Delete soft-deletes the application. Connections referencing it fall
// back to the default application or the environment on their next call.
func (s *OAuthAppService) Delete(ctx context.Context, orgID, id string) error {
	return s.store.SoftDelete(ctx, orgID, id)
}

// trimFields strips surrounding whitespace pasted along with credentials.
func trimFields(values map[string]string) map[string]string {
	if values == nil {
		return nil
	}
	out := make(map[string]string, len(values))
	for k, v := range values {
		out[k] = strings.TrimSpace(v)
	}
	return out
}

// applySecrets encrypts the secret field and merges extra fields over existing.
func (s *OAuthAppService) applySecrets(
	app *domain.OAuthApplication,
	fields []domain.CredentialField,
	values map[string]string,
	existing map[string]string,
) error {
	if len(fields) > domain.ClientSecretFieldIndex {
		if secret, ok := values[fields[domain.ClientSecretFieldIndex].Key]; ok && secret != "" {
			enc, err := s.cipher.Encrypt(secret)
			if err != nil {
				return fmt.Errorf("encrypting client secret: %w", err)
			}
			app.SecretCiphertext = enc
		}
	}

	extras := make(map[string]string, len(existing))
	for k, v := range existing {
		extras[k] = v
	}
	for _, f := range fields[min(len(fields), domain.ClientSecretFieldIndex+1):] {
		if v, ok := values[f.Key]; ok {
			extras[f.Key] = v
		}
	}
	if len(extras) == 0 {
		app.ExtraCiphertext = ""
		return nil
	}

	raw, err := json.Marshal(extras)
	if err != nil {
		return fmt.Errorf("encoding extra fields: %w", err)
	}
	enc, err := s.cipher.Encrypt(string(raw))
	if err != nil {
		return fmt.Errorf("encrypting extra fields: %w", err)
	}
	app.ExtraCiphertext = enc
	return nil
}

func (s *OAuthAppService) decryptExtras(app *domain.OAuthApplication) (map[string]string, error) {
	if app.ExtraCiphertext == "" {
		return nil, nil
	}
	plain, err := s.cipher.Decrypt(app.ExtraCiphertext)
	if err != nil {
		return nil, fmt.Errorf("decrypting extra fields: %w", err)
	}
	var extras map[string]string
	if err := json.Unmarshal([]byte(plain), &extras); err != nil {
		return nil, fmt.Errorf("decoding extra fields: %w", err)
	}
	return extras, nil
}

// view projects an application without secrets.
func (s *OAuthAppService) view(app *domain.OAuthApplication) (*domain.OAuthAppView, error) {
	extras, err := s.decryptExtras(app)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(extras))
	for k := range extras {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	return &domain.OAuthAppView{
		ID:        app.ID,
		Provider:  app.Provider,
		Name:      app.Name,
		ClientID:  app.ClientID,
		HasSecret: app.SecretCiphertext != "",
		ExtraKeys: keys,
		IsDefault: app.IsDefault,
		CreatedAt: app.CreatedAt,
		UpdatedAt: app.UpdatedAt,
	}, nil
}
