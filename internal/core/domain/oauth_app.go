package domain

import "time"

// AppStatus is the lifecycle state of an OAuth application.
type AppStatus string

const (
	AppStatusActive  AppStatus = "active"
	AppStatusDeleted AppStatus = "deleted"
)

// OAuthApplication is an organization-owned OAuth client registration for a provider.
// One application can back many connections of the same provider.
//
// At most one active application per (organization, provider) has IsDefault set.
type OAuthApplication struct {
	// ID is the unique identifier (UUID).
	ID string `json:"id"`
	// OrgID is the owning organization.
	OrgID string `json:"org_id"`
	// Provider is the provider identifier.
	Provider string `json:"provider"`
	// Name is the user-friendly name (e.g. "Marketing YouTube app").
	Name string `json:"name"`

	// ClientID is stored in plaintext.
	ClientID string `json:"client_id"`
	// SecretCiphertext is the encrypted client secret.
	SecretCiphertext string `json:"-"`
	// ExtraCiphertext is the encrypted JSON map of fields beyond the secret.
	ExtraCiphertext string `json:"-"`

	IsDefault bool      `json:"is_default"`
	Status    AppStatus `json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	// DeletedAt is set together with AppStatusDeleted.
	DeletedAt time.Time `json:"deleted_at,omitempty"`
}

// Active reports whether the application can be used for resolution.
func (a *OAuthApplication) Active() bool {
	return a.Status != AppStatusDeleted
}

// OAuthAppView is the client-facing projection of an OAuthApplication.
// Secrets are never included.
type OAuthAppView struct {
	ID        string    `json:"id"`
	Provider  string    `json:"provider"`
	Name      string    `json:"name"`
	ClientID  string    `json:"client_id"`
	HasSecret bool      `json:"has_secret"`
	ExtraKeys []string  `json:"extra_keys,omitempty"`
	IsDefault bool      `json:"is_default"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
