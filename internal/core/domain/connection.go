package domain

import "time"

// ConnectionStatus is the lifecycle state of a connection.
type ConnectionStatus string

const (
	ConnectionActive   ConnectionStatus = "active"
	ConnectionDisabled ConnectionStatus = "disabled"
	// ConnectionDeleted is a soft delete. Scheduled work may still reference the record.
	ConnectionDeleted ConnectionStatus = "deleted"
)

// Connection is an organization's authenticated account on a provider.
type Connection struct {
	// ID is the unique identifier (UUID).
	ID    string `json:"id"`
	OrgID string `json:"org_id"`
	// Provider is the provider identifier.
	Provider string `json:"provider"`
	// InternalID is the provider-side account identity.
	InternalID string `json:"internal_id"`

	Name     string `json:"name"`
	Picture  string `json:"picture,omitempty"`
	Username string `json:"username,omitempty"`

	AccessToken    string    `json:"-"`
	RefreshToken   string    `json:"-"`
	TokenExpiresAt time.Time `json:"token_expires_at,omitempty"`
	// OneTimeToken tokens are never refreshed.
	OneTimeToken bool `json:"one_time_token"`

	// InBetweenSteps marks a connection that needs a manual setup step before use.
	InBetweenSteps bool `json:"in_between_steps"`
	// RefreshNeeded is set when token refresh failed and the user must reconnect.
	RefreshNeeded bool             `json:"refresh_needed"`
	Status        ConnectionStatus `json:"status"`

	// OAuthAppID is empty when environment credentials were used.
	OAuthAppID string `json:"oauth_app_id,omitempty"`
	// CustomInstanceDetails is the encrypted instance descriptor or custom fields.
	CustomInstanceDetails string `json:"-"`
	// Settings is the provider-specific additional settings blob.
	Settings map[string]any `json:"settings,omitempty"`
	// Timezone is the offset in minutes supplied at connect time.
	Timezone int `json:"timezone"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	DeletedAt time.Time `json:"deleted_at,omitempty"`
}

// Usable reports whether the connection can serve invocations.
func (c *Connection) Usable() bool {
	return c.Status == ConnectionActive && !c.InBetweenSteps && !c.RefreshNeeded
}

// TokenUpdate is the result of a successful refresh.
type TokenUpdate struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	// Settings replaces the stored settings when non-nil.
	Settings map[string]any
}

// Organization is the tenant a request is made for.
type Organization struct {
	ID string
	// Trialing organizations are subject to the reconnect guard on metered deployments.
	Trialing bool
}
