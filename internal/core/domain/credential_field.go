package domain

// FieldKind controls how a credential field is collected and stored.
type FieldKind string

const (
	// FieldKindText is stored in plaintext.
	FieldKindText FieldKind = "text"
	// FieldKindSecret is masked on input and encrypted at rest.
	FieldKindSecret FieldKind = "secret"
)

// CredentialField declares one app-level credential of a provider.
// Position 0 is the client id, position 1 the client secret, the rest are
// provider-specific extras.
type CredentialField struct {
	// Key doubles as the environment variable name for the fallback.
	Key      string    `json:"key"`
	Label    string    `json:"label"`
	Kind     FieldKind `json:"kind"`
	Required bool      `json:"required"`
}

// Positions of the conventional fields within a provider's field list.
const (
	ClientIDFieldIndex     = 0
	ClientSecretFieldIndex = 1
)

// ClientInformation is the per-call resolved credential set.
// It is derived fresh from an OAuthApplication or the environment and never persisted.
type ClientInformation struct {
	// Values maps credential field key to resolved value.
	Values map[string]string
	// OAuthAppID is empty when the values came from the environment.
	OAuthAppID string
	// InstanceURL is set for self-hosted provider variants.
	InstanceURL string
}

// Value returns the resolved value for a field key, or "" when unset.
func (c *ClientInformation) Value(key string) string {
	if c == nil || c.Values == nil {
		return ""
	}
	return c.Values[key]
}

// FromEnvironment reports whether the values came from environment variables.
func (c *ClientInformation) FromEnvironment() bool {
	return c != nil && c.OAuthAppID == ""
}
