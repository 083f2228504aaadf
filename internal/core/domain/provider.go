package domain

// ProviderDescriptor describes a platform integration and the optional
// behaviour it supports. Descriptors are defined at process start and never change.
type ProviderDescriptor struct {
	// ID is the unique provider identifier (e.g. "youtube", "linkedin-page").
	ID string `json:"id"`
	// Name is the display name.
	Name string `json:"name"`

	// SupportsCustomFields means the user supplies fields (e.g. an API key)
	// instead of going through an OAuth redirect.
	SupportsCustomFields bool `json:"supports_custom_fields"`
	// RequiresExternalURL means the API base URL is user supplied (self-hosted instances).
	RequiresExternalURL bool `json:"requires_external_url"`
	// IsOneTimeToken means the access token never expires and cannot be refreshed.
	IsOneTimeToken bool `json:"is_one_time_token"`
	// SupportsNicknameChange means the account display name can be changed remotely.
	SupportsNicknameChange bool `json:"supports_nickname_change"`
	// SupportsPictureChange means the account picture can be changed remotely.
	SupportsPictureChange bool `json:"supports_picture_change"`
	// RefreshIsSlow means a refreshed token needs time before the platform accepts it.
	RefreshIsSlow bool `json:"refresh_is_slow"`
	// InBetweenSteps means a new connection needs a manual setup step before use.
	InBetweenSteps bool `json:"in_between_steps"`

	// Scopes are the OAuth scopes requested during authorization.
	Scopes []string `json:"scopes,omitempty"`
}

// CustomField is a user-facing input declared by custom-field providers.
type CustomField struct {
	Key        string    `json:"key"`
	Label      string    `json:"label"`
	Kind       FieldKind `json:"kind"`
	Validation string    `json:"validation,omitempty"`
}

// ExternalInstance describes a self-hosted provider instance.
// It is serialized into the correlation store during the connect flow and
// stored encrypted on the connection afterwards.
type ExternalInstance struct {
	URL          string `json:"instanceUrl"`
	ClientID     string `json:"client_id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`
}
