package domain

import "time"

// AuthURL is what a provider returns when asked to start an authorization.
type AuthURL struct {
	URL          string
	CodeVerifier string
	State        string
}

// AuthParams is the callback payload handed to a provider.
type AuthParams struct {
	// Code is the authorization code, or the base64 custom-field payload.
	Code         string
	CodeVerifier string
	// RefreshTargetID is the internal id of the connection being re-authenticated.
	RefreshTargetID string
}

// AuthResult is the normalized authentication result of a provider.
type AuthResult struct {
	// ID is the provider-side account id. Must be non-empty.
	ID           string
	Name         string
	Username     string
	Picture      string
	AccessToken  string
	RefreshToken string
	// ExpiresIn is the access token lifetime in seconds. Zero means unknown.
	ExpiresIn int64
	Settings  map[string]any
}

// ExpiresAt converts ExpiresIn to an absolute time relative to now.
// Returns the zero time when the lifetime is unknown.
func (r *AuthResult) ExpiresAt(now time.Time) time.Time {
	if r.ExpiresIn <= 0 {
		return time.Time{}
	}
	return now.Add(time.Duration(r.ExpiresIn) * time.Second)
}

// TokenUpdate converts a refresh result into a store update.
func (r *AuthResult) TokenUpdate(now time.Time) TokenUpdate {
	return TokenUpdate{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		ExpiresAt:    r.ExpiresAt(now),
		Settings:     r.Settings,
	}
}
