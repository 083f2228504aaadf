package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// Registry Errors.

	// ErrProviderNotFound indicates an unknown provider identifier.
	ErrProviderNotFound = errors.New("provider not found")

	// ErrProviderNotAllowed indicates the provider is registered but disabled for this deployment.
	ErrProviderNotAllowed = errors.New("provider not allowed")

	// ErrCapabilityUnsupported indicates the provider does not implement an optional capability.
	ErrCapabilityUnsupported = errors.New("capability not supported by provider")

	// Credential Errors.

	// ErrNoCredentialsConfigured indicates no OAuth application matched and the
	// environment fallback was disallowed or incomplete.
	ErrNoCredentialsConfigured = errors.New("no credentials configured")

	// Connect Flow Errors.

	// ErrExternalURLRequired indicates the provider needs a user-supplied instance URL.
	ErrExternalURLRequired = errors.New("missing external url")

	// ErrInvalidState indicates the correlation entry is missing or expired.
	// The user must restart the connect flow.
	ErrInvalidState = errors.New("invalid state")

	// ErrNotEnoughScopes indicates the provider rejected the authorization
	// or granted insufficient permissions.
	ErrNotEnoughScopes = errors.New("not enough scopes")

	// ErrAccountMismatch indicates a refresh authenticated a different account
	// than the one being refreshed.
	ErrAccountMismatch = errors.New("please refresh the channel that needs to be refreshed")

	// ErrPreviouslyConnected indicates a trialing organization tried to
	// reconnect an account it has already connected before.
	ErrPreviouslyConnected = errors.New("account was previously connected")

	// ErrAuthorizeFailed is returned when the authorize URL could not be generated.
	ErrAuthorizeFailed = errors.New("authorize url generation failed")

	// Invocation Errors.

	// ErrTokenExpired is the signal a provider returns when the access token
	// is no longer accepted. It is consumed by the invocation engine.
	ErrTokenExpired = errors.New("token expired")

	// ErrReauthenticationRequired indicates refresh failed and the connection was disabled.
	ErrReauthenticationRequired = errors.New("reauthentication required")

	// ErrOperationUnavailable is the generic failure of an invocation.
	ErrOperationUnavailable = errors.New("operation unavailable")

	// ErrMethodNotFound indicates the provider does not expose the requested method.
	ErrMethodNotFound = errors.New("method not found")

	// ErrConnectionNotFound indicates the connection does not exist for the organization.
	ErrConnectionNotFound = errors.New("connection not found")

	// ErrConnectionDisabled indicates the connection exists but cannot be used.
	ErrConnectionDisabled = errors.New("connection disabled")
)

// ScopesError carries the message a provider returned when it refused an authorization.
type ScopesError struct {
	Message string
}

func (e *ScopesError) Error() string {
	if e.Message == "" {
		return ErrNotEnoughScopes.Error()
	}
	return ErrNotEnoughScopes.Error() + ": " + e.Message
}

// Is lets errors.Is match ErrNotEnoughScopes.
func (e *ScopesError) Is(target error) bool {
	return target == ErrNotEnoughScopes
}
