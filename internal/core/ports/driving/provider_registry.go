package driving

import "github.com/custodia-labs/sercha-connect/internal/core/domain"

// ProviderRegistry exposes the static provider table.
type ProviderRegistry interface {
	// ListIdentifiers returns provider identifiers in registration order.
	ListIdentifiers() []string

	// Describe returns a provider descriptor.
	// Returns domain.ErrProviderNotFound for unknown identifiers.
	Describe(identifier string) (domain.ProviderDescriptor, error)

	// Methods returns the declarative method table of a provider.
	Methods(identifier string) ([]domain.MethodSpec, error)

	// AllMethods returns every provider's method table in registration order.
	AllMethods() []domain.MethodSpec

	// CustomFields returns the user-supplied fields of custom-field providers.
	// Returns nil for providers without the capability.
	CustomFields(identifier string) ([]domain.CustomField, error)
}

// CredentialCatalog declares the app-level credential fields of each provider.
type CredentialCatalog interface {
	// FieldsFor returns the ordered credential fields. Empty for providers
	// that need no app-level credentials.
	FieldsFor(identifier string) []domain.CredentialField
}
