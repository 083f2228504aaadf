package services

import (
	"fmt"
	"slices"

	"github.com/custodia-labs/sercha-connect/internal/core/domain"
	"github.com/custodia-labs/sercha-connect/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-connect/internal/core/ports/driving"
)

// ProviderRegistry is the static provider table. It is built once at
// startup and is read-only afterwards.
type ProviderRegistry struct {
	order   []string
	entries map[string]driven.ProviderRegistration
}

// Ensure ProviderRegistry implements the interface.
var _ driving.ProviderRegistry = (*ProviderRegistry)(nil)

// NewProviderRegistry builds a registry from provider registrations.
// Later registrations with a duplicate identifier are rejected.
func NewProviderRegistry(registrations ...driven.ProviderRegistration) (*ProviderRegistry, error) {
	r := &ProviderRegistry{
		entries: make(map[string]driven.ProviderRegistration, len(registrations)),
	}
	for _, reg := range registrations {
		id := reg.Descriptor.ID
		if id == "" || reg.New == nil {
			return nil, fmt.Errorf("%w: provider registration needs an id and a factory", domain.ErrInvalidInput)
		}
		if _, exists := r.entries[id]; exists {
			return nil, fmt.Errorf("%w: duplicate provider %q", domain.ErrInvalidInput, id)
		}
		for i := range reg.Methods {
			reg.Methods[i].Provider = id
		}
		r.entries[id] = reg
		r.order = append(r.order, id)
	}
	return r, nil
}

// ListIdentifiers returns provider identifiers in registration order.
func (r *ProviderRegistry) ListIdentifiers() []string {
	return slices.Clone(r.order)
}

// Describe returns a provider descriptor.
func (r *ProviderRegistry) Describe(identifier string) (domain.ProviderDescriptor, error) {
	reg, ok := r.entries[identifier]
	if !ok {
		return domain.ProviderDescriptor{}, fmt.Errorf("%w: %s", domain.ErrProviderNotFound, identifier)
	}
	return reg.Descriptor, nil
}

// Instantiate creates a fresh provider instance carrying info.
// Instances are never cached since they hold call-scoped credentials.
func (r *ProviderRegistry) Instantiate(identifier string, info *domain.ClientInformation) (driven.Provider, error) {
	reg, ok := r.entries[identifier]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrProviderNotFound, identifier)
	}
	return reg.New(info), nil
}

// Methods returns the declarative method table of a provider.
func (r *ProviderRegistry) Methods(identifier string) ([]domain.MethodSpec, error) {
	reg, ok := r.entries[identifier]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrProviderNotFound, identifier)
	}
	return slices.Clone(reg.Methods), nil
}

// AllMethods returns every provider's method table in registration order.
func (r *ProviderRegistry) AllMethods() []domain.MethodSpec {
	var all []domain.MethodSpec
	for _, id := range r.order {
		all = append(all, r.entries[id].Methods...)
	}
	return all
}

// CustomFields returns the user-supplied fields of custom-field providers.
func (r *ProviderRegistry) CustomFields(identifier string) ([]domain.CustomField, error) {
	p, err := r.Instantiate(identifier, nil)
	if err != nil {
		return nil, err
	}
	if cf, ok := p.(driven.CustomFieldsProvider); ok {
		return cf.CustomFields(), nil
	}
	return nil, nil
}

// IsAllowed reports whether a registered provider may be connected.
// An empty allow list permits every registered provider.
func (r *ProviderRegistry) IsAllowed(identifier string, allowed []string) bool {
	if _, ok := r.entries[identifier]; !ok {
		return false
	}
	return len(allowed) == 0 || slices.Contains(allowed, identifier)
}
