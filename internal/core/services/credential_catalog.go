package services

import (
	"fmt"
	"slices"
	"strings"

	"github.com/custodia-labs/sercha-connect/internal/core/domain"
	"github.com/custodia-labs/sercha-connect/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-connect/internal/core/ports/driving"
)

// CredentialCatalog is the static per-provider credential field declaration.
type CredentialCatalog struct {
	fields map[string][]domain.CredentialField
}

// Ensure CredentialCatalog implements the interface.
var _ driving.CredentialCatalog = (*CredentialCatalog)(nil)

// NewCredentialCatalog collects the field declarations of the registrations.
func NewCredentialCatalog(registrations ...driven.ProviderRegistration) *CredentialCatalog {
	c := &CredentialCatalog{fields: make(map[string][]domain.CredentialField, len(registrations))}
	for _, reg := range registrations {
		if len(reg.Fields) > 0 {
			c.fields[reg.Descriptor.ID] = slices.Clone(reg.Fields)
		}
	}
	return c
}

// FieldsFor returns the ordered credential fields of a provider.
// Empty for providers that need no app-level credentials.
func (c *CredentialCatalog) FieldsFor(identifier string) []domain.CredentialField {
	return slices.Clone(c.fields[identifier])
}

// Validate checks that every required field has a non-blank value and that
// no unknown keys are present.
func (c *CredentialCatalog) Validate(identifier string, values map[string]string) error {
	fields := c.fields[identifier]
	if len(fields) == 0 {
		return fmt.Errorf("%w: provider %s has no credential fields", domain.ErrInvalidInput, identifier)
	}

	known := make(map[string]bool, len(fields))
	var missing []string
	for _, f := range fields {
		known[f.Key] = true
		if f.Required && strings.TrimSpace(values[f.Key]) == "" {
			missing = append(missing, f.Key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required fields %s", domain.ErrInvalidInput, strings.Join(missing, ", "))
	}
	for key := range values {
		if !known[key] {
			return fmt.Errorf("%w: unknown field %s for %s", domain.ErrInvalidInput, key, identifier)
		}
	}
	return nil
}
