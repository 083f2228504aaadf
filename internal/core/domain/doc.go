// Package domain defines the core business entities for Sercha Connect.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - ProviderDescriptor: A platform integration and its capabilities
//   - CredentialField: An app-level credential a provider needs
//   - OAuthApplication: An organization's OAuth client for a provider
//   - ClientInformation: Credentials resolved for a single call
//   - Connection: An authenticated account on a provider
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
