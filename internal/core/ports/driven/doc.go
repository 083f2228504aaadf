// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
//   - Provider: A platform integration, created per call by a ProviderFactory
//   - OAuthAppStore: Organization OAuth application persistence
//   - ConnectionStore: Connection persistence
//   - EphemeralStore: TTL keyed correlation state for the connect flow
//   - Cipher: Encryption of secrets at rest
//   - ConfigStore: Application configuration
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - Metrics: Invocation and refresh counters
//   - ScheduledInvocationStore, SchedulerStore: Background work. Without them the scheduler is disabled.
//
// Provider capabilities beyond the base interface (ExternalURLResolver,
// CustomFieldsProvider, NicknameChanger, PictureChanger, Reconnector) are
// separate interfaces checked with type assertions.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter or connector package
package driven
