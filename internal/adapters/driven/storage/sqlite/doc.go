// Package sqlite provides the durable driven stores on a single SQLite database.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO. One Store serves:
//
//   - OAuthAppStore: organization OAuth applications (secrets arrive encrypted)
//   - ConnectionStore: connected accounts and their tokens
//   - ScheduledInvocationStore: provider calls to run later
//   - SchedulerStore: background task state and run history
//
// # Schema
//
// The schema is managed through numbered migrations embedded from the
// migrations/ directory. Deleting a connection cascades to its scheduled
// invocations through a foreign key.
//
// # Data Location
//
// By default, the database is stored at ~/.sercha-connect/data/connect.db
//
// # Thread Safety
//
// All operations are safe for concurrent use. The database runs in WAL mode
// with a busy timeout.
package sqlite
