package driving

import (
	"context"
	"time"

	"github.com/custodia-labs/sercha-connect/internal/core/domain"
)

// ConnectionService manages the lifecycle of connections after the connect flow.
type ConnectionService interface {
	List(ctx context.Context, orgID string) ([]domain.Connection, error)
	Get(ctx context.Context, orgID, id string) (*domain.Connection, error)

	// Disable soft-disables the connection.
	Disable(ctx context.Context, orgID, id string) error
	Enable(ctx context.Context, orgID, id string) error

	// Delete soft-deletes the connection.
	Delete(ctx context.Context, orgID, id string) error
	// Purge physically removes the connection and its scheduled invocations.
	Purge(ctx context.Context, orgID, id string) error

	// ChangeNickname renames the account, remotely when the provider supports it.
	ChangeNickname(ctx context.Context, orgID, id, name string) (*domain.Connection, error)
	// ChangePicture replaces the account picture, remotely when the provider supports it.
	ChangePicture(ctx context.Context, orgID, id, pictureURL string) (*domain.Connection, error)

	UpdateSettings(ctx context.Context, orgID, id string, settings map[string]any) error
	// CompleteSetup marks a connection created in-between-steps as usable.
	CompleteSetup(ctx context.Context, orgID, id string) error
}

// ScheduleService queues provider calls for later execution.
type ScheduleService interface {
	Schedule(
		ctx context.Context,
		orgID, connectionID, method string,
		args map[string]any,
		runAt time.Time,
	) (*domain.ScheduledInvocation, error)
	List(ctx context.Context, orgID string) ([]domain.ScheduledInvocation, error)
}
