package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/sercha-connect/internal/core/domain"
)

// ScheduledInvocationStore persists provider calls to run later.
type ScheduledInvocationStore interface {
	// Save creates or updates a scheduled invocation.
	Save(ctx context.Context, inv *domain.ScheduledInvocation) error

	// Get retrieves a scheduled invocation. Returns domain.ErrNotFound if missing.
	Get(ctx context.Context, orgID, id string) (*domain.ScheduledInvocation, error)

	// List returns the organization's scheduled invocations, most recent run time first.
	List(ctx context.Context, orgID string) ([]domain.ScheduledInvocation, error)

	// Due returns pending invocations with RunAt at or before t, oldest first.
	Due(ctx context.Context, t time.Time, limit int) ([]domain.ScheduledInvocation, error)
}
