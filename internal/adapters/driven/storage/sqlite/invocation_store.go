package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/sercha-connect/internal/core/domain"
	"github.com/custodia-labs/sercha-connect/internal/core/ports/driven"
)

// invocationStore implements driven.ScheduledInvocationStore.
type invocationStore struct {
	store *Store
}

var _ driven.ScheduledInvocationStore = (*invocationStore)(nil)

const invocationColumns = `id, org_id, connection_id, method, args, run_at, status, attempts,
	last_error, created_at, updated_at`

// Save creates or updates a scheduled invocation. The connection must exist.
func (s *invocationStore) Save(ctx context.Context, inv *domain.ScheduledInvocation) error {
	if inv == nil || inv.ID == "" {
		return domain.ErrInvalidInput
	}

	now := s.store.now()
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = now
	}
	inv.UpdatedAt = now
	if inv.Status == "" {
		inv.Status = domain.InvocationPending
	}

	args, err := encodeMap(inv.Args)
	if err != nil {
		return fmt.Errorf("encoding args: %w", err)
	}

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO scheduled_invocations (`+invocationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			method = excluded.method,
			args = excluded.args,
			run_at = excluded.run_at,
			status = excluded.status,
			attempts = excluded.attempts,
			last_error = excluded.last_error,
			updated_at = excluded.updated_at
	`, inv.ID, inv.OrgID, inv.ConnectionID, inv.Method, args, formatTime(inv.RunAt),
		string(inv.Status), inv.Attempts, nullString(inv.LastError),
		formatTime(inv.CreatedAt), formatTime(inv.UpdatedAt))
	if err != nil {
		return fmt.Errorf("saving scheduled invocation: %w", err)
	}
	return nil
}

// Get retrieves an invocation of the organization.
func (s *invocationStore) Get(ctx context.Context, orgID, id string) (*domain.ScheduledInvocation, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT `+invocationColumns+` FROM scheduled_invocations WHERE org_id = ? AND id = ?
	`, orgID, id)
	return scanInvocation(row)
}

// List returns the organization's invocations, latest run time first.
func (s *invocationStore) List(ctx context.Context, orgID string) ([]domain.ScheduledInvocation, error) {
	return s.query(ctx, `
		SELECT `+invocationColumns+` FROM scheduled_invocations
		WHERE org_id = ? ORDER BY run_at DESC
	`, orgID)
}

// Due returns pending invocations due at t, oldest first. A limit of zero
// or less returns all of them.
func (s *invocationStore) Due(ctx context.Context, t time.Time, limit int) ([]domain.ScheduledInvocation, error) {
	if limit <= 0 {
		limit = -1
	}
	return s.query(ctx, `
		SELECT `+invocationColumns+` FROM scheduled_invocations
		WHERE status = 'pending' AND run_at <= ?
		ORDER BY run_at
		LIMIT ?
	`, formatTime(t), limit)
}

func (s *invocationStore) query(ctx context.Context, query string, args ...any) ([]domain.ScheduledInvocation, error) {
	rows, err := s.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying scheduled invocations: %w", err)
	}
	defer rows.Close()

	invs := make([]domain.ScheduledInvocation, 0)
	for rows.Next() {
		inv, err := scanInvocation(rows)
		if err != nil {
			return nil, err
		}
		invs = append(invs, *inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating scheduled invocations: %w", err)
	}
	return invs, nil
}

func scanInvocation(row rowScanner) (*domain.ScheduledInvocation, error) {
	var inv domain.ScheduledInvocation
	var args, lastError sql.NullString
	var runAt, status, createdAt, updatedAt string

	err := row.Scan(&inv.ID, &inv.OrgID, &inv.ConnectionID, &inv.Method, &args, &runAt,
		&status, &inv.Attempts, &lastError, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning scheduled invocation: %w", err)
	}

	if inv.Args, err = decodeMap(args); err != nil {
		return nil, fmt.Errorf("decoding args of invocation %s: %w", inv.ID, err)
	}
	inv.RunAt = parseTime(runAt)
	inv.Status = domain.InvocationStatus(status)
	inv.LastError = lastError.String
	inv.CreatedAt = parseTime(createdAt)
	inv.UpdatedAt = parseTime(updatedAt)
	return &inv, nil
}
