package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/sercha-connect/internal/core/domain"
	"github.com/custodia-labs/sercha-connect/internal/core/ports/driven"
)

// connectionStore implements driven.ConnectionStore.
type connectionStore struct {
	store *Store
}

var _ driven.ConnectionStore = (*connectionStore)(nil)

const connectionColumns = `id, org_id, provider, internal_id, name, picture, username,
	access_token, refresh_token, token_expires_at, one_time_token, in_between_steps,
	refresh_needed, status, oauth_app_id, custom_instance_details, settings, timezone,
	created_at, updated_at, deleted_at`

// Get retrieves a non-deleted connection.
func (s *connectionStore) Get(ctx context.Context, orgID, id string) (*domain.Connection, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT `+connectionColumns+` FROM connections
		WHERE org_id = ? AND id = ? AND status != 'deleted'
	`, orgID, id)
	return scanConnection(row)
}

// GetByInternalID retrieves a non-deleted connection by provider account id.
func (s *connectionStore) GetByInternalID(
	ctx context.Context,
	orgID, provider, internalID string,
) (*domain.Connection, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT `+connectionColumns+` FROM connections
		WHERE org_id = ? AND provider = ? AND internal_id = ? AND status != 'deleted'
	`, orgID, provider, internalID)

	conn, err := scanConnection(row)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	return conn, err
}

// List returns the organization's non-deleted connections, oldest first.
func (s *connectionStore) List(ctx context.Context, orgID string) ([]domain.Connection, error) {
	return s.query(ctx, `
		SELECT `+connectionColumns+` FROM connections
		WHERE org_id = ? AND status != 'deleted'
		ORDER BY created_at, id
	`, orgID)
}

// Upsert inserts the connection or overwrites the record with the same
// (org, provider, internal id). A soft-deleted record is revived under its
// original id.
func (s *connectionStore) Upsert(ctx context.Context, conn *domain.Connection) (*domain.Connection, error) {
	if conn == nil || conn.OrgID == "" || conn.Provider == "" || conn.InternalID == "" {
		return nil, domain.ErrInvalidInput
	}

	next := *conn
	now := s.store.now()
	if next.Status == "" || next.Status == domain.ConnectionDeleted {
		next.Status = domain.ConnectionActive
	}
	next.RefreshNeeded = false
	next.DeletedAt = time.Time{}
	next.UpdatedAt = now

	settings, err := encodeMap(next.Settings)
	if err != nil {
		return nil, fmt.Errorf("encoding settings: %w", err)
	}

	err = s.store.withTx(ctx, func(tx *sql.Tx) error {
		var existingID, createdAt string
		err := tx.QueryRowContext(ctx, `
			SELECT id, created_at FROM connections
			WHERE org_id = ? AND provider = ? AND internal_id = ?
		`, next.OrgID, next.Provider, next.InternalID).Scan(&existingID, &createdAt)

		switch {
		case errors.Is(err, sql.ErrNoRows):
			if next.ID == "" {
				next.ID = uuid.New().String()
			}
			next.CreatedAt = now
			_, err = tx.ExecContext(ctx, `
				INSERT INTO connections (`+connectionColumns+`)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, next.ID, next.OrgID, next.Provider, next.InternalID, next.Name, next.Picture,
				next.Username, next.AccessToken, next.RefreshToken,
				formatNullableTime(next.TokenExpiresAt), boolToInt(next.OneTimeToken),
				boolToInt(next.InBetweenSteps), 0, string(next.Status),
				nullString(next.OAuthAppID), next.CustomInstanceDetails, settings, next.Timezone,
				formatTime(next.CreatedAt), formatTime(next.UpdatedAt), nil)
			if err != nil {
				return fmt.Errorf("inserting connection: %w", err)
			}
			return nil

		case err != nil:
			return fmt.Errorf("loading connection: %w", err)
		}

		next.ID = existingID
		next.CreatedAt = parseTime(createdAt)
		_, err = tx.ExecContext(ctx, `
			UPDATE connections SET
				name = ?, picture = ?, username = ?, access_token = ?, refresh_token = ?,
				token_expires_at = ?, one_time_token = ?, in_between_steps = ?, refresh_needed = 0,
				status = ?, oauth_app_id = ?, custom_instance_details = ?, settings = ?,
				timezone = ?, updated_at = ?, deleted_at = NULL
			WHERE id = ?
		`, next.Name, next.Picture, next.Username, next.AccessToken, next.RefreshToken,
			formatNullableTime(next.TokenExpiresAt), boolToInt(next.OneTimeToken),
			boolToInt(next.InBetweenSteps), string(next.Status), nullString(next.OAuthAppID),
			next.CustomInstanceDetails, settings, next.Timezone, formatTime(next.UpdatedAt), next.ID)
		if err != nil {
			return fmt.Errorf("updating connection: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.Get(ctx, next.OrgID, next.ID)
}

// UpdateTokens persists refreshed tokens and clears RefreshNeeded.
func (s *connectionStore) UpdateTokens(ctx context.Context, orgID, id string, update domain.TokenUpdate) error {
	query := `UPDATE connections SET access_token = ?, refresh_token = ?, token_expires_at = ?,
		refresh_needed = 0, updated_at = ?`
	args := []any{update.AccessToken, update.RefreshToken, formatNullableTime(update.ExpiresAt),
		formatTime(s.store.now())}

	if update.Settings != nil {
		settings, err := encodeMap(update.Settings)
		if err != nil {
			return fmt.Errorf("encoding settings: %w", err)
		}
		query += `, settings = ?`
		args = append(args, settings)
	}

	query += ` WHERE org_id = ? AND id = ? AND status != 'deleted'`
	args = append(args, orgID, id)
	return s.exec(ctx, "updating tokens", query, args...)
}

// Disable marks the connection disabled.
func (s *connectionStore) Disable(ctx context.Context, orgID, id string, refreshNeeded bool) error {
	return s.exec(ctx, "disabling connection", `
		UPDATE connections SET status = 'disabled', refresh_needed = ?, updated_at = ?
		WHERE org_id = ? AND id = ? AND status != 'deleted'
	`, boolToInt(refreshNeeded), formatTime(s.store.now()), orgID, id)
}

// Enable marks the connection active.
func (s *connectionStore) Enable(ctx context.Context, orgID, id string) error {
	return s.exec(ctx, "enabling connection", `
		UPDATE connections SET status = 'active', updated_at = ?
		WHERE org_id = ? AND id = ? AND status != 'deleted'
	`, formatTime(s.store.now()), orgID, id)
}

// SoftDelete marks the connection deleted.
func (s *connectionStore) SoftDelete(ctx context.Context, orgID, id string) error {
	now := formatTime(s.store.now())
	return s.exec(ctx, "deleting connection", `
		UPDATE connections SET status = 'deleted', deleted_at = ?, updated_at = ?
		WHERE org_id = ? AND id = ? AND status != 'deleted'
	`, now, now, orgID, id)
}

// Delete removes the connection, soft-deleted or not. Scheduled
// invocations go with it through the foreign key.
func (s *connectionStore) Delete(ctx context.Context, orgID, id string) error {
	return s.exec(ctx, "purging connection",
		`DELETE FROM connections WHERE org_id = ? AND id = ?`, orgID, id)
}

// UpdateProfile changes the display name and picture.
func (s *connectionStore) UpdateProfile(ctx context.Context, orgID, id, name, picture string) error {
	return s.exec(ctx, "updating profile", `
		UPDATE connections SET name = ?, picture = ?, updated_at = ?
		WHERE org_id = ? AND id = ? AND status != 'deleted'
	`, name, picture, formatTime(s.store.now()), orgID, id)
}

// UpdateSettings replaces the settings blob.
func (s *connectionStore) UpdateSettings(ctx context.Context, orgID, id string, settings map[string]any) error {
	encoded, err := encodeMap(settings)
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}
	return s.exec(ctx, "updating settings", `
		UPDATE connections SET settings = ?, updated_at = ?
		WHERE org_id = ? AND id = ? AND status != 'deleted'
	`, encoded, formatTime(s.store.now()), orgID, id)
}

// CompleteSetup clears the in-between-steps flag.
func (s *connectionStore) CompleteSetup(ctx context.Context, orgID, id string) error {
	return s.exec(ctx, "completing setup", `
		UPDATE connections SET in_between_steps = 0, updated_at = ?
		WHERE org_id = ? AND id = ? AND status != 'deleted'
	`, formatTime(s.store.now()), orgID, id)
}

// SeenBefore reports whether any record, deleted ones included, exists for the account.
func (s *connectionStore) SeenBefore(ctx context.Context, orgID, provider, internalID string) (bool, error) {
	var n int
	err := s.store.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM connections WHERE org_id = ? AND provider = ? AND internal_id = ?
	`, orgID, provider, internalID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking connection history: %w", err)
	}
	return n > 0, nil
}

// ExpiringBefore lists active refreshable connections expiring before t,
// soonest first.
func (s *connectionStore) ExpiringBefore(ctx context.Context, t time.Time) ([]domain.Connection, error) {
	return s.query(ctx, `
		SELECT `+connectionColumns+` FROM connections
		WHERE status = 'active' AND refresh_needed = 0 AND one_time_token = 0
			AND refresh_token != '' AND token_expires_at IS NOT NULL AND token_expires_at < ?
		ORDER BY token_expires_at
	`, formatTime(t))
}

func (s *connectionStore) query(ctx context.Context, query string, args ...any) ([]domain.Connection, error) {
	rows, err := s.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying connections: %w", err)
	}
	defer rows.Close()

	conns := make([]domain.Connection, 0)
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		conns = append(conns, *conn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating connections: %w", err)
	}
	return conns, nil
}

func (s *connectionStore) exec(ctx context.Context, op, query string, args ...any) error {
	res, err := s.store.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return requireAffected(res)
}

func scanConnection(row rowScanner) (*domain.Connection, error) {
	var c domain.Connection
	var expiresAt, oauthAppID, settings, deletedAt sql.NullString
	var oneTime, inBetween, refreshNeeded int
	var status, createdAt, updatedAt string

	err := row.Scan(&c.ID, &c.OrgID, &c.Provider, &c.InternalID, &c.Name, &c.Picture, &c.Username,
		&c.AccessToken, &c.RefreshToken, &expiresAt, &oneTime, &inBetween,
		&refreshNeeded, &status, &oauthAppID, &c.CustomInstanceDetails, &settings, &c.Timezone,
		&createdAt, &updatedAt, &deletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning connection: %w", err)
	}

	if c.Settings, err = decodeMap(settings); err != nil {
		return nil, fmt.Errorf("decoding settings of connection %s: %w", c.ID, err)
	}
	c.TokenExpiresAt = parseNullableTime(expiresAt)
	c.OneTimeToken = oneTime == 1
	c.InBetweenSteps = inBetween == 1
	c.RefreshNeeded = refreshNeeded == 1
	c.Status = domain.ConnectionStatus(status)
	c.OAuthAppID = oauthAppID.String
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	c.DeletedAt = parseNullableTime(deletedAt)
	return &c, nil
}
