package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/custodia-labs/sercha-connect/internal/core/domain"
	"github.com/custodia-labs/sercha-connect/internal/core/ports/driven"
)

// oauthAppStore implements driven.OAuthAppStore.
type oauthAppStore struct {
	store *Store
}

var _ driven.OAuthAppStore = (*oauthAppStore)(nil)

const oauthAppColumns = `id, org_id, provider, name, client_id, secret_ciphertext, extra_ciphertext,
	is_default, status, created_at, updated_at, deleted_at`

// Create inserts an application, clearing other defaults of the same
// provider when it is flagged default.
func (s *oauthAppStore) Create(ctx context.Context, app *domain.OAuthApplication) error {
	if app == nil || app.ID == "" {
		return domain.ErrInvalidInput
	}

	now := s.store.now()
	if app.CreatedAt.IsZero() {
		app.CreatedAt = now
	}
	if app.UpdatedAt.IsZero() {
		app.UpdatedAt = now
	}
	if app.Status == "" {
		app.Status = domain.AppStatusActive
	}

	return s.store.withTx(ctx, func(tx *sql.Tx) error {
		if app.IsDefault {
			if err := clearDefaults(ctx, tx, app.OrgID, app.Provider); err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO oauth_apps (`+oauthAppColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, app.ID, app.OrgID, app.Provider, app.Name, app.ClientID,
			app.SecretCiphertext, app.ExtraCiphertext, boolToInt(app.IsDefault), string(app.Status),
			formatTime(app.CreatedAt), formatTime(app.UpdatedAt), formatNullableTime(app.DeletedAt))
		if err != nil {
			return fmt.Errorf("inserting oauth app: %w", err)
		}
		return nil
	})
}

// Get retrieves an active application of the organization.
func (s *oauthAppStore) Get(ctx context.Context, orgID, id string) (*domain.OAuthApplication, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT `+oauthAppColumns+` FROM oauth_apps
		WHERE org_id = ? AND id = ? AND status = 'active'
	`, orgID, id)
	return scanOAuthApp(row)
}

// Default returns the flagged default, or nil.
func (s *oauthAppStore) Default(ctx context.Context, orgID, provider string) (*domain.OAuthApplication, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT `+oauthAppColumns+` FROM oauth_apps
		WHERE org_id = ? AND provider = ? AND is_default = 1 AND status = 'active'
	`, orgID, provider)

	app, err := scanOAuthApp(row)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	return app, err
}

// List returns active applications, oldest first.
func (s *oauthAppStore) List(ctx context.Context, orgID, provider string) ([]domain.OAuthApplication, error) {
	query := `SELECT ` + oauthAppColumns + ` FROM oauth_apps WHERE org_id = ? AND status = 'active'`
	args := []any{orgID}
	if provider != "" {
		query += ` AND provider = ?`
		args = append(args, provider)
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying oauth apps: %w", err)
	}
	defer rows.Close()

	apps := make([]domain.OAuthApplication, 0)
	for rows.Next() {
		app, err := scanOAuthApp(rows)
		if err != nil {
			return nil, err
		}
		apps = append(apps, *app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating oauth apps: %w", err)
	}
	return apps, nil
}

// Update saves the mutable fields of an active application.
func (s *oauthAppStore) Update(ctx context.Context, app *domain.OAuthApplication) error {
	if app == nil {
		return domain.ErrInvalidInput
	}

	return s.store.withTx(ctx, func(tx *sql.Tx) error {
		var provider string
		err := tx.QueryRowContext(ctx,
			`SELECT provider FROM oauth_apps WHERE org_id = ? AND id = ? AND status = 'active'`,
			app.OrgID, app.ID).Scan(&provider)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("loading oauth app: %w", err)
		}

		if app.IsDefault {
			if err := clearDefaults(ctx, tx, app.OrgID, provider); err != nil {
				return err
			}
		}

		app.UpdatedAt = s.store.now()
		_, err = tx.ExecContext(ctx, `
			UPDATE oauth_apps SET
				name = ?, client_id = ?, secret_ciphertext = ?, extra_ciphertext = ?,
				is_default = ?, updated_at = ?
			WHERE org_id = ? AND id = ?
		`, app.Name, app.ClientID, app.SecretCiphertext, app.ExtraCiphertext,
			boolToInt(app.IsDefault), formatTime(app.UpdatedAt), app.OrgID, app.ID)
		if err != nil {
			return fmt.Errorf("updating oauth app: %w", err)
		}
		return nil
	})
}

// SetDefault flags the application as its provider's default.
func (s *oauthAppStore) SetDefault(ctx context.Context, orgID, id string) error {
	return s.store.withTx(ctx, func(tx *sql.Tx) error {
		var provider string
		err := tx.QueryRowContext(ctx,
			`SELECT provider FROM oauth_apps WHERE org_id = ? AND id = ? AND status = 'active'`,
			orgID, id).Scan(&provider)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("loading oauth app: %w", err)
		}

		if err := clearDefaults(ctx, tx, orgID, provider); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE oauth_apps SET is_default = 1, updated_at = ? WHERE org_id = ? AND id = ?`,
			formatTime(s.store.now()), orgID, id)
		if err != nil {
			return fmt.Errorf("setting default oauth app: %w", err)
		}
		return nil
	})
}

// SoftDelete marks the application deleted and clears its default flag.
func (s *oauthAppStore) SoftDelete(ctx context.Context, orgID, id string) error {
	now := formatTime(s.store.now())
	res, err := s.store.db.ExecContext(ctx, `
		UPDATE oauth_apps SET status = 'deleted', is_default = 0, deleted_at = ?, updated_at = ?
		WHERE org_id = ? AND id = ? AND status = 'active'
	`, now, now, orgID, id)
	if err != nil {
		return fmt.Errorf("deleting oauth app: %w", err)
	}
	return requireAffected(res)
}

func clearDefaults(ctx context.Context, tx *sql.Tx, orgID, provider string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE oauth_apps SET is_default = 0 WHERE org_id = ? AND provider = ? AND is_default = 1`,
		orgID, provider)
	if err != nil {
		return fmt.Errorf("clearing default oauth apps: %w", err)
	}
	return nil
}

func scanOAuthApp(row rowScanner) (*domain.OAuthApplication, error) {
	var app domain.OAuthApplication
	var isDefault int
	var status, createdAt, updatedAt string
	var deletedAt sql.NullString

	err := row.Scan(&app.ID, &app.OrgID, &app.Provider, &app.Name, &app.ClientID,
		&app.SecretCiphertext, &app.ExtraCiphertext, &isDefault, &status,
		&createdAt, &updatedAt, &deletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning oauth app: %w", err)
	}

	app.IsDefault = isDefault == 1
	app.Status = domain.AppStatus(status)
	app.CreatedAt = parseTime(createdAt)
	app.UpdatedAt = parseTime(updatedAt)
	app.DeletedAt = parseNullableTime(deletedAt)
	return &app, nil
}

// requireAffected maps an update that matched no row to domain.ErrNotFound.
func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking affected rows: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
