package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/evanrusso/gmailvault/internal/domain"
	"github.com/evanrusso/gmailvault/internal/errs"
	"github.com/evanrusso/gmailvault/internal/store"
)

const accountColumns = `id, email, user_id, display_name, picture_url,
	access_token_enc, refresh_token_enc, token_expires_at, token_type,
	scopes_json, is_active, last_sync_at, created_at`

// UpsertAccount inserts or updates an account row, including its encrypted
// token columns.
func (s *DB) UpsertAccount(ctx context.Context, rec *store.AccountRecord) error {
	scopesJSON, err := json.Marshal(rec.Account.Scopes)
	if err != nil {
		return fmt.Errorf("failed to marshal scopes: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, email, user_id, display_name, picture_url,
			access_token_enc, refresh_token_enc, token_expires_at, token_type,
			scopes_json, is_active, last_sync_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			email             = excluded.email,
			user_id           = excluded.user_id,
			display_name      = excluded.display_name,
			picture_url       = excluded.picture_url,
			access_token_enc  = excluded.access_token_enc,
			refresh_token_enc = excluded.refresh_token_enc,
			token_expires_at  = excluded.token_expires_at,
			token_type        = excluded.token_type,
			scopes_json       = excluded.scopes_json,
			is_active         = excluded.is_active,
			last_sync_at      = excluded.last_sync_at,
			updated_at        = CURRENT_TIMESTAMP`,
		rec.Account.ID, rec.Account.Email, rec.Account.UserID,
		rec.Account.DisplayName, rec.Account.PictureURL,
		rec.AccessTokenEnc, rec.RefreshTokenEnc,
		formatTime(rec.TokenExpiry), rec.TokenType,
		string(scopesJSON), rec.Account.IsActive,
		formatTime(rec.Account.LastSyncAt),
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return &errs.InvalidInputError{
				Field:  "email",
				Reason: fmt.Sprintf("%q is already registered to another account", rec.Account.Email),
			}
		}
		return fmt.Errorf("failed to upsert account %s: %w", rec.Account.ID, err)
	}
	return nil
}

// GetAccount retrieves an account record by ID. Returns (nil, nil) if no
// row exists.
func (s *DB) GetAccount(ctx context.Context, id string) (*store.AccountRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	return scanAccount(row)
}

// GetAccountByEmail retrieves an active account record by email address.
// Returns (nil, nil) if no row exists.
func (s *DB) GetAccountByEmail(ctx context.Context, email string) (*store.AccountRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE email = ? AND is_active`, email)
	return scanAccount(row)
}

func scanAccount(row *sql.Row) (*store.AccountRecord, error) {
	var (
		rec        store.AccountRecord
		expiresAt  string
		scopesJSON string
		lastSyncAt string
	)
	err := row.Scan(
		&rec.Account.ID, &rec.Account.Email, &rec.Account.UserID,
		&rec.Account.DisplayName, &rec.Account.PictureURL,
		&rec.AccessTokenEnc, &rec.RefreshTokenEnc, &expiresAt, &rec.TokenType,
		&scopesJSON, &rec.Account.IsActive, &lastSyncAt, &rec.Account.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}

	if rec.TokenExpiry, err = parseTime(expiresAt); err != nil {
		return nil, err
	}
	if rec.Account.LastSyncAt, err = parseTime(lastSyncAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(scopesJSON), &rec.Account.Scopes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal scopes: %w", err)
	}
	return &rec, nil
}

// ListAccounts returns all accounts without token material.
func (s *DB) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, email, user_id, display_name, picture_url, scopes_json,
			is_active, last_sync_at, created_at
		FROM accounts ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		var (
			a          domain.Account
			scopesJSON string
			lastSyncAt string
		)
		if err := rows.Scan(&a.ID, &a.Email, &a.UserID, &a.DisplayName,
			&a.PictureURL, &scopesJSON, &a.IsActive, &lastSyncAt, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		if a.LastSyncAt, err = parseTime(lastSyncAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(scopesJSON), &a.Scopes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal scopes: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// DeleteAccount removes an account and, via foreign keys, its sync state
// and cached messages. Deleting a non-existent account is not an error.
func (s *DB) DeleteAccount(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete account %s: %w", id, err)
	}
	return nil
}

// TouchLastSync records the completion time of the latest sync.
func (s *DB) TouchLastSync(ctx context.Context, accountID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET last_sync_at = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		formatTime(at), accountID)
	if err != nil {
		return fmt.Errorf("failed to touch last sync for %s: %w", accountID, err)
	}
	return nil
}
