package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/evanrusso/gmailvault/internal/store"
)

// GetSyncState retrieves the sync state for an account.
// If no state exists, it returns an empty SyncState with the AccountID set.
func (s *DB) GetSyncState(ctx context.Context, accountID string) (*store.SyncState, error) {
	var (
		state          store.SyncState
		lastSync       string
		pushExpiration string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT account_id, history_id, last_sync, push_subscription_id, push_expiration
		FROM sync_state WHERE account_id = ?`, accountID,
	).Scan(&state.AccountID, &state.HistoryID, &lastSync,
		&state.PushSubscriptionID, &pushExpiration)

	if errors.Is(err, sql.ErrNoRows) {
		return &store.SyncState{AccountID: accountID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync state for %s: %w", accountID, err)
	}

	if state.LastSync, err = parseTime(lastSync); err != nil {
		return nil, err
	}
	if state.PushExpiration, err = parseTime(pushExpiration); err != nil {
		return nil, err
	}
	return &state, nil
}

// SetSyncState inserts or updates the sync state for an account. The stored
// history id never regresses: a lower incoming value is ignored.
func (s *DB) SetSyncState(ctx context.Context, state *store.SyncState) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_state (account_id, history_id, last_sync, push_subscription_id, push_expiration)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(account_id) DO UPDATE SET
			history_id           = MAX(history_id, excluded.history_id),
			last_sync            = excluded.last_sync,
			push_subscription_id = excluded.push_subscription_id,
			push_expiration      = excluded.push_expiration`,
		state.AccountID, state.HistoryID, formatTime(state.LastSync),
		state.PushSubscriptionID, formatTime(state.PushExpiration),
	)
	if err != nil {
		return fmt.Errorf("failed to set sync state for %s: %w", state.AccountID, err)
	}
	return nil
}
