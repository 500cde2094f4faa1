package sync

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

// Watch registers a push subscription on the account's mailbox and
// records it alongside the sync state. Calling Watch while a
// subscription is active renews it in place.
func (e *Engine) Watch(ctx context.Context, accountID string, mail Mail, topic string, labelIDs []string) (string, time.Time, error) {
	info, err := mail.Watch(ctx, topic, labelIDs)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to register mailbox watch: %w", err)
	}

	state, err := e.store.GetSyncState(ctx, accountID)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to load sync state: %w", err)
	}
	if state.PushSubscriptionID == "" {
		state.PushSubscriptionID = uuid.NewString()
	}
	if state.HistoryID == 0 {
		state.HistoryID = info.HistoryID
	}
	state.PushExpiration = info.Expiration
	if err := e.store.SetSyncState(ctx, state); err != nil {
		return "", time.Time{}, fmt.Errorf("failed to record push subscription: %w", err)
	}

	log.Printf("[sync] watching account %s until %s", accountID, info.Expiration.Format(time.RFC3339))
	return state.PushSubscriptionID, info.Expiration, nil
}

// StopWatch tears down the account's push subscription. Stopping an
// account without one is a no-op.
func (e *Engine) StopWatch(ctx context.Context, accountID string, mail Mail) error {
	state, err := e.store.GetSyncState(ctx, accountID)
	if err != nil {
		return fmt.Errorf("failed to load sync state: %w", err)
	}
	if state.PushSubscriptionID == "" {
		return nil
	}

	if err := mail.StopWatch(ctx); err != nil {
		return fmt.Errorf("failed to stop mailbox watch: %w", err)
	}

	state.PushSubscriptionID = ""
	state.PushExpiration = time.Time{}
	if err := e.store.SetSyncState(ctx, state); err != nil {
		return fmt.Errorf("failed to clear push subscription: %w", err)
	}
	log.Printf("[sync] stopped watching account %s", accountID)
	return nil
}
