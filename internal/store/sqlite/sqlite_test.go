package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/evanrusso/gmailvault/internal/domain"
	"github.com/evanrusso/gmailvault/internal/errs"
	"github.com/evanrusso/gmailvault/internal/store"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seedAccount(t *testing.T, db *DB, id, email string) {
	t.Helper()
	err := db.UpsertAccount(context.Background(), &store.AccountRecord{
		Account: domain.Account{
			ID:       id,
			Email:    email,
			Scopes:   []string{"https://www.googleapis.com/auth/gmail.readonly"},
			IsActive: true,
		},
	})
	if err != nil {
		t.Fatalf("UpsertAccount() error: %v", err)
	}
}

func TestUpsertAccountDuplicateEmail(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	seedAccount(t, db, "acc-1", "dup@gmail.com")

	err := db.UpsertAccount(ctx, &store.AccountRecord{
		Account: domain.Account{ID: "acc-2", Email: "dup@gmail.com", IsActive: true},
	})
	var invalidErr *errs.InvalidInputError
	if !errors.As(err, &invalidErr) {
		t.Fatalf("UpsertAccount() error = %T (%v), want *errs.InvalidInputError", err, err)
	}

	// Re-upserting the same account id with its own email stays fine.
	seedAccount(t, db, "acc-1", "dup@gmail.com")
}

func TestUpsertAccountRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	expiry := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	rec := &store.AccountRecord{
		Account: domain.Account{
			ID:          "acc-1",
			Email:       "test@gmail.com",
			DisplayName: "Test User",
			PictureURL:  "https://example.com/p.jpg",
			Scopes:      []string{"scope-a", "scope-b"},
			IsActive:    true,
		},
		AccessTokenEnc:  "blob-access",
		RefreshTokenEnc: "blob-refresh",
		TokenExpiry:     expiry,
		TokenType:       "Bearer",
	}
	if err := db.UpsertAccount(ctx, rec); err != nil {
		t.Fatalf("UpsertAccount() error: %v", err)
	}

	got, err := db.GetAccount(ctx, "acc-1")
	if err != nil {
		t.Fatalf("GetAccount() error: %v", err)
	}
	if got == nil {
		t.Fatal("GetAccount() = nil, want record")
	}
	if got.Account.Email != "test@gmail.com" {
		t.Errorf("email = %q, want %q", got.Account.Email, "test@gmail.com")
	}
	if got.AccessTokenEnc != "blob-access" || got.RefreshTokenEnc != "blob-refresh" {
		t.Errorf("token blobs = (%q, %q), want (blob-access, blob-refresh)",
			got.AccessTokenEnc, got.RefreshTokenEnc)
	}
	if !got.TokenExpiry.Equal(expiry) {
		t.Errorf("expiry = %v, want %v", got.TokenExpiry, expiry)
	}
	if len(got.Account.Scopes) != 2 {
		t.Errorf("scopes = %v, want 2 entries", got.Account.Scopes)
	}

	// Upsert again with new tokens; the row is replaced, not duplicated.
	rec.AccessTokenEnc = "blob-access-2"
	if err := db.UpsertAccount(ctx, rec); err != nil {
		t.Fatalf("UpsertAccount() second time error: %v", err)
	}
	got, err = db.GetAccount(ctx, "acc-1")
	if err != nil {
		t.Fatalf("GetAccount() error: %v", err)
	}
	if got.AccessTokenEnc != "blob-access-2" {
		t.Errorf("access blob after upsert = %q, want %q", got.AccessTokenEnc, "blob-access-2")
	}
}

func TestGetAccountMissing(t *testing.T) {
	db := newTestDB(t)

	got, err := db.GetAccount(context.Background(), "nope")
	if err != nil {
		t.Fatalf("GetAccount() error: %v", err)
	}
	if got != nil {
		t.Errorf("GetAccount() = %+v, want nil for missing account", got)
	}
}

func TestGetAccountByEmail(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedAccount(t, db, "acc-1", "a@gmail.com")

	got, err := db.GetAccountByEmail(ctx, "a@gmail.com")
	if err != nil {
		t.Fatalf("GetAccountByEmail() error: %v", err)
	}
	if got == nil || got.Account.ID != "acc-1" {
		t.Errorf("GetAccountByEmail() = %+v, want acc-1", got)
	}

	got, err = db.GetAccountByEmail(ctx, "missing@gmail.com")
	if err != nil {
		t.Fatalf("GetAccountByEmail() error: %v", err)
	}
	if got != nil {
		t.Errorf("GetAccountByEmail() = %+v, want nil for missing account", got)
	}
}

func TestDeleteAccountCascades(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedAccount(t, db, "acc-1", "a@gmail.com")

	if err := db.SetSyncState(ctx, &store.SyncState{AccountID: "acc-1", HistoryID: 7}); err != nil {
		t.Fatalf("SetSyncState() error: %v", err)
	}
	if err := db.UpsertMessage(ctx, &domain.Message{ID: "m1", AccountID: "acc-1"}); err != nil {
		t.Fatalf("UpsertMessage() error: %v", err)
	}

	if err := db.DeleteAccount(ctx, "acc-1"); err != nil {
		t.Fatalf("DeleteAccount() error: %v", err)
	}

	n, err := db.CountMessages(ctx)
	if err != nil {
		t.Fatalf("CountMessages() error: %v", err)
	}
	if n != 0 {
		t.Errorf("cached messages after account delete = %d, want 0", n)
	}

	// Deleting again is a no-op, not an error.
	if err := db.DeleteAccount(ctx, "acc-1"); err != nil {
		t.Errorf("DeleteAccount() second time error: %v", err)
	}
}

func TestSyncStateRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedAccount(t, db, "acc-1", "a@gmail.com")

	// Missing state comes back empty, not as an error.
	state, err := db.GetSyncState(ctx, "acc-1")
	if err != nil {
		t.Fatalf("GetSyncState() error: %v", err)
	}
	if state.HistoryID != 0 {
		t.Errorf("empty history id = %d, want 0", state.HistoryID)
	}

	exp := time.Now().Add(6 * time.Hour).UTC().Truncate(time.Second)
	if err := db.SetSyncState(ctx, &store.SyncState{
		AccountID:          "acc-1",
		HistoryID:          42,
		LastSync:           time.Now().UTC().Truncate(time.Second),
		PushSubscriptionID: "sub-1",
		PushExpiration:     exp,
	}); err != nil {
		t.Fatalf("SetSyncState() error: %v", err)
	}

	state, err = db.GetSyncState(ctx, "acc-1")
	if err != nil {
		t.Fatalf("GetSyncState() error: %v", err)
	}
	if state.HistoryID != 42 {
		t.Errorf("history id = %d, want 42", state.HistoryID)
	}
	if state.PushSubscriptionID != "sub-1" {
		t.Errorf("push subscription = %q, want %q", state.PushSubscriptionID, "sub-1")
	}
	if !state.PushExpiration.Equal(exp) {
		t.Errorf("push expiration = %v, want %v", state.PushExpiration, exp)
	}
}

func TestSyncStateHistoryNeverRegresses(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedAccount(t, db, "acc-1", "a@gmail.com")

	if err := db.SetSyncState(ctx, &store.SyncState{AccountID: "acc-1", HistoryID: 100}); err != nil {
		t.Fatalf("SetSyncState() error: %v", err)
	}
	// A stale writer with a lower history id must not move the cursor back.
	if err := db.SetSyncState(ctx, &store.SyncState{AccountID: "acc-1", HistoryID: 50}); err != nil {
		t.Fatalf("SetSyncState() error: %v", err)
	}

	state, err := db.GetSyncState(ctx, "acc-1")
	if err != nil {
		t.Fatalf("GetSyncState() error: %v", err)
	}
	if state.HistoryID != 100 {
		t.Errorf("history id = %d, want 100 (no regression)", state.HistoryID)
	}
}
