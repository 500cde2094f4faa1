package vault

import (
	"context"
	"crypto/rand"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/evanrusso/gmailvault/internal/domain"
	"github.com/evanrusso/gmailvault/internal/errs"
	"github.com/evanrusso/gmailvault/internal/secrets"
	"github.com/evanrusso/gmailvault/internal/store"
	"github.com/evanrusso/gmailvault/internal/store/sqlite"
)

// refresherFunc adapts a function to the Refresher interface.
type refresherFunc func(ctx context.Context, refreshToken string) (*domain.TokenSet, error)

func (f refresherFunc) Refresh(ctx context.Context, rt string) (*domain.TokenSet, error) {
	return f(ctx, rt)
}

func newTestVault(t *testing.T, r Refresher) (*Vault, store.Store) {
	t.Helper()
	db, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("sqlite.New() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	key := make([]byte, secrets.KeySize)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("rand.Read() error: %v", err)
	}
	cipher, err := secrets.NewCipher(key)
	if err != nil {
		t.Fatalf("NewCipher() error: %v", err)
	}
	return New(db, cipher, r), db
}

func validInfo() UserInfo {
	return UserInfo{Email: "user@gmail.com", DisplayName: "User", Scopes: []string{"scope"}}
}

func TestStoreGetTokensRoundTrip(t *testing.T) {
	v, _ := newTestVault(t, nil)
	ctx := context.Background()

	expiry := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	in := &domain.TokenSet{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		Expiry:       expiry,
		TokenType:    "Bearer",
	}
	if err := v.Store(ctx, "acc-1", in, validInfo()); err != nil {
		t.Fatalf("Store() error: %v", err)
	}

	got, err := v.GetTokens(ctx, "acc-1")
	if err != nil {
		t.Fatalf("GetTokens() error: %v", err)
	}
	if got == nil {
		t.Fatal("GetTokens() = nil, want tokens")
	}
	if got.AccessToken != "access-1" || got.RefreshToken != "refresh-1" {
		t.Errorf("tokens = %+v", got)
	}
	if !got.Expiry.Equal(expiry) {
		t.Errorf("expiry = %v, want %v", got.Expiry, expiry)
	}
	if got.TokenType != "Bearer" {
		t.Errorf("token type = %q, want Bearer", got.TokenType)
	}
}

func TestStoreRejectsBadEmail(t *testing.T) {
	v, _ := newTestVault(t, nil)

	err := v.Store(context.Background(), "acc-1", &domain.TokenSet{AccessToken: "a"},
		UserInfo{Email: "not-an-email"})
	var invalid *errs.InvalidInputError
	if !errors.As(err, &invalid) {
		t.Fatalf("Store() error = %T (%v), want *errs.InvalidInputError", err, err)
	}
}

func TestStoreKeepsPriorRefreshToken(t *testing.T) {
	v, _ := newTestVault(t, nil)
	ctx := context.Background()

	if err := v.Store(ctx, "acc-1", &domain.TokenSet{
		AccessToken: "a1", RefreshToken: "r1",
	}, validInfo()); err != nil {
		t.Fatalf("Store() error: %v", err)
	}
	// A non-consent reauthorization carries no refresh token.
	if err := v.Store(ctx, "acc-1", &domain.TokenSet{AccessToken: "a2"}, validInfo()); err != nil {
		t.Fatalf("Store() error: %v", err)
	}

	got, err := v.GetTokens(ctx, "acc-1")
	if err != nil {
		t.Fatalf("GetTokens() error: %v", err)
	}
	if got.AccessToken != "a2" {
		t.Errorf("access token = %q, want a2", got.AccessToken)
	}
	if got.RefreshToken != "r1" {
		t.Errorf("refresh token = %q, want carried-over r1", got.RefreshToken)
	}
}

func TestGetTokensMissingAccount(t *testing.T) {
	v, _ := newTestVault(t, nil)

	got, err := v.GetTokens(context.Background(), "nope")
	if err != nil {
		t.Fatalf("GetTokens() error: %v", err)
	}
	if got != nil {
		t.Errorf("GetTokens() = %+v, want nil for missing account", got)
	}
}

func TestGetTokensCorruptedCiphertext(t *testing.T) {
	v, db := newTestVault(t, nil)
	ctx := context.Background()

	if err := v.Store(ctx, "acc-1", &domain.TokenSet{AccessToken: "a"}, validInfo()); err != nil {
		t.Fatalf("Store() error: %v", err)
	}

	// Corrupt the stored ciphertext directly.
	rec, err := db.GetAccount(ctx, "acc-1")
	if err != nil {
		t.Fatalf("GetAccount() error: %v", err)
	}
	rec.AccessTokenEnc = "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
	if err := db.UpsertAccount(ctx, rec); err != nil {
		t.Fatalf("UpsertAccount() error: %v", err)
	}

	_, err = v.GetTokens(ctx, "acc-1")
	var cryptoErr *errs.CryptoError
	if !errors.As(err, &cryptoErr) {
		t.Fatalf("GetTokens() error = %T (%v), want *errs.CryptoError", err, err)
	}
}

func TestIsValid(t *testing.T) {
	v, _ := newTestVault(t, nil)
	ctx := context.Background()

	tests := []struct {
		name   string
		expiry time.Time
		want   bool
	}{
		{"no expiry recorded", time.Time{}, true},
		{"future expiry", time.Now().Add(time.Hour), true},
		{"past expiry", time.Now().Add(-time.Hour), false},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := string(rune('a' + i))
			info := validInfo()
			info.Email = id + "@gmail.com"
			if err := v.Store(ctx, id, &domain.TokenSet{
				AccessToken: "a", Expiry: tt.expiry,
			}, info); err != nil {
				t.Fatalf("Store() error: %v", err)
			}
			got, err := v.IsValid(ctx, id)
			if err != nil {
				t.Fatalf("IsValid() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("IsValid() = %v, want %v", got, tt.want)
			}
		})
	}

	got, err := v.IsValid(ctx, "missing")
	if err != nil {
		t.Fatalf("IsValid() error: %v", err)
	}
	if got {
		t.Error("IsValid() = true for missing account")
	}
}

func TestRemoveIdempotent(t *testing.T) {
	v, _ := newTestVault(t, nil)
	ctx := context.Background()

	if err := v.Store(ctx, "acc-1", &domain.TokenSet{AccessToken: "a"}, validInfo()); err != nil {
		t.Fatalf("Store() error: %v", err)
	}
	if err := v.Remove(ctx, "acc-1"); err != nil {
		t.Fatalf("Remove() error: %v", err)
	}
	if err := v.Remove(ctx, "acc-1"); err != nil {
		t.Errorf("Remove() second time error: %v", err)
	}
	got, err := v.GetTokens(ctx, "acc-1")
	if err != nil || got != nil {
		t.Errorf("GetTokens() after remove = (%+v, %v), want (nil, nil)", got, err)
	}
}

func TestValidateAndRefreshReturnsValidTokenWithoutNetwork(t *testing.T) {
	var calls int64
	r := refresherFunc(func(ctx context.Context, rt string) (*domain.TokenSet, error) {
		atomic.AddInt64(&calls, 1)
		return &domain.TokenSet{AccessToken: "new"}, nil
	})
	v, _ := newTestVault(t, r)
	ctx := context.Background()

	if err := v.Store(ctx, "acc-1", &domain.TokenSet{
		AccessToken: "still-good", RefreshToken: "r", Expiry: time.Now().Add(time.Hour),
	}, validInfo()); err != nil {
		t.Fatalf("Store() error: %v", err)
	}

	got, err := v.ValidateAndRefresh(ctx, "acc-1")
	if err != nil {
		t.Fatalf("ValidateAndRefresh() error: %v", err)
	}
	if got.AccessToken != "still-good" {
		t.Errorf("access token = %q, want the stored one", got.AccessToken)
	}
	if calls != 0 {
		t.Errorf("refresh calls = %d, want 0 for a valid token", calls)
	}
}

func TestValidateAndRefreshExpiredToken(t *testing.T) {
	r := refresherFunc(func(ctx context.Context, rt string) (*domain.TokenSet, error) {
		if rt != "r1" {
			t.Errorf("refresh token passed = %q, want r1", rt)
		}
		return &domain.TokenSet{
			AccessToken: "fresh", Expiry: time.Now().Add(time.Hour), TokenType: "Bearer",
		}, nil
	})
	v, _ := newTestVault(t, r)
	ctx := context.Background()

	if err := v.Store(ctx, "acc-1", &domain.TokenSet{
		AccessToken: "stale", RefreshToken: "r1", Expiry: time.Now().Add(-time.Minute),
	}, validInfo()); err != nil {
		t.Fatalf("Store() error: %v", err)
	}

	got, err := v.ValidateAndRefresh(ctx, "acc-1")
	if err != nil {
		t.Fatalf("ValidateAndRefresh() error: %v", err)
	}
	if got.AccessToken != "fresh" {
		t.Errorf("access token = %q, want fresh", got.AccessToken)
	}
	// The provider issued no new refresh token; the old one is carried over
	// and persisted.
	if got.RefreshToken != "r1" {
		t.Errorf("refresh token = %q, want r1", got.RefreshToken)
	}
	stored, err := v.GetTokens(ctx, "acc-1")
	if err != nil {
		t.Fatalf("GetTokens() error: %v", err)
	}
	if stored.AccessToken != "fresh" || stored.RefreshToken != "r1" {
		t.Errorf("persisted tokens = %+v, want fresh/r1", stored)
	}
}

func TestValidateAndRefreshNoRefreshToken(t *testing.T) {
	v, _ := newTestVault(t, nil)
	ctx := context.Background()

	if err := v.Store(ctx, "acc-1", &domain.TokenSet{
		AccessToken: "stale", Expiry: time.Now().Add(-time.Minute),
	}, validInfo()); err != nil {
		t.Fatalf("Store() error: %v", err)
	}

	_, err := v.ValidateAndRefresh(ctx, "acc-1")
	var oauthErr *errs.OAuthError
	if !errors.As(err, &oauthErr) {
		t.Fatalf("error = %T (%v), want *errs.OAuthError", err, err)
	}
}

func TestValidateAndRefreshCollapsesConcurrentCallers(t *testing.T) {
	var calls int64
	r := refresherFunc(func(ctx context.Context, rt string) (*domain.TokenSet, error) {
		atomic.AddInt64(&calls, 1)
		time.Sleep(50 * time.Millisecond) // hold the exchange open so callers pile up
		return &domain.TokenSet{
			AccessToken: "shared", RefreshToken: "r2", Expiry: time.Now().Add(time.Hour),
		}, nil
	})
	v, _ := newTestVault(t, r)
	ctx := context.Background()

	if err := v.Store(ctx, "acc-1", &domain.TokenSet{
		AccessToken: "stale", RefreshToken: "r1", Expiry: time.Now().Add(-time.Minute),
	}, validInfo()); err != nil {
		t.Fatalf("Store() error: %v", err)
	}

	const callers = 5
	results := make([]*domain.TokenSet, callers)
	errsOut := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errsOut[i] = v.ValidateAndRefresh(ctx, "acc-1")
		}(i)
	}
	wg.Wait()

	if calls != 1 {
		t.Errorf("network refresh calls = %d, want exactly 1", calls)
	}
	for i := 0; i < callers; i++ {
		if errsOut[i] != nil {
			t.Fatalf("caller %d error: %v", i, errsOut[i])
		}
		if results[i].AccessToken != "shared" {
			t.Errorf("caller %d access token = %q, want shared", i, results[i].AccessToken)
		}
	}
}
