// Package vault is the single authority for token persistence and
// validity. Tokens are stored only in encrypted form; one TokenSet per
// account.
package vault

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/evanrusso/gmailvault/internal/domain"
	"github.com/evanrusso/gmailvault/internal/errs"
	"github.com/evanrusso/gmailvault/internal/secrets"
	"github.com/evanrusso/gmailvault/internal/store"
)

// Refresher exchanges a refresh grant for a fresh TokenSet. Satisfied by
// authflow.Coordinator.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*domain.TokenSet, error)
}

// UserInfo is the provider profile captured when storing tokens.
type UserInfo struct {
	Email       string
	DisplayName string
	PictureURL  string
	Scopes      []string
}

type refreshCall struct {
	done   chan struct{}
	tokens *domain.TokenSet
	err    error
}

// Vault stores one encrypted TokenSet per account and refreshes expired
// access tokens on demand. Concurrent refreshes for the same account are
// collapsed into one in-flight exchange so a single-use refresh token is
// never double-spent.
type Vault struct {
	store     store.Store
	cipher    *secrets.Cipher
	refresher Refresher

	mu       sync.Mutex
	inflight map[string]*refreshCall
}

// New returns a Vault over the given store and cipher.
func New(s store.Store, c *secrets.Cipher, r Refresher) *Vault {
	return &Vault{
		store:     s,
		cipher:    c,
		refresher: r,
		inflight:  make(map[string]*refreshCall),
	}
}

// Store encrypts and persists the token set, creating the account row if
// absent. If the provider issued no refresh token (subsequent non-consent
// authorizations), any previously stored one is kept.
func (v *Vault) Store(ctx context.Context, accountID string, tokens *domain.TokenSet, info UserInfo) error {
	if !strings.Contains(info.Email, "@") {
		return &errs.InvalidInputError{Field: "email", Reason: fmt.Sprintf("%q is not an email address", info.Email)}
	}

	accessEnc, err := v.cipher.EncryptString(tokens.AccessToken)
	if err != nil {
		return err
	}
	refreshEnc := ""
	if tokens.RefreshToken != "" {
		if refreshEnc, err = v.cipher.EncryptString(tokens.RefreshToken); err != nil {
			return err
		}
	}

	existing, err := v.store.GetAccount(ctx, accountID)
	if err != nil {
		return fmt.Errorf("failed to load account %s: %w", accountID, err)
	}
	if refreshEnc == "" && existing != nil {
		refreshEnc = existing.RefreshTokenEnc
	}

	rec := &store.AccountRecord{
		Account: domain.Account{
			ID:          accountID,
			Email:       info.Email,
			DisplayName: info.DisplayName,
			PictureURL:  info.PictureURL,
			Scopes:      info.Scopes,
			IsActive:    true,
		},
		AccessTokenEnc:  accessEnc,
		RefreshTokenEnc: refreshEnc,
		TokenExpiry:     tokens.Expiry,
		TokenType:       tokens.TokenType,
	}
	if existing != nil {
		rec.Account.UserID = existing.Account.UserID
		rec.Account.LastSyncAt = existing.Account.LastSyncAt
	}

	if err := v.store.UpsertAccount(ctx, rec); err != nil {
		return fmt.Errorf("failed to persist account %s: %w", accountID, err)
	}
	return nil
}

// GetTokens decrypts and returns the stored token set, or (nil, nil) when
// no active account row exists. Undecryptable ciphertext surfaces as a
// CryptoError: the account must be reauthorized, the data is never
// silently dropped.
func (v *Vault) GetTokens(ctx context.Context, accountID string) (*domain.TokenSet, error) {
	rec, err := v.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load account %s: %w", accountID, err)
	}
	if rec == nil || !rec.Account.IsActive {
		return nil, nil
	}
	return v.decryptTokens(rec)
}

func (v *Vault) decryptTokens(rec *store.AccountRecord) (*domain.TokenSet, error) {
	ts := &domain.TokenSet{
		Expiry:    rec.TokenExpiry,
		TokenType: rec.TokenType,
	}
	var err error
	if rec.AccessTokenEnc != "" {
		if ts.AccessToken, err = v.cipher.DecryptString(rec.AccessTokenEnc); err != nil {
			return nil, err
		}
	}
	if rec.RefreshTokenEnc != "" {
		if ts.RefreshToken, err = v.cipher.DecryptString(rec.RefreshTokenEnc); err != nil {
			return nil, err
		}
	}
	return ts, nil
}

// IsValid reports whether the stored access token is currently usable:
// true when no expiry is recorded, otherwise when the expiry lies in the
// future.
func (v *Vault) IsValid(ctx context.Context, accountID string) (bool, error) {
	rec, err := v.store.GetAccount(ctx, accountID)
	if err != nil {
		return false, fmt.Errorf("failed to load account %s: %w", accountID, err)
	}
	if rec == nil || !rec.Account.IsActive || rec.AccessTokenEnc == "" {
		return false, nil
	}
	if rec.TokenExpiry.IsZero() {
		return true, nil
	}
	return time.Now().Before(rec.TokenExpiry), nil
}

// Remove deletes the account row and its tokens. Removing a non-existent
// account is not an error.
func (v *Vault) Remove(ctx context.Context, accountID string) error {
	if err := v.store.DeleteAccount(ctx, accountID); err != nil {
		return fmt.Errorf("failed to remove account %s: %w", accountID, err)
	}
	return nil
}

// ValidateAndRefresh returns the stored token set if still valid, otherwise
// refreshes through the refresh grant and persists the result. Concurrent
// callers for the same account share one exchange and all receive the same
// refreshed tokens.
func (v *Vault) ValidateAndRefresh(ctx context.Context, accountID string) (*domain.TokenSet, error) {
	v.mu.Lock()
	if call, ok := v.inflight[accountID]; ok {
		v.mu.Unlock()
		select {
		case <-call.done:
			return call.tokens, call.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	call := &refreshCall{done: make(chan struct{})}
	v.inflight[accountID] = call
	v.mu.Unlock()

	call.tokens, call.err = v.validateAndRefresh(ctx, accountID)

	v.mu.Lock()
	delete(v.inflight, accountID)
	v.mu.Unlock()
	close(call.done)

	return call.tokens, call.err
}

func (v *Vault) validateAndRefresh(ctx context.Context, accountID string) (*domain.TokenSet, error) {
	rec, err := v.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load account %s: %w", accountID, err)
	}
	if rec == nil || !rec.Account.IsActive {
		return nil, &errs.OAuthError{Reason: fmt.Sprintf("account %s is not authorized", accountID)}
	}

	ts, err := v.decryptTokens(rec)
	if err != nil {
		return nil, err
	}
	if ts.Valid() {
		return ts, nil
	}
	if ts.RefreshToken == "" {
		return nil, &errs.OAuthError{Reason: fmt.Sprintf("no refresh token stored for account %s", accountID)}
	}

	refreshed, err := v.refresher.Refresh(ctx, ts.RefreshToken)
	if err != nil {
		return nil, err
	}
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = ts.RefreshToken
	}

	if err := v.persistRefreshed(ctx, rec, refreshed); err != nil {
		return nil, err
	}
	return refreshed, nil
}

func (v *Vault) persistRefreshed(ctx context.Context, rec *store.AccountRecord, ts *domain.TokenSet) error {
	var err error
	if rec.AccessTokenEnc, err = v.cipher.EncryptString(ts.AccessToken); err != nil {
		return err
	}
	if rec.RefreshTokenEnc, err = v.cipher.EncryptString(ts.RefreshToken); err != nil {
		return err
	}
	rec.TokenExpiry = ts.Expiry
	rec.TokenType = ts.TokenType
	if err := v.store.UpsertAccount(ctx, rec); err != nil {
		return fmt.Errorf("failed to persist refreshed tokens for %s: %w", rec.Account.ID, err)
	}
	return nil
}
