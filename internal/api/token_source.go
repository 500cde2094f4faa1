package api

import (
	"context"

	"golang.org/x/oauth2"

	"github.com/evanrusso/gmailvault/internal/domain"
)

// TokenProvider yields a currently-valid token set, refreshing if needed.
// Satisfied by vault.Vault.
type TokenProvider interface {
	ValidateAndRefresh(ctx context.Context, accountID string) (*domain.TokenSet, error)
}

// vaultTokenSource adapts the vault to oauth2.TokenSource so every HTTP
// request the Gmail service issues goes through ValidateAndRefresh first.
type vaultTokenSource struct {
	ctx       context.Context
	vault     TokenProvider
	accountID string
}

func (s *vaultTokenSource) Token() (*oauth2.Token, error) {
	ts, err := s.vault.ValidateAndRefresh(s.ctx, s.accountID)
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{
		AccessToken:  ts.AccessToken,
		RefreshToken: ts.RefreshToken,
		Expiry:       ts.Expiry,
		TokenType:    ts.TokenType,
	}, nil
}
