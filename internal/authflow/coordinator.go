// Package authflow runs the OAuth2 authorization-code flow with PKCE and
// the refresh grant. A Coordinator owns the map of pending authorizations;
// construct one at startup and share it by reference.
package authflow

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/evanrusso/gmailvault/internal/domain"
	"github.com/evanrusso/gmailvault/internal/errs"
)

// DefaultScopes cover read, send, and label modification.
var DefaultScopes = []string{
	gmailapi.GmailReadonlyScope,
	gmailapi.GmailSendScope,
	gmailapi.GmailModifyScope,
}

// pendingTTL bounds how long an authorization may sit awaiting its callback.
const pendingTTL = 10 * time.Minute

// Config carries the OAuth client settings. No credentials are embedded in
// the binary; users supply their own Google Cloud OAuth client.
type Config struct {
	ClientID     string
	ClientSecret string
	Scopes       []string
	RedirectURL  string
	// Endpoint overrides the provider endpoints; zero value means Google.
	Endpoint oauth2.Endpoint
	// TTL overrides the pending-authorization timeout; zero means 10 minutes.
	TTL time.Duration
}

type pendingAuth struct {
	verifier    string
	redirectURL string
	createdAt   time.Time
}

// Coordinator drives authorization attempts. Each attempt is keyed by a
// single-use random state token; entries expire after the TTL and are
// garbage-collected on every StartAuthorization call.
type Coordinator struct {
	cfg oauth2.Config
	ttl time.Duration

	mu      sync.Mutex
	pending map[string]*pendingAuth

	now func() time.Time
}

// NewCoordinator returns a Coordinator for the given OAuth client.
func NewCoordinator(cfg Config) *Coordinator {
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	endpoint := cfg.Endpoint
	if endpoint.AuthURL == "" && endpoint.TokenURL == "" {
		endpoint = google.Endpoint
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = pendingTTL
	}
	return &Coordinator{
		cfg: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Scopes:       scopes,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
		},
		ttl:     ttl,
		pending: make(map[string]*pendingAuth),
		now:     time.Now,
	}
}

// Authorization is a started authorization attempt. Direct the user's
// browser to AuthURL; the provider redirects back carrying State.
type Authorization struct {
	AuthURL string
	State   string
}

// StartAuthorization builds the provider authorization URL with a fresh
// PKCE challenge and state token, and registers the attempt. Expired
// attempts are swept on every call so the map stays bounded.
func (c *Coordinator) StartAuthorization(redirectOverride string) (*Authorization, error) {
	state, err := randomToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate state token: %w", err)
	}
	verifier := oauth2.GenerateVerifier()

	conf := c.cfg
	if redirectOverride != "" {
		conf.RedirectURL = redirectOverride
	}
	authURL := conf.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.S256ChallengeOption(verifier),
	)

	c.mu.Lock()
	c.sweepLocked()
	c.pending[state] = &pendingAuth{
		verifier:    verifier,
		redirectURL: conf.RedirectURL,
		createdAt:   c.now(),
	}
	c.mu.Unlock()

	return &Authorization{AuthURL: authURL, State: state}, nil
}

// CompleteAuthorization consumes the pending attempt matching state and
// exchanges the authorization code for tokens. A state token can be
// consumed exactly once; unknown, reused, or expired states fail.
func (c *Coordinator) CompleteAuthorization(ctx context.Context, code, state string) (*domain.TokenSet, error) {
	c.mu.Lock()
	p, ok := c.pending[state]
	if ok {
		delete(c.pending, state)
	}
	c.mu.Unlock()

	if !ok || c.now().Sub(p.createdAt) > c.ttl {
		return nil, &errs.OAuthError{Reason: "invalid or expired authorization state"}
	}

	conf := c.cfg
	conf.RedirectURL = p.redirectURL
	token, err := conf.Exchange(ctx, code, oauth2.VerifierOption(p.verifier))
	if err != nil {
		return nil, &errs.OAuthError{Reason: "authorization code exchange failed", Err: err}
	}
	return fromOAuth2Token(token), nil
}

// Refresh exchanges a refresh grant. If the provider does not reissue a
// refresh token, the caller's previous one is carried over.
func (c *Coordinator) Refresh(ctx context.Context, refreshToken string) (*domain.TokenSet, error) {
	if refreshToken == "" {
		return nil, &errs.OAuthError{Reason: "no refresh token available"}
	}
	src := c.cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := src.Token()
	if err != nil {
		return nil, &errs.OAuthError{Reason: "refresh grant rejected", Err: err}
	}
	ts := fromOAuth2Token(token)
	if ts.RefreshToken == "" {
		ts.RefreshToken = refreshToken
	}
	return ts, nil
}

// PendingCount reports the number of authorization attempts still awaiting
// their callback.
func (c *Coordinator) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Coordinator) sweepLocked() {
	cutoff := c.now().Add(-c.ttl)
	for state, p := range c.pending {
		if p.createdAt.Before(cutoff) {
			delete(c.pending, state)
		}
	}
}

func fromOAuth2Token(t *oauth2.Token) *domain.TokenSet {
	tokenType := t.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	return &domain.TokenSet{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		Expiry:       t.Expiry,
		TokenType:    tokenType,
	}
}

func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
