package domain

import "time"

// TokenSet is the OAuth2 token material for one account. The access token
// is short-lived; the refresh token is long-lived and may be absent (Google
// only issues it on consenting authorizations).
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
	TokenType    string
}

// Valid reports whether the access token can still be used. A zero Expiry
// means the token never expires.
func (t *TokenSet) Valid() bool {
	if t == nil || t.AccessToken == "" {
		return false
	}
	if t.Expiry.IsZero() {
		return true
	}
	return time.Now().Before(t.Expiry)
}
