package domain

import "time"

// Session is one refresh-token grant: the server-side record a browser's
// refresh cookie (or a legacy session cookie) resolves to. Only the
// SHA-256 fingerprint of the opaque token is stored; the raw value lives
// exclusively in the client's cookie jar.
type Session struct {
	ID        string
	UserID    string
	TokenHash string

	// Captured at issuance for the device-management listing.
	IPAddress string
	UserAgent string

	CreatedAt      time.Time
	ExpiresAt      time.Time
	LastActivityAt time.Time
	Revoked        bool
}

// Active reports whether the session can still mint access tokens at
// the given instant.
func (s Session) Active(now time.Time) bool {
	return !s.Revoked && now.Before(s.ExpiresAt)
}

// TokenPair is the result of a login or a refresh exchange. The refresh
// token is deliberately excluded from JSON: it travels only in an
// HttpOnly cookie, never in a response body.
type TokenPair struct {
	AccessToken  string        `json:"access_token"`
	TokenType    string        `json:"token_type"`
	ExpiresIn    int64         `json:"expires_in"`
	RefreshToken string        `json:"-"`
	RefreshTTL   time.Duration `json:"-"`
	SessionID    string        `json:"-"`
}
