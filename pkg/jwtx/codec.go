package jwtx

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Default token TTL constants. Short-lived access tokens keep the
// revocation-latency window bounded; the refresh token carries the
// long-lived session.
const (
	// DefaultAccessTokenTTL is the default lifetime for access tokens.
	DefaultAccessTokenTTL = 30 * time.Minute

	// DefaultRefreshTokenTTL is the default lifetime for refresh tokens.
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
)

// TokenTypeAccess is the required "type" claim value for access tokens.
// The claim exists so a refresh or reset token can never be replayed as
// an access token even if a future token kind reuses the same signer.
const TokenTypeAccess = "access"

// MinSecretLength is the minimum HMAC secret size in bytes.
const MinSecretLength = 32

var (
	ErrMalformed      = errors.New("jwtx: malformed token")
	ErrExpired        = errors.New("jwtx: token expired")
	ErrInvalidSig     = errors.New("jwtx: invalid signature")
	ErrWrongTokenType = errors.New("jwtx: wrong token type")
	ErrWeakSecret     = errors.New("jwtx: signing secret shorter than 32 bytes")
)

// Claims are the access-token claims. Required fields are validated at
// decode time; tokens missing any of them are rejected as malformed
// rather than trusted structurally.
type Claims struct {
	jwt.RegisteredClaims

	// TokenType distinguishes access tokens from any other signed
	// artifact. Must equal TokenTypeAccess.
	TokenType string `json:"type"`
}

// Codec signs and verifies access tokens with HMAC-SHA256. It is a pure
// component: no I/O, no clock of its own (callers pass "now"), safe for
// concurrent use.
type Codec struct {
	secret []byte
	ttl    time.Duration
}

// NewCodec builds a Codec from a shared secret. The secret must carry at
// least MinSecretLength bytes; TTL defaults to DefaultAccessTokenTTL when
// zero or negative.
func NewCodec(secret []byte, ttl time.Duration) (*Codec, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrWeakSecret
	}
	if ttl <= 0 {
		ttl = DefaultAccessTokenTTL
	}
	return &Codec{secret: secret, ttl: ttl}, nil
}

// TTL returns the configured access-token lifetime.
func (c *Codec) TTL() time.Duration { return c.ttl }

// Sign mints a compact access token for subject, issued at now.
func (c *Codec) Sign(subject string, now time.Time) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
		TokenType: TokenTypeAccess,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("jwtx: sign: %w", err)
	}
	return signed, nil
}

// Verify checks signature and claims against now and returns the claims.
// Failures map onto the package sentinels:
//
//	ErrInvalidSig     - signature does not match (tampered/forged)
//	ErrExpired        - good signature, past exp
//	ErrWrongTokenType - good signature, "type" claim is not "access"
//	ErrMalformed      - anything structurally wrong, including missing
//	                    required claims
//
// Verification never touches a store; the signature and claims are the
// whole truth. The underlying HMAC comparison is constant-time.
func (c *Codec) Verify(raw string, now time.Time) (Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithExpirationRequired(),
	)

	var claims Claims
	_, err := parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return Claims{}, ErrInvalidSig
		case errors.Is(err, jwt.ErrTokenExpired):
			return Claims{}, ErrExpired
		default:
			return Claims{}, ErrMalformed
		}
	}

	if claims.TokenType != TokenTypeAccess {
		return Claims{}, ErrWrongTokenType
	}
	if claims.Subject == "" || claims.IssuedAt == nil || claims.ExpiresAt == nil {
		return Claims{}, ErrMalformed
	}

	return claims, nil
}
