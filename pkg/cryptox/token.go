package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// RefreshTokenSize is the entropy, in bytes, of an opaque refresh token
// (256 bits, 43 chars base64url). Refresh tokens are bearer secrets and
// must never be stored verbatim server-side; only their fingerprint is.
const RefreshTokenSize = 32

// GenerateToken creates a cryptographically secure random opaque token of
// size bytes, encoded base64url without padding.
func GenerateToken(size int) (string, error) {
	if size <= 0 {
		return "", fmt.Errorf("cryptox: token size must be positive, got %d", size)
	}

	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("cryptox: generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// FingerprintToken returns the deterministic SHA-256 fingerprint of an
// opaque token, base64url-encoded. Session rows store fingerprints so a
// database leak never yields usable refresh tokens, while lookups stay a
// single indexed equality match.
func FingerprintToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
