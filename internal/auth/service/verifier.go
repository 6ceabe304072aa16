package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/taskpadhq/taskpad/internal/auth/store"
	"github.com/taskpadhq/taskpad/pkg/cryptox"
	"github.com/taskpadhq/taskpad/pkg/httpx"
	"github.com/taskpadhq/taskpad/pkg/jwtx"
	"github.com/taskpadhq/taskpad/pkg/slogx"
)

// HybridVerifier authenticates requests during the migration window
// where JWT-carrying and legacy session-cookie clients coexist.
//
// Order matters: a bearer token that parses as one of our JWTs is
// decided entirely by signature and expiry. An expired or tampered JWT
// never falls back to the session store, otherwise tampering could be
// masked by a still-valid cookie. Only tokens that are not JWTs at all
// (or requests with no bearer token) go down the legacy lookup.
type HybridVerifier struct {
	Codec *jwtx.Codec
	Store store.Store

	// JWTEnabled gates the stateless path. With it off every request is
	// authenticated against the session store, which is the rollback
	// switch if the JWT rollout misbehaves.
	JWTEnabled bool
}

var _ httpx.Authenticator = (*HybridVerifier)(nil)

func (v *HybridVerifier) Authenticate(ctx context.Context, bearer, sessionCookie string) (httpx.Identity, error) {
	now := time.Now().UTC()
	log := slogx.FromContext(ctx)

	if v.JWTEnabled && bearer != "" {
		claims, err := v.Codec.Verify(bearer, now)
		switch {
		case err == nil:
			return httpx.Identity{UserID: claims.Subject, Method: "jwt"}, nil

		case errors.Is(err, jwtx.ErrMalformed):
			// Not a token we minted; it may be a legacy opaque session
			// token sent in the Authorization header.
			log.Debug("bearer token is not a jwt, trying legacy path")

		default:
			// Expired, bad signature, or wrong token type. Terminal:
			// the client must refresh or re-login.
			log.Warn("access token rejected", "reason", reasonForJWTError(err))
			return httpx.Identity{}, httpx.ErrUnauthenticated
		}
	}

	// Legacy path: the opaque token arrives in the session cookie, or
	// in the Authorization header when the cookie is absent.
	candidate := sessionCookie
	if candidate == "" {
		candidate = bearer
	}
	if candidate == "" {
		return httpx.Identity{}, httpx.ErrUnauthenticated
	}

	sess, err := v.Store.Sessions().GetSessionByTokenHash(ctx, cryptox.FingerprintToken(candidate))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Warn("session auth rejected", "reason", "unknown_token")
			return httpx.Identity{}, httpx.ErrUnauthenticated
		}
		// Store fault, not a credential problem; surfaces as 503.
		return httpx.Identity{}, fmt.Errorf("lookup session: %w", err)
	}

	if !sess.Active(now) {
		log.Warn("session auth rejected", "reason", "inactive", "session_id", sess.ID)
		return httpx.Identity{}, httpx.ErrUnauthenticated
	}

	return httpx.Identity{UserID: sess.UserID, SessionID: sess.ID, Method: "session"}, nil
}

func reasonForJWTError(err error) string {
	switch {
	case errors.Is(err, jwtx.ErrExpired):
		return "expired"
	case errors.Is(err, jwtx.ErrInvalidSig):
		return "invalid_signature"
	case errors.Is(err, jwtx.ErrWrongTokenType):
		return "wrong_token_type"
	default:
		return "malformed"
	}
}
