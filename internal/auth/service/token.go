package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/taskpadhq/taskpad/internal/auth/domain"
	"github.com/taskpadhq/taskpad/internal/auth/store"
	"github.com/taskpadhq/taskpad/pkg/cryptox"
	"github.com/taskpadhq/taskpad/pkg/idx"
	"github.com/taskpadhq/taskpad/pkg/jwtx"
	"github.com/taskpadhq/taskpad/pkg/slogx"
)

// ErrInvalidRefresh covers every way a refresh token can be bad:
// unknown, expired, or revoked. Collapsing them denies an attacker a
// validity oracle; the precise reason is logged server-side.
var ErrInvalidRefresh = errors.New("invalid refresh token")

// TokenService issues access/refresh pairs and exchanges refresh tokens
// for new access tokens.
type TokenService struct {
	Codec *jwtx.Codec
	Store store.Store

	// RefreshTTL is the lifetime of a newly minted (or rotated) refresh
	// token.
	RefreshTTL time.Duration

	// RotationEnabled controls whether each exchange replaces the
	// refresh token. When false the presented token stays valid until
	// its original expiry.
	RotationEnabled bool
}

// IssueOnLogin mints a fresh token pair for a user who just proved
// their credentials, persisting a new session record. The returned
// pair carries the raw refresh token exactly once; only its SHA-256
// fingerprint is stored.
func (s *TokenService) IssueOnLogin(ctx context.Context, userID, ip, userAgent string) (*domain.TokenPair, error) {
	now := time.Now().UTC()

	opaque, err := cryptox.GenerateToken(cryptox.RefreshTokenSize)
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}

	access, err := s.Codec.Sign(userID, now)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	sess := domain.Session{
		ID:             idx.New().String(),
		UserID:         userID,
		TokenHash:      cryptox.FingerprintToken(opaque),
		IPAddress:      ip,
		UserAgent:      userAgent,
		CreatedAt:      now,
		ExpiresAt:      now.Add(s.RefreshTTL),
		LastActivityAt: now,
	}
	if err := s.Store.Sessions().CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	slogx.FromContext(ctx).Info("session created",
		"user_id", userID,
		"session_id", sess.ID,
	)

	return &domain.TokenPair{
		AccessToken:  access,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.Codec.TTL().Seconds()),
		RefreshToken: opaque,
		RefreshTTL:   s.RefreshTTL,
		SessionID:    sess.ID,
	}, nil
}

// Exchange validates a presented refresh token and mints a new access
// token. With rotation enabled the refresh token is atomically replaced
// as well; the conditional update in the store guarantees that of any
// concurrent exchanges for the same token, exactly one wins and the
// rest see ErrInvalidRefresh.
//
// Any reason the token is unusable (unknown, expired, revoked, lost
// rotation race) surfaces as ErrInvalidRefresh. Store faults pass
// through distinct so the transport can answer 503 instead of telling
// the client to discard its token.
func (s *TokenService) Exchange(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	now := time.Now().UTC()
	log := slogx.FromContext(ctx)

	fingerprint := cryptox.FingerprintToken(refreshToken)
	sess, err := s.Store.Sessions().GetSessionByTokenHash(ctx, fingerprint)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Warn("refresh rejected", "reason", "unknown_token")
			return nil, ErrInvalidRefresh
		}
		return nil, fmt.Errorf("lookup session: %w", err)
	}

	if sess.Revoked {
		log.Warn("refresh rejected", "reason", "revoked", "session_id", sess.ID, "user_id", sess.UserID)
		return nil, ErrInvalidRefresh
	}
	if !now.Before(sess.ExpiresAt) {
		log.Warn("refresh rejected", "reason", "expired", "session_id", sess.ID, "user_id", sess.UserID)
		return nil, ErrInvalidRefresh
	}

	access, err := s.Codec.Sign(sess.UserID, now)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	pair := &domain.TokenPair{
		AccessToken: access,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.Codec.TTL().Seconds()),
		SessionID:   sess.ID,
	}

	if !s.RotationEnabled {
		if err := s.Store.Sessions().TouchSession(ctx, sess.ID, now); err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("touch session: %w", err)
		}
		return pair, nil
	}

	newOpaque, err := cryptox.GenerateToken(cryptox.RefreshTokenSize)
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}

	err = s.Store.Sessions().RotateSession(ctx, sess.ID, fingerprint,
		cryptox.FingerprintToken(newOpaque), now.Add(s.RefreshTTL), now)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// A concurrent exchange rotated or revoked the session after
			// our read.
			log.Warn("refresh rejected", "reason", "rotation_race", "session_id", sess.ID, "user_id", sess.UserID)
			return nil, ErrInvalidRefresh
		}
		return nil, fmt.Errorf("rotate session: %w", err)
	}

	log.Info("refresh token rotated", "session_id", sess.ID, "user_id", sess.UserID)

	pair.RefreshToken = newOpaque
	pair.RefreshTTL = s.RefreshTTL
	return pair, nil
}

// RevokeByToken revokes the session behind a refresh token. Unknown or
// already-revoked tokens are not an error; logout is idempotent.
func (s *TokenService) RevokeByToken(ctx context.Context, refreshToken string) error {
	sess, err := s.Store.Sessions().GetSessionByTokenHash(ctx, cryptox.FingerprintToken(refreshToken))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("lookup session: %w", err)
	}

	if err := s.Store.Sessions().RevokeSession(ctx, sess.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("revoke session: %w", err)
	}

	slogx.FromContext(ctx).Info("session revoked",
		"session_id", sess.ID,
		"user_id", sess.UserID,
	)
	return nil
}

// ListSessions returns the user's active sessions for the device
// management view.
func (s *TokenService) ListSessions(ctx context.Context, userID string) ([]domain.Session, error) {
	return s.Store.Sessions().ListActiveSessions(ctx, userID, time.Now().UTC())
}

// RevokeSessionForUser revokes one of the user's own sessions.
// store.ErrNotFound covers both a nonexistent session and one owned by
// somebody else, so the endpoint cannot be used to probe other users'
// session ids.
func (s *TokenService) RevokeSessionForUser(ctx context.Context, userID, sessionID string) error {
	sess, err := s.Store.Sessions().GetSessionByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.UserID != userID {
		return store.ErrNotFound
	}
	return s.Store.Sessions().RevokeSession(ctx, sessionID)
}

// RevokeAllForUser signs the user out everywhere.
func (s *TokenService) RevokeAllForUser(ctx context.Context, userID string) error {
	if err := s.Store.Sessions().RevokeAllUserSessions(ctx, userID); err != nil {
		return fmt.Errorf("revoke all sessions: %w", err)
	}
	slogx.FromContext(ctx).Info("all sessions revoked", "user_id", userID)
	return nil
}
