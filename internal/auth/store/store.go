package store

import (
	"context"
	"errors"
	"time"

	"github.com/taskpadhq/taskpad/internal/auth/domain"
)

var (
	// ErrNotFound is returned when a lookup matches no row, and by
	// conditional writes whose guard matched no row.
	ErrNotFound = errors.New("store: not found")

	// ErrAlreadyExists is returned when a unique constraint would be
	// violated.
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the persistence boundary for the auth service. Drivers for
// sqlite and postgres implement it.
type Store interface {
	Users() Users
	Sessions() Sessions

	// WithTx runs fn inside a transaction, committing on nil and rolling
	// back on error or panic.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	ApplyMigrations() error
	Ping(ctx context.Context) error
	Close() error
}

// Tx exposes the repositories bound to one open transaction.
type Tx interface {
	Users() Users
	Sessions() Sessions
}

type Users interface {
	CreateUser(ctx context.Context, u domain.User) error
	GetUserByID(ctx context.Context, id string) (domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)
}

type Sessions interface {
	CreateSession(ctx context.Context, s domain.Session) error
	GetSessionByID(ctx context.Context, id string) (domain.Session, error)
	GetSessionByTokenHash(ctx context.Context, tokenHash string) (domain.Session, error)

	// RotateSession atomically swaps the session's token fingerprint and
	// pushes out its expiry, but only if the session still carries
	// oldTokenHash, is unrevoked, and is unexpired at now. ErrNotFound
	// means the guard failed: a concurrent exchange already rotated or
	// revoked the session.
	RotateSession(ctx context.Context, id, oldTokenHash, newTokenHash string, expiresAt, now time.Time) error

	// TouchSession updates last_activity_at. Used when rotation is
	// disabled so the device listing still reflects recent use.
	TouchSession(ctx context.Context, id string, at time.Time) error

	// RevokeSession marks the session revoked. Revoking an already
	// revoked session is a no-op, not an error.
	RevokeSession(ctx context.Context, id string) error
	RevokeAllUserSessions(ctx context.Context, userID string) error

	ListActiveSessions(ctx context.Context, userID string, now time.Time) ([]domain.Session, error)

	// DeleteExpiredSessions removes rows whose expiry passed before
	// cutoff, returning how many were deleted.
	DeleteExpiredSessions(ctx context.Context, cutoff time.Time) (int64, error)
}
