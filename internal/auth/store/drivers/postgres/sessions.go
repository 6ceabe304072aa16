package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/taskpadhq/taskpad/internal/auth/domain"
	"github.com/taskpadhq/taskpad/internal/auth/store"
)

type sessionsRepo struct {
	q querier
}

const sessionColumns = `id, user_id, token_hash, ip_address, user_agent,
	created_at, expires_at, last_activity_at, revoked`

func (r *sessionsRepo) CreateSession(ctx context.Context, s domain.Session) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		s.ID, s.UserID, s.TokenHash, s.IPAddress, s.UserAgent,
		s.CreatedAt, s.ExpiresAt, s.LastActivityAt, s.Revoked,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrAlreadyExists
		}
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (r *sessionsRepo) GetSessionByID(ctx context.Context, id string) (domain.Session, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	return scanSession(row)
}

func (r *sessionsRepo) GetSessionByTokenHash(ctx context.Context, tokenHash string) (domain.Session, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions WHERE token_hash = $1`, tokenHash)
	return scanSession(row)
}

func (r *sessionsRepo) RotateSession(ctx context.Context, id, oldTokenHash, newTokenHash string, expiresAt, now time.Time) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE sessions
		SET token_hash = $1, expires_at = $2, last_activity_at = $3
		WHERE id = $4 AND token_hash = $5 AND NOT revoked AND expires_at > $6`,
		newTokenHash, expiresAt, now, id, oldTokenHash, now,
	)
	if err != nil {
		return fmt.Errorf("rotate session: %w", err)
	}
	return requireRowsAffected(res)
}

func (r *sessionsRepo) TouchSession(ctx context.Context, id string, at time.Time) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE sessions SET last_activity_at = $1 WHERE id = $2`, at, id)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return requireRowsAffected(res)
}

func (r *sessionsRepo) RevokeSession(ctx context.Context, id string) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE sessions SET revoked = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return requireRowsAffected(res)
}

func (r *sessionsRepo) RevokeAllUserSessions(ctx context.Context, userID string) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE sessions SET revoked = TRUE WHERE user_id = $1 AND NOT revoked`, userID)
	if err != nil {
		return fmt.Errorf("revoke user sessions: %w", err)
	}
	return nil
}

func (r *sessionsRepo) ListActiveSessions(ctx context.Context, userID string, now time.Time) ([]domain.Session, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE user_id = $1 AND NOT revoked AND expires_at > $2
		ORDER BY last_activity_at DESC`,
		userID, now,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func (r *sessionsRepo) DeleteExpiredSessions(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.q.ExecContext(ctx, `
		DELETE FROM sessions WHERE expires_at <= $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (domain.Session, error) {
	var s domain.Session
	err := row.Scan(
		&s.ID, &s.UserID, &s.TokenHash, &s.IPAddress, &s.UserAgent,
		&s.CreatedAt, &s.ExpiresAt, &s.LastActivityAt, &s.Revoked,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, store.ErrNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("scan session: %w", err)
	}
	return s, nil
}

func requireRowsAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
