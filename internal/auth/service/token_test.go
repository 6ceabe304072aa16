package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/taskpadhq/taskpad/internal/auth/domain"
	"github.com/taskpadhq/taskpad/internal/auth/service"
	"github.com/taskpadhq/taskpad/internal/auth/store"
	"github.com/taskpadhq/taskpad/internal/auth/store/drivers/sqlite"
	"github.com/taskpadhq/taskpad/pkg/cryptox"
	"github.com/taskpadhq/taskpad/pkg/jwtx"
)

var testSecret = "0123456789abcdef0123456789abcdef"

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()

	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.ApplyMigrations())
	return s
}

func newTokenService(t *testing.T, st store.Store, rotation bool) *service.TokenService {
	t.Helper()

	codec, err := jwtx.NewCodec([]byte(testSecret), 30*time.Minute)
	require.NoError(t, err)

	return &service.TokenService{
		Codec:           codec,
		Store:           st,
		RefreshTTL:      7 * 24 * time.Hour,
		RotationEnabled: rotation,
	}
}

func seedServiceUser(t *testing.T, st store.Store) domain.User {
	t.Helper()

	users := &service.UserService{Store: st}
	u, err := users.CreateUser(context.Background(), "bob", "correct horse battery staple")
	require.NoError(t, err)
	return u
}

func TestIssueOnLogin(t *testing.T) {
	st := newTestStore(t)
	svc := newTokenService(t, st, true)
	ctx := context.Background()
	u := seedServiceUser(t, st)

	pair, err := svc.IssueOnLogin(ctx, u.ID, "203.0.113.5", "firefox")
	require.NoError(t, err)
	require.Equal(t, "Bearer", pair.TokenType)
	require.EqualValues(t, 1800, pair.ExpiresIn)
	require.NotEmpty(t, pair.RefreshToken)

	t.Run("access token verifies and names the user", func(t *testing.T) {
		claims, err := svc.Codec.Verify(pair.AccessToken, time.Now().UTC())
		require.NoError(t, err)
		require.Equal(t, u.ID, claims.Subject)
	})

	t.Run("only the fingerprint is persisted", func(t *testing.T) {
		sess, err := st.Sessions().GetSessionByTokenHash(ctx, cryptox.FingerprintToken(pair.RefreshToken))
		require.NoError(t, err)
		require.Equal(t, u.ID, sess.UserID)
		require.NotEqual(t, pair.RefreshToken, sess.TokenHash)
		require.Equal(t, "203.0.113.5", sess.IPAddress)
	})
}

func TestExchangeRotation(t *testing.T) {
	st := newTestStore(t)
	svc := newTokenService(t, st, true)
	ctx := context.Background()
	u := seedServiceUser(t, st)

	pair, err := svc.IssueOnLogin(ctx, u.ID, "", "")
	require.NoError(t, err)

	next, err := svc.Exchange(ctx, pair.RefreshToken)
	require.NoError(t, err)
	require.NotEmpty(t, next.AccessToken)
	require.NotEmpty(t, next.RefreshToken)
	require.NotEqual(t, pair.RefreshToken, next.RefreshToken)

	t.Run("old token is dead after rotation", func(t *testing.T) {
		_, err := svc.Exchange(ctx, pair.RefreshToken)
		require.ErrorIs(t, err, service.ErrInvalidRefresh)
	})

	t.Run("new token keeps working", func(t *testing.T) {
		again, err := svc.Exchange(ctx, next.RefreshToken)
		require.NoError(t, err)
		require.NotEmpty(t, again.RefreshToken)
	})
}

func TestExchangeWithoutRotation(t *testing.T) {
	st := newTestStore(t)
	svc := newTokenService(t, st, false)
	ctx := context.Background()
	u := seedServiceUser(t, st)

	pair, err := svc.IssueOnLogin(ctx, u.ID, "", "")
	require.NoError(t, err)

	for range 3 {
		next, err := svc.Exchange(ctx, pair.RefreshToken)
		require.NoError(t, err)
		require.NotEmpty(t, next.AccessToken)
		require.Empty(t, next.RefreshToken, "no new refresh token when rotation is off")
	}
}

func TestExchangeRejections(t *testing.T) {
	st := newTestStore(t)
	svc := newTokenService(t, st, true)
	ctx := context.Background()
	u := seedServiceUser(t, st)

	t.Run("unknown token", func(t *testing.T) {
		_, err := svc.Exchange(ctx, "completely-unknown-token")
		require.ErrorIs(t, err, service.ErrInvalidRefresh)
	})

	t.Run("revoked session", func(t *testing.T) {
		pair, err := svc.IssueOnLogin(ctx, u.ID, "", "")
		require.NoError(t, err)
		require.NoError(t, svc.RevokeByToken(ctx, pair.RefreshToken))

		_, err = svc.Exchange(ctx, pair.RefreshToken)
		require.ErrorIs(t, err, service.ErrInvalidRefresh)
	})

	t.Run("expired session", func(t *testing.T) {
		short := newTokenService(t, st, true)
		short.RefreshTTL = -time.Minute

		pair, err := short.IssueOnLogin(ctx, u.ID, "", "")
		require.NoError(t, err)

		_, err = svc.Exchange(ctx, pair.RefreshToken)
		require.ErrorIs(t, err, service.ErrInvalidRefresh)
	})
}

func TestExchangeConcurrentExactlyOnce(t *testing.T) {
	st := newTestStore(t)
	svc := newTokenService(t, st, true)
	ctx := context.Background()
	u := seedServiceUser(t, st)

	pair, err := svc.IssueOnLogin(ctx, u.ID, "", "")
	require.NoError(t, err)

	const callers = 8
	var wg sync.WaitGroup
	results := make([]error, callers)

	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, results[i] = svc.Exchange(ctx, pair.RefreshToken)
		}()
	}
	wg.Wait()

	var wins, losses int
	for _, err := range results {
		switch {
		case err == nil:
			wins++
		default:
			require.ErrorIs(t, err, service.ErrInvalidRefresh)
			losses++
		}
	}
	require.Equal(t, 1, wins, "exactly one concurrent exchange may rotate")
	require.Equal(t, callers-1, losses)
}

func TestRevokeByTokenIdempotent(t *testing.T) {
	st := newTestStore(t)
	svc := newTokenService(t, st, true)
	ctx := context.Background()
	u := seedServiceUser(t, st)

	pair, err := svc.IssueOnLogin(ctx, u.ID, "", "")
	require.NoError(t, err)

	require.NoError(t, svc.RevokeByToken(ctx, pair.RefreshToken))
	require.NoError(t, svc.RevokeByToken(ctx, pair.RefreshToken))
	require.NoError(t, svc.RevokeByToken(ctx, "never-issued"))
}

func TestRevokeSessionForUserOwnership(t *testing.T) {
	st := newTestStore(t)
	svc := newTokenService(t, st, true)
	ctx := context.Background()

	users := &service.UserService{Store: st}
	alice, err := users.CreateUser(ctx, "alice", "pw-alice-123456")
	require.NoError(t, err)
	mallory, err := users.CreateUser(ctx, "mallory", "pw-mallory-1234")
	require.NoError(t, err)

	pair, err := svc.IssueOnLogin(ctx, alice.ID, "", "")
	require.NoError(t, err)

	t.Run("foreign session looks nonexistent", func(t *testing.T) {
		err := svc.RevokeSessionForUser(ctx, mallory.ID, pair.SessionID)
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("owner can revoke", func(t *testing.T) {
		require.NoError(t, svc.RevokeSessionForUser(ctx, alice.ID, pair.SessionID))

		_, err := svc.Exchange(ctx, pair.RefreshToken)
		require.ErrorIs(t, err, service.ErrInvalidRefresh)
	})
}
