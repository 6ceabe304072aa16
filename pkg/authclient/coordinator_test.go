package authclient_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/taskpadhq/taskpad/pkg/authclient"
)

// fakeRefresher counts exchanges and can be scripted to fail.
type fakeRefresher struct {
	calls   atomic.Int64
	delay   time.Duration
	errs    []error // consumed per call before succeeding
	errsIdx atomic.Int64
}

func (f *fakeRefresher) Refresh(ctx context.Context) (authclient.TokenResponse, error) {
	n := f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return authclient.TokenResponse{}, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	if i := f.errsIdx.Add(1) - 1; int(i) < len(f.errs) {
		return authclient.TokenResponse{}, f.errs[i]
	}
	return authclient.TokenResponse{AccessToken: fmt.Sprintf("token-%d", n)}, nil
}

func TestCoordinatorExactlyOnceAcrossTabs(t *testing.T) {
	refresher := &fakeRefresher{delay: 20 * time.Millisecond}
	lock := authclient.NewMemoryLock()
	broadcast := authclient.NewMemoryBroadcast()
	state := authclient.NewMemoryStateStore()

	const tabs = 8
	tokens := make([]string, tabs)
	errs := make([]error, tabs)

	var wg sync.WaitGroup
	for i := range tabs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			coord := authclient.NewCoordinator(refresher, lock, broadcast, state)
			tokens[i], errs[i] = coord.Refresh(context.Background())
		}()
	}
	wg.Wait()

	for i := range tabs {
		require.NoError(t, errs[i])
		require.Equal(t, "token-1", tokens[i], "every tab adopts the single winner's token")
	}
	require.EqualValues(t, 1, refresher.calls.Load(), "only one exchange may hit the network")
}

func TestCoordinatorRetriesTransientFailures(t *testing.T) {
	refresher := &fakeRefresher{
		errs: []error{authclient.ErrUnavailable, authclient.ErrUnavailable},
	}
	coord := authclient.NewCoordinator(refresher,
		authclient.NewMemoryLock(), authclient.NewMemoryBroadcast(),
		authclient.NewMemoryStateStore())
	coord.Backoff = time.Millisecond

	token, err := coord.Refresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, "token-3", token)
	require.EqualValues(t, 3, refresher.calls.Load())
	require.Equal(t, token, coord.AccessToken())
}

func TestCoordinatorGivesUpAfterMaxAttempts(t *testing.T) {
	refresher := &fakeRefresher{
		errs: []error{
			authclient.ErrUnavailable,
			authclient.ErrUnavailable,
			authclient.ErrUnavailable,
		},
	}
	coord := authclient.NewCoordinator(refresher,
		authclient.NewMemoryLock(), authclient.NewMemoryBroadcast(),
		authclient.NewMemoryStateStore())
	coord.Backoff = time.Millisecond

	_, err := coord.Refresh(context.Background())
	require.ErrorIs(t, err, authclient.ErrUnavailable)
	require.EqualValues(t, 3, refresher.calls.Load())
}

func TestCoordinatorUnauthorizedIsTerminal(t *testing.T) {
	refresher := &fakeRefresher{
		delay: 10 * time.Millisecond,
		errs:  []error{authclient.ErrUnauthorized},
	}
	lock := authclient.NewMemoryLock()
	broadcast := authclient.NewMemoryBroadcast()
	state := authclient.NewMemoryStateStore()

	const tabs = 4
	errs := make([]error, tabs)

	var wg sync.WaitGroup
	for i := range tabs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			coord := authclient.NewCoordinator(refresher, lock, broadcast, state)
			_, errs[i] = coord.Refresh(context.Background())
		}()
	}
	wg.Wait()

	for i := range tabs {
		require.ErrorIs(t, errs[i], authclient.ErrUnauthorized,
			"terminal failure must fan out; no retry storm")
	}
	require.EqualValues(t, 1, refresher.calls.Load())
}

func TestCoordinatorTakesOverStaleLock(t *testing.T) {
	refresher := &fakeRefresher{}
	lock := authclient.NewMemoryLock()
	broadcast := authclient.NewMemoryBroadcast()

	// A "crashed tab" grabbed the lock and never released it.
	held, err := lock.TryAcquire(context.Background(), "crashed-tab", 30*time.Millisecond)
	require.NoError(t, err)
	require.True(t, held)

	coord := authclient.NewCoordinator(refresher, lock, broadcast,
		authclient.NewMemoryStateStore())
	coord.LockTTL = 30 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	token, err := coord.Refresh(ctx)
	require.NoError(t, err)
	require.Equal(t, "token-1", token)
}

func TestCoordinatorContextCancellation(t *testing.T) {
	refresher := &fakeRefresher{}
	lock := authclient.NewMemoryLock()

	// Lock is held with a long TTL; the follower should give up when
	// its context does.
	held, err := lock.TryAcquire(context.Background(), "other-tab", time.Hour)
	require.NoError(t, err)
	require.True(t, held)

	coord := authclient.NewCoordinator(refresher, lock,
		authclient.NewMemoryBroadcast(), authclient.NewMemoryStateStore())
	coord.LockTTL = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = coord.Refresh(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Zero(t, refresher.calls.Load())
}
