package authclient

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultLockTTL bounds how long a crashed refresher can block the
	// other tabs. It must comfortably exceed one refresh round trip.
	DefaultLockTTL = 5 * time.Second

	// DefaultMaxAttempts bounds retries of a transiently failing
	// refresh before giving up and broadcasting the failure.
	DefaultMaxAttempts = 3

	// DefaultBackoff is the first retry delay; later attempts double it.
	DefaultBackoff = 250 * time.Millisecond
)

// Refresher performs one token exchange. *Client implements it.
type Refresher interface {
	Refresh(ctx context.Context) (TokenResponse, error)
}

// Coordinator collapses concurrent refresh attempts from many tabs into
// exactly one network exchange. Whoever wins the TTL lock refreshes,
// records the outcome in the shared StateStore, and broadcasts it;
// everyone else adopts that outcome. With single-use rotating refresh
// tokens this is a correctness requirement, not an optimization: a
// second concurrent exchange would present an already-rotated token and
// kill the session.
type Coordinator struct {
	Refresher Refresher
	Lock      Lock
	Broadcast Broadcast
	State     StateStore

	// TabID identifies this participant as a lock owner.
	TabID string

	LockTTL     time.Duration
	MaxAttempts int
	Backoff     time.Duration

	mu    sync.Mutex
	token string
}

// NewCoordinator builds a coordinator with default timing. Every
// coordinator sharing a session must be given the same Lock, Broadcast,
// and StateStore.
func NewCoordinator(r Refresher, lock Lock, broadcast Broadcast, state StateStore) *Coordinator {
	return &Coordinator{
		Refresher:   r,
		Lock:        lock,
		Broadcast:   broadcast,
		State:       state,
		TabID:       uuid.NewString(),
		LockTTL:     DefaultLockTTL,
		MaxAttempts: DefaultMaxAttempts,
		Backoff:     DefaultBackoff,
	}
}

// AccessToken returns the most recently adopted access token.
func (c *Coordinator) AccessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// SetAccessToken seeds the cache, typically right after login.
func (c *Coordinator) SetAccessToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Refresh returns a fresh access token, performing at most one
// underlying exchange across every coordinator sharing the same
// primitives. Followers block until the winner announces an outcome, a
// lock TTL lapses (crashed winner), or ctx is done.
//
// ErrUnauthorized is terminal: the session is gone and the user must
// log in again. Transient failures are retried with exponential backoff
// before being reported.
func (c *Coordinator) Refresh(ctx context.Context) (string, error) {
	started := time.Now()

	msgs, cancel, err := c.Broadcast.Subscribe(ctx)
	if err != nil {
		return "", err
	}
	defer cancel()

	for {
		acquired, err := c.Lock.TryAcquire(ctx, c.TabID, c.LockTTL)
		if err != nil {
			return "", err
		}

		if !acquired {
			if err := c.waitForOutcome(ctx, msgs); err != nil {
				if errors.Is(err, errRetry) {
					continue
				}
				return "", err
			}
			return c.AccessToken(), nil
		}

		// Won the lock, but a previous winner may have finished after
		// this attempt started; adopt its outcome rather than spending
		// the refresh token again.
		out, ok, err := c.State.Load(ctx)
		if err != nil {
			_ = c.Lock.Release(ctx, c.TabID)
			return "", err
		}
		if ok && out.At.After(started) {
			_ = c.Lock.Release(ctx, c.TabID)
			if out.Terminal {
				return "", ErrUnauthorized
			}
			c.SetAccessToken(out.Token)
			return out.Token, nil
		}

		return c.refreshAsWinner(ctx)
	}
}

// errRetry tells the acquire loop to contend for the lock again.
var errRetry = errors.New("authclient: retry acquire")

// waitForOutcome blocks a follower until the winner reports, the lock
// TTL lapses, or ctx is done. A nil return means a token was adopted.
func (c *Coordinator) waitForOutcome(ctx context.Context, msgs <-chan Message) error {
	select {
	case <-ctx.Done():
		return ctx.Err()

	case msg, ok := <-msgs:
		if !ok {
			return errors.New("authclient: broadcast closed")
		}
		switch msg.Type {
		case MsgTokenRefreshed:
			c.SetAccessToken(msg.AccessToken)
			return nil
		case MsgRefreshFailed:
			if msg.Terminal {
				return ErrUnauthorized
			}
		}
		// Non-terminal failure: contend for the lock ourselves.
		return errRetry

	case <-time.After(c.LockTTL):
		// The winner may have died holding the lock; its TTL has
		// lapsed by now.
		return errRetry
	}
}

func (c *Coordinator) refreshAsWinner(ctx context.Context) (string, error) {
	defer func() {
		_ = c.Lock.Release(context.WithoutCancel(ctx), c.TabID)
	}()

	var lastErr error
	for attempt := 0; attempt < c.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(c.Backoff << (attempt - 1)):
			}
			// Keep the lock alive across the backoff.
			if _, err := c.Lock.TryAcquire(ctx, c.TabID, c.LockTTL); err != nil {
				return "", err
			}
		}

		tr, err := c.Refresher.Refresh(ctx)
		if err == nil {
			c.SetAccessToken(tr.AccessToken)
			_ = c.State.Store(ctx, Outcome{Token: tr.AccessToken, At: time.Now()})
			_ = c.Broadcast.Publish(ctx, Message{Type: MsgTokenRefreshed, OwnerID: c.TabID, AccessToken: tr.AccessToken})
			return tr.AccessToken, nil
		}

		if errors.Is(err, ErrUnauthorized) {
			_ = c.State.Store(ctx, Outcome{Terminal: true, At: time.Now()})
			_ = c.Broadcast.Publish(ctx, Message{Type: MsgRefreshFailed, OwnerID: c.TabID, Terminal: true})
			return "", err
		}
		lastErr = err
	}

	// Transient exhaustion is not recorded in shared state; a later
	// attempt from any tab should be free to try again.
	_ = c.Broadcast.Publish(ctx, Message{Type: MsgRefreshFailed, OwnerID: c.TabID})
	return "", lastErr
}
