package authclient

import (
	"context"
	"sync"
	"time"
)

// Lock is the mutual-exclusion primitive refresh coordination runs on.
// Acquisition is a compare-and-set against a TTL-stamped owner record:
// a holder that dies without releasing is taken over once its TTL
// lapses, so a crashed tab can never wedge refresh for everyone else.
type Lock interface {
	// TryAcquire attempts to take the lock for owner with the given
	// TTL. Returns false without blocking when another live owner holds
	// it. Re-acquiring by the current owner extends the TTL.
	TryAcquire(ctx context.Context, owner string, ttl time.Duration) (bool, error)

	// Release frees the lock if and only if owner still holds it.
	Release(ctx context.Context, owner string) error
}

// MemoryLock is the in-process Lock, used in tests and by callers whose
// "tabs" are goroutines sharing one process.
type MemoryLock struct {
	mu        sync.Mutex
	owner     string
	expiresAt time.Time
}

func NewMemoryLock() *MemoryLock { return &MemoryLock{} }

func (l *MemoryLock) TryAcquire(_ context.Context, owner string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if l.owner != "" && l.owner != owner && now.Before(l.expiresAt) {
		return false, nil
	}
	l.owner = owner
	l.expiresAt = now.Add(ttl)
	return true, nil
}

func (l *MemoryLock) Release(_ context.Context, owner string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.owner == owner {
		l.owner = ""
		l.expiresAt = time.Time{}
	}
	return nil
}
