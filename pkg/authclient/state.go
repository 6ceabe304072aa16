package authclient

import (
	"context"
	"sync"
	"time"
)

// Outcome is the durable record of the most recent refresh result.
// Broadcast alone is not enough: a tab that starts participating after
// the winner announced would miss the message and spend the (already
// rotated) refresh token again. Tabs consult the shared outcome after
// winning the lock and adopt any result newer than their own attempt.
type Outcome struct {
	Token    string    `json:"token,omitempty"`
	Terminal bool      `json:"terminal,omitempty"`
	At       time.Time `json:"at"`
}

// StateStore persists the last Outcome somewhere every tab can see.
type StateStore interface {
	Load(ctx context.Context) (Outcome, bool, error)
	Store(ctx context.Context, o Outcome) error
}

// MemoryStateStore is the in-process StateStore.
type MemoryStateStore struct {
	mu  sync.Mutex
	out Outcome
	set bool
}

func NewMemoryStateStore() *MemoryStateStore { return &MemoryStateStore{} }

func (s *MemoryStateStore) Load(_ context.Context) (Outcome, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.out, s.set, nil
}

func (s *MemoryStateStore) Store(_ context.Context, o Outcome) error {
	s.mu.Lock()
	s.out = o
	s.set = true
	s.mu.Unlock()
	return nil
}
