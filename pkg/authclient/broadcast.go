package authclient

import (
	"context"
	"sync"
)

// Message types published on the coordination channel.
const (
	MsgTokenRefreshed = "token_refreshed"
	MsgRefreshFailed  = "refresh_failed"
)

// Message is what the refresh winner announces to every waiting tab.
type Message struct {
	Type string `json:"type"`

	// OwnerID names the tab that performed the refresh.
	OwnerID string `json:"owner_id,omitempty"`

	// AccessToken carries the fresh token on MsgTokenRefreshed.
	AccessToken string `json:"access_token,omitempty"`

	// Terminal marks a MsgRefreshFailed that retrying cannot fix; the
	// session is gone and the user must log in again.
	Terminal bool `json:"terminal,omitempty"`
}

// Broadcast fans refresh outcomes out to all participating tabs.
type Broadcast interface {
	Publish(ctx context.Context, msg Message) error

	// Subscribe returns a channel of messages and a cancel func. The
	// channel closes after cancel.
	Subscribe(ctx context.Context) (<-chan Message, func(), error)
}

// MemoryBroadcast is the in-process Broadcast.
type MemoryBroadcast struct {
	mu   sync.Mutex
	subs map[chan Message]struct{}
}

func NewMemoryBroadcast() *MemoryBroadcast {
	return &MemoryBroadcast{subs: make(map[chan Message]struct{})}
}

func (b *MemoryBroadcast) Publish(_ context.Context, msg Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subs {
		// A subscriber that stopped draining loses messages rather than
		// blocking the publisher.
		select {
		case ch <- msg:
		default:
		}
	}
	return nil
}

func (b *MemoryBroadcast) Subscribe(_ context.Context) (<-chan Message, func(), error) {
	ch := make(chan Message, 8)

	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, cancel, nil
}
