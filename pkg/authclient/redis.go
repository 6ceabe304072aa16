package authclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock key only when the caller still owns
// it, so a holder whose TTL lapsed cannot release a successor's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLock implements Lock on a shared Redis, for coordinating
// refreshes across processes rather than goroutines. SET NX with a TTL
// gives the compare-and-set; Redis expiry gives the stale takeover.
type RedisLock struct {
	Client *redis.Client
	Key    string
}

func (l *RedisLock) TryAcquire(ctx context.Context, owner string, ttl time.Duration) (bool, error) {
	ok, err := l.Client.SetNX(ctx, l.Key, owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock: %w", err)
	}
	if ok {
		return true, nil
	}

	// Not free; it may still be ours from a previous attempt.
	current, err := l.Client.Get(ctx, l.Key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("inspect lock: %w", err)
	}
	if current != owner {
		return false, nil
	}

	if err := l.Client.Expire(ctx, l.Key, ttl).Err(); err != nil {
		return false, fmt.Errorf("extend lock: %w", err)
	}
	return true, nil
}

func (l *RedisLock) Release(ctx context.Context, owner string) error {
	if err := releaseScript.Run(ctx, l.Client, []string{l.Key}, owner).Err(); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

// RedisStateStore implements StateStore on a Redis key. The TTL keeps
// abandoned sessions from leaving tokens behind forever.
type RedisStateStore struct {
	Client *redis.Client
	Key    string
	TTL    time.Duration
}

func (s *RedisStateStore) Load(ctx context.Context) (Outcome, bool, error) {
	raw, err := s.Client.Get(ctx, s.Key).Result()
	if err == redis.Nil {
		return Outcome{}, false, nil
	}
	if err != nil {
		return Outcome{}, false, fmt.Errorf("load state: %w", err)
	}

	var out Outcome
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return Outcome{}, false, fmt.Errorf("decode state: %w", err)
	}
	return out, true, nil
}

func (s *RedisStateStore) Store(ctx context.Context, o Outcome) error {
	payload, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := s.Client.Set(ctx, s.Key, payload, s.TTL).Err(); err != nil {
		return fmt.Errorf("store state: %w", err)
	}
	return nil
}

// RedisBroadcast implements Broadcast over Redis pub/sub.
type RedisBroadcast struct {
	Client  *redis.Client
	Channel string
}

func (b *RedisBroadcast) Publish(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if err := b.Client.Publish(ctx, b.Channel, payload).Err(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

func (b *RedisBroadcast) Subscribe(ctx context.Context) (<-chan Message, func(), error) {
	sub := b.Client.Subscribe(ctx, b.Channel)

	// Force the subscription onto the wire before we return, so a
	// publish that races the subscribe is not silently missed.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("subscribe: %w", err)
	}

	out := make(chan Message, 8)
	go func() {
		defer close(out)
		for raw := range sub.Channel() {
			var msg Message
			if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
				continue
			}
			select {
			case out <- msg:
			default:
			}
		}
	}()

	cancel := func() { _ = sub.Close() }
	return out, cancel, nil
}
