package cache

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrLockTimeout is returned when a key stays held past the wait budget.
var ErrLockTimeout = errors.New("lock wait timed out")

const releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("DEL", KEYS[1]) else return 0 end`

type lockClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// KeyLock serialises work per key using SET NX with a TTL.
type KeyLock struct {
	client lockClient
	prefix string
	ttl    time.Duration
	poll   time.Duration
}

// NewKeyLock builds a lock namespace backed by the given client.
func NewKeyLock(client lockClient, prefix string, ttl time.Duration) *KeyLock {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &KeyLock{client: client, prefix: prefix, ttl: ttl, poll: 50 * time.Millisecond}
}

// Acquire blocks until the key is held or the TTL elapses. The returned func releases it.
func (l *KeyLock) Acquire(ctx context.Context, key string) (func(), error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}
	fullKey := l.prefix + key
	deadline := time.Now().Add(l.ttl)

	for {
		ok, err := l.client.SetNX(ctx, fullKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", fullKey, err)
		}
		if ok {
			return func() {
				_ = l.client.Eval(context.Background(), releaseScript, []string{fullKey}, token).Err()
			}, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrLockTimeout
		}
		timer := time.NewTimer(l.poll)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func newToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate lock token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
