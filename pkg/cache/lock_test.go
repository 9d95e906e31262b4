package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLockClient struct {
	held     map[string]interface{}
	setErr   error
	released []string
}

func (f *fakeLockClient) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	if f.setErr != nil {
		return redis.NewBoolResult(false, f.setErr)
	}
	if _, ok := f.held[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.held[key] = value
	return redis.NewBoolResult(true, nil)
}

func (f *fakeLockClient) Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	if f.held[keys[0]] == args[0] {
		delete(f.held, keys[0])
		f.released = append(f.released, keys[0])
		return redis.NewCmdResult(int64(1), nil)
	}
	return redis.NewCmdResult(int64(0), nil)
}

func TestKeyLockAcquireRelease(t *testing.T) {
	client := &fakeLockClient{held: map[string]interface{}{}}
	lock := NewKeyLock(client, "lifecycle:", time.Second)

	release, err := lock.Acquire(context.Background(), "trainer-1")
	require.NoError(t, err)
	assert.Contains(t, client.held, "lifecycle:trainer-1")

	release()
	assert.Equal(t, []string{"lifecycle:trainer-1"}, client.released)
	assert.NotContains(t, client.held, "lifecycle:trainer-1")
}

func TestKeyLockTimesOutWhenHeld(t *testing.T) {
	client := &fakeLockClient{held: map[string]interface{}{"lifecycle:trainer-1": "other"}}
	lock := NewKeyLock(client, "lifecycle:", 60*time.Millisecond)

	_, err := lock.Acquire(context.Background(), "trainer-1")
	assert.ErrorIs(t, err, ErrLockTimeout)
}

func TestKeyLockPropagatesClientError(t *testing.T) {
	client := &fakeLockClient{held: map[string]interface{}{}, setErr: errors.New("down")}
	lock := NewKeyLock(client, "lifecycle:", time.Second)

	_, err := lock.Acquire(context.Background(), "trainer-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "down")
}
