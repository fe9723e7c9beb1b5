package redis_test

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cacheredis "github.com/alanyoungcy/polydesk/internal/cache/redis"
	"github.com/alanyoungcy/polydesk/internal/domain"
)

func TestNew_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := cacheredis.New(ctx, cacheredis.ClientConfig{Addr: "127.0.0.1:1", MaxRetries: -1})
	assert.Error(t, err)
}

func TestClient_Key(t *testing.T) {
	c := cacheredis.NewFromClient(nil, "")
	assert.Equal(t, "polydesk:q:orders", c.Key("q:orders"))

	c = cacheredis.NewFromClient(nil, "desk-a:")
	assert.Equal(t, "desk-a:lock:approve", c.Key("lock:approve"))
}

func TestLockManager_TransportErrorIsNotLockHeld(t *testing.T) {
	rdb := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 200 * time.Millisecond})
	t.Cleanup(func() { _ = rdb.Close() })
	lm := cacheredis.NewLockManager(cacheredis.NewFromClient(rdb, ""))

	unlock, err := lm.Acquire(context.Background(), "approve:0xabc", time.Second)
	require.Error(t, err)
	assert.Nil(t, unlock)
	assert.NotErrorIs(t, err, domain.ErrLockHeld)
	assert.Contains(t, err.Error(), "redis: acquire lock approve:0xabc")
}
