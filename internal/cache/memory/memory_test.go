package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polydesk/internal/cache/memory"
	"github.com/alanyoungcy/polydesk/internal/domain"
)

func TestQueryCache(t *testing.T) {
	ctx := context.Background()
	c := memory.NewQueryCache()

	_, err := c.Get(ctx, "orders:list:a")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, c.Set(ctx, "orders:list:a", []byte("1"), time.Minute))
	require.NoError(t, c.Set(ctx, "orders:id:7", []byte("2"), time.Minute))
	require.NoError(t, c.Set(ctx, "markets:list:a", []byte("3"), time.Minute))

	got, err := c.Get(ctx, "orders:list:a")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), got)

	require.NoError(t, c.InvalidatePrefix(ctx, domain.CacheOrders))
	_, err = c.Get(ctx, "orders:id:7")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = c.Get(ctx, "markets:list:a")
	assert.NoError(t, err)
}

func TestQueryCache_Expiry(t *testing.T) {
	ctx := context.Background()
	c := memory.NewQueryCache()
	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Nanosecond))
	time.Sleep(time.Millisecond)
	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSignalBus(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	bus := memory.NewSignalBus()

	ch, err := bus.Subscribe(ctx, domain.ChannelOrders)
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, domain.ChannelOrders, []byte("hello")))
	require.NoError(t, bus.Publish(ctx, domain.ChannelFunds, []byte("elsewhere")))

	select {
	case got := <-ch:
		assert.Equal(t, "hello", string(got))
	case <-time.After(time.Second):
		t.Fatal("no message received")
	}

	cancel()
	assert.Eventually(t, func() bool {
		_, ok := <-ch
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestRateLimiter(t *testing.T) {
	ctx := context.Background()
	l := memory.NewRateLimiter()

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, "ip", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := l.Allow(ctx, "ip", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = l.Allow(ctx, "other", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
