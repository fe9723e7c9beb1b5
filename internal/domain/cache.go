package domain

import (
	"context"
	"time"
)

// Query cache key prefixes. Mutations invalidate a whole prefix.
const (
	CacheOrders  = "orders"
	CacheMarkets = "markets"
	CacheEvents  = "events"
	CacheFunds   = "funds"
)

// QueryCache stores serialized read results keyed by query. Get returns
// ErrNotFound on a miss.
type QueryCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	InvalidatePrefix(ctx context.Context, prefix string) error
}

// RateLimiter provides sliding-window rate limiting per key.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides short-lived exclusive locks. Acquire returns
// ErrLockHeld when another holder has the lock.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// SignalBus provides pub/sub fan-out of order and funds events.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
