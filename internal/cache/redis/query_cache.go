package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/polydesk/internal/domain"
)

const scanBatch = 200

// QueryCache implements domain.QueryCache with plain string keys under
// "<prefix>q:".
//
// The market, order and funds services cache their read results here.
// Entries expire on their TTL; writes that change a result drop the affected entries with
// InvalidatePrefix, which walks the keyspace with SCAN rather than KEYS so a
// large cache never blocks the server.
type QueryCache struct {
	c *Client
}

// NewQueryCache creates a QueryCache backed by the given Client.
func NewQueryCache(c *Client) *QueryCache {
	return &QueryCache{c: c}
}

func (qc *QueryCache) key(k string) string {
	return qc.c.Key("q:" + k)
}

// Get returns the cached bytes for key. A miss, including an expired entry,
// returns domain.ErrNotFound; any other error is a Redis failure and callers
// fall through to the backend.
func (qc *QueryCache) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := qc.c.rdb.Get(ctx, qc.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get %s: %w", key, err)
	}
	return b, nil
}

// Set stores value under key with the given TTL. A zero TTL keeps the entry
// until it is invalidated.
func (qc *QueryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := qc.c.rdb.Set(ctx, qc.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set %s: %w", key, err)
	}
	return nil
}

// InvalidatePrefix deletes every cached key whose name starts with prefix.
// Keys are removed with UNLINK in batches as the scan proceeds, so a failure
// part way through leaves the remaining keys to expire on their TTL.
func (qc *QueryCache) InvalidatePrefix(ctx context.Context, prefix string) error {
	var cursor uint64
	pattern := qc.key(prefix) + "*"
	for {
		keys, next, err := qc.c.rdb.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return fmt.Errorf("redis: scan %s: %w", prefix, err)
		}
		if len(keys) > 0 {
			if err := qc.c.rdb.Unlink(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("redis: unlink %s: %w", prefix, err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// Compile-time interface check.
var _ domain.QueryCache = (*QueryCache)(nil)
