package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/polydesk/internal/domain"
)

// unlockLua deletes a lock key only while it still holds the caller's
// token. A holder whose lock expired and was taken by someone else can then
// never release the new holder's lock.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// LockManager implements domain.LockManager using SET NX with a TTL and a
// conditional Lua unlock.
//
// The funds gate takes one lock per wallet around an approval, so two desks
// sharing a Redis instance never send overlapping approve transactions for
// the same wallet. The TTL bounds how long a crashed holder can block others.
type LockManager struct {
	c        *Client
	unlockSc *redis.Script
}

// NewLockManager creates a LockManager backed by the given Client.
func NewLockManager(c *Client) *LockManager {
	return &LockManager{
		c:        c,
		unlockSc: redis.NewScript(unlockLua),
	}
}

// Acquire attempts to take the lock for key, holding it for at most ttl. On
// success it returns an unlock function that releases the lock; calling it
// more than once is harmless, and it only deletes the key if this call still
// owns it.
//
// Keys are namespaced under the client's key prefix ("lock:<key>"). It
// returns domain.ErrLockHeld when another party holds the lock.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	lk := lm.c.Key("lock:" + key)

	ok, err := lm.c.rdb.SetNX(ctx, lk, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, domain.ErrLockHeld
	}

	// Build the unlock closure around the token that proves ownership.
	released := false
	unlock := func() {
		if released {
			return
		}
		released = true

		// Unlock on a fresh context: the caller's context is often already
		// cancelled by the time the deferred unlock runs.
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = lm.unlockSc.Run(unlockCtx, lm.c.rdb, []string{lk}, token).Err()
	}
	return unlock, nil
}

// Compile-time interface check.
var _ domain.LockManager = (*LockManager)(nil)
