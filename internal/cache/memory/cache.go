// Package memory provides in-process implementations of the cache, rate
// limiter and signal bus for running without Redis.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/polydesk/internal/domain"
)

type entry struct {
	value     []byte
	expiresAt time.Time
}

// QueryCache is a TTL map implementing domain.QueryCache.
type QueryCache struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time
}

// NewQueryCache creates an empty QueryCache.
func NewQueryCache() *QueryCache {
	return &QueryCache{entries: make(map[string]entry), now: time.Now}
}

// Get returns the value for key or domain.ErrNotFound when missing or
// expired.
func (c *QueryCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || !c.now().Before(e.expiresAt) {
		return nil, domain.ErrNotFound
	}
	return e.value, nil
}

// Set stores value under key for ttl.
func (c *QueryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{value: append([]byte(nil), value...), expiresAt: c.now().Add(ttl)}
	c.sweepLocked()
	return nil
}

// InvalidatePrefix drops every key starting with prefix.
func (c *QueryCache) InvalidatePrefix(_ context.Context, prefix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		}
	}
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (c *QueryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *QueryCache) sweepLocked() {
	now := c.now()
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
		}
	}
}

var _ domain.QueryCache = (*QueryCache)(nil)
