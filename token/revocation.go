package token

import (
	"context"
	"sync"
	"time"
)

// RevokedTokenCache tracks access tokens invalidated before their natural
// expiry. Entries are keyed by jti and never outlive the token they revoke.
type RevokedTokenCache interface {
	Add(jti string, exp time.Time) error
	IsRevoked(jti string) bool
	Sweep() // Remove expired entries
}

// InMemoryRevokedTokenCache is the process-wide in-memory implementation.
// Expired entries are treated as absent on read; Sweep bounds memory under
// low read traffic.
type InMemoryRevokedTokenCache struct {
	revoked map[string]time.Time
	mu      sync.RWMutex
	nowFunc func() time.Time
}

type RevokedCacheOption func(*InMemoryRevokedTokenCache)

func WithRevokedCacheNowFunc(now func() time.Time) RevokedCacheOption {
	return func(c *InMemoryRevokedTokenCache) {
		c.nowFunc = now
	}
}

func NewInMemoryRevokedTokenCache(options ...RevokedCacheOption) *InMemoryRevokedTokenCache {
	c := &InMemoryRevokedTokenCache{
		revoked: make(map[string]time.Time),
		nowFunc: time.Now,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

func (c *InMemoryRevokedTokenCache) Add(jti string, exp time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.revoked[jti] = exp
	return nil
}

func (c *InMemoryRevokedTokenCache) IsRevoked(jti string) bool {
	c.mu.RLock()
	exp, exists := c.revoked[jti]
	c.mu.RUnlock()

	if !exists {
		return false
	}
	if c.nowFunc().After(exp) {
		c.mu.Lock()
		delete(c.revoked, jti)
		c.mu.Unlock()
		return false
	}
	return true
}

func (c *InMemoryRevokedTokenCache) Sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.nowFunc()
	for jti, exp := range c.revoked {
		if now.After(exp) {
			delete(c.revoked, jti)
		}
	}
}

// StartSweeper runs Sweep on the given interval until ctx is cancelled.
func (c *InMemoryRevokedTokenCache) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Sweep()
			}
		}
	}()
}
