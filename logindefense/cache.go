// Package logindefense tracks consecutive login failures per username and
// temporarily blocks accounts that exceed the failure threshold.
package logindefense

import (
	"context"
	"sync"
	"time"
)

const (
	DefaultThreshold     = 5
	DefaultWindow        = 10 * time.Minute
	DefaultBlockDuration = 10 * time.Minute
)

type failureRecord struct {
	count     int
	windowEnd time.Time
}

// Cache is a process-wide concurrent map of failure counters and blocks.
// Entries expire lazily on read; Sweep bounds memory under low traffic.
type Cache struct {
	mu        sync.Mutex
	failures  map[string]failureRecord
	blocks    map[string]time.Time // username -> blockedUntil
	threshold int
	window    time.Duration
	blockFor  time.Duration
	nowFunc   func() time.Time
}

type Option func(*Cache)

// WithNowFunc sets the clock (primarily for testing).
func WithNowFunc(now func() time.Time) Option {
	return func(c *Cache) {
		c.nowFunc = now
	}
}

// WithLimits overrides the failure threshold, failure window and block duration.
func WithLimits(threshold int, window, blockFor time.Duration) Option {
	return func(c *Cache) {
		if threshold > 0 {
			c.threshold = threshold
		}
		if window > 0 {
			c.window = window
		}
		if blockFor > 0 {
			c.blockFor = blockFor
		}
	}
}

func New(options ...Option) *Cache {
	c := &Cache{
		failures:  make(map[string]failureRecord),
		blocks:    make(map[string]time.Time),
		threshold: DefaultThreshold,
		window:    DefaultWindow,
		blockFor:  DefaultBlockDuration,
		nowFunc:   time.Now,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// IsBlocked reports whether a live block exists for the username.
func (c *Cache) IsBlocked(username string) bool {
	return c.BlockedFor(username) > 0
}

// BlockedFor returns the remaining block duration, or zero when the
// username is not blocked. An expired block is removed on read.
func (c *Cache) BlockedFor(username string) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	until, ok := c.blocks[username]
	if !ok {
		return 0
	}
	remaining := until.Sub(c.nowFunc())
	if remaining <= 0 {
		delete(c.blocks, username)
		return 0
	}
	return remaining
}

// RecordFailure increments the failure counter, starting a fresh window if
// none is live. Reaching the threshold installs a block and resets the
// counter.
func (c *Cache) RecordFailure(username string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.nowFunc()
	record := c.failures[username]
	if record.count == 0 || now.After(record.windowEnd) {
		record = failureRecord{count: 0, windowEnd: now.Add(c.window)}
	}
	record.count++

	if record.count >= c.threshold {
		c.blocks[username] = now.Add(c.blockFor)
		delete(c.failures, username)
		return
	}
	c.failures[username] = record
}

// RecordSuccess clears the failure counter. An existing block is left
// standing for its own duration.
func (c *Cache) RecordSuccess(username string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.failures, username)
}

// Sweep removes expired failure windows and blocks.
func (c *Cache) Sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.nowFunc()
	for username, record := range c.failures {
		if now.After(record.windowEnd) {
			delete(c.failures, username)
		}
	}
	for username, until := range c.blocks {
		if now.After(until) {
			delete(c.blocks, username)
		}
	}
}

// StartSweeper runs Sweep on the given interval until ctx is cancelled.
func (c *Cache) StartSweeper(ctx context.Context, interval time.Duration) {
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
