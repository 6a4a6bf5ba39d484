package logindefense_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/ticketdesk/ticketdesk/logindefense"
)

const testUsername = "john.doe"

// clock is a mutable test clock shared with the cache under test.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestBlockAfterThresholdFailures(t *testing.T) {
	clk := newClock()
	cache := logindefense.New(logindefense.WithNowFunc(clk.Now))

	for i := 0; i < logindefense.DefaultThreshold-1; i++ {
		cache.RecordFailure(testUsername)
		require.False(t, cache.IsBlocked(testUsername), "not blocked before threshold")
	}

	cache.RecordFailure(testUsername)
	require.True(t, cache.IsBlocked(testUsername))
	require.InDelta(t, logindefense.DefaultBlockDuration.Seconds(), cache.BlockedFor(testUsername).Seconds(), 1)
}

func TestBlockExpires(t *testing.T) {
	clk := newClock()
	cache := logindefense.New(logindefense.WithNowFunc(clk.Now))

	for i := 0; i < logindefense.DefaultThreshold; i++ {
		cache.RecordFailure(testUsername)
	}
	require.True(t, cache.IsBlocked(testUsername))

	clk.Advance(logindefense.DefaultBlockDuration + time.Second)
	require.False(t, cache.IsBlocked(testUsername))
}

func TestSuccessResetsFailureCount(t *testing.T) {
	clk := newClock()
	cache := logindefense.New(logindefense.WithNowFunc(clk.Now))

	for i := 0; i < logindefense.DefaultThreshold-1; i++ {
		cache.RecordFailure(testUsername)
	}
	cache.RecordSuccess(testUsername)

	// A single failure after a success must not trigger a block.
	cache.RecordFailure(testUsername)
	require.False(t, cache.IsBlocked(testUsername))
}

func TestSuccessDoesNotLiftExistingBlock(t *testing.T) {
	clk := newClock()
	cache := logindefense.New(logindefense.WithNowFunc(clk.Now))

	for i := 0; i < logindefense.DefaultThreshold; i++ {
		cache.RecordFailure(testUsername)
	}
	cache.RecordSuccess(testUsername)
	require.True(t, cache.IsBlocked(testUsername))
}

func TestFailureWindowExpires(t *testing.T) {
	clk := newClock()
	cache := logindefense.New(logindefense.WithNowFunc(clk.Now))

	for i := 0; i < logindefense.DefaultThreshold-1; i++ {
		cache.RecordFailure(testUsername)
	}
	clk.Advance(logindefense.DefaultWindow + time.Second)

	// The expired window starts a fresh count.
	cache.RecordFailure(testUsername)
	require.False(t, cache.IsBlocked(testUsername))
}

func TestCustomLimits(t *testing.T) {
	clk := newClock()
	cache := logindefense.New(
		logindefense.WithNowFunc(clk.Now),
		logindefense.WithLimits(2, time.Minute, 30*time.Second),
	)

	cache.RecordFailure(testUsername)
	require.False(t, cache.IsBlocked(testUsername))
	cache.RecordFailure(testUsername)
	require.True(t, cache.IsBlocked(testUsername))

	clk.Advance(31 * time.Second)
	require.False(t, cache.IsBlocked(testUsername))
}

func TestSweepRemovesExpiredEntries(t *testing.T) {
	clk := newClock()
	cache := logindefense.New(logindefense.WithNowFunc(clk.Now))

	cache.RecordFailure("alice")
	for i := 0; i < logindefense.DefaultThreshold; i++ {
		cache.RecordFailure("bob")
	}

	clk.Advance(logindefense.DefaultBlockDuration + time.Second)
	cache.Sweep()

	require.False(t, cache.IsBlocked("bob"))
	cache.RecordFailure("alice")
	require.False(t, cache.IsBlocked("alice"))
}

func TestConcurrentFailures(t *testing.T) {
	clk := newClock()
	cache := logindefense.New(
		logindefense.WithNowFunc(clk.Now),
		logindefense.WithLimits(100, time.Hour, time.Hour),
	)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cache.RecordFailure(testUsername)
		}()
	}
	wg.Wait()

	// All 100 increments must have landed; the 100th installs the block.
	require.True(t, cache.IsBlocked(testUsername))
}
