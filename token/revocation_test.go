package token_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/ticketdesk/ticketdesk/token"
)

func TestRevokedCacheLazyExpiry(t *testing.T) {
	clk := newClock()
	cache := token.NewInMemoryRevokedTokenCache(token.WithRevokedCacheNowFunc(clk.Now))

	require.NoError(t, cache.Add("jti-1", clk.Now().Add(time.Minute)))
	require.True(t, cache.IsRevoked("jti-1"))

	clk.Advance(2 * time.Minute)
	require.False(t, cache.IsRevoked("jti-1"))
}

func TestRevokedCacheSweep(t *testing.T) {
	clk := newClock()
	cache := token.NewInMemoryRevokedTokenCache(token.WithRevokedCacheNowFunc(clk.Now))

	require.NoError(t, cache.Add("expired", clk.Now().Add(time.Minute)))
	require.NoError(t, cache.Add("live", clk.Now().Add(time.Hour)))

	clk.Advance(2 * time.Minute)
	cache.Sweep()

	require.False(t, cache.IsRevoked("expired"))
	require.True(t, cache.IsRevoked("live"))
}

func TestRevokedCacheUnknownKey(t *testing.T) {
	cache := token.NewInMemoryRevokedTokenCache()
	require.False(t, cache.IsRevoked("never-added"))
}
