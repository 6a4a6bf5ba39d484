package identityfake_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/ticketdesk/ticketdesk/identity"
	"github.com/ticketdesk/ticketdesk/identity/identityfake"
)

func TestReplaceRefreshTokenCompareAndReplace(t *testing.T) {
	store := identityfake.NewFakeStore()
	ctx := context.Background()

	ident := &identity.Identity{Username: "john.doe"}
	require.NoError(t, store.Upsert(ident))
	require.NoError(t, store.UpdateRefreshToken(ctx, ident.ID, "r1"))

	replaced, err := store.ReplaceRefreshToken(ctx, ident.ID, "stale", "r2")
	require.NoError(t, err)
	require.False(t, replaced)

	replaced, err = store.ReplaceRefreshToken(ctx, ident.ID, "r1", "r2")
	require.NoError(t, err)
	require.True(t, replaced)

	stored, err := store.FindByRefreshToken(ctx, "r2")
	require.NoError(t, err)
	require.Equal(t, ident.ID, stored.ID)
}

func TestReplaceRefreshTokenConcurrentSingleWinner(t *testing.T) {
	store := identityfake.NewFakeStore()
	ctx := context.Background()

	ident := &identity.Identity{Username: "john.doe"}
	require.NoError(t, store.Upsert(ident))
	require.NoError(t, store.UpdateRefreshToken(ctx, ident.ID, "r1"))

	const racers = 16
	results := make(chan bool, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			replaced, _ := store.ReplaceRefreshToken(ctx, ident.ID, "r1", "winner")
			results <- replaced
		}()
	}
	wg.Wait()
	close(results)

	winners := 0
	for replaced := range results {
		if replaced {
			winners++
		}
	}
	require.Equal(t, 1, winners)
}

func TestFindByUsernameNotFound(t *testing.T) {
	store := identityfake.NewFakeStore()
	_, err := store.FindByUsername(context.Background(), "nobody")
	require.ErrorIs(t, err, identity.ErrNotFound)
}
