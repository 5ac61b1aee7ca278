//go:build integration

package integration

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ckaraca/spotfound/internal/dispatch"
	dispatchpostgres "github.com/ckaraca/spotfound/internal/dispatch/postgres"
)

func enqueueItem(t *testing.T, repo *dispatchpostgres.Repository, recipient string) *dispatch.QueueItem {
	t.Helper()

	item := &dispatch.QueueItem{
		Kind:      dispatch.KindWelcome,
		Recipient: recipient,
		Payload:   []byte(`{"name":"Ayşe"}`),
	}
	require.NoError(t, repo.Enqueue(context.Background(), item))
	return item
}

func TestQueueRepository_EnqueueAndGet(t *testing.T) {
	truncateAll(t)
	repo := dispatchpostgres.NewRepository(testDB)

	item := enqueueItem(t, repo, "ayse@example.com")
	assert.NotEmpty(t, item.ID)

	stored, err := repo.GetItem(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Equal(t, dispatch.StatusPending, stored.Status)
	assert.Equal(t, dispatch.KindWelcome, stored.Kind)
	assert.Zero(t, stored.Attempts)
	assert.JSONEq(t, `{"name":"Ayşe"}`, string(stored.Payload))
}

func TestQueueRepository_ClaimOrdering(t *testing.T) {
	truncateAll(t)
	repo := dispatchpostgres.NewRepository(testDB)
	ctx := context.Background()

	first := enqueueItem(t, repo, "first@example.com")
	second := enqueueItem(t, repo, "second@example.com")
	third := enqueueItem(t, repo, "third@example.com")

	claimed, err := repo.ClaimPending(ctx, 2, 3)
	require.NoError(t, err)
	require.Len(t, claimed, 2)

	// Oldest first.
	assert.Equal(t, first.ID, claimed[0].ID)
	assert.Equal(t, second.ID, claimed[1].ID)
	assert.Equal(t, dispatch.StatusProcessing, claimed[0].Status)

	// The third stays pending for the next run.
	remaining, err := repo.ClaimPending(ctx, 10, 3)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, third.ID, remaining[0].ID)
}

func TestQueueRepository_ConcurrentClaimsAreDisjoint(t *testing.T) {
	truncateAll(t)
	repo := dispatchpostgres.NewRepository(testDB)
	ctx := context.Background()

	const total = 20
	for i := 0; i < total; i++ {
		enqueueItem(t, repo, "someone@example.com")
	}

	const workers = 4
	results := make([][]dispatch.QueueItem, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(w int) {
			defer wg.Done()
			claimed, err := repo.ClaimPending(ctx, total, 3)
			if err != nil {
				t.Errorf("worker %d claim: %v", w, err)
				return
			}
			results[w] = claimed
		}(w)
	}
	wg.Wait()

	seen := make(map[string]int)
	claimed := 0
	for _, batch := range results {
		for _, item := range batch {
			seen[item.ID]++
			claimed++
		}
	}

	assert.Equal(t, total, claimed)
	for id, count := range seen {
		assert.Equal(t, 1, count, "item %s claimed more than once", id)
	}
}

func TestQueueRepository_MarkTransitions(t *testing.T) {
	truncateAll(t)
	repo := dispatchpostgres.NewRepository(testDB)
	ctx := context.Background()

	t.Run("sent", func(t *testing.T) {
		item := enqueueItem(t, repo, "a@example.com")
		_, err := repo.ClaimPending(ctx, 10, 3)
		require.NoError(t, err)

		require.NoError(t, repo.MarkSent(ctx, item.ID, "provider-1"))

		stored, err := repo.GetItem(ctx, item.ID)
		require.NoError(t, err)
		assert.Equal(t, dispatch.StatusSent, stored.Status)
		assert.Equal(t, "provider-1", stored.ProviderID)
		assert.NotNil(t, stored.SentAt)
	})

	t.Run("retry increments attempts", func(t *testing.T) {
		truncateAll(t)
		item := enqueueItem(t, repo, "b@example.com")
		_, err := repo.ClaimPending(ctx, 10, 3)
		require.NoError(t, err)

		require.NoError(t, repo.MarkRetry(ctx, item.ID, errors.New("smtp timeout")))

		stored, err := repo.GetItem(ctx, item.ID)
		require.NoError(t, err)
		assert.Equal(t, dispatch.StatusPending, stored.Status)
		assert.Equal(t, 1, stored.Attempts)
		assert.Equal(t, "smtp timeout", stored.LastError)
	})

	t.Run("failed is terminal", func(t *testing.T) {
		truncateAll(t)
		item := enqueueItem(t, repo, "c@example.com")
		_, err := repo.ClaimPending(ctx, 10, 3)
		require.NoError(t, err)

		require.NoError(t, repo.MarkFailed(ctx, item.ID, errors.New("gave up")))

		stored, err := repo.GetItem(ctx, item.ID)
		require.NoError(t, err)
		assert.Equal(t, dispatch.StatusFailed, stored.Status)

		// Failed items are never claimed again.
		claimed, err := repo.ClaimPending(ctx, 10, 3)
		require.NoError(t, err)
		assert.Empty(t, claimed)
	})

	t.Run("mark without claim is rejected", func(t *testing.T) {
		truncateAll(t)
		item := enqueueItem(t, repo, "d@example.com")

		err := repo.MarkSent(ctx, item.ID, "provider-x")
		assert.ErrorIs(t, err, dispatch.ErrNotClaimed)
	})
}

func TestQueueRepository_AttemptCeilingExcludesFromClaim(t *testing.T) {
	truncateAll(t)
	repo := dispatchpostgres.NewRepository(testDB)
	ctx := context.Background()

	item := enqueueItem(t, repo, "e@example.com")

	// Burn three attempts.
	for i := 0; i < 3; i++ {
		claimed, err := repo.ClaimPending(ctx, 10, 3)
		require.NoError(t, err)
		require.Len(t, claimed, 1)
		require.NoError(t, repo.MarkRetry(ctx, item.ID, errors.New("still failing")))
	}

	// Attempts is now at the ceiling; the item stays pending but unclaimable.
	claimed, err := repo.ClaimPending(ctx, 10, 3)
	require.NoError(t, err)
	assert.Empty(t, claimed)

	stored, err := repo.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.Attempts)
}

func TestQueueRepository_Stats(t *testing.T) {
	truncateAll(t)
	repo := dispatchpostgres.NewRepository(testDB)
	ctx := context.Background()

	a := enqueueItem(t, repo, "a@example.com")
	enqueueItem(t, repo, "b@example.com")

	claimed, err := repo.ClaimPending(ctx, 1, 3)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.NoError(t, repo.MarkSent(ctx, a.ID, "provider-1"))

	stats, err := repo.QueueStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Pending)
	assert.Equal(t, 1, stats.Sent)
	assert.Zero(t, stats.Processing)
	assert.Zero(t, stats.Failed)
}

func TestQueueRepository_GetItemNotFound(t *testing.T) {
	truncateAll(t)
	repo := dispatchpostgres.NewRepository(testDB)

	_, err := repo.GetItem(context.Background(), "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, dispatch.ErrItemNotFound)
}
