package repository_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrusso/whatsapp-relay/internal/repository"
	"github.com/mrusso/whatsapp-relay/internal/store"
)

func TestConversationDirectory_GetOrCreate(t *testing.T) {
	ctx := context.Background()
	tree := store.NewMemory()
	repo := repository.NewRepository(tree)

	id, created, err := repo.Directory().GetOrCreate(ctx, "+393331234567")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, id)

	// A second call for the same key returns the same id without
	// re-creating.
	again, created, err := repo.Directory().GetOrCreate(ctx, "+393331234567")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, id, again)

	// The winner seeds the summary record.
	summary, err := repo.Summaries().Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, "+393331234567", summary.Phone)
	assert.Equal(t, 0, summary.UnreadCount)
	assert.NotZero(t, summary.LastMessageAt)
}

func TestConversationDirectory_GetOrCreateEmptyKey(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewRepository(store.NewMemory())

	id, created, err := repo.Directory().GetOrCreate(ctx, "")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Empty(t, id)
}

func TestConversationDirectory_GetOrCreateConcurrent(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewRepository(store.NewMemory())

	const callers = 16

	var wg sync.WaitGroup
	ids := make([]string, callers)
	createdFlags := make([]bool, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, created, err := repo.Directory().GetOrCreate(ctx, "+393331234567")
			assert.NoError(t, err)
			ids[i] = id
			createdFlags[i] = created
		}(i)
	}
	wg.Wait()

	winners := 0
	for i := 1; i < callers; i++ {
		assert.Equal(t, ids[0], ids[i], "all callers must observe the same conversation id")
	}
	for _, created := range createdFlags {
		if created {
			winners++
		}
	}
	assert.Equal(t, 1, winners, "exactly one caller creates the conversation")
}

func TestConversationDirectory_DistinctKeysDistinctConversations(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewRepository(store.NewMemory())

	a, _, err := repo.Directory().GetOrCreate(ctx, "+393331234567")
	require.NoError(t, err)
	b, _, err := repo.Directory().GetOrCreate(ctx, "+393337654321")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestConversationDirectory_Lookup(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewRepository(store.NewMemory())

	id, _, err := repo.Directory().GetOrCreate(ctx, "+393331234567")
	require.NoError(t, err)

	found, err := repo.Directory().Lookup(ctx, "+393331234567")
	require.NoError(t, err)
	assert.Equal(t, id, found)

	missing, err := repo.Directory().Lookup(ctx, "+390000000000")
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestConversationDirectory_Delete(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewRepository(store.NewMemory())

	first, _, err := repo.Directory().GetOrCreate(ctx, "+393331234567")
	require.NoError(t, err)

	require.NoError(t, repo.Directory().Delete(ctx, "+393331234567"))

	found, err := repo.Directory().Lookup(ctx, "+393331234567")
	require.NoError(t, err)
	assert.Empty(t, found)

	// A later message from the same phone starts a fresh conversation.
	second, created, err := repo.Directory().GetOrCreate(ctx, "+393331234567")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first, second)
}
