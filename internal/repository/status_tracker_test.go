package repository_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrusso/whatsapp-relay/internal/models"
	"github.com/mrusso/whatsapp-relay/internal/repository"
	"github.com/mrusso/whatsapp-relay/internal/store"
)

func TestStatusTracker_RecordForSend(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewRepository(store.NewMemory())

	err := repo.Statuses().RecordForSend(ctx, "conv-1", "msg-1", "SM123", models.StatusQueued)
	require.NoError(t, err)

	record, err := repo.Statuses().GetStatus(ctx, "conv-1", "SM123")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, "SM123", record.SID)
	assert.Equal(t, models.StatusQueued, record.Status)
	assert.NotZero(t, record.Timestamp)

	link, err := repo.Statuses().Resolve(ctx, "SM123")
	require.NoError(t, err)
	require.NotNil(t, link)
	assert.Equal(t, "conv-1", link.ConversationID)
	assert.Equal(t, "msg-1", link.MessageID)
}

func TestStatusTracker_ResolveUnknownSid(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewRepository(store.NewMemory())

	link, err := repo.Statuses().Resolve(ctx, "SM-unknown")
	require.NoError(t, err)
	assert.Nil(t, link)

	link, err = repo.Statuses().Resolve(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, link)
}

func TestStatusTracker_SaveStatusMerges(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewRepository(store.NewMemory())

	require.NoError(t, repo.Statuses().RecordForSend(ctx, "conv-1", "msg-1", "SM123", models.StatusQueued))

	require.NoError(t, repo.Statuses().SaveStatus(ctx, "conv-1", "SM123", models.StatusCallback{
		SID:    "SM123",
		Status: models.StatusDelivered,
	}))

	record, err := repo.Statuses().GetStatus(ctx, "conv-1", "SM123")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, models.StatusDelivered, record.Status)
	assert.Empty(t, record.ErrorCode)

	// Failure callbacks add error details without wiping anything.
	require.NoError(t, repo.Statuses().SaveStatus(ctx, "conv-1", "SM123", models.StatusCallback{
		SID:          "SM123",
		Status:       models.StatusFailed,
		ErrorCode:    "63016",
		ErrorMessage: "outside the allowed window",
	}))

	record, err = repo.Statuses().GetStatus(ctx, "conv-1", "SM123")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, models.StatusFailed, record.Status)
	assert.Equal(t, "63016", record.ErrorCode)
	assert.Equal(t, "outside the allowed window", record.ErrorMessage)
}

func TestStatusTracker_Query(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewRepository(store.NewMemory())

	for i := 0; i < 3; i++ {
		sid := fmt.Sprintf("SM%03d", i)
		require.NoError(t, repo.Statuses().RecordForSend(ctx, "conv-1", fmt.Sprintf("msg-%d", i), sid, models.StatusQueued))
	}

	statuses, err := repo.Statuses().Query(ctx, "conv-1", 500)
	require.NoError(t, err)
	require.Len(t, statuses, 3)
	for i := 0; i < 3; i++ {
		sid := fmt.Sprintf("SM%03d", i)
		record, ok := statuses[sid]
		require.True(t, ok, "missing record for %s", sid)
		assert.Equal(t, sid, record.SID)
	}
}

func TestStatusTracker_GetStatusMissing(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewRepository(store.NewMemory())

	record, err := repo.Statuses().GetStatus(ctx, "conv-1", "SM-none")
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestStatusTracker_AuditRecordsEverything(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewRepository(store.NewMemory())

	// Unknown sids still land in the trail.
	require.NoError(t, repo.Statuses().Audit(ctx, models.StatusCallback{
		SID:    "SM-unknown",
		Status: models.StatusDelivered,
		To:     "whatsapp:+393331234567",
	}))
	require.NoError(t, repo.Statuses().Audit(ctx, models.StatusCallback{
		SID:          "SM-failed",
		Status:       models.StatusFailed,
		ErrorCode:    "63016",
		ErrorMessage: "window closed",
	}))

	entries, err := repo.Statuses().RecentAudit(ctx, 1000)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	sids := make(map[string]models.StatusAudit, len(entries))
	for _, entry := range entries {
		sids[entry.SID] = entry
		assert.NotZero(t, entry.Timestamp)
	}
	assert.Contains(t, sids, "SM-unknown")
	assert.Equal(t, "63016", sids["SM-failed"].ErrorCode)
}

func TestStatusTracker_TrimAudit(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewRepository(store.NewMemory())

	for i := 0; i < 10; i++ {
		require.NoError(t, repo.Statuses().Audit(ctx, models.StatusCallback{
			SID:    fmt.Sprintf("SM%03d", i),
			Status: models.StatusSent,
		}))
	}

	removed, err := repo.Statuses().TrimAudit(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, 6, removed)

	entries, err := repo.Statuses().RecentAudit(ctx, 1000)
	require.NoError(t, err)
	assert.Len(t, entries, 4)

	// Below the cap nothing happens.
	removed, err = repo.Statuses().TrimAudit(ctx, 4)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestStatusTracker_DeleteAllUnlinksSids(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewRepository(store.NewMemory())

	require.NoError(t, repo.Statuses().RecordForSend(ctx, "conv-1", "msg-1", "SM001", models.StatusQueued))
	require.NoError(t, repo.Statuses().RecordForSend(ctx, "conv-1", "msg-2", "SM002", models.StatusQueued))
	require.NoError(t, repo.Statuses().RecordForSend(ctx, "conv-2", "msg-3", "SM003", models.StatusQueued))

	unlinked, err := repo.Statuses().DeleteAll(ctx, "conv-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"SM001", "SM002"}, unlinked,
		"every removed link must be reported so caches can drop it")

	statuses, err := repo.Statuses().Query(ctx, "conv-1", 0)
	require.NoError(t, err)
	assert.Empty(t, statuses)

	for _, sid := range []string{"SM001", "SM002"} {
		link, err := repo.Statuses().Resolve(ctx, sid)
		require.NoError(t, err)
		assert.Nil(t, link, "sid %s must no longer correlate", sid)
	}

	// The other conversation's records survive.
	link, err := repo.Statuses().Resolve(ctx, "SM003")
	require.NoError(t, err)
	require.NotNil(t, link)
	assert.Equal(t, "conv-2", link.ConversationID)
}
