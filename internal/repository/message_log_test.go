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

func TestMessageLog_AppendAndList(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewRepository(store.NewMemory())

	ids := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		id, err := repo.Messages().Append(ctx, "conv-1", models.Message{
			Text:      fmt.Sprintf("message %d", i),
			Direction: models.DirectionInbound,
			Timestamp: int64(1000 * (i + 1)),
		})
		require.NoError(t, err)
		require.NotEmpty(t, id)
		ids = append(ids, id)
	}

	messages, err := repo.Messages().List(ctx, "conv-1")
	require.NoError(t, err)
	require.Len(t, messages, 3)
	for i, msg := range messages {
		assert.Equal(t, ids[i], msg.ID)
		assert.Equal(t, fmt.Sprintf("message %d", i), msg.Text)
		assert.Equal(t, int64(1000*(i+1)), msg.Timestamp)
	}
}

func TestMessageLog_AppendRequiresConversation(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewRepository(store.NewMemory())

	_, err := repo.Messages().Append(ctx, "", models.Message{Text: "x", Timestamp: 1})
	assert.Error(t, err)
}

func TestMessageLog_ListOrdersByTimestampThenID(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewRepository(store.NewMemory())

	// Appended out of timestamp order on purpose.
	late, err := repo.Messages().Append(ctx, "conv-1", models.Message{Text: "late", Timestamp: 3000})
	require.NoError(t, err)
	early, err := repo.Messages().Append(ctx, "conv-1", models.Message{Text: "early", Timestamp: 1000})
	require.NoError(t, err)

	// Same timestamp: push-id allocation order decides.
	tieA, err := repo.Messages().Append(ctx, "conv-1", models.Message{Text: "tie-a", Timestamp: 2000})
	require.NoError(t, err)
	tieB, err := repo.Messages().Append(ctx, "conv-1", models.Message{Text: "tie-b", Timestamp: 2000})
	require.NoError(t, err)

	messages, err := repo.Messages().List(ctx, "conv-1")
	require.NoError(t, err)
	require.Len(t, messages, 4)
	assert.Equal(t, []string{early, tieA, tieB, late},
		[]string{messages[0].ID, messages[1].ID, messages[2].ID, messages[3].ID})
}

func TestMessageLog_ListEmptyConversation(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewRepository(store.NewMemory())

	messages, err := repo.Messages().List(ctx, "conv-nothing")
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestMessageLog_SetStatus(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewRepository(store.NewMemory())

	id, err := repo.Messages().Append(ctx, "conv-1", models.Message{
		Text:      "outbound",
		Direction: models.DirectionOutbound,
		Timestamp: 1000,
		SID:       "SM123",
		Status:    models.StatusQueued,
	})
	require.NoError(t, err)

	require.NoError(t, repo.Messages().SetStatus(ctx, "conv-1", id, models.StatusDelivered))

	messages, err := repo.Messages().List(ctx, "conv-1")
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, models.StatusDelivered, messages[0].Status)
	assert.Equal(t, "outbound", messages[0].Text, "patching status must not disturb the message")
	assert.Equal(t, "SM123", messages[0].SID)
	assert.Equal(t, models.DirectionOutbound, messages[0].Direction)
}

func TestMessageLog_DeleteAll(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewRepository(store.NewMemory())

	_, err := repo.Messages().Append(ctx, "conv-1", models.Message{Text: "a", Timestamp: 1000})
	require.NoError(t, err)
	_, err = repo.Messages().Append(ctx, "conv-2", models.Message{Text: "b", Timestamp: 1000})
	require.NoError(t, err)

	require.NoError(t, repo.Messages().DeleteAll(ctx, "conv-1"))

	messages, err := repo.Messages().List(ctx, "conv-1")
	require.NoError(t, err)
	assert.Empty(t, messages)

	other, err := repo.Messages().List(ctx, "conv-2")
	require.NoError(t, err)
	assert.Len(t, other, 1, "other conversations must be untouched")
}

func TestMessageLog_MediaRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewRepository(store.NewMemory())

	media := []models.Media{{
		SID:         "ME123",
		MessageSID:  "MM456",
		ContentType: "image/jpeg",
		ProxyURL:    "/media/messages/MM456/ME123",
		Type:        "message",
	}}
	_, err := repo.Messages().Append(ctx, "conv-1", models.Message{
		Direction: models.DirectionInbound,
		Timestamp: 1000,
		Media:     media,
	})
	require.NoError(t, err)

	messages, err := repo.Messages().List(ctx, "conv-1")
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, media, messages[0].Media)
}
