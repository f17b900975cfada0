package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mrusso/whatsapp-relay/internal/models"
	"github.com/mrusso/whatsapp-relay/internal/store"
)

type conversationDirectory struct {
	tree store.Tree
}

func NewConversationDirectory(tree store.Tree) ConversationDirectory {
	return &conversationDirectory{tree: tree}
}

// GetOrCreate installs a fresh conversation id for phoneKey through an
// atomic update of the phone index, so concurrent callers for the same
// key all observe the same id. Only the winning caller seeds the summary
// record; losers must not re-initialize it.
func (d *conversationDirectory) GetOrCreate(ctx context.Context, phoneKey string) (string, bool, error) {
	if phoneKey == "" {
		return "", false, nil
	}

	generated := uuid.New().String()
	raw, committed, err := d.tree.AtomicUpdate(ctx, pathConversationsByPhone+"/"+phoneKey,
		func(current json.RawMessage) (interface{}, error) {
			if current != nil {
				return nil, store.ErrSkipUpdate
			}
			return generated, nil
		})
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve conversation for %s: %w", phoneKey, err)
	}

	var id string
	if err := json.Unmarshal(raw, &id); err != nil {
		return "", false, fmt.Errorf("failed to decode conversation id for %s: %w", phoneKey, err)
	}

	if committed {
		seed := models.Summary{
			Phone:           phoneKey,
			LastMessageText: "",
			LastMessageAt:   time.Now().UnixMilli(),
			UnreadCount:     0,
		}
		if err := d.tree.Set(ctx, pathSummaries+"/"+id, seed); err != nil {
			return "", false, fmt.Errorf("failed to seed conversation %s: %w", id, err)
		}
	}

	return id, committed, nil
}

func (d *conversationDirectory) Lookup(ctx context.Context, phoneKey string) (string, error) {
	if phoneKey == "" {
		return "", nil
	}

	var id string
	err := d.tree.Get(ctx, pathConversationsByPhone+"/"+phoneKey, &id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("failed to look up %s: %w", phoneKey, err)
	}
	return id, nil
}

func (d *conversationDirectory) Delete(ctx context.Context, phoneKey string) error {
	if phoneKey == "" {
		return nil
	}
	if err := d.tree.Remove(ctx, pathConversationsByPhone+"/"+phoneKey); err != nil {
		return fmt.Errorf("failed to delete directory entry for %s: %w", phoneKey, err)
	}
	return nil
}
