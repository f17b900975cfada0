package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mrusso/whatsapp-relay/internal/models"
	"github.com/mrusso/whatsapp-relay/internal/store"
)

type messageLog struct {
	tree store.Tree
}

func NewMessageLog(tree store.Tree) MessageLog {
	return &messageLog{tree: tree}
}

func (m *messageLog) Append(ctx context.Context, conversationID string, msg models.Message) (string, error) {
	if conversationID == "" {
		return "", fmt.Errorf("conversation id is required")
	}

	id := m.tree.PushKey()
	path := pathMessages + "/" + conversationID + "/" + id
	if err := m.tree.Set(ctx, path, msg); err != nil {
		return "", fmt.Errorf("failed to append message to %s: %w", conversationID, err)
	}
	return id, nil
}

func (m *messageLog) List(ctx context.Context, conversationID string) ([]models.StoredMessage, error) {
	nodes, err := m.tree.RangeQuery(ctx, pathMessages+"/"+conversationID, "timestamp", 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages of %s: %w", conversationID, err)
	}

	messages := make([]models.StoredMessage, 0, len(nodes))
	for _, node := range nodes {
		var msg models.StoredMessage
		if err := json.Unmarshal(node.Value, &msg.Message); err != nil {
			return nil, fmt.Errorf("failed to decode message %s: %w", node.Key, err)
		}
		msg.ID = node.Key
		messages = append(messages, msg)
	}
	return messages, nil
}

// SetStatus patches the status field of one already-written record. All
// other fields stay untouched.
func (m *messageLog) SetStatus(ctx context.Context, conversationID, messageID, status string) error {
	path := pathMessages + "/" + conversationID + "/" + messageID
	err := m.tree.Update(ctx, path, map[string]interface{}{"status": status})
	if err != nil {
		return fmt.Errorf("failed to set status on message %s: %w", messageID, err)
	}
	return nil
}

func (m *messageLog) DeleteAll(ctx context.Context, conversationID string) error {
	if err := m.tree.Remove(ctx, pathMessages+"/"+conversationID); err != nil {
		return fmt.Errorf("failed to delete messages of %s: %w", conversationID, err)
	}
	return nil
}
