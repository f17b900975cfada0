package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mrusso/whatsapp-relay/internal/models"
	"github.com/mrusso/whatsapp-relay/internal/store"
)

type statusTracker struct {
	tree store.Tree
}

func NewStatusTracker(tree store.Tree) StatusTracker {
	return &statusTracker{tree: tree}
}

func (t *statusTracker) RecordForSend(ctx context.Context, conversationID, messageID, sid, initialStatus string) error {
	if conversationID == "" || sid == "" {
		return fmt.Errorf("conversation id and sid are required")
	}

	record := models.DeliveryStatus{
		SID:       sid,
		Status:    initialStatus,
		Timestamp: time.Now().UnixMilli(),
	}
	if err := t.tree.Set(ctx, statusPath(conversationID, sid), record); err != nil {
		return fmt.Errorf("failed to seed status for %s: %w", sid, err)
	}

	link := models.SidLink{ConversationID: conversationID, MessageID: messageID}
	if err := t.tree.Set(ctx, pathSidToConversation+"/"+sid, link); err != nil {
		return fmt.Errorf("failed to link sid %s: %w", sid, err)
	}
	return nil
}

// Audit appends the callback to the arrival-ordered trail. This runs for
// every callback, matched or not: the trail is the system of record even
// when correlation fails.
func (t *statusTracker) Audit(ctx context.Context, cb models.StatusCallback) error {
	entry := models.StatusAudit{
		SID:          cb.SID,
		Status:       cb.Status,
		To:           cb.To,
		ErrorCode:    cb.ErrorCode,
		ErrorMessage: cb.ErrorMessage,
		Timestamp:    time.Now().UnixMilli(),
	}
	path := pathStatusAudit + "/" + t.tree.PushKey()
	if err := t.tree.Set(ctx, path, entry); err != nil {
		return fmt.Errorf("failed to audit callback for %s: %w", cb.SID, err)
	}
	return nil
}

func (t *statusTracker) Resolve(ctx context.Context, sid string) (*models.SidLink, error) {
	if sid == "" {
		return nil, nil
	}

	var link models.SidLink
	err := t.tree.Get(ctx, pathSidToConversation+"/"+sid, &link)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to resolve sid %s: %w", sid, err)
	}
	if link.ConversationID == "" {
		return nil, nil
	}
	return &link, nil
}

// SaveStatus merges the callback fields into the status record. Merge
// rather than replace: the creation timestamp and any fields a given
// callback omits survive, the timestamp is refreshed.
func (t *statusTracker) SaveStatus(ctx context.Context, conversationID, sid string, cb models.StatusCallback) error {
	if conversationID == "" || sid == "" {
		return fmt.Errorf("conversation id and sid are required")
	}

	fields := map[string]interface{}{
		"sid":       sid,
		"status":    cb.Status,
		"timestamp": time.Now().UnixMilli(),
	}
	if cb.ErrorCode != "" {
		fields["errorCode"] = cb.ErrorCode
	}
	if cb.ErrorMessage != "" {
		fields["errorMessage"] = cb.ErrorMessage
	}

	if err := t.tree.Update(ctx, statusPath(conversationID, sid), fields); err != nil {
		return fmt.Errorf("failed to save status for %s: %w", sid, err)
	}
	return nil
}

func (t *statusTracker) Query(ctx context.Context, conversationID string, limit int) (map[string]models.DeliveryStatus, error) {
	nodes, err := t.tree.RangeQuery(ctx, pathStatuses+"/"+conversationID, "timestamp", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query statuses of %s: %w", conversationID, err)
	}

	statuses := make(map[string]models.DeliveryStatus, len(nodes))
	for _, node := range nodes {
		var record models.DeliveryStatus
		if err := json.Unmarshal(node.Value, &record); err != nil {
			return nil, fmt.Errorf("failed to decode status %s: %w", node.Key, err)
		}
		statuses[node.Key] = record
	}
	return statuses, nil
}

func (t *statusTracker) GetStatus(ctx context.Context, conversationID, sid string) (*models.DeliveryStatus, error) {
	var record models.DeliveryStatus
	err := t.tree.Get(ctx, statusPath(conversationID, sid), &record)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get status %s: %w", sid, err)
	}
	return &record, nil
}

func (t *statusTracker) RecentAudit(ctx context.Context, limit int) (map[string]models.StatusAudit, error) {
	nodes, err := t.tree.RangeQuery(ctx, pathStatusAudit, "timestamp", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read audit trail: %w", err)
	}

	entries := make(map[string]models.StatusAudit, len(nodes))
	for _, node := range nodes {
		var entry models.StatusAudit
		if err := json.Unmarshal(node.Value, &entry); err != nil {
			return nil, fmt.Errorf("failed to decode audit entry %s: %w", node.Key, err)
		}
		entries[node.Key] = entry
	}
	return entries, nil
}

func (t *statusTracker) TrimAudit(ctx context.Context, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}

	nodes, err := t.tree.RangeQuery(ctx, pathStatusAudit, "timestamp", 0)
	if err != nil {
		return 0, fmt.Errorf("failed to read audit trail: %w", err)
	}
	if len(nodes) <= keep {
		return 0, nil
	}

	removed := 0
	for _, node := range nodes[:len(nodes)-keep] {
		if err := t.tree.Remove(ctx, pathStatusAudit+"/"+node.Key); err != nil {
			return removed, fmt.Errorf("failed to trim audit entry %s: %w", node.Key, err)
		}
		removed++
	}
	return removed, nil
}

// DeleteAll removes the conversation's status records along with their
// reverse index entries, so stale sids cannot correlate back to a
// deleted conversation. The unlinked sids are returned: any cache in
// front of the reverse index must drop them too, or a late callback
// would resurrect records under the deleted conversation.
func (t *statusTracker) DeleteAll(ctx context.Context, conversationID string) ([]string, error) {
	statuses, err := t.Query(ctx, conversationID, 0)
	if err != nil {
		return nil, err
	}

	unlinked := make([]string, 0, len(statuses))
	for sid := range statuses {
		if err := t.tree.Remove(ctx, pathSidToConversation+"/"+sid); err != nil {
			return unlinked, fmt.Errorf("failed to unlink sid %s: %w", sid, err)
		}
		unlinked = append(unlinked, sid)
	}
	if err := t.tree.Remove(ctx, pathStatuses+"/"+conversationID); err != nil {
		return unlinked, fmt.Errorf("failed to delete statuses of %s: %w", conversationID, err)
	}
	return unlinked, nil
}

func statusPath(conversationID, sid string) string {
	return pathStatuses + "/" + conversationID + "/" + sid
}
