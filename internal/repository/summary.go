package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mrusso/whatsapp-relay/internal/models"
	"github.com/mrusso/whatsapp-relay/internal/store"
)

type summaryLedger struct {
	tree store.Tree
}

func NewSummaryLedger(tree store.Tree) SummaryLedger {
	return &summaryLedger{tree: tree}
}

// Apply folds change into the rollup. The unread counter is additive and
// must survive any interleaving, so the whole fold runs inside the
// store's atomic update. Text and timestamp are last-writer-wins.
func (l *summaryLedger) Apply(ctx context.Context, id string, change SummaryChange) (*models.Summary, error) {
	if id == "" || change.Timestamp == 0 {
		return nil, nil
	}

	raw, _, err := l.tree.AtomicUpdate(ctx, pathSummaries+"/"+id,
		func(current json.RawMessage) (interface{}, error) {
			var curr models.Summary
			if current != nil {
				if err := json.Unmarshal(current, &curr); err != nil {
					return nil, fmt.Errorf("failed to decode summary %s: %w", id, err)
				}
			}

			unread := curr.UnreadCount
			if change.IncrementUnread {
				unread++
			}

			next := models.Summary{
				Phone:           change.Phone,
				LastMessageText: change.Text,
				LastMessageAt:   change.Timestamp,
				UnreadCount:     unread,
			}
			if next.Phone == "" {
				next.Phone = curr.Phone
			}
			if next.LastMessageText == "" {
				next.LastMessageText = curr.LastMessageText
			}
			return next, nil
		})
	if err != nil {
		return nil, fmt.Errorf("failed to update summary %s: %w", id, err)
	}

	return decodeSummary(id, raw)
}

func (l *summaryLedger) ResetUnread(ctx context.Context, id string) (*models.Summary, error) {
	return l.overrideUnread(ctx, id, 0)
}

func (l *summaryLedger) SetUnread(ctx context.Context, id string, count int) (*models.Summary, error) {
	if count < 1 {
		count = 1
	}
	return l.overrideUnread(ctx, id, count)
}

// overrideUnread rewrites only the unread counter, atomically with
// respect to concurrent Apply folds. A missing summary is left missing.
func (l *summaryLedger) overrideUnread(ctx context.Context, id string, count int) (*models.Summary, error) {
	if id == "" {
		return nil, nil
	}

	raw, committed, err := l.tree.AtomicUpdate(ctx, pathSummaries+"/"+id,
		func(current json.RawMessage) (interface{}, error) {
			if current == nil {
				return nil, store.ErrSkipUpdate
			}
			var curr models.Summary
			if err := json.Unmarshal(current, &curr); err != nil {
				return nil, fmt.Errorf("failed to decode summary %s: %w", id, err)
			}
			curr.UnreadCount = count
			return curr, nil
		})
	if err != nil {
		return nil, fmt.Errorf("failed to override unread on %s: %w", id, err)
	}
	if !committed {
		return nil, nil
	}

	return decodeSummary(id, raw)
}

func (l *summaryLedger) Get(ctx context.Context, id string) (*models.Summary, error) {
	var summary models.Summary
	err := l.tree.Get(ctx, pathSummaries+"/"+id, &summary)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get summary %s: %w", id, err)
	}
	return &summary, nil
}

func (l *summaryLedger) List(ctx context.Context, limit int) ([]models.Conversation, error) {
	nodes, err := l.tree.RangeQuery(ctx, pathSummaries, "lastMessageAt", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list summaries: %w", err)
	}

	// RangeQuery returns ascending; the dashboard wants newest first.
	conversations := make([]models.Conversation, 0, len(nodes))
	for i := len(nodes) - 1; i >= 0; i-- {
		var conv models.Conversation
		if err := json.Unmarshal(nodes[i].Value, &conv.Summary); err != nil {
			return nil, fmt.Errorf("failed to decode summary %s: %w", nodes[i].Key, err)
		}
		conv.ID = nodes[i].Key
		conversations = append(conversations, conv)
	}
	return conversations, nil
}

func (l *summaryLedger) Delete(ctx context.Context, id string) error {
	if err := l.tree.Remove(ctx, pathSummaries+"/"+id); err != nil {
		return fmt.Errorf("failed to delete summary %s: %w", id, err)
	}
	return nil
}

func decodeSummary(id string, raw json.RawMessage) (*models.Summary, error) {
	var summary models.Summary
	if err := json.Unmarshal(raw, &summary); err != nil {
		return nil, fmt.Errorf("failed to decode summary %s: %w", id, err)
	}
	return &summary, nil
}
