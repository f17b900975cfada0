package repository

import (
	"context"

	"github.com/mrusso/whatsapp-relay/internal/models"
)

// Repository interface defines all repository operations.
type Repository interface {
	// Ping checks store connectivity
	Ping(ctx context.Context) error

	// Directory returns the phone-key to conversation-id directory
	Directory() ConversationDirectory

	// Summaries returns the conversation summary ledger
	Summaries() SummaryLedger

	// Messages returns the per-conversation message log
	Messages() MessageLog

	// Statuses returns the delivery status tracker
	Statuses() StatusTracker
}

// ConversationDirectory maps canonical phone keys to conversation ids,
// creating a conversation exactly once per key.
type ConversationDirectory interface {
	// GetOrCreate resolves phoneKey to a conversation id, allocating one
	// when none exists. created reports whether this call was the one
	// that installed (and seeded) the conversation.
	GetOrCreate(ctx context.Context, phoneKey string) (id string, created bool, err error)

	// Lookup returns the conversation id for phoneKey, or "" when the
	// key has no conversation.
	Lookup(ctx context.Context, phoneKey string) (string, error)

	// Delete removes the directory entry for phoneKey.
	Delete(ctx context.Context, phoneKey string) error
}

// SummaryChange carries one summary mutation. Text and Phone fall back to
// the stored values when empty; unread is an additive fold.
type SummaryChange struct {
	Phone           string
	Text            string
	Timestamp       int64
	IncrementUnread bool
}

// SummaryLedger maintains the denormalized per-conversation rollup.
type SummaryLedger interface {
	// Apply folds change into the summary atomically and returns the
	// updated rollup. Returns nil when id or timestamp is missing.
	Apply(ctx context.Context, id string, change SummaryChange) (*models.Summary, error)

	// ResetUnread sets the unread counter to zero.
	ResetUnread(ctx context.Context, id string) (*models.Summary, error)

	// SetUnread overrides the unread counter, flooring at one.
	SetUnread(ctx context.Context, id string, count int) (*models.Summary, error)

	// Get returns the summary for id.
	Get(ctx context.Context, id string) (*models.Summary, error)

	// List returns up to limit summaries, most recent first.
	List(ctx context.Context, limit int) ([]models.Conversation, error)

	// Delete removes the summary record.
	Delete(ctx context.Context, id string) error
}

// MessageLog is the append-only ordered message sequence per conversation.
type MessageLog interface {
	// Append stores msg under a fresh chronologically ordered id.
	Append(ctx context.Context, conversationID string, msg models.Message) (string, error)

	// List returns all messages ascending by timestamp, push-id order
	// breaking ties.
	List(ctx context.Context, conversationID string) ([]models.StoredMessage, error)

	// SetStatus patches one message's status field in place.
	SetStatus(ctx context.Context, conversationID, messageID, status string) error

	// DeleteAll removes the conversation's entire log.
	DeleteAll(ctx context.Context, conversationID string) error
}

// StatusTracker records outbound delivery statuses, the sid reverse index
// and the append-only callback audit trail.
type StatusTracker interface {
	// RecordForSend seeds the status record for a dispatched message and
	// links its sid back to (conversationID, messageID).
	RecordForSend(ctx context.Context, conversationID, messageID, sid, initialStatus string) error

	// Audit appends cb to the global audit trail regardless of whether
	// the sid correlates to anything.
	Audit(ctx context.Context, cb models.StatusCallback) error

	// Resolve looks up the reverse index; returns nil when the sid is
	// unknown.
	Resolve(ctx context.Context, sid string) (*models.SidLink, error)

	// SaveStatus merges status fields into the per-conversation record,
	// refreshing its timestamp.
	SaveStatus(ctx context.Context, conversationID, sid string, cb models.StatusCallback) error

	// Query returns the recent status records of a conversation keyed
	// by sid.
	Query(ctx context.Context, conversationID string, limit int) (map[string]models.DeliveryStatus, error)

	// GetStatus returns a single status record, or nil when absent.
	GetStatus(ctx context.Context, conversationID, sid string) (*models.DeliveryStatus, error)

	// RecentAudit returns the newest audit entries keyed by arrival id.
	RecentAudit(ctx context.Context, limit int) (map[string]models.StatusAudit, error)

	// TrimAudit drops all but the newest keep audit entries and reports
	// how many were removed.
	TrimAudit(ctx context.Context, keep int) (int, error)

	// DeleteAll removes a conversation's status records and their
	// reverse index entries, returning the sids it unlinked so callers
	// can drop any cached copies of those links.
	DeleteAll(ctx context.Context, conversationID string) ([]string, error)
}
