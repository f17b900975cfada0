// Package repository implements conversation state persistence on top of
// the key-path document tree.
package repository

import (
	"context"
	"time"

	"github.com/mrusso/whatsapp-relay/internal/store"
)

// Tree path roots. They mirror the layout a dashboard reading the raw
// store would expect.
const (
	pathConversationsByPhone = "conversationsByPhone"
	pathSummaries            = "conversationSummaries"
	pathMessages             = "conversationMessages"
	pathStatuses             = "messageStatuses"
	pathSidToConversation    = "sidToConversation"
	pathStatusAudit          = "logs/status"
)

// Pinger is implemented by tree backends with a real connection to check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// repositoryImpl is the concrete implementation of Repository interface.
type repositoryImpl struct {
	tree      store.Tree
	directory ConversationDirectory
	summaries SummaryLedger
	messages  MessageLog
	statuses  StatusTracker
}

// NewRepository creates a new repository instance over tree.
func NewRepository(tree store.Tree) Repository {
	return &repositoryImpl{
		tree:      tree,
		directory: NewConversationDirectory(tree),
		summaries: NewSummaryLedger(tree),
		messages:  NewMessageLog(tree),
		statuses:  NewStatusTracker(tree),
	}
}

func (r *repositoryImpl) Directory() ConversationDirectory { return r.directory }

func (r *repositoryImpl) Summaries() SummaryLedger { return r.summaries }

func (r *repositoryImpl) Messages() MessageLog { return r.messages }

func (r *repositoryImpl) Statuses() StatusTracker { return r.statuses }

// Ping checks if the underlying store is healthy.
func (r *repositoryImpl) Ping(ctx context.Context) error {
	pinger, ok := r.tree.(Pinger)
	if !ok {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	return pinger.Ping(ctx)
}
