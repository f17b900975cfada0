package service

import (
	"context"

	"github.com/mrusso/whatsapp-relay/internal/models"
	"github.com/mrusso/whatsapp-relay/internal/transport"
)

// MessageService runs the ingest and dispatch pipelines.
type MessageService interface {
	// Ingest processes one inbound provider webhook event.
	Ingest(ctx context.Context, in models.InboundMessage) error

	// Dispatch sends one dashboard-initiated outbound message.
	Dispatch(ctx context.Context, req models.SendRequest) (*models.SendResult, error)

	// CircuitBreakerStatus reports the outbound breaker state.
	CircuitBreakerStatus() (state BreakerState, requests, failures uint32)
}

// ConversationService exposes the dashboard's conversation operations.
type ConversationService interface {
	List(ctx context.Context) ([]models.Conversation, error)
	Messages(ctx context.Context, conversationID string) ([]models.StoredMessage, error)
	MarkRead(ctx context.Context, conversationID string) (*models.Summary, error)
	MarkUnread(ctx context.Context, conversationID string, count int) (*models.Summary, error)
	Delete(ctx context.Context, conversationID string) error
}

// StatusService runs the status-callback pipeline and its read side.
type StatusService interface {
	// ApplyCallback correlates and applies one provider callback. An
	// unknown sid is not an error.
	ApplyCallback(ctx context.Context, cb models.StatusCallback) error

	Query(ctx context.Context, conversationID string) (map[string]models.DeliveryStatus, error)
	QueryBySid(ctx context.Context, sid string) (*models.StatusBySid, error)
	RecentAudit(ctx context.Context) (map[string]models.StatusAudit, error)

	// TrimAudit enforces the audit retention cap.
	TrimAudit(ctx context.Context) (int, error)
}

// RetentionService drives the periodic audit retention sweep.
type RetentionService interface {
	Start(ctx context.Context) error
	Stop() error
	IsRunning() bool
}

// HealthService reports component health.
type HealthService interface {
	GetHealth(ctx context.Context) *HealthStatus
}

// Sender is the outbound transport. Implemented by transport.Client.
type Sender interface {
	Send(ctx context.Context, from, to, body string) (*transport.SendResponse, error)
}

// Broadcaster fans live events out to connected dashboards. Implemented
// by livebus.Bus.
type Broadcaster interface {
	Broadcast(event interface{})
}
