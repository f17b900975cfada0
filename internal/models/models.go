// Package models defines data structures used throughout the application.
package models

// Direction marks which way a message travelled.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Delivery status values reported by the provider. The set is provider
// defined, these are the ones Twilio actually sends.
const (
	StatusQueued      = "queued"
	StatusSent        = "sent"
	StatusDelivered   = "delivered"
	StatusRead        = "read"
	StatusFailed      = "failed"
	StatusUndelivered = "undelivered"
)

// Summary is the denormalized per-conversation rollup shown in the
// dashboard list. Timestamps are epoch milliseconds.
type Summary struct {
	Phone           string `json:"phone"`
	LastMessageText string `json:"lastMessageText"`
	LastMessageAt   int64  `json:"lastMessageAt"`
	UnreadCount     int    `json:"unreadCount"`
}

// Conversation is a summary together with its identity, as returned by
// the conversation list endpoint.
type Conversation struct {
	ID string `json:"id"`
	Summary
}

// Media describes one attachment carried by a message. Type is either
// "message" (classic MMS media) or "conversation" (Conversations API media).
type Media struct {
	SID             string `json:"sid,omitempty"`
	MessageSID      string `json:"messageSid,omitempty"`
	Filename        string `json:"filename,omitempty"`
	ContentType     string `json:"contentType,omitempty"`
	Size            int64  `json:"size,omitempty"`
	ServiceSID      string `json:"serviceSid,omitempty"`
	ConversationSID string `json:"conversationSid,omitempty"`
	OriginalURL     string `json:"originalUrl,omitempty"`
	ProxyURL        string `json:"proxyUrl,omitempty"`
	Type            string `json:"type,omitempty"`
}

// Message is one record in a conversation's log. Immutable once written
// except for Status, which delivery callbacks patch in place.
type Message struct {
	Text      string    `json:"text"`
	Direction Direction `json:"direction"`
	Timestamp int64     `json:"timestamp"`
	Media     []Media   `json:"media,omitempty"`
	SID       string    `json:"sid,omitempty"`
	Status    string    `json:"status,omitempty"`
}

// StoredMessage is a message together with its log identity.
type StoredMessage struct {
	ID string `json:"id"`
	Message
}

// DeliveryStatus is the per-sid status record kept under a conversation.
type DeliveryStatus struct {
	SID          string `json:"sid"`
	Status       string `json:"status"`
	ErrorCode    string `json:"errorCode,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	Timestamp    int64  `json:"timestamp"`
}

// SidLink is the reverse index entry from a provider sid back to the
// owning conversation and message.
type SidLink struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId,omitempty"`
}

// StatusAudit is one entry in the append-only callback audit trail. Every
// provider callback lands here whether or not it correlates.
type StatusAudit struct {
	SID          string `json:"sid"`
	Status       string `json:"status"`
	To           string `json:"to,omitempty"`
	ErrorCode    string `json:"errorCode,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	Timestamp    int64  `json:"timestamp"`
}

// InboundMessage is a parsed provider webhook payload handed to the
// ingest pipeline.
type InboundMessage struct {
	From      string
	To        string
	Body      string
	SID       string
	EventType string
	Media     []Media
	Timestamp int64
}

// StatusCallback is a parsed provider delivery-status callback.
type StatusCallback struct {
	SID          string
	Status       string
	To           string
	ErrorCode    string
	ErrorMessage string
}

// SendRequest is the dashboard's outbound send payload.
type SendRequest struct {
	To             string `json:"to"`
	Body           string `json:"body"`
	ConversationID string `json:"conversationId,omitempty"`
}

// SendResult is returned to the dashboard after a successful dispatch.
type SendResult struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
	SID            string `json:"sid"`
	Status         string `json:"status"`
	Phone          string `json:"phone"`
}

// StatusBySid is the correlation lookup response. Fields stay null when
// the sid was never linked to a conversation.
type StatusBySid struct {
	ConversationID string          `json:"conversationId,omitempty"`
	MessageID      string          `json:"messageId,omitempty"`
	Status         *string         `json:"status"`
	Payload        *DeliveryStatus `json:"payload"`
}

// Live event types fanned out to dashboard subscribers.
const (
	EventTypeMessage = "message"
	EventTypeStatus  = "status"
	EventTypeSummary = "summary"
)

// MessageEvent announces an appended message plus the refreshed summary.
type MessageEvent struct {
	Type           string         `json:"type"`
	ConversationID string         `json:"conversationId"`
	Phone          string         `json:"phone"`
	Summary        *Summary       `json:"summary"`
	Message        *StoredMessage `json:"message"`
}

// StatusEvent announces a correlated delivery-status change.
type StatusEvent struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId"`
	SID            string `json:"sid"`
	Status         string `json:"status"`
	ErrorCode      string `json:"errorCode,omitempty"`
	ErrorMessage   string `json:"errorMessage,omitempty"`
	Timestamp      int64  `json:"timestamp"`
}

// SummaryEvent announces an unread-count change from mark-read/mark-unread.
type SummaryEvent struct {
	Type           string   `json:"type"`
	ConversationID string   `json:"conversationId"`
	Summary        *Summary `json:"summary"`
}
