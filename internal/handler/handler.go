// Package handler provides HTTP request handlers for the application.
package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/render"
	"go.uber.org/zap"

	"github.com/mrusso/whatsapp-relay/internal/livebus"
	"github.com/mrusso/whatsapp-relay/internal/middleware"
	"github.com/mrusso/whatsapp-relay/internal/service"
	"github.com/mrusso/whatsapp-relay/internal/transport"
)

const (
	errorCodeInvalidPayload   = "INVALID_PAYLOAD"
	errorCodeInvalidRecipient = "INVALID_RECIPIENT"
	errorCodeSendFailed       = "SEND_FAILED"
	errorCodeMediaUnavailable = "MEDIA_UNAVAILABLE"
)

const (
	errorMessageMissingSender        = "Sender is missing or cannot be normalized"
	errorMessageEmptyMessage         = "Message needs text or media"
	errorMessageInvalidRecipient     = "Recipient is not a valid phone number"
	errorMessageMissingConversation  = "Conversation id is required"
	errorMessageFailedToListChats    = "Failed to list conversations"
	errorMessageFailedToListMessages = "Failed to list conversation messages"
	errorMessageFailedToReadStatus   = "Failed to read message statuses"
)

// ErrorResponse is the JSON error envelope shared by all endpoints.
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type Handler struct {
	service *service.Service
	twilio  *transport.Client
	events  *livebus.Bus
	logger  *zap.Logger
}

func NewHandler(service *service.Service, twilio *transport.Client, events *livebus.Bus, logger *zap.Logger) *Handler {
	return &Handler{
		service: service,
		twilio:  twilio,
		events:  events,
		logger:  logger,
	}
}

func (h *Handler) sendError(w http.ResponseWriter, r *http.Request, statusCode int, errorCode, message string) {
	render.Status(r, statusCode)
	render.JSON(w, r, ErrorResponse{
		Error:     errorCode,
		Message:   message,
		Timestamp: time.Now(),
	})
}

func (h *Handler) logError(r *http.Request, msg string, err error) {
	h.logger.Error(msg,
		zap.String("request_id", middleware.GetRequestID(r.Context())),
		zap.String("path", r.URL.Path),
		zap.Error(err))
}
