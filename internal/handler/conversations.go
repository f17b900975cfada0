package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"

	"github.com/mrusso/whatsapp-relay/internal/middleware"
	"github.com/mrusso/whatsapp-relay/internal/service"
)

type conversationRequest struct {
	ConversationID string `json:"conversationId"`
	UnreadCount    *int   `json:"unreadCount,omitempty"`
}

// Conversations lists the dashboard's conversation summaries, newest
// activity first.
func (h *Handler) Conversations(w http.ResponseWriter, r *http.Request) {
	conversations, err := h.service.Conversation.List(r.Context())
	if err != nil {
		h.logError(r, "Failed to list conversations", err)
		h.sendError(w, r, http.StatusInternalServerError, middleware.ErrorCodeInternal, errorMessageFailedToListChats)
		return
	}

	render.JSON(w, r, conversations)
}

// ConversationMessages returns one conversation's full message log.
func (h *Handler) ConversationMessages(w http.ResponseWriter, r *http.Request) {
	conversationID := r.URL.Query().Get("id")

	messages, err := h.service.Conversation.Messages(r.Context(), conversationID)
	if err != nil {
		if errors.Is(err, service.ErrMissingConversationID) {
			h.sendError(w, r, http.StatusBadRequest, errorCodeInvalidPayload, errorMessageMissingConversation)
			return
		}
		h.logError(r, "Failed to list messages", err)
		h.sendError(w, r, http.StatusInternalServerError, middleware.ErrorCodeInternal, errorMessageFailedToListMessages)
		return
	}

	render.JSON(w, r, messages)
}

// MarkRead zeroes a conversation's unread counter.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	var req conversationRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil || req.ConversationID == "" {
		h.sendError(w, r, http.StatusBadRequest, errorCodeInvalidPayload, errorMessageMissingConversation)
		return
	}

	if _, err := h.service.Conversation.MarkRead(r.Context(), req.ConversationID); err != nil {
		h.logError(r, "Failed to mark conversation read", err)
		h.sendError(w, r, http.StatusInternalServerError, middleware.ErrorCodeInternal, "Failed to mark conversation read")
		return
	}

	w.WriteHeader(http.StatusOK)
}

// MarkUnread overrides a conversation's unread counter (floor 1).
func (h *Handler) MarkUnread(w http.ResponseWriter, r *http.Request) {
	var req conversationRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil || req.ConversationID == "" {
		h.sendError(w, r, http.StatusBadRequest, errorCodeInvalidPayload, errorMessageMissingConversation)
		return
	}

	count := 1
	if req.UnreadCount != nil {
		count = *req.UnreadCount
	}

	if _, err := h.service.Conversation.MarkUnread(r.Context(), req.ConversationID, count); err != nil {
		h.logError(r, "Failed to mark conversation unread", err)
		h.sendError(w, r, http.StatusInternalServerError, middleware.ErrorCodeInternal, "Failed to mark conversation unread")
		return
	}

	w.WriteHeader(http.StatusOK)
}

// DeleteChat removes a conversation, its message log and its statuses.
func (h *Handler) DeleteChat(w http.ResponseWriter, r *http.Request) {
	var req conversationRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil || req.ConversationID == "" {
		h.sendError(w, r, http.StatusBadRequest, errorCodeInvalidPayload, errorMessageMissingConversation)
		return
	}

	if err := h.service.Conversation.Delete(r.Context(), req.ConversationID); err != nil {
		h.logError(r, "Failed to delete conversation", err)
		h.sendError(w, r, http.StatusInternalServerError, middleware.ErrorCodeInternal, "Failed to delete conversation")
		return
	}

	w.WriteHeader(http.StatusOK)
}
