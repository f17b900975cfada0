package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"

	"github.com/mrusso/whatsapp-relay/internal/middleware"
	"github.com/mrusso/whatsapp-relay/internal/models"
	"github.com/mrusso/whatsapp-relay/internal/service"
)

// Send dispatches one outbound message on behalf of the dashboard.
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	var req models.SendRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.sendError(w, r, http.StatusBadRequest, errorCodeInvalidPayload, "Malformed JSON payload")
		return
	}

	result, err := h.service.Message.Dispatch(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRecipient):
			h.sendError(w, r, http.StatusBadRequest, errorCodeInvalidRecipient, errorMessageInvalidRecipient)
		default:
			h.logError(r, "Failed to dispatch message", err)
			h.sendError(w, r, http.StatusInternalServerError, errorCodeSendFailed, err.Error())
		}
		return
	}

	render.JSON(w, r, result)
}

// StatusCallback records one provider delivery-status callback. The
// provider must never re-deliver a callback because of an application
// level miss, so the response is 200 regardless of outcome.
func (h *Handler) StatusCallback(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		// The trail records every callback, unparseable ones included.
		// The query string may still carry the sid fields.
		cb := models.StatusCallback{
			SID:          r.URL.Query().Get("MessageSid"),
			Status:       r.URL.Query().Get("MessageStatus"),
			ErrorMessage: "malformed form payload",
		}
		if auditErr := h.service.Status.ApplyCallback(r.Context(), cb); auditErr != nil {
			h.logError(r, "Failed to audit malformed status callback", auditErr)
		}
		w.WriteHeader(http.StatusOK)
		return
	}

	cb := models.StatusCallback{
		SID:          r.PostForm.Get("MessageSid"),
		Status:       r.PostForm.Get("MessageStatus"),
		To:           r.PostForm.Get("To"),
		ErrorCode:    r.PostForm.Get("ErrorCode"),
		ErrorMessage: r.PostForm.Get("ErrorMessage"),
	}

	if err := h.service.Status.ApplyCallback(r.Context(), cb); err != nil {
		h.logError(r, "Failed to apply status callback", err)
	}

	w.WriteHeader(http.StatusOK)
}

// MessageStatuses returns a conversation's delivery status records.
func (h *Handler) MessageStatuses(w http.ResponseWriter, r *http.Request) {
	conversationID := r.URL.Query().Get("conversationId")

	statuses, err := h.service.Status.Query(r.Context(), conversationID)
	if err != nil {
		if errors.Is(err, service.ErrMissingConversationID) {
			h.sendError(w, r, http.StatusBadRequest, errorCodeInvalidPayload, errorMessageMissingConversation)
			return
		}
		h.logError(r, "Failed to query statuses", err)
		h.sendError(w, r, http.StatusInternalServerError, middleware.ErrorCodeInternal, errorMessageFailedToReadStatus)
		return
	}

	render.JSON(w, r, statuses)
}

// MessageStatusBySid resolves a sid to its conversation and status.
func (h *Handler) MessageStatusBySid(w http.ResponseWriter, r *http.Request) {
	sid := r.URL.Query().Get("sid")
	if sid == "" {
		h.sendError(w, r, http.StatusBadRequest, errorCodeInvalidPayload, "sid is required")
		return
	}

	result, err := h.service.Status.QueryBySid(r.Context(), sid)
	if err != nil {
		h.logError(r, "Failed to query status by sid", err)
		h.sendError(w, r, http.StatusInternalServerError, middleware.ErrorCodeInternal, errorMessageFailedToReadStatus)
		return
	}

	render.JSON(w, r, result)
}

// StatusLogs exposes the recent provider callback audit trail.
func (h *Handler) StatusLogs(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.Status.RecentAudit(r.Context())
	if err != nil {
		h.logError(r, "Failed to read audit trail", err)
		h.sendError(w, r, http.StatusInternalServerError, middleware.ErrorCodeInternal, errorMessageFailedToReadStatus)
		return
	}

	render.JSON(w, r, entries)
}
