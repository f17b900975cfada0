package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MessageMedia streams an attachment stored under a classic message
// resource. Credentials never reach the browser; the server fetches the
// bytes and relays them.
func (h *Handler) MessageMedia(w http.ResponseWriter, r *http.Request) {
	messageSID := chi.URLParam(r, "messageSid")
	mediaSID := chi.URLParam(r, "mediaSid")
	if messageSID == "" || mediaSID == "" {
		h.sendError(w, r, http.StatusBadRequest, errorCodeInvalidPayload, "Media identifiers are required")
		return
	}

	url := h.twilio.MessageMediaURL(messageSID, mediaSID)
	if wrote, err := h.twilio.ProxyMedia(r.Context(), url, w); err != nil {
		h.logError(r, "Failed to proxy message media", err)
		// Once bytes are on the wire the headers are committed; an error
		// body would just be appended to the truncated payload.
		if !wrote {
			h.sendError(w, r, http.StatusBadGateway, errorCodeMediaUnavailable, "Media could not be retrieved")
		}
	}
}

// ConversationMedia streams an attachment stored under a conversations
// service resource.
func (h *Handler) ConversationMedia(w http.ResponseWriter, r *http.Request) {
	serviceSID := chi.URLParam(r, "serviceSid")
	mediaSID := chi.URLParam(r, "mediaSid")
	if serviceSID == "" || mediaSID == "" {
		h.sendError(w, r, http.StatusBadRequest, errorCodeInvalidPayload, "Media identifiers are required")
		return
	}

	url := h.twilio.ConversationMediaURL(serviceSID, mediaSID)
	if wrote, err := h.twilio.ProxyMedia(r.Context(), url, w); err != nil {
		h.logError(r, "Failed to proxy conversation media", err)
		if !wrote {
			h.sendError(w, r, http.StatusBadGateway, errorCodeMediaUnavailable, "Media could not be retrieved")
		}
	}
}
