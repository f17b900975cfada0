package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/mrusso/whatsapp-relay/internal/middleware"
)

// Events attaches the client to the live event stream. The connection
// stays open until the client goes away or the bus shuts down; periodic
// comment frames keep intermediaries from idling it out.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	if _, ok := w.(http.Flusher); !ok {
		h.sendError(w, r, http.StatusInternalServerError, middleware.ErrorCodeInternal, "Streaming is not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sub, err := h.events.Subscribe(w)
	if err != nil {
		h.logError(r, "Failed to open event stream", err)
		return
	}
	defer sub.Close()

	h.logger.Info("Event subscriber connected",
		zap.String("request_id", middleware.GetRequestID(r.Context())),
		zap.String("remote_addr", r.RemoteAddr))

	select {
	case <-r.Context().Done():
	case <-sub.Done():
	}
}
