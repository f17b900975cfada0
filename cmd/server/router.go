package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mrusso/whatsapp-relay/internal/handler"
)

func setupRouter(h *handler.Handler) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", h.Health)

	// Provider callbacks
	r.Post("/webhook", h.Webhook)
	r.Post("/status", h.StatusCallback)

	// Agent API
	r.Post("/send", h.Send)
	r.Get("/conversations", h.Conversations)
	r.Get("/conversation-messages", h.ConversationMessages)
	r.Get("/message-status", h.MessageStatuses)
	r.Get("/message-status-by-sid", h.MessageStatusBySid)
	r.Get("/logs/status", h.StatusLogs)
	r.Post("/read", h.MarkRead)
	r.Post("/mark-unread", h.MarkUnread)
	r.Post("/delete-chat", h.DeleteChat)

	// Live updates
	r.Get("/events", h.Events)

	// Media proxy
	r.Get("/media/messages/{messageSid}/{mediaSid}", h.MessageMedia)
	r.Get("/media/conversations/{serviceSid}/{mediaSid}", h.ConversationMedia)

	return r
}
