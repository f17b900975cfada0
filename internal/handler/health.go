package handler

import (
	"net/http"

	"github.com/go-chi/render"

	"github.com/mrusso/whatsapp-relay/internal/service"
)

// Health reports the aggregate state of the store, cache, event bus and
// provider circuit. Unhealthy maps to 503 so load balancers take the
// instance out of rotation.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := h.service.Health.GetHealth(r.Context())

	if status.Status == service.HealthUnhealthy {
		render.Status(r, http.StatusServiceUnavailable)
	} else {
		render.Status(r, http.StatusOK)
	}
	render.JSON(w, r, status)
}
