package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers risk routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/risk", func(r chi.Router) {
		r.Get("/securities/{ticker}", h.HandleGetSecurityRisk)
		r.Get("/position-size", h.HandleGetPositionSize)
	})
}
