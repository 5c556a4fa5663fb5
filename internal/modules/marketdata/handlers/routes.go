package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers market data routes. fetchLimit guards the upstream fetch endpoint.
func (h *Handler) RegisterRoutes(r chi.Router, fetchLimit func(http.Handler) http.Handler) {
	if fetchLimit == nil {
		fetchLimit = func(next http.Handler) http.Handler { return next }
	}
	r.Route("/data", func(r chi.Router) {
		r.With(fetchLimit).Post("/fetch", h.HandleFetch)
		r.Get("/get", h.HandleGet)
		r.Get("/quality/{ticker}", h.HandleQuality)
	})
}
