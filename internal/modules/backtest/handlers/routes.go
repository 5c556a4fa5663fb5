package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers backtest routes. runLimit guards strategy execution.
func (h *Handler) RegisterRoutes(r chi.Router, runLimit func(http.Handler) http.Handler) {
	if runLimit == nil {
		runLimit = func(next http.Handler) http.Handler { return next }
	}
	r.With(runLimit).Post("/strategy/run", h.HandleRun)
	r.Get("/strategies", h.HandleStrategies)

	r.Route("/results", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Get("/{id}", h.HandleGet)
		r.Get("/{id}/trades.csv", h.HandleTradesCSV)
	})
}
