// Package handlers provides HTTP handlers for market data fetch and retrieval.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/raksha-rane/stratify/internal/apperrors"
	"github.com/raksha-rane/stratify/internal/modules/marketdata"
	"github.com/rs/zerolog"
)

// DefaultQualityLimit is the number of quality logs returned when no limit is given
const DefaultQualityLimit = 10

// DataService is the subset of marketdata.Service used by the handlers
type DataService interface {
	Fetch(ctx context.Context, ticker, start, end string) (*marketdata.FetchResult, error)
	Get(ctx context.Context, ticker, start, end string) ([]marketdata.Bar, error)
	QualityLogs(ticker string, limit int) ([]marketdata.QualityLog, error)
}

// Handler handles market data HTTP requests
type Handler struct {
	service DataService
	log     zerolog.Logger
}

// NewHandler creates a new market data handler
func NewHandler(service DataService, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "marketdata").Logger(),
	}
}

// FetchRequest is the body of POST /api/data/fetch
type FetchRequest struct {
	Ticker    string `json:"ticker"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// HandleFetch handles POST /api/data/fetch
func (h *Handler) HandleFetch(w http.ResponseWriter, r *http.Request) {
	var req FetchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, apperrors.Validation("Invalid request body"))
		return
	}

	missing := []string{}
	if req.Ticker == "" {
		missing = append(missing, "ticker")
	}
	if req.StartDate == "" {
		missing = append(missing, "start_date")
	}
	if req.EndDate == "" {
		missing = append(missing, "end_date")
	}
	if len(missing) > 0 {
		h.writeError(w, r, apperrors.Validation("Missing required fields").WithDetail("missing_fields", missing))
		return
	}

	result, err := h.service.Fetch(r.Context(), req.Ticker, req.StartDate, req.EndDate)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": result,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
			"message":   "Data fetched and stored successfully",
		},
	})
}

// HandleGet handles GET /api/data/get?ticker=&start_date=&end_date=
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	for _, field := range []string{"ticker", "start_date", "end_date"} {
		if q.Get(field) == "" {
			h.writeError(w, r, apperrors.Validation("%s parameter is required", field).WithDetail("field", field))
			return
		}
	}

	bars, err := h.service.Get(r.Context(), q.Get("ticker"), q.Get("start_date"), q.Get("end_date"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"ticker":  bars[0].Ticker,
			"records": len(bars),
			"bars":    bars,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleQuality handles GET /api/data/quality/{ticker}?limit=
func (h *Handler) HandleQuality(w http.ResponseWriter, r *http.Request) {
	limit := DefaultQualityLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			h.writeError(w, r, apperrors.Validation("limit must be an integer between 1 and 100"))
			return
		}
		limit = n
	}

	logs, err := h.service.QualityLogs(chi.URLParam(r, "ticker"), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"logs":  logs,
			"count": len(logs),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError maps err to its status code and writes the error body
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.Status(err)
	event := h.log.Warn()
	if status >= http.StatusInternalServerError {
		event = h.log.Error()
	}
	event.Err(err).
		Str("path", r.URL.Path).
		Str("correlation_id", r.Header.Get("X-Correlation-ID")).
		Int("status", status).
		Msg("Request failed")

	h.writeJSON(w, status, apperrors.Body(err))
}
