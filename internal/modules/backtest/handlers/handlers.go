// Package handlers provides HTTP handlers for backtest runs and stored results.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gocarina/gocsv"
	"github.com/raksha-rane/stratify/internal/apperrors"
	"github.com/raksha-rane/stratify/internal/modules/backtest"
	"github.com/raksha-rane/stratify/internal/modules/strategies"
	"github.com/rs/zerolog"
)

// BacktestService is the subset of backtest.Service used by the handlers
type BacktestService interface {
	Run(ctx context.Context, req backtest.RunRequest) (*backtest.RunResponse, error)
	Get(id int64) (*backtest.StoredResult, error)
	List(page, pageSize int) (*backtest.Page, error)
	Defaults() backtest.Params
}

// Handler handles backtest HTTP requests
type Handler struct {
	service BacktestService
	log     zerolog.Logger
}

// NewHandler creates a new backtest handler
func NewHandler(service BacktestService, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "backtest").Logger(),
	}
}

// HandleRun handles POST /api/strategy/run
func (h *Handler) HandleRun(w http.ResponseWriter, r *http.Request) {
	var req backtest.RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, apperrors.Validation("Invalid request body"))
		return
	}
	if req.Ticker == "" {
		h.writeError(w, r, apperrors.Validation("Missing required fields").WithDetail("missing_fields", []string{"ticker"}))
		return
	}
	req.CorrelationID = r.Header.Get("X-Correlation-ID")

	resp, err := h.service.Run(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": resp,
		"metadata": map[string]interface{}{
			"timestamp":      time.Now().Format(time.RFC3339),
			"correlation_id": req.CorrelationID,
		},
	})
}

// HandleStrategies handles GET /api/strategies
func (h *Handler) HandleStrategies(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"strategies": strategies.Catalogue(),
			"simulation": h.service.Defaults(),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleList handles GET /api/results?page=&page_size=
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	page, err := intQuery(r, "page", 1)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	pageSize, err := intQuery(r, "page_size", backtest.DefaultPageSize)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	results, err := h.service.List(page, pageSize)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": results,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleGet handles GET /api/results/{id}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := h.service.Get(id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": result,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// tradeRow is one line of the trades CSV export
type tradeRow struct {
	Date           string  `csv:"date"`
	Signal         string  `csv:"signal"`
	Price          float64 `csv:"price"`
	EffectivePrice float64 `csv:"effective_price"`
	Shares         int     `csv:"shares"`
	CashFlow       float64 `csv:"cash_flow"`
	Commission     float64 `csv:"commission"`
	Slippage       float64 `csv:"slippage"`
	PnL            string  `csv:"pnl"`
	PortfolioValue float64 `csv:"portfolio_value"`
}

// HandleTradesCSV handles GET /api/results/{id}/trades.csv
func (h *Handler) HandleTradesCSV(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := h.service.Get(id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	rows := make([]*tradeRow, 0, len(result.Trades))
	for _, t := range result.Trades {
		row := &tradeRow{
			Date:           t.Date,
			Signal:         string(t.Signal),
			Price:          t.Price,
			EffectivePrice: t.EffectivePrice,
			Shares:         t.Quantity,
			CashFlow:       t.CashFlow,
			Commission:     t.Commission,
			Slippage:       t.Slippage,
			PortfolioValue: t.PortfolioValue,
		}
		if t.PnL != nil {
			row.PnL = strconv.FormatFloat(*t.PnL, 'f', -1, 64)
		}
		rows = append(rows, row)
	}

	body, err := gocsv.MarshalBytes(&rows)
	if err != nil {
		h.writeError(w, r, fmt.Errorf("failed to encode trades csv: %w", err))
		return
	}

	filename := fmt.Sprintf("backtest_%d_%s_trades.csv", result.ID, result.Ticker)
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		h.log.Error().Err(err).Int64("backtest_id", id).Msg("Failed to write trades csv")
	}
}

func idParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, apperrors.Validation("Invalid backtest id").WithDetail("id", raw)
	}
	return id, nil
}

func intQuery(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.Validation("%s must be an integer", name).WithDetail(name, raw)
	}
	return n, nil
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
