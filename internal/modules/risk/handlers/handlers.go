// Package handlers provides HTTP handlers for risk metrics and position sizing.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/raksha-rane/stratify/internal/apperrors"
	"github.com/raksha-rane/stratify/internal/modules/marketdata"
	"github.com/raksha-rane/stratify/internal/modules/risk"
	"github.com/raksha-rane/stratify/pkg/formulas"
	"github.com/rs/zerolog"
)

// BarSource loads stored bars for a ticker and date range
type BarSource interface {
	Get(ctx context.Context, ticker, start, end string) ([]marketdata.Bar, error)
}

// Handler handles risk HTTP requests
type Handler struct {
	bars    BarSource
	manager *risk.Manager
	log     zerolog.Logger
}

// NewHandler creates a new risk handler
func NewHandler(bars BarSource, manager *risk.Manager, log zerolog.Logger) *Handler {
	return &Handler{
		bars:    bars,
		manager: manager,
		log:     log.With().Str("handler", "risk").Logger(),
	}
}

// SecurityRisk summarizes the stored price history of one ticker
type SecurityRisk struct {
	Ticker               string  `json:"ticker"`
	StartDate            string  `json:"start_date"`
	EndDate              string  `json:"end_date"`
	Observations         int     `json:"observations"`
	TotalReturnPct       float64 `json:"total_return_pct"`
	AnnualizedVolatility float64 `json:"annualized_volatility"`
	SharpeRatio          float64 `json:"sharpe_ratio"`
	MaxDrawdownPct       float64 `json:"max_drawdown_pct"`
}

// HandleGetSecurityRisk handles GET /api/risk/securities/{ticker}?start_date=&end_date=
func (h *Handler) HandleGetSecurityRisk(w http.ResponseWriter, r *http.Request) {
	ticker := chi.URLParam(r, "ticker")
	start := r.URL.Query().Get("start_date")
	end := r.URL.Query().Get("end_date")
	if start == "" || end == "" {
		h.writeError(w, r, apperrors.Validation("start_date and end_date are required"))
		return
	}

	bars, err := h.bars.Get(r.Context(), ticker, start, end)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if len(bars) == 0 {
		h.writeError(w, r, apperrors.NotFound("No data found for ticker '%s'", ticker))
		return
	}

	closes := marketdata.Closes(bars)
	returns := formulas.CalculateReturns(closes)

	result := SecurityRisk{
		Ticker:         strings.ToUpper(ticker),
		StartDate:      bars[0].Date,
		EndDate:        bars[len(bars)-1].Date,
		Observations:   len(bars),
		TotalReturnPct: formulas.TotalReturnPct(closes[0], closes[len(closes)-1]),
		SharpeRatio:    formulas.AnnualizedSharpe(returns, formulas.TradingDaysPerYear),
		MaxDrawdownPct: formulas.MaxDrawdownPct(closes),
	}
	if len(returns) > 1 {
		result.AnnualizedVolatility = formulas.PopStdDev(returns) * math.Sqrt(formulas.TradingDaysPerYear)
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": result,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// PositionSize is the sizing recommendation for one entry
type PositionSize struct {
	Capital        float64 `json:"capital"`
	Price          float64 `json:"price"`
	Side           string  `json:"side"`
	StopLossPct    float64 `json:"stop_loss_pct"`
	Shares         int     `json:"shares"`
	PositionValue  float64 `json:"position_value"`
	StopLoss       float64 `json:"stop_loss"`
	MaxAffordable  int     `json:"max_affordable_shares"`
	EstimatedCosts float64 `json:"estimated_costs"`
	RiskReward     float64 `json:"risk_reward,omitempty"`
}

// HandleGetPositionSize handles GET /api/risk/position-size
//
// Query: capital, price, stop_loss_pct (default 0.02), side (buy|sell, default buy),
// target (optional, adds the risk/reward ratio).
func (h *Handler) HandleGetPositionSize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	capital, err := floatQuery(q.Get("capital"), 0)
	if err != nil || capital <= 0 {
		h.writeError(w, r, apperrors.Validation("capital must be a positive number"))
		return
	}
	price, err := floatQuery(q.Get("price"), 0)
	if err != nil || price <= 0 {
		h.writeError(w, r, apperrors.Validation("price must be a positive number"))
		return
	}
	stopLossPct, err := floatQuery(q.Get("stop_loss_pct"), 0.02)
	if err != nil || stopLossPct <= 0 || stopLossPct >= 1 {
		h.writeError(w, r, apperrors.Validation("stop_loss_pct must be between 0 and 1"))
		return
	}

	side := risk.Side(strings.ToUpper(q.Get("side")))
	if side == "" {
		side = risk.SideBuy
	}
	if side != risk.SideBuy && side != risk.SideSell {
		h.writeError(w, r, apperrors.Validation("side must be buy or sell"))
		return
	}

	shares := h.manager.CalculatePositionSize(capital, price, stopLossPct, nil)
	costs := h.manager.ApplyTransactionCosts(price, shares, side)

	result := PositionSize{
		Capital:        capital,
		Price:          price,
		Side:           strings.ToLower(string(side)),
		StopLossPct:    stopLossPct,
		Shares:         shares,
		PositionValue:  float64(shares) * price,
		StopLoss:       h.manager.CalculateStopLoss(price, side, risk.StopLossMethod{FixedPct: &stopLossPct}),
		MaxAffordable:  h.manager.MaxSharesAffordable(capital, price),
		EstimatedCosts: costs.TotalCost,
	}

	if raw := q.Get("target"); raw != "" {
		target, err := floatQuery(raw, 0)
		if err != nil || target <= 0 {
			h.writeError(w, r, apperrors.Validation("target must be a positive number"))
			return
		}
		result.RiskReward = h.manager.CalculateRiskReward(price, result.StopLoss, target, side)
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": result,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
			"settings":  h.manager.Settings(),
		},
	})
}

// floatQuery parses a query value. NaN and infinities are rejected.
func floatQuery(raw string, fallback float64) (float64, error) {
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite value %q", raw)
	}
	return v, nil
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

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
