package server

import (
	"encoding/json"
	"net/http"

	"github.com/raksha-rane/stratify/internal/modules/strategies"
)

var endpoints = map[string]string{
	"/":                             "GET - Service information (this endpoint)",
	"/health":                       "GET - Health check endpoint",
	"/metrics":                      "GET - Prometheus metrics",
	"/api/data/fetch":               "POST - Fetch, validate and store OHLCV data",
	"/api/data/get":                 "GET - Retrieve stored OHLCV data",
	"/api/data/quality/{ticker}":    "GET - Recent data quality reports",
	"/api/queue/status":             "GET - Rate limiter status",
	"/api/strategy/run":             "POST - Execute a backtest",
	"/api/strategies":               "GET - Strategy catalogue with parameter bounds",
	"/api/results":                  "GET - List backtest results (paginated)",
	"/api/results/{id}":             "GET - Backtest result with trades",
	"/api/results/{id}/trades.csv":  "GET - Backtest trades as CSV",
	"/api/risk/securities/{ticker}": "GET - Volatility, Sharpe and drawdown of stored prices",
	"/api/risk/position-size":       "GET - Position sizing for an entry",
	"/api/events/ws":                "GET - Websocket stream of system events",
	"/api/system/jobs":              "GET - Background job status",
}

// handleInfo handles GET /
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, 3)
	for _, info := range strategies.Catalogue() {
		names = append(names, info.Name)
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"service":              "stratify",
		"version":              s.cfg.Version,
		"description":          "Fetches market data and backtests trading strategies",
		"status":               "running",
		"endpoints":            endpoints,
		"available_strategies": names,
	})
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
