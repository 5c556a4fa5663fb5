package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/raksha-rane/stratify/internal/apperrors"
	"github.com/raksha-rane/stratify/internal/database"
	"github.com/raksha-rane/stratify/internal/events"
	"github.com/raksha-rane/stratify/internal/metrics"
	"github.com/raksha-rane/stratify/internal/modules/backtest"
	"github.com/raksha-rane/stratify/internal/modules/marketdata"
	"github.com/raksha-rane/stratify/internal/modules/risk"
	"github.com/raksha-rane/stratify/internal/ratelimit"
	testutil "github.com/raksha-rane/stratify/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMarketData struct{}

func (fakeMarketData) Fetch(ctx context.Context, ticker, start, end string) (*marketdata.FetchResult, error) {
	return &marketdata.FetchResult{Ticker: ticker, StartDate: start, EndDate: end, Records: 2}, nil
}

func (fakeMarketData) Get(ctx context.Context, ticker, start, end string) ([]marketdata.Bar, error) {
	return []marketdata.Bar{
		{Ticker: ticker, Date: start, Open: 100, High: 101, Low: 99, Close: 100, AdjClose: 100, Volume: 1000},
		{Ticker: ticker, Date: end, Open: 100, High: 106, Low: 99, Close: 105, AdjClose: 105, Volume: 1000},
	}, nil
}

func (fakeMarketData) QualityLogs(ticker string, limit int) ([]marketdata.QualityLog, error) {
	return []marketdata.QualityLog{}, nil
}

type fakeBacktests struct {
	panicOnGet bool
}

func (f *fakeBacktests) Run(ctx context.Context, req backtest.RunRequest) (*backtest.RunResponse, error) {
	return &backtest.RunResponse{BacktestID: 1, Ticker: req.Ticker, Strategy: "sma"}, nil
}

func (f *fakeBacktests) Get(id int64) (*backtest.StoredResult, error) {
	if f.panicOnGet {
		panic("corrupted result")
	}
	if id != 1 {
		return nil, apperrors.NotFound("Backtest result %d not found", id)
	}
	return &backtest.StoredResult{ID: 1, Ticker: "AAPL", Strategy: "sma", Trades: []backtest.Trade{}}, nil
}

func (f *fakeBacktests) List(page, pageSize int) (*backtest.Page, error) {
	return &backtest.Page{Results: []backtest.StoredResult{}, Page: page, PageSize: pageSize}, nil
}

func (f *fakeBacktests) Defaults() backtest.Params {
	return backtest.Params{InitialCapital: 10000}
}

type testServer struct {
	*Server
	metrics *metrics.Metrics
	bus     *events.Bus
}

func newTestServer(t *testing.T, mutate func(*Config)) *testServer {
	t.Helper()

	log := zerolog.New(nil).Level(zerolog.Disabled)
	db, cleanup := testutil.NewTestDB(t, database.NameMarket)
	t.Cleanup(cleanup)

	m := metrics.New()
	bus := events.NewBus(log)
	cfg := Config{
		Log:       log,
		Port:      0,
		DevMode:   true,
		DataDir:   t.TempDir(),
		Version:   "test",
		Databases: map[string]*database.DB{database.NameMarket: db},
		EventBus:  bus,
		Metrics:   m,
		Limiter: ratelimit.New(map[string]ratelimit.Rule{
			ratelimit.ResourceFetch: {PerMinute: 48, Burst: 10},
			ratelimit.ResourceRun:   {PerMinute: 10, Burst: 10},
		}, events.NewManager(bus, log), m, log),
		MarketData: fakeMarketData{},
		Backtests:  &fakeBacktests{},
		Risk:       risk.NewManager(risk.DefaultSettings(), log),
	}
	if mutate != nil {
		mutate(&cfg)
	}

	s := New(cfg)
	s.systemHandlers.minFreeDisk = 0
	return &testServer{Server: s, metrics: m, bus: bus}
}

func (s *testServer) do(method, path string, body io.Reader, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHandleInfo(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do("GET", "/", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "stratify", body["service"])
	assert.Equal(t, "test", body["version"])
	assert.Equal(t, []interface{}{"mean_reversion", "momentum", "sma"}, body["available_strategies"])
	assert.Contains(t, body["endpoints"], "/api/strategy/run")
}

func TestRoutes(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		method   string
		path     string
		body     string
		expected int
	}{
		{"GET", "/health", "", http.StatusOK},
		{"GET", "/metrics", "", http.StatusOK},
		{"POST", "/api/data/fetch", `{"ticker":"AAPL","start_date":"2024-01-01","end_date":"2024-02-01"}`, http.StatusOK},
		{"GET", "/api/data/get?ticker=AAPL&start_date=2024-01-02&end_date=2024-01-03", "", http.StatusOK},
		{"GET", "/api/data/quality/AAPL", "", http.StatusOK},
		{"GET", "/api/queue/status", "", http.StatusOK},
		{"POST", "/api/strategy/run", `{"ticker":"AAPL","start_date":"2024-01-01"}`, http.StatusOK},
		{"GET", "/api/strategies", "", http.StatusOK},
		{"GET", "/api/results", "", http.StatusOK},
		{"GET", "/api/results/1", "", http.StatusOK},
		{"GET", "/api/results/2", "", http.StatusNotFound},
		{"GET", "/api/results/1/trades.csv", "", http.StatusOK},
		{"GET", "/api/risk/securities/AAPL?start_date=2024-01-02&end_date=2024-01-03", "", http.StatusOK},
		{"GET", "/api/risk/position-size?capital=10000&price=50", "", http.StatusOK},
		{"GET", "/api/system/jobs", "", http.StatusOK},
		{"GET", "/api/system/database/stats", "", http.StatusOK},
		{"GET", "/api/system/disk", "", http.StatusOK},
		{"GET", "/api/system/logs", "", http.StatusNotFound},
		{"GET", "/api/nope", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			var body io.Reader
			if tt.body != "" {
				body = strings.NewReader(tt.body)
			}
			w := s.do(tt.method, tt.path, body, nil)
			assert.Equal(t, tt.expected, w.Code, w.Body.String())
		})
	}
}

func TestCorrelationID(t *testing.T) {
	s := newTestServer(t, nil)

	t.Run("generated when missing", func(t *testing.T) {
		w := s.do("GET", "/api/strategies", nil, nil)
		id := w.Header().Get(CorrelationHeader)
		_, err := uuid.Parse(id)
		assert.NoError(t, err, "expected a uuid, got %q", id)
	})

	t.Run("echoed when provided", func(t *testing.T) {
		w := s.do("GET", "/api/strategies", nil, map[string]string{CorrelationHeader: "req-123"})
		assert.Equal(t, "req-123", w.Header().Get(CorrelationHeader))
	})
}

func TestRunRateLimit(t *testing.T) {
	s := newTestServer(t, func(cfg *Config) {
		cfg.Limiter = ratelimit.New(map[string]ratelimit.Rule{
			ratelimit.ResourceRun: {PerMinute: 1, Burst: 1},
		}, nil, cfg.Metrics, cfg.Log)
	})

	body := `{"ticker":"AAPL","start_date":"2024-01-01"}`
	first := s.do("POST", "/api/strategy/run", strings.NewReader(body), nil)
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "0", first.Header().Get("X-RateLimit-Remaining"))

	second := s.do("POST", "/api/strategy/run", strings.NewReader(body), nil)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.NotEmpty(t, second.Header().Get("Retry-After"))

	// Unlimited routes are unaffected
	assert.Equal(t, http.StatusOK, s.do("GET", "/api/results", nil, nil).Code)
}

func TestRecovererReturns500(t *testing.T) {
	s := newTestServer(t, func(cfg *Config) {
		cfg.Backtests = &fakeBacktests{panicOnGet: true}
	})

	w := s.do("GET", "/api/results/1", nil, nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRequestMetricsUseRoutePattern(t *testing.T) {
	s := newTestServer(t, nil)

	s.do("GET", "/api/results/1", nil, nil)
	s.do("GET", "/api/results/2", nil, nil)

	w := s.do("GET", "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	exposition := w.Body.String()
	assert.Contains(t, exposition, `stratify_http_requests_total{method="GET",route="/api/results/{id}",status="200"} 1`)
	assert.Contains(t, exposition, `stratify_http_requests_total{method="GET",route="/api/results/{id}",status="404"} 1`)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do("OPTIONS", "/api/strategy/run", nil, map[string]string{
		"Origin":                        "http://localhost:3000",
		"Access-Control-Request-Method": "POST",
	})
	assert.NotEmpty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestOptionalServices(t *testing.T) {
	s := newTestServer(t, func(cfg *Config) {
		cfg.MarketData = nil
		cfg.Backtests = nil
		cfg.Limiter = nil
		cfg.Metrics = nil
	})

	assert.Equal(t, http.StatusOK, s.do("GET", "/", nil, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do("GET", "/api/strategies", nil, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do("GET", "/api/queue/status", nil, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do("GET", "/metrics", nil, nil).Code)
}
