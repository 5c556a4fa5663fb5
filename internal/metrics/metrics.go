// Package metrics exposes Prometheus collectors for requests, data fetches and backtests.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "stratify"

// Metrics holds every collector registered by the service.
// All recording methods are safe to call on a nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	DataFetchesTotal *prometheus.CounterVec
	DataFetchRecords prometheus.Histogram
	QualityScore     *prometheus.GaugeVec

	BacktestsTotal   *prometheus.CounterVec
	BacktestDuration prometheus.Histogram
	BacktestReturn   prometheus.Histogram
	BacktestSharpe   prometheus.Histogram
	BacktestTrades   prometheus.Histogram

	RateLimitHits *prometheus.CounterVec
}

// New creates the collectors on a private registry along with Go and process collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),

		DataFetchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "data_fetches_total",
			Help:      "Market data fetches by outcome",
		}, []string{"status"}),
		DataFetchRecords: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "data_fetch_records",
			Help:      "Bars stored per successful fetch",
			Buckets:   []float64{10, 50, 100, 250, 500, 1000, 2500, 5000},
		}),
		QualityScore: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "data_quality_score",
			Help:      "Latest data quality score per ticker",
		}, []string{"ticker"}),

		BacktestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backtests_total",
			Help:      "Backtest runs by strategy and outcome",
		}, []string{"strategy", "status"}),
		BacktestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backtest_duration_seconds",
			Help:      "Backtest run duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		BacktestReturn: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backtest_total_return_pct",
			Help:      "Total return of completed backtests in percent",
			Buckets:   []float64{-50, -20, -10, -5, 0, 5, 10, 20, 50, 100},
		}),
		BacktestSharpe: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backtest_sharpe_ratio",
			Help:      "Sharpe ratio of completed backtests",
			Buckets:   []float64{-2, -1, -0.5, 0, 0.5, 1, 1.5, 2, 3},
		}),
		BacktestTrades: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backtest_trades",
			Help:      "Trades per completed backtest",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250},
		}),

		RateLimitHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_hits_total",
			Help:      "Requests rejected by the rate limiter",
		}, []string{"resource"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.DataFetchesTotal,
		m.DataFetchRecords,
		m.QualityScore,
		m.BacktestsTotal,
		m.BacktestDuration,
		m.BacktestReturn,
		m.BacktestSharpe,
		m.BacktestTrades,
		m.RateLimitHits,
	)

	return m
}

// Registry returns the registry backing the collectors
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records one served request. route is the matched pattern, not the raw path.
func (m *Metrics) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordFetch records a successful market data fetch
func (m *Metrics) RecordFetch(ticker string, records int, qualityScore float64) {
	if m == nil {
		return
	}
	m.DataFetchesTotal.WithLabelValues("success").Inc()
	m.DataFetchRecords.Observe(float64(records))
	m.QualityScore.WithLabelValues(ticker).Set(qualityScore)
}

// RecordFetchFailure records a failed fetch with a short reason label
func (m *Metrics) RecordFetchFailure(reason string) {
	if m == nil {
		return
	}
	m.DataFetchesTotal.WithLabelValues(reason).Inc()
}

// RecordBacktest records a completed backtest
func (m *Metrics) RecordBacktest(strategy string, totalReturn, sharpe float64, trades int, duration time.Duration) {
	if m == nil {
		return
	}
	m.BacktestsTotal.WithLabelValues(strategy, "success").Inc()
	m.BacktestDuration.Observe(duration.Seconds())
	m.BacktestReturn.Observe(totalReturn)
	m.BacktestSharpe.Observe(sharpe)
	m.BacktestTrades.Observe(float64(trades))
}

// RecordBacktestFailure records a backtest that did not complete
func (m *Metrics) RecordBacktestFailure(strategy string) {
	if m == nil {
		return
	}
	m.BacktestsTotal.WithLabelValues(strategy, "error").Inc()
}

// RecordRateLimitHit records a rejected request
func (m *Metrics) RecordRateLimitHit(resource string) {
	if m == nil {
		return
	}
	m.RateLimitHits.WithLabelValues(resource).Inc()
}
