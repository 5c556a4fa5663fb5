// Package yahoo fetches daily bars from Yahoo Finance through go-yfinance,
// with client-side throttling, exponential backoff and a circuit breaker.
package yahoo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/raksha-rane/stratify/internal/apperrors"
	"github.com/raksha-rane/stratify/internal/modules/marketdata"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"github.com/wnjoon/go-yfinance/pkg/models"
	"github.com/wnjoon/go-yfinance/pkg/ticker"
	"golang.org/x/time/rate"
)

// SourceName identifies this client in logs, events and errors
const SourceName = "Yahoo Finance"

// breakerFailures is the consecutive failure count that opens the circuit
const breakerFailures = 5

// Config holds client tunables
type Config struct {
	MaxRetries        int
	InitialBackoff    time.Duration
	RequestsPerMinute int
	BreakerTimeout    time.Duration
}

// DefaultConfig returns 3 attempts starting at 1s backoff, 48 requests per minute
// and a 60s open-circuit timeout.
func DefaultConfig() Config {
	return Config{
		MaxRetries:        3,
		InitialBackoff:    time.Second,
		RequestsPerMinute: 48,
		BreakerTimeout:    60 * time.Second,
	}
}

// historyFunc fetches daily history for a symbol over a Yahoo range period
type historyFunc func(symbol, period string) ([]models.Bar, error)

// Client implements marketdata.Source
type Client struct {
	history historyFunc
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	cfg     Config
	now     func() time.Time
	log     zerolog.Logger
}

// NewClient creates a Yahoo Finance client
func NewClient(cfg Config, log zerolog.Logger) *Client {
	return newClient(cfg, fetchHistory, log)
}

func newClient(cfg Config, history historyFunc, log zerolog.Logger) *Client {
	defaults := DefaultConfig()
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = defaults.InitialBackoff
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = defaults.RequestsPerMinute
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = defaults.BreakerTimeout
	}

	c := &Client{
		history: history,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1),
		cfg:     cfg,
		now:     time.Now,
		log:     log.With().Str("client", "yahoo").Logger(),
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "yahoo",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	})

	return c
}

// Name returns the source name
func (c *Client) Name() string {
	return SourceName
}

// BreakerState reports the circuit breaker state: closed, half-open or open
func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}

// FetchBars returns daily bars with dates in [start, end], oldest first
func (c *Client) FetchBars(ctx context.Context, symbol string, start, end time.Time) ([]marketdata.Bar, error) {
	period := periodFor(start, c.now())

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.cfg.InitialBackoff
	policy.Multiplier = 2

	attempt := 0
	operation := func() ([]models.Bar, error) {
		attempt++
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, backoff.Permanent(err)
		}

		result, err := c.breaker.Execute(func() (interface{}, error) {
			return c.history(symbol, period)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, backoff.Permanent(apperrors.Unavailable("%s is temporarily unavailable", SourceName).
				WithDetail("breaker_state", c.BreakerState()))
		}
		if err != nil {
			return nil, err
		}
		return result.([]models.Bar), nil
	}

	bars, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(c.cfg.MaxRetries)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			c.log.Warn().
				Err(err).
				Str("symbol", symbol).
				Int("attempt", attempt).
				Dur("wait", wait).
				Msg("Fetch failed, retrying")
		}),
	)
	if err != nil {
		var appErr *apperrors.Error
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, apperrors.DataFetch(err, "Failed to fetch data for %s after %d attempts", symbol, attempt).
			WithDetail("source", SourceName).
			WithDetail("ticker", symbol)
	}

	out := toBars(symbol, bars, start, end)
	c.log.Info().
		Str("symbol", symbol).
		Str("period", period).
		Int("fetched", len(bars)).
		Int("in_range", len(out)).
		Msg("Data fetched successfully")

	return out, nil
}

func fetchHistory(symbol, period string) ([]models.Bar, error) {
	t, err := ticker.New(symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to create ticker: %w", err)
	}
	defer t.Close()

	params := models.HistoryParams{
		Period:     period,
		Interval:   "1d",
		AutoAdjust: false,
	}

	bars, err := t.History(params)
	if err != nil {
		return nil, fmt.Errorf("failed to get historical prices: %w", err)
	}
	return bars, nil
}

// periodFor picks the smallest Yahoo range period reaching back from now to start
func periodFor(start, now time.Time) string {
	days := now.Sub(start).Hours() / 24
	switch {
	case days <= 5:
		return "5d"
	case days <= 31:
		return "1mo"
	case days <= 93:
		return "3mo"
	case days <= 186:
		return "6mo"
	case days <= 366:
		return "1y"
	case days <= 731:
		return "2y"
	case days <= 1827:
		return "5y"
	case days <= 3653:
		return "10y"
	}
	return "max"
}

// toBars converts and filters bars to the inclusive calendar range [start, end]
func toBars(symbol string, bars []models.Bar, start, end time.Time) []marketdata.Bar {
	from := start.Format(marketdata.DateLayout)
	to := end.Format(marketdata.DateLayout)

	out := make([]marketdata.Bar, 0, len(bars))
	for _, b := range bars {
		date := b.Date.Format(marketdata.DateLayout)
		if date < from || date > to {
			continue
		}

		adjClose := b.AdjClose
		if adjClose == 0 {
			adjClose = b.Close
		}

		out = append(out, marketdata.Bar{
			Ticker:   symbol,
			Date:     date,
			Open:     b.Open,
			High:     b.High,
			Low:      b.Low,
			Close:    b.Close,
			AdjClose: adjClose,
			Volume:   int64(b.Volume),
		})
	}
	return out
}
