package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/raksha-rane/stratify/internal/modules/marketdata"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// DefaultRefreshConcurrency bounds parallel upstream fetches
const DefaultRefreshConcurrency = 4

// MarketDataFetcher is the subset of marketdata.Service used by the refresh job
type MarketDataFetcher interface {
	Fetch(ctx context.Context, ticker, start, end string) (*marketdata.FetchResult, error)
}

// RefreshMarketDataJob refetches the trailing window of every tracked ticker
type RefreshMarketDataJob struct {
	fetcher     MarketDataFetcher
	tickers     []string
	lookback    int
	concurrency int
	timeout     time.Duration
	now         func() time.Time
	log         zerolog.Logger
}

// NewRefreshMarketDataJob creates the refresh job. lookbackDays is the window length.
func NewRefreshMarketDataJob(fetcher MarketDataFetcher, tickers []string, lookbackDays int, log zerolog.Logger) *RefreshMarketDataJob {
	return &RefreshMarketDataJob{
		fetcher:     fetcher,
		tickers:     tickers,
		lookback:    lookbackDays,
		concurrency: DefaultRefreshConcurrency,
		timeout:     10 * time.Minute,
		now:         time.Now,
		log:         log.With().Str("job", "refresh_market_data").Logger(),
	}
}

// Name returns the job name
func (j *RefreshMarketDataJob) Name() string {
	return "refresh_market_data"
}

// Run fetches every tracked ticker. A failing ticker does not stop the others.
func (j *RefreshMarketDataJob) Run() error {
	if len(j.tickers) == 0 {
		j.log.Debug().Msg("No tracked tickers, skipping refresh")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	end := j.now().UTC()
	start := end.AddDate(0, 0, -j.lookback)
	startDate := start.Format(marketdata.DateLayout)
	endDate := end.Format(marketdata.DateLayout)

	var (
		mu      sync.Mutex
		failed  []string
		records int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.concurrency)

	for _, ticker := range j.tickers {
		g.Go(func() error {
			result, err := j.fetcher.Fetch(gctx, ticker, startDate, endDate)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				j.log.Warn().Err(err).Str("ticker", ticker).Msg("Failed to refresh ticker")
				failed = append(failed, ticker)
				return nil
			}
			records += result.Records
			return nil
		})
	}
	_ = g.Wait()

	j.log.Info().
		Int("tickers", len(j.tickers)).
		Int("failed", len(failed)).
		Int("records", records).
		Str("start_date", startDate).
		Str("end_date", endDate).
		Msg("Market data refresh completed")

	if len(failed) > 0 {
		return fmt.Errorf("failed to refresh %d of %d tickers: %v", len(failed), len(j.tickers), failed)
	}
	return nil
}
