package marketdata

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/raksha-rane/stratify/internal/apperrors"
	"github.com/raksha-rane/stratify/internal/cache"
	"github.com/raksha-rane/stratify/internal/events"
	"github.com/raksha-rane/stratify/internal/metrics"
	"github.com/rs/zerolog"
)

// Source pulls daily bars for a ticker from an upstream provider.
// Implementations own retries; a returned error is final.
type Source interface {
	Name() string
	FetchBars(ctx context.Context, ticker string, start, end time.Time) ([]Bar, error)
}

// SampleSize is the number of leading bars echoed back by Fetch
const SampleSize = 5

const cachePrefix = "market_data"

// ServiceConfig holds tunables for the market data service
type ServiceConfig struct {
	CacheTTL  time.Duration
	Validator ValidatorConfig
}

// Service orchestrates fetch, validation, storage and cached retrieval of bars
type Service struct {
	repo    *Repository
	source  Source
	cache   *cache.Store
	events  *events.Manager
	metrics *metrics.Metrics
	cfg     ServiceConfig
	now     func() time.Time
	log     zerolog.Logger
}

// NewService creates a market data service. cache, events and metrics may be nil.
func NewService(
	repo *Repository,
	source Source,
	cacheStore *cache.Store,
	eventManager *events.Manager,
	m *metrics.Metrics,
	cfg ServiceConfig,
	log zerolog.Logger,
) *Service {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = cache.TTLMarketData
	}
	if cfg.Validator.MaxDateGapDays == 0 {
		cfg.Validator = DefaultValidatorConfig()
	}
	return &Service{
		repo:    repo,
		source:  source,
		cache:   cacheStore,
		events:  eventManager,
		metrics: m,
		cfg:     cfg,
		now:     time.Now,
		log:     log.With().Str("service", "marketdata").Logger(),
	}
}

// Fetch pulls bars from the source, validates them, records a quality log and
// replaces the stored range.
func (s *Service) Fetch(ctx context.Context, rawTicker, start, end string) (*FetchResult, error) {
	began := s.now()

	ticker, err := ValidateTicker(rawTicker)
	if err != nil {
		return nil, err
	}
	startDate, endDate, err := ValidateDateRange(start, end, s.now())
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("ticker", ticker).
		Str("start_date", start).
		Str("end_date", end).
		Msg("Starting data fetch")

	bars, err := s.source.FetchBars(ctx, ticker, startDate, endDate)
	if err != nil {
		s.metrics.RecordFetchFailure("upstream")
		var appErr *apperrors.Error
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, apperrors.DataFetch(err, "Failed to fetch data for %s", ticker).WithDetail("source", s.source.Name())
	}
	if len(bars) == 0 {
		s.metrics.RecordFetchFailure("empty")
		return nil, apperrors.DataFetch(nil, "No data available for ticker '%s' in the specified date range", ticker).
			WithDetail("ticker", ticker).
			WithDetail("source", s.source.Name())
	}
	for i := range bars {
		bars[i].Ticker = ticker
	}

	report := ValidateOHLCV(ticker, bars, s.cfg.Validator)
	if _, err := s.repo.SaveQualityLog(start, end, report); err != nil {
		// A missing audit row does not block the fetch
		s.log.Error().Err(err).Str("ticker", ticker).Msg("Failed to save quality report")
	}

	if !report.Valid {
		s.metrics.RecordFetchFailure("invalid")
		s.log.Error().
			Str("ticker", ticker).
			Strs("critical_issues", report.CriticalIssues).
			Msg("Data quality validation failed")
		shown := report.CriticalIssues[:min(3, len(report.CriticalIssues))]
		return nil, apperrors.Validation("Data quality validation failed: %s", strings.Join(shown, "; ")).
			WithDetail("critical_issues", report.CriticalIssues).
			WithDetail("quality_score", report.QualityScore)
	}

	if len(report.Warnings) > 0 {
		s.log.Warn().
			Str("ticker", ticker).
			Strs("warnings", report.Warnings).
			Float64("quality_score", report.QualityScore).
			Msg("Data quality warnings detected")
		s.events.EmitTyped("marketdata", &events.DataQualityWarningData{
			Ticker:       ticker,
			Warnings:     report.Warnings,
			QualityScore: report.QualityScore,
		})
	}

	// Rows with missing fields were only warned about; they are not stored
	bars = CleanBars(bars)
	if report.Stats.DroppedRecords > 0 {
		s.log.Warn().
			Str("ticker", ticker).
			Int("dropped", report.Stats.DroppedRecords).
			Msg("Dropped records with missing values")
	}

	if err := s.repo.ReplaceRange(ticker, start, end, bars); err != nil {
		s.metrics.RecordFetchFailure("database")
		return nil, apperrors.Database(err, "Failed to store data in database").
			WithDetail("ticker", ticker).
			WithDetail("records", len(bars))
	}
	s.invalidate(ticker)

	s.metrics.RecordFetch(ticker, len(bars), report.QualityScore)
	s.events.EmitTyped("marketdata", &events.MarketDataFetchedData{
		Ticker:       ticker,
		StartDate:    start,
		EndDate:      end,
		Records:      len(bars),
		QualityScore: report.QualityScore,
		Source:       s.source.Name(),
	})

	sample := make([]Bar, min(SampleSize, len(bars)))
	copy(sample, bars)

	return &FetchResult{
		Ticker:     ticker,
		StartDate:  start,
		EndDate:    end,
		Records:    len(bars),
		Sample:     sample,
		Quality:    report,
		DurationMs: s.now().Sub(began).Milliseconds(),
	}, nil
}

// Get returns stored bars for [start, end] through the cache. An empty range is NotFound.
func (s *Service) Get(ctx context.Context, rawTicker, start, end string) ([]Bar, error) {
	ticker, err := ValidateTicker(rawTicker)
	if err != nil {
		return nil, err
	}
	if _, err := time.Parse(DateLayout, start); err != nil {
		return nil, apperrors.Validation("Invalid start_date format, expected YYYY-MM-DD").WithDetail("start_date", start)
	}
	if _, err := time.Parse(DateLayout, end); err != nil {
		return nil, apperrors.Validation("Invalid end_date format, expected YYYY-MM-DD").WithDetail("end_date", end)
	}

	key := cache.Key(cachePrefix, ticker, start, end)
	if s.cache != nil {
		var cached []Bar
		ok, err := s.cache.Get(key, &cached)
		if err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("Cache retrieval failed")
		} else if ok {
			s.log.Debug().Str("key", key).Msg("Data retrieved from cache")
			return cached, nil
		}
	}

	bars, err := s.repo.GetBars(ticker, start, end)
	if err != nil {
		return nil, apperrors.Database(err, "Failed to retrieve data")
	}
	if len(bars) == 0 {
		return nil, apperrors.NotFound("No data found for ticker '%s' between %s and %s", ticker, start, end).
			WithDetail("ticker", ticker).
			WithDetail("start_date", start).
			WithDetail("end_date", end)
	}

	if s.cache != nil {
		if err := s.cache.Set(key, bars, s.cfg.CacheTTL); err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("Failed to cache data")
		}
	}

	return bars, nil
}

// QualityLogs returns the ticker's most recent quality logs
func (s *Service) QualityLogs(rawTicker string, limit int) ([]QualityLog, error) {
	ticker, err := ValidateTicker(rawTicker)
	if err != nil {
		return nil, err
	}
	logs, err := s.repo.RecentQualityLogs(ticker, limit)
	if err != nil {
		return nil, apperrors.Database(err, "Failed to retrieve quality logs")
	}
	return logs, nil
}

// Tickers lists tickers with stored data
func (s *Service) Tickers() ([]string, error) {
	return s.repo.Tickers()
}

func (s *Service) invalidate(ticker string) {
	if s.cache == nil {
		return
	}
	prefix := fmt.Sprintf("%s:", cache.Key(cachePrefix, ticker))
	if n, err := s.cache.DeletePrefix(prefix); err != nil {
		s.log.Warn().Err(err).Str("ticker", ticker).Msg("Failed to invalidate cached data")
	} else if n > 0 {
		s.log.Debug().Str("ticker", ticker).Int64("entries", n).Msg("Invalidated cached data")
	}
}
