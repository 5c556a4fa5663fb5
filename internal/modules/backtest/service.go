package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/raksha-rane/stratify/internal/apperrors"
	"github.com/raksha-rane/stratify/internal/events"
	"github.com/raksha-rane/stratify/internal/metrics"
	"github.com/raksha-rane/stratify/internal/modules/marketdata"
	"github.com/raksha-rane/stratify/internal/modules/strategies"
	"github.com/rs/zerolog"
)

// Request defaults when the body leaves a field out
const (
	DefaultStrategy = strategies.NameSMA
	DefaultPageSize = 100
	MaxPageSize     = 500
)

// BarProvider returns stored bars for a ticker and inclusive date range
type BarProvider interface {
	Get(ctx context.Context, ticker, start, end string) ([]marketdata.Bar, error)
}

// Service runs backtests against stored bars and persists the outcome
type Service struct {
	repo     *Repository
	bars     BarProvider
	engine   *Engine
	defaults Params
	events   *events.Manager
	metrics  *metrics.Metrics
	now      func() time.Time
	log      zerolog.Logger
}

// NewService creates a backtest service. events and metrics may be nil.
func NewService(
	repo *Repository,
	bars BarProvider,
	defaults Params,
	eventManager *events.Manager,
	m *metrics.Metrics,
	log zerolog.Logger,
) *Service {
	return &Service{
		repo:     repo,
		bars:     bars,
		engine:   NewEngine(log),
		defaults: defaults,
		events:   eventManager,
		metrics:  m,
		now:      time.Now,
		log:      log.With().Str("service", "backtest").Logger(),
	}
}

// Defaults returns the simulation parameters applied when a request omits them
func (s *Service) Defaults() Params {
	return s.defaults
}

// Run validates the request, generates signals over the stored bars, simulates
// the trade ledger and stores the result.
func (s *Service) Run(ctx context.Context, req RunRequest) (*RunResponse, error) {
	began := s.now()

	if req.Strategy == "" {
		req.Strategy = DefaultStrategy
	}
	if req.EndDate == "" {
		req.EndDate = s.now().Format(marketdata.DateLayout)
	}
	if req.StartDate == "" {
		return nil, apperrors.Validation("start_date is required").WithDetail("missing_fields", []string{"start_date"})
	}

	ticker, err := marketdata.ValidateTicker(req.Ticker)
	if err != nil {
		return nil, err
	}
	if _, _, err := marketdata.ValidateDateRange(req.StartDate, req.EndDate, s.now()); err != nil {
		return nil, err
	}

	strategy, err := strategies.New(req.Strategy, req.Parameters)
	if err != nil {
		return nil, err
	}
	params := req.ParamOverrides.Apply(s.defaults)
	if err := params.Validate(); err != nil {
		return nil, err
	}

	logger := s.log.With().
		Str("ticker", ticker).
		Str("strategy", strategy.Name()).
		Str("correlation_id", req.CorrelationID).
		Logger()
	logger.Info().
		Str("start_date", req.StartDate).
		Str("end_date", req.EndDate).
		Float64("initial_capital", params.InitialCapital).
		Msg("Starting strategy execution")

	resp, err := s.run(ctx, ticker, strategy, req, params)
	if err != nil {
		s.metrics.RecordBacktestFailure(strategy.Name())
		s.events.EmitTyped("backtest", &events.BacktestFailedData{
			Ticker:   ticker,
			Strategy: strategy.Name(),
			Error:    err.Error(),
		})
		logger.Error().Err(err).Msg("Backtest failed")
		return nil, err
	}

	duration := s.now().Sub(began)
	resp.DurationMs = duration.Milliseconds()

	s.metrics.RecordBacktest(strategy.Name(), resp.TotalReturn, resp.SharpeRatio, resp.TotalTrades, duration)
	s.events.EmitTyped("backtest", &events.BacktestCompletedData{
		BacktestID:  resp.BacktestID,
		Ticker:      ticker,
		Strategy:    strategy.Name(),
		TotalReturn: resp.TotalReturn,
		SharpeRatio: resp.SharpeRatio,
		MaxDrawdown: resp.MaxDrawdown,
		WinRate:     resp.WinRate,
		TotalTrades: resp.TotalTrades,
		DurationMs:  resp.DurationMs,
	})

	logger.Info().
		Int64("backtest_id", resp.BacktestID).
		Float64("total_return", resp.TotalReturn).
		Float64("sharpe_ratio", resp.SharpeRatio).
		Int("trades", resp.TotalTrades).
		Int64("duration_ms", resp.DurationMs).
		Msg("Strategy execution completed")

	return resp, nil
}

func (s *Service) run(ctx context.Context, ticker string, strategy strategies.Strategy, req RunRequest, params Params) (*RunResponse, error) {
	bars, err := s.bars.Get(ctx, ticker, req.StartDate, req.EndDate)
	if err != nil {
		return nil, err
	}

	signals, err := generateSignals(strategy, marketdata.Closes(bars))
	if err != nil {
		return nil, err
	}

	result, err := s.engine.Run(bars, signals, params)
	if err != nil {
		if apperrors.IsKind(err, apperrors.KindValidation) {
			return nil, err
		}
		return nil, apperrors.Strategy(err, "Simulation failed")
	}

	id, err := s.repo.Save(&StoredResult{
		Ticker:         ticker,
		Strategy:       strategy.Name(),
		StartDate:      req.StartDate,
		EndDate:        req.EndDate,
		InitialCapital: result.InitialCapital,
		FinalCapital:   result.FinalCapital,
		TotalReturn:    result.TotalReturn,
		SharpeRatio:    result.SharpeRatio,
		MaxDrawdown:    result.MaxDrawdown,
		WinRate:        result.WinRate,
		TotalTrades:    result.TotalTrades,
		Parameters:     strategy.Params(),
		Simulation:     params,
		Summary: &Summary{
			RejectedTrades:      result.RejectedTrades,
			StopLossesTriggered: result.StopLossesTriggered,
			Costs:               result.Costs,
			RiskManagement:      result.RiskManagement,
			Kelly:               result.Kelly,
			EquityCurve:         result.EquityCurve,
			Rejections:          result.Rejections,
		},
		CorrelationID: req.CorrelationID,
		CreatedAt:     s.now(),
		Trades:        result.Trades,
	})
	if err != nil {
		return nil, apperrors.Database(err, "Failed to store backtest results")
	}

	return &RunResponse{
		BacktestID: id,
		Ticker:     ticker,
		Strategy:   strategy.Name(),
		StartDate:  req.StartDate,
		EndDate:    req.EndDate,
		Parameters: strategy.Params(),
		Simulation: params,
		Result:     result,
	}, nil
}

// generateSignals shields the caller from a panicking strategy
func generateSignals(strategy strategies.Strategy, closes []float64) (signals []strategies.Signal, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperrors.Strategy(fmt.Errorf("panic: %v", r), "Signal generation failed")
		}
	}()

	signals = strategy.Signals(closes)
	if len(signals) != len(closes) {
		return nil, apperrors.Strategy(
			fmt.Errorf("%d signals for %d bars", len(signals), len(closes)),
			"Signal generation failed",
		)
	}
	return signals, nil
}

// Get returns one stored result with its trades
func (s *Service) Get(id int64) (*StoredResult, error) {
	res, err := s.repo.GetByID(id)
	if err != nil {
		return nil, apperrors.Database(err, "Failed to retrieve backtest results")
	}
	if res == nil {
		return nil, apperrors.NotFound("Backtest not found").WithDetail("backtest_id", id)
	}
	return res, nil
}

// List returns one page of results, newest first
func (s *Service) List(page, pageSize int) (*Page, error) {
	if page < 1 {
		return nil, apperrors.Validation("page must be >= 1")
	}
	if pageSize < 1 || pageSize > MaxPageSize {
		return nil, apperrors.Validation("page_size must be between 1 and %d", MaxPageSize)
	}
	p, err := s.repo.List(page, pageSize)
	if err != nil {
		return nil, apperrors.Database(err, "Failed to list backtest results")
	}
	return p, nil
}

// Trades returns the ledger of a stored result
func (s *Service) Trades(id int64) ([]Trade, error) {
	res, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	return res.Trades, nil
}
