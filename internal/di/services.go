// Package di provides dependency injection for services.
package di

import (
	"fmt"

	"github.com/raksha-rane/stratify/internal/cache"
	"github.com/raksha-rane/stratify/internal/clients/yahoo"
	"github.com/raksha-rane/stratify/internal/config"
	"github.com/raksha-rane/stratify/internal/events"
	"github.com/raksha-rane/stratify/internal/metrics"
	"github.com/raksha-rane/stratify/internal/modules/backtest"
	"github.com/raksha-rane/stratify/internal/modules/marketdata"
	"github.com/raksha-rane/stratify/internal/modules/risk"
	"github.com/raksha-rane/stratify/internal/ratelimit"
	"github.com/raksha-rane/stratify/internal/reliability"
	"github.com/raksha-rane/stratify/internal/scheduler"
	"github.com/rs/zerolog"
)

// InitializeServices builds repositories, clients and services on top of the open databases
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil {
		return fmt.Errorf("container cannot be nil")
	}

	// Event bus and metrics come first; most services emit to both
	container.EventBus = events.NewBus(log)
	container.EventManager = events.NewManager(container.EventBus, log)
	container.Metrics = metrics.New()

	container.CacheStore = cache.NewStore(container.CacheDB.Conn(), log)

	container.Limiter = ratelimit.New(map[string]ratelimit.Rule{
		ratelimit.ResourceFetch: {PerMinute: cfg.RateLimit.FetchPerMinute, Burst: cfg.RateLimit.FetchBurst},
		ratelimit.ResourceRun:   {PerMinute: cfg.RateLimit.RunPerMinute, Burst: cfg.RateLimit.RunBurst},
	}, container.EventManager, container.Metrics, log)

	yahooCfg := yahoo.DefaultConfig()
	yahooCfg.MaxRetries = cfg.MarketData.MaxRetries
	yahooCfg.RequestsPerMinute = cfg.RateLimit.FetchPerMinute
	container.YahooClient = yahoo.NewClient(yahooCfg, log)

	// Market data
	container.MarketDataRepo = marketdata.NewRepository(container.MarketDB.Conn(), log)
	container.MarketDataService = marketdata.NewService(
		container.MarketDataRepo,
		container.YahooClient,
		container.CacheStore,
		container.EventManager,
		container.Metrics,
		marketdata.ServiceConfig{
			CacheTTL:  cfg.MarketData.CacheTTL,
			Validator: marketdata.DefaultValidatorConfig(),
		},
		log,
	)

	// Backtests
	defaults := backtest.DefaultParams()
	defaults.InitialCapital = cfg.Backtest.InitialCapital
	defaults.Commission = cfg.Backtest.Commission
	defaults.Slippage = cfg.Backtest.Slippage
	defaults.MaxPositionPct = cfg.Backtest.MaxPositionPct
	defaults.StopLossPct = cfg.Backtest.StopLossPct
	if err := defaults.Validate(); err != nil {
		return fmt.Errorf("invalid backtest defaults: %w", err)
	}

	container.BacktestRepo = backtest.NewRepository(container.BacktestsDB.Conn(), log)
	container.BacktestService = backtest.NewService(
		container.BacktestRepo,
		container.MarketDataService,
		defaults,
		container.EventManager,
		container.Metrics,
		log,
	)

	riskSettings := risk.DefaultSettings()
	riskSettings.Commission = cfg.Backtest.Commission
	riskSettings.Slippage = cfg.Backtest.Slippage
	container.RiskManager = risk.NewManager(riskSettings, log)

	// Offsite backups are optional
	if cfg.Backup.Enabled() {
		client, err := reliability.NewR2Client(
			cfg.Backup.R2AccountID,
			cfg.Backup.R2AccessKeyID,
			cfg.Backup.R2SecretAccessKey,
			cfg.Backup.R2BucketName,
			log,
		)
		if err != nil {
			return fmt.Errorf("failed to create R2 client: %w", err)
		}
		container.BackupService = reliability.NewR2BackupService(client, container.Databases(), cfg.DataDir, log)
	} else {
		log.Info().Msg("R2 credentials not configured, cloud backups disabled")
	}

	container.Scheduler = scheduler.New(log)

	log.Info().Msg("Services initialized")
	return nil
}
