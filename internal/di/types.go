/**
 * Package di provides dependency injection type definitions.
 *
 * The Container holds every long-lived service instance. cmd/server builds it
 * once with Wire and hands the pieces to the HTTP server and scheduler.
 */
package di

import (
	"github.com/raksha-rane/stratify/internal/cache"
	"github.com/raksha-rane/stratify/internal/clients/yahoo"
	"github.com/raksha-rane/stratify/internal/database"
	"github.com/raksha-rane/stratify/internal/events"
	"github.com/raksha-rane/stratify/internal/metrics"
	"github.com/raksha-rane/stratify/internal/modules/backtest"
	"github.com/raksha-rane/stratify/internal/modules/marketdata"
	"github.com/raksha-rane/stratify/internal/modules/risk"
	"github.com/raksha-rane/stratify/internal/ratelimit"
	"github.com/raksha-rane/stratify/internal/reliability"
	"github.com/raksha-rane/stratify/internal/scheduler"
)

// Container holds all dependencies for the application
type Container struct {
	// Databases
	MarketDB    *database.DB // market_data, data_quality_logs
	BacktestsDB *database.DB // backtest_results, trades
	CacheDB     *database.DB // cache_entries

	// Infrastructure
	EventBus     *events.Bus
	EventManager *events.Manager
	Metrics      *metrics.Metrics
	CacheStore   *cache.Store
	Limiter      *ratelimit.Limiter
	Scheduler    *scheduler.Scheduler

	// Clients
	YahooClient *yahoo.Client

	// Repositories
	MarketDataRepo *marketdata.Repository
	BacktestRepo   *backtest.Repository

	// Services
	MarketDataService *marketdata.Service
	BacktestService   *backtest.Service
	RiskManager       *risk.Manager
	BackupService     *reliability.R2BackupService // nil unless R2 credentials are configured
}

// Databases returns the open databases keyed by name, skipping nil ones
func (c *Container) Databases() map[string]*database.DB {
	out := make(map[string]*database.DB, 3)
	for name, db := range map[string]*database.DB{
		database.NameMarket:    c.MarketDB,
		database.NameBacktests: c.BacktestsDB,
		database.NameCache:     c.CacheDB,
	} {
		if db != nil {
			out[name] = db
		}
	}
	return out
}

// Close closes every open database
func (c *Container) Close() {
	for _, db := range c.Databases() {
		db.Close()
	}
}
