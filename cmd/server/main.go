// Package main is the entry point for Stratify, an educational trading backtest
// platform. It fetches and validates daily OHLCV data, runs SMA, mean-reversion
// and momentum strategies through a simulated trade ledger, stores the results
// and serves everything over HTTP.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raksha-rane/stratify/internal/config"
	"github.com/raksha-rane/stratify/internal/di"
	"github.com/raksha-rane/stratify/internal/server"
	"github.com/raksha-rane/stratify/pkg/logger"
)

// getEnv retrieves an environment variable value, returning a fallback if the variable
// is not set or is empty.
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// main loads configuration, wires dependencies, starts the scheduler and the
// HTTP server, then blocks until SIGINT or SIGTERM and shuts both down.
//
// Three SQLite databases live under the data directory:
// - market.db: OHLCV bars and data quality reports
// - backtests.db: backtest results and their trades
// - cache.db: expiring cache entries for market data reads
func main() {
	cfg, err := config.Load()
	if err != nil {
		// Fallback logger so the configuration error is still reported
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
		File:   cfg.LogFilePath(),
	})
	logger.SetGlobalLogger(log)

	version := getEnv("VERSION", "dev")
	log.Info().Str("version", version).Str("data_dir", cfg.DataDir).Msg("Starting Stratify")

	container, jobs, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	// Closing flushes WAL checkpoints
	defer container.Close()

	srv := server.New(server.Config{
		Log:        log,
		Port:       cfg.Port,
		DevMode:    cfg.DevMode,
		DataDir:    cfg.DataDir,
		LogFile:    cfg.LogFilePath(),
		Version:    version,
		Databases:  container.Databases(),
		EventBus:   container.EventBus,
		Metrics:    container.Metrics,
		Limiter:    container.Limiter,
		MarketData: container.MarketDataService,
		Backtests:  container.BacktestService,
		Risk:       container.RiskManager,
		Jobs:       container.Scheduler,
		DataSource: container.YahooClient,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	container.Scheduler.Start()

	// Warm the tracked tickers once at startup rather than waiting for the first schedule
	if len(cfg.MarketData.TrackedTickers) > 0 {
		go func() {
			if err := container.Scheduler.RunNow(jobs.RefreshMarketData); err != nil {
				log.Warn().Err(err).Msg("Initial market data refresh incomplete")
			}
		}()
	}

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// In-flight requests get 10 seconds before the server is forced down
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Waits for running jobs before the databases close
	container.Scheduler.Stop()

	log.Info().Msg("Server stopped")
}
