package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("STRATIFY_DATA_DIR", dir)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, 8001, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 48, cfg.RateLimit.FetchPerMinute)
	assert.Equal(t, 10, cfg.RateLimit.FetchBurst)
	assert.Equal(t, 10, cfg.RateLimit.RunPerMinute)
	assert.Equal(t, time.Hour, cfg.MarketData.CacheTTL)
	assert.Equal(t, 3, cfg.MarketData.MaxRetries)
	assert.Empty(t, cfg.MarketData.TrackedTickers)
	assert.False(t, cfg.Backup.Enabled())
	assert.Empty(t, cfg.LogFilePath())
	assert.Equal(t, 10000.0, cfg.Backtest.InitialCapital)
	assert.Equal(t, 0.001, cfg.Backtest.Commission)
	assert.Equal(t, 0.0005, cfg.Backtest.Slippage)
}

func TestLoad_Overrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("STRATIFY_DATA_DIR", dir)
	t.Setenv("GO_PORT", "9100")
	t.Setenv("LOG_FILE", "true")
	t.Setenv("TRACKED_TICKERS", "aapl, msft ,,spy")
	t.Setenv("MARKET_DATA_CACHE_TTL", "15m")
	t.Setenv("BACKTEST_COMMISSION", "0.002")
	t.Setenv("R2_ACCOUNT_ID", "acct")
	t.Setenv("R2_ACCESS_KEY_ID", "key")
	t.Setenv("R2_SECRET_ACCESS_KEY", "secret")
	t.Setenv("R2_BUCKET_NAME", "bucket")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, []string{"AAPL", "MSFT", "SPY"}, cfg.MarketData.TrackedTickers)
	assert.Equal(t, 15*time.Minute, cfg.MarketData.CacheTTL)
	assert.Equal(t, 0.002, cfg.Backtest.Commission)
	assert.True(t, cfg.Backup.Enabled())
	assert.Equal(t, filepath.Join(dir, "logs", "stratify.log"), cfg.LogFilePath())
	assert.Equal(t, filepath.Join(dir, "market.db"), cfg.DatabasePath("market"))
}

func TestLoad_InvalidValuesFallBackToDefaults(t *testing.T) {
	t.Setenv("STRATIFY_DATA_DIR", t.TempDir())
	t.Setenv("GO_PORT", "not-a-number")
	t.Setenv("DEV_MODE", "maybe")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8001, cfg.Port)
	assert.False(t, cfg.DevMode)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Port: 8001,
			RateLimit: RateLimitConfig{
				FetchPerMinute: 48, FetchBurst: 10, RunPerMinute: 10, RunBurst: 10,
			},
			MarketData: MarketDataConfig{
				CacheTTL:           time.Hour,
				MaxRetries:         3,
				RefreshSchedule:    "0 30 22 * * MON-FRI",
				RefreshLookbackDay: 365,
			},
			Backtest: BacktestConfig{InitialCapital: 10000, Commission: 0.001, Slippage: 0.0005},
			Backup:   BackupConfig{Schedule: "@daily"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "bad port", mutate: func(c *Config) { c.Port = 0 }, wantErr: true},
		{name: "zero rate", mutate: func(c *Config) { c.RateLimit.RunPerMinute = 0 }, wantErr: true},
		{name: "zero burst", mutate: func(c *Config) { c.RateLimit.FetchBurst = 0 }, wantErr: true},
		{name: "zero ttl", mutate: func(c *Config) { c.MarketData.CacheTTL = 0 }, wantErr: true},
		{name: "zero retries", mutate: func(c *Config) { c.MarketData.MaxRetries = 0 }, wantErr: true},
		{name: "zero capital", mutate: func(c *Config) { c.Backtest.InitialCapital = 0 }, wantErr: true},
		{name: "negative commission", mutate: func(c *Config) { c.Backtest.Commission = -0.01 }, wantErr: true},
		{name: "bad cron", mutate: func(c *Config) { c.MarketData.RefreshSchedule = "whenever" }, wantErr: true},
		{name: "bad backup cron", mutate: func(c *Config) { c.Backup.Schedule = "* *" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
