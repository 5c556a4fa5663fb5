// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/raksha-rane/stratify/internal/utils"
	"github.com/robfig/cron/v3"
)

// Config holds application configuration
type Config struct {
	DataDir   string // Base directory for all databases and logs (always absolute)
	Port      int
	LogLevel  string
	LogPretty bool
	LogFile   bool // Also write logs to <DataDir>/logs/stratify.log
	DevMode   bool

	RateLimit  RateLimitConfig
	MarketData MarketDataConfig
	Backtest   BacktestConfig
	Backup     BackupConfig
}

// RateLimitConfig holds token bucket settings per protected resource
type RateLimitConfig struct {
	FetchPerMinute int
	FetchBurst     int
	RunPerMinute   int
	RunBurst       int
}

// MarketDataConfig holds data source, cache and refresh settings
type MarketDataConfig struct {
	CacheTTL           time.Duration
	MaxRetries         int
	TrackedTickers     []string
	RefreshSchedule    string // cron spec with seconds field
	RefreshLookbackDay int
}

// BacktestConfig holds the simulation defaults applied when a run request omits them
type BacktestConfig struct {
	InitialCapital float64
	Commission     float64
	Slippage       float64
	MaxPositionPct float64
	StopLossPct    float64
}

// BackupConfig holds offsite backup settings (Cloudflare R2 / S3 compatible)
type BackupConfig struct {
	Schedule          string
	RetentionDays     int
	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string
}

// Enabled reports whether all R2 credentials are present
func (b BackupConfig) Enabled() bool {
	return b.R2AccountID != "" && b.R2AccessKeyID != "" && b.R2SecretAccessKey != "" && b.R2BucketName != ""
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("STRATIFY_DATA_DIR", "./data")

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:   absDataDir,
		Port:      getEnvAsInt("GO_PORT", 8001),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogPretty: getEnvAsBool("LOG_PRETTY", false),
		LogFile:   getEnvAsBool("LOG_FILE", false),
		DevMode:   getEnvAsBool("DEV_MODE", false),
		RateLimit: RateLimitConfig{
			FetchPerMinute: getEnvAsInt("FETCH_RATE_PER_MIN", 48),
			FetchBurst:     getEnvAsInt("FETCH_RATE_BURST", 10),
			RunPerMinute:   getEnvAsInt("RUN_RATE_PER_MIN", 10),
			RunBurst:       getEnvAsInt("RUN_RATE_BURST", 10),
		},
		MarketData: MarketDataConfig{
			CacheTTL:           getEnvAsDuration("MARKET_DATA_CACHE_TTL", time.Hour),
			MaxRetries:         getEnvAsInt("DATA_FETCH_MAX_RETRIES", 3),
			TrackedTickers:     parseTickers(getEnv("TRACKED_TICKERS", "")),
			RefreshSchedule:    getEnv("REFRESH_SCHEDULE", "0 30 22 * * MON-FRI"),
			RefreshLookbackDay: getEnvAsInt("REFRESH_LOOKBACK_DAYS", 365),
		},
		Backtest: BacktestConfig{
			InitialCapital: getEnvAsFloat("BACKTEST_INITIAL_CAPITAL", 10000),
			Commission:     getEnvAsFloat("BACKTEST_COMMISSION", 0.001),
			Slippage:       getEnvAsFloat("BACKTEST_SLIPPAGE", 0.0005),
			MaxPositionPct: getEnvAsFloat("BACKTEST_MAX_POSITION_PCT", 0.95),
			StopLossPct:    getEnvAsFloat("BACKTEST_STOP_LOSS_PCT", 0.05),
		},
		Backup: BackupConfig{
			Schedule:          getEnv("BACKUP_SCHEDULE", "0 0 3 * * *"),
			RetentionDays:     getEnvAsInt("BACKUP_RETENTION_DAYS", 30),
			R2AccountID:       getEnv("R2_ACCOUNT_ID", ""),
			R2AccessKeyID:     getEnv("R2_ACCESS_KEY_ID", ""),
			R2SecretAccessKey: getEnv("R2_SECRET_ACCESS_KEY", ""),
			R2BucketName:      getEnv("R2_BUCKET_NAME", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LogFilePath returns the rotating log file location, or "" when file logging is off
func (c *Config) LogFilePath() string {
	if !c.LogFile {
		return ""
	}
	return filepath.Join(c.DataDir, "logs", "stratify.log")
}

// DatabasePath returns the file path for a named database
func (c *Config) DatabasePath(name string) string {
	return filepath.Join(c.DataDir, name+".db")
}

// Validate checks that configuration values are usable
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}

	if c.RateLimit.FetchPerMinute <= 0 || c.RateLimit.RunPerMinute <= 0 {
		return fmt.Errorf("rate limits must be positive")
	}
	if c.RateLimit.FetchBurst <= 0 || c.RateLimit.RunBurst <= 0 {
		return fmt.Errorf("rate limit bursts must be positive")
	}

	if c.MarketData.CacheTTL <= 0 {
		return fmt.Errorf("market data cache TTL must be positive")
	}
	if c.MarketData.MaxRetries < 1 {
		return fmt.Errorf("data fetch retries must be at least 1")
	}
	if c.MarketData.RefreshLookbackDay < 1 {
		return fmt.Errorf("refresh lookback must be at least 1 day")
	}

	if c.Backtest.InitialCapital <= 0 {
		return fmt.Errorf("backtest initial capital must be positive")
	}
	if c.Backtest.Commission < 0 || c.Backtest.Slippage < 0 {
		return fmt.Errorf("backtest commission and slippage must not be negative")
	}

	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(c.MarketData.RefreshSchedule); err != nil {
		return fmt.Errorf("invalid REFRESH_SCHEDULE: %w", err)
	}
	if _, err := parser.Parse(c.Backup.Schedule); err != nil {
		return fmt.Errorf("invalid BACKUP_SCHEDULE: %w", err)
	}

	return nil
}

func parseTickers(raw string) []string {
	tickers := utils.ParseCSV(raw)
	for i, t := range tickers {
		tickers[i] = utils.NormalizeTicker(t)
	}
	return tickers
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
