package events

// EventData is implemented by typed event payloads
type EventData interface {
	EventType() EventType
}

// MarketDataFetchedData is emitted after bars are stored
type MarketDataFetchedData struct {
	Ticker       string  `json:"ticker"`
	StartDate    string  `json:"start_date"`
	EndDate      string  `json:"end_date"`
	Records      int     `json:"records"`
	QualityScore float64 `json:"quality_score"`
	Source       string  `json:"source,omitempty"`
}

func (d *MarketDataFetchedData) EventType() EventType { return MarketDataFetched }

// DataQualityWarningData is emitted when a fetch passes with warnings
type DataQualityWarningData struct {
	Ticker       string   `json:"ticker"`
	Warnings     []string `json:"warnings"`
	QualityScore float64  `json:"quality_score"`
}

func (d *DataQualityWarningData) EventType() EventType { return DataQualityWarning }

// BacktestCompletedData is emitted when a backtest result is stored
type BacktestCompletedData struct {
	BacktestID  int64   `json:"backtest_id"`
	Ticker      string  `json:"ticker"`
	Strategy    string  `json:"strategy"`
	TotalReturn float64 `json:"total_return"`
	SharpeRatio float64 `json:"sharpe_ratio"`
	MaxDrawdown float64 `json:"max_drawdown"`
	WinRate     float64 `json:"win_rate"`
	TotalTrades int     `json:"total_trades"`
	DurationMs  int64   `json:"duration_ms"`
}

func (d *BacktestCompletedData) EventType() EventType { return BacktestCompleted }

// BacktestFailedData is emitted when a backtest cannot complete
type BacktestFailedData struct {
	Ticker   string `json:"ticker"`
	Strategy string `json:"strategy"`
	Error    string `json:"error"`
}

func (d *BacktestFailedData) EventType() EventType { return BacktestFailed }

// RateLimitHitData is emitted on every rejected request
type RateLimitHitData struct {
	Resource   string `json:"resource"`
	Client     string `json:"client"`
	RetryAfter int    `json:"retry_after"`
}

func (d *RateLimitHitData) EventType() EventType { return RateLimitHit }

// BackupCompletedData is emitted after an offsite backup upload
type BackupCompletedData struct {
	Key       string `json:"key"`
	SizeBytes int64  `json:"size_bytes"`
	Databases int    `json:"databases"`
	Rotated   int    `json:"rotated"`
}

func (d *BackupCompletedData) EventType() EventType { return BackupCompleted }
