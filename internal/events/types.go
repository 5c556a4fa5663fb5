// Package events provides the in-process event bus used to fan out system events.
package events

import "time"

// EventType identifies a kind of system event
type EventType string

const (
	MarketDataFetched  EventType = "MARKET_DATA_FETCHED"
	DataQualityWarning EventType = "DATA_QUALITY_WARNING"
	BacktestCompleted  EventType = "BACKTEST_COMPLETED"
	BacktestFailed     EventType = "BACKTEST_FAILED"
	RateLimitHit       EventType = "RATE_LIMIT_HIT"
	BackupCompleted    EventType = "BACKUP_COMPLETED"
)

// AllTypes lists every event type the bus carries
var AllTypes = []EventType{
	MarketDataFetched,
	DataQualityWarning,
	BacktestCompleted,
	BacktestFailed,
	RateLimitHit,
	BackupCompleted,
}

// Event is a single emitted event
type Event struct {
	Type      EventType              `json:"type"`
	Module    string                 `json:"module"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}
