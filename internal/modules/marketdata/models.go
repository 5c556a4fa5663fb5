// Package marketdata fetches, validates, stores and serves daily OHLCV bars.
package marketdata

import "time"

// DateLayout is the calendar date format used for bars and query parameters
const DateLayout = "2006-01-02"

// Bar is one daily OHLCV record
type Bar struct {
	Ticker   string  `json:"ticker" msgpack:"ticker"`
	Date     string  `json:"date" msgpack:"date"`
	Open     float64 `json:"open" msgpack:"open"`
	High     float64 `json:"high" msgpack:"high"`
	Low      float64 `json:"low" msgpack:"low"`
	Close    float64 `json:"close" msgpack:"close"`
	AdjClose float64 `json:"adj_close" msgpack:"adj_close"`
	Volume   int64   `json:"volume" msgpack:"volume"`
}

// Closes extracts the close series
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// PriceStatistics summarises closes and volumes
type PriceStatistics struct {
	CloseMin   float64 `json:"close_min"`
	CloseMax   float64 `json:"close_max"`
	CloseMean  float64 `json:"close_mean"`
	CloseStd   float64 `json:"close_std"`
	VolumeMean float64 `json:"volume_mean"`
	VolumeStd  float64 `json:"volume_std"`
}

// QualityStats are the counters collected by the quality checks
type QualityStats struct {
	MissingValues       int             `json:"total_null_values"`
	ValidRecords        int             `json:"valid_records"`
	DroppedRecords      int             `json:"dropped_records"`
	HighLowViolations   int             `json:"high_low_violations,omitempty"`
	DuplicateDates      int             `json:"duplicate_dates,omitempty"`
	DateGaps            int             `json:"date_gaps"`
	MaxGapDays          int             `json:"max_gap_days"`
	PriceOutliers       int             `json:"price_outliers,omitempty"`
	MaxChangePct        float64         `json:"max_change_pct,omitempty"`
	StatisticalOutliers int             `json:"statistical_outliers,omitempty"`
	NegativeVolume      int             `json:"negative_volume,omitempty"`
	ZeroVolume          int             `json:"zero_volume,omitempty"`
	PriceStatistics     PriceStatistics `json:"price_statistics"`
}

// QualityReport is the outcome of validating a batch of bars
type QualityReport struct {
	Ticker         string       `json:"ticker"`
	ValidatedAt    time.Time    `json:"validation_date"`
	Valid          bool         `json:"is_valid"`
	RecordCount    int          `json:"record_count"`
	CriticalIssues []string     `json:"critical_issues"`
	Warnings       []string     `json:"warnings"`
	QualityScore   float64      `json:"quality_score"`
	Stats          QualityStats `json:"stats"`
}

func (r *QualityReport) critical(msg string) {
	r.CriticalIssues = append(r.CriticalIssues, msg)
	r.Valid = false
}

func (r *QualityReport) warn(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// QualityLog is a persisted quality report
type QualityLog struct {
	ID             int64          `json:"id"`
	Ticker         string         `json:"ticker"`
	StartDate      string         `json:"start_date"`
	EndDate        string         `json:"end_date"`
	TotalRecords   int            `json:"total_records"`
	Valid          bool           `json:"is_valid"`
	QualityScore   float64        `json:"quality_score"`
	CriticalIssues int            `json:"critical_issues"`
	Warnings       int            `json:"warnings"`
	Report         *QualityReport `json:"report"`
	CreatedAt      time.Time      `json:"created_at"`
}

// FetchResult is returned by Service.Fetch
type FetchResult struct {
	Ticker     string         `json:"ticker"`
	StartDate  string         `json:"start_date"`
	EndDate    string         `json:"end_date"`
	Records    int            `json:"records"`
	Sample     []Bar          `json:"sample"`
	Quality    *QualityReport `json:"quality_report"`
	DurationMs int64          `json:"duration_ms"`
}
