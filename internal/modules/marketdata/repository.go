package marketdata

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Repository provides access to stored bars and quality logs in the market database
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new market data repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("component", "market_repository").Logger(),
	}
}

// ReplaceRange deletes the ticker's bars in [start, end] and inserts bars in one transaction.
func (r *Repository) ReplaceRange(ticker, start, end string, bars []Bar) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // no-op after Commit

	if _, err := tx.Exec(
		"DELETE FROM market_data WHERE ticker = ? AND date >= ? AND date <= ?",
		ticker, start, end,
	); err != nil {
		return fmt.Errorf("failed to delete existing bars: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO market_data
		(ticker, date, open, high, low, close, adj_close, volume, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, b := range bars {
		if _, err := stmt.Exec(ticker, b.Date, b.Open, b.High, b.Low, b.Close, b.AdjClose, b.Volume, now); err != nil {
			return fmt.Errorf("failed to insert bar for %s: %w", b.Date, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.log.Info().
		Str("ticker", ticker).
		Int("count", len(bars)).
		Msg("Stored market data")

	return nil
}

// GetBars returns the ticker's bars in [start, end] ordered by date ascending
func (r *Repository) GetBars(ticker, start, end string) ([]Bar, error) {
	query := `
		SELECT ticker, date, open, high, low, close, adj_close, volume
		FROM market_data
		WHERE ticker = ? AND date >= ? AND date <= ?
		ORDER BY date ASC
	`

	rows, err := r.db.Query(query, ticker, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query bars: %w", err)
	}
	defer rows.Close()

	bars := []Bar{}
	for rows.Next() {
		var b Bar
		if err := rows.Scan(&b.Ticker, &b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.AdjClose, &b.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan bar: %w", err)
		}
		bars = append(bars, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bars: %w", err)
	}

	return bars, nil
}

// Count returns the number of stored bars for ticker in [start, end]
func (r *Repository) Count(ticker, start, end string) (int, error) {
	var n int
	err := r.db.QueryRow(
		"SELECT COUNT(*) FROM market_data WHERE ticker = ? AND date >= ? AND date <= ?",
		ticker, start, end,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count bars: %w", err)
	}
	return n, nil
}

// Tickers lists every ticker with stored bars
func (r *Repository) Tickers() ([]string, error) {
	rows, err := r.db.Query("SELECT DISTINCT ticker FROM market_data ORDER BY ticker")
	if err != nil {
		return nil, fmt.Errorf("failed to query tickers: %w", err)
	}
	defer rows.Close()

	var tickers []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("failed to scan ticker: %w", err)
		}
		tickers = append(tickers, t)
	}
	return tickers, rows.Err()
}

// SaveQualityLog persists a quality report for a fetched range
func (r *Repository) SaveQualityLog(start, end string, report *QualityReport) (int64, error) {
	payload, err := json.Marshal(report)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal quality report: %w", err)
	}

	valid := 0
	if report.Valid {
		valid = 1
	}

	result, err := r.db.Exec(`
		INSERT INTO data_quality_logs
		(ticker, start_date, end_date, total_records, valid, quality_score, critical_issues, warnings, report, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		report.Ticker, start, end, report.RecordCount, valid, report.QualityScore,
		len(report.CriticalIssues), len(report.Warnings), string(payload), time.Now().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert quality log: %w", err)
	}
	return result.LastInsertId()
}

// RecentQualityLogs returns the ticker's latest quality logs, newest first
func (r *Repository) RecentQualityLogs(ticker string, limit int) ([]QualityLog, error) {
	query := `
		SELECT id, ticker, start_date, end_date, total_records, valid, quality_score,
		       critical_issues, warnings, report, created_at
		FROM data_quality_logs
		WHERE ticker = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`

	rows, err := r.db.Query(query, ticker, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query quality logs: %w", err)
	}
	defer rows.Close()

	logs := []QualityLog{}
	for rows.Next() {
		var (
			l         QualityLog
			valid     int
			payload   string
			createdAt int64
		)
		err := rows.Scan(&l.ID, &l.Ticker, &l.StartDate, &l.EndDate, &l.TotalRecords, &valid,
			&l.QualityScore, &l.CriticalIssues, &l.Warnings, &payload, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan quality log: %w", err)
		}

		l.Valid = valid == 1
		l.CreatedAt = time.Unix(createdAt, 0).UTC()

		var report QualityReport
		if err := json.Unmarshal([]byte(payload), &report); err != nil {
			r.log.Warn().Err(err).Int64("id", l.ID).Msg("Failed to decode stored quality report")
		} else {
			l.Report = &report
		}

		logs = append(logs, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating quality logs: %w", err)
	}

	return logs, nil
}
