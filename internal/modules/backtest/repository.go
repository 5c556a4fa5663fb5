package backtest

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/raksha-rane/stratify/internal/modules/strategies"
	"github.com/rs/zerolog"
)

// storedParameters is the JSON layout of backtest_results.parameters
type storedParameters struct {
	Strategy   map[string]float64 `json:"strategy"`
	Simulation Params             `json:"simulation"`
}

// Repository persists backtest results and their trade ledgers
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new backtest repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("component", "backtest_repository").Logger(),
	}
}

// Save inserts the result and its trades in one transaction and returns the new ID
func (r *Repository) Save(res *StoredResult) (int64, error) {
	params, err := json.Marshal(storedParameters{Strategy: res.Parameters, Simulation: res.Simulation})
	if err != nil {
		return 0, fmt.Errorf("failed to marshal parameters: %w", err)
	}

	summary := []byte("{}")
	if res.Summary != nil {
		if summary, err = json.Marshal(res.Summary); err != nil {
			return 0, fmt.Errorf("failed to marshal summary: %w", err)
		}
	}

	createdAt := res.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	tx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // no-op after Commit

	result, err := tx.Exec(`
		INSERT INTO backtest_results
		(ticker, strategy, start_date, end_date, initial_capital, final_capital, total_return,
		 sharpe_ratio, max_drawdown, win_rate, total_trades, parameters, summary, correlation_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		res.Ticker, res.Strategy, res.StartDate, res.EndDate, res.InitialCapital, res.FinalCapital,
		res.TotalReturn, res.SharpeRatio, res.MaxDrawdown, res.WinRate, res.TotalTrades,
		string(params), string(summary), res.CorrelationID, createdAt.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert backtest result: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get backtest id: %w", err)
	}

	if len(res.Trades) > 0 {
		stmt, err := tx.Prepare(`
			INSERT INTO trades
			(backtest_id, ticker, strategy, date, signal, price, effective_price, quantity,
			 cash_flow, commission, slippage, pnl, portfolio_value)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return 0, fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, t := range res.Trades {
			var pnl sql.NullFloat64
			if t.PnL != nil {
				pnl = sql.NullFloat64{Float64: *t.PnL, Valid: true}
			}
			_, err := stmt.Exec(id, res.Ticker, res.Strategy, t.Date, string(t.Signal), t.Price, t.EffectivePrice,
				t.Quantity, t.CashFlow, t.Commission, t.Slippage, pnl, t.PortfolioValue)
			if err != nil {
				return 0, fmt.Errorf("failed to insert trade for %s: %w", t.Date, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.log.Info().
		Int64("backtest_id", id).
		Str("ticker", res.Ticker).
		Str("strategy", res.Strategy).
		Int("trades", len(res.Trades)).
		Msg("Backtest results stored")

	return id, nil
}

const resultColumns = `
	id, ticker, strategy, start_date, end_date, initial_capital, final_capital, total_return,
	sharpe_ratio, max_drawdown, win_rate, total_trades, parameters, summary, correlation_id, created_at
`

// GetByID returns a stored result with its summary and trades, or nil when missing
func (r *Repository) GetByID(id int64) (*StoredResult, error) {
	row := r.db.QueryRow("SELECT "+resultColumns+" FROM backtest_results WHERE id = ?", id)

	res, err := scanResult(row, true)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get backtest %d: %w", id, err)
	}

	trades, err := r.Trades(id)
	if err != nil {
		return nil, err
	}
	res.Trades = trades

	return res, nil
}

// List returns one page of results, newest first, without summaries or trades
func (r *Repository) List(page, pageSize int) (*Page, error) {
	var total int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM backtest_results").Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count backtest results: %w", err)
	}

	results := []StoredResult{}
	out := &Page{
		Results:    results,
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: (total + pageSize - 1) / pageSize,
	}
	// Pages past the end are empty; this also keeps the offset from overflowing
	if page > out.TotalPages {
		return out, nil
	}

	rows, err := r.db.Query(
		"SELECT "+resultColumns+" FROM backtest_results ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?",
		pageSize, (page-1)*pageSize,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query backtest results: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		res, err := scanResult(rows, false)
		if err != nil {
			return nil, fmt.Errorf("failed to scan backtest result: %w", err)
		}
		out.Results = append(out.Results, *res)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating backtest results: %w", err)
	}

	return out, nil
}

// Trades returns the ledger of a stored backtest in execution order
func (r *Repository) Trades(backtestID int64) ([]Trade, error) {
	rows, err := r.db.Query(`
		SELECT id, date, signal, price, effective_price, quantity, cash_flow, commission, slippage, pnl, portfolio_value
		FROM trades
		WHERE backtest_id = ?
		ORDER BY id ASC
	`, backtestID)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	trades := []Trade{}
	for rows.Next() {
		var (
			t      Trade
			signal string
			pnl    sql.NullFloat64
		)
		err := rows.Scan(&t.ID, &t.Date, &signal, &t.Price, &t.EffectivePrice, &t.Quantity,
			&t.CashFlow, &t.Commission, &t.Slippage, &pnl, &t.PortfolioValue)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		t.Signal = strategies.Signal(signal)
		if pnl.Valid {
			v := pnl.Float64
			t.PnL = &v
		}
		trades = append(trades, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trades: %w", err)
	}

	return trades, nil
}

// Delete removes a stored result and its trades
func (r *Repository) Delete(id int64) (bool, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM trades WHERE backtest_id = ?", id); err != nil {
		return false, fmt.Errorf("failed to delete trades: %w", err)
	}
	result, err := tx.Exec("DELETE FROM backtest_results WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete backtest result: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return n > 0, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanResult(row scanner, withSummary bool) (*StoredResult, error) {
	var (
		res       StoredResult
		params    string
		summary   string
		createdAt int64
	)
	err := row.Scan(&res.ID, &res.Ticker, &res.Strategy, &res.StartDate, &res.EndDate,
		&res.InitialCapital, &res.FinalCapital, &res.TotalReturn, &res.SharpeRatio,
		&res.MaxDrawdown, &res.WinRate, &res.TotalTrades, &params, &summary, &res.CorrelationID, &createdAt)
	if err != nil {
		return nil, err
	}
	res.CreatedAt = time.Unix(createdAt, 0).UTC()

	var stored storedParameters
	if err := json.Unmarshal([]byte(params), &stored); err != nil {
		return nil, fmt.Errorf("failed to decode parameters of backtest %d: %w", res.ID, err)
	}
	res.Parameters = stored.Strategy
	res.Simulation = stored.Simulation

	if withSummary {
		var s Summary
		if err := json.Unmarshal([]byte(summary), &s); err != nil {
			return nil, fmt.Errorf("failed to decode summary of backtest %d: %w", res.ID, err)
		}
		res.Summary = &s
	}

	return &res, nil
}
