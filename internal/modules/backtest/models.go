package backtest

import (
	"time"

	"github.com/raksha-rane/stratify/internal/apperrors"
	"github.com/raksha-rane/stratify/internal/modules/risk"
	"github.com/raksha-rane/stratify/internal/modules/strategies"
	"github.com/raksha-rane/stratify/pkg/formulas"
)

// MinTradesForKelly is the number of completed round trips before Kelly sizing applies
const MinTradesForKelly = 10

// RiskRewardTarget is the assumed take-profit distance used for risk/reward reporting
const RiskRewardTarget = 0.10

// Params controls a single simulation
type Params struct {
	InitialCapital       float64 `json:"initial_capital"`
	EnableRiskManagement bool    `json:"enable_risk_management"`
	UseKelly             bool    `json:"use_kelly"`
	EnableStopLoss       bool    `json:"enable_stop_loss"`
	StopLossPct          float64 `json:"stop_loss_pct"`
	Commission           float64 `json:"commission"`
	Slippage             float64 `json:"slippage"`
	MaxPositionPct       float64 `json:"max_position_pct"`
}

// DefaultParams returns the simulation defaults
func DefaultParams() Params {
	return Params{
		InitialCapital:       10000,
		EnableRiskManagement: true,
		UseKelly:             false,
		EnableStopLoss:       true,
		StopLossPct:          0.05,
		Commission:           0.001,
		Slippage:             0.0005,
		MaxPositionPct:       0.95,
	}
}

// Validate checks simulation parameters
func (p Params) Validate() error {
	switch {
	case p.InitialCapital <= 0:
		return apperrors.Validation("initial_capital must be positive")
	case p.StopLossPct < 0.01 || p.StopLossPct > 0.5:
		return apperrors.Validation("stop_loss_pct must be between 0.01 and 0.5")
	case p.Commission < 0 || p.Commission > 0.1:
		return apperrors.Validation("commission must be between 0 and 0.1")
	case p.Slippage < 0 || p.Slippage > 0.1:
		return apperrors.Validation("slippage must be between 0 and 0.1")
	case p.MaxPositionPct <= 0 || p.MaxPositionPct > 1:
		return apperrors.Validation("max_position_pct must be in (0, 1]")
	}
	return nil
}

// RiskSettings derives the risk manager limits for this run
func (p Params) RiskSettings() risk.Settings {
	s := risk.DefaultSettings()
	s.Commission = p.Commission
	s.Slippage = p.Slippage
	s.MaxPositionPct = p.MaxPositionPct
	return s
}

// Trade is one executed fill in the ledger
type Trade struct {
	ID             int64             `json:"id,omitempty"`
	Date           string            `json:"date"`
	Signal         strategies.Signal `json:"signal"`
	Price          float64           `json:"price"`
	EffectivePrice float64           `json:"effective_price"`
	Quantity       int               `json:"shares"`
	CashFlow       float64           `json:"cash_flow"` // negative outlay for buys, proceeds for exits
	Commission     float64           `json:"commission"`
	Slippage       float64           `json:"slippage"`
	PnL            *float64          `json:"pnl,omitempty"`
	PortfolioValue float64           `json:"portfolio_value"`
	StopLoss       float64           `json:"stop_loss,omitempty"`
	TargetPrice    float64           `json:"target_price,omitempty"`
	RiskReward     float64           `json:"risk_reward_ratio,omitempty"`
}

// IsExit reports whether the trade closed a position
func (t Trade) IsExit() bool {
	return t.Signal == strategies.SignalSell || t.Signal == strategies.SignalStopLoss
}

// Rejection records a signal the risk manager refused
type Rejection struct {
	Date   string            `json:"date"`
	Signal strategies.Signal `json:"signal"`
	Reason string            `json:"reason"`
}

// EquityPoint is the marked portfolio value at one bar
type EquityPoint struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// CostSummary aggregates transaction costs
type CostSummary struct {
	TotalCommission float64 `json:"total_commission"`
	TotalSlippage   float64 `json:"total_slippage"`
	TotalCosts      float64 `json:"total_costs"`
	CostsPct        float64 `json:"costs_pct"`
}

// KellyStats reports round-trip statistics used for Kelly sizing
type KellyStats struct {
	formulas.TradeStats
	KellyUsed bool `json:"kelly_used"`

	// Fraction is the last half-Kelly fraction applied to an entry. Zero with
	// KellyUsed set means the edge turned non-positive and entries stopped.
	Fraction float64 `json:"kelly_fraction"`
}

// Result is the outcome of one simulation
type Result struct {
	InitialCapital      float64             `json:"initial_capital"`
	FinalCapital        float64             `json:"final_capital"`
	TotalReturn         float64             `json:"total_return"`
	SharpeRatio         float64             `json:"sharpe_ratio"`
	MaxDrawdown         float64             `json:"max_drawdown"`
	WinRate             float64             `json:"win_rate"`
	TotalTrades         int                 `json:"total_trades"`
	RejectedTrades      int                 `json:"rejected_trades"`
	StopLossesTriggered int                 `json:"stop_losses_triggered"`
	EquityCurve         []EquityPoint       `json:"equity_curve"`
	Trades              []Trade             `json:"trades"`
	Rejections          []Rejection         `json:"rejections"`
	Signals             []strategies.Signal `json:"signals"`
	Costs               CostSummary         `json:"costs"`
	RiskManagement      risk.Settings       `json:"risk_management"`
	Kelly               KellyStats          `json:"kelly_criterion"`
}

// Summary is the JSON blob persisted alongside a stored result
type Summary struct {
	RejectedTrades      int           `json:"rejected_trades"`
	StopLossesTriggered int           `json:"stop_losses_triggered"`
	Costs               CostSummary   `json:"costs"`
	RiskManagement      risk.Settings `json:"risk_management"`
	Kelly               KellyStats    `json:"kelly_criterion"`
	EquityCurve         []EquityPoint `json:"equity_curve"`
	Rejections          []Rejection   `json:"rejections"`
}

// StoredResult is a persisted backtest run
type StoredResult struct {
	ID             int64              `json:"id"`
	Ticker         string             `json:"ticker"`
	Strategy       string             `json:"strategy"`
	StartDate      string             `json:"start_date"`
	EndDate        string             `json:"end_date"`
	InitialCapital float64            `json:"initial_capital"`
	FinalCapital   float64            `json:"final_capital"`
	TotalReturn    float64            `json:"total_return"`
	SharpeRatio    float64            `json:"sharpe_ratio"`
	MaxDrawdown    float64            `json:"max_drawdown"`
	WinRate        float64            `json:"win_rate"`
	TotalTrades    int                `json:"total_trades"`
	Parameters     map[string]float64 `json:"parameters"`
	Simulation     Params             `json:"simulation"`
	Summary        *Summary           `json:"summary,omitempty"`
	CorrelationID  string             `json:"correlation_id,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	Trades         []Trade            `json:"trades,omitempty"`
}

// Page is one page of stored results, newest first
type Page struct {
	Results    []StoredResult `json:"results"`
	Page       int            `json:"page"`
	PageSize   int            `json:"page_size"`
	Total      int            `json:"total"`
	TotalPages int            `json:"total_pages"`
}

// ParamOverrides carries optional simulation settings from a request.
// Nil fields keep the defaults.
type ParamOverrides struct {
	InitialCapital       *float64 `json:"initial_capital,omitempty"`
	EnableRiskManagement *bool    `json:"enable_risk_management,omitempty"`
	UseKelly             *bool    `json:"use_kelly,omitempty"`
	EnableStopLoss       *bool    `json:"enable_stop_loss,omitempty"`
	StopLossPct          *float64 `json:"stop_loss_pct,omitempty"`
	Commission           *float64 `json:"commission,omitempty"`
	Slippage             *float64 `json:"slippage,omitempty"`
	MaxPositionPct       *float64 `json:"max_position_pct,omitempty"`
}

// Apply returns base with every non-nil override set
func (o ParamOverrides) Apply(base Params) Params {
	if o.InitialCapital != nil {
		base.InitialCapital = *o.InitialCapital
	}
	if o.EnableRiskManagement != nil {
		base.EnableRiskManagement = *o.EnableRiskManagement
	}
	if o.UseKelly != nil {
		base.UseKelly = *o.UseKelly
	}
	if o.EnableStopLoss != nil {
		base.EnableStopLoss = *o.EnableStopLoss
	}
	if o.StopLossPct != nil {
		base.StopLossPct = *o.StopLossPct
	}
	if o.Commission != nil {
		base.Commission = *o.Commission
	}
	if o.Slippage != nil {
		base.Slippage = *o.Slippage
	}
	if o.MaxPositionPct != nil {
		base.MaxPositionPct = *o.MaxPositionPct
	}
	return base
}

// RunRequest asks for one backtest. Simulation overrides are flattened into the body.
type RunRequest struct {
	Ticker     string             `json:"ticker"`
	Strategy   string             `json:"strategy"`
	StartDate  string             `json:"start_date"`
	EndDate    string             `json:"end_date"`
	Parameters map[string]float64 `json:"parameters"`
	ParamOverrides

	CorrelationID string `json:"-"`
}

// RunResponse is returned by Service.Run
type RunResponse struct {
	BacktestID int64              `json:"backtest_id"`
	Ticker     string             `json:"ticker"`
	Strategy   string             `json:"strategy"`
	StartDate  string             `json:"start_date"`
	EndDate    string             `json:"end_date"`
	Parameters map[string]float64 `json:"parameters"`
	Simulation Params             `json:"simulation"`
	DurationMs int64              `json:"duration_ms"`
	*Result
}
