// Package backtest simulates strategy signals against daily bars and stores the results.
package backtest

import (
	"fmt"

	"github.com/raksha-rane/stratify/internal/modules/marketdata"
	"github.com/raksha-rane/stratify/internal/modules/risk"
	"github.com/raksha-rane/stratify/internal/modules/strategies"
	"github.com/raksha-rane/stratify/internal/utils"
	"github.com/raksha-rane/stratify/pkg/formulas"
	"github.com/rs/zerolog"
)

// instrument is the portfolio key for the single traded instrument
const instrument = "POSITION"

// Engine runs the long-only, single-instrument simulation loop
type Engine struct {
	log zerolog.Logger
}

// NewEngine creates a simulation engine
func NewEngine(log zerolog.Logger) *Engine {
	return &Engine{log: log.With().Str("component", "backtest_engine").Logger()}
}

// run holds mutable state for one simulation
type run struct {
	params    Params
	mgr       *risk.Manager
	portfolio *risk.Portfolio
	result    *Result

	entryCost     float64 // outlay of the open position
	stopPrice     float64
	pnls          []float64
	kellyFraction float64
}

// Run simulates signals over bars. Both slices must be the same length.
// The equity curve gets exactly one point per bar and cash never goes negative.
func (e *Engine) Run(bars []marketdata.Bar, signals []strategies.Signal, params Params) (*Result, error) {
	defer utils.OperationTimer("backtest_simulation", e.log)()

	if len(bars) != len(signals) {
		return nil, fmt.Errorf("bars and signals length mismatch: %d != %d", len(bars), len(signals))
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	r := &run{
		params:    params,
		mgr:       risk.NewManager(params.RiskSettings(), e.log),
		portfolio: risk.NewPortfolio(params.InitialCapital),
		result: &Result{
			InitialCapital: params.InitialCapital,
			EquityCurve:    make([]EquityPoint, 0, len(bars)),
			Trades:         []Trade{},
			Rejections:     []Rejection{},
			Signals:        signals,
		},
	}

	e.log.Debug().
		Int("bars", len(bars)).
		Float64("initial_capital", params.InitialCapital).
		Bool("risk_management", params.EnableRiskManagement).
		Bool("use_kelly", params.UseKelly).
		Bool("stop_loss", params.EnableStopLoss).
		Msg("Starting backtest")

	for i, bar := range bars {
		r.step(bar, signals[i])
		r.result.EquityCurve = append(r.result.EquityCurve, EquityPoint{Date: bar.Date, Value: r.portfolio.TotalValue()})
	}

	r.finish()

	e.log.Debug().
		Float64("final_capital", r.result.FinalCapital).
		Float64("total_return", r.result.TotalReturn).
		Int("trades", r.result.TotalTrades).
		Int("rejected", r.result.RejectedTrades).
		Int("stop_losses", r.result.StopLossesTriggered).
		Msg("Backtest completed")

	return r.result, nil
}

func (r *run) step(bar marketdata.Bar, signal strategies.Signal) {
	price := bar.Close
	r.portfolio.Mark(price)
	shares, holding := r.portfolio.Holding(instrument)

	if holding && r.params.EnableStopLoss && price <= r.stopPrice {
		r.exit(bar, shares, strategies.SignalStopLoss)
		r.result.StopLossesTriggered++
		return
	}

	switch {
	case signal == strategies.SignalBuy && !holding:
		r.enter(bar)
	case signal == strategies.SignalSell && holding:
		if r.params.EnableRiskManagement {
			if ok, reason := r.mgr.ValidateTrade(r.portfolio, instrument, shares, price, risk.SideSell); !ok {
				r.reject(bar, signal, reason)
				return
			}
		}
		r.exit(bar, shares, strategies.SignalSell)
	}
}

func (r *run) enter(bar marketdata.Bar) {
	price := bar.Close
	cash := r.portfolio.Cash

	var shares int
	if r.params.EnableRiskManagement {
		var kelly *risk.KellyInputs
		if r.kellyActive() {
			stats := formulas.SummarizeTrades(r.pnls)
			avgLoss := stats.AvgLoss
			if stats.Losses == 0 {
				avgLoss = 1
			}
			kelly = &risk.KellyInputs{WinRate: stats.WinRate, AvgWin: stats.AvgWin, AvgLoss: avgLoss}
			r.kellyFraction = r.mgr.KellyFraction(*kelly)
		}
		shares = r.mgr.CalculatePositionSize(cash, price, r.params.StopLossPct, kelly)
	} else {
		shares = r.mgr.MaxSharesAffordable(cash, price)
	}

	if shares <= 0 {
		return
	}

	if r.params.EnableRiskManagement {
		if ok, reason := r.mgr.ValidateTrade(r.portfolio, instrument, shares, price, risk.SideBuy); !ok {
			r.reject(bar, strategies.SignalBuy, reason)
			return
		}
	}

	costs := r.mgr.ApplyTransactionCosts(price, shares, risk.SideBuy)
	outlay := costs.BuyOutlay(shares)
	if outlay > cash {
		return
	}

	r.portfolio.Open(instrument, shares, price, outlay)
	r.entryCost = outlay

	pct := r.params.StopLossPct
	r.stopPrice = r.mgr.CalculateStopLoss(price, risk.SideBuy, risk.StopLossMethod{FixedPct: &pct})
	target := price * (1 + RiskRewardTarget)

	trade := Trade{
		Date:           bar.Date,
		Signal:         strategies.SignalBuy,
		Price:          price,
		EffectivePrice: costs.EffectivePrice,
		Quantity:       shares,
		CashFlow:       -outlay,
		Commission:     costs.Commission,
		Slippage:       costs.Slippage,
		PortfolioValue: r.portfolio.TotalValue(),
		TargetPrice:    target,
		RiskReward:     r.mgr.CalculateRiskReward(price, r.stopPrice, target, risk.SideBuy),
	}
	if r.params.EnableStopLoss {
		trade.StopLoss = r.stopPrice
	}
	r.record(trade, costs)
}

func (r *run) exit(bar marketdata.Bar, shares int, signal strategies.Signal) {
	costs := r.mgr.ApplyTransactionCosts(bar.Close, shares, risk.SideSell)
	proceeds := costs.SellProceeds(shares)
	pnl := proceeds - r.entryCost

	r.portfolio.Close(instrument, proceeds)
	r.pnls = append(r.pnls, pnl)
	r.entryCost, r.stopPrice = 0, 0

	r.record(Trade{
		Date:           bar.Date,
		Signal:         signal,
		Price:          bar.Close,
		EffectivePrice: costs.EffectivePrice,
		Quantity:       shares,
		CashFlow:       proceeds,
		Commission:     costs.Commission,
		Slippage:       costs.Slippage,
		PnL:            &pnl,
		PortfolioValue: r.portfolio.TotalValue(),
	}, costs)
}

func (r *run) record(t Trade, costs risk.TransactionCosts) {
	r.result.Trades = append(r.result.Trades, t)
	r.result.Costs.TotalCommission += costs.Commission
	r.result.Costs.TotalSlippage += costs.Slippage
}

func (r *run) reject(bar marketdata.Bar, signal strategies.Signal, reason string) {
	r.result.Rejections = append(r.result.Rejections, Rejection{Date: bar.Date, Signal: signal, Reason: reason})
}

func (r *run) kellyActive() bool {
	return r.params.UseKelly && len(r.pnls) >= MinTradesForKelly
}

func (r *run) finish() {
	res := r.result

	values := make([]float64, len(res.EquityCurve))
	for i, p := range res.EquityCurve {
		values[i] = p.Value
	}

	res.FinalCapital = r.params.InitialCapital
	if len(values) > 0 {
		res.FinalCapital = values[len(values)-1]
	}

	res.TotalReturn = formulas.TotalReturnPct(r.params.InitialCapital, res.FinalCapital)
	res.SharpeRatio = formulas.SharpeFromEquity(values)
	res.MaxDrawdown = formulas.MaxDrawdownPct(values)
	res.WinRate = formulas.WinRatePct(r.pnls)
	res.TotalTrades = len(res.Trades)
	res.RejectedTrades = len(res.Rejections)

	res.Costs.TotalCosts = res.Costs.TotalCommission + res.Costs.TotalSlippage
	res.Costs.CostsPct = res.Costs.TotalCosts / r.params.InitialCapital * 100

	res.RiskManagement = r.mgr.Settings()
	res.Kelly = KellyStats{
		TradeStats: formulas.SummarizeTrades(r.pnls),
		KellyUsed:  r.kellyActive(),
		Fraction:   r.kellyFraction,
	}
}
