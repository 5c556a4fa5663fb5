package backtest

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raksha-rane/stratify/internal/apperrors"
	"github.com/raksha-rane/stratify/internal/modules/marketdata"
	"github.com/raksha-rane/stratify/internal/modules/strategies"
	testutil "github.com/raksha-rane/stratify/internal/testing"
)

const (
	H = strategies.SignalHold
	B = strategies.SignalBuy
	S = strategies.SignalSell
)

func makeBars(closes []float64) []marketdata.Bar {
	dates := testutil.TradingDates("2024-01-01", len(closes))
	fixtures := testutil.MakeBars(dates, closes)

	bars := make([]marketdata.Bar, len(fixtures))
	for i, f := range fixtures {
		bars[i] = marketdata.Bar{
			Ticker:   "TEST",
			Date:     f.Date,
			Open:     f.Open,
			High:     f.High,
			Low:      f.Low,
			Close:    f.Close,
			AdjClose: f.AdjClose,
			Volume:   f.Volume,
		}
	}
	return bars
}

// frictionless disables costs and risk checks so fills are exact
func frictionless() Params {
	p := DefaultParams()
	p.EnableRiskManagement = false
	p.EnableStopLoss = false
	p.Commission = 0
	p.Slippage = 0
	return p
}

func newTestEngine() *Engine {
	return NewEngine(zerolog.New(nil).Level(zerolog.Disabled))
}

func TestEngine_FrictionlessRoundTrip(t *testing.T) {
	bars := makeBars([]float64{100, 100, 110, 110})

	result, err := newTestEngine().Run(bars, []strategies.Signal{H, B, S, H}, frictionless())
	require.NoError(t, err)

	require.Len(t, result.Trades, 2)
	buy, sell := result.Trades[0], result.Trades[1]

	assert.Equal(t, B, buy.Signal)
	assert.Equal(t, 100, buy.Quantity)
	assert.InDelta(t, -10000, buy.CashFlow, 1e-9)
	assert.Nil(t, buy.PnL)

	assert.Equal(t, S, sell.Signal)
	assert.InDelta(t, 11000, sell.CashFlow, 1e-9)
	require.NotNil(t, sell.PnL)
	assert.InDelta(t, 1000, *sell.PnL, 1e-9)

	assert.InDelta(t, 11000, result.FinalCapital, 1e-9)
	assert.InDelta(t, 10, result.TotalReturn, 1e-9)
	assert.InDelta(t, 100, result.WinRate, 1e-9)
	assert.Equal(t, 0.0, result.MaxDrawdown)
	assert.Equal(t, 2, result.TotalTrades)
	assert.Equal(t, []float64{10000, 10000, 11000, 11000}, equityValues(result))
}

func TestEngine_CostsReduceProceeds(t *testing.T) {
	p := frictionless()
	p.Commission = 0.001
	p.Slippage = 0.0005
	bars := makeBars([]float64{100, 100, 100})

	result, err := newTestEngine().Run(bars, []strategies.Signal{B, S, H}, p)
	require.NoError(t, err)
	require.Len(t, result.Trades, 2)

	buy, sell := result.Trades[0], result.Trades[1]

	// 100 shares would cost 10015 with costs, so only 99 fit
	assert.Equal(t, 99, buy.Quantity)
	assert.InDelta(t, 100.05, buy.EffectivePrice, 1e-9)
	assert.InDelta(t, 9.9, buy.Commission, 1e-9)
	assert.InDelta(t, -9914.85, buy.CashFlow, 1e-6)

	assert.InDelta(t, 99.95, sell.EffectivePrice, 1e-9)
	assert.InDelta(t, 9885.15, sell.CashFlow, 1e-6)
	assert.InDelta(t, -29.7, *sell.PnL, 1e-6)

	assert.InDelta(t, 9970.3, result.FinalCapital, 1e-6)
	assert.Equal(t, 0.0, result.WinRate)
	assert.InDelta(t, 19.8, result.Costs.TotalCommission, 1e-6)
	assert.InDelta(t, 9.9, result.Costs.TotalSlippage, 1e-6)
	assert.InDelta(t, result.Costs.TotalCommission+result.Costs.TotalSlippage, result.Costs.TotalCosts, 1e-9)
}

func TestEngine_StopLoss(t *testing.T) {
	p := frictionless()
	p.EnableStopLoss = true
	p.StopLossPct = 0.05
	bars := makeBars([]float64{100, 100, 94, 94})

	result, err := newTestEngine().Run(bars, []strategies.Signal{H, B, H, B}, p)
	require.NoError(t, err)

	require.Len(t, result.Trades, 3)
	assert.Equal(t, 1, result.StopLossesTriggered)
	assert.Equal(t, strategies.SignalStopLoss, result.Trades[1].Signal)
	assert.InDelta(t, -600, *result.Trades[1].PnL, 1e-9)
	assert.True(t, result.Trades[1].IsExit())

	// Re-entry on the next buy signal
	assert.Equal(t, B, result.Trades[2].Signal)
}

func TestEngine_RiskBasedSizing(t *testing.T) {
	p := DefaultParams()
	p.Commission = 0
	p.Slippage = 0
	bars := makeBars([]float64{100, 100})

	result, err := newTestEngine().Run(bars, []strategies.Signal{B, H}, p)
	require.NoError(t, err)
	require.Len(t, result.Trades, 1)

	// min(10000 × 0.95, 10000 × 0.02 / 0.05) = 4000
	assert.Equal(t, 40, result.Trades[0].Quantity)
	assert.InDelta(t, 95, result.Trades[0].StopLoss, 1e-9)
	assert.InDelta(t, 110, result.Trades[0].TargetPrice, 1e-9)
	assert.InDelta(t, 2, result.Trades[0].RiskReward, 1e-9)
	assert.Equal(t, p.MaxPositionPct, result.RiskManagement.MaxPositionPct)
}

// roundTrips builds n buy-then-sell pairs at entry and exit, followed by one
// more buy at entry.
func roundTrips(n int, entry, exit float64) ([]float64, []strategies.Signal) {
	closes := make([]float64, 0, 2*n+1)
	signals := make([]strategies.Signal, 0, 2*n+1)
	for i := 0; i < n; i++ {
		closes = append(closes, entry, exit)
		signals = append(signals, B, S)
	}
	return append(closes, entry), append(signals, B)
}

// kellyParams sizes on risk alone: with a 1% stop the risk budget exceeds
// max_position_pct, so only Kelly can shrink an entry.
func kellyParams() Params {
	p := DefaultParams()
	p.UseKelly = true
	p.EnableStopLoss = false
	p.StopLossPct = 0.01
	p.Commission = 0
	p.Slippage = 0
	return p
}

func TestEngine_KellySizingAfterEnoughRoundTrips(t *testing.T) {
	closes, signals := roundTrips(MinTradesForKelly, 100, 101)

	result, err := newTestEngine().Run(makeBars(closes), signals, kellyParams())
	require.NoError(t, err)
	require.Len(t, result.Trades, 2*MinTradesForKelly+1)

	// Before activation the entry is capped by max_position_pct
	assert.Equal(t, 95, result.Trades[0].Quantity)

	assert.True(t, result.Kelly.KellyUsed)
	assert.Equal(t, MinTradesForKelly, result.Kelly.Completed)
	assert.Equal(t, MinTradesForKelly, result.Kelly.Wins)
	assert.InDelta(t, 0.5, result.Kelly.Fraction, 1e-12)

	// Every trip won, so half-Kelly is 0.5 of capital
	capital := result.EquityCurve[2*MinTradesForKelly-1].Value
	last := result.Trades[len(result.Trades)-1]
	assert.Equal(t, B, last.Signal)
	assert.Equal(t, int(capital*0.5/100), last.Quantity)
	assert.Less(t, last.Quantity, int(capital*0.95/100))

	withoutKelly := kellyParams()
	withoutKelly.UseKelly = false
	plain, err := newTestEngine().Run(makeBars(closes), signals, withoutKelly)
	require.NoError(t, err)
	assert.False(t, plain.Kelly.KellyUsed)
	assert.Equal(t, int(capital*0.95/100), plain.Trades[len(plain.Trades)-1].Quantity)
}

func TestEngine_KellyNotUsedBeforeMinimumRoundTrips(t *testing.T) {
	closes, signals := roundTrips(MinTradesForKelly-1, 100, 101)

	result, err := newTestEngine().Run(makeBars(closes), signals, kellyParams())
	require.NoError(t, err)

	assert.False(t, result.Kelly.KellyUsed)
	assert.Equal(t, 0.0, result.Kelly.Fraction)
	last := result.Trades[len(result.Trades)-1]
	capital := result.EquityCurve[len(closes)-2].Value
	assert.Equal(t, int(capital*0.95/100), last.Quantity)
}

func TestEngine_KellyStopsEntriesOnNegativeEdge(t *testing.T) {
	closes, signals := roundTrips(MinTradesForKelly, 100, 99)
	closes, signals = append(closes, 99, 100), append(signals, S, B)

	result, err := newTestEngine().Run(makeBars(closes), signals, kellyParams())
	require.NoError(t, err)

	assert.Len(t, result.Trades, 2*MinTradesForKelly)
	assert.True(t, result.Kelly.KellyUsed)
	assert.Equal(t, 0, result.Kelly.Wins)
	assert.Equal(t, 0.0, result.Kelly.Fraction)
	assert.Empty(t, result.Rejections)
}

func TestEngine_RecordsRejectedEntry(t *testing.T) {
	p := DefaultParams()
	p.InitialCapital = 375
	bars := makeBars([]float64{80, 80})

	result, err := newTestEngine().Run(bars, []strategies.Signal{B, H}, p)
	require.NoError(t, err)

	// Sizing allows min(356.25, 150) but one share at 80 is below the 100 minimum
	assert.Empty(t, result.Trades)
	assert.Equal(t, 0, result.TotalTrades)
	require.Len(t, result.Rejections, 1)
	assert.Equal(t, 1, result.RejectedTrades)
	assert.Equal(t, bars[0].Date, result.Rejections[0].Date)
	assert.Equal(t, B, result.Rejections[0].Signal)
	assert.Contains(t, result.Rejections[0].Reason, "below minimum")
	assert.Equal(t, []float64{375, 375}, equityValues(result))
}

func TestEngine_IgnoresRedundantSignals(t *testing.T) {
	bars := makeBars([]float64{100, 101, 102, 103, 104})

	result, err := newTestEngine().Run(bars, []strategies.Signal{S, B, B, S, S}, frictionless())
	require.NoError(t, err)

	require.Len(t, result.Trades, 2)
	assert.Equal(t, B, result.Trades[0].Signal)
	assert.Equal(t, "2024-01-02", result.Trades[0].Date)
	assert.Equal(t, S, result.Trades[1].Signal)
	assert.Equal(t, "2024-01-04", result.Trades[1].Date)
}

func TestEngine_NoSignalsKeepsCapital(t *testing.T) {
	closes := testutil.SineCloses(30, 100, 10, 10)
	signals := make([]strategies.Signal, len(closes))
	for i := range signals {
		signals[i] = H
	}

	result, err := newTestEngine().Run(makeBars(closes), signals, DefaultParams())
	require.NoError(t, err)

	assert.Equal(t, 10000.0, result.FinalCapital)
	assert.Equal(t, 0.0, result.TotalReturn)
	assert.Equal(t, 0.0, result.SharpeRatio)
	assert.Equal(t, 0, result.TotalTrades)
	assert.Empty(t, result.Trades)
	assert.False(t, result.Kelly.KellyUsed)
}

func TestEngine_Errors(t *testing.T) {
	engine := newTestEngine()
	bars := makeBars([]float64{100, 101})

	_, err := engine.Run(bars, []strategies.Signal{H}, DefaultParams())
	assert.Error(t, err)

	p := DefaultParams()
	p.InitialCapital = 0
	_, err = engine.Run(bars, []strategies.Signal{H, H}, p)
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))

	p = DefaultParams()
	p.StopLossPct = 0.9
	_, err = engine.Run(bars, []strategies.Signal{H, H}, p)
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
}

func TestEngine_Properties(t *testing.T) {
	series := map[string][]float64{
		"sine":      testutil.SineCloses(250, 100, 25, 30),
		"uptrend":   testutil.TrendCloses(250, 50, 0.004),
		"downtrend": testutil.TrendCloses(250, 200, -0.006),
	}
	builders := map[string]strategies.Strategy{
		"sma":            strategies.NewSMACrossover(5, 20),
		"mean_reversion": strategies.NewMeanReversion(10, 1.5),
		"momentum":       strategies.NewMomentum(5, 0.01),
	}
	variants := map[string]Params{
		"defaults":     DefaultParams(),
		"frictionless": frictionless(),
		"kelly": func() Params {
			p := DefaultParams()
			p.UseKelly = true
			return p
		}(),
	}

	engine := newTestEngine()
	for seriesName, closes := range series {
		bars := makeBars(closes)
		for strategyName, strategy := range builders {
			signals := strategy.Signals(closes)
			for variantName, params := range variants {
				t.Run(seriesName+"/"+strategyName+"/"+variantName, func(t *testing.T) {
					result, err := engine.Run(bars, signals, params)
					require.NoError(t, err)

					require.Len(t, result.EquityCurve, len(bars))
					for i, point := range result.EquityCurve {
						assert.Equal(t, bars[i].Date, point.Date)
						assert.GreaterOrEqual(t, point.Value, 0.0, "equity at %s", point.Date)
					}

					cash := params.InitialCapital
					for _, trade := range result.Trades {
						cash += trade.CashFlow
						assert.GreaterOrEqual(t, cash, -1e-6, "cash after %s on %s", trade.Signal, trade.Date)
						assert.Greater(t, trade.Quantity, 0)
					}

					assert.LessOrEqual(t, result.MaxDrawdown, 0.0)
					assert.GreaterOrEqual(t, result.WinRate, 0.0)
					assert.LessOrEqual(t, result.WinRate, 100.0)
					assert.Equal(t, len(result.Trades), result.TotalTrades)
					assert.Equal(t, result.EquityCurve[len(bars)-1].Value, result.FinalCapital)
				})
			}
		}
	}
}

func equityValues(r *Result) []float64 {
	values := make([]float64, len(r.EquityCurve))
	for i, p := range r.EquityCurve {
		values[i] = p.Value
	}
	return values
}
