package risk

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func newTestManager() *Manager {
	return NewManager(DefaultSettings(), zerolog.New(nil).Level(zerolog.Disabled))
}

func TestApplyTransactionCosts(t *testing.T) {
	m := newTestManager()

	buy := m.ApplyTransactionCosts(100, 10, SideBuy)
	assert.InDelta(t, 1.0, buy.Commission, 1e-9)
	assert.InDelta(t, 0.5, buy.Slippage, 1e-9)
	assert.InDelta(t, 1.5, buy.TotalCost, 1e-9)
	assert.InDelta(t, 100.05, buy.EffectivePrice, 1e-9)
	assert.InDelta(t, 1001.5, buy.BuyOutlay(10), 1e-9)

	sell := m.ApplyTransactionCosts(100, 10, SideSell)
	assert.InDelta(t, 99.95, sell.EffectivePrice, 1e-9)
	assert.InDelta(t, 998.5, sell.SellProceeds(10), 1e-9)

	zero := m.ApplyTransactionCosts(100, 0, SideBuy)
	assert.Equal(t, TransactionCosts{EffectivePrice: 100}, zero)
}

func TestCalculatePositionSize(t *testing.T) {
	m := newTestManager()

	tests := []struct {
		name     string
		capital  float64
		price    float64
		stopLoss float64
		kelly    *KellyInputs
		expected int
	}{
		// min(10000*0.2, 10000*0.02/0.05) = 2000
		{"risk based", 10000, 100, 0.05, nil, 20},
		// min(2000, 10000*0.02/0.5=400) = 400
		{"wide stop", 10000, 100, 0.5, nil, 4},
		{"below minimum", 400, 10, 0.05, nil, 0},
		{"invalid capital", 0, 100, 0.05, nil, 0},
		{"invalid price", 10000, 0, 0.05, nil, 0},
		{"invalid stop", 10000, 100, 0, nil, 0},
		// kelly f = (0.6*2 - 0.4)/2 = 0.4, half = 0.2 -> capped at 2000 anyway
		{"kelly at cap", 10000, 100, 0.05, &KellyInputs{WinRate: 0.6, AvgWin: 200, AvgLoss: 100}, 20},
		// kelly f = (0.5*1.5 - 0.5)/1.5 = 0.1667, half = 0.0833 -> 833.33
		{"kelly caps", 10000, 100, 0.05, &KellyInputs{WinRate: 0.5, AvgWin: 150, AvgLoss: 100}, 8},
		{"negative edge", 10000, 100, 0.05, &KellyInputs{WinRate: 0.2, AvgWin: 100, AvgLoss: 100}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, m.CalculatePositionSize(tt.capital, tt.price, tt.stopLoss, tt.kelly))
		})
	}
}

func TestKellyFraction(t *testing.T) {
	m := newTestManager()

	tests := []struct {
		name     string
		kelly    KellyInputs
		expected float64
	}{
		{"positive edge", KellyInputs{WinRate: 0.5, AvgWin: 150, AvgLoss: 100}, (0.75 - 0.5) / 1.5 * 0.5},
		{"clamped to max position", KellyInputs{WinRate: 0.9, AvgWin: 300, AvgLoss: 100}, DefaultSettings().MaxPositionPct},
		{"negative edge", KellyInputs{WinRate: 0.2, AvgWin: 100, AvgLoss: 100}, 0},
		{"no wins", KellyInputs{WinRate: 0, AvgWin: 0, AvgLoss: 100}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, m.KellyFraction(tt.kelly), 1e-12)
		})
	}
}

func TestValidateTrade(t *testing.T) {
	m := newTestManager()

	holding := NewPortfolio(5000)
	holding.Open("AAPL", 10, 100, 1001.5)

	tests := []struct {
		name      string
		portfolio *Portfolio
		quantity  int
		price     float64
		side      Side
		valid     bool
		reason    string
	}{
		{"valid buy", NewPortfolio(10000), 15, 100, SideBuy, true, ""},
		{"zero quantity", NewPortfolio(10000), 0, 100, SideBuy, false, "Quantity must be positive"},
		{"zero price", NewPortfolio(10000), 1, 0, SideBuy, false, "Price must be positive"},
		{"bad side", NewPortfolio(10000), 1, 100, Side("HOLD"), false, "Invalid side"},
		{"below minimum", NewPortfolio(10000), 1, 50, SideBuy, false, "below minimum"},
		{"insufficient cash", NewPortfolio(500), 10, 100, SideBuy, false, "Insufficient cash"},
		{"oversized position", NewPortfolio(10000), 30, 100, SideBuy, false, "exceed max size"},
		{"valid sell", holding, 10, 100, SideSell, true, ""},
		{"oversell", holding, 11, 100, SideSell, false, "Insufficient shares"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, reason := m.ValidateTrade(tt.portfolio, "AAPL", tt.quantity, tt.price, tt.side)
			assert.Equal(t, tt.valid, ok)
			if tt.reason == "" {
				assert.Empty(t, reason)
			} else {
				assert.Contains(t, reason, tt.reason)
			}
		})
	}
}

func TestValidateTrade_Leverage(t *testing.T) {
	settings := DefaultSettings()
	settings.MaxPositionPct = 1
	settings.MaxLeverage = 0.5
	m := NewManager(settings, zerolog.New(nil).Level(zerolog.Disabled))

	ok, reason := m.ValidateTrade(NewPortfolio(10000), "AAPL", 60, 100, SideBuy)
	assert.False(t, ok)
	assert.Contains(t, reason, "max leverage")
}

func TestCalculateStopLoss(t *testing.T) {
	m := newTestManager()
	pct := 0.05
	atr := 3.0

	assert.InDelta(t, 95, m.CalculateStopLoss(100, SideBuy, StopLossMethod{FixedPct: &pct}), 1e-9)
	assert.InDelta(t, 105, m.CalculateStopLoss(100, SideSell, StopLossMethod{FixedPct: &pct}), 1e-9)
	assert.InDelta(t, 94, m.CalculateStopLoss(100, SideBuy, StopLossMethod{ATR: &atr}), 1e-9)
	assert.InDelta(t, 109, m.CalculateStopLoss(100, SideSell, StopLossMethod{ATR: &atr, ATRMultiplier: 3}), 1e-9)
	assert.InDelta(t, 98, m.CalculateStopLoss(100, SideBuy, StopLossMethod{}), 1e-9)
	assert.InDelta(t, 102, m.CalculateStopLoss(100, SideSell, StopLossMethod{}), 1e-9)
}

func TestCalculateRiskReward(t *testing.T) {
	m := newTestManager()

	assert.InDelta(t, 2.0, m.CalculateRiskReward(100, 95, 110, SideBuy), 1e-9)
	assert.InDelta(t, 2.0, m.CalculateRiskReward(100, 105, 90, SideSell), 1e-9)
	assert.Equal(t, 0.0, m.CalculateRiskReward(100, 100, 110, SideBuy))
}

func TestMaxSharesAffordable(t *testing.T) {
	m := newTestManager()

	shares := m.MaxSharesAffordable(10000, 100)
	assert.Equal(t, 99, shares)

	costs := m.ApplyTransactionCosts(100, shares, SideBuy)
	assert.LessOrEqual(t, costs.BuyOutlay(shares), 10000.0)

	assert.Equal(t, 0, m.MaxSharesAffordable(0, 100))
	assert.Equal(t, 0, m.MaxSharesAffordable(100, 0))
}

func TestPortfolio(t *testing.T) {
	p := NewPortfolio(1000)
	p.Open("AAPL", 5, 100, 501)
	assert.InDelta(t, 499, p.Cash, 1e-9)
	assert.InDelta(t, 999, p.TotalValue(), 1e-9)

	p.Mark(110)
	assert.InDelta(t, 550, p.InvestedValue(), 1e-9)

	shares, ok := p.Holding("AAPL")
	assert.True(t, ok)
	assert.Equal(t, 5, shares)

	p.Close("AAPL", 548)
	_, ok = p.Holding("AAPL")
	assert.False(t, ok)
	assert.InDelta(t, 1047, p.TotalValue(), 1e-9)
}
