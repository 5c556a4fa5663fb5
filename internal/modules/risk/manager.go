// Package risk provides position sizing, transaction cost modelling and trade
// validation for the backtest engine.
package risk

import (
	"fmt"

	"github.com/rs/zerolog"
)

// Settings are the risk limits applied to every trade
type Settings struct {
	Commission       float64 `json:"commission"`
	Slippage         float64 `json:"slippage"`
	MaxPositionPct   float64 `json:"max_position_pct"`
	MaxRiskPerTrade  float64 `json:"max_risk_per_trade"`
	MinPositionValue float64 `json:"min_position_value"`
	MaxLeverage      float64 `json:"max_leverage"`
}

// DefaultSettings returns the standalone defaults: 0.1% commission, 0.05% slippage,
// 20% max position, 2% risk per trade, $100 minimum and no leverage.
func DefaultSettings() Settings {
	return Settings{
		Commission:       0.001,
		Slippage:         0.0005,
		MaxPositionPct:   0.2,
		MaxRiskPerTrade:  0.02,
		MinPositionValue: 100,
		MaxLeverage:      1,
	}
}

// KellyInputs carries historical round-trip performance for Kelly sizing
type KellyInputs struct {
	WinRate float64
	AvgWin  float64
	AvgLoss float64
}

// Manager applies Settings to sizing and validation decisions
type Manager struct {
	settings Settings
	log      zerolog.Logger
}

// NewManager creates a risk manager
func NewManager(settings Settings, log zerolog.Logger) *Manager {
	return &Manager{
		settings: settings,
		log:      log.With().Str("component", "risk_manager").Logger(),
	}
}

// Settings returns the active limits
func (m *Manager) Settings() Settings {
	return m.settings
}

// CalculatePositionSize returns whole shares to buy.
//
// Position value = min(capital × max_position_pct, capital × max_risk_per_trade / stop_loss_pct).
// When kelly is non-nil, half the Kelly fraction (clamped to [0, max_position_pct])
// further caps the value at capital × fraction. Values below min_position_value size to 0.
func (m *Manager) CalculatePositionSize(capital, price, stopLossPct float64, kelly *KellyInputs) int {
	if capital <= 0 || price <= 0 || stopLossPct <= 0 {
		m.log.Warn().
			Float64("capital", capital).
			Float64("price", price).
			Float64("stop_loss_pct", stopLossPct).
			Msg("Invalid inputs for position sizing")
		return 0
	}

	positionValue := min(capital*m.settings.MaxPositionPct, capital*m.settings.MaxRiskPerTrade/stopLossPct)

	if kelly != nil {
		fraction := m.KellyFraction(*kelly)
		positionValue = min(positionValue, capital*fraction)
		m.log.Debug().
			Float64("kelly_fraction", fraction).
			Float64("win_rate", kelly.WinRate).
			Msg("Kelly position sizing")
	}

	if positionValue < m.settings.MinPositionValue {
		m.log.Debug().
			Float64("position_value", positionValue).
			Float64("min_position_value", m.settings.MinPositionValue).
			Msg("Position value below minimum")
		return 0
	}

	return int(positionValue / price)
}

// KellyFraction is half the Kelly fraction clamped to [0, max_position_pct].
// A non-positive edge yields 0.
func (m *Manager) KellyFraction(k KellyInputs) float64 {
	if k.AvgLoss == 0 || k.AvgWin == 0 {
		return 0
	}
	b := k.AvgWin / k.AvgLoss
	if b < 0 {
		b = -b
	}
	f := (k.WinRate*b - (1 - k.WinRate)) / b
	return max(0, min(f*0.5, m.settings.MaxPositionPct))
}

// ValidateTrade checks a proposed trade against the limits. Checks run in order:
// quantity, price, side, minimum value, cash including costs, shares held,
// maximum position size and leverage. The returned reason is empty when valid.
func (m *Manager) ValidateTrade(p *Portfolio, ticker string, quantity int, price float64, side Side) (bool, string) {
	if quantity <= 0 {
		return false, "Quantity must be positive"
	}
	if price <= 0 {
		return false, "Price must be positive"
	}
	if side != SideBuy && side != SideSell {
		return false, fmt.Sprintf("Invalid side: %s", side)
	}

	tradeValue := float64(quantity) * price
	if tradeValue < m.settings.MinPositionValue {
		return false, fmt.Sprintf("Trade value $%.2f below minimum $%.2f", tradeValue, m.settings.MinPositionValue)
	}

	if side == SideBuy {
		costs := m.ApplyTransactionCosts(price, quantity, side)
		required := tradeValue + costs.TotalCost
		if required > p.Cash {
			return false, fmt.Sprintf("Insufficient cash: need $%.2f, have $%.2f", required, p.Cash)
		}
	}

	if side == SideSell {
		held := p.Positions[ticker]
		if quantity > held {
			return false, fmt.Sprintf("Insufficient shares: trying to sell %d, have %d", quantity, held)
		}
		return true, ""
	}

	total := p.TotalValue()
	if total > 0 {
		newPct := (p.PositionValues[ticker] + tradeValue) / total
		if newPct > m.settings.MaxPositionPct {
			return false, fmt.Sprintf("Position would exceed max size: %.1f%% > %.1f%%", newPct*100, m.settings.MaxPositionPct*100)
		}

		leverage := (p.InvestedValue() + tradeValue) / total
		if leverage > m.settings.MaxLeverage {
			return false, fmt.Sprintf("Would exceed max leverage: %.2fx > %.2fx", leverage, m.settings.MaxLeverage)
		}
	}

	return true, ""
}

// StopLossMethod selects how CalculateStopLoss places the stop
type StopLossMethod struct {
	FixedPct      *float64
	ATR           *float64
	ATRMultiplier float64 // defaults to 2
}

// CalculateStopLoss returns the stop price for an entry. A fixed percentage
// wins over ATR; with neither the stop sits 2% away from entry.
func (m *Manager) CalculateStopLoss(entry float64, side Side, method StopLossMethod) float64 {
	long := side == SideBuy

	switch {
	case method.FixedPct != nil:
		if long {
			return entry * (1 - *method.FixedPct)
		}
		return entry * (1 + *method.FixedPct)
	case method.ATR != nil:
		mult := method.ATRMultiplier
		if mult == 0 {
			mult = 2
		}
		if long {
			return entry - *method.ATR*mult
		}
		return entry + *method.ATR*mult
	}

	if long {
		return entry * 0.98
	}
	return entry * 1.02
}

// CalculateRiskReward returns reward / risk. Zero when risk is not positive.
func (m *Manager) CalculateRiskReward(entry, stop, target float64, side Side) float64 {
	risk := entry - stop
	reward := target - entry
	if side == SideSell {
		risk = stop - entry
		reward = entry - target
	}
	if risk <= 0 {
		m.log.Warn().Float64("entry_price", entry).Float64("stop_loss", stop).Msg("Invalid risk calculation")
		return 0
	}
	return reward / risk
}

// MaxSharesAffordable is the largest whole share count whose outlay including costs fits in cash
func (m *Manager) MaxSharesAffordable(cash, price float64) int {
	if cash <= 0 || price <= 0 {
		return 0
	}
	perShare := price * (1 + m.settings.Slippage + m.settings.Commission)
	return max(0, int(cash/perShare))
}
