package risk

// Side is the direction of a trade
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// TransactionCosts is the cost breakdown of a single fill.
// EffectivePrice already includes slippage, so Slippage is informational
// and must not be charged again on top of EffectivePrice.
type TransactionCosts struct {
	Commission     float64 `json:"commission"`
	Slippage       float64 `json:"slippage"`
	TotalCost      float64 `json:"total_cost"`
	EffectivePrice float64 `json:"effective_price"`
}

// ApplyTransactionCosts models commission and adverse slippage for a fill.
// Buys pay price × (1 + slippage), sells receive price × (1 - slippage).
func (m *Manager) ApplyTransactionCosts(price float64, quantity int, side Side) TransactionCosts {
	if quantity == 0 {
		return TransactionCosts{EffectivePrice: price}
	}

	tradeValue := price * float64(quantity)
	commission := tradeValue * m.settings.Commission
	slippage := tradeValue * m.settings.Slippage

	effective := price * (1 - m.settings.Slippage)
	if side == SideBuy {
		effective = price * (1 + m.settings.Slippage)
	}

	return TransactionCosts{
		Commission:     commission,
		Slippage:       slippage,
		TotalCost:      commission + slippage,
		EffectivePrice: effective,
	}
}

// BuyOutlay is the cash leaving the account for a buy fill
func (c TransactionCosts) BuyOutlay(quantity int) float64 {
	return float64(quantity)*c.EffectivePrice + c.Commission
}

// SellProceeds is the cash entering the account for a sell fill
func (c TransactionCosts) SellProceeds(quantity int) float64 {
	return float64(quantity)*c.EffectivePrice - c.Commission
}
