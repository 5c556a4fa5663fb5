package formulas

// MaxDrawdownPct returns the deepest peak-to-trough decline of an equity curve
// as a non-positive percentage (-25 means a 25% loss from the running peak).
func MaxDrawdownPct(equity []float64) float64 {
	if len(equity) < 2 {
		return 0
	}

	maxDrawdown := 0.0
	peak := equity[0]

	for _, value := range equity {
		if value > peak {
			peak = value
		}
		if peak > 0 {
			drawdown := (value - peak) / peak * 100
			if drawdown < maxDrawdown {
				maxDrawdown = drawdown
			}
		}
	}

	return maxDrawdown
}
