package formulas

// CalculateReturns converts a value series to simple period returns.
// Returns[i] = (Values[i+1] - Values[i]) / Values[i]; a zero base yields a zero return.
func CalculateReturns(values []float64) []float64 {
	if len(values) < 2 {
		return []float64{}
	}

	returns := make([]float64, len(values)-1)
	for i := 1; i < len(values); i++ {
		if values[i-1] != 0 {
			returns[i-1] = (values[i] - values[i-1]) / values[i-1]
		}
	}

	return returns
}

// TotalReturnPct is the percentage change from initial to final
func TotalReturnPct(initial, final float64) float64 {
	if initial == 0 {
		return 0
	}
	return (final - initial) / initial * 100
}
