package formulas

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// AnnualizedSharpe calculates the Sharpe ratio of periodic returns with a zero risk-free rate.
//
//	Sharpe = mean(returns) / popstd(returns) × sqrt(periodsPerYear)
//
// Returns 0 with fewer than two returns or when the returns have no dispersion.
func AnnualizedSharpe(returns []float64, periodsPerYear int) float64 {
	if len(returns) < 2 {
		return 0
	}

	mean, std := stat.PopMeanStdDev(returns, nil)
	if std == 0 || math.IsNaN(std) {
		return 0
	}

	return mean / std * math.Sqrt(float64(periodsPerYear))
}

// SharpeFromEquity is a convenience wrapper for daily equity curves
func SharpeFromEquity(equity []float64) float64 {
	return AnnualizedSharpe(CalculateReturns(equity), TradingDaysPerYear)
}
