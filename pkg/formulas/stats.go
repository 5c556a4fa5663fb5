// Package formulas holds the performance statistics shared by the backtest engine and data validation.
package formulas

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// TradingDaysPerYear is the annualization factor for daily bars
const TradingDaysPerYear = 252

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// StdDev calculates the sample standard deviation (n-1 denominator)
func StdDev(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	return stat.StdDev(data, nil)
}

// PopStdDev calculates the population standard deviation (n denominator)
func PopStdDev(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.PopStdDev(data, nil)
}

// MinMax returns the smallest and largest values. Both are zero for empty input.
func MinMax(data []float64) (float64, float64) {
	if len(data) == 0 {
		return 0, 0
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range data {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}

// ZScores standardizes values against their sample mean and standard deviation.
// Returns nil when the deviation is zero.
func ZScores(data []float64) []float64 {
	mean, std := stat.MeanStdDev(data, nil)
	if len(data) < 2 || std == 0 || math.IsNaN(std) {
		return nil
	}
	out := make([]float64, len(data))
	for i, v := range data {
		out[i] = stat.StdScore(v, mean, std)
	}
	return out
}

// RollingStdDev returns the sample standard deviation of each trailing window.
// Entries before the first full window are NaN.
func RollingStdDev(data []float64, window int) []float64 {
	out := make([]float64, len(data))
	for i := range out {
		if window < 2 || i+1 < window {
			out[i] = math.NaN()
			continue
		}
		out[i] = stat.StdDev(data[i+1-window:i+1], nil)
	}
	return out
}
