package formulas

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculateReturns(t *testing.T) {
	assert.Empty(t, CalculateReturns(nil))
	assert.Empty(t, CalculateReturns([]float64{100}))

	returns := CalculateReturns([]float64{100, 110, 99, 0, 50})
	assert.InDeltaSlice(t, []float64{0.10, -0.10, -1, 0}, returns, 1e-9)
}

func TestTotalReturnPct(t *testing.T) {
	tests := []struct {
		name     string
		initial  float64
		final    float64
		expected float64
	}{
		{"gain", 10000, 12500, 25},
		{"loss", 10000, 9000, -10},
		{"flat", 10000, 10000, 0},
		{"zero base", 0, 100, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, TotalReturnPct(tt.initial, tt.final), 1e-9)
		})
	}
}

func TestAnnualizedSharpe(t *testing.T) {
	t.Run("insufficient data", func(t *testing.T) {
		assert.Equal(t, 0.0, AnnualizedSharpe(nil, 252))
		assert.Equal(t, 0.0, AnnualizedSharpe([]float64{0.01}, 252))
	})

	t.Run("zero dispersion", func(t *testing.T) {
		assert.Equal(t, 0.0, AnnualizedSharpe([]float64{0.01, 0.01, 0.01}, 252))
	})

	t.Run("population deviation", func(t *testing.T) {
		// mean 0.01, population std 0.01
		returns := []float64{0.0, 0.02, 0.0, 0.02}
		assert.InDelta(t, math.Sqrt(252), AnnualizedSharpe(returns, 252), 1e-9)
	})

	t.Run("negative mean", func(t *testing.T) {
		assert.Less(t, AnnualizedSharpe([]float64{-0.01, -0.03, 0.0}, 252), 0.0)
	})
}

func TestMaxDrawdownPct(t *testing.T) {
	tests := []struct {
		name     string
		equity   []float64
		expected float64
	}{
		{"empty", nil, 0},
		{"single point", []float64{100}, 0},
		{"monotonic rise", []float64{100, 101, 102}, 0},
		{"single dip", []float64{100, 80, 120}, -20},
		{"deepest of two", []float64{100, 90, 150, 105, 160}, -30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MaxDrawdownPct(tt.equity)
			assert.InDelta(t, tt.expected, got, 1e-9)
			assert.LessOrEqual(t, got, 0.0)
		})
	}
}

func TestWinRatePct(t *testing.T) {
	assert.Equal(t, 0.0, WinRatePct(nil))
	assert.InDelta(t, 50.0, WinRatePct([]float64{10, -5, 0, 3}), 1e-9)
	assert.InDelta(t, 100.0, WinRatePct([]float64{1}), 1e-9)
}

func TestSummarizeTradesAndKelly(t *testing.T) {
	s := SummarizeTrades([]float64{100, 100, 100, -50, -50, 0})

	assert.Equal(t, 6, s.Completed)
	assert.Equal(t, 3, s.Wins)
	assert.Equal(t, 2, s.Losses)
	assert.InDelta(t, 0.5, s.WinRate, 1e-9)
	assert.InDelta(t, 100, s.AvgWin, 1e-9)
	assert.InDelta(t, 50, s.AvgLoss, 1e-9)

	// f = 0.5 - 0.5/2
	assert.InDelta(t, 0.25, KellyFraction(s), 1e-9)

	assert.Equal(t, 0.0, KellyFraction(SummarizeTrades([]float64{-1, -2})))
	assert.Equal(t, 0.0, KellyFraction(TradeStats{}))
}

func TestStatsHelpers(t *testing.T) {
	assert.Equal(t, 0.0, StdDev([]float64{5}))
	assert.InDelta(t, math.Sqrt(2.5), StdDev([]float64{1, 2, 3, 4, 5}), 1e-9)
	assert.InDelta(t, math.Sqrt(2), PopStdDev([]float64{1, 2, 3, 4, 5}), 1e-9)

	lo, hi := MinMax([]float64{3, -1, 7})
	assert.Equal(t, -1.0, lo)
	assert.Equal(t, 7.0, hi)

	assert.Nil(t, ZScores([]float64{2, 2, 2}))
	z := ZScores([]float64{1, 2, 3})
	assert.InDeltaSlice(t, []float64{-1, 0, 1}, z, 1e-9)

	rolling := RollingStdDev([]float64{1, 2, 3, 4}, 3)
	assert.True(t, math.IsNaN(rolling[0]))
	assert.True(t, math.IsNaN(rolling[1]))
	assert.InDelta(t, 1.0, rolling[2], 1e-9)
	assert.InDelta(t, 1.0, rolling[3], 1e-9)
}
