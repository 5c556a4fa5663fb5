package testing

import (
	"math"
	"time"
)

// FixtureBar is a plain OHLCV row used to seed module-specific bar types in tests
type FixtureBar struct {
	Date     string
	Open     float64
	High     float64
	Low      float64
	Close    float64
	AdjClose float64
	Volume   int64
}

// TradingDates returns n consecutive weekdays starting at start (YYYY-MM-DD)
func TradingDates(start string, n int) []string {
	d, err := time.Parse("2006-01-02", start)
	if err != nil {
		panic(err)
	}

	dates := make([]string, 0, n)
	for len(dates) < n {
		if d.Weekday() != time.Saturday && d.Weekday() != time.Sunday {
			dates = append(dates, d.Format("2006-01-02"))
		}
		d = d.AddDate(0, 0, 1)
	}
	return dates
}

// SineCloses returns an oscillating close series around base
func SineCloses(n int, base, amplitude float64, period int) []float64 {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = base + amplitude*math.Sin(2*math.Pi*float64(i)/float64(period))
	}
	return closes
}

// TrendCloses returns a geometric series compounding dailyPct each bar
func TrendCloses(n int, start, dailyPct float64) []float64 {
	closes := make([]float64, n)
	price := start
	for i := range closes {
		closes[i] = price
		price *= 1 + dailyPct
	}
	return closes
}

// MakeBars builds consistent OHLCV rows around each close
func MakeBars(dates []string, closes []float64) []FixtureBar {
	bars := make([]FixtureBar, len(closes))
	for i, c := range closes {
		open := c
		if i > 0 {
			open = closes[i-1]
		}
		bars[i] = FixtureBar{
			Date:     dates[i],
			Open:     open,
			High:     math.Max(open, c) * 1.01,
			Low:      math.Min(open, c) * 0.99,
			Close:    c,
			AdjClose: c,
			Volume:   1_000_000 + int64(i)*1000,
		}
	}
	return bars
}
