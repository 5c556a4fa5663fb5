package formulas

// TradeStats summarizes completed round trips
type TradeStats struct {
	Completed int     `json:"completed_trades"`
	Wins      int     `json:"wins"`
	Losses    int     `json:"losses"`
	WinRate   float64 `json:"win_rate"` // fraction in [0, 1]
	AvgWin    float64 `json:"avg_win"`
	AvgLoss   float64 `json:"avg_loss"` // positive magnitude
}

// WinRatePct is the percentage of round trips with positive pnl
func WinRatePct(pnls []float64) float64 {
	if len(pnls) == 0 {
		return 0
	}
	wins := 0
	for _, p := range pnls {
		if p > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(pnls)) * 100
}

// SummarizeTrades computes win/loss statistics from round-trip pnls.
// Break-even trades count toward Completed but neither Wins nor Losses.
func SummarizeTrades(pnls []float64) TradeStats {
	s := TradeStats{Completed: len(pnls)}
	if len(pnls) == 0 {
		return s
	}

	var winSum, lossSum float64
	for _, p := range pnls {
		switch {
		case p > 0:
			s.Wins++
			winSum += p
		case p < 0:
			s.Losses++
			lossSum += -p
		}
	}

	s.WinRate = float64(s.Wins) / float64(s.Completed)
	if s.Wins > 0 {
		s.AvgWin = winSum / float64(s.Wins)
	}
	if s.Losses > 0 {
		s.AvgLoss = lossSum / float64(s.Losses)
	}
	return s
}

// KellyFraction returns the full Kelly fraction f = p - (1-p)/b where b = avgWin/avgLoss.
// Returns 0 when the edge is non-positive or there are no losses to size against.
func KellyFraction(s TradeStats) float64 {
	if s.AvgLoss <= 0 || s.AvgWin <= 0 {
		return 0
	}
	b := s.AvgWin / s.AvgLoss
	f := s.WinRate - (1-s.WinRate)/b
	if f < 0 {
		return 0
	}
	return f
}
