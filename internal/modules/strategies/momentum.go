package strategies

import (
	"github.com/markcheno/go-talib"

	"github.com/raksha-rane/stratify/pkg/formulas"
)

// Momentum follows the sign of the summed recent daily returns
type Momentum struct {
	lookback  int
	threshold float64
}

// NewMomentum creates a momentum strategy
func NewMomentum(lookback int, threshold float64) *Momentum {
	return &Momentum{lookback: lookback, threshold: threshold}
}

func (s *Momentum) Name() string { return NameMomentum }

func (s *Momentum) Params() map[string]float64 {
	return map[string]float64{
		"lookback":  float64(s.lookback),
		"threshold": s.threshold,
	}
}

// Values returns the rolling sum of the last lookback returns aligned to closes.
// The second result is false for bars without a full window.
func (s *Momentum) Values(closes []float64) ([]float64, []bool) {
	values := make([]float64, len(closes))
	ready := make([]bool, len(closes))

	returns := formulas.CalculateReturns(closes)
	if len(returns) < s.lookback {
		return values, ready
	}

	// returns[j] belongs to bar j+1
	sums := talib.Sum(returns, s.lookback)
	for j := s.lookback - 1; j < len(returns); j++ {
		values[j+1] = sums[j]
		ready[j+1] = true
	}
	return values, ready
}

// Signals emits BUY above +threshold and SELL below -threshold
func (s *Momentum) Signals(closes []float64) []Signal {
	signals := holdAll(len(closes))
	values, ready := s.Values(closes)

	for i, v := range values {
		if !ready[i] {
			continue
		}
		switch {
		case v > s.threshold:
			signals[i] = SignalBuy
		case v < -s.threshold:
			signals[i] = SignalSell
		}
	}
	return signals
}
