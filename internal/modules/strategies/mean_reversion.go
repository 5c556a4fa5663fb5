package strategies

import (
	"math"

	"github.com/markcheno/go-talib"

	"github.com/raksha-rane/stratify/pkg/formulas"
)

// MeanReversion trades closes that stray outside rolling standard-deviation bands
type MeanReversion struct {
	window int
	numStd float64
}

// NewMeanReversion creates a band strategy
func NewMeanReversion(window int, numStd float64) *MeanReversion {
	return &MeanReversion{window: window, numStd: numStd}
}

func (s *MeanReversion) Name() string { return NameMeanReversion }

func (s *MeanReversion) Params() map[string]float64 {
	return map[string]float64{
		"window":  float64(s.window),
		"num_std": s.numStd,
	}
}

// Bands returns the middle, upper and lower bands. The deviation is the sample
// standard deviation, so a window of 1 never produces bands (NaN).
func (s *MeanReversion) Bands(closes []float64) (middle, upper, lower []float64) {
	n := len(closes)
	middle = make([]float64, n)
	upper = make([]float64, n)
	lower = make([]float64, n)
	for i := range middle {
		middle[i], upper[i], lower[i] = math.NaN(), math.NaN(), math.NaN()
	}
	if n < s.window {
		return
	}

	sma := talib.Sma(closes, s.window)
	std := formulas.RollingStdDev(closes, s.window)

	for i := s.window - 1; i < n; i++ {
		middle[i] = sma[i]
		upper[i] = sma[i] + s.numStd*std[i]
		lower[i] = sma[i] - s.numStd*std[i]
	}
	return
}

// Signals emits BUY below the lower band, SELL above the upper band, otherwise HOLD
func (s *MeanReversion) Signals(closes []float64) []Signal {
	signals := holdAll(len(closes))
	_, upper, lower := s.Bands(closes)

	for i, c := range closes {
		switch {
		case c < lower[i]:
			signals[i] = SignalBuy
		case c > upper[i]:
			signals[i] = SignalSell
		}
	}
	return signals
}
