package strategies

import (
	"github.com/markcheno/go-talib"
)

// SMACrossover is long while the short moving average is above the long one
type SMACrossover struct {
	short int
	long  int
}

// NewSMACrossover creates an SMA crossover strategy. Callers should go through New for validation.
func NewSMACrossover(short, long int) *SMACrossover {
	return &SMACrossover{short: short, long: long}
}

func (s *SMACrossover) Name() string { return NameSMA }

func (s *SMACrossover) Params() map[string]float64 {
	return map[string]float64{
		"short_window": float64(s.short),
		"long_window":  float64(s.long),
	}
}

// Signals emits BUY when short > long, SELL when short < long and HOLD otherwise.
// Bars before the long window fills are HOLD.
func (s *SMACrossover) Signals(closes []float64) []Signal {
	signals := holdAll(len(closes))
	if len(closes) < s.long || len(closes) < s.short {
		return signals
	}

	shortMA := talib.Sma(closes, s.short)
	longMA := talib.Sma(closes, s.long)

	for i := s.long - 1; i < len(closes); i++ {
		switch {
		case shortMA[i] > longMA[i]:
			signals[i] = SignalBuy
		case shortMA[i] < longMA[i]:
			signals[i] = SignalSell
		}
	}
	return signals
}
