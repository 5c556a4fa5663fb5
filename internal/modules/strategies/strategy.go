// Package strategies generates BUY/SELL/HOLD signals from close-price series.
package strategies

import (
	"sort"
	"strings"

	"github.com/raksha-rane/stratify/internal/apperrors"
)

// Signal is a per-bar trading instruction
type Signal string

const (
	SignalBuy  Signal = "BUY"
	SignalSell Signal = "SELL"
	SignalHold Signal = "HOLD"
	// SignalStopLoss only appears in trade ledgers, never as strategy output
	SignalStopLoss Signal = "STOP_LOSS"
)

// Strategy turns a close series into one signal per bar.
// Implementations are deterministic and never mutate closes.
type Strategy interface {
	Name() string
	Signals(closes []float64) []Signal
	Params() map[string]float64
}

// Names of the registered strategies
const (
	NameSMA           = "sma"
	NameMeanReversion = "mean_reversion"
	NameMomentum      = "momentum"
)

// Parameter limits shared by every strategy
const (
	MinWindow    = 1
	MaxWindow    = 200
	MinStdDev    = 0.1
	MaxStdDev    = 5.0
	MinThreshold = 0.0
	MaxThreshold = 1.0
)

var aliases = map[string]string{
	"sma_crossover": NameSMA,
}

// ParamSpec documents one tunable parameter for the catalogue
type ParamSpec struct {
	Name        string   `json:"name"`
	Default     float64  `json:"default"`
	Min         float64  `json:"min"`
	Max         float64  `json:"max"`
	Integer     bool     `json:"integer"`
	Aliases     []string `json:"aliases,omitempty"`
	Description string   `json:"description"`
}

// Info describes a strategy for GET /api/strategies
type Info struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  []ParamSpec `json:"parameters"`
}

var catalogue = map[string]Info{
	NameSMA: {
		Name:        NameSMA,
		Description: "Simple moving average crossover: long while the short SMA is above the long SMA",
		Parameters: []ParamSpec{
			{Name: "short_window", Default: 20, Min: MinWindow, Max: MaxWindow, Integer: true, Description: "Short SMA period"},
			{Name: "long_window", Default: 50, Min: MinWindow, Max: MaxWindow, Integer: true, Description: "Long SMA period, must exceed short_window"},
		},
	},
	NameMeanReversion: {
		Name:        NameMeanReversion,
		Description: "Buy below the lower band and sell above the upper band of a rolling mean ± k standard deviations",
		Parameters: []ParamSpec{
			{Name: "window", Default: 20, Min: MinWindow, Max: MaxWindow, Integer: true, Description: "Rolling window"},
			{Name: "num_std", Default: 2, Min: MinStdDev, Max: MaxStdDev, Aliases: []string{"std_dev"}, Description: "Band width in standard deviations"},
		},
	},
	NameMomentum: {
		Name:        NameMomentum,
		Description: "Buy when the rolling sum of daily returns exceeds the threshold, sell when it falls below its negative",
		Parameters: []ParamSpec{
			{Name: "lookback", Default: 10, Min: MinWindow, Max: MaxWindow, Integer: true, Aliases: []string{"window"}, Description: "Number of daily returns summed"},
			{Name: "threshold", Default: 0, Min: MinThreshold, Max: MaxThreshold, Description: "Dead band around zero momentum"},
		},
	},
}

// Catalogue lists every strategy sorted by name
func Catalogue() []Info {
	out := make([]Info, 0, len(catalogue))
	for _, info := range catalogue {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// CanonicalName resolves aliases and case. Returns false for unknown strategies.
func CanonicalName(name string) (string, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if canonical, ok := aliases[name]; ok {
		name = canonical
	}
	_, ok := catalogue[name]
	return name, ok
}

// New builds a validated strategy by name. Missing parameters take their defaults.
func New(name string, params map[string]float64) (Strategy, error) {
	canonical, ok := CanonicalName(name)
	if !ok {
		return nil, apperrors.Validation("unknown strategy %q", name).
			WithDetail("available", []string{NameSMA, NameMeanReversion, NameMomentum})
	}

	resolved := resolveParams(canonical, params)
	if err := Validate(canonical, resolved); err != nil {
		return nil, err
	}

	switch canonical {
	case NameSMA:
		return NewSMACrossover(int(resolved["short_window"]), int(resolved["long_window"])), nil
	case NameMeanReversion:
		return NewMeanReversion(int(resolved["window"]), resolved["num_std"]), nil
	default:
		return NewMomentum(int(resolved["lookback"]), resolved["threshold"]), nil
	}
}

// resolveParams maps aliases onto canonical names and fills defaults
func resolveParams(name string, params map[string]float64) map[string]float64 {
	resolved := make(map[string]float64)
	for _, spec := range catalogue[name].Parameters {
		value, found := params[spec.Name]
		for _, alias := range spec.Aliases {
			if found {
				break
			}
			value, found = params[alias]
		}
		if !found {
			value = spec.Default
		}
		resolved[spec.Name] = value
	}
	return resolved
}

// Validate checks resolved parameters against the catalogue limits
func Validate(name string, params map[string]float64) error {
	info, ok := catalogue[name]
	if !ok {
		return apperrors.Validation("unknown strategy %q", name)
	}

	for _, spec := range info.Parameters {
		v := params[spec.Name]
		if v < spec.Min || v > spec.Max {
			return apperrors.Validation("%s must be between %g and %g", spec.Name, spec.Min, spec.Max).
				WithDetail("parameter", spec.Name).
				WithDetail("value", v)
		}
		if spec.Integer && v != float64(int(v)) {
			return apperrors.Validation("%s must be a whole number", spec.Name).
				WithDetail("parameter", spec.Name).
				WithDetail("value", v)
		}
	}

	if name == NameSMA && params["short_window"] >= params["long_window"] {
		return apperrors.Validation("short_window must be less than long_window")
	}

	return nil
}

func holdAll(n int) []Signal {
	out := make([]Signal, n)
	for i := range out {
		out[i] = SignalHold
	}
	return out
}
