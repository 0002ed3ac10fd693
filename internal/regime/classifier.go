package regime

import (
	"fmt"

	"github.com/tradeloop/fx-confluence-bot/internal/indicators"
	"github.com/tradeloop/fx-confluence-bot/pkg/types"
)

// Regime is a coarse classification of current market behavior used to
// adapt signal thresholds. It is recomputed every evaluation and has no
// persistent identity.
type Regime int

const (
	RegimeUnknown Regime = iota
	RegimeTrending
	RegimeRanging
	RegimeVolatile
)

func (r Regime) String() string {
	switch r {
	case RegimeTrending:
		return "TRENDING"
	case RegimeRanging:
		return "RANGING"
	case RegimeVolatile:
		return "VOLATILE"
	default:
		return "UNKNOWN"
	}
}

// Config holds the classification thresholds.
type Config struct {
	ADXPeriod        int     `json:"adx_period" yaml:"adx_period"`
	ADXTrendMin      float64 `json:"adx_trend_min" yaml:"adx_trend_min"`
	ATRPeriod        int     `json:"atr_period" yaml:"atr_period"`
	ATRBaselineBars  int     `json:"atr_baseline_bars" yaml:"atr_baseline_bars"`
	ATRVolatileRatio float64 `json:"atr_volatile_ratio" yaml:"atr_volatile_ratio"`
	RangeWindow      int     `json:"range_window" yaml:"range_window"`
	RangeMaxPct      float64 `json:"range_max_pct" yaml:"range_max_pct"`
	MinBars          int     `json:"min_bars" yaml:"min_bars"`
}

// NewDefaultConfig creates the default classification thresholds
func NewDefaultConfig() Config {
	return Config{
		ADXPeriod:        14,
		ADXTrendMin:      18,
		ATRPeriod:        14,
		ATRBaselineBars:  40,
		ATRVolatileRatio: 1.5,
		RangeWindow:      50,
		RangeMaxPct:      2.5,
		MinBars:          50,
	}
}

// Validate validates the classifier configuration
func (c Config) Validate() error {
	if c.ADXPeriod < 2 {
		return fmt.Errorf("adx period must be at least 2, got %d", c.ADXPeriod)
	}
	if c.ADXTrendMin <= 0 || c.ADXTrendMin >= 100 {
		return fmt.Errorf("adx trend minimum must be in (0, 100), got %.2f", c.ADXTrendMin)
	}
	if c.ATRPeriod < 2 {
		return fmt.Errorf("atr period must be at least 2, got %d", c.ATRPeriod)
	}
	if c.ATRBaselineBars <= c.ATRPeriod {
		return fmt.Errorf("atr baseline bars (%d) must exceed atr period (%d)", c.ATRBaselineBars, c.ATRPeriod)
	}
	if c.ATRVolatileRatio <= 1.0 {
		return fmt.Errorf("atr volatile ratio must be above 1.0, got %.2f", c.ATRVolatileRatio)
	}
	if c.RangeWindow < c.MinBars {
		return fmt.Errorf("range window (%d) must be at least min bars (%d)", c.RangeWindow, c.MinBars)
	}
	if c.RangeMaxPct <= 0 {
		return fmt.Errorf("range max pct must be positive, got %.2f", c.RangeMaxPct)
	}
	return nil
}

// Classifier labels the current market regime for one instrument.
type Classifier struct {
	config Config
	adx    *indicators.ADX
	atr    *indicators.ATR
}

// NewClassifier creates a new regime classifier
func NewClassifier(config Config) *Classifier {
	return &Classifier{
		config: config,
		adx:    indicators.NewADX(config.ADXPeriod),
		atr:    indicators.NewATR(config.ATRPeriod),
	}
}

// Classify labels the market from the bar history. The checks form a
// priority-ordered decision tree, not independent votes: a volatility
// spike overrides a low ADX reading. History shorter than MinBars yields
// RegimeUnknown, never an error.
func (c *Classifier) Classify(bars []types.PriceBar) Regime {
	if len(bars) < c.config.MinBars {
		return RegimeUnknown
	}

	adxValue := c.adx.Calculate(bars)
	if adxValue >= c.config.ADXTrendMin {
		return RegimeTrending
	}

	atrNow := c.atr.Calculate(bars)
	atrBaseline := c.atr.CalculateWindow(bars, c.config.ATRBaselineBars)
	if atrBaseline > 0 && atrNow/atrBaseline > c.config.ATRVolatileRatio {
		return RegimeVolatile
	}

	if c.rangePct(bars) < c.config.RangeMaxPct {
		return RegimeRanging
	}

	return RegimeUnknown
}

// rangePct is the high-low range of the trailing window as a percentage
// of the mean close price.
func (c *Classifier) rangePct(bars []types.PriceBar) float64 {
	window := bars[len(bars)-c.config.RangeWindow:]

	high := window[0].High
	low := window[0].Low
	sum := 0.0
	for _, bar := range window {
		if bar.High > high {
			high = bar.High
		}
		if bar.Low < low {
			low = bar.Low
		}
		sum += bar.Close
	}

	mean := sum / float64(len(window))
	if mean == 0 {
		return 0
	}
	return (high - low) / mean * 100
}
