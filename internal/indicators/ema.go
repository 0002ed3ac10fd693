package indicators

import (
	"github.com/tradeloop/fx-confluence-bot/pkg/types"
)

// EMA represents the Exponential Moving Average technical indicator
type EMA struct {
	period int
	alpha  float64
}

// NewEMA creates a new EMA indicator
func NewEMA(period int) *EMA {
	return &EMA{
		period: period,
		alpha:  2.0 / float64(period+1), // Standard EMA alpha calculation
	}
}

// Calculate computes the EMA over the close prices. The first close seeds
// the average; with no data it returns 0.
func (e *EMA) Calculate(data []types.PriceBar) float64 {
	if len(data) == 0 {
		return 0
	}

	ema := data[0].Close
	for i := 1; i < len(data); i++ {
		ema = (data[i].Close * e.alpha) + (ema * (1 - e.alpha))
	}
	return ema
}

// Series computes the EMA at every bar. Used where a history of smoothed
// values is needed, such as the MACD signal line.
func (e *EMA) Series(values []float64) []float64 {
	if len(values) == 0 {
		return nil
	}

	out := make([]float64, len(values))
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = (values[i] * e.alpha) + (out[i-1] * (1 - e.alpha))
	}
	return out
}

// GetName returns the indicator name
func (e *EMA) GetName() string {
	return "EMA"
}

// GetRequiredPeriods returns the minimum number of periods needed
func (e *EMA) GetRequiredPeriods() int {
	return e.period
}
