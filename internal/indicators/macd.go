package indicators

import (
	"github.com/tradeloop/fx-confluence-bot/pkg/types"
)

// MACD computes the Moving Average Convergence Divergence oscillator
type MACD struct {
	fastPeriod   int
	slowPeriod   int
	signalPeriod int
}

// NewMACD creates a new MACD instance with specified fast, slow, and signal periods
func NewMACD(fast, slow, signal int) *MACD {
	return &MACD{
		fastPeriod:   fast,
		slowPeriod:   slow,
		signalPeriod: signal,
	}
}

// Calculate computes the MACD line, signal line, and histogram over the
// close prices. Short history yields zeros, never an error.
func (m *MACD) Calculate(data []types.PriceBar) (macdLine, signalLine, histogram float64) {
	if len(data) < m.slowPeriod {
		return 0, 0, 0
	}

	closes := make([]float64, len(data))
	for i, bar := range data {
		closes[i] = bar.Close
	}

	fastSeries := NewEMA(m.fastPeriod).Series(closes)
	slowSeries := NewEMA(m.slowPeriod).Series(closes)

	macdSeries := make([]float64, len(closes))
	for i := range closes {
		macdSeries[i] = fastSeries[i] - slowSeries[i]
	}

	signalSeries := NewEMA(m.signalPeriod).Series(macdSeries)

	macdLine = macdSeries[len(macdSeries)-1]
	signalLine = signalSeries[len(signalSeries)-1]
	histogram = macdLine - signalLine
	return macdLine, signalLine, histogram
}

// GetName returns the indicator name
func (m *MACD) GetName() string {
	return "MACD"
}

// GetRequiredPeriods returns the minimum number of periods needed
func (m *MACD) GetRequiredPeriods() int {
	return m.slowPeriod + m.signalPeriod
}
