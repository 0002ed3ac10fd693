package indicators

import (
	"math"

	"github.com/tradeloop/fx-confluence-bot/pkg/types"
)

// ATR represents the Average True Range volatility indicator
type ATR struct {
	period int
}

// NewATR creates a new ATR indicator
func NewATR(period int) *ATR {
	return &ATR{period: period}
}

// Calculate computes the rolling mean of the true range over the last
// period bars. With fewer than two bars it returns 0; with fewer than
// period true ranges it averages what is available. Never an error.
func (a *ATR) Calculate(data []types.PriceBar) float64 {
	return a.CalculateWindow(data, a.period)
}

// CalculateWindow computes the ATR over an explicit trailing window. The
// regime classifier uses this for the volatility baseline.
func (a *ATR) CalculateWindow(data []types.PriceBar, window int) float64 {
	if len(data) < 2 {
		return 0
	}

	start := len(data) - window
	if start < 1 {
		start = 1
	}

	sum := 0.0
	count := 0
	for i := start; i < len(data); i++ {
		sum += trueRange(data[i], data[i-1])
		count++
	}
	return sum / float64(count)
}

// trueRange is max(high-low, |high-prevClose|, |low-prevClose|)
func trueRange(current, previous types.PriceBar) float64 {
	tr1 := current.High - current.Low
	tr2 := math.Abs(current.High - previous.Close)
	tr3 := math.Abs(current.Low - previous.Close)
	return math.Max(tr1, math.Max(tr2, tr3))
}

// GetName returns the indicator name
func (a *ATR) GetName() string {
	return "ATR"
}

// GetRequiredPeriods returns the minimum number of periods needed
func (a *ATR) GetRequiredPeriods() int {
	return a.period + 1
}
