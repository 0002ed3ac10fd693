package indicators

import (
	"math"

	"github.com/tradeloop/fx-confluence-bot/pkg/types"
)

// RSI calculates the Wilder-style Relative Strength Index
type RSI struct {
	period int
}

// NewRSI creates a new RSI instance with the given period
func NewRSI(period int) *RSI {
	return &RSI{period: period}
}

// Calculate computes the RSI over the close prices. History shorter than
// period+1 bars yields the neutral 50; zero average loss yields 100.
func (r *RSI) Calculate(data []types.PriceBar) float64 {
	if len(data) < r.period+1 {
		return 50
	}

	// Seed averages with a simple mean over the first period of changes
	var avgGain, avgLoss float64
	for i := 1; i <= r.period; i++ {
		change := data[i].Close - data[i-1].Close
		if change > 0 {
			avgGain += change
		} else {
			avgLoss += math.Abs(change)
		}
	}
	avgGain /= float64(r.period)
	avgLoss /= float64(r.period)

	// Wilder smoothing over the remaining changes
	for i := r.period + 1; i < len(data); i++ {
		change := data[i].Close - data[i-1].Close
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = math.Abs(change)
		}
		avgGain = (avgGain*float64(r.period-1) + gain) / float64(r.period)
		avgLoss = (avgLoss*float64(r.period-1) + loss) / float64(r.period)
	}

	if avgLoss == 0 {
		return 100
	}

	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// GetName returns the indicator name
func (r *RSI) GetName() string {
	return "RSI"
}

// GetRequiredPeriods returns the minimum number of periods needed
func (r *RSI) GetRequiredPeriods() int {
	return r.period + 1
}
