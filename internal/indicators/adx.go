package indicators

import (
	"math"

	"github.com/tradeloop/fx-confluence-bot/pkg/types"
)

// ADX represents the Average Directional Index technical indicator.
// ADX measures trend strength regardless of direction (0-100 scale).
type ADX struct {
	period int
}

// NewADX creates a new ADX indicator
func NewADX(period int) *ADX {
	return &ADX{period: period}
}

// Calculate computes the ADX value from smoothed +DM/-DM over the ATR.
// History shorter than 2*period+1 bars yields 0, never an error.
func (adx *ADX) Calculate(data []types.PriceBar) float64 {
	if len(data) < adx.period*2+1 {
		return 0
	}

	// Seed Wilder sums over the first period of movements
	var trSum, plusDMSum, minusDMSum float64
	for i := 1; i <= adx.period; i++ {
		tr, plusDM, minusDM := directionalMovement(data[i], data[i-1])
		trSum += tr
		plusDMSum += plusDM
		minusDMSum += minusDM
	}

	dxValues := make([]float64, 0, len(data)-adx.period)
	dxValues = append(dxValues, dx(plusDMSum, minusDMSum, trSum))

	// Wilder-smooth the sums across the rest of the history, collecting DX
	for i := adx.period + 1; i < len(data); i++ {
		tr, plusDM, minusDM := directionalMovement(data[i], data[i-1])
		trSum = trSum - (trSum / float64(adx.period)) + tr
		plusDMSum = plusDMSum - (plusDMSum / float64(adx.period)) + plusDM
		minusDMSum = minusDMSum - (minusDMSum / float64(adx.period)) + minusDM
		dxValues = append(dxValues, dx(plusDMSum, minusDMSum, trSum))
	}

	if len(dxValues) < adx.period {
		return 0
	}

	// Initial ADX is the simple mean of the first period DX values,
	// then Wilder smoothing over the remainder
	sum := 0.0
	for i := 0; i < adx.period; i++ {
		sum += dxValues[i]
	}
	value := sum / float64(adx.period)
	for i := adx.period; i < len(dxValues); i++ {
		value = (value*float64(adx.period-1) + dxValues[i]) / float64(adx.period)
	}
	return value
}

// directionalMovement returns the true range and the +DM/-DM components
// for one pair of consecutive bars.
func directionalMovement(current, previous types.PriceBar) (tr, plusDM, minusDM float64) {
	tr = trueRange(current, previous)

	highDiff := current.High - previous.High
	lowDiff := previous.Low - current.Low
	if highDiff > lowDiff && highDiff > 0 {
		plusDM = highDiff
	}
	if lowDiff > highDiff && lowDiff > 0 {
		minusDM = lowDiff
	}
	return tr, plusDM, minusDM
}

func dx(plusDMSum, minusDMSum, trSum float64) float64 {
	if trSum == 0 {
		return 0
	}
	plusDI := (plusDMSum / trSum) * 100
	minusDI := (minusDMSum / trSum) * 100
	diSum := plusDI + minusDI
	if diSum == 0 {
		return 0
	}
	return (math.Abs(plusDI-minusDI) / diSum) * 100
}

// GetName returns the indicator name
func (adx *ADX) GetName() string {
	return "ADX"
}

// GetRequiredPeriods returns minimum periods needed for calculation
func (adx *ADX) GetRequiredPeriods() int {
	return adx.period*2 + 1
}
