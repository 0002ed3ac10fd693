package indicators

import (
	"github.com/tradeloop/fx-confluence-bot/pkg/types"
)

// SMA represents the Simple Moving Average technical indicator
type SMA struct {
	period int
}

// NewSMA creates a new SMA indicator
func NewSMA(period int) *SMA {
	return &SMA{period: period}
}

// Calculate computes the SMA of the close prices over the last period
// bars, or over all of them when history is shorter.
func (s *SMA) Calculate(data []types.PriceBar) float64 {
	return s.average(data, func(bar types.PriceBar) float64 { return bar.Close })
}

// CalculateVolume computes the SMA of bar volumes. The signal generator
// uses this as the baseline for the volume confluence factor.
func (s *SMA) CalculateVolume(data []types.PriceBar) float64 {
	return s.average(data, func(bar types.PriceBar) float64 { return bar.Volume })
}

func (s *SMA) average(data []types.PriceBar, field func(types.PriceBar) float64) float64 {
	if len(data) == 0 {
		return 0
	}

	start := len(data) - s.period
	if start < 0 {
		start = 0
	}

	sum := 0.0
	for i := start; i < len(data); i++ {
		sum += field(data[i])
	}
	return sum / float64(len(data)-start)
}

// GetName returns the indicator name
func (s *SMA) GetName() string {
	return "SMA"
}

// GetRequiredPeriods returns the minimum number of periods needed
func (s *SMA) GetRequiredPeriods() int {
	return s.period
}
