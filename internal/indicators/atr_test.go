package indicators

import (
	"math"
	"testing"
	"time"

	"github.com/tradeloop/fx-confluence-bot/pkg/types"
)

func rangeBars(n int, high, low float64) []types.PriceBar {
	bars := make([]types.PriceBar, n)
	base := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		bars[i] = types.PriceBar{
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Open:      (high + low) / 2,
			High:      high,
			Low:       low,
			Close:     (high + low) / 2,
			Volume:    1000,
		}
	}
	return bars
}

func TestATR_ConstantRange(t *testing.T) {
	atr := NewATR(14)

	// Identical bars: every true range equals high-low
	bars := rangeBars(30, 1.1050, 1.0950)
	value := atr.Calculate(bars)
	if math.Abs(value-0.01) > 1e-9 {
		t.Errorf("expected ATR 0.01, got %f", value)
	}
}

func TestATR_ShortHistoryFallback(t *testing.T) {
	atr := NewATR(14)

	if value := atr.Calculate(nil); value != 0 {
		t.Errorf("expected 0 on empty history, got %f", value)
	}
	if value := atr.Calculate(rangeBars(1, 1.10, 1.09)); value != 0 {
		t.Errorf("expected 0 on single bar, got %f", value)
	}

	// Two bars is enough for one true range
	value := atr.Calculate(rangeBars(2, 1.10, 1.09))
	if value <= 0 {
		t.Errorf("expected positive ATR from two bars, got %f", value)
	}
}

func TestATR_GapDominatesRange(t *testing.T) {
	atr := NewATR(1)

	base := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	bars := []types.PriceBar{
		{Timestamp: base, Open: 1.10, High: 1.101, Low: 1.099, Close: 1.10},
		// Gapped bar: |high - prevClose| exceeds high-low
		{Timestamp: base.Add(time.Hour), Open: 1.12, High: 1.121, Low: 1.119, Close: 1.12},
	}

	value := atr.Calculate(bars)
	expected := 1.121 - 1.10
	if math.Abs(value-expected) > 1e-9 {
		t.Errorf("expected gap true range %f, got %f", expected, value)
	}
}

func TestADX_ShortHistoryReturnsZero(t *testing.T) {
	adx := NewADX(14)

	if value := adx.Calculate(rangeBars(10, 1.10, 1.09)); value != 0 {
		t.Errorf("expected 0 on short history, got %f", value)
	}
}

func TestADX_TrendingMarketScoresHigh(t *testing.T) {
	adx := NewADX(14)

	// Steady one-directional advance
	bars := make([]types.PriceBar, 60)
	base := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		price := 1.10 + float64(i)*0.002
		bars[i] = types.PriceBar{
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Open:      price,
			High:      price + 0.001,
			Low:       price - 0.001,
			Close:     price + 0.0008,
			Volume:    1000,
		}
	}

	value := adx.Calculate(bars)
	if value < 25 {
		t.Errorf("expected high ADX for steady trend, got %f", value)
	}
	if value > 100 {
		t.Errorf("ADX out of range: %f", value)
	}
}

func TestADX_FlatMarketScoresLow(t *testing.T) {
	adx := NewADX(14)

	value := adx.Calculate(rangeBars(60, 1.1005, 1.0995))
	if value > 10 {
		t.Errorf("expected low ADX for flat market, got %f", value)
	}
}
