package indicators

import (
	"testing"
	"time"

	"github.com/tradeloop/fx-confluence-bot/pkg/types"
)

func barsFromCloses(closes []float64) []types.PriceBar {
	bars := make([]types.PriceBar, len(closes))
	base := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		bars[i] = types.PriceBar{
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Open:      c,
			High:      c + 0.0005,
			Low:       c - 0.0005,
			Close:     c,
			Volume:    1000,
		}
	}
	return bars
}

func TestEMA_StrictlyIncreasingCloses(t *testing.T) {
	ema := NewEMA(3)
	closes := []float64{1.00, 1.01, 1.02, 1.03}

	// The EMA over each prefix must itself be strictly increasing
	prev := ema.Calculate(barsFromCloses(closes[:1]))
	for i := 2; i <= len(closes); i++ {
		value := ema.Calculate(barsFromCloses(closes[:i]))
		if value <= prev {
			t.Errorf("EMA not strictly increasing at bar %d: %f <= %f", i, value, prev)
		}
		prev = value
	}
}

func TestEMA_SeedIsFirstClose(t *testing.T) {
	ema := NewEMA(5)
	bars := barsFromCloses([]float64{1.2345})

	value := ema.Calculate(bars)
	if value != 1.2345 {
		t.Errorf("expected seed 1.2345, got %f", value)
	}
}

func TestEMA_EmptyHistory(t *testing.T) {
	ema := NewEMA(5)
	if value := ema.Calculate(nil); value != 0 {
		t.Errorf("expected 0 on empty history, got %f", value)
	}
}

func TestInterfaceCompliance(t *testing.T) {
	for _, ind := range []Indicator{
		NewEMA(20), NewSMA(20), NewRSI(14), NewATR(14), NewADX(14), NewMACD(12, 26, 9),
	} {
		if ind.GetName() == "" {
			t.Error("indicator has empty name")
		}
		if ind.GetRequiredPeriods() < 1 {
			t.Errorf("%s reports %d required periods", ind.GetName(), ind.GetRequiredPeriods())
		}
	}
}

func TestEMA_Deterministic(t *testing.T) {
	ema := NewEMA(10)
	bars := barsFromCloses([]float64{1.10, 1.11, 1.09, 1.12, 1.13, 1.12, 1.14})

	first := ema.Calculate(bars)
	second := ema.Calculate(bars)
	if first != second {
		t.Errorf("EMA not deterministic: %f != %f", first, second)
	}
}
