package ledger

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradeloop/fx-confluence-bot/internal/regime"
)

func outcome(instrument string, rgm regime.Regime, pnl float64) TradeOutcome {
	return TradeOutcome{
		AccountID:  "acct-1",
		Instrument: instrument,
		Regime:     rgm,
		PnL:        pnl,
		ClosedAt:   time.Date(2025, 6, 2, 16, 0, 0, 0, time.UTC),
	}
}

func TestLedger_CountersOnlyIncrement(t *testing.T) {
	l := NewLedger()

	l.Record(outcome("EUR_USD", regime.RegimeTrending, 120))
	l.Record(outcome("EUR_USD", regime.RegimeTrending, -80))
	l.Record(outcome("EUR_USD", regime.RegimeTrending, 45))

	perf, ok := l.Performance(regime.RegimeTrending, "EUR_USD")
	require.True(t, ok)
	assert.Equal(t, 3, perf.Trades)
	assert.Equal(t, 2, perf.Wins)
	assert.Equal(t, 1, perf.Losses)
	assert.InDelta(t, 85, perf.TotalPnL, 1e-9)
	assert.InDelta(t, 2.0/3.0, perf.WinRate(), 1e-9)
}

func TestLedger_BreakevenCountsAsNeitherWinNorLoss(t *testing.T) {
	l := NewLedger()
	l.Record(outcome("EUR_USD", regime.RegimeRanging, 0))

	perf, ok := l.Performance(regime.RegimeRanging, "EUR_USD")
	require.True(t, ok)
	assert.Equal(t, 1, perf.Trades)
	assert.Equal(t, 0, perf.Wins)
	assert.Equal(t, 0, perf.Losses)
}

func TestLedger_BucketsKeyedByRegimeAndInstrument(t *testing.T) {
	l := NewLedger()
	l.Record(outcome("EUR_USD", regime.RegimeTrending, 100))
	l.Record(outcome("GBP_USD", regime.RegimeTrending, -50))
	l.Record(outcome("EUR_USD", regime.RegimeRanging, 30))

	snapshot := l.Snapshot()
	assert.Len(t, snapshot, 3)

	summary := l.RegimeSummary(regime.RegimeTrending)
	assert.Equal(t, 2, summary.Trades)
	assert.InDelta(t, 50, summary.TotalPnL, 1e-9)
}

func TestLedger_FeedbackFiresAfterMinSample(t *testing.T) {
	var gotRegime regime.Regime
	var gotDrift float64
	calls := 0

	l := NewLedger(
		WithExpectedWinRate(0.50),
		WithMinSampleSize(4),
		WithFeedback(func(rgm regime.Regime, drift float64) {
			gotRegime = rgm
			gotDrift = drift
			calls++
		}))

	l.Record(outcome("EUR_USD", regime.RegimeTrending, 100))
	l.Record(outcome("EUR_USD", regime.RegimeTrending, 100))
	l.Record(outcome("EUR_USD", regime.RegimeTrending, -50))
	assert.Equal(t, 0, calls, "no feedback before the minimum sample")

	l.Record(outcome("GBP_USD", regime.RegimeTrending, 100))
	require.Equal(t, 1, calls)
	assert.Equal(t, regime.RegimeTrending, gotRegime)
	assert.InDelta(t, 0.25, gotDrift, 1e-9, "3 of 4 wins against an expected 50%")
}

func TestLedger_SnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.json")

	l := NewLedger()
	l.Record(outcome("EUR_USD", regime.RegimeTrending, 100))
	l.Record(outcome("USD_JPY", regime.RegimeVolatile, -40))
	require.NoError(t, l.SaveSnapshot(path))

	restored := NewLedger()
	require.NoError(t, restored.LoadSnapshot(path))
	assert.Equal(t, l.Snapshot(), restored.Snapshot())
}

func TestLedger_LoadMissingSnapshotStartsEmpty(t *testing.T) {
	l := NewLedger()
	require.NoError(t, l.LoadSnapshot(filepath.Join(t.TempDir(), "absent.json")))
	assert.Empty(t, l.Snapshot())
}

func TestLedger_ReportRendersAllBuckets(t *testing.T) {
	l := NewLedger()
	l.Record(outcome("EUR_USD", regime.RegimeTrending, 100))
	l.Record(outcome("USD_JPY", regime.RegimeRanging, -25))

	var buf bytes.Buffer
	l.WriteReport(&buf)

	out := buf.String()
	assert.Contains(t, out, "EUR_USD")
	assert.Contains(t, out, "USD_JPY")
	assert.Contains(t, out, "TRENDING")
	assert.Contains(t, out, "TOTAL")
}

func TestLedger_ExcelExport(t *testing.T) {
	l := NewLedger()
	l.Record(outcome("EUR_USD", regime.RegimeTrending, 100))

	path := filepath.Join(t.TempDir(), "perf.xlsx")
	require.NoError(t, l.ExportXLSX(path))
	assert.FileExists(t, path)
}
