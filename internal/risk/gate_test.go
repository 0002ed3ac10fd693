package risk

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/tradeloop/fx-confluence-bot/internal/errors"
	"github.com/tradeloop/fx-confluence-bot/pkg/types"
)

func testOrder(accountID, instrument string, units float64) *types.OrderRequest {
	return &types.OrderRequest{
		Instrument: instrument,
		Side:       types.SideBuy,
		Units:      units,
		EntryPrice: 1.1000,
		StopLoss:   1.0950,
		TakeProfit: 1.1100,
		AccountID:  accountID,
	}
}

func newTestGate(t *testing.T, cfg GateConfig, at time.Time) *Gate {
	t.Helper()
	g, err := NewGate(cfg)
	require.NoError(t, err)
	g.now = func() time.Time { return at }
	return g
}

func TestGate_ApprovesWithinLimits(t *testing.T) {
	g := newTestGate(t, NewDefaultGateConfig(), time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC))
	g.RegisterAccount("acct-1", 100000)

	rejection := g.Check(testOrder("acct-1", "EUR_USD", 10000))
	assert.Nil(t, rejection)
}

func TestGate_UnregisteredAccountRejected(t *testing.T) {
	g := newTestGate(t, NewDefaultGateConfig(), time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC))

	rejection := g.Check(testOrder("ghost", "EUR_USD", 10000))
	require.NotNil(t, rejection)
	assert.True(t, rejection.Is(apperrors.ReasonRiskLimitExceeded))
}

func TestGate_SessionFilter(t *testing.T) {
	cfg := NewDefaultGateConfig()
	cfg.Sessions = map[string][]int{"EUR_USD": {7, 8, 9, 10, 11, 12, 13, 14, 15, 16}}

	open := newTestGate(t, cfg, time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC))
	open.RegisterAccount("acct-1", 100000)
	assert.Nil(t, open.Check(testOrder("acct-1", "EUR_USD", 10000)))

	closed := newTestGate(t, cfg, time.Date(2025, 6, 2, 22, 0, 0, 0, time.UTC))
	closed.RegisterAccount("acct-1", 100000)
	rejection := closed.Check(testOrder("acct-1", "EUR_USD", 10000))
	require.NotNil(t, rejection)
	assert.True(t, rejection.Is(apperrors.ReasonSessionClosed))
}

func TestGate_DailyInstrumentCap(t *testing.T) {
	g := newTestGate(t, NewDefaultGateConfig(), time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC))
	g.RegisterAccount("acct-1", 100000)

	for i := 0; i < 3; i++ {
		order := testOrder("acct-1", "EUR_USD", 1000)
		require.Nil(t, g.Check(order), "trade %d should pass", i)
		g.RecordOpen(order)
		g.RecordClose("acct-1", "EUR_USD", 1000, 1.1000, 1.0950, 10)
	}

	rejection := g.Check(testOrder("acct-1", "EUR_USD", 1000))
	require.NotNil(t, rejection)
	assert.True(t, rejection.Is(apperrors.ReasonDailyCapReached))

	// Other instruments on the same account are unaffected
	assert.Nil(t, g.Check(testOrder("acct-1", "GBP_USD", 1000)))
}

func TestGate_DailyAccountCap(t *testing.T) {
	cfg := NewDefaultGateConfig()
	cfg.MaxDailyTradesAccount = 4
	cfg.MaxDailyTradesInstrument = 4
	g := newTestGate(t, cfg, time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC))
	g.RegisterAccount("acct-1", 100000)

	for i := 0; i < 4; i++ {
		instrument := fmt.Sprintf("PAIR_%d", i)
		order := testOrder("acct-1", instrument, 1000)
		require.Nil(t, g.Check(order))
		g.RecordOpen(order)
		g.RecordClose("acct-1", instrument, 1000, 1.1000, 1.0950, 0)
	}

	rejection := g.Check(testOrder("acct-1", "EUR_USD", 1000))
	require.NotNil(t, rejection)
	assert.True(t, rejection.Is(apperrors.ReasonDailyCapReached))
}

func TestGate_OpenPositionCaps(t *testing.T) {
	g := newTestGate(t, NewDefaultGateConfig(), time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC))
	g.RegisterAccount("acct-1", 100000)

	first := testOrder("acct-1", "EUR_USD", 1000)
	require.Nil(t, g.Check(first))
	g.RecordOpen(first)

	// Default allows one open position per instrument
	rejection := g.Check(testOrder("acct-1", "EUR_USD", 1000))
	require.NotNil(t, rejection)
	assert.True(t, rejection.Is(apperrors.ReasonPositionCapReached))

	g.RecordClose("acct-1", "EUR_USD", 1000, 1.1000, 1.0950, 25)
	assert.Nil(t, g.Check(testOrder("acct-1", "EUR_USD", 1000)))
}

func TestGate_DailyLossHaltsUntilNextDay(t *testing.T) {
	at := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	g := newTestGate(t, NewDefaultGateConfig(), at)
	g.RegisterAccount("acct-1", 100000)

	// 3% of 100000 is the default daily loss limit
	order := testOrder("acct-1", "EUR_USD", 1000)
	g.RecordOpen(order)
	g.RecordClose("acct-1", "EUR_USD", 1000, 1.1000, 1.0950, -3500)

	assert.True(t, g.IsHalted("acct-1"))
	rejection := g.Check(testOrder("acct-1", "GBP_USD", 1000))
	require.NotNil(t, rejection)
	assert.True(t, rejection.Is(apperrors.ReasonAccountHalted))

	// Halt survives further winning ticks the same day
	g.RecordClose("acct-1", "GBP_USD", 0, 1.3000, 1.2950, 5000)
	assert.True(t, g.IsHalted("acct-1"))

	// Next UTC day the account trades again
	g.now = func() time.Time { return at.Add(24 * time.Hour) }
	assert.Nil(t, g.Check(testOrder("acct-1", "EUR_USD", 1000)))
	assert.False(t, g.IsHalted("acct-1"))
}

func TestGate_IsHaltedClearsNextDayWithoutCheck(t *testing.T) {
	at := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	g := newTestGate(t, NewDefaultGateConfig(), at)
	g.RegisterAccount("acct-1", 100000)

	g.RecordClose("acct-1", "EUR_USD", 1000, 1.1000, 1.0950, -3500)
	require.True(t, g.IsHalted("acct-1"))

	// The hot path reads IsHalted before anything else touches the gate.
	// With no open positions and no Check call, the next UTC day must
	// still read clear.
	g.now = func() time.Time { return at.Add(24 * time.Hour) }
	assert.False(t, g.IsHalted("acct-1"))
}

func TestGate_ReleaseReturnsReservation(t *testing.T) {
	g := newTestGate(t, NewDefaultGateConfig(), time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC))
	g.RegisterAccount("acct-1", 100000)

	order := testOrder("acct-1", "EUR_USD", 1000)
	require.Nil(t, g.Check(order))
	g.RecordOpen(order)

	// Default allows one open position per instrument
	require.NotNil(t, g.Check(testOrder("acct-1", "EUR_USD", 1000)))

	// The broker never filled; releasing frees the instrument again
	g.Release(order)
	assert.Nil(t, g.Check(testOrder("acct-1", "EUR_USD", 1000)))
}

func TestGate_HaltIsolatedPerAccount(t *testing.T) {
	g := newTestGate(t, NewDefaultGateConfig(), time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC))
	g.RegisterAccount("acct-1", 100000)
	g.RegisterAccount("acct-2", 100000)

	g.RecordClose("acct-1", "EUR_USD", 0, 1.1000, 1.0950, -5000)

	assert.True(t, g.IsHalted("acct-1"))
	assert.False(t, g.IsHalted("acct-2"))
	assert.Nil(t, g.Check(testOrder("acct-2", "EUR_USD", 1000)))
}

func TestGate_UnrealizedLossTriggersHalt(t *testing.T) {
	g := newTestGate(t, NewDefaultGateConfig(), time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC))
	g.RegisterAccount("acct-1", 100000)

	g.UpdateUnrealized("acct-1", -1000)
	assert.False(t, g.IsHalted("acct-1"))

	g.UpdateUnrealized("acct-1", -3200)
	assert.True(t, g.IsHalted("acct-1"))
}

func TestGate_ExposureCap(t *testing.T) {
	g := newTestGate(t, NewDefaultGateConfig(), time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC))
	g.RegisterAccount("acct-1", 100000)

	// 20% of 100000 caps open risk at 20000; 0.005 stop gap per unit
	big := testOrder("acct-1", "EUR_USD", 3000000)
	require.Nil(t, g.Check(big))
	g.RecordOpen(big)

	rejection := g.Check(testOrder("acct-1", "GBP_USD", 2000000))
	require.NotNil(t, rejection)
	assert.True(t, rejection.Is(apperrors.ReasonExposureCapReached))
}

func TestGateConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*GateConfig)
		wantErr bool
	}{
		{"defaults", func(c *GateConfig) {}, false},
		{"zero daily cap", func(c *GateConfig) { c.MaxDailyTradesAccount = 0 }, true},
		{"per-instrument above global", func(c *GateConfig) { c.MaxOpenPerInstrument = 10 }, true},
		{"loss limit out of range", func(c *GateConfig) { c.DailyLossLimitPct = 0 }, true},
		{"bad session hour", func(c *GateConfig) {
			c.Sessions = map[string][]int{"EUR_USD": {25}}
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultGateConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
