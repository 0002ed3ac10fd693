package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradeloop/fx-confluence-bot/internal/ledger"
	"github.com/tradeloop/fx-confluence-bot/internal/orchestrator"
	"github.com/tradeloop/fx-confluence-bot/internal/regime"
	"github.com/tradeloop/fx-confluence-bot/internal/risk"
	"github.com/tradeloop/fx-confluence-bot/pkg/config"
	"github.com/tradeloop/fx-confluence-bot/pkg/types"
)

func uptrendBars(n int) []types.PriceBar {
	base := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]types.PriceBar, n)
	for i := 0; i < n; i++ {
		p := 1.10 + 0.002*float64(i)
		vol := 1000.0
		if i == n-1 {
			vol = 5000
		}
		bars[i] = types.PriceBar{
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Open:      p - 0.001,
			High:      p + 0.001,
			Low:       p - 0.001,
			Close:     p,
			Volume:    vol,
		}
	}
	return bars
}

func testEngineConfig(instruments ...string) *config.EngineConfig {
	cfg := config.NewDefaultEngineConfig()
	cfg.Instruments = []string{"EUR_USD"}
	cfg.Accounts = []config.AccountConfig{{
		AccountID:   "acct-1",
		Balance:     100000,
		Currency:    "USD",
		Instruments: instruments,
	}}
	return &cfg
}

type recordingExecutor struct {
	calls  atomic.Int64
	orders chan *types.OrderRequest
}

func newRecordingExecutor() *recordingExecutor {
	return &recordingExecutor{orders: make(chan *types.OrderRequest, 16)}
}

func (e *recordingExecutor) Execute(_ context.Context, order *types.OrderRequest) (*types.ExecutionResult, error) {
	e.calls.Add(1)
	e.orders <- order
	return &types.ExecutionResult{Success: true, BrokerOrderID: "b-1"}, nil
}

func newTestEngine(t *testing.T, cfg *config.EngineConfig, exec orchestrator.Executor) (*Engine, *orchestrator.Router) {
	t.Helper()

	var eng *Engine
	router := orchestrator.NewRouter(nil, orchestrator.WithResultHandler(func(res orchestrator.RoutingResult) {
		if eng != nil {
			eng.HandleResult(res)
		}
	}))
	require.NoError(t, router.Register("acct-1", exec))

	// Per-account sizer and gate defaults come through config loading in
	// production; tests fill them directly.
	for i := range cfg.Accounts {
		if cfg.Accounts[i].Sizer.MaxUnits == 0 {
			cfg.Accounts[i].Sizer = risk.NewDefaultSizerConfig()
		}
		if cfg.Accounts[i].Gate.MaxOpenPositions == 0 {
			cfg.Accounts[i].Gate = risk.NewDefaultGateConfig()
		}
	}

	var err error
	eng, err = New(cfg, router, nil, nil)
	require.NoError(t, err)
	return eng, router
}

func snapshot(instrument string, mid float64) types.MarketSnapshot {
	return types.MarketSnapshot{
		Instrument: instrument,
		Bid:        mid - 0.0001,
		Ask:        mid + 0.0001,
		Mid:        mid,
		Spread:     0.0002,
		Timestamp:  time.Date(2025, 6, 4, 12, 0, 0, 0, time.UTC),
	}
}

func TestEngine_EndToEndRoutesOrder(t *testing.T) {
	exec := newRecordingExecutor()
	eng, router := newTestEngine(t, testEngineConfig(), exec)

	require.NoError(t, eng.Store().Backfill("EUR_USD", uptrendBars(60)))
	require.NoError(t, eng.EvaluateTick(context.Background(), snapshot("EUR_USD", 1.22)))
	router.Close()

	require.Equal(t, int64(1), exec.calls.Load())
	order := <-exec.orders
	assert.Equal(t, "acct-1", order.AccountID)
	assert.Equal(t, "EUR_USD", order.Instrument)
	assert.Greater(t, order.Units, 0.0)
	assert.Less(t, order.StopLoss, order.EntryPrice)
	assert.Greater(t, order.TakeProfit, order.EntryPrice)
}

func TestEngine_ShortHistoryProducesNoOrderAndNoError(t *testing.T) {
	exec := newRecordingExecutor()
	eng, router := newTestEngine(t, testEngineConfig(), exec)

	require.NoError(t, eng.Store().Backfill("EUR_USD", uptrendBars(10)))
	require.NoError(t, eng.EvaluateTick(context.Background(), snapshot("EUR_USD", 1.12)))
	router.Close()

	assert.Equal(t, int64(0), exec.calls.Load())
}

func TestEngine_OpenPositionBlocksSecondOrder(t *testing.T) {
	exec := newRecordingExecutor()
	eng, router := newTestEngine(t, testEngineConfig(), exec)

	require.NoError(t, eng.Store().Backfill("EUR_USD", uptrendBars(60)))
	require.NoError(t, eng.EvaluateTick(context.Background(), snapshot("EUR_USD", 1.22)))
	require.NoError(t, eng.EvaluateTick(context.Background(), snapshot("EUR_USD", 1.22)))
	router.Close()

	assert.Equal(t, int64(1), exec.calls.Load(),
		"one open position per instrument at default limits")
}

func TestEngine_HaltedAccountRoutesNothing(t *testing.T) {
	exec := newRecordingExecutor()
	eng, router := newTestEngine(t, testEngineConfig(), exec)

	// A realized loss past 3% of balance halts the account for the day
	eng.RecordOutcome(ledger.TradeOutcome{
		AccountID:  "acct-1",
		Instrument: "EUR_USD",
		Regime:     regime.RegimeTrending,
		PnL:        -5000,
		ClosedAt:   time.Now(),
	}, 1.10, 1.095, 1000)

	require.NoError(t, eng.Store().Backfill("EUR_USD", uptrendBars(60)))
	require.NoError(t, eng.EvaluateTick(context.Background(), snapshot("EUR_USD", 1.22)))
	router.Close()

	assert.Equal(t, int64(0), exec.calls.Load())
}

func TestEngine_HaltClearsNextUTCDay(t *testing.T) {
	exec := newRecordingExecutor()
	eng, router := newTestEngine(t, testEngineConfig(), exec)

	day1 := time.Date(2025, 6, 4, 12, 0, 0, 0, time.UTC)
	eng.now = func() time.Time { return day1 }

	eng.RecordOutcome(ledger.TradeOutcome{
		AccountID:  "acct-1",
		Instrument: "EUR_USD",
		Regime:     regime.RegimeTrending,
		PnL:        -5000,
		ClosedAt:   day1,
	}, 1.10, 1.095, 1000)

	require.NoError(t, eng.Store().Backfill("EUR_USD", uptrendBars(60)))
	require.NoError(t, eng.EvaluateTick(context.Background(), snapshot("EUR_USD", 1.22)))
	assert.Equal(t, int64(0), exec.calls.Load(), "halted for the rest of the day")

	// Crossing UTC midnight clears the halt without any close or manual
	// reset in between
	eng.now = func() time.Time { return day1.Add(24 * time.Hour) }
	require.NoError(t, eng.EvaluateTick(context.Background(), snapshot("EUR_USD", 1.22)))
	router.Close()

	assert.Equal(t, int64(1), exec.calls.Load())
}

type failingExecutor struct {
	calls atomic.Int64
}

func (e *failingExecutor) Execute(_ context.Context, _ *types.OrderRequest) (*types.ExecutionResult, error) {
	e.calls.Add(1)
	return nil, errors.New("broker unavailable")
}

func TestEngine_FailedExecutionFreesInstrument(t *testing.T) {
	exec := &failingExecutor{}
	eng, router := newTestEngine(t, testEngineConfig(), exec)

	require.NoError(t, eng.Store().Backfill("EUR_USD", uptrendBars(60)))
	require.NoError(t, eng.EvaluateTick(context.Background(), snapshot("EUR_USD", 1.22)))

	// The failure comes back on the router's worker goroutine; wait for
	// the reservation to come back before the next tick
	gate := eng.accounts["acct-1"].gate
	order := &types.OrderRequest{
		Instrument: "EUR_USD",
		Side:       types.SideBuy,
		Units:      1000,
		EntryPrice: 1.1000,
		StopLoss:   1.0950,
		AccountID:  "acct-1",
	}
	require.Eventually(t, func() bool { return gate.Check(order) == nil },
		time.Second, 10*time.Millisecond,
		"failed execution must free the instrument for the account")

	require.NoError(t, eng.EvaluateTick(context.Background(), snapshot("EUR_USD", 1.22)))
	router.Close()

	assert.Equal(t, int64(2), exec.calls.Load())
}

func TestEngine_InstrumentAllowlistRespected(t *testing.T) {
	exec := newRecordingExecutor()
	eng, router := newTestEngine(t, testEngineConfig("USD_JPY"), exec)

	require.NoError(t, eng.Store().Backfill("EUR_USD", uptrendBars(60)))
	require.NoError(t, eng.EvaluateTick(context.Background(), snapshot("EUR_USD", 1.22)))
	router.Close()

	assert.Equal(t, int64(0), exec.calls.Load(),
		"account only allows USD_JPY")
}

func TestEngine_OutcomeFeedsLedger(t *testing.T) {
	exec := newRecordingExecutor()
	eng, router := newTestEngine(t, testEngineConfig(), exec)
	defer router.Close()

	eng.RecordOutcome(ledger.TradeOutcome{
		AccountID:  "acct-1",
		Instrument: "EUR_USD",
		Regime:     regime.RegimeTrending,
		PnL:        250,
		ClosedAt:   time.Now(),
	}, 1.10, 1.095, 1000)

	perf, ok := eng.Ledger().Performance(regime.RegimeTrending, "EUR_USD")
	require.True(t, ok)
	assert.Equal(t, 1, perf.Trades)
	assert.Equal(t, 1, perf.Wins)
}

func TestEngine_OnBarUpdatesHistory(t *testing.T) {
	exec := newRecordingExecutor()
	eng, router := newTestEngine(t, testEngineConfig(), exec)
	defer router.Close()

	bars := uptrendBars(3)
	for _, bar := range bars {
		require.NoError(t, eng.OnBar(context.Background(), "EUR_USD", bar))
	}
	assert.Equal(t, 3, eng.Store().Len("EUR_USD"))

	// Re-ingesting the last bar is rejected by the history store
	assert.Error(t, eng.OnBar(context.Background(), "EUR_USD", bars[2]))
}
