package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	apperrors "github.com/tradeloop/fx-confluence-bot/internal/errors"
	"github.com/tradeloop/fx-confluence-bot/internal/history"
	"github.com/tradeloop/fx-confluence-bot/internal/ledger"
	"github.com/tradeloop/fx-confluence-bot/internal/logger"
	"github.com/tradeloop/fx-confluence-bot/internal/monitoring"
	"github.com/tradeloop/fx-confluence-bot/internal/orchestrator"
	"github.com/tradeloop/fx-confluence-bot/internal/regime"
	"github.com/tradeloop/fx-confluence-bot/internal/risk"
	"github.com/tradeloop/fx-confluence-bot/internal/signal"
	"github.com/tradeloop/fx-confluence-bot/internal/telemetry"
	"github.com/tradeloop/fx-confluence-bot/pkg/config"
	"github.com/tradeloop/fx-confluence-bot/pkg/types"
)

// account bundles everything the engine needs to trade one account.
type account struct {
	cfg   config.AccountConfig
	sizer *risk.Sizer
	gate  *risk.Gate
}

// dailyCount tracks per-instrument signals for the current UTC day.
type dailyCount struct {
	day   time.Time
	count int
}

// Engine runs the per-tick decision pipeline: history → regime →
// confluence signal → sizing → risk gate → routing, with realized
// outcomes flowing back through the ledger.
type Engine struct {
	cfg        *config.EngineConfig
	store      *history.Store
	classifier *regime.Classifier
	generator  *signal.Generator
	router     *orchestrator.Router
	ledger     *ledger.Ledger
	hub        *telemetry.Hub
	health     *monitoring.HealthChecker

	mu       sync.Mutex
	accounts map[string]*account
	signals  map[string]*dailyCount

	now func() time.Time
}

// New assembles an engine from validated configuration. The router and
// telemetry hub are injected so the binary controls their lifecycle.
func New(cfg *config.EngineConfig, router *orchestrator.Router, hub *telemetry.Hub, health *monitoring.HealthChecker) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	classifier := regime.NewClassifier(cfg.Regime)
	generator, err := signal.NewGenerator(cfg.Signal)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:        cfg,
		store:      history.NewStore(cfg.MaxBars),
		classifier: classifier,
		generator:  generator,
		router:     router,
		hub:        hub,
		health:     health,
		accounts:   make(map[string]*account),
		signals:    make(map[string]*dailyCount),
		now:        time.Now,
	}
	e.ledger = ledger.NewLedger(ledger.WithFeedback(generator.ApplyFeedback))

	for _, acctCfg := range cfg.Accounts {
		sizer, err := risk.NewSizer(acctCfg.Sizer)
		if err != nil {
			return nil, err
		}
		gate, err := risk.NewGate(acctCfg.Gate, risk.WithGateClock(func() time.Time { return e.now() }))
		if err != nil {
			return nil, err
		}
		gate.RegisterAccount(acctCfg.AccountID, acctCfg.Balance)
		e.accounts[acctCfg.AccountID] = &account{cfg: acctCfg, sizer: sizer, gate: gate}
	}
	return e, nil
}

// Ledger exposes the performance ledger for reporting and snapshots.
func (e *Engine) Ledger() *ledger.Ledger {
	return e.ledger
}

// Store exposes the bar history store for backfills.
func (e *Engine) Store() *history.Store {
	return e.store
}

// OnBar ingests one closed bar. This is the single writer of price
// history.
func (e *Engine) OnBar(ctx context.Context, instrument string, bar types.PriceBar) error {
	if err := e.store.Append(instrument, bar); err != nil {
		logger.ErrorWithErr(ctx, "bar rejected", err, "instrument", instrument)
		return err
	}
	monitoring.UpdatePrice(instrument, bar.Close)
	return nil
}

// EvaluateTick runs one evaluation pass for a market snapshot. All
// no-trade outcomes are expected control flow; the only errors returned
// are upstream logic bugs.
func (e *Engine) EvaluateTick(ctx context.Context, snapshot types.MarketSnapshot) error {
	ctx, span := logger.StartSpan(ctx, "engine.evaluate_tick")
	defer span.End()

	if e.health != nil {
		e.health.RecordTick(snapshot.Mid)
	}
	monitoring.UpdatePrice(snapshot.Instrument, snapshot.Mid)

	bars := e.store.Bars(snapshot.Instrument)
	rgm := e.classifier.Classify(bars)

	proposal, rejection := e.generator.Evaluate(snapshot.Instrument, bars, rgm, signal.EvalState{
		SignalsToday: e.signalsToday(snapshot.Instrument),
	})
	if rejection != nil {
		e.reportRejection(ctx, "", snapshot.Instrument, rejection)
		return nil
	}

	e.bumpSignals(snapshot.Instrument)
	monitoring.RecordProposal(proposal.Instrument, proposal.Regime.String())
	e.publishProposal(proposal)
	logger.Decision(ctx, proposal.Instrument, proposal.Side.String(),
		proposal.SignalStrength, proposal.Regime.String(),
		"confluence", proposal.ConfluenceCount)

	for _, acct := range e.accountsFor(proposal.Instrument) {
		if err := e.dispatch(ctx, acct, proposal); err != nil {
			return err
		}
	}
	return nil
}

// dispatch sizes and routes one proposal for one account.
func (e *Engine) dispatch(ctx context.Context, acct *account, proposal *signal.TradeProposal) error {
	accountID := acct.cfg.AccountID

	// Cheap pre-check before any sizing work
	if acct.gate.IsHalted(accountID) {
		monitoring.UpdateHalted(accountID, true)
		e.reportRejection(ctx, accountID, proposal.Instrument,
			apperrors.NewRejection(apperrors.ReasonAccountHalted, "daily loss limit"))
		return nil
	}

	balance, ok := acct.gate.Balance(accountID)
	if !ok {
		balance = acct.cfg.Balance
	}

	order, rejection, err := acct.sizer.Size(accountID, balance, proposal)
	if err != nil {
		// InvalidStopDistance and other sizing errors are logic bugs,
		// surfaced loudly
		logger.ErrorWithErr(ctx, "position sizing failed", err,
			"account_id", accountID, "instrument", proposal.Instrument)
		return err
	}
	if rejection != nil {
		e.reportRejection(ctx, accountID, proposal.Instrument, rejection)
		return nil
	}

	if rejection := acct.gate.Check(order); rejection != nil {
		monitoring.UpdateHalted(accountID, acct.gate.IsHalted(accountID))
		e.reportRejection(ctx, accountID, proposal.Instrument, rejection)
		return nil
	}

	if err := e.router.Route(order); err != nil {
		// Routing failures stay inside this account
		monitoring.RecordExecutionFailure(accountID)
		logger.ErrorWithErr(ctx, "order routing failed", err,
			"account_id", accountID, "instrument", order.Instrument)
		return nil
	}

	acct.gate.RecordOpen(order)
	monitoring.RecordOrderRouted(accountID, order.Instrument, order.Units)
	if e.hub != nil {
		e.hub.Publish(telemetry.NewOrderEvent(order))
	}
	logger.Trade(ctx, accountID, order.Instrument, order.Side.String(),
		order.Units, order.EntryPrice)
	return nil
}

// HandleResult consumes execution outcomes from the router. Failures are
// reported and isolated; they never stop the engine.
func (e *Engine) HandleResult(res orchestrator.RoutingResult) {
	ctx := context.Background()

	failed := res.Err != nil || (res.Result != nil && !res.Result.Success)
	if failed {
		accountID := ""
		if res.Order != nil {
			accountID = res.Order.AccountID
			// No broker position exists; hand the open-position
			// reservation back so the instrument is not blocked.
			if acct, ok := e.accounts[accountID]; ok {
				acct.gate.Release(res.Order)
			}
		}
		monitoring.RecordExecutionFailure(accountID)
		if res.Err != nil {
			if e.health != nil {
				e.health.RecordError(res.Err.Error())
			}
			logger.ErrorWithErr(ctx, "execution failed", res.Err, "account_id", accountID)
		} else {
			if e.health != nil {
				e.health.RecordError(res.Result.Error)
			}
			logger.Error(ctx, "execution rejected by broker",
				"account_id", accountID, "reason", res.Result.Error)
		}
	}

	if e.hub != nil && res.Order != nil {
		event := telemetry.Event{
			Type:      telemetry.EventExecution,
			Timestamp: e.now().UTC(),
			Execution: &telemetry.ExecutionEvent{
				AccountID:  res.Order.AccountID,
				Instrument: res.Order.Instrument,
			},
		}
		if res.Result != nil {
			event.Execution.Success = res.Result.Success
			event.Execution.BrokerOrderID = res.Result.BrokerOrderID
			event.Execution.Error = res.Result.Error
		}
		if res.Err != nil {
			event.Execution.Error = res.Err.Error()
		}
		e.hub.Publish(event)
	}
}

// RecordOutcome ingests one realized trade close: ledger counters, gate
// P&L, and the threshold feedback loop. Only real broker outcomes belong
// here.
func (e *Engine) RecordOutcome(outcome ledger.TradeOutcome, entryPrice, stopLoss, units float64) {
	e.ledger.Record(outcome)
	if acct, ok := e.accounts[outcome.AccountID]; ok {
		acct.gate.RecordClose(outcome.AccountID, outcome.Instrument, units, entryPrice, stopLoss, outcome.PnL)
		monitoring.UpdateHalted(outcome.AccountID, acct.gate.IsHalted(outcome.AccountID))
	}
}

// accountsFor returns the accounts allowed to trade an instrument, in
// configuration order.
func (e *Engine) accountsFor(instrument string) []*account {
	out := make([]*account, 0, len(e.accounts))
	for _, acctCfg := range e.cfg.Accounts {
		acct := e.accounts[acctCfg.AccountID]
		if acct != nil && acct.cfg.AllowsInstrument(instrument) {
			out = append(out, acct)
		}
	}
	return out
}

func (e *Engine) signalsToday(instrument string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	dc := e.signals[instrument]
	if dc == nil || !dc.day.Equal(e.today()) {
		return 0
	}
	return dc.count
}

func (e *Engine) bumpSignals(instrument string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	today := e.today()
	dc := e.signals[instrument]
	if dc == nil || !dc.day.Equal(today) {
		e.signals[instrument] = &dailyCount{day: today, count: 1}
		return
	}
	dc.count++
}

func (e *Engine) today() time.Time {
	return e.now().UTC().Truncate(24 * time.Hour)
}

func (e *Engine) publishProposal(p *signal.TradeProposal) {
	if e.hub == nil {
		return
	}
	e.hub.Publish(telemetry.Event{
		Type:      telemetry.EventProposal,
		Timestamp: e.now().UTC(),
		Proposal: &telemetry.ProposalEvent{
			Instrument:      p.Instrument,
			Side:            p.Side.String(),
			EntryPrice:      p.EntryPrice,
			StopLoss:        p.StopLoss,
			TakeProfit:      p.TakeProfit,
			SignalStrength:  p.SignalStrength,
			ConfluenceCount: p.ConfluenceCount,
			Factors:         p.Factors,
			Regime:          p.Regime.String(),
		},
	})
}

func (e *Engine) reportRejection(ctx context.Context, accountID, instrument string, rejection *apperrors.Rejection) {
	monitoring.RecordRejection(string(rejection.Reason))
	if e.hub != nil {
		e.hub.Publish(telemetry.Event{
			Type:      telemetry.EventRejection,
			Timestamp: e.now().UTC(),
			Rejection: &telemetry.RejectionEvent{
				AccountID:  accountID,
				Instrument: instrument,
				Reason:     string(rejection.Reason),
				Detail:     rejection.Detail,
			},
		})
	}
	if accountID != "" {
		// Account-level rejections are risk control events; signal-level
		// misses are routine and stay at debug.
		logger.Risk(ctx, instrument, string(rejection.Reason),
			"account_id", accountID, "detail", rejection.Detail)
		return
	}
	logger.Debug(ctx, "no trade this tick",
		"instrument", instrument,
		"reason", fmt.Sprint(rejection))
}
