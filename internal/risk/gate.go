package risk

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/tradeloop/fx-confluence-bot/internal/errors"
	"github.com/tradeloop/fx-confluence-bot/pkg/types"
)

// GateConfig bounds one account's trading activity.
type GateConfig struct {
	// Sessions maps instrument to the UTC hours it may trade. An empty
	// map or missing entry disables the session filter for that
	// instrument.
	Sessions map[string][]int `json:"sessions" yaml:"sessions"`

	MaxDailyTradesAccount    int `json:"max_daily_trades_account" yaml:"max_daily_trades_account"`
	MaxDailyTradesInstrument int `json:"max_daily_trades_instrument" yaml:"max_daily_trades_instrument"`
	MaxOpenPositions         int `json:"max_open_positions" yaml:"max_open_positions"`
	MaxOpenPerInstrument     int `json:"max_open_per_instrument" yaml:"max_open_per_instrument"`

	DailyLossLimitPct float64 `json:"daily_loss_limit_pct" yaml:"daily_loss_limit_pct"`
	MaxExposurePct    float64 `json:"max_exposure_pct" yaml:"max_exposure_pct"`
}

// NewDefaultGateConfig creates the default gate configuration
func NewDefaultGateConfig() GateConfig {
	return GateConfig{
		Sessions:                 map[string][]int{},
		MaxDailyTradesAccount:    10,
		MaxDailyTradesInstrument: 3,
		MaxOpenPositions:         5,
		MaxOpenPerInstrument:     1,
		DailyLossLimitPct:        3.0,
		MaxExposurePct:           20.0,
	}
}

// Validate validates the gate configuration
func (c GateConfig) Validate() error {
	if c.MaxDailyTradesAccount <= 0 || c.MaxDailyTradesInstrument <= 0 {
		return fmt.Errorf("daily trade caps must be positive")
	}
	if c.MaxOpenPositions <= 0 || c.MaxOpenPerInstrument <= 0 {
		return fmt.Errorf("open position caps must be positive")
	}
	if c.MaxOpenPerInstrument > c.MaxOpenPositions {
		return fmt.Errorf("per-instrument open cap (%d) exceeds global cap (%d)", c.MaxOpenPerInstrument, c.MaxOpenPositions)
	}
	if c.DailyLossLimitPct <= 0 || c.DailyLossLimitPct > 100 {
		return fmt.Errorf("daily loss limit must be in (0, 100] percent, got %.2f", c.DailyLossLimitPct)
	}
	if c.MaxExposurePct <= 0 || c.MaxExposurePct > 100 {
		return fmt.Errorf("exposure cap must be in (0, 100] percent, got %.2f", c.MaxExposurePct)
	}
	for instrument, hours := range c.Sessions {
		for _, h := range hours {
			if h < 0 || h > 23 {
				return fmt.Errorf("session hour %d for %s out of range", h, instrument)
			}
		}
	}
	return nil
}

// accountState is the mutable per-account ledger behind the gate. Its
// mutex covers everything except haltDay, which hot-path callers read
// without taking the lock.
type accountState struct {
	mu sync.Mutex

	// haltDay holds the unix time of the UTC midnight the account was
	// halted on, zero when not halted. A halt expires by itself when the
	// calendar day it names is over, so readers never need the mutex or
	// a prior counter reset to observe the account trading again.
	haltDay atomic.Int64

	day                time.Time
	dailyTrades        int
	dailyTradesByInstr map[string]int
	dailyPnL           float64
	openPositions      int
	openByInstrument   map[string]int
	openRisk           float64
	balance            float64
}

func newAccountState(balance float64, now time.Time) *accountState {
	return &accountState{
		day:                utcDay(now),
		dailyTradesByInstr: make(map[string]int),
		openByInstrument:   make(map[string]int),
		balance:            balance,
	}
}

func utcDay(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}

// halt marks the account halted for its current day. Caller holds the
// mutex.
func (s *accountState) halt() {
	s.haltDay.Store(s.day.Unix())
}

func (s *accountState) haltedOn(day time.Time) bool {
	hd := s.haltDay.Load()
	return hd != 0 && hd == day.Unix()
}

// rollDay resets the daily counters when the UTC calendar day changes.
// Caller holds the mutex.
func (s *accountState) rollDay(now time.Time) {
	day := utcDay(now)
	if day.Equal(s.day) {
		return
	}
	s.day = day
	s.dailyTrades = 0
	s.dailyTradesByInstr = make(map[string]int)
	s.dailyPnL = 0
	s.haltDay.Store(0)
}

// Gate enforces per-account trading limits. All state is scoped to one
// account; no lock ever spans accounts.
type Gate struct {
	config GateConfig

	mu       sync.RWMutex
	accounts map[string]*accountState

	now func() time.Time
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithGateClock overrides the gate's time source. Day rollovers and
// session checks follow the supplied clock.
func WithGateClock(now func() time.Time) GateOption {
	return func(g *Gate) { g.now = now }
}

// NewGate creates a new portfolio risk gate
func NewGate(config GateConfig, opts ...GateOption) (*Gate, error) {
	if err := config.Validate(); err != nil {
		return nil, apperrors.NewConfigError("risk", "new_gate", err.Error())
	}
	g := &Gate{
		config:   config,
		accounts: make(map[string]*accountState),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// RegisterAccount creates gate state for an account. Must be called
// before the first Check for that account.
func (g *Gate) RegisterAccount(accountID string, balance float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.accounts[accountID]; !ok {
		g.accounts[accountID] = newAccountState(balance, g.now())
	}
}

func (g *Gate) state(accountID string) *accountState {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.accounts[accountID]
}

// IsHalted reports whether the account is halted for the current UTC
// day. Lock-free; intended for the per-tick hot path. A halt recorded
// yesterday reads false today even before any counter reset runs.
func (g *Gate) IsHalted(accountID string) bool {
	s := g.state(accountID)
	return s != nil && s.haltedOn(utcDay(g.now()))
}

// Check runs the ordered limit checks against one order request. A nil
// return approves the request; otherwise the rejection names the first
// check that failed. The gate never partially approves.
func (g *Gate) Check(order *types.OrderRequest) *apperrors.Rejection {
	s := g.state(order.AccountID)
	if s == nil {
		return apperrors.NewRejection(apperrors.ReasonRiskLimitExceeded,
			fmt.Sprintf("account %s not registered with the gate", order.AccountID))
	}

	now := g.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollDay(now)

	// 1. Session window
	if hours, ok := g.config.Sessions[order.Instrument]; ok && len(hours) > 0 {
		if !hourEnabled(hours, now.UTC().Hour()) {
			return apperrors.NewRejection(apperrors.ReasonSessionClosed,
				fmt.Sprintf("%s closed at %02d:00 UTC", order.Instrument, now.UTC().Hour()))
		}
	}

	// 2. Daily trade caps
	if s.dailyTrades >= g.config.MaxDailyTradesAccount {
		return apperrors.NewRejection(apperrors.ReasonDailyCapReached,
			fmt.Sprintf("account %s: %d trades today", order.AccountID, s.dailyTrades))
	}
	if s.dailyTradesByInstr[order.Instrument] >= g.config.MaxDailyTradesInstrument {
		return apperrors.NewRejection(apperrors.ReasonDailyCapReached,
			fmt.Sprintf("%s on %s: %d trades today", order.AccountID, order.Instrument, s.dailyTradesByInstr[order.Instrument]))
	}

	// 3. Open position caps
	if s.openPositions >= g.config.MaxOpenPositions {
		return apperrors.NewRejection(apperrors.ReasonPositionCapReached,
			fmt.Sprintf("account %s: %d positions open", order.AccountID, s.openPositions))
	}
	if s.openByInstrument[order.Instrument] >= g.config.MaxOpenPerInstrument {
		return apperrors.NewRejection(apperrors.ReasonPositionCapReached,
			fmt.Sprintf("%s on %s: position already open", order.AccountID, order.Instrument))
	}

	// 4. Daily loss limit
	lossLimit := s.balance * g.config.DailyLossLimitPct / 100
	if s.dailyPnL <= -lossLimit {
		s.halt()
		return apperrors.NewRejection(apperrors.ReasonAccountHalted,
			fmt.Sprintf("account %s: daily loss %.2f breached limit %.2f", order.AccountID, -s.dailyPnL, lossLimit))
	}
	if s.haltedOn(s.day) {
		return apperrors.NewRejection(apperrors.ReasonAccountHalted,
			fmt.Sprintf("account %s halted until next UTC day", order.AccountID))
	}

	// 5. Exposure cap
	orderRisk := order.Units * riskPerUnit(order)
	exposureCap := s.balance * g.config.MaxExposurePct / 100
	if s.openRisk+orderRisk > exposureCap {
		return apperrors.NewRejection(apperrors.ReasonExposureCapReached,
			fmt.Sprintf("account %s: open risk %.2f + %.2f exceeds cap %.2f", order.AccountID, s.openRisk, orderRisk, exposureCap))
	}

	return nil
}

// RecordOpen books an approved, routed order against the account's
// counters.
func (g *Gate) RecordOpen(order *types.OrderRequest) {
	s := g.state(order.AccountID)
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollDay(g.now())
	s.dailyTrades++
	s.dailyTradesByInstr[order.Instrument]++
	s.openPositions++
	s.openByInstrument[order.Instrument]++
	s.openRisk += order.Units * riskPerUnit(order)
}

// Release returns an order's open-position reservation after the broker
// failed to fill it. No position exists, so only the open counters and
// risk booked by RecordOpen come back; the daily trade count stands,
// the attempt was made.
func (g *Gate) Release(order *types.OrderRequest) {
	s := g.state(order.AccountID)
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openPositions > 0 {
		s.openPositions--
	}
	if s.openByInstrument[order.Instrument] > 0 {
		s.openByInstrument[order.Instrument]--
	}
	s.openRisk -= order.Units * riskPerUnit(order)
	if s.openRisk < 0 {
		s.openRisk = 0
	}
}

// RecordClose books a closed position and its realized P&L. A loss that
// breaches the daily limit halts the account immediately.
func (g *Gate) RecordClose(accountID, instrument string, units, entryPrice, stopLoss, pnl float64) {
	s := g.state(accountID)
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollDay(g.now())

	if s.openPositions > 0 {
		s.openPositions--
	}
	if s.openByInstrument[instrument] > 0 {
		s.openByInstrument[instrument]--
	}
	s.openRisk -= units * stopGap(entryPrice, stopLoss)
	if s.openRisk < 0 {
		s.openRisk = 0
	}
	s.dailyPnL += pnl

	if s.dailyPnL <= -(s.balance * g.config.DailyLossLimitPct / 100) {
		s.halt()
	}
}

// UpdateUnrealized folds current unrealized P&L into the halt decision
// without touching the realized counters.
func (g *Gate) UpdateUnrealized(accountID string, unrealized float64) {
	s := g.state(accountID)
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollDay(g.now())
	if s.dailyPnL+unrealized <= -(s.balance * g.config.DailyLossLimitPct / 100) {
		s.halt()
	}
}

// Balance returns the gate's balance reference for an account.
func (g *Gate) Balance(accountID string) (float64, bool) {
	s := g.state(accountID)
	if s == nil {
		return 0, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balance, true
}

func hourEnabled(hours []int, hour int) bool {
	for _, h := range hours {
		if h == hour {
			return true
		}
	}
	return false
}

func riskPerUnit(order *types.OrderRequest) float64 {
	return stopGap(order.EntryPrice, order.StopLoss)
}

func stopGap(entry, stop float64) float64 {
	if entry > stop {
		return entry - stop
	}
	return stop - entry
}
