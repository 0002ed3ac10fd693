package signal

import (
	"fmt"
	"sync/atomic"
	"time"

	apperrors "github.com/tradeloop/fx-confluence-bot/internal/errors"
	"github.com/tradeloop/fx-confluence-bot/internal/indicators"
	"github.com/tradeloop/fx-confluence-bot/internal/regime"
	"github.com/tradeloop/fx-confluence-bot/pkg/types"
)

// Factor names as they appear in TradeProposal.Factors.
const (
	FactorTrend  = "trend_alignment"
	FactorRSI    = "rsi_neutral"
	FactorADX    = "adx_strength"
	FactorVolume = "volume_surge"
	FactorMACD   = "macd_divergence"
)

// TradeProposal is a directional trade candidate. Produced once per
// instrument per tick at most, consumed once by the risk sizer, never
// mutated.
type TradeProposal struct {
	Instrument      string
	Side            types.Side
	EntryPrice      float64
	StopLoss        float64
	TakeProfit      float64
	SignalStrength  float64
	ConfluenceCount int
	Factors         []string
	Regime          regime.Regime
	Timestamp       time.Time
}

// Config drives the generator entirely as data. Strategy variants are
// different Config values, never substituted code.
type Config struct {
	FastEMAPeriod  int `json:"fast_ema_period" yaml:"fast_ema_period"`
	SlowEMAPeriod  int `json:"slow_ema_period" yaml:"slow_ema_period"`
	RSIPeriod      int `json:"rsi_period" yaml:"rsi_period"`
	ADXPeriod      int `json:"adx_period" yaml:"adx_period"`
	ATRPeriod      int `json:"atr_period" yaml:"atr_period"`
	MACDFast       int `json:"macd_fast" yaml:"macd_fast"`
	MACDSlow       int `json:"macd_slow" yaml:"macd_slow"`
	MACDSignal     int `json:"macd_signal" yaml:"macd_signal"`
	VolumeSMABars  int `json:"volume_sma_bars" yaml:"volume_sma_bars"`

	TrendWeight  float64 `json:"trend_weight" yaml:"trend_weight"`
	RSIWeight    float64 `json:"rsi_weight" yaml:"rsi_weight"`
	ADXWeight    float64 `json:"adx_weight" yaml:"adx_weight"`
	VolumeWeight float64 `json:"volume_weight" yaml:"volume_weight"`
	MACDWeight   float64 `json:"macd_weight" yaml:"macd_weight"`

	RSINeutralLow    float64 `json:"rsi_neutral_low" yaml:"rsi_neutral_low"`
	RSINeutralHigh   float64 `json:"rsi_neutral_high" yaml:"rsi_neutral_high"`
	ADXMin           float64 `json:"adx_min" yaml:"adx_min"`
	VolumeMultiple   float64 `json:"volume_multiple" yaml:"volume_multiple"`
	MinStrength      float64 `json:"min_strength" yaml:"min_strength"`
	MinConfluence    int     `json:"min_confluence" yaml:"min_confluence"`
	ConfirmationBars int     `json:"confirmation_bars" yaml:"confirmation_bars"`
	MaxSignalsPerDay int     `json:"max_signals_per_day" yaml:"max_signals_per_day"`

	StopATRMultiple   float64 `json:"stop_atr_multiple" yaml:"stop_atr_multiple"`
	TargetATRMultiple float64 `json:"target_atr_multiple" yaml:"target_atr_multiple"`

	MinBars int `json:"min_bars" yaml:"min_bars"`

	// RegimeMultipliers scale MinStrength and VolumeMultiple per regime.
	// TRENDING eases requirements, the rest tighten them.
	RegimeMultipliers map[regime.Regime]float64 `json:"-" yaml:"-"`
}

// NewDefaultConfig creates the default generator configuration
func NewDefaultConfig() Config {
	return Config{
		FastEMAPeriod: 20,
		SlowEMAPeriod: 50,
		RSIPeriod:     14,
		ADXPeriod:     14,
		ATRPeriod:     14,
		MACDFast:      12,
		MACDSlow:      26,
		MACDSignal:    9,
		VolumeSMABars: 20,

		TrendWeight:  0.25,
		RSIWeight:    0.20,
		ADXWeight:    0.20,
		VolumeWeight: 0.20,
		MACDWeight:   0.15,

		RSINeutralLow:    40,
		RSINeutralHigh:   60,
		ADXMin:           20,
		VolumeMultiple:   1.2,
		MinStrength:      0.55,
		MinConfluence:    2,
		ConfirmationBars: 3,
		MaxSignalsPerDay: 3,

		StopATRMultiple:   1.5,
		TargetATRMultiple: 3.0,

		MinBars: 50,

		RegimeMultipliers: map[regime.Regime]float64{
			regime.RegimeTrending: 0.85,
			regime.RegimeRanging:  1.10,
			regime.RegimeVolatile: 1.25,
			regime.RegimeUnknown:  1.15,
		},
	}
}

// Validate validates the generator configuration
func (c Config) Validate() error {
	total := c.TrendWeight + c.RSIWeight + c.ADXWeight + c.VolumeWeight + c.MACDWeight
	if total < 0.999 || total > 1.001 {
		return fmt.Errorf("factor weights must sum to 1.0, got %.3f", total)
	}
	if c.FastEMAPeriod >= c.SlowEMAPeriod {
		return fmt.Errorf("fast ema period (%d) must be below slow ema period (%d)", c.FastEMAPeriod, c.SlowEMAPeriod)
	}
	if c.RSINeutralLow >= c.RSINeutralHigh {
		return fmt.Errorf("rsi neutral band invalid: [%.1f, %.1f]", c.RSINeutralLow, c.RSINeutralHigh)
	}
	if c.MinConfluence < 1 || c.MinConfluence > 5 {
		return fmt.Errorf("min confluence must be between 1 and 5, got %d", c.MinConfluence)
	}
	if c.ConfirmationBars < 2 {
		return fmt.Errorf("confirmation bars must be at least 2, got %d", c.ConfirmationBars)
	}
	if c.StopATRMultiple <= 0 || c.TargetATRMultiple <= 0 {
		return fmt.Errorf("stop/target atr multiples must be positive")
	}
	if c.TargetATRMultiple <= c.StopATRMultiple {
		return fmt.Errorf("target multiple (%.2f) must exceed stop multiple (%.2f)", c.TargetATRMultiple, c.StopATRMultiple)
	}
	for _, rgm := range []regime.Regime{regime.RegimeTrending, regime.RegimeRanging, regime.RegimeVolatile, regime.RegimeUnknown} {
		if m, ok := c.RegimeMultipliers[rgm]; !ok || m <= 0 {
			return fmt.Errorf("missing or non-positive regime multiplier for %s", rgm)
		}
	}
	return nil
}

// EvalState is the engine-owned mutable state consulted during one
// evaluation. Keeping it out of the generator makes Evaluate a pure
// function of its inputs.
type EvalState struct {
	// SignalsToday is how many proposals this instrument already produced
	// during the current trading day.
	SignalsToday int
}

// Generator scores weighted confluence factors and emits at most one
// TradeProposal per instrument per tick. The active Config is held behind
// an atomic pointer so the ledger feedback hook can swap thresholds
// without pausing evaluation.
type Generator struct {
	config  atomic.Pointer[Config]
	version atomic.Int64

	fastEMA *indicators.EMA
	slowEMA *indicators.EMA
	rsi     *indicators.RSI
	adx     *indicators.ADX
	atr     *indicators.ATR
	macd    *indicators.MACD
	volSMA  *indicators.SMA
}

// NewGenerator creates a new confluence signal generator
func NewGenerator(config Config) (*Generator, error) {
	if err := config.Validate(); err != nil {
		return nil, apperrors.NewConfigError("signal", "new_generator", err.Error())
	}

	g := &Generator{
		fastEMA: indicators.NewEMA(config.FastEMAPeriod),
		slowEMA: indicators.NewEMA(config.SlowEMAPeriod),
		rsi:     indicators.NewRSI(config.RSIPeriod),
		adx:     indicators.NewADX(config.ADXPeriod),
		atr:     indicators.NewATR(config.ATRPeriod),
		macd:    indicators.NewMACD(config.MACDFast, config.MACDSlow, config.MACDSignal),
		volSMA:  indicators.NewSMA(config.VolumeSMABars),
	}
	g.config.Store(&config)
	g.version.Store(1)
	return g, nil
}

// Config returns the active configuration value.
func (g *Generator) Config() Config {
	return *g.config.Load()
}

// ConfigVersion returns the version of the active configuration. It
// advances by one on every ApplyFeedback call.
func (g *Generator) ConfigVersion() int64 {
	return g.version.Load()
}

// Evaluate scores the instrument and returns either a proposal or a typed
// no-signal rejection. Exactly one of the two returns is non-nil.
func (g *Generator) Evaluate(instrument string, bars []types.PriceBar, rgm regime.Regime, state EvalState) (*TradeProposal, *apperrors.Rejection) {
	cfg := g.config.Load()

	if len(bars) < cfg.MinBars {
		return nil, apperrors.NewRejection(apperrors.ReasonDataInsufficient,
			fmt.Sprintf("%s: %d of %d bars", instrument, len(bars), cfg.MinBars))
	}

	if cfg.MaxSignalsPerDay > 0 && state.SignalsToday >= cfg.MaxSignalsPerDay {
		return nil, apperrors.NewRejection(apperrors.ReasonDailyCapReached,
			fmt.Sprintf("%s: %d signals today", instrument, state.SignalsToday))
	}

	multiplier := cfg.RegimeMultipliers[rgm]

	close := bars[len(bars)-1].Close
	fast := g.fastEMA.Calculate(bars)
	slow := g.slowEMA.Calculate(bars)

	side, ok := direction(close, fast, slow)
	if !ok {
		return nil, apperrors.NewRejection(apperrors.ReasonSignalRejected,
			fmt.Sprintf("%s: no ema direction", instrument))
	}

	strength := 0.0
	factors := make([]string, 0, 5)

	// Trend alignment: price on the signal side of both EMAs, fast
	// leading slow
	strength += cfg.TrendWeight
	factors = append(factors, FactorTrend)

	if rsiValue := g.rsi.Calculate(bars); rsiValue >= cfg.RSINeutralLow && rsiValue <= cfg.RSINeutralHigh {
		strength += cfg.RSIWeight
		factors = append(factors, FactorRSI)
	}

	if g.adx.Calculate(bars) >= cfg.ADXMin {
		strength += cfg.ADXWeight
		factors = append(factors, FactorADX)
	}

	avgVolume := g.volSMA.CalculateVolume(bars[:len(bars)-1])
	if avgVolume > 0 && bars[len(bars)-1].Volume >= avgVolume*cfg.VolumeMultiple*multiplier {
		strength += cfg.VolumeWeight
		factors = append(factors, FactorVolume)
	}

	_, _, histogram := g.macd.Calculate(bars)
	if (side == types.SideBuy && histogram > 0) || (side == types.SideSell && histogram < 0) {
		strength += cfg.MACDWeight
		factors = append(factors, FactorMACD)
	}

	required := cfg.MinStrength * multiplier
	if required > 1.0 {
		required = 1.0
	}
	if strength < required {
		return nil, apperrors.NewRejection(apperrors.ReasonSignalRejected,
			fmt.Sprintf("%s: strength %.2f below %.2f in %s", instrument, strength, required, rgm))
	}
	if len(factors) < cfg.MinConfluence {
		return nil, apperrors.NewRejection(apperrors.ReasonSignalRejected,
			fmt.Sprintf("%s: confluence %d below %d", instrument, len(factors), cfg.MinConfluence))
	}
	if !confirmed(bars, side, cfg.ConfirmationBars) {
		return nil, apperrors.NewRejection(apperrors.ReasonSignalRejected,
			fmt.Sprintf("%s: confirmation bars not aligned", instrument))
	}

	atrValue := g.atr.Calculate(bars)
	if atrValue <= 0 {
		return nil, apperrors.NewRejection(apperrors.ReasonSignalRejected,
			fmt.Sprintf("%s: zero atr", instrument))
	}

	stop := close - atrValue*cfg.StopATRMultiple
	target := close + atrValue*cfg.TargetATRMultiple
	if side == types.SideSell {
		stop = close + atrValue*cfg.StopATRMultiple
		target = close - atrValue*cfg.TargetATRMultiple
	}

	return &TradeProposal{
		Instrument:      instrument,
		Side:            side,
		EntryPrice:      close,
		StopLoss:        stop,
		TakeProfit:      target,
		SignalStrength:  strength,
		ConfluenceCount: len(factors),
		Factors:         factors,
		Regime:          rgm,
		Timestamp:       bars[len(bars)-1].Timestamp,
	}, nil
}

// direction derives the signal side from the price/EMA ordering. No
// consistent ordering means no proposal this tick.
func direction(close, fast, slow float64) (types.Side, bool) {
	if close > fast && fast > slow {
		return types.SideBuy, true
	}
	if close < fast && fast < slow {
		return types.SideSell, true
	}
	return 0, false
}

// confirmed checks that of the last n closes, n-1 moved in the signal's
// direction.
func confirmed(bars []types.PriceBar, side types.Side, n int) bool {
	if len(bars) < n+1 {
		return false
	}

	aligned := 0
	for i := len(bars) - n; i < len(bars); i++ {
		delta := bars[i].Close - bars[i-1].Close
		if (side == types.SideBuy && delta > 0) || (side == types.SideSell && delta < 0) {
			aligned++
		}
	}
	return aligned >= n-1
}

// ApplyFeedback nudges the strength threshold from observed win-rate
// drift in one regime. A positive drift (winning more than expected)
// eases the threshold, a negative drift tightens it, both within hard
// bounds. The swap is an atomic config replacement: parameter changes
// are data updates, never code edits.
func (g *Generator) ApplyFeedback(rgm regime.Regime, winRateDrift float64) {
	const (
		step        = 0.05
		minStrength = 0.30
		maxStrength = 0.90
	)

	current := g.config.Load()
	next := *current
	next.RegimeMultipliers = make(map[regime.Regime]float64, len(current.RegimeMultipliers))
	for k, v := range current.RegimeMultipliers {
		next.RegimeMultipliers[k] = v
	}

	adjusted := next.RegimeMultipliers[rgm]
	switch {
	case winRateDrift < 0:
		adjusted += step
	case winRateDrift > 0:
		adjusted -= step
	}

	// Keep the effective threshold inside sane limits
	if eff := next.MinStrength * adjusted; eff < minStrength {
		adjusted = minStrength / next.MinStrength
	} else if eff > maxStrength {
		adjusted = maxStrength / next.MinStrength
	}
	next.RegimeMultipliers[rgm] = adjusted

	g.config.Store(&next)
	g.version.Add(1)
}
