package risk

import (
	"fmt"
	"math"
	"strings"
	"time"

	apperrors "github.com/tradeloop/fx-confluence-bot/internal/errors"
	"github.com/tradeloop/fx-confluence-bot/internal/signal"
	"github.com/tradeloop/fx-confluence-bot/pkg/types"
)

// SizerConfig bounds position sizing per account. MinUnits/MaxUnits are
// per-strategy bounds; FloorUnits is the broker-wide minimum trade size
// and outranks them.
type SizerConfig struct {
	RiskPerTradePct  float64 `json:"risk_per_trade_pct" yaml:"risk_per_trade_pct"`
	RiskCeilingPct   float64 `json:"risk_ceiling_pct" yaml:"risk_ceiling_pct"`
	MinUnits         float64 `json:"min_units" yaml:"min_units"`
	MaxUnits         float64 `json:"max_units" yaml:"max_units"`
	FloorUnits       float64 `json:"floor_units" yaml:"floor_units"`
	ConfidenceBoost  bool    `json:"confidence_boost" yaml:"confidence_boost"`
	BoostThreshold   float64 `json:"boost_threshold" yaml:"boost_threshold"`
	MaxBoostMultiple float64 `json:"max_boost_multiple" yaml:"max_boost_multiple"`
}

// NewDefaultSizerConfig creates the default sizing configuration
func NewDefaultSizerConfig() SizerConfig {
	return SizerConfig{
		RiskPerTradePct:  1.5,
		RiskCeilingPct:   3.0,
		MinUnits:         100,
		MaxUnits:         500000,
		FloorUnits:       1000,
		ConfidenceBoost:  true,
		BoostThreshold:   0.90,
		MaxBoostMultiple: 2.0,
	}
}

// Validate validates the sizing configuration
func (c SizerConfig) Validate() error {
	if c.RiskPerTradePct <= 0 || c.RiskPerTradePct > 10 {
		return fmt.Errorf("risk per trade must be in (0, 10] percent, got %.2f", c.RiskPerTradePct)
	}
	if c.RiskCeilingPct < c.RiskPerTradePct {
		return fmt.Errorf("risk ceiling %.2f%% must be at least risk per trade %.2f%%", c.RiskCeilingPct, c.RiskPerTradePct)
	}
	if c.MinUnits <= 0 || c.MaxUnits <= c.MinUnits {
		return fmt.Errorf("unit bounds invalid: min %.0f max %.0f", c.MinUnits, c.MaxUnits)
	}
	if c.FloorUnits <= 0 {
		return fmt.Errorf("floor units must be positive, got %.0f", c.FloorUnits)
	}
	if c.ConfidenceBoost {
		if c.BoostThreshold <= 0 || c.BoostThreshold > 1 {
			return fmt.Errorf("boost threshold must be in (0, 1], got %.2f", c.BoostThreshold)
		}
		if c.MaxBoostMultiple < 1 {
			return fmt.Errorf("max boost multiple must be at least 1, got %.2f", c.MaxBoostMultiple)
		}
	}
	return nil
}

// Sizer converts trade proposals into sized order requests. It is
// stateless: account balance arrives with every call so multiple
// accounts can share one instance.
type Sizer struct {
	config SizerConfig
}

// NewSizer creates a new position sizer
func NewSizer(config SizerConfig) (*Sizer, error) {
	if err := config.Validate(); err != nil {
		return nil, apperrors.NewConfigError("risk", "new_sizer", err.Error())
	}
	return &Sizer{config: config}, nil
}

// Size computes order units from the account balance and stop distance.
// Exactly one of the three returns is meaningful: an order, a typed
// below-minimum rejection, or an invalid-stop error.
func (s *Sizer) Size(accountID string, balance float64, proposal *signal.TradeProposal) (*types.OrderRequest, *apperrors.Rejection, error) {
	if balance <= 0 {
		return nil, nil, apperrors.NewEngineError(apperrors.ErrorCategoryLogic, "risk", "size",
			fmt.Sprintf("account %s has non-positive balance %.2f", accountID, balance), nil)
	}

	stopDistance := math.Abs(proposal.EntryPrice - proposal.StopLoss)
	if stopDistance <= 0 || math.IsNaN(stopDistance) || math.IsInf(stopDistance, 0) {
		return nil, nil, apperrors.WrapError(apperrors.ErrInvalidStopDistance,
			apperrors.ErrorCategoryLogic, "risk", "size",
			fmt.Sprintf("%s %s: entry %.5f stop %.5f", accountID, proposal.Instrument, proposal.EntryPrice, proposal.StopLoss))
	}

	riskAmount := balance * s.config.RiskPerTradePct / 100

	if s.config.ConfidenceBoost && proposal.SignalStrength >= s.config.BoostThreshold {
		boost := 1 + (proposal.SignalStrength-s.config.BoostThreshold)*10
		if boost > s.config.MaxBoostMultiple {
			boost = s.config.MaxBoostMultiple
		}
		riskAmount *= boost
		// Boosted or not, never risk more than the absolute ceiling
		if ceiling := balance * s.config.RiskCeilingPct / 100; riskAmount > ceiling {
			riskAmount = ceiling
		}
	}

	units := riskAmount / stopDistance
	units *= instrumentScale(proposal.Instrument, proposal.EntryPrice)

	if units < s.config.MinUnits {
		units = s.config.MinUnits
	}
	if units > s.config.MaxUnits {
		units = s.config.MaxUnits
	}
	units = math.Floor(units)

	// The global floor outranks the per-strategy minimum: a clamped size
	// still under the floor is rejected, never rounded up.
	if units < s.config.FloorUnits {
		return nil, apperrors.NewRejection(apperrors.ReasonBelowMinimumSize,
			fmt.Sprintf("%s %s: %.0f units below floor %.0f", accountID, proposal.Instrument, units, s.config.FloorUnits)), nil
	}

	return &types.OrderRequest{
		Instrument: proposal.Instrument,
		Side:       proposal.Side,
		Units:      units,
		EntryPrice: proposal.EntryPrice,
		StopLoss:   proposal.StopLoss,
		TakeProfit: proposal.TakeProfit,
		Confidence: proposal.SignalStrength,
		AccountID:  accountID,
		Timestamp:  time.Now().UTC(),
	}, nil, nil
}

// instrumentScale adjusts the unit formula for quote conventions. Yen
// quotes carry the risk amount in hundreds of the account currency, so
// units convert back through the rate. Metals trade in tenth-ounce base
// units to temper their nominal swings.
func instrumentScale(instrument string, entryPrice float64) float64 {
	switch {
	case strings.HasSuffix(instrument, "_JPY"):
		return entryPrice
	case strings.HasPrefix(instrument, "XAU_"), strings.HasPrefix(instrument, "XAG_"):
		return 0.1
	default:
		return 1.0
	}
}
