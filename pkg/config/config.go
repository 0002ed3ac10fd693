package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/tradeloop/fx-confluence-bot/internal/errors"
	"github.com/tradeloop/fx-confluence-bot/internal/regime"
	"github.com/tradeloop/fx-confluence-bot/internal/risk"
	"github.com/tradeloop/fx-confluence-bot/internal/signal"
)

// AccountConfig describes one trading account.
type AccountConfig struct {
	AccountID       string   `json:"account_id" yaml:"account_id"`
	Balance         float64  `json:"balance" yaml:"balance"`
	Currency        string   `json:"currency" yaml:"currency"`
	RiskPerTradePct float64  `json:"risk_per_trade_pct" yaml:"risk_per_trade_pct"`
	Instruments     []string `json:"instruments" yaml:"instruments"`

	Sizer risk.SizerConfig `json:"sizer" yaml:"sizer"`
	Gate  risk.GateConfig  `json:"gate" yaml:"gate"`
}

// AllowsInstrument reports whether the account may trade an instrument.
// An empty allow-list permits everything.
func (a AccountConfig) AllowsInstrument(instrument string) bool {
	if len(a.Instruments) == 0 {
		return true
	}
	for _, allowed := range a.Instruments {
		if allowed == instrument {
			return true
		}
	}
	return false
}

// EngineConfig is the full engine configuration, loaded once at startup
// and treated as immutable afterwards.
type EngineConfig struct {
	Instruments         []string `json:"instruments" yaml:"instruments"`
	PollIntervalSeconds int      `json:"poll_interval_seconds" yaml:"poll_interval_seconds"`
	MaxBars             int      `json:"max_bars" yaml:"max_bars"`

	Regime regime.Config `json:"regime" yaml:"regime"`
	Signal signal.Config `json:"signal" yaml:"signal"`

	Accounts []AccountConfig `json:"accounts" yaml:"accounts"`

	ListenAddr   string `json:"listen_addr" yaml:"listen_addr"`
	SnapshotPath string `json:"snapshot_path" yaml:"snapshot_path"`
}

// NewDefaultEngineConfig creates the default engine configuration
func NewDefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Instruments:         []string{"EUR_USD"},
		PollIntervalSeconds: 60,
		MaxBars:             500,
		Regime:              regime.NewDefaultConfig(),
		Signal:              signal.NewDefaultConfig(),
		ListenAddr:          ":8080",
		SnapshotPath:        "data/ledger.json",
	}
}

// PollInterval returns the evaluation interval as a duration.
func (c *EngineConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// Load reads the engine configuration from a JSON or YAML file, applying
// file values over the defaults. A malformed or invalid file is fatal.
func Load(path string) (*EngineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.NewConfigError("config", "load",
			fmt.Sprintf("cannot read %s: %v", path, err))
	}

	cfg := NewDefaultEngineConfig()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		return nil, apperrors.NewConfigError("config", "load",
			fmt.Sprintf("unsupported config format %q", filepath.Ext(path)))
	}
	if err != nil {
		return nil, apperrors.NewConfigError("config", "load",
			fmt.Sprintf("cannot parse %s: %v", path, err))
	}

	cfg.applyAccountDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyAccountDefaults fills unset per-account sizer and gate sections
// with the standard defaults so config files only need to state
// overrides.
func (c *EngineConfig) applyAccountDefaults() {
	for i := range c.Accounts {
		acct := &c.Accounts[i]
		if acct.Sizer == (risk.SizerConfig{}) {
			acct.Sizer = risk.NewDefaultSizerConfig()
		}
		if acct.Gate.MaxDailyTradesAccount == 0 && acct.Gate.MaxOpenPositions == 0 {
			sessions := acct.Gate.Sessions
			acct.Gate = risk.NewDefaultGateConfig()
			if sessions != nil {
				acct.Gate.Sessions = sessions
			}
		}
		if acct.RiskPerTradePct > 0 {
			acct.Sizer.RiskPerTradePct = acct.RiskPerTradePct
			if acct.Sizer.RiskCeilingPct < acct.RiskPerTradePct {
				acct.Sizer.RiskCeilingPct = acct.RiskPerTradePct * 2
			}
		}
	}
}

// Validate validates the engine configuration
func (c *EngineConfig) Validate() error {
	if len(c.Instruments) == 0 {
		return apperrors.NewConfigError("config", "validate", "no instruments configured")
	}
	if c.PollIntervalSeconds <= 0 {
		return apperrors.NewConfigError("config", "validate", "poll interval must be positive")
	}
	if c.MaxBars < c.Regime.MinBars {
		return apperrors.NewConfigError("config", "validate",
			fmt.Sprintf("max bars %d below the %d required for regime classification", c.MaxBars, c.Regime.MinBars))
	}
	if err := c.Regime.Validate(); err != nil {
		return apperrors.NewConfigError("config", "validate", fmt.Sprintf("regime: %v", err))
	}
	if err := c.Signal.Validate(); err != nil {
		return apperrors.NewConfigError("config", "validate", fmt.Sprintf("signal: %v", err))
	}
	if len(c.Accounts) == 0 {
		return apperrors.NewConfigError("config", "validate", "no accounts configured")
	}

	seen := make(map[string]bool, len(c.Accounts))
	for i, acct := range c.Accounts {
		if acct.AccountID == "" {
			return apperrors.NewConfigError("config", "validate",
				fmt.Sprintf("account %d has no account_id", i))
		}
		if seen[acct.AccountID] {
			return apperrors.NewConfigError("config", "validate",
				fmt.Sprintf("duplicate account_id %s", acct.AccountID))
		}
		seen[acct.AccountID] = true

		if acct.Balance <= 0 {
			return apperrors.NewConfigError("config", "validate",
				fmt.Sprintf("account %s has non-positive balance", acct.AccountID))
		}
		if err := acct.Sizer.Validate(); err != nil {
			return apperrors.NewConfigError("config", "validate",
				fmt.Sprintf("account %s sizer: %v", acct.AccountID, err))
		}
		if err := acct.Gate.Validate(); err != nil {
			return apperrors.NewConfigError("config", "validate",
				fmt.Sprintf("account %s gate: %v", acct.AccountID, err))
		}
	}
	return nil
}
