package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/tradeloop/fx-confluence-bot/internal/errors"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const yamlConfig = `
instruments: [EUR_USD, USD_JPY]
poll_interval_seconds: 30
accounts:
  - account_id: acct-1
    balance: 100000
    currency: USD
    risk_per_trade_pct: 2.0
    instruments: [EUR_USD]
`

func TestLoad_YAML(t *testing.T) {
	cfg, err := Load(writeConfig(t, "engine.yaml", yamlConfig))
	require.NoError(t, err)

	assert.Equal(t, []string{"EUR_USD", "USD_JPY"}, cfg.Instruments)
	assert.Equal(t, 30*time.Second, cfg.PollInterval())
	require.Len(t, cfg.Accounts, 1)

	acct := cfg.Accounts[0]
	assert.Equal(t, "acct-1", acct.AccountID)
	assert.Equal(t, 2.0, acct.Sizer.RiskPerTradePct, "account risk overrides the sizer default")
	assert.Greater(t, acct.Gate.MaxOpenPositions, 0, "gate defaults applied")
	assert.True(t, acct.AllowsInstrument("EUR_USD"))
	assert.False(t, acct.AllowsInstrument("GBP_USD"))
}

func TestLoad_JSON(t *testing.T) {
	cfg, err := Load(writeConfig(t, "engine.json", `{
		"instruments": ["EUR_USD"],
		"accounts": [{"account_id": "acct-1", "balance": 50000}]
	}`))
	require.NoError(t, err)

	assert.Equal(t, 60*time.Second, cfg.PollInterval(), "default poll interval")
	assert.Equal(t, 50000.0, cfg.Accounts[0].Balance)
}

func TestLoad_EmptyAllowListPermitsAll(t *testing.T) {
	cfg, err := Load(writeConfig(t, "engine.json", `{
		"instruments": ["EUR_USD"],
		"accounts": [{"account_id": "acct-1", "balance": 50000}]
	}`))
	require.NoError(t, err)
	assert.True(t, cfg.Accounts[0].AllowsInstrument("ANY_PAIR"))
}

func TestLoad_InvalidConfigIsFatal(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"no accounts", `{"instruments": ["EUR_USD"], "accounts": []}`},
		{"no instruments", `{"instruments": [], "accounts": [{"account_id": "a", "balance": 1000}]}`},
		{"duplicate accounts", `{"instruments": ["EUR_USD"], "accounts": [
			{"account_id": "a", "balance": 1000}, {"account_id": "a", "balance": 2000}]}`},
		{"zero balance", `{"instruments": ["EUR_USD"], "accounts": [{"account_id": "a", "balance": 0}]}`},
		{"malformed", `{"instruments": [`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, "engine.json", tt.content))
			require.Error(t, err)
			var engineErr *apperrors.EngineError
			require.ErrorAs(t, err, &engineErr)
			assert.Equal(t, apperrors.ErrorCategoryConfig, engineErr.Category)
			assert.True(t, engineErr.IsFatal())
		})
	}
}

func TestLoad_UnsupportedExtension(t *testing.T) {
	_, err := Load(writeConfig(t, "engine.toml", "whatever"))
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
