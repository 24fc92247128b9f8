package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
risk:
  max_trades_per_day: 3
  max_daily_loss: 1000
  risk_per_trade_pct: 2
  capital: 100000
  sl_points:
    scalping: 15
  target_points:
    scalping: 30
strategy:
  allowed_strategies: ["SCALP_ATM"]
  index_strike_steps:
    NIFTY: 50
trading:
  enabled: false
state:
  dir: /tmp/exec-state
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_FillsDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)

	assert.Equal(t, ModePaper, cfg.Trading.ExecutionMode)
	assert.Equal(t, "INTRADAY", cfg.Trading.ProductType)
	assert.Equal(t, 30, cfg.Strategy.SignalTTLSeconds)
	assert.Equal(t, "NFO", cfg.Strategy.DefaultExchange)
	assert.Equal(t, filepath.Join("/tmp/exec-state", "risk.json"), cfg.State.RiskPath)
	assert.Equal(t, filepath.Join("/tmp/exec-state", "trading.json"), cfg.State.TradingPath)
	assert.Equal(t, 1000, cfg.Monitor.IntervalMs)
	assert.Equal(t, 3, cfg.Broker.MaxRetries)
	require.NotNil(t, cfg.Risk.Capital)
	assert.Equal(t, 100000.0, *cfg.Risk.Capital)
	assert.False(t, cfg.TradingEnabled())
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Root)
	}{
		{"unknown mode", func(c *Root) { c.Trading.ExecutionMode = "yolo" }},
		{"no strike steps", func(c *Root) { c.Strategy.IndexStrikeSteps = nil }},
		{"zero step", func(c *Root) { c.Strategy.IndexStrikeSteps["NIFTY"] = 0 }},
		{"no sl points", func(c *Root) { delete(c.Risk.SLPoints, "scalping") }},
		{"live without url", func(c *Root) { c.Trading.ExecutionMode = ModeLive }},
		{"negative ttl", func(c *Root) { c.Strategy.SignalTTLSeconds = -1 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, sample))
			require.NoError(t, err)
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadEnvAndResolveSecrets(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("EXEC_TEST_TOKEN=from-file\nEXEC_TEST_CLIENT=file-client\n"), 0o600))
	t.Setenv("EXEC_TEST_CLIENT", "already-set")
	t.Cleanup(func() { os.Unsetenv("EXEC_TEST_TOKEN") })

	require.NoError(t, LoadEnv(envFile, filepath.Join(t.TempDir(), "missing.env")))

	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)
	cfg.Broker.AccessTokenEnv = "EXEC_TEST_TOKEN"
	cfg.Broker.ClientIDEnv = "EXEC_TEST_CLIENT"
	cfg.ResolveSecrets()

	assert.Equal(t, "from-file", cfg.Broker.AccessToken)
	assert.Equal(t, "already-set", cfg.Broker.ClientID, "existing env must win over .env")
}
