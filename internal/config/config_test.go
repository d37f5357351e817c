package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TradeSentinel/internal/leverage"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestPresetsValidate(t *testing.T) {
	for _, v := range []string{VariantSwing, VariantScalping, VariantCrypto} {
		cfg, err := Preset(v)
		require.NoError(t, err, v)
		assert.NoError(t, cfg.Validate(), v)
	}
}

func TestPresetUnknownVariant(t *testing.T) {
	_, err := Preset("futures")
	assert.Error(t, err)
}

func TestPresetCryptoLeverageAndMarket(t *testing.T) {
	cfg, err := Preset(VariantCrypto)
	require.NoError(t, err)

	assert.True(t, cfg.Leverage.Enabled)
	assert.Equal(t, 9, cfg.Leverage.MinScore)
	assert.InDelta(t, 2.5, cfg.Leverage.MinRiskReward, 1e-9)
	assert.Len(t, cfg.Leverage.Bands, 3)

	assert.True(t, cfg.Market.Enabled)
	assert.Equal(t, 85, cfg.Market.ExtremeGreed)
	assert.Equal(t, 5*time.Minute, cfg.Market.CacheTTL)

	assert.Equal(t, 0.02, cfg.Exits.Overrides["BTC"].StopLossPct)
	assert.Empty(t, cfg.Session.Windows)
}

func TestPresetIntradayVariantsDoNotLever(t *testing.T) {
	for _, v := range []string{VariantSwing, VariantScalping} {
		cfg, err := Preset(v)
		require.NoError(t, err)
		assert.False(t, cfg.Leverage.Enabled, v)
		assert.False(t, cfg.Market.Enabled, v)
	}
	scalp, _ := Preset(VariantScalping)
	assert.Equal(t, "0 55 15 * * 1-5", scalp.Schedule.Flatten)
}

func TestLoadOverlaysPreset(t *testing.T) {
	path := writeConfig(t, `
variant: crypto
engine:
  symbols: ["BTC/USD"]
  fetch_timeout: 30s
risk:
  max_positions: 1
exits:
  overrides:
    DOGE:
      stop_loss_pct: 0.05
      take_profit_pct: 0.10
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, VariantCrypto, cfg.Variant)
	assert.Equal(t, []string{"BTC/USD"}, cfg.Engine.Symbols)
	assert.Equal(t, 30*time.Second, cfg.Engine.FetchTimeout)
	assert.Equal(t, 1, cfg.Risk.MaxPositions)
	// untouched preset values survive
	assert.InDelta(t, 0.01, cfg.Risk.RiskPerTrade, 1e-9)
	assert.Equal(t, "5m", cfg.Engine.Timeframe)
	assert.Contains(t, cfg.Exits.Overrides, "BTC")
	assert.Contains(t, cfg.Exits.Overrides, "DOGE")
	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFileUsesSwing(t *testing.T) {
	t.Setenv("VARIANT", "")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, VariantSwing, cfg.Variant)
	assert.Equal(t, 200, cfg.Indicators.TrendSMA)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, "variant: swing\nrisk:\n  risk_per_trad: 0.01\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, "variant: scalping\n")
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("TELEGRAM_CHAT_ID", "42")
	t.Setenv("BROKER_API_KEY", "key")
	t.Setenv("BROKER_API_SECRET", "secret")
	t.Setenv("SQLITE_PATH", "/tmp/ts.db")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("STARTING_CASH", "25000")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "123:abc", cfg.Telegram.BotToken)
	assert.Equal(t, "42", cfg.Telegram.ChatID)
	assert.Equal(t, "key", cfg.Broker.KeyID)
	assert.Equal(t, "secret", cfg.Broker.Secret)
	assert.Equal(t, "/tmp/ts.db", cfg.Database.SQLitePath)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 25000.0, cfg.Broker.StartingCash)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no symbols", func(c *Config) { c.Engine.Symbols = nil }},
		{"ema order", func(c *Config) { c.Indicators.EMAFast = 60 }},
		{"lookback below warm-up", func(c *Config) { c.Engine.Lookback = 20 }},
		{"unknown rule", func(c *Config) { c.Strategy.Rules[0].Name = "moon_phase" }},
		{"bad window", func(c *Config) { c.Session.Windows[0].End = "09:00" }},
		{"risk as percent", func(c *Config) { c.Risk.RiskPerTrade = 2 }},
		{"zero positions", func(c *Config) { c.Risk.MaxPositions = 0 }},
		{"unknown provider", func(c *Config) { c.DataSource.Provider = "bloomberg" }},
		{"vstrader without url", func(c *Config) { c.DataSource.Provider = "vstrader" }},
		{"alpaca without keys", func(c *Config) { c.Broker.Provider = "alpaca" }},
		{"telegram half set", func(c *Config) { c.Telegram.BotToken = "x" }},
		{"bands inverted", func(c *Config) {
			c.Leverage.Bands[0].Multiplier = 1.1
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Preset(VariantSwing)
			require.NoError(t, err)
			cfg.Leverage.Bands = leverage.DefaultBands()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
