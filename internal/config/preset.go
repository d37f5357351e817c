package config

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"TradeSentinel/internal/calculator"
	"TradeSentinel/internal/leverage"
	"TradeSentinel/internal/market"
	"TradeSentinel/internal/position"
	"TradeSentinel/internal/session"
	"TradeSentinel/internal/strategy"
)

const (
	VariantSwing    = "swing"
	VariantScalping = "scalping"
	VariantCrypto   = "crypto"
)

var nopLogger = zerolog.Nop()

// Preset returns the full parameter set of a variant.
func Preset(variant string) (*Config, error) {
	var cfg *Config
	switch variant {
	case VariantSwing:
		cfg = swing()
	case VariantScalping:
		cfg = scalping()
	case VariantCrypto:
		cfg = crypto()
	default:
		return nil, fmt.Errorf("unknown variant %q (want swing, scalping or crypto)", variant)
	}
	cfg.Variant = variant
	applyCommon(cfg)
	return cfg, nil
}

func applyCommon(cfg *Config) {
	cfg.LogLevel = "info"
	cfg.Engine.Concurrency = 4
	cfg.Engine.FetchTimeout = 15 * time.Second
	cfg.Engine.OrderTimeout = 10 * time.Second
	cfg.DataSource.Burst = 5
	cfg.Broker.Provider = "paper"
	cfg.Broker.StartingCash = 100000
	cfg.Broker.Margin = 1
	cfg.Budget.StateFile = "data/risk_budget.json"
	cfg.Database.SQLitePath = "data/trade_sentinel.db"
	cfg.MetricsAddr = ":9100"
}

func newYork() session.Config {
	return session.Config{Timezone: "America/New_York", WeekdaysOnly: true}
}

func swing() *Config {
	cfg := &Config{}
	cfg.Engine.Symbols = []string{"SPY", "QQQ", "AAPL", "MSFT", "NVDA"}
	cfg.Engine.Timeframe = "1d"
	cfg.Engine.Lookback = 260

	cfg.Indicators = calculator.DefaultPeriods()
	cfg.Indicators.TrendSMA = 200

	cfg.Strategy = strategy.Config{
		MaxScore:     10,
		BuyThreshold: 0.5,
		Rules: []strategy.RuleWeight{
			{Name: "ema_stack", Weight: 2},
			{Name: "ema_slope", Weight: 1},
			{Name: "rsi_band", Weight: 2},
			{Name: "macd_bullish", Weight: 2},
			{Name: "adx_trend", Weight: 1},
			{Name: "volume_spike", Weight: 1},
			{Name: "above_trend_sma", Weight: 1},
		},
		Disqualifiers: []string{"below_trend_sma"},
		Thresholds:    strategy.Thresholds{RSILow: 35, RSIHigh: 65, VolumeSpike: 1.2, ADXFloor: 20, BBMaxPosition: 0.5},
	}

	cfg.Session = newYork()
	cfg.Session.Windows = []session.Window{
		{Label: "late morning", Start: "10:30", End: "12:00", Favorable: true},
		{Label: "lunch", Start: "12:00", End: "14:00", Favorable: false},
		{Label: "afternoon", Start: "14:00", End: "15:30", Favorable: true},
	}

	cfg.Risk.RiskPerTrade = 0.02
	cfg.Risk.MaxPositionPct = 0.10
	cfg.Risk.MaxExposurePct = 0.50
	cfg.Risk.MaxPositions = 3
	cfg.Risk.LotSize = 1

	cfg.Budget.MaxDailyLossPct = 0.03
	cfg.Budget.MaxConsecutiveLosses = 5

	cfg.Exits = position.Config{
		StopLossPct:           0.05,
		TakeProfitPct:         0.15,
		StopATRMultiple:       2,
		TrailingActivationPct: 0.10,
		TrailingPct:           0.03,
	}

	cfg.Schedule.Scan = "0 0 11,15 * * 1-5"
	cfg.Schedule.Monitor = "0 */15 9-16 * * 1-5"
	cfg.Schedule.Summary = "0 5 16 * * 1-5"
	cfg.DataSource.Provider = "yahoo"
	return cfg
}

func scalping() *Config {
	cfg := &Config{}
	cfg.Engine.Symbols = []string{"SPY", "QQQ", "TSLA", "AMD"}
	cfg.Engine.Timeframe = "1m"
	cfg.Engine.Lookback = 120

	cfg.Indicators = calculator.DefaultPeriods()
	cfg.Indicators.EMAFast, cfg.Indicators.EMAMid, cfg.Indicators.EMASlow = 5, 9, 21
	cfg.Indicators.RSI = 7
	cfg.Indicators.StochK = 5

	cfg.Strategy = strategy.Config{
		MaxScore:     12,
		BuyThreshold: 7.0 / 12.0,
		Rules: []strategy.RuleWeight{
			{Name: "price_above_vwap", Weight: 2},
			{Name: "ema_stack", Weight: 2},
			{Name: "ema_slope", Weight: 1},
			{Name: "rsi_band", Weight: 2},
			{Name: "stoch_cross", Weight: 1},
			{Name: "bb_lower_half", Weight: 1},
			{Name: "volume_spike", Weight: 1},
			{Name: "adx_trend", Weight: 1},
			{Name: "macd_bullish", Weight: 1},
		},
		Thresholds: strategy.Thresholds{RSILow: 25, RSIHigh: 60, VolumeSpike: 1.5, ADXFloor: 25, BBMaxPosition: 0.5},
	}

	cfg.Session = newYork()
	cfg.Session.Windows = []session.Window{
		{Label: "opening momentum", Start: "09:35", End: "11:30", Favorable: true},
		{Label: "midday", Start: "11:30", End: "15:00", Favorable: false},
		{Label: "power hour", Start: "15:00", End: "15:55", Favorable: true},
	}

	cfg.Risk.RiskPerTrade = 0.005
	cfg.Risk.MaxPositionPct = 0.10
	cfg.Risk.MaxExposurePct = 0.25
	cfg.Risk.MaxPositions = 3
	cfg.Risk.LotSize = 1

	cfg.Budget.MaxDailyLossPct = 0.02
	cfg.Budget.MaxConsecutiveLosses = 5
	cfg.Budget.MaxTradesPerDay = 20

	cfg.Exits = position.Config{
		StopLossPct:           0.004,
		TakeProfitPct:         0.008,
		TrailingActivationPct: 0.004,
		TrailingPct:           0.002,
	}

	cfg.Schedule.Scan = "5 * 9-15 * * 1-5"
	cfg.Schedule.Monitor = "*/10 * 9-15 * * 1-5"
	cfg.Schedule.Flatten = "0 55 15 * * 1-5"
	cfg.Schedule.Summary = "0 5 16 * * 1-5"
	cfg.DataSource.Provider = "yahoo"
	return cfg
}

func crypto() *Config {
	cfg := &Config{}
	cfg.Engine.Symbols = []string{"BTC/USD", "ETH/USD", "SOL/USD"}
	cfg.Engine.Timeframe = "5m"
	cfg.Engine.Lookback = 150

	cfg.Indicators = calculator.DefaultPeriods()

	cfg.Strategy = strategy.Config{
		MaxScore:     12,
		BuyThreshold: 8.0 / 12.0,
		Rules: []strategy.RuleWeight{
			{Name: "price_above_vwap", Weight: 2},
			{Name: "ema_stack", Weight: 2},
			{Name: "ema_slope", Weight: 1},
			{Name: "rsi_band", Weight: 2},
			{Name: "stoch_cross", Weight: 1},
			{Name: "bb_lower_half", Weight: 1},
			{Name: "volume_spike", Weight: 1},
			{Name: "adx_trend", Weight: 1},
			{Name: "macd_bullish", Weight: 1},
		},
		Disqualifiers: []string{"below_ema_slow"},
		Thresholds:    strategy.Thresholds{RSILow: 35, RSIHigh: 55, VolumeSpike: 1.2, ADXFloor: 20, BBMaxPosition: 0.5},
	}

	cfg.Session = session.Config{Timezone: "UTC"}

	cfg.Market = market.Config{
		Enabled:       true,
		NeutralLow:    40,
		NeutralHigh:   60,
		ExtremeGreed:  85,
		ExtremeFear:   25,
		MaxLeverage:   2,
		DominanceHigh: 0.55,
		DominanceLow:  0.40,
		SentimentURL:  market.DefaultSentimentURL,
		DominanceURL:  market.DefaultDominanceURL,
		CacheTTL:      5 * time.Minute,
		Timeout:       10 * time.Second,
	}
	cfg.Leverage = leverage.Config{
		Enabled:           true,
		MinConfidence:     0.80,
		MinScore:          9,
		MinRiskReward:     2.5,
		MaxDailyLeveraged: 3,
		Bands:             leverage.DefaultBands(),
	}

	cfg.Risk.RiskPerTrade = 0.01
	cfg.Risk.MaxPositionPct = 0.20
	cfg.Risk.MaxExposurePct = 0.60
	cfg.Risk.MaxPositions = 3
	cfg.Risk.LotSize = 0.0001
	cfg.Risk.VolatilityScaling = true

	cfg.Budget.MaxDailyLossPct = 0.03
	cfg.Budget.MaxConsecutiveLosses = 5

	cfg.Exits = position.Config{
		StopLossPct:           0.03,
		TakeProfitPct:         0.06,
		TrailingActivationPct: 0.02,
		TrailingPct:           0.015,
		Overrides: map[string]position.Levels{
			"BTC": {StopLossPct: 0.02, TakeProfitPct: 0.045},
			"ETH": {StopLossPct: 0.025, TakeProfitPct: 0.06},
			"SOL": {StopLossPct: 0.035, TakeProfitPct: 0.075},
		},
	}

	cfg.Schedule.Scan = "30 */5 * * * *"
	cfg.Schedule.Monitor = "*/15 * * * * *"
	cfg.Schedule.Summary = "0 0 0 * * *"
	cfg.DataSource.Provider = "binance"
	cfg.DataSource.RateLimit = 10
	cfg.DataSource.Stream = true
	cfg.Broker.Margin = 2
	return cfg
}
