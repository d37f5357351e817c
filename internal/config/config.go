package config

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"TradeSentinel/internal/budget"
	"TradeSentinel/internal/calculator"
	"TradeSentinel/internal/engine"
	"TradeSentinel/internal/leverage"
	"TradeSentinel/internal/market"
	"TradeSentinel/internal/position"
	"TradeSentinel/internal/risk"
	"TradeSentinel/internal/scheduler"
	"TradeSentinel/internal/session"
	"TradeSentinel/internal/strategy"
)

// Config holds all application configuration. A variant preset supplies the
// trading parameters; the YAML file and environment override them.
type Config struct {
	Variant  string `yaml:"variant"`
	LogLevel string `yaml:"log_level"`

	Engine     engine.Config      `yaml:"engine"`
	Indicators calculator.Periods `yaml:"indicators"`
	Strategy   strategy.Config    `yaml:"strategy"`
	Session    session.Config     `yaml:"session"`
	Market     market.Config      `yaml:"market"`
	Leverage   leverage.Config    `yaml:"leverage"`
	Risk       risk.Config        `yaml:"risk"`
	Budget     budget.Config      `yaml:"budget"`
	Exits      position.Config    `yaml:"exits"`
	Schedule   scheduler.Jobs     `yaml:"schedule"`

	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	DataSource struct {
		Provider  string  `yaml:"provider"` // yahoo, vstrader, binance or mock
		BaseURL   string  `yaml:"base_url"`
		APIKey    string  `yaml:"api_key"`
		RateLimit float64 `yaml:"rate_limit"` // requests per second, 0 = unlimited
		Burst     int     `yaml:"burst"`
		Stream    bool    `yaml:"stream"` // live trade ticks for open positions
	} `yaml:"data_source"`
	Broker struct {
		Provider     string  `yaml:"provider"` // paper or alpaca
		BaseURL      string  `yaml:"base_url"`
		KeyID        string  `yaml:"key_id"`
		Secret       string  `yaml:"secret"`
		StartingCash float64 `yaml:"starting_cash"`
		Margin       float64 `yaml:"margin"`
		Slippage     float64 `yaml:"slippage"`
		UseClock     bool    `yaml:"use_clock"` // consult the broker's market clock in the session gate
	} `yaml:"broker"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	MetricsAddr string `yaml:"metrics_addr"`
	Proxy       string `yaml:"proxy"`
}

// Load reads config from a YAML file, then applies environment variable overrides.
// The variant named in the file (or VARIANT) selects the preset the file is decoded over.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var head struct {
		Variant string `yaml:"variant"`
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &head); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if v := os.Getenv("VARIANT"); v != "" {
		head.Variant = v
	}
	if head.Variant == "" {
		head.Variant = VariantSwing
	}

	cfg, err := Preset(head.Variant)
	if err != nil {
		return nil, err
	}
	if len(data) > 0 {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.Variant = head.Variant

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("BROKER_API_KEY"); v != "" {
		cfg.Broker.KeyID = v
	}
	if v := os.Getenv("BROKER_API_SECRET"); v != "" {
		cfg.Broker.Secret = v
	}
	if v := os.Getenv("DATA_API_KEY"); v != "" {
		cfg.DataSource.APIKey = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("STARTING_CASH"); v != "" {
		if cash, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Broker.StartingCash = cash
		}
	}
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if len(c.Engine.Symbols) == 0 {
		return fmt.Errorf("engine.symbols is required")
	}
	if c.Engine.Lookback < 0 {
		return fmt.Errorf("engine.lookback must not be negative")
	}

	p := c.Indicators
	for name, v := range map[string]int{
		"ema_fast": p.EMAFast, "ema_mid": p.EMAMid, "ema_slow": p.EMASlow, "slope_lookback": p.SlopeLookback,
		"rsi": p.RSI, "bb_period": p.BBPeriod, "stoch_k": p.StochK, "stoch_smooth": p.StochSmooth,
		"stoch_d": p.StochD, "adx": p.ADX, "macd_fast": p.MACDFast, "macd_slow": p.MACDSlow,
		"macd_signal": p.MACDSignal, "atr": p.ATR, "volume_avg": p.VolumeAvg,
	} {
		if v <= 0 {
			return fmt.Errorf("indicators.%s must be positive", name)
		}
	}
	if !(p.EMAFast < p.EMAMid && p.EMAMid < p.EMASlow) {
		return fmt.Errorf("indicators: ema periods must increase fast < mid < slow")
	}
	if p.MACDFast >= p.MACDSlow {
		return fmt.Errorf("indicators: macd_fast must be below macd_slow")
	}
	if p.BBStdDev <= 0 {
		return fmt.Errorf("indicators.bb_stddev must be positive")
	}
	if c.Engine.Lookback > 0 && c.Engine.Lookback < calculator.NewBank(p, nil).MinBars() {
		return fmt.Errorf("engine.lookback %d is shorter than the indicator warm-up", c.Engine.Lookback)
	}

	if _, err := strategy.NewScorer(c.Strategy); err != nil {
		return fmt.Errorf("strategy: %w", err)
	}
	if _, err := session.NewGate(c.Session, nil, 0, nopLogger); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	if _, err := leverage.NewDecider(c.Leverage); err != nil {
		return fmt.Errorf("leverage: %w", err)
	}
	if err := validateBandOrder(c.Leverage.Bands); err != nil {
		return err
	}

	for name, v := range map[string]float64{
		"risk.risk_per_trade":   c.Risk.RiskPerTrade,
		"risk.max_position_pct": c.Risk.MaxPositionPct,
		"risk.max_exposure_pct": c.Risk.MaxExposurePct,
		"budget.max_daily_loss": c.Budget.MaxDailyLossPct,
		"exits.stop_loss_pct":   c.Exits.StopLossPct,
	} {
		if v <= 0 || v > 1 {
			return fmt.Errorf("%s must be a fraction in (0, 1], got %g", name, v)
		}
	}
	if c.Exits.TrailingPct < 0 || c.Exits.TrailingPct >= 1 {
		return fmt.Errorf("exits.trailing_pct must be in [0, 1)")
	}
	if c.Risk.MaxPositions <= 0 {
		return fmt.Errorf("risk.max_positions must be positive")
	}
	if c.Budget.MaxConsecutiveLosses <= 0 {
		return fmt.Errorf("budget.max_consecutive_losses must be positive")
	}

	switch c.DataSource.Provider {
	case "yahoo", "binance", "mock":
	case "vstrader":
		if c.DataSource.BaseURL == "" {
			return fmt.Errorf("data_source.base_url is required for vstrader")
		}
	default:
		return fmt.Errorf("unknown data_source.provider %q", c.DataSource.Provider)
	}
	switch c.Broker.Provider {
	case "paper":
		if c.Broker.StartingCash <= 0 {
			return fmt.Errorf("broker.starting_cash must be positive for paper trading")
		}
	case "alpaca":
		if c.Broker.KeyID == "" || c.Broker.Secret == "" {
			return fmt.Errorf("broker key_id and secret are required for alpaca")
		}
	default:
		return fmt.Errorf("unknown broker.provider %q", c.Broker.Provider)
	}
	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == "") {
		return fmt.Errorf("telegram.bot_token and telegram.chat_id must be set together")
	}
	return nil
}

// validateBandOrder requires stricter bands to carry larger multipliers.
func validateBandOrder(bands []leverage.Band) error {
	for i := range bands {
		for j := range bands {
			if bands[i].MinConfidence > bands[j].MinConfidence && bands[i].Multiplier < bands[j].Multiplier {
				return fmt.Errorf("leverage bands out of order: %.2f confidence gives %.2fx, below %.2fx at %.2f",
					bands[i].MinConfidence, bands[i].Multiplier, bands[j].Multiplier, bands[j].MinConfidence)
			}
		}
	}
	return nil
}

// Location returns the exchange time zone of the session config.
func (c *Config) Location() (*time.Location, error) {
	if c.Session.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Session.Timezone)
}
