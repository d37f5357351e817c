package main

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"TradeSentinel/internal/broker"
	"TradeSentinel/internal/budget"
	"TradeSentinel/internal/calculator"
	"TradeSentinel/internal/collector"
	"TradeSentinel/internal/config"
	"TradeSentinel/internal/engine"
	"TradeSentinel/internal/leverage"
	"TradeSentinel/internal/market"
	"TradeSentinel/internal/notifier"
	"TradeSentinel/internal/position"
	"TradeSentinel/internal/recorder"
	"TradeSentinel/internal/risk"
	"TradeSentinel/internal/session"
	"TradeSentinel/internal/strategy"
)

// app is the assembled engine and the collaborators main needs after wiring.
type app struct {
	Engine   *engine.Engine
	Notifier notifier.Notifier
	Telegram *notifier.TelegramNotifier // nil when telegram is not configured
	Location *time.Location
	closers  []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}

func newFetcher(cfg *config.Config) collector.Fetcher {
	ds := cfg.DataSource
	switch ds.Provider {
	case "vstrader":
		return collector.NewVsTraderFetcher(ds.BaseURL, ds.APIKey, cfg.Proxy)
	case "binance":
		f := collector.NewBinanceFetcher(cfg.Proxy)
		if ds.BaseURL != "" {
			f.BaseURL = ds.BaseURL
		}
		return f
	case "mock":
		return &collector.MockFetcher{Price: 100, Step: 0.001}
	default:
		return collector.NewYahooFetcher(cfg.Proxy)
	}
}

func build(cfg *config.Config, log zerolog.Logger) (*app, error) {
	a := &app{}

	fetcher := collector.NewGuard(newFetcher(cfg), cfg.DataSource.RateLimit, cfg.DataSource.Burst, cfg.Engine.FetchTimeout, log)
	log.Info().Str("source", fetcher.Name()).Msg("data source ready")

	var gw broker.Gateway
	var cal session.Calendar
	switch cfg.Broker.Provider {
	case "alpaca":
		ab := broker.NewAlpacaBroker(cfg.Broker.BaseURL, cfg.Broker.KeyID, cfg.Broker.Secret, log)
		gw = ab
		if cfg.Broker.UseClock {
			cal = ab
		}
	default:
		gw = broker.NewPaperBroker(cfg.Broker.StartingCash, cfg.Broker.Margin, cfg.Broker.Slippage)
	}
	log.Info().Str("broker", gw.Name()).Msg("broker ready")

	sess, err := session.NewGate(cfg.Session, cal, 5*time.Second, log)
	if err != nil {
		return nil, fmt.Errorf("session gate: %w", err)
	}
	a.Location = sess.Location()

	scorer, err := strategy.NewScorer(cfg.Strategy)
	if err != nil {
		return nil, fmt.Errorf("scorer: %w", err)
	}
	decider, err := leverage.NewDecider(cfg.Leverage)
	if err != nil {
		return nil, fmt.Errorf("leverage: %w", err)
	}

	var feed market.Feed
	if cfg.Market.Enabled {
		feed = market.NewHTTPFeed(cfg.Market.SentimentURL, cfg.Market.DominanceURL, cfg.Market.CacheTTL, cfg.Proxy)
	}
	mkt := market.NewGate(cfg.Market, feed, log)

	bm, err := budget.NewManager(cfg.Budget, a.Location, log)
	if err != nil {
		return nil, fmt.Errorf("risk budget: %w", err)
	}
	pm := position.NewManager(cfg.Exits, bm, log)

	var rec recorder.Recorder = recorder.NewNoopRecorder()
	if cfg.Database.SQLitePath != "" {
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath, log)
		if err != nil {
			log.Warn().Err(err).Msg("init sqlite recorder failed, using noop")
		} else {
			rec = sr
		}
	}
	a.closers = append(a.closers, rec.Close)

	a.Notifier = notifier.LogNotifier{Log: log}
	if cfg.Telegram.BotToken != "" {
		a.Telegram = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy, log)
		a.Notifier = a.Telegram
	}

	a.Engine, err = engine.New(cfg.Engine, engine.Deps{
		Fetcher:   fetcher,
		Broker:    gw,
		Bank:      calculator.NewBank(cfg.Indicators, a.Location),
		Scorer:    scorer,
		Session:   sess,
		Market:    mkt,
		Decider:   decider,
		Sizer:     risk.NewSizer(cfg.Risk),
		Budget:    bm,
		Positions: pm,
		Recorder:  rec,
		Notifier:  a.Notifier,
	}, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}
