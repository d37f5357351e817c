package market

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"TradeSentinel/internal/model"
)

// ErrFeedUnavailable is returned when sentiment or dominance cannot be fetched.
var ErrFeedUnavailable = errors.New("market-data feed unavailable")

// Feed provides market-wide sentiment (0-100) and BTC dominance (fraction).
type Feed interface {
	Sentiment(ctx context.Context) (int, error)
	Dominance(ctx context.Context) (float64, error)
}

// Config tunes the sentiment bands.
type Config struct {
	Enabled       bool          `yaml:"enabled"`
	NeutralLow    int           `yaml:"neutral_low"`
	NeutralHigh   int           `yaml:"neutral_high"`
	ExtremeGreed  int           `yaml:"extreme_greed"` // at or above this, new longs are blocked
	ExtremeFear   int           `yaml:"extreme_fear"`  // at or below this, signals are annotated contrarian
	MaxLeverage   float64       `yaml:"max_leverage"`
	DominanceHigh float64       `yaml:"dominance_high"`
	DominanceLow  float64       `yaml:"dominance_low"`
	SentimentURL  string        `yaml:"sentiment_url"`
	DominanceURL  string        `yaml:"dominance_url"`
	CacheTTL      time.Duration `yaml:"cache_ttl"`
	Timeout       time.Duration `yaml:"timeout"`
}

// Gate turns sentiment and dominance into a MarketVerdict.
type Gate struct {
	cfg  Config
	feed Feed
	log  zerolog.Logger
	now  func() time.Time
}

// NewGate creates a Gate. feed may be nil when the gate is disabled.
func NewGate(cfg Config, feed Feed, log zerolog.Logger) *Gate {
	return &Gate{cfg: cfg, feed: feed, log: log, now: time.Now}
}

// Permissive is the verdict used when the gate is disabled: trade, never leverage.
func Permissive(at time.Time) model.MarketVerdict {
	return model.MarketVerdict{CanTrade: true, MaxLeverageAllowed: 1, At: at, Reasons: []string{"market condition gate disabled"}}
}

// Degraded is the verdict used when the feed is down.
func Degraded(at time.Time, err error) model.MarketVerdict {
	return model.MarketVerdict{
		CanTrade:           true,
		MaxLeverageAllowed: 1,
		Degraded:           true,
		At:                 at,
		Reasons:            []string{fmt.Sprintf("sentiment unavailable, leverage disabled: %v", err)},
	}
}

// Evaluate applies the sentiment bands. Dominance only annotates; pass a negative value when unknown.
func (g *Gate) Evaluate(sentiment int, dominance float64) model.MarketVerdict {
	v := model.MarketVerdict{
		CanTrade:           true,
		MaxLeverageAllowed: 1,
		Sentiment:          sentiment,
		Dominance:          dominance,
		At:                 g.now(),
	}

	switch {
	case sentiment >= g.cfg.ExtremeGreed:
		v.CanTrade = false
		v.Reasons = append(v.Reasons, fmt.Sprintf("extreme greed %d, new longs blocked", sentiment))
	case sentiment >= g.cfg.NeutralLow && sentiment <= g.cfg.NeutralHigh:
		v.CanLeverage = true
		v.MaxLeverageAllowed = g.cfg.MaxLeverage
		v.Reasons = append(v.Reasons, fmt.Sprintf("neutral sentiment %d, leverage allowed", sentiment))
	case sentiment <= g.cfg.ExtremeFear:
		v.Reasons = append(v.Reasons, fmt.Sprintf("extreme fear %d, contrarian opportunity", sentiment))
	case sentiment > g.cfg.NeutralHigh:
		v.Reasons = append(v.Reasons, fmt.Sprintf("greed %d, trading without leverage", sentiment))
	default:
		v.Reasons = append(v.Reasons, fmt.Sprintf("fear %d, trading without leverage", sentiment))
	}

	switch {
	case dominance < 0:
	case dominance > g.cfg.DominanceHigh:
		v.Reasons = append(v.Reasons, fmt.Sprintf("BTC dominance %.1f%%: btc focus", dominance*100))
	case dominance < g.cfg.DominanceLow:
		v.Reasons = append(v.Reasons, fmt.Sprintf("BTC dominance %.1f%%: alt season", dominance*100))
	default:
		v.Reasons = append(v.Reasons, fmt.Sprintf("BTC dominance %.1f%%: balanced", dominance*100))
	}
	return v
}

// Check fetches the feed and evaluates it. Feed failures never block trading; they disable leverage.
func (g *Gate) Check(ctx context.Context) model.MarketVerdict {
	if !g.cfg.Enabled || g.feed == nil {
		return Permissive(g.now())
	}
	if g.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
	}

	sentiment, err := g.feed.Sentiment(ctx)
	if err != nil {
		g.log.Warn().Err(err).Bool("degraded", true).Msg("sentiment feed failed")
		return Degraded(g.now(), err)
	}
	dominance, err := g.feed.Dominance(ctx)
	if err != nil {
		g.log.Warn().Err(err).Msg("dominance feed failed, continuing without annotation")
		dominance = -1
	}
	return g.Evaluate(sentiment, dominance)
}
