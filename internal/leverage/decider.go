package leverage

import (
	"fmt"
	"sort"

	"TradeSentinel/internal/model"
)

// Band maps a confidence/score tier to a multiplier and a stop tightening factor.
type Band struct {
	MinConfidence float64 `yaml:"min_confidence"`
	MinScore      int     `yaml:"min_score"`
	Multiplier    float64 `yaml:"multiplier"`
	StopFactor    float64 `yaml:"stop_factor"`
}

// Config holds the leverage requirements.
type Config struct {
	Enabled           bool    `yaml:"enabled"`
	MinConfidence     float64 `yaml:"min_confidence"`
	MinScore          int     `yaml:"min_score"`
	MinRiskReward     float64 `yaml:"min_risk_reward"`
	MaxDailyLeveraged int     `yaml:"max_daily_leveraged"` // 0 = unlimited
	Bands             []Band  `yaml:"bands"`
}

// DefaultBands is the standard 1.25x / 1.5x / 2.0x table.
func DefaultBands() []Band {
	return []Band{
		{MinConfidence: 0.95, MinScore: 11, Multiplier: 2.0, StopFactor: 0.5},
		{MinConfidence: 0.90, MinScore: 10, Multiplier: 1.5, StopFactor: 0.65},
		{MinConfidence: 0.85, MinScore: 9, Multiplier: 1.25, StopFactor: 0.8},
	}
}

// Input is everything a leverage decision depends on.
type Input struct {
	Signal          *model.Signal
	Verdict         model.MarketVerdict
	StopPct         float64
	TakeProfitPct   float64
	ActiveLeveraged int
	LeveragedToday  int
}

// Decider grants at most one leveraged position at a time.
type Decider struct {
	cfg Config
}

// NewDecider validates cfg and orders its bands from strictest to loosest.
func NewDecider(cfg Config) (*Decider, error) {
	bands := append([]Band(nil), cfg.Bands...)
	sort.SliceStable(bands, func(i, j int) bool { return bands[i].MinConfidence > bands[j].MinConfidence })
	for _, b := range bands {
		if b.Multiplier <= 1 {
			return nil, fmt.Errorf("leverage band multiplier %.2f must be above 1", b.Multiplier)
		}
		if b.StopFactor <= 0 || b.StopFactor > 1 {
			return nil, fmt.Errorf("leverage band stop factor %.2f must be in (0, 1]", b.StopFactor)
		}
	}
	cfg.Bands = bands
	return &Decider{cfg: cfg}, nil
}

func none(in Input, reason string) model.LeverageGrant {
	return model.LeverageGrant{
		Multiplier:            1,
		AdjustedStopPct:       in.StopPct,
		AdjustedTakeProfitPct: in.TakeProfitPct,
		ExpiresWithPosition:   true,
		Reasons:               []string{reason},
	}
}

// Decide returns 1.0x unless every requirement holds and a band matches.
func (d *Decider) Decide(in Input) model.LeverageGrant {
	if !d.cfg.Enabled {
		return none(in, "leverage disabled")
	}
	sig := in.Signal
	if sig == nil {
		return none(in, "no signal")
	}
	if !in.Verdict.CanLeverage {
		return none(in, "market conditions do not allow leverage")
	}
	if in.ActiveLeveraged > 0 {
		return none(in, "another leveraged position is active")
	}
	if d.cfg.MaxDailyLeveraged > 0 && in.LeveragedToday >= d.cfg.MaxDailyLeveraged {
		return none(in, fmt.Sprintf("daily leveraged trade cap %d reached", d.cfg.MaxDailyLeveraged))
	}
	if sig.Confidence < d.cfg.MinConfidence {
		return none(in, fmt.Sprintf("confidence %.0f%% below %.0f%%", sig.Confidence*100, d.cfg.MinConfidence*100))
	}
	if sig.Score < d.cfg.MinScore {
		return none(in, fmt.Sprintf("score %d below %d", sig.Score, d.cfg.MinScore))
	}
	if in.StopPct <= 0 {
		return none(in, "no stop distance")
	}
	rr := in.TakeProfitPct / in.StopPct
	if rr < d.cfg.MinRiskReward {
		return none(in, fmt.Sprintf("risk/reward %.2f below %.2f", rr, d.cfg.MinRiskReward))
	}

	for _, b := range d.cfg.Bands {
		if sig.Confidence < b.MinConfidence || sig.Score < b.MinScore {
			continue
		}
		mult := b.Multiplier
		if in.Verdict.MaxLeverageAllowed > 0 && mult > in.Verdict.MaxLeverageAllowed {
			mult = in.Verdict.MaxLeverageAllowed
		}
		if mult <= 1 {
			return none(in, "market ceiling leaves no leverage")
		}
		return model.LeverageGrant{
			Multiplier:            mult,
			AdjustedStopPct:       in.StopPct * b.StopFactor,
			AdjustedTakeProfitPct: in.TakeProfitPct,
			ExpiresWithPosition:   true,
			Reasons: []string{fmt.Sprintf("%.2fx: confidence %.0f%%, score %d/%d, R/R %.2f, stop tightened to %.2f%%",
				mult, sig.Confidence*100, sig.Score, sig.MaxScore, rr, in.StopPct*b.StopFactor*100)},
		}
	}
	return none(in, "no leverage band matched")
}
