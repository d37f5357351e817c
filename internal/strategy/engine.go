package strategy

import (
	"fmt"
	"sort"

	"TradeSentinel/internal/model"
)

const epsilon = 1e-9

// RuleWeight binds a catalog predicate to its score contribution.
type RuleWeight struct {
	Name   string `yaml:"name"`
	Weight int    `yaml:"weight"`
}

// Config is the data-driven rule table of one strategy variant.
type Config struct {
	MaxScore      int          `yaml:"max_score"`
	BuyThreshold  float64      `yaml:"buy_threshold"` // fraction of MaxScore
	Rules         []RuleWeight `yaml:"rules"`
	Disqualifiers []string     `yaml:"disqualifiers"`
	Thresholds    Thresholds   `yaml:"thresholds"`
}

// Rule is one entry of the scoring table.
type Rule struct {
	Name   string
	Weight int
	Check  Predicate
}

type disqualifier struct {
	Name  string
	Check Predicate
}

// Scorer turns an indicator snapshot into a BUY/HOLD signal.
type Scorer struct {
	rules         []Rule
	disqualifiers []disqualifier
	thresholds    Thresholds
	maxScore      int
	buyThreshold  float64
}

// NewScorer resolves the rule names in cfg against the predicate catalog.
func NewScorer(cfg Config) (*Scorer, error) {
	if cfg.MaxScore <= 0 {
		return nil, fmt.Errorf("max_score must be positive")
	}
	if cfg.BuyThreshold <= 0 || cfg.BuyThreshold > 1 {
		return nil, fmt.Errorf("buy_threshold must be in (0, 1], got %.3f", cfg.BuyThreshold)
	}
	s := &Scorer{thresholds: cfg.Thresholds, maxScore: cfg.MaxScore, buyThreshold: cfg.BuyThreshold}

	total := 0
	for _, rw := range cfg.Rules {
		p, ok := predicates[rw.Name]
		if !ok {
			return nil, fmt.Errorf("unknown rule %q", rw.Name)
		}
		if rw.Weight <= 0 {
			return nil, fmt.Errorf("rule %q: weight must be positive", rw.Name)
		}
		total += rw.Weight
		s.rules = append(s.rules, Rule{Name: rw.Name, Weight: rw.Weight, Check: p})
	}
	if total > cfg.MaxScore {
		return nil, fmt.Errorf("rule weights sum to %d, above max_score %d", total, cfg.MaxScore)
	}
	for _, name := range cfg.Disqualifiers {
		p, ok := disqualifiers[name]
		if !ok {
			return nil, fmt.Errorf("unknown disqualifier %q", name)
		}
		s.disqualifiers = append(s.disqualifiers, disqualifier{Name: name, Check: p})
	}
	return s, nil
}

// MaxScore returns the configured score ceiling.
func (s *Scorer) MaxScore() int { return s.maxScore }

// Threshold is the absolute score a BUY requires.
func (s *Scorer) Threshold() float64 {
	return s.buyThreshold * float64(s.maxScore)
}

// Evaluate scores snap. The signal is BUY iff the score reaches the threshold and no disqualifier holds.
func (s *Scorer) Evaluate(snap *model.IndicatorSnapshot) *model.Signal {
	sig := &model.Signal{
		Symbol:     snap.Symbol,
		Direction:  model.DirectionHold,
		MaxScore:   s.maxScore,
		Price:      snap.Value(model.IndClose),
		Indicators: snap,
		At:         snap.Time,
	}

	for _, r := range s.rules {
		ok, reason := r.Check(snap, s.thresholds)
		sig.Rules = append(sig.Rules, model.RuleHit{Name: r.Name, Weight: r.Weight, Satisfied: ok, Reason: reason})
		if ok {
			sig.Score += r.Weight
			sig.Reasons = append(sig.Reasons, reason)
		}
	}
	if sig.Score > s.maxScore {
		sig.Score = s.maxScore
	}
	sig.Confidence = float64(sig.Score) / float64(s.maxScore)

	for _, d := range s.disqualifiers {
		if hit, reason := d.Check(snap, s.thresholds); hit {
			sig.Disqualifier = d.Name
			sig.Reasons = append(sig.Reasons, "disqualified: "+reason)
			return sig
		}
	}

	if float64(sig.Score)+epsilon >= s.Threshold() {
		sig.Direction = model.DirectionBuy
	}
	return sig
}

// Rank orders signals by score, then confidence (both descending), then symbol ascending.
func Rank(signals []*model.Signal) []*model.Signal {
	out := make([]*model.Signal, len(signals))
	copy(out, signals)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		return a.Symbol < b.Symbol
	})
	return out
}
