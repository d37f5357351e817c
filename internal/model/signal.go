package model

import "time"

// Direction is the action suggested by a signal. Only longs are opened.
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionHold Direction = "HOLD"
)

// RuleHit records the outcome of a single scoring rule.
type RuleHit struct {
	Name      string
	Weight    int
	Satisfied bool
	Reason    string
}

// Signal is the final output of the confluence scorer.
type Signal struct {
	Symbol     string
	Direction  Direction
	Score      int
	MaxScore   int
	Confidence float64 // Score / MaxScore
	Rules      []RuleHit
	Reasons    []string
	Price      float64
	Indicators *IndicatorSnapshot
	At         time.Time

	// Disqualifier names the condition that forced HOLD regardless of score.
	Disqualifier string
}
