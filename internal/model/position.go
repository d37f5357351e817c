package model

import "time"

// PositionState is a node of the position lifecycle.
type PositionState string

const (
	StatePendingEntry  PositionState = "PENDING_ENTRY"
	StateOpenFixedStop PositionState = "OPEN_FIXED_STOP"
	StateOpenTrailing  PositionState = "OPEN_TRAILING"
	StateClosed        PositionState = "CLOSED"
)

// CloseReason explains why a position was closed.
type CloseReason string

const (
	CloseStopLoss     CloseReason = "stop_loss"
	CloseTrailingStop CloseReason = "trailing_stop"
	CloseTakeProfit   CloseReason = "take_profit"
	CloseManualExit   CloseReason = "manual_exit"
)

// Position is a single long holding and its protective levels.
type Position struct {
	ID              string
	Symbol          string
	Quantity        float64
	EntryPrice      float64
	StopPrice       float64
	TakeProfitPrice float64 // 0 when no take profit is active
	StopPct         float64
	TakeProfitPct   float64
	ActivationPrice float64 // trailing activates at or above this price
	HighWaterMark   float64
	State           PositionState
	CloseReason     CloseReason
	ExitPrice       float64
	RealizedPnL     float64
	Leverage        LeverageGrant
	Score           int
	Confidence      float64
	Quarantined     bool
	OpenedAt        time.Time
	ClosedAt        time.Time
	LastTickAt      time.Time
}

// Notional returns quantity times entry price.
func (p *Position) Notional() float64 {
	return p.Quantity * p.EntryPrice
}

// Active reports whether the position holds or reserves capital.
func (p *Position) Active() bool {
	return p.State != StateClosed
}

// Leveraged reports whether the position was opened with a multiplier above 1.
func (p *Position) Leveraged() bool {
	return p.Leverage.Multiplier > 1
}

// PnLPct returns the unrealized or realized return relative to entry.
func (p *Position) PnLPct(price float64) float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	return (price - p.EntryPrice) / p.EntryPrice
}

// LeverageGrant is the multiplier decision attached to one position.
type LeverageGrant struct {
	Multiplier            float64
	AdjustedStopPct       float64
	AdjustedTakeProfitPct float64
	ExpiresWithPosition   bool
	Reasons               []string
}

// MarketVerdict is the market-wide risk appetite for the current cycle.
type MarketVerdict struct {
	CanTrade           bool
	CanLeverage        bool
	MaxLeverageAllowed float64
	Sentiment          int
	Dominance          float64 // fraction, 0.55 = 55%
	Degraded           bool
	Reasons            []string
	At                 time.Time
}

// Session describes whether the current instant is inside a tradable window.
type Session struct {
	Tradable bool
	Label    string
}
