package model

import "time"

// RiskBudget tracks the per-day loss limits that gate new entries.
type RiskBudget struct {
	Date                 string    `json:"date"` // YYYY-MM-DD in the exchange time zone
	DayStartEquity       float64   `json:"day_start_equity"`
	RealizedPnL          float64   `json:"realized_pnl"`
	DailyPnLPct          float64   `json:"daily_pnl_pct"` // fraction of DayStartEquity
	ConsecutiveLosses    int       `json:"consecutive_losses"`
	TradesToday          int       `json:"trades_today"`
	WinsToday            int       `json:"wins_today"`
	LossesToday          int       `json:"losses_today"`
	LeveragedTradesToday int       `json:"leveraged_trades_today"`
	Halted               bool      `json:"halted"`
	HaltReason           string    `json:"halt_reason,omitempty"`
	ManualHalt           bool      `json:"manual_halt"`
	LimitHaltReason      string    `json:"limit_halt_reason,omitempty"` // set once a daily limit is breached
	UpdatedAt            time.Time `json:"updated_at"`
}
