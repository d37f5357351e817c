package notifier

import (
	"fmt"
	"html"
	"strings"
	"time"

	"TradeSentinel/internal/model"
)

// StatusView is the snapshot rendered by /status.
type StatusView struct {
	Budget        model.RiskBudget
	Verdict       model.MarketVerdict
	Session       model.Session
	Equity        float64
	OpenPositions int
	ExitBacklog   int
	At            time.Time
}

func pct(f float64) string {
	return fmt.Sprintf("%+.2f%%", f*100)
}

// FormatEntry formats a newly filled position.
func FormatEntry(pos *model.Position, sig *model.Signal) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("🟢 <b>BUY %s</b> | %s\n\n", html.EscapeString(pos.Symbol), pos.OpenedAt.Format("2006-01-02 15:04")))
	b.WriteString(fmt.Sprintf("Qty: %g @ %.4f (notional %.2f)\n", pos.Quantity, pos.EntryPrice, pos.Notional()))
	b.WriteString(fmt.Sprintf("Stop: %.4f (%s)\n", pos.StopPrice, pct(-pos.StopPct)))
	if pos.TakeProfitPrice > 0 {
		b.WriteString(fmt.Sprintf("Target: %.4f (%s)\n", pos.TakeProfitPrice, pct(pos.TakeProfitPct)))
	}
	b.WriteString(fmt.Sprintf("Trail activates at: %.4f\n", pos.ActivationPrice))
	if pos.Leveraged() {
		b.WriteString(fmt.Sprintf("⚡ Leverage: %.2fx\n", pos.Leverage.Multiplier))
	}
	if sig != nil {
		b.WriteString(fmt.Sprintf("\n📈 <b>Score %d/%d</b> (confidence %.0f%%)\n", sig.Score, sig.MaxScore, sig.Confidence*100))
		for _, r := range sig.Reasons {
			b.WriteString("  • " + html.EscapeString(r) + "\n")
		}
	}
	return b.String()
}

// FormatExit formats a closed position.
func FormatExit(pos *model.Position) string {
	icon := "🔴"
	if pos.RealizedPnL > 0 {
		icon = "✅"
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s <b>SELL %s</b> | %s\n\n", icon, html.EscapeString(pos.Symbol), string(pos.CloseReason)))
	b.WriteString(fmt.Sprintf("Entry: %.4f → Exit: %.4f (%s)\n", pos.EntryPrice, pos.ExitPrice, pct(pos.PnLPct(pos.ExitPrice))))
	b.WriteString(fmt.Sprintf("PnL: %+.2f\n", pos.RealizedPnL))
	if !pos.OpenedAt.IsZero() && !pos.ClosedAt.IsZero() {
		b.WriteString(fmt.Sprintf("Held: %s\n", pos.ClosedAt.Sub(pos.OpenedAt).Round(time.Minute)))
	}
	return b.String()
}

// FormatStatus formats the engine status for display.
func FormatStatus(v StatusView) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📦 <b>Status</b> | %s\n\n", v.At.Format("2006-01-02 15:04")))
	session := "closed"
	if v.Session.Tradable {
		session = "open"
	}
	b.WriteString(fmt.Sprintf("Session: %s (%s)\n", session, html.EscapeString(v.Session.Label)))
	b.WriteString(fmt.Sprintf("Equity: %.2f\n", v.Equity))
	b.WriteString(fmt.Sprintf("Open positions: %d\n", v.OpenPositions))
	b.WriteString(fmt.Sprintf("Daily PnL: %+.2f (%s)\n", v.Budget.RealizedPnL, pct(v.Budget.DailyPnLPct)))
	b.WriteString(fmt.Sprintf("Trades today: %d (W %d / L %d), loss streak %d\n",
		v.Budget.TradesToday, v.Budget.WinsToday, v.Budget.LossesToday, v.Budget.ConsecutiveLosses))
	if v.Budget.Halted {
		b.WriteString(fmt.Sprintf("⛔ Halted: %s\n", html.EscapeString(v.Budget.HaltReason)))
	}
	market := "ok"
	if !v.Verdict.CanTrade {
		market = "blocked"
	}
	if v.Verdict.Degraded {
		market += " (degraded)"
	}
	b.WriteString(fmt.Sprintf("Market: %s, sentiment %d, leverage ≤ %.2fx\n", market, v.Verdict.Sentiment, v.Verdict.MaxLeverageAllowed))
	if v.ExitBacklog > 0 {
		b.WriteString(fmt.Sprintf("⚠️ Pending exit orders: %d\n", v.ExitBacklog))
	}
	return b.String()
}

// FormatPositions lists active positions, marked at the given prices when known.
func FormatPositions(positions []*model.Position, marks map[string]float64) string {
	if len(positions) == 0 {
		return "No open positions."
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📋 <b>Positions</b> (%d)\n\n", len(positions)))
	for _, p := range positions {
		b.WriteString(fmt.Sprintf("<b>%s</b> %s qty %g @ %.4f\n", html.EscapeString(p.Symbol), p.State, p.Quantity, p.EntryPrice))
		b.WriteString(fmt.Sprintf("  stop %.4f", p.StopPrice))
		if p.TakeProfitPrice > 0 {
			b.WriteString(fmt.Sprintf(" | target %.4f", p.TakeProfitPrice))
		}
		if mark, ok := marks[p.Symbol]; ok && mark > 0 {
			b.WriteString(fmt.Sprintf(" | last %.4f (%s)", mark, pct(p.PnLPct(mark))))
		}
		if p.Leveraged() {
			b.WriteString(fmt.Sprintf(" | %.2fx", p.Leverage.Multiplier))
		}
		if p.Quarantined {
			b.WriteString(" | ⚠️ quarantined")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// FormatDailySummary formats the end-of-day report.
func FormatDailySummary(budget model.RiskBudget, closed []*model.Position) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📅 <b>Daily summary</b> | %s\n\n", budget.Date))
	b.WriteString(fmt.Sprintf("Realized PnL: %+.2f (%s)\n", budget.RealizedPnL, pct(budget.DailyPnLPct)))
	b.WriteString(fmt.Sprintf("Trades: %d | Wins: %d | Losses: %d\n", budget.TradesToday, budget.WinsToday, budget.LossesToday))
	if budget.LeveragedTradesToday > 0 {
		b.WriteString(fmt.Sprintf("Leveraged trades: %d\n", budget.LeveragedTradesToday))
	}
	if len(closed) > 0 {
		b.WriteString("\n")
		for _, p := range closed {
			b.WriteString(fmt.Sprintf("  %s %s %+.2f\n", html.EscapeString(p.Symbol), p.CloseReason, p.RealizedPnL))
		}
	}
	if budget.Halted {
		b.WriteString(fmt.Sprintf("\n⛔ Halted: %s", html.EscapeString(budget.HaltReason)))
	}
	return b.String()
}
