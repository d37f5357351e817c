package budget

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"TradeSentinel/internal/model"
)

// ErrTradingHalted is returned when the daily risk budget blocks new entries.
var ErrTradingHalted = errors.New("trading halted")

// Config holds the daily limits. MaxDailyLossPct is a fraction of day-start equity.
type Config struct {
	MaxDailyLossPct      float64 `yaml:"max_daily_loss_pct"`
	MaxConsecutiveLosses int     `yaml:"max_consecutive_losses"`
	MaxTradesPerDay      int     `yaml:"max_trades_per_day"` // 0 = unlimited
	StateFile            string  `yaml:"state_file"`
}

// Manager owns the RiskBudget. Every mutation goes through its mutex.
type Manager struct {
	mu       sync.Mutex
	state    *model.RiskBudget
	cfg      Config
	loc      *time.Location
	filePath string
	log      zerolog.Logger
}

// NewManager creates a Manager, loading state from disk when a state file is configured.
func NewManager(cfg Config, loc *time.Location, log zerolog.Logger) (*Manager, error) {
	state, err := LoadState(cfg.StateFile)
	if err != nil {
		return nil, fmt.Errorf("load risk budget: %w", err)
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Manager{state: state, cfg: cfg, loc: loc, filePath: cfg.StateFile, log: log}, nil
}

// Snapshot returns a copy of the current budget.
func (m *Manager) Snapshot() model.RiskBudget {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.state
}

// Roll starts a new trading day when the local date of now is after the stored date.
// equity becomes the day-start equity. Reports whether a rollover happened.
// An earlier date never rolls the budget back.
func (m *Manager) Roll(now time.Time, equity float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	date := now.In(m.loc).Format("2006-01-02")
	if date < m.state.Date {
		return false
	}
	if m.state.Date == date {
		if m.state.DayStartEquity <= 0 && equity > 0 {
			m.state.DayStartEquity = equity
			m.save()
		}
		return false
	}

	manual := m.state.ManualHalt
	start := equity
	if start <= 0 {
		start = m.state.DayStartEquity
	}
	*m.state = model.RiskBudget{Date: date, DayStartEquity: start, ManualHalt: manual}
	if manual {
		m.state.Halted = true
		m.state.HaltReason = "manual halt"
	}
	m.log.Info().Str("date", date).Float64("day_start_equity", start).Msg("risk budget rolled over")
	m.save()
	return true
}

// RecordClose applies a realized P&L to the budget and re-evaluates the halt conditions.
func (m *Manager) RecordClose(pnl float64) model.RiskBudget {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.state
	s.RealizedPnL += pnl
	if s.DayStartEquity > 0 {
		s.DailyPnLPct = s.RealizedPnL / s.DayStartEquity
	}
	s.TradesToday++
	if pnl > 0 {
		s.ConsecutiveLosses = 0
		s.WinsToday++
	} else {
		s.ConsecutiveLosses++
		s.LossesToday++
	}
	m.evaluate()
	m.save()
	return *s
}

// RecordLeveragedEntry counts a leveraged entry against the daily leveraged cap.
func (m *Manager) RecordLeveragedEntry() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.LeveragedTradesToday++
	m.save()
}

// CanEnter returns ErrTradingHalted while the budget blocks new entries.
func (m *Manager) CanEnter() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Halted {
		return fmt.Errorf("%s: %w", m.state.HaltReason, ErrTradingHalted)
	}
	return nil
}

// Halt blocks new entries until Resume.
func (m *Manager) Halt(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.ManualHalt = true
	m.setHalted("manual halt: " + reason)
	m.save()
}

// Resume lifts a manual halt. A daily limit breached today keeps trading halted until Roll.
func (m *Manager) Resume() {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.state
	s.ManualHalt = false
	if s.LimitHaltReason != "" {
		s.Halted = true
		s.HaltReason = s.LimitHaltReason
		m.log.Warn().Str("reason", s.HaltReason).Msg("manual halt lifted, daily limit still in force")
		m.save()
		return
	}
	s.Halted = false
	s.HaltReason = ""
	m.evaluate()
	if !s.Halted {
		m.log.Info().Msg("trading resumed")
	}
	m.save()
}

// evaluate halts trading for the rest of the day once a limit is breached. Callers hold mu.
func (m *Manager) evaluate() {
	s := m.state
	if s.LimitHaltReason != "" {
		return
	}
	var reason string
	switch {
	case m.cfg.MaxDailyLossPct > 0 && s.DailyPnLPct <= -m.cfg.MaxDailyLossPct:
		reason = fmt.Sprintf("daily loss %.2f%% breached limit %.2f%%", s.DailyPnLPct*100, m.cfg.MaxDailyLossPct*100)
	case m.cfg.MaxConsecutiveLosses > 0 && s.ConsecutiveLosses >= m.cfg.MaxConsecutiveLosses:
		reason = fmt.Sprintf("%d consecutive losses", s.ConsecutiveLosses)
	case m.cfg.MaxTradesPerDay > 0 && s.TradesToday >= m.cfg.MaxTradesPerDay:
		reason = fmt.Sprintf("daily trade cap %d reached", m.cfg.MaxTradesPerDay)
	default:
		return
	}
	s.LimitHaltReason = reason
	m.setHalted(reason)
}

func (m *Manager) setHalted(reason string) {
	m.state.Halted = true
	m.state.HaltReason = reason
	m.log.Warn().Str("reason", reason).Msg("trading halted")
}

func (m *Manager) save() {
	if err := SaveState(m.filePath, m.state); err != nil {
		m.log.Error().Err(err).Msg("failed to save risk budget")
	}
}
