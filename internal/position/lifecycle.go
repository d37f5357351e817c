package position

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"TradeSentinel/internal/model"
)

var (
	// ErrInvariantViolation marks a position whose levels are inconsistent. Automation stops for it.
	ErrInvariantViolation = errors.New("position invariant violated")
	// ErrStaleTick is returned for a tick not newer than the last one applied.
	ErrStaleTick = errors.New("stale tick dropped")
	// ErrAlreadyHeld is returned when a symbol already has an active position.
	ErrAlreadyHeld = errors.New("symbol already held")
	// ErrNotFound is returned for unknown position ids.
	ErrNotFound = errors.New("position not found")
)

const (
	historyLimit = 500
	priceEpsilon = 1e-9
)

// Levels are stop and take-profit distances as fractions of entry.
type Levels struct {
	StopLossPct   float64 `yaml:"stop_loss_pct"`
	TakeProfitPct float64 `yaml:"take_profit_pct"`
}

// Config holds the exit parameters of a variant.
type Config struct {
	StopLossPct            float64           `yaml:"stop_loss_pct"`
	TakeProfitPct          float64           `yaml:"take_profit_pct"`
	StopATRMultiple        float64           `yaml:"stop_atr_multiple"`       // 0 disables the ATR stop
	TrailingActivationPct  float64           `yaml:"trailing_activation_pct"` // gain from entry
	TrailingActivationR    float64           `yaml:"trailing_activation_r"`   // multiple of initial risk, used when the pct is 0
	TrailingPct            float64           `yaml:"trailing_pct"`
	ClearTakeProfitOnTrail bool              `yaml:"clear_take_profit_on_trail"`
	Overrides              map[string]Levels `yaml:"overrides"` // keyed by base asset
}

// Ledger receives realized P&L of closed positions.
type Ledger interface {
	RecordClose(pnl float64) model.RiskBudget
}

// Book summarizes the active positions at admission time.
type Book struct {
	Positions int
	Exposure  float64
	Leveraged int
}

// Entry is an admitted trade plan.
type Entry struct {
	Quantity      float64
	Price         float64
	StopPct       float64
	TakeProfitPct float64
	Leverage      model.LeverageGrant
	Score         int
	Confidence    float64
}

// Manager owns the active positions and drives each through its lifecycle.
type Manager struct {
	mu        sync.Mutex
	cfg       Config
	positions map[string]*model.Position // active, keyed by symbol
	history   []model.Position
	ledger    Ledger
	log       zerolog.Logger
	now       func() time.Time
}

// NewManager creates a Manager. ledger may be nil.
func NewManager(cfg Config, ledger Ledger, log zerolog.Logger) *Manager {
	return &Manager{
		cfg:       cfg,
		positions: make(map[string]*model.Position),
		ledger:    ledger,
		log:       log,
		now:       time.Now,
	}
}

// BaseAsset returns the asset part of a pair symbol: "BTC/USD" and "BTCUSDT" both give "BTC".
func BaseAsset(symbol string) string {
	s := strings.ToUpper(symbol)
	if i := strings.IndexAny(s, "/-"); i > 0 {
		return s[:i]
	}
	for _, quote := range []string{"USDT", "USDC", "USD"} {
		if strings.HasSuffix(s, quote) && len(s) > len(quote) {
			return strings.TrimSuffix(s, quote)
		}
	}
	return s
}

// Levels returns the stop and take-profit fractions for symbol, tightened by the ATR stop when configured.
func (m *Manager) Levels(symbol string, price, atr float64) (stopPct, takeProfitPct float64) {
	stopPct, takeProfitPct = m.cfg.StopLossPct, m.cfg.TakeProfitPct
	if o, ok := m.cfg.Overrides[BaseAsset(symbol)]; ok {
		if o.StopLossPct > 0 {
			stopPct = o.StopLossPct
		}
		if o.TakeProfitPct > 0 {
			takeProfitPct = o.TakeProfitPct
		}
	}
	if m.cfg.StopATRMultiple > 0 && atr > 0 && price > 0 {
		if atrPct := m.cfg.StopATRMultiple * atr / price; atrPct < stopPct {
			stopPct = atrPct
		}
	}
	return stopPct, takeProfitPct
}

// Admit runs plan under the manager lock and registers the resulting PENDING_ENTRY position.
// Concurrent admissions are serialized, so plan sees a Book that cannot change underneath it.
func (m *Manager) Admit(symbol string, plan func(Book) (*Entry, error)) (model.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.positions[symbol]; ok {
		return model.Position{}, fmt.Errorf("%s: %w", symbol, ErrAlreadyHeld)
	}
	e, err := plan(m.book())
	if err != nil {
		return model.Position{}, err
	}
	if e.Quantity <= 0 || e.Price <= 0 {
		return model.Position{}, fmt.Errorf("%s: quantity %.4f at %.4f: %w", symbol, e.Quantity, e.Price, ErrInvariantViolation)
	}
	if e.StopPct <= 0 || e.StopPct >= 1 {
		return model.Position{}, fmt.Errorf("%s: stop pct %.4f: %w", symbol, e.StopPct, ErrInvariantViolation)
	}

	p := &model.Position{
		ID:            uuid.NewString(),
		Symbol:        symbol,
		Quantity:      e.Quantity,
		StopPct:       e.StopPct,
		TakeProfitPct: e.TakeProfitPct,
		Leverage:      e.Leverage,
		Score:         e.Score,
		Confidence:    e.Confidence,
		State:         model.StatePendingEntry,
		OpenedAt:      m.now(),
	}
	m.setLevels(p, e.Price)
	m.positions[symbol] = p
	return *p, nil
}

// ConfirmFill moves a pending position to OPEN_FIXED_STOP, re-anchoring its levels at the fill price.
func (m *Manager) ConfirmFill(id string, fillPrice float64, at time.Time) (model.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.byID(id)
	if p == nil || p.State != model.StatePendingEntry {
		return model.Position{}, fmt.Errorf("pending position %s: %w", id, ErrNotFound)
	}
	m.setLevels(p, fillPrice)
	p.State = model.StateOpenFixedStop
	p.OpenedAt = at
	p.LastTickAt = at
	if err := m.checkInvariants(p); err != nil {
		return *p, err
	}
	m.log.Info().Str("symbol", p.Symbol).Float64("qty", p.Quantity).Float64("entry", p.EntryPrice).
		Float64("stop", p.StopPrice).Float64("take_profit", p.TakeProfitPrice).
		Float64("leverage", p.Leverage.Multiplier).Msg("position opened")
	return *p, nil
}

// Reject discards a pending position whose entry order failed.
func (m *Manager) Reject(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p := m.byID(id); p != nil && p.State == model.StatePendingEntry {
		delete(m.positions, p.Symbol)
	}
}

// OnTick applies a price observation. It returns the position when the tick closed it.
// Ticks not newer than the last applied one are dropped with ErrStaleTick.
func (m *Manager) OnTick(t model.Tick) (*model.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.positions[t.Symbol]
	if !ok || p.State == model.StatePendingEntry {
		return nil, nil
	}
	if p.Quarantined {
		return nil, fmt.Errorf("%s is quarantined: %w", p.Symbol, ErrInvariantViolation)
	}
	if !t.Time.After(p.LastTickAt) {
		return nil, fmt.Errorf("%s tick at %s not after %s: %w", t.Symbol,
			t.Time.Format(time.RFC3339Nano), p.LastTickAt.Format(time.RFC3339Nano), ErrStaleTick)
	}
	if err := m.checkInvariants(p); err != nil {
		return nil, err
	}
	p.LastTickAt = t.Time
	price := t.Price

	if p.State == model.StateOpenFixedStop {
		switch {
		case price <= p.StopPrice+priceEpsilon:
			return m.close(p, price, model.CloseStopLoss, t.Time), nil
		case price+priceEpsilon >= p.ActivationPrice:
			p.State = model.StateOpenTrailing
			if m.cfg.ClearTakeProfitOnTrail {
				p.TakeProfitPrice = 0
			}
			m.log.Info().Str("symbol", p.Symbol).Float64("price", price).Msg("trailing stop activated")
		case p.TakeProfitPrice > 0 && price+priceEpsilon >= p.TakeProfitPrice:
			return m.close(p, price, model.CloseTakeProfit, t.Time), nil
		default:
			p.HighWaterMark = math.Max(p.HighWaterMark, price)
			return nil, nil
		}
	}

	// OPEN_TRAILING: the stop only ratchets upward.
	if price > p.HighWaterMark {
		p.HighWaterMark = price
	}
	if trail := p.HighWaterMark * (1 - m.cfg.TrailingPct); trail > p.StopPrice {
		p.StopPrice = trail
	}
	switch {
	case price <= p.StopPrice+priceEpsilon:
		return m.close(p, price, model.CloseTrailingStop, t.Time), nil
	case p.TakeProfitPrice > 0 && price+priceEpsilon >= p.TakeProfitPrice:
		return m.close(p, price, model.CloseTakeProfit, t.Time), nil
	}
	return nil, nil
}

// Close exits the position on symbol with manual_exit. A pending position is discarded and nil returned.
// Closing a symbol with no active position is a no-op. A quarantined position is left untouched
// and nil returned; only Resolve closes it.
func (m *Manager) Close(symbol string, price float64, at time.Time) *model.Position {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.positions[symbol]
	if !ok {
		return nil
	}
	if p.Quarantined {
		m.log.Warn().Str("symbol", symbol).Msg("close skipped, position awaits manual review")
		return nil
	}
	if p.State == model.StatePendingEntry {
		delete(m.positions, symbol)
		m.log.Info().Str("symbol", symbol).Msg("pending entry discarded")
		return nil
	}
	return m.close(p, price, model.CloseManualExit, at)
}

// Resolve is the operator override for a quarantined position: it closes it with manual_exit.
func (m *Manager) Resolve(symbol string, price float64, at time.Time) (*model.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.positions[symbol]
	if !ok {
		return nil, fmt.Errorf("%s: %w", symbol, ErrNotFound)
	}
	if !p.Quarantined {
		return nil, fmt.Errorf("%s is not quarantined", symbol)
	}
	m.log.Warn().Str("symbol", symbol).Float64("price", price).Msg("quarantined position resolved by operator")
	return m.close(p, price, model.CloseManualExit, at), nil
}

// Get returns a copy of the active position on symbol.
func (m *Manager) Get(symbol string) (model.Position, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[symbol]
	if !ok {
		return model.Position{}, false
	}
	return *p, true
}

// Active returns copies of all active positions ordered by symbol.
func (m *Manager) Active() []model.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Position, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// History returns recently closed positions, oldest first.
func (m *Manager) History() []model.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Position(nil), m.history...)
}

// Book returns the admission summary of the active positions.
func (m *Manager) Book() Book {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.book()
}

func (m *Manager) book() Book {
	var b Book
	for _, p := range m.positions {
		b.Positions++
		b.Exposure += p.Notional()
		if p.Leveraged() {
			b.Leveraged++
		}
	}
	return b
}

func (m *Manager) byID(id string) *model.Position {
	for _, p := range m.positions {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (m *Manager) setLevels(p *model.Position, entry float64) {
	p.EntryPrice = entry
	p.HighWaterMark = entry
	p.StopPrice = entry * (1 - p.StopPct)
	p.TakeProfitPrice = 0
	if p.TakeProfitPct > 0 {
		p.TakeProfitPrice = entry * (1 + p.TakeProfitPct)
	}
	switch {
	case m.cfg.TrailingActivationPct > 0:
		p.ActivationPrice = entry * (1 + m.cfg.TrailingActivationPct)
	case m.cfg.TrailingActivationR > 0:
		p.ActivationPrice = entry + m.cfg.TrailingActivationR*(entry-p.StopPrice)
	default:
		p.ActivationPrice = math.Inf(1)
	}
}

// checkInvariants quarantines p when its levels are inconsistent. Callers hold mu.
func (m *Manager) checkInvariants(p *model.Position) error {
	var problem string
	switch {
	case p.Quantity <= 0:
		problem = fmt.Sprintf("quantity %.4f", p.Quantity)
	case p.EntryPrice <= 0:
		problem = fmt.Sprintf("entry price %.4f", p.EntryPrice)
	case p.State == model.StateOpenFixedStop && p.StopPrice >= p.EntryPrice:
		problem = fmt.Sprintf("stop %.4f not below entry %.4f", p.StopPrice, p.EntryPrice)
	case p.State == model.StateOpenFixedStop && p.TakeProfitPrice > 0 && p.TakeProfitPrice < p.EntryPrice:
		problem = fmt.Sprintf("take profit %.4f below entry %.4f", p.TakeProfitPrice, p.EntryPrice)
	default:
		return nil
	}
	p.Quarantined = true
	m.log.Error().Str("symbol", p.Symbol).Str("id", p.ID).Str("problem", problem).
		Msg("position invariant violated, automation halted for position")
	return fmt.Errorf("%s: %s: %w", p.Symbol, problem, ErrInvariantViolation)
}

func (m *Manager) close(p *model.Position, price float64, reason model.CloseReason, at time.Time) *model.Position {
	p.State = model.StateClosed
	p.CloseReason = reason
	p.ExitPrice = price
	p.ClosedAt = at
	p.RealizedPnL = (price - p.EntryPrice) * p.Quantity
	delete(m.positions, p.Symbol)

	m.history = append(m.history, *p)
	if len(m.history) > historyLimit {
		m.history = m.history[len(m.history)-historyLimit:]
	}
	if m.ledger != nil {
		m.ledger.RecordClose(p.RealizedPnL)
	}
	m.log.Info().Str("symbol", p.Symbol).Str("reason", string(reason)).Float64("exit", price).
		Float64("pnl", p.RealizedPnL).Msg("position closed")
	closed := *p
	return &closed
}
