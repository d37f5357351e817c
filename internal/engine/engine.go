// Package engine drives the scan cycle: it monitors open positions, gates new
// entries, scores every symbol and turns the best signals into orders.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"TradeSentinel/internal/broker"
	"TradeSentinel/internal/budget"
	"TradeSentinel/internal/calculator"
	"TradeSentinel/internal/collector"
	"TradeSentinel/internal/leverage"
	"TradeSentinel/internal/market"
	"TradeSentinel/internal/metrics"
	"TradeSentinel/internal/model"
	"TradeSentinel/internal/notifier"
	"TradeSentinel/internal/position"
	"TradeSentinel/internal/recorder"
	"TradeSentinel/internal/risk"
	"TradeSentinel/internal/session"
	"TradeSentinel/internal/strategy"
)

// Config holds the cycle parameters.
type Config struct {
	Symbols      []string      `yaml:"symbols"`
	Timeframe    string        `yaml:"timeframe"`
	Lookback     int           `yaml:"lookback"` // bars fetched per symbol
	Concurrency  int           `yaml:"concurrency"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	OrderTimeout time.Duration `yaml:"order_timeout"`
}

// Deps are the collaborators an Engine wires together.
type Deps struct {
	Fetcher   collector.Fetcher
	Broker    broker.Gateway
	Bank      *calculator.Bank
	Scorer    *strategy.Scorer
	Session   *session.Gate
	Market    *market.Gate
	Decider   *leverage.Decider
	Sizer     *risk.Sizer
	Budget    *budget.Manager
	Positions *position.Manager
	Recorder  recorder.Recorder
	Notifier  notifier.Notifier
}

// CycleReport summarizes one RunCycle.
type CycleReport struct {
	At       time.Time
	Session  model.Session
	Verdict  model.MarketVerdict
	Skipped  string // non-empty when entries were not considered
	Signals  []*model.Signal
	Entered  []model.Position
	Closed   []model.Position
	Failures map[string]error // per-symbol evaluation errors
}

type pendingExit struct {
	pos      model.Position
	attempts int
}

// Engine orchestrates the decision components. RunCycle calls are serialized;
// HandleTick may run concurrently with a cycle.
type Engine struct {
	cfg Config
	Deps
	log zerolog.Logger
	now func() time.Time

	cycleMu sync.Mutex

	mu          sync.Mutex
	equity      float64
	marks       map[string]float64
	exits       map[string]*pendingExit // keyed by position id
	lastSession model.Session
	lastVerdict model.MarketVerdict
}

// New validates deps and builds an Engine.
func New(cfg Config, deps Deps, log zerolog.Logger) (*Engine, error) {
	if deps.Fetcher == nil || deps.Broker == nil || deps.Bank == nil || deps.Scorer == nil ||
		deps.Session == nil || deps.Decider == nil || deps.Sizer == nil ||
		deps.Budget == nil || deps.Positions == nil {
		return nil, errors.New("engine: missing collaborator")
	}
	if deps.Market == nil {
		deps.Market = market.NewGate(market.Config{}, nil, log)
	}
	if deps.Recorder == nil {
		deps.Recorder = recorder.NewNoopRecorder()
	}
	if deps.Notifier == nil {
		deps.Notifier = notifier.LogNotifier{Log: log}
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = deps.Bank.MinBars() + 50
	}
	if cfg.OrderTimeout <= 0 {
		cfg.OrderTimeout = 10 * time.Second
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 15 * time.Second
	}
	return &Engine{
		cfg:   cfg,
		Deps:  deps,
		log:   log.With().Str("component", "engine").Logger(),
		now:   func() time.Time { return time.Now().UTC() },
		marks: make(map[string]float64),
		exits: make(map[string]*pendingExit),
	}, nil
}

// SetClock replaces the wall clock.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// Symbols returns the configured watchlist.
func (e *Engine) Symbols() []string { return append([]string(nil), e.cfg.Symbols...) }

// RunCycle runs one scan: refresh equity and the day's budget, protect open
// positions, then look for entries if the session, budget and market allow it.
func (e *Engine) RunCycle(ctx context.Context) (*CycleReport, error) {
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()

	now := e.now()
	report := &CycleReport{At: now, Failures: make(map[string]error)}

	equity, err := e.refreshEquity(ctx, now)
	if err != nil {
		metrics.CyclesTotal.WithLabelValues("error").Inc()
		return report, err
	}

	report.Closed = e.MonitorPositions(ctx)

	report.Session = e.Session.Check(ctx, now)
	e.mu.Lock()
	e.lastSession = report.Session
	e.mu.Unlock()
	if !report.Session.Tradable {
		report.Skipped = "session " + report.Session.Label
		metrics.CyclesTotal.WithLabelValues("skipped").Inc()
		e.log.Debug().Str("session", report.Session.Label).Msg("outside trading window")
		return report, nil
	}
	if err := e.Budget.CanEnter(); err != nil {
		report.Skipped = err.Error()
		metrics.CyclesTotal.WithLabelValues("halted").Inc()
		e.log.Info().Err(err).Msg("entries blocked")
		return report, nil
	}

	report.Verdict = e.Market.Check(ctx)
	e.mu.Lock()
	e.lastVerdict = report.Verdict
	e.mu.Unlock()
	if report.Verdict.Degraded {
		metrics.FeedDegradedTotal.WithLabelValues("market_condition").Inc()
	}

	report.Signals = e.evaluate(ctx, report.Failures)
	if !report.Verdict.CanTrade {
		report.Skipped = "market conditions"
		metrics.CyclesTotal.WithLabelValues("skipped").Inc()
		e.log.Info().Strs("reasons", report.Verdict.Reasons).Msg("market gate blocks entries")
		return report, nil
	}

	var buys []*model.Signal
	for _, sig := range report.Signals {
		if sig.Direction == model.DirectionBuy {
			buys = append(buys, sig)
		}
	}
	for _, sig := range strategy.Rank(buys) {
		if err := e.Budget.CanEnter(); err != nil {
			e.log.Info().Err(err).Msg("entries halted mid-cycle")
			break
		}
		pos, err := e.enter(ctx, sig, report.Verdict, equity)
		if errors.Is(err, risk.ErrPositionLimitReached) {
			e.log.Info().Str("symbol", sig.Symbol).Msg("position limits reached, no further entries this cycle")
			break
		}
		if err != nil {
			continue
		}
		report.Entered = append(report.Entered, pos)
	}
	metrics.CyclesTotal.WithLabelValues("completed").Inc()
	return report, nil
}

func (e *Engine) refreshEquity(ctx context.Context, now time.Time) (float64, error) {
	actx, cancel := context.WithTimeout(ctx, e.cfg.OrderTimeout)
	acct, err := e.Broker.GetAccount(actx)
	cancel()

	e.mu.Lock()
	if err == nil && acct.Equity > 0 {
		e.equity = acct.Equity
	}
	equity := e.equity
	e.mu.Unlock()

	if err != nil {
		e.log.Warn().Err(err).Bool("degraded", true).Float64("equity", equity).Msg("account query failed, using last equity")
		if equity <= 0 {
			return 0, fmt.Errorf("no account equity: %w", err)
		}
	}
	if e.Budget.Roll(now, equity) {
		snap := e.Budget.Snapshot()
		e.recordBudget(&snap)
	}
	return equity, nil
}

// evaluate scores every symbol concurrently. Failures are per symbol and never abort the others.
func (e *Engine) evaluate(ctx context.Context, failures map[string]error) []*model.Signal {
	results := make([]*model.Signal, len(e.cfg.Symbols))
	errs := make([]error, len(e.cfg.Symbols))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)
	for i, sym := range e.cfg.Symbols {
		i, sym := i, sym
		g.Go(func() error {
			results[i], errs[i] = e.scoreSymbol(gctx, sym)
			return nil
		})
	}
	_ = g.Wait()

	var out []*model.Signal
	for i, sym := range e.cfg.Symbols {
		if errs[i] != nil {
			failures[sym] = errs[i]
			lvl := e.log.Warn()
			if errors.Is(errs[i], calculator.ErrInsufficientHistory) {
				lvl = e.log.Info()
			}
			lvl.Err(errs[i]).Str("symbol", sym).Msg("symbol skipped")
			continue
		}
		sig := results[i]
		metrics.SignalsTotal.WithLabelValues(sym, string(sig.Direction)).Inc()
		if err := e.Recorder.RecordSignal(sig); err != nil {
			e.log.Error().Err(err).Str("symbol", sym).Msg("record signal")
		}
		out = append(out, sig)
	}
	return out
}

func (e *Engine) scoreSymbol(ctx context.Context, symbol string) (*model.Signal, error) {
	fctx, cancel := context.WithTimeout(ctx, e.cfg.FetchTimeout)
	defer cancel()
	series, err := collector.Collect(fctx, e.Fetcher, symbol, e.cfg.Timeframe, e.cfg.Lookback)
	if err != nil {
		return nil, err
	}
	snap, err := e.Bank.Compute(symbol, series.Bars)
	if err != nil {
		return nil, err
	}
	sig := e.Scorer.Evaluate(snap)
	e.log.Debug().Str("symbol", symbol).Int("score", sig.Score).Int("max", sig.MaxScore).
		Str("direction", string(sig.Direction)).Msg("scored")
	return sig, nil
}

// enter admits, sizes and submits one BUY. Sizing and the leverage decision run
// inside Admit so concurrent entries cannot both take the last slot.
func (e *Engine) enter(ctx context.Context, sig *model.Signal, verdict model.MarketVerdict, equity float64) (model.Position, error) {
	log := e.log.With().Str("symbol", sig.Symbol).Int("score", sig.Score).Logger()
	snap := sig.Indicators
	atr, atrPct := snap.Value(model.IndATR), snap.Value(model.IndATRPct)
	stopPct, takeProfitPct := e.Positions.Levels(sig.Symbol, sig.Price, atr)

	pending, err := e.Positions.Admit(sig.Symbol, func(b position.Book) (*position.Entry, error) {
		// A leveraged entry stays in the book while pending and is counted in the
		// budget before it leaves that state, so this count cannot go stale.
		grant := e.Decider.Decide(leverage.Input{
			Signal:          sig,
			Verdict:         verdict,
			StopPct:         stopPct,
			TakeProfitPct:   takeProfitPct,
			ActiveLeveraged: b.Leveraged,
			LeveragedToday:  e.Budget.Snapshot().LeveragedTradesToday,
		})
		qty, err := e.Sizer.Size(risk.Request{
			Entry:    sig.Price,
			Stop:     sig.Price * (1 - grant.AdjustedStopPct),
			Leverage: grant.Multiplier,
			ATRPct:   atrPct,
		}, risk.Portfolio{Equity: equity, OpenPositions: b.Positions, Exposure: b.Exposure})
		if err != nil {
			return nil, err
		}
		return &position.Entry{
			Quantity:      qty,
			Price:         sig.Price,
			StopPct:       grant.AdjustedStopPct,
			TakeProfitPct: grant.AdjustedTakeProfitPct,
			Leverage:      grant,
			Score:         sig.Score,
			Confidence:    sig.Confidence,
		}, nil
	})
	if err != nil {
		log.Info().Err(err).Msg("entry not admitted")
		return model.Position{}, err
	}

	octx, cancel := context.WithTimeout(ctx, e.cfg.OrderTimeout)
	fill, err := e.Broker.SubmitOrder(octx, broker.OrderRequest{
		Symbol:   sig.Symbol,
		Side:     broker.Buy,
		Quantity: pending.Quantity,
		Price:    sig.Price,
	})
	cancel()
	if err != nil {
		e.Positions.Reject(pending.ID)
		metrics.OrdersTotal.WithLabelValues(sig.Symbol, string(broker.Buy), "rejected").Inc()
		log.Warn().Err(err).Float64("qty", pending.Quantity).Msg("entry order failed")
		e.notify(ctx, fmt.Sprintf("❌ Entry order for %s failed: %v", sig.Symbol, err))
		return model.Position{}, err
	}
	metrics.OrdersTotal.WithLabelValues(sig.Symbol, string(broker.Buy), "filled").Inc()
	e.mark(sig.Symbol, fill.Price)
	if pending.Leveraged() {
		e.Budget.RecordLeveragedEntry()
	}

	// Tick ordering runs on the engine clock, so the fill is stamped with it too.
	pos, err := e.Positions.ConfirmFill(pending.ID, fill.Price, e.now())
	if err != nil {
		e.notify(ctx, fmt.Sprintf("⚠️ %s quarantined after fill: %v", sig.Symbol, err))
		return pos, err
	}
	if err := e.Recorder.RecordTradeOpen(&pos); err != nil {
		log.Error().Err(err).Msg("record trade open")
	}
	metrics.OpenPositions.Set(float64(len(e.Positions.Active())))
	e.notify(ctx, notifier.FormatEntry(&pos, sig))
	return pos, nil
}

// MonitorPositions retries failed exits and applies a fresh quote to every open position.
// It runs whatever the session, budget or market state.
func (e *Engine) MonitorPositions(ctx context.Context) []model.Position {
	e.retryExits(ctx)

	var closed []model.Position
	for _, p := range e.Positions.Active() {
		if p.State == model.StatePendingEntry || p.Quarantined {
			continue
		}
		fctx, cancel := context.WithTimeout(ctx, e.cfg.FetchTimeout)
		price, err := e.Fetcher.FetchCurrentPrice(fctx, p.Symbol)
		cancel()
		if err != nil {
			e.log.Warn().Err(err).Str("symbol", p.Symbol).Msg("quote unavailable for open position")
			continue
		}
		c, err := e.HandleTick(ctx, model.Tick{Symbol: p.Symbol, Price: price, Time: e.now()})
		if err != nil {
			continue
		}
		if c != nil {
			closed = append(closed, *c)
		}
	}
	return closed
}

// HandleTick applies one price observation and executes the exit when it closes a position.
// The budget rolls on the tick's time first so a close after midnight lands on the new day.
func (e *Engine) HandleTick(ctx context.Context, t model.Tick) (*model.Position, error) {
	e.mark(t.Symbol, t.Price)
	e.mu.Lock()
	equity := e.equity
	e.mu.Unlock()
	if e.Budget.Roll(t.Time, equity) {
		snap := e.Budget.Snapshot()
		e.recordBudget(&snap)
	}
	closed, err := e.Positions.OnTick(t)
	switch {
	case errors.Is(err, position.ErrStaleTick):
		e.log.Debug().Err(err).Msg("tick dropped")
		return nil, err
	case err != nil:
		e.log.Error().Err(err).Str("symbol", t.Symbol).Msg("tick not applied")
		return nil, err
	}
	if closed != nil {
		e.exit(ctx, closed)
	}
	return closed, nil
}

// FlattenAll closes every active position with manual_exit at the latest known price.
func (e *Engine) FlattenAll(ctx context.Context, reason string) []model.Position {
	var closed []model.Position
	for _, p := range e.Positions.Active() {
		if p.Quarantined {
			e.log.Warn().Str("symbol", p.Symbol).Str("reason", reason).Msg("flatten skipped quarantined position")
			continue
		}
		c := e.Positions.Close(p.Symbol, e.exitPrice(ctx, p), e.now())
		if c == nil {
			continue
		}
		e.log.Info().Str("symbol", c.Symbol).Str("reason", reason).Msg("position flattened")
		e.exit(ctx, c)
		closed = append(closed, *c)
	}
	return closed
}

// Resolve closes a quarantined position on operator request and sends its sell order.
func (e *Engine) Resolve(ctx context.Context, symbol string) (*model.Position, error) {
	p, ok := e.Positions.Get(symbol)
	if !ok {
		return nil, fmt.Errorf("%s: %w", symbol, position.ErrNotFound)
	}
	c, err := e.Positions.Resolve(symbol, e.exitPrice(ctx, p), e.now())
	if err != nil {
		return nil, err
	}
	e.exit(ctx, c)
	return c, nil
}

// exitPrice is the last mark, else a fresh quote, else the entry price.
func (e *Engine) exitPrice(ctx context.Context, p model.Position) float64 {
	if price, ok := e.lastMark(p.Symbol); ok {
		return price
	}
	fctx, cancel := context.WithTimeout(ctx, e.cfg.FetchTimeout)
	defer cancel()
	q, err := e.Fetcher.FetchCurrentPrice(fctx, p.Symbol)
	if err != nil {
		e.log.Warn().Err(err).Str("symbol", p.Symbol).Msg("no quote for exit, using entry price")
		return p.EntryPrice
	}
	return q
}

// exit journals a closed position and sends its sell order. A failed order
// stays in the exit backlog until a later monitor pass fills it.
func (e *Engine) exit(ctx context.Context, c *model.Position) {
	metrics.PositionsClosedTotal.WithLabelValues(string(c.CloseReason)).Inc()
	metrics.OpenPositions.Set(float64(len(e.Positions.Active())))
	if err := e.Recorder.RecordTradeClose(c); err != nil {
		e.log.Error().Err(err).Str("symbol", c.Symbol).Msg("record trade close")
	}
	snap := e.Budget.Snapshot()
	e.recordBudget(&snap)
	e.notify(ctx, notifier.FormatExit(c))
	if snap.Halted {
		e.notify(ctx, fmt.Sprintf("⛔ Trading halted: %s", snap.HaltReason))
	}

	if err := e.sell(ctx, *c); err != nil {
		e.mu.Lock()
		e.exits[c.ID] = &pendingExit{pos: *c, attempts: 1}
		e.mu.Unlock()
		e.notify(ctx, fmt.Sprintf("⚠️ Exit order for %s failed, will retry: %v", c.Symbol, err))
	}
}

func (e *Engine) sell(ctx context.Context, c model.Position) error {
	price := c.ExitPrice
	if last, ok := e.lastMark(c.Symbol); ok {
		price = last
	}
	octx, cancel := context.WithTimeout(ctx, e.cfg.OrderTimeout)
	defer cancel()
	_, err := e.Broker.SubmitOrder(octx, broker.OrderRequest{
		Symbol:   c.Symbol,
		Side:     broker.Sell,
		Quantity: c.Quantity,
		Price:    price,
	})
	if err != nil {
		metrics.OrdersTotal.WithLabelValues(c.Symbol, string(broker.Sell), "rejected").Inc()
		e.log.Error().Err(err).Str("symbol", c.Symbol).Float64("qty", c.Quantity).Msg("exit order failed")
		return err
	}
	metrics.OrdersTotal.WithLabelValues(c.Symbol, string(broker.Sell), "filled").Inc()
	return nil
}

func (e *Engine) retryExits(ctx context.Context) {
	e.mu.Lock()
	backlog := make([]*pendingExit, 0, len(e.exits))
	for _, pe := range e.exits {
		backlog = append(backlog, pe)
	}
	e.mu.Unlock()

	for _, pe := range backlog {
		err := e.sell(ctx, pe.pos)
		e.mu.Lock()
		if err == nil {
			delete(e.exits, pe.pos.ID)
			e.log.Info().Str("symbol", pe.pos.Symbol).Int("attempts", pe.attempts+1).Msg("exit order filled on retry")
		} else {
			pe.attempts++
		}
		e.mu.Unlock()
	}
}

// ExitBacklog returns positions whose sell order has not been filled yet.
func (e *Engine) ExitBacklog() []model.Position {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.Position, 0, len(e.exits))
	for _, pe := range e.exits {
		out = append(out, pe.pos)
	}
	return out
}

// Status assembles the operator view.
func (e *Engine) Status() notifier.StatusView {
	e.mu.Lock()
	v := notifier.StatusView{
		Equity:      e.equity,
		Session:     e.lastSession,
		Verdict:     e.lastVerdict,
		ExitBacklog: len(e.exits),
	}
	e.mu.Unlock()
	v.Budget = e.Budget.Snapshot()
	v.OpenPositions = len(e.Positions.Active())
	v.At = e.now()
	return v
}

// OpenPositions returns active positions and the latest marks for them.
func (e *Engine) OpenPositions() ([]*model.Position, map[string]float64) {
	active := e.Positions.Active()
	out := make([]*model.Position, len(active))
	marks := make(map[string]float64, len(active))
	for i := range active {
		out[i] = &active[i]
		if m, ok := e.lastMark(active[i].Symbol); ok {
			marks[active[i].Symbol] = m
		}
	}
	return out, marks
}

// ClosedToday returns positions closed on the budget's current date.
func (e *Engine) ClosedToday() []*model.Position {
	loc := e.Session.Location()
	date := e.Budget.Snapshot().Date
	var out []*model.Position
	for _, p := range e.Positions.History() {
		if p.ClosedAt.In(loc).Format("2006-01-02") == date {
			p := p
			out = append(out, &p)
		}
	}
	return out
}

func (e *Engine) mark(symbol string, price float64) {
	if price <= 0 {
		return
	}
	e.mu.Lock()
	e.marks[symbol] = price
	e.mu.Unlock()
	if m, ok := e.Broker.(interface{ Mark(string, float64) }); ok {
		m.Mark(symbol, price)
	}
}

func (e *Engine) lastMark(symbol string) (float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.marks[symbol]
	return p, ok
}

func (e *Engine) recordBudget(b *model.RiskBudget) {
	metrics.DailyPnLPct.Set(b.DailyPnLPct)
	metrics.SetHalted(b.Halted)
	if err := e.Recorder.RecordBudget(b); err != nil {
		e.log.Error().Err(err).Msg("record budget")
	}
}

func (e *Engine) notify(ctx context.Context, text string) {
	if err := e.Notifier.Send(ctx, text); err != nil {
		e.log.Error().Err(err).Msg("send notification")
	}
}
