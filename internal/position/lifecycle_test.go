package position

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TradeSentinel/internal/model"
)

type recordingLedger struct {
	mu  sync.Mutex
	pnl []float64
}

func (l *recordingLedger) RecordClose(pnl float64) model.RiskBudget {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pnl = append(l.pnl, pnl)
	return model.RiskBudget{}
}

var t0 = time.Date(2024, 3, 5, 15, 0, 0, 0, time.UTC)

func swingConfig() Config {
	return Config{StopLossPct: 0.05, TakeProfitPct: 0.15, TrailingActivationPct: 0.10, TrailingPct: 0.03}
}

func open(t *testing.T, m *Manager, symbol string, price, qty float64) model.Position {
	t.Helper()
	p, err := m.Admit(symbol, func(Book) (*Entry, error) {
		return &Entry{Quantity: qty, Price: price, StopPct: m.cfg.StopLossPct, TakeProfitPct: m.cfg.TakeProfitPct}, nil
	})
	require.NoError(t, err)
	require.Equal(t, model.StatePendingEntry, p.State)
	p, err = m.ConfirmFill(p.ID, price, t0)
	require.NoError(t, err)
	return p
}

func tick(symbol string, price float64, sec int) model.Tick {
	return model.Tick{Symbol: symbol, Price: price, Time: t0.Add(time.Duration(sec) * time.Second)}
}

func TestLifecycle_TrailingStopScenario(t *testing.T) {
	ledger := &recordingLedger{}
	m := NewManager(swingConfig(), ledger, zerolog.Nop())
	p := open(t, m, "NVDA", 200, 10)
	assert.InDelta(t, 190.0, p.StopPrice, 1e-9)
	assert.Equal(t, model.StateOpenFixedStop, p.State)

	closed, err := m.OnTick(tick("NVDA", 210, 1))
	require.NoError(t, err)
	require.Nil(t, closed)

	closed, err = m.OnTick(tick("NVDA", 220, 2))
	require.NoError(t, err)
	require.Nil(t, closed)
	p, _ = m.Get("NVDA")
	assert.Equal(t, model.StateOpenTrailing, p.State)
	assert.InDelta(t, 213.40, p.StopPrice, 1e-9)

	closed, err = m.OnTick(tick("NVDA", 213, 3))
	require.NoError(t, err)
	require.NotNil(t, closed)
	assert.Equal(t, model.CloseTrailingStop, closed.CloseReason)
	assert.Greater(t, closed.RealizedPnL, 0.0)
	assert.Equal(t, []float64{closed.RealizedPnL}, ledger.pnl)

	// Closed positions accept no further transitions.
	again, err := m.OnTick(tick("NVDA", 100, 4))
	assert.NoError(t, err)
	assert.Nil(t, again)
	assert.Nil(t, m.Close("NVDA", 100, t0))
	assert.Len(t, ledger.pnl, 1)
}

func TestLifecycle_StopLoss(t *testing.T) {
	m := NewManager(swingConfig(), nil, zerolog.Nop())
	open(t, m, "AAPL", 100, 5)
	closed, err := m.OnTick(tick("AAPL", 94.9, 1))
	require.NoError(t, err)
	require.NotNil(t, closed)
	assert.Equal(t, model.CloseStopLoss, closed.CloseReason)
	assert.InDelta(t, -25.5, closed.RealizedPnL, 1e-9)
}

func TestLifecycle_TakeProfitBeforeActivation(t *testing.T) {
	cfg := swingConfig()
	cfg.TakeProfitPct = 0.08
	m := NewManager(cfg, nil, zerolog.Nop())
	open(t, m, "AAPL", 100, 1)
	closed, err := m.OnTick(tick("AAPL", 108.5, 1))
	require.NoError(t, err)
	require.NotNil(t, closed)
	assert.Equal(t, model.CloseTakeProfit, closed.CloseReason)
}

func TestLifecycle_ActivationAndTakeProfitSameTick(t *testing.T) {
	m := NewManager(swingConfig(), nil, zerolog.Nop())
	open(t, m, "AAPL", 100, 1)
	closed, err := m.OnTick(tick("AAPL", 116, 1))
	require.NoError(t, err)
	require.NotNil(t, closed)
	assert.Equal(t, model.CloseTakeProfit, closed.CloseReason)
}

func TestLifecycle_ClearTakeProfitOnTrail(t *testing.T) {
	cfg := swingConfig()
	cfg.ClearTakeProfitOnTrail = true
	m := NewManager(cfg, nil, zerolog.Nop())
	open(t, m, "AAPL", 100, 1)
	closed, err := m.OnTick(tick("AAPL", 116, 1))
	require.NoError(t, err)
	assert.Nil(t, closed)
	p, _ := m.Get("AAPL")
	assert.Zero(t, p.TakeProfitPrice)
}

func TestLifecycle_StopNeverDecreases(t *testing.T) {
	m := NewManager(swingConfig(), nil, zerolog.Nop())
	open(t, m, "MSFT", 100, 1)
	prices := []float64{105, 111, 115, 112, 114.5, 113, 114.9, 119, 117}
	last := 0.0
	for i, px := range prices {
		closed, err := m.OnTick(tick("MSFT", px, i+1))
		require.NoError(t, err)
		if closed != nil {
			break
		}
		p, _ := m.Get("MSFT")
		assert.GreaterOrEqual(t, p.StopPrice, last, "tick %d", i)
		last = p.StopPrice
	}
}

func TestLifecycle_OutOfOrderTickDropped(t *testing.T) {
	m := NewManager(swingConfig(), nil, zerolog.Nop())
	open(t, m, "MSFT", 100, 1)
	_, err := m.OnTick(tick("MSFT", 101, 10))
	require.NoError(t, err)

	closed, err := m.OnTick(tick("MSFT", 50, 5))
	assert.ErrorIs(t, err, ErrStaleTick)
	assert.Nil(t, closed)
	p, ok := m.Get("MSFT")
	require.True(t, ok)
	assert.Equal(t, model.StateOpenFixedStop, p.State)
}

func TestLifecycle_InvariantViolationQuarantines(t *testing.T) {
	ledger := &recordingLedger{}
	m := NewManager(swingConfig(), ledger, zerolog.Nop())
	open(t, m, "TSLA", 100, 1)
	m.positions["TSLA"].StopPrice = 120

	_, err := m.OnTick(tick("TSLA", 90, 1))
	assert.ErrorIs(t, err, ErrInvariantViolation)
	_, err = m.OnTick(tick("TSLA", 80, 2))
	assert.ErrorIs(t, err, ErrInvariantViolation)
	p, ok := m.Get("TSLA")
	require.True(t, ok)
	assert.True(t, p.Quarantined)
	assert.Empty(t, ledger.pnl)
}

func TestLifecycle_AdmitSerializesAndRejects(t *testing.T) {
	m := NewManager(swingConfig(), nil, zerolog.Nop())
	planErr := errors.New("no room")
	_, err := m.Admit("AMD", func(Book) (*Entry, error) { return nil, planErr })
	assert.ErrorIs(t, err, planErr)

	p, err := m.Admit("AMD", func(b Book) (*Entry, error) {
		assert.Equal(t, 0, b.Positions)
		return &Entry{Quantity: 3, Price: 50, StopPct: 0.05}, nil
	})
	require.NoError(t, err)
	_, err = m.Admit("AMD", func(Book) (*Entry, error) { return &Entry{Quantity: 1, Price: 50, StopPct: 0.05}, nil })
	assert.ErrorIs(t, err, ErrAlreadyHeld)

	b := m.Book()
	assert.Equal(t, 1, b.Positions)
	assert.InDelta(t, 150.0, b.Exposure, 1e-9)

	m.Reject(p.ID)
	assert.Equal(t, 0, m.Book().Positions)
}

func TestLifecycle_SingleLeveragedSlotUnderConcurrency(t *testing.T) {
	m := NewManager(swingConfig(), nil, zerolog.Nop())
	symbols := []string{"BTC/USD", "ETH/USD", "SOL/USD", "AVAX/USD"}
	var wg sync.WaitGroup
	for _, sym := range symbols {
		wg.Add(1)
		go func(sym string) {
			defer wg.Done()
			_, _ = m.Admit(sym, func(b Book) (*Entry, error) {
				grant := model.LeverageGrant{Multiplier: 1}
				if b.Leveraged == 0 {
					grant.Multiplier = 1.5
				}
				return &Entry{Quantity: 1, Price: 100, StopPct: 0.02, Leverage: grant}, nil
			})
		}(sym)
	}
	wg.Wait()
	assert.Equal(t, 4, m.Book().Positions)
	assert.Equal(t, 1, m.Book().Leveraged)
}

func TestLifecycle_ManualCloseAndPendingDiscard(t *testing.T) {
	m := NewManager(swingConfig(), nil, zerolog.Nop())
	open(t, m, "SPY", 400, 2)
	closed := m.Close("SPY", 404, t0.Add(time.Minute))
	require.NotNil(t, closed)
	assert.Equal(t, model.CloseManualExit, closed.CloseReason)
	assert.InDelta(t, 8.0, closed.RealizedPnL, 1e-9)

	_, err := m.Admit("QQQ", func(Book) (*Entry, error) { return &Entry{Quantity: 1, Price: 300, StopPct: 0.01}, nil })
	require.NoError(t, err)
	assert.Nil(t, m.Close("QQQ", 300, t0))
	_, ok := m.Get("QQQ")
	assert.False(t, ok)
	assert.Len(t, m.History(), 1)
}

func TestLevels_OverridesAndATR(t *testing.T) {
	cfg := Config{StopLossPct: 0.03, TakeProfitPct: 0.06, StopATRMultiple: 2,
		Overrides: map[string]Levels{"BTC": {StopLossPct: 0.02, TakeProfitPct: 0.045}}}
	m := NewManager(cfg, nil, zerolog.Nop())

	stop, tp := m.Levels("BTC/USD", 60000, 1000)
	assert.InDelta(t, 0.02, stop, 1e-12)
	assert.InDelta(t, 0.045, tp, 1e-12)

	stop, _ = m.Levels("DOGEUSDT", 100, 0.5)
	assert.InDelta(t, 0.01, stop, 1e-12)
	assert.Equal(t, "BTC", BaseAsset("btcusdt"))
}

func TestLifecycle_QuarantinedNeedsOperatorResolve(t *testing.T) {
	ledger := &recordingLedger{}
	m := NewManager(swingConfig(), ledger, zerolog.Nop())
	open(t, m, "TSLA", 100, 1)
	m.positions["TSLA"].StopPrice = 120
	_, err := m.OnTick(tick("TSLA", 90, 1))
	require.ErrorIs(t, err, ErrInvariantViolation)

	assert.Nil(t, m.Close("TSLA", 90, t0.Add(time.Minute)))
	assert.Empty(t, ledger.pnl)
	_, ok := m.Get("TSLA")
	assert.True(t, ok)

	_, err = m.Resolve("SPY", 90, t0)
	assert.ErrorIs(t, err, ErrNotFound)

	c, err := m.Resolve("TSLA", 90, t0.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, model.CloseManualExit, c.CloseReason)
	assert.Equal(t, []float64{-10}, ledger.pnl)
	_, ok = m.Get("TSLA")
	assert.False(t, ok)
}
