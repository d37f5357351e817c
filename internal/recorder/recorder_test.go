package recorder

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TradeSentinel/internal/model"
)

func TestSQLiteRecorderJournalsTrade(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "journal.db")
	r, err := NewSQLiteRecorder(path, zerolog.Nop())
	require.NoError(t, err)
	defer r.Close()

	now := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	sig := &model.Signal{
		Symbol: "SPY", Direction: model.DirectionBuy, Score: 9, MaxScore: 10, Confidence: 0.9,
		Rules: []model.RuleHit{{Name: "ema_stack", Weight: 2, Satisfied: true}}, At: now,
	}
	require.NoError(t, r.RecordSignal(sig))

	pos := &model.Position{
		ID: "p1", Symbol: "SPY", Quantity: 16, EntryPrice: 100, StopPrice: 97,
		TakeProfitPrice: 108, State: model.StateOpenFixedStop, OpenedAt: now,
	}
	require.NoError(t, r.RecordTradeOpen(pos))

	pos.State = model.StateClosed
	pos.CloseReason = model.CloseTakeProfit
	pos.ExitPrice = 108
	pos.RealizedPnL = 128
	pos.ClosedAt = now.Add(time.Hour)
	require.NoError(t, r.RecordTradeClose(pos))

	n, err := r.TradeCount()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var reason string
	var pnl float64
	require.NoError(t, r.db.QueryRow(`SELECT close_reason, realized_pnl FROM trades WHERE id = ?`, "p1").Scan(&reason, &pnl))
	assert.Equal(t, "take_profit", reason)
	assert.Equal(t, 128.0, pnl)

	require.NoError(t, r.RecordBudget(&model.RiskBudget{Date: "2026-03-02", DayStartEquity: 10000, Halted: true, HaltReason: "daily loss", UpdatedAt: now}))
	var halted int
	require.NoError(t, r.db.QueryRow(`SELECT halted FROM budget_history`).Scan(&halted))
	assert.Equal(t, 1, halted)
}

func TestNoopRecorder(t *testing.T) {
	var r Recorder = NewNoopRecorder()
	assert.NoError(t, r.RecordSignal(&model.Signal{}))
	assert.NoError(t, r.Close())
}
