package budget

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day1 = time.Date(2024, 3, 5, 15, 0, 0, 0, time.UTC)

func newManager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	m, err := NewManager(cfg, time.UTC, zerolog.Nop())
	require.NoError(t, err)
	m.Roll(day1, 100000)
	return m
}

func TestRecordClose_ConsecutiveLossesHalt(t *testing.T) {
	m := newManager(t, Config{MaxDailyLossPct: 0.03, MaxConsecutiveLosses: 5})
	for i := 0; i < 4; i++ {
		m.RecordClose(-10)
		require.NoError(t, m.CanEnter())
	}
	s := m.RecordClose(-10)
	assert.Equal(t, 5, s.ConsecutiveLosses)
	assert.True(t, s.Halted)
	assert.ErrorIs(t, m.CanEnter(), ErrTradingHalted)
}

func TestRecordClose_WinResetsStreak(t *testing.T) {
	m := newManager(t, Config{MaxConsecutiveLosses: 5})
	m.RecordClose(-10)
	m.RecordClose(-10)
	s := m.RecordClose(25)
	assert.Equal(t, 0, s.ConsecutiveLosses)
	assert.Equal(t, 3, s.TradesToday)
	assert.Equal(t, 1, s.WinsToday)
	assert.InDelta(t, 5.0/100000, s.DailyPnLPct, 1e-12)
}

func TestRecordClose_DailyLossFloor(t *testing.T) {
	m := newManager(t, Config{MaxDailyLossPct: 0.02, MaxConsecutiveLosses: 5})
	m.RecordClose(-1500)
	require.NoError(t, m.CanEnter())
	s := m.RecordClose(-600)
	assert.True(t, s.Halted)
	// A later win does not lift the halt for the day.
	s = m.RecordClose(5000)
	assert.True(t, s.Halted)
}

func TestRecordClose_TradeCap(t *testing.T) {
	m := newManager(t, Config{MaxTradesPerDay: 2})
	m.RecordClose(10)
	s := m.RecordClose(10)
	assert.True(t, s.Halted)
}

func TestRoll_ResetsOnNewDay(t *testing.T) {
	m := newManager(t, Config{MaxConsecutiveLosses: 1})
	m.RecordClose(-10)
	require.ErrorIs(t, m.CanEnter(), ErrTradingHalted)

	assert.False(t, m.Roll(day1.Add(time.Hour), 99990))
	assert.True(t, m.Roll(day1.Add(24*time.Hour), 99990))
	s := m.Snapshot()
	assert.Equal(t, 0, s.ConsecutiveLosses)
	assert.Equal(t, 0, s.TradesToday)
	assert.Equal(t, 99990.0, s.DayStartEquity)
	assert.NoError(t, m.CanEnter())
}

func TestManualHaltSurvivesRollover(t *testing.T) {
	m := newManager(t, Config{})
	m.Halt("operator")
	m.Roll(day1.Add(24*time.Hour), 100000)
	assert.ErrorIs(t, m.CanEnter(), ErrTradingHalted)
	m.Resume()
	assert.NoError(t, m.CanEnter())
}

func TestStatePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "budget.json")
	cfg := Config{MaxConsecutiveLosses: 2, StateFile: path}
	m := newManager(t, cfg)
	m.RecordClose(-1)
	m.RecordClose(-1)

	reloaded, err := NewManager(cfg, time.UTC, zerolog.Nop())
	require.NoError(t, err)
	assert.False(t, reloaded.Roll(day1, 100000))
	assert.ErrorIs(t, reloaded.CanEnter(), ErrTradingHalted)
	assert.Equal(t, 2, reloaded.Snapshot().TradesToday)
}

func TestResume_KeepsLimitHalts(t *testing.T) {
	t.Run("consecutive losses", func(t *testing.T) {
		m := newManager(t, Config{MaxDailyLossPct: 0.03, MaxConsecutiveLosses: 5})
		for i := 0; i < 5; i++ {
			m.RecordClose(-10)
		}
		m.Resume()
		assert.ErrorIs(t, m.CanEnter(), ErrTradingHalted)
		assert.Contains(t, m.Snapshot().HaltReason, "consecutive losses")
	})
	t.Run("daily loss floor", func(t *testing.T) {
		m := newManager(t, Config{MaxDailyLossPct: 0.03, MaxConsecutiveLosses: 5})
		m.RecordClose(-5000)
		m.Resume()
		assert.ErrorIs(t, m.CanEnter(), ErrTradingHalted)
	})
	t.Run("floor recovered intraday", func(t *testing.T) {
		m := newManager(t, Config{MaxDailyLossPct: 0.03, MaxConsecutiveLosses: 5})
		m.RecordClose(-5000)
		m.RecordClose(6000)
		m.Resume()
		assert.ErrorIs(t, m.CanEnter(), ErrTradingHalted)
	})
	t.Run("manual halt over limit halt", func(t *testing.T) {
		m := newManager(t, Config{MaxConsecutiveLosses: 1})
		m.Halt("operator")
		m.RecordClose(-10)
		m.Resume()
		assert.ErrorIs(t, m.CanEnter(), ErrTradingHalted)
		assert.False(t, m.Snapshot().ManualHalt)

		m.Roll(day1.Add(24*time.Hour), 100000)
		assert.NoError(t, m.CanEnter())
	})
}

func TestRoll_IgnoresEarlierDate(t *testing.T) {
	m := newManager(t, Config{MaxConsecutiveLosses: 5})
	m.RecordClose(-10)
	assert.False(t, m.Roll(day1.Add(-24*time.Hour), 90000))
	s := m.Snapshot()
	assert.Equal(t, "2024-03-05", s.Date)
	assert.Equal(t, 1, s.TradesToday)
}
