package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func swingConfig() Config {
	return Config{
		Timezone:     "America/New_York",
		WeekdaysOnly: true,
		Windows: []Window{
			{Label: "morning", Start: "10:30", End: "12:00", Favorable: true},
			{Label: "lunch", Start: "12:00", End: "14:00", Favorable: false},
			{Label: "afternoon", Start: "14:00", End: "15:30", Favorable: true},
		},
	}
}

type fakeCalendar struct {
	open bool
	err  error
}

func (f fakeCalendar) IsMarketOpen(context.Context, time.Time) (bool, error) { return f.open, f.err }

func ny(t *testing.T, layout string) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	ts, err := time.ParseInLocation("2006-01-02 15:04", layout, loc)
	require.NoError(t, err)
	return ts
}

func TestGate_Evaluate(t *testing.T) {
	g, err := NewGate(swingConfig(), nil, 0, zerolog.Nop())
	require.NoError(t, err)

	cases := []struct {
		at       string
		tradable bool
		label    string
	}{
		{"2024-03-05 10:45", true, "morning"},
		{"2024-03-05 10:29", false, "closed: outside trading windows"},
		{"2024-03-05 12:30", false, "lunch"},
		{"2024-03-05 15:29", true, "afternoon"},
		{"2024-03-05 15:30", false, "closed: outside trading windows"},
		{"2024-03-09 11:00", false, "closed: weekend"},
	}
	for _, tc := range cases {
		s := g.Evaluate(ny(t, tc.at))
		assert.Equal(t, tc.tradable, s.Tradable, tc.at)
		assert.Equal(t, tc.label, s.Label, tc.at)
	}
}

func TestGate_UsesExchangeTimeZone(t *testing.T) {
	g, err := NewGate(swingConfig(), nil, 0, zerolog.Nop())
	require.NoError(t, err)
	// 15:00 UTC is 10:00 in New York during standard time.
	s := g.Evaluate(time.Date(2024, 1, 9, 15, 0, 0, 0, time.UTC))
	assert.False(t, s.Tradable)
	s = g.Evaluate(time.Date(2024, 1, 9, 15, 45, 0, 0, time.UTC))
	assert.True(t, s.Tradable)
}

func TestGate_ContinuousWithoutWindows(t *testing.T) {
	g, err := NewGate(Config{}, nil, 0, zerolog.Nop())
	require.NoError(t, err)
	s := g.Evaluate(time.Date(2024, 3, 9, 3, 0, 0, 0, time.UTC))
	assert.True(t, s.Tradable)
	assert.Equal(t, "continuous", s.Label)
}

func TestGate_CalendarRefines(t *testing.T) {
	at := ny(t, "2024-07-04 11:00")

	closed, err := NewGate(swingConfig(), fakeCalendar{open: false}, time.Second, zerolog.Nop())
	require.NoError(t, err)
	assert.False(t, closed.Check(context.Background(), at).Tradable)

	failing, err := NewGate(swingConfig(), fakeCalendar{err: errors.New("timeout")}, time.Second, zerolog.Nop())
	require.NoError(t, err)
	assert.True(t, failing.Check(context.Background(), at).Tradable)
}

func TestNewGate_RejectsBadWindows(t *testing.T) {
	_, err := NewGate(Config{Windows: []Window{{Label: "x", Start: "12:00", End: "11:00"}}}, nil, 0, zerolog.Nop())
	assert.Error(t, err)
	_, err = NewGate(Config{Windows: []Window{{Label: "x", Start: "25:00", End: "26:00"}}}, nil, 0, zerolog.Nop())
	assert.Error(t, err)
}
