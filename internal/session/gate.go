package session

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"TradeSentinel/internal/model"
)

// Window is a span of local exchange time, start inclusive and end exclusive.
type Window struct {
	Label     string `yaml:"label"`
	Start     string `yaml:"start"` // HH:MM
	End       string `yaml:"end"`
	Favorable bool   `yaml:"favorable"`
}

// Config defines the tradable windows of a variant. No windows means trading is continuous.
type Config struct {
	Timezone     string   `yaml:"timezone"`
	WeekdaysOnly bool     `yaml:"weekdays_only"`
	Windows      []Window `yaml:"windows"`
}

// Calendar reports exchange holidays and early closes.
type Calendar interface {
	IsMarketOpen(ctx context.Context, at time.Time) (bool, error)
}

type window struct {
	Window
	start, end int // minutes since local midnight
}

// Gate decides whether new entries are allowed at a given instant.
type Gate struct {
	loc          *time.Location
	weekdaysOnly bool
	windows      []window
	calendar     Calendar
	timeout      time.Duration
	log          zerolog.Logger
}

// NewGate parses cfg. cal may be nil, in which case only the window table is used.
func NewGate(cfg Config, cal Calendar, timeout time.Duration, log zerolog.Logger) (*Gate, error) {
	loc := time.UTC
	if cfg.Timezone != "" {
		l, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
		}
		loc = l
	}
	g := &Gate{loc: loc, weekdaysOnly: cfg.WeekdaysOnly, calendar: cal, timeout: timeout, log: log}
	for _, w := range cfg.Windows {
		start, err := ParseClock(w.Start)
		if err != nil {
			return nil, fmt.Errorf("window %q start: %w", w.Label, err)
		}
		end, err := ParseClock(w.End)
		if err != nil {
			return nil, fmt.Errorf("window %q end: %w", w.Label, err)
		}
		if end <= start {
			return nil, fmt.Errorf("window %q: end %s is not after start %s", w.Label, w.End, w.Start)
		}
		g.windows = append(g.windows, window{Window: w, start: start, end: end})
	}
	return g, nil
}

// ParseClock converts HH:MM to minutes since midnight.
func ParseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Location returns the exchange time zone.
func (g *Gate) Location() *time.Location { return g.loc }

// Evaluate classifies now using the window table only.
func (g *Gate) Evaluate(now time.Time) model.Session {
	local := now.In(g.loc)
	if g.weekdaysOnly {
		if wd := local.Weekday(); wd == time.Saturday || wd == time.Sunday {
			return model.Session{Tradable: false, Label: "closed: weekend"}
		}
	}
	if len(g.windows) == 0 {
		return model.Session{Tradable: true, Label: "continuous"}
	}
	minute := local.Hour()*60 + local.Minute()
	for _, w := range g.windows {
		if minute >= w.start && minute < w.end {
			return model.Session{Tradable: w.Favorable, Label: w.Label}
		}
	}
	return model.Session{Tradable: false, Label: "closed: outside trading windows"}
}

// Check refines Evaluate with the calendar. A calendar failure falls back to the window result.
func (g *Gate) Check(ctx context.Context, now time.Time) model.Session {
	s := g.Evaluate(now)
	if !s.Tradable || g.calendar == nil {
		return s
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	open, err := g.calendar.IsMarketOpen(ctx, now)
	if err != nil {
		g.log.Warn().Err(err).Msg("market calendar unavailable, using window table")
		return s
	}
	if !open {
		return model.Session{Tradable: false, Label: "closed: exchange calendar"}
	}
	return s
}
