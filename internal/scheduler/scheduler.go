package scheduler

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"TradeSentinel/internal/engine"
	"TradeSentinel/internal/notifier"
)

// Jobs holds the cron expressions (with seconds). Empty expressions are not registered.
type Jobs struct {
	Scan    string `yaml:"scan"`
	Monitor string `yaml:"monitor"`
	Flatten string `yaml:"flatten"` // end-of-day exit for intraday variants
	Summary string `yaml:"summary"`
}

// Scheduler manages all cron tasks.
type Scheduler struct {
	Cron     *cron.Cron
	Engine   *engine.Engine
	Notifier notifier.Notifier
	Ctx      context.Context
	log      zerolog.Logger
}

// NewScheduler creates a Scheduler whose cron runs in loc. Overlapping runs of the same job are skipped.
func NewScheduler(ctx context.Context, eng *engine.Engine, n notifier.Notifier, loc *time.Location, log zerolog.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	log = log.With().Str("component", "scheduler").Logger()
	return &Scheduler{
		Cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(loc),
			cron.WithChain(cron.SkipIfStillRunning(cronLogger{log})),
		),
		Engine:   eng,
		Notifier: n,
		Ctx:      ctx,
		log:      log,
	}
}

// RegisterAll registers every configured job.
func (s *Scheduler) RegisterAll(jobs Jobs) error {
	for _, j := range []struct {
		name, spec string
		fn         func()
	}{
		{"scan", jobs.Scan, s.scanTask},
		{"monitor", jobs.Monitor, s.monitorTask},
		{"flatten", jobs.Flatten, s.flattenTask},
		{"summary", jobs.Summary, s.summaryTask},
	} {
		if j.spec == "" {
			continue
		}
		if _, err := s.Cron.AddFunc(j.spec, j.fn); err != nil {
			return fmt.Errorf("register %s task: %w", j.name, err)
		}
		s.log.Info().Str("job", j.name).Str("spec", j.spec).Msg("job registered")
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.log.Info().Msg("scheduler started")
}

// Stop stops the cron scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.log.Info().Msg("scheduler stopped")
}

// RunScanNow executes one scan immediately (for manual trigger / RUN_ON_START).
func (s *Scheduler) RunScanNow() *engine.CycleReport {
	return s.scan()
}

func (s *Scheduler) scanTask() { s.scan() }

func (s *Scheduler) scan() *engine.CycleReport {
	start := time.Now()
	report, err := s.Engine.RunCycle(s.Ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("scan cycle failed")
		s.trySend(fmt.Sprintf("❌ Scan cycle failed: %v", err))
		return report
	}
	s.log.Info().
		Int("signals", len(report.Signals)).
		Int("entered", len(report.Entered)).
		Int("closed", len(report.Closed)).
		Int("failures", len(report.Failures)).
		Str("skipped", report.Skipped).
		Dur("took", time.Since(start)).
		Msg("scan cycle done")
	return report
}

func (s *Scheduler) monitorTask() {
	closed := s.Engine.MonitorPositions(s.Ctx)
	if len(closed) > 0 {
		s.log.Info().Int("closed", len(closed)).Msg("monitor closed positions")
	}
}

func (s *Scheduler) flattenTask() {
	closed := s.Engine.FlattenAll(s.Ctx, "end of day")
	s.log.Info().Int("closed", len(closed)).Msg("end-of-day flatten")
}

func (s *Scheduler) summaryTask() {
	st := s.Engine.Status()
	s.trySend(notifier.FormatDailySummary(st.Budget, s.Engine.ClosedToday()))
}

const helpText = "Available commands:\n" +
	"• /status - engine and budget status\n" +
	"• /positions - open positions\n" +
	"• /scan - run a scan now\n" +
	"• /halt [reason] - stop new entries\n" +
	"• /resume - allow new entries\n" +
	"• /flatten - close every position\n" +
	"• /resolve SYMBOL - close a position held for manual review"

// HandleCommand processes a user command and returns a reply.
func (s *Scheduler) HandleCommand(ctx context.Context, command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return helpText
	}
	// Commands may arrive as /cmd@BotName in group chats.
	cmd := strings.ToLower(strings.SplitN(fields[0], "@", 2)[0])
	switch cmd {
	case "/status":
		return notifier.FormatStatus(s.Engine.Status())
	case "/positions":
		positions, marks := s.Engine.OpenPositions()
		return notifier.FormatPositions(positions, marks)
	case "/scan":
		report := s.scan()
		if report == nil {
			return "Scan failed."
		}
		if report.Skipped != "" {
			return "Scan skipped: " + report.Skipped
		}
		return fmt.Sprintf("Scan done: %d signals, %d entries.", len(report.Signals), len(report.Entered))
	case "/halt":
		reason := strings.TrimSpace(strings.TrimPrefix(command, fields[0]))
		if reason == "" {
			reason = "operator request"
		}
		s.Engine.Budget.Halt(reason)
		s.log.Warn().Str("reason", reason).Msg("manual halt")
		return "⛔ New entries halted: " + reason
	case "/resume":
		s.Engine.Budget.Resume()
		s.log.Info().Msg("manual resume")
		if err := s.Engine.Budget.CanEnter(); err != nil {
			return fmt.Sprintf("Manual halt lifted, entries still blocked: %s", html.EscapeString(err.Error()))
		}
		return "▶️ New entries resumed."
	case "/resolve":
		if len(fields) < 2 {
			return "Usage: /resolve SYMBOL"
		}
		c, err := s.Engine.Resolve(ctx, strings.ToUpper(fields[1]))
		if err != nil {
			return "Resolve failed: " + html.EscapeString(err.Error())
		}
		return fmt.Sprintf("Resolved %s at %.4f, P&amp;L %+.2f.", html.EscapeString(c.Symbol), c.ExitPrice, c.RealizedPnL)
	case "/flatten":
		closed := s.Engine.FlattenAll(ctx, "operator flatten")
		return fmt.Sprintf("Flattened %d position(s).", len(closed))
	default:
		return helpText
	}
}

func (s *Scheduler) trySend(text string) {
	if err := s.Notifier.Send(s.Ctx, text); err != nil {
		s.log.Error().Err(err).Msg("send notification")
	}
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct{ log zerolog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
