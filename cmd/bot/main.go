package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"TradeSentinel/internal/collector"
	"TradeSentinel/internal/config"
	"TradeSentinel/internal/engine"
	"TradeSentinel/internal/metrics"
	"TradeSentinel/internal/model"
	"TradeSentinel/internal/scheduler"
	"TradeSentinel/internal/util"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "tradesentinel",
	Short: "Signal scoring and risk-gated trade execution",
	Long: `TradeSentinel scores a watchlist on a schedule, gates entries on the trading
session, market sentiment and the daily risk budget, sizes positions by risk and
manages their exits until close.`,
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the scheduler, command polling and exit monitoring until interrupted",
	RunE:  runBot,
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run one decision cycle against the configured broker and print the report",
	RunE:  runScan,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load and validate the configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "config ok: variant=%s symbols=%v data=%s broker=%s\n",
			cfg.Variant, cfg.Engine.Symbols, cfg.DataSource.Provider, cfg.Broker.Provider)
		return nil
	},
}

func init() {
	def := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		def = v
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", def, "Path to the YAML configuration file")
	rootCmd.AddCommand(runCmd, scanCmd, validateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func runBot(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := util.NewLogger(cfg.LogLevel)
	log.Info().Str("variant", cfg.Variant).Strs("symbols", cfg.Engine.Symbols).Msg("TradeSentinel starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := build(cfg, log)
	if err != nil {
		return err
	}
	defer app.Close()

	var srv *http.Server
	if cfg.MetricsAddr != "" {
		srv = metrics.Serve(cfg.MetricsAddr)
		log.Info().Str("addr", cfg.MetricsAddr).Msg("metrics endpoint listening")
	}

	sched := scheduler.NewScheduler(ctx, app.Engine, app.Notifier, app.Location, log)
	if err := sched.RegisterAll(cfg.Schedule); err != nil {
		return fmt.Errorf("register cron tasks: %w", err)
	}
	sched.Start()

	if app.Telegram != nil {
		go app.Telegram.StartPolling(ctx, sched.HandleCommand)
		log.Info().Msg("telegram polling started")
	}

	if cfg.DataSource.Stream {
		go streamTicks(ctx, app.Engine, cfg.Engine.Symbols, log)
	}

	if os.Getenv("RUN_ON_START") == "true" {
		log.Info().Msg("RUN_ON_START enabled, executing scan now")
		go sched.RunScanNow()
	}

	log.Info().Msg("TradeSentinel is running. Press Ctrl+C to stop.")
	<-ctx.Done()

	log.Info().Msg("shutdown signal received, stopping")
	sched.Stop()
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("metrics server shutdown")
		}
	}
	log.Info().Msg("TradeSentinel stopped")
	return nil
}

// streamTicks feeds live trades into exit monitoring between scheduled cycles.
func streamTicks(ctx context.Context, eng *engine.Engine, symbols []string, log zerolog.Logger) {
	ticks := make(chan model.Tick, 256)
	stream := collector.NewTradeStream(symbols, log)
	go func() {
		if err := stream.Run(ctx, ticks); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("trade stream stopped")
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticks:
			if _, err := eng.HandleTick(ctx, t); err != nil {
				log.Debug().Err(err).Str("symbol", t.Symbol).Msg("tick ignored")
			}
		}
	}
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := util.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := build(cfg, log)
	if err != nil {
		return err
	}
	defer app.Close()

	report, err := app.Engine.RunCycle(ctx)
	if err != nil {
		return err
	}
	printReport(cmd, report)
	return nil
}

func printReport(cmd *cobra.Command, r *engine.CycleReport) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "cycle at %s  session=%s tradable=%t  sentiment=%d canTrade=%t\n",
		r.At.Format(time.RFC3339), r.Session.Label, r.Session.Tradable, r.Verdict.Sentiment, r.Verdict.CanTrade)
	if r.Skipped != "" {
		fmt.Fprintf(out, "entries skipped: %s\n", r.Skipped)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SYMBOL\tDIRECTION\tSCORE\tCONFIDENCE\tPRICE\tNOTE")
	for _, s := range r.Signals {
		note := s.Disqualifier
		fmt.Fprintf(w, "%s\t%s\t%d/%d\t%.2f\t%.4f\t%s\n", s.Symbol, s.Direction, s.Score, s.MaxScore, s.Confidence, s.Price, note)
	}
	for sym, err := range r.Failures {
		fmt.Fprintf(w, "%s\tERROR\t-\t-\t-\t%v\n", sym, err)
	}
	w.Flush()

	for _, p := range r.Entered {
		fmt.Fprintf(out, "entered %s qty=%g @ %.4f stop=%.4f lev=%.2fx\n", p.Symbol, p.Quantity, p.EntryPrice, p.StopPrice, p.Leverage.Multiplier)
	}
	for _, p := range r.Closed {
		fmt.Fprintf(out, "closed %s (%s) pnl=%.2f\n", p.Symbol, p.CloseReason, p.RealizedPnL)
	}
}
