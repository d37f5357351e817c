package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "tradesentinel_ticks_total", Help: "Count of market ticks ingested"},
		[]string{"symbol"},
	)
	CyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "tradesentinel_cycles_total", Help: "Evaluation cycles by outcome"},
		[]string{"outcome"},
	)
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "tradesentinel_signals_total", Help: "Signals produced by direction"},
		[]string{"symbol", "direction"},
	)
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "tradesentinel_orders_total", Help: "Orders submitted"},
		[]string{"symbol", "side", "status"},
	)
	PositionsClosedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "tradesentinel_positions_closed_total", Help: "Closed positions by reason"},
		[]string{"reason"},
	)
	FeedDegradedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "tradesentinel_feed_degraded_total", Help: "Data source failures"},
		[]string{"source"},
	)
	OpenPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "tradesentinel_open_positions", Help: "Currently active positions"},
	)
	DailyPnLPct = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "tradesentinel_daily_pnl_pct", Help: "Realized PnL as a fraction of day-start equity"},
	)
	Halted = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "tradesentinel_halted", Help: "1 when new entries are halted"},
	)
)

func init() {
	prometheus.MustRegister(
		TicksTotal, CyclesTotal, SignalsTotal, OrdersTotal,
		PositionsClosedTotal, FeedDegradedTotal,
		OpenPositions, DailyPnLPct, Halted,
	)
}

// SetHalted maps a boolean onto the halted gauge.
func SetHalted(halted bool) {
	if halted {
		Halted.Set(1)
		return
	}
	Halted.Set(0)
}

func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
