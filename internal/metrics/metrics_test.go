package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestServeRegistersMetrics(t *testing.T) {
	srv := Serve(":0")
	defer srv.Close()

	TicksTotal.WithLabelValues("BTCUSDT").Inc()

	mfs, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	found := false
	for _, mf := range mfs {
		if mf.GetName() == "tradesentinel_ticks_total" {
			found = true
			break
		}
	}
	if !found {
		t.Fatalf("tradesentinel_ticks_total metric not found")
	}
}

func TestSetHalted(t *testing.T) {
	SetHalted(true)
	if got := testutil.ToFloat64(Halted); got != 1 {
		t.Fatalf("expected halted gauge 1, got %v", got)
	}
	SetHalted(false)
	if got := testutil.ToFloat64(Halted); got != 0 {
		t.Fatalf("expected halted gauge 0, got %v", got)
	}
}
