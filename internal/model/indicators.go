package model

import "time"

// Indicator keys stored in an IndicatorSnapshot.
const (
	IndClose        = "close"
	IndVolume       = "volume"
	IndEMAFast      = "ema_fast"
	IndEMAMid       = "ema_mid"
	IndEMASlow      = "ema_slow"
	IndEMAFastSlope = "ema_fast_slope"
	IndEMAMidSlope  = "ema_mid_slope"
	IndRSI          = "rsi"
	IndVWAP         = "vwap"
	IndBBUpper      = "bb_upper"
	IndBBMiddle     = "bb_middle"
	IndBBLower      = "bb_lower"
	IndBBPosition   = "bb_position"
	IndStochK       = "stoch_k"
	IndStochD       = "stoch_d"
	IndStochKPrev   = "stoch_k_prev"
	IndStochDPrev   = "stoch_d_prev"
	IndADX          = "adx"
	IndPlusDI       = "plus_di"
	IndMinusDI      = "minus_di"
	IndMACD         = "macd"
	IndMACDSignal   = "macd_signal"
	IndMACDHist     = "macd_hist"
	IndATR          = "atr"
	IndATRPct       = "atr_pct"
	IndVolumeAvg    = "volume_avg"
	IndVolumeRatio  = "volume_ratio"
	IndTrendSMA     = "trend_sma"
)

// IndicatorSnapshot maps indicator names to their value at the latest bar.
// An indicator that is not ready (e.g. ADX on a short window) is absent.
type IndicatorSnapshot struct {
	Symbol string
	Time   time.Time
	Values map[string]float64
}

// NewIndicatorSnapshot creates an empty snapshot for symbol at t.
func NewIndicatorSnapshot(symbol string, t time.Time) *IndicatorSnapshot {
	return &IndicatorSnapshot{Symbol: symbol, Time: t, Values: make(map[string]float64, 32)}
}

// Get returns the value for name and whether it is present.
func (s *IndicatorSnapshot) Get(name string) (float64, bool) {
	v, ok := s.Values[name]
	return v, ok
}

// Value returns the value for name, or 0 when absent.
func (s *IndicatorSnapshot) Value(name string) float64 {
	return s.Values[name]
}

// Set stores a value.
func (s *IndicatorSnapshot) Set(name string, v float64) {
	s.Values[name] = v
}
