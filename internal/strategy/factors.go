package strategy

import (
	"fmt"

	"TradeSentinel/internal/model"
)

// Thresholds tunes the rule predicates.
type Thresholds struct {
	RSILow        float64 `yaml:"rsi_low"`
	RSIHigh       float64 `yaml:"rsi_high"`
	VolumeSpike   float64 `yaml:"volume_spike"`    // current volume must exceed this multiple of the average
	ADXFloor      float64 `yaml:"adx_floor"`       // trend strength required
	BBMaxPosition float64 `yaml:"bb_max_position"` // 0 = lower band, 1 = upper band
}

// Predicate tests one condition against a snapshot and explains the outcome.
type Predicate func(s *model.IndicatorSnapshot, th Thresholds) (bool, string)

// predicates is the catalog of named rule conditions a rule table can reference.
var predicates = map[string]Predicate{
	"price_above_vwap": priceAboveVWAP,
	"ema_stack":        emaStack,
	"ema_slope":        emaSlope,
	"rsi_band":         rsiBand,
	"stoch_cross":      stochCross,
	"bb_lower_half":    bbLowerHalf,
	"volume_spike":     volumeSpike,
	"adx_trend":        adxTrend,
	"macd_bullish":     macdBullish,
	"above_trend_sma":  aboveTrendSMA,
}

// disqualifiers force HOLD regardless of score.
var disqualifiers = map[string]Predicate{
	"below_trend_sma": belowTrendSMA,
	"below_ema_slow":  belowEMASlow,
}

func priceAboveVWAP(s *model.IndicatorSnapshot, _ Thresholds) (bool, string) {
	c, vwap := s.Value(model.IndClose), s.Value(model.IndVWAP)
	if c > vwap {
		return true, fmt.Sprintf("price %.2f above VWAP %.2f", c, vwap)
	}
	return false, fmt.Sprintf("price %.2f below VWAP %.2f", c, vwap)
}

func emaStack(s *model.IndicatorSnapshot, _ Thresholds) (bool, string) {
	f, m, sl := s.Value(model.IndEMAFast), s.Value(model.IndEMAMid), s.Value(model.IndEMASlow)
	if f > m && m > sl {
		return true, fmt.Sprintf("EMA stack bullish %.2f > %.2f > %.2f", f, m, sl)
	}
	return false, "EMA stack not aligned"
}

func emaSlope(s *model.IndicatorSnapshot, _ Thresholds) (bool, string) {
	fs, ms := s.Value(model.IndEMAFastSlope), s.Value(model.IndEMAMidSlope)
	if fs > 0 && ms > 0 {
		return true, fmt.Sprintf("EMA slopes rising %+.3f%% / %+.3f%%", fs*100, ms*100)
	}
	return false, "EMA slopes flat or falling"
}

func rsiBand(s *model.IndicatorSnapshot, th Thresholds) (bool, string) {
	rsi := s.Value(model.IndRSI)
	if rsi >= th.RSILow && rsi <= th.RSIHigh {
		return true, fmt.Sprintf("RSI %.1f in [%.0f, %.0f]", rsi, th.RSILow, th.RSIHigh)
	}
	return false, fmt.Sprintf("RSI %.1f outside [%.0f, %.0f]", rsi, th.RSILow, th.RSIHigh)
}

func stochCross(s *model.IndicatorSnapshot, _ Thresholds) (bool, string) {
	k, d := s.Value(model.IndStochK), s.Value(model.IndStochD)
	kp, dp := s.Value(model.IndStochKPrev), s.Value(model.IndStochDPrev)
	if k > d && kp <= dp {
		return true, fmt.Sprintf("stochastic %%K %.1f crossed above %%D %.1f", k, d)
	}
	return false, "no stochastic bullish cross"
}

func bbLowerHalf(s *model.IndicatorSnapshot, th Thresholds) (bool, string) {
	pos := s.Value(model.IndBBPosition)
	if pos <= th.BBMaxPosition {
		return true, fmt.Sprintf("Bollinger position %.2f", pos)
	}
	return false, fmt.Sprintf("Bollinger position %.2f too high", pos)
}

func volumeSpike(s *model.IndicatorSnapshot, th Thresholds) (bool, string) {
	ratio := s.Value(model.IndVolumeRatio)
	if ratio > th.VolumeSpike {
		return true, fmt.Sprintf("volume %.1fx average", ratio)
	}
	return false, fmt.Sprintf("volume %.1fx average", ratio)
}

func adxTrend(s *model.IndicatorSnapshot, th Thresholds) (bool, string) {
	adx, ok := s.Get(model.IndADX)
	if !ok {
		return false, "ADX not ready"
	}
	if adx > th.ADXFloor {
		return true, fmt.Sprintf("ADX %.1f trending", adx)
	}
	return false, fmt.Sprintf("ADX %.1f weak trend", adx)
}

func macdBullish(s *model.IndicatorSnapshot, _ Thresholds) (bool, string) {
	if s.Value(model.IndMACD) > s.Value(model.IndMACDSignal) {
		return true, "MACD above signal"
	}
	return false, "MACD below signal"
}

func aboveTrendSMA(s *model.IndicatorSnapshot, _ Thresholds) (bool, string) {
	sma, ok := s.Get(model.IndTrendSMA)
	if !ok {
		return false, "trend SMA not configured"
	}
	if c := s.Value(model.IndClose); c > sma {
		return true, fmt.Sprintf("price above trend SMA %.2f", sma)
	}
	return false, fmt.Sprintf("price below trend SMA %.2f", sma)
}

func belowTrendSMA(s *model.IndicatorSnapshot, _ Thresholds) (bool, string) {
	sma, ok := s.Get(model.IndTrendSMA)
	if ok && s.Value(model.IndClose) < sma {
		return true, fmt.Sprintf("price below long-term trend %.2f", sma)
	}
	return false, ""
}

func belowEMASlow(s *model.IndicatorSnapshot, _ Thresholds) (bool, string) {
	if slow := s.Value(model.IndEMASlow); s.Value(model.IndClose) < slow {
		return true, fmt.Sprintf("price below slow EMA %.2f", slow)
	}
	return false, ""
}
