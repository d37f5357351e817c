package calculator

import (
	"errors"
	"fmt"
	"time"

	"TradeSentinel/internal/model"
)

// ErrUnorderedBars is returned when bar timestamps are not strictly increasing.
var ErrUnorderedBars = errors.New("bars are not strictly time-ordered")

// Periods configures every indicator computed by a Bank.
type Periods struct {
	EMAFast       int     `yaml:"ema_fast"`
	EMAMid        int     `yaml:"ema_mid"`
	EMASlow       int     `yaml:"ema_slow"`
	SlopeLookback int     `yaml:"slope_lookback"`
	RSI           int     `yaml:"rsi"`
	BBPeriod      int     `yaml:"bb_period"`
	BBStdDev      float64 `yaml:"bb_stddev"`
	StochK        int     `yaml:"stoch_k"`
	StochSmooth   int     `yaml:"stoch_smooth"`
	StochD        int     `yaml:"stoch_d"`
	ADX           int     `yaml:"adx"`
	MACDFast      int     `yaml:"macd_fast"`
	MACDSlow      int     `yaml:"macd_slow"`
	MACDSignal    int     `yaml:"macd_signal"`
	ATR           int     `yaml:"atr"`
	VolumeAvg     int     `yaml:"volume_avg"`
	TrendSMA      int     `yaml:"trend_sma"` // 0 disables the long-term trend filter
}

// DefaultPeriods returns the standard parameter set.
func DefaultPeriods() Periods {
	return Periods{
		EMAFast: 9, EMAMid: 21, EMASlow: 55, SlopeLookback: 3,
		RSI:      14,
		BBPeriod: 20, BBStdDev: 2,
		StochK: 14, StochSmooth: 3, StochD: 3,
		ADX:      14,
		MACDFast: 12, MACDSlow: 26, MACDSignal: 9,
		ATR:       14,
		VolumeAvg: 20,
	}
}

// Bank computes an IndicatorSnapshot from a bar window.
type Bank struct {
	Periods  Periods
	Location *time.Location // session anchor for VWAP
}

// NewBank creates a Bank. A nil loc anchors VWAP sessions at UTC midnight.
func NewBank(p Periods, loc *time.Location) *Bank {
	if loc == nil {
		loc = time.UTC
	}
	return &Bank{Periods: p, Location: loc}
}

// MinBars is the shortest window for which every required indicator is defined.
// ADX is excluded: it is reported only once ready.
func (b *Bank) MinBars() int {
	p := b.Periods
	n := 1
	for _, v := range []int{
		p.EMASlow + p.SlopeLookback,
		p.EMAMid + p.SlopeLookback,
		p.RSI + 1,
		p.BBPeriod,
		p.StochK + p.StochSmooth + p.StochD - 1,
		p.MACDSlow + p.MACDSignal - 1,
		p.ATR + 1,
		p.VolumeAvg + 1,
		p.TrendSMA,
	} {
		if v > n {
			n = v
		}
	}
	return n
}

// Compute returns the indicator snapshot at the latest bar. The result depends only on bars.
func (b *Bank) Compute(symbol string, bars []model.OHLCV) (*model.IndicatorSnapshot, error) {
	for i := 1; i < len(bars); i++ {
		if !bars[i].Time.After(bars[i-1].Time) {
			return nil, fmt.Errorf("%s bar %d: %w", symbol, i, ErrUnorderedBars)
		}
	}
	if required := b.MinBars(); len(bars) < required {
		return nil, fmt.Errorf("%s has %d bars, needs %d: %w", symbol, len(bars), required, ErrInsufficientHistory)
	}

	p := b.Periods
	last := bars[len(bars)-1]
	snap := model.NewIndicatorSnapshot(symbol, last.Time)
	snap.Set(model.IndClose, last.Close)
	snap.Set(model.IndVolume, last.Volume)

	closes := extractCloses(bars)
	emaKeys := []struct {
		period     int
		key, slope string
	}{
		{p.EMAFast, model.IndEMAFast, model.IndEMAFastSlope},
		{p.EMAMid, model.IndEMAMid, model.IndEMAMidSlope},
		{p.EMASlow, model.IndEMASlow, ""},
	}
	for _, e := range emaKeys {
		series, err := EMASeries(closes, e.period)
		if err != nil {
			return nil, err
		}
		snap.Set(e.key, series[len(series)-1])
		if e.slope != "" {
			s, err := Slope(series, p.SlopeLookback)
			if err != nil {
				return nil, err
			}
			snap.Set(e.slope, s)
		}
	}

	rsi, err := CalculateRSI(bars, p.RSI)
	if err != nil {
		return nil, err
	}
	snap.Set(model.IndRSI, rsi)

	vwap, err := CalculateVWAP(bars, b.Location)
	if err != nil {
		return nil, err
	}
	snap.Set(model.IndVWAP, vwap)

	bands, err := CalculateBollinger(bars, p.BBPeriod, p.BBStdDev)
	if err != nil {
		return nil, err
	}
	pos, err := RangePosition(last.Close, bands.Upper, bands.Lower)
	if err != nil {
		return nil, err
	}
	snap.Set(model.IndBBUpper, bands.Upper)
	snap.Set(model.IndBBMiddle, bands.Middle)
	snap.Set(model.IndBBLower, bands.Lower)
	snap.Set(model.IndBBPosition, pos)

	stoch, err := CalculateStochastic(bars, p.StochK, p.StochSmooth, p.StochD)
	if err != nil {
		return nil, err
	}
	snap.Set(model.IndStochK, stoch.K)
	snap.Set(model.IndStochD, stoch.D)
	snap.Set(model.IndStochKPrev, stoch.KPrev)
	snap.Set(model.IndStochDPrev, stoch.DPrev)

	if ADXReady(len(bars), p.ADX) {
		di, err := CalculateADX(bars, p.ADX)
		if err != nil {
			return nil, err
		}
		snap.Set(model.IndADX, di.ADX)
		snap.Set(model.IndPlusDI, di.PlusDI)
		snap.Set(model.IndMinusDI, di.MinusDI)
	}

	macd, err := CalculateMACD(bars, p.MACDFast, p.MACDSlow, p.MACDSignal)
	if err != nil {
		return nil, err
	}
	snap.Set(model.IndMACD, macd.Line)
	snap.Set(model.IndMACDSignal, macd.Signal)
	snap.Set(model.IndMACDHist, macd.Histogram)

	atr, err := CalculateATR(bars, p.ATR)
	if err != nil {
		return nil, err
	}
	snap.Set(model.IndATR, atr)
	if last.Close > 0 {
		snap.Set(model.IndATRPct, atr/last.Close)
	}

	volAvg, err := CalculateVolumeAverage(bars, p.VolumeAvg)
	if err != nil {
		return nil, err
	}
	snap.Set(model.IndVolumeAvg, volAvg)
	if volAvg > 0 {
		snap.Set(model.IndVolumeRatio, last.Volume/volAvg)
	}

	if p.TrendSMA > 0 {
		sma, err := CalculateSMA(closes, p.TrendSMA)
		if err != nil {
			return nil, err
		}
		snap.Set(model.IndTrendSMA, sma)
	}

	return snap, nil
}
