package calculator

import (
	"errors"

	"TradeSentinel/internal/model"
)

// MACD holds the MACD line, its signal line and the histogram at the latest bar.
type MACD struct {
	Line      float64
	Signal    float64
	Histogram float64
}

// CalculateMACD computes MACD(fast, slow, signal) on closing prices.
func CalculateMACD(bars []model.OHLCV, fast, slow, signal int) (MACD, error) {
	if fast <= 0 || slow <= 0 || signal <= 0 {
		return MACD{}, errPeriod
	}
	if fast >= slow {
		return MACD{}, errors.New("MACD fast period must be shorter than slow period")
	}
	if err := need(len(bars), slow+signal-1, "MACD"); err != nil {
		return MACD{}, err
	}
	closes := extractCloses(bars)
	fastEMA, err := EMASeries(closes, fast)
	if err != nil {
		return MACD{}, err
	}
	slowEMA, err := EMASeries(closes, slow)
	if err != nil {
		return MACD{}, err
	}
	offset := slow - fast
	line := make([]float64, len(slowEMA))
	for i := range slowEMA {
		line[i] = fastEMA[i+offset] - slowEMA[i]
	}
	sig, err := EMASeries(line, signal)
	if err != nil {
		return MACD{}, err
	}
	l := line[len(line)-1]
	s := sig[len(sig)-1]
	return MACD{Line: l, Signal: s, Histogram: l - s}, nil
}
