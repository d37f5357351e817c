package calculator

import (
	"errors"
	"math"

	"TradeSentinel/internal/model"
)

// HighLow scans the last period bars ending at index end (inclusive) and returns the high and low.
func HighLow(bars []model.OHLCV, end, period int) (high, low float64, err error) {
	if period <= 0 {
		return 0, 0, errPeriod
	}
	if end < 0 || end >= len(bars) {
		return 0, 0, errors.New("range end out of bounds")
	}
	if err := need(end+1, period, "high/low range"); err != nil {
		return 0, 0, err
	}
	high = math.Inf(-1)
	low = math.Inf(1)
	for i := end - period + 1; i <= end; i++ {
		if bars[i].High > high {
			high = bars[i].High
		}
		if bars[i].Low < low {
			low = bars[i].Low
		}
	}
	return high, low, nil
}

// RangePosition returns where current sits within [low, high], clamped to 0.0~1.0.
func RangePosition(current, high, low float64) (float64, error) {
	if high == low {
		return 0.5, nil
	}
	if high < low {
		return 0, errors.New("high must be >= low")
	}
	pos := (current - low) / (high - low)
	if pos < 0 {
		pos = 0
	}
	if pos > 1 {
		pos = 1
	}
	return pos, nil
}
