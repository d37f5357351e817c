package calculator

import "TradeSentinel/internal/model"

// CalculateATR computes Wilder's average true range.
func CalculateATR(bars []model.OHLCV, period int) (float64, error) {
	if period <= 0 {
		return 0, errPeriod
	}
	if err := need(len(bars), period+1, "ATR"); err != nil {
		return 0, err
	}
	atr := 0.0
	for i := 1; i <= period; i++ {
		atr += trueRange(bars[i], bars[i-1].Close)
	}
	atr /= float64(period)
	for i := period + 1; i < len(bars); i++ {
		atr = (atr*float64(period-1) + trueRange(bars[i], bars[i-1].Close)) / float64(period)
	}
	return atr, nil
}
