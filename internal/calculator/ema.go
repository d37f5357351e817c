package calculator

import "TradeSentinel/internal/model"

// EMASeries returns the exponential moving average seeded with the SMA of the first period values.
// Element i corresponds to values[i+period-1].
func EMASeries(values []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, errPeriod
	}
	if err := need(len(values), period, "EMA"); err != nil {
		return nil, err
	}
	k := 2.0 / float64(period+1)
	out := make([]float64, 0, len(values)-period+1)

	seed := 0.0
	for i := 0; i < period; i++ {
		seed += values[i]
	}
	ema := seed / float64(period)
	out = append(out, ema)
	for i := period; i < len(values); i++ {
		ema = values[i]*k + ema*(1-k)
		out = append(out, ema)
	}
	return out, nil
}

// CalculateEMA returns the EMA of closing prices at the latest bar.
func CalculateEMA(bars []model.OHLCV, period int) (float64, error) {
	series, err := EMASeries(extractCloses(bars), period)
	if err != nil {
		return 0, err
	}
	return series[len(series)-1], nil
}

// Slope returns the relative change of series over the last lookback steps.
func Slope(series []float64, lookback int) (float64, error) {
	if lookback <= 0 {
		return 0, errPeriod
	}
	if err := need(len(series), lookback+1, "slope"); err != nil {
		return 0, err
	}
	prev := series[len(series)-1-lookback]
	if prev == 0 {
		return 0, nil
	}
	return (series[len(series)-1] - prev) / prev, nil
}
