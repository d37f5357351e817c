package calculator

import "TradeSentinel/internal/model"

// Stochastic holds %K and %D at the latest bar and the bar before it.
type Stochastic struct {
	K     float64
	D     float64
	KPrev float64
	DPrev float64
}

// CalculateStochastic computes the slow stochastic: raw %K over period highs/lows,
// smoothed by smoothK, with %D the dPeriod average of %K. smoothK of 1 yields the fast oscillator.
func CalculateStochastic(bars []model.OHLCV, period, smoothK, dPeriod int) (Stochastic, error) {
	if period <= 0 || smoothK <= 0 || dPeriod <= 0 {
		return Stochastic{}, errPeriod
	}
	if err := need(len(bars), period+smoothK+dPeriod-1, "stochastic"); err != nil {
		return Stochastic{}, err
	}

	raw := make([]float64, 0, len(bars)-period+1)
	for i := period - 1; i < len(bars); i++ {
		high, low, err := HighLow(bars, i, period)
		if err != nil {
			return Stochastic{}, err
		}
		k := 50.0
		if high > low {
			k = 100 * (bars[i].Close - low) / (high - low)
		}
		raw = append(raw, k)
	}

	kSeries, err := SMASeries(raw, smoothK)
	if err != nil {
		return Stochastic{}, err
	}
	dSeries, err := SMASeries(kSeries, dPeriod)
	if err != nil {
		return Stochastic{}, err
	}
	if err := need(len(dSeries), 2, "stochastic %D"); err != nil {
		return Stochastic{}, err
	}
	return Stochastic{
		K:     kSeries[len(kSeries)-1],
		D:     dSeries[len(dSeries)-1],
		KPrev: kSeries[len(kSeries)-2],
		DPrev: dSeries[len(dSeries)-2],
	}, nil
}
