package calculator

import (
	"math"

	"TradeSentinel/internal/model"
)

// Bands holds Bollinger band levels at the latest bar.
type Bands struct {
	Upper  float64
	Middle float64
	Lower  float64
}

// CalculateBollinger computes the SMA middle band and bands at k population standard deviations.
func CalculateBollinger(bars []model.OHLCV, period int, k float64) (Bands, error) {
	closes := extractCloses(bars)
	mid, err := CalculateSMA(closes, period)
	if err != nil {
		return Bands{}, err
	}
	var variance float64
	for _, c := range closes[len(closes)-period:] {
		variance += (c - mid) * (c - mid)
	}
	sd := math.Sqrt(variance / float64(period))
	return Bands{Upper: mid + k*sd, Middle: mid, Lower: mid - k*sd}, nil
}
