package calculator

import (
	"math"

	"TradeSentinel/internal/model"
)

// DirectionalIndex holds the Wilder ADX and directional indicators at the latest bar.
type DirectionalIndex struct {
	ADX     float64
	PlusDI  float64
	MinusDI float64
}

// ADXReady reports whether n bars are enough for a defined ADX of the given period.
func ADXReady(n, period int) bool {
	return period > 0 && n >= 2*period
}

// CalculateADX computes Wilder's ADX. It needs 2*period bars; with fewer it returns
// ErrInsufficientHistory and the caller must treat the indicator as not ready.
func CalculateADX(bars []model.OHLCV, period int) (DirectionalIndex, error) {
	if period <= 0 {
		return DirectionalIndex{}, errPeriod
	}
	if err := need(len(bars), 2*period, "ADX"); err != nil {
		return DirectionalIndex{}, err
	}

	n := len(bars)
	tr := make([]float64, n)
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	for i := 1; i < n; i++ {
		tr[i] = trueRange(bars[i], bars[i-1].Close)
		up := bars[i].High - bars[i-1].High
		down := bars[i-1].Low - bars[i].Low
		if up > down && up > 0 {
			plusDM[i] = up
		}
		if down > up && down > 0 {
			minusDM[i] = down
		}
	}

	var smTR, smPlus, smMinus float64
	for i := 1; i <= period; i++ {
		smTR += tr[i]
		smPlus += plusDM[i]
		smMinus += minusDM[i]
	}

	p := float64(period)
	dx := make([]float64, 0, n-period)
	var pdi, mdi float64
	for i := period; i < n; i++ {
		if i > period {
			smTR = smTR - smTR/p + tr[i]
			smPlus = smPlus - smPlus/p + plusDM[i]
			smMinus = smMinus - smMinus/p + minusDM[i]
		}
		pdi, mdi = 0, 0
		if smTR > 0 {
			pdi = 100 * smPlus / smTR
			mdi = 100 * smMinus / smTR
		}
		v := 0.0
		if pdi+mdi > 0 {
			v = 100 * math.Abs(pdi-mdi) / (pdi + mdi)
		}
		dx = append(dx, v)
	}

	adx := 0.0
	for i := 0; i < period; i++ {
		adx += dx[i]
	}
	adx /= p
	for i := period; i < len(dx); i++ {
		adx = (adx*(p-1) + dx[i]) / p
	}
	return DirectionalIndex{ADX: adx, PlusDI: pdi, MinusDI: mdi}, nil
}

func trueRange(bar model.OHLCV, prevClose float64) float64 {
	return math.Max(bar.High-bar.Low, math.Max(math.Abs(bar.High-prevClose), math.Abs(bar.Low-prevClose)))
}
