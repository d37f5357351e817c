package calculator

import (
	"time"

	"TradeSentinel/internal/model"
)

// CalculateVWAP returns the volume-weighted average price anchored at the start of the
// latest bar's session. A session is a calendar day in loc; nil loc means UTC.
func CalculateVWAP(bars []model.OHLCV, loc *time.Location) (float64, error) {
	if err := need(len(bars), 1, "VWAP"); err != nil {
		return 0, err
	}
	if loc == nil {
		loc = time.UTC
	}
	last := bars[len(bars)-1]
	y, m, d := last.Time.In(loc).Date()

	var pv, vol float64
	for i := len(bars) - 1; i >= 0; i-- {
		by, bm, bd := bars[i].Time.In(loc).Date()
		if by != y || bm != m || bd != d {
			break
		}
		typical := (bars[i].High + bars[i].Low + bars[i].Close) / 3
		pv += typical * bars[i].Volume
		vol += bars[i].Volume
	}
	if vol == 0 {
		return last.Close, nil
	}
	return pv / vol, nil
}
