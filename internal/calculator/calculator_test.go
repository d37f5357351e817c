package calculator

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TradeSentinel/internal/model"
)

var t0 = time.Date(2024, 3, 4, 14, 30, 0, 0, time.UTC)

func makeBars(n int, step time.Duration, closeAt func(i int) float64) []model.OHLCV {
	bars := make([]model.OHLCV, n)
	for i := 0; i < n; i++ {
		c := closeAt(i)
		bars[i] = model.OHLCV{
			Time:   t0.Add(time.Duration(i) * step),
			Open:   c * 0.999,
			High:   c * 1.003,
			Low:    c * 0.997,
			Close:  c,
			Volume: 1000 + float64(i%7)*100,
		}
	}
	return bars
}

func rising(i int) float64      { return 100 + float64(i)*0.5 }
func oscillating(i int) float64 { return 100 + 5*math.Sin(float64(i)/3) }

func TestCalculateRSI_NoLossesReturns100(t *testing.T) {
	rsi, err := CalculateRSI(makeBars(30, time.Minute, rising), 14)
	require.NoError(t, err)
	assert.Equal(t, 100.0, rsi)
}

func TestCalculateRSI_Bounds(t *testing.T) {
	rsi, err := CalculateRSI(makeBars(120, time.Minute, oscillating), 14)
	require.NoError(t, err)
	assert.True(t, rsi >= 0 && rsi <= 100, "rsi=%f", rsi)
}

func TestCalculateRSI_InsufficientHistory(t *testing.T) {
	_, err := CalculateRSI(makeBars(14, time.Minute, rising), 14)
	assert.ErrorIs(t, err, ErrInsufficientHistory)
}

func TestEMASeries_ConstantInput(t *testing.T) {
	vals := []float64{5, 5, 5, 5, 5, 5, 5, 5}
	series, err := EMASeries(vals, 3)
	require.NoError(t, err)
	require.Len(t, series, 6)
	for _, v := range series {
		assert.InDelta(t, 5.0, v, 1e-12)
	}
}

func TestCalculateADX_NotReady(t *testing.T) {
	bars := makeBars(27, time.Minute, rising)
	assert.False(t, ADXReady(len(bars), 14))
	_, err := CalculateADX(bars, 14)
	assert.ErrorIs(t, err, ErrInsufficientHistory)
}

func TestCalculateADX_TrendingUp(t *testing.T) {
	bars := makeBars(60, time.Minute, rising)
	require.True(t, ADXReady(len(bars), 14))
	di, err := CalculateADX(bars, 14)
	require.NoError(t, err)
	assert.True(t, di.ADX >= 0 && di.ADX <= 100, "adx=%f", di.ADX)
	assert.Greater(t, di.PlusDI, di.MinusDI)
	assert.Greater(t, di.ADX, 25.0)
}

func TestCalculateADX_Bounds(t *testing.T) {
	di, err := CalculateADX(makeBars(200, time.Minute, oscillating), 14)
	require.NoError(t, err)
	assert.True(t, di.ADX >= 0 && di.ADX <= 100, "adx=%f", di.ADX)
}

func TestCalculateStochastic_Bounds(t *testing.T) {
	st, err := CalculateStochastic(makeBars(100, time.Minute, oscillating), 14, 3, 3)
	require.NoError(t, err)
	for _, v := range []float64{st.K, st.D, st.KPrev, st.DPrev} {
		assert.True(t, v >= 0 && v <= 100, "value=%f", v)
	}
}

func TestCalculateBollinger_FlatSeries(t *testing.T) {
	bands, err := CalculateBollinger(makeBars(25, time.Minute, func(int) float64 { return 50 }), 20, 2)
	require.NoError(t, err)
	assert.InDelta(t, 50.0, bands.Upper, 1e-9)
	assert.InDelta(t, 50.0, bands.Middle, 1e-9)
	assert.InDelta(t, 50.0, bands.Lower, 1e-9)
}

func TestCalculateVWAP_AnchorsAtSessionStart(t *testing.T) {
	yesterday := time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC)
	today := time.Date(2024, 3, 5, 14, 30, 0, 0, time.UTC)
	bars := []model.OHLCV{
		{Time: yesterday, High: 500, Low: 500, Close: 500, Volume: 1e6},
		{Time: today, High: 12, Low: 8, Close: 10, Volume: 100},
		{Time: today.Add(time.Minute), High: 22, Low: 18, Close: 20, Volume: 300},
	}
	vwap, err := CalculateVWAP(bars, time.UTC)
	require.NoError(t, err)
	assert.InDelta(t, (10*100+20*300)/400.0, vwap, 1e-9)
}

func TestCalculateMACD_RisingSeriesPositive(t *testing.T) {
	m, err := CalculateMACD(makeBars(60, time.Minute, rising), 12, 26, 9)
	require.NoError(t, err)
	assert.Greater(t, m.Line, 0.0)
	assert.InDelta(t, m.Line-m.Signal, m.Histogram, 1e-12)
}

func TestCalculateATR_Positive(t *testing.T) {
	atr, err := CalculateATR(makeBars(40, time.Minute, oscillating), 14)
	require.NoError(t, err)
	assert.Greater(t, atr, 0.0)
}

func TestBank_InsufficientHistory(t *testing.T) {
	bank := NewBank(DefaultPeriods(), time.UTC)
	_, err := bank.Compute("SPY", makeBars(bank.MinBars()-1, time.Minute, rising))
	assert.ErrorIs(t, err, ErrInsufficientHistory)
}

func TestBank_RejectsUnorderedBars(t *testing.T) {
	bank := NewBank(DefaultPeriods(), time.UTC)
	bars := makeBars(bank.MinBars()+5, time.Minute, rising)
	bars[10].Time = bars[9].Time
	_, err := bank.Compute("SPY", bars)
	assert.ErrorIs(t, err, ErrUnorderedBars)
}

func TestBank_Deterministic(t *testing.T) {
	bank := NewBank(DefaultPeriods(), time.UTC)
	bars := makeBars(150, time.Minute, oscillating)
	a, err := bank.Compute("SPY", bars)
	require.NoError(t, err)
	b, err := bank.Compute("SPY", bars)
	require.NoError(t, err)
	assert.Equal(t, a.Values, b.Values)

	for _, key := range []string{model.IndEMAFast, model.IndRSI, model.IndVWAP, model.IndADX, model.IndMACD, model.IndStochK} {
		_, ok := a.Get(key)
		assert.True(t, ok, "missing %s", key)
	}
}

func TestBank_ADXOmittedUntilReady(t *testing.T) {
	p := DefaultPeriods()
	p.ADX = 40
	bank := NewBank(p, time.UTC)
	snap, err := bank.Compute("SPY", makeBars(bank.MinBars(), time.Minute, rising))
	require.NoError(t, err)
	_, ok := snap.Get(model.IndADX)
	assert.False(t, ok)
}
