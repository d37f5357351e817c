package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func swingSizer() *Sizer {
	return NewSizer(Config{RiskPerTrade: 0.005, MaxPositionPct: 0.10, MaxExposurePct: 0.5, MaxPositions: 3, LotSize: 1})
}

func TestSize_RiskCapBinds(t *testing.T) {
	qty, err := swingSizer().Size(Request{Entry: 450, Stop: 420}, Portfolio{Equity: 100000})
	require.NoError(t, err)
	assert.Equal(t, 16.0, qty)
}

func TestSize_PositionCapBinds(t *testing.T) {
	qty, err := swingSizer().Size(Request{Entry: 100, Stop: 99.9}, Portfolio{Equity: 100000})
	require.NoError(t, err)
	assert.Equal(t, 100.0, qty)
}

func TestSize_ExposureCapBinds(t *testing.T) {
	qty, err := swingSizer().Size(Request{Entry: 100, Stop: 99.9}, Portfolio{Equity: 100000, OpenPositions: 2, Exposure: 47000})
	require.NoError(t, err)
	assert.Equal(t, 30.0, qty)
}

func TestSize_LimitCheckedFirst(t *testing.T) {
	_, err := swingSizer().Size(Request{Entry: 0, Stop: 10}, Portfolio{Equity: 100000, OpenPositions: 3})
	assert.ErrorIs(t, err, ErrPositionLimitReached)

	_, err = swingSizer().Size(Request{Entry: 100, Stop: 90}, Portfolio{Equity: 100000, OpenPositions: 1, Exposure: 50000})
	assert.ErrorIs(t, err, ErrPositionLimitReached)
}

func TestSize_TooSmall(t *testing.T) {
	_, err := swingSizer().Size(Request{Entry: 450, Stop: 420}, Portfolio{Equity: 1000})
	assert.ErrorIs(t, err, ErrPositionTooSmall)
}

func TestSize_InvalidStop(t *testing.T) {
	_, err := swingSizer().Size(Request{Entry: 100, Stop: 100}, Portfolio{Equity: 100000})
	assert.ErrorIs(t, err, ErrInvalidStop)
}

func TestSize_FractionalLots(t *testing.T) {
	s := NewSizer(Config{RiskPerTrade: 0.01, MaxPositionPct: 0.2, MaxExposurePct: 0.6, MaxPositions: 3, LotSize: 0.0001})
	qty, err := s.Size(Request{Entry: 60000, Stop: 58800}, Portfolio{Equity: 10000})
	require.NoError(t, err)
	assert.InDelta(t, 0.0333, qty, 1e-9)
}

func TestSize_LeverageRaisesPositionCap(t *testing.T) {
	s := NewSizer(Config{RiskPerTrade: 0.01, MaxPositionPct: 0.1, MaxExposurePct: 1, MaxPositions: 3, LotSize: 1})
	base, err := s.Size(Request{Entry: 100, Stop: 99}, Portfolio{Equity: 100000})
	require.NoError(t, err)
	lev, err := s.Size(Request{Entry: 100, Stop: 99, Leverage: 1.5}, Portfolio{Equity: 100000})
	require.NoError(t, err)
	assert.Equal(t, 100.0, base)
	// Leverage lifts notional above MaxPositionPct*Equity (15000 > 10000) by exactly the multiplier.
	assert.Equal(t, 150.0, lev)
	assert.LessOrEqual(t, lev*100, 0.1*100000*1.5)

	// The exposure cap still binds a leveraged entry.
	capped, err := s.Size(Request{Entry: 100, Stop: 99, Leverage: 2}, Portfolio{Equity: 100000, Exposure: 88000})
	require.NoError(t, err)
	assert.Equal(t, 120.0, capped)
}

func TestSize_VolatilityScaling(t *testing.T) {
	s := NewSizer(Config{RiskPerTrade: 0.01, VolatilityScaling: true})
	assert.Equal(t, 0.01, s.RiskFraction(0.01))
	assert.InDelta(t, 0.0075, s.RiskFraction(0.018), 1e-12)
	assert.InDelta(t, 0.005, s.RiskFraction(0.03), 1e-12)
}

func TestSize_NeverExceedsCaps(t *testing.T) {
	s := swingSizer()
	for _, equity := range []float64{5000, 25000, 100000, 1e6} {
		for _, entry := range []float64{3.5, 20, 150, 450, 2300} {
			for _, stopPct := range []float64{0.003, 0.01, 0.05, 0.2} {
				stop := entry * (1 - stopPct)
				qty, err := s.Size(Request{Entry: entry, Stop: stop}, Portfolio{Equity: equity})
				if err != nil {
					assert.ErrorIs(t, err, ErrPositionTooSmall)
					continue
				}
				assert.LessOrEqual(t, qty*entry, 0.10*equity+1e-6)
				assert.LessOrEqual(t, qty*(entry-stop), 0.005*equity+1e-6)
			}
		}
	}
}
