package leverage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TradeSentinel/internal/model"
)

func newDecider(t *testing.T) *Decider {
	t.Helper()
	d, err := NewDecider(Config{
		Enabled:           true,
		MinConfidence:     0.80,
		MinScore:          9,
		MinRiskReward:     2.5,
		MaxDailyLeveraged: 3,
		Bands:             DefaultBands(),
	})
	require.NoError(t, err)
	return d
}

func input(conf float64, score int) Input {
	return Input{
		Signal:        &model.Signal{Symbol: "ETH/USD", Score: score, MaxScore: 12, Confidence: conf},
		Verdict:       model.MarketVerdict{CanTrade: true, CanLeverage: true, MaxLeverageAllowed: 2},
		StopPct:       0.02,
		TakeProfitPct: 0.06,
	}
}

func TestDecide_GrantsMatchingBand(t *testing.T) {
	g := newDecider(t).Decide(input(0.92, 11))
	assert.Equal(t, 1.5, g.Multiplier)
	assert.InDelta(t, 0.02*0.65, g.AdjustedStopPct, 1e-12)
	assert.Equal(t, 0.06, g.AdjustedTakeProfitPct)
	assert.True(t, g.ExpiresWithPosition)
}

func TestDecide_Bands(t *testing.T) {
	d := newDecider(t)
	cases := []struct {
		conf  float64
		score int
		want  float64
	}{
		{0.97, 12, 2.0},
		{0.95, 10, 1.5},
		{0.88, 9, 1.25},
		{0.84, 12, 1.0},
		{0.79, 12, 1.0},
		{0.90, 8, 1.0},
	}
	for _, tc := range cases {
		g := d.Decide(input(tc.conf, tc.score))
		assert.Equal(t, tc.want, g.Multiplier, "conf=%.2f score=%d", tc.conf, tc.score)
		assert.GreaterOrEqual(t, g.Multiplier, 1.0)
		assert.LessOrEqual(t, g.Multiplier, 2.0)
	}
}

func TestDecide_OnlyOneLeveragedPosition(t *testing.T) {
	in := input(0.92, 11)
	in.ActiveLeveraged = 1
	g := newDecider(t).Decide(in)
	assert.Equal(t, 1.0, g.Multiplier)
	assert.Equal(t, in.StopPct, g.AdjustedStopPct)
}

func TestDecide_RequirementsDeny(t *testing.T) {
	d := newDecider(t)

	noMarket := input(0.96, 12)
	noMarket.Verdict.CanLeverage = false
	assert.Equal(t, 1.0, d.Decide(noMarket).Multiplier)

	poorRR := input(0.96, 12)
	poorRR.TakeProfitPct = 0.04
	assert.Equal(t, 1.0, d.Decide(poorRR).Multiplier)

	capped := input(0.96, 12)
	capped.LeveragedToday = 3
	assert.Equal(t, 1.0, d.Decide(capped).Multiplier)
}

func TestDecide_MarketCeiling(t *testing.T) {
	in := input(0.97, 12)
	in.Verdict.MaxLeverageAllowed = 1.5
	assert.Equal(t, 1.5, newDecider(t).Decide(in).Multiplier)
}

func TestDecide_Disabled(t *testing.T) {
	d, err := NewDecider(Config{Bands: DefaultBands()})
	require.NoError(t, err)
	assert.Equal(t, 1.0, d.Decide(input(0.99, 12)).Multiplier)
}
