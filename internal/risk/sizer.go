package risk

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrPositionTooSmall is returned when the sized quantity rounds to zero.
	ErrPositionTooSmall = errors.New("position too small")
	// ErrPositionLimitReached is returned when no further position may be opened.
	ErrPositionLimitReached = errors.New("position limit reached")
	// ErrInvalidStop is returned when the stop is not below the entry.
	ErrInvalidStop = errors.New("stop must be below entry")
)

const epsilon = 1e-9

// Config holds the per-variant sizing limits. Percentages are fractions of equity.
type Config struct {
	RiskPerTrade      float64 `yaml:"risk_per_trade"`
	MaxPositionPct    float64 `yaml:"max_position_pct"`
	MaxExposurePct    float64 `yaml:"max_exposure_pct"`
	MaxPositions      int     `yaml:"max_positions"`
	LotSize           float64 `yaml:"lot_size"` // 1 for shares, smaller for crypto
	VolatilityScaling bool    `yaml:"volatility_scaling"`
}

// Portfolio is the state of active positions at sizing time.
type Portfolio struct {
	Equity        float64
	OpenPositions int
	Exposure      float64 // notional of active positions
}

// Request describes the trade to size.
type Request struct {
	Entry    float64
	Stop     float64
	Leverage float64 // raises the per-position notional cap; 0 or 1 means none
	ATRPct   float64 // used when volatility scaling is enabled
}

// Sizer computes position quantities.
type Sizer struct {
	cfg Config
}

// NewSizer creates a Sizer.
func NewSizer(cfg Config) *Sizer {
	if cfg.LotSize <= 0 {
		cfg.LotSize = 1
	}
	return &Sizer{cfg: cfg}
}

// RiskFraction returns the risk-per-trade fraction after volatility scaling.
func (s *Sizer) RiskFraction(atrPct float64) float64 {
	r := s.cfg.RiskPerTrade
	if !s.cfg.VolatilityScaling {
		return r
	}
	switch {
	case atrPct > 0.02:
		return r * 0.5
	case atrPct > 0.015:
		return r * 0.75
	}
	return r
}

// Size returns the largest lot-aligned quantity within the risk, position and exposure caps.
// The position cap is MaxPositionPct*Equity*Leverage: a leveraged entry may exceed
// MaxPositionPct*Equity by its multiplier. Risk per trade and the exposure cap do not scale.
func (s *Sizer) Size(req Request, pf Portfolio) (float64, error) {
	if s.cfg.MaxPositions > 0 && pf.OpenPositions >= s.cfg.MaxPositions {
		return 0, fmt.Errorf("%d of %d positions open: %w", pf.OpenPositions, s.cfg.MaxPositions, ErrPositionLimitReached)
	}
	if req.Entry <= 0 || req.Stop >= req.Entry {
		return 0, fmt.Errorf("entry %.4f, stop %.4f: %w", req.Entry, req.Stop, ErrInvalidStop)
	}
	if pf.Equity <= 0 {
		return 0, fmt.Errorf("equity %.2f: %w", pf.Equity, ErrPositionTooSmall)
	}

	remaining := s.cfg.MaxExposurePct*pf.Equity - pf.Exposure
	if remaining <= 0 {
		return 0, fmt.Errorf("exposure %.2f at cap: %w", pf.Exposure, ErrPositionLimitReached)
	}

	lev := req.Leverage
	if lev < 1 {
		lev = 1
	}
	riskAmount := s.RiskFraction(req.ATRPct) * pf.Equity
	qty := riskAmount / (req.Entry - req.Stop)
	qty = math.Min(qty, s.cfg.MaxPositionPct*pf.Equity*lev/req.Entry)
	qty = math.Min(qty, remaining/req.Entry)

	qty = math.Floor(qty/s.cfg.LotSize+epsilon) * s.cfg.LotSize
	if qty < s.cfg.LotSize-epsilon {
		return 0, fmt.Errorf("risk %.2f over %.4f per unit: %w", riskAmount, req.Entry-req.Stop, ErrPositionTooSmall)
	}
	return qty, nil
}
