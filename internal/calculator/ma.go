package calculator

import (
	"errors"
	"fmt"

	"TradeSentinel/internal/model"
)

// ErrInsufficientHistory is returned when fewer bars are available than an indicator needs.
var ErrInsufficientHistory = errors.New("insufficient history")

var errPeriod = errors.New("period must be positive")

func need(n, required int, name string) error {
	if n < required {
		return fmt.Errorf("%s needs %d values, got %d: %w", name, required, n, ErrInsufficientHistory)
	}
	return nil
}

// CalculateSMA computes the simple moving average of the given values over the specified period.
func CalculateSMA(values []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, errPeriod
	}
	if err := need(len(values), period, "SMA"); err != nil {
		return 0, err
	}
	sum := 0.0
	for i := len(values) - period; i < len(values); i++ {
		sum += values[i]
	}
	return sum / float64(period), nil
}

// SMASeries returns the rolling simple average. Element i covers values[i : i+period].
func SMASeries(values []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, errPeriod
	}
	if err := need(len(values), period, "SMA"); err != nil {
		return nil, err
	}
	out := make([]float64, 0, len(values)-period+1)
	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			out = append(out, sum/float64(period))
		}
	}
	return out, nil
}

// CalculateVolumeAverage returns the average volume of the period bars preceding the latest bar.
func CalculateVolumeAverage(bars []model.OHLCV, period int) (float64, error) {
	if period <= 0 {
		return 0, errPeriod
	}
	if err := need(len(bars), period+1, "volume average"); err != nil {
		return 0, err
	}
	vols := extractVolumes(bars[:len(bars)-1])
	return CalculateSMA(vols, period)
}

func extractCloses(bars []model.OHLCV) []float64 {
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	return closes
}

func extractVolumes(bars []model.OHLCV) []float64 {
	vols := make([]float64, len(bars))
	for i, b := range bars {
		vols[i] = b.Volume
	}
	return vols
}
