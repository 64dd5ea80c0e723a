// Package volatility derives band thresholds from a historical price series.
// Everything here is a pure function of its inputs.
package volatility

import (
	"errors"
	"fmt"
	"math"
)

// DefaultK is the number of standard deviations between the mean and each band.
const DefaultK = 2.0

var (
	// ErrEmptySeries is returned when a statistic is requested over zero prices.
	ErrEmptySeries = errors.New("volatility: empty price series")
	// ErrNonFinitePrice is returned when the series holds NaN or ±Inf.
	ErrNonFinitePrice = errors.New("volatility: non-finite price in series")
	// ErrNegativeK is returned for a band multiplier below zero.
	ErrNegativeK = errors.New("volatility: k must not be negative")
)

// Stats is the mean and population standard deviation of a series.
type Stats struct {
	Mean       float64 `json:"mean"`
	Dispersion float64 `json:"dispersion"`
}

// Thresholds is the buy (Low) / sell (High) band around the mean.
type Thresholds struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// Contains reports whether price lies inside the closed band.
func (t Thresholds) Contains(price float64) bool {
	return price >= t.Low && price <= t.High
}

func (t Thresholds) String() string {
	return fmt.Sprintf("[%.4f, %.4f]", t.Low, t.High)
}

// ComputeStats returns the arithmetic mean and the population standard
// deviation (sqrt of the mean squared deviation) of series.
func ComputeStats(series []float64) (Stats, error) {
	mean, err := average(series)
	if err != nil {
		return Stats{}, err
	}
	return Stats{Mean: mean, Dispersion: deviation(series, mean)}, nil
}

// ComputeThresholds builds the band mean ± k*dispersion. The mean is taken
// from series through the same averaging routine ComputeStats uses, so both
// agree bit for bit.
func ComputeThresholds(series []float64, stats Stats, k float64) (Thresholds, error) {
	if k < 0 {
		return Thresholds{}, fmt.Errorf("%w: %v", ErrNegativeK, k)
	}
	mean, err := average(series)
	if err != nil {
		return Thresholds{}, err
	}
	width := 0.0
	if k > 0 {
		width = k * stats.Dispersion
	}
	return Thresholds{Low: mean - width, High: mean + width}, nil
}

// Derive is ComputeStats followed by ComputeThresholds.
func Derive(series []float64, k float64) (Stats, Thresholds, error) {
	stats, err := ComputeStats(series)
	if err != nil {
		return Stats{}, Thresholds{}, err
	}
	th, err := ComputeThresholds(series, stats, k)
	if err != nil {
		return Stats{}, Thresholds{}, err
	}
	return stats, th, nil
}

func average(series []float64) (float64, error) {
	if len(series) == 0 {
		return 0, ErrEmptySeries
	}
	sum := 0.0
	for _, p := range series {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return 0, ErrNonFinitePrice
		}
		sum += p
	}
	n := float64(len(series))
	if !math.IsInf(sum, 0) {
		return sum / n, nil
	}

	// The running sum overflowed; pre-divided terms stay finite.
	mean := 0.0
	for _, p := range series {
		mean += p / n
	}
	return mean, nil
}

// deviation is the population standard deviation of series around mean.
func deviation(series []float64, mean float64) float64 {
	n := float64(len(series))
	variance := 0.0
	for _, p := range series {
		diff := p - mean
		variance += diff * diff
	}
	if !math.IsInf(variance, 0) {
		return math.Sqrt(variance / n)
	}

	// Squared deviations overflowed. Rescale by the largest half-deviation so
	// every term is at most 1.
	scale := 0.0
	for _, p := range series {
		scale = math.Max(scale, math.Abs(p/2-mean/2))
	}
	sum := 0.0
	for _, p := range series {
		r := (p/2 - mean/2) / scale
		sum += r * r
	}
	return 2 * scale * math.Sqrt(sum/n)
}
