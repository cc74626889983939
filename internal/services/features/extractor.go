// Package features derives statistics from the realized price series for the stats
// panel and the realized volatility gauge.
package features

import (
	"math"
	"time"

	"QuotaGame/internal/domain/models"
)

const year = 365 * 24 * time.Hour

// LogReturns returns ln(v_t / v_t-1) for consecutive samples, or nil when there are
// fewer than two. A non-positive value yields a zero return.
func LogReturns(samples []models.PriceSample) []float64 {
	if len(samples) < 2 {
		return nil
	}
	out := make([]float64, len(samples)-1)
	for i := range out {
		prev, cur := samples[i].Value, samples[i+1].Value
		if prev > 0 && cur > 0 {
			out[i] = math.Log(cur / prev)
		}
	}
	return out
}

// moments is Welford's running mean and variance.
type moments struct {
	n    int
	mean float64
	m2   float64
}

func (m *moments) add(x float64) {
	m.n++
	d := x - m.mean
	m.mean += d / float64(m.n)
	m.m2 += d * (x - m.mean)
}

func (m moments) variance() float64 {
	if m.n < 2 {
		return 0
	}
	return m.m2 / float64(m.n-1)
}

func trailing(rets []float64, window int) moments {
	if window > len(rets) {
		window = len(rets)
	}
	var m moments
	for _, r := range rets[len(rets)-window:] {
		m.add(r)
	}
	return m
}

// RealizedVolatility annualizes the sample deviation of the last window returns.
// Fewer than two returns give zero.
func RealizedVolatility(rets []float64, window int, ticksPerYear float64) float64 {
	return math.Sqrt(trailing(rets, window).variance() * ticksPerYear)
}

// RealizedDrift annualizes the mean log return back to the drift of the price process,
// adding the Ito correction sigma^2/2.
func RealizedDrift(rets []float64, window int, ticksPerYear float64) float64 {
	m := trailing(rets, window)
	if m.n < 2 {
		return 0
	}
	return (m.mean + m.variance()/2) * ticksPerYear
}

// TicksPerYear is how many ticks of period fit in a 365-day year.
func TicksPerYear(period time.Duration) float64 {
	if period <= 0 {
		return 0
	}
	return float64(year) / float64(period)
}

func Stats(samples []models.PriceSample, window int, period time.Duration, configuredVol float64) models.SeriesStats {
	rets := LogReturns(samples)
	tpy := TicksPerYear(period)
	st := models.SeriesStats{
		Samples:            len(samples),
		RealizedVolatility: RealizedVolatility(rets, window, tpy),
		RealizedDrift:      RealizedDrift(rets, window, tpy),
		ConfiguredVol:      configuredVol,
		Window:             window,
	}
	if len(rets) > 0 {
		st.LastReturn = rets[len(rets)-1]
	}
	return st
}
