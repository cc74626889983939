// Package gbm generates the realized price path as a geometric Brownian motion
// sampled once per tick.
package gbm

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"QuotaGame/internal/domain/models"
	domsvc "QuotaGame/internal/domain/service"
)

// Params of the log-normal process. Drift and Volatility are annualized when DT is in years.
type Params struct {
	Drift      float64
	Volatility float64
	DT         float64
}

// LogReturnMoments returns mean and standard deviation of one log-return.
func (p Params) LogReturnMoments() (mean, std float64) {
	mean = (p.Drift - 0.5*p.Volatility*p.Volatility) * p.DT
	std = p.Volatility * math.Sqrt(p.DT)
	return mean, std
}

// ProcessOption configures Process.
type ProcessOption func(*Process)

// WithSource sets the random source. Use a seeded source for reproducible paths.
func WithSource(src rand.Source) ProcessOption {
	return func(p *Process) {
		p.rng = rand.New(src)
	}
}

// WithClock sets the timestamp of the initial sample.
func WithClock(at time.Time) ProcessOption {
	return func(p *Process) {
		p.series[0].At = at
	}
}

// Process owns an append-only price series.
type Process struct {
	params   Params
	mean     float64
	std      float64
	rng      *rand.Rand
	mu       sync.RWMutex
	series   []models.PriceSample
	baseline int
}

// New creates a process whose series starts with start at index 0.
func New(start float64, params Params, opts ...ProcessOption) *Process {
	p := &Process{
		params: params,
		rng:    rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		series: []models.PriceSample{{Index: 0, Value: start}},
	}
	p.mean, p.std = params.LogReturnMoments()
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Step draws the next value from current. It does not touch the series.
func (p *Process) Step(current float64) float64 {
	return current * math.Exp(p.mean+p.std*p.rng.NormFloat64())
}

// Advance appends one sample drawn from the last value.
func (p *Process) Advance(at time.Time) models.PriceSample {
	p.mu.Lock()
	defer p.mu.Unlock()

	last := p.series[len(p.series)-1]
	s := models.PriceSample{Index: last.Index + 1, Value: p.Step(last.Value), At: at}
	p.series = append(p.series, s)
	return s
}

// Rebase makes the current index the baseline of subsequent draws. Recorded history
// stays readable.
func (p *Process) Rebase() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.baseline = len(p.series) - 1
	return p.baseline
}

func (p *Process) Baseline() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.baseline
}

func (p *Process) Last() models.PriceSample {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.series[len(p.series)-1]
}

func (p *Process) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.series)
}

// Window returns up to n trailing samples.
func (p *Process) Window(n int) []models.PriceSample {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if n <= 0 {
		return nil
	}
	start := len(p.series) - n
	if start < 0 {
		start = 0
	}
	return append([]models.PriceSample(nil), p.series[start:]...)
}

// From returns every sample with Index >= index.
func (p *Process) From(index int) []models.PriceSample {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if index < 0 {
		index = 0
	}
	if index >= len(p.series) {
		return nil
	}
	return append([]models.PriceSample(nil), p.series[index:]...)
}

// Series returns a copy of the whole recorded history.
func (p *Process) Series() []models.PriceSample {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]models.PriceSample(nil), p.series...)
}

// SinceBaseline returns the samples of the current round, baseline included.
func (p *Process) SinceBaseline() []models.PriceSample {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]models.PriceSample(nil), p.series[p.baseline:]...)
}

// At returns the sample at index.
func (p *Process) At(index int) (models.PriceSample, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if index < 0 || index >= len(p.series) {
		return models.PriceSample{}, false
	}
	return p.series[index], true
}

func (p *Process) Params() (drift, volatility, dt float64) {
	return p.params.Drift, p.params.Volatility, p.params.DT
}

var _ domsvc.PriceProcess = (*Process)(nil)
