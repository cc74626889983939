// Package barrier estimates by Monte Carlo the probability that a log-normal path
// enters a (step, price) rectangle.
//
// The estimator is the plain hit fraction over independent paths. It is unbiased and
// its standard error sqrt(p(1-p)/N) shrinks as the number of paths grows; no variance
// reduction is applied.
package barrier

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"QuotaGame/internal/domain/models"
	domsvc "QuotaGame/internal/domain/service"
)

var (
	// ErrInvalidRegion rejects a malformed rectangle before any simulation runs.
	ErrInvalidRegion = errors.New("barrier: invalid region")
	// ErrInvalidInput rejects process inputs that would produce NaN output.
	ErrInvalidInput = errors.New("barrier: invalid input")
	// ErrWorkLimit rejects a query whose paths times steps exceed the engine budget.
	ErrWorkLimit = errors.New("barrier: work limit exceeded")
)

const (
	noHit = -1
	// paths simulated between cancellation checks inside a chunk
	cancelEvery = 8
)

// EngineOption configures Engine.
type EngineOption func(*EngineConfig)

// EngineConfig holds engine configuration.
type EngineConfig struct {
	Workers   int
	ChunkSize int
	PayoutCap float64
	MaxWork   int64
	Seed      *[2]uint64
}

// WithWorkers bounds the number of chunks simulated concurrently.
func WithWorkers(n int) EngineOption {
	return func(c *EngineConfig) {
		if n > 0 {
			c.Workers = n
		}
	}
}

// WithChunkSize sets how many paths one unit of work simulates.
func WithChunkSize(n int) EngineOption {
	return func(c *EngineConfig) {
		if n > 0 {
			c.ChunkSize = n
		}
	}
}

// WithPayoutCap sets the multiplier used when no path hits.
func WithPayoutCap(v float64) EngineOption {
	return func(c *EngineConfig) {
		if v >= 1 {
			c.PayoutCap = v
		}
	}
}

// WithMaxWork bounds num_paths * (step_right+1) per query. Zero disables the bound.
func WithMaxWork(n int64) EngineOption {
	return func(c *EngineConfig) {
		if n >= 0 {
			c.MaxWork = n
		}
	}
}

// WithSeed makes the sequence of estimates reproducible.
func WithSeed(a, b uint64) EngineOption {
	return func(c *EngineConfig) {
		c.Seed = &[2]uint64{a, b}
	}
}

// Engine runs batched path simulations. It is safe for concurrent use.
type Engine struct {
	cfg   EngineConfig
	mu    sync.Mutex
	seeds *rand.Rand
}

// NewEngine creates an engine.
func NewEngine(opts ...EngineOption) *Engine {
	cfg := EngineConfig{
		Workers:   runtime.GOMAXPROCS(0),
		ChunkSize: 1024,
		PayoutCap: 100,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	seed := [2]uint64{rand.Uint64(), rand.Uint64()}
	if cfg.Seed != nil {
		seed = *cfg.Seed
	}
	return &Engine{cfg: cfg, seeds: rand.New(rand.NewPCG(seed[0], seed[1]))}
}

// PayoutCap returns the configured cap.
func (e *Engine) PayoutCap() float64 { return e.cfg.PayoutCap }

// Multiplier is the fair payout factor 1/p. payoutCap stands in only when no path hit.
func Multiplier(p, payoutCap float64) float64 {
	if p <= 0 {
		return payoutCap
	}
	return 1 / p
}

// Validate checks a query without simulating. A band with PriceHigh == PriceLow is
// accepted: it is a single price level, hit only by an exact match or a zero-volatility
// path starting on it. Only PriceHigh < PriceLow is rejected.
func Validate(q models.BarrierQuery) error {
	switch {
	case q.NumPaths <= 0:
		return fmt.Errorf("%w: num_paths %d", ErrInvalidRegion, q.NumPaths)
	case q.StepLeft < 0:
		return fmt.Errorf("%w: step_left %d is negative", ErrInvalidRegion, q.StepLeft)
	case q.StepRight < q.StepLeft:
		return fmt.Errorf("%w: step_right %d before step_left %d", ErrInvalidRegion, q.StepRight, q.StepLeft)
	case math.IsNaN(q.PriceLow) || math.IsNaN(q.PriceHigh) || q.PriceHigh < q.PriceLow:
		return fmt.Errorf("%w: price band [%v, %v]", ErrInvalidRegion, q.PriceLow, q.PriceHigh)
	}

	switch {
	case !(q.StartValue > 0) || math.IsInf(q.StartValue, 0):
		return fmt.Errorf("%w: start value %v", ErrInvalidInput, q.StartValue)
	case q.NumSteps <= 0:
		return fmt.Errorf("%w: num_steps %d", ErrInvalidInput, q.NumSteps)
	case !(q.DT > 0) || math.IsInf(q.DT, 0):
		return fmt.Errorf("%w: dt %v", ErrInvalidInput, q.DT)
	case !(q.Volatility >= 0) || math.IsInf(q.Volatility, 0) || math.IsNaN(q.Drift) || math.IsInf(q.Drift, 0):
		return fmt.Errorf("%w: drift %v volatility %v", ErrInvalidInput, q.Drift, q.Volatility)
	}

	if q.StepRight > q.NumSteps {
		return fmt.Errorf("%w: step_right %d beyond horizon %d", ErrInvalidRegion, q.StepRight, q.NumSteps)
	}
	return nil
}

type chunkResult struct {
	hits       int
	passageSum int
}

// Estimate simulates q.NumPaths independent paths and returns the hit fraction.
func (e *Engine) Estimate(ctx context.Context, q models.BarrierQuery) (models.BarrierEstimate, error) {
	if err := Validate(q); err != nil {
		return models.BarrierEstimate{}, err
	}
	if w := int64(q.NumPaths) * int64(q.StepRight+1); e.cfg.MaxWork > 0 && w > e.cfg.MaxWork {
		return models.BarrierEstimate{}, fmt.Errorf("%w: %d path steps, limit %d", ErrWorkLimit, w, e.cfg.MaxWork)
	}

	chunks := (q.NumPaths + e.cfg.ChunkSize - 1) / e.cfg.ChunkSize
	results := make([]chunkResult, chunks)
	seeds := e.drawSeeds(chunks)

	mean := (q.Drift - 0.5*q.Volatility*q.Volatility) * q.DT
	std := q.Volatility * math.Sqrt(q.DT)
	// Compare in log space: ln(v/start) against the shifted band.
	lo := math.Inf(-1)
	if q.PriceLow > 0 {
		lo = math.Log(q.PriceLow / q.StartValue)
	}
	hi := math.Inf(-1)
	if q.PriceHigh > 0 {
		hi = math.Log(q.PriceHigh / q.StartValue)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	for c := 0; c < chunks; c++ {
		c := c
		n := e.cfg.ChunkSize
		if rem := q.NumPaths - c*e.cfg.ChunkSize; rem < n {
			n = rem
		}
		g.Go(func() error {
			rng := rand.New(rand.NewPCG(seeds[c][0], seeds[c][1]))
			var res chunkResult
			for i := 0; i < n; i++ {
				if i%cancelEvery == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}
				if j := firstPassage(rng, mean, std, lo, hi, q.StepLeft, q.StepRight); j != noHit {
					res.hits++
					res.passageSum += j
				}
			}
			results[c] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return models.BarrierEstimate{}, fmt.Errorf("barrier simulation: %w", err)
	}

	var hits, passageSum int
	for _, r := range results {
		hits += r.hits
		passageSum += r.passageSum
	}

	p := float64(hits) / float64(q.NumPaths)
	est := models.BarrierEstimate{
		Probability: p,
		Multiplier:  Multiplier(p, e.cfg.PayoutCap),
		Paths:       q.NumPaths,
		Hits:        hits,
		StdErr:      math.Sqrt(p * (1 - p) / float64(q.NumPaths)),
		BasisValue:  q.StartValue,
	}
	if hits > 0 {
		est.MeanFirstPassage = float64(passageSum) / float64(hits)
	}
	return est, nil
}

// firstPassage walks one path up to right and returns the first step inside the band.
// Index 0 is the start value itself.
func firstPassage(rng *rand.Rand, mean, std, lo, hi float64, left, right int) int {
	x := 0.0
	for j := 0; j <= right; j++ {
		if j > 0 {
			x += mean + std*rng.NormFloat64()
		}
		if j >= left && x >= lo && x <= hi {
			return j
		}
	}
	return noHit
}

func (e *Engine) drawSeeds(n int) [][2]uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([][2]uint64, n)
	for i := range out {
		out[i] = [2]uint64{e.seeds.Uint64(), e.seeds.Uint64()}
	}
	return out
}

var _ domsvc.Estimator = (*Engine)(nil)
