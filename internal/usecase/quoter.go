package usecase

import (
	"context"
	"time"

	"QuotaGame/internal/domain/models"
	drepo "QuotaGame/internal/domain/repository"
	domsvc "QuotaGame/internal/domain/service"
	"QuotaGame/pkg/cache"
)

// QuoteConfig holds the simulation parameters of a quote.
type QuoteConfig struct {
	Drift      float64
	Volatility float64
	DT         float64
	NumPaths   int
	MaxSteps   int
}

// Quoter prices rectangles for the live game.
type Quoter struct {
	cfg     QuoteConfig
	est     domsvc.Estimator
	cache   drepo.EstimateCache
	metrics drepo.Metrics
}

// NewQuoter creates a Quoter. cache may be nil.
func NewQuoter(cfg QuoteConfig, est domsvc.Estimator, c drepo.EstimateCache, metrics drepo.Metrics) *Quoter {
	return &Quoter{cfg: cfg, est: est, cache: c, metrics: metrics}
}

// Query builds the engine input for a rectangle priced from start.
func (q *Quoter) Query(rect models.TargetRectangle, start float64) models.BarrierQuery {
	steps := rect.StepRight()
	if steps < 1 {
		steps = 1
	}
	if q.cfg.MaxSteps > 0 && steps > q.cfg.MaxSteps {
		steps = q.cfg.MaxSteps
	}
	return models.BarrierQuery{
		StartValue: start,
		Drift:      q.cfg.Drift,
		Volatility: q.cfg.Volatility,
		DT:         q.cfg.DT,
		NumPaths:   q.cfg.NumPaths,
		NumSteps:   steps,
		StepLeft:   rect.StepLeft,
		StepRight:  rect.StepRight(),
		PriceLow:   rect.PriceLow,
		PriceHigh:  rect.PriceHigh,
	}
}

// Quote prices rect at the sample (index, value).
func (q *Quoter) Quote(ctx context.Context, rect models.TargetRectangle, index int, value float64) (models.BarrierEstimate, error) {
	est, err := q.Estimate(ctx, q.Query(rect, value))
	if err != nil {
		return est, err
	}
	est.BasisIndex = index
	est.BasisValue = value
	return est, nil
}

// Estimate runs an arbitrary query through the cache and the engine.
func (q *Quoter) Estimate(ctx context.Context, query models.BarrierQuery) (models.BarrierEstimate, error) {
	start := time.Now()
	key := cache.Key("estimate",
		query.StartValue, query.Drift, query.Volatility, query.DT, query.NumPaths,
		query.NumSteps, query.StepLeft, query.StepRight, query.PriceLow, query.PriceHigh)

	if q.cache != nil {
		if est, ok := q.cache.Get(ctx, key); ok {
			q.metrics.RecordEstimate(time.Since(start).Seconds(), est.Probability, true)
			return est, nil
		}
	}

	est, err := q.est.Estimate(ctx, query)
	if err != nil {
		q.metrics.RecordError("estimate")
		return est, err
	}
	q.metrics.RecordEstimate(time.Since(start).Seconds(), est.Probability, false)

	if q.cache != nil {
		q.cache.Set(ctx, key, est)
	}
	return est, nil
}
