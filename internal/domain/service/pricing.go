package service

import (
	"context"
	"time"

	"QuotaGame/internal/domain/models"
)

// Estimator prices a target rectangle from a starting value.
type Estimator interface {
	Estimate(ctx context.Context, q models.BarrierQuery) (models.BarrierEstimate, error)
}

// PriceProcess is the single realized price trajectory. It is the only writer of the
// series; every read returns a copy.
type PriceProcess interface {
	Advance(at time.Time) models.PriceSample
	Rebase() int
	Last() models.PriceSample
	Baseline() int
	Len() int
	Window(n int) []models.PriceSample
	From(index int) []models.PriceSample
	Params() (drift, volatility, dt float64)
}
