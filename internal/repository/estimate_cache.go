package repository

import (
	"context"
	"time"

	"QuotaGame/internal/domain/models"
	"QuotaGame/internal/domain/repository"
	"QuotaGame/pkg/cache"
	applogger "QuotaGame/pkg/logger"
)

// EstimateCache stores barrier estimates in a cache.Service. Cache failures degrade to
// a miss; the engine is always the source of truth.
type EstimateCache struct {
	c   cache.Service
	ttl time.Duration
	l   *applogger.Logger
}

// NewEstimateCache creates an EstimateCache. A zero ttl keeps entries for the cache default.
func NewEstimateCache(c cache.Service, ttl time.Duration, l *applogger.Logger) repository.EstimateCache {
	return &EstimateCache{c: c, ttl: ttl, l: l}
}

func (e *EstimateCache) Get(ctx context.Context, key string) (models.BarrierEstimate, bool) {
	var est models.BarrierEstimate
	if err := e.c.Get(ctx, key, &est); err != nil {
		return models.BarrierEstimate{}, false
	}
	return est, true
}

func (e *EstimateCache) Set(ctx context.Context, key string, est models.BarrierEstimate) {
	if err := e.c.Set(ctx, key, est, e.ttl); err != nil && e.l != nil {
		e.l.Warn("estimate cache set", applogger.String("key", key), applogger.Error(err))
	}
}
