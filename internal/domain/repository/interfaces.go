package repository

import (
	"context"

	"QuotaGame/internal/domain/models"
)

// Publisher pushes game records to a message broker.
type Publisher interface {
	PublishSamples(ctx context.Context, sessionID string, samples []models.PriceSample) error
	PublishSettlement(ctx context.Context, s *models.Settlement) error
	Close() error
}

// Storage writes game records to an analytics store. The game never reads them back.
type Storage interface {
	Init(ctx context.Context) error
	StoreSamples(ctx context.Context, sessionID string, samples []models.PriceSample) error
	StoreSettlement(ctx context.Context, s *models.Settlement) error
	Health(ctx context.Context) error
	Close() error
}

// EstimateCache memoizes barrier estimates by their exact inputs.
type EstimateCache interface {
	Get(ctx context.Context, key string) (models.BarrierEstimate, bool)
	Set(ctx context.Context, key string, est models.BarrierEstimate)
}

type Metrics interface {
	RecordTick(price float64)
	RecordEstimate(seconds, probability float64, cached bool)
	RecordSettlement(hit bool, budget float64)
	RecordTransition(from, to models.Phase)
	RecordRealizedVol(sigma float64)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
