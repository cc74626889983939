package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"QuotaGame/internal/domain/models"
	"QuotaGame/internal/repository"
	"QuotaGame/internal/services/barrier"
	"QuotaGame/pkg/cache"
)

type fakePublisher struct {
	samples     int
	settlements int
	err         error
	closed      bool
}

func (f *fakePublisher) PublishSamples(_ context.Context, _ string, s []models.PriceSample) error {
	f.samples += len(s)
	return f.err
}
func (f *fakePublisher) PublishSettlement(context.Context, *models.Settlement) error {
	f.settlements++
	return f.err
}
func (f *fakePublisher) Close() error {
	f.closed = true
	return nil
}

type fakeStorage struct {
	samples     int
	settlements int
}

func (f *fakeStorage) Init(context.Context) error { return nil }
func (f *fakeStorage) StoreSamples(_ context.Context, _ string, s []models.PriceSample) error {
	f.samples += len(s)
	return nil
}
func (f *fakeStorage) StoreSettlement(context.Context, *models.Settlement) error {
	f.settlements++
	return nil
}
func (f *fakeStorage) Health(context.Context) error { return nil }
func (f *fakeStorage) Close() error                 { return nil }

func TestRecordExporter_RoutesByBackend(t *testing.T) {
	ctx := context.Background()
	samples := []models.PriceSample{{Index: 1, Value: 100}, {Index: 2, Value: 101}}
	st := &models.Settlement{SessionID: "s", RoundID: "r"}

	pub, store := &fakePublisher{}, &fakeStorage{}
	for _, backend := range []string{BackendNone, BackendKafka, BackendClickHouse} {
		exp := NewRecordExporter(pub, store, nopMetrics{}, backend)
		if err := exp.ExportSamples(ctx, "s", samples); err != nil {
			t.Fatalf("%s samples: %v", backend, err)
		}
		if err := exp.ExportSettlement(ctx, st); err != nil {
			t.Fatalf("%s settlement: %v", backend, err)
		}
	}
	if pub.samples != 2 || pub.settlements != 1 {
		t.Fatalf("publisher got %d samples %d settlements", pub.samples, pub.settlements)
	}
	if store.samples != 2 || store.settlements != 1 {
		t.Fatalf("storage got %d samples %d settlements", store.samples, store.settlements)
	}

	exp := NewRecordExporter(pub, store, nopMetrics{}, BackendKafka)
	exp.Close()
	if !pub.closed {
		t.Fatal("publisher not closed")
	}
}

func TestRecordExporter_Errors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("broker down")
	exp := NewRecordExporter(&fakePublisher{err: boom}, nil, nopMetrics{}, BackendKafka)
	if err := exp.ExportSamples(ctx, "s", []models.PriceSample{{Index: 1, Value: 1}}); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if err := exp.ExportSettlement(ctx, nil); err == nil {
		t.Fatal("nil settlement accepted")
	}
	if err := NewRecordExporter(nil, nil, nopMetrics{}, "s3").ExportSettlement(ctx, &models.Settlement{}); err == nil {
		t.Fatal("unknown backend accepted")
	}
}

type countingEstimator struct {
	calls int
	inner *barrier.Engine
}

func (c *countingEstimator) Estimate(ctx context.Context, q models.BarrierQuery) (models.BarrierEstimate, error) {
	c.calls++
	return c.inner.Estimate(ctx, q)
}

func TestQuoter_CachesByExactInputs(t *testing.T) {
	mem := cache.NewMemoryCache()
	defer mem.Close()
	est := &countingEstimator{inner: barrier.NewEngine(barrier.WithSeed(7, 7))}
	q := NewQuoter(QuoteConfig{Volatility: 0.2, DT: 1e-6, NumPaths: 100, MaxSteps: 500}, est,
		repository.NewEstimateCache(mem, time.Minute, nil), nopMetrics{})

	rect := models.TargetRectangle{StepLeft: 10, StepWidth: 20, PriceLow: 99, PriceHigh: 101}
	first, err := q.Quote(context.Background(), rect, 5, 100)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	second, err := q.Quote(context.Background(), rect, 9, 100)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if est.calls != 1 {
		t.Fatalf("engine ran %d times, want 1", est.calls)
	}
	if first.Probability != second.Probability || second.BasisIndex != 9 {
		t.Fatalf("first %+v second %+v", first, second)
	}

	if _, err := q.Quote(context.Background(), rect, 9, 100.5); err != nil || est.calls != 2 {
		t.Fatalf("different start value should miss: calls=%d err=%v", est.calls, err)
	}
}

func TestQuoter_QueryClampsHorizon(t *testing.T) {
	q := NewQuoter(QuoteConfig{DT: 1, NumPaths: 1, MaxSteps: 100}, nil, nil, nopMetrics{})
	got := q.Query(models.TargetRectangle{StepLeft: 250, StepWidth: 100}, 100)
	if got.NumSteps != 100 || got.StepRight != 350 {
		t.Fatalf("query = %+v", got)
	}
	if err := barrier.Validate(models.BarrierQuery{StartValue: 100, DT: 1, NumPaths: 1,
		NumSteps: got.NumSteps, StepLeft: got.StepLeft, StepRight: got.StepRight}); !errors.Is(err, barrier.ErrInvalidRegion) {
		t.Fatalf("beyond-horizon rectangle validated: %v", err)
	}
}
