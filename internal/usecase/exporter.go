package usecase

import (
	"context"
	"fmt"
	"time"

	"QuotaGame/internal/domain/models"
	drepo "QuotaGame/internal/domain/repository"
)

// Backend types for exported game records.
const (
	BackendNone       = "none"
	BackendKafka      = "kafka"
	BackendClickHouse = "clickhouse"
)

// RecordExporter routes price samples and settlements to the configured backend.
type RecordExporter struct {
	pub     drepo.Publisher
	store   drepo.Storage
	metrics drepo.Metrics
	backend string
}

// NewRecordExporter creates a RecordExporter. pub and store may be nil when their
// backend is not selected.
func NewRecordExporter(pub drepo.Publisher, store drepo.Storage, metrics drepo.Metrics, backend string) *RecordExporter {
	return &RecordExporter{pub: pub, store: store, metrics: metrics, backend: backend}
}

func (p *RecordExporter) Backend() string { return p.backend }

// ExportSamples writes a batch of samples.
func (p *RecordExporter) ExportSamples(ctx context.Context, sessionID string, samples []models.PriceSample) error {
	if len(samples) == 0 {
		return nil
	}

	start := time.Now()
	var err error

	switch p.backend {
	case BackendNone, "":
		return nil
	case BackendKafka:
		err = p.pub.PublishSamples(ctx, sessionID, samples)
	case BackendClickHouse:
		err = p.store.StoreSamples(ctx, sessionID, samples)
	default:
		err = fmt.Errorf("unknown backend: %s", p.backend)
	}

	if err != nil {
		p.metrics.RecordError("export_samples")
		return fmt.Errorf("export samples: %w", err)
	}
	p.metrics.RecordLatency("export_samples", time.Since(start).Seconds())
	return nil
}

// ExportSettlement writes one settlement record.
func (p *RecordExporter) ExportSettlement(ctx context.Context, s *models.Settlement) error {
	if s == nil {
		return fmt.Errorf("settlement is nil")
	}

	start := time.Now()
	var err error

	switch p.backend {
	case BackendNone, "":
		return nil
	case BackendKafka:
		err = p.pub.PublishSettlement(ctx, s)
	case BackendClickHouse:
		err = p.store.StoreSettlement(ctx, s)
	default:
		err = fmt.Errorf("unknown backend: %s", p.backend)
	}

	if err != nil {
		p.metrics.RecordError("export_settlement")
		return fmt.Errorf("export settlement: %w", err)
	}
	p.metrics.RecordLatency("export_settlement", time.Since(start).Seconds())
	return nil
}

// Close closes underlying resources if available.
func (p *RecordExporter) Close() {
	if p.pub != nil {
		_ = p.pub.Close()
	}
	if p.store != nil {
		_ = p.store.Close()
	}
}
