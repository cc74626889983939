package middleware

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"QuotaGame/internal/domain/models"
	domrepo "QuotaGame/internal/domain/repository"
)

var ErrBufferFull = errors.New("pipeline: buffer full")

// Proc is the minimal exporter interface the pipeline needs.
type Proc interface {
	ExportSamples(ctx context.Context, sessionID string, samples []models.PriceSample) error
	ExportSettlement(ctx context.Context, s *models.Settlement) error
}

// Record is one unit of export work: a single sample or a settlement.
type Record struct {
	SessionID  string
	Sample     *models.PriceSample
	Settlement *models.Settlement
}

// ExportPipeline sits between the game loop and the export backend. Submit never
// blocks the caller; samples are batched and flushed in the background.
type ExportPipeline struct {
	proc       Proc
	metrics    domrepo.Metrics
	bufSize    int
	batchSize  int
	flushEvery time.Duration
	maxRetries int
	bufCh      chan Record
	stopCh     chan struct{}
	doneCh     chan struct{}
	started    bool
	mu         sync.Mutex
}

type PipelineOption func(*ExportPipeline)

// WithBufferSize sets the number of records held while the backend catches up.
func WithBufferSize(n int) PipelineOption {
	return func(p *ExportPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithBatchSize sets how many samples are written per call.
func WithBatchSize(n int) PipelineOption {
	return func(p *ExportPipeline) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithFlushInterval sets the longest a partial batch waits.
func WithFlushInterval(d time.Duration) PipelineOption {
	return func(p *ExportPipeline) {
		if d > 0 {
			p.flushEvery = d
		}
	}
}

func WithMaxRetries(n int) PipelineOption {
	return func(p *ExportPipeline) {
		if n >= 0 {
			p.maxRetries = n
		}
	}
}

// NewExportPipeline creates a new pipeline.
func NewExportPipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *ExportPipeline {
	p := &ExportPipeline{
		proc:       proc,
		metrics:    metrics,
		bufSize:    4096,
		batchSize:  100,
		flushEvery: time.Second,
		maxRetries: 3,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan Record, p.bufSize)
	return p
}

// Start launches the background flusher.
func (p *ExportPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.run(ctx)
}

// Stop drains buffered records and stops the flusher.
func (p *ExportPipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	close(p.stopCh)
	done := p.doneCh
	p.mu.Unlock()
	<-done
}

// Submit validates and enqueues a record without blocking.
func (p *ExportPipeline) Submit(r Record) error {
	if err := validateRecord(r); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	select {
	case p.bufCh <- r:
		return nil
	default:
		p.metrics.RecordError("pipeline_buffer_full")
		return ErrBufferFull
	}
}

// Depth is the number of records waiting in the buffer.
func (p *ExportPipeline) Depth() int { return len(p.bufCh) }

func (p *ExportPipeline) run(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.flushEvery)
	defer ticker.Stop()

	batches := make(map[string][]models.PriceSample)
	flush := func() {
		for sid, batch := range batches {
			if len(batch) == 0 {
				continue
			}
			p.retry(ctx, "export_samples", func(c context.Context) error {
				return p.proc.ExportSamples(c, sid, batch)
			})
			delete(batches, sid)
		}
	}
	handle := func(r Record) {
		if r.Settlement != nil {
			// samples leading up to a settlement go out first
			flush()
			p.retry(ctx, "export_settlement", func(c context.Context) error {
				return p.proc.ExportSettlement(c, r.Settlement)
			})
			return
		}
		batches[r.SessionID] = append(batches[r.SessionID], *r.Sample)
		if len(batches[r.SessionID]) >= p.batchSize {
			flush()
		}
	}

	for {
		select {
		case r := <-p.bufCh:
			handle(r)
		case <-ticker.C:
			flush()
		case <-p.stopCh:
			for {
				select {
				case r := <-p.bufCh:
					handle(r)
				default:
					flush()
					return
				}
			}
		case <-ctx.Done():
			flush()
			return
		}
	}
}

func (p *ExportPipeline) retry(ctx context.Context, op string, fn func(context.Context) error) {
	start := time.Now()
	backoff := 50 * time.Millisecond
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			p.metrics.RecordLatency("pipeline_"+op, time.Since(start).Seconds())
			return
		}
		p.metrics.RecordError("pipeline_flush")
		if attempt >= p.maxRetries || ctx.Err() != nil {
			p.metrics.RecordError("pipeline_drop")
			return
		}
		// exponential backoff with cap
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		if backoff < 2*time.Second {
			backoff *= 2
		}
	}
}

func validateRecord(r Record) error {
	if r.SessionID == "" {
		return fmt.Errorf("session id empty")
	}
	if (r.Sample == nil) == (r.Settlement == nil) {
		return fmt.Errorf("record must carry exactly one of sample or settlement")
	}
	if r.Sample != nil && !(r.Sample.Value > 0) {
		return fmt.Errorf("sample value invalid")
	}
	return nil
}
