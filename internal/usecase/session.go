package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"QuotaGame/internal/domain/models"
	drepo "QuotaGame/internal/domain/repository"
	domsvc "QuotaGame/internal/domain/service"
	mid "QuotaGame/internal/middleware"
	"QuotaGame/internal/services/features"
	applogger "QuotaGame/pkg/logger"
)

var ErrUnknownCommand = errors.New("session: unknown command")

// SessionConfig holds the timing of the game loop.
type SessionConfig struct {
	TickPeriod  time.Duration
	QuoteEvery  int
	Window      int
	StatsWindow int
}

// RecordSink receives samples and settlements for export. Submit must not block.
type RecordSink interface {
	Submit(r mid.Record) error
}

type SessionOption func(*Session)

// WithRecordSink exports every sample and settlement to sink.
func WithRecordSink(sink RecordSink) SessionOption {
	return func(s *Session) { s.sink = sink }
}

// WithSessionID overrides the generated session id.
func WithSessionID(id string) SessionOption {
	return func(s *Session) {
		if id != "" {
			s.id = id
		}
	}
}

// Session is one player's game: the live price process, the round machine and the
// viewport. Every event is serialized under one mutex; estimates run outside it.
type Session struct {
	mu         sync.Mutex
	id         string
	cfg        SessionConfig
	proc       domsvc.PriceProcess
	machine    *RoundMachine
	quoter     *Quoter
	view       models.Viewport
	firstValue float64
	lastStep   time.Time
	paused     bool
	sinceQuote int
	quoting    bool
	quotes     sync.WaitGroup
	last       *models.Settlement
	sink       RecordSink
	metrics    drepo.Metrics
	log        *applogger.Logger
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewSession creates a session around an existing process and machine.
func NewSession(cfg SessionConfig, proc domsvc.PriceProcess, machine *RoundMachine, quoter *Quoter,
	view models.Viewport, metrics drepo.Metrics, log *applogger.Logger, opts ...SessionOption) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:         uuid.NewString(),
		cfg:        cfg,
		proc:       proc,
		machine:    machine,
		quoter:     quoter,
		view:       view,
		firstValue: proc.Last().Value,
		metrics:    metrics,
		log:        log,
		ctx:        ctx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = log.With(applogger.String("session", s.id))
	return s
}

func (s *Session) ID() string { return s.id }

// Tick advances the process by one sample if a full tick period has passed since the
// last step. Missed periods are not caught up. The clock is paused while a settled
// round waits for Resume.
func (s *Session) Tick(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.paused {
		return false
	}
	if !s.lastStep.IsZero() && now.Sub(s.lastStep) < s.cfg.TickPeriod {
		return false
	}
	s.lastStep = now

	sample := s.proc.Advance(now)
	s.metrics.RecordTick(sample.Value)
	s.export(mid.Record{SessionID: s.id, Sample: &sample})

	switch s.machine.Phase() {
	case models.PhaseMonitoring:
		s.evaluate()
	case models.PhaseProposed:
		s.sinceQuote++
		r := s.machine.Round()
		if r.Estimate == nil || (s.cfg.QuoteEvery > 0 && s.sinceQuote >= s.cfg.QuoteEvery) {
			s.quote(*r.Rectangle, s.machine.Generation(), sample)
		}
	}

	if s.cfg.StatsWindow > 0 && sample.Index%s.cfg.StatsWindow == 0 {
		s.metrics.RecordRealizedVol(s.stats().RealizedVolatility)
	}
	return true
}

func (s *Session) DragStart(p models.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	from := s.machine.Phase()
	if err := s.machine.DragStart(p); err != nil {
		return err
	}
	s.metrics.RecordTransition(from, models.PhaseDrafting)
	return nil
}

func (s *Session) DragMove(p models.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.DragMove(p)
}

// DragEnd closes the draft and starts pricing the proposal in the background. A
// discarded draft returns a nil rectangle and no error.
func (s *Session) DragEnd(p models.Point) (*models.TargetRectangle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	last := s.proc.Last()
	rect, gen, err := s.machine.DragEnd(p, s.view, last.Value)
	if err != nil {
		return nil, err
	}
	if rect == nil {
		s.metrics.RecordTransition(models.PhaseDrafting, models.PhaseIdle)
		s.log.Debug("draft discarded")
		return nil, nil
	}

	s.metrics.RecordTransition(models.PhaseDrafting, models.PhaseProposed)
	s.log.Debug("rectangle proposed",
		applogger.Int("step_left", rect.StepLeft),
		applogger.Int("step_right", rect.StepRight()),
		applogger.Float64("price_low", rect.PriceLow),
		applogger.Float64("price_high", rect.PriceHigh))
	s.sinceQuote = 0
	s.quote(*rect, gen, last)
	return rect, nil
}

// Confirm locks the proposal at the sample current at the click. When the attached
// estimate was priced at an older sample the estimate is recomputed first, so the locked
// multiplier always matches the release price.
func (s *Session) Confirm(ctx context.Context, p models.Point) error {
	s.mu.Lock()
	release := s.proc.Last()
	err := s.confirm(p, release)
	if !errors.Is(err, ErrEstimatePending) {
		s.mu.Unlock()
		return err
	}
	rect := *s.machine.Round().Rectangle
	gen := s.machine.Generation()
	s.mu.Unlock()

	est, err := s.quoter.Quote(ctx, rect, release.Index, release.Value)
	if err != nil {
		return fmt.Errorf("confirm: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.machine.AttachEstimate(gen, est); err != nil {
		return err
	}
	return s.confirm(p, release)
}

func (s *Session) confirm(p models.Point, release models.PriceSample) error {
	if err := s.machine.Confirm(p, release.Index, release.Value); err != nil {
		return err
	}
	s.metrics.RecordTransition(models.PhaseProposed, models.PhaseMonitoring)
	r := s.machine.Round()
	s.log.Info("round confirmed",
		applogger.String("round", r.ID),
		applogger.Int("release_index", release.Index),
		applogger.Float64("release_value", release.Value),
		applogger.Float64("multiplier", r.Estimate.Multiplier),
		applogger.Int64("stake", r.Stake))
	// ticks may have passed since the click
	s.evaluate()
	return nil
}

// Resume starts the next round from the current sample.
func (s *Session) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.machine.Resume(); err != nil {
		return err
	}
	s.proc.Rebase()
	s.firstValue = s.proc.Last().Value
	s.paused = false
	s.lastStep = time.Time{}
	s.metrics.RecordTransition(models.PhaseSettled, models.PhaseIdle)
	return nil
}

func (s *Session) AdjustStake(delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.AdjustStake(delta)
}

// Zoom multiplies the vertical scale and returns the clamped result.
func (s *Session) Zoom(factor float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view.Zoom(factor)
	return s.view.ScaleY
}

// Apply dispatches a transport-neutral command.
func (s *Session) Apply(ctx context.Context, cmd models.Command) error {
	switch cmd.Type {
	case models.CmdDragStart:
		return s.DragStart(cmd.Point)
	case models.CmdDragMove:
		return s.DragMove(cmd.Point)
	case models.CmdDragEnd:
		_, err := s.DragEnd(cmd.Point)
		return err
	case models.CmdConfirm:
		return s.Confirm(ctx, cmd.Point)
	case models.CmdResume:
		return s.Resume()
	case models.CmdAdjustStake:
		_, err := s.AdjustStake(cmd.Delta)
		return err
	case models.CmdZoom:
		s.Zoom(cmd.Factor)
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Type)
	}
}

// Snapshot returns a copy of everything needed to draw a frame with n trailing samples.
func (s *Session) Snapshot(n int) models.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n <= 0 {
		n = s.cfg.Window
	}
	last := s.proc.Last()
	view := s.view
	view.RefValue = last.Value

	snap := models.Snapshot{
		SessionID:  s.id,
		Index:      last.Index,
		Price:      last.Value,
		Baseline:   s.proc.Baseline(),
		FirstValue: s.firstValue,
		Paused:     s.paused,
		Round:      s.machine.Round(),
		Draft:      s.machine.Draft(),
		Ledger:     s.machine.Ledger(),
		Viewport:   view,
		Window:     s.proc.Window(n),
	}
	if r := snap.Round; r.ReleaseIndex != nil {
		fwd := s.proc.From(*r.ReleaseIndex)
		if limit := r.Rectangle.StepRight() + 1; len(fwd) > limit {
			fwd = fwd[:limit]
		}
		snap.Forward = fwd
	}
	return snap
}

// Series returns up to n trailing samples.
func (s *Session) Series(n int) []models.PriceSample {
	return s.proc.Window(n)
}

func (s *Session) Stats() models.SeriesStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats()
}

// LastSettlement returns the most recent settlement, if any.
func (s *Session) LastSettlement() *models.Settlement {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return nil
	}
	v := *s.last
	return &v
}

// Estimate prices an arbitrary query without touching the round.
func (s *Session) Estimate(ctx context.Context, q models.BarrierQuery) (models.BarrierEstimate, error) {
	return s.quoter.Estimate(ctx, q)
}

// Wait blocks until background quotes have finished.
func (s *Session) Wait() { s.quotes.Wait() }

// Close cancels background quotes and waits for them.
func (s *Session) Close() {
	s.cancel()
	s.quotes.Wait()
}

func (s *Session) stats() models.SeriesStats {
	_, vol, _ := s.proc.Params()
	return features.Stats(s.proc.Window(s.cfg.StatsWindow+1), s.cfg.StatsWindow, s.cfg.TickPeriod, vol)
}

// evaluate settles the monitored round when the forward path decides it. Caller holds mu.
func (s *Session) evaluate() {
	r := s.machine.Round()
	if r.ReleaseIndex == nil {
		return
	}
	st := s.machine.Evaluate(s.proc.From(*r.ReleaseIndex))
	if st == nil {
		return
	}
	st.SessionID = s.id
	s.paused = true
	s.last = st

	budget, _ := st.Budget.Float64()
	s.metrics.RecordTransition(models.PhaseMonitoring, models.PhaseSettled)
	s.metrics.RecordSettlement(st.Hit, budget)
	s.log.Info("round settled",
		applogger.String("round", st.RoundID),
		applogger.Bool("hit", st.Hit),
		applogger.Int("decided_at", st.DecidedAt),
		applogger.String("delta", st.Delta.String()),
		applogger.String("budget", st.Budget.String()))

	out := *st
	s.export(mid.Record{SessionID: s.id, Settlement: &out})
}

// quote prices rect at sample in the background. At most one quote is in flight;
// results for an outdated proposal are dropped by the machine. Caller holds mu.
func (s *Session) quote(rect models.TargetRectangle, gen uint64, sample models.PriceSample) {
	if s.quoting {
		return
	}
	s.quoting = true
	s.sinceQuote = 0
	s.quotes.Add(1)

	go func() {
		defer s.quotes.Done()
		est, err := s.quoter.Quote(s.ctx, rect, sample.Index, sample.Value)

		s.mu.Lock()
		defer s.mu.Unlock()
		s.quoting = false

		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			if s.machine.Reject(gen) {
				s.metrics.RecordTransition(models.PhaseProposed, models.PhaseIdle)
				s.log.Warn("proposal rejected", applogger.Error(err))
			}
			return
		}
		if err := s.machine.AttachEstimate(gen, est); err != nil {
			s.log.Debug("estimate dropped", applogger.Error(err))
		}
	}()
}

func (s *Session) export(r mid.Record) {
	if s.sink == nil {
		return
	}
	if err := s.sink.Submit(r); err != nil {
		s.log.Debug("export skipped", applogger.Error(err))
	}
}
