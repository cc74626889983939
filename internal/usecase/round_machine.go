package usecase

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"QuotaGame/internal/domain/models"
)

var (
	ErrInvalidTransition  = errors.New("round: invalid transition")
	ErrRoundLocked        = errors.New("round: locked until settled and resumed")
	ErrEstimatePending    = errors.New("round: estimate pending")
	ErrStaleEstimate      = errors.New("round: estimate does not match the current proposal")
	ErrOutsideRectangle   = errors.New("round: confirm outside rectangle")
	ErrInsufficientBudget = errors.New("round: budget does not cover stake")
)

// RoundConfig holds the geometry thresholds of a draft, in screen units.
type RoundConfig struct {
	MinOffset float64
	MinDrag   float64
}

// RoundMachine owns the lifecycle of one round at a time and the ledger it settles into.
// It is not safe for concurrent use; Session serializes access.
type RoundMachine struct {
	cfg        RoundConfig
	round      models.Round
	ledger     models.Ledger
	dragFrom   models.Point
	dragTo     models.Point
	generation uint64
	newID      func() string
}

// NewRoundMachine creates a machine in Idle.
func NewRoundMachine(cfg RoundConfig, ledger models.Ledger) *RoundMachine {
	return &RoundMachine{
		cfg:    cfg,
		round:  models.Round{Phase: models.PhaseIdle},
		ledger: ledger,
		newID:  func() string { return uuid.NewString() },
	}
}

func (m *RoundMachine) Phase() models.Phase { return m.round.Phase }

// Generation identifies the current proposal; estimates carry it back.
func (m *RoundMachine) Generation() uint64 { return m.generation }

func (m *RoundMachine) Ledger() models.Ledger { return m.ledger }

// Round returns a deep copy of the live round.
func (m *RoundMachine) Round() models.Round {
	r := m.round
	if r.Rectangle != nil {
		v := *r.Rectangle
		r.Rectangle = &v
	}
	if r.Estimate != nil {
		v := *r.Estimate
		r.Estimate = &v
	}
	if r.ReleaseIndex != nil {
		v := *r.ReleaseIndex
		r.ReleaseIndex = &v
	}
	if r.ReleaseValue != nil {
		v := *r.ReleaseValue
		r.ReleaseValue = &v
	}
	if r.Outcome != nil {
		v := *r.Outcome
		r.Outcome = &v
	}
	return r
}

// Draft returns the rectangle being dragged, if any.
func (m *RoundMachine) Draft() *models.ScreenRect {
	if m.round.Phase != models.PhaseDrafting {
		return nil
	}
	r := models.RectFromCorners(m.dragFrom, m.dragTo)
	return &r
}

// DragStart begins a new draft. A pending proposal is discarded.
func (m *RoundMachine) DragStart(p models.Point) error {
	switch m.round.Phase {
	case models.PhaseMonitoring, models.PhaseSettled:
		return ErrRoundLocked
	}
	m.generation++
	m.round = models.Round{ID: m.newID(), Phase: models.PhaseDrafting}
	m.dragFrom, m.dragTo = p, p
	return nil
}

func (m *RoundMachine) DragMove(p models.Point) error {
	if m.round.Phase != models.PhaseDrafting {
		return fmt.Errorf("%w: drag move in %s", ErrInvalidTransition, m.round.Phase)
	}
	m.dragTo = p
	return nil
}

// DragEnd closes the draft. A draft that is too short or too close to the anchor is
// discarded silently and the machine returns to Idle with a nil rectangle.
func (m *RoundMachine) DragEnd(p models.Point, view models.Viewport, ref float64) (*models.TargetRectangle, uint64, error) {
	if m.round.Phase != models.PhaseDrafting {
		return nil, 0, fmt.Errorf("%w: drag end in %s", ErrInvalidTransition, m.round.Phase)
	}
	m.dragTo = p
	screen := models.RectFromCorners(m.dragFrom, m.dragTo)
	if m.dragFrom.Dist(m.dragTo) < m.cfg.MinDrag || screen.CenterX()-view.AnchorX < m.cfg.MinOffset {
		m.round = models.Round{Phase: models.PhaseIdle}
		return nil, 0, nil
	}

	rect := view.Rectangle(screen, ref)
	m.generation++
	m.round.Phase = models.PhaseProposed
	m.round.Rectangle = &rect
	out := rect
	return &out, m.generation, nil
}

// AttachEstimate sets the odds of the current proposal. Estimates for an older
// proposal are refused.
func (m *RoundMachine) AttachEstimate(gen uint64, est models.BarrierEstimate) error {
	if m.round.Phase != models.PhaseProposed || gen != m.generation {
		return ErrStaleEstimate
	}
	m.round.Estimate = &est
	return nil
}

// Reject drops a proposal whose rectangle could not be priced.
func (m *RoundMachine) Reject(gen uint64) bool {
	if m.round.Phase != models.PhaseProposed || gen != m.generation {
		return false
	}
	m.round = models.Round{Phase: models.PhaseIdle}
	return true
}

// Confirm locks the proposal at the release sample. The attached estimate must have
// been computed at exactly that sample.
func (m *RoundMachine) Confirm(p models.Point, releaseIndex int, releaseValue float64) error {
	if m.round.Phase != models.PhaseProposed {
		return fmt.Errorf("%w: confirm in %s", ErrInvalidTransition, m.round.Phase)
	}
	if !m.round.Rectangle.Bounds.ContainsPoint(p) {
		return ErrOutsideRectangle
	}
	if m.round.Estimate == nil || m.round.Estimate.BasisIndex != releaseIndex {
		return ErrEstimatePending
	}
	if m.ledger.Budget.LessThan(decimal.NewFromInt(m.ledger.Stake)) {
		return ErrInsufficientBudget
	}

	m.round.ReleaseIndex = &releaseIndex
	m.round.ReleaseValue = &releaseValue
	m.round.Stake = m.ledger.Stake
	m.round.Phase = models.PhaseMonitoring
	return nil
}

// Evaluate checks the forward path against the locked rectangle. forward holds samples
// with Index >= release index. The returned settlement is non-nil exactly once per round.
func (m *RoundMachine) Evaluate(forward []models.PriceSample) *models.Settlement {
	if m.round.Phase != models.PhaseMonitoring || m.round.Settled {
		return nil
	}
	release := *m.round.ReleaseIndex
	rect := m.round.Rectangle

	if m.round.Outcome == nil {
		for _, s := range forward {
			j := s.Index - release
			if j < 0 {
				continue
			}
			if j > rect.StepRight() {
				break
			}
			if rect.Contains(j, s.Value) {
				m.round.Outcome = &models.Outcome{Hit: true, HitIndex: s.Index, HitValue: s.Value, DecidedAt: s.Index}
				break
			}
		}
	}
	if m.round.Outcome == nil && len(forward) > 0 {
		last := forward[len(forward)-1]
		if last.Index-release >= rect.StepRight() {
			m.round.Outcome = &models.Outcome{Hit: false, DecidedAt: last.Index}
		}
	}
	if m.round.Outcome == nil {
		return nil
	}
	return m.settle()
}

func (m *RoundMachine) settle() *models.Settlement {
	stake := decimal.NewFromInt(m.round.Stake)
	mult := m.round.Estimate.Multiplier

	delta := stake.Neg()
	if m.round.Outcome.Hit {
		delta = stake.Mul(decimal.NewFromFloat(mult))
	}
	m.ledger.Budget = m.ledger.Budget.Add(delta)
	m.round.Payout = delta
	m.round.Settled = true
	m.round.Phase = models.PhaseSettled

	return &models.Settlement{
		RoundID:      m.round.ID,
		Hit:          m.round.Outcome.Hit,
		Stake:        m.round.Stake,
		Multiplier:   mult,
		Probability:  m.round.Estimate.Probability,
		Delta:        delta,
		Budget:       m.ledger.Budget,
		ReleaseIndex: *m.round.ReleaseIndex,
		DecidedAt:    m.round.Outcome.DecidedAt,
	}
}

// Resume clears a settled round.
func (m *RoundMachine) Resume() error {
	if m.round.Phase != models.PhaseSettled {
		return fmt.Errorf("%w: resume in %s", ErrInvalidTransition, m.round.Phase)
	}
	m.round = models.Round{Phase: models.PhaseIdle}
	return nil
}

// AdjustStake moves the stake by delta within its bounds. The stake of a confirmed
// round is already locked.
func (m *RoundMachine) AdjustStake(delta int64) (int64, error) {
	if m.round.Phase == models.PhaseMonitoring {
		return m.ledger.Stake, ErrRoundLocked
	}
	s := m.ledger.Stake + delta
	if s < m.ledger.StakeMin {
		s = m.ledger.StakeMin
	}
	if s > m.ledger.StakeMax {
		s = m.ledger.StakeMax
	}
	m.ledger.Stake = s
	return s, nil
}
