package models

import "github.com/shopspring/decimal"

// Phase is the lifecycle state of a round.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseDrafting   Phase = "drafting"
	PhaseProposed   Phase = "proposed"
	PhaseMonitoring Phase = "monitoring"
	PhaseSettled    Phase = "settled"
)

// TargetRectangle is a zone in (relative step, price) space. Steps are counted from
// the release step of the round.
type TargetRectangle struct {
	StepLeft  int        `json:"step_left"`
	StepWidth int        `json:"step_width"`
	PriceLow  float64    `json:"price_low"`
	PriceHigh float64    `json:"price_high"`
	Bounds    ScreenRect `json:"bounds"`
}

// StepRight is the last relative step covered by the rectangle.
func (r TargetRectangle) StepRight() int { return r.StepLeft + r.StepWidth }

// Contains reports whether a value at relative step j lies inside the zone.
func (r TargetRectangle) Contains(j int, v float64) bool {
	return j >= r.StepLeft && j <= r.StepRight() && v >= r.PriceLow && v <= r.PriceHigh
}

// BarrierEstimate is the Monte Carlo hit probability for a rectangle and the payout
// multiplier derived from it. BasisIndex/BasisValue identify the price it was computed at.
type BarrierEstimate struct {
	Probability      float64 `json:"probability"`
	Multiplier       float64 `json:"multiplier"`
	Paths            int     `json:"paths"`
	Hits             int     `json:"hits"`
	StdErr           float64 `json:"std_err"`
	MeanFirstPassage float64 `json:"mean_first_passage"`
	BasisIndex       int     `json:"basis_index"`
	BasisValue       float64 `json:"basis_value"`
}

// Outcome is the settlement verdict of a round.
type Outcome struct {
	Hit       bool    `json:"hit"`
	HitIndex  int     `json:"hit_index,omitempty"`
	HitValue  float64 `json:"hit_value,omitempty"`
	DecidedAt int     `json:"decided_at"`
}

// Round is the aggregate state of one betting cycle.
type Round struct {
	ID           string           `json:"id"`
	Phase        Phase            `json:"phase"`
	Rectangle    *TargetRectangle `json:"rectangle,omitempty"`
	Estimate     *BarrierEstimate `json:"estimate,omitempty"`
	ReleaseIndex *int             `json:"release_index,omitempty"`
	ReleaseValue *float64         `json:"release_value,omitempty"`
	Stake        int64            `json:"stake,omitempty"`
	Outcome      *Outcome         `json:"outcome,omitempty"`
	Settled      bool             `json:"settled"`
	Payout       decimal.Decimal  `json:"payout"`
}

// Ledger is the player's money. Only settlement mutates Budget.
type Ledger struct {
	Budget    decimal.Decimal `json:"budget"`
	Stake     int64           `json:"stake"`
	StakeMin  int64           `json:"stake_min"`
	StakeMax  int64           `json:"stake_max"`
	StakeStep int64           `json:"stake_step"`
}

// Settlement is emitted once per settled round.
type Settlement struct {
	SessionID    string          `json:"session_id"`
	RoundID      string          `json:"round_id"`
	Hit          bool            `json:"hit"`
	Stake        int64           `json:"stake"`
	Multiplier   float64         `json:"multiplier"`
	Probability  float64         `json:"probability"`
	Delta        decimal.Decimal `json:"delta"`
	Budget       decimal.Decimal `json:"budget"`
	ReleaseIndex int             `json:"release_index"`
	DecidedAt    int             `json:"decided_at"`
}

// BarrierQuery holds the inputs of one barrier estimate.
type BarrierQuery struct {
	StartValue float64
	Drift      float64
	Volatility float64
	DT         float64
	NumPaths   int
	NumSteps   int
	StepLeft   int
	StepRight  int
	PriceLow   float64
	PriceHigh  float64
}
