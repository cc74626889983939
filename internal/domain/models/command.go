package models

// CommandType names an input event from the rendering/input collaborator.
type CommandType string

const (
	CmdDragStart   CommandType = "drag_start"
	CmdDragMove    CommandType = "drag_move"
	CmdDragEnd     CommandType = "drag_end"
	CmdConfirm     CommandType = "confirm"
	CmdResume      CommandType = "resume"
	CmdAdjustStake CommandType = "adjust_stake"
	CmdZoom        CommandType = "zoom"
)

// Command is the transport-neutral form of an input event.
type Command struct {
	Type   CommandType `json:"type"`
	Point  Point       `json:"point"`
	Delta  int64       `json:"delta,omitempty"`
	Factor float64     `json:"factor,omitempty"`
}

// Snapshot is what the rendering collaborator needs to draw a frame.
type Snapshot struct {
	SessionID  string        `json:"session_id"`
	Index      int           `json:"index"`
	Price      float64       `json:"price"`
	Baseline   int           `json:"baseline"`
	FirstValue float64       `json:"first_value"`
	Paused     bool          `json:"paused"`
	Round      Round         `json:"round"`
	Draft      *ScreenRect   `json:"draft,omitempty"`
	Ledger     Ledger        `json:"ledger"`
	Viewport   Viewport      `json:"viewport"`
	Window     []PriceSample `json:"window"`
	Forward    []PriceSample `json:"forward,omitempty"`
}

// SeriesStats are diagnostics of the realized series.
type SeriesStats struct {
	Samples            int     `json:"samples"`
	RealizedVolatility float64 `json:"realized_volatility"`
	RealizedDrift      float64 `json:"realized_drift"`
	ConfiguredVol      float64 `json:"configured_volatility"`
	LastReturn         float64 `json:"last_return"`
	Window             int     `json:"window"`
}
