package models

// Requests for the game HTTP endpoints.

type PointRequest struct {
	X float64 `json:"x" validate:"gte=0"`
	Y float64 `json:"y" validate:"gte=0"`
}

type StakeRequest struct {
	Delta int64 `json:"delta" validate:"required"`
}

type ZoomRequest struct {
	Factor float64 `json:"factor" default:"1.1" validate:"gt=0,lte=10"`
}

type SeriesRequest struct {
	N int `query:"n" json:"n" default:"200" validate:"gte=1,lte=100000"`
}

type EstimateRequest struct {
	StartValue float64 `json:"start_value" validate:"required"`
	Drift      float64 `json:"drift"`
	Volatility float64 `json:"volatility" validate:"gte=0"`
	DT         float64 `json:"dt" validate:"gt=0"`
	NumPaths   int     `json:"num_paths" default:"2000" validate:"lte=1000000"`
	NumSteps   int     `json:"num_steps" validate:"gte=1,lte=1000000"`
	StepLeft   int     `json:"step_left"`
	StepRight  int     `json:"step_right"`
	PriceLow   float64 `json:"price_low"`
	PriceHigh  float64 `json:"price_high"`
}

func (r *PointRequest) Point() Point { return Point{X: r.X, Y: r.Y} }

func (r *EstimateRequest) Query() BarrierQuery {
	return BarrierQuery{
		StartValue: r.StartValue,
		Drift:      r.Drift,
		Volatility: r.Volatility,
		DT:         r.DT,
		NumPaths:   r.NumPaths,
		NumSteps:   r.NumSteps,
		StepLeft:   r.StepLeft,
		StepRight:  r.StepRight,
		PriceLow:   r.PriceLow,
		PriceHigh:  r.PriceHigh,
	}
}
