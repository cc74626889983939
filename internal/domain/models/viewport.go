package models

import "math"

// Point is a position in screen units as delivered by the input collaborator.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Dist returns the euclidean distance between two points.
func (p Point) Dist(q Point) float64 {
	return math.Hypot(q.X-p.X, q.Y-p.Y)
}

// ScreenRect is an axis-aligned rectangle in screen units.
type ScreenRect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// RectFromCorners normalizes two drag corners into a rectangle.
func RectFromCorners(a, b Point) ScreenRect {
	return ScreenRect{
		Left:   math.Min(a.X, b.X),
		Top:    math.Min(a.Y, b.Y),
		Width:  math.Abs(b.X - a.X),
		Height: math.Abs(b.Y - a.Y),
	}
}

func (r ScreenRect) Right() float64   { return r.Left + r.Width }
func (r ScreenRect) Bottom() float64  { return r.Top + r.Height }
func (r ScreenRect) CenterX() float64 { return r.Left + r.Width/2 }

// ContainsPoint is inclusive on all edges.
func (r ScreenRect) ContainsPoint(p Point) bool {
	return p.X >= r.Left && p.X <= r.Right() && p.Y >= r.Top && p.Y <= r.Bottom()
}

// Viewport maps screen units to (relative step, price). The anchor is the screen
// position of the reference price at the current step; y grows downwards.
type Viewport struct {
	AnchorX  float64 `json:"anchor_x"`
	AnchorY  float64 `json:"anchor_y"`
	SpacingX float64 `json:"spacing_x"`
	ScaleY   float64 `json:"scale_y"`
	ScaleMin float64 `json:"scale_min"`
	ScaleMax float64 `json:"scale_max"`
	RefValue float64 `json:"ref_value"`
}

// PriceAt converts a screen y into a price relative to ref.
func (v Viewport) PriceAt(y, ref float64) float64 {
	return ref + (v.AnchorY-y)/v.ScaleY
}

// StepAt converts a screen x into a step offset from the anchor.
func (v Viewport) StepAt(x float64) int {
	return int(math.Round((x - v.AnchorX) / v.SpacingX))
}

// Rectangle translates a screen rectangle into a target zone priced around ref.
func (v Viewport) Rectangle(r ScreenRect, ref float64) TargetRectangle {
	left := v.StepAt(r.Left)
	right := v.StepAt(r.Right())
	return TargetRectangle{
		StepLeft:  left,
		StepWidth: right - left,
		PriceLow:  v.PriceAt(r.Bottom(), ref),
		PriceHigh: v.PriceAt(r.Top, ref),
		Bounds:    r,
	}
}

// Zoom multiplies the vertical scale and clamps it.
func (v *Viewport) Zoom(factor float64) {
	if factor <= 0 || math.IsNaN(factor) || math.IsInf(factor, 0) {
		return
	}
	s := v.ScaleY * factor
	if v.ScaleMin > 0 && s < v.ScaleMin {
		s = v.ScaleMin
	}
	if v.ScaleMax > 0 && s > v.ScaleMax {
		s = v.ScaleMax
	}
	v.ScaleY = s
}
