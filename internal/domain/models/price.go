package models

import "time"

// PriceSample is one point of the realized price series.
type PriceSample struct {
	Index int       `json:"i"`
	Value float64   `json:"v"`
	At    time.Time `json:"t"`
}
