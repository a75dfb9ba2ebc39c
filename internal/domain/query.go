package domain

import "time"

// Query selects observations for one location over an inclusive date range.
type Query struct {
	Latitude  float64
	Longitude float64
	StartDate time.Time
	EndDate   time.Time
}
