// Package schedule provides read-only access to the airport table and the
// flight schedule. Two storage shapes exist in the wild: concrete-dated
// flights (one row per dated departure) and recurrent legs (an effective
// window plus day-of-week flags). Both are exposed behind the same Store
// interface; recurrent legs are expanded on read.
package schedule

import (
	"context"
	"time"
)

// Airport is one row of the airport table. Coordinates are in degrees,
// longitude first in storage order. HasLocation is false when the source
// document carries no location; such airports are never pruned by the
// geographic layover filter.
type Airport struct {
	Code        string
	Longitude   float64
	Latitude    float64
	HasLocation bool
}

// LightFlight carries the only flight fields the simulator needs. Arrival
// airport is a short code; the full airport document is never attached.
type LightFlight struct {
	TotalSeats     int
	DepartureUTC   time.Time
	ArrivalUTC     time.Time
	ArrivalAirport string
}

// Store is the read-only schedule interface the calculator consumes.
//
// FlightsDeparting returns every flight with total_seats > 0 leaving the
// airport within [day, day+24h), where day is truncated to a UTC calendar
// date. Results are safe to cache and must be treated as immutable.
//
// DirectSeatFlows aggregates total seats per (origin, destination) pair
// over flights departing in [start, end).
type Store interface {
	Airports(ctx context.Context) ([]Airport, error)
	FlightsDeparting(ctx context.Context, airport string, day time.Time) ([]LightFlight, error)
	DirectSeatFlows(ctx context.Context, start, end time.Time) (map[string]map[string]int, error)
}

// DayOf truncates an instant to its UTC calendar date.
func DayOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
