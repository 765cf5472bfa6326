package schedule

import (
	"context"
	"sort"
	"time"
)

// MemoryStore is an in-memory Store for tests and fixtures.
type MemoryStore struct {
	airports []Airport
	flights  map[string][]LightFlight // keyed by departure airport
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{flights: make(map[string][]LightFlight)}
}

// AddAirport registers an airport with a known location.
func (s *MemoryStore) AddAirport(code string, longitude, latitude float64) {
	s.airports = append(s.airports, Airport{
		Code: code, Longitude: longitude, Latitude: latitude, HasLocation: true,
	})
}

// AddAirportNoLocation registers an airport with an unknown location.
func (s *MemoryStore) AddAirportNoLocation(code string) {
	s.airports = append(s.airports, Airport{Code: code})
}

// AddFlight registers one concrete-dated flight.
func (s *MemoryStore) AddFlight(departure string, f LightFlight) {
	s.flights[departure] = append(s.flights[departure], f)
}

// Airports returns the registered airports.
func (s *MemoryStore) Airports(ctx context.Context) ([]Airport, error) {
	out := make([]Airport, len(s.airports))
	copy(out, s.airports)
	return out, nil
}

// FlightsDeparting filters the registered flights to the given UTC day.
func (s *MemoryStore) FlightsDeparting(ctx context.Context, airport string, day time.Time) ([]LightFlight, error) {
	day = DayOf(day)
	end := day.Add(24 * time.Hour)
	var out []LightFlight
	for _, f := range s.flights[airport] {
		if f.TotalSeats <= 0 {
			continue
		}
		if f.DepartureUTC.Before(day) || !f.DepartureUTC.Before(end) {
			continue
		}
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DepartureUTC.Equal(out[j].DepartureUTC) {
			return out[i].DepartureUTC.Before(out[j].DepartureUTC)
		}
		return out[i].ArrivalAirport < out[j].ArrivalAirport
	})
	return out, nil
}

// DirectSeatFlows aggregates seats per (origin, destination) over the window.
func (s *MemoryStore) DirectSeatFlows(ctx context.Context, start, end time.Time) (map[string]map[string]int, error) {
	flows := make(map[string]map[string]int)
	for origin, fs := range s.flights {
		for _, f := range fs {
			if f.TotalSeats <= 0 {
				continue
			}
			if f.DepartureUTC.Before(start) || !f.DepartureUTC.Before(end) {
				continue
			}
			if flows[origin] == nil {
				flows[origin] = make(map[string]int)
			}
			flows[origin][f.ArrivalAirport] += f.TotalSeats
		}
	}
	return flows, nil
}
