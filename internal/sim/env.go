package sim

import (
	"context"
	"fmt"
	"sort"
	"time"

	"flowsim/internal/flows"
	"flowsim/internal/geo"
	"flowsim/internal/schedule"
)

// Env holds the data a calculator needs that is immutable for the life of
// the process: the airport table, the distance matrix, and the direct-flow
// aggregates for the simulation window. One Env is safely shared by every
// worker; per-job state lives in Calculator.
type Env struct {
	store    schedule.Store
	matrix   *geo.Matrix
	airports map[string]schedule.Airport

	seatFlows      flows.SeatFlows
	passengerFlows flows.PassengerFlows

	// aggregatedHops caches the aggregated-mode candidate list per origin
	// in a deterministic order, so fixed seeds reproduce itineraries.
	aggregatedHops map[string][]hop
}

// NewEnv loads the airport table, builds the distance matrix, and derives
// passenger flows from the given seat aggregates. seatFlows may be nil when
// only scheduled mode without result scaling is needed.
func NewEnv(ctx context.Context, store schedule.Store, seatFlows flows.SeatFlows) (*Env, error) {
	airports, err := store.Airports(ctx)
	if err != nil {
		return nil, fmt.Errorf("load airports: %w", err)
	}

	byCode := make(map[string]schedule.Airport, len(airports))
	coords := make(map[string]geo.Coord, len(airports))
	for _, a := range airports {
		byCode[a.Code] = a
		if a.HasLocation {
			coords[a.Code] = geo.Coord{Longitude: a.Longitude, Latitude: a.Latitude}
		}
	}

	env := &Env{
		store:     store,
		matrix:    geo.BuildMatrix(coords),
		airports:  byCode,
		seatFlows: seatFlows,
	}

	if seatFlows != nil {
		env.passengerFlows = seatFlows.ToPassengerFlows()
		env.aggregatedHops = make(map[string][]hop, len(env.passengerFlows))
		for origin, dests := range env.passengerFlows {
			hs := make([]hop, 0, len(dests))
			for dest, pax := range dests {
				hs = append(hs, hop{destination: dest, weight: pax})
			}
			sort.Slice(hs, func(i, j int) bool { return hs[i].destination < hs[j].destination })
			env.aggregatedHops[origin] = hs
		}
	}

	return env, nil
}

// Matrix exposes the distance matrix for result aggregation and tests.
func (e *Env) Matrix() *geo.Matrix {
	return e.matrix
}

// PassengerFlows exposes the direct passenger-flow aggregates.
func (e *Env) PassengerFlows() flows.PassengerFlows {
	return e.passengerFlows
}

// HasAirport reports whether the code is present in the airport table.
func (e *Env) HasAirport(code string) bool {
	_, ok := e.airports[code]
	return ok
}

// hop is one candidate next leg: where it goes, its sampling weight, and in
// scheduled mode when it lands.
type hop struct {
	destination string
	weight      float64
	arrival     time.Time
}
