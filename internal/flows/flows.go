// Package flows aggregates direct origin→destination traffic over a time
// window and converts seat counts to expected passengers via the load-ratio
// regression.
package flows

import (
	"context"
	"fmt"
	"time"

	"flowsim/internal/schedule"
)

// Load-ratio regression constants, fit offline against BTS T-100 segment
// data: passengers/seats ~ LoadRatioSlope*seats_per_flight + LoadRatioIntercept.
const (
	LoadRatioSlope     = 8.61e-4
	LoadRatioIntercept = 0.6747
)

// Passengers converts a seat total to expected passengers.
func Passengers(seats int) float64 {
	s := float64(seats)
	return (LoadRatioSlope*s + LoadRatioIntercept) * s
}

// SeatFlows maps origin → destination → summed seats over a window.
type SeatFlows map[string]map[string]int

// PassengerFlows maps origin → destination → expected passengers.
type PassengerFlows map[string]map[string]float64

// ComputeDirectSeatFlows asks the store for origin→destination seat totals
// over [start, end).
func ComputeDirectSeatFlows(ctx context.Context, store schedule.Store, start, end time.Time) (SeatFlows, error) {
	raw, err := store.DirectSeatFlows(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("direct seat flows: %w", err)
	}
	return SeatFlows(raw), nil
}

// ToPassengerFlows applies the load-ratio model to every entry, dropping
// pairs whose expected passenger count is not strictly positive.
func (s SeatFlows) ToPassengerFlows() PassengerFlows {
	out := make(PassengerFlows, len(s))
	for origin, dests := range s {
		for dest, seats := range dests {
			p := Passengers(seats)
			if p <= 0 {
				continue
			}
			if out[origin] == nil {
				out[origin] = make(map[string]float64, len(dests))
			}
			out[origin][dest] = p
		}
	}
	return out
}

// TotalFrom sums expected passengers over every destination reachable
// directly from origin.
func (p PassengerFlows) TotalFrom(origin string) float64 {
	var total float64
	for _, v := range p[origin] {
		total += v
	}
	return total
}
