// Package jobs defines the simulation job contract and the NATS-backed
// queue that carries it. Payloads are JSON; dates travel as ISO-8601 date
// strings because the broker does not preserve datetime values.
package jobs

import (
	"fmt"
	"time"
)

// NATS subjects and the shared queue group. Queue-group subscription gives
// at-most-one delivery per job across all workers.
const (
	SubjectCalculateFlows     = "flowsim.jobs.calculate"
	SubjectSimulatePassengers = "flowsim.jobs.simulate"
	QueueGroup                = "flowsim-workers"
)

// DateLayout is the wire format for job dates.
const DateLayout = "2006-01-02"

// CalculateFlowsJob asks a worker to simulate flows from one origin over a
// window and persist the per-destination records under SimGroup.
type CalculateFlowsJob struct {
	ID        string `json:"id"`
	Origin    string `json:"origin"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	SimGroup  string `json:"sim_group"`
	// Seed, when non-nil, fixes the calculator RNG for reproducible runs.
	Seed *int64 `json:"seed,omitempty"`
}

// SimulatePassengersJob asks a worker to sample Passengers productive
// itineraries from Origin and archive them under SimulationID. A job that
// produces zero productive itineraries fails.
type SimulatePassengersJob struct {
	ID           string `json:"id"`
	SimulationID string `json:"simulation_id"`
	Origin       string `json:"origin"`
	Passengers   int    `json:"passengers"`
	StartDate    string `json:"start_date"`
	EndDate      string `json:"end_date"`
	IncludeStops bool   `json:"include_stops,omitempty"`
	// NotifyEmail, when set, receives a completion message once the job
	// finishes.
	NotifyEmail string `json:"notify_email,omitempty"`
	Seed        *int64 `json:"seed,omitempty"`
}

// ParseWindow converts the wire dates into UTC instants.
func ParseWindow(startDate, endDate string) (time.Time, time.Time, error) {
	start, err := time.ParseInLocation(DateLayout, startDate, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse start date %q: %w", startDate, err)
	}
	end, err := time.ParseInLocation(DateLayout, endDate, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse end date %q: %w", endDate, err)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("end date %s before start date %s", endDate, startDate)
	}
	return start, end, nil
}
