// Package results persists simulation output: per-destination passenger
// flow records in Postgres and raw simulated itineraries in ClickHouse.
package results

import (
	"time"

	"flowsim/internal/sim"
)

// FlowRecord is one (origin, terminal) row of the passenger-flow heat map.
type FlowRecord struct {
	DepartureAirport    string
	ArrivalAirport      string
	EstimatedPassengers float64
	AverageDistanceKm   float64
	RecordDate          time.Time
	Start               time.Time
	End                 time.Time
	PeriodDays          int
	SimGroup            string
}

// BuildFlowRecords converts calculator statistics into persistable rows.
// Terminal flows are scaled to passenger estimates by the origin's total
// direct passenger volume, divided by the expected seats per passenger so
// multi-leg journeys are not double counted.
func BuildFlowRecords(origin string, stats map[string]sim.DestinationStats, totalDirectPassengers float64, start, end time.Time, simGroup string) []FlowRecord {
	seatsPerPassenger := sim.SeatsPerPassenger()
	now := time.Now().UTC()
	periodDays := int(end.Sub(start).Hours() / 24)

	records := make([]FlowRecord, 0, len(stats))
	for terminal, s := range stats {
		records = append(records, FlowRecord{
			DepartureAirport:    origin,
			ArrivalAirport:      terminal,
			EstimatedPassengers: s.TerminalFlow * totalDirectPassengers / seatsPerPassenger,
			AverageDistanceKm:   s.AverageDistanceKm,
			RecordDate:          now,
			Start:               start,
			End:                 end,
			PeriodDays:          periodDays,
			SimGroup:            simGroup,
		})
	}
	return records
}
