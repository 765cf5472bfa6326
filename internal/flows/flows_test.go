package flows

import (
	"context"
	"math"
	"testing"
	"time"

	"flowsim/internal/schedule"
)

func TestPassengers(t *testing.T) {
	tests := []struct {
		seats int
		want  float64
	}{
		{0, 0},
		{100, (LoadRatioSlope*100 + LoadRatioIntercept) * 100},
		{180, (LoadRatioSlope*180 + LoadRatioIntercept) * 180},
	}
	for _, tt := range tests {
		if got := Passengers(tt.seats); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Passengers(%d) = %v, want %v", tt.seats, got, tt.want)
		}
	}

	// The load ratio rises with seat count but stays below one seat per
	// passenger for realistic aircraft sizes.
	small := Passengers(100) / 100
	large := Passengers(300) / 300
	if large <= small {
		t.Errorf("load ratio did not rise with seats: %v vs %v", small, large)
	}
	if large >= 1 {
		t.Errorf("load ratio %v >= 1 for 300 seats", large)
	}
}

func TestToPassengerFlowsDropsNonPositive(t *testing.T) {
	seats := SeatFlows{
		"JFK": {"LHR": 300, "CDG": 0},
		"LHR": {"JFK": 0},
	}

	pax := seats.ToPassengerFlows()

	if _, ok := pax["JFK"]["CDG"]; ok {
		t.Error("zero-seat pair survived the load-ratio conversion")
	}
	if _, ok := pax["LHR"]; ok {
		t.Error("origin with no positive flows should be absent")
	}
	want := Passengers(300)
	if got := pax["JFK"]["LHR"]; math.Abs(got-want) > 1e-9 {
		t.Errorf("JFK->LHR passengers = %v, want %v", got, want)
	}
}

func TestTotalFrom(t *testing.T) {
	pax := PassengerFlows{
		"JFK": {"LHR": 200.5, "CDG": 99.5},
	}
	if got := pax.TotalFrom("JFK"); math.Abs(got-300) > 1e-9 {
		t.Errorf("TotalFrom(JFK) = %v, want 300", got)
	}
	if got := pax.TotalFrom("LHR"); got != 0 {
		t.Errorf("TotalFrom(LHR) = %v, want 0", got)
	}
}

func TestComputeDirectSeatFlows(t *testing.T) {
	store := schedule.NewMemoryStore()
	day := time.Date(2016, 1, 4, 0, 0, 0, 0, time.UTC)
	store.AddFlight("JFK", schedule.LightFlight{
		TotalSeats:     180,
		DepartureUTC:   day.Add(9 * time.Hour),
		ArrivalUTC:     day.Add(16 * time.Hour),
		ArrivalAirport: "LHR",
	})
	store.AddFlight("JFK", schedule.LightFlight{
		TotalSeats:     120,
		DepartureUTC:   day.Add(33 * time.Hour),
		ArrivalUTC:     day.Add(40 * time.Hour),
		ArrivalAirport: "LHR",
	})

	seats, err := ComputeDirectSeatFlows(context.Background(), store, day, day.Add(48*time.Hour))
	if err != nil {
		t.Fatalf("ComputeDirectSeatFlows: %v", err)
	}
	if got := seats["JFK"]["LHR"]; got != 300 {
		t.Errorf("JFK->LHR seats = %d, want 300", got)
	}
}
