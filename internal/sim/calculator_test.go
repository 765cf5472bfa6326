package sim

import (
	"context"
	"math"
	"reflect"
	"testing"
	"time"

	"flowsim/internal/flows"
	"flowsim/internal/schedule"
)

var (
	windowStart = time.Date(2016, 1, 4, 0, 0, 0, 0, time.UTC)
	windowEnd   = time.Date(2016, 1, 10, 0, 0, 0, 0, time.UTC)
)

// lineStore builds airports on the equator at 5-degree spacing with one
// daily flight between consecutive airports, covering the sampling window
// plus the extra arrival day.
func lineStore(t *testing.T, codes []string) *schedule.MemoryStore {
	t.Helper()
	store := schedule.NewMemoryStore()
	for i, code := range codes {
		store.AddAirport(code, float64(i)*5, 0)
	}
	for day := windowStart; !day.After(windowEnd.Add(24 * time.Hour)); day = day.Add(24 * time.Hour) {
		for i := 0; i+1 < len(codes); i++ {
			dep := day.Add(time.Duration(8+3*i) * time.Hour)
			store.AddFlight(codes[i], schedule.LightFlight{
				TotalSeats:     150,
				DepartureUTC:   dep,
				ArrivalUTC:     dep.Add(2 * time.Hour),
				ArrivalAirport: codes[i+1],
			})
		}
	}
	return store
}

// aggregatedEnv builds a complete digraph over airports with unknown
// locations and uniform direct flows, which makes every layover logical and
// every hop list non-empty.
func aggregatedEnv(t *testing.T, codes []string) *Env {
	t.Helper()
	store := schedule.NewMemoryStore()
	seatFlows := make(flows.SeatFlows)
	for _, a := range codes {
		store.AddAirportNoLocation(a)
		seatFlows[a] = make(map[string]int)
		for _, b := range codes {
			if a != b {
				seatFlows[a][b] = 5000
			}
		}
	}
	env, err := NewEnv(context.Background(), store, seatFlows)
	if err != nil {
		t.Fatalf("NewEnv: %v", err)
	}
	return env
}

func TestCalculateSingleFlight(t *testing.T) {
	// Only X->Y exists; every productive passenger must end at Y.
	store := lineStore(t, []string{"XXX", "YYY"})
	env, err := NewEnv(context.Background(), store, nil)
	if err != nil {
		t.Fatalf("NewEnv: %v", err)
	}

	calc := env.NewCalculator(ModeScheduled, WithSeed(1))
	stats, err := calc.Calculate(context.Background(), "XXX", 1000, windowStart, windowEnd)
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}

	if _, ok := stats["XXX"]; ok {
		t.Errorf("origin appeared as a terminal: %+v", stats["XXX"])
	}
	y, ok := stats["YYY"]
	if !ok {
		t.Fatalf("no flow to YYY: %v", stats)
	}
	if y.TerminalFlow != 1.0 {
		t.Errorf("TerminalFlow[YYY] = %v, want 1.0", y.TerminalFlow)
	}
	if y.AverageLegs != 1.0 {
		t.Errorf("AverageLegs[YYY] = %v, want 1.0", y.AverageLegs)
	}
}

func TestCalculateTwoHopRatio(t *testing.T) {
	// X->Y->Z line: passengers end at Y with probability T(1) and otherwise
	// continue to Z, so the Y:Z split matches p(1):p(2) normalised (with the
	// truncated >2-leg tail folded into Z).
	store := lineStore(t, []string{"XXX", "YYY", "ZZZ"})
	env, err := NewEnv(context.Background(), store, nil)
	if err != nil {
		t.Fatalf("NewEnv: %v", err)
	}

	calc := env.NewCalculator(ModeScheduled, WithSeed(2))
	stats, err := calc.Calculate(context.Background(), "XXX", 2000, windowStart, windowEnd)
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}

	total := stats["YYY"].TerminalFlow + stats["ZZZ"].TerminalFlow
	if math.Abs(total-1.0) > 0.005 {
		t.Errorf("flow[YYY]+flow[ZZZ] = %v, want 1.0", total)
	}

	wantY := LegProbability[1] / (LegProbability[1] + LegProbability[2])
	gotY := stats["YYY"].TerminalFlow / total
	if math.Abs(gotY-wantY) > 0.05 {
		t.Errorf("normalised flow[YYY] = %v, want about %v", gotY, wantY)
	}
}

func TestFlowConservationAndOriginAbsence(t *testing.T) {
	env := aggregatedEnv(t, []string{"AAA", "BBB", "CCC", "DDD", "EEE", "FFF"})

	calc := env.NewCalculator(ModeAggregated, WithSeed(3))
	stats, err := calc.Calculate(context.Background(), "AAA", 2000, windowStart, windowEnd)
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}

	var sum float64
	for terminal, s := range stats {
		if terminal == "AAA" {
			t.Errorf("origin appeared as a terminal with flow %v", s.TerminalFlow)
		}
		sum += s.TerminalFlow
	}
	if math.Abs(sum-1.0) > 0.005 {
		t.Errorf("terminal flows sum to %v, want 1.0", sum)
	}
}

func TestLegDistributionMatch(t *testing.T) {
	// With the legacy aggregated indexing off, both branches use T(k) and
	// the itinerary length distribution is exactly the leg distribution.
	env := aggregatedEnv(t, []string{"AAA", "BBB", "CCC", "DDD", "EEE", "FFF"})

	calc := env.NewCalculator(ModeAggregated, WithSeed(4), WithLegacyAggregatedIndexing(false))
	itineraries, err := calc.CalculateItineraries(context.Background(), "AAA", 5000, windowStart, windowEnd)
	if err != nil {
		t.Fatalf("CalculateItineraries: %v", err)
	}
	if len(itineraries) != 5000 {
		t.Fatalf("collected %d itineraries, want 5000", len(itineraries))
	}

	counts := make([]int, MaxLegs+2)
	for _, itinerary := range itineraries {
		counts[len(itinerary)-1]++
	}
	for k := 1; k <= MaxLegs; k++ {
		got := float64(counts[k]) / float64(len(itineraries))
		if math.Abs(got-LegProbability[k]) > 0.03 {
			t.Errorf("empirical p(%d) = %v, want %v ± 0.03", k, got, LegProbability[k])
		}
	}
}

func TestSampleItineraryBounds(t *testing.T) {
	env := aggregatedEnv(t, []string{"AAA", "BBB", "CCC", "DDD"})

	calc := env.NewCalculator(ModeAggregated, WithSeed(5))
	for i := 0; i < 2000; i++ {
		itinerary, err := calc.SampleItinerary(context.Background(), "AAA", windowStart, windowEnd)
		if err != nil {
			t.Fatalf("SampleItinerary: %v", err)
		}
		if len(itinerary) > MaxLegs+1 {
			t.Fatalf("itinerary has %d airports, limit is %d: %v", len(itinerary), MaxLegs+1, itinerary)
		}
		if itinerary[0] != "AAA" {
			t.Fatalf("itinerary does not start at origin: %v", itinerary)
		}
	}
}

func TestSampledItinerariesHaveLogicalLayovers(t *testing.T) {
	store := lineStore(t, []string{"AAA", "BBB", "CCC", "DDD", "EEE"})
	env, err := NewEnv(context.Background(), store, nil)
	if err != nil {
		t.Fatalf("NewEnv: %v", err)
	}

	calc := env.NewCalculator(ModeScheduled, WithSeed(6))
	itineraries, err := calc.CalculateItineraries(context.Background(), "AAA", 500, windowStart, windowEnd)
	if err != nil {
		t.Fatalf("CalculateItineraries: %v", err)
	}
	if len(itineraries) == 0 {
		t.Fatal("no productive itineraries sampled")
	}
	for _, itinerary := range itineraries {
		if len(itinerary) < 3 {
			continue
		}
		if !env.Matrix().CheckLogicalLayovers(itinerary) {
			t.Errorf("emitted itinerary with illogical layover: %v", itinerary)
		}
	}
}

func TestDeterministicUnderFixedSeed(t *testing.T) {
	env := aggregatedEnv(t, []string{"AAA", "BBB", "CCC", "DDD", "EEE"})

	first, err := env.NewCalculator(ModeAggregated, WithSeed(42)).
		Calculate(context.Background(), "AAA", 2000, windowStart, windowEnd)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := env.NewCalculator(ModeAggregated, WithSeed(42)).
		Calculate(context.Background(), "AAA", 2000, windowStart, windowEnd)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Errorf("fixed-seed runs differ:\nfirst:  %v\nsecond: %v", first, second)
	}
}

func TestCalculateIsolatedOriginBailsOut(t *testing.T) {
	// The airport exists but has no outgoing flights; the calculator must
	// give up after n consecutive unproductive samples, not loop.
	store := schedule.NewMemoryStore()
	store.AddAirport("AAA", 0, 0)
	store.AddAirport("BBB", 5, 0)
	env, err := NewEnv(context.Background(), store, nil)
	if err != nil {
		t.Fatalf("NewEnv: %v", err)
	}

	calc := env.NewCalculator(ModeScheduled, WithSeed(7))
	itineraries, err := calc.CalculateItineraries(context.Background(), "AAA", 100, windowStart, windowEnd)
	if err != nil {
		t.Fatalf("CalculateItineraries: %v", err)
	}
	if len(itineraries) != 0 {
		t.Errorf("got %d itineraries from an isolated origin, want 0", len(itineraries))
	}
}

func TestCalculateUnknownOrigin(t *testing.T) {
	env := aggregatedEnv(t, []string{"AAA", "BBB"})

	stats, err := env.NewCalculator(ModeAggregated, WithSeed(8)).
		Calculate(context.Background(), "QQQ", 100, windowStart, windowEnd)
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if len(stats) != 0 {
		t.Errorf("unknown origin produced stats: %v", stats)
	}
}

func TestAggregatedOriginWithoutFlow(t *testing.T) {
	// Present in the airport table but absent from the flow aggregates.
	store := schedule.NewMemoryStore()
	store.AddAirportNoLocation("AAA")
	store.AddAirportNoLocation("BBB")
	store.AddAirportNoLocation("CCC")
	seatFlows := flows.SeatFlows{"BBB": {"CCC": 1000}}
	env, err := NewEnv(context.Background(), store, seatFlows)
	if err != nil {
		t.Fatalf("NewEnv: %v", err)
	}

	itineraries, err := env.NewCalculator(ModeAggregated, WithSeed(9)).
		CalculateItineraries(context.Background(), "AAA", 100, windowStart, windowEnd)
	if err != nil {
		t.Fatalf("CalculateItineraries: %v", err)
	}
	if itineraries != nil {
		t.Errorf("flowless origin produced itineraries: %v", itineraries)
	}
}

func TestCalculateCancellation(t *testing.T) {
	env := aggregatedEnv(t, []string{"AAA", "BBB", "CCC"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := env.NewCalculator(ModeAggregated, WithSeed(10)).
		Calculate(ctx, "AAA", 1000, windowStart, windowEnd)
	if err != context.Canceled {
		t.Errorf("Calculate on cancelled context = %v, want context.Canceled", err)
	}
}

func TestAggregate(t *testing.T) {
	env := aggregatedEnv(t, []string{"AAA", "BBB", "CCC"})
	calc := env.NewCalculator(ModeAggregated)

	itineraries := [][]string{
		{"AAA", "BBB"},
		{"AAA", "BBB"},
		{"AAA", "CCC", "BBB"},
		{"AAA", "CCC"},
	}
	// n stays the denominator even when fewer itineraries were collected.
	stats := calc.Aggregate(itineraries, 8)

	if got := stats["BBB"].TerminalFlow; got != 3.0/8 {
		t.Errorf("TerminalFlow[BBB] = %v, want 0.375", got)
	}
	if got := stats["CCC"].TerminalFlow; got != 1.0/8 {
		t.Errorf("TerminalFlow[CCC] = %v, want 0.125", got)
	}
	if got := stats["BBB"].AverageLegs; math.Abs(got-4.0/3) > 1e-12 {
		t.Errorf("AverageLegs[BBB] = %v, want 4/3", got)
	}
}
