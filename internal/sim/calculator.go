package sim

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"flowsim/internal/flows"
)

// Mode selects how next-hop candidates are enumerated.
type Mode int

const (
	// ModeScheduled samples over dated flights with Poisson layover
	// weighting.
	ModeScheduled Mode = iota
	// ModeAggregated samples over windowed direct passenger flows with no
	// time axis.
	ModeAggregated
)

// Calculator samples synthetic passenger itineraries and aggregates their
// terminal airports. It is cheap to construct: the heavy immutable state
// lives in Env. One calculator serves one job; its RNG is not safe for
// concurrent use.
type Calculator struct {
	env  *Env
	mode Mode

	// legacyAggregatedIndexing reproduces the original aggregated-mode
	// behaviour of taking the ongoing-branch termination probability at
	// leg k-1 instead of k. It looks like an off-by-one but it is what the
	// published flow datasets were produced with, so it defaults to on.
	legacyAggregatedIndexing bool

	rng *rand.Rand
}

// Option configures a Calculator.
type Option func(*Calculator)

// WithSeed fixes the RNG seed; two calculators with identical inputs and
// seed produce identical itineraries.
func WithSeed(seed int64) Option {
	return func(c *Calculator) { c.rng = rand.New(rand.NewSource(seed)) }
}

// WithLegacyAggregatedIndexing toggles the aggregated-mode k-1 ongoing
// indexing described above.
func WithLegacyAggregatedIndexing(on bool) Option {
	return func(c *Calculator) { c.legacyAggregatedIndexing = on }
}

// NewCalculator builds a per-job calculator over the shared environment.
func (e *Env) NewCalculator(mode Mode, opts ...Option) *Calculator {
	c := &Calculator{
		env:                      e,
		mode:                     mode,
		legacyAggregatedIndexing: true,
		rng:                      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SampleItinerary simulates one passenger arriving at origin at a uniform
// random instant in [t0, t1+1d] and returns the airports they visit, origin
// first. A length-1 result means the passenger found no outgoing flight at
// all (unproductive).
//
// The hop walk keeps the exact accumulator form of the probability model:
// with inflow_sofar the cumulative share of previously passed hops, each
// hop's terminal and ongoing shares are divided by (1 - inflow_sofar), so
// the marginal probability of reaching any destination equals its weight
// share w/W regardless of iteration order.
func (c *Calculator) SampleItinerary(ctx context.Context, origin string, t0, t1 time.Time) ([]string, error) {
	var tau time.Time
	if c.mode == ModeScheduled {
		span := int64(t1.Sub(t0)/time.Second) + 24*60*60
		if span < 0 {
			return nil, fmt.Errorf("end date %v before start date %v", t1, t0)
		}
		tau = t0.Add(time.Duration(c.rng.Int63n(span+1)) * time.Second)
	}

	itinerary := []string{origin}
	// Scratch prefix reused for the layover filter.
	ext := make([]string, 1, MaxLegs+2)
	ext[0] = origin

	for {
		k := len(itinerary)
		if k-1 >= MaxLegs {
			return itinerary, nil
		}

		candidates, err := c.hops(ctx, itinerary[k-1], tau)
		if err != nil {
			return nil, err
		}

		// Geographic pruning: drop hops whose extended itinerary has an
		// illogical layover.
		ext = append(ext[:0], itinerary...)
		ext = append(ext, "")
		kept := make([]hop, 0, len(candidates))
		var weightSum float64
		for _, h := range candidates {
			ext[len(ext)-1] = h.destination
			if !c.env.matrix.CheckLogicalLayovers(ext) {
				continue
			}
			kept = append(kept, h)
			weightSum += h.weight
		}

		if len(kept) == 0 || weightSum <= 0 {
			return itinerary, nil
		}

		terminal := TerminalProbability(k)
		ongoing := terminal
		if c.mode == ModeAggregated && c.legacyAggregatedIndexing {
			ongoing = TerminalProbability(k - 1)
		}

		advanced := false
		inflowSofar := 0.0
		for _, h := range kept {
			share := h.weight / weightSum
			terminalShare := share * terminal / (1 - inflowSofar)
			ongoingShare := share * (1 - ongoing) / (1 - inflowSofar)

			u := c.rng.Float64()
			switch {
			case u <= ongoingShare:
				itinerary = append(itinerary, h.destination)
				tau = h.arrival
				advanced = true
			case u > 1-terminalShare:
				return append(itinerary, h.destination), nil
			default:
				inflowSofar += share
				continue
			}
			break
		}
		if !advanced {
			// The walk fell through every hop without a decision, which
			// can only happen through floating-point drift. Terminate at
			// the last iterated destination rather than erroring.
			return append(itinerary, kept[len(kept)-1].destination), nil
		}
	}
}

// hops enumerates candidate next legs from the current airport.
func (c *Calculator) hops(ctx context.Context, at string, tau time.Time) ([]hop, error) {
	if c.mode == ModeAggregated {
		return c.env.aggregatedHops[at], nil
	}

	flights, err := c.env.store.FlightsDeparting(ctx, at, tau)
	if err != nil {
		return nil, fmt.Errorf("flights from %s: %w", at, err)
	}

	hs := make([]hop, 0, len(flights))
	for _, f := range flights {
		if !f.DepartureUTC.After(tau) {
			continue
		}
		w := flows.Passengers(f.TotalSeats) * layoverPMF(f.DepartureUTC.Sub(tau).Hours())
		if w <= 0 {
			continue
		}
		hs = append(hs, hop{destination: f.ArrivalAirport, weight: w, arrival: f.ArrivalUTC})
	}
	return hs, nil
}

// CalculateItineraries collects n productive itineraries from origin.
// After n consecutive unproductive samples it gives up and returns whatever
// was collected, which keeps isolated airports from looping forever. The
// context is checked between samples; on cancellation partial results are
// discarded.
func (c *Calculator) CalculateItineraries(ctx context.Context, origin string, n int, t0, t1 time.Time) ([][]string, error) {
	if !c.env.HasAirport(origin) {
		return nil, nil
	}
	if c.mode == ModeAggregated && len(c.env.passengerFlows[origin]) == 0 {
		return nil, nil
	}

	var itineraries [][]string
	consecutiveUnproductive := 0
	for len(itineraries) < n {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		itinerary, err := c.SampleItinerary(ctx, origin, t0, t1)
		if err != nil {
			return nil, err
		}
		if len(itinerary) < 2 {
			consecutiveUnproductive++
			if consecutiveUnproductive >= n {
				break
			}
			continue
		}
		consecutiveUnproductive = 0
		itineraries = append(itineraries, itinerary)
	}
	return itineraries, nil
}

// DestinationStats aggregates the productive itineraries that terminated at
// one airport.
type DestinationStats struct {
	// TerminalFlow is the fraction of the n requested passengers whose
	// journey ended here.
	TerminalFlow float64
	// AverageLegs is the mean itinerary length in legs.
	AverageLegs float64
	// AverageDistanceKm is the mean summed great-circle distance over legs
	// with known endpoint locations.
	AverageDistanceKm float64
}

// Calculate runs n passenger simulations from origin and returns
// per-terminal flow statistics. An origin missing from the airport table,
// or with no direct passenger flow in aggregated mode, yields an empty
// mapping rather than an error.
func (c *Calculator) Calculate(ctx context.Context, origin string, n int, t0, t1 time.Time) (map[string]DestinationStats, error) {
	itineraries, err := c.CalculateItineraries(ctx, origin, n, t0, t1)
	if err != nil {
		return nil, err
	}
	return c.Aggregate(itineraries, n), nil
}

// Aggregate folds sampled itineraries into per-terminal statistics. n is
// the requested passenger count and stays the flow denominator even when a
// bail-out collected fewer itineraries.
func (c *Calculator) Aggregate(itineraries [][]string, n int) map[string]DestinationStats {
	type tally struct {
		count    int
		legs     int
		distance float64
	}
	tallies := make(map[string]*tally)
	for _, itinerary := range itineraries {
		terminal := itinerary[len(itinerary)-1]
		t := tallies[terminal]
		if t == nil {
			t = &tally{}
			tallies[terminal] = t
		}
		t.count++
		t.legs += len(itinerary) - 1
		t.distance += c.env.matrix.ItineraryDistanceKm(itinerary)
	}

	stats := make(map[string]DestinationStats, len(tallies))
	for terminal, t := range tallies {
		stats[terminal] = DestinationStats{
			TerminalFlow:      float64(t.count) / float64(n),
			AverageLegs:       float64(t.legs) / float64(t.count),
			AverageDistanceKm: t.distance / float64(t.count),
		}
	}
	return stats
}
