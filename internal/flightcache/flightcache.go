// Package flightcache memoises schedule reads. The (airport, day) query
// dominates simulation cost: one itinerary touches a handful of days but a
// calculator samples thousands of itineraries over the same window.
package flightcache

import (
	"context"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"flowsim/internal/schedule"
)

// DefaultCapacity bounds the cache by entry count. A calculator's working
// set is around 30k (airport, day) pairs.
const DefaultCapacity = 25000

type key struct {
	airport string
	day     int64 // unix seconds of the UTC midnight
}

// Cache is a read-through LRU in front of a schedule store. It implements
// schedule.Store itself, so the sampler does not know it is there. Cached
// slices are returned by reference and must be treated as immutable.
type Cache struct {
	store   schedule.Store
	flights *lru.Cache[key, []schedule.LightFlight]

	hits   atomic.Int64
	misses atomic.Int64
}

// New wraps store with a bounded cache. capacity <= 0 selects
// DefaultCapacity.
func New(store schedule.Store, capacity int) (*Cache, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	c, err := lru.New[key, []schedule.LightFlight](capacity)
	if err != nil {
		return nil, err
	}
	return &Cache{store: store, flights: c}, nil
}

// Airports passes through; the airport table is loaded once per calculator
// and needs no memoisation.
func (c *Cache) Airports(ctx context.Context) ([]schedule.Airport, error) {
	return c.store.Airports(ctx)
}

// FlightsDeparting returns the cached flight list for (airport, day),
// reading through to the store on a miss. Errors are not cached.
func (c *Cache) FlightsDeparting(ctx context.Context, airport string, day time.Time) ([]schedule.LightFlight, error) {
	k := key{airport: airport, day: schedule.DayOf(day).Unix()}
	if flights, ok := c.flights.Get(k); ok {
		c.hits.Add(1)
		return flights, nil
	}
	flights, err := c.store.FlightsDeparting(ctx, airport, day)
	if err != nil {
		return nil, err
	}
	c.flights.Add(k, flights)
	c.misses.Add(1)
	return flights, nil
}

// DirectSeatFlows passes through; the aggregate is computed once per window.
func (c *Cache) DirectSeatFlows(ctx context.Context, start, end time.Time) (map[string]map[string]int, error) {
	return c.store.DirectSeatFlows(ctx, start, end)
}

// Stats returns hit and miss counts since creation.
func (c *Cache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Len returns the number of cached (airport, day) entries.
func (c *Cache) Len() int {
	return c.flights.Len()
}
