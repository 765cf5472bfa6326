// Package geo provides the airport distance matrix and the logical-layover
// predicate used to prune improbable itineraries.
package geo

import (
	"math"
	"sort"
)

// earthRadiusKm is the mean earth radius used for great-circle distances.
const earthRadiusKm = 6371.009

// Coord is an airport location in degrees.
type Coord struct {
	Longitude float64
	Latitude  float64
}

// GreatCircleKm returns the great-circle distance between two coordinates
// in kilometres.
func GreatCircleKm(a, b Coord) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180

	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180
	for dLon > math.Pi {
		dLon -= 2 * math.Pi
	}
	for dLon < -math.Pi {
		dLon += 2 * math.Pi
	}

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)

	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Matrix holds pairwise great-circle distances between every airport with a
// known location. Airports absent from the matrix are treated as having
// unknown locations: the layover predicates pass them through rather than
// pruning itineraries on missing data.
type Matrix struct {
	index map[string]int
	dist  [][]float64
}

// BuildMatrix computes the symmetric distance matrix for the given airport
// locations. Built once per calculator; immutable afterwards.
func BuildMatrix(coords map[string]Coord) *Matrix {
	codes := make([]string, 0, len(coords))
	for code := range coords {
		codes = append(codes, code)
	}
	// Stable ordering keeps matrix layout reproducible across runs.
	sort.Strings(codes)

	m := &Matrix{
		index: make(map[string]int, len(codes)),
		dist:  make([][]float64, len(codes)),
	}
	for i, code := range codes {
		m.index[code] = i
		m.dist[i] = make([]float64, len(codes))
	}
	for i, a := range codes {
		for j := i + 1; j < len(codes); j++ {
			d := GreatCircleKm(coords[a], coords[codes[j]])
			m.dist[i][j] = d
			m.dist[j][i] = d
		}
	}
	return m
}

// Known reports whether the airport has a known location.
func (m *Matrix) Known(code string) bool {
	_, ok := m.index[code]
	return ok
}

// Size returns the number of airports in the matrix.
func (m *Matrix) Size() int {
	return len(m.dist)
}

// Distance returns the great-circle distance in kilometres between two
// airports. The second return is false if either location is unknown.
func (m *Matrix) Distance(a, b string) (float64, bool) {
	i, ok := m.index[a]
	if !ok {
		return 0, false
	}
	j, ok := m.index[b]
	if !ok {
		return 0, false
	}
	return m.dist[i][j], true
}

// IsLogical reports whether via is a plausible layover between origin and
// dest: it must lie within the circle of radius d(origin, dest) around
// either endpoint. A layover that both adds distance and leaves the
// passenger farther from the destination is pruned. Airports with unknown
// locations are conservatively treated as logical.
func (m *Matrix) IsLogical(origin, dest, via string) bool {
	if origin == dest {
		return false
	}
	i, ok := m.index[origin]
	if !ok {
		return true
	}
	j, ok := m.index[dest]
	if !ok {
		return true
	}
	k, ok := m.index[via]
	if !ok {
		return true
	}
	if k == i || k == j {
		return false
	}
	od := m.dist[i][j]
	return m.dist[k][j] < od || m.dist[k][i] < od
}

// CheckLogicalLayovers validates a whole itinerary. The first element is
// the origin, the last is the destination, everything between is a layover.
// Itineraries returning to their origin are rejected. For itineraries of
// four or more legs the tail triple must also be locally logical, which
// prunes paths that wander before the final approach.
func (m *Matrix) CheckLogicalLayovers(itinerary []string) bool {
	if len(itinerary) < 2 {
		return true
	}
	origin := itinerary[0]
	dest := itinerary[len(itinerary)-1]
	if origin == dest {
		return false
	}
	if !m.Known(origin) || !m.Known(dest) {
		return true
	}
	if len(itinerary) >= 5 {
		if !m.IsLogical(itinerary[len(itinerary)-3], dest, itinerary[len(itinerary)-2]) {
			return false
		}
	}
	for _, via := range itinerary[1 : len(itinerary)-1] {
		if !m.Known(via) {
			continue
		}
		if !m.IsLogical(origin, dest, via) {
			return false
		}
	}
	return true
}

// ItineraryDistanceKm sums great-circle distances over adjacent pairs with
// known locations.
func (m *Matrix) ItineraryDistanceKm(itinerary []string) float64 {
	var total float64
	for i := 1; i < len(itinerary); i++ {
		if d, ok := m.Distance(itinerary[i-1], itinerary[i]); ok {
			total += d
		}
	}
	return total
}
