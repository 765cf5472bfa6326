// Package sim implements the Monte Carlo itinerary sampler and the flow
// calculator facade built on top of it.
package sim

// MaxLegs bounds itinerary depth; the leg distribution below assigns
// negligible mass beyond it.
const MaxLegs = 10

// LegProbability is the marginal probability that a journey has exactly k
// legs. Assumed homogeneous across origin and travel time; derived from
// transit statistics.
var LegProbability = [MaxLegs + 1]float64{
	0,
	0.6772732,
	0.2997706,
	0.0211374,
	0.0016254,
	0.0001632,
	0.0000215,
	0.0000072,
	0.0000012,
	0.0000002,
	0.0000001,
}

// terminalProbability[k] is the probability the journey ends at leg k given
// the passenger has already flown k-1 legs:
// T(k) = p(k) / (1 - Σ_{n<k} p(n)).
var terminalProbability [MaxLegs + 1]float64

func init() {
	var sum float64
	for k := 1; k <= MaxLegs; k++ {
		terminalProbability[k] = LegProbability[k] / (1 - sum)
		sum += LegProbability[k]
	}
}

// TerminalProbability returns T(k), clamping out-of-range leg indices to 1
// so callers past MaxLegs always terminate.
func TerminalProbability(k int) float64 {
	if k < 1 {
		return 0
	}
	if k > MaxLegs {
		return 1
	}
	return terminalProbability[k]
}

// SeatsPerPassenger is the expected number of legs (and so seats) a single
// passenger occupies: Σ k·p(k), about 1.35. Used to convert terminal flows
// into passenger estimates.
func SeatsPerPassenger() float64 {
	var s float64
	for k := 1; k <= MaxLegs; k++ {
		s += float64(k) * LegProbability[k]
	}
	return s
}
