package sim

import "math"

// MeanLayoverDelayHours is the λ of the layover Poisson model: passengers
// are most likely to take a connection about two hours after arriving.
const MeanLayoverDelayHours = 2

// layoverPMF weights a connection by where its layover falls on a Poisson
// distribution with λ = MeanLayoverDelayHours. Hours are floored to an
// integer before evaluating the PMF, so every sub-hour layover shares one
// weight; this matches the fitted model and must not be "fixed" to a
// continuous distribution.
func layoverPMF(hours float64) float64 {
	if hours < 0 {
		return 0
	}
	p := math.Exp(-MeanLayoverDelayHours)
	n := int(hours)
	for i := 0; i < n; i++ {
		p *= MeanLayoverDelayHours
		p /= float64(i + 1)
	}
	return p
}
