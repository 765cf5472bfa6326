package sim

import (
	"math"
	"testing"
)

func TestLayoverPMF(t *testing.T) {
	e2 := math.Exp(-2)

	tests := []struct {
		hours float64
		want  float64
	}{
		{0, e2},
		{0.25, e2},     // sub-hour layovers share the zero-hour weight
		{0.9999, e2},   // up to the hour boundary
		{1, 2 * e2},    // λ^1/1!
		{1.5, 2 * e2},  // floored
		{2, 2 * e2},    // λ²/2! = 2e⁻²
		{3, 4 * e2 / 3},
		{-0.5, 0},
	}

	for _, tt := range tests {
		got := layoverPMF(tt.hours)
		if math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("layoverPMF(%v) = %v, want %v", tt.hours, got, tt.want)
		}
	}
}

func TestLayoverPMFPeaksAtMean(t *testing.T) {
	// With λ = 2 the PMF is maximal (and tied) at 1 and 2 whole hours, and
	// decays afterwards.
	if layoverPMF(1) != layoverPMF(2) {
		t.Errorf("layoverPMF(1) = %v, layoverPMF(2) = %v, want equal", layoverPMF(1), layoverPMF(2))
	}
	if layoverPMF(0) >= layoverPMF(1) {
		t.Errorf("layoverPMF(0) = %v not below layoverPMF(1) = %v", layoverPMF(0), layoverPMF(1))
	}
	for h := 2.0; h < 12; h++ {
		if layoverPMF(h+1) >= layoverPMF(h) {
			t.Errorf("layoverPMF(%v) = %v not decaying from layoverPMF(%v) = %v",
				h+1, layoverPMF(h+1), h, layoverPMF(h))
		}
	}
}
