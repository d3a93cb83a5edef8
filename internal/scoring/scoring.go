// Package scoring implements the weighted composite scores used to rank
// advisors into notification tiers and to rank competing offers for award.
// Everything here is a pure function over explicit inputs: identical
// inputs always produce identical rankings.
package scoring

import (
	"math"

	"github.com/partsgrid/parts-exchange/internal/config"
)

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0.0
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func validateSum(name string, sum float64, weights ...float64) error {
	for _, w := range weights {
		if w < 0 {
			return &config.ErrConfigInvalid{Reason: name + " weight vector contains a negative weight"}
		}
	}
	if sum < 1-config.WeightTolerance || sum > 1+config.WeightTolerance {
		return &config.ErrConfigInvalid{Reason: name + " weight vector does not sum to 1.0"}
	}
	return nil
}
