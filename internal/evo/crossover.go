package evo

import (
	"fmt"
	"math/rand"

	"coevolve/internal/model"
)

// CrossoverAt builds a child taking genes at or before cut from a and the
// rest from b.
func CrossoverAt(a, b model.Genome, cut int) (model.Genome, error) {
	if len(a) != len(b) {
		return nil, fmt.Errorf("crossover parents differ in length: %d vs %d", len(a), len(b))
	}
	child := make(model.Genome, len(a))
	for i := range child {
		if i <= cut {
			child[i] = a[i]
		} else {
			child[i] = b[i]
		}
	}
	return child, nil
}

// SinglePoint draws a cut point uniformly in [0, len) and recombines.
func SinglePoint(rng *rand.Rand, a, b model.Genome) (model.Genome, error) {
	if len(a) == 0 {
		return CrossoverAt(a, b, 0)
	}
	return CrossoverAt(a, b, rng.Intn(len(a)))
}
