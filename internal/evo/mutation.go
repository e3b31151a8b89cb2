package evo

import (
	"math"
	"math/rand"

	"coevolve/internal/model"
)

// BoxMullerMutator perturbs genes with gaussian noise drawn by the polar
// Box-Muller method.
type BoxMullerMutator struct {
	Sigma float64
}

func (BoxMullerMutator) Name() string {
	return "box_muller"
}

// MutateGene returns gene plus scaled gaussian noise, clamped to bounds.
// Candidate points are drawn from [-h, h)^2 with h = min(1, half the gene
// span) and rejected outside the unit disk or at the origin.
func (m BoxMullerMutator) MutateGene(rng *rand.Rand, gene float64, bounds GeneBounds) float64 {
	h := math.Min(1, (bounds.Max-bounds.Min)/2)
	var x1, w float64
	for {
		x1 = (2*rng.Float64() - 1) * h
		x2 := (2*rng.Float64() - 1) * h
		w = x1*x1 + x2*x2
		if w > 0 && w <= 1 {
			break
		}
	}
	y := gene + m.Sigma*x1*math.Sqrt(-2*math.Log(w)/w)
	return bounds.Clamp(y)
}

// Mutate applies MutateGene to each gene independently with probability prob
// and reports how many genes changed.
func (m BoxMullerMutator) Mutate(rng *rand.Rand, genome model.Genome, prob float64, bounds GeneBounds) int {
	mutated := 0
	for i := range genome {
		if rng.Float64() < prob {
			genome[i] = m.MutateGene(rng, genome[i], bounds)
			mutated++
		}
	}
	return mutated
}
