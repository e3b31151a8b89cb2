package evo

import (
	"fmt"
	"math/rand"

	"coevolve/internal/fitness"
	"coevolve/internal/model"
)

// BreedInput is the evaluated generation handed to a Breeder. Genomes are
// copies the breeder may read freely.
type BreedInput struct {
	Genomes    []model.Genome
	Fitness    [][]float64
	Generation int
}

// Breeder produces the full next generation from an evaluated one.
type Breeder interface {
	Name() string
	Breed(rng *rand.Rand, params Params, in BreedInput) ([]model.Genome, error)
}

// ElitistBreeder collapses all objectives into one score, keeps the top
// EliteCount genomes unchanged and fills the rest by selection, crossover
// and mutation.
type ElitistBreeder struct {
	Selector Selector
	// Ranges normalizes raw fitness before scoring. One range per objective
	// normalizes each objective and sums them. A single range normalizes
	// the raw sum. Empty leaves the raw sum as the score.
	Ranges []fitness.Range
}

func (b ElitistBreeder) Name() string {
	if b.Selector == nil {
		return "elitist"
	}
	return "elitist_" + b.Selector.Name()
}

// Scores returns each individual's combined score.
func (b ElitistBreeder) Scores(rows [][]float64) ([]float64, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("no objectives to score")
	}
	n := len(rows[0])
	scores := make([]float64, n)
	switch {
	case len(b.Ranges) == 0:
		for _, row := range rows {
			for i, v := range row {
				scores[i] += v
			}
		}
	case len(b.Ranges) == len(rows):
		for obj, row := range rows {
			for i, v := range row {
				norm, err := b.Ranges[obj].Normalize(v)
				if err != nil {
					return nil, fmt.Errorf("objective %d: %w", obj, err)
				}
				scores[i] += norm
			}
		}
	case len(b.Ranges) == 1:
		for _, row := range rows {
			for i, v := range row {
				scores[i] += v
			}
		}
		for i, v := range scores {
			norm, err := b.Ranges[0].Normalize(v)
			if err != nil {
				return nil, err
			}
			scores[i] = norm
		}
	default:
		return nil, fmt.Errorf("%w: %d ranges for %d objectives", ErrObjectiveMismatch, len(b.Ranges), len(rows))
	}
	return scores, nil
}

func (b ElitistBreeder) Breed(rng *rand.Rand, params Params, in BreedInput) ([]model.Genome, error) {
	if b.Selector == nil {
		return nil, fmt.Errorf("selector is required")
	}
	scores, err := b.Scores(in.Fitness)
	if err != nil {
		return nil, err
	}
	if len(scores) != len(in.Genomes) {
		return nil, fmt.Errorf("%w: %d scores for %d genomes", ErrObjectiveMismatch, len(scores), len(in.Genomes))
	}
	ranked := Rank(scores)
	elite := params.EliteCount()
	if elite > len(ranked) {
		elite = len(ranked)
	}

	next := make([]model.Genome, len(in.Genomes))
	for i := 0; i < elite; i++ {
		next[i] = in.Genomes[ranked[i].Index].Clone()
	}

	mutator := BoxMullerMutator{Sigma: params.MutationSigma}
	for i := elite; i < len(next); i++ {
		pos, err := b.Selector.PickParent(rng, ranked, elite)
		if err != nil {
			return nil, err
		}
		first := in.Genomes[ranked[pos].Index]
		child, err := offspring(rng, params, mutator, first, func() (model.Genome, error) {
			other, err := pickOther(pos, len(ranked), func() (int, error) {
				return b.Selector.PickParent(rng, ranked, elite)
			})
			if err != nil {
				return nil, err
			}
			return in.Genomes[ranked[other].Index], nil
		})
		if err != nil {
			return nil, err
		}
		next[i] = child
	}
	return next, nil
}

const distinctParentAttempts = 16

// pickOther draws with pick until it differs from first. With a single
// candidate, or after repeated collisions, the last draw is kept.
func pickOther(first, n int, pick func() (int, error)) (int, error) {
	var other int
	for attempt := 0; attempt < distinctParentAttempts; attempt++ {
		var err error
		other, err = pick()
		if err != nil {
			return 0, err
		}
		if other != first || n < 2 {
			return other, nil
		}
	}
	return other, nil
}

// offspring copies first or, with the crossover probability, recombines it
// with a second parent, then mutates the child.
func offspring(rng *rand.Rand, params Params, mutator BoxMullerMutator, first model.Genome, second func() (model.Genome, error)) (model.Genome, error) {
	var child model.Genome
	if rng.Float64() < params.CrossoverProbability {
		mate, err := second()
		if err != nil {
			return nil, err
		}
		child, err = SinglePoint(rng, first, mate)
		if err != nil {
			return nil, err
		}
	} else {
		child = first.Clone()
	}
	mutator.Mutate(rng, child, params.MutationProbability, params.Bounds)
	return child, nil
}
