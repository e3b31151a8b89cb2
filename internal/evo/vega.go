package evo

import (
	"fmt"
	"math"
	"math/rand"

	"coevolve/internal/fitness"
	"coevolve/internal/model"
)

// ObjectiveStats tracks one objective's normalized fitness over generations.
type ObjectiveStats struct {
	Objective  int
	Generation int
	Best       float64
	Average    float64
	Worst      float64
	BestIndex  int

	AbsoluteBest           float64
	AbsoluteBestGeneration int
	AbsoluteBestGenome     model.Genome
}

// VEGABreeder implements the vector evaluated genetic algorithm: the
// population is split into one subpopulation per objective, each selects
// parents on its own objective and the pools are merged before variation.
type VEGABreeder struct {
	Ranges []fitness.Range

	stats []ObjectiveStats
}

func NewVEGABreeder(ranges []fitness.Range) (*VEGABreeder, error) {
	for i, r := range ranges {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("objective %d: %w", i, err)
		}
	}
	copied := make([]fitness.Range, len(ranges))
	copy(copied, ranges)
	return &VEGABreeder{Ranges: copied}, nil
}

func (*VEGABreeder) Name() string {
	return "vega"
}

// Stats returns the latest per-objective statistics.
func (v *VEGABreeder) Stats() []ObjectiveStats {
	out := make([]ObjectiveStats, len(v.stats))
	for i, s := range v.stats {
		s.AbsoluteBestGenome = s.AbsoluteBestGenome.Clone()
		out[i] = s
	}
	return out
}

// Partition splits order into parts contiguous groups of equal size.
func Partition(order []int, parts int) ([][]int, error) {
	if parts <= 0 {
		return nil, fmt.Errorf("partition count must be positive: %d", parts)
	}
	if len(order)%parts != 0 {
		return nil, fmt.Errorf("%w: size=%d objectives=%d", ErrUnevenPartition, len(order), parts)
	}
	size := len(order) / parts
	out := make([][]int, parts)
	for i := range out {
		group := make([]int, size)
		copy(group, order[i*size:(i+1)*size])
		out[i] = group
	}
	return out, nil
}

func (v *VEGABreeder) Breed(rng *rand.Rand, params Params, in BreedInput) ([]model.Genome, error) {
	n := len(in.Genomes)
	objectives := len(in.Fitness)
	if objectives == 0 {
		return nil, fmt.Errorf("no objectives to breed on")
	}
	if len(v.Ranges) != objectives {
		return nil, fmt.Errorf("%w: %d ranges for %d objectives", ErrObjectiveMismatch, len(v.Ranges), objectives)
	}
	if n%objectives != 0 {
		return nil, fmt.Errorf("%w: size=%d objectives=%d", ErrUnevenPartition, n, objectives)
	}

	normalized := make([][]float64, objectives)
	for obj, row := range in.Fitness {
		if len(row) != n {
			return nil, fmt.Errorf("%w: objective %d has %d values for %d genomes", ErrObjectiveMismatch, obj, len(row), n)
		}
		norm, err := fitness.NormalizeAll(v.Ranges[obj], row)
		if err != nil {
			return nil, fmt.Errorf("objective %d: %w", obj, err)
		}
		normalized[obj] = norm
	}
	v.updateStats(in, normalized)

	groups, err := Partition(rng.Perm(n), objectives)
	if err != nil {
		return nil, err
	}

	pool := make([]int, 0, n)
	for obj, members := range groups {
		values := make([]float64, len(members))
		for i, m := range members {
			values[i] = normalized[obj][m]
		}
		ranked := Rank(values)
		selected, err := RoulettePool(rng, ranked, len(members))
		if err != nil {
			return nil, fmt.Errorf("objective %d: %w", obj, err)
		}
		for range members {
			pos := selected[rng.Intn(len(selected))]
			pool = append(pool, members[ranked[pos].Index])
		}
	}

	mutator := BoxMullerMutator{Sigma: params.MutationSigma}
	next := make([]model.Genome, n)
	for i := range next {
		first := rng.Intn(n)
		child, err := offspring(rng, params, mutator, in.Genomes[pool[first]], func() (model.Genome, error) {
			second, err := pickOther(first, n, func() (int, error) { return rng.Intn(n), nil })
			if err != nil {
				return nil, err
			}
			return in.Genomes[pool[second]], nil
		})
		if err != nil {
			return nil, err
		}
		next[i] = child
	}
	return next, nil
}

func (v *VEGABreeder) updateStats(in BreedInput, normalized [][]float64) {
	if len(v.stats) != len(normalized) {
		v.stats = make([]ObjectiveStats, len(normalized))
		for i := range v.stats {
			v.stats[i] = ObjectiveStats{Objective: i, AbsoluteBest: math.Inf(-1), BestIndex: -1}
		}
	}
	for obj, row := range normalized {
		s := fitness.Summarize(row)
		st := &v.stats[obj]
		st.Generation = in.Generation
		st.Best, st.Average, st.Worst, st.BestIndex = s.Best, s.Average, s.Worst, s.BestIndex
		if s.BestIndex >= 0 && s.Best > st.AbsoluteBest {
			st.AbsoluteBest = s.Best
			st.AbsoluteBestGeneration = in.Generation
			st.AbsoluteBestGenome = in.Genomes[s.BestIndex].Clone()
		}
	}
}
