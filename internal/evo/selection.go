package evo

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
)

var ErrEmptyRanking = errors.New("ranking is empty")

// Selector chooses a parent from a ranked population. The result is a
// position in ranked, not an individual index.
type Selector interface {
	Name() string
	PickParent(rng *rand.Rand, ranked []Ranked, eliteCount int) (int, error)
}

func checkSelectionInput(rng *rand.Rand, ranked []Ranked, eliteCount int) error {
	if rng == nil {
		return fmt.Errorf("random source is required")
	}
	if len(ranked) == 0 {
		return ErrEmptyRanking
	}
	if eliteCount < 0 || eliteCount > len(ranked) {
		return fmt.Errorf("invalid elite count: %d", eliteCount)
	}
	return nil
}

// TruncationSelector draws uniformly from the band of ranked positions
// [eliteCount, floor(N*ReproductionRatio)).
type TruncationSelector struct {
	ReproductionRatio float64
}

func (TruncationSelector) Name() string {
	return "truncation"
}

// Band returns the half-open ranked-position interval parents come from.
// When elites fill the whole reproduction band the band restarts at 0.
func (s TruncationSelector) Band(n, eliteCount int) (int, int) {
	hi := int(math.Floor(float64(n) * s.ReproductionRatio))
	if hi > n {
		hi = n
	}
	lo := eliteCount
	if hi <= lo {
		lo = 0
		if hi < 1 {
			hi = 1
		}
	}
	return lo, hi
}

func (s TruncationSelector) PickParent(rng *rand.Rand, ranked []Ranked, eliteCount int) (int, error) {
	if err := checkSelectionInput(rng, ranked, eliteCount); err != nil {
		return 0, err
	}
	lo, hi := s.Band(len(ranked), eliteCount)
	return lo + rng.Intn(hi-lo), nil
}

// RouletteSelector picks with probability proportional to fitness shifted
// by the worst ranked fitness.
type RouletteSelector struct{}

func (RouletteSelector) Name() string {
	return "roulette"
}

func (RouletteSelector) PickParent(rng *rand.Rand, ranked []Ranked, eliteCount int) (int, error) {
	if err := checkSelectionInput(rng, ranked, eliteCount); err != nil {
		return 0, err
	}
	weights := rouletteWeights(ranked)
	total := 0.0
	for _, w := range weights {
		total += w
	}
	if !(total > 0) || math.IsInf(total, 0) {
		return rng.Intn(len(ranked)), nil
	}

	r := rng.Float64() * total
	cum := 0.0
	for i, w := range weights {
		cum += w
		if r < cum {
			return i, nil
		}
	}
	return len(ranked) - 1, nil
}

// rouletteWeights shifts every fitness by the minimum ranked fitness,
// treating a negative minimum as zero, and clamps results at zero.
func rouletteWeights(ranked []Ranked) []float64 {
	shift := ranked[len(ranked)-1].Fitness
	if shift < 0 || math.IsNaN(shift) {
		shift = 0
	}
	weights := make([]float64, len(ranked))
	for i, r := range ranked {
		w := r.Fitness - shift
		if w < 0 || math.IsNaN(w) {
			w = 0
		}
		weights[i] = w
	}
	return weights
}

// RoulettePool draws size ranked positions by roulette.
func RoulettePool(rng *rand.Rand, ranked []Ranked, size int) ([]int, error) {
	pool := make([]int, size)
	sel := RouletteSelector{}
	for i := range pool {
		pos, err := sel.PickParent(rng, ranked, 0)
		if err != nil {
			return nil, err
		}
		pool[i] = pos
	}
	return pool, nil
}
